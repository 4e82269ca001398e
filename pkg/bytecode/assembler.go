package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/daimatz/setip/pkg/classfile"
)

// Label is a forward-referencable code position.
type Label int

type fixup struct {
	at    int // offset of the branch operand
	from  int // offset of the branch instruction
	label Label
	wide  bool
}

// Assembler emits instructions into a code array. Branches use 16-bit
// offsets; Assemble fails if a label is out of range.
type Assembler struct {
	code   []byte
	labels []int
	fixups []fixup
	lines  []classfile.LineNumber
	err    error
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Offset returns the offset of the next instruction.
func (a *Assembler) Offset() int {
	return len(a.code)
}

// NewLabel allocates an unbound label.
func (a *Assembler) NewLabel() Label {
	a.labels = append(a.labels, -1)
	return Label(len(a.labels) - 1)
}

// Mark binds l to the current offset.
func (a *Assembler) Mark(l Label) {
	a.labels[l] = len(a.code)
}

// Line records a LineNumberTable entry at the current offset.
func (a *Assembler) Line(line int) {
	a.lines = append(a.lines, classfile.LineNumber{StartPC: uint16(len(a.code)), LineNumber: uint16(line)})
}

// Lines returns the recorded line numbers.
func (a *Assembler) Lines() []classfile.LineNumber {
	return a.lines
}

// Op emits an instruction without operands.
func (a *Assembler) Op(op byte) {
	a.code = append(a.code, op)
}

// OpU8 emits an instruction with a one-byte operand.
func (a *Assembler) OpU8(op byte, v uint8) {
	a.code = append(a.code, op, v)
}

// OpU16 emits an instruction with a two-byte operand such as a constant
// pool index.
func (a *Assembler) OpU16(op byte, v uint16) {
	a.code = append(a.code, op)
	a.code = binary.BigEndian.AppendUint16(a.code, v)
}

// Invokeinterface emits invokeinterface with its argument count.
func (a *Assembler) Invokeinterface(index uint16, argSlots int) {
	a.OpU16(OpInvokeinterface, index)
	a.code = append(a.code, byte(argSlots+1), 0)
}

// Push emits the shortest instruction pushing an int constant.
func (a *Assembler) Push(v int32) {
	switch {
	case v >= -1 && v <= 5:
		a.Op(byte(OpIconst0 + v))
	case v >= -128 && v <= 127:
		a.OpU8(OpBipush, uint8(int8(v)))
	case v >= -32768 && v <= 32767:
		a.OpU16(OpSipush, uint16(int16(v)))
	default:
		a.err = fmt.Errorf("constant %d needs ldc", v)
	}
}

// Load emits a local variable load. op is one of OpIload, OpLload, OpFload,
// OpDload or OpAload; the short and wide forms are chosen automatically.
func (a *Assembler) Load(op byte, index int) {
	a.local(op, OpIload0+(op-OpIload)*4, index)
}

// Store emits a local variable store. op is one of OpIstore, OpLstore,
// OpFstore, OpDstore or OpAstore.
func (a *Assembler) Store(op byte, index int) {
	a.local(op, OpIstore0+(op-OpIstore)*4, index)
}

func (a *Assembler) local(op, short byte, index int) {
	switch {
	case index < 4:
		a.Op(short + byte(index))
	case index < 256:
		a.OpU8(op, uint8(index))
	default:
		a.code = append(a.code, OpWide, op)
		a.code = binary.BigEndian.AppendUint16(a.code, uint16(index))
	}
}

// Iinc emits an increment of an int local.
func (a *Assembler) Iinc(index int, delta int) {
	if index < 256 && delta >= -128 && delta <= 127 {
		a.code = append(a.code, OpIinc, uint8(index), uint8(int8(delta)))
		return
	}
	a.code = append(a.code, OpWide, OpIinc)
	a.code = binary.BigEndian.AppendUint16(a.code, uint16(index))
	a.code = binary.BigEndian.AppendUint16(a.code, uint16(int16(delta)))
}

// Jump emits a branch to l.
func (a *Assembler) Jump(op byte, l Label) {
	from := len(a.code)
	a.code = append(a.code, op, 0, 0)
	a.fixups = append(a.fixups, fixup{at: from + 1, from: from, label: l})
}

// Tableswitch emits a tableswitch jumping to cases[k-low] for keys in
// low..low+len(cases)-1 and to def otherwise.
func (a *Assembler) Tableswitch(low int32, def Label, cases ...Label) {
	from := len(a.code)
	a.code = append(a.code, OpTableswitch)
	for len(a.code)%4 != 0 {
		a.code = append(a.code, 0)
	}
	a.switchTarget(from, def)
	a.code = binary.BigEndian.AppendUint32(a.code, uint32(low))
	a.code = binary.BigEndian.AppendUint32(a.code, uint32(low+int32(len(cases))-1))
	for _, l := range cases {
		a.switchTarget(from, l)
	}
}

func (a *Assembler) switchTarget(from int, l Label) {
	a.fixups = append(a.fixups, fixup{at: len(a.code), from: from, label: l, wide: true})
	a.code = append(a.code, 0, 0, 0, 0)
}

// Goto emits an unconditional jump to an absolute offset, widening to
// goto_w when the distance does not fit in 16 bits. The target may lie
// beyond the assembled code.
func (a *Assembler) Goto(target int) {
	from := len(a.code)
	delta := target - from
	if delta >= -32768 && delta <= 32767 {
		a.OpU16(OpGoto, uint16(int16(delta)))
		return
	}
	a.code = append(a.code, OpGotoW)
	a.code = binary.BigEndian.AppendUint32(a.code, uint32(int32(delta)))
}

// Assemble resolves labels and returns the code array.
func (a *Assembler) Assemble() ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	for _, f := range a.fixups {
		target := a.labels[f.label]
		if target < 0 {
			return nil, fmt.Errorf("unbound label %d", f.label)
		}
		delta := target - f.from
		if f.wide {
			binary.BigEndian.PutUint32(a.code[f.at:], uint32(int32(delta)))
			continue
		}
		if delta < -32768 || delta > 32767 {
			return nil, fmt.Errorf("branch at %d out of range", f.from)
		}
		binary.BigEndian.PutUint16(a.code[f.at:], uint16(int16(delta)))
	}
	return a.code, nil
}
