package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Instruction is one decoded instruction. Branch and switch targets are
// absolute offsets into the code array.
type Instruction struct {
	Offset int
	Opcode byte
	Length int
	// Wide is set when the instruction carries the wide prefix.
	Wide bool
	// Index is the local variable index of loads, stores, iinc and ret, or the
	// constant pool index of ldc, field, method and type instructions.
	Index int
	// Value is the immediate of bipush, sipush and iinc, the array type of
	// newarray or the dimensions of multianewarray.
	Value int32
	// Target is the branch target, or the default target of a switch.
	Target int
	// Cases are the non-default targets of a switch.
	Cases []int
}

func (in Instruction) String() string {
	return fmt.Sprintf("%d: %s", in.Offset, OpName(in.Opcode))
}

// Next returns the offset of the following instruction.
func (in Instruction) Next() int {
	return in.Offset + in.Length
}

// IsBranch reports whether the instruction has a Target.
func (in Instruction) IsBranch() bool {
	switch in.Opcode {
	case OpGoto, OpGotoW, OpJsr, OpJsrW, OpTableswitch, OpLookupswitch:
		return true
	}
	return IsConditionalBranch(in.Opcode)
}

// FallsThrough reports whether control can reach the next instruction.
func (in Instruction) FallsThrough() bool {
	switch in.Opcode {
	case OpGoto, OpGotoW, OpTableswitch, OpLookupswitch, OpAthrow, OpRet:
		return false
	}
	return !IsReturn(in.Opcode)
}

// Successors returns the branch targets of the instruction, excluding
// the fallthrough.
func (in Instruction) Successors() []int {
	if !in.IsBranch() {
		return nil
	}
	return append([]int{in.Target}, in.Cases...)
}

// Decode decodes a whole code array.
func Decode(code []byte) ([]Instruction, error) {
	var instrs []Instruction
	for pc := 0; pc < len(code); {
		in, err := DecodeAt(code, pc)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, in)
		pc += in.Length
	}
	return instrs, nil
}

// DecodeAt decodes the instruction starting at pc.
func DecodeAt(code []byte, pc int) (Instruction, error) {
	op := code[pc]
	in := Instruction{Offset: pc, Opcode: op}
	size := operandSize[op]
	if size == -2 {
		return in, fmt.Errorf("invalid opcode 0x%02X at %d", op, pc)
	}
	if size >= 0 && pc+1+int(size) > len(code) {
		return in, fmt.Errorf("truncated %s at %d", OpName(op), pc)
	}
	in.Length = 1 + int(size)
	u8 := func(i int) int { return int(code[pc+i]) }
	u16 := func(i int) int { return int(binary.BigEndian.Uint16(code[pc+i:])) }
	s16 := func(i int) int { return int(int16(binary.BigEndian.Uint16(code[pc+i:]))) }

	switch {
	case op == OpBipush:
		in.Value = int32(int8(code[pc+1]))
	case op == OpSipush:
		in.Value = int32(s16(1))
	case op == OpLdc:
		in.Index = u8(1)
	case op == OpLdcW || op == OpLdc2W:
		in.Index = u16(1)
	case op >= OpIload && op <= OpAload, op >= OpIstore && op <= OpAstore, op == OpRet:
		in.Index = u8(1)
	case op >= OpIload0 && op <= OpAload3:
		in.Index = int(op-OpIload0) % 4
	case op >= OpIstore0 && op <= OpAstore3:
		in.Index = int(op-OpIstore0) % 4
	case op == OpIinc:
		in.Index = u8(1)
		in.Value = int32(int8(code[pc+2]))
	case IsConditionalBranch(op), op == OpGoto, op == OpJsr:
		in.Target = pc + s16(1)
	case op == OpGotoW || op == OpJsrW:
		in.Target = pc + int(int32(binary.BigEndian.Uint32(code[pc+1:])))
	case op >= OpGetstatic && op <= OpInvokedynamic, op == OpNew, op == OpAnewarray,
		op == OpCheckcast, op == OpInstanceof:
		in.Index = u16(1)
	case op == OpNewarray:
		in.Value = int32(u8(1))
	case op == OpMultianewarray:
		in.Index = u16(1)
		in.Value = int32(u8(3))
	case op == OpWide:
		return decodeWide(code, pc)
	case op == OpTableswitch || op == OpLookupswitch:
		return decodeSwitch(code, pc)
	}
	return in, nil
}

func decodeWide(code []byte, pc int) (Instruction, error) {
	if pc+4 > len(code) {
		return Instruction{}, fmt.Errorf("truncated wide at %d", pc)
	}
	op := code[pc+1]
	in := Instruction{Offset: pc, Opcode: op, Wide: true, Length: 4,
		Index: int(binary.BigEndian.Uint16(code[pc+2:]))}
	switch {
	case op == OpIinc:
		if pc+6 > len(code) {
			return in, fmt.Errorf("truncated wide iinc at %d", pc)
		}
		in.Length = 6
		in.Value = int32(int16(binary.BigEndian.Uint16(code[pc+4:])))
	case op >= OpIload && op <= OpAload, op >= OpIstore && op <= OpAstore, op == OpRet:
	default:
		return in, fmt.Errorf("invalid wide opcode 0x%02X at %d", op, pc)
	}
	return in, nil
}

func decodeSwitch(code []byte, pc int) (Instruction, error) {
	op := code[pc]
	in := Instruction{Offset: pc, Opcode: op}
	p := (pc + 4) &^ 3 // operands start on a 4-byte boundary
	s32 := func(i int) (int, error) {
		if i+4 > len(code) {
			return 0, fmt.Errorf("truncated %s at %d", OpName(op), pc)
		}
		return int(int32(binary.BigEndian.Uint32(code[i:]))), nil
	}
	def, err := s32(p)
	if err != nil {
		return in, err
	}
	in.Target = pc + def
	var n int
	var step int
	if op == OpTableswitch {
		low, err := s32(p + 4)
		if err != nil {
			return in, err
		}
		high, err := s32(p + 8)
		if err != nil {
			return in, err
		}
		if high < low {
			return in, fmt.Errorf("tableswitch at %d: high %d < low %d", pc, high, low)
		}
		n, step, p = high-low+1, 4, p+12
	} else {
		npairs, err := s32(p + 4)
		if err != nil {
			return in, err
		}
		if npairs < 0 {
			return in, fmt.Errorf("lookupswitch at %d: negative npairs", pc)
		}
		n, step, p = npairs, 8, p+8
	}
	if n > (len(code)-p)/step {
		return in, fmt.Errorf("truncated %s at %d: %d cases", OpName(op), pc, n)
	}
	if op == OpLookupswitch {
		p += 4 // skip the match of the first pair; offsets follow keys
	}
	in.Cases = make([]int, n)
	for i := 0; i < n; i++ {
		off, err := s32(p + i*step)
		if err != nil {
			return in, err
		}
		in.Cases[i] = pc + off
	}
	if op == OpTableswitch {
		in.Length = p + n*4 - pc
	} else {
		in.Length = p - 4 + n*8 - pc
	}
	return in, nil
}
