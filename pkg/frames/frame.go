package frames

import (
	"fmt"
	"strings"

	"github.com/daimatz/setip/pkg/classfile"
)

// Frame is the abstract state before an instruction. Locals are indexed by
// slot; a long or double occupies its slot and the following Top slot. The
// stack holds one entry per value.
type Frame struct {
	Locals []Type
	Stack  []Type
}

// NewFrame creates a frame with maxLocals Top slots and an empty stack.
func NewFrame(maxLocals int) *Frame {
	locals := make([]Type, maxLocals)
	for i := range locals {
		locals[i] = Top
	}
	return &Frame{Locals: locals}
}

// EntryFrame returns the frame at method entry: the receiver (uninitialized
// in constructors) followed by the parameters.
func EntryFrame(owner string, name, desc string, isStatic bool, maxLocals int) (*Frame, error) {
	params, _, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		return nil, err
	}
	f := NewFrame(maxLocals)
	slot := 0
	if !isStatic {
		this := Ref(owner)
		if name == "<init>" && owner != ObjectClass {
			this = Type{Kind: KindUninitializedThis}
		}
		f.SetLocal(slot, this)
		slot++
	}
	for _, p := range params {
		t, err := FromDescriptor(p)
		if err != nil {
			return nil, err
		}
		f.SetLocal(slot, t)
		slot += t.Size()
	}
	return f, nil
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	return &Frame{
		Locals: append([]Type(nil), f.Locals...),
		Stack:  append([]Type(nil), f.Stack...),
	}
}

// StackSize returns the stack depth in slots.
func (f *Frame) StackSize() int {
	n := 0
	for _, t := range f.Stack {
		n += t.Size()
	}
	return n
}

// Push pushes a value onto the operand stack.
func (f *Frame) Push(t Type) {
	f.Stack = append(f.Stack, t)
}

// Pop pops a value from the operand stack.
func (f *Frame) Pop() (Type, error) {
	if len(f.Stack) == 0 {
		return Top, fmt.Errorf("operand stack underflow")
	}
	t := f.Stack[len(f.Stack)-1]
	f.Stack = f.Stack[:len(f.Stack)-1]
	return t, nil
}

// PopN pops n values.
func (f *Frame) PopN(n int) error {
	if n > len(f.Stack) {
		return fmt.Errorf("operand stack underflow: need %d values, have %d", n, len(f.Stack))
	}
	f.Stack = f.Stack[:len(f.Stack)-n]
	return nil
}

// popSlots pops values covering exactly n slots, in stack order.
func (f *Frame) popSlots(n int) ([]Type, error) {
	i, size := len(f.Stack), 0
	for size < n {
		if i == 0 {
			return nil, fmt.Errorf("operand stack underflow")
		}
		i--
		size += f.Stack[i].Size()
	}
	if size != n {
		return nil, fmt.Errorf("stack operation splits a long or double")
	}
	vals := append([]Type(nil), f.Stack[i:]...)
	f.Stack = f.Stack[:i]
	return vals, nil
}

// GetLocal returns the value at the given local variable index.
func (f *Frame) GetLocal(index int) (Type, error) {
	if index < 0 || index >= len(f.Locals) {
		return Top, fmt.Errorf("local variable index out of range: index=%d, max=%d", index, len(f.Locals))
	}
	return f.Locals[index], nil
}

// SetLocal sets the value at the given local variable index, growing the
// locals as needed and invalidating any long or double it overwrites.
func (f *Frame) SetLocal(index int, t Type) {
	for len(f.Locals) < index+t.Size() {
		f.Locals = append(f.Locals, Top)
	}
	if index > 0 {
		if prev := f.Locals[index-1]; prev.Size() == 2 {
			f.Locals[index-1] = Top
		}
	}
	f.Locals[index] = t
	if t.Size() == 2 {
		f.Locals[index+1] = Top
	}
}

// replace substitutes every occurrence of old in locals and stack.
func (f *Frame) replace(old, t Type) {
	for i := range f.Locals {
		if f.Locals[i] == old {
			f.Locals[i] = t
		}
	}
	for i := range f.Stack {
		if f.Stack[i] == old {
			f.Stack[i] = t
		}
	}
}

// merge folds other into f, reporting whether f changed.
func (f *Frame) merge(other *Frame, common CommonSuperclassFunc) (bool, error) {
	if len(f.Stack) != len(other.Stack) {
		return false, fmt.Errorf("inconsistent stack height %d != %d", len(f.Stack), len(other.Stack))
	}
	changed := false
	for i := range f.Stack {
		t := Merge(f.Stack[i], other.Stack[i], common)
		if t.Kind == KindTop {
			return false, fmt.Errorf("incompatible stack entries %v and %v", f.Stack[i], other.Stack[i])
		}
		if t != f.Stack[i] {
			f.Stack[i] = t
			changed = true
		}
	}
	for len(f.Locals) < len(other.Locals) {
		f.Locals = append(f.Locals, Top)
	}
	for i := range f.Locals {
		o := Top
		if i < len(other.Locals) {
			o = other.Locals[i]
		}
		t := Merge(f.Locals[i], o, common)
		if t != f.Locals[i] {
			f.Locals[i] = t
			changed = true
		}
	}
	// a long whose upper half was lost is no longer usable
	for i := 0; i+1 < len(f.Locals); i++ {
		if f.Locals[i].Size() == 2 && f.Locals[i+1].Kind != KindTop {
			f.Locals[i] = Top
			changed = true
		}
	}
	return changed, nil
}

func (f *Frame) String() string {
	var b strings.Builder
	b.WriteString("locals=[")
	for i, t := range f.Locals {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(t.String())
	}
	b.WriteString("] stack=[")
	for i, t := range f.Stack {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(t.String())
	}
	b.WriteString("]")
	return b.String()
}
