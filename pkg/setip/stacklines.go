package setip

import (
	"fmt"
	"sort"

	"github.com/daimatz/setip/pkg/bytecode"
	"github.com/daimatz/setip/pkg/classfile"
	"github.com/daimatz/setip/pkg/frames"
)

// lineBoundary is a LineNumberTable start offset and the line it opens.
type lineBoundary struct {
	Offset int
	Line   int
}

// lineBoundaries returns the line boundaries of code in offset order. When
// several entries share an offset, the last one in table order wins.
func lineBoundaries(code *classfile.CodeAttribute) ([]lineBoundary, error) {
	entries, err := code.LineNumbers()
	if err != nil {
		return nil, err
	}
	byOffset := make(map[int]int, len(entries))
	for _, e := range entries {
		if int(e.StartPC) >= len(code.Code) {
			continue
		}
		byOffset[int(e.StartPC)] = int(e.LineNumber)
	}
	out := make([]lineBoundary, 0, len(byOffset))
	for off, line := range byOffset {
		out = append(out, lineBoundary{Offset: off, Line: line})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out, nil
}

// ValidLineSet holds the lines at which the operand stack is empty.
type ValidLineSet struct {
	Lines map[int]bool
	// SourceDebugLine is the class SourceDebugExtension, if any.
	SourceDebugLine *string
	// emptyAt holds the boundary offsets with an empty stack.
	emptyAt map[int]bool
}

// Contains reports whether line is a candidate target.
func (s *ValidLineSet) Contains(line int) bool {
	return s.Lines[line]
}

// EmptyAt reports whether the stack is empty at the boundary offset.
func (s *ValidLineSet) EmptyAt(offset int) bool {
	return s.emptyAt[offset]
}

// Sorted returns the candidate lines in ascending order.
func (s *ValidLineSet) Sorted() []int {
	lines := make([]int, 0, len(s.Lines))
	for l := range s.Lines {
		lines = append(lines, l)
	}
	sort.Ints(lines)
	return lines
}

// AnalyzeStackEmptyLines reports the lines of method whose boundary is
// reached with an empty operand stack.
func AnalyzeStackEmptyLines(owner string, method MethodName, class []byte) (*ValidLineSet, error) {
	mc, err := findMethod(owner, method, class)
	if err != nil {
		return nil, err
	}
	return mc.stackEmptyLines()
}

func (mc *methodContext) stackEmptyLines() (*ValidLineSet, error) {
	set := &ValidLineSet{
		Lines:           make(map[int]bool),
		SourceDebugLine: mc.class.SourceDebugExtension(),
		emptyAt:         make(map[int]bool),
	}
	code := mc.method.Code
	if code == nil {
		return nil, ErrMethodNotFound
	}
	depths, err := stackDepths(code, mc.class.ConstantPool)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUntransformable, mc.method.Name, err)
	}
	boundaries, err := lineBoundaries(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUntransformable, err)
	}
	for _, b := range boundaries {
		if d, ok := depths[b.Offset]; ok && d == 0 {
			set.Lines[b.Line] = true
			set.emptyAt[b.Offset] = true
		}
	}
	return set, nil
}

// stackDepths computes the operand stack depth, in slots, before every
// reachable instruction. Exception handlers start with the caught value.
func stackDepths(code *classfile.CodeAttribute, pool []classfile.ConstantPoolEntry) (map[int]int, error) {
	instrs, err := bytecode.Decode(code.Code)
	if err != nil {
		return nil, err
	}
	index := make(map[int]int, len(instrs))
	for i, in := range instrs {
		index[in.Offset] = i
	}

	depths := make(map[int]int, len(instrs))
	var work []int
	reach := func(pc, depth int) error {
		if _, ok := index[pc]; !ok {
			return fmt.Errorf("control flow to %d is not an instruction boundary", pc)
		}
		if d, ok := depths[pc]; ok {
			if d != depth {
				return fmt.Errorf("inconsistent stack depth at %d: %d != %d", pc, d, depth)
			}
			return nil
		}
		depths[pc] = depth
		work = append(work, pc)
		return nil
	}

	if err := reach(0, 0); err != nil {
		return nil, err
	}
	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		in := instrs[index[pc]]

		switch in.Opcode {
		case bytecode.OpJsr, bytecode.OpJsrW, bytecode.OpRet:
			return nil, frames.ErrSubroutine
		}
		pop, push, err := bytecode.StackEffect(in, pool)
		if err != nil {
			return nil, fmt.Errorf("at %s: %w", in, err)
		}
		depth := depths[pc]
		if depth < pop {
			return nil, fmt.Errorf("at %s: operand stack underflow", in)
		}
		after := depth - pop + push

		for _, h := range code.ExceptionHandlers {
			if pc >= int(h.StartPC) && pc < int(h.EndPC) {
				if err := reach(int(h.HandlerPC), 1); err != nil {
					return nil, err
				}
			}
		}
		for _, t := range in.Successors() {
			if err := reach(t, after); err != nil {
				return nil, err
			}
		}
		if in.FallsThrough() {
			if in.Next() >= len(code.Code) {
				return nil, fmt.Errorf("execution falls off the end of the code at %s", in)
			}
			if err := reach(in.Next(), after); err != nil {
				return nil, err
			}
		}
	}
	return depths, nil
}
