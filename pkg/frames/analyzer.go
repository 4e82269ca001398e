package frames

import (
	"errors"
	"fmt"
	"sort"

	"github.com/daimatz/setip/pkg/bytecode"
	"github.com/daimatz/setip/pkg/classfile"
)

// ErrDeadCode is returned when code that needs a stack map frame is not
// reachable from any root.
var ErrDeadCode = errors.New("unreachable code needs a stack map frame")

// Method is the input of an analysis.
type Method struct {
	Owner     string
	Pool      []classfile.ConstantPoolEntry
	Code      []byte
	MaxLocals int
	Handlers  []classfile.ExceptionHandler
}

// Root seeds the analysis with a frame at an offset.
type Root struct {
	Offset int
	Frame  *Frame
}

// Result holds the inferred frame before every reachable instruction.
type Result struct {
	Instructions []bytecode.Instruction
	// Frames maps instruction offsets to their incoming frames; unreachable
	// instructions have none.
	Frames    map[int]*Frame
	MaxStack  int
	MaxLocals int
	// FramePoints are the offsets that need an explicit stack map frame:
	// branch targets, handler entries, and instructions following an
	// unconditional transfer.
	FramePoints []int
}

// Analyze runs a worklist dataflow over m starting from roots. common
// resolves merges of distinct classes; nil merges them to java/lang/Object.
func Analyze(m Method, common CommonSuperclassFunc, roots ...Root) (*Result, error) {
	instrs, err := bytecode.Decode(m.Code)
	if err != nil {
		return nil, err
	}
	if common == nil {
		common = ObjectFallback
	}
	index := make(map[int]int, len(instrs))
	it := &interpreter{pool: m.Pool, owner: m.Owner, newSites: make(map[int]string)}
	for i, in := range instrs {
		index[in.Offset] = i
		if in.Opcode == bytecode.OpNew {
			name, err := classfile.GetClassName(m.Pool, uint16(in.Index))
			if err != nil {
				return nil, fmt.Errorf("new at %d: %w", in.Offset, err)
			}
			it.newSites[in.Offset] = name
		}
	}

	res := &Result{Instructions: instrs, Frames: make(map[int]*Frame), MaxLocals: m.MaxLocals}
	res.FramePoints = framePoints(instrs, m.Handlers, len(m.Code))

	var work []int
	queued := make(map[int]bool)
	mergeInto := func(pc int, f *Frame) error {
		if _, ok := index[pc]; !ok {
			return fmt.Errorf("control flow to %d is not an instruction boundary", pc)
		}
		old, ok := res.Frames[pc]
		if !ok {
			res.Frames[pc] = f.Clone()
		} else {
			changed, err := old.merge(f, common)
			if err != nil {
				return fmt.Errorf("merging at %d: %w", pc, err)
			}
			if !changed {
				return nil
			}
		}
		if !queued[pc] {
			queued[pc] = true
			work = append(work, pc)
		}
		return nil
	}

	for _, r := range roots {
		if err := mergeInto(r.Offset, r.Frame); err != nil {
			return nil, err
		}
	}

	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		queued[pc] = false

		in := instrs[index[pc]]
		before := res.Frames[pc]
		after := before.Clone()
		if err := it.execute(after, in); err != nil {
			return nil, fmt.Errorf("at %s: %w", in, err)
		}
		res.MaxStack = max(res.MaxStack, before.StackSize(), after.StackSize())
		res.MaxLocals = max(res.MaxLocals, len(after.Locals))

		for _, h := range m.Handlers {
			if pc < int(h.StartPC) || pc >= int(h.EndPC) {
				continue
			}
			exc := Ref(throwableClass)
			if h.CatchType != 0 {
				name, err := classfile.GetClassName(m.Pool, h.CatchType)
				if err != nil {
					return nil, fmt.Errorf("handler at %d: %w", h.HandlerPC, err)
				}
				exc = Ref(name)
			}
			for _, src := range []*Frame{before, after} {
				hf := &Frame{Locals: append([]Type(nil), src.Locals...), Stack: []Type{exc}}
				if err := mergeInto(int(h.HandlerPC), hf); err != nil {
					return nil, err
				}
			}
			res.MaxStack = max(res.MaxStack, 1)
		}

		for _, target := range in.Successors() {
			if err := mergeInto(target, after); err != nil {
				return nil, err
			}
		}
		if in.FallsThrough() {
			if in.Next() >= len(m.Code) {
				return nil, fmt.Errorf("execution falls off the end of the code at %s", in)
			}
			if err := mergeInto(in.Next(), after); err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}

func framePoints(instrs []bytecode.Instruction, handlers []classfile.ExceptionHandler, codeLen int) []int {
	points := make(map[int]bool)
	for _, in := range instrs {
		for _, t := range in.Successors() {
			points[t] = true
		}
		if !in.FallsThrough() && in.Next() < codeLen {
			points[in.Next()] = true
		}
	}
	for _, h := range handlers {
		points[int(h.HandlerPC)] = true
	}
	out := make([]int, 0, len(points))
	for p := range points {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// CheckReachable reports ErrDeadCode when a frame point has no frame.
func (r *Result) CheckReachable() error {
	for _, p := range r.FramePoints {
		if _, ok := r.Frames[p]; !ok {
			return fmt.Errorf("offset %d: %w", p, ErrDeadCode)
		}
	}
	return nil
}
