package frames

import (
	"github.com/daimatz/setip/pkg/bytecode"
	"github.com/daimatz/setip/pkg/classfile"
)

const throwableClass = "java/lang/Throwable"

// Range is a half-open interval of code offsets.
type Range struct {
	Start, End int
}

// DeadRanges returns the maximal runs of instructions that no root reaches,
// in code order.
func (r *Result) DeadRanges() []Range {
	var out []Range
	for _, in := range r.Instructions {
		if _, ok := r.Frames[in.Offset]; ok {
			continue
		}
		if n := len(out); n > 0 && out[n-1].End == in.Offset {
			out[n-1].End = in.Next()
			continue
		}
		out = append(out, Range{Start: in.Offset, End: in.Next()})
	}
	return out
}

// FillDeadCode overwrites every dead range of code with nops followed by a
// single athrow, so the range verifies under DeadCodeFrame regardless of
// what it held before.
func FillDeadCode(code []byte, dead []Range) {
	for _, d := range dead {
		for i := d.Start; i < d.End-1; i++ {
			code[i] = bytecode.OpNop
		}
		code[d.End-1] = bytecode.OpAthrow
	}
}

// DeadCodeFrame is the frame at the start of a filled dead range: no locals
// and a Throwable for the athrow.
func DeadCodeFrame(maxLocals int) *Frame {
	f := NewFrame(maxLocals)
	f.Push(Ref(throwableClass))
	return f
}

// TrimHandlers removes the dead ranges from every handler's protected range.
// A handler split by dead code becomes several entries; one left covering
// nothing is dropped.
func TrimHandlers(handlers []classfile.ExceptionHandler, dead []Range) []classfile.ExceptionHandler {
	var out []classfile.ExceptionHandler
	for _, h := range handlers {
		start := int(h.StartPC)
		end := int(h.EndPC)
		for _, d := range dead {
			if d.End <= start || d.Start >= end {
				continue
			}
			if d.Start > start {
				out = append(out, withRange(h, start, d.Start))
			}
			start = max(start, d.End)
			if start >= end {
				break
			}
		}
		if start < end {
			out = append(out, withRange(h, start, end))
		}
	}
	return out
}

func withRange(h classfile.ExceptionHandler, start, end int) classfile.ExceptionHandler {
	h.StartPC = uint16(start)
	h.EndPC = uint16(end)
	return h
}
