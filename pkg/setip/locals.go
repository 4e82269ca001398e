package setip

import (
	"fmt"

	"github.com/daimatz/setip/pkg/classfile"
	"github.com/daimatz/setip/pkg/frames"
)

// SlotKind is the category of value a local slot holds.
type SlotKind uint8

const (
	SlotInt SlotKind = iota + 1
	SlotFloat
	SlotLong
	SlotDouble
	SlotReference
)

func (k SlotKind) String() string {
	switch k {
	case SlotInt:
		return "int"
	case SlotFloat:
		return "float"
	case SlotLong:
		return "long"
	case SlotDouble:
		return "double"
	case SlotReference:
		return "reference"
	}
	return fmt.Sprintf("SlotKind(%d)", uint8(k))
}

// NullType is the Type of a reference slot known only to hold null.
const NullType = "null"

// LocalSlot is one initialized local variable at a line boundary.
type LocalSlot struct {
	Index int      `cbor:"index"`
	Kind  SlotKind `cbor:"kind"`
	// Type is the internal class name or array descriptor of a reference,
	// or NullType.
	Type string `cbor:"type,omitempty"`
	// Name comes from the LocalVariableTable, when present.
	Name string `cbor:"name,omitempty"`
}

func (s LocalSlot) String() string {
	desc := s.Kind.String()
	if s.Kind == SlotReference {
		desc = s.Type
	}
	if s.Name != "" {
		return fmt.Sprintf("%d:%s %s", s.Index, s.Name, desc)
	}
	return fmt.Sprintf("%d:%s", s.Index, desc)
}

// verifierType returns the frames type the slot requires.
func (s LocalSlot) verifierType() frames.Type {
	switch s.Kind {
	case SlotInt:
		return frames.Int
	case SlotFloat:
		return frames.Float
	case SlotLong:
		return frames.Long
	case SlotDouble:
		return frames.Double
	}
	if s.Type == NullType {
		return frames.Null
	}
	return frames.Ref(s.Type)
}

// LineTarget is a line boundary together with the locals initialized there,
// ascending by slot index.
type LineTarget struct {
	Line   int         `cbor:"line"`
	Offset int         `cbor:"offset"`
	Locals []LocalSlot `cbor:"locals"`
}

// slotOf converts an inferred local to a LocalSlot. ok is false for slots
// holding no usable value.
func slotOf(index int, t frames.Type) (LocalSlot, bool) {
	s := LocalSlot{Index: index}
	switch t.Kind {
	case frames.KindInt:
		s.Kind = SlotInt
	case frames.KindFloat:
		s.Kind = SlotFloat
	case frames.KindLong:
		s.Kind = SlotLong
	case frames.KindDouble:
		s.Kind = SlotDouble
	case frames.KindReference:
		s.Kind, s.Type = SlotReference, t.Name
	case frames.KindNull:
		s.Kind, s.Type = SlotReference, NullType
	default:
		return s, false
	}
	return s, true
}

// AnalyzeLocals returns one LineTarget per line boundary of method, in
// binary order. Boundaries that are unreachable or where an object is under
// construction are left out.
func AnalyzeLocals(owner string, method MethodName, class []byte) ([]LineTarget, error) {
	mc, err := findMethod(owner, method, class)
	if err != nil {
		return nil, err
	}
	return mc.lineTargets(nil)
}

// analyzeFrames infers the frames of the method. common resolves merges of
// distinct classes; nil merges them to java/lang/Object.
func (mc *methodContext) analyzeFrames(common frames.CommonSuperclassFunc) (*frames.Result, *frames.Frame, error) {
	code := mc.method.Code
	if code == nil {
		return nil, nil, ErrMethodNotFound
	}
	entry, err := mc.entryFrame()
	if err != nil {
		return nil, nil, err
	}
	res, err := frames.Analyze(frames.Method{
		Owner:     mc.owner,
		Pool:      mc.class.ConstantPool,
		Code:      code.Code,
		MaxLocals: int(code.MaxLocals),
		Handlers:  code.ExceptionHandlers,
	}, common, frames.Root{Offset: 0, Frame: entry})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrUntransformable, mc.method.Name, err)
	}
	return res, entry, nil
}

func (mc *methodContext) entryFrame() (*frames.Frame, error) {
	entry, err := frames.EntryFrame(mc.owner, mc.method.Name, mc.method.Descriptor,
		mc.method.IsStatic(), int(mc.method.Code.MaxLocals))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUntransformable, err)
	}
	return entry, nil
}

func (mc *methodContext) lineTargets(common frames.CommonSuperclassFunc) ([]LineTarget, error) {
	res, _, err := mc.analyzeFrames(common)
	if err != nil {
		return nil, err
	}
	code := mc.method.Code
	boundaries, err := lineBoundaries(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUntransformable, err)
	}
	vars, err := code.LocalVariables(mc.class.ConstantPool)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUntransformable, err)
	}

	targets := make([]LineTarget, 0, len(boundaries))
	for _, b := range boundaries {
		f, ok := res.Frames[b.Offset]
		if !ok {
			continue
		}
		locals, ok := snapshotLocals(f, vars, b.Offset)
		if !ok {
			log.Debugf("%s: skipping line %d at %d, object under construction", mc.method.Name, b.Line, b.Offset)
			continue
		}
		targets = append(targets, LineTarget{Line: b.Line, Offset: b.Offset, Locals: locals})
	}
	return targets, nil
}

// snapshotLocals lists the initialized locals of f. ok is false when a
// local holds an uninitialized object.
func snapshotLocals(f *frames.Frame, vars []classfile.LocalVariable, pc int) ([]LocalSlot, bool) {
	var out []LocalSlot
	for i := 0; i < len(f.Locals); i++ {
		t := f.Locals[i]
		if t.IsUninitialized() {
			return nil, false
		}
		s, ok := slotOf(i, t)
		if !ok {
			continue
		}
		for _, v := range vars {
			if int(v.Index) == i && v.Covers(pc) {
				s.Name = v.Name
				break
			}
		}
		out = append(out, s)
		if t.Size() == 2 {
			i++
		}
	}
	return out, true
}
