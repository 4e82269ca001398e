package frames

import (
	"fmt"

	"github.com/daimatz/setip/pkg/classfile"
)

// StackMapTable encodes the frames at every frame point of r. initial is the
// implicit frame at method entry. Class entries for reference types are
// added to cf's constant pool.
func (r *Result) StackMapTable(cf *classfile.ClassFile, initial *Frame) ([]byte, error) {
	if err := r.CheckReachable(); err != nil {
		return nil, err
	}
	var frames []classfile.StackMapFrame
	for _, p := range r.FramePoints {
		f := r.Frames[p]
		locals, err := VerificationLocals(cf, f.Locals)
		if err != nil {
			return nil, fmt.Errorf("frame at %d: %w", p, err)
		}
		stack := make([]classfile.VerificationType, 0, len(f.Stack))
		for _, t := range f.Stack {
			vt, err := verificationType(cf, t)
			if err != nil {
				return nil, fmt.Errorf("frame at %d: %w", p, err)
			}
			stack = append(stack, vt)
		}
		frames = append(frames, classfile.StackMapFrame{Offset: p, Locals: locals, Stack: stack})
	}
	init, err := VerificationLocals(cf, initial.Locals)
	if err != nil {
		return nil, fmt.Errorf("initial frame: %w", err)
	}
	return classfile.EncodeStackMapTable(init, frames)
}

// VerificationLocals converts slot-indexed locals to the stack map form:
// one entry per value and no trailing tops.
func VerificationLocals(cf *classfile.ClassFile, locals []Type) ([]classfile.VerificationType, error) {
	end := len(locals)
	for end > 0 && locals[end-1].Kind == KindTop {
		end--
	}
	var out []classfile.VerificationType
	for i := 0; i < end; i++ {
		vt, err := verificationType(cf, locals[i])
		if err != nil {
			return nil, err
		}
		out = append(out, vt)
		if locals[i].Size() == 2 {
			i++
		}
	}
	return out, nil
}

func verificationType(cf *classfile.ClassFile, t Type) (classfile.VerificationType, error) {
	switch t.Kind {
	case KindTop:
		return classfile.VerificationType{Tag: classfile.ItemTop}, nil
	case KindInt:
		return classfile.VerificationType{Tag: classfile.ItemInteger}, nil
	case KindFloat:
		return classfile.VerificationType{Tag: classfile.ItemFloat}, nil
	case KindLong:
		return classfile.VerificationType{Tag: classfile.ItemLong}, nil
	case KindDouble:
		return classfile.VerificationType{Tag: classfile.ItemDouble}, nil
	case KindNull:
		return classfile.VerificationType{Tag: classfile.ItemNull}, nil
	case KindUninitializedThis:
		return classfile.VerificationType{Tag: classfile.ItemUninitializedThis}, nil
	case KindUninitialized:
		return classfile.VerificationType{Tag: classfile.ItemUninitialized, Offset: uint16(t.Offset)}, nil
	case KindReference:
		return classfile.VerificationType{Tag: classfile.ItemObject, CPIndex: cf.AddClass(t.Name)}, nil
	}
	return classfile.VerificationType{}, fmt.Errorf("type %v has no stack map form", t)
}
