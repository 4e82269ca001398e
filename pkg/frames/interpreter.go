package frames

import (
	"errors"
	"fmt"

	"github.com/daimatz/setip/pkg/bytecode"
	"github.com/daimatz/setip/pkg/classfile"
)

// ErrSubroutine is returned for code using jsr/ret, which has no stack map
// representation.
var ErrSubroutine = errors.New("jsr/ret subroutines are not supported")

var newarrayTypes = map[int32]string{
	4: "[Z", 5: "[C", 6: "[F", 7: "[D", 8: "[B", 9: "[S", 10: "[I", 11: "[J",
}

// interpreter applies the type semantics of single instructions.
type interpreter struct {
	pool  []classfile.ConstantPoolEntry
	owner string
	// newSites maps the offset of each new instruction to its class.
	newSites map[int]string
}

// execute applies in to f in place.
func (it *interpreter) execute(f *Frame, in bytecode.Instruction) error {
	op := in.Opcode
	switch {
	case op == bytecode.OpNop, op == bytecode.OpGoto, op == bytecode.OpGotoW, op == bytecode.OpIinc,
		op == bytecode.OpReturn:
		return nil

	// --- Constant load instructions ---
	case op == bytecode.OpAconstNull:
		f.Push(Null)
	case op >= bytecode.OpIconstM1 && op <= bytecode.OpIconst5, op == bytecode.OpBipush, op == bytecode.OpSipush:
		f.Push(Int)
	case op == bytecode.OpLconst0 || op == bytecode.OpLconst1:
		f.Push(Long)
	case op >= bytecode.OpFconst0 && op <= bytecode.OpFconst2:
		f.Push(Float)
	case op == bytecode.OpDconst0 || op == bytecode.OpDconst1:
		f.Push(Double)
	case op == bytecode.OpLdc || op == bytecode.OpLdcW || op == bytecode.OpLdc2W:
		t, err := it.constantType(in.Index)
		if err != nil {
			return err
		}
		f.Push(t)

	// --- Local variable load instructions ---
	case op >= bytecode.OpIload && op <= bytecode.OpAload, op >= bytecode.OpIload0 && op <= bytecode.OpAload3:
		kind := int(op - bytecode.OpIload)
		if op >= bytecode.OpIload0 {
			kind = int(op-bytecode.OpIload0) / 4
		}
		t, err := f.GetLocal(in.Index)
		if err != nil {
			return err
		}
		switch kind {
		case 0:
			f.Push(Int)
		case 1:
			f.Push(Long)
		case 2:
			f.Push(Float)
		case 3:
			f.Push(Double)
		default:
			if t.Kind == KindTop {
				return fmt.Errorf("aload of unset local %d", in.Index)
			}
			f.Push(t)
		}

	// --- Array load ---
	case op >= bytecode.OpIaload && op <= bytecode.OpSaload:
		if _, err := f.Pop(); err != nil {
			return err
		}
		arr, err := f.Pop()
		if err != nil {
			return err
		}
		switch op {
		case bytecode.OpLaload:
			f.Push(Long)
		case bytecode.OpFaload:
			f.Push(Float)
		case bytecode.OpDaload:
			f.Push(Double)
		case bytecode.OpAaload:
			if arr.Kind == KindReference && len(arr.Name) > 1 && arr.Name[0] == '[' {
				elem, err := FromDescriptor(arr.Name[1:])
				if err != nil {
					return err
				}
				f.Push(elem)
			} else {
				f.Push(Null)
			}
		default:
			f.Push(Int)
		}

	// --- Local variable store instructions ---
	case op >= bytecode.OpIstore && op <= bytecode.OpAstore, op >= bytecode.OpIstore0 && op <= bytecode.OpAstore3:
		t, err := f.Pop()
		if err != nil {
			return err
		}
		f.SetLocal(in.Index, t)

	// --- Array store ---
	case op >= bytecode.OpIastore && op <= bytecode.OpSastore:
		return f.PopN(3)

	// --- Stack manipulation ---
	case op >= bytecode.OpPop && op <= bytecode.OpSwap:
		return stackOp(f, op)

	// --- Arithmetic ---
	case op >= bytecode.OpIadd && op <= 0x73:
		return binary(f, [4]Type{Int, Long, Float, Double}[(op-bytecode.OpIadd)%4])
	case op >= bytecode.OpIneg && op <= bytecode.OpDneg:
		return unary(f, [4]Type{Int, Long, Float, Double}[op-bytecode.OpIneg])
	case op >= bytecode.OpIshl && op <= bytecode.OpLxor:
		return binary(f, [2]Type{Int, Long}[(op-bytecode.OpIshl)%2])

	// --- Conversions ---
	case op >= bytecode.OpI2l && op <= bytecode.OpI2s:
		return unary(f, conversionResult[op-bytecode.OpI2l])

	// --- Comparisons ---
	case op >= bytecode.OpLcmp && op <= bytecode.OpDcmpg:
		return binary(f, Int)

	// --- Control flow ---
	case op >= bytecode.OpIfeq && op <= bytecode.OpIfle, op == bytecode.OpIfnull, op == bytecode.OpIfnonnull,
		op == bytecode.OpTableswitch, op == bytecode.OpLookupswitch,
		op >= bytecode.OpIreturn && op <= bytecode.OpAreturn, op == bytecode.OpAthrow,
		op == bytecode.OpMonitorenter, op == bytecode.OpMonitorexit:
		_, err := f.Pop()
		return err
	case op >= bytecode.OpIfIcmpeq && op <= bytecode.OpIfAcmpne:
		return f.PopN(2)
	case op == bytecode.OpJsr || op == bytecode.OpJsrW || op == bytecode.OpRet:
		return ErrSubroutine

	// --- Fields ---
	case op >= bytecode.OpGetstatic && op <= bytecode.OpPutfield:
		ref, err := classfile.ResolveMemberRef(it.pool, uint16(in.Index))
		if err != nil {
			return fmt.Errorf("%s: %w", bytecode.OpName(op), err)
		}
		t, err := FromDescriptor(ref.Descriptor)
		if err != nil {
			return err
		}
		switch op {
		case bytecode.OpGetstatic:
			f.Push(t)
		case bytecode.OpPutstatic:
			_, err = f.Pop()
		case bytecode.OpGetfield:
			if _, err = f.Pop(); err == nil {
				f.Push(t)
			}
		default:
			err = f.PopN(2)
		}
		return err

	// --- Invocations ---
	case op >= bytecode.OpInvokevirtual && op <= bytecode.OpInvokedynamic:
		return it.invoke(f, in)

	// --- Objects and arrays ---
	case op == bytecode.OpNew:
		f.Push(Type{Kind: KindUninitialized, Offset: in.Offset})
	case op == bytecode.OpNewarray:
		name, ok := newarrayTypes[in.Value]
		if !ok {
			return fmt.Errorf("newarray: bad array type %d", in.Value)
		}
		if _, err := f.Pop(); err != nil {
			return err
		}
		f.Push(Ref(name))
	case op == bytecode.OpAnewarray:
		name, err := classfile.GetClassName(it.pool, uint16(in.Index))
		if err != nil {
			return fmt.Errorf("anewarray: %w", err)
		}
		if _, err := f.Pop(); err != nil {
			return err
		}
		f.Push(Ref("[" + descriptorOf(name)))
	case op == bytecode.OpArraylength || op == bytecode.OpInstanceof:
		if _, err := f.Pop(); err != nil {
			return err
		}
		f.Push(Int)
	case op == bytecode.OpCheckcast:
		name, err := classfile.GetClassName(it.pool, uint16(in.Index))
		if err != nil {
			return fmt.Errorf("checkcast: %w", err)
		}
		if _, err := f.Pop(); err != nil {
			return err
		}
		f.Push(Ref(name))
	case op == bytecode.OpMultianewarray:
		name, err := classfile.GetClassName(it.pool, uint16(in.Index))
		if err != nil {
			return fmt.Errorf("multianewarray: %w", err)
		}
		if err := f.PopN(int(in.Value)); err != nil {
			return err
		}
		f.Push(Ref(name))

	default:
		return fmt.Errorf("unsupported opcode %s at %d", bytecode.OpName(op), in.Offset)
	}
	return nil
}

var conversionResult = [...]Type{
	Long, Float, Double, // i2l i2f i2d
	Int, Float, Double, // l2i l2f l2d
	Int, Long, Double, // f2i f2l f2d
	Int, Long, Float, // d2i d2l d2f
	Int, Int, Int, // i2b i2c i2s
}

func unary(f *Frame, result Type) error {
	if _, err := f.Pop(); err != nil {
		return err
	}
	f.Push(result)
	return nil
}

func binary(f *Frame, result Type) error {
	if err := f.PopN(2); err != nil {
		return err
	}
	f.Push(result)
	return nil
}

func stackOp(f *Frame, op byte) error {
	push := func(groups ...[]Type) {
		for _, g := range groups {
			f.Stack = append(f.Stack, g...)
		}
	}
	switch op {
	case bytecode.OpPop:
		_, err := f.popSlots(1)
		return err
	case bytecode.OpPop2:
		_, err := f.popSlots(2)
		return err
	case bytecode.OpDup:
		v1, err := f.popSlots(1)
		if err != nil {
			return err
		}
		push(v1, v1)
	case bytecode.OpDupX1:
		v1, err := f.popSlots(1)
		if err != nil {
			return err
		}
		v2, err := f.popSlots(1)
		if err != nil {
			return err
		}
		push(v1, v2, v1)
	case bytecode.OpDupX2:
		v1, err := f.popSlots(1)
		if err != nil {
			return err
		}
		v23, err := f.popSlots(2)
		if err != nil {
			return err
		}
		push(v1, v23, v1)
	case bytecode.OpDup2:
		v12, err := f.popSlots(2)
		if err != nil {
			return err
		}
		push(v12, v12)
	case bytecode.OpDup2X1:
		v12, err := f.popSlots(2)
		if err != nil {
			return err
		}
		v3, err := f.popSlots(1)
		if err != nil {
			return err
		}
		push(v12, v3, v12)
	case bytecode.OpDup2X2:
		v12, err := f.popSlots(2)
		if err != nil {
			return err
		}
		v34, err := f.popSlots(2)
		if err != nil {
			return err
		}
		push(v12, v34, v12)
	case bytecode.OpSwap:
		v1, err := f.popSlots(1)
		if err != nil {
			return err
		}
		v2, err := f.popSlots(1)
		if err != nil {
			return err
		}
		push(v1, v2)
	}
	return nil
}

func (it *interpreter) constantType(index int) (Type, error) {
	if index <= 0 || index >= len(it.pool) || it.pool[index] == nil {
		return Top, fmt.Errorf("ldc: invalid constant pool index %d", index)
	}
	switch it.pool[index].(type) {
	case *classfile.ConstantInteger:
		return Int, nil
	case *classfile.ConstantFloat:
		return Float, nil
	case *classfile.ConstantLong:
		return Long, nil
	case *classfile.ConstantDouble:
		return Double, nil
	case *classfile.ConstantString:
		return Ref("java/lang/String"), nil
	case *classfile.ConstantClass:
		return Ref("java/lang/Class"), nil
	case *classfile.ConstantMethodType:
		return Ref("java/lang/invoke/MethodType"), nil
	case *classfile.ConstantMethodHandle:
		return Ref("java/lang/invoke/MethodHandle"), nil
	case *classfile.ConstantDynamic:
		_, desc, err := classfile.ResolveDynamic(it.pool, uint16(index))
		if err != nil {
			return Top, err
		}
		return FromDescriptor(desc)
	}
	return Top, fmt.Errorf("ldc: unsupported constant at index %d", index)
}

func (it *interpreter) invoke(f *Frame, in bytecode.Instruction) error {
	var name, desc string
	var err error
	if in.Opcode == bytecode.OpInvokedynamic {
		name, desc, err = classfile.ResolveDynamic(it.pool, uint16(in.Index))
	} else {
		var ref *classfile.MemberRefInfo
		if ref, err = classfile.ResolveMemberRef(it.pool, uint16(in.Index)); err == nil {
			name, desc = ref.Name, ref.Descriptor
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", bytecode.OpName(in.Opcode), err)
	}
	params, ret, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		return err
	}
	if err := f.PopN(len(params)); err != nil {
		return err
	}
	if in.Opcode != bytecode.OpInvokestatic && in.Opcode != bytecode.OpInvokedynamic {
		receiver, err := f.Pop()
		if err != nil {
			return err
		}
		if in.Opcode == bytecode.OpInvokespecial && name == "<init>" {
			switch receiver.Kind {
			case KindUninitializedThis:
				f.replace(receiver, Ref(it.owner))
			case KindUninitialized:
				class, ok := it.newSites[receiver.Offset]
				if !ok {
					return fmt.Errorf("<init> on unknown allocation at %d", receiver.Offset)
				}
				f.replace(receiver, Ref(class))
			}
		}
	}
	if ret != "V" {
		t, err := FromDescriptor(ret)
		if err != nil {
			return err
		}
		f.Push(t)
	}
	return nil
}
