package bytecode

import (
	"fmt"

	"github.com/daimatz/setip/pkg/classfile"
)

// fixedEffect holds pop/push slot counts of every opcode whose effect does
// not depend on the constant pool. Entries for pool-dependent opcodes are
// unused.
var fixedEffect [256][2]int8

func init() {
	set := func(pop, push int8, ops ...byte) {
		for _, op := range ops {
			fixedEffect[op] = [2]int8{pop, push}
		}
	}
	set(0, 0, OpNop, OpIinc, OpGoto, OpGotoW, OpRet, OpReturn)
	set(0, 1, OpAconstNull, OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3, OpIconst4,
		OpIconst5, OpFconst0, OpFconst1, OpFconst2, OpBipush, OpSipush, OpIload, OpFload, OpAload,
		OpJsr, OpJsrW, OpNew)
	for op := byte(OpIload0); op <= OpAload3; op++ {
		switch (op - OpIload0) / 4 {
		case 1, 3: // lload_n, dload_n
			set(0, 2, op)
		default:
			set(0, 1, op)
		}
	}
	set(0, 2, OpLconst0, OpLconst1, OpDconst0, OpDconst1, OpLload, OpDload)
	set(2, 1, OpIaload, OpFaload, OpAaload, OpBaload, OpCaload, OpSaload)
	set(2, 2, OpLaload, OpDaload)
	set(1, 0, OpIstore, OpFstore, OpAstore, OpPop, OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle,
		OpIfnull, OpIfnonnull, OpTableswitch, OpLookupswitch, OpIreturn, OpFreturn, OpAreturn,
		OpMonitorenter, OpMonitorexit)
	for op := byte(OpIstore0); op <= OpAstore3; op++ {
		switch (op - OpIstore0) / 4 {
		case 1, 3:
			set(2, 0, op)
		default:
			set(1, 0, op)
		}
	}
	set(2, 0, OpLstore, OpDstore, OpPop2, OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge,
		OpIfIcmpgt, OpIfIcmple, OpIfAcmpeq, OpIfAcmpne, OpLreturn, OpDreturn)
	set(3, 0, OpIastore, OpFastore, OpAastore, OpBastore, OpCastore, OpSastore)
	set(4, 0, OpLastore, OpDastore)
	set(1, 2, OpDup)
	set(2, 3, OpDupX1)
	set(3, 4, OpDupX2)
	set(2, 4, OpDup2)
	set(3, 5, OpDup2X1)
	set(4, 6, OpDup2X2)
	set(2, 2, OpSwap)
	// binary arithmetic: int/float take 2 slots, long/double 4
	for op := byte(OpIadd); op <= 0x73; op++ {
		switch (op - OpIadd) % 4 {
		case 0, 2:
			set(2, 1, op)
		default:
			set(4, 2, op)
		}
	}
	set(1, 1, OpIneg, OpFneg)
	set(2, 2, OpLneg, OpDneg)
	set(2, 1, OpIshl, OpIshr, OpIushr, OpIand, OpIor, OpIxor)
	set(3, 2, OpLshl, OpLshr, OpLushr)
	set(4, 2, OpLand, OpLor, OpLxor)
	set(1, 2, OpI2l, OpI2d, OpF2l, OpF2d)
	set(1, 1, OpI2f, OpF2i, OpI2b, OpI2c, OpI2s)
	set(2, 1, OpL2i, OpL2f, OpD2i, OpD2f)
	set(2, 2, OpL2d, OpD2l)
	set(4, 1, OpLcmp, OpDcmpl, OpDcmpg)
	set(2, 1, OpFcmpl, OpFcmpg)
	set(1, 1, OpNewarray, OpAnewarray, OpArraylength, OpCheckcast, OpInstanceof)
	set(1, 0, OpAthrow)
}

// StackEffect returns the number of operand stack slots popped and pushed by
// in. The pool resolves ldc constants and member descriptors.
func StackEffect(in Instruction, pool []classfile.ConstantPoolEntry) (pop, push int, err error) {
	switch in.Opcode {
	case OpLdc, OpLdcW, OpLdc2W:
		if in.Index <= 0 || in.Index >= len(pool) || pool[in.Index] == nil {
			return 0, 0, fmt.Errorf("%s: invalid constant pool index %d", OpName(in.Opcode), in.Index)
		}
		switch pool[in.Index].(type) {
		case *classfile.ConstantLong, *classfile.ConstantDouble:
			return 0, 2, nil
		case *classfile.ConstantDynamic:
			_, desc, err := classfile.ResolveDynamic(pool, uint16(in.Index))
			if err != nil {
				return 0, 0, err
			}
			return 0, classfile.SlotSize(desc), nil
		default:
			return 0, 1, nil
		}

	case OpGetstatic, OpPutstatic, OpGetfield, OpPutfield:
		ref, err := classfile.ResolveMemberRef(pool, uint16(in.Index))
		if err != nil {
			return 0, 0, fmt.Errorf("%s: %w", OpName(in.Opcode), err)
		}
		size := classfile.SlotSize(ref.Descriptor)
		switch in.Opcode {
		case OpGetstatic:
			return 0, size, nil
		case OpPutstatic:
			return size, 0, nil
		case OpGetfield:
			return 1, size, nil
		default:
			return 1 + size, 0, nil
		}

	case OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokeinterface, OpInvokedynamic:
		var desc string
		if in.Opcode == OpInvokedynamic {
			_, desc, err = classfile.ResolveDynamic(pool, uint16(in.Index))
		} else {
			var ref *classfile.MemberRefInfo
			ref, err = classfile.ResolveMemberRef(pool, uint16(in.Index))
			if ref != nil {
				desc = ref.Descriptor
			}
		}
		if err != nil {
			return 0, 0, fmt.Errorf("%s: %w", OpName(in.Opcode), err)
		}
		args, err := classfile.ArgumentSlots(desc)
		if err != nil {
			return 0, 0, err
		}
		_, ret, _ := classfile.ParseMethodDescriptor(desc)
		if in.Opcode != OpInvokestatic && in.Opcode != OpInvokedynamic {
			args++
		}
		return args, classfile.SlotSize(ret), nil

	case OpMultianewarray:
		return int(in.Value), 1, nil
	}

	// wide loads and stores take the same slots as their narrow forms
	if operandSize[in.Opcode] == -2 {
		return 0, 0, fmt.Errorf("invalid opcode 0x%02X", in.Opcode)
	}
	e := fixedEffect[in.Opcode]
	return int(e[0]), int(e[1]), nil
}
