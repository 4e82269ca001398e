// Package bytecode decodes JVM instruction streams and knows the operand
// stack effect of every opcode.
package bytecode

// Opcodes
const (
	OpNop             = 0x00
	OpAconstNull      = 0x01
	OpIconstM1        = 0x02
	OpIconst0         = 0x03
	OpIconst1         = 0x04
	OpIconst2         = 0x05
	OpIconst3         = 0x06
	OpIconst4         = 0x07
	OpIconst5         = 0x08
	OpLconst0         = 0x09
	OpLconst1         = 0x0A
	OpFconst0         = 0x0B
	OpFconst1         = 0x0C
	OpFconst2         = 0x0D
	OpDconst0         = 0x0E
	OpDconst1         = 0x0F
	OpBipush          = 0x10
	OpSipush          = 0x11
	OpLdc             = 0x12
	OpLdcW            = 0x13
	OpLdc2W           = 0x14
	OpIload           = 0x15
	OpLload           = 0x16
	OpFload           = 0x17
	OpDload           = 0x18
	OpAload           = 0x19
	OpIload0          = 0x1A
	OpLload0          = 0x1E
	OpFload0          = 0x22
	OpDload0          = 0x26
	OpAload0          = 0x2A
	OpAload1          = 0x2B
	OpAload3          = 0x2D
	OpIaload          = 0x2E
	OpLaload          = 0x2F
	OpFaload          = 0x30
	OpDaload          = 0x31
	OpAaload          = 0x32
	OpBaload          = 0x33
	OpCaload          = 0x34
	OpSaload          = 0x35
	OpIstore          = 0x36
	OpLstore          = 0x37
	OpFstore          = 0x38
	OpDstore          = 0x39
	OpAstore          = 0x3A
	OpIstore0         = 0x3B
	OpLstore0         = 0x3F
	OpFstore0         = 0x43
	OpDstore0         = 0x47
	OpAstore0         = 0x4B
	OpAstore3         = 0x4E
	OpIastore         = 0x4F
	OpLastore         = 0x50
	OpFastore         = 0x51
	OpDastore         = 0x52
	OpAastore         = 0x53
	OpBastore         = 0x54
	OpCastore         = 0x55
	OpSastore         = 0x56
	OpPop             = 0x57
	OpPop2            = 0x58
	OpDup             = 0x59
	OpDupX1           = 0x5A
	OpDupX2           = 0x5B
	OpDup2            = 0x5C
	OpDup2X1          = 0x5D
	OpDup2X2          = 0x5E
	OpSwap            = 0x5F
	OpIadd            = 0x60
	OpLadd            = 0x61
	OpFadd            = 0x62
	OpDadd            = 0x63
	OpIsub            = 0x64
	OpImul            = 0x68
	OpIdiv            = 0x6C
	OpIrem            = 0x70
	OpIneg            = 0x74
	OpLneg            = 0x75
	OpFneg            = 0x76
	OpDneg            = 0x77
	OpIshl            = 0x78
	OpLshl            = 0x79
	OpIshr            = 0x7A
	OpLshr            = 0x7B
	OpIushr           = 0x7C
	OpLushr           = 0x7D
	OpIand            = 0x7E
	OpLand            = 0x7F
	OpIor             = 0x80
	OpLor             = 0x81
	OpIxor            = 0x82
	OpLxor            = 0x83
	OpIinc            = 0x84
	OpI2l             = 0x85
	OpI2f             = 0x86
	OpI2d             = 0x87
	OpL2i             = 0x88
	OpL2f             = 0x89
	OpL2d             = 0x8A
	OpF2i             = 0x8B
	OpF2l             = 0x8C
	OpF2d             = 0x8D
	OpD2i             = 0x8E
	OpD2l             = 0x8F
	OpD2f             = 0x90
	OpI2b             = 0x91
	OpI2c             = 0x92
	OpI2s             = 0x93
	OpLcmp            = 0x94
	OpFcmpl           = 0x95
	OpFcmpg           = 0x96
	OpDcmpl           = 0x97
	OpDcmpg           = 0x98
	OpIfeq            = 0x99
	OpIfne            = 0x9A
	OpIflt            = 0x9B
	OpIfge            = 0x9C
	OpIfgt            = 0x9D
	OpIfle            = 0x9E
	OpIfIcmpeq        = 0x9F
	OpIfIcmpne        = 0xA0
	OpIfIcmplt        = 0xA1
	OpIfIcmpge        = 0xA2
	OpIfIcmpgt        = 0xA3
	OpIfIcmple        = 0xA4
	OpIfAcmpeq        = 0xA5
	OpIfAcmpne        = 0xA6
	OpGoto            = 0xA7
	OpJsr             = 0xA8
	OpRet             = 0xA9
	OpTableswitch     = 0xAA
	OpLookupswitch    = 0xAB
	OpIreturn         = 0xAC
	OpLreturn         = 0xAD
	OpFreturn         = 0xAE
	OpDreturn         = 0xAF
	OpAreturn         = 0xB0
	OpReturn          = 0xB1
	OpGetstatic       = 0xB2
	OpPutstatic       = 0xB3
	OpGetfield        = 0xB4
	OpPutfield        = 0xB5
	OpInvokevirtual   = 0xB6
	OpInvokespecial   = 0xB7
	OpInvokestatic    = 0xB8
	OpInvokeinterface = 0xB9
	OpInvokedynamic   = 0xBA
	OpNew             = 0xBB
	OpNewarray        = 0xBC
	OpAnewarray       = 0xBD
	OpArraylength     = 0xBE
	OpAthrow          = 0xBF
	OpCheckcast       = 0xC0
	OpInstanceof      = 0xC1
	OpMonitorenter    = 0xC2
	OpMonitorexit     = 0xC3
	OpWide            = 0xC4
	OpMultianewarray  = 0xC5
	OpIfnull          = 0xC6
	OpIfnonnull       = 0xC7
	OpGotoW           = 0xC8
	OpJsrW            = 0xC9
)

var opNames = [...]string{
	/* 0x00 */ "nop", "aconst_null", "iconst_m1", "iconst_0", "iconst_1", "iconst_2", "iconst_3", "iconst_4",
	/* 0x08 */ "iconst_5", "lconst_0", "lconst_1", "fconst_0", "fconst_1", "fconst_2", "dconst_0", "dconst_1",
	/* 0x10 */ "bipush", "sipush", "ldc", "ldc_w", "ldc2_w", "iload", "lload", "fload",
	/* 0x18 */ "dload", "aload", "iload_0", "iload_1", "iload_2", "iload_3", "lload_0", "lload_1",
	/* 0x20 */ "lload_2", "lload_3", "fload_0", "fload_1", "fload_2", "fload_3", "dload_0", "dload_1",
	/* 0x28 */ "dload_2", "dload_3", "aload_0", "aload_1", "aload_2", "aload_3", "iaload", "laload",
	/* 0x30 */ "faload", "daload", "aaload", "baload", "caload", "saload", "istore", "lstore",
	/* 0x38 */ "fstore", "dstore", "astore", "istore_0", "istore_1", "istore_2", "istore_3", "lstore_0",
	/* 0x40 */ "lstore_1", "lstore_2", "lstore_3", "fstore_0", "fstore_1", "fstore_2", "fstore_3", "dstore_0",
	/* 0x48 */ "dstore_1", "dstore_2", "dstore_3", "astore_0", "astore_1", "astore_2", "astore_3", "iastore",
	/* 0x50 */ "lastore", "fastore", "dastore", "aastore", "bastore", "castore", "sastore", "pop",
	/* 0x58 */ "pop2", "dup", "dup_x1", "dup_x2", "dup2", "dup2_x1", "dup2_x2", "swap",
	/* 0x60 */ "iadd", "ladd", "fadd", "dadd", "isub", "lsub", "fsub", "dsub",
	/* 0x68 */ "imul", "lmul", "fmul", "dmul", "idiv", "ldiv", "fdiv", "ddiv",
	/* 0x70 */ "irem", "lrem", "frem", "drem", "ineg", "lneg", "fneg", "dneg",
	/* 0x78 */ "ishl", "lshl", "ishr", "lshr", "iushr", "lushr", "iand", "land",
	/* 0x80 */ "ior", "lor", "ixor", "lxor", "iinc", "i2l", "i2f", "i2d",
	/* 0x88 */ "l2i", "l2f", "l2d", "f2i", "f2l", "f2d", "d2i", "d2l",
	/* 0x90 */ "d2f", "i2b", "i2c", "i2s", "lcmp", "fcmpl", "fcmpg", "dcmpl",
	/* 0x98 */ "dcmpg", "ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle", "if_icmpeq",
	/* 0xA0 */ "if_icmpne", "if_icmplt", "if_icmpge", "if_icmpgt", "if_icmple", "if_acmpeq", "if_acmpne", "goto",
	/* 0xA8 */ "jsr", "ret", "tableswitch", "lookupswitch", "ireturn", "lreturn", "freturn", "dreturn",
	/* 0xB0 */ "areturn", "return", "getstatic", "putstatic", "getfield", "putfield", "invokevirtual", "invokespecial",
	/* 0xB8 */ "invokestatic", "invokeinterface", "invokedynamic", "new", "newarray", "anewarray", "arraylength", "athrow",
	/* 0xC0 */ "checkcast", "instanceof", "monitorenter", "monitorexit", "wide", "multianewarray", "ifnull", "ifnonnull",
	/* 0xC8 */ "goto_w", "jsr_w",
}

// OpName returns the mnemonic of an opcode.
func OpName(op byte) string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "invalid"
}

// operandSize is the fixed operand length of each opcode; -1 marks the
// variable-length switches and wide, -2 an undefined opcode.
var operandSize [256]int8

func init() {
	for i := range operandSize {
		operandSize[i] = -2
	}
	for op := 0; op < len(opNames); op++ {
		operandSize[op] = 0
	}
	for _, op := range []byte{OpBipush, OpLdc, OpIload, OpLload, OpFload, OpDload, OpAload,
		OpIstore, OpLstore, OpFstore, OpDstore, OpAstore, OpRet, OpNewarray} {
		operandSize[op] = 1
	}
	for _, op := range []byte{OpSipush, OpLdcW, OpLdc2W, OpIinc, OpGetstatic, OpPutstatic, OpGetfield,
		OpPutfield, OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpNew, OpAnewarray, OpCheckcast,
		OpInstanceof, OpIfnull, OpIfnonnull, OpGoto, OpJsr} {
		operandSize[op] = 2
	}
	for op := OpIfeq; op <= OpIfAcmpne; op++ {
		operandSize[op] = 2
	}
	operandSize[OpMultianewarray] = 3
	for _, op := range []byte{OpInvokeinterface, OpInvokedynamic, OpGotoW, OpJsrW} {
		operandSize[op] = 4
	}
	operandSize[OpTableswitch] = -1
	operandSize[OpLookupswitch] = -1
	operandSize[OpWide] = -1
}

// IsReturn reports whether op is one of the return instructions.
func IsReturn(op byte) bool {
	return op >= OpIreturn && op <= OpReturn
}

// IsConditionalBranch reports whether op branches on a condition.
func IsConditionalBranch(op byte) bool {
	return (op >= OpIfeq && op <= OpIfAcmpne) || op == OpIfnull || op == OpIfnonnull
}
