package setip

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daimatz/setip/pkg/bytecode"
	"github.com/daimatz/setip/pkg/classfile"
)

const sampleClass = "app/Sample"

type testMethod struct {
	access    uint16
	name      string
	desc      string
	signature string
	maxStack  uint16
	maxLocals uint16
	// body emits the code; it may set handlers and extra attributes on code.
	body func(cf *classfile.ClassFile, a *bytecode.Assembler, code *classfile.CodeAttribute)
}

func buildClass(t *testing.T, methods ...testMethod) []byte {
	t.Helper()
	cf := buildClassFile(t, methods...)
	data, err := cf.Bytes()
	require.NoError(t, err)
	return data
}

func buildClassFile(t *testing.T, methods ...testMethod) *classfile.ClassFile {
	t.Helper()
	cf := classfile.New(sampleClass, "java/lang/Object")
	for _, m := range methods {
		a := bytecode.NewAssembler()
		code := &classfile.CodeAttribute{MaxStack: m.maxStack, MaxLocals: m.maxLocals}
		m.body(cf, a, code)
		var err error
		code.Code, err = a.Assemble()
		require.NoError(t, err, m.name)
		code.Attributes = append(code.Attributes,
			cf.NewAttribute(classfile.AttrLineNumberTable, classfile.EncodeLineNumberTable(a.Lines())))
		mi, err := cf.AddMethod(m.access, m.name, m.desc, code)
		require.NoError(t, err, m.name)
		if m.signature != "" {
			cf.SetSignature(mi, m.signature)
		}
	}
	return cf
}

func localVariables(cf *classfile.ClassFile, vars ...classfile.LocalVariable) classfile.AttributeInfo {
	for i := range vars {
		vars[i].NameIndex = cf.AddUtf8(vars[i].Name)
		vars[i].DescriptorIndex = cf.AddUtf8(vars[i].Descriptor)
	}
	return cf.NewAttribute(classfile.AttrLocalVariableTable, classfile.EncodeLocalVariableTable(vars))
}

func tick(cf *classfile.ClassFile, a *bytecode.Assembler) {
	a.OpU16(bytecode.OpInvokestatic, cf.AddMethodref(sampleClass, "tick", "()V"))
}

// straight is three calls on lines 10 to 12.
var straight = testMethod{
	access: classfile.AccPublic | classfile.AccStatic, name: "straight", desc: "()V",
	maxStack: 0, maxLocals: 0,
	body: func(cf *classfile.ClassFile, a *bytecode.Assembler, code *classfile.CodeAttribute) {
		a.Line(10)
		tick(cf, a)
		a.Line(11)
		tick(cf, a)
		a.Line(12)
		a.Op(bytecode.OpReturn)
	},
}

// sum adds 0..n-1 in a loop:
//
//	20: int s = 0;
//	21: int i = 0;
//	22: while (i < n) {
//	23:   s += i;
//	24:   i++; }
//	25: return s;
var sum = testMethod{
	access: classfile.AccPublic | classfile.AccStatic, name: "sum", desc: "(I)I",
	maxStack: 2, maxLocals: 3,
	body: func(cf *classfile.ClassFile, a *bytecode.Assembler, code *classfile.CodeAttribute) {
		cond, end := a.NewLabel(), a.NewLabel()
		a.Line(20)
		a.Op(bytecode.OpIconst0)
		a.Store(bytecode.OpIstore, 1)
		sStart := a.Offset()
		a.Line(21)
		a.Op(bytecode.OpIconst0)
		a.Store(bytecode.OpIstore, 2)
		iStart := a.Offset()
		a.Line(22)
		a.Mark(cond)
		a.Load(bytecode.OpIload, 2)
		a.Load(bytecode.OpIload, 0)
		a.Jump(bytecode.OpIfIcmpge, end)
		a.Line(23)
		a.Load(bytecode.OpIload, 1)
		a.Load(bytecode.OpIload, 2)
		a.Op(bytecode.OpIadd)
		a.Store(bytecode.OpIstore, 1)
		a.Line(24)
		a.Iinc(2, 1)
		a.Jump(bytecode.OpGoto, cond)
		a.Line(25)
		a.Mark(end)
		a.Load(bytecode.OpIload, 1)
		a.Op(bytecode.OpIreturn)
		length := a.Offset()
		code.Attributes = append(code.Attributes, localVariables(cf,
			classfile.LocalVariable{Name: "n", Descriptor: "I", Index: 0, StartPC: 0, Length: uint16(length)},
			classfile.LocalVariable{Name: "s", Descriptor: "I", Index: 1, StartPC: uint16(sStart), Length: uint16(length - sStart)},
			classfile.LocalVariable{Name: "i", Descriptor: "I", Index: 2, StartPC: uint16(iStart), Length: uint16(length - iStart)},
		))
	},
}

// guarded catches an exception thrown on lines 30-31; the handler starts
// on line 32.
var guarded = testMethod{
	access: classfile.AccPublic | classfile.AccStatic, name: "guarded", desc: "()V",
	maxStack: 1, maxLocals: 1,
	body: func(cf *classfile.ClassFile, a *bytecode.Assembler, code *classfile.CodeAttribute) {
		after := a.NewLabel()
		a.Line(30)
		start := a.Offset()
		tick(cf, a)
		a.Line(31)
		tick(cf, a)
		end := a.Offset()
		a.Jump(bytecode.OpGoto, after)
		a.Line(32)
		handler := a.Offset()
		a.Store(bytecode.OpAstore, 0)
		a.Line(33)
		tick(cf, a)
		a.Line(34)
		a.Mark(after)
		a.Op(bytecode.OpReturn)
		code.ExceptionHandlers = []classfile.ExceptionHandler{{
			StartPC: uint16(start), EndPC: uint16(end), HandlerPC: uint16(handler),
			CatchType: cf.AddClass("java/lang/Exception"),
		}}
	},
}

// midExpression computes one() + one() with the second call on its own
// line, so line 41 starts with a value on the stack.
var midExpression = testMethod{
	access: classfile.AccPublic | classfile.AccStatic, name: "mid", desc: "()I",
	maxStack: 2, maxLocals: 0,
	body: func(cf *classfile.ClassFile, a *bytecode.Assembler, code *classfile.CodeAttribute) {
		one := cf.AddMethodref(sampleClass, "one", "()I")
		a.Line(40)
		a.OpU16(bytecode.OpInvokestatic, one)
		a.Line(41)
		a.OpU16(bytecode.OpInvokestatic, one)
		a.Op(bytecode.OpIadd)
		a.Op(bytecode.OpIreturn)
	},
}

// choose stores an app/A or an app/B into the same local:
//
//	50: if (b) {
//	51:   x = makeA(); } else {
//	52:   x = makeB(); }
//	53: use(x);
//	54: return;
var choose = testMethod{
	access: classfile.AccPublic | classfile.AccStatic, name: "choose", desc: "(Z)V",
	maxStack: 1, maxLocals: 2,
	body: func(cf *classfile.ClassFile, a *bytecode.Assembler, code *classfile.CodeAttribute) {
		elseL, join := a.NewLabel(), a.NewLabel()
		a.Line(50)
		a.Load(bytecode.OpIload, 0)
		a.Jump(bytecode.OpIfeq, elseL)
		a.Line(51)
		a.OpU16(bytecode.OpInvokestatic, cf.AddMethodref(sampleClass, "makeA", "()Lapp/A;"))
		a.Store(bytecode.OpAstore, 1)
		a.Jump(bytecode.OpGoto, join)
		a.Line(52)
		a.Mark(elseL)
		a.OpU16(bytecode.OpInvokestatic, cf.AddMethodref(sampleClass, "makeB", "()Lapp/B;"))
		a.Store(bytecode.OpAstore, 1)
		a.Line(53)
		a.Mark(join)
		a.Load(bytecode.OpAload, 1)
		a.OpU16(bytecode.OpInvokestatic, cf.AddMethodref(sampleClass, "use", "(Ljava/lang/Object;)V"))
		a.Line(54)
		a.Op(bytecode.OpReturn)
	},
}

// identity is a generic instance method: <T> T identity(T x).
var identity = testMethod{
	access: classfile.AccPublic, name: "identity", desc: "(Ljava/lang/Object;)Ljava/lang/Object;",
	signature: "<T:Ljava/lang/Object;>(TT;)TT;",
	maxStack:  1, maxLocals: 2,
	body: func(cf *classfile.ClassFile, a *bytecode.Assembler, code *classfile.CodeAttribute) {
		a.Line(60)
		tick(cf, a)
		a.Line(61)
		a.Load(bytecode.OpAload, 1)
		a.Op(bytecode.OpAreturn)
	},
}

// pick switches on k; the case bodies are lines 71-73.
var pick = testMethod{
	access: classfile.AccPublic | classfile.AccStatic, name: "pick", desc: "(I)I",
	maxStack: 1, maxLocals: 1,
	body: func(cf *classfile.ClassFile, a *bytecode.Assembler, code *classfile.CodeAttribute) {
		c0, c1, def := a.NewLabel(), a.NewLabel(), a.NewLabel()
		a.Line(70)
		a.Load(bytecode.OpIload, 0)
		a.Tableswitch(0, def, c0, c1)
		a.Line(71)
		a.Mark(c0)
		a.Push(1)
		a.Op(bytecode.OpIreturn)
		a.Line(72)
		a.Mark(c1)
		a.Push(2)
		a.Op(bytecode.OpIreturn)
		a.Line(73)
		a.Mark(def)
		a.Push(0)
		a.Op(bytecode.OpIreturn)
	},
}

// wideLocals keeps a long and a double:
//
//	80: long l = 0L;
//	81: double d = 0.0;
//	82: return;
var wideLocals = testMethod{
	access: classfile.AccPublic | classfile.AccStatic, name: "wide", desc: "()V",
	maxStack: 2, maxLocals: 4,
	body: func(cf *classfile.ClassFile, a *bytecode.Assembler, code *classfile.CodeAttribute) {
		a.Line(80)
		a.Op(bytecode.OpLconst0)
		a.Store(bytecode.OpLstore, 0)
		a.Line(81)
		a.Op(bytecode.OpDconst0)
		a.Store(bytecode.OpDstore, 2)
		a.Line(82)
		a.Op(bytecode.OpReturn)
	},
}

func allMethods() []testMethod {
	return []testMethod{straight, sum, guarded, midExpression, choose, identity, pick, wideLocals}
}

func methodName(m testMethod) MethodName {
	return MethodName{Name: m.name, Signature: m.desc}
}
