package setip

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/setip/pkg/bytecode"
	"github.com/daimatz/setip/pkg/classfile"
	"github.com/daimatz/setip/pkg/frames"
	"github.com/daimatz/setip/pkg/hierarchy"
)

func strPtr(s string) *string { return &s }

func lineNumbers(targets []LineTarget) []int {
	var lines []int
	for _, lt := range targets {
		lines = append(lines, lt.Line)
	}
	return lines
}

func TestMethodNameMatches(t *testing.T) {
	generic := "<T:Ljava/lang/Object;>(TT;)TT;"
	erased := "(Ljava/lang/Object;)Ljava/lang/Object;"

	tests := []struct {
		name      string
		method    MethodName
		candName  string
		candDesc  string
		candSig   *string
		wantMatch bool
	}{
		{"descriptor", MethodName{Name: "id", Signature: erased}, "id", erased, nil, true},
		{"signature attribute", MethodName{Name: "id", Signature: generic}, "id", erased, &generic, true},
		{"generic matches descriptor", MethodName{Name: "id", Signature: "()V", GenericSignature: &erased}, "id", erased, nil, true},
		{"generic matches signature", MethodName{Name: "id", Signature: "()V", GenericSignature: &generic}, "id", erased, &generic, true},
		{"other name", MethodName{Name: "other", Signature: erased}, "id", erased, nil, false},
		{"other descriptor", MethodName{Name: "id", Signature: "()V"}, "id", erased, &generic, false},
		{"other generic", MethodName{Name: "id", Signature: "()V", GenericSignature: strPtr("()I")}, "id", erased, &generic, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMatch, tt.method.Matches(tt.candName, tt.candDesc, tt.candSig))
		})
	}
}

func TestMethodNameMatchesItself(t *testing.T) {
	cf := buildClassFile(t, allMethods()...)
	for i := range cf.Methods {
		m := &cf.Methods[i]
		sig := m.Signature(cf.ConstantPool)
		id := MethodName{Name: m.Name, Signature: m.Descriptor, GenericSignature: sig}
		assert.True(t, id.Matches(m.Name, m.Descriptor, sig), m.Name)
	}
}

func TestMethodNotFound(t *testing.T) {
	class := buildClass(t, straight)

	_, err := AnalyzeStackEmptyLines(sampleClass, MethodName{Name: "missing", Signature: "()V"}, class)
	assert.ErrorIs(t, err, ErrMethodNotFound)
	_, err = AnalyzeLocals(sampleClass, MethodName{Name: "straight", Signature: "(I)V"}, class)
	assert.ErrorIs(t, err, ErrMethodNotFound)
	_, err = GetAvailableGotoLines("app.Other", methodName(straight), class)
	assert.ErrorIs(t, err, ErrMethodNotFound)
}

func TestOwnerForms(t *testing.T) {
	class := buildClass(t, straight)
	for _, owner := range []string{"app.Sample", "app/Sample", ""} {
		targets, err := GetAvailableGotoLines(owner, methodName(straight), class)
		require.NoError(t, err, owner)
		assert.Equal(t, []int{10, 11, 12}, lineNumbers(targets.Lines), owner)
	}
}

func TestStraightLineMethodHasEveryLine(t *testing.T) {
	class := buildClass(t, straight)

	valid, err := AnalyzeStackEmptyLines(sampleClass, methodName(straight), class)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11, 12}, valid.Sorted())
	assert.Nil(t, valid.SourceDebugLine)

	targets, err := GetAvailableGotoLines(sampleClass, methodName(straight), class)
	require.NoError(t, err)
	require.Len(t, targets.Lines, 3)
	for _, lt := range targets.Lines {
		assert.Empty(t, lt.Locals, "line %d", lt.Line)
	}
}

func TestLoopLocals(t *testing.T) {
	class := buildClass(t, sum)

	lines, err := GetTargetLineInfo(sampleClass, methodName(sum), class)
	require.NoError(t, err)
	assert.Equal(t, []int{20, 21, 22, 23, 24, 25}, lineNumbers(lines))

	assert.Equal(t, []LocalSlot{{Index: 0, Kind: SlotInt, Name: "n"}}, lines[0].Locals)
	assert.Equal(t, []LocalSlot{
		{Index: 0, Kind: SlotInt, Name: "n"},
		{Index: 1, Kind: SlotInt, Name: "s"},
	}, lines[1].Locals)
	assert.Equal(t, []LocalSlot{
		{Index: 0, Kind: SlotInt, Name: "n"},
		{Index: 1, Kind: SlotInt, Name: "s"},
		{Index: 2, Kind: SlotInt, Name: "i"},
	}, lines[3].Locals)
	assert.Equal(t, 9, lines[3].Offset)
}

func TestCatchHandlerLineIsExcluded(t *testing.T) {
	class := buildClass(t, guarded)

	valid, err := AnalyzeStackEmptyLines(sampleClass, methodName(guarded), class)
	require.NoError(t, err)
	assert.Equal(t, []int{30, 31, 33, 34}, valid.Sorted())
	assert.False(t, valid.Contains(32))

	targets, err := GetAvailableGotoLines(sampleClass, methodName(guarded), class)
	require.NoError(t, err)
	assert.Equal(t, []int{30, 31, 33, 34}, lineNumbers(targets.Lines))

	lt, ok := targets.Find(33)
	require.True(t, ok)
	assert.Equal(t, []LocalSlot{{Index: 0, Kind: SlotReference, Type: "java/lang/Exception"}}, lt.Locals)
	lt, ok = targets.Find(34)
	require.True(t, ok)
	assert.Empty(t, lt.Locals)
}

func TestMidExpressionLineIsExcluded(t *testing.T) {
	class := buildClass(t, midExpression)

	lines, err := GetTargetLineInfo(sampleClass, methodName(midExpression), class)
	require.NoError(t, err)
	assert.Equal(t, []int{40, 41}, lineNumbers(lines))

	targets, err := GetAvailableGotoLines(sampleClass, methodName(midExpression), class)
	require.NoError(t, err)
	assert.Equal(t, []int{40}, lineNumbers(targets.Lines))
	_, ok := targets.Find(41)
	assert.False(t, ok)
}

func TestNoViableTarget(t *testing.T) {
	onlyMid := testMethod{
		access: classfile.AccPublic | classfile.AccStatic, name: "onlyMid", desc: "()I",
		maxStack: 2,
		body: func(cf *classfile.ClassFile, a *bytecode.Assembler, code *classfile.CodeAttribute) {
			a.Push(1)
			a.Line(42)
			a.Push(2)
			a.Op(bytecode.OpIadd)
			a.Op(bytecode.OpIreturn)
		},
	}
	class := buildClass(t, onlyMid)
	_, err := GetAvailableGotoLines(sampleClass, methodName(onlyMid), class)
	assert.ErrorIs(t, err, ErrNoViableTarget)
}

func TestDuplicateLineKeepsFirstOccurrence(t *testing.T) {
	dup := testMethod{
		access: classfile.AccPublic | classfile.AccStatic, name: "dup", desc: "()V",
		body: func(cf *classfile.ClassFile, a *bytecode.Assembler, code *classfile.CodeAttribute) {
			a.Line(90)
			tick(cf, a)
			a.Line(91)
			tick(cf, a)
			a.Line(90)
			tick(cf, a)
			a.Line(92)
			a.Op(bytecode.OpReturn)
		},
	}
	class := buildClass(t, dup)

	lines, err := GetTargetLineInfo(sampleClass, methodName(dup), class)
	require.NoError(t, err)
	assert.Equal(t, []int{90, 91, 90, 92}, lineNumbers(lines))

	targets, err := GetAvailableGotoLines(sampleClass, methodName(dup), class)
	require.NoError(t, err)
	assert.Equal(t, []int{90, 91, 92}, lineNumbers(targets.Lines))
	assert.Equal(t, 0, targets.Lines[0].Offset)
}

func TestLineBoundariesLastEntryWins(t *testing.T) {
	cf := classfile.New(sampleClass, "java/lang/Object")
	code := &classfile.CodeAttribute{
		Code: []byte{bytecode.OpNop, bytecode.OpReturn},
		Attributes: []classfile.AttributeInfo{
			cf.NewAttribute(classfile.AttrLineNumberTable, classfile.EncodeLineNumberTable([]classfile.LineNumber{
				{StartPC: 1, LineNumber: 7},
				{StartPC: 0, LineNumber: 5},
				{StartPC: 0, LineNumber: 6},
			})),
		},
	}
	got, err := lineBoundaries(code)
	require.NoError(t, err)
	assert.Equal(t, []lineBoundary{{Offset: 0, Line: 6}, {Offset: 1, Line: 7}}, got)
}

func TestSourceDebugLine(t *testing.T) {
	cf := buildClassFile(t, straight)
	smap := "SMAP\nSample.kt\nKotlin\n*S Kotlin\n*E\n"
	cf.Attributes = append(cf.Attributes, cf.NewAttribute(classfile.AttrSourceDebugExtension, []byte(smap)))
	class, err := cf.Bytes()
	require.NoError(t, err)

	targets, err := GetAvailableGotoLines(sampleClass, methodName(straight), class)
	require.NoError(t, err)
	require.NotNil(t, targets.SourceDebugLine)
	assert.Equal(t, smap, *targets.SourceDebugLine)
}

func TestDiscoveryIsIdempotent(t *testing.T) {
	class := buildClass(t, allMethods()...)
	for _, m := range allMethods() {
		t.Run(m.name, func(t *testing.T) {
			v1, err := AnalyzeStackEmptyLines(sampleClass, methodName(m), class)
			require.NoError(t, err)
			v2, err := AnalyzeStackEmptyLines(sampleClass, methodName(m), class)
			require.NoError(t, err)
			assert.Equal(t, v1, v2)

			t1, err := GetAvailableGotoLines(sampleClass, methodName(m), class)
			require.NoError(t, err)
			t2, err := GetAvailableGotoLines(sampleClass, methodName(m), class)
			require.NoError(t, err)
			assert.Equal(t, t1, t2)
		})
	}
}

func TestSubroutinesAreUntransformable(t *testing.T) {
	withJsr := testMethod{
		access: classfile.AccPublic | classfile.AccStatic, name: "legacy", desc: "()V",
		maxStack: 1, maxLocals: 1,
		body: func(cf *classfile.ClassFile, a *bytecode.Assembler, code *classfile.CodeAttribute) {
			sub := a.NewLabel()
			a.Line(100)
			a.Jump(bytecode.OpJsr, sub)
			a.Op(bytecode.OpReturn)
			a.Mark(sub)
			a.Store(bytecode.OpAstore, 0)
			a.OpU8(bytecode.OpRet, 0)
		},
	}
	class := buildClass(t, withJsr)

	_, err := GetAvailableGotoLines(sampleClass, methodName(withJsr), class)
	assert.ErrorIs(t, err, ErrUntransformable)
	assert.ErrorIs(t, err, frames.ErrSubroutine)
}

func TestConstructorsHaveNoTargets(t *testing.T) {
	ctor := testMethod{
		access: classfile.AccPublic, name: "<init>", desc: "()V",
		maxStack: 1, maxLocals: 1,
		body: func(cf *classfile.ClassFile, a *bytecode.Assembler, code *classfile.CodeAttribute) {
			a.Line(1)
			a.Load(bytecode.OpAload, 0)
			a.OpU16(bytecode.OpInvokespecial, cf.AddMethodref("java/lang/Object", "<init>", "()V"))
			a.Line(2)
			tick(cf, a)
			a.Op(bytecode.OpReturn)
		},
	}
	class := buildClass(t, ctor)

	lines, err := GetTargetLineInfo(sampleClass, methodName(ctor), class)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, lineNumbers(lines))

	_, err = GetAvailableGotoLines(sampleClass, methodName(ctor), class)
	assert.ErrorIs(t, err, ErrNoViableTarget)
}

func transformTarget(t *testing.T, class []byte, m testMethod, line int, resolver hierarchy.CommonTypeResolver) *ClassAndFirstLine {
	t.Helper()
	targets, err := GetAvailableGotoLines(sampleClass, methodName(m), class)
	require.NoError(t, err)
	lt, ok := targets.Find(line)
	require.True(t, ok, "line %d is not a target", line)
	res, err := UpdateClassWithGotoLinePrefix(lt, methodName(m), m.access&classfile.AccStatic == 0, class, resolver)
	require.NoError(t, err)
	return res
}

func methodCode(t *testing.T, class []byte, name string) (*classfile.ClassFile, *classfile.CodeAttribute) {
	t.Helper()
	cf, err := classfile.ParseBytes(class)
	require.NoError(t, err)
	m := cf.FindMethodByName(name)
	require.NotNil(t, m, name)
	require.NotNil(t, m.Code, name)
	return cf, m.Code
}

func TestTransformRoundTrip(t *testing.T) {
	class := buildClass(t, allMethods()...)
	res := transformTarget(t, class, straight, 11, nil)
	assert.Equal(t, 11, res.StopLineNumber)

	_, before := methodCode(t, class, "straight")
	after, code := methodCode(t, res.Class, "straight")

	shift := len(code.Code) - len(before.Code)
	require.Positive(t, shift)
	assert.Zero(t, shift%4)
	assert.Equal(t, before.Code, code.Code[shift:])

	prefix, err := bytecode.Decode(code.Code[:shift])
	require.NoError(t, err)
	last := prefix[len(prefix)-1]
	assert.Equal(t, byte(bytecode.OpGoto), last.Opcode)
	assert.Equal(t, shift+3, last.Target)
	for _, in := range prefix[:len(prefix)-1] {
		assert.Equal(t, byte(bytecode.OpNop), in.Opcode)
	}

	lines, err := code.LineNumbers()
	require.NoError(t, err)
	assert.Equal(t, []classfile.LineNumber{
		{StartPC: uint16(shift), LineNumber: 10},
		{StartPC: uint16(shift + 3), LineNumber: 11},
		{StartPC: uint16(shift + 6), LineNumber: 12},
	}, lines)
	assert.NotNil(t, code.Attribute(classfile.AttrStackMapTable))

	orig, err := classfile.ParseBytes(class)
	require.NoError(t, err)
	require.Len(t, after.Methods, len(orig.Methods))
	for i := range orig.Methods {
		if orig.Methods[i].Name == "straight" {
			continue
		}
		assert.Equal(t, orig.Methods[i].Code.Code, after.Methods[i].Code.Code, orig.Methods[i].Name)
		assert.Equal(t, orig.Methods[i].Attributes, after.Methods[i].Attributes, orig.Methods[i].Name)
	}
}

func TestTransformInitializesMissingLocals(t *testing.T) {
	class := buildClass(t, sum)
	res := transformTarget(t, class, sum, 23, nil)
	assert.Equal(t, 23, res.StopLineNumber)

	_, code := methodCode(t, res.Class, "sum")
	assert.Equal(t, []byte{
		bytecode.OpNop,
		bytecode.OpIconst0, bytecode.OpIstore0 + 1,
		bytecode.OpIconst0, bytecode.OpIstore0 + 2,
		bytecode.OpGoto, 0, 12,
	}, code.Code[:8])
	assert.Equal(t, uint16(2), code.MaxStack)
	assert.Equal(t, uint16(3), code.MaxLocals)

	integer := classfile.VerificationType{Tag: classfile.ItemInteger}
	smt := code.Attribute(classfile.AttrStackMapTable)
	require.NotNil(t, smt)
	fs, err := classfile.DecodeStackMapTable([]classfile.VerificationType{integer}, smt.Data)
	require.NoError(t, err)
	var offsets []int
	for _, f := range fs {
		offsets = append(offsets, f.Offset)
		if f.Offset == 17 {
			assert.Equal(t, []classfile.VerificationType{integer, integer, integer}, f.Locals)
			assert.Empty(t, f.Stack)
		}
	}
	assert.Equal(t, []int{8, 12, 17, 27}, offsets)

	vars, err := code.LocalVariables(func() []classfile.ConstantPoolEntry {
		cf, err := classfile.ParseBytes(res.Class)
		require.NoError(t, err)
		return cf.ConstantPool
	}())
	require.NoError(t, err)
	require.Len(t, vars, 3)
	assert.Equal(t, uint16(8), vars[0].StartPC)
	assert.Equal(t, uint16(10), vars[1].StartPC)
}

func TestTransformWideLocals(t *testing.T) {
	class := buildClass(t, wideLocals)
	res := transformTarget(t, class, wideLocals, 82, nil)

	_, code := methodCode(t, res.Class, "wide")
	assert.Equal(t, []byte{
		bytecode.OpNop,
		bytecode.OpLconst0, bytecode.OpLstore0,
		bytecode.OpDconst0, bytecode.OpDstore0 + 2,
		bytecode.OpGoto, 0, 7,
	}, code.Code[:8])
	assert.Equal(t, uint16(4), code.MaxLocals)
}

func TestTransformKeepsReceiverAndParameters(t *testing.T) {
	class := buildClass(t, identity)
	res := transformTarget(t, class, identity, 61, nil)
	assert.Equal(t, 61, res.StopLineNumber)

	_, code := methodCode(t, res.Class, "identity")
	assert.Equal(t, []byte{bytecode.OpNop, bytecode.OpGoto, 0, 6}, code.Code[:4])
}

func TestTransformPreservesSwitchAlignment(t *testing.T) {
	class := buildClass(t, pick)
	res := transformTarget(t, class, pick, 72, nil)

	_, code := methodCode(t, res.Class, "pick")
	instrs, err := bytecode.Decode(code.Code)
	require.NoError(t, err)
	var sw *bytecode.Instruction
	for i := range instrs {
		if instrs[i].Opcode == bytecode.OpTableswitch {
			sw = &instrs[i]
		}
	}
	require.NotNil(t, sw)
	assert.Equal(t, 5, sw.Offset)
	assert.Equal(t, 32, sw.Target)
	assert.Equal(t, []int{28, 30}, sw.Cases)
}

func TestTransformShiftsExceptionTable(t *testing.T) {
	class := buildClass(t, guarded)
	res := transformTarget(t, class, guarded, 33, nil)

	_, code := methodCode(t, res.Class, "guarded")
	require.Len(t, code.ExceptionHandlers, 1)
	h := code.ExceptionHandlers[0]
	assert.Equal(t, uint16(8), h.StartPC)
	assert.Equal(t, uint16(14), h.EndPC)
	assert.Equal(t, uint16(17), h.HandlerPC)
	assert.Equal(t, []byte{
		bytecode.OpNop, bytecode.OpNop, bytecode.OpNop,
		bytecode.OpAconstNull, bytecode.OpAstore0,
		bytecode.OpGoto, 0, 13,
	}, code.Code[:8])
}

type recordingResolver struct {
	answer string
	ok     bool
	calls  [][2]string
}

func (r *recordingResolver) TryGetCommonType(a, b string) (string, bool) {
	r.calls = append(r.calls, [2]string{a, b})
	return r.answer, r.ok
}

func TestUnrelatedTypesFallBackToObject(t *testing.T) {
	class := buildClass(t, choose)

	targets, err := GetAvailableGotoLines(sampleClass, methodName(choose), class)
	require.NoError(t, err)
	lt, ok := targets.Find(53)
	require.True(t, ok)
	assert.Contains(t, lt.Locals, LocalSlot{Index: 1, Kind: SlotReference, Type: frames.ObjectClass})

	r := &recordingResolver{}
	res, err := UpdateClassWithGotoLinePrefix(lt, methodName(choose), false, class, r)
	require.NoError(t, err)
	assert.Equal(t, 53, res.StopLineNumber)
	require.NotEmpty(t, r.calls)
	for _, c := range r.calls {
		assert.ElementsMatch(t, []string{"app.A", "app.B"}, c[:])
	}
}

func TestCommonTypeFromResolver(t *testing.T) {
	class := buildClass(t, choose)
	r := &recordingResolver{answer: "app.Base", ok: true}
	res := transformTarget(t, class, choose, 54, r)

	cf, err := classfile.ParseBytes(res.Class)
	require.NoError(t, err)
	found := false
	for i, e := range cf.ConstantPool {
		if _, ok := e.(*classfile.ConstantClass); ok {
			if name, _ := classfile.GetClassName(cf.ConstantPool, uint16(i)); name == "app/Base" {
				found = true
			}
		}
	}
	assert.True(t, found, "stack map frames should reference app/Base")
}

func TestStopLineIsADiscoveredLine(t *testing.T) {
	class := buildClass(t, allMethods()...)
	for _, m := range allMethods() {
		targets, err := GetAvailableGotoLines(sampleClass, methodName(m), class)
		require.NoError(t, err, m.name)
		for _, lt := range targets.Lines {
			res, err := UpdateClassWithGotoLinePrefix(lt, methodName(m), m.access&classfile.AccStatic == 0, class, nil)
			require.NoError(t, err, "%s line %d", m.name, lt.Line)
			assert.Equal(t, lt.Line, res.StopLineNumber)
		}
	}
}

func TestStaleTargets(t *testing.T) {
	class := buildClass(t, sum, midExpression)
	targets, err := GetAvailableGotoLines(sampleClass, methodName(sum), class)
	require.NoError(t, err)
	lt, ok := targets.Find(23)
	require.True(t, ok)

	tests := []struct {
		name       string
		target     LineTarget
		method     MethodName
		isInstance bool
	}{
		{"missing line", LineTarget{Line: 99}, methodName(sum), false},
		{"mid-expression line", LineTarget{Line: 41}, methodName(midExpression), false},
		{"changed local", func() LineTarget {
			c := lt
			c.Locals = append([]LocalSlot(nil), lt.Locals...)
			c.Locals[1].Kind = SlotFloat
			return c
		}(), methodName(sum), false},
		{"missing method", lt, MethodName{Name: "gone", Signature: "()V"}, false},
		{"instance mismatch", lt, methodName(sum), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := UpdateClassWithGotoLinePrefix(tt.target, tt.method, tt.isInstance, class, nil)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrStaleTarget)
		})
	}
}

func TestTransformOldClassHasNoStackMap(t *testing.T) {
	cf := buildClassFile(t, sum)
	cf.MajorVersion = 49
	class, err := cf.Bytes()
	require.NoError(t, err)

	res := transformTarget(t, class, sum, 23, nil)
	_, code := methodCode(t, res.Class, "sum")
	assert.Nil(t, code.Attribute(classfile.AttrStackMapTable))
}

func TestTransformDoesNotModifyInput(t *testing.T) {
	class := buildClass(t, sum)
	saved := bytes.Clone(class)
	transformTarget(t, class, sum, 23, nil)
	assert.Equal(t, saved, class)
}

func TestErrorsAreDistinct(t *testing.T) {
	all := []error{ErrMethodNotFound, ErrNoViableTarget, ErrStaleTarget, ErrUntransformable}
	for i, a := range all {
		for j, b := range all {
			assert.Equal(t, i == j, errors.Is(a, b))
		}
	}
}

// deadTail returns on line 1; line 2 is never reached and line 3 handles
// exceptions thrown anywhere on lines 1-2.
var deadTail = testMethod{
	access: classfile.AccPublic | classfile.AccStatic, name: "deadTail", desc: "()V",
	maxStack: 1, maxLocals: 0,
	body: func(cf *classfile.ClassFile, a *bytecode.Assembler, code *classfile.CodeAttribute) {
		a.Line(1)
		tick(cf, a)
		a.Op(bytecode.OpReturn)
		a.Line(2)
		dead := a.Offset()
		tick(cf, a)
		a.Op(bytecode.OpReturn)
		a.Line(3)
		handler := a.Offset()
		a.Op(bytecode.OpPop)
		a.Op(bytecode.OpReturn)
		code.ExceptionHandlers = []classfile.ExceptionHandler{
			{StartPC: 0, EndPC: uint16(handler), HandlerPC: uint16(handler)},
			{StartPC: uint16(dead), EndPC: uint16(handler), HandlerPC: uint16(handler)},
		}
	},
}

func TestUnreachableLinesAreNotRecorded(t *testing.T) {
	class := buildClass(t, deadTail)
	valid, err := AnalyzeStackEmptyLines(sampleClass, methodName(deadTail), class)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, valid.Sorted())

	// the handler line is reachable but starts with the exception on the stack
	lines, err := GetTargetLineInfo(sampleClass, methodName(deadTail), class)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, lineNumbers(lines))

	targets, err := GetAvailableGotoLines(sampleClass, methodName(deadTail), class)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, lineNumbers(targets.Lines))
}

func TestTransformFillsUnreachableCode(t *testing.T) {
	class := buildClass(t, deadTail)
	res := transformTarget(t, class, deadTail, 1, nil)
	assert.Equal(t, 1, res.StopLineNumber)

	cf, code := methodCode(t, res.Class, "deadTail")
	require.Len(t, code.Code, 14)
	assert.Equal(t, []byte{
		bytecode.OpNop, bytecode.OpNop, bytecode.OpNop, bytecode.OpAthrow,
		bytecode.OpPop, bytecode.OpReturn,
	}, code.Code[8:])
	assert.Equal(t, []classfile.ExceptionHandler{{StartPC: 4, EndPC: 8, HandlerPC: 12}}, code.ExceptionHandlers)

	smt := code.Attribute(classfile.AttrStackMapTable)
	require.NotNil(t, smt)
	fs, err := classfile.DecodeStackMapTable(nil, smt.Data)
	require.NoError(t, err)
	var offsets []int
	for _, f := range fs {
		offsets = append(offsets, f.Offset)
	}
	assert.Equal(t, []int{4, 8, 12}, offsets)
	require.Len(t, fs[1].Stack, 1)
	assert.Empty(t, fs[1].Locals)
	name, err := classfile.GetClassName(cf.ConstantPool, fs[1].Stack[0].CPIndex)
	require.NoError(t, err)
	assert.Equal(t, "java/lang/Throwable", name)
}

func TestTransformFarLanding(t *testing.T) {
	tests := []struct {
		landing int
		jump    byte
		shift   int
	}{
		{32764, bytecode.OpGoto, 4},
		{32765, bytecode.OpGotoW, 8},
	}
	for _, tt := range tests {
		t.Run(bytecode.OpName(tt.jump), func(t *testing.T) {
			far := testMethod{
				access: classfile.AccPublic | classfile.AccStatic, name: "far", desc: "()V",
				body: func(cf *classfile.ClassFile, a *bytecode.Assembler, code *classfile.CodeAttribute) {
					a.Line(1)
					for a.Offset() < tt.landing {
						a.Op(bytecode.OpNop)
					}
					a.Line(2)
					a.Op(bytecode.OpReturn)
				},
			}
			class := buildClass(t, far)
			res := transformTarget(t, class, far, 2, nil)
			assert.Equal(t, 2, res.StopLineNumber)

			_, code := methodCode(t, res.Class, "far")
			require.Len(t, code.Code, tt.shift+tt.landing+1)
			prefix, err := bytecode.Decode(code.Code[:tt.shift])
			require.NoError(t, err)
			jump := prefix[len(prefix)-1]
			assert.Equal(t, tt.jump, jump.Opcode)
			assert.Equal(t, tt.shift+tt.landing, jump.Target)
			assert.Equal(t, byte(bytecode.OpReturn), code.Code[jump.Target])
		})
	}
}
