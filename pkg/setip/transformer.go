package setip

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/daimatz/setip/pkg/bytecode"
	"github.com/daimatz/setip/pkg/classfile"
	"github.com/daimatz/setip/pkg/frames"
	"github.com/daimatz/setip/pkg/hierarchy"
)

var transformLog = commonlog.GetLogger("setip.transform")

// Class versions before Java 6 carry no StackMapTable.
const stackMapMajorVersion = 50

// ClassAndFirstLine is a rewritten class and the line its target method
// now starts executing at.
type ClassAndFirstLine struct {
	Class          []byte
	StopLineNumber int
}

// UpdateClassWithGotoLinePrefix rewrites method in class so that it starts by
// initializing the locals target requires and jumping to target's line. The
// original code follows the jump unchanged. resolver answers common
// superclass queries while stack map frames are recomputed; it may be nil.
func UpdateClassWithGotoLinePrefix(target LineTarget, method MethodName, isInstance bool, class []byte, resolver hierarchy.CommonTypeResolver) (*ClassAndFirstLine, error) {
	mc, err := findMethod("", method, class)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStaleTarget, err)
	}
	if mc.method.IsStatic() == isInstance {
		return nil, fmt.Errorf("%w: %s: instance method mismatch", ErrStaleTarget, method)
	}
	if mc.method.Code == nil {
		return nil, fmt.Errorf("%w: %s has no code", ErrUntransformable, method)
	}

	bridge := hierarchy.NewBridge(resolver)
	t := &transformer{methodContext: mc, bridge: bridge}
	result, err := t.transform(target)
	if err != nil {
		transformLog.Debugf("%s.%s line %d: %s", mc.owner, method, target.Line, err)
		return nil, err
	}
	transformLog.Infof("%s.%s: jumping to line %d (%d resolver queries)",
		mc.owner, method, result.StopLineNumber, bridge.Queries)
	return result, nil
}

type transformer struct {
	*methodContext
	bridge *hierarchy.Bridge
}

func (t *transformer) transform(target LineTarget) (*ClassAndFirstLine, error) {
	code := t.method.Code
	landing, err := t.landing(target)
	if err != nil {
		return nil, err
	}
	required, err := t.requiredLocals(target, landing)
	if err != nil {
		return nil, err
	}
	entry, err := t.entryFrame()
	if err != nil {
		return nil, err
	}

	prefix, err := t.prefix(entry, required, landing.Offset)
	if err != nil {
		return nil, err
	}
	shift := len(prefix)
	if shift+len(code.Code) > 65535 {
		return nil, fmt.Errorf("%w: code too large after adding %d bytes", ErrUntransformable, shift)
	}

	newCode := &classfile.CodeAttribute{
		MaxStack:  code.MaxStack,
		MaxLocals: code.MaxLocals,
		Code:      append(prefix, code.Code...),
	}
	for _, h := range code.ExceptionHandlers {
		newCode.ExceptionHandlers = append(newCode.ExceptionHandlers, classfile.ExceptionHandler{
			StartPC:   h.StartPC + uint16(shift),
			EndPC:     h.EndPC + uint16(shift),
			HandlerPC: h.HandlerPC + uint16(shift),
			CatchType: h.CatchType,
		})
	}

	res, err := t.analyze(newCode, entry, shift)
	if err != nil {
		return nil, err
	}
	newCode.MaxStack = uint16(max(res.MaxStack, int(code.MaxStack)))
	newCode.MaxLocals = uint16(max(res.MaxLocals, int(code.MaxLocals)))

	if err := t.shiftAttributes(code, newCode, shift, res, entry); err != nil {
		return nil, err
	}
	if err := t.class.SetCode(t.method, newCode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUntransformable, err)
	}
	out, err := t.class.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUntransformable, err)
	}
	return &ClassAndFirstLine{Class: out, StopLineNumber: landing.Line}, nil
}

// analyze computes the frames of newCode from the new entry and the original
// one at shift. Code no root reaches would need frames of its own, so it is
// filled with nops ending in athrow, dropped from the exception table and
// analyzed again with a frame holding only the thrown value.
func (t *transformer) analyze(newCode *classfile.CodeAttribute, entry *frames.Frame, shift int) (*frames.Result, error) {
	method := frames.Method{
		Owner:     t.owner,
		Pool:      t.class.ConstantPool,
		Code:      newCode.Code,
		MaxLocals: int(newCode.MaxLocals),
		Handlers:  newCode.ExceptionHandlers,
	}
	roots := []frames.Root{{Offset: 0, Frame: entry}, {Offset: shift, Frame: entry}}
	res, err := frames.Analyze(method, t.bridge.CommonSuperclass, roots...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUntransformable, err)
	}
	dead := res.DeadRanges()
	if len(dead) == 0 {
		return res, nil
	}

	frames.FillDeadCode(newCode.Code, dead)
	newCode.ExceptionHandlers = frames.TrimHandlers(newCode.ExceptionHandlers, dead)
	method.Handlers = newCode.ExceptionHandlers
	for _, d := range dead {
		roots = append(roots, frames.Root{Offset: d.Start, Frame: frames.DeadCodeFrame(method.MaxLocals)})
	}
	transformLog.Debugf("%s.%s: filling %d unreachable ranges", t.owner, t.method.Name, len(dead))
	res, err = frames.Analyze(method, t.bridge.CommonSuperclass, roots...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUntransformable, err)
	}
	return res, nil
}

// landing finds the boundary to jump to: target's own offset when it still
// opens target's line with an empty stack, else the first such boundary of
// the line.
func (t *transformer) landing(target LineTarget) (lineBoundary, error) {
	valid, err := t.stackEmptyLines()
	if err != nil {
		return lineBoundary{}, fmt.Errorf("%w: %w", ErrStaleTarget, err)
	}
	boundaries, err := lineBoundaries(t.method.Code)
	if err != nil {
		return lineBoundary{}, fmt.Errorf("%w: %w", ErrUntransformable, err)
	}
	var first *lineBoundary
	for i, b := range boundaries {
		if b.Line != target.Line || !valid.EmptyAt(b.Offset) {
			continue
		}
		if b.Offset == target.Offset {
			return b, nil
		}
		if first == nil {
			first = &boundaries[i]
		}
	}
	if first == nil {
		return lineBoundary{}, fmt.Errorf("%w: line %d has no empty-stack boundary", ErrStaleTarget, target.Line)
	}
	return *first, nil
}

// requiredLocals recomputes the locals at landing and checks them against
// the ones target was discovered with.
func (t *transformer) requiredLocals(target LineTarget, landing lineBoundary) ([]LocalSlot, error) {
	lines, err := t.lineTargets(t.bridge.CommonSuperclass)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStaleTarget, err)
	}
	for _, lt := range lines {
		if lt.Offset != landing.Offset {
			continue
		}
		current := make(map[int]LocalSlot, len(lt.Locals))
		for _, s := range lt.Locals {
			current[s.Index] = s
		}
		for _, s := range target.Locals {
			c, ok := current[s.Index]
			if !ok || c.Kind != s.Kind {
				return nil, fmt.Errorf("%w: local %s changed at line %d", ErrStaleTarget, s, target.Line)
			}
		}
		return lt.Locals, nil
	}
	return nil, fmt.Errorf("%w: line %d has no known locals", ErrStaleTarget, target.Line)
}

// prefix assembles the entry code: nop padding, a default value store for
// every required local the entry frame does not already satisfy, and a jump
// to the shifted landing offset. Its length is a multiple of 4 so switch
// padding in the original code stays valid.
func (t *transformer) prefix(entry *frames.Frame, required []LocalSlot, landing int) ([]byte, error) {
	var missing []LocalSlot
	for _, s := range required {
		if s.Index == 0 && !t.method.IsStatic() {
			continue
		}
		want := s.verifierType()
		if have, err := entry.GetLocal(s.Index); err == nil && frames.Merge(have, want, t.bridge.CommonSuperclass) == want {
			continue
		}
		missing = append(missing, s)
	}

	stores := bytecode.NewAssembler()
	for _, s := range missing {
		emitDefault(stores, s)
	}
	jumpLen := 3
	if landing+jumpLen > 32767 {
		jumpLen = 5
	}
	size := (stores.Offset() + jumpLen + 3) &^ 3

	a := bytecode.NewAssembler()
	for a.Offset() < size-stores.Offset()-jumpLen {
		a.Op(bytecode.OpNop)
	}
	for _, s := range missing {
		emitDefault(a, s)
	}
	a.Goto(size + landing)
	out, err := a.Assemble()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUntransformable, err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: prefix is %d bytes, want %d", ErrUntransformable, len(out), size)
	}
	return out, nil
}

func emitDefault(a *bytecode.Assembler, s LocalSlot) {
	switch s.Kind {
	case SlotInt:
		a.Op(bytecode.OpIconst0)
		a.Store(bytecode.OpIstore, s.Index)
	case SlotFloat:
		a.Op(bytecode.OpFconst0)
		a.Store(bytecode.OpFstore, s.Index)
	case SlotLong:
		a.Op(bytecode.OpLconst0)
		a.Store(bytecode.OpLstore, s.Index)
	case SlotDouble:
		a.Op(bytecode.OpDconst0)
		a.Store(bytecode.OpDstore, s.Index)
	default:
		a.Op(bytecode.OpAconstNull)
		a.Store(bytecode.OpAstore, s.Index)
	}
}

// shiftAttributes copies the sub-attributes of the Code attribute, moving
// offsets past the prefix and replacing the StackMapTable.
func (t *transformer) shiftAttributes(code, newCode *classfile.CodeAttribute, shift int, res *frames.Result, entry *frames.Frame) error {
	for _, attr := range code.Attributes {
		switch attr.Name {
		case classfile.AttrLineNumberTable:
			lines, err := decodeLines(attr)
			if err != nil {
				return err
			}
			for i := range lines {
				lines[i].StartPC += uint16(shift)
			}
			attr.Data = classfile.EncodeLineNumberTable(lines)
		case classfile.AttrLocalVariableTable, classfile.AttrLocalVariableTypeTable:
			vars, err := decodeVars(attr, t.class.ConstantPool)
			if err != nil {
				return err
			}
			for i := range vars {
				vars[i].StartPC += uint16(shift)
			}
			attr.Data = classfile.EncodeLocalVariableTable(vars)
		case classfile.AttrStackMapTable,
			classfile.AttrRuntimeVisibleTypeAnnotations, classfile.AttrRuntimeInvisibleTypeAnnotations:
			continue
		}
		newCode.Attributes = append(newCode.Attributes, attr)
	}

	if t.class.MajorVersion < stackMapMajorVersion {
		return nil
	}
	smt, err := res.StackMapTable(t.class, entry)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUntransformable, err)
	}
	newCode.Attributes = append(newCode.Attributes, t.class.NewAttribute(classfile.AttrStackMapTable, smt))
	return nil
}

func decodeLines(attr classfile.AttributeInfo) ([]classfile.LineNumber, error) {
	c := &classfile.CodeAttribute{Attributes: []classfile.AttributeInfo{attr}}
	lines, err := c.LineNumbers()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUntransformable, err)
	}
	return lines, nil
}

func decodeVars(attr classfile.AttributeInfo, pool []classfile.ConstantPoolEntry) ([]classfile.LocalVariable, error) {
	c := &classfile.CodeAttribute{Attributes: []classfile.AttributeInfo{attr}}
	var (
		vars []classfile.LocalVariable
		err  error
	)
	if attr.Name == classfile.AttrLocalVariableTable {
		vars, err = c.LocalVariables(pool)
	} else {
		vars, err = c.LocalVariableTypes(pool)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUntransformable, err)
	}
	return vars, nil
}
