package classfile

import (
	"encoding/binary"
	"fmt"
)

// LineNumbers returns the concatenation of every LineNumberTable attached to
// the code, in table order.
func (c *CodeAttribute) LineNumbers() ([]LineNumber, error) {
	var lines []LineNumber
	for _, attr := range c.Attributes {
		if attr.Name != AttrLineNumberTable {
			continue
		}
		entries, err := decodeLineNumberTable(attr.Data)
		if err != nil {
			return nil, err
		}
		lines = append(lines, entries...)
	}
	return lines, nil
}

// LocalVariables returns the LocalVariableTable entries with names resolved.
func (c *CodeAttribute) LocalVariables(pool []ConstantPoolEntry) ([]LocalVariable, error) {
	return c.localVariables(pool, AttrLocalVariableTable)
}

// LocalVariableTypes returns the LocalVariableTypeTable entries.
func (c *CodeAttribute) LocalVariableTypes(pool []ConstantPoolEntry) ([]LocalVariable, error) {
	return c.localVariables(pool, AttrLocalVariableTypeTable)
}

func (c *CodeAttribute) localVariables(pool []ConstantPoolEntry, attrName string) ([]LocalVariable, error) {
	var vars []LocalVariable
	for _, attr := range c.Attributes {
		if attr.Name != attrName {
			continue
		}
		entries, err := decodeLocalVariableTable(attr.Data, pool)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", attrName, err)
		}
		vars = append(vars, entries...)
	}
	return vars, nil
}

func decodeLineNumberTable(data []byte) ([]LineNumber, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("LineNumberTable too short: %d bytes", len(data))
	}
	n := int(binary.BigEndian.Uint16(data[0:2]))
	if len(data) < 2+4*n {
		return nil, fmt.Errorf("LineNumberTable truncated: %d entries", n)
	}
	lines := make([]LineNumber, n)
	for i := 0; i < n; i++ {
		off := 2 + 4*i
		lines[i] = LineNumber{
			StartPC:    binary.BigEndian.Uint16(data[off : off+2]),
			LineNumber: binary.BigEndian.Uint16(data[off+2 : off+4]),
		}
	}
	return lines, nil
}

// EncodeLineNumberTable encodes the body of a LineNumberTable attribute.
func EncodeLineNumberTable(lines []LineNumber) []byte {
	buf := make([]byte, 2, 2+4*len(lines))
	binary.BigEndian.PutUint16(buf, uint16(len(lines)))
	for _, l := range lines {
		buf = binary.BigEndian.AppendUint16(buf, l.StartPC)
		buf = binary.BigEndian.AppendUint16(buf, l.LineNumber)
	}
	return buf
}

func decodeLocalVariableTable(data []byte, pool []ConstantPoolEntry) ([]LocalVariable, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("table too short: %d bytes", len(data))
	}
	n := int(binary.BigEndian.Uint16(data[0:2]))
	if len(data) < 2+10*n {
		return nil, fmt.Errorf("table truncated: %d entries", n)
	}
	vars := make([]LocalVariable, n)
	for i := 0; i < n; i++ {
		off := 2 + 10*i
		lv := LocalVariable{
			StartPC:         binary.BigEndian.Uint16(data[off : off+2]),
			Length:          binary.BigEndian.Uint16(data[off+2 : off+4]),
			NameIndex:       binary.BigEndian.Uint16(data[off+4 : off+6]),
			DescriptorIndex: binary.BigEndian.Uint16(data[off+6 : off+8]),
			Index:           binary.BigEndian.Uint16(data[off+8 : off+10]),
		}
		var err error
		if lv.Name, err = GetUtf8(pool, lv.NameIndex); err != nil {
			return nil, fmt.Errorf("entry %d name: %w", i, err)
		}
		if lv.Descriptor, err = GetUtf8(pool, lv.DescriptorIndex); err != nil {
			return nil, fmt.Errorf("entry %d descriptor: %w", i, err)
		}
		vars[i] = lv
	}
	return vars, nil
}

// EncodeLocalVariableTable encodes the body of a LocalVariableTable or
// LocalVariableTypeTable attribute. Only the index fields are written.
func EncodeLocalVariableTable(vars []LocalVariable) []byte {
	buf := make([]byte, 2, 2+10*len(vars))
	binary.BigEndian.PutUint16(buf, uint16(len(vars)))
	for _, v := range vars {
		buf = binary.BigEndian.AppendUint16(buf, v.StartPC)
		buf = binary.BigEndian.AppendUint16(buf, v.Length)
		buf = binary.BigEndian.AppendUint16(buf, v.NameIndex)
		buf = binary.BigEndian.AppendUint16(buf, v.DescriptorIndex)
		buf = binary.BigEndian.AppendUint16(buf, v.Index)
	}
	return buf
}

// EncodeCode encodes the body of a Code attribute.
func EncodeCode(c *CodeAttribute) ([]byte, error) {
	if len(c.Code) == 0 || len(c.Code) > 65535 {
		return nil, fmt.Errorf("invalid code length %d", len(c.Code))
	}
	buf := make([]byte, 0, 12+len(c.Code)+8*len(c.ExceptionHandlers))
	buf = binary.BigEndian.AppendUint16(buf, c.MaxStack)
	buf = binary.BigEndian.AppendUint16(buf, c.MaxLocals)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Code)))
	buf = append(buf, c.Code...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(c.ExceptionHandlers)))
	for _, h := range c.ExceptionHandlers {
		buf = binary.BigEndian.AppendUint16(buf, h.StartPC)
		buf = binary.BigEndian.AppendUint16(buf, h.EndPC)
		buf = binary.BigEndian.AppendUint16(buf, h.HandlerPC)
		buf = binary.BigEndian.AppendUint16(buf, h.CatchType)
	}
	buf = appendAttributes(buf, c.Attributes)
	return buf, nil
}

// SetCode replaces the Code attribute of m with c, keeping its position among
// the method attributes.
func (cf *ClassFile) SetCode(m *MethodInfo, c *CodeAttribute) error {
	data, err := EncodeCode(c)
	if err != nil {
		return fmt.Errorf("encoding Code of %s%s: %w", m.Name, m.Descriptor, err)
	}
	for i := range m.Attributes {
		if m.Attributes[i].Name == AttrCode {
			m.Attributes[i].Data = data
			m.Code = c
			return nil
		}
	}
	m.Attributes = append(m.Attributes, AttributeInfo{NameIndex: cf.AddUtf8(AttrCode), Name: AttrCode, Data: data})
	m.Code = c
	return nil
}

// NewAttribute builds a raw attribute, registering its name in the pool.
func (cf *ClassFile) NewAttribute(name string, data []byte) AttributeInfo {
	return AttributeInfo{NameIndex: cf.AddUtf8(name), Name: name, Data: data}
}

// Verification type tags of the StackMapTable attribute.
const (
	ItemTop               = 0
	ItemInteger           = 1
	ItemFloat             = 2
	ItemDouble            = 3
	ItemLong              = 4
	ItemNull              = 5
	ItemUninitializedThis = 6
	ItemObject            = 7
	ItemUninitialized     = 8
)

// VerificationType is one verification_type_info entry.
type VerificationType struct {
	Tag uint8
	// CPIndex is the Class entry of an ItemObject.
	CPIndex uint16
	// Offset is the allocation site of an ItemUninitialized.
	Offset uint16
}

// StackMapFrame is a frame in expanded form: every frame lists its complete
// locals and stack, with long and double taking a single entry each.
type StackMapFrame struct {
	Offset int
	Locals []VerificationType
	Stack  []VerificationType
}

// EncodeStackMapTable encodes frames (sorted by offset, without the implicit
// initial frame) using the most compact frame type available. initial holds
// the locals of the implicit frame at offset 0.
func EncodeStackMapTable(initial []VerificationType, frames []StackMapFrame) ([]byte, error) {
	buf := binary.BigEndian.AppendUint16(nil, uint16(len(frames)))
	prevLocals := initial
	prevOffset := -1
	for _, f := range frames {
		delta := f.Offset - prevOffset - 1
		if delta < 0 || delta > 65535 {
			return nil, fmt.Errorf("frame at %d out of order", f.Offset)
		}
		buf = appendFrame(buf, delta, prevLocals, f)
		prevLocals = f.Locals
		prevOffset = f.Offset
	}
	return buf, nil
}

func appendFrame(buf []byte, delta int, prev []VerificationType, f StackMapFrame) []byte {
	sameLocals := equalTypes(prev, f.Locals)
	switch {
	case sameLocals && len(f.Stack) == 0:
		if delta < 64 {
			return append(buf, byte(delta))
		}
		buf = append(buf, 251)
		return binary.BigEndian.AppendUint16(buf, uint16(delta))
	case sameLocals && len(f.Stack) == 1:
		if delta < 64 {
			buf = append(buf, byte(64+delta))
		} else {
			buf = append(buf, 247)
			buf = binary.BigEndian.AppendUint16(buf, uint16(delta))
		}
		return appendVerificationType(buf, f.Stack[0])
	case len(f.Stack) == 0 && len(f.Locals) < len(prev) && len(prev)-len(f.Locals) <= 3 &&
		equalTypes(prev[:len(f.Locals)], f.Locals):
		buf = append(buf, byte(251-(len(prev)-len(f.Locals))))
		return binary.BigEndian.AppendUint16(buf, uint16(delta))
	case len(f.Stack) == 0 && len(f.Locals) > len(prev) && len(f.Locals)-len(prev) <= 3 &&
		equalTypes(prev, f.Locals[:len(prev)]):
		buf = append(buf, byte(251+(len(f.Locals)-len(prev))))
		buf = binary.BigEndian.AppendUint16(buf, uint16(delta))
		for _, t := range f.Locals[len(prev):] {
			buf = appendVerificationType(buf, t)
		}
		return buf
	}
	buf = append(buf, 255)
	buf = binary.BigEndian.AppendUint16(buf, uint16(delta))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.Locals)))
	for _, t := range f.Locals {
		buf = appendVerificationType(buf, t)
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.Stack)))
	for _, t := range f.Stack {
		buf = appendVerificationType(buf, t)
	}
	return buf
}

func appendVerificationType(buf []byte, t VerificationType) []byte {
	buf = append(buf, t.Tag)
	switch t.Tag {
	case ItemObject:
		buf = binary.BigEndian.AppendUint16(buf, t.CPIndex)
	case ItemUninitialized:
		buf = binary.BigEndian.AppendUint16(buf, t.Offset)
	}
	return buf
}

func equalTypes(a, b []VerificationType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DecodeStackMapTable expands a StackMapTable body into full frames.
func DecodeStackMapTable(initial []VerificationType, data []byte) ([]StackMapFrame, error) {
	d := &smtDecoder{data: data}
	n := int(d.u16())
	frames := make([]StackMapFrame, 0, n)
	locals := append([]VerificationType(nil), initial...)
	offset := -1
	for i := 0; i < n && d.err == nil; i++ {
		frameType := d.u8()
		var delta int
		var stack []VerificationType
		switch {
		case frameType < 64:
			delta = int(frameType)
		case frameType < 128:
			delta = int(frameType) - 64
			stack = []VerificationType{d.vtype()}
		case frameType == 247:
			delta = int(d.u16())
			stack = []VerificationType{d.vtype()}
		case frameType >= 248 && frameType <= 250:
			delta = int(d.u16())
			k := 251 - int(frameType)
			if k > len(locals) {
				return nil, fmt.Errorf("chop frame %d removes %d of %d locals", i, k, len(locals))
			}
			locals = locals[:len(locals)-k]
		case frameType == 251:
			delta = int(d.u16())
		case frameType >= 252 && frameType <= 254:
			delta = int(d.u16())
			locals = append([]VerificationType(nil), locals...)
			for k := 0; k < int(frameType)-251; k++ {
				locals = append(locals, d.vtype())
			}
		case frameType == 255:
			delta = int(d.u16())
			nl := int(d.u16())
			locals = make([]VerificationType, 0, nl)
			for k := 0; k < nl; k++ {
				locals = append(locals, d.vtype())
			}
			ns := int(d.u16())
			for k := 0; k < ns; k++ {
				stack = append(stack, d.vtype())
			}
		default:
			return nil, fmt.Errorf("reserved frame type %d", frameType)
		}
		offset += delta + 1
		frames = append(frames, StackMapFrame{
			Offset: offset,
			Locals: append([]VerificationType(nil), locals...),
			Stack:  stack,
		})
	}
	if d.err != nil {
		return nil, d.err
	}
	return frames, nil
}

type smtDecoder struct {
	data []byte
	pos  int
	err  error
}

func (d *smtDecoder) u8() uint8 {
	if d.err != nil || d.pos+1 > len(d.data) {
		d.err = fmt.Errorf("StackMapTable truncated at %d", d.pos)
		return 0
	}
	v := d.data[d.pos]
	d.pos++
	return v
}

func (d *smtDecoder) u16() uint16 {
	if d.err != nil || d.pos+2 > len(d.data) {
		d.err = fmt.Errorf("StackMapTable truncated at %d", d.pos)
		return 0
	}
	v := binary.BigEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return v
}

func (d *smtDecoder) vtype() VerificationType {
	t := VerificationType{Tag: d.u8()}
	switch t.Tag {
	case ItemObject:
		t.CPIndex = d.u16()
	case ItemUninitialized:
		t.Offset = d.u16()
	}
	return t
}
