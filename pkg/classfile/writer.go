package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Bytes serializes the class file.
func (cf *ClassFile) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := cf.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write serializes the class file to w. Methods and fields are written from
// their raw attributes; a modified Code must be stored with SetCode first.
func (cf *ClassFile) Write(w io.Writer) error {
	if len(cf.ConstantPool) > 65535 {
		return fmt.Errorf("constant pool too large: %d entries", len(cf.ConstantPool))
	}
	buf := binary.BigEndian.AppendUint32(nil, classMagic)
	buf = binary.BigEndian.AppendUint16(buf, cf.MinorVersion)
	buf = binary.BigEndian.AppendUint16(buf, cf.MajorVersion)

	pool := cf.ConstantPool
	if len(pool) == 0 {
		pool = []ConstantPoolEntry{nil}
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(pool)))
	for i := 1; i < len(pool); i++ {
		e := pool[i]
		if e == nil {
			// second slot of a long or double
			continue
		}
		var err error
		if buf, err = appendConstant(buf, e); err != nil {
			return fmt.Errorf("writing constant %d: %w", i, err)
		}
	}

	buf = binary.BigEndian.AppendUint16(buf, cf.AccessFlags)
	buf = binary.BigEndian.AppendUint16(buf, cf.ThisClass)
	buf = binary.BigEndian.AppendUint16(buf, cf.SuperClass)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(cf.Interfaces)))
	for _, iface := range cf.Interfaces {
		buf = binary.BigEndian.AppendUint16(buf, iface)
	}

	buf = binary.BigEndian.AppendUint16(buf, uint16(len(cf.Fields)))
	for _, f := range cf.Fields {
		buf = binary.BigEndian.AppendUint16(buf, f.AccessFlags)
		buf = binary.BigEndian.AppendUint16(buf, f.NameIndex)
		buf = binary.BigEndian.AppendUint16(buf, f.DescriptorIndex)
		buf = appendAttributes(buf, f.Attributes)
	}

	buf = binary.BigEndian.AppendUint16(buf, uint16(len(cf.Methods)))
	for _, m := range cf.Methods {
		buf = binary.BigEndian.AppendUint16(buf, m.AccessFlags)
		buf = binary.BigEndian.AppendUint16(buf, m.NameIndex)
		buf = binary.BigEndian.AppendUint16(buf, m.DescriptorIndex)
		buf = appendAttributes(buf, m.Attributes)
	}

	buf = appendAttributes(buf, cf.Attributes)

	_, err := w.Write(buf)
	return err
}

func appendAttributes(buf []byte, attrs []AttributeInfo) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(attrs)))
	for _, a := range attrs {
		buf = binary.BigEndian.AppendUint16(buf, a.NameIndex)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(a.Data)))
		buf = append(buf, a.Data...)
	}
	return buf
}

func appendConstant(buf []byte, e ConstantPoolEntry) ([]byte, error) {
	buf = append(buf, e.Tag())
	switch c := e.(type) {
	case *ConstantUtf8:
		if len(c.Value) > 65535 {
			return nil, fmt.Errorf("Utf8 constant too long: %d bytes", len(c.Value))
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(c.Value)))
		buf = append(buf, c.Value...)
	case *ConstantInteger:
		buf = binary.BigEndian.AppendUint32(buf, uint32(c.Value))
	case *ConstantFloat:
		buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(c.Value))
	case *ConstantLong:
		buf = binary.BigEndian.AppendUint64(buf, uint64(c.Value))
	case *ConstantDouble:
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(c.Value))
	case *ConstantClass:
		buf = binary.BigEndian.AppendUint16(buf, c.NameIndex)
	case *ConstantString:
		buf = binary.BigEndian.AppendUint16(buf, c.StringIndex)
	case *ConstantFieldref:
		buf = binary.BigEndian.AppendUint16(buf, c.ClassIndex)
		buf = binary.BigEndian.AppendUint16(buf, c.NameAndTypeIndex)
	case *ConstantMethodref:
		buf = binary.BigEndian.AppendUint16(buf, c.ClassIndex)
		buf = binary.BigEndian.AppendUint16(buf, c.NameAndTypeIndex)
	case *ConstantInterfaceMethodref:
		buf = binary.BigEndian.AppendUint16(buf, c.ClassIndex)
		buf = binary.BigEndian.AppendUint16(buf, c.NameAndTypeIndex)
	case *ConstantNameAndType:
		buf = binary.BigEndian.AppendUint16(buf, c.NameIndex)
		buf = binary.BigEndian.AppendUint16(buf, c.DescriptorIndex)
	case *ConstantMethodHandle:
		buf = append(buf, c.ReferenceKind)
		buf = binary.BigEndian.AppendUint16(buf, c.ReferenceIndex)
	case *ConstantMethodType:
		buf = binary.BigEndian.AppendUint16(buf, c.DescriptorIndex)
	case *ConstantDynamic:
		buf = binary.BigEndian.AppendUint16(buf, c.BootstrapMethodAttrIndex)
		buf = binary.BigEndian.AppendUint16(buf, c.NameAndTypeIndex)
	case *ConstantModule:
		buf = binary.BigEndian.AppendUint16(buf, c.NameIndex)
	default:
		return nil, fmt.Errorf("unsupported constant type %T", e)
	}
	return buf, nil
}
