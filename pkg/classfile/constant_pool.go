package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Constant pool tags
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

// parseConstantPool reads constant_pool_count-1 entries from the reader.
// The returned slice is 1-indexed: index 0 is nil, and so is the slot
// following every Long and Double.
func parseConstantPool(r io.Reader, count uint16) ([]ConstantPoolEntry, error) {
	pool := make([]ConstantPoolEntry, count)

	for i := uint16(1); i < count; i++ {
		var tag uint8
		if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
			return nil, fmt.Errorf("reading constant pool tag at index %d: %w", i, err)
		}

		switch tag {
		case TagUtf8:
			var length uint16
			if err := binary.Read(r, binary.BigEndian, &length); err != nil {
				return nil, fmt.Errorf("reading Utf8 length at index %d: %w", i, err)
			}
			bytes := make([]byte, length)
			if _, err := io.ReadFull(r, bytes); err != nil {
				return nil, fmt.Errorf("reading Utf8 bytes at index %d: %w", i, err)
			}
			pool[i] = &ConstantUtf8{Value: string(bytes)}

		case TagInteger:
			var val int32
			if err := binary.Read(r, binary.BigEndian, &val); err != nil {
				return nil, fmt.Errorf("reading Integer at index %d: %w", i, err)
			}
			pool[i] = &ConstantInteger{Value: val}

		case TagFloat:
			var bits uint32
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, fmt.Errorf("reading Float at index %d: %w", i, err)
			}
			pool[i] = &ConstantFloat{Value: math.Float32frombits(bits)}

		case TagLong:
			var val int64
			if err := binary.Read(r, binary.BigEndian, &val); err != nil {
				return nil, fmt.Errorf("reading Long at index %d: %w", i, err)
			}
			pool[i] = &ConstantLong{Value: val}
			i++ // long takes 2 slots

		case TagDouble:
			var bits uint64
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, fmt.Errorf("reading Double at index %d: %w", i, err)
			}
			pool[i] = &ConstantDouble{Value: math.Float64frombits(bits)}
			i++ // double takes 2 slots

		case TagClass:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, fmt.Errorf("reading Class at index %d: %w", i, err)
			}
			pool[i] = &ConstantClass{NameIndex: nameIndex}

		case TagString:
			var stringIndex uint16
			if err := binary.Read(r, binary.BigEndian, &stringIndex); err != nil {
				return nil, fmt.Errorf("reading String at index %d: %w", i, err)
			}
			pool[i] = &ConstantString{StringIndex: stringIndex}

		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			var classIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &classIndex); err != nil {
				return nil, fmt.Errorf("reading ref class_index at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, fmt.Errorf("reading ref name_and_type_index at index %d: %w", i, err)
			}
			switch tag {
			case TagFieldref:
				pool[i] = &ConstantFieldref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}
			case TagMethodref:
				pool[i] = &ConstantMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}
			default:
				pool[i] = &ConstantInterfaceMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}
			}

		case TagNameAndType:
			var nameIndex, descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, fmt.Errorf("reading NameAndType name_index at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, fmt.Errorf("reading NameAndType descriptor_index at index %d: %w", i, err)
			}
			pool[i] = &ConstantNameAndType{NameIndex: nameIndex, DescriptorIndex: descIndex}

		case TagMethodHandle:
			var kind uint8
			var refIndex uint16
			if err := binary.Read(r, binary.BigEndian, &kind); err != nil {
				return nil, fmt.Errorf("reading MethodHandle kind at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &refIndex); err != nil {
				return nil, fmt.Errorf("reading MethodHandle reference at index %d: %w", i, err)
			}
			pool[i] = &ConstantMethodHandle{ReferenceKind: kind, ReferenceIndex: refIndex}

		case TagMethodType:
			var descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, fmt.Errorf("reading MethodType at index %d: %w", i, err)
			}
			pool[i] = &ConstantMethodType{DescriptorIndex: descIndex}

		case TagDynamic, TagInvokeDynamic:
			var bsmIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &bsmIndex); err != nil {
				return nil, fmt.Errorf("reading Dynamic bootstrap index at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, fmt.Errorf("reading Dynamic name_and_type_index at index %d: %w", i, err)
			}
			pool[i] = &ConstantDynamic{Kind: tag, BootstrapMethodAttrIndex: bsmIndex, NameAndTypeIndex: natIndex}

		case TagModule, TagPackage:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, fmt.Errorf("reading Module/Package at index %d: %w", i, err)
			}
			pool[i] = &ConstantModule{Kind: tag, NameIndex: nameIndex}

		default:
			return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
	}

	return pool, nil
}

// GetUtf8 returns the Utf8 string at the given constant pool index.
func GetUtf8(pool []ConstantPoolEntry, index uint16) (string, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", fmt.Errorf("invalid constant pool index %d", index)
	}
	utf8, ok := pool[index].(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Utf8 (tag=%d)", index, pool[index].Tag())
	}
	return utf8.Value, nil
}

// GetClassName returns the class name referenced by a CONSTANT_Class entry.
func GetClassName(pool []ConstantPoolEntry, classIndex uint16) (string, error) {
	if int(classIndex) >= len(pool) || pool[classIndex] == nil {
		return "", fmt.Errorf("invalid constant pool index %d", classIndex)
	}
	class, ok := pool[classIndex].(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class", classIndex)
	}
	return GetUtf8(pool, class.NameIndex)
}

// MemberRefInfo holds a resolved field, method or interface method reference.
type MemberRefInfo struct {
	ClassName  string
	Name       string
	Descriptor string
}

// ResolveMemberRef resolves a Fieldref, Methodref or InterfaceMethodref entry.
func ResolveMemberRef(pool []ConstantPoolEntry, index uint16) (*MemberRefInfo, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	var classIndex, natIndex uint16
	switch ref := pool[index].(type) {
	case *ConstantFieldref:
		classIndex, natIndex = ref.ClassIndex, ref.NameAndTypeIndex
	case *ConstantMethodref:
		classIndex, natIndex = ref.ClassIndex, ref.NameAndTypeIndex
	case *ConstantInterfaceMethodref:
		classIndex, natIndex = ref.ClassIndex, ref.NameAndTypeIndex
	default:
		return nil, fmt.Errorf("constant pool index %d is not a member reference (tag=%d)", index, pool[index].Tag())
	}

	className, err := GetClassName(pool, classIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving member class: %w", err)
	}
	name, desc, err := ResolveNameAndType(pool, natIndex)
	if err != nil {
		return nil, err
	}
	return &MemberRefInfo{ClassName: className, Name: name, Descriptor: desc}, nil
}

// ResolveNameAndType resolves a CONSTANT_NameAndType entry.
func ResolveNameAndType(pool []ConstantPoolEntry, index uint16) (string, string, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", "", fmt.Errorf("invalid NameAndType index %d", index)
	}
	nat, ok := pool[index].(*ConstantNameAndType)
	if !ok {
		return "", "", fmt.Errorf("constant pool index %d is not NameAndType", index)
	}
	name, err := GetUtf8(pool, nat.NameIndex)
	if err != nil {
		return "", "", fmt.Errorf("resolving name: %w", err)
	}
	desc, err := GetUtf8(pool, nat.DescriptorIndex)
	if err != nil {
		return "", "", fmt.Errorf("resolving descriptor: %w", err)
	}
	return name, desc, nil
}

// ResolveDynamic resolves the name and descriptor of a CONSTANT_Dynamic or
// CONSTANT_InvokeDynamic entry.
func ResolveDynamic(pool []ConstantPoolEntry, index uint16) (string, string, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", "", fmt.Errorf("invalid constant pool index %d", index)
	}
	dyn, ok := pool[index].(*ConstantDynamic)
	if !ok {
		return "", "", fmt.Errorf("constant pool index %d is not Dynamic", index)
	}
	return ResolveNameAndType(pool, dyn.NameAndTypeIndex)
}

// AddUtf8 returns the index of a Utf8 entry holding s, appending one if needed.
func (cf *ClassFile) AddUtf8(s string) uint16 {
	for i, e := range cf.ConstantPool {
		if u, ok := e.(*ConstantUtf8); ok && u.Value == s {
			return uint16(i)
		}
	}
	return cf.appendConstant(&ConstantUtf8{Value: s})
}

// AddClass returns the index of a Class entry naming the given internal name.
func (cf *ClassFile) AddClass(name string) uint16 {
	nameIndex := cf.AddUtf8(name)
	for i, e := range cf.ConstantPool {
		if c, ok := e.(*ConstantClass); ok && c.NameIndex == nameIndex {
			return uint16(i)
		}
	}
	return cf.appendConstant(&ConstantClass{NameIndex: nameIndex})
}

// AddNameAndType returns the index of a NameAndType entry.
func (cf *ClassFile) AddNameAndType(name, desc string) uint16 {
	n, d := cf.AddUtf8(name), cf.AddUtf8(desc)
	for i, e := range cf.ConstantPool {
		if nat, ok := e.(*ConstantNameAndType); ok && nat.NameIndex == n && nat.DescriptorIndex == d {
			return uint16(i)
		}
	}
	return cf.appendConstant(&ConstantNameAndType{NameIndex: n, DescriptorIndex: d})
}

// AddMethodref returns the index of a Methodref entry.
func (cf *ClassFile) AddMethodref(class, name, desc string) uint16 {
	c, nat := cf.AddClass(class), cf.AddNameAndType(name, desc)
	for i, e := range cf.ConstantPool {
		if m, ok := e.(*ConstantMethodref); ok && m.ClassIndex == c && m.NameAndTypeIndex == nat {
			return uint16(i)
		}
	}
	return cf.appendConstant(&ConstantMethodref{ClassIndex: c, NameAndTypeIndex: nat})
}

// AddFieldref returns the index of a Fieldref entry.
func (cf *ClassFile) AddFieldref(class, name, desc string) uint16 {
	c, nat := cf.AddClass(class), cf.AddNameAndType(name, desc)
	for i, e := range cf.ConstantPool {
		if f, ok := e.(*ConstantFieldref); ok && f.ClassIndex == c && f.NameAndTypeIndex == nat {
			return uint16(i)
		}
	}
	return cf.appendConstant(&ConstantFieldref{ClassIndex: c, NameAndTypeIndex: nat})
}

// AddString returns the index of a String entry.
func (cf *ClassFile) AddString(s string) uint16 {
	u := cf.AddUtf8(s)
	for i, e := range cf.ConstantPool {
		if c, ok := e.(*ConstantString); ok && c.StringIndex == u {
			return uint16(i)
		}
	}
	return cf.appendConstant(&ConstantString{StringIndex: u})
}

func (cf *ClassFile) appendConstant(e ConstantPoolEntry) uint16 {
	if len(cf.ConstantPool) == 0 {
		cf.ConstantPool = append(cf.ConstantPool, nil)
	}
	cf.ConstantPool = append(cf.ConstantPool, e)
	return uint16(len(cf.ConstantPool) - 1)
}
