package classfile

import "fmt"

// DefaultMajorVersion is the class version used by New (Java 8).
const DefaultMajorVersion = 52

// New creates an empty public class with the given internal name and super class.
func New(name, super string) *ClassFile {
	cf := &ClassFile{
		MajorVersion: DefaultMajorVersion,
		ConstantPool: []ConstantPoolEntry{nil},
		AccessFlags:  AccPublic | AccSuper,
	}
	cf.ThisClass = cf.AddClass(name)
	if super != "" {
		cf.SuperClass = cf.AddClass(super)
	}
	return cf
}

// AddMethod appends a method. A nil code creates an abstract or native method.
func (cf *ClassFile) AddMethod(access uint16, name, desc string, code *CodeAttribute) (*MethodInfo, error) {
	cf.Methods = append(cf.Methods, MethodInfo{
		AccessFlags:     access,
		NameIndex:       cf.AddUtf8(name),
		DescriptorIndex: cf.AddUtf8(desc),
		Name:            name,
		Descriptor:      desc,
	})
	m := &cf.Methods[len(cf.Methods)-1]
	if code == nil {
		return m, nil
	}
	if err := cf.SetCode(m, code); err != nil {
		return nil, fmt.Errorf("adding method %s: %w", name, err)
	}
	return m, nil
}

// SetSignature attaches a generic Signature attribute to m.
func (cf *ClassFile) SetSignature(m *MethodInfo, signature string) {
	idx := cf.AddUtf8(signature)
	m.Attributes = append(m.Attributes, cf.NewAttribute(AttrSignature, []byte{byte(idx >> 8), byte(idx)}))
}
