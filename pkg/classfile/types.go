package classfile

// Access flags
const (
	AccPublic    = 0x0001
	AccPrivate   = 0x0002
	AccStatic    = 0x0008
	AccSuper     = 0x0020
	AccNative    = 0x0100
	AccInterface = 0x0200
	AccAbstract  = 0x0400
)

// Attribute names used by the module.
const (
	AttrCode                            = "Code"
	AttrLineNumberTable                 = "LineNumberTable"
	AttrLocalVariableTable              = "LocalVariableTable"
	AttrLocalVariableTypeTable          = "LocalVariableTypeTable"
	AttrStackMapTable                   = "StackMapTable"
	AttrSignature                       = "Signature"
	AttrSourceDebugExtension            = "SourceDebugExtension"
	AttrRuntimeVisibleTypeAnnotations   = "RuntimeVisibleTypeAnnotations"
	AttrRuntimeInvisibleTypeAnnotations = "RuntimeInvisibleTypeAnnotations"
)

// ClassFile represents a parsed .class file.
// Every attribute is kept raw so that Write reproduces the input byte for byte.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool []ConstantPoolEntry
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []FieldInfo
	Methods      []MethodInfo
	Attributes   []AttributeInfo
}

// SuperClassName returns the fully qualified name of the super class.
// Returns "" if this is java/lang/Object (SuperClass == 0).
func (cf *ClassFile) SuperClassName() string {
	if cf.SuperClass == 0 {
		return ""
	}
	name, err := GetClassName(cf.ConstantPool, cf.SuperClass)
	if err != nil {
		return ""
	}
	return name
}

// IsInterface reports whether the class is an interface.
func (cf *ClassFile) IsInterface() bool {
	return cf.AccessFlags&AccInterface != 0
}

// SourceDebugExtension returns the SourceDebugExtension attribute (e.g. an SMAP
// written by the Kotlin compiler) or nil when the class carries none.
func (cf *ClassFile) SourceDebugExtension() *string {
	var found *string
	for _, attr := range cf.Attributes {
		if attr.Name == AttrSourceDebugExtension {
			s := string(attr.Data)
			found = &s
		}
	}
	return found
}

// ConstantPoolEntry is an interface implemented by all constant pool types.
type ConstantPoolEntry interface {
	Tag() uint8
}

type ConstantUtf8 struct {
	Value string
}

func (c *ConstantUtf8) Tag() uint8 { return TagUtf8 }

type ConstantInteger struct {
	Value int32
}

func (c *ConstantInteger) Tag() uint8 { return TagInteger }

type ConstantFloat struct {
	Value float32
}

func (c *ConstantFloat) Tag() uint8 { return TagFloat }

type ConstantLong struct {
	Value int64
}

func (c *ConstantLong) Tag() uint8 { return TagLong }

type ConstantDouble struct {
	Value float64
}

func (c *ConstantDouble) Tag() uint8 { return TagDouble }

type ConstantClass struct {
	NameIndex uint16
}

func (c *ConstantClass) Tag() uint8 { return TagClass }

type ConstantString struct {
	StringIndex uint16
}

func (c *ConstantString) Tag() uint8 { return TagString }

type ConstantFieldref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantFieldref) Tag() uint8 { return TagFieldref }

type ConstantMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantMethodref) Tag() uint8 { return TagMethodref }

type ConstantInterfaceMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantInterfaceMethodref) Tag() uint8 { return TagInterfaceMethodref }

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (c *ConstantNameAndType) Tag() uint8 { return TagNameAndType }

type ConstantMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

func (c *ConstantMethodHandle) Tag() uint8 { return TagMethodHandle }

type ConstantMethodType struct {
	DescriptorIndex uint16
}

func (c *ConstantMethodType) Tag() uint8 { return TagMethodType }

// ConstantDynamic covers both CONSTANT_Dynamic and CONSTANT_InvokeDynamic.
type ConstantDynamic struct {
	Kind                     uint8
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantDynamic) Tag() uint8 { return c.Kind }

// ConstantModule covers both CONSTANT_Module and CONSTANT_Package.
type ConstantModule struct {
	Kind      uint8
	NameIndex uint16
}

func (c *ConstantModule) Tag() uint8 { return c.Kind }

// MethodInfo represents a method in a class file.
type MethodInfo struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Name            string
	Descriptor      string
	Attributes      []AttributeInfo
	Code            *CodeAttribute
}

// IsStatic reports whether the method has no receiver.
func (m *MethodInfo) IsStatic() bool {
	return m.AccessFlags&AccStatic != 0
}

// Signature returns the generic signature of the method, or nil.
func (m *MethodInfo) Signature(pool []ConstantPoolEntry) *string {
	for _, attr := range m.Attributes {
		if attr.Name != AttrSignature || len(attr.Data) != 2 {
			continue
		}
		sig, err := GetUtf8(pool, uint16(attr.Data[0])<<8|uint16(attr.Data[1]))
		if err != nil {
			return nil
		}
		return &sig
	}
	return nil
}

// FieldInfo represents a field in a class file.
type FieldInfo struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Name            string
	Descriptor      string
	Attributes      []AttributeInfo
}

// AttributeInfo represents a raw attribute.
type AttributeInfo struct {
	NameIndex uint16
	Name      string
	Data      []byte
}

// ExceptionHandler represents an entry in the exception table.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// CodeAttribute represents the Code attribute of a method.
type CodeAttribute struct {
	MaxStack          uint16
	MaxLocals         uint16
	Code              []byte
	ExceptionHandlers []ExceptionHandler
	Attributes        []AttributeInfo
}

// Attribute returns the first sub-attribute with the given name.
func (c *CodeAttribute) Attribute(name string) *AttributeInfo {
	for i := range c.Attributes {
		if c.Attributes[i].Name == name {
			return &c.Attributes[i]
		}
	}
	return nil
}

// LineNumber is one LineNumberTable entry.
type LineNumber struct {
	StartPC    uint16
	LineNumber uint16
}

// LocalVariable is one LocalVariableTable (or LocalVariableTypeTable) entry.
// For the type table Descriptor holds the generic signature.
type LocalVariable struct {
	StartPC         uint16
	Length          uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Index           uint16
	Name            string
	Descriptor      string
}

// Covers reports whether pc lies inside the variable's live range.
func (lv LocalVariable) Covers(pc int) bool {
	return pc >= int(lv.StartPC) && pc < int(lv.StartPC)+int(lv.Length)
}
