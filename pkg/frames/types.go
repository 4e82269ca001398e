// Package frames infers verifier types of locals and operand stack entries
// and produces StackMapTable attributes from them.
package frames

import (
	"fmt"
	"strings"
)

// ObjectClass is the root of the class hierarchy.
const ObjectClass = "java/lang/Object"

// Kind is the verifier category of a value.
type Kind uint8

const (
	KindTop Kind = iota
	KindInt
	KindFloat
	KindLong
	KindDouble
	KindNull
	KindUninitializedThis
	KindUninitialized
	KindReference
	KindReturnAddress
)

func (k Kind) String() string {
	switch k {
	case KindTop:
		return "top"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindNull:
		return "null"
	case KindUninitializedThis:
		return "uninitializedThis"
	case KindUninitialized:
		return "uninitialized"
	case KindReference:
		return "reference"
	case KindReturnAddress:
		return "returnAddress"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Type is a verification type.
type Type struct {
	Kind Kind
	// Name is the internal class name, or the descriptor of an array type.
	Name string
	// Offset is the allocating new instruction of an uninitialized object.
	Offset int
}

var (
	Top    = Type{Kind: KindTop}
	Int    = Type{Kind: KindInt}
	Float  = Type{Kind: KindFloat}
	Long   = Type{Kind: KindLong}
	Double = Type{Kind: KindDouble}
	Null   = Type{Kind: KindNull}
)

// Ref returns the reference type of an internal class name or array descriptor.
func Ref(name string) Type {
	return Type{Kind: KindReference, Name: name}
}

func (t Type) String() string {
	switch t.Kind {
	case KindReference:
		return t.Name
	case KindUninitialized:
		return fmt.Sprintf("uninitialized(%d)", t.Offset)
	}
	return t.Kind.String()
}

// Size returns the number of slots the value takes.
func (t Type) Size() int {
	if t.Kind == KindLong || t.Kind == KindDouble {
		return 2
	}
	return 1
}

// IsReference reports whether t is a reference, null included.
func (t Type) IsReference() bool {
	return t.Kind == KindReference || t.Kind == KindNull
}

// IsUninitialized reports whether t is an object under construction.
func (t Type) IsUninitialized() bool {
	return t.Kind == KindUninitialized || t.Kind == KindUninitializedThis
}

// FromDescriptor returns the verification type of a field descriptor.
// boolean, byte, char and short are ints for the verifier.
func FromDescriptor(desc string) (Type, error) {
	if desc == "" {
		return Top, fmt.Errorf("empty descriptor")
	}
	switch desc[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		return Int, nil
	case 'F':
		return Float, nil
	case 'J':
		return Long, nil
	case 'D':
		return Double, nil
	case 'L':
		if !strings.HasSuffix(desc, ";") {
			return Top, fmt.Errorf("bad class descriptor %q", desc)
		}
		return Ref(desc[1 : len(desc)-1]), nil
	case '[':
		return Ref(desc), nil
	}
	return Top, fmt.Errorf("bad descriptor %q", desc)
}

// descriptorOf returns the field descriptor of a reference type name.
func descriptorOf(name string) string {
	if strings.HasPrefix(name, "[") {
		return name
	}
	return "L" + name + ";"
}

// CommonSuperclassFunc answers the nearest common superclass of two internal
// class names. It is consulted only for distinct non-array classes.
type CommonSuperclassFunc func(a, b string) string

// ObjectFallback merges every pair of distinct classes to java/lang/Object.
func ObjectFallback(a, b string) string {
	return ObjectClass
}

// Merge returns the least type both a and b are assignable to, or Top.
func Merge(a, b Type, common CommonSuperclassFunc) Type {
	if a == b {
		return a
	}
	switch {
	case a.Kind == KindNull && b.Kind == KindReference:
		return b
	case b.Kind == KindNull && a.Kind == KindReference:
		return a
	case a.Kind == KindReference && b.Kind == KindReference:
		return Ref(mergeReferences(a.Name, b.Name, common))
	}
	return Top
}

func mergeReferences(a, b string, common CommonSuperclassFunc) string {
	if a == b {
		return a
	}
	aArray, bArray := strings.HasPrefix(a, "["), strings.HasPrefix(b, "[")
	switch {
	case aArray && bArray:
		ea, eb := a[1:], b[1:]
		if isReferenceDescriptor(ea) && isReferenceDescriptor(eb) {
			ta, _ := FromDescriptor(ea)
			tb, _ := FromDescriptor(eb)
			return "[" + descriptorOf(mergeReferences(ta.Name, tb.Name, common))
		}
		return ObjectClass
	case aArray || bArray:
		return ObjectClass
	}
	if a == ObjectClass || b == ObjectClass {
		return ObjectClass
	}
	if common == nil {
		return ObjectClass
	}
	return common(a, b)
}

func isReferenceDescriptor(desc string) bool {
	return strings.HasPrefix(desc, "L") || strings.HasPrefix(desc, "[")
}
