// Package setip finds the source lines of a compiled method that execution
// can be moved to, and rewrites the method so that entering it jumps to a
// chosen line with its locals initialized.
package setip

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/daimatz/setip/pkg/classfile"
	"github.com/daimatz/setip/pkg/hierarchy"
)

var log = commonlog.GetLogger("setip")

var (
	// ErrMethodNotFound is returned when no method of the class matches the
	// requested identity.
	ErrMethodNotFound = errors.New("method not found")
	// ErrNoViableTarget is returned when no line of the method can be
	// jumped to.
	ErrNoViableTarget = errors.New("no viable target line")
	// ErrStaleTarget is returned when a target found by discovery no longer
	// matches the class being transformed.
	ErrStaleTarget = errors.New("stale target")
	// ErrUntransformable is returned for code the analyses cannot handle.
	ErrUntransformable = errors.New("method cannot be transformed")
)

// MethodName identifies the requested method. Signature is the erased
// descriptor; GenericSignature is the source level signature, if known.
type MethodName struct {
	Name             string  `cbor:"name"`
	Signature        string  `cbor:"signature"`
	GenericSignature *string `cbor:"genericSignature,omitempty"`
}

// Matches reports whether a method with the given name, descriptor and
// optional Signature attribute is the requested one.
func (m MethodName) Matches(name, descriptor string, signature *string) bool {
	if name != m.Name {
		return false
	}
	if m.Signature == descriptor || (signature != nil && m.Signature == *signature) {
		return true
	}
	if m.GenericSignature != nil {
		g := *m.GenericSignature
		return g == descriptor || (signature != nil && g == *signature)
	}
	return false
}

func (m MethodName) String() string {
	return m.Name + m.Signature
}

// methodContext is a parsed class and the matched method.
type methodContext struct {
	class  *classfile.ClassFile
	owner  string
	method *classfile.MethodInfo
}

// findMethod parses class and locates method in it. An owner that names a
// different class is treated as a missing method.
func findMethod(owner string, method MethodName, class []byte) (*methodContext, error) {
	cf, err := classfile.ParseBytes(class)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing class: %w", ErrUntransformable, err)
	}
	name, err := cf.ClassName()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUntransformable, err)
	}
	if owner != "" && hierarchy.InternalName(owner) != name {
		log.Debugf("class %s does not match owner %s", name, owner)
		return nil, ErrMethodNotFound
	}
	m := cf.FindMethodFunc(func(m *classfile.MethodInfo) bool {
		return method.Matches(m.Name, m.Descriptor, m.Signature(cf.ConstantPool))
	})
	if m == nil {
		return nil, ErrMethodNotFound
	}
	return &methodContext{class: cf, owner: name, method: m}, nil
}
