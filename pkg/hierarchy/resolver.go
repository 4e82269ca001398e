package hierarchy

import (
	"github.com/daimatz/setip/pkg/classfile"
)

// ClassPathResolver answers common type queries by walking superclass
// chains of classes obtained from a ClassLoader.
type ClassPathResolver struct {
	Loader ClassLoader
}

// NewClassPathResolver creates a resolver over loader.
func NewClassPathResolver(loader ClassLoader) *ClassPathResolver {
	return &ClassPathResolver{Loader: loader}
}

// TryGetCommonType implements CommonTypeResolver over dotted names.
func (r *ClassPathResolver) TryGetCommonType(a, b string) (string, bool) {
	ca, err := r.Loader.LoadClass(InternalName(a))
	if err != nil {
		log.Debugf("loading %s: %s", a, err)
		return "", false
	}
	cb, err := r.Loader.LoadClass(InternalName(b))
	if err != nil {
		log.Debugf("loading %s: %s", b, err)
		return "", false
	}
	if ca.IsInterface() || cb.IsInterface() {
		return DottedName(ObjectClass), true
	}

	chainA, ok := r.superChain(InternalName(a), ca)
	if !ok {
		return "", false
	}
	seen := make(map[string]bool, len(chainA))
	for _, name := range chainA {
		seen[name] = true
	}
	chainB, ok := r.superChain(InternalName(b), cb)
	if !ok {
		return "", false
	}
	for _, name := range chainB {
		if seen[name] {
			return DottedName(name), true
		}
	}
	return DottedName(ObjectClass), true
}

// superChain lists name and its superclasses up to java/lang/Object.
func (r *ClassPathResolver) superChain(name string, cf *classfile.ClassFile) ([]string, bool) {
	chain := []string{name}
	for {
		super := cf.SuperClassName()
		if super == "" {
			return chain, true
		}
		chain = append(chain, super)
		if super == ObjectClass {
			return chain, true
		}
		next, err := r.Loader.LoadClass(super)
		if err != nil {
			log.Debugf("loading superclass %s of %s: %s", super, name, err)
			return nil, false
		}
		if len(chain) > 1024 {
			return nil, false
		}
		cf = next
	}
}
