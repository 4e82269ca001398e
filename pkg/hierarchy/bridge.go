// Package hierarchy answers common-superclass queries for stack map frame
// computation.
package hierarchy

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tliron/commonlog"
)

// ObjectClass is the internal name of the universal root type.
const ObjectClass = "java/lang/Object"

var log = commonlog.GetLogger("setip.hierarchy")

// CommonTypeResolver finds the nearest common ancestor of two classes given
// by qualified (dotted) names. ok is false when it cannot tell, for example
// because a class is not loadable.
type CommonTypeResolver interface {
	TryGetCommonType(a, b string) (common string, ok bool)
}

// ResolverFunc adapts a function to CommonTypeResolver.
type ResolverFunc func(a, b string) (string, bool)

func (f ResolverFunc) TryGetCommonType(a, b string) (string, bool) { return f(a, b) }

// DottedName converts an internal name (java/lang/String) to qualified form.
func DottedName(name string) string { return strings.ReplaceAll(name, "/", ".") }

// InternalName converts a qualified name (java.lang.String) to internal form.
func InternalName(name string) string { return strings.ReplaceAll(name, ".", "/") }

type typePair struct{ a, b string }

// bridgeCacheSize bounds the memoized answers of one Bridge.
const bridgeCacheSize = 256

// Bridge answers common-superclass queries over internal names by
// delegating to a CommonTypeResolver. A Bridge memoizes answers and must
// not outlive the transformation it was created for.
type Bridge struct {
	resolver CommonTypeResolver
	memo     *lru.Cache[typePair, string]
	// Queries counts the calls that reached the resolver.
	Queries int
}

// NewBridge creates a Bridge. A nil resolver answers java/lang/Object for
// every pair of distinct classes.
func NewBridge(resolver CommonTypeResolver) *Bridge {
	memo, _ := lru.New[typePair, string](bridgeCacheSize)
	return &Bridge{resolver: resolver, memo: memo}
}

// CommonSuperclass returns the nearest common superclass of two internal
// names. It never fails: unknown answers fall back to java/lang/Object.
func (b *Bridge) CommonSuperclass(type1, type2 string) string {
	if type1 == type2 {
		return type1
	}
	if type1 == ObjectClass {
		return type2
	}
	if type2 == ObjectClass {
		return type1
	}

	key := typePair{type1, type2}
	if common, ok := b.memo.Get(key); ok {
		return common
	}

	common := ObjectClass
	if b.resolver != nil {
		b.Queries++
		if fq, ok := b.resolver.TryGetCommonType(DottedName(type1), DottedName(type2)); ok && fq != "" {
			common = InternalName(fq)
		} else {
			log.Debugf("no common superclass for %s and %s, using %s", type1, type2, ObjectClass)
		}
	}
	b.memo.Add(key, common)
	return common
}
