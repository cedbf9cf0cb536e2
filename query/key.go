package query

import (
	"fmt"
	"hash/maphash"
	"reflect"
	"time"

	"github.com/IvanBrykalov/querycache/internal/util"
)

// identity is the comparable part of a capability. typ scopes declared
// identities so that two capability types returning the same Identity()
// never share entries.
type identity struct {
	typ reflect.Type
	id  any
}

func identityOf(c any) identity {
	typ := reflect.TypeOf(c)
	if typ == nil {
		panic("query: nil capability")
	}
	if ider, ok := c.(Identifier); ok {
		id := ider.Identity()
		if id != nil && !reflect.TypeOf(id).Comparable() {
			panic(fmt.Sprintf("query: %s.Identity() returned non-comparable %T", typ, id))
		}
		return identity{typ: typ, id: id}
	}
	return identity{typ: typ}
}

func (i identity) String() string {
	if i.id == nil {
		return i.typ.String()
	}
	return fmt.Sprintf("%s(%v)", i.typ, i.id)
}

// fingerprint is the part of the registration settings that participates in
// entry identity. The revalidation interval is deliberately absent: it is a
// per-subscriber hint, and subscribers with different intervals share one entry.
type fingerprint struct {
	stale    time.Duration
	clean    time.Duration
	disabled bool
}

// CacheKey indexes one shared entry: capability identity, argument key and
// policy fingerprint. The capability value itself (the payload, with its
// captured dependencies) is stored in the entry, not in the key.
type CacheKey[K comparable] struct {
	ident    identity
	key      K
	fp       fingerprint
	mutation bool
}

func newCacheKey[K comparable](c any, key K, s settings) CacheKey[K] {
	return CacheKey[K]{
		ident: identityOf(c),
		key:   key,
		fp:    s.fingerprint(),
	}
}

// Key returns the argument key.
func (k CacheKey[K]) Key() K { return k.key }

func (k CacheKey[K]) String() string {
	if k.mutation {
		return k.ident.String()
	}
	return fmt.Sprintf("%s[%v]", k.ident, k.key)
}

func (k CacheKey[K]) hash(seed maphash.Seed) uint64 {
	var disabled uint64
	if k.fp.disabled {
		disabled = 1
	}
	return util.Mix(
		util.Hash(seed, k.ident),
		util.Hash(seed, k.key),
		uint64(k.fp.stale),
		uint64(k.fp.clean),
		disabled,
	)
}

// Composite is implemented by keys made of several parts, so that
// Registry.InvalidateKeys can address every entry whose key contains a set
// of parts. Pair and Triple are ready-made comparable composites.
type Composite interface {
	Parts() []any
}

// Pair is a two-part composite key.
type Pair[A, B comparable] struct {
	First  A
	Second B
}

// Parts implements Composite.
func (p Pair[A, B]) Parts() []any { return []any{p.First, p.Second} }

// Triple is a three-part composite key.
type Triple[A, B, C comparable] struct {
	First  A
	Second B
	Third  C
}

// Parts implements Composite.
func (t Triple[A, B, C]) Parts() []any { return []any{t.First, t.Second, t.Third} }

// containsAll reports whether every part is contained in key: equal to it,
// or equal to one of its parts when key is Composite. An empty parts list
// matches every key.
func containsAll[K comparable](key K, parts []any) bool {
	for _, p := range parts {
		if !contains(key, p) {
			return false
		}
	}
	return true
}

func contains[K comparable](key K, part any) bool {
	k := any(key)
	if k == part {
		return true
	}
	if c, ok := k.(Composite); ok {
		for _, kp := range c.Parts() {
			if kp == part {
				return true
			}
		}
	}
	return false
}
