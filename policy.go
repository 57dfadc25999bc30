package keymap

import (
	"strings"

	"github.com/homier/keymap/hashtable"
)

// KeyPolicy binds a raw key type K to its comparison form L.
//
// Besides the hashing and equality the engine needs, it turns a raw key
// into its comparison form (Lookup), turns a comparison key into the owned
// key kept in the table (Own) and tells how many payload bytes a stored key
// is charged (Charge). Implementations are stateless and zero-sized.
type KeyPolicy[K, L any] interface {
	hashtable.Policy[L, K]

	Lookup(key K) L
	Own(lookup L) K
	Charge(stored K) uintptr
}

type StringPolicy struct{}

var _ KeyPolicy[string, StringKey] = StringPolicy{}

func (StringPolicy) Lookup(key string) StringKey {
	return MakeStringKey(key)
}

func (StringPolicy) Hash(lookup StringKey) uint32 {
	return lookup.hash
}

// Matches rejects on length before comparing any bytes.
func (StringPolicy) Matches(lookup StringKey, stored string) bool {
	return len(lookup.s) == len(stored) && lookup.s == stored
}

// Own copies the string so the table never shares memory with the caller.
func (StringPolicy) Own(lookup StringKey) string {
	return strings.Clone(lookup.s)
}

// Charge counts the key bytes plus one byte for a terminator.
func (StringPolicy) Charge(stored string) uintptr {
	return uintptr(len(stored)) + 1
}

type IntPolicy struct{}

var _ KeyPolicy[int32, IntKey] = IntPolicy{}

func (IntPolicy) Lookup(key int32) IntKey {
	return MakeIntKey(key)
}

func (IntPolicy) Hash(lookup IntKey) uint32 {
	return lookup.hash
}

func (IntPolicy) Matches(lookup IntKey, stored int32) bool {
	return lookup.v == stored
}

func (IntPolicy) Own(lookup IntKey) int32 {
	return lookup.v
}

// Charge is zero, integer keys live inside the slot.
func (IntPolicy) Charge(int32) uintptr {
	return 0
}
