package keymap

import "github.com/homier/keymap/hashtable"

// StringKey is the comparison form of a string lookup: a view of the
// caller's string plus its hash. It never copies the string, so it must
// not outlive the operation it was made for.
type StringKey struct {
	s    string
	hash uint32
}

// MakeStringKey hashes s in a single pass over its bytes.
func MakeStringKey(s string) StringKey {
	var hash uint32
	for i := 0; i < len(s); i++ {
		hash = uint32(s[i]) + (hash << 6) + (hash << 16) - hash
	}

	return StringKey{s: s, hash: hash}
}

func (k StringKey) Hash() uint32 {
	return k.hash
}

func (k StringKey) String() string {
	return k.s
}

func (k StringKey) Len() int {
	return len(k.s)
}

// IntKey is the comparison form of an integer lookup.
type IntKey struct {
	v    int32
	hash uint32
}

func MakeIntKey(v int32) IntKey {
	return IntKey{v: v, hash: hashtable.HashInt32(v)}
}

func (k IntKey) Hash() uint32 {
	return k.hash
}

func (k IntKey) Int32() int32 {
	return k.v
}
