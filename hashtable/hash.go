package hashtable

// Policy supplies hashing and equality for a table whose lookups are
// expressed as L and whose stored keys are K.
//
// A Policy must be stateless: the table uses the zero value of its policy
// type. Hash and Matches are called many times while probing and must be
// deterministic and cheap. Equal hashes are not enough for two keys to be
// considered equal, Matches has the final word.
type Policy[L, K any] interface {
	Hash(lookup L) uint32
	Matches(lookup L, stored K) bool
}

// HashInt32 is the standard 32-bit integer hash (Thomas Wang's mixer).
func HashInt32(v int32) uint32 {
	a := uint32(v)
	a = ^a + (a << 15)
	a ^= a >> 12
	a += a << 2
	a ^= a >> 4
	a *= 2057
	a ^= a >> 16

	return a
}

// prepareHash spreads a 32-bit policy hash over 64 bits, so that both the
// group index and the h2 fingerprint see well mixed bits.
func prepareHash(hash uint32) uint64 {
	x := uint64(hash) * 0x9E3779B97F4A7C15
	return x ^ (x >> 29)
}

func HashSplit(hash uint64) (uintptr, uint8) {
	h1 := uintptr(hash >> 7)
	h2 := uint8(hash & 0x7F)

	return h1, h2
}
