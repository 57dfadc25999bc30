package hashtable

import "unsafe"

const groupSize = 8

type group[K, V any] struct {
	// 8 bytes of metadata (h2 or control states)
	// This fits perfectly in a single uint64 load
	ctrls [groupSize]uint8

	// Full 32-bit policy hashes of the stored keys. Growth and compaction
	// relocate entries with these, so a key is never hashed twice.
	hashes [groupSize]uint32

	// 8 keys stored immediately after the metadata.
	slots [groupSize]K

	// 8 values stored after the keys.
	// Even If V is a struct{} type, Go compiler will add padding.
	// It's very sensible, you need to be careful with the value type.
	// If it's too large, you'll end up missing CPU cache lines.
	values [groupSize]V
}

var emptyCtrls = [groupSize]uint8{
	slotEmpty,
	slotEmpty,
	slotEmpty,
	slotEmpty,

	slotEmpty,
	slotEmpty,
	slotEmpty,
	slotEmpty,
}

func (g *group[K, V]) ctrlWord() uint64 {
	return *(*uint64)(unsafe.Pointer(&g.ctrls))
}

func (g *group[K, V]) setCtrlWord(ctrl uint64) {
	*(*uint64)(unsafe.Pointer(&g.ctrls)) = ctrl
}

// reset marks every slot empty and drops the references held by keys and values.
func (g *group[K, V]) reset() {
	g.ctrls = emptyCtrls
	clear(g.hashes[:])
	clear(g.slots[:])
	clear(g.values[:])
}

// release drops the key and value of a single slot.
func (g *group[K, V]) release(idx uintptr) {
	var (
		zeroK K
		zeroV V
	)

	g.hashes[idx] = 0
	g.slots[idx] = zeroK
	g.values[idx] = zeroV
}
