// Package hashtable implements a swiss-table style open-addressing hash
// table whose hashing and equality are supplied by a Policy type.
package hashtable

import (
	"fmt"
	"unsafe"

	"github.com/rs/zerolog"
)

// Table is an open-addressing hash table built from swiss-table groups of
// eight slots. Lookups are expressed as L and stored keys as K, the policy
// P tells how to hash an L and whether it matches a K.
//
// The zero value must be initialized with Init before use. A Table is not
// safe for concurrent use.
type Table[L, K, V any, P Policy[L, K]] struct {
	groups []group[K, V]

	capacity          uintptr
	numGroupsMask     uintptr
	capacityEffective uintptr
	size              uintptr

	// Number of empty slots that may still be consumed before the table
	// has to be rebuilt. Tombstones don't give budget back.
	growthLeft uintptr

	policy P
	alloc  AllocPolicy
	logger zerolog.Logger
}

type options struct {
	alloc  AllocPolicy
	logger zerolog.Logger
}

type Option func(o *options)

// WithAllocPolicy overrides the default SystemAllocPolicy.
func WithAllocPolicy(p AllocPolicy) Option {
	return func(o *options) {
		o.alloc = p
	}
}

// WithLogger sets the logger used to report growth and compaction.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Init allocates the initial slot array. The capacity is rounded up to a
// power of two, with a minimum of one group.
func (t *Table[L, K, V, P]) Init(capacity int, opts ...Option) error {
	o := options{
		alloc:  SystemAllocPolicy{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	t.alloc = o.alloc
	t.logger = o.logger

	normalized, err := normalizeCapacity(capacity)
	if err != nil {
		return err
	}

	groups, err := t.allocGroups(normalized)
	if err != nil {
		return err
	}

	t.size = 0
	t.setGroups(groups)

	return nil
}

// AllocPolicy returns the allocation policy the table was initialized with.
func (t *Table[L, K, V, P]) AllocPolicy() AllocPolicy {
	return t.alloc
}

func (t *Table[L, K, V, P]) Elements() int {
	return int(t.size)
}

func (t *Table[L, K, V, P]) Capacity() int {
	return int(t.capacity)
}

func (t *Table[L, K, V, P]) EffectiveCapacity() int {
	return int(t.capacityEffective)
}

// EstimateMemoryUse returns the size of the slot array in bytes.
func (t *Table[L, K, V, P]) EstimateMemoryUse() uintptr {
	return uintptr(len(t.groups)) * unsafe.Sizeof(group[K, V]{})
}

func (t *Table[L, K, V, P]) Stats() Stats {
	var tombstones int
	for i := range t.groups {
		tombstones += matchDeleted(t.groups[i].ctrlWord()).count()
	}

	var ratio float32
	if t.capacity > 0 {
		ratio = float32(tombstones) / float32(t.capacity)
	}

	return Stats{
		Elements:                int(t.size),
		Capacity:                int(t.capacity),
		EffectiveCapacity:       int(t.capacityEffective),
		Tombstones:              tombstones,
		TombstonesCapacityRatio: ratio,
		TableBytes:              t.EstimateMemoryUse(),
	}
}

// Find looks the key up.
func (t *Table[L, K, V, P]) Find(lookup L) Result[K, V] {
	start, h2 := t.probeStart(t.policy.Hash(lookup))
	mask := t.numGroupsMask

	for p, offset := uintptr(0), start; p <= mask; p++ {
		g := &t.groups[offset]
		ctrl := g.ctrlWord()

		// SIMD-like match
		matches := matchH2(ctrl, h2)
		for matches != 0 {
			idx := matches.first()
			if t.policy.Matches(lookup, g.slots[idx]) {
				return Result[K, V]{g: g, idx: idx}
			}

			matches = matches.removeFirst()
		}

		// Termination
		if matchEmpty(ctrl) != 0 {
			return Result[K, V]{}
		}

		// Quadratic probe math
		offset = (start + (p+1)*(p+2)/2) & mask
	}

	return Result[K, V]{}
}

// FindForAdd looks the key up and, when it is absent, picks the slot an Add
// would store it in. Existence check and slot selection share one probe.
func (t *Table[L, K, V, P]) FindForAdd(lookup L) Insert[K, V] {
	var (
		hash      = t.policy.Hash(lookup)
		start, h2 = t.probeStart(hash)
		mask      = t.numGroupsMask

		targetGroup *group[K, V]
		targetSlot  uintptr
		foundSlot   bool
	)

	for p, offset := uintptr(0), start; p <= mask; p++ {
		g := &t.groups[offset]
		ctrl := g.ctrlWord()

		// 1. Existing check
		matchMask := matchH2(ctrl, h2)
		for matchMask != 0 {
			idx := matchMask.first()
			if t.policy.Matches(lookup, g.slots[idx]) {
				return Insert[K, V]{g: g, idx: idx, hash: hash, state: InsertExisting}
			}

			matchMask = matchMask.removeFirst()
		}

		// 2. Cache first available slot
		if !foundSlot {
			matchMask = matchEmptyOrDeleted(ctrl)
			if matchMask != 0 {
				targetGroup = g
				targetSlot = matchMask.first()
				foundSlot = true
			}
		}

		// 3. Termination condition
		if matchEmpty(ctrl) != 0 {
			break
		}

		offset = (start + (p+1)*(p+2)/2) & mask
	}

	// Without a cached slot Add relocates the reservation after a rebuild.
	return Insert[K, V]{g: targetGroup, idx: targetSlot, hash: hash, state: InsertEmpty}
}

// Add consumes a reservation. For an empty reservation the key and value
// are stored, growing or compacting the table first if it ran out of empty
// slots. For an existing reservation only the value is overwritten.
//
// On failure the table is left untouched and the reservation stays valid.
// After a successful Add the reservation points at the stored entry.
func (t *Table[L, K, V, P]) Add(ins *Insert[K, V], key K, value V) error {
	switch ins.state {
	case InsertExisting:
		ins.g.values[ins.idx] = value
		return nil
	case InsertEmpty:
	default:
		return fmt.Errorf("hashtable: add with an %s reservation", ins.state)
	}

	g, idx := ins.g, ins.idx
	if g == nil || (g.ctrls[idx] == slotEmpty && t.growthLeft == 0) {
		if err := t.rehash(); err != nil {
			return err
		}

		g, idx = t.findFree(ins.hash)
	}

	if g.ctrls[idx] == slotEmpty {
		t.growthLeft--
	}

	_, h2 := HashSplit(prepareHash(ins.hash))
	g.ctrls[idx] = h2
	g.hashes[idx] = ins.hash
	g.slots[idx] = key
	g.values[idx] = value
	t.size++

	ins.g, ins.idx, ins.state = g, idx, InsertExisting

	return nil
}

// Remove deletes the entry referenced by a found Result without hashing or
// probing again.
func (t *Table[L, K, V, P]) Remove(r Result[K, V]) {
	g, idx := r.g, r.idx
	g.release(idx)

	// A group that still has an empty slot has never been full since the
	// last rebuild, so no probe chain runs through it.
	if matchEmpty(g.ctrlWord()) != 0 {
		g.ctrls[idx] = slotEmpty
		t.growthLeft++
	} else {
		// Mark as Deleted (0xFE) to preserve the probe chain
		g.ctrls[idx] = slotDeleted
	}

	t.size--
}

// Clear removes all entries and keeps the capacity.
func (t *Table[L, K, V, P]) Clear() {
	for i := range t.groups {
		t.groups[i].reset()
	}

	t.size = 0
	t.growthLeft = t.capacityEffective
}

// Compact drops all tombstones in place.
func (t *Table[L, K, V, P]) Compact() {
	// We want to drop all of the deletes in place. We first walk over the
	// control bytes and mark every DELETED slot as EMPTY and every FULL slot
	// as DELETED. Marking the DELETED slots as EMPTY has effectively dropped
	// the tombstones, but we fouled up the probe invariant. Marking the FULL
	// slots as DELETED gives us a marker to locate the previously FULL slots.
	for i := range t.groups {
		g := &t.groups[i]
		g.setCtrlWord(invertCtrls(g.ctrlWord()))
	}

	for idx := 0; idx < len(t.groups); idx++ {
		g := &t.groups[idx]
		for j := uintptr(0); j < groupSize; j++ {
			// Only process slots we marked as Deleted (which were originally Full)
			if g.ctrls[j] != slotDeleted {
				continue
			}

			hash := g.hashes[j]
			targetGroup, targetSlot := t.findFree(hash)
			_, h2 := HashSplit(prepareHash(hash))

			switch {
			case targetGroup == g && targetSlot == j:
				g.ctrls[j] = h2
			case targetGroup.ctrls[targetSlot] == slotEmpty:
				targetGroup.ctrls[targetSlot] = h2
				targetGroup.hashes[targetSlot] = hash
				targetGroup.slots[targetSlot] = g.slots[j]
				targetGroup.values[targetSlot] = g.values[j]
				g.ctrls[j] = slotEmpty
				g.release(j)
			default:
				// SWAP: targetGroup.ctrls[targetSlot] is slotDeleted, so it holds
				// an entry that still has to be placed. Take its place and
				// process the swapped entry in our current slot next.
				targetGroup.ctrls[targetSlot] = h2
				g.hashes[j], targetGroup.hashes[targetSlot] = targetGroup.hashes[targetSlot], g.hashes[j]
				g.slots[j], targetGroup.slots[targetSlot] = targetGroup.slots[targetSlot], g.slots[j]
				g.values[j], targetGroup.values[targetSlot] = targetGroup.values[targetSlot], g.values[j]

				// Repeat for swapped key
				j--
			}
		}
	}

	t.growthLeft = t.capacityEffective - t.size

	t.logger.Debug().
		Int("elements", int(t.size)).
		Int("capacity", int(t.capacity)).
		Msg("compacted hash table")
}

func (t *Table[L, K, V, P]) probeStart(hash uint32) (uintptr, uint8) {
	h1, h2 := HashSplit(prepareHash(hash))
	return (h1 / groupSize) & t.numGroupsMask, h2
}

// findFree returns the first empty or deleted slot on the probe sequence of
// hash. The table always keeps at least one empty slot, so it terminates.
func (t *Table[L, K, V, P]) findFree(hash uint32) (*group[K, V], uintptr) {
	start, _ := t.probeStart(hash)
	mask := t.numGroupsMask

	for p, offset := uintptr(0), start; ; p++ {
		g := &t.groups[offset]
		if m := matchEmptyOrDeleted(g.ctrlWord()); m != 0 {
			return g, m.first()
		}

		offset = (start + (p+1)*(p+2)/2) & mask
	}
}

// rehash makes room for at least one more entry. Tables where tombstones
// hold half of the budget are compacted, the rest double in size.
func (t *Table[L, K, V, P]) rehash() error {
	if t.size <= t.capacityEffective/2 {
		t.Compact()
		return nil
	}

	return t.resize(t.capacity * 2)
}

func (t *Table[L, K, V, P]) resize(capacity uintptr) error {
	groups, err := t.allocGroups(capacity)
	if err != nil {
		t.logger.Debug().Err(err).
			Int("capacity", int(t.capacity)).
			Msg("could not grow hash table")

		return err
	}

	old, oldBytes, oldCapacity := t.groups, t.EstimateMemoryUse(), t.capacity
	t.setGroups(groups)

	for i := range old {
		g := &old[i]
		full := matchFull(g.ctrlWord())
		for full != 0 {
			idx := full.first()
			t.uncheckedPut(g.hashes[idx], g.slots[idx], g.values[idx])

			full = full.removeFirst()
		}
	}

	t.alloc.Release(oldBytes)

	t.logger.Debug().
		Int("from", int(oldCapacity)).
		Int("to", int(t.capacity)).
		Int("elements", int(t.size)).
		Msg("grew hash table")

	return nil
}

// uncheckedPut stores an entry known to be absent into a table without
// tombstones.
func (t *Table[L, K, V, P]) uncheckedPut(hash uint32, key K, value V) {
	g, idx := t.findFree(hash)
	_, h2 := HashSplit(prepareHash(hash))

	g.ctrls[idx] = h2
	g.hashes[idx] = hash
	g.slots[idx] = key
	g.values[idx] = value

	t.growthLeft--
}

func (t *Table[L, K, V, P]) allocGroups(capacity uintptr) ([]group[K, V], error) {
	numGroups := capacity / groupSize
	if numGroups == 0 || uint64(capacity) > maxCapacity {
		return nil, fmt.Errorf("%w: %d slots requested, at most %d supported", ErrOutOfMemory, capacity, uint64(maxCapacity))
	}

	bytes := numGroups * unsafe.Sizeof(group[K, V]{})

	if err := t.alloc.Reserve(bytes); err != nil {
		return nil, fmt.Errorf("allocating %d slots: %w", capacity, err)
	}

	groups := make([]group[K, V], numGroups)
	// Initialize all control bytes to Empty
	for i := range groups {
		groups[i].ctrls = emptyCtrls
	}

	return groups, nil
}

// setGroups installs a fresh slot array. The size is kept, callers moving
// entries in account for them through uncheckedPut.
func (t *Table[L, K, V, P]) setGroups(groups []group[K, V]) {
	t.groups = groups
	t.capacity = uintptr(len(groups)) * groupSize
	t.numGroupsMask = uintptr(len(groups) - 1)
	t.capacityEffective = t.capacity * 7 / 8
	t.growthLeft = t.capacityEffective
}
