package hashtable

import (
	"math"
	"math/rand"
	"slices"
	"strconv"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type intPolicy struct{}

func (intPolicy) Hash(k int) uint32     { return HashInt32(int32(k)) }
func (intPolicy) Matches(l, s int) bool { return l == s }

// collidingPolicy forces every key onto the same probe sequence.
type collidingPolicy struct{}

func (collidingPolicy) Hash(string) uint32       { return 0 }
func (collidingPolicy) Matches(l, s string) bool { return l == s }

type intTable = Table[int, int, int, intPolicy]

func newTable[L, K, V any, P Policy[L, K]](t *testing.T, capacity int, opts ...Option) *Table[L, K, V, P] {
	var tt Table[L, K, V, P]
	require.NoError(t, tt.Init(capacity, opts...))

	return &tt
}

func put[L, K, V any, P Policy[L, K]](t *testing.T, tt *Table[L, K, V, P], lookup L, key K, value V) {
	ins := tt.FindForAdd(lookup)
	require.Equal(t, InsertEmpty, ins.State())
	require.NoError(t, tt.Add(&ins, key, value))
}

func get[L, K, V any, P Policy[L, K]](tt *Table[L, K, V, P], lookup L) (V, bool) {
	r := tt.Find(lookup)
	if !r.Found() {
		var zero V
		return zero, false
	}

	return *r.Value(), true
}

func TestTable_Init(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		want     int
	}{
		{"zero", 0, 8},
		{"less than a group", 3, 8},
		{"power of two", 4096, 4096},
		{"rounded up", 100, 128},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tt := newTable[int, int, int, intPolicy](t, tc.capacity)

			require.Len(t, tt.groups, tc.want/groupSize)
			require.Equal(t, uintptr((tc.want/groupSize)-1), tt.numGroupsMask)
			require.Equal(t, tc.want, tt.Capacity())
			require.Equal(t, tc.want*7/8, tt.EffectiveCapacity())
			require.Equal(t, 0, tt.Elements())
		})
	}
}

func TestTable_FindForAdd(t *testing.T) {
	tt := newTable[int, int, string, intPolicy](t, 16)

	ins := tt.FindForAdd(1)
	require.Equal(t, InsertEmpty, ins.State())
	require.False(t, ins.Found())
	require.Nil(t, ins.Value())
	require.Equal(t, HashInt32(1), ins.Hash())

	require.NoError(t, tt.Add(&ins, 1, "foo"))
	require.True(t, ins.Found())
	assert.Equal(t, "foo", *ins.Value())
	assert.Equal(t, 1, tt.Elements())

	ins = tt.FindForAdd(1)
	require.Equal(t, InsertExisting, ins.State())
	assert.Equal(t, 1, ins.Key())
	assert.Equal(t, "foo", *ins.Value())

	// Only the value is replaced.
	require.NoError(t, tt.Add(&ins, 1, "bar"))
	assert.Equal(t, 1, tt.Elements())

	v, ok := get(tt, 1)
	require.True(t, ok)
	assert.Equal(t, "bar", v)
}

func TestTable_Add_Invalid(t *testing.T) {
	tt := newTable[int, int, int, intPolicy](t, 16)

	var ins Insert[int, int]
	require.Error(t, tt.Add(&ins, 1, 1))
	require.Equal(t, 0, tt.Elements())
}

func TestTable_Find(t *testing.T) {
	tt := newTable[int, int, int, intPolicy](t, 16)
	put(t, tt, 7, 7, 70)

	r := tt.Find(7)
	require.True(t, r.Found())
	assert.Equal(t, 7, r.Key())
	assert.Equal(t, 70, *r.Value())

	*r.Value() = 71
	v, ok := get(tt, 7)
	require.True(t, ok)
	assert.Equal(t, 71, v)

	assert.False(t, tt.Find(8).Found())
}

func TestTable_Grow(t *testing.T) {
	tt := newTable[int, int, int, intPolicy](t, 8)

	for i := range 1000 {
		put(t, tt, i, i, i*10)
	}

	require.Equal(t, 1000, tt.Elements())
	require.GreaterOrEqual(t, tt.EffectiveCapacity(), 1000)
	require.Equal(t, 0, int(tt.capacity)&(int(tt.capacity)-1), "capacity must stay a power of two")

	for i := range 1000 {
		v, ok := get(tt, i)
		require.Truef(t, ok, "lost key %d after growth", i)
		require.Equal(t, i*10, v)
	}
}

func TestTable_Tombstones(t *testing.T) {
	tt := newTable[string, string, string, collidingPolicy](t, 16)

	keys := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}
	for _, k := range keys {
		put(t, tt, k, k, "v"+k)
	}

	// The first group is full, deleting from it leaves a tombstone.
	r := tt.Find("B")
	require.True(t, r.Found())
	tt.Remove(r)
	require.Equal(t, 1, tt.Stats().Tombstones)

	// Verify we can still find "J" even though there's a hole at "B"
	v, ok := get(tt, "J")
	require.True(t, ok, "Probe chain broken: could not find 'J' after deleting 'B'")
	require.Equal(t, "vJ", v)

	_, ok = get(tt, "B")
	require.False(t, ok)

	// The tombstone is reused by the next insert.
	put(t, tt, "K", "K", "vK")
	require.Equal(t, 0, tt.Stats().Tombstones)
	require.Equal(t, 10, tt.Elements())
}

func TestTable_Remove_ReleasesSlot(t *testing.T) {
	tt := newTable[string, string, string, collidingPolicy](t, 16)
	put(t, tt, "foo", "foo", "bar")

	r := tt.Find("foo")
	g, idx := r.g, r.idx
	tt.Remove(r)

	// The group still had empty slots, so no tombstone is needed.
	assert.Equal(t, uint8(slotEmpty), g.ctrls[idx])
	assert.Equal(t, "", g.slots[idx])
	assert.Equal(t, "", g.values[idx])
	assert.Equal(t, tt.EffectiveCapacity(), int(tt.growthLeft))
	assert.Equal(t, 0, tt.Stats().Tombstones)
}

func TestTable_Rehash_CompactsChurn(t *testing.T) {
	tt := newTable[int, int, int, intPolicy](t, 16)

	for i := range 1000 {
		put(t, tt, i, i, i)
		if i >= 4 {
			r := tt.Find(i - 4)
			require.True(t, r.Found())
			tt.Remove(r)
		}
	}

	// Never more than five live entries: tombstones get compacted away
	// instead of growing the table.
	require.Equal(t, 16, tt.Capacity())
	require.Equal(t, 4, tt.Elements())

	for i := 996; i < 1000; i++ {
		v, ok := get(tt, i)
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestTable_Compact(t *testing.T) {
	const capacity = 32
	tt := newTable[int, int, int, intPolicy](t, capacity)

	// 1. Fill it up to the effective capacity
	for i := 0; i < tt.EffectiveCapacity(); i++ {
		put(t, tt, i, i, i)
	}

	// 2. Delete almost everything to create many tombstones
	for i := 0; i < tt.EffectiveCapacity()-1; i++ {
		r := tt.Find(i)
		require.True(t, r.Found())
		tt.Remove(r)
	}

	// 3. Compact
	tt.Compact()

	// 4. Verify the one remaining element
	lastIdx := tt.EffectiveCapacity() - 1
	v, ok := get(tt, lastIdx)
	require.Truef(t, ok, "Lost key %d after compaction", lastIdx)
	require.Equal(t, lastIdx, v)

	// 5. Verify no tombstones (0xFE) remain in the ctrls
	for i := range tt.groups {
		for j := range groupSize {
			require.NotEqualf(t, uint8(slotDeleted), tt.groups[i].ctrls[j], "Found tombstone at index %d after rehash", i)
		}
	}

	require.Equal(t, tt.EffectiveCapacity()-1, int(tt.growthLeft))
}

func TestTable_Compact_Sync(t *testing.T) {
	tt := newTable[int, int, int, intPolicy](t, 16)

	// 1. Fill it up to trigger many tombstones
	for i := range 14 {
		put(t, tt, i, i, i*100)
	}

	keys := make([]int, 0, 7)

	// 2. Delete half to create holes (tombstones)
	for len(keys) < 7 {
		idx := rand.Intn(14)

		if r := tt.Find(idx); r.Found() {
			tt.Remove(r)
			keys = append(keys, idx)
		}
	}

	// 3. Compact in-place
	tt.Compact()
	require.Equal(t, 0, tt.Stats().Tombstones)
	require.Equal(t, 7, tt.Elements())

	// 4. Verify remaining keys still have their correct values
	for idx := range 14 {
		if slices.Contains(keys, idx) {
			continue
		}

		val, ok := get(tt, idx)
		require.True(t, ok)
		require.Equal(t, idx*100, val)
	}

	// 5. Verify deleted keys are not present
	for _, key := range keys {
		_, ok := get(tt, key)

		require.False(t, ok)
	}
}

func TestTable_Clear(t *testing.T) {
	tt := newTable[int, int, int, intPolicy](t, 16)

	for i := range 100 {
		put(t, tt, i, i, i)
	}

	capacity := tt.Capacity()
	tt.Clear()

	assert.Equal(t, 0, tt.Elements())
	assert.Equal(t, capacity, tt.Capacity())
	assert.Equal(t, tt.EffectiveCapacity(), int(tt.growthLeft))

	_, ok := get(tt, 0)
	assert.False(t, ok)

	put(t, tt, 0, 0, 42)
	v, ok := get(tt, 0)
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestTable_AllocFailure(t *testing.T) {
	groupBytes := unsafe.Sizeof(group[int, int]{})
	alloc := NewLimitAllocPolicy(groupBytes)

	tt := newTable[int, int, int, intPolicy](t, 8, WithAllocPolicy(alloc))
	require.Equal(t, groupBytes, alloc.Used())

	for i := range tt.EffectiveCapacity() {
		put(t, tt, i, i, i)
	}

	ins := tt.FindForAdd(100)
	require.Equal(t, InsertEmpty, ins.State())

	err := tt.Add(&ins, 100, 100)
	require.ErrorIs(t, err, ErrOutOfMemory)
	require.Equal(t, InsertEmpty, ins.State())
	require.Equal(t, 7, tt.Elements())
	require.Equal(t, 8, tt.Capacity())
	require.False(t, tt.Find(100).Found())

	for i := range tt.EffectiveCapacity() {
		_, ok := get(tt, i)
		require.True(t, ok)
	}
}

func TestTable_Init_AllocFailure(t *testing.T) {
	if strconv.IntSize < 64 {
		t.Skip("capacities above 1<<31 need a 64-bit int")
	}

	tests := []struct {
		name     string
		capacity int64
		alloc    AllocPolicy
	}{
		{"budget exhausted", 16, NewLimitAllocPolicy(0)},
		{"one past the limit", maxCapacity + 1, SystemAllocPolicy{}},
		{"low bits zero", 1 << 32, SystemAllocPolicy{}},
		{"low bits small", 1<<32 + 5, SystemAllocPolicy{}},
		{"max int", math.MaxInt64, SystemAllocPolicy{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var tt intTable

			err := tt.Init(int(tc.capacity), WithAllocPolicy(tc.alloc))
			require.ErrorIs(t, err, ErrOutOfMemory)
			require.Nil(t, tt.groups)
		})
	}
}

func TestTable_AllocGroups_Limit(t *testing.T) {
	tt := newTable[int, int, int, intPolicy](t, 8)

	_, err := tt.allocGroups(0)
	require.ErrorIs(t, err, ErrOutOfMemory)

	next := uintptr(maxCapacity)
	_, err = tt.allocGroups(next * 2)
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func TestTable_EstimateMemoryUse(t *testing.T) {
	alloc := NewLimitAllocPolicy(1 << 20)
	tt := newTable[int, int, int, intPolicy](t, 16, WithAllocPolicy(alloc))
	require.Same(t, alloc, tt.AllocPolicy())

	groupBytes := unsafe.Sizeof(group[int, int]{})
	require.Equal(t, 2*groupBytes, tt.EstimateMemoryUse())

	for i := range 15 {
		put(t, tt, i, i, i)
	}

	require.Equal(t, 32, tt.Capacity())
	require.Equal(t, 4*groupBytes, tt.EstimateMemoryUse())
	// The old array has been released.
	require.Equal(t, tt.EstimateMemoryUse(), alloc.Used())

	stats := tt.Stats()
	assert.Equal(t, 15, stats.Elements)
	assert.Equal(t, 32, stats.Capacity)
	assert.Equal(t, 28, stats.EffectiveCapacity)
	assert.Equal(t, tt.EstimateMemoryUse(), stats.TableBytes)
}

func TestTable_Add_BoundaryGroup(t *testing.T) {
	// 16 slots / 8 per group = 2 groups
	tt := newTable[int, int, int, intPolicy](t, 16)

	// The last valid group index is tt.numGroupsMask (which is 1)
	targetGroupIdx := tt.numGroupsMask

	lastIdxKey := 0
	for {
		start, _ := tt.probeStart(HashInt32(int32(lastIdxKey)))
		if start == targetGroupIdx {
			break
		}
		lastIdxKey++
	}

	put(t, tt, lastIdxKey, lastIdxKey, lastIdxKey)

	v, ok := get(tt, lastIdxKey)
	require.True(t, ok, "Failed to find key at the boundary of the capacity")
	require.Equal(t, lastIdxKey, v)
}
