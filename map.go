// Package keymap provides key-value maps keyed by strings or 32-bit
// integers, built on the open-addressing table of package hashtable.
//
// Hashing and equality come from a KeyPolicy: a lookup key is hashed once
// per operation and the hash is reused for every probe. Inserting goes
// through a reservation (FindForAdd) so that checking for a key and storing
// it share a single probe sequence.
//
// Maps are not safe for concurrent use.
package keymap

import (
	"iter"

	"github.com/homier/keymap/hashtable"
	"github.com/rs/zerolog"
)

const defaultCapacity = 32

// Map is a key-value map whose keys of type K are compared through their
// lookup form L according to the policy P. Use StringMap and IntMap rather
// than instantiating it directly.
//
// Besides the table itself, the map keeps the number of bytes charged for
// stored key payloads, see MemUsage.
type Map[K, L, V any, P KeyPolicy[K, L]] struct {
	table    hashtable.Table[L, K, V, P]
	keyBytes uintptr
	policy   P
}

// StringMap maps ASCII strings to values of type V.
type StringMap[V any] = Map[string, StringKey, V, StringPolicy]

// IntMap maps 32-bit integers to values of type V.
type IntMap[V any] = Map[int32, IntKey, V, IntPolicy]

type options struct {
	capacity int
	alloc    hashtable.AllocPolicy
	logger   zerolog.Logger
}

type Option func(o *options)

// WithCapacity sets the initial number of slots.
func WithCapacity(capacity int) Option {
	return func(o *options) {
		o.capacity = capacity
	}
}

// WithAllocPolicy overrides the allocation policy of the underlying table.
func WithAllocPolicy(p hashtable.AllocPolicy) Option {
	return func(o *options) {
		o.alloc = p
	}
}

// WithLogger sets the logger of the underlying table.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New creates an empty map. If the initial table cannot be allocated, the
// allocation policy's ReportOutOfMemory is called, which does not return.
func New[K, L, V any, P KeyPolicy[K, L]](opts ...Option) *Map[K, L, V, P] {
	o := options{
		capacity: defaultCapacity,
		alloc:    hashtable.SystemAllocPolicy{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	var m Map[K, L, V, P]
	err := m.table.Init(o.capacity,
		hashtable.WithAllocPolicy(o.alloc),
		hashtable.WithLogger(o.logger),
	)
	if err != nil {
		o.alloc.ReportOutOfMemory(err)
	}

	return &m
}

func NewStringMap[V any](opts ...Option) *StringMap[V] {
	return New[string, StringKey, V, StringPolicy](opts...)
}

func NewIntMap[V any](opts ...Option) *IntMap[V] {
	return New[int32, IntKey, V, IntPolicy](opts...)
}

// Get returns a copy of the value stored for key.
func (m *Map[K, L, V, P]) Get(key K) (V, bool) {
	r := m.table.Find(m.policy.Lookup(key))
	if !r.Found() {
		var zero V
		return zero, false
	}

	return *r.Value(), true
}

// GetRef returns a pointer to the value stored for key. The value remains
// owned by the map and the pointer is only valid until the next mutation.
func (m *Map[K, L, V, P]) GetRef(key K) (*V, bool) {
	r := m.table.Find(m.policy.Lookup(key))
	if !r.Found() {
		return nil, false
	}

	return r.Value(), true
}

// Find returns the raw lookup result for key. A found result may be used to
// modify the value in place or be passed to RemoveResult, until the map is
// mutated.
func (m *Map[K, L, V, P]) Find(key K) hashtable.Result[K, V] {
	return m.table.Find(m.policy.Lookup(key))
}

func (m *Map[K, L, V, P]) Contains(key K) bool {
	return m.table.Find(m.policy.Lookup(key)).Found()
}

// Replace stores value for key, overwriting any previous value.
// Returns false only if the table could not grow.
func (m *Map[K, L, V, P]) Replace(key K, value V) bool {
	lookup := m.policy.Lookup(key)

	ins := m.table.FindForAdd(lookup)
	if ins.Found() {
		*ins.Value() = value
		return true
	}

	return m.add(&ins, lookup, value)
}

// Insert stores value for key unless key is already present.
// Returns false if key was present or the table could not grow.
func (m *Map[K, L, V, P]) Insert(key K, value V) bool {
	lookup := m.policy.Lookup(key)

	ins := m.table.FindForAdd(lookup)
	if ins.Found() {
		return false
	}

	return m.add(&ins, lookup, value)
}

// Remove deletes key and reports whether it was present.
func (m *Map[K, L, V, P]) Remove(key K) bool {
	r := m.table.Find(m.policy.Lookup(key))
	if !r.Found() {
		return false
	}

	m.RemoveResult(r)

	return true
}

// RemoveResult deletes the entry referenced by a found result, without
// hashing the key again. r must come from this map with no mutation since.
func (m *Map[K, L, V, P]) RemoveResult(r hashtable.Result[K, V]) {
	m.keyBytes -= m.policy.Charge(r.Key())
	m.table.Remove(r)
}

// Clear removes all entries. The capacity is kept.
func (m *Map[K, L, V, P]) Clear() {
	m.table.Clear()
	m.keyBytes = 0
}

// Compact drops the tombstones left by removals without changing capacity.
func (m *Map[K, L, V, P]) Compact() {
	m.table.Compact()
}

// Iter returns an iterator over all entries in unspecified order.
func (m *Map[K, L, V, P]) Iter() hashtable.Iterator[K, V] {
	return m.table.Iter()
}

// All returns all key-value pairs in unspecified order.
func (m *Map[K, L, V, P]) All() iter.Seq2[K, V] {
	return m.table.All()
}

// MemUsage returns the estimated memory of the table plus the bytes charged
// for stored keys.
func (m *Map[K, L, V, P]) MemUsage() uintptr {
	return m.table.EstimateMemoryUse() + m.keyBytes
}

// KeyBytes returns the bytes charged for stored keys only.
func (m *Map[K, L, V, P]) KeyBytes() uintptr {
	return m.keyBytes
}

func (m *Map[K, L, V, P]) Elements() int {
	return m.table.Elements()
}

func (m *Map[K, L, V, P]) Stats() Stats {
	return Stats{
		Stats:    m.table.Stats(),
		KeyBytes: m.keyBytes,
		MemUsage: m.MemUsage(),
	}
}

// FindForAdd looks key up and reserves a slot for it when absent. The
// reservation is completed with Add and must not be kept across any other
// mutation of the map.
func (m *Map[K, L, V, P]) FindForAdd(key K) Insert[K, L, V] {
	lookup := m.policy.Lookup(key)

	return Insert[K, L, V]{
		ins:    m.table.FindForAdd(lookup),
		lookup: lookup,
	}
}

// Add completes a reservation. An empty reservation stores the key it was
// made for together with the staged value; for an existing one the value
// was already written in place and Add only reports success.
// Returns false if the table could not grow, in which case the reservation
// is left as it was.
func (m *Map[K, L, V, P]) Add(i *Insert[K, L, V]) bool {
	if i.ins.Found() {
		return true
	}

	if !m.add(&i.ins, i.lookup, i.value) {
		return false
	}

	var zero V
	i.value = zero

	return true
}

func (m *Map[K, L, V, P]) add(ins *hashtable.Insert[K, V], lookup L, value V) bool {
	stored := m.policy.Own(lookup)
	if err := m.table.Add(ins, stored, value); err != nil {
		return false
	}

	m.keyBytes += m.policy.Charge(stored)

	return true
}
