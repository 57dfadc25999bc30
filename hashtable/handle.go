package hashtable

// Result references the slot found by a lookup, or nothing.
//
// A Result is only valid until the next mutation of the table it came from
// (Add, Remove, Clear, Compact). Using it afterwards is undefined behaviour
// and is not detected.
type Result[K, V any] struct {
	g   *group[K, V]
	idx uintptr
}

// Found reports whether the lookup found an entry.
func (r Result[K, V]) Found() bool {
	return r.g != nil
}

// Key returns the stored key. Must only be called on a found Result.
func (r Result[K, V]) Key() K {
	return r.g.slots[r.idx]
}

// Value returns a pointer to the stored value. The value stays owned by
// the table. Must only be called on a found Result.
func (r Result[K, V]) Value() *V {
	return &r.g.values[r.idx]
}

// InsertState is the outcome of a FindForAdd reservation.
type InsertState uint8

const (
	// InsertInvalid is the zero state of an Insert that was never reserved.
	InsertInvalid InsertState = iota
	// InsertEmpty means the key is absent and a slot has been picked for it.
	InsertEmpty
	// InsertExisting means the key is already stored.
	InsertExisting
)

func (s InsertState) String() string {
	switch s {
	case InsertEmpty:
		return "empty"
	case InsertExisting:
		return "existing"
	default:
		return "invalid"
	}
}

// Insert is a reservation produced by FindForAdd and consumed by Add.
//
// The same lifetime rules as for Result apply: any mutation of the table
// other than the Add consuming this reservation invalidates it.
type Insert[K, V any] struct {
	g     *group[K, V]
	idx   uintptr
	hash  uint32
	state InsertState
}

func (i *Insert[K, V]) State() InsertState {
	return i.state
}

// Found reports whether the reservation points at an existing entry.
func (i *Insert[K, V]) Found() bool {
	return i.state == InsertExisting
}

// Hash returns the policy hash computed when the reservation was made.
func (i *Insert[K, V]) Hash() uint32 {
	return i.hash
}

// Key returns the stored key of an existing entry.
func (i *Insert[K, V]) Key() K {
	return i.g.slots[i.idx]
}

// Value returns a pointer to the value of an existing entry, or nil when the
// slot is still empty.
func (i *Insert[K, V]) Value() *V {
	if i.state != InsertExisting {
		return nil
	}

	return &i.g.values[i.idx]
}
