package keymap

import "github.com/homier/keymap/hashtable"

// Insert is a reservation made by Map.FindForAdd.
//
// When the key is absent, Value points at a staged value that Add stores
// together with the key the reservation was made for. When the key exists,
// Value points at the stored value itself.
//
// A reservation holds a view of the key it was made for and is invalidated
// by any mutation of the map other than the Add consuming it.
type Insert[K, L, V any] struct {
	ins    hashtable.Insert[K, V]
	lookup L
	value  V
}

func (i *Insert[K, L, V]) State() hashtable.InsertState {
	return i.ins.State()
}

// Found reports whether the key was already stored.
func (i *Insert[K, L, V]) Found() bool {
	return i.ins.Found()
}

// Key returns the stored key. Must only be called when Found is true.
func (i *Insert[K, L, V]) Key() K {
	return i.ins.Key()
}

func (i *Insert[K, L, V]) Value() *V {
	if v := i.ins.Value(); v != nil {
		return v
	}

	return &i.value
}
