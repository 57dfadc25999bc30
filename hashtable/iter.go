package hashtable

import "iter"

// Iterator walks the entries of a table in slot order, which is unrelated
// to insertion order. It is invalidated by any mutation of the table.
//
//	for it := t.Iter(); it.Next(); {
//		fmt.Println(it.Key(), *it.Value())
//	}
type Iterator[K, V any] struct {
	groups []group[K, V]
	gi     int
	full   bitset
	cur    *group[K, V]
	idx    uintptr
}

// Next advances to the next entry and reports whether there is one.
func (it *Iterator[K, V]) Next() bool {
	for it.full == 0 {
		if it.gi >= len(it.groups) {
			it.cur = nil
			return false
		}

		it.cur = &it.groups[it.gi]
		it.full = matchFull(it.cur.ctrlWord())
		it.gi++
	}

	it.idx = it.full.first()
	it.full = it.full.removeFirst()

	return true
}

func (it *Iterator[K, V]) Key() K {
	return it.cur.slots[it.idx]
}

func (it *Iterator[K, V]) Value() *V {
	return &it.cur.values[it.idx]
}

// Result returns the current entry as a lookup result, so that it can be
// handed to Table.Remove. Removing the current entry does not disturb the
// rest of the walk.
func (it *Iterator[K, V]) Result() Result[K, V] {
	return Result[K, V]{g: it.cur, idx: it.idx}
}

// Iter returns a fresh iterator positioned before the first entry.
func (t *Table[L, K, V, P]) Iter() Iterator[K, V] {
	return Iterator[K, V]{groups: t.groups}
}

// All returns a sequence of all key-value pairs, suitable for range-over-func.
func (t *Table[L, K, V, P]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for it := t.Iter(); it.Next(); {
			if !yield(it.Key(), *it.Value()) {
				return
			}
		}
	}
}
