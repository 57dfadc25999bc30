package keymap

import "github.com/homier/keymap/hashtable"

type Stats struct {
	hashtable.Stats

	KeyBytes uintptr
	MemUsage uintptr
}
