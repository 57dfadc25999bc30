package hashtable

import (
	"fmt"
	"math/bits"
	"unsafe"
)

// maxCapacity is the largest number of slots a table may hold.
const maxCapacity = 1 << 31

// Returns the next power of 2 for the given value `v`.
func NextPowerOf2(v uint32) uint32 {
	if v <= 1 {
		return 1
	}

	return uint32(1) << min(bits.Len32(v-1), 31)
}

// Estimates capacity (number of slots) from the given memory size in bytes.
func CapacityFromSize[K, V any](size uintptr) int {
	sizeOfGroup := unsafe.Sizeof(group[K, V]{})
	numGroups := size / sizeOfGroup

	return int(numGroups * groupSize)
}

func normalizeCapacity(capacity int) (uintptr, error) {
	if capacity <= groupSize {
		return groupSize, nil
	}

	if uint64(capacity) > maxCapacity {
		return 0, fmt.Errorf("%w: %d slots requested, at most %d supported", ErrOutOfMemory, capacity, uint64(maxCapacity))
	}

	return uintptr(NextPowerOf2(uint32(capacity))), nil
}
