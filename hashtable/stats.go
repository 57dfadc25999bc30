package hashtable

type Stats struct {
	Elements                int
	Capacity                int
	EffectiveCapacity       int
	Tombstones              int
	TombstonesCapacityRatio float32
	TableBytes              uintptr
}
