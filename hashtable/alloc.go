package hashtable

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ErrOutOfMemory is returned when an allocation policy refuses to hand out
// storage for the slot array.
var ErrOutOfMemory = errors.New("hashtable: out of memory")

// AllocPolicy decides whether the table may allocate its slot storage.
// Reserve is called before every slot array allocation, Release once the
// array it accounted for has been dropped.
type AllocPolicy interface {
	Reserve(bytes uintptr) error
	Release(bytes uintptr)

	// ReportOutOfMemory is invoked when a table could not be created at all.
	// It must not return normally.
	ReportOutOfMemory(err error)
}

// SystemAllocPolicy allocates from the Go heap without any limit.
type SystemAllocPolicy struct{}

var _ AllocPolicy = SystemAllocPolicy{}

func (SystemAllocPolicy) Reserve(uintptr) error { return nil }
func (SystemAllocPolicy) Release(uintptr)       {}

// ReportOutOfMemory logs the failure and panics.
func (SystemAllocPolicy) ReportOutOfMemory(err error) {
	log.Panic().Err(err).Msg("could not allocate the hash table")
}

// LimitAllocPolicy allocates from the Go heap within a fixed byte budget.
// It is meant to be owned by a single table.
type LimitAllocPolicy struct {
	limit uintptr
	used  uintptr
}

var _ AllocPolicy = (*LimitAllocPolicy)(nil)

// NewLimitAllocPolicy creates a policy refusing to account for more than limit bytes.
func NewLimitAllocPolicy(limit uintptr) *LimitAllocPolicy {
	return &LimitAllocPolicy{limit: limit}
}

func (p *LimitAllocPolicy) Reserve(bytes uintptr) error {
	if bytes > p.limit-p.used {
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use", ErrOutOfMemory, bytes, p.used, p.limit)
	}

	p.used += bytes

	return nil
}

func (p *LimitAllocPolicy) Release(bytes uintptr) {
	p.used -= min(bytes, p.used)
}

func (p *LimitAllocPolicy) ReportOutOfMemory(err error) {
	SystemAllocPolicy{}.ReportOutOfMemory(err)
}

// Used returns the number of bytes currently accounted for.
func (p *LimitAllocPolicy) Used() uintptr {
	return p.used
}

// Limit returns the budget of the policy.
func (p *LimitAllocPolicy) Limit() uintptr {
	return p.limit
}
