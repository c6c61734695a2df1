// reconcile/allocator.go
package reconcile

import (
	"fmt"

	"github.com/gewnthar/registers/models"
)

// Allocator hands out entity numbers within a dataset range. It must be
// driven in record entry order: CSV row order or form submission order.
type Allocator struct {
	min      int64
	max      int64 // 0 means unbounded
	next     int64
	halted   bool
	reserved map[int64]bool
}

// NewAllocator starts at min, or just past currentMax when the dataset already
// holds entities at or above min.
func NewAllocator(min, max int64, currentMax *int64) *Allocator {
	a := &Allocator{min: min, max: max, next: min, reserved: map[int64]bool{}}
	if currentMax != nil && *currentMax >= min {
		a.next = *currentMax + 1
	}
	return a
}

// NewDatasetAllocator builds an allocator from the dataset's configured range.
func NewDatasetAllocator(ds *models.Dataset, currentMax *int64) *Allocator {
	return NewAllocator(ds.EntityMinimum, ds.EntityMaximum, currentMax)
}

// Reserve marks entities a batch supplies explicitly so that automatic
// assignment never hands them to another record, whatever the row order.
func (a *Allocator) Reserve(entities ...int64) {
	for _, e := range entities {
		a.reserved[e] = true
	}
}

// Next returns the entity for one record. An explicit entity inside the
// dataset range is returned as is and pushes the candidate past it; otherwise
// the candidate is assigned, skipping reserved entities. Once the range is
// exhausted every later call fails.
func (a *Allocator) Next(explicit *int64) (int64, error) {
	if a.halted {
		return 0, fmt.Errorf("%w: dataset range ends at %d", models.ErrEntityRangeExhausted, a.max)
	}

	if explicit != nil {
		e := *explicit
		if e < a.min || (a.max > 0 && e > a.max) {
			return 0, fmt.Errorf("%w: %d not in [%d, %d]", models.ErrEntityOutOfRange, e, a.min, a.max)
		}
		if e >= a.next {
			a.next = e + 1
		}
		return e, nil
	}

	for a.reserved[a.next] {
		a.next++
	}
	if a.max > 0 && a.next > a.max {
		a.halted = true
		return 0, fmt.Errorf("%w: dataset range ends at %d", models.ErrEntityRangeExhausted, a.max)
	}
	e := a.next
	a.next++
	return e, nil
}

// Halted reports whether the range has been exhausted.
func (a *Allocator) Halted() bool {
	return a.halted
}
