package memutils

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer
}

// GrowthFactor is the multiple of the requested total that a buffer is resized to when it overflows
const GrowthFactor = 2

// NeedsGrowth reports whether a buffer of the given capacity can no longer hold requestedTotal elements
func NeedsGrowth[T Number](requestedTotal, capacity T) bool {
	return requestedTotal > capacity
}

// GrownCapacity is the capacity a buffer is resized to once requestedTotal exceeds its current capacity
func GrownCapacity[T Number](requestedTotal T) T {
	return requestedTotal * GrowthFactor
}

// CheckRange verifies that the element range [offset, offset+count) fits within capacity
func CheckRange[T Number](offset, count, capacity T) error {
	if offset < 0 || count < 0 || offset+count > capacity {
		return errors.Wrapf(ErrOutOfRange, "elements [%d, %d) with capacity %d", offset, offset+count, capacity)
	}
	return nil
}
