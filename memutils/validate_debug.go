//go:build debug_batcher

package memutils

import "github.com/cockroachdb/errors"

// DebugEnabled reports whether the debug_batcher build tag is present
const DebugEnabled = true

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_batcher build tag is present
func DebugValidate(validatable Validatable) {
	MustValidate(validatable)
}

// DebugCheckCount verifies that a producer emitted exactly as many items as it declared, and panics
// if it did not. This method no-ops unless the debug_batcher build tag is present.
func DebugCheckCount[T Number](produced T, declared T, name string) {
	if produced != declared {
		panic(errors.Wrapf(ErrCountMismatch, "%s: produced %d, declared %d", name, produced, declared))
	}
}
