//go:build !debug_batcher

package memutils

// DebugEnabled reports whether the debug_batcher build tag is present
const DebugEnabled = false

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_batcher build tag is present
func DebugValidate(validatable Validatable) {
}

// DebugCheckCount verifies that a producer emitted exactly as many items as it declared, and panics
// if it did not. This method no-ops unless the debug_batcher build tag is present.
func DebugCheckCount[T Number](produced T, declared T, name string) {
}
