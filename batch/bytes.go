package batch

import "unsafe"

// sliceBytes views the backing memory of s as bytes without copying. The result aliases s.
func sliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}

	size := int(unsafe.Sizeof(s[0]))
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*size)
}

func elementSize[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}
