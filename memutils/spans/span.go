package spans

import "fmt"

// Span is a contiguous run of element slots within a single address space. Offsets and lengths
// are counted in elements, never bytes.
type Span struct {
	Offset int
	Length int
}

// End is the first slot past the end of the span
func (s Span) End() int {
	return s.Offset + s.Length
}

// IsEmpty reports whether the span covers no slots
func (s Span) IsEmpty() bool {
	return s.Length == 0
}

// Overlaps reports whether the two spans share at least one slot
func (s Span) Overlaps(other Span) bool {
	if s.IsEmpty() || other.IsEmpty() {
		return false
	}
	return s.Offset < other.End() && other.Offset < s.End()
}

func (s Span) String() string {
	return fmt.Sprintf("[%d, %d)", s.Offset, s.End())
}

// compareBySize orders free spans best-fit first: shortest length, then lowest offset
func compareBySize(left, right Span) int {
	if left.Length != right.Length {
		if left.Length < right.Length {
			return -1
		}
		return 1
	}

	if left.Offset < right.Offset {
		return -1
	} else if left.Offset > right.Offset {
		return 1
	}
	return 0
}

func compareByOffset(left, right Span) int {
	if left.Offset < right.Offset {
		return -1
	} else if left.Offset > right.Offset {
		return 1
	}
	return 0
}
