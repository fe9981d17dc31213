package spans

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/batcher/memutils"
	"golang.org/x/exp/slices"
)

type AllocatorFlags uint32

const (
	// AllocatorCoalesceFreeSpans merges a freed span with any free spans directly before or after it
	AllocatorCoalesceFreeSpans AllocatorFlags = 1 << iota
)

// Allocator hands out spans of element slots from a single unbounded address space. Freed spans
// are kept in a best-fit free set ordered by (length, offset) and reused before the tail advances.
// The address space never shrinks.
//
// Allocator is not safe for concurrent use.
type Allocator struct {
	flags AllocatorFlags

	nextOffset     int
	requestedTotal int

	free      []Span
	freeSlots int

	live           *swiss.Map[int, int]
	allocatedSlots int

	// Only populated with AllocatorCoalesceFreeSpans
	freeByOffset *swiss.Map[int, int]
	freeByEnd    *swiss.Map[int, int]
}

func NewAllocator(flags AllocatorFlags) *Allocator {
	a := &Allocator{flags: flags}
	a.Clear()
	return a
}

// Clear forgets every live and free span and moves the tail back to zero
func (a *Allocator) Clear() {
	a.nextOffset = 0
	a.requestedTotal = 0
	a.free = nil
	a.freeSlots = 0
	a.live = swiss.NewMap[int, int](64)
	a.allocatedSlots = 0

	a.freeByOffset = nil
	a.freeByEnd = nil
	if a.flags&AllocatorCoalesceFreeSpans != 0 {
		a.freeByOffset = swiss.NewMap[int, int](16)
		a.freeByEnd = swiss.NewMap[int, int](16)
	}
}

func (a *Allocator) Flags() AllocatorFlags { return a.flags }

// NextOffset is the first slot that has never been handed out
func (a *Allocator) NextOffset() int { return a.nextOffset }

// RequestedTotal is the number of slots a backing buffer must hold to cover every span ever handed out
func (a *Allocator) RequestedTotal() int { return a.requestedTotal }

func (a *Allocator) FreeSpanCount() int { return len(a.free) }

func (a *Allocator) SumFreeLength() int { return a.freeSlots }

func (a *Allocator) AllocationCount() int { return a.live.Count() }

// TryAllocate takes the smallest free span that can hold length slots, returning its prefix and
// putting any remainder back in the free set. It returns false if no free span is large enough.
func (a *Allocator) TryAllocate(length int) (Span, bool) {
	if length <= 0 {
		return Span{Offset: a.nextOffset}, true
	}

	index, _ := slices.BinarySearchFunc(a.free, Span{Length: length}, compareBySize)
	if index >= len(a.free) {
		return Span{}, false
	}

	block := a.free[index]
	a.removeFreeAt(index)

	if block.Length > length {
		a.insertFree(Span{Offset: block.Offset + length, Length: block.Length - length})
	}

	span := Span{Offset: block.Offset, Length: length}
	a.markLive(span)
	return span, true
}

// AllocateAtTail appends a new span to the end of the address space. It always succeeds.
func (a *Allocator) AllocateAtTail(length int) Span {
	if length <= 0 {
		return Span{Offset: a.nextOffset}
	}

	span := Span{Offset: a.nextOffset, Length: length}
	a.nextOffset += length
	a.requestedTotal += length
	a.markLive(span)
	return span
}

// Allocate reuses a free span when one fits and otherwise grows the tail
func (a *Allocator) Allocate(length int) Span {
	span, ok := a.TryAllocate(length)
	if ok {
		return span
	}

	return a.AllocateAtTail(length)
}

// IsLive reports whether span is an allocation Free would accept. Empty spans are always live.
func (a *Allocator) IsLive(span Span) bool {
	if span.IsEmpty() {
		return true
	}
	length, ok := a.live.Get(span.Offset)
	return ok && length == span.Length
}

// Free returns a live span to the free set. Empty spans are ignored.
func (a *Allocator) Free(span Span) error {
	if span.IsEmpty() {
		return nil
	}

	length, ok := a.live.Get(span.Offset)
	if !ok || length != span.Length {
		return errors.Wrapf(memutils.ErrUnknownSpan, "span %s", span)
	}

	a.live.Delete(span.Offset)
	a.allocatedSlots -= span.Length

	if a.flags&AllocatorCoalesceFreeSpans != 0 {
		span = a.absorbNeighbors(span)
	}

	a.insertFree(span)
	return nil
}

func (a *Allocator) absorbNeighbors(span Span) Span {
	leftOffset, hasLeft := a.freeByEnd.Get(span.Offset)
	if hasLeft {
		leftLength, _ := a.freeByOffset.Get(leftOffset)
		a.removeFree(Span{Offset: leftOffset, Length: leftLength})
		span = Span{Offset: leftOffset, Length: leftLength + span.Length}
	}

	rightLength, hasRight := a.freeByOffset.Get(span.End())
	if hasRight {
		a.removeFree(Span{Offset: span.End(), Length: rightLength})
		span.Length += rightLength
	}

	return span
}

func (a *Allocator) markLive(span Span) {
	a.live.Put(span.Offset, span.Length)
	a.allocatedSlots += span.Length
}

func (a *Allocator) insertFree(span Span) {
	index, _ := slices.BinarySearchFunc(a.free, span, compareBySize)
	a.free = slices.Insert(a.free, index, span)
	a.freeSlots += span.Length

	if a.freeByOffset != nil {
		a.freeByOffset.Put(span.Offset, span.Length)
		a.freeByEnd.Put(span.End(), span.Offset)
	}
}

func (a *Allocator) removeFree(span Span) {
	index, found := slices.BinarySearchFunc(a.free, span, compareBySize)
	if !found {
		panic(errors.AssertionFailedf("free span %s is indexed but missing from the free set", span))
	}
	a.removeFreeAt(index)
}

func (a *Allocator) removeFreeAt(index int) {
	span := a.free[index]
	a.free = slices.Delete(a.free, index, index+1)
	a.freeSlots -= span.Length

	if a.freeByOffset != nil {
		a.freeByOffset.Delete(span.Offset)
		a.freeByEnd.Delete(span.End())
	}
}

// VisitFreeSpans calls visit for each free span, smallest first, until visit returns false
func (a *Allocator) VisitFreeSpans(visit func(span Span) bool) {
	for _, span := range a.free {
		if !visit(span) {
			return
		}
	}
}

// VisitLiveSpans calls visit for each live span in no particular order, until visit returns false
func (a *Allocator) VisitLiveSpans(visit func(span Span) bool) {
	a.live.Iter(func(offset int, length int) bool {
		return !visit(Span{Offset: offset, Length: length})
	})
}

// Validate verifies that live spans, free spans and the untouched tail cover the address space
// exactly once, and that the free set and its bookkeeping agree
func (a *Allocator) Validate() error {
	if a.requestedTotal != a.nextOffset {
		return errors.AssertionFailedf("requested total %d does not match next offset %d", a.requestedTotal, a.nextOffset)
	}

	var freeSlots int
	for i, span := range a.free {
		if span.Length <= 0 {
			return errors.AssertionFailedf("free span %s is empty", span)
		}
		if i > 0 && compareBySize(a.free[i-1], span) >= 0 {
			return errors.AssertionFailedf("free span %s is out of order", span)
		}
		freeSlots += span.Length
	}

	if freeSlots != a.freeSlots {
		return errors.AssertionFailedf("free set holds %d slots but %d are recorded", freeSlots, a.freeSlots)
	}

	if a.freeByOffset != nil {
		if a.freeByOffset.Count() != len(a.free) || a.freeByEnd.Count() != len(a.free) {
			return errors.AssertionFailedf("coalescing index holds %d/%d entries for %d free spans",
				a.freeByOffset.Count(), a.freeByEnd.Count(), len(a.free))
		}
	}

	all := a.sortedSpans()

	expectedOffset := 0
	var allocatedSlots int
	for _, entry := range all {
		if entry.span.Offset != expectedOffset {
			if entry.span.Offset < expectedOffset {
				return errors.AssertionFailedf("span %s overlaps a preceding span", entry.span)
			}
			return errors.AssertionFailedf("slots [%d, %d) are neither live nor free", expectedOffset, entry.span.Offset)
		}
		if !entry.free {
			allocatedSlots += entry.span.Length
		}
		expectedOffset = entry.span.End()
	}

	if expectedOffset != a.nextOffset {
		return errors.AssertionFailedf("spans end at %d but the tail is at %d", expectedOffset, a.nextOffset)
	}

	if allocatedSlots != a.allocatedSlots {
		return errors.AssertionFailedf("live spans hold %d slots but %d are recorded", allocatedSlots, a.allocatedSlots)
	}

	return nil
}

type mapEntry struct {
	span Span
	free bool
}

func (a *Allocator) sortedSpans() []mapEntry {
	entries := make([]mapEntry, 0, len(a.free)+a.live.Count())
	for _, span := range a.free {
		entries = append(entries, mapEntry{span: span, free: true})
	}
	a.VisitLiveSpans(func(span Span) bool {
		entries = append(entries, mapEntry{span: span})
		return true
	})

	sort.Slice(entries, func(i, j int) bool {
		return compareByOffset(entries[i].span, entries[j].span) < 0
	})
	return entries
}

// AddStatistics adds this allocator's live allocations and tail position to stats
func (a *Allocator) AddStatistics(stats *memutils.Statistics) {
	stats.AllocationCount += a.live.Count()
	stats.AllocationSlots += a.allocatedSlots
	stats.RequestedSlots += a.requestedTotal
}

func (a *Allocator) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.RequestedSlots += a.requestedTotal

	a.live.Iter(func(offset int, length int) bool {
		stats.AddAllocation(length)
		return false
	})

	for _, span := range a.free {
		stats.AddFreeSpan(span.Length)
	}
}

// JSONData populates a json object with a summary of the address space followed by every span in
// offset order
func (a *Allocator) JSONData(json jwriter.ObjectState) {
	json.Name("TotalSlots").Int(a.requestedTotal)
	json.Name("FreeSlots").Int(a.freeSlots)
	json.Name("Allocations").Int(a.live.Count())
	json.Name("FreeSpans").Int(len(a.free))

	spanArray := json.Name("Spans").Array()
	for _, entry := range a.sortedSpans() {
		spanObj := spanArray.Object()
		spanObj.Name("Offset").Int(entry.span.Offset)
		spanObj.Name("Length").Int(entry.span.Length)
		if entry.free {
			spanObj.Name("Type").String("FREE")
		} else {
			spanObj.Name("Type").String("LIVE")
		}
		spanObj.End()
	}
	spanArray.End()
}
