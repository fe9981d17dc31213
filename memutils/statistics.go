package memutils

import "math"

// Statistics summarizes a single element address space: how many spans are live, how many slots
// they cover, how far the tail has advanced, and how large the backing buffer is
type Statistics struct {
	AllocationCount int
	AllocationSlots int
	RequestedSlots  int
	CapacitySlots   int
}

func (s *Statistics) Clear() {
	s.AllocationCount = 0
	s.AllocationSlots = 0
	s.RequestedSlots = 0
	s.CapacitySlots = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.AllocationCount += other.AllocationCount
	s.AllocationSlots += other.AllocationSlots
	s.RequestedSlots += other.RequestedSlots
	s.CapacitySlots += other.CapacitySlots
}

type DetailedStatistics struct {
	Statistics
	FreeSpanCount     int
	FreeSlots         int
	AllocationSizeMin int
	AllocationSizeMax int
	FreeSpanSizeMin   int
	FreeSpanSizeMax   int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FreeSpanCount = 0
	s.FreeSlots = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.FreeSpanSizeMin = math.MaxInt
	s.FreeSpanSizeMax = 0
}

func (s *DetailedStatistics) AddFreeSpan(size int) {
	s.FreeSpanCount++
	s.FreeSlots += size

	if size < s.FreeSpanSizeMin {
		s.FreeSpanSizeMin = size
	}

	if size > s.FreeSpanSizeMax {
		s.FreeSpanSizeMax = size
	}
}

func (s *DetailedStatistics) AddAllocation(size int) {
	s.AllocationCount++
	s.AllocationSlots += size

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}

	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FreeSpanCount += other.FreeSpanCount
	s.FreeSlots += other.FreeSlots

	if other.FreeSpanSizeMin < s.FreeSpanSizeMin {
		s.FreeSpanSizeMin = other.FreeSpanSizeMin
	}

	if other.FreeSpanSizeMax > s.FreeSpanSizeMax {
		s.FreeSpanSizeMax = other.FreeSpanSizeMax
	}

	if other.AllocationSizeMin < s.AllocationSizeMin {
		s.AllocationSizeMin = other.AllocationSizeMin
	}

	if other.AllocationSizeMax > s.AllocationSizeMax {
		s.AllocationSizeMax = other.AllocationSizeMax
	}
}

// RendererStatistics is filled by a renderer with one DetailedStatistics per address space
type RendererStatistics struct {
	Vertices             DetailedStatistics
	Indices              DetailedStatistics
	PendingModifications int
}

func (s *RendererStatistics) Clear() {
	s.Vertices.Clear()
	s.Indices.Clear()
	s.PendingModifications = 0
}
