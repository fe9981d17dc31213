package vulkan

import (
	"math"
	"math/bits"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// FindMemoryTypeIndex picks the memory type allowed by memoryTypeBits that has every required
// flag and, among those, the fewest missing preferred flags plus present not-preferred flags. Ties
// go to the lowest index.
func FindMemoryTypeIndex(
	properties *core1_0.PhysicalDeviceMemoryProperties,
	memoryTypeBits uint32,
	requiredFlags core1_0.MemoryPropertyFlags,
	preferredFlags core1_0.MemoryPropertyFlags,
	notPreferredFlags core1_0.MemoryPropertyFlags,
) (int, error) {
	bestMemoryTypeIndex := -1
	minCost := math.MaxInt

	for memTypeIndex := 0; memTypeIndex < len(properties.MemoryTypes); memTypeIndex++ {
		memTypeBit := uint32(1 << memTypeIndex)

		if memTypeBit&memoryTypeBits == 0 {
			// This memory type is banned by the bitmask
			continue
		}

		flags := properties.MemoryTypes[memTypeIndex].PropertyFlags
		if requiredFlags&flags != requiredFlags {
			continue
		}

		missingPreferredFlags := preferredFlags & ^flags
		presentNotPreferredFlags := notPreferredFlags & flags
		cost := bits.OnesCount32(uint32(missingPreferredFlags)) + bits.OnesCount32(uint32(presentNotPreferredFlags))
		if cost == 0 {
			return memTypeIndex, nil
		} else if cost < minCost {
			bestMemoryTypeIndex = memTypeIndex
			minCost = cost
		}
	}

	if bestMemoryTypeIndex < 0 {
		return -1, errors.Wrapf(core1_0.VKErrorFeatureNotPresent.ToError(),
			"no memory type in bits %#x has flags %s", memoryTypeBits, requiredFlags)
	}

	return bestMemoryTypeIndex, nil
}
