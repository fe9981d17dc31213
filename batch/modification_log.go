package batch

import (
	"github.com/vkngwrapper/batcher/mesh"
)

// modification is a pending change to the buffers. A nil mesh is a tombstone: the handle's index
// span is to be overwritten with mesh.PrimitiveRestart.
type modification[V any] struct {
	mesh   mesh.Mesh[V]
	handle Handle
}

func (m modification[V]) IsTombstone() bool {
	return m.mesh == nil
}

// modificationLog is the ordered list of changes not yet recorded into the buffers
type modificationLog[V any] struct {
	entries []modification[V]
}

func (l *modificationLog[V]) Upload(m mesh.Mesh[V], handle Handle) {
	l.entries = append(l.entries, modification[V]{mesh: m, handle: handle})
}

func (l *modificationLog[V]) Tombstone(handle Handle) {
	l.entries = append(l.entries, modification[V]{handle: handle})
}

func (l *modificationLog[V]) Len() int {
	return len(l.entries)
}

// Drain calls apply for each entry in order. If apply fails, the failing entry and everything after
// it stay in the log.
func (l *modificationLog[V]) Drain(apply func(modification[V]) error) error {
	for i, entry := range l.entries {
		err := apply(entry)
		if err != nil {
			remaining := copy(l.entries, l.entries[i:])
			clear(l.entries[remaining:])
			l.entries = l.entries[:remaining]
			return err
		}
	}

	clear(l.entries)
	l.entries = l.entries[:0]
	return nil
}
