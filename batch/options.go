package batch

import (
	"github.com/vkngwrapper/batcher/mesh"
	"github.com/vkngwrapper/core/v2/common"
)

// CreateFlags exposes several options for renderer behavior
type CreateFlags int32

var createFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	createFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return createFlagsMapping.FlagsToString(f)
}

const (
	// RendererCreateCoalesceFreeSpans merges dropped spans with free spans directly before or after
	// them, in both address spaces. Without it, a free span is only ever reused whole or split.
	RendererCreateCoalesceFreeSpans CreateFlags = 1 << iota
	// RendererCreateValidateAlways runs Validate after every Push, Modify, Drop and Generate and
	// panics if it fails. This is very slow.
	RendererCreateValidateAlways
)

func init() {
	RendererCreateCoalesceFreeSpans.Register("RendererCreateCoalesceFreeSpans")
	RendererCreateValidateAlways.Register("RendererCreateValidateAlways")
}

// CreateOptions contains optional settings when creating a Renderer. It is valid to leave every
// field blank.
type CreateOptions[V any] struct {
	Flags CreateFlags

	// InitialVertexCapacity and InitialIndexCapacity, when nonzero, cause buffers of that many
	// elements to be created immediately. Otherwise the buffers are created by the first Generate
	// that needs them.
	InitialVertexCapacity int
	InitialIndexCapacity  int

	// DefaultMesh produces the geometry used by PushDefault
	DefaultMesh func() mesh.Mesh[V]
}
