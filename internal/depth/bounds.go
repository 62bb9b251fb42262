package depth

import (
	"fmt"
	"sync"

	"github.com/Faultbox/meshdepth/pkg/formats"
	"github.com/Faultbox/meshdepth/pkg/math"
)

// BoundsAccumulator reduces per-frame vertex sets into one GlobalBounds.
// Frames are folded in as they arrive; nothing is rescanned. Add is safe for
// concurrent use and the result does not depend on the order of calls.
type BoundsAccumulator struct {
	mu     sync.Mutex
	bounds GlobalBounds
	frames int
}

// Add folds one frame's vertices into the running bounds.
func (a *BoundsAccumulator) Add(m *formats.Mesh) error {
	frameBounds, err := MeshBounds(m)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frames == 0 {
		a.bounds = frameBounds
	} else {
		a.bounds.Min = a.bounds.Min.Min(frameBounds.Min)
		a.bounds.Max = a.bounds.Max.Max(frameBounds.Max)
	}
	a.frames++
	return nil
}

// Frames returns how many frames have been added.
func (a *BoundsAccumulator) Frames() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames
}

// Result returns the bounds of everything added so far.
func (a *BoundsAccumulator) Result() (GlobalBounds, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frames == 0 {
		return GlobalBounds{}, ErrEmptySequence
	}
	return a.bounds, nil
}

// MeshBounds returns the bounding box of a single mesh.
func MeshBounds(m *formats.Mesh) (GlobalBounds, error) {
	if m == nil || len(m.Vertices) == 0 {
		return GlobalBounds{}, fmt.Errorf("%w: empty vertex array", ErrDimensionMismatch)
	}
	if m.Dim != 3 || len(m.Vertices)%3 != 0 {
		return GlobalBounds{}, fmt.Errorf("%w: %d components per vertex", ErrDimensionMismatch, m.Dim)
	}

	v := m.Vertices
	lo := math.Vec3{X: v[0], Y: v[1], Z: v[2]}
	hi := lo
	for i := 3; i < len(v); i += 3 {
		p := math.Vec3{X: v[i], Y: v[i+1], Z: v[i+2]}
		lo = lo.Min(p)
		hi = hi.Max(p)
	}
	return GlobalBounds{Min: lo, Max: hi}, nil
}
