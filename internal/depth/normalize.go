package depth

import (
	"fmt"
	gomath "math"

	"github.com/Faultbox/meshdepth/pkg/formats"
	"github.com/Faultbox/meshdepth/pkg/math"
)

// Normalizer maps raw vertices into the shared frame: centered on the
// global bounds and divided by their vertical extent, so the tallest pose of
// the sequence spans exactly one unit. Wide poses may exceed one unit
// horizontally.
type Normalizer struct {
	bounds GlobalBounds
	center [3]float64
	scale  float64
}

// NewNormalizer builds a Normalizer for the given bounds. It fails with
// ErrDegenerateScale if the vertical extent is zero or not finite.
func NewNormalizer(b GlobalBounds) (*Normalizer, error) {
	scale := b.Extent(math.Vertical)
	if scale == 0 || gomath.IsNaN(scale) || gomath.IsInf(scale, 0) {
		return nil, fmt.Errorf("%w: vertical extent %v", ErrDegenerateScale, scale)
	}
	if !b.Min.IsFinite() || !b.Max.IsFinite() {
		return nil, fmt.Errorf("%w: bounds %v..%v are not finite", ErrDegenerateScale, b.Min, b.Max)
	}

	return &Normalizer{
		bounds: b,
		center: b.Center(),
		scale:  scale,
	}, nil
}

// Bounds returns the bounds the normalizer was built from.
func (n *Normalizer) Bounds() GlobalBounds { return n.bounds }

// Scale returns the divisor applied to centered vertices.
func (n *Normalizer) Scale() float64 { return n.scale }

// Center returns the point mapped to the origin.
func (n *Normalizer) Center() math.Vec3 {
	return math.Vec3{X: float32(n.center[0]), Y: float32(n.center[1]), Z: float32(n.center[2])}
}

// Apply returns the normalized copy of a mesh's vertices. The mesh is not
// modified.
func (n *Normalizer) Apply(m *formats.Mesh) ([]float32, error) {
	if m.Dim != 3 || len(m.Vertices)%3 != 0 {
		return nil, fmt.Errorf("%w: %d components per vertex", ErrDimensionMismatch, m.Dim)
	}
	out := make([]float32, len(m.Vertices))
	for i, v := range m.Vertices {
		out[i] = float32((float64(v) - n.center[i%3]) / n.scale)
	}
	return out, nil
}
