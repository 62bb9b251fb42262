// Package depth computes sequence-wide normalized depth maps for a series of
// reconstructed meshes.
//
// A run makes three passes over the frames. The bounds pass reduces every
// frame's vertices to one GlobalBounds. The range pass renders every
// normalized frame from every camera angle and reduces the reported depth
// extrema to one GlobalDepthRange. The emission pass renders every pair again
// and writes depth images normalized against that range. Both aggregates are
// plain values handed from pass to pass.
package depth

import (
	"context"
	"fmt"
	gomath "math"
	"strings"

	"github.com/Faultbox/meshdepth/pkg/formats"
	"github.com/Faultbox/meshdepth/pkg/math"
)

// MeshStore loads meshes by name.
type MeshStore interface {
	// List returns the names of all stored meshes in sequence order.
	List(ctx context.Context) ([]string, error)
	// Load returns the named mesh. Fails with ErrNotFound or ErrParseError.
	Load(ctx context.Context, name string) (*formats.Mesh, error)
}

// Renderer rasterizes an orthographic depth buffer of normalized geometry.
// Implementations fail with ErrRenderFailure on degenerate input.
type Renderer interface {
	Render(ctx context.Context, vertices []float32, faces []uint32, angle CameraAngle) (*DepthBuffer, error)
}

// ImageWriter persists a normalized depth image. Fails with ErrIOError.
type ImageWriter interface {
	Write(path string, img *DepthImage) error
	// Ext is the file extension, including the dot, of written images.
	Ext() string
}

// NormalWriter persists a per-pixel surface normal map.
type NormalWriter interface {
	WriteNormals(path string, width, height int, normals []float32) error
	// Remove deletes a normal map written for a pair that later failed.
	Remove(path string) error
	Ext() string
}

// GlobalBounds is the axis-aligned bounding box of every vertex in the
// sequence.
type GlobalBounds struct {
	Min math.Vec3
	Max math.Vec3
}

// Center returns the midpoint of the box. It is computed in float64 so
// bounds near the float32 limits do not overflow.
func (b GlobalBounds) Center() [3]float64 {
	var c [3]float64
	for a := math.AxisX; a <= math.AxisZ; a++ {
		c[a] = 0.5 * (float64(b.Max.Get(a)) + float64(b.Min.Get(a)))
	}
	return c
}

// Extent returns the size of the box along the given axis.
func (b GlobalBounds) Extent(a math.Axis) float64 {
	return float64(b.Max.Get(a)) - float64(b.Min.Get(a))
}

// GlobalDepthRange is the sequence-wide near/far depth range.
type GlobalDepthRange struct {
	Near float64
	Far  float64
}

// Normalize maps a depth into [0,1]. Values outside the range clamp. When
// the range is a single value, depths at or before it map to 0 and the rest
// to 1.
func (r GlobalDepthRange) Normalize(d float64) float64 {
	if gomath.IsNaN(d) {
		return 0
	}
	span := r.Far - r.Near
	if span <= 0 {
		if d <= r.Near {
			return 0
		}
		return 1
	}
	v := (d - r.Near) / span
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// CameraAngle is an azimuthal viewing direction around the vertical axis.
type CameraAngle struct {
	Label   string
	Radians float64
}

// Eye returns the camera position at the given distance from the origin.
func (a CameraAngle) Eye(radius float64) math.Vec3 {
	return math.Vec3{
		X: float32(radius * gomath.Sin(a.Radians)),
		Y: 0,
		Z: float32(radius * gomath.Cos(a.Radians)),
	}
}

// DefaultAngles returns the front and back views.
func DefaultAngles() []CameraAngle {
	return []CameraAngle{
		{Label: "front", Radians: 0},
		{Label: "back", Radians: gomath.Pi},
	}
}

// ValidateAngles checks that every angle has a usable, unique label.
// Labels name output directories, so duplicates collide.
func ValidateAngles(angles []CameraAngle) error {
	seen := make(map[string]bool, len(angles))
	for i, a := range angles {
		if a.Label == "" || a.Label == "." || a.Label == ".." || strings.ContainsAny(a.Label, `/\`) {
			return fmt.Errorf("angle %d: invalid label %q", i, a.Label)
		}
		if gomath.IsNaN(a.Radians) || gomath.IsInf(a.Radians, 0) {
			return fmt.Errorf("angle %s: non-finite rotation", a.Label)
		}
		if seen[a.Label] {
			return fmt.Errorf("%w: angle label %q used twice", ErrNameCollision, a.Label)
		}
		seen[a.Label] = true
	}
	return nil
}

// DepthBuffer is a row-major depth raster; row 0 is the top of the image.
// Uncovered pixels hold +Inf. Near and Far are the extrema of the covered
// pixels.
type DepthBuffer struct {
	Width  int
	Height int
	Depth  []float32
	Near   float64
	Far    float64
	// Normals holds three unit components per pixel when the renderer was
	// asked for them; uncovered pixels are zero.
	Normals []float32
}

// NewDepthBuffer allocates an empty buffer.
func NewDepthBuffer(width, height int) *DepthBuffer {
	d := make([]float32, width*height)
	inf := float32(gomath.Inf(1))
	for i := range d {
		d[i] = inf
	}
	return &DepthBuffer{Width: width, Height: height, Depth: d}
}

// Covered reports whether pixel i received geometry.
func (b *DepthBuffer) Covered(i int) bool {
	return !gomath.IsInf(float64(b.Depth[i]), 1)
}

// UpdateExtrema recomputes Near and Far from the covered pixels and returns
// how many pixels are covered.
func (b *DepthBuffer) UpdateExtrema() int {
	covered := 0
	near, far := gomath.Inf(1), gomath.Inf(-1)
	for i, d := range b.Depth {
		if !b.Covered(i) {
			continue
		}
		covered++
		near = gomath.Min(near, float64(d))
		far = gomath.Max(far, float64(d))
	}
	if covered > 0 {
		b.Near, b.Far = near, far
	}
	return covered
}

// DepthImage is a depth buffer normalized to [0,1].
type DepthImage struct {
	Width  int
	Height int
	Pix    []float64
}
