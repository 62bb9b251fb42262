// Package raster is a CPU orthographic depth rasterizer.
package raster

import (
	"context"
	"fmt"
	gomath "math"

	"github.com/Faultbox/meshdepth/internal/depth"
	"github.com/Faultbox/meshdepth/internal/engine/camera"
	"github.com/Faultbox/meshdepth/pkg/formats"
)

// Config describes the virtual camera.
type Config struct {
	Width  int
	Height int
	// ViewSize is the width of the view volume in normalized units. Its
	// height follows the image aspect ratio.
	ViewSize float64
	// Radius is the distance of the eye from the origin.
	Radius float64
	// ClipNear and ClipFar bound the accepted view depth.
	ClipNear float64
	ClipFar  float64
	// Normals adds interpolated vertex normals to every buffer.
	Normals bool
}

// DefaultConfig returns a 512x512 camera two units from the origin that
// sees a one unit wide slab.
func DefaultConfig() Config {
	return Config{
		Width:    512,
		Height:   512,
		ViewSize: 1.0,
		Radius:   2.0,
		ClipNear: -100,
		ClipFar:  10,
	}
}

// Validate checks the camera parameters.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid render size %dx%d", c.Width, c.Height)
	}
	if !(c.ViewSize > 0) || gomath.IsInf(c.ViewSize, 0) {
		return fmt.Errorf("invalid view size %v", c.ViewSize)
	}
	if !(c.Radius > 0) || gomath.IsInf(c.Radius, 0) {
		return fmt.Errorf("invalid camera radius %v", c.Radius)
	}
	if !(c.ClipNear < c.ClipFar) {
		return fmt.Errorf("invalid clip range [%v, %v]", c.ClipNear, c.ClipFar)
	}
	return nil
}

// Renderer rasterizes triangles into a depth buffer. It holds no state
// between calls and is safe for concurrent use.
type Renderer struct {
	cfg Config
}

// New creates a renderer.
func New(cfg Config) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Renderer{cfg: cfg}, nil
}

// Camera returns the camera that renders angle.
func (c Config) Camera(angle depth.CameraAngle) camera.OrbitCamera {
	return camera.NewOrbitCamera(angle.Radians, c.Radius, c.ViewSize, c.Width, c.Height, c.ClipNear, c.ClipFar)
}

// screenVertex is a vertex in pixel coordinates with its view depth and
// world-space normal.
type screenVertex struct {
	x, y, depth float64
	normal      [3]float64
}

// CheckMesh rejects geometry no renderer can draw.
func CheckMesh(vertices []float32, faces []uint32) error {
	if len(vertices) == 0 || len(vertices)%3 != 0 {
		return fmt.Errorf("%w: %d vertex components", depth.ErrRenderFailure, len(vertices))
	}
	if len(faces) == 0 {
		return fmt.Errorf("%w: empty face list", depth.ErrRenderFailure)
	}
	if len(faces)%3 != 0 {
		return fmt.Errorf("%w: %d face indices", depth.ErrRenderFailure, len(faces))
	}
	n := uint32(len(vertices) / 3)
	for i, idx := range faces {
		if idx >= n {
			return fmt.Errorf("%w: face %d references missing vertex %d", depth.ErrRenderFailure, i/3, idx)
		}
	}
	return nil
}

// Render draws the mesh as seen from angle. Depth is the distance from the
// eye along the viewing axis. Triangles are not culled, so the nearest
// surface wins regardless of winding.
func (r *Renderer) Render(ctx context.Context, vertices []float32, faces []uint32, angle depth.CameraAngle) (*depth.DepthBuffer, error) {
	if err := CheckMesh(vertices, faces); err != nil {
		return nil, err
	}

	cfg := r.cfg
	cam := cfg.Camera(angle)
	view := cam.ViewMatrix()

	n := len(vertices) / 3
	var normals []float32
	if cfg.Normals {
		normals = formats.VertexNormals(vertices, faces)
	}
	screen := make([]screenVertex, n)
	for i := 0; i < n; i++ {
		p := view.TransformPoint([3]float32{vertices[3*i], vertices[3*i+1], vertices[3*i+2]})
		sv := &screen[i]
		sv.x, sv.y, sv.depth = cam.ToScreen(p, cfg.Width, cfg.Height)
		if normals != nil {
			sv.normal = [3]float64{float64(normals[3*i]), float64(normals[3*i+1]), float64(normals[3*i+2])}
		}
	}

	buf := depth.NewDepthBuffer(cfg.Width, cfg.Height)
	if cfg.Normals {
		buf.Normals = make([]float32, 3*len(buf.Depth))
	}
	drawn := 0
	for t := 0; t+2 < len(faces); t += 3 {
		if t%3072 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		i0, i1, i2 := faces[t], faces[t+1], faces[t+2]
		if r.drawTriangle(buf, screen[i0], screen[i1], screen[i2]) {
			drawn++
		}
	}

	if drawn == 0 {
		return nil, fmt.Errorf("%w: zero-area mesh", depth.ErrRenderFailure)
	}
	if buf.UpdateExtrema() == 0 {
		return nil, fmt.Errorf("%w: nothing visible from %s", depth.ErrRenderFailure, angle.Label)
	}
	return buf, nil
}

// drawTriangle writes the triangle's depth into buf wherever it is nearer
// than what is already there. It reports false for triangles with no area
// on screen.
func (r *Renderer) drawTriangle(buf *depth.DepthBuffer, a, b, c screenVertex) bool {
	area := edge(a, b, c.x, c.y)
	if gomath.Abs(area) < 1e-12 || gomath.IsNaN(area) {
		return false
	}

	minX := int(gomath.Floor(gomath.Min(a.x, gomath.Min(b.x, c.x))))
	maxX := int(gomath.Ceil(gomath.Max(a.x, gomath.Max(b.x, c.x))))
	minY := int(gomath.Floor(gomath.Min(a.y, gomath.Min(b.y, c.y))))
	maxY := int(gomath.Ceil(gomath.Max(a.y, gomath.Max(b.y, c.y))))
	minX, maxX = max(minX, 0), min(maxX, buf.Width-1)
	minY, maxY = max(minY, 0), min(maxY, buf.Height-1)

	for y := minY; y <= maxY; y++ {
		py := float64(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float64(x) + 0.5
			w0 := edge(b, c, px, py) / area
			w1 := edge(c, a, px, py) / area
			w2 := edge(a, b, px, py) / area
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			d := w0*a.depth + w1*b.depth + w2*c.depth
			if d < r.cfg.ClipNear || d > r.cfg.ClipFar {
				continue
			}
			i := y*buf.Width + x
			if float32(d) >= buf.Depth[i] {
				continue
			}
			buf.Depth[i] = float32(d)
			if buf.Normals != nil {
				setNormal(buf.Normals[3*i:3*i+3], w0, w1, w2, a.normal, b.normal, c.normal)
			}
		}
	}
	return true
}

// setNormal writes the unit blend of three vertex normals into dst, or zero
// when they cancel out.
func setNormal(dst []float32, w0, w1, w2 float64, a, b, c [3]float64) {
	var v [3]float64
	for k := range v {
		v[k] = w0*a[k] + w1*b[k] + w2*c[k]
	}
	l := gomath.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	for k := range v {
		if l > 0 {
			dst[k] = float32(v[k] / l)
		} else {
			dst[k] = 0
		}
	}
}

// edge is twice the signed area of the triangle (a, b, p).
func edge(a, b screenVertex, px, py float64) float64 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}
