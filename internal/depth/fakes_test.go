package depth

import (
	"context"
	"fmt"
	gomath "math"
	"sync"

	"github.com/Faultbox/meshdepth/pkg/formats"
)

// memStore serves meshes from a map and counts loads.
type memStore struct {
	mu     sync.Mutex
	names  []string
	meshes map[string]*formats.Mesh
	loads  map[string]int
}

func newMemStore() *memStore {
	return &memStore{meshes: make(map[string]*formats.Mesh), loads: make(map[string]int)}
}

func (s *memStore) add(name string, m *formats.Mesh) {
	s.names = append(s.names, name)
	s.meshes[name] = m
}

func (s *memStore) List(ctx context.Context) ([]string, error) {
	return append([]string(nil), s.names...), nil
}

func (s *memStore) Load(ctx context.Context, name string) (*formats.Mesh, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads[name]++
	m, ok := s.meshes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return m, nil
}

func (s *memStore) loadCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[name]
}

// fakeRenderer reports the orthographic depth of every vertex as seen from
// radius 2, without rasterizing. Pixel 0 holds the nearest vertex, pixel 1
// the farthest, the last pixel is left uncovered.
type fakeRenderer struct {
	mu    sync.Mutex
	calls int
	// fail is consulted before rendering; call is 1 for the first render of
	// that vertex count and angle, 2 for the second, and so on.
	fail    func(vertexCount int, angle CameraAngle, call int) error
	perPair map[string]int
	normals bool
}

func (r *fakeRenderer) Render(ctx context.Context, vertices []float32, faces []uint32, angle CameraAngle) (*DepthBuffer, error) {
	r.mu.Lock()
	r.calls++
	if r.perPair == nil {
		r.perPair = make(map[string]int)
	}
	key := fmt.Sprintf("%d/%s", len(vertices)/3, angle.Label)
	r.perPair[key]++
	call := r.perPair[key]
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.fail != nil {
		if err := r.fail(len(vertices)/3, angle, call); err != nil {
			return nil, err
		}
	}
	if len(faces) == 0 {
		return nil, fmt.Errorf("%w: no faces", ErrRenderFailure)
	}

	dx, dz := gomath.Sin(angle.Radians), gomath.Cos(angle.Radians)
	near, far := gomath.Inf(1), gomath.Inf(-1)
	for i := 0; i+2 < len(vertices); i += 3 {
		d := 2 - (float64(vertices[i])*dx + float64(vertices[i+2])*dz)
		near = gomath.Min(near, d)
		far = gomath.Max(far, d)
	}

	buf := NewDepthBuffer(4, 1)
	buf.Depth[0] = float32(near)
	buf.Depth[1] = float32(far)
	buf.Depth[2] = float32(0.5 * (near + far))
	buf.UpdateExtrema()
	if r.normals {
		buf.Normals = make([]float32, 3*len(buf.Depth))
		for i := 0; i < 3; i++ {
			buf.Normals[3*i+2] = 1
		}
	}
	return buf, nil
}

func (r *fakeRenderer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// memWriter keeps written images in memory.
type memWriter struct {
	mu     sync.Mutex
	images map[string]*DepthImage
	fail   func(path string) error
}

func newMemWriter() *memWriter {
	return &memWriter{images: make(map[string]*DepthImage)}
}

func (w *memWriter) Write(path string, img *DepthImage) error {
	if w.fail != nil {
		if err := w.fail(path); err != nil {
			return err
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.images[path] = img
	return nil
}

func (w *memWriter) Ext() string { return ".png" }

func (w *memWriter) WriteNormals(path string, width, height int, normals []float32) error {
	if w.fail != nil {
		if err := w.fail(path); err != nil {
			return err
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.images[path] = &DepthImage{Width: width, Height: height}
	return nil
}

func (w *memWriter) Remove(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.images, path)
	return nil
}

func (w *memWriter) has(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.images[path]
	return ok
}

// triangle returns a single-triangle mesh. extra duplicates of the first
// vertex are appended so frames can be told apart by vertex count.
func triangle(a, b, c [3]float32, extra int) *formats.Mesh {
	m := &formats.Mesh{Dim: 3, Faces: []uint32{0, 1, 2}}
	for _, v := range [][3]float32{a, b, c} {
		m.Vertices = append(m.Vertices, v[0], v[1], v[2])
	}
	for i := 0; i < extra; i++ {
		m.Vertices = append(m.Vertices, a[0], a[1], a[2])
	}
	return m
}
