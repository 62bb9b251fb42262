package formats

import (
	"fmt"
	gomath "math"

	"github.com/Faultbox/meshdepth/pkg/math"
)

// Mesh is an indexed triangle mesh.
// Vertices are stored flat with Dim components each; Faces holds three
// vertex indices per triangle.
type Mesh struct {
	Vertices []float32
	Dim      int
	Faces    []uint32
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	if m.Dim == 0 {
		return 0
	}
	return len(m.Vertices) / m.Dim
}

// FaceCount returns the number of triangles.
func (m *Mesh) FaceCount() int {
	return len(m.Faces) / 3
}

// Vertex returns vertex i. Only valid for 3-dimensional meshes.
func (m *Mesh) Vertex(i int) math.Vec3 {
	return math.Vec3{X: m.Vertices[3*i], Y: m.Vertices[3*i+1], Z: m.Vertices[3*i+2]}
}

// Validate checks that the vertex array is whole and that every face
// references an existing vertex.
func (m *Mesh) Validate() error {
	if m.Dim <= 0 {
		if len(m.Vertices) != 0 {
			return fmt.Errorf("%w: vertices without dimension", ErrMalformedMesh)
		}
		return nil
	}
	if len(m.Vertices)%m.Dim != 0 {
		return fmt.Errorf("%w: %d components is not a multiple of %d", ErrMalformedMesh, len(m.Vertices), m.Dim)
	}
	if len(m.Faces)%3 != 0 {
		return fmt.Errorf("%w: %d face indices is not a multiple of 3", ErrMalformedMesh, len(m.Faces))
	}
	n := uint32(m.VertexCount())
	for i, idx := range m.Faces {
		if idx >= n {
			return fmt.Errorf("%w: face %d references vertex %d of %d", ErrFaceIndex, i/3, idx, n)
		}
	}
	return nil
}

// VertexNormals computes area-weighted unit vertex normals for a flat
// 3-component vertex array. Vertices that belong to no face, or only to
// degenerate faces, get a zero normal.
func VertexNormals(vertices []float32, faces []uint32) []float32 {
	normals := make([]float32, len(vertices))
	vert := func(i uint32) math.Vec3 {
		return math.Vec3{X: vertices[3*i], Y: vertices[3*i+1], Z: vertices[3*i+2]}
	}

	for f := 0; f+2 < len(faces); f += 3 {
		a, b, c := faces[f], faces[f+1], faces[f+2]
		v0 := vert(a)
		// Unnormalized cross product weights by twice the triangle area.
		n := vert(b).Sub(v0).Cross(vert(c).Sub(v0))
		for _, idx := range [3]uint32{a, b, c} {
			normals[3*idx] += n.X
			normals[3*idx+1] += n.Y
			normals[3*idx+2] += n.Z
		}
	}

	for i := 0; i+2 < len(normals); i += 3 {
		x, y, z := float64(normals[i]), float64(normals[i+1]), float64(normals[i+2])
		l := gomath.Sqrt(x*x + y*y + z*z)
		if l < 1e-12 {
			normals[i], normals[i+1], normals[i+2] = 0, 0, 0
			continue
		}
		normals[i] = float32(x / l)
		normals[i+1] = float32(y / l)
		normals[i+2] = float32(z / l)
	}
	return normals
}
