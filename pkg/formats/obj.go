package formats

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ParseOBJ parses Wavefront OBJ geometry. Only vertex positions ("v") and
// faces ("f") are read; polygons are fan-triangulated. Vertex colors
// appended to "v" lines (as written by PIFu-style exporters) are ignored.
func ParseOBJ(data []byte) (*Mesh, error) {
	m := &Mesh{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "v":
			if err := parseOBJVertex(m, fields[1:]); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		case "f":
			if err := parseOBJFace(m, fields[1:]); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMesh, err)
	}
	return m, nil
}

// parseOBJVertex appends one "v" record. Two components make a 2D vertex;
// three or more are read as x y z followed by an optional w or color.
func parseOBJVertex(m *Mesh, fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("%w: vertex with %d components", ErrMalformedMesh, len(fields))
	}
	dim := 3
	if len(fields) == 2 {
		dim = 2
	}
	if m.Dim == 0 {
		m.Dim = dim
	} else if m.Dim != dim {
		return fmt.Errorf("%w: mixed %dD and %dD vertices", ErrMalformedMesh, m.Dim, dim)
	}

	for i := 0; i < dim; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return fmt.Errorf("%w: vertex component %q", ErrMalformedMesh, fields[i])
		}
		m.Vertices = append(m.Vertices, float32(f))
	}
	return nil
}

// parseOBJFace appends the triangles of one "f" record. Indices are
// 1-based; negative indices count back from the latest vertex.
func parseOBJFace(m *Mesh, fields []string) error {
	if len(fields) < 3 {
		return fmt.Errorf("%w: face with %d vertices", ErrMalformedMesh, len(fields))
	}

	count := m.VertexCount()
	idx := make([]uint32, len(fields))
	for i, tok := range fields {
		// v, v/vt, v//vn and v/vt/vn all start with the position index.
		if slash := strings.IndexByte(tok, '/'); slash >= 0 {
			tok = tok[:slash]
		}
		n, err := strconv.Atoi(tok)
		if err != nil || n == 0 {
			return fmt.Errorf("%w: face index %q", ErrMalformedMesh, fields[i])
		}
		if n < 0 {
			n = count + n + 1
		}
		if n < 1 || n > count {
			return fmt.Errorf("%w: %d (have %d vertices)", ErrFaceIndex, n, count)
		}
		idx[i] = uint32(n - 1)
	}

	for i := 1; i+1 < len(idx); i++ {
		m.Faces = append(m.Faces, idx[0], idx[i], idx[i+1])
	}
	return nil
}
