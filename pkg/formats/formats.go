// Package formats provides parsers for the triangle mesh files written by
// human reconstruction models (Wavefront OBJ and Stanford PLY).
package formats

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Mesh parsing errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported mesh format")
	ErrMalformedMesh     = errors.New("malformed mesh data")
	ErrFaceIndex         = errors.New("face index out of range")
)

// Extensions lists the mesh file extensions Parse understands.
var Extensions = []string{".obj", ".ply"}

// IsMeshFile reports whether name has a supported mesh extension.
func IsMeshFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Parse decodes mesh data, choosing the parser from the file extension of name.
func Parse(name string, data []byte) (*Mesh, error) {
	var (
		m   *Mesh
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".obj":
		m, err = ParseOBJ(data)
	case ".ply":
		m, err = ParsePLY(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
