// Package store loads reconstructed meshes from a directory tree.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Faultbox/meshdepth/internal/depth"
	"github.com/Faultbox/meshdepth/pkg/formats"
)

// Dir serves every .obj and .ply file below Root. Names are slash-separated
// paths relative to Root.
type Dir struct {
	Root string
}

// NewDir returns a store rooted at root. The directory must exist.
func NewDir(root string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("open mesh directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open mesh directory: %s is not a directory", root)
	}
	return &Dir{Root: root}, nil
}

// List walks Root and returns the mesh files in lexical order. Hidden files
// and directories are skipped.
func (d *Dir) List(ctx context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != d.Root && strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !formats.IsMeshFile(entry.Name()) {
			return nil
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list meshes in %s: %w", d.Root, err)
	}
	sort.Strings(names)
	return names, nil
}

// Load reads and parses the named mesh.
func (d *Dir) Load(ctx context.Context, name string) (*formats.Mesh, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return nil, fmt.Errorf("%w: %s is outside %s", depth.ErrNotFound, name, d.Root)
	}

	data, err := os.ReadFile(filepath.Join(d.Root, local))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", depth.ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: read %s: %w", depth.ErrNotFound, name, err)
	}

	m, err := formats.Parse(name, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", depth.ErrParseError, name, err)
	}
	return m, nil
}
