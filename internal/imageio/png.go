// Package imageio writes normalized depth images to disk.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	gomath "math"
	"os"
	"path/filepath"

	"github.com/Faultbox/meshdepth/internal/depth"
)

// PNGWriter writes single-channel PNG files with 8 or 16 bits per pixel.
type PNGWriter struct {
	BitDepth int
}

// NewPNGWriter creates a writer for the given bit depth.
func NewPNGWriter(bitDepth int) (*PNGWriter, error) {
	if bitDepth != 8 && bitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d (want 8 or 16)", bitDepth)
	}
	return &PNGWriter{BitDepth: bitDepth}, nil
}

// Ext returns ".png".
func (w *PNGWriter) Ext() string { return ".png" }

// Write encodes img and replaces path with it.
func (w *PNGWriter) Write(path string, img *depth.DepthImage) error {
	if len(img.Pix) != img.Width*img.Height {
		return fmt.Errorf("%w: %s: pixel data size mismatch: expected %d, got %d",
			depth.ErrIOError, path, img.Width*img.Height, len(img.Pix))
	}

	return writeAtomic(path, w.Image(img))
}

// WriteNormals encodes unit normals as 8-bit RGB, mapping each component
// from [-1,1] to [0,255]. Pixels with a zero normal are written black.
func (w *PNGWriter) WriteNormals(path string, width, height int, normals []float32) error {
	if len(normals) != 3*width*height {
		return fmt.Errorf("%w: %s: normal data size mismatch: expected %d, got %d",
			depth.ErrIOError, path, 3*width*height, len(normals))
	}

	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		n := normals[3*i : 3*i+3]
		if n[0] == 0 && n[1] == 0 && n[2] == 0 {
			out.Pix[4*i+3] = 0xff
			continue
		}
		for k := 0; k < 3; k++ {
			out.Pix[4*i+k] = uint8(Quantize(0.5*float64(n[k])+0.5, 0xff))
		}
		out.Pix[4*i+3] = 0xff
	}
	return writeAtomic(path, out)
}

// Remove deletes a previously written file. A missing file is not an error.
func (w *PNGWriter) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", depth.ErrIOError, err)
	}
	return nil
}

// writeAtomic encodes img next to path and renames it into place. Parent
// directories are created as needed. A failed write leaves no partial file
// behind.
func writeAtomic(path string, img image.Image) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating output dir: %v", depth.ErrIOError, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: creating file: %v", depth.ErrIOError, err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: encoding PNG %s: %v", depth.ErrIOError, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", depth.ErrIOError, path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %v", depth.ErrIOError, err)
	}
	return nil
}

// Image quantizes a depth image. Values are clamped to [0,1] and rounded to
// the nearest level.
func (w *PNGWriter) Image(img *depth.DepthImage) image.Image {
	rect := image.Rect(0, 0, img.Width, img.Height)
	if w.BitDepth == 16 {
		out := image.NewGray16(rect)
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				out.SetGray16(x, y, color.Gray16{Y: uint16(Quantize(img.Pix[y*img.Width+x], 0xffff))})
			}
		}
		return out
	}

	out := image.NewGray(rect)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			out.SetGray(x, y, color.Gray{Y: uint8(Quantize(img.Pix[y*img.Width+x], 0xff))})
		}
	}
	return out
}

// Quantize maps v in [0,1] to an integer level in [0,levels].
func Quantize(v float64, levels int) int {
	if gomath.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return levels
	}
	return int(gomath.Round(v * float64(levels)))
}

// Read decodes a PNG written by Write back into normalized values.
func Read(path string) (*depth.DepthImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", depth.ErrIOError, err)
	}
	defer f.Close()

	src, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", depth.ErrIOError, path, err)
	}

	b := src.Bounds()
	img := &depth.DepthImage{Width: b.Dx(), Height: b.Dy(), Pix: make([]float64, b.Dx()*b.Dy())}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			g := color.Gray16Model.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			img.Pix[y*img.Width+x] = float64(g.Y) / 0xffff
		}
	}
	return img, nil
}
