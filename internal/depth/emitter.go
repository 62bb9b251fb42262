package depth

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// OutputPath returns where the image of a frame seen from an angle is
// written: one directory per angle label, the source name with its
// extension replaced.
func OutputPath(outDir, label, sourceName, ext string) string {
	stem := strings.TrimSuffix(sourceName, path.Ext(sourceName))
	return filepath.Join(outDir, label, stem+ext)
}

// NormalPath returns where the normal map of a pair is written, next to the
// angle's depth directory.
func NormalPath(outDir, label, sourceName, ext string) string {
	return OutputPath(outDir, label+"_normals", sourceName, ext)
}

// SourceName derives the output naming identifier from a store key.
func SourceName(name string) string {
	return path.Base(filepath.ToSlash(name))
}

// Emitter renders (frame, angle) pairs and writes depth images normalized
// against the global range.
type Emitter struct {
	OutDir string
	Angles []CameraAngle
	// Background is the value written for pixels no geometry covers.
	Background float64
	Renderer   Renderer
	Writer     ImageWriter
	// Normals, when set, also receives the normal map of every pair whose
	// buffer carries normals.
	Normals NormalWriter
}

// Plan returns the output path of every pair, indexed by frame then angle.
// Two pairs sharing a path fail with ErrNameCollision before anything is
// written.
func (e *Emitter) Plan(frames []string) ([][]string, error) {
	if err := ValidateAngles(e.Angles); err != nil {
		return nil, err
	}

	owner := make(map[string]string, len(frames)*len(e.Angles))
	claim := func(name, p string) error {
		key := filepath.Clean(p)
		if prev, ok := owner[key]; ok {
			return fmt.Errorf("%w: %s and %s both write %s", ErrNameCollision, prev, name, p)
		}
		owner[key] = name
		return nil
	}

	plan := make([][]string, len(frames))
	for i, name := range frames {
		plan[i] = make([]string, len(e.Angles))
		for j, a := range e.Angles {
			p := OutputPath(e.OutDir, a.Label, SourceName(name), e.Writer.Ext())
			if err := claim(name, p); err != nil {
				return nil, err
			}
			if e.Normals != nil {
				if err := claim(name, NormalPath(e.OutDir, a.Label, SourceName(name), e.Normals.Ext())); err != nil {
					return nil, err
				}
			}
			plan[i][j] = p
		}
	}
	return plan, nil
}

// Encode normalizes a depth buffer against the global range.
func (e *Emitter) Encode(buf *DepthBuffer, rng GlobalDepthRange) *DepthImage {
	bg := clamp01(e.Background)
	img := &DepthImage{Width: buf.Width, Height: buf.Height, Pix: make([]float64, len(buf.Depth))}
	for i, d := range buf.Depth {
		if !buf.Covered(i) {
			img.Pix[i] = bg
			continue
		}
		img.Pix[i] = rng.Normalize(float64(d))
	}
	return img
}

// EmitPair renders one pair of already-normalized geometry and writes its
// image. Renderer and writer failures come back as a *PairFailure; any other
// error (cancellation) is returned as is.
func (e *Emitter) EmitPair(ctx context.Context, frame string, vertices []float32, faces []uint32, angle CameraAngle, outPath string, rng GlobalDepthRange) error {
	buf, err := e.Renderer.Render(ctx, vertices, faces, angle)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !errors.Is(err, ErrRenderFailure) {
			err = fmt.Errorf("%w: %v", ErrRenderFailure, err)
		}
		return &PairFailure{Pass: PassEmit, Frame: frame, Angle: angle.Label, Err: err}
	}

	// The normal map goes first so a failed pair leaves no depth image.
	normalPath := ""
	if e.Normals != nil && buf.Normals != nil {
		normalPath = NormalPath(e.OutDir, angle.Label, SourceName(frame), e.Normals.Ext())
		if err := e.Normals.WriteNormals(normalPath, buf.Width, buf.Height, buf.Normals); err != nil {
			return e.writeFailure(frame, angle, err)
		}
	}

	if err := e.Writer.Write(outPath, e.Encode(buf, rng)); err != nil {
		if normalPath != "" {
			if rmErr := e.Normals.Remove(normalPath); rmErr != nil {
				err = errors.Join(err, rmErr)
			}
		}
		return e.writeFailure(frame, angle, err)
	}
	return nil
}

func (e *Emitter) writeFailure(frame string, angle CameraAngle, err error) error {
	if !errors.Is(err, ErrIOError) {
		err = fmt.Errorf("%w: %v", ErrIOError, err)
	}
	return &PairFailure{Pass: PassEmit, Frame: frame, Angle: angle.Label, Err: err}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
