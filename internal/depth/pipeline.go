package depth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/meshdepth/pkg/formats"
)

// Pipeline runs the three passes over a frame sequence.
type Pipeline struct {
	Store    MeshStore
	Renderer Renderer
	Writer   ImageWriter
	// Normals optionally writes normal maps alongside the depth images.
	Normals NormalWriter
	Angles  []CameraAngle
	OutDir  string
	// Background is the normalized value of pixels no geometry covers.
	Background float64
	// Workers bounds how many frames are processed at once. Values below 1
	// mean sequential processing.
	Workers int
	Cache   *MeshCache
	Log     *zap.Logger
}

func (p *Pipeline) log() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}

// Run computes the global bounds and depth range, then writes every depth
// image. A frame that cannot be loaded aborts the run with a *FrameError;
// pairs that cannot be rendered or written are collected in the report.
func (p *Pipeline) Run(ctx context.Context, frames []string) (*Report, error) {
	start := time.Now()

	emitter := p.emitter()
	plan, err := emitter.Plan(frames)
	if err != nil {
		return nil, err
	}

	bounds, err := p.ComputeBounds(ctx, frames)
	if err != nil {
		return nil, err
	}
	norm, err := NewNormalizer(bounds)
	if err != nil {
		return nil, err
	}

	ranged, err := p.ComputeRange(ctx, frames, norm)
	if err != nil {
		return nil, err
	}

	report, err := p.emit(ctx, frames, plan, norm, ranged.Range, ranged.Failures)
	if err != nil {
		return nil, err
	}
	report.Bounds = bounds
	report.Scale = norm.Scale()
	report.Extents = ranged.Extents
	report.CacheHits, report.CacheMisses = p.Cache.Stats()
	report.Duration = time.Since(start)

	p.log().Info("run complete",
		zap.Int("frames", report.Frames),
		zap.Int("written", len(report.Outputs)),
		zap.Int("failed", len(report.Failures)),
		zap.Duration("elapsed", report.Duration),
	)
	return report, nil
}

// ComputeBounds is the first pass: it loads every frame and reduces their
// vertices to one bounding box. Loaded meshes are offered to the cache.
func (p *Pipeline) ComputeBounds(ctx context.Context, frames []string) (GlobalBounds, error) {
	log := p.log().Named(PassBounds)
	log.Info("finding vertex bounds", zap.Int("frames", len(frames)))

	var acc BoundsAccumulator
	err := p.forEach(ctx, len(frames), func(ctx context.Context, i int) error {
		name := frames[i]
		m, err := p.load(ctx, PassBounds, name)
		if err != nil {
			return err
		}
		if err := acc.Add(m); err != nil {
			return &FrameError{Pass: PassBounds, Frame: name, Err: err}
		}
		p.Cache.Put(name, m)
		log.Debug("checked model bounds",
			zap.Int("index", i),
			zap.Int("total", len(frames)),
			zap.String("frame", name),
			zap.Int("vertices", m.VertexCount()),
		)
		return nil
	})
	if err != nil {
		return GlobalBounds{}, err
	}

	bounds, err := acc.Result()
	if err != nil {
		return GlobalBounds{}, err
	}
	lo, hi := bounds.Min.Array(), bounds.Max.Array()
	log.Info("all model bounds",
		zap.Float32s("min", lo[:]),
		zap.Float32s("max", hi[:]),
	)
	return bounds, nil
}

// RangeResult is the outcome of the range pass.
type RangeResult struct {
	Range   GlobalDepthRange
	Extents []FrameExtent
	// Failures are the pairs that could not be rendered. They contribute
	// nothing to Range and are not rendered again by Emit.
	Failures []PairFailure
}

// ComputeRange is the second pass: it renders every normalized frame from
// every angle and reduces the reported extrema to one depth range.
func (p *Pipeline) ComputeRange(ctx context.Context, frames []string, norm *Normalizer) (*RangeResult, error) {
	log := p.log().Named(PassRange)
	log.Info("finding depth bounds", zap.Int("frames", len(frames)), zap.Int("angles", len(p.Angles)))

	var (
		acc      RangeAccumulator
		mu       sync.Mutex
		failures []indexedFailure
	)
	err := p.forEach(ctx, len(frames), func(ctx context.Context, i int) error {
		name := frames[i]
		m, err := p.load(ctx, PassRange, name)
		if err != nil {
			return err
		}
		verts, err := norm.Apply(m)
		if err != nil {
			return &FrameError{Pass: PassRange, Frame: name, Err: err}
		}

		for j, angle := range p.Angles {
			buf, err := p.Renderer.Render(ctx, verts, m.Faces, angle)
			if err == nil {
				err = acc.Observe(DepthSample{FrameIndex: i, Frame: name, Angle: angle.Label, Near: buf.Near, Far: buf.Far})
			}
			if err == nil {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if !errors.Is(err, ErrRenderFailure) {
				err = fmt.Errorf("%w: %v", ErrRenderFailure, err)
			}
			log.Warn("skipping pair", zap.String("frame", name), zap.String("angle", angle.Label), zap.Error(err))
			mu.Lock()
			failures = append(failures, indexedFailure{
				pairKey{frame: i, angle: j},
				PairFailure{Pass: PassRange, Frame: name, Angle: angle.Label, Err: err},
			})
			mu.Unlock()
		}
		log.Debug("checked model depth", zap.Int("index", i), zap.Int("total", len(frames)), zap.String("frame", name))
		return nil
	})
	if err != nil {
		return nil, err
	}

	rng, err := acc.Result()
	if err != nil {
		return nil, err
	}
	log.Info("depth range", zap.Float64("near", rng.Near), zap.Float64("far", rng.Far))
	return &RangeResult{Range: rng, Extents: acc.Extents(), Failures: sortFailures(failures)}, nil
}

// Emit is the third pass: it writes a depth image for every (frame, angle)
// pair not listed in skip. It must only run once the bounds and range are
// final.
func (p *Pipeline) Emit(ctx context.Context, frames []string, norm *Normalizer, rng GlobalDepthRange, skip []PairFailure) (*Report, error) {
	plan, err := p.emitter().Plan(frames)
	if err != nil {
		return nil, err
	}
	return p.emit(ctx, frames, plan, norm, rng, skip)
}

func (p *Pipeline) emit(ctx context.Context, frames []string, plan [][]string, norm *Normalizer, rng GlobalDepthRange, skip []PairFailure) (*Report, error) {
	log := p.log().Named(PassEmit)
	log.Info("creating depthmaps", zap.Int("frames", len(frames)), zap.Int("angles", len(p.Angles)))

	emitter := p.emitter()
	skipped := make(map[[2]string]PairFailure, len(skip))
	for _, f := range skip {
		skipped[[2]string{f.Frame, f.Angle}] = f
	}

	var (
		mu       sync.Mutex
		outputs  []indexedOutput
		failures []indexedFailure
	)
	record := func(key pairKey, f PairFailure) {
		mu.Lock()
		failures = append(failures, indexedFailure{key, f})
		mu.Unlock()
	}

	err := p.forEach(ctx, len(frames), func(ctx context.Context, i int) error {
		name := frames[i]
		m, err := p.load(ctx, PassEmit, name)
		if err != nil {
			return err
		}
		verts, err := norm.Apply(m)
		if err != nil {
			return &FrameError{Pass: PassEmit, Frame: name, Err: err}
		}

		for j, angle := range p.Angles {
			key := pairKey{frame: i, angle: j}
			if f, ok := skipped[[2]string{name, angle.Label}]; ok {
				record(key, f)
				continue
			}

			err := emitter.EmitPair(ctx, name, verts, m.Faces, angle, plan[i][j], rng)
			var failure *PairFailure
			switch {
			case err == nil:
				mu.Lock()
				outputs = append(outputs, indexedOutput{key, Output{Frame: name, Angle: angle.Label, Path: plan[i][j]}})
				mu.Unlock()
			case errors.As(err, &failure):
				log.Warn("skipping pair", zap.String("frame", name), zap.String("angle", angle.Label), zap.Error(failure.Err))
				record(key, *failure)
			default:
				return err
			}
		}
		p.Cache.Evict(name)
		log.Debug("exported depthmaps", zap.Int("index", i), zap.Int("total", len(frames)), zap.String("frame", name))
		return nil
	})
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(p.Angles))
	for i, a := range p.Angles {
		labels[i] = a.Label
	}
	return &Report{
		Frames:   len(frames),
		Angles:   labels,
		Range:    rng,
		Outputs:  sortOutputs(outputs),
		Failures: sortFailures(failures),
	}, nil
}

func (p *Pipeline) emitter() *Emitter {
	return &Emitter{
		OutDir:     p.OutDir,
		Angles:     p.Angles,
		Background: p.Background,
		Renderer:   p.Renderer,
		Writer:     p.Writer,
		Normals:    p.Normals,
	}
}

// load returns a frame's raw mesh from the cache or the store. A frame that
// cannot be loaded aborts the run.
func (p *Pipeline) load(ctx context.Context, pass, name string) (*formats.Mesh, error) {
	if m, ok := p.Cache.Get(name); ok {
		return m, nil
	}
	m, err := p.Store.Load(ctx, name)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &FrameError{Pass: pass, Frame: name, Err: err}
	}
	return m, nil
}

// forEach calls fn for indices [0, n) on at most Workers goroutines and
// returns the first error, cancelling the remaining calls.
func (p *Pipeline) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled: %w", err)
	}
	return nil
}
