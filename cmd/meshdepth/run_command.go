package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/meshdepth/internal/config"
	"github.com/Faultbox/meshdepth/internal/depth"
	"github.com/Faultbox/meshdepth/internal/diagnostics"
	"github.com/Faultbox/meshdepth/internal/engine/glrender"
	"github.com/Faultbox/meshdepth/internal/engine/raster"
	"github.com/Faultbox/meshdepth/internal/imageio"
	"github.com/Faultbox/meshdepth/internal/ledger"
	"github.com/Faultbox/meshdepth/internal/logger"
	"github.com/Faultbox/meshdepth/internal/store"
)

// lockName is the exclusive lock held inside the output directory.
const lockName = ".meshdepth.lock"

// errPartialRun is returned after a run that skipped some pairs. Every
// written image is still valid.
var errPartialRun = errors.New("partial run")

func newRunCommand(ctx *commandContext) *cobra.Command {
	ov := &ctx.overrides

	cmd := &cobra.Command{
		Use:   "run <mesh-dir>",
		Short: "Render normalized depth maps for every mesh frame in a directory",
		Long: `Run loads every .obj and .ply file below <mesh-dir> in lexical order,
normalizes all frames with one shared transform, and writes one depth
image per frame and camera angle to <out>/<angle>/<frame>.png. Depth is
normalized over the whole sequence so values are comparable across frames.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDepth(sigCtx, cfg, args[0], cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&ov.OutDir, "out", "o", "", "Output directory")
	flags.StringVar(&ov.Backend, "backend", "", "Renderer: software or gl")
	flags.IntVar(&ov.Width, "width", 0, "Image width in pixels")
	flags.IntVar(&ov.Height, "height", 0, "Image height in pixels")
	flags.IntVar(&ov.BitDepth, "bit-depth", 0, "PNG bit depth: 8 or 16")
	flags.IntVarP(&ov.Workers, "workers", "j", 0, "Frames processed in parallel")
	flags.IntVar(&ov.CacheSize, "cache-size", 0, "Parsed meshes kept between passes (0 = config value)")
	flags.BoolVar(&ov.NoCache, "no-cache", false, "Reload meshes on every pass")
	flags.BoolVar(&ov.NoLedger, "no-ledger", false, "Do not record the run in the history database")
	flags.BoolVar(&ov.Plot, "plot", false, "Write a per-frame depth range chart")
	flags.BoolVar(&ov.Normals, "normals", false, "Also write normal maps to <out>/<angle>_normals")

	return cmd
}

// runDepth runs the pipeline over inputDir and reports the result to out.
func runDepth(ctx context.Context, cfg *config.Config, inputDir string, out io.Writer) error {
	log := logger.Named("run")
	started := time.Now()

	st, err := store.NewDir(inputDir)
	if err != nil {
		return err
	}
	frames, err := st.List(ctx)
	if err != nil {
		return err
	}
	log.Info("found mesh frames", zap.String("dir", inputDir), zap.Int("frames", len(frames)))

	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	lockPath := filepath.Join(cfg.Output.Dir, lockName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire output lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another meshdepth run is writing to %s", cfg.Output.Dir)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("failed to release output lock", zap.String("lock", lockPath), zap.Error(err))
		}
	}()

	renderer, closeRenderer, err := newRenderer(cfg, logger.Named("render"))
	if err != nil {
		return err
	}
	defer closeRenderer()

	writer, err := imageio.NewPNGWriter(cfg.Output.BitDepth)
	if err != nil {
		return err
	}

	p := &depth.Pipeline{
		Store:      st,
		Renderer:   renderer,
		Writer:     writer,
		Angles:     cfg.CameraAngles(),
		OutDir:     cfg.Output.Dir,
		Background: cfg.Render.Background,
		Workers:    cfg.Pipeline.Workers,
		Cache:      depth.NewMeshCache(cfg.Cache.MaxFrames),
		Log:        logger.Named("pipeline"),
	}
	if cfg.Output.Normals {
		p.Normals = writer
	}

	report, err := p.Run(ctx, frames)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, renderReport(report))
	if report.Partial() {
		fmt.Fprintln(out, renderFailures(report.Failures))
	}

	if cfg.Diagnostics.Plot {
		writeDiagnostics(out, report, cfg.DiagnosticsDir(), log)
	}

	runID := ""
	if cfg.Ledger.Enabled {
		run := ledger.NewRun(report, inputDir, cfg.Output.Dir, cfg.Render.Backend, started)
		if err := recordRun(ctx, cfg.LedgerPath(), run); err != nil {
			log.Warn("failed to record run", zap.String("ledger", cfg.LedgerPath()), zap.Error(err))
		} else {
			runID = run.ID
			fmt.Fprintf(out, "Recorded run %s\n", run.ID)
		}
	}

	if report.Partial() {
		if runID != "" {
			return fmt.Errorf("%w: %d of %d pairs failed (meshdepth show %s)",
				errPartialRun, len(report.Failures), report.Pairs(), runID)
		}
		return fmt.Errorf("%w: %d of %d pairs failed", errPartialRun, len(report.Failures), report.Pairs())
	}
	return nil
}

// newRenderer builds the configured backend. The returned func releases it.
func newRenderer(cfg *config.Config, log *zap.Logger) (depth.Renderer, func(), error) {
	rcfg := raster.Config{
		Width:    cfg.Render.Width,
		Height:   cfg.Render.Height,
		ViewSize: cfg.Render.ViewSize,
		Radius:   cfg.Render.Radius,
		ClipNear: cfg.Render.ClipNear,
		ClipFar:  cfg.Render.ClipFar,
		Normals:  cfg.Output.Normals,
	}

	switch cfg.Render.Backend {
	case config.BackendGL:
		r, err := glrender.New(rcfg, log)
		if err != nil {
			return nil, nil, fmt.Errorf("gl backend: %w", err)
		}
		return r, r.Close, nil
	default:
		r, err := raster.New(rcfg)
		if err != nil {
			return nil, nil, err
		}
		return r, func() {}, nil
	}
}

func recordRun(ctx context.Context, path string, run *ledger.Run) error {
	// Record even if a signal arrived after the run finished.
	ctx = context.WithoutCancel(ctx)
	l, err := ledger.Open(ctx, path)
	if err != nil {
		return err
	}
	defer l.Close()
	return l.Record(ctx, run)
}

func writeDiagnostics(out io.Writer, report *depth.Report, dir string, log *zap.Logger) {
	summary, err := diagnostics.Summarize(report.Extents)
	if err != nil {
		log.Warn("no depth extents to summarize", zap.Error(err))
		return
	}
	fmt.Fprintln(out, renderSummary(summary))

	path, err := diagnostics.Plot(report, dir)
	if err != nil {
		log.Warn("failed to write depth range chart", zap.Error(err))
		return
	}
	fmt.Fprintf(out, "Depth range chart: %s\n", path)
}
