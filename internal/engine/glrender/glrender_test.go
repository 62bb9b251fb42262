package glrender

import (
	"context"
	"errors"
	gomath "math"
	"os"
	"testing"

	"github.com/Faultbox/meshdepth/internal/depth"
	"github.com/Faultbox/meshdepth/internal/engine/raster"
)

// GL tests need a display and a 4.1 driver.
func requireGL(t *testing.T) {
	t.Helper()
	if os.Getenv("MESHDEPTH_GL_TESTS") == "" {
		t.Skip("set MESHDEPTH_GL_TESTS=1 to run OpenGL tests")
	}
}

func TestHasArea(t *testing.T) {
	flat := []float32{0, 0, 0, 1, 1, 1, 2, 2, 2}
	if hasArea(flat, []uint32{0, 1, 2}) {
		t.Error("collinear triangle reported as having area")
	}
	tri := []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}
	if !hasArea(tri, []uint32{0, 1, 2}) {
		t.Error("triangle reported as having no area")
	}
}

func TestRender_MatchesSoftware(t *testing.T) {
	requireGL(t)

	cfg := raster.DefaultConfig()
	cfg.Width, cfg.Height = 64, 64
	cfg.Normals = true

	r, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer r.Close()
	soft, err := raster.New(cfg)
	if err != nil {
		t.Fatalf("raster.New failed: %v", err)
	}

	// A quad tilted about the vertical axis so depth varies across it.
	v := []float32{
		-0.25, -0.25, -0.1,
		0.25, -0.25, 0.1,
		0.25, 0.25, 0.1,
		-0.25, 0.25, -0.1,
	}
	f := []uint32{0, 1, 2, 0, 2, 3}

	for _, angle := range depth.DefaultAngles() {
		got, err := r.Render(context.Background(), v, f, angle)
		if err != nil {
			t.Fatalf("%s: Render failed: %v", angle.Label, err)
		}
		want, err := soft.Render(context.Background(), v, f, angle)
		if err != nil {
			t.Fatalf("%s: software render failed: %v", angle.Label, err)
		}
		if gomath.Abs(got.Near-want.Near) > 0.01 || gomath.Abs(got.Far-want.Far) > 0.01 {
			t.Errorf("%s: GL range [%v, %v], software [%v, %v]", angle.Label, got.Near, got.Far, want.Near, want.Far)
		}
		if len(got.Normals) != 3*64*64 {
			t.Errorf("%s: expected normals for every pixel, got %d components", angle.Label, len(got.Normals))
		}
	}
}

func TestRender_Failures(t *testing.T) {
	requireGL(t)

	cfg := raster.DefaultConfig()
	cfg.Width, cfg.Height = 16, 16
	r, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	front := depth.DefaultAngles()[0]
	if _, err := r.Render(context.Background(), []float32{5, 5, 0, 6, 5, 0, 5, 6, 0}, []uint32{0, 1, 2}, front); !errors.Is(err, depth.ErrRenderFailure) {
		t.Errorf("expected ErrRenderFailure for geometry out of view, got %v", err)
	}

	r.Close()
	if _, err := r.Render(context.Background(), []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, []uint32{0, 1, 2}, front); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}
