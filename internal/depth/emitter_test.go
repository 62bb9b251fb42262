package depth

import (
	"context"
	"errors"
	"fmt"
	gomath "math"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutputPath(t *testing.T) {
	tests := []struct {
		label, source, want string
	}{
		{"front", "frame_0001.obj", filepath.Join("out", "front", "frame_0001.png")},
		{"back", "scan.v2.ply", filepath.Join("out", "back", "scan.v2.png")},
		{"back", "noext", filepath.Join("out", "back", "noext.png")},
	}
	for _, tt := range tests {
		if got := OutputPath("out", tt.label, tt.source, ".png"); got != tt.want {
			t.Errorf("OutputPath(%q, %q) = %q, want %q", tt.label, tt.source, got, tt.want)
		}
	}
}

func TestSourceName(t *testing.T) {
	if got := SourceName("clip/a/frame_0001.obj"); got != "frame_0001.obj" {
		t.Errorf("SourceName() = %q", got)
	}
}

func TestEmitter_Plan(t *testing.T) {
	e := &Emitter{OutDir: "out", Angles: DefaultAngles(), Writer: newMemWriter()}

	plan, err := e.Plan([]string{"f000.obj", "f001.obj"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan) != 2 || len(plan[1]) != 2 {
		t.Fatalf("unexpected plan shape: %v", plan)
	}
	if want := filepath.Join("out", "back", "f001.png"); plan[1][1] != want {
		t.Errorf("plan[1][1] = %q, want %q", plan[1][1], want)
	}
}

func TestEmitter_PlanCollision(t *testing.T) {
	tests := []struct {
		name   string
		frames []string
		angles []CameraAngle
	}{
		{"same stem different format", []string{"a/f000.obj", "a/f000.ply"}, DefaultAngles()},
		{"same name different dirs", []string{"a/f000.obj", "b/f000.obj"}, DefaultAngles()},
		{"duplicate angle label", []string{"f000.obj"}, []CameraAngle{{Label: "front"}, {Label: "front", Radians: 1}}},
		{"label shadows a normal map dir", []string{"f000.obj"}, []CameraAngle{{Label: "front"}, {Label: "front_normals", Radians: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newMemWriter()
			e := &Emitter{OutDir: "out", Angles: tt.angles, Writer: w, Normals: w}
			if _, err := e.Plan(tt.frames); !errors.Is(err, ErrNameCollision) {
				t.Errorf("expected ErrNameCollision, got %v", err)
			}
		})
	}
}

func TestEmitter_Encode(t *testing.T) {
	buf := NewDepthBuffer(2, 2)
	buf.Depth[0] = 1
	buf.Depth[1] = 3
	buf.Depth[2] = 10
	buf.UpdateExtrema()

	e := &Emitter{Background: 1.5}
	img := e.Encode(buf, GlobalDepthRange{Near: 1, Far: 5})

	want := []float64{0, 0.5, 1, 1}
	for i, v := range want {
		if img.Pix[i] != v {
			t.Errorf("pixel %d = %v, want %v", i, img.Pix[i], v)
		}
	}
	if img.Width != 2 || img.Height != 2 {
		t.Errorf("image size %dx%d, want 2x2", img.Width, img.Height)
	}
}

func TestEmitter_EmitPair(t *testing.T) {
	verts := []float32{0, -0.5, 0, 0.5, 0.5, 0, -0.5, 0.5, 0.1}
	faces := []uint32{0, 1, 2}
	rng := GlobalDepthRange{Near: 1.5, Far: 2.5}
	front := DefaultAngles()[0]

	t.Run("writes", func(t *testing.T) {
		w := newMemWriter()
		e := &Emitter{Renderer: &fakeRenderer{}, Writer: w}
		if err := e.EmitPair(context.Background(), "f000", verts, faces, front, "out/front/f000.png", rng); err != nil {
			t.Fatalf("EmitPair failed: %v", err)
		}
		if !w.has("out/front/f000.png") {
			t.Error("image was not written")
		}
	})

	t.Run("writes normals", func(t *testing.T) {
		w := newMemWriter()
		e := &Emitter{OutDir: "out", Renderer: &fakeRenderer{normals: true}, Writer: w, Normals: w}
		if err := e.EmitPair(context.Background(), "clip/f000.obj", verts, faces, front, "out/front/f000.png", rng); err != nil {
			t.Fatalf("EmitPair failed: %v", err)
		}
		if !w.has(filepath.Join("out", "front_normals", "f000.png")) {
			t.Error("normal map was not written")
		}
	})

	t.Run("buffer without normals", func(t *testing.T) {
		w := newMemWriter()
		e := &Emitter{OutDir: "out", Renderer: &fakeRenderer{}, Writer: w, Normals: w}
		if err := e.EmitPair(context.Background(), "f000", verts, faces, front, "out/front/f000.png", rng); err != nil {
			t.Fatalf("EmitPair failed: %v", err)
		}
		if len(w.images) != 1 {
			t.Errorf("expected only the depth image, got %d files", len(w.images))
		}
	})

	t.Run("render failure", func(t *testing.T) {
		r := &fakeRenderer{fail: func(int, CameraAngle, int) error { return errors.New("context lost") }}
		e := &Emitter{Renderer: r, Writer: newMemWriter()}
		err := e.EmitPair(context.Background(), "f000", verts, faces, front, "p", rng)

		var pf *PairFailure
		if !errors.As(err, &pf) {
			t.Fatalf("expected *PairFailure, got %v", err)
		}
		if !errors.Is(err, ErrRenderFailure) {
			t.Errorf("expected ErrRenderFailure, got %v", err)
		}
		if pf.Frame != "f000" || pf.Angle != "front" || pf.Pass != PassEmit {
			t.Errorf("unexpected failure record %+v", pf)
		}
	})

	t.Run("write failure", func(t *testing.T) {
		w := newMemWriter()
		w.fail = func(string) error { return fmt.Errorf("disk full") }
		e := &Emitter{Renderer: &fakeRenderer{}, Writer: w}
		err := e.EmitPair(context.Background(), "f000", verts, faces, front, "p", rng)
		if !errors.Is(err, ErrIOError) {
			t.Errorf("expected ErrIOError, got %v", err)
		}
	})

	t.Run("normal map failure leaves no depth image", func(t *testing.T) {
		w := newMemWriter()
		w.fail = func(p string) error {
			if strings.Contains(p, "_normals") {
				return fmt.Errorf("disk full")
			}
			return nil
		}
		e := &Emitter{OutDir: "out", Renderer: &fakeRenderer{normals: true}, Writer: w, Normals: w}
		err := e.EmitPair(context.Background(), "f001", verts, faces, front, "out/front/f001.png", rng)
		if !errors.Is(err, ErrIOError) {
			t.Fatalf("expected ErrIOError, got %v", err)
		}
		if len(w.images) != 0 {
			t.Errorf("failed pair left %d files behind", len(w.images))
		}
	})

	t.Run("depth failure removes normal map", func(t *testing.T) {
		w := newMemWriter()
		w.fail = func(p string) error {
			if p == "out/front/f001.png" {
				return fmt.Errorf("disk full")
			}
			return nil
		}
		e := &Emitter{OutDir: "out", Renderer: &fakeRenderer{normals: true}, Writer: w, Normals: w}
		err := e.EmitPair(context.Background(), "f001", verts, faces, front, "out/front/f001.png", rng)
		var pf *PairFailure
		if !errors.As(err, &pf) || pf.Pass != PassEmit {
			t.Fatalf("expected emit pair failure, got %v", err)
		}
		if w.has(filepath.Join("out", "front_normals", "f001.png")) {
			t.Error("normal map of failed pair was kept")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		e := &Emitter{Renderer: &fakeRenderer{}, Writer: newMemWriter()}
		err := e.EmitPair(ctx, "f000", verts, faces, front, "p", rng)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		var pf *PairFailure
		if errors.As(err, &pf) {
			t.Error("cancellation reported as a pair failure")
		}
	})
}

func TestClamp01(t *testing.T) {
	for _, tt := range []struct{ in, want float64 }{{-1, 0}, {0.25, 0.25}, {2, 1}, {gomath.Inf(1), 1}} {
		if got := clamp01(tt.in); got != tt.want {
			t.Errorf("clamp01(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
