package depth

import (
	"errors"
	gomath "math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRangeAccumulator_Observe(t *testing.T) {
	var acc RangeAccumulator
	samples := []DepthSample{
		{FrameIndex: 0, Frame: "f000", Angle: "front", Near: 1.6, Far: 2.1},
		{FrameIndex: 0, Frame: "f000", Angle: "back", Near: 1.8, Far: 2.4},
		{FrameIndex: 1, Frame: "f001", Angle: "front", Near: 1.5, Far: 2.0},
	}
	for _, s := range samples {
		if err := acc.Observe(s); err != nil {
			t.Fatalf("Observe(%+v) failed: %v", s, err)
		}
	}

	rng, err := acc.Result()
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if rng.Near != 1.5 || rng.Far != 2.4 {
		t.Errorf("range = [%v, %v], want [1.5, 2.4]", rng.Near, rng.Far)
	}
	if acc.Samples() != 3 {
		t.Errorf("expected 3 samples, got %d", acc.Samples())
	}

	want := []FrameExtent{
		{Index: 0, Frame: "f000", Near: 1.6, Far: 2.4},
		{Index: 1, Frame: "f001", Near: 1.5, Far: 2.0},
	}
	if diff := cmp.Diff(want, acc.Extents()); diff != "" {
		t.Errorf("extents mismatch (-want +got):\n%s", diff)
	}
}

func TestRangeAccumulator_NoSamples(t *testing.T) {
	var acc RangeAccumulator
	if _, err := acc.Result(); !errors.Is(err, ErrNoDepthSamples) {
		t.Errorf("expected ErrNoDepthSamples, got %v", err)
	}
}

func TestRangeAccumulator_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name      string
		near, far float64
	}{
		{"nan near", gomath.NaN(), 1},
		{"infinite far", 0, gomath.Inf(1)},
		{"inverted", 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var acc RangeAccumulator
			err := acc.Observe(DepthSample{Near: tt.near, Far: tt.far})
			if !errors.Is(err, ErrRenderFailure) {
				t.Errorf("expected ErrRenderFailure, got %v", err)
			}
			if acc.Samples() != 0 {
				t.Error("rejected sample was counted")
			}
		})
	}
}

func TestRangeAccumulator_OrderIndependent(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	samples := make([]DepthSample, 60)
	for i := range samples {
		near := 1 + r.Float64()
		samples[i] = DepthSample{FrameIndex: i / 2, Near: near, Far: near + r.Float64()}
	}

	reduce := func() GlobalDepthRange {
		var acc RangeAccumulator
		for _, s := range samples {
			if err := acc.Observe(s); err != nil {
				t.Fatalf("Observe failed: %v", err)
			}
		}
		rng, _ := acc.Result()
		return rng
	}

	want := reduce()
	if want.Near > want.Far {
		t.Fatalf("near %v > far %v", want.Near, want.Far)
	}
	for trial := 0; trial < 10; trial++ {
		r.Shuffle(len(samples), func(i, j int) { samples[i], samples[j] = samples[j], samples[i] })
		if got := reduce(); got != want {
			t.Fatalf("permutation changed range: got %+v, want %+v", got, want)
		}
	}
}
