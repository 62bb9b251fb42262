package depth

import (
	"fmt"
	gomath "math"
	"sort"
	"sync"
)

// DepthSample is the depth extrema one render reported for a (frame, angle)
// pair.
type DepthSample struct {
	FrameIndex int
	Frame      string
	Angle      string
	Near       float64
	Far        float64
}

// FrameExtent is the depth range of one frame over all angles.
type FrameExtent struct {
	Index int
	Frame string
	Near  float64
	Far   float64
}

// RangeAccumulator reduces depth samples into one GlobalDepthRange: the
// minimum near and maximum far over every sample. Observe is safe for
// concurrent use and the result does not depend on the order of calls.
type RangeAccumulator struct {
	mu      sync.Mutex
	rng     GlobalDepthRange
	samples int
	extents map[int]*FrameExtent
}

// Observe folds one sample into the running range. Non-finite or inverted
// extrema are rejected.
func (a *RangeAccumulator) Observe(s DepthSample) error {
	if gomath.IsNaN(s.Near) || gomath.IsNaN(s.Far) || gomath.IsInf(s.Near, 0) || gomath.IsInf(s.Far, 0) {
		return fmt.Errorf("%w: non-finite depth extrema [%v, %v]", ErrRenderFailure, s.Near, s.Far)
	}
	if s.Near > s.Far {
		return fmt.Errorf("%w: inverted depth extrema [%v, %v]", ErrRenderFailure, s.Near, s.Far)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.samples == 0 {
		a.rng = GlobalDepthRange{Near: s.Near, Far: s.Far}
	} else {
		a.rng.Near = gomath.Min(a.rng.Near, s.Near)
		a.rng.Far = gomath.Max(a.rng.Far, s.Far)
	}
	a.samples++

	if a.extents == nil {
		a.extents = make(map[int]*FrameExtent)
	}
	if e, ok := a.extents[s.FrameIndex]; ok {
		e.Near = gomath.Min(e.Near, s.Near)
		e.Far = gomath.Max(e.Far, s.Far)
	} else {
		a.extents[s.FrameIndex] = &FrameExtent{Index: s.FrameIndex, Frame: s.Frame, Near: s.Near, Far: s.Far}
	}
	return nil
}

// Samples returns how many samples have been observed.
func (a *RangeAccumulator) Samples() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.samples
}

// Result returns the range of everything observed so far.
func (a *RangeAccumulator) Result() (GlobalDepthRange, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.samples == 0 {
		return GlobalDepthRange{}, ErrNoDepthSamples
	}
	return a.rng, nil
}

// Extents returns the per-frame depth ranges ordered by frame index.
func (a *RangeAccumulator) Extents() []FrameExtent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]FrameExtent, 0, len(a.extents))
	for _, e := range a.extents {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
