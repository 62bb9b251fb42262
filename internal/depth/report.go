package depth

import (
	"sort"
	"time"
)

// Output is one written depth image.
type Output struct {
	Frame string
	Angle string
	Path  string
}

// Report summarizes a run. A run with failures is partial: every skipped
// pair is listed so the caller can judge whether the output is usable.
type Report struct {
	Frames   int
	Angles   []string
	Bounds   GlobalBounds
	Scale    float64
	Range    GlobalDepthRange
	Extents  []FrameExtent
	Outputs  []Output
	Failures []PairFailure

	CacheHits   int
	CacheMisses int
	Duration    time.Duration
}

// Pairs returns the number of (frame, angle) pairs the run covered.
func (r *Report) Pairs() int {
	return r.Frames * len(r.Angles)
}

// Partial reports whether any pair was skipped.
func (r *Report) Partial() bool {
	return len(r.Failures) > 0
}

// pairKey orders outputs and failures by frame, then angle.
type pairKey struct {
	frame int
	angle int
}

type indexedOutput struct {
	pairKey
	Output
}

type indexedFailure struct {
	pairKey
	PairFailure
}

func sortOutputs(in []indexedOutput) []Output {
	sort.Slice(in, func(i, j int) bool { return in[i].less(in[j].pairKey) })
	out := make([]Output, len(in))
	for i := range in {
		out[i] = in[i].Output
	}
	return out
}

func sortFailures(in []indexedFailure) []PairFailure {
	sort.Slice(in, func(i, j int) bool { return in[i].less(in[j].pairKey) })
	out := make([]PairFailure, len(in))
	for i := range in {
		out[i] = in[i].PairFailure
	}
	return out
}

func (k pairKey) less(o pairKey) bool {
	if k.frame != o.frame {
		return k.frame < o.frame
	}
	return k.angle < o.angle
}
