package depth

import (
	"errors"
	"fmt"
)

// Errors reported by the normalization passes and their collaborators.
// Match with errors.Is; collaborators wrap these with their own context.
var (
	ErrEmptySequence     = errors.New("empty frame sequence")
	ErrDimensionMismatch = errors.New("vertex array is not 3-dimensional")
	ErrDegenerateScale   = errors.New("degenerate vertical scale")
	ErrNoDepthSamples    = errors.New("no depth samples")
	ErrRenderFailure     = errors.New("render failure")
	ErrNotFound          = errors.New("mesh not found")
	ErrParseError        = errors.New("mesh parse error")
	ErrIOError           = errors.New("image write failed")
	ErrNameCollision     = errors.New("output name collision")
)

// Pass names used in errors and logs.
const (
	PassBounds = "bounds"
	PassRange  = "range"
	PassEmit   = "emit"
)

// FrameError is a fatal error tied to the frame (and angle, if any) that
// triggered it.
type FrameError struct {
	Pass  string
	Frame string
	Angle string
	Err   error
}

func (e *FrameError) Error() string {
	if e.Angle != "" {
		return fmt.Sprintf("%s pass: frame %s angle %s: %v", e.Pass, e.Frame, e.Angle, e.Err)
	}
	return fmt.Sprintf("%s pass: frame %s: %v", e.Pass, e.Frame, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// PairFailure records a (frame, angle) pair that produced no image. Pass
// names the pass in which its render or write failed; a pair is recorded
// once, by the first pass that fails it.
type PairFailure struct {
	Pass  string
	Frame string
	Angle string
	Err   error
}

func (f PairFailure) Error() string {
	if f.Pass != "" {
		return fmt.Sprintf("%s pass: frame %s angle %s: %v", f.Pass, f.Frame, f.Angle, f.Err)
	}
	return fmt.Sprintf("frame %s angle %s: %v", f.Frame, f.Angle, f.Err)
}

func (f PairFailure) Unwrap() error { return f.Err }
