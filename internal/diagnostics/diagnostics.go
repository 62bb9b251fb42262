// Package diagnostics summarizes and charts the per-frame depth extents of
// a run, to spot frames that stretch the shared depth range.
package diagnostics

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Faultbox/meshdepth/internal/depth"
)

// ChartName is the file written by Plot inside the diagnostics dir.
const ChartName = "depth_range.png"

// ErrNoExtents is returned when a report carries no per-frame extents.
var ErrNoExtents = errors.New("no frame extents to chart")

// Summary describes how the per-frame depth extents spread around the
// global range.
type Summary struct {
	Frames int

	NearMean, NearStdDev float64
	FarMean, FarStdDev   float64

	// Span is far minus near of each frame.
	SpanMean float64
	SpanMax  float64

	// Frames whose own extent decides the global near or far.
	NearestFrame  string
	FarthestFrame string
}

// Summarize computes the extent statistics of a run.
func Summarize(extents []depth.FrameExtent) (Summary, error) {
	if len(extents) == 0 {
		return Summary{}, ErrNoExtents
	}

	near := make([]float64, len(extents))
	far := make([]float64, len(extents))
	span := make([]float64, len(extents))
	for i, e := range extents {
		near[i] = e.Near
		far[i] = e.Far
		span[i] = e.Far - e.Near
	}

	s := Summary{Frames: len(extents)}
	s.NearMean, s.NearStdDev = stat.MeanStdDev(near, nil)
	s.FarMean, s.FarStdDev = stat.MeanStdDev(far, nil)
	s.SpanMean = stat.Mean(span, nil)
	s.SpanMax = floats.Max(span)
	s.NearestFrame = extents[floats.MinIdx(near)].Frame
	s.FarthestFrame = extents[floats.MaxIdx(far)].Frame

	// Sample std dev is NaN for a single frame.
	if len(extents) == 1 {
		s.NearStdDev, s.FarStdDev = 0, 0
	}
	return s, nil
}

var (
	nearColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	farColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Plot charts each frame's near and far depth against the frame index,
// with the global range drawn as dashed lines, and saves it as
// dir/depth_range.png. It returns the written path.
func Plot(report *depth.Report, dir string) (string, error) {
	if len(report.Extents) == 0 {
		return "", ErrNoExtents
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create diagnostics dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Depth range over %d frames", report.Frames)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Depth"

	nearPts := make(plotter.XYs, len(report.Extents))
	farPts := make(plotter.XYs, len(report.Extents))
	for i, e := range report.Extents {
		nearPts[i] = plotter.XY{X: float64(e.Index), Y: e.Near}
		farPts[i] = plotter.XY{X: float64(e.Index), Y: e.Far}
	}

	first := float64(report.Extents[0].Index)
	last := float64(report.Extents[len(report.Extents)-1].Index)

	series := []struct {
		label  string
		pts    plotter.XYs
		color  color.Color
		dashed bool
	}{
		{"frame near", nearPts, nearColor, false},
		{"frame far", farPts, farColor, false},
		{"global near", plotter.XYs{{X: first, Y: report.Range.Near}, {X: last, Y: report.Range.Near}}, nearColor, true},
		{"global far", plotter.XYs{{X: first, Y: report.Range.Far}, {X: last, Y: report.Range.Far}}, farColor, true},
	}
	for _, s := range series {
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return "", fmt.Errorf("failed to create %s line: %w", s.label, err)
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		if s.dashed {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		}
		p.Add(line)
		p.Legend.Add(s.label, line)
	}
	p.Add(plotter.NewGrid())

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	path := filepath.Join(dir, ChartName)
	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return "", fmt.Errorf("failed to save chart: %w", err)
	}
	return path, nil
}
