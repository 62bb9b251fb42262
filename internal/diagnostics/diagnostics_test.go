package diagnostics

import (
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshdepth/internal/depth"
)

func sampleExtents() []depth.FrameExtent {
	return []depth.FrameExtent{
		{Index: 0, Frame: "f000.obj", Near: 1.5, Far: 2.5},
		{Index: 1, Frame: "f001.obj", Near: 1.0, Far: 2.0},
		{Index: 2, Frame: "f002.obj", Near: 2.0, Far: 3.5},
	}
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(sampleExtents())
	require.NoError(t, err)

	assert.Equal(t, 3, s.Frames)
	assert.InDelta(t, 1.5, s.NearMean, 1e-12)
	assert.InDelta(t, 0.5, s.NearStdDev, 1e-12)
	assert.InDelta(t, 8.0/3, s.FarMean, 1e-12)
	assert.InDelta(t, 7.0/6, s.SpanMean, 1e-12)
	assert.InDelta(t, 1.5, s.SpanMax, 1e-12)
	assert.Equal(t, "f001.obj", s.NearestFrame)
	assert.Equal(t, "f002.obj", s.FarthestFrame)
}

func TestSummarize_SingleFrame(t *testing.T) {
	s, err := Summarize(sampleExtents()[:1])
	require.NoError(t, err)
	assert.Zero(t, s.NearStdDev)
	assert.Zero(t, s.FarStdDev)
	assert.Equal(t, "f000.obj", s.NearestFrame)
}

func TestSummarize_Empty(t *testing.T) {
	_, err := Summarize(nil)
	assert.True(t, errors.Is(err, ErrNoExtents))
}

func TestPlot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "diag")
	report := &depth.Report{
		Frames:  3,
		Range:   depth.GlobalDepthRange{Near: 1.0, Far: 3.5},
		Extents: sampleExtents(),
	}

	path, err := Plot(report, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ChartName), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Greater(t, cfg.Width, cfg.Height)
}

func TestPlot_NoExtents(t *testing.T) {
	dir := t.TempDir()
	_, err := Plot(&depth.Report{}, dir)
	assert.True(t, errors.Is(err, ErrNoExtents))

	_, statErr := os.Stat(filepath.Join(dir, ChartName))
	assert.True(t, os.IsNotExist(statErr))
}
