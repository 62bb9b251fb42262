package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Faultbox/meshdepth/internal/depth"
	"github.com/Faultbox/meshdepth/internal/diagnostics"
	"github.com/Faultbox/meshdepth/internal/ledger"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func formatVec(v [3]float64) string {
	return fmt.Sprintf("(%s, %s, %s)", formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2]))
}

func boundsOf(b depth.GlobalBounds) (lo, hi [3]float64) {
	bmin, bmax := b.Min.Array(), b.Max.Array()
	for i := range 3 {
		lo[i] = float64(bmin[i])
		hi[i] = float64(bmax[i])
	}
	return lo, hi
}

func statusOf(failures int) string {
	if failures > 0 {
		return "partial"
	}
	return "complete"
}

func renderReport(r *depth.Report) string {
	lo, hi := boundsOf(r.Bounds)
	return renderPairs([][2]string{
		{"Status", statusOf(len(r.Failures))},
		{"Frames", strconv.Itoa(r.Frames)},
		{"Angles", strings.Join(r.Angles, ", ")},
		{"Bounds min", formatVec(lo)},
		{"Bounds max", formatVec(hi)},
		{"Scale", formatFloat(r.Scale)},
		{"Depth near", formatFloat(r.Range.Near)},
		{"Depth far", formatFloat(r.Range.Far)},
		{"Images", fmt.Sprintf("%d / %d", len(r.Outputs), r.Pairs())},
		{"Cache hits", fmt.Sprintf("%d (%d misses)", r.CacheHits, r.CacheMisses)},
		{"Duration", r.Duration.Round(time.Millisecond).String()},
	})
}

func renderFailures(failures []depth.PairFailure) string {
	rows := make([][]string, len(failures))
	for i, f := range failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		rows[i] = []string{f.Frame, f.Angle, f.Pass, msg}
	}
	return renderTable([]string{"Frame", "Angle", "Pass", "Error"}, rows, nil)
}

func renderSummary(s diagnostics.Summary) string {
	return renderPairs([][2]string{
		{"Near mean", fmt.Sprintf("%s ± %s", formatFloat(s.NearMean), formatFloat(s.NearStdDev))},
		{"Far mean", fmt.Sprintf("%s ± %s", formatFloat(s.FarMean), formatFloat(s.FarStdDev))},
		{"Span mean", formatFloat(s.SpanMean)},
		{"Span max", formatFloat(s.SpanMax)},
		{"Nearest frame", s.NearestFrame},
		{"Farthest frame", s.FarthestFrame},
	})
}

func renderHistory(runs []*ledger.Run) string {
	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			shortID(r.ID),
			r.Started.Local().Format("2006-01-02 15:04:05"),
			r.InputDir,
			strconv.Itoa(r.Frames),
			fmt.Sprintf("%d/%d", r.Outputs, r.Frames*len(r.Angles)),
			strconv.Itoa(r.FailureCount),
			statusOf(r.FailureCount),
			r.Duration.Round(time.Millisecond).String(),
		}
	}
	return renderTable(
		[]string{"ID", "Started", "Input", "Frames", "Images", "Failed", "Status", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignRight},
	)
}

func renderRun(r *ledger.Run) string {
	return renderPairs([][2]string{
		{"ID", r.ID},
		{"Status", statusOf(r.FailureCount)},
		{"Started", r.Started.Local().Format(time.RFC3339)},
		{"Input", r.InputDir},
		{"Output", r.OutputDir},
		{"Backend", r.Backend},
		{"Frames", strconv.Itoa(r.Frames)},
		{"Angles", strings.Join(r.Angles, ", ")},
		{"Bounds min", formatVec(r.BoundsMin)},
		{"Bounds max", formatVec(r.BoundsMax)},
		{"Scale", formatFloat(r.Scale)},
		{"Depth near", formatFloat(r.Near)},
		{"Depth far", formatFloat(r.Far)},
		{"Images", fmt.Sprintf("%d / %d", r.Outputs, r.Frames*len(r.Angles))},
		{"Cache hits", fmt.Sprintf("%d (%d misses)", r.CacheHits, r.CacheMisses)},
		{"Duration", r.Duration.Round(time.Millisecond).String()},
	})
}

func renderRunFailures(failures []ledger.Failure) string {
	rows := make([][]string, len(failures))
	for i, f := range failures {
		rows[i] = []string{f.Frame, f.Angle, f.Pass, f.Message}
	}
	return renderTable([]string{"Frame", "Angle", "Pass", "Error"}, rows, nil)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
