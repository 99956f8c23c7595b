package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestPlotSeries(t *testing.T) {
	var buf bytes.Buffer
	err := PlotSeries(&buf, "Test Plot", []Series{
		{Name: "A", Values: []float64{1, 2, 3, 2, 1}},
		{Name: "B", Values: []float64{1, 1, 2, 3, 4}},
	}, 5, 4)
	if err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Test Plot") {
		t.Fatalf("expected title in output")
	}
	if !strings.Contains(out, "A: min=1.0 max=3.0") {
		t.Fatalf("expected range line in output: %q", out)
	}
	if !strings.Contains(out, "Legend:") {
		t.Fatalf("expected legend in output")
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no color codes for a buffer")
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	expectedMin := 1 + 2 + 4 + 1
	if len(lines) < expectedMin {
		t.Fatalf("expected at least %d lines of output, got %d", expectedMin, len(lines))
	}
}

func TestPlotSeriesSkipsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := PlotSeries(&buf, "Empty", []Series{{Name: "A"}}, 10, 4); err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestPlotSeriesForcedColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	var buf bytes.Buffer
	if err := PlotSeriesWithColor(&buf, "", []Series{{Name: "A", Values: []float64{1, 5}}}, 10, 2, true); err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	if !strings.Contains(buf.String(), colorReset) {
		t.Fatalf("expected color codes when forced")
	}
}

func TestPlotWidthFor(t *testing.T) {
	axisWidth := axisLabelWidth + runewidth.StringWidth(axisSeparator)
	if got := PlotWidthFor(80); got != 80-axisWidth {
		t.Fatalf("expected width %d, got %d", 80-axisWidth, got)
	}
	if got := PlotWidthFor(0); got != minPlotWidth {
		t.Fatalf("expected min width %d, got %d", minPlotWidth, got)
	}
	if got := PlotWidthFor(3); got != minPlotWidth {
		t.Fatalf("expected min width %d, got %d", minPlotWidth, got)
	}
}

func TestResample(t *testing.T) {
	down := resample([]float64{1, 3, 5, 7}, 2)
	if down[0] != 2 || down[1] != 6 {
		t.Fatalf("unexpected downsample: %v", down)
	}
	up := resample([]float64{0, 10}, 3)
	if up[0] != 0 || up[1] != 5 || up[2] != 10 {
		t.Fatalf("unexpected upsample: %v", up)
	}
	flat := resample([]float64{4}, 3)
	if flat[0] != 4 || flat[2] != 4 {
		t.Fatalf("unexpected single value resample: %v", flat)
	}
}

func TestScaleRow(t *testing.T) {
	if got := scaleRow(10, 0, 10, 8); got != 0 {
		t.Fatalf("expected max at top row, got %d", got)
	}
	if got := scaleRow(0, 0, 10, 8); got != 7 {
		t.Fatalf("expected min at bottom row, got %d", got)
	}
	if got := scaleRow(50, 0, 10, 8); got != 0 {
		t.Fatalf("expected clamp to top row, got %d", got)
	}
}

func TestPlotSeriesRangeKeepsPeaks(t *testing.T) {
	values := make([]float64, 40)
	for i := range values {
		values[i] = 10
	}
	values[17] = 50
	var buf bytes.Buffer
	if err := PlotSeries(&buf, "", []Series{{Name: "WCPM", Values: values}}, minPlotWidth, 4); err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	if !strings.Contains(buf.String(), "WCPM: min=10.0 max=50.0") {
		t.Fatalf("expected the raw peak in the range line: %q", buf.String())
	}
}

func TestPlotSeriesFlatRange(t *testing.T) {
	var buf bytes.Buffer
	if err := PlotSeries(&buf, "", []Series{{Name: "A", Values: []float64{7, 7, 7}}}, minPlotWidth, 4); err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	if !strings.Contains(buf.String(), "A: min=7.0 max=7.0") {
		t.Fatalf("expected the unpadded range for a flat series: %q", buf.String())
	}
}

func TestDashLit(t *testing.T) {
	d := dash{name: "dashed", period: 6, on: 3}
	if !d.lit(0) || !d.lit(2) || d.lit(3) || d.lit(5) || !d.lit(6) {
		t.Fatalf("unexpected dash pattern")
	}
	if !(dash{period: 1, on: 1}).lit(7) {
		t.Fatalf("expected solid dash to be lit everywhere")
	}
}
