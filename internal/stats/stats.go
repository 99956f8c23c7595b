package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/rliebert/reading-fluency-app/internal/model"
)

const sparkChars = " .:-=+*#%@"

// Summary aggregates scores over a set of attempts.
type Summary struct {
	Attempts    int
	Best        int
	Average     float64
	AvgErrors   float64
	Improved    int
	Passages    int
	LastAttempt model.AttemptAggregate
}

// Summarize computes a Summary for attempts ordered oldest first.
func Summarize(attempts []model.AttemptAggregate) Summary {
	var s Summary
	if len(attempts) == 0 {
		return s
	}
	passages := map[string]struct{}{}
	var total, errs int
	for _, a := range attempts {
		total += a.Score
		errs += a.ErrorCount
		s.Best = max(s.Best, a.Score)
		if a.Improved {
			s.Improved++
		}
		passages[a.PassageID] = struct{}{}
	}
	s.Attempts = len(attempts)
	s.Average = float64(total) / float64(len(attempts))
	s.AvgErrors = float64(errs) / float64(len(attempts))
	s.Passages = len(passages)
	s.LastAttempt = attempts[len(attempts)-1]
	return s
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		out[i] = sum / float64(min(i+1, window))
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := bounds(values)
	if hi-lo < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		idx := int(math.Round((v - lo) / (hi - lo) * float64(len(sparkChars)-1)))
		b.WriteByte(sparkChars[min(max(idx, 0), len(sparkChars)-1)])
	}
	return b.String()
}

// Scores extracts the score of every attempt.
func Scores(attempts []model.AttemptAggregate) []float64 {
	out := make([]float64, len(attempts))
	for i, a := range attempts {
		out[i] = float64(a.Score)
	}
	return out
}

// RenderSummary prints headline numbers for attempts.
func RenderSummary(w io.Writer, attempts []model.AttemptAggregate) error {
	if len(attempts) == 0 {
		_, err := fmt.Fprintln(w, "No readings yet.")
		return err
	}
	s := Summarize(attempts)
	_, err := fmt.Fprintf(w, "Summary\nReadings: %d (%d passages)\nBest: %d WCPM\nAverage: %.1f WCPM\nAvg tricky words: %.1f\nImproved: %d\nTrend: %s\n\n",
		s.Attempts, s.Passages, s.Best, s.Average, s.AvgErrors, s.Improved, Sparkline(Scores(attempts)))
	return err
}

// RenderCurves prints the WCPM and error progress plot.
func RenderCurves(w io.Writer, attempts []model.AttemptAggregate, window int) error {
	return RenderCurvesWithSize(w, attempts, window, 0, defaultPlotHeight, false)
}

// RenderCurvesWithSize prints the progress plot sized to a given total width.
func RenderCurvesWithSize(w io.Writer, attempts []model.AttemptAggregate, window, totalWidth, height int, color bool) error {
	if len(attempts) == 0 {
		return nil
	}
	errs := make([]float64, len(attempts))
	for i, a := range attempts {
		errs[i] = float64(a.ErrorCount)
	}
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	return PlotSeriesWithColor(w, "Progress", []Series{
		{Name: "WCPM", Values: MovingAverage(Scores(attempts), window)},
		{Name: "Tricky words", Values: MovingAverage(errs, window)},
	}, width, height, color)
}

// RenderTrickyTable prints the most frequently mis-read words.
func RenderTrickyTable(w io.Writer, aggs []model.WordAggregate, top int) error {
	words := SelectTrickyWords(aggs, top)
	if len(words) == 0 {
		_, err := fmt.Fprintln(w, "No tricky words. Great reading!")
		return err
	}
	if _, err := fmt.Fprintln(w, "Tricky Words"); err != nil {
		return err
	}
	tbl := table{
		headers: []string{"Word", "Misses", "Readings"},
		right:   map[int]bool{1: true, 2: true},
	}
	for _, agg := range words {
		tbl.add(agg.Word, fmt.Sprint(agg.Misses), fmt.Sprint(agg.Attempts))
	}
	if err := tbl.write(w); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

// SelectTrickyWords returns the top most-missed words, most misses first.
func SelectTrickyWords(aggs []model.WordAggregate, top int) []model.WordAggregate {
	out := make([]model.WordAggregate, len(aggs))
	copy(out, aggs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Misses != out[j].Misses {
			return out[i].Misses > out[j].Misses
		}
		if out[i].Attempts != out[j].Attempts {
			return out[i].Attempts > out[j].Attempts
		}
		return out[i].Word < out[j].Word
	})
	if top > 0 && top < len(out) {
		out = out[:top]
	}
	return out
}

// Day groups a day's attempts.
type Day struct {
	Date     string
	Attempts []model.AttemptAggregate
}

// GroupByDay splits attempts by local calendar day, oldest first.
func GroupByDay(attempts []model.AttemptAggregate) []Day {
	var days []Day
	for _, a := range attempts {
		date := a.EndedAt.Local().Format("2006-01-02")
		if n := len(days); n > 0 && days[n-1].Date == date {
			days[n-1].Attempts = append(days[n-1].Attempts, a)
			continue
		}
		days = append(days, Day{Date: date, Attempts: []model.AttemptAggregate{a}})
	}
	return days
}

// RenderHistory prints every attempt grouped by day.
func RenderHistory(w io.Writer, attempts []model.AttemptAggregate) error {
	for _, day := range GroupByDay(attempts) {
		if _, err := fmt.Fprintln(w, day.Date); err != nil {
			return err
		}
		tbl := table{right: map[int]bool{3: true}}
		for _, a := range day.Attempts {
			mark := ""
			if a.Improved {
				mark = "+"
			}
			tbl.add(
				"  "+a.EndedAt.Local().Format("15:04"),
				a.Level,
				fmt.Sprintf("%s #%d", a.PassageID, a.Attempt),
				fmt.Sprintf("%d WCPM", a.Score),
				fmt.Sprintf("%d tricky", a.ErrorCount),
				a.Mode,
				mark,
			)
		}
		if err := tbl.write(w); err != nil {
			return err
		}
	}
	return nil
}
