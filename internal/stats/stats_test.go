package stats

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rliebert/reading-fluency-app/internal/model"
)

func agg(id int64, passage string, attempt, score, errs int, improved bool, at time.Time) model.AttemptAggregate {
	return model.AttemptAggregate{
		ID:         id,
		SessionID:  "s1",
		PassageID:  passage,
		Level:      "Kindergarten",
		Attempt:    attempt,
		Mode:       "live",
		EndedAt:    at,
		Score:      score,
		ErrorCount: errs,
		Improved:   improved,
	}
}

func TestSummarize(t *testing.T) {
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.Local)
	attempts := []model.AttemptAggregate{
		agg(1, "max-the-dog", 1, 20, 4, false, base),
		agg(2, "max-the-dog", 2, 30, 2, true, base.Add(time.Minute)),
		agg(3, "sams-red-hat", 1, 25, 3, false, base.Add(2*time.Minute)),
	}
	s := Summarize(attempts)
	if s.Attempts != 3 || s.Best != 30 || s.Improved != 1 || s.Passages != 2 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.Average != 25 || s.AvgErrors != 3 {
		t.Fatalf("unexpected averages: %+v", s)
	}
	if s.LastAttempt.ID != 3 {
		t.Fatalf("expected last attempt 3, got %d", s.LastAttempt.ID)
	}
	if empty := Summarize(nil); empty.Attempts != 0 {
		t.Fatalf("expected empty summary, got %+v", empty)
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{2, 4, 6, 8}, 2)
	want := []float64{2, 3, 5, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	same := MovingAverage([]float64{1, 2}, 1)
	if same[0] != 1 || same[1] != 2 {
		t.Fatalf("expected copy for window 1, got %v", same)
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 9}); got != " @" {
		t.Fatalf("unexpected sparkline: %q", got)
	}
	if got := Sparkline([]float64{3, 3, 3}); got != "+++" {
		t.Fatalf("unexpected flat sparkline: %q", got)
	}
	if Sparkline(nil) != "" {
		t.Fatalf("expected empty sparkline")
	}
}

func TestSelectTrickyWords(t *testing.T) {
	aggs := []model.WordAggregate{
		{Word: "brown", Misses: 1, Attempts: 1},
		{Word: "dog.", Misses: 3, Attempts: 2},
		{Word: "hat", Misses: 3, Attempts: 3},
		{Word: "a", Misses: 1, Attempts: 1},
	}
	top := SelectTrickyWords(aggs, 3)
	if len(top) != 3 {
		t.Fatalf("expected 3 words, got %d", len(top))
	}
	if top[0].Word != "hat" || top[1].Word != "dog." || top[2].Word != "a" {
		t.Fatalf("unexpected order: %v", top)
	}
	if aggs[0].Word != "brown" {
		t.Fatalf("input must not be reordered")
	}
	if all := SelectTrickyWords(aggs, 0); len(all) != 4 {
		t.Fatalf("expected every word for top 0, got %d", len(all))
	}
}

func TestRenderTrickyTable(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderTrickyTable(&buf, nil, 5); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "No tricky words") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
	buf.Reset()
	if err := RenderTrickyTable(&buf, []model.WordAggregate{{Word: "marigolds", Misses: 2, Attempts: 1}}, 5); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "marigolds") {
		t.Fatalf("expected word in table: %q", buf.String())
	}
}

func TestGroupByDay(t *testing.T) {
	day1 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.Local)
	day2 := day1.Add(24 * time.Hour)
	days := GroupByDay([]model.AttemptAggregate{
		agg(1, "p", 1, 10, 0, false, day1),
		agg(2, "p", 2, 12, 0, true, day1.Add(time.Hour)),
		agg(3, "p", 3, 14, 0, true, day2),
	})
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}
	if days[0].Date != "2026-05-01" || len(days[0].Attempts) != 2 {
		t.Fatalf("unexpected first day: %+v", days[0])
	}

	var buf bytes.Buffer
	if err := RenderHistory(&buf, days[0].Attempts); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "12 WCPM") {
		t.Fatalf("expected score in history: %q", buf.String())
	}
}
