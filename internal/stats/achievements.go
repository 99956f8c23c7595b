package stats

import (
	"fmt"
	"io"
	"time"

	"github.com/rliebert/reading-fluency-app/internal/model"
)

// Achievement thresholds.
const (
	StreakDays       = 3
	WordMasterScore  = 50
	ImproverRun      = 3
	FinalAttemptStep = 3
)

// Achievement is a milestone and the time it was first reached.
type Achievement struct {
	Title       string
	Description string
	Earned      bool
	Date        time.Time
}

// Achievements evaluates milestones over attempts ordered oldest first.
// levels lists every level of the passage library.
func Achievements(attempts []model.AttemptAggregate, levels []string) []Achievement {
	out := []Achievement{
		{Title: "First Reading", Description: "Completed your first reading exercise"},
		{Title: "Reading Streak", Description: fmt.Sprintf("Read for %d days in a row", StreakDays)},
		{Title: "Word Master", Description: fmt.Sprintf("Read %d words correctly in one minute", WordMasterScore)},
		{Title: "Super Improver", Description: fmt.Sprintf("Improved your score %d times in a row", ImproverRun)},
		{Title: "Reading Champion", Description: "Completed all reading levels"},
	}
	earn := func(i int, at time.Time) {
		if !out[i].Earned {
			out[i].Earned = true
			out[i].Date = at
		}
	}

	var streak, run int
	var lastDay time.Time
	pending := map[string]struct{}{}
	for _, l := range levels {
		pending[l] = struct{}{}
	}
	for _, a := range attempts {
		earn(0, a.EndedAt)

		day := truncateDay(a.EndedAt)
		switch {
		case lastDay.IsZero() || day.Sub(lastDay) > 36*time.Hour:
			streak = 1
		case !day.Equal(lastDay):
			streak++
		}
		lastDay = day
		if streak >= StreakDays {
			earn(1, a.EndedAt)
		}

		if a.Score >= WordMasterScore {
			earn(2, a.EndedAt)
		}

		if a.Improved {
			run++
		} else if a.Attempt > 1 {
			run = 0
		}
		if run >= ImproverRun {
			earn(3, a.EndedAt)
		}

		if a.Attempt >= FinalAttemptStep {
			delete(pending, a.Level)
		}
		if len(levels) > 0 && len(pending) == 0 {
			earn(4, a.EndedAt)
		}
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Local().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

// RenderAchievements prints every achievement with its state.
func RenderAchievements(w io.Writer, achievements []Achievement) error {
	if _, err := fmt.Fprintln(w, "Achievements"); err != nil {
		return err
	}
	tbl := table{}
	for _, a := range achievements {
		mark, date := "[ ]", ""
		if a.Earned {
			mark, date = "[x]", a.Date.Local().Format("2006-01-02")
		}
		tbl.add(mark, a.Title, a.Description, date)
	}
	if err := tbl.write(w); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}
