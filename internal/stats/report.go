package stats

import (
	"context"
	"io"

	"github.com/rliebert/reading-fluency-app/internal/model"
)

// Source reads attempt history. *store.Store satisfies it.
type Source interface {
	ListAttempts(ctx context.Context, cfg model.HistoryConfig) ([]model.AttemptAggregate, error)
	TrickyWords(ctx context.Context, attemptIDs []int64) ([]model.WordAggregate, error)
}

// Report contains precomputed data for history rendering.
type Report struct {
	Attempts     []model.AttemptAggregate
	WindowIDs    []int64
	TrickyAll    []model.WordAggregate
	TrickyWindow []model.WordAggregate
	Achievements []Achievement
	CurveWindow  int
	TopTricky    int
}

// BuildReport loads and prepares history data. Achievements are always
// evaluated over the full, unfiltered history.
func BuildReport(ctx context.Context, src Source, cfg model.HistoryConfig, levels []string) (Report, error) {
	attempts, err := src.ListAttempts(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	everything, err := src.ListAttempts(ctx, model.HistoryConfig{})
	if err != nil {
		return Report{}, err
	}

	allIDs := attemptIDs(attempts)
	windowIDs := lastAttemptIDs(attempts, cfg.CurveWindow)
	trickyAll, err := src.TrickyWords(ctx, allIDs)
	if err != nil {
		return Report{}, err
	}
	trickyWindow, err := src.TrickyWords(ctx, windowIDs)
	if err != nil {
		return Report{}, err
	}

	return Report{
		Attempts:     attempts,
		WindowIDs:    windowIDs,
		TrickyAll:    trickyAll,
		TrickyWindow: trickyWindow,
		Achievements: Achievements(everything, levels),
		CurveWindow:  cfg.CurveWindow,
		TopTricky:    cfg.TopTricky,
	}, nil
}

// Render prints the full report.
func (r Report) Render(w io.Writer, totalWidth int, color bool) error {
	if err := RenderSummary(w, r.Attempts); err != nil {
		return err
	}
	if len(r.Attempts) == 0 {
		return RenderAchievements(w, r.Achievements)
	}
	if err := RenderCurvesWithSize(w, r.Attempts, r.CurveWindow, totalWidth, defaultPlotHeight, color); err != nil {
		return err
	}
	if err := RenderTrickyTable(w, r.TrickyWindow, r.TopTricky); err != nil {
		return err
	}
	return RenderAchievements(w, r.Achievements)
}

func attemptIDs(attempts []model.AttemptAggregate) []int64 {
	ids := make([]int64, len(attempts))
	for i, a := range attempts {
		ids[i] = a.ID
	}
	return ids
}

func lastAttemptIDs(attempts []model.AttemptAggregate, window int) []int64 {
	if window <= 0 || len(attempts) <= window {
		return attemptIDs(attempts)
	}
	return attemptIDs(attempts[len(attempts)-window:])
}
