package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rliebert/reading-fluency-app/internal/attempt"
	"github.com/rliebert/reading-fluency-app/internal/model"
	"github.com/rliebert/reading-fluency-app/internal/passage"
	"github.com/rliebert/reading-fluency-app/internal/scoring"
	"github.com/rliebert/reading-fluency-app/internal/simulate"
	"github.com/rliebert/reading-fluency-app/internal/stats"
	"github.com/rliebert/reading-fluency-app/internal/statsui"
	"github.com/rliebert/reading-fluency-app/internal/store"
)

var (
	scorePassage    string
	scoreTranscript string

	simPassage     string
	simKind        string
	simWPM         int
	simErrorRate   int
	simImprovement int
	simAttempts    int
	simSeed        int64
	simRecord      bool

	historyLevel       string
	historySince       string
	historyLast        int
	historyCurveWindow int
	historyTop         int
	historyPlain       bool
)

func newPassagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passages",
		Short: "List reading passages",
		Args:  cobra.NoArgs,
		RunE:  runPassagesCmd,
	}
}

func runPassagesCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	library, err := loadLibrary(practicePassages)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range library.All() {
		line := fmt.Sprintf("%-20s %-14s %4d words  %2d pages", p.ID(), p.Level(), p.Len(), p.SegmentCount())
		if err := writeLines(out, line); err != nil {
			return err
		}
	}
	return nil
}

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a transcript against a passage",
		Args:  cobra.NoArgs,
		RunE:  runScoreCmd,
	}
	cmd.Flags().StringVar(&scorePassage, "passage", "", "passage id (default: first passage)")
	cmd.Flags().StringVar(&scoreTranscript, "transcript", "", "spoken text (default: read stdin)")
	return cmd
}

func runScoreCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	p, err := findPassage(practicePassages, scorePassage)
	if err != nil {
		return err
	}
	transcript := scoreTranscript
	if !cmd.Flags().Changed("transcript") {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read transcript: %w", err)
		}
		transcript = string(data)
	}
	return writeResult(cmd.OutOrStdout(), scoring.Score(transcript, p))
}

func writeResult(w io.Writer, res model.AttemptResult) error {
	lines := []string{fmt.Sprintf("Score: %d words correct per minute", res.Score)}
	if res.ErrorCount() == 0 {
		lines = append(lines, "No tricky words.")
	} else {
		lines = append(lines, fmt.Sprintf("Tricky words (%d): %s", res.ErrorCount(), strings.Join(res.Errors, ", ")))
	}
	return writeLines(w, lines...)
}

func findPassage(path, id string) (passage.Passage, error) {
	library, err := loadLibrary(path)
	if err != nil {
		return passage.Passage{}, err
	}
	if id == "" {
		p, _ := library.At(0)
		return p, nil
	}
	p, ok := library.Find(id)
	if !ok {
		return passage.Passage{}, fmt.Errorf("unknown passage %q (see: readfluent passages)", id)
	}
	return p, nil
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate readings of a passage",
		Args:  cobra.NoArgs,
		RunE:  runSimulateCmd,
	}
	cmd.Flags().StringVar(&simPassage, "passage", "", "passage id (default: first passage)")
	cmd.Flags().StringVar(&simKind, "kind", defaultSimKind, "simulated reader: quick, normal, perfect, struggling or improving")
	cmd.Flags().IntVar(&simWPM, "wpm", presetValue, "words per minute (default: preset)")
	cmd.Flags().IntVar(&simErrorRate, "error-rate", presetValue, "error rate percent (default: preset)")
	cmd.Flags().IntVar(&simImprovement, "improvement", presetValue, "improvement per attempt (default: preset)")
	cmd.Flags().IntVar(&simAttempts, "attempts", attempt.MaxAttempts, "number of attempts")
	cmd.Flags().Int64Var(&simSeed, "seed", 0, "random seed (default: time based)")
	cmd.Flags().BoolVar(&simRecord, "record", false, "save the simulated attempts to history")
	return cmd
}

func runSimulateCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if simAttempts <= 0 {
		return fmt.Errorf("--attempts must be > 0")
	}
	cfg := model.Config{
		Duration:       attempt.DefaultDuration,
		SimulationKind: simKind,
		WPM:            simWPM,
		ErrorRate:      simErrorRate,
		Improvement:    simImprovement,
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}
	profile, err := simulationProfile(cfg)
	if err != nil {
		return err
	}
	p, err := findPassage(practicePassages, simPassage)
	if err != nil {
		return err
	}

	engine := simulate.New()
	if cmd.Flags().Changed("seed") {
		engine = simulate.NewSeeded(simSeed)
	}

	var st *store.Store
	if simRecord {
		st, err = store.Open(s.dbPath())
		if err != nil {
			return fmt.Errorf("failed to open db: %w", err)
		}
		defer func() {
			if cerr := st.Close(); cerr != nil {
				logErrf("failed to close db: %v\n", cerr)
			}
		}()
	}

	ctx := context.Background()
	sessionID := uuid.NewString()
	out := cmd.OutOrStdout()
	var scores []int
	for n := 1; n <= simAttempts; n++ {
		res, err := engine.Simulate(profile(n), p, scores)
		if err != nil {
			return err
		}
		improved := len(scores) > 0 && res.Score > scores[len(scores)-1]
		scores = append(scores, res.Score)
		if err := writeLines(out, fmt.Sprintf("Attempt %d", n)); err != nil {
			return err
		}
		if err := writeResult(out, res); err != nil {
			return err
		}
		if err := writeLines(out, attempt.Encouragement(scores), ""); err != nil {
			return err
		}
		if st == nil {
			continue
		}
		now := time.Now()
		if err := st.Record(ctx, model.AttemptRecord{
			SessionID: sessionID,
			PassageID: p.ID(),
			Level:     p.Level(),
			Attempt:   (n-1)%attempt.MaxAttempts + 1,
			Mode:      string(attempt.ModeSimulated),
			StartedAt: now,
			EndedAt:   now,
			Score:     res.Score,
			Errors:    res.Errors,
			Improved:  improved,
		}); err != nil {
			return fmt.Errorf("failed to record attempt: %w", err)
		}
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show reading history",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyLevel, "level", "", "reading level filter")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N readings")
	cmd.Flags().IntVar(&historyCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	cmd.Flags().IntVar(&historyTop, "top", defaultTopTricky, "number of tricky words to list")
	cmd.Flags().BoolVar(&historyPlain, "plain", false, "print a report instead of opening the history browser")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	var sinceTime *time.Time
	if historySince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", historySince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	if historyCurveWindow <= 0 {
		return fmt.Errorf("--curve-window must be > 0")
	}
	cfg := model.HistoryConfig{
		Level:       historyLevel,
		Since:       sinceTime,
		Last:        historyLast,
		CurveWindow: historyCurveWindow,
		TopTricky:   historyTop,
	}

	library, err := loadLibrary(practicePassages)
	if err != nil {
		return err
	}

	st, err := store.Open(s.dbPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	if historyPlain || !interactive {
		report, err := stats.BuildReport(context.Background(), st, cfg, library.Levels())
		if err != nil {
			return fmt.Errorf("failed to build report: %w", err)
		}
		return report.Render(cmd.OutOrStdout(), 0, false)
	}

	ui := statsui.NewModel(st, cfg, library.Levels())
	program := tea.NewProgram(ui, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run history TUI: %w", err)
	}
	return nil
}
