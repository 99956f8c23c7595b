// Package main provides the CLI entrypoint for readfluent.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rliebert/reading-fluency-app/internal/attempt"
	"github.com/rliebert/reading-fluency-app/internal/audio"
	"github.com/rliebert/reading-fluency-app/internal/capture"
	"github.com/rliebert/reading-fluency-app/internal/capture/deepgram"
	"github.com/rliebert/reading-fluency-app/internal/capture/script"
	"github.com/rliebert/reading-fluency-app/internal/config"
	"github.com/rliebert/reading-fluency-app/internal/consent"
	"github.com/rliebert/reading-fluency-app/internal/logging"
	"github.com/rliebert/reading-fluency-app/internal/metrics"
	"github.com/rliebert/reading-fluency-app/internal/model"
	"github.com/rliebert/reading-fluency-app/internal/passage"
	"github.com/rliebert/reading-fluency-app/internal/simulate"
	"github.com/rliebert/reading-fluency-app/internal/store"
	"github.com/rliebert/reading-fluency-app/internal/tui"
)

const (
	engineDeepgram = "deepgram"
	engineScript   = "script"
	engineNone     = "none"

	defaultEngine      = engineDeepgram
	defaultLanguage    = "en-US"
	defaultModel       = "nova-3"
	defaultSimKind     = "quick"
	defaultLogLevel    = "info"
	defaultCurveWindow = 10
	defaultTopTricky   = 10

	// presetValue leaves a simulation preset value untouched.
	presetValue = -1
)

var (
	practicePassages    string
	practiceTestMode    bool
	practiceDuration    time.Duration
	practiceSimKind     string
	practiceWPM         int
	practiceErrorRate   int
	practiceImprovement int

	captureEngine      string
	captureLanguage    string
	captureModel       string
	captureMicCommand  string
	captureMaxRestarts int
	captureScript      string

	logLevel        string
	logFile         string
	metricsTextfile string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "readfluent",
		Short:         "Timed read-aloud fluency trainer",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runPracticeCmd,
	}

	rootCmd.PersistentFlags().StringVar(&practicePassages, "passages", "", "passage library TOML file (default: built-in passages)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "log file (default: $XDG_STATE_HOME/readfluent/readfluent.log)")
	rootCmd.PersistentFlags().StringVar(&captureEngine, "engine", defaultEngine, "speech engine: deepgram, script or none")
	rootCmd.PersistentFlags().StringVar(&captureLanguage, "language", defaultLanguage, "recognition language")
	rootCmd.PersistentFlags().StringVar(&captureModel, "model", defaultModel, "recognition model")
	rootCmd.PersistentFlags().StringVar(&captureMicCommand, "mic-command", audio.DefaultCommand, "command that records raw 16kHz mono PCM to stdout")
	rootCmd.PersistentFlags().IntVar(&captureMaxRestarts, "max-restarts", capture.DefaultMaxRestarts, "recognition restarts allowed without a result (0 disables restarts)")
	rootCmd.PersistentFlags().StringVar(&captureScript, "script", "", "scripted reading for the script engine")

	rootCmd.Flags().BoolVar(&practiceTestMode, "test-mode", false, "simulate readings instead of listening")
	rootCmd.Flags().DurationVar(&practiceDuration, "duration", attempt.DefaultDuration, "length of one timed reading")
	rootCmd.Flags().StringVar(&practiceSimKind, "sim-kind", defaultSimKind, "simulated reader: quick, normal, perfect, struggling or improving")
	rootCmd.Flags().IntVar(&practiceWPM, "wpm", presetValue, "simulated words per minute (default: preset)")
	rootCmd.Flags().IntVar(&practiceErrorRate, "error-rate", presetValue, "simulated error rate percent (default: preset)")
	rootCmd.Flags().IntVar(&practiceImprovement, "improvement", presetValue, "simulated improvement per attempt (default: preset)")
	rootCmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newPassagesCmd())
	rootCmd.AddCommand(newScoreCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newMicCmd())

	return rootCmd
}

// settings is the resolved configuration shared by every command.
type settings struct {
	file    config.FileConfig
	env     config.Env
	log     zerolog.Logger
	closeFn func()
}

// loadSettings reads the config file and environment, applies them under the
// command-line flags and opens the log.
func loadSettings(cmd *cobra.Command) (*settings, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	envCfg, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}

	applyStringConfig(cmd, "passages", &practicePassages, fileCfg.Practice.PassagesFile)
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	applyStringConfig(cmd, "log-file", &logFile, fileCfg.Log.File)
	applyStringEnv(cmd, "log-level", &logLevel, envCfg.LogLevel)
	applyStringEnv(cmd, "log-file", &logFile, envCfg.LogFile)

	applyStringConfig(cmd, "engine", &captureEngine, fileCfg.Capture.Engine)
	applyStringConfig(cmd, "language", &captureLanguage, fileCfg.Capture.Language)
	applyStringConfig(cmd, "model", &captureModel, fileCfg.Capture.Model)
	applyStringConfig(cmd, "mic-command", &captureMicCommand, fileCfg.Capture.MicCommand)
	applyIntConfig(cmd, "max-restarts", &captureMaxRestarts, fileCfg.Capture.MaxRestarts)
	applyStringConfig(cmd, "script", &captureScript, fileCfg.Capture.ScriptFile)

	path := logFile
	if path == "" {
		path = config.DefaultLogPath()
	}
	log, closer, err := logging.New(logging.Options{Level: logLevel, Path: path})
	if err != nil {
		return nil, err
	}
	return &settings{
		file: fileCfg,
		env:  envCfg,
		log:  log,
		closeFn: func() {
			if cerr := closer.Close(); cerr != nil {
				logErrf("failed to close log: %v\n", cerr)
			}
		},
	}, nil
}

func (s *settings) close() {
	s.closeFn()
}

func (s *settings) dbPath() string {
	if s.env.DBPath != "" {
		return s.env.DBPath
	}
	return config.DefaultDBPath()
}

func runPracticeCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	fc := s.file
	applyBoolConfig(cmd, "test-mode", &practiceTestMode, fc.Practice.TestMode)
	if fc.Practice.Duration != nil && !cmd.Flags().Changed("duration") {
		practiceDuration = fc.Practice.Duration.Duration
	}
	applyStringConfig(cmd, "sim-kind", &practiceSimKind, fc.Simulation.Kind)
	applyIntConfig(cmd, "wpm", &practiceWPM, fc.Simulation.WPM)
	applyIntConfig(cmd, "error-rate", &practiceErrorRate, fc.Simulation.ErrorRate)
	applyIntConfig(cmd, "improvement", &practiceImprovement, fc.Simulation.Improvement)
	applyStringConfig(cmd, "metrics-textfile", &metricsTextfile, fc.Metrics.Textfile)

	cfg := model.Config{
		PassagesFile:   practicePassages,
		TestMode:       practiceTestMode,
		Duration:       practiceDuration,
		SimulationKind: practiceSimKind,
		WPM:            practiceWPM,
		ErrorRate:      practiceErrorRate,
		Improvement:    practiceImprovement,
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}
	profile, err := simulationProfile(cfg)
	if err != nil {
		return err
	}
	library, err := loadLibrary(cfg.PassagesFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(s.dbPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	var (
		gate    *capture.Gate
		session *capture.Session
		live    attempt.Source
	)
	engine, mic, err := buildEngine(captureEngine, s, library)
	if err != nil {
		return err
	}
	if engine != nil {
		gate, err = openGate(ctx, s.log)
		if err != nil {
			return err
		}
		defer gate.Close()
		session = capture.NewSession(capture.Config{
			Engine:      engine,
			Microphone:  mic,
			Permissions: gate,
			MaxRestarts: restartLimit(captureMaxRestarts),
			Logger:      logging.Component(s.log, "capture"),
		})
		defer session.Close()
		if !cfg.TestMode && session.Supported() {
			askForMicrophone(ctx, gate)
		}
		live = attempt.NewLiveSource(session)
	}

	sessionID := uuid.NewString()
	ctl, err := attempt.New(attempt.Config{
		Library:   library,
		Live:      live,
		Simulated: attempt.NewSimulatedSource(simulate.New(), profile),
		TestMode:  cfg.TestMode,
		Duration:  cfg.Duration,
		Recorder:  st,
		SessionID: sessionID,
		Logger:    logging.Component(s.log, "attempt").With().Str("session", sessionID).Logger(),
	})
	if err != nil {
		return err
	}
	defer ctl.Close()

	ui := tui.NewModel(ctx, tui.Config{
		Controller: ctl,
		Session:    session,
		Gate:       gate,
		Simulate:   profile,
		Logger:     logging.Component(s.log, "tui"),
	})
	program := tea.NewProgram(ui, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	if err := metrics.WriteTextfile(metricsTextfile); err != nil {
		logErrf("%v\n", err)
	}
	return nil
}

// buildEngine returns the configured speech engine and microphone, or a nil
// engine when live capture is off.
func buildEngine(name string, s *settings, library passage.Library) (capture.Engine, capture.Microphone, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case engineNone, "":
		return nil, nil, nil
	case engineScript:
		if captureScript == "" {
			return nil, nil, fmt.Errorf("--script is required with the script engine")
		}
		steps, err := script.Load(captureScript)
		if err != nil {
			return nil, nil, err
		}
		return script.New(steps), audio.NewFile(os.DevNull), nil
	case engineDeepgram:
		mic, err := audio.NewCommand(captureMicCommand)
		if err != nil {
			return nil, nil, err
		}
		engine := deepgram.New(s.env.DeepgramAPIKey,
			deepgram.WithLanguage(captureLanguage),
			deepgram.WithModel(captureModel),
			deepgram.WithKeywords(libraryWords(library)...),
			deepgram.WithLogger(logging.Component(s.log, "deepgram")),
		)
		return engine, mic, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine %q (use deepgram, script or none)", name)
	}
}

// libraryWords returns every distinct passage word, used to bias recognition.
func libraryWords(library passage.Library) []string {
	seen := map[string]struct{}{}
	var words []string
	for _, p := range library.All() {
		for _, w := range p.Words() {
			w = strings.Trim(w, ".,!?;:\"'")
			if w == "" {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			words = append(words, w)
		}
	}
	return words
}

func openGate(ctx context.Context, log zerolog.Logger) (*capture.Gate, error) {
	platform := consent.NewStore(config.DefaultConsentPath(), consent.TerminalPrompter{In: os.Stdin, Out: os.Stderr}, logging.Component(log, "consent"))
	gate, err := capture.NewGate(ctx, platform, logging.Component(log, "permission"))
	if err != nil {
		return nil, err
	}
	return gate, nil
}

// askForMicrophone asks once, before the TUI takes the terminal, when no
// decision has been recorded yet. A refusal is remembered and not asked again.
func askForMicrophone(ctx context.Context, gate *capture.Gate) {
	if gate.State() != capture.PermissionUnknown {
		if warning := gate.Warning(); warning != "" {
			logErrln(warning)
		}
		return
	}
	if err := gate.RequestAccess(ctx); err != nil {
		if errors.Is(err, capture.ErrPermissionDenied) {
			logErrln("Microphone access declined. Readings will be simulated.")
			return
		}
		logErrf("%v\n", err)
	}
}

func loadLibrary(path string) (passage.Library, error) {
	if path == "" {
		return passage.Builtin(), nil
	}
	library, err := passage.LoadFile(path)
	if err != nil {
		return passage.Library{}, fmt.Errorf("failed to load passages: %w", err)
	}
	return library, nil
}

// simulationProfile returns the simulated reader for each attempt number.
func simulationProfile(cfg model.Config) (func(int) simulate.Profile, error) {
	if cfg.SimulationKind == "" || cfg.SimulationKind == defaultSimKind {
		return simulate.QuickTest, nil
	}
	kind, err := simulate.ParseKind(cfg.SimulationKind)
	if err != nil {
		return nil, err
	}
	profile := func(n int) simulate.Profile {
		p := simulate.Preset(kind, n)
		if cfg.WPM != presetValue {
			p.WordsPerMinute = cfg.WPM
		}
		if cfg.ErrorRate != presetValue {
			p.ErrorRatePercent = cfg.ErrorRate
		}
		if cfg.Improvement != presetValue {
			p.ImprovementDelta = cfg.Improvement
		}
		return p
	}
	if err := profile(1).Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

func validateConfig(cfg model.Config) error {
	if cfg.Duration < time.Second {
		return fmt.Errorf("--duration must be at least 1s")
	}
	if cfg.WPM < presetValue {
		return fmt.Errorf("--wpm must be >= 0")
	}
	if cfg.ErrorRate < presetValue || cfg.ErrorRate > simulate.MaxErrorRate {
		return fmt.Errorf("--error-rate must be between 0 and %d", simulate.MaxErrorRate)
	}
	if captureMaxRestarts < 0 {
		return fmt.Errorf("--max-restarts must be >= 0")
	}
	return nil
}

// restartLimit maps the --max-restarts value onto capture.Config, where zero
// means the default.
func restartLimit(n int) int {
	if n == 0 {
		return capture.NoRestarts
	}
	return n
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

// applyStringEnv lets a non-empty environment value override the config file.
func applyStringEnv(cmd *cobra.Command, name string, target *string, value string) {
	if value == "" {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# readfluent configuration
# Uncomment a value to enable it. CLI flags override config values.
# DEEPGRAM_API_KEY, READFLUENT_DB, READFLUENT_LOG_LEVEL and READFLUENT_LOG_FILE
# are read from the environment.

[practice]
# passages = "/path/to/passages.toml"  # Passage library (default: built-in)
# test-mode = false                     # Simulate readings instead of listening
# duration = %q                        # Length of one timed reading

[simulation]
# kind = %q              # quick, normal, perfect, struggling or improving
# wpm = 40               # Words per minute (default: preset)
# error-rate = 10        # Error rate percent, 0-%d (default: preset)
# improvement = 5        # Words gained per attempt (default: preset)

[capture]
# engine = %q         # deepgram, script or none
# language = %q        # Recognition language
# model = %q           # Recognition model
# mic-command = %q
# max-restarts = %d          # Restarts allowed without a result (0 disables)
# script = "/path/to/reading.txt"  # Scripted reading for the script engine

[log]
# level = %q
# file = "/path/to/readfluent.log"

[metrics]
# textfile = "/var/lib/node_exporter/readfluent.prom"
`,
		attempt.DefaultDuration.String(),
		defaultSimKind,
		simulate.MaxErrorRate,
		defaultEngine,
		defaultLanguage,
		defaultModel,
		audio.DefaultCommand,
		capture.DefaultMaxRestarts,
		defaultLogLevel,
	)
}

func logErrf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format, args...)
}

func logErrln(args ...any) {
	_, _ = fmt.Fprintln(os.Stderr, args...)
}

func writeLines(w io.Writer, lines ...string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}
