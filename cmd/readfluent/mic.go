package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rliebert/reading-fluency-app/internal/capture"
	"github.com/rliebert/reading-fluency-app/internal/config"
	"github.com/rliebert/reading-fluency-app/internal/consent"
	"github.com/rliebert/reading-fluency-app/internal/logging"
)

var micTestDuration time.Duration

func newMicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mic",
		Short: "Microphone consent and speech diagnostics",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show speech engine support and microphone consent",
		Args:  cobra.NoArgs,
		RunE:  runMicStatusCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "grant",
		Short: "Allow microphone access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setConsent(cmd, capture.PermissionGranted)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "revoke",
		Short: "Block microphone access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setConsent(cmd, capture.PermissionDenied)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget the microphone decision so the next reading asks again",
		Args:  cobra.NoArgs,
		RunE:  runMicResetCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Print microphone consent changes until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runMicWatchCmd,
	})
	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Listen for a while and print what was heard",
		Args:  cobra.NoArgs,
		RunE:  runMicTestCmd,
	}
	testCmd.Flags().DurationVar(&micTestDuration, "for", 10*time.Second, "how long to listen")
	cmd.AddCommand(testCmd)
	return cmd
}

func consentStore(s *settings) *consent.Store {
	return consent.NewStore(config.DefaultConsentPath(), consent.TerminalPrompter{In: os.Stdin, Out: os.Stderr}, logging.Component(s.log, "consent"))
}

func runMicStatusCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	library, err := loadLibrary(practicePassages)
	if err != nil {
		return err
	}
	lines := []string{fmt.Sprintf("Engine: %s", captureEngine)}
	engine, mic, err := buildEngine(captureEngine, s, library)
	switch {
	case err != nil:
		lines = append(lines, "Supported: no ("+err.Error()+")")
	case engine == nil:
		lines = append(lines, "Supported: no (live capture is off)")
	default:
		if reason := supportProblem(engine, mic); reason != nil {
			lines = append(lines, "Supported: no ("+reason.Error()+")")
		} else {
			lines = append(lines, "Supported: yes")
		}
	}

	store := consentStore(s)
	state, err := store.Query(cmd.Context())
	if err != nil {
		return err
	}
	line := fmt.Sprintf("Microphone consent: %s", state)
	if updated, err := store.UpdatedAt(); err == nil && !updated.IsZero() {
		line += fmt.Sprintf(" (since %s)", updated.Local().Format("2006-01-02 15:04"))
	}
	lines = append(lines, line, "Consent file: "+store.Path())
	return writeLines(cmd.OutOrStdout(), lines...)
}

// supportProblem reports why engine or mic cannot run, or nil.
func supportProblem(engine capture.Engine, mic capture.Microphone) error {
	if c, ok := engine.(capture.Checker); ok {
		if err := c.Check(); err != nil {
			return err
		}
	}
	if c, ok := mic.(capture.Checker); ok {
		if err := c.Check(); err != nil {
			return err
		}
	}
	return nil
}

func setConsent(cmd *cobra.Command, state capture.PermissionState) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if err := consentStore(s).Set(state); err != nil {
		return err
	}
	return writeLines(cmd.OutOrStdout(), fmt.Sprintf("Microphone consent: %s", state))
}

func runMicResetCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if err := consentStore(s).Reset(); err != nil {
		return err
	}
	return writeLines(cmd.OutOrStdout(), "Microphone consent cleared.")
}

func runMicWatchCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gate, err := capture.NewGate(ctx, consentStore(s), logging.Component(s.log, "permission"))
	if err != nil {
		return err
	}
	defer gate.Close()

	out := cmd.OutOrStdout()
	if err := writeLines(out, fmt.Sprintf("Microphone consent: %s (waiting for changes, ctrl+c to stop)", gate.State())); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case state := <-gate.Changes():
			line := fmt.Sprintf("%s  microphone consent: %s", time.Now().Format("15:04:05"), state)
			if warning := gate.Warning(); warning != "" {
				line += "\n" + warning
			}
			if err := writeLines(out, line); err != nil {
				return err
			}
		}
	}
}

// runMicTestCmd runs a headless capture: events are fed to the session by
// Pump while the transcript is printed as it changes.
func runMicTestCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	library, err := loadLibrary(practicePassages)
	if err != nil {
		return err
	}
	engine, mic, err := buildEngine(captureEngine, s, library)
	if err != nil {
		return err
	}
	if engine == nil {
		return errors.New("live capture is off (see --engine)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, micTestDuration)
	defer cancel()

	gate, err := capture.NewGate(ctx, consentStore(s), logging.Component(s.log, "permission"))
	if err != nil {
		return err
	}
	defer gate.Close()
	askForMicrophone(ctx, gate)

	session := capture.NewSession(capture.Config{
		Engine:      engine,
		Microphone:  mic,
		Permissions: gate,
		MaxRestarts: restartLimit(captureMaxRestarts),
		Logger:      logging.Component(s.log, "capture"),
	})
	defer session.Close()
	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("failed to start listening: %w", err)
	}
	go session.Pump(ctx)

	out := cmd.OutOrStdout()
	if err := writeLines(out, fmt.Sprintf("Listening for %s. Read something aloud.", micTestDuration)); err != nil {
		return err
	}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	last := ""
	for {
		select {
		case <-ctx.Done():
			session.Stop()
			st := session.State()
			lines := []string{"Heard: " + st.Transcript}
			if st.LastError != nil {
				lines = append(lines, "Last error: "+st.LastError.Error())
			}
			return writeLines(out, lines...)
		case <-gate.Changes():
			if session.CheckPermission() {
				cancel()
			}
		case <-ticker.C:
			st := session.State()
			if st.Transcript != last {
				last = st.Transcript
				if err := writeLines(out, "... "+last); err != nil {
					return err
				}
			}
			if !st.Listening {
				cancel()
			}
		}
	}
}
