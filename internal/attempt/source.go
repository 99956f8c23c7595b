package attempt

import (
	"context"
	"errors"
	"fmt"

	"github.com/rliebert/reading-fluency-app/internal/capture"
	"github.com/rliebert/reading-fluency-app/internal/model"
	"github.com/rliebert/reading-fluency-app/internal/passage"
	"github.com/rliebert/reading-fluency-app/internal/scoring"
	"github.com/rliebert/reading-fluency-app/internal/simulate"
)

// Mode names where an attempt result came from.
type Mode string

const (
	ModeLive      Mode = "live"
	ModeSimulated Mode = "simulated"
)

// Request describes the attempt a source is asked to finish.
type Request struct {
	Passage     passage.Passage
	Attempt     int
	PriorScores []int
	// Profile overrides the simulated reader for this attempt.
	Profile *simulate.Profile
}

// Outcome is a finished attempt.
type Outcome struct {
	Result     model.AttemptResult
	Transcript string
}

// Source produces attempt results. Live capture and simulation are the two sources.
type Source interface {
	Mode() Mode
	// Begin starts a fresh attempt.
	Begin(ctx context.Context) error
	// Pause suspends input and keeps what was heard so far.
	Pause()
	// Resume continues a paused attempt.
	Resume(ctx context.Context) error
	// Finish stops input and computes the result.
	Finish(ctx context.Context, req Request) (Outcome, error)
	// Abort stops input and discards the attempt.
	Abort()
	// Transcript returns the text heard so far.
	Transcript() string
	// Failure reports a capture failure that ended input, if any.
	Failure() *capture.Error
}

// LiveSource scores what a capture.Session heard.
type LiveSource struct {
	session *capture.Session
	prefix  string
}

// NewLiveSource wraps session.
func NewLiveSource(session *capture.Session) *LiveSource {
	return &LiveSource{session: session}
}

// Session returns the wrapped capture session.
func (s *LiveSource) Session() *capture.Session { return s.session }

func (s *LiveSource) Mode() Mode { return ModeLive }

func (s *LiveSource) Begin(ctx context.Context) error {
	s.prefix = ""
	return s.session.Start(ctx)
}

func (s *LiveSource) Pause() {
	s.session.Stop()
	s.prefix = s.Transcript()
	s.session.ResetTranscript()
}

func (s *LiveSource) Resume(ctx context.Context) error {
	return s.session.Start(ctx)
}

// Finish stops capture before reading the transcript, so the score always
// sees the last text the session accepted.
func (s *LiveSource) Finish(_ context.Context, req Request) (Outcome, error) {
	s.session.Stop()
	transcript := s.Transcript()
	s.prefix = ""
	return Outcome{Result: scoring.Score(transcript, req.Passage), Transcript: transcript}, nil
}

func (s *LiveSource) Abort() {
	s.session.Stop()
	s.session.ResetTranscript()
	s.prefix = ""
}

func (s *LiveSource) Transcript() string {
	current := s.session.Transcript()
	switch {
	case s.prefix == "":
		return current
	case current == "":
		return s.prefix
	default:
		return s.prefix + " " + current
	}
}

func (s *LiveSource) Failure() *capture.Error {
	st := s.session.State()
	if st.Listening || st.LastError == nil || !st.LastError.Fatal() {
		return nil
	}
	return st.LastError
}

// SimulatedSource synthesizes results with a simulate.Engine.
type SimulatedSource struct {
	engine  *simulate.Engine
	profile func(attempt int) simulate.Profile
}

// NewSimulatedSource returns a source that reads with profile(attempt).
func NewSimulatedSource(engine *simulate.Engine, profile func(attempt int) simulate.Profile) *SimulatedSource {
	if profile == nil {
		profile = simulate.QuickTest
	}
	return &SimulatedSource{engine: engine, profile: profile}
}

// FixedProfile returns a profile function that ignores the attempt number.
func FixedProfile(p simulate.Profile) func(int) simulate.Profile {
	return func(int) simulate.Profile { return p }
}

func (s *SimulatedSource) Mode() Mode                   { return ModeSimulated }
func (s *SimulatedSource) Begin(context.Context) error  { return nil }
func (s *SimulatedSource) Pause()                       {}
func (s *SimulatedSource) Resume(context.Context) error { return nil }
func (s *SimulatedSource) Abort()                       {}
func (s *SimulatedSource) Transcript() string           { return "" }
func (s *SimulatedSource) Failure() *capture.Error      { return nil }

func (s *SimulatedSource) Finish(_ context.Context, req Request) (Outcome, error) {
	profile := s.profile(req.Attempt)
	if req.Profile != nil {
		profile = *req.Profile
	}
	res, err := s.engine.Simulate(profile, req.Passage, req.PriorScores)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to simulate attempt: %w", err)
	}
	return Outcome{Result: res}, nil
}

// fallbackReason maps a live start error to a notice and a metrics label.
func fallbackReason(err error) (string, string) {
	switch {
	case errors.Is(err, capture.ErrNotSupported):
		return "not_supported", "Speech recognition is not available here, so this reading is simulated."
	case errors.Is(err, capture.ErrPermissionRequired):
		return "permission_required", "Microphone access has not been allowed yet, so this reading is simulated."
	case errors.Is(err, capture.ErrPermissionDenied):
		return "permission_denied", "Microphone access is blocked, so this reading is simulated."
	default:
		return "start_failed", "The microphone could not start, so this reading is simulated."
	}
}
