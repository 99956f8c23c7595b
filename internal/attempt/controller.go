// Package attempt runs timed reading attempts over a passage library.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rliebert/reading-fluency-app/internal/metrics"
	"github.com/rliebert/reading-fluency-app/internal/model"
	"github.com/rliebert/reading-fluency-app/internal/passage"
	"github.com/rliebert/reading-fluency-app/internal/simulate"
)

const (
	// MaxAttempts is the number of attempts per passage.
	MaxAttempts = 3
	// DefaultDuration is the length of one timed reading.
	DefaultDuration = 60 * time.Second
)

// ErrWrongPhase is returned when an operation does not apply to the current phase.
var ErrWrongPhase = errors.New("operation not allowed in this phase")

// Phase is the controller's position in the attempt cycle.
type Phase int

const (
	PhaseReady Phase = iota
	PhaseReading
	PhaseFinishing
	PhaseRemediation
	PhaseResults
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseReading:
		return "reading"
	case PhaseFinishing:
		return "finishing"
	case PhaseRemediation:
		return "remediation"
	case PhaseResults:
		return "results"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Recorder stores finished attempts.
type Recorder interface {
	Record(ctx context.Context, rec model.AttemptRecord) error
}

// Config wires a Controller.
type Config struct {
	Library passage.Library
	// Live is nil when no capture is configured.
	Live      Source
	Simulated Source
	TestMode  bool
	Duration  time.Duration
	Recorder  Recorder
	SessionID string
	Logger    zerolog.Logger
	Now       func() time.Time
}

// State is a snapshot of the controller.
type State struct {
	Phase        Phase
	PassageIndex int
	Attempt      int
	Scores       []int
	TimeLeft     int
	Segment      int
	Paused       bool
	Mode         Mode
	Notice       string
	Transcript   string
	LastResult   *model.AttemptResult
	Reward       bool
}

// Controller owns the attempt cycle: countdown, finishing, remediation,
// results and advancing through passages. It is not safe for concurrent
// use; callers serialize calls on one event loop.
type Controller struct {
	library   passage.Library
	live      Source
	sim       Source
	testMode  bool
	duration  time.Duration
	recorder  Recorder
	sessionID string
	log       zerolog.Logger
	now       func() time.Time

	phase        Phase
	passageIndex int
	attempt      int
	scores       []int
	timeLeft     int
	segment      int
	paused       bool
	active       Source
	notice       string
	transcript   string
	startedAt    time.Time
	last         *model.AttemptResult
	remIndex     int
	reward       bool
	rewardTaken  bool
}

// New builds a Controller positioned at the first attempt of the first passage.
func New(cfg Config) (*Controller, error) {
	if cfg.Library.Len() == 0 {
		return nil, errors.New("passage library is empty")
	}
	if cfg.Simulated == nil {
		return nil, errors.New("simulated source is required")
	}
	duration := cfg.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		library:   cfg.Library,
		live:      cfg.Live,
		sim:       cfg.Simulated,
		testMode:  cfg.TestMode,
		duration:  duration,
		recorder:  cfg.Recorder,
		sessionID: cfg.SessionID,
		log:       cfg.Logger,
		now:       now,
		attempt:   1,
		timeLeft:  seconds(duration),
	}, nil
}

func seconds(d time.Duration) int {
	return max(int(d.Round(time.Second)/time.Second), 1)
}

// Passage returns the current passage.
func (c *Controller) Passage() passage.Passage {
	p, _ := c.library.At(c.passageIndex)
	return p
}

// Library returns the passage library.
func (c *Controller) Library() passage.Library { return c.library }

// TestMode reports whether attempts are simulated.
func (c *Controller) TestMode() bool { return c.testMode }

// Duration returns the length of one timed reading.
func (c *Controller) Duration() time.Duration { return c.duration }

// SetTestMode switches between live and simulated attempts. It applies from the next Begin.
func (c *Controller) SetTestMode(on bool) { c.testMode = on }

// State returns a snapshot.
func (c *Controller) State() State {
	st := State{
		Phase:        c.phase,
		PassageIndex: c.passageIndex,
		Attempt:      c.attempt,
		Scores:       append([]int(nil), c.scores...),
		TimeLeft:     c.timeLeft,
		Segment:      c.segment,
		Paused:       c.paused,
		Notice:       c.notice,
		Transcript:   c.transcript,
		Reward:       c.reward,
	}
	if c.active != nil {
		st.Mode = c.active.Mode()
		st.Transcript = c.active.Transcript()
	}
	if c.last != nil {
		res := *c.last
		res.Errors = append([]string(nil), c.last.Errors...)
		st.LastResult = &res
	}
	return st
}

// Begin starts the countdown and the attempt's source, or resumes a paused attempt.
// A live source that cannot start degrades to simulation with a notice.
func (c *Controller) Begin(ctx context.Context) error {
	if c.phase == PhaseReading && c.paused {
		return c.resume(ctx)
	}
	if c.phase != PhaseReady {
		return fmt.Errorf("%w: begin while %s", ErrWrongPhase, c.phase)
	}
	c.notice = ""
	c.transcript = ""
	c.active = c.sim
	if !c.testMode && c.live != nil {
		if err := c.live.Begin(ctx); err != nil {
			c.fallback(err)
		} else {
			c.active = c.live
		}
	}
	c.phase = PhaseReading
	c.paused = false
	c.timeLeft = seconds(c.duration)
	c.startedAt = c.now()
	c.log.Info().
		Str("passage", c.Passage().ID()).
		Int("attempt", c.attempt).
		Str("mode", string(c.active.Mode())).
		Msg("attempt started")
	return nil
}

func (c *Controller) fallback(err error) {
	reason, notice := fallbackReason(err)
	metrics.FallbacksTotal.WithLabelValues(reason).Inc()
	c.notice = notice
	c.log.Warn().Err(err).Str("reason", reason).Msg("falling back to simulation")
}

func (c *Controller) resume(ctx context.Context) error {
	if err := c.active.Resume(ctx); err != nil {
		c.active.Abort()
		c.active = c.sim
		c.fallback(err)
	}
	c.paused = false
	return nil
}

// Tick advances the countdown by one second. It is the point where capture
// health is read: a capture that stopped for good aborts the attempt.
func (c *Controller) Tick(ctx context.Context) error {
	if c.phase != PhaseReading || c.paused {
		return nil
	}
	if c.CheckCapture() {
		return nil
	}
	c.timeLeft--
	if c.timeLeft > 0 {
		return nil
	}
	c.timeLeft = 0
	return c.finish(ctx, nil)
}

// CheckCapture interrupts a running attempt whose capture stopped for good,
// for example after microphone consent was withdrawn. It reports whether
// the attempt was interrupted.
func (c *Controller) CheckCapture() bool {
	if c.phase != PhaseReading {
		return false
	}
	failure := c.active.Failure()
	if failure == nil {
		return false
	}
	c.interrupt(failure)
	return true
}

func (c *Controller) interrupt(failure error) {
	c.active.Abort()
	metrics.AttemptsInterruptedTotal.Inc()
	c.phase = PhaseReady
	c.paused = false
	c.timeLeft = seconds(c.duration)
	c.notice = "Listening stopped (" + failure.Error() + "). Press start to try again."
	c.log.Warn().Err(failure).Int("attempt", c.attempt).Msg("attempt interrupted")
}

// Done finishes the running attempt early.
func (c *Controller) Done(ctx context.Context) error {
	if c.phase != PhaseReading {
		return fmt.Errorf("%w: done while %s", ErrWrongPhase, c.phase)
	}
	return c.finish(ctx, nil)
}

// SimulateNow finishes the attempt immediately with a simulated reading.
func (c *Controller) SimulateNow(ctx context.Context, profile simulate.Profile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	switch c.phase {
	case PhaseReady:
		c.notice = ""
		c.startedAt = c.now()
	case PhaseReading:
		if c.active != c.sim {
			c.active.Abort()
		}
	default:
		return fmt.Errorf("%w: simulate while %s", ErrWrongPhase, c.phase)
	}
	c.active = c.sim
	c.timeLeft = 0
	return c.finish(ctx, &profile)
}

func (c *Controller) finish(ctx context.Context, profile *simulate.Profile) error {
	c.phase = PhaseFinishing
	c.paused = false
	src := c.active
	p := c.Passage()
	out, err := src.Finish(ctx, Request{
		Passage:     p,
		Attempt:     c.attempt,
		PriorScores: append([]int(nil), c.scores...),
		Profile:     profile,
	})
	if err != nil {
		c.phase = PhaseReady
		c.timeLeft = seconds(c.duration)
		c.notice = "Could not finish this reading. Press start to try again."
		return err
	}

	improved := len(c.scores) > 0 && out.Result.Score > c.scores[len(c.scores)-1]
	c.scores = append(c.scores, out.Result.Score)
	res := out.Result
	c.last = &res
	c.transcript = out.Transcript
	c.reward = improved
	c.rewardTaken = false
	c.remIndex = 0
	c.active = nil

	metrics.ObserveAttempt(string(src.Mode()), res.Score)
	c.log.Info().
		Str("passage", p.ID()).
		Int("attempt", c.attempt).
		Str("mode", string(src.Mode())).
		Int("score", res.Score).
		Int("errors", res.ErrorCount()).
		Bool("improved", improved).
		Msg("attempt finished")
	c.record(ctx, model.AttemptRecord{
		SessionID:  c.sessionID,
		PassageID:  p.ID(),
		Level:      p.Level(),
		Attempt:    c.attempt,
		Mode:       string(src.Mode()),
		StartedAt:  c.startedAt,
		EndedAt:    c.now(),
		Score:      res.Score,
		Errors:     res.Errors,
		Transcript: out.Transcript,
		Improved:   improved,
	})

	if res.ErrorCount() > 0 {
		c.phase = PhaseRemediation
	} else {
		c.phase = PhaseResults
	}
	return nil
}

func (c *Controller) record(ctx context.Context, rec model.AttemptRecord) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(ctx, rec); err != nil {
		c.notice = "This reading could not be saved to history."
		c.log.Error().Err(err).Msg("failed to record attempt")
	}
}

// RemediationWord returns the tricky word to practice now, its position and
// the queue length.
func (c *Controller) RemediationWord() (word string, index, total int, ok bool) {
	if c.phase != PhaseRemediation || c.last == nil || c.remIndex >= len(c.last.Errors) {
		return "", 0, 0, false
	}
	return c.last.Errors[c.remIndex], c.remIndex, len(c.last.Errors), true
}

// Acknowledge marks the current tricky word as heard. After the last word
// the controller moves to results.
func (c *Controller) Acknowledge() error {
	if c.phase != PhaseRemediation {
		return fmt.Errorf("%w: acknowledge while %s", ErrWrongPhase, c.phase)
	}
	c.remIndex++
	if c.remIndex >= len(c.last.Errors) {
		c.phase = PhaseResults
	}
	return nil
}

// TakeReward reports the improvement reward. It returns true at most once per attempt.
func (c *Controller) TakeReward() bool {
	if c.phase != PhaseResults || !c.reward || c.rewardTaken {
		return false
	}
	c.rewardTaken = true
	return true
}

// Encouragement returns the results message for the current scores.
func (c *Controller) Encouragement() string {
	return Encouragement(c.scores)
}

// Advance moves on from results to the next attempt, the next passage or completion.
func (c *Controller) Advance() error {
	if c.phase != PhaseResults {
		return fmt.Errorf("%w: advance while %s", ErrWrongPhase, c.phase)
	}
	c.clearAttempt()
	if c.attempt < MaxAttempts {
		c.attempt++
		c.phase = PhaseReady
		return nil
	}
	c.attempt = 1
	c.scores = nil
	c.last = nil
	if c.passageIndex+1 >= c.library.Len() {
		c.phase = PhaseComplete
		c.log.Info().Msg("all passages complete")
		return nil
	}
	c.passageIndex++
	c.phase = PhaseReady
	return nil
}

func (c *Controller) clearAttempt() {
	c.transcript = ""
	c.segment = 0
	c.reward = false
	c.rewardTaken = false
	c.remIndex = 0
	c.notice = ""
	c.timeLeft = seconds(c.duration)
}

// Pause freezes the countdown and suspends input. Begin resumes.
func (c *Controller) Pause() {
	if c.phase != PhaseReading || c.paused {
		return
	}
	c.active.Pause()
	c.paused = true
}

// Reset abandons the running attempt and returns to Ready on the same attempt.
// It is safe in any phase.
func (c *Controller) Reset() {
	if c.active != nil {
		c.active.Abort()
		c.active = nil
	}
	if c.phase == PhaseReading || c.phase == PhaseFinishing {
		c.phase = PhaseReady
	}
	c.paused = false
	c.transcript = ""
	c.segment = 0
	c.timeLeft = seconds(c.duration)
}

// Close releases capture. It is safe in any phase and more than once.
func (c *Controller) Close() {
	c.Reset()
	if c.live != nil {
		c.live.Abort()
	}
}

// NextSegment shows the next passage segment.
func (c *Controller) NextSegment() bool {
	if c.segment+1 >= c.Passage().SegmentCount() {
		return false
	}
	c.segment++
	return true
}

// PrevSegment shows the previous passage segment.
func (c *Controller) PrevSegment() bool {
	if c.segment == 0 {
		return false
	}
	c.segment--
	return true
}
