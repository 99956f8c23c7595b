package attempt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rliebert/reading-fluency-app/internal/capture"
	"github.com/rliebert/reading-fluency-app/internal/capture/mock"
	"github.com/rliebert/reading-fluency-app/internal/metrics"
	"github.com/rliebert/reading-fluency-app/internal/model"
	"github.com/rliebert/reading-fluency-app/internal/passage"
	"github.com/rliebert/reading-fluency-app/internal/simulate"
)

const dogText = "i have a dog his name is max he is"

type memRecorder struct {
	records []model.AttemptRecord
	err     error
}

func (r *memRecorder) Record(_ context.Context, rec model.AttemptRecord) error {
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

func library() passage.Library {
	return passage.NewLibrary(
		passage.MustNew("dog", "Kindergarten", []string{"i have a dog", "his name is max he is"}),
		passage.MustNew("hat", "1st Grade", []string{"sam has a red hat"}),
	)
}

type harness struct {
	ctrl    *Controller
	session *capture.Session
	engine  *mock.Engine
	mic     *mock.Microphone
	perms   *mock.Permissions
	rec     *memRecorder
}

func newHarness(t *testing.T, testMode bool, profile func(int) simulate.Profile) *harness {
	t.Helper()
	h := &harness{
		engine: &mock.Engine{},
		mic:    &mock.Microphone{},
		perms:  mock.NewPermissions(capture.PermissionGranted),
		rec:    &memRecorder{},
	}
	h.session = capture.NewSession(capture.Config{
		Engine:      h.engine,
		Microphone:  h.mic,
		Permissions: h.perms,
		Logger:      zerolog.Nop(),
	})
	t.Cleanup(h.session.Close)
	if profile == nil {
		profile = FixedProfile(simulate.Profile{WordsPerMinute: 60, Kind: simulate.Perfect})
	}
	ctrl, err := New(Config{
		Library:   library(),
		Live:      NewLiveSource(h.session),
		Simulated: NewSimulatedSource(simulate.NewSeeded(7), profile),
		TestMode:  testMode,
		Duration:  3 * time.Second,
		Recorder:  h.rec,
		SessionID: "session-1",
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	h.ctrl = ctrl
	return h
}

// say finalizes text on the live stream and feeds it to the session.
func (h *harness) say(t *testing.T, text string) {
	t.Helper()
	require.True(t, h.engine.Final(text))
	select {
	case ev := <-h.session.Events():
		h.session.Handle(context.Background(), ev)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for capture event")
	}
}

func TestNewRejectsEmptyLibrary(t *testing.T) {
	_, err := New(Config{Simulated: NewSimulatedSource(simulate.New(), nil)})
	require.Error(t, err)
	_, err = New(Config{Library: library()})
	require.Error(t, err)
}

func TestLiveAttemptScoresTranscript(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Begin(ctx))
	st := h.ctrl.State()
	assert.Equal(t, PhaseReading, st.Phase)
	assert.Equal(t, ModeLive, st.Mode)
	assert.Equal(t, 3, st.TimeLeft)
	assert.Equal(t, 1, h.mic.Active())

	h.say(t, "i have a cat his name is max he is")
	assert.Equal(t, "i have a cat his name is max he is", h.ctrl.State().Transcript)

	require.NoError(t, h.ctrl.Done(ctx))
	assert.Equal(t, 0, h.mic.Active(), "capture must stop before scoring")

	st = h.ctrl.State()
	assert.Equal(t, PhaseRemediation, st.Phase)
	require.NotNil(t, st.LastResult)
	assert.Equal(t, 9, st.LastResult.Score)
	assert.Equal(t, []string{"dog"}, st.LastResult.Errors)
	assert.Equal(t, []int{9}, st.Scores)

	require.Len(t, h.rec.records, 1)
	rec := h.rec.records[0]
	assert.Equal(t, "session-1", rec.SessionID)
	assert.Equal(t, "dog", rec.PassageID)
	assert.Equal(t, "Kindergarten", rec.Level)
	assert.Equal(t, "live", rec.Mode)
	assert.Equal(t, 9, rec.Score)
	assert.False(t, rec.Improved)
}

func TestRemediationThenResults(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Begin(ctx))
	h.say(t, "i have a cat his name was max he is")
	require.NoError(t, h.ctrl.Done(ctx))

	word, idx, total, ok := h.ctrl.RemediationWord()
	require.True(t, ok)
	assert.Equal(t, "dog", word)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 2, total)
	assert.False(t, h.ctrl.TakeReward())
	require.ErrorIs(t, h.ctrl.Advance(), ErrWrongPhase)

	require.NoError(t, h.ctrl.Acknowledge())
	word, idx, _, ok = h.ctrl.RemediationWord()
	require.True(t, ok)
	assert.Equal(t, "is", word)
	assert.Equal(t, 1, idx)

	require.NoError(t, h.ctrl.Acknowledge())
	assert.Equal(t, PhaseResults, h.ctrl.State().Phase)
	_, _, _, ok = h.ctrl.RemediationWord()
	assert.False(t, ok)
	require.ErrorIs(t, h.ctrl.Acknowledge(), ErrWrongPhase)
}

func TestPerfectReadingSkipsRemediation(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Begin(ctx))
	h.say(t, dogText)
	require.NoError(t, h.ctrl.Done(ctx))

	st := h.ctrl.State()
	assert.Equal(t, PhaseResults, st.Phase)
	assert.Equal(t, 10, st.LastResult.Score)
	assert.Empty(t, st.LastResult.Errors)
}

func TestTimerExpiryFinishes(t *testing.T) {
	h := newHarness(t, true, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Begin(ctx))
	assert.Equal(t, ModeSimulated, h.ctrl.State().Mode)
	assert.Equal(t, 0, h.mic.Opens(), "test mode never opens the microphone")

	require.NoError(t, h.ctrl.Tick(ctx))
	require.NoError(t, h.ctrl.Tick(ctx))
	assert.Equal(t, 1, h.ctrl.State().TimeLeft)
	require.NoError(t, h.ctrl.Tick(ctx))

	st := h.ctrl.State()
	assert.Equal(t, PhaseResults, st.Phase)
	assert.Equal(t, 0, st.TimeLeft)
	assert.Equal(t, 10, st.LastResult.Score)

	require.NoError(t, h.ctrl.Tick(ctx))
	assert.Equal(t, PhaseResults, h.ctrl.State().Phase)
}

func TestRewardOnStrictImprovementOnce(t *testing.T) {
	scores := map[int]int{1: 20, 2: 25, 3: 25}
	h := newHarness(t, true, func(attempt int) simulate.Profile {
		return simulate.Profile{WordsPerMinute: scores[attempt], Kind: simulate.Normal}
	})
	lib := passage.NewLibrary(passage.MustNew("long", "2nd Grade", []string{
		"one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen " +
			"sixteen seventeen eighteen nineteen twenty twentyone twentytwo twentythree twentyfour twentyfive",
	}))
	h.ctrl.library = lib
	ctx := context.Background()

	require.NoError(t, h.ctrl.Begin(ctx))
	require.NoError(t, h.ctrl.Done(ctx))
	assert.False(t, h.ctrl.State().Reward)
	assert.False(t, h.ctrl.TakeReward())
	assert.Equal(t, "Good effort!", h.ctrl.Encouragement())
	require.NoError(t, h.ctrl.Advance())

	require.NoError(t, h.ctrl.Begin(ctx))
	require.NoError(t, h.ctrl.Done(ctx))
	assert.True(t, h.ctrl.State().Reward)
	assert.True(t, h.ctrl.TakeReward())
	assert.False(t, h.ctrl.TakeReward())
	assert.Equal(t, "Amazing progress!", h.ctrl.Encouragement())
	assert.True(t, h.rec.records[1].Improved)
	require.NoError(t, h.ctrl.Advance())

	require.NoError(t, h.ctrl.Begin(ctx))
	require.NoError(t, h.ctrl.Done(ctx))
	assert.False(t, h.ctrl.State().Reward, "equal score is not an improvement")
	assert.Equal(t, "Keep practicing! You can do it!", h.ctrl.Encouragement())
}

func TestAdvanceThroughPassages(t *testing.T) {
	h := newHarness(t, true, nil)
	ctx := context.Background()

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		st := h.ctrl.State()
		assert.Equal(t, attempt, st.Attempt)
		assert.Equal(t, 0, st.PassageIndex)
		require.NoError(t, h.ctrl.Begin(ctx))
		h.ctrl.NextSegment()
		require.NoError(t, h.ctrl.Done(ctx))
		require.NoError(t, h.ctrl.Advance())
		assert.Equal(t, 0, h.ctrl.State().Segment)
	}

	st := h.ctrl.State()
	assert.Equal(t, 1, st.PassageIndex)
	assert.Equal(t, 1, st.Attempt)
	assert.Empty(t, st.Scores)
	assert.Equal(t, PhaseReady, st.Phase)
	assert.Equal(t, "hat", h.ctrl.Passage().ID())

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		require.NoError(t, h.ctrl.Begin(ctx))
		require.NoError(t, h.ctrl.Done(ctx))
		require.NoError(t, h.ctrl.Advance())
	}
	assert.Equal(t, PhaseComplete, h.ctrl.State().Phase)
	require.ErrorIs(t, h.ctrl.Begin(ctx), ErrWrongPhase)
	assert.Len(t, h.rec.records, 6)
}

func TestFallbackToSimulation(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(h *harness)
		reason string
	}{
		{"denied", func(h *harness) { h.perms.Set(capture.PermissionDenied) }, "permission_denied"},
		{"unknown", func(h *harness) { h.perms.Set(capture.PermissionUnknown) }, "permission_required"},
		{"mic", func(h *harness) { h.mic.FailOpens(errors.New("busy")) }, "start_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, false, nil)
			tc.setup(h)
			before := testutil.ToFloat64(metrics.FallbacksTotal.WithLabelValues(tc.reason))

			require.NoError(t, h.ctrl.Begin(context.Background()))
			st := h.ctrl.State()
			assert.Equal(t, PhaseReading, st.Phase)
			assert.Equal(t, ModeSimulated, st.Mode)
			assert.NotEmpty(t, st.Notice)
			assert.Equal(t, before+1, testutil.ToFloat64(metrics.FallbacksTotal.WithLabelValues(tc.reason)))

			require.NoError(t, h.ctrl.Done(context.Background()))
			assert.Equal(t, "simulated", h.rec.records[0].Mode)
		})
	}
}

func TestUnsupportedEngineFallsBack(t *testing.T) {
	engine := &mock.Engine{}
	engine.SetCheckErr(errors.New("no api key"))
	session := capture.NewSession(capture.Config{
		Engine:      engine,
		Microphone:  &mock.Microphone{},
		Permissions: mock.NewPermissions(capture.PermissionGranted),
		Logger:      zerolog.Nop(),
	})
	defer session.Close()
	ctrl, err := New(Config{
		Library:   library(),
		Live:      NewLiveSource(session),
		Simulated: NewSimulatedSource(simulate.NewSeeded(1), nil),
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, ctrl.Begin(context.Background()))
	assert.Equal(t, ModeSimulated, ctrl.State().Mode)
	assert.Contains(t, ctrl.State().Notice, "not available")
	assert.Equal(t, 60, ctrl.State().TimeLeft)
}

func TestCaptureFailureInterruptsAttempt(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Begin(ctx))
	h.say(t, "i have")
	require.True(t, h.engine.Fail(capture.CodeNotAllowed))
	h.session.Handle(ctx, <-h.session.Events())

	before := testutil.ToFloat64(metrics.AttemptsInterruptedTotal)
	require.NoError(t, h.ctrl.Tick(ctx))
	st := h.ctrl.State()
	assert.Equal(t, PhaseReady, st.Phase)
	assert.Contains(t, st.Notice, "try again")
	assert.Equal(t, 3, st.TimeLeft)
	assert.Empty(t, st.Scores)
	assert.Empty(t, h.rec.records)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AttemptsInterruptedTotal))
	assert.Equal(t, 0, h.mic.Active())
}

func TestRevokedConsentInterruptsAttempt(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Begin(ctx))
	h.say(t, "i have")
	assert.False(t, h.ctrl.CheckCapture())

	h.perms.Set(capture.PermissionDenied)
	require.True(t, h.session.CheckPermission())
	assert.True(t, h.ctrl.CheckCapture())

	st := h.ctrl.State()
	assert.Equal(t, PhaseReady, st.Phase)
	assert.Contains(t, st.Notice, "try again")
	assert.Empty(t, h.rec.records)
	assert.Equal(t, 0, h.mic.Active())
	assert.Equal(t, 1, h.engine.Starts())
	assert.False(t, h.ctrl.CheckCapture())
}

func TestRevokedConsentBlocksRestart(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Begin(ctx))
	h.say(t, "i have")

	h.perms.Set(capture.PermissionDenied)
	require.True(t, h.engine.End())
	h.session.Handle(ctx, <-h.session.Events())
	assert.Equal(t, 1, h.engine.Starts())
	assert.Equal(t, 0, h.mic.Active())

	require.NoError(t, h.ctrl.Tick(ctx))
	assert.Equal(t, PhaseReady, h.ctrl.State().Phase)
}

func TestPauseAndResumeKeepTranscript(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Begin(ctx))
	h.say(t, "i have a dog")
	require.NoError(t, h.ctrl.Tick(ctx))

	h.ctrl.Pause()
	st := h.ctrl.State()
	assert.True(t, st.Paused)
	assert.Equal(t, 0, h.mic.Active())
	require.NoError(t, h.ctrl.Tick(ctx))
	assert.Equal(t, 2, h.ctrl.State().TimeLeft, "paused countdown is frozen")

	require.NoError(t, h.ctrl.Begin(ctx))
	assert.False(t, h.ctrl.State().Paused)
	assert.Equal(t, 1, h.mic.Active())
	h.say(t, "his name is max he is")
	assert.Equal(t, dogText, h.ctrl.State().Transcript)

	require.NoError(t, h.ctrl.Done(ctx))
	assert.Equal(t, 10, h.ctrl.State().LastResult.Score)
}

func TestResetReleasesCapture(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	h.ctrl.Reset()
	require.NoError(t, h.ctrl.Begin(ctx))
	h.say(t, "i have")
	h.ctrl.NextSegment()
	require.NoError(t, h.ctrl.Tick(ctx))

	h.ctrl.Reset()
	h.ctrl.Reset()
	st := h.ctrl.State()
	assert.Equal(t, PhaseReady, st.Phase)
	assert.Equal(t, 3, st.TimeLeft)
	assert.Equal(t, 0, st.Segment)
	assert.Empty(t, st.Transcript)
	assert.Equal(t, 0, h.mic.Active())
	assert.Equal(t, capture.PhaseIdle, h.session.State().Phase)
	assert.Empty(t, h.session.Transcript())

	h.ctrl.Close()
	h.ctrl.Close()
}

func TestSimulateNow(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Begin(ctx))
	h.say(t, "i have")

	require.ErrorIs(t, h.ctrl.SimulateNow(ctx, simulate.Profile{ErrorRatePercent: 90}), simulate.ErrInvalidProfile)
	require.NoError(t, h.ctrl.SimulateNow(ctx, simulate.Profile{WordsPerMinute: 60, Kind: simulate.Perfect}))
	assert.Equal(t, 0, h.mic.Active())
	st := h.ctrl.State()
	assert.Equal(t, PhaseResults, st.Phase)
	assert.Equal(t, 10, st.LastResult.Score)
	assert.Equal(t, "simulated", h.rec.records[0].Mode)

	require.ErrorIs(t, h.ctrl.SimulateNow(ctx, simulate.QuickTest(1)), ErrWrongPhase)
	require.NoError(t, h.ctrl.Advance())
	require.NoError(t, h.ctrl.SimulateNow(ctx, simulate.QuickTest(2)))
	assert.Equal(t, 2, h.rec.records[1].Attempt)
}

func TestRecorderFailureKeepsResult(t *testing.T) {
	h := newHarness(t, true, nil)
	h.rec.err = errors.New("disk full")
	ctx := context.Background()
	require.NoError(t, h.ctrl.Begin(ctx))
	require.NoError(t, h.ctrl.Done(ctx))
	st := h.ctrl.State()
	assert.Equal(t, PhaseResults, st.Phase)
	assert.Contains(t, st.Notice, "could not be saved")
}

func TestSegmentPaging(t *testing.T) {
	h := newHarness(t, true, nil)
	assert.False(t, h.ctrl.PrevSegment())
	assert.True(t, h.ctrl.NextSegment())
	assert.False(t, h.ctrl.NextSegment())
	assert.Equal(t, 1, h.ctrl.State().Segment)
	assert.True(t, h.ctrl.PrevSegment())
}

func TestDoneOutsideReading(t *testing.T) {
	h := newHarness(t, true, nil)
	require.ErrorIs(t, h.ctrl.Done(context.Background()), ErrWrongPhase)
	require.NoError(t, h.ctrl.Tick(context.Background()))
	assert.Equal(t, PhaseReady, h.ctrl.State().Phase)
}
