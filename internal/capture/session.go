package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rliebert/reading-fluency-app/internal/metrics"
)

const (
	// DefaultMaxRestarts bounds consecutive restarts without a recognition result.
	DefaultMaxRestarts = 3
	// NoRestarts as Config.MaxRestarts stops capture on the first unsolicited end.
	NoRestarts = -1

	defaultQueueSize = 64
	defaultChunkSize = 3200 // 100ms of 16kHz 16-bit mono
	audioQueueSize   = 32
)

// Config wires a Session to its collaborators.
type Config struct {
	Engine      Engine
	Microphone  Microphone
	Permissions Permissions
	// MaxRestarts defaults to DefaultMaxRestarts when zero. NoRestarts disables restarts.
	MaxRestarts int
	ChunkSize   int
	QueueSize   int
	Logger      zerolog.Logger
}

// Session is a single continuous speech capture.
type Session struct {
	engine      Engine
	mic         Microphone
	perms       Permissions
	maxRestarts int
	chunkSize   int
	log         zerolog.Logger

	supported  bool
	supportErr error

	mu         sync.Mutex
	phase      Phase
	committed  string
	current    string
	lastErr    *Error
	restarts   int
	generation uint64
	stream     *stream
	closed     bool

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

type stream struct {
	gen      uint64
	mic      io.ReadCloser
	audio    chan []byte
	quit     chan struct{}
	pumpDone chan struct{}
}

// NewSession builds an idle Session and checks engine and microphone support.
func NewSession(cfg Config) *Session {
	maxRestarts := cfg.MaxRestarts
	if maxRestarts == 0 {
		maxRestarts = DefaultMaxRestarts
	}
	if maxRestarts < 0 {
		maxRestarts = 0
	}
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = defaultQueueSize
	}
	s := &Session{
		engine:      cfg.Engine,
		mic:         cfg.Microphone,
		perms:       cfg.Permissions,
		maxRestarts: maxRestarts,
		chunkSize:   chunk,
		log:         cfg.Logger,
		events:      make(chan Event, queue),
		done:        make(chan struct{}),
	}
	s.supportErr = checkSupport(cfg.Engine, cfg.Microphone)
	s.supported = s.supportErr == nil
	if !s.supported {
		s.lastErr = &Error{Kind: KindNotSupported, Err: s.supportErr}
		s.log.Warn().Err(s.supportErr).Msg("speech recognition unavailable")
	}
	return s
}

func checkSupport(engine Engine, mic Microphone) error {
	if engine == nil {
		return errors.New("no recognition engine configured")
	}
	if mic == nil {
		return errors.New("no microphone configured")
	}
	if c, ok := engine.(Checker); ok {
		if err := c.Check(); err != nil {
			return fmt.Errorf("recognition engine: %w", err)
		}
	}
	if c, ok := mic.(Checker); ok {
		if err := c.Check(); err != nil {
			return fmt.Errorf("microphone: %w", err)
		}
	}
	return nil
}

// Supported reports whether live capture is possible at all.
func (s *Session) Supported() bool { return s.supported }

// Events returns the queue of engine events to feed into Handle.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start opens the microphone and a recognition stream and clears the transcript.
// Calling Start while already listening does nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: session closed", ErrStartFailed)
	}
	if !s.supported {
		s.lastErr = &Error{Kind: KindNotSupported, Err: s.supportErr}
		return fmt.Errorf("%w: %v", ErrNotSupported, s.supportErr)
	}
	if s.phase != PhaseIdle {
		return nil
	}
	switch s.permission() {
	case PermissionDenied:
		s.lastErr = &Error{Kind: KindPermissionDenied}
		return ErrPermissionDenied
	case PermissionUnknown:
		s.lastErr = &Error{Kind: KindPermissionRequired}
		return ErrPermissionRequired
	}

	s.committed = ""
	s.current = ""
	s.lastErr = nil
	s.restarts = 0
	s.phase = PhaseStarting
	if err := s.openStream(ctx); err != nil {
		s.phase = PhaseIdle
		s.lastErr = &Error{Kind: KindStartFailed, Err: err}
		s.log.Error().Err(err).Msg("failed to start capture")
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}
	s.phase = PhaseListening
	s.log.Info().Uint64("stream", s.generation).Msg("listening")
	return nil
}

func (s *Session) permission() PermissionState {
	if s.perms == nil {
		return PermissionGranted
	}
	return s.perms.State()
}

// Handle applies one engine event. Events from replaced streams are ignored.
func (s *Session) Handle(ctx context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil || ev.stream != s.stream.gen {
		return
	}
	switch ev.Kind {
	case EventResult:
		s.current = joinSegments(ev.Segments)
		s.restarts = 0
	case EventError:
		kind := classify(ev.Code)
		var cause error
		if ev.Message != "" {
			cause = errors.New(ev.Message)
		}
		s.lastErr = &Error{Kind: kind, Code: ev.Code, Err: cause}
		metrics.RecognitionErrorsTotal.WithLabelValues(kind.String()).Inc()
		switch kind {
		case KindTransientNoSpeech:
			s.log.Debug().Msg("no speech detected")
		case KindPermissionDenied:
			s.log.Warn().Str("code", ev.Code).Msg("microphone access revoked")
			s.teardown()
		default:
			s.log.Warn().Str("code", ev.Code).Str("message", ev.Message).Msg("recognition error")
			s.recover(ctx)
		}
	case EventEnd:
		s.log.Debug().Uint64("stream", ev.stream).Msg("stream ended")
		s.recover(ctx)
	}
}

// recover restarts the stream once, keeping the text heard so far.
func (s *Session) recover(ctx context.Context) {
	s.phase = PhaseRecovering
	s.commit()
	s.closeStream()
	if lost := s.permissionLost(); lost != nil {
		s.phase = PhaseIdle
		s.lastErr = lost
		s.log.Warn().Stringer("permission", s.permission()).Msg("microphone consent withdrawn, not restarting")
		return
	}
	s.restarts++
	if s.restarts > s.maxRestarts {
		s.phase = PhaseIdle
		s.lastErr = &Error{Kind: KindRestartFailed, Err: fmt.Errorf("gave up after %d restarts without speech", s.maxRestarts)}
		metrics.ObserveRestart(false)
		s.log.Error().Int("restarts", s.maxRestarts).Msg("capture stopped")
		return
	}
	if err := s.openStream(ctx); err != nil {
		s.phase = PhaseIdle
		s.lastErr = &Error{Kind: KindRestartFailed, Err: err}
		metrics.ObserveRestart(false)
		s.log.Error().Err(err).Msg("failed to restart capture")
		return
	}
	metrics.ObserveRestart(true)
	s.phase = PhaseListening
	s.log.Info().Uint64("stream", s.generation).Int("restarts", s.restarts).Msg("capture restarted")
}

// permissionLost returns the error for a consent that is no longer granted.
func (s *Session) permissionLost() *Error {
	switch s.permission() {
	case PermissionGranted:
		return nil
	case PermissionDenied:
		return &Error{Kind: KindPermissionDenied}
	default:
		return &Error{Kind: KindPermissionRequired}
	}
}

// CheckPermission stops a running capture when microphone consent is no
// longer granted. It reports whether capture was stopped.
func (s *Session) CheckPermission() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return false
	}
	lost := s.permissionLost()
	if lost == nil {
		return false
	}
	s.lastErr = lost
	s.phase = PhaseEnding
	s.teardown()
	s.log.Warn().Stringer("permission", s.permission()).Msg("microphone consent withdrawn, capture stopped")
	return true
}

func (s *Session) commit() {
	if s.current == "" {
		return
	}
	s.committed = joinText(s.committed, s.current)
	s.current = ""
}

func (s *Session) openStream(ctx context.Context) error {
	rc, err := s.mic.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open microphone: %w", err)
	}
	s.generation++
	st := &stream{
		gen:      s.generation,
		mic:      rc,
		audio:    make(chan []byte, audioQueueSize),
		quit:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	go s.pump(st)
	if err := s.engine.Start(ctx, st.audio, s.emitter(st)); err != nil {
		close(st.quit)
		s.releaseMic(st)
		return fmt.Errorf("failed to start engine: %w", err)
	}
	s.stream = st
	return nil
}

func (s *Session) emitter(st *stream) func(Event) {
	return func(ev Event) {
		ev.stream = st.gen
		select {
		case s.events <- ev:
		case <-st.quit:
		case <-s.done:
		}
	}
}

// pump copies microphone audio to the engine, dropping chunks the engine cannot take.
func (s *Session) pump(st *stream) {
	defer close(st.pumpDone)
	defer close(st.audio)
	buf := make([]byte, s.chunkSize)
	for {
		n, err := st.mic.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case st.audio <- chunk:
			case <-st.quit:
				return
			default:
				metrics.AudioChunksDroppedTotal.Inc()
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				select {
				case <-st.quit:
				default:
					s.log.Debug().Err(err).Msg("microphone read ended")
				}
			}
			return
		}
		select {
		case <-st.quit:
			return
		default:
		}
	}
}

func (s *Session) closeStream() {
	if s.stream == nil {
		return
	}
	st := s.stream
	s.stream = nil
	// Unblock engine goroutines waiting in emit before the engine waits for them.
	close(st.quit)
	if err := s.engine.Stop(); err != nil {
		s.log.Debug().Err(err).Msg("engine stop")
	}
	s.releaseMic(st)
}

// releaseMic frees the microphone and waits for the audio pump.
func (s *Session) releaseMic(st *stream) {
	if err := st.mic.Close(); err != nil {
		s.log.Debug().Err(err).Msg("microphone close")
	}
	<-st.pumpDone
}

func (s *Session) teardown() {
	s.commit()
	s.closeStream()
	s.phase = PhaseIdle
}

// Stop ends capture and releases the microphone. The transcript is kept.
// Stop is safe to call in any phase and more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		s.phase = PhaseIdle
		return
	}
	s.phase = PhaseEnding
	s.teardown()
	s.log.Info().Msg("capture stopped")
}

// Close stops capture and shuts the session down for good.
func (s *Session) Close() {
	s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.done) })
}

// Transcript returns the text recognized since Start.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript()
}

func (s *Session) transcript() string {
	return joinText(s.committed, s.current)
}

// ResetTranscript clears the recognized text without touching the stream.
func (s *Session) ResetTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = ""
	s.current = ""
}

// LastError returns the most recent capture error, if any.
func (s *Session) LastError() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Phase:      s.phase,
		Transcript: s.transcript(),
		Listening:  s.phase == PhaseStarting || s.phase == PhaseListening || s.phase == PhaseRecovering,
		LastError:  s.lastErr,
		Supported:  s.supported,
		Restarts:   s.restarts,
	}
}

// Pump feeds queued events into Handle until ctx is done or the session closes.
func (s *Session) Pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ev := <-s.events:
			s.Handle(ctx, ev)
		}
	}
}
