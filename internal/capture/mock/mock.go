// Package mock provides in-memory capture collaborators for tests.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/rliebert/reading-fluency-app/internal/capture"
)

// Engine is a controllable recognition engine.
type Engine struct {
	mu        sync.Mutex
	checkErr  error
	startErrs []error
	starts    int
	stops     int
	emit      func(capture.Event)
	segments  []capture.Segment
}

// SetCheckErr makes Check report err.
func (e *Engine) SetCheckErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkErr = err
}

// FailStarts queues errors returned by the next Start calls. A nil entry lets that call succeed.
func (e *Engine) FailStarts(errs ...error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startErrs = append(e.startErrs, errs...)
}

// Check implements capture.Checker.
func (e *Engine) Check() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkErr
}

// Start implements capture.Engine.
func (e *Engine) Start(_ context.Context, _ <-chan []byte, emit func(capture.Event)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	if len(e.startErrs) > 0 {
		err := e.startErrs[0]
		e.startErrs = e.startErrs[1:]
		if err != nil {
			return err
		}
	}
	e.emit = emit
	e.segments = nil
	return nil
}

// Stop implements capture.Engine.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	e.emit = nil
	return nil
}

// Starts returns how many times Start was called.
func (e *Engine) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

// Stops returns how many times Stop was called.
func (e *Engine) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

// Running reports whether a stream is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emit != nil
}

// Emit delivers a raw event. It returns false when no stream is active.
func (e *Engine) Emit(ev capture.Event) bool {
	e.mu.Lock()
	emit := e.emit
	e.mu.Unlock()
	if emit == nil {
		return false
	}
	emit(ev)
	return true
}

// Interim replaces the trailing interim segment and emits the full result set.
func (e *Engine) Interim(text string) bool {
	e.mu.Lock()
	if n := len(e.segments); n > 0 && !e.segments[n-1].Final {
		e.segments = e.segments[:n-1]
	}
	e.segments = append(e.segments, capture.Segment{Text: text})
	segs := append([]capture.Segment(nil), e.segments...)
	e.mu.Unlock()
	return e.Emit(capture.Event{Kind: capture.EventResult, Segments: segs})
}

// Final finalizes text and emits the full result set.
func (e *Engine) Final(text string) bool {
	e.mu.Lock()
	if n := len(e.segments); n > 0 && !e.segments[n-1].Final {
		e.segments = e.segments[:n-1]
	}
	e.segments = append(e.segments, capture.Segment{Text: text, Final: true, Confidence: 1})
	segs := append([]capture.Segment(nil), e.segments...)
	e.mu.Unlock()
	return e.Emit(capture.Event{Kind: capture.EventResult, Segments: segs})
}

// Fail emits an error event with code.
func (e *Engine) Fail(code string) bool {
	return e.Emit(capture.Event{Kind: capture.EventError, Code: code, Message: "mock " + code})
}

// End emits an end-of-stream event.
func (e *Engine) End() bool {
	return e.Emit(capture.Event{Kind: capture.EventEnd})
}

// Microphone hands out silent streams and counts how many are open.
type Microphone struct {
	mu       sync.Mutex
	openErrs []error
	checkErr error
	opens    int
	closes   int
}

// FailOpens queues errors returned by the next Open calls. A nil entry lets that call succeed.
func (m *Microphone) FailOpens(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErrs = append(m.openErrs, errs...)
}

// SetCheckErr makes Check report err.
func (m *Microphone) SetCheckErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkErr = err
}

// Check implements capture.Checker.
func (m *Microphone) Check() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkErr
}

// Open implements capture.Microphone.
func (m *Microphone) Open(_ context.Context) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.openErrs) > 0 {
		err := m.openErrs[0]
		m.openErrs = m.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	m.opens++
	return &micStream{owner: m, closed: make(chan struct{})}, nil
}

// Opens returns how many streams were opened.
func (m *Microphone) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Active returns how many streams are open and not yet closed.
func (m *Microphone) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens - m.closes
}

type micStream struct {
	owner  *Microphone
	once   sync.Once
	closed chan struct{}
}

func (s *micStream) Read(_ []byte) (int, error) {
	<-s.closed
	return 0, io.EOF
}

func (s *micStream) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.owner.mu.Lock()
		s.owner.closes++
		s.owner.mu.Unlock()
	})
	return nil
}

// Permissions is a fixed consent state.
type Permissions struct {
	mu    sync.Mutex
	state capture.PermissionState
}

// NewPermissions returns Permissions in state.
func NewPermissions(state capture.PermissionState) *Permissions {
	return &Permissions{state: state}
}

// Set changes the state.
func (p *Permissions) Set(state capture.PermissionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
}

// State implements capture.Permissions.
func (p *Permissions) State() capture.PermissionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Platform is an in-memory capture.PermissionPlatform.
type Platform struct {
	mu       sync.Mutex
	state    capture.PermissionState
	answer   capture.PermissionState
	queryErr error
	watchErr error
	watchers []chan capture.PermissionState
	requests int
}

// NewPlatform returns a platform in state that answers requests with answer.
func NewPlatform(state, answer capture.PermissionState) *Platform {
	return &Platform{state: state, answer: answer}
}

// SetQueryErr makes Query fail.
func (p *Platform) SetQueryErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queryErr = err
}

// SetWatchErr makes Watch fail.
func (p *Platform) SetWatchErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watchErr = err
}

// Query implements capture.PermissionPlatform.
func (p *Platform) Query(_ context.Context) (capture.PermissionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.queryErr
}

// Watch implements capture.PermissionPlatform.
func (p *Platform) Watch(ctx context.Context) (<-chan capture.PermissionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watchErr != nil {
		return nil, p.watchErr
	}
	ch := make(chan capture.PermissionState, 8)
	p.watchers = append(p.watchers, ch)
	return ch, nil
}

// Request implements capture.PermissionPlatform.
func (p *Platform) Request(_ context.Context) (capture.PermissionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	p.state = p.answer
	return p.answer, nil
}

// Requests returns how many consent prompts were shown.
func (p *Platform) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

// Change simulates a consent change made outside the application.
func (p *Platform) Change(state capture.PermissionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	for _, ch := range p.watchers {
		ch <- state
	}
}
