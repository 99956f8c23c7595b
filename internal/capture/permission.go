package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// PermissionState is the microphone consent state.
type PermissionState int

const (
	PermissionUnknown PermissionState = iota
	PermissionGranted
	PermissionDenied
)

func (p PermissionState) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// ParsePermissionState converts a stored name back to a state.
func ParsePermissionState(s string) PermissionState {
	switch s {
	case "granted":
		return PermissionGranted
	case "denied":
		return PermissionDenied
	default:
		return PermissionUnknown
	}
}

// PermissionPlatform is where consent actually lives.
type PermissionPlatform interface {
	Query(ctx context.Context) (PermissionState, error)
	// Watch delivers state changes made outside the application until ctx is done.
	Watch(ctx context.Context) (<-chan PermissionState, error)
	// Request asks the user for consent and returns their answer.
	Request(ctx context.Context) (PermissionState, error)
}

// Gate tracks microphone consent and mediates explicit requests.
type Gate struct {
	platform PermissionPlatform
	log      zerolog.Logger

	mu      sync.Mutex
	state   PermissionState
	warning string

	changes chan PermissionState
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

const deniedWarning = "Microphone access is blocked. Allow it with `readfluent mic grant` or keep practicing in test mode."

// NewGate queries the platform and starts following its change notifications.
func NewGate(ctx context.Context, platform PermissionPlatform, log zerolog.Logger) (*Gate, error) {
	state, err := platform.Query(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query microphone permission: %w", err)
	}
	watchCtx, cancel := context.WithCancel(ctx)
	g := &Gate{
		platform: platform,
		log:      log,
		state:    state,
		changes:  make(chan PermissionState, 8),
		cancel:   cancel,
	}
	if state == PermissionDenied {
		g.warning = deniedWarning
		log.Warn().Msg("microphone permission denied")
	}

	updates, err := platform.Watch(watchCtx)
	if err != nil {
		log.Warn().Err(err).Msg("permission changes will not be tracked")
		return g, nil
	}
	g.wg.Add(1)
	go g.follow(watchCtx, updates)
	return g, nil
}

func (g *Gate) follow(ctx context.Context, updates <-chan PermissionState) {
	defer g.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			g.set(state)
		}
	}
}

func (g *Gate) set(state PermissionState) {
	g.mu.Lock()
	prev := g.state
	g.state = state
	if state == PermissionDenied {
		g.warning = deniedWarning
	} else {
		g.warning = ""
	}
	g.mu.Unlock()

	if prev == state {
		return
	}
	g.log.Info().Stringer("from", prev).Stringer("to", state).Msg("microphone permission changed")
	select {
	case g.changes <- state:
	default:
		g.log.Debug().Msg("permission change dropped; nobody listening")
	}
}

// State returns the current consent state.
func (g *Gate) State() PermissionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Warning returns a user-facing message while consent is denied.
func (g *Gate) Warning() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.warning
}

// Changes delivers every consent change.
func (g *Gate) Changes() <-chan PermissionState { return g.changes }

// RequestAccess prompts for consent. It returns ErrPermissionDenied when refused.
func (g *Gate) RequestAccess(ctx context.Context) error {
	state, err := g.platform.Request(ctx)
	if err != nil {
		return fmt.Errorf("failed to request microphone permission: %w", err)
	}
	g.set(state)
	if state != PermissionGranted {
		return ErrPermissionDenied
	}
	return nil
}

// Close stops following platform changes.
func (g *Gate) Close() {
	g.cancel()
	g.wg.Wait()
}
