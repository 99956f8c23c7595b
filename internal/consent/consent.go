// Package consent stores microphone consent in a small TOML file and reports
// changes made to it while the application runs.
package consent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/rliebert/reading-fluency-app/internal/capture"
)

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Question is shown when asking for microphone access.
const Question = "readfluent would like to use your microphone to listen while you read. Allow?"

type record struct {
	State     string    `toml:"state"`
	UpdatedAt time.Time `toml:"updated_at"`
}

// Store is a file-backed capture.PermissionPlatform.
type Store struct {
	path     string
	prompter Prompter
	log      zerolog.Logger
	now      func() time.Time
}

// NewStore returns a Store for the consent file at path.
func NewStore(path string, prompter Prompter, log zerolog.Logger) *Store {
	return &Store{path: path, prompter: prompter, log: log, now: time.Now}
}

// Path returns the consent file path.
func (s *Store) Path() string { return s.path }

// Query implements capture.PermissionPlatform. A missing file means unknown.
func (s *Store) Query(_ context.Context) (capture.PermissionState, error) {
	rec, err := s.read()
	if err != nil {
		return capture.PermissionUnknown, err
	}
	return capture.ParsePermissionState(rec.State), nil
}

// UpdatedAt returns when consent was last changed, or zero.
func (s *Store) UpdatedAt() (time.Time, error) {
	rec, err := s.read()
	if err != nil {
		return time.Time{}, err
	}
	return rec.UpdatedAt, nil
}

func (s *Store) read() (record, error) {
	var rec record
	if _, err := toml.DecodeFile(s.path, &rec); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return record{}, nil
		}
		return record{}, fmt.Errorf("failed to decode consent file: %w", err)
	}
	return rec, nil
}

// Set records a consent decision.
func (s *Store) Set(state capture.PermissionState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create consent directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".consent-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create consent file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()
	rec := record{State: state.String(), UpdatedAt: s.now().UTC().Truncate(time.Second)}
	if err := toml.NewEncoder(tmp).Encode(rec); err != nil {
		return fmt.Errorf("failed to encode consent file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close consent file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to write consent file: %w", err)
	}
	s.log.Info().Stringer("state", state).Msg("microphone consent recorded")
	return nil
}

// Reset forgets any decision, so the next run asks again.
func (s *Store) Reset() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove consent file: %w", err)
	}
	return nil
}

// Request implements capture.PermissionPlatform by asking the user.
func (s *Store) Request(ctx context.Context) (capture.PermissionState, error) {
	if s.prompter == nil {
		return capture.PermissionUnknown, errors.New("no way to ask for microphone consent")
	}
	ok, err := s.prompter.Confirm(ctx, Question)
	if err != nil {
		return capture.PermissionUnknown, err
	}
	state := capture.PermissionDenied
	if ok {
		state = capture.PermissionGranted
	}
	if err := s.Set(state); err != nil {
		return capture.PermissionUnknown, err
	}
	return state, nil
}

// Watch implements capture.PermissionPlatform. The directory is watched
// rather than the file so that atomic replacements and removals are seen.
func (s *Store) Watch(ctx context.Context) (<-chan capture.PermissionState, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create consent directory: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		if cerr := w.Close(); cerr != nil {
			s.log.Debug().Err(cerr).Msg("watcher close")
		}
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	last, err := s.Query(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("unreadable consent file")
	}

	out := make(chan capture.PermissionState, 4)
	go func() {
		defer close(out)
		defer func() {
			if cerr := w.Close(); cerr != nil {
				s.log.Debug().Err(cerr).Msg("watcher close")
			}
		}()
		target := filepath.Clean(s.path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				state, err := s.Query(ctx)
				if err != nil {
					s.log.Warn().Err(err).Msg("unreadable consent file")
					continue
				}
				if state == last {
					continue
				}
				last = state
				select {
				case out <- state:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Error().Err(err).Msg("fsnotify error")
			}
		}
	}()
	return out, nil
}

// TerminalPrompter asks on a terminal and reads a y/N answer.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer
}

// Confirm implements Prompter. Anything but an explicit yes is a no.
func (p TerminalPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	if _, err := fmt.Fprintf(p.Out, "%s [y/N] ", question); err != nil {
		return false, fmt.Errorf("failed to write prompt: %w", err)
	}
	answer := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			errc <- err
			return
		}
		answer <- line
	}()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-errc:
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read answer: %w", err)
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
