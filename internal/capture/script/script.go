// Package script provides a capture.Engine that replays a scripted reading.
//
// A script is plain text, one step per line:
//
//	# comments and blank lines are skipped
//	i have a dog          heard as interim, then finalized
//	@2s his name is max   wait 2s before this step
//	!no-speech            emit an engine error code
//	!end                  end the stream
//
// The replay position survives restarts, so a script can exercise recovery.
package script

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rliebert/reading-fluency-app/internal/capture"
)

// DefaultDelay is the pause before each step without an explicit delay.
const DefaultDelay = 700 * time.Millisecond

// Step is one scripted engine action.
type Step struct {
	Delay time.Duration
	Text  string
	Code  string
	End   bool
}

// Parse reads a script.
func Parse(text string) ([]Step, error) {
	var steps []Step
	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		step := Step{Delay: DefaultDelay}
		if strings.HasPrefix(line, "@") {
			head, rest, _ := strings.Cut(line[1:], " ")
			d, err := time.ParseDuration(head)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid delay %q: %w", lineNo, head, err)
			}
			step.Delay = d
			line = strings.TrimSpace(rest)
		}
		switch {
		case line == "!end":
			step.End = true
		case strings.HasPrefix(line, "!"):
			step.Code = strings.TrimPrefix(line, "!")
			if step.Code == "" {
				return nil, fmt.Errorf("line %d: empty error code", lineNo)
			}
		case line == "":
			return nil, fmt.Errorf("line %d: delay without text", lineNo)
		default:
			step.Text = line
		}
		steps = append(steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, errors.New("script is empty")
	}
	return steps, nil
}

// Load reads a script file.
func Load(path string) ([]Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return Parse(string(data))
}

// FromText builds a script that reads text a few words at a time.
func FromText(text string, wordsPerStep int, delay time.Duration) []Step {
	if wordsPerStep <= 0 {
		wordsPerStep = 3
	}
	words := strings.Fields(text)
	var steps []Step
	for i := 0; i < len(words); i += wordsPerStep {
		end := min(i+wordsPerStep, len(words))
		steps = append(steps, Step{Delay: delay, Text: strings.Join(words[i:end], " ")})
	}
	return steps
}

// Engine replays steps on a timer. Audio is read and discarded.
type Engine struct {
	steps []Step

	mu     sync.Mutex
	pos    int
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an Engine for steps.
func New(steps []Step) *Engine {
	return &Engine{steps: append([]Step(nil), steps...)}
}

// Check implements capture.Checker.
func (e *Engine) Check() error {
	if len(e.steps) == 0 {
		return errors.New("script has no steps")
	}
	return nil
}

// Start implements capture.Engine.
func (e *Engine) Start(ctx context.Context, audio <-chan []byte, emit func(capture.Event)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return errors.New("script: stream already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(runCtx, audio, emit, e.done)
	return nil
}

// Stop implements capture.Engine.
func (e *Engine) Stop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (e *Engine) next() (Step, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pos >= len(e.steps) {
		return Step{}, false
	}
	s := e.steps[e.pos]
	e.pos++
	return s, true
}

func (e *Engine) run(ctx context.Context, audio <-chan []byte, emit func(capture.Event), done chan struct{}) {
	defer close(done)
	go drain(ctx, audio)

	var finals []capture.Segment
	for {
		step, ok := e.next()
		if !ok {
			<-ctx.Done()
			return
		}
		timer := time.NewTimer(step.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		switch {
		case step.End:
			emit(capture.Event{Kind: capture.EventEnd})
			<-ctx.Done()
			return
		case step.Code != "":
			emit(capture.Event{Kind: capture.EventError, Code: step.Code, Message: "scripted " + step.Code})
		default:
			interim := append(append([]capture.Segment(nil), finals...), capture.Segment{Text: step.Text})
			emit(capture.Event{Kind: capture.EventResult, Segments: interim})
			finals = append(finals, capture.Segment{Text: step.Text, Final: true, Confidence: 1})
			emit(capture.Event{Kind: capture.EventResult, Segments: append([]capture.Segment(nil), finals...)})
		}
	}
}

func drain(ctx context.Context, audio <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-audio:
			if !ok {
				return
			}
		}
	}
}
