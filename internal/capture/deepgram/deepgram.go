// Package deepgram provides a capture.Engine backed by the Deepgram
// streaming WebSocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rliebert/reading-fluency-app/internal/capture"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000

	// CodeNetwork is emitted when the connection drops unexpectedly.
	CodeNetwork = "network"

	closeTimeout = 2 * time.Second
)

var closeStreamMsg = []byte(`{"type":"CloseStream"}`)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithModel sets the Deepgram model (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(e *Engine) {
		if model != "" {
			e.model = model
		}
	}
}

// WithLanguage sets the BCP-47 language code.
func WithLanguage(language string) Option {
	return func(e *Engine) {
		if language != "" {
			e.language = language
		}
	}
}

// WithSampleRate sets the PCM sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(e *Engine) {
		if rate > 0 {
			e.sampleRate = rate
		}
	}
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(e *Engine) {
		e.endpoint = endpoint
	}
}

// WithInsecure allows plain ws:// endpoints.
func WithInsecure() Option {
	return func(e *Engine) {
		e.insecure = true
	}
}

// WithKeywords boosts recognition of the given words.
func WithKeywords(words ...string) Option {
	return func(e *Engine) {
		e.keywords = append(e.keywords, words...)
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// Engine streams microphone audio to Deepgram. It runs one stream at a time.
type Engine struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
	keywords   []string
	insecure   bool
	log        zerolog.Logger

	mu     sync.Mutex
	active *stream
}

// New creates an Engine. A missing apiKey is reported by Check, not here,
// so the application can still fall back to simulation.
func New(apiKey string, opts ...Option) *Engine {
	e := &Engine{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Check implements capture.Checker.
func (e *Engine) Check() error {
	if strings.TrimSpace(e.apiKey) == "" {
		return errors.New("deepgram: DEEPGRAM_API_KEY is not set")
	}
	u, err := url.Parse(e.endpoint)
	if err != nil {
		return fmt.Errorf("deepgram: invalid endpoint: %w", err)
	}
	if u.Scheme != "wss" && !e.insecure {
		return fmt.Errorf("deepgram: endpoint %q is not a secure websocket", e.endpoint)
	}
	return nil
}

// buildURL constructs the streaming endpoint URL.
func (e *Engine) buildURL() (string, error) {
	u, err := url.Parse(e.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", e.model)
	q.Set("language", e.language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(e.sampleRate))
	q.Set("channels", "1")
	for _, kw := range e.keywords {
		q.Add("keyterm", kw)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type stream struct {
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	stopped atomic.Bool
}

// Start implements capture.Engine.
func (e *Engine) Start(ctx context.Context, audio <-chan []byte, emit func(capture.Event)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		return errors.New("deepgram: stream already running")
	}

	wsURL, err := e.buildURL()
	if err != nil {
		return fmt.Errorf("deepgram: build URL: %w", err)
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return fmt.Errorf("deepgram: dial: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	st := &stream{conn: conn, cancel: cancel, done: make(chan struct{})}
	g, gctx := errgroup.WithContext(streamCtx)
	g.Go(func() error { return writeLoop(gctx, conn, audio) })
	g.Go(func() error { return readLoop(gctx, conn, emit) })
	go func() {
		defer close(st.done)
		err := g.Wait()
		if st.stopped.Load() {
			return
		}
		if err != nil {
			e.log.Warn().Err(err).Msg("deepgram stream failed")
			emit(capture.Event{Kind: capture.EventError, Code: CodeNetwork, Message: err.Error()})
		}
		emit(capture.Event{Kind: capture.EventEnd})
	}()
	e.active = st
	e.log.Debug().Str("model", e.model).Msg("deepgram stream opened")
	return nil
}

// Stop implements capture.Engine. It waits for the stream goroutines to exit.
func (e *Engine) Stop() error {
	e.mu.Lock()
	st := e.active
	e.active = nil
	e.mu.Unlock()
	if st == nil {
		return nil
	}
	st.stopped.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := st.conn.Write(ctx, websocket.MessageText, closeStreamMsg); err != nil {
		e.log.Debug().Err(err).Msg("close stream flush")
	}
	st.cancel()
	<-st.done
	if err := st.conn.Close(websocket.StatusNormalClosure, "stream stopped"); err != nil {
		e.log.Debug().Err(err).Msg("connection close")
	}
	return nil
}

// writeLoop forwards audio chunks until the channel closes, then asks
// Deepgram to flush and close the stream.
func writeLoop(ctx context.Context, conn *websocket.Conn, audio <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-audio:
			if !ok {
				if err := conn.Write(ctx, websocket.MessageText, closeStreamMsg); err != nil && ctx.Err() == nil {
					return fmt.Errorf("deepgram: close stream: %w", err)
				}
				return nil
			}
			if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("deepgram: send audio: %w", err)
			}
		}
	}
}

// readLoop keeps the finalized segments plus the latest interim one and
// emits the whole set on every Results message.
func readLoop(ctx context.Context, conn *websocket.Conn, emit func(capture.Event)) error {
	var finals []capture.Segment
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("deepgram: read: %w", err)
		}
		seg, ok := parseResponse(msg)
		if !ok {
			continue
		}
		segments := append([]capture.Segment(nil), finals...)
		if seg.Final {
			if seg.Text != "" {
				finals = append(finals, seg)
				segments = append(segments, seg)
			}
		} else if seg.Text != "" {
			segments = append(segments, seg)
		}
		emit(capture.Event{Kind: capture.EventResult, Segments: segments})
	}
}

// response is the JSON structure returned by Deepgram for a Results event.
type response struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResponse returns the segment in a Results message. Other message
// types (Metadata, SpeechStarted, UtteranceEnd) are ignored.
func parseResponse(data []byte) (capture.Segment, bool) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return capture.Segment{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return capture.Segment{}, false
	}
	alt := resp.Channel.Alternatives[0]
	return capture.Segment{
		Text:       strings.TrimSpace(alt.Transcript),
		Final:      resp.IsFinal,
		Confidence: alt.Confidence,
	}, true
}
