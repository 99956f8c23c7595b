package script

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rliebert/reading-fluency-app/internal/capture"
	"github.com/rliebert/reading-fluency-app/internal/capture/mock"
)

func TestParse(t *testing.T) {
	steps, err := Parse(`
# warm up
i have a dog
@1ms his name
!no-speech
@5ms !end
`)
	require.NoError(t, err)
	require.Len(t, steps, 4)
	assert.Equal(t, Step{Delay: DefaultDelay, Text: "i have a dog"}, steps[0])
	assert.Equal(t, Step{Delay: time.Millisecond, Text: "his name"}, steps[1])
	assert.Equal(t, "no-speech", steps[2].Code)
	assert.True(t, steps[3].End)
	assert.Equal(t, 5*time.Millisecond, steps[3].Delay)
}

func TestParseErrors(t *testing.T) {
	for _, text := range []string{"", "# only comments", "@soon hello", "@1s", "!"} {
		_, err := Parse(text)
		assert.Error(t, err, text)
	}
}

func TestFromText(t *testing.T) {
	steps := FromText("one two three four five", 2, time.Millisecond)
	require.Len(t, steps, 3)
	assert.Equal(t, "five", steps[2].Text)
}

func TestReplayThroughSession(t *testing.T) {
	steps, err := Parse("@1ms i have a dog\n@1ms !no-speech\n@1ms !end\n@1ms his name is max")
	require.NoError(t, err)
	eng := New(steps)
	mic := &mock.Microphone{}
	s := capture.NewSession(capture.Config{
		Engine:      eng,
		Microphone:  mic,
		Permissions: mock.NewPermissions(capture.PermissionGranted),
		Logger:      zerolog.Nop(),
	})
	defer s.Close()

	require.NoError(t, s.Start(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Pump(ctx)

	require.Eventually(t, func() bool {
		return s.Transcript() == "i have a dog his name is max"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, capture.PhaseListening, s.State().Phase)
	assert.Equal(t, 2, mic.Opens())

	s.Stop()
	assert.Equal(t, 0, mic.Active())
	assert.Equal(t, "i have a dog his name is max", s.Transcript())
}

func TestStopIsIdempotent(t *testing.T) {
	eng := New([]Step{{Delay: time.Hour, Text: "never"}})
	require.NoError(t, eng.Check())
	require.NoError(t, eng.Start(context.Background(), make(chan []byte), func(capture.Event) {}))
	require.NoError(t, eng.Stop())
	require.NoError(t, eng.Stop())
	require.Error(t, New(nil).Check())
}
