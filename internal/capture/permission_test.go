package capture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rliebert/reading-fluency-app/internal/capture"
	"github.com/rliebert/reading-fluency-app/internal/capture/mock"
)

func TestGateWarnsWhenDenied(t *testing.T) {
	platform := mock.NewPlatform(capture.PermissionDenied, capture.PermissionDenied)
	gate, err := capture.NewGate(context.Background(), platform, zerolog.Nop())
	require.NoError(t, err)
	defer gate.Close()

	assert.Equal(t, capture.PermissionDenied, gate.State())
	assert.NotEmpty(t, gate.Warning())
}

func TestGateFollowsPlatformChanges(t *testing.T) {
	platform := mock.NewPlatform(capture.PermissionUnknown, capture.PermissionGranted)
	gate, err := capture.NewGate(context.Background(), platform, zerolog.Nop())
	require.NoError(t, err)
	defer gate.Close()
	assert.Empty(t, gate.Warning())

	platform.Change(capture.PermissionGranted)
	select {
	case st := <-gate.Changes():
		assert.Equal(t, capture.PermissionGranted, st)
	case <-time.After(time.Second):
		t.Fatal("expected a permission change")
	}
	assert.Equal(t, capture.PermissionGranted, gate.State())

	platform.Change(capture.PermissionDenied)
	select {
	case st := <-gate.Changes():
		assert.Equal(t, capture.PermissionDenied, st)
	case <-time.After(time.Second):
		t.Fatal("expected a permission change")
	}
	assert.NotEmpty(t, gate.Warning())
}

func TestGateRequestAccess(t *testing.T) {
	declined := mock.NewPlatform(capture.PermissionUnknown, capture.PermissionDenied)
	gate, err := capture.NewGate(context.Background(), declined, zerolog.Nop())
	require.NoError(t, err)
	defer gate.Close()
	assert.ErrorIs(t, gate.RequestAccess(context.Background()), capture.ErrPermissionDenied)
	assert.Equal(t, capture.PermissionDenied, gate.State())
	assert.Equal(t, 1, declined.Requests())

	accepted := mock.NewPlatform(capture.PermissionUnknown, capture.PermissionGranted)
	gate2, err := capture.NewGate(context.Background(), accepted, zerolog.Nop())
	require.NoError(t, err)
	defer gate2.Close()
	require.NoError(t, gate2.RequestAccess(context.Background()))
	assert.Equal(t, capture.PermissionGranted, gate2.State())
}

func TestGateQueryFailure(t *testing.T) {
	platform := mock.NewPlatform(capture.PermissionUnknown, capture.PermissionGranted)
	platform.SetQueryErr(errors.New("boom"))
	_, err := capture.NewGate(context.Background(), platform, zerolog.Nop())
	require.Error(t, err)
}

func TestGateWithoutWatch(t *testing.T) {
	platform := mock.NewPlatform(capture.PermissionGranted, capture.PermissionGranted)
	platform.SetWatchErr(errors.New("unsupported"))
	gate, err := capture.NewGate(context.Background(), platform, zerolog.Nop())
	require.NoError(t, err)
	defer gate.Close()
	assert.Equal(t, capture.PermissionGranted, gate.State())
}

func TestGateFeedsSession(t *testing.T) {
	platform := mock.NewPlatform(capture.PermissionUnknown, capture.PermissionGranted)
	gate, err := capture.NewGate(context.Background(), platform, zerolog.Nop())
	require.NoError(t, err)
	defer gate.Close()

	s := capture.NewSession(capture.Config{
		Engine:      &mock.Engine{},
		Microphone:  &mock.Microphone{},
		Permissions: gate,
		Logger:      zerolog.Nop(),
	})
	defer s.Close()

	assert.ErrorIs(t, s.Start(context.Background()), capture.ErrPermissionRequired)
	require.NoError(t, gate.RequestAccess(context.Background()))
	require.NoError(t, s.Start(context.Background()))
}

func TestErrorKindMatching(t *testing.T) {
	err := &capture.Error{Kind: capture.KindPermissionDenied, Code: capture.CodeNotAllowed}
	assert.ErrorIs(t, err, capture.ErrPermissionDenied)
	assert.NotErrorIs(t, err, capture.ErrRestartFailed)
	assert.Contains(t, err.Error(), "not-allowed")
	assert.Equal(t, capture.PermissionGranted, capture.ParsePermissionState("granted"))
	assert.Equal(t, capture.PermissionUnknown, capture.ParsePermissionState("maybe"))
}

func TestPermissionDeniedKindAndState(t *testing.T) {
	assert.Equal(t, "permission_denied", capture.KindPermissionDenied.String())
	assert.Equal(t, "denied", capture.PermissionDenied.String())
	assert.Equal(t, capture.PermissionDenied, capture.ParsePermissionState("denied"))
	assert.True(t, (&capture.Error{Kind: capture.KindPermissionDenied}).Fatal())
	assert.True(t, (&capture.Error{Kind: capture.KindPermissionRequired}).Fatal())
	assert.False(t, (&capture.Error{Kind: capture.KindTransientNoSpeech}).Fatal())
}
