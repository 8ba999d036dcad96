package speech

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicedeck/internal/domain"
)

type commandRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (c *commandRecorder) commander() Commander {
	return func(action string) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.actions = append(c.actions, action)
	}
}

func (c *commandRecorder) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.actions...)
}

func newTestBridge(t *testing.T) (*Bridge, *commandRecorder) {
	t.Helper()
	rec := &commandRecorder{}
	return NewBridge(rec.commander(), zerolog.Nop()), rec
}

func drainSignal(t *testing.T, b *Bridge) domain.CaptureSignal {
	t.Helper()
	select {
	case signal := <-b.Updates():
		return signal
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for capture signal")
		return domain.CaptureSignal{}
	}
}

func TestBridgeStartStopSendsCommands(t *testing.T) {
	bridge, rec := newTestBridge(t)

	require.NoError(t, bridge.Start(context.Background()))
	assert.True(t, bridge.Listening())

	require.NoError(t, bridge.Stop())
	assert.False(t, bridge.Listening())
	assert.Equal(t, []string{CommandStart, CommandStop}, rec.recorded())

	// Stop while idle must not command the engine again.
	require.NoError(t, bridge.Stop())
	assert.Equal(t, []string{CommandStart, CommandStop}, rec.recorded())
}

func TestBridgeAccumulatesFinals(t *testing.T) {
	bridge, _ := newTestBridge(t)
	require.NoError(t, bridge.Start(context.Background()))

	bridge.PushResult("call mom", "")
	signal := drainSignal(t, bridge)
	assert.Equal(t, domain.SignalTranscript, signal.Kind)
	assert.Equal(t, "call mom", signal.Final)

	bridge.PushResult("at five", "pm maybe")
	signal = drainSignal(t, bridge)
	assert.Equal(t, "call mom at five", signal.Final)
	assert.Equal(t, "pm maybe", signal.Interim)

	assert.Equal(t, "call mom at five", bridge.FinalTranscript())
	assert.Equal(t, "pm maybe", bridge.InterimTranscript())

	bridge.ResetTranscript()
	assert.Empty(t, bridge.FinalTranscript())
	assert.Empty(t, bridge.InterimTranscript())
}

func TestBridgeCoalescesInterimOnlyResults(t *testing.T) {
	bridge, _ := newTestBridge(t)
	require.NoError(t, bridge.Start(context.Background()))

	bridge.PushResult("", "ca")
	bridge.PushResult("", "call")
	bridge.PushResult("", "call mo")
	bridge.PushResult("", "call mom")

	signal := drainSignal(t, bridge)
	assert.Equal(t, "call mom", signal.Interim)

	select {
	case extra := <-bridge.Updates():
		t.Fatalf("expected a single coalesced signal, got extra %+v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBridgeRestartsOnceOnSilentDrop(t *testing.T) {
	bridge, rec := newTestBridge(t)
	require.NoError(t, bridge.Start(context.Background()))
	bridge.PushResult("buy eggs", "")
	drainSignal(t, bridge)

	bridge.PushEnded()
	signal := drainSignal(t, bridge)
	assert.Equal(t, domain.SignalRecovering, signal.Kind)
	assert.Equal(t, []string{CommandStart, CommandStart}, rec.recorded())

	bridge.PushStarted()
	signal = drainSignal(t, bridge)
	assert.Equal(t, domain.SignalResumed, signal.Kind)

	// Transcript survives the restart.
	assert.Equal(t, "buy eggs", bridge.FinalTranscript())
}

func TestBridgeSecondSilentDropIsAFault(t *testing.T) {
	bridge, _ := newTestBridge(t)
	require.NoError(t, bridge.Start(context.Background()))
	bridge.PushResult("buy eggs", "")
	drainSignal(t, bridge)

	bridge.PushEnded()
	drainSignal(t, bridge) // recovering

	bridge.PushEnded()
	signal := drainSignal(t, bridge)
	assert.Equal(t, domain.SignalError, signal.Kind)
	assert.Equal(t, domain.ErrorCodeCaptureFault, signal.Code)
	assert.Equal(t, "buy eggs", signal.Final)
}

func TestBridgeNewSpeechResetsDropCounter(t *testing.T) {
	bridge, _ := newTestBridge(t)
	require.NoError(t, bridge.Start(context.Background()))

	bridge.PushEnded()
	drainSignal(t, bridge) // recovering
	bridge.PushStarted()
	drainSignal(t, bridge) // resumed

	bridge.PushResult("buy eggs", "")
	drainSignal(t, bridge)

	// Counter reset by the committed result, so the next drop recovers again.
	bridge.PushEnded()
	signal := drainSignal(t, bridge)
	assert.Equal(t, domain.SignalRecovering, signal.Kind)
}

func TestBridgeEndedWhileStoppedIsIgnored(t *testing.T) {
	bridge, rec := newTestBridge(t)
	require.NoError(t, bridge.Start(context.Background()))
	require.NoError(t, bridge.Stop())

	bridge.PushEnded()
	select {
	case signal := <-bridge.Updates():
		t.Fatalf("unexpected signal after stop: %+v", signal)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, []string{CommandStart, CommandStop}, rec.recorded())
}

func TestBridgeMapsEngineErrors(t *testing.T) {
	cases := []struct {
		engineCode string
		want       domain.ErrorCode
	}{
		{"not-allowed", domain.ErrorCodePermissionDenied},
		{"service-not-allowed", domain.ErrorCodePermissionDenied},
		{"no-speech", domain.ErrorCodeNoSpeech},
		{"network", domain.ErrorCodeCaptureFault},
		{"aborted", domain.ErrorCodeCaptureFault},
		{"something-new", domain.ErrorCodeCaptureFault},
	}
	for _, tc := range cases {
		bridge, _ := newTestBridge(t)
		require.NoError(t, bridge.Start(context.Background()))
		bridge.PushError(tc.engineCode, "")

		signal := drainSignal(t, bridge)
		assert.Equal(t, domain.SignalError, signal.Kind, tc.engineCode)
		assert.Equal(t, tc.want, signal.Code, tc.engineCode)
		assert.Equal(t, tc.engineCode, signal.Message, tc.engineCode)
	}
}

func TestPermissionBridgeRequestWaitsForPushedAnswer(t *testing.T) {
	rec := &commandRecorder{}
	perm := NewPermissionBridge(rec.commander())
	assert.Equal(t, domain.PermissionUnknown, perm.Query())

	type outcome struct {
		granted bool
		err     error
	}
	results := make(chan outcome, 1)
	go func() {
		granted, err := perm.Request(context.Background())
		results <- outcome{granted, err}
	}()

	require.Eventually(t, func() bool {
		return len(rec.recorded()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, CommandRequestPermission, rec.recorded()[0])

	perm.PushState("granted")
	select {
	case got := <-results:
		require.NoError(t, got.err)
		assert.True(t, got.granted)
	case <-time.After(time.Second):
		t.Fatal("request never resolved")
	}
	assert.Equal(t, domain.PermissionGranted, perm.Query())
}

func TestPermissionBridgeShortCircuitsKnownStates(t *testing.T) {
	rec := &commandRecorder{}
	perm := NewPermissionBridge(rec.commander())

	perm.PushState("granted")
	granted, err := perm.Request(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Empty(t, rec.recorded())

	perm.PushState("denied")
	granted, err = perm.Request(context.Background())
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Empty(t, rec.recorded())
}

func TestPermissionBridgeRequestHonorsContext(t *testing.T) {
	perm := NewPermissionBridge(func(string) {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := perm.Request(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
