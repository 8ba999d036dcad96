package recorder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voicedeck/internal/domain"
	"voicedeck/internal/ports"
	"voicedeck/internal/processing"
	"voicedeck/internal/recovery"
	"voicedeck/internal/timers"
	"voicedeck/internal/timing"
)

var ErrNothingToConfirm = errors.New("no parsed reminder awaiting confirmation")

const noSpeechMessage = "no speech detected"

// Machine is the single authority over the voice recorder lifecycle. It owns
// the speech capture provider exclusively: nothing else may call Start/Stop on
// it. All state changes go through the reducer; the machine's job is to feed
// events in and execute the commands that come back out.
type Machine struct {
	capture    ports.SpeechCapture
	permission ports.MicrophonePermission
	bridge     *processing.Bridge
	sink       ports.EventSink
	registry   *timers.Registry
	recovery   recovery.Policy
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    domain.RecorderState
	policy   timing.Policy
	env      domain.Environment
	stopping bool
	closed   bool

	countdownLeft int

	durationTimer  timers.Handle
	countdownTimer timers.Handle
	refreshTimer   timers.Handle
	retryTimer     timers.Handle
	autoResetTimer timers.Handle
}

func NewMachine(
	capture ports.SpeechCapture,
	permission ports.MicrophonePermission,
	bridge *processing.Bridge,
	sink ports.EventSink,
	env domain.Environment,
	log zerolog.Logger,
) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		capture:    capture,
		permission: permission,
		bridge:     bridge,
		sink:       sink,
		registry:   timers.NewRegistry(),
		recovery:   recovery.NewPolicy(),
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		state:      domain.RecorderState{Phase: domain.PhaseIdle},
		policy:     timing.ForEnvironment(env),
		env:        env,
	}
	go m.consumeSignals()
	return m
}

// SetEnvironment recomputes the timing policy. A session already in flight
// keeps its armed timers; the new policy applies from the next start.
func (m *Machine) SetEnvironment(env domain.Environment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.env = env
	m.policy = timing.ForEnvironment(env)
	m.log.Debug().
		Str("os", string(env.OS)).
		Int("osMajor", env.OSMajor).
		Bool("installedApp", env.InstalledApp).
		Dur("maxDuration", m.policy.MaxDuration).
		Msg("timing policy updated")
}

// ToggleRecording starts a capture session from idle, or runs the stop
// sequence while recording. Toggling during an in-flight stop sequence is a
// no-op, as is toggling from processing/confirming/error.
func (m *Machine) ToggleRecording() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	phase := m.state.Phase
	stopping := m.stopping
	m.mu.Unlock()

	switch phase {
	case domain.PhaseRecording, domain.PhaseRecovering:
		if stopping {
			return
		}
		m.stopSequence()
	case domain.PhaseIdle:
		m.dispatch(event{typ: evStartRecording})
	}
}

// ForceRetry restarts a session that is listening but producing nothing:
// stop, wait the policy retry delay, reset the transcript buffer, start
// again. If no text at all has appeared after a further delay, one more
// stop/restart is attempted. Exactly one extra attempt, never more. Rapid
// repeat calls replace the pending restart rather than stacking timers.
func (m *Machine) ForceRetry() {
	m.mu.Lock()
	if m.closed || !isCapturing(m.state.Phase) {
		m.mu.Unlock()
		return
	}
	delay := m.policy.RetryDelay
	m.registry.Stop(m.retryTimer)
	m.mu.Unlock()

	if err := m.capture.Stop(); err != nil {
		m.log.Warn().Err(err).Msg("force-retry stop failed")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.retryTimer = m.registry.After(delay, func() {
		m.retryRestart(delay, true)
	})
	m.mu.Unlock()
}

func (m *Machine) retryRestart(delay time.Duration, allowSecondAttempt bool) {
	m.mu.Lock()
	if m.closed || !isCapturing(m.state.Phase) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.capture.ResetTranscript()
	if err := m.capture.Start(m.ctx); err != nil {
		m.dispatch(event{
			typ:     evRecognitionError,
			code:    domain.ErrorCodeCaptureFault,
			message: err.Error(),
		})
		return
	}
	if !allowSecondAttempt {
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.retryTimer = m.registry.After(delay, func() {
		if m.capture.FinalTranscript() != "" || m.capture.InterimTranscript() != "" {
			return
		}
		m.log.Debug().Msg("no transcript after restart, retrying once more")
		if err := m.capture.Stop(); err != nil {
			m.log.Warn().Err(err).Msg("bounded-retry stop failed")
		}
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.retryTimer = m.registry.After(delay, func() {
			m.retryRestart(delay, false)
		})
		m.mu.Unlock()
	})
	m.mu.Unlock()
}

// Reset returns to idle from confirming or error; from any other phase it is
// a no-op.
func (m *Machine) Reset() {
	m.dispatch(event{typ: evReset})
}

// RetryProcessing re-enters the processing flow with the transcript preserved
// by a previous failure, without requiring a new recording.
func (m *Machine) RetryProcessing() {
	m.dispatch(event{typ: evRetryProcessing})
}

// Confirm consumes the parsed reminder awaiting confirmation and resets to
// idle.
func (m *Machine) Confirm() (*domain.Reminder, error) {
	m.mu.Lock()
	if m.state.Phase != domain.PhaseConfirming || m.state.Result == nil {
		m.mu.Unlock()
		return nil, ErrNothingToConfirm
	}
	result := *m.state.Result
	m.mu.Unlock()

	m.dispatch(event{typ: evConfirm})
	return &result, nil
}

// Snapshot returns the read-only view of the recorder for rendering.
func (m *Machine) Snapshot() domain.Snapshot {
	m.mu.Lock()
	state := m.state
	countdown := m.countdownLeft
	m.mu.Unlock()

	snap := domain.Snapshot{
		Phase:               state.Phase,
		Active:              state.Phase != domain.PhaseIdle,
		ErrorMessage:        state.ErrorMessage,
		PreservedTranscript: state.PreservedTranscript,
		Result:              state.Result,
	}

	switch state.Phase {
	case domain.PhaseRecording, domain.PhaseRecovering:
		snap.CountdownSeconds = countdown
		snap.Transcript = m.capture.FinalTranscript()
		snap.InterimTranscript = m.capture.InterimTranscript()
	case domain.PhaseProcessing:
		snap.Transcript = state.Transcript
	}
	return snap
}

// Close is the unmount signal: it stops the provider if it is listening,
// cancels every registry timer, and guarantees no further events are
// dispatched. Timer teardown completes before the provider stop returns.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.registry.Close()
	if m.capture.Listening() {
		if err := m.capture.Stop(); err != nil {
			m.log.Warn().Err(err).Msg("capture stop on close failed")
		}
	}
	m.cancel()
}

func isCapturing(phase domain.RecorderPhase) bool {
	return phase == domain.PhaseRecording || phase == domain.PhaseRecovering
}

// stopSequence ends capture and routes the result: non-empty transcript into
// processing, empty transcript into a no-speech error. At most one stop
// sequence runs at a time.
func (m *Machine) stopSequence() {
	m.mu.Lock()
	if m.closed || m.stopping || !isCapturing(m.state.Phase) {
		m.mu.Unlock()
		return
	}
	m.stopping = true
	m.mu.Unlock()

	if err := m.capture.Stop(); err != nil {
		m.log.Warn().Err(err).Msg("capture stop failed")
	}
	m.cancelCaptureTimers()

	transcript := strings.TrimSpace(m.capture.FinalTranscript())
	if transcript == "" {
		transcript = strings.TrimSpace(m.capture.InterimTranscript())
	}

	if transcript == "" {
		m.dispatch(event{
			typ:     evRecognitionError,
			code:    domain.ErrorCodeNoSpeech,
			message: noSpeechMessage,
		})
	} else {
		m.dispatch(event{typ: evStopRecording, transcript: transcript})
	}

	m.mu.Lock()
	m.stopping = false
	m.mu.Unlock()
}

// dispatch feeds one event through the reducer and executes the resulting
// commands. This is the only place machine state changes.
func (m *Machine) dispatch(ev event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	prev := m.state
	next, cmds := reduce(m.state, ev)
	m.state = next
	m.mu.Unlock()

	if next.Phase != prev.Phase {
		m.log.Debug().
			Str("from", string(prev.Phase)).
			Str("event", string(ev.typ)).
			Str("to", string(next.Phase)).
			Msg("recorder transition")
		m.sink.RecorderStateChanged(next.Phase, reasonFor(ev))
	}
	if next.Phase == domain.PhaseError && prev.Phase != domain.PhaseError {
		m.sink.RecorderError(next.ErrorCode, next.ErrorMessage)
	}

	for _, cmd := range cmds {
		m.execute(cmd, next)
	}
}

func (m *Machine) execute(cmd command, state domain.RecorderState) {
	switch cmd {
	case cmdRequestPermission:
		m.requestPermission()
	case cmdStartCapture:
		m.startCapture()
	case cmdStopCapture:
		if err := m.capture.Stop(); err != nil {
			m.log.Warn().Err(err).Msg("capture stop failed")
		}
		m.cancelCaptureTimers()
	case cmdBeginProcessing:
		m.beginProcessing(state.Transcript)
	case cmdScheduleAutoReset:
		m.scheduleAutoReset(state)
	case cmdCancelAutoReset:
		m.mu.Lock()
		m.registry.Stop(m.autoResetTimer)
		m.autoResetTimer = 0
		m.mu.Unlock()
	case cmdClearCapture:
		if m.capture.Listening() {
			if err := m.capture.Stop(); err != nil {
				m.log.Warn().Err(err).Msg("capture stop failed")
			}
		}
		m.cancelCaptureTimers()
		m.capture.ResetTranscript()
	}
}

func (m *Machine) requestPermission() {
	// Known-granted permission skips the prompt round trip entirely.
	if m.permission.Query() == domain.PermissionGranted {
		m.dispatch(event{typ: evPermissionGranted})
		return
	}

	go func() {
		granted, err := m.permission.Request(m.ctx)
		switch {
		case err != nil:
			m.dispatch(event{
				typ:     evPermissionDenied,
				code:    domain.ErrorCodePermissionDenied,
				message: err.Error(),
			})
		case !granted:
			m.dispatch(event{
				typ:     evPermissionDenied,
				code:    domain.ErrorCodePermissionDenied,
				message: "microphone access was denied",
			})
		default:
			m.dispatch(event{typ: evPermissionGranted})
		}
	}()
}

func (m *Machine) startCapture() {
	m.capture.ResetTranscript()
	if err := m.capture.Start(m.ctx); err != nil {
		m.dispatch(event{
			typ:     evRecognitionError,
			code:    domain.ErrorCodeCaptureFault,
			message: err.Error(),
		})
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	policy := m.policy
	m.countdownLeft = int(policy.MaxDuration / time.Second)

	m.durationTimer = m.registry.After(policy.MaxDuration, m.stopSequence)
	m.countdownTimer = m.registry.Every(time.Second, m.tickCountdown)
	if refresh := policy.Refresh(); refresh != nil {
		m.refreshTimer = m.registry.After(refresh.AutoStopAt, func() {
			m.refreshSession(*refresh)
		})
	}
	m.mu.Unlock()

	m.sink.CountdownTick(int(policy.MaxDuration / time.Second))
}

func (m *Machine) tickCountdown() {
	m.mu.Lock()
	if m.closed || !isCapturing(m.state.Phase) {
		m.mu.Unlock()
		return
	}
	if m.countdownLeft > 0 {
		m.countdownLeft--
	}
	remaining := m.countdownLeft
	m.mu.Unlock()

	m.sink.CountdownTick(remaining)
}

// refreshSession runs the forced stop/pause/restart cycle constrained
// environments need: the engine is stopped just before the platform would
// kill it, then restarted after a short pause with the accumulated transcript
// intact. The overall duration timer keeps running across cycles.
func (m *Machine) refreshSession(refresh timing.RefreshSchedule) {
	m.mu.Lock()
	if m.closed || !isCapturing(m.state.Phase) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.log.Debug().Dur("pause", refresh.Pause).Msg("session refresh: forced stop")
	if err := m.capture.Stop(); err != nil {
		m.log.Warn().Err(err).Msg("session refresh stop failed")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.refreshTimer = m.registry.After(refresh.Pause, func() {
		m.mu.Lock()
		if m.closed || !isCapturing(m.state.Phase) {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		if err := m.capture.Start(m.ctx); err != nil {
			m.dispatch(event{
				typ:     evRecognitionError,
				code:    domain.ErrorCodeCaptureFault,
				message: err.Error(),
			})
			return
		}

		m.mu.Lock()
		if !m.closed {
			m.refreshTimer = m.registry.After(refresh.AutoStopAt, func() {
				m.refreshSession(refresh)
			})
		}
		m.mu.Unlock()
	})
	m.mu.Unlock()
}

func (m *Machine) beginProcessing(transcript string) {
	outcome := m.bridge.Process(m.ctx, transcript)
	go func() {
		select {
		case <-m.ctx.Done():
		case result := <-outcome:
			if result.Err != nil {
				m.dispatch(event{
					typ:     evProcessingError,
					code:    domain.ErrorCodeProcessing,
					message: result.Err.Error(),
				})
				return
			}
			m.dispatch(event{typ: evProcessingComplete, result: result.Result})
		}
	}()
}

// scheduleAutoReset arms a single automatic reset for recoverable errors,
// replacing any reset already pending for a previous error entry.
func (m *Machine) scheduleAutoReset(state domain.RecorderState) {
	if m.recovery.Classify(state.ErrorCode, state.ErrorMessage) != recovery.Recoverable {
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.registry.Stop(m.autoResetTimer)
	m.autoResetTimer = m.registry.After(m.recovery.AutoResetDelay, func() {
		m.mu.Lock()
		inError := m.state.Phase == domain.PhaseError
		m.mu.Unlock()
		if inError {
			m.dispatch(event{typ: evReset})
		}
	})
	m.mu.Unlock()
}

func (m *Machine) cancelCaptureTimers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry.Stop(m.durationTimer)
	m.registry.Stop(m.countdownTimer)
	m.registry.Stop(m.refreshTimer)
	m.registry.Stop(m.retryTimer)
	m.durationTimer, m.countdownTimer, m.refreshTimer, m.retryTimer = 0, 0, 0, 0
	m.countdownLeft = 0
}

// consumeSignals turns provider updates into reducer events. Transcript
// updates do not change machine state; they go straight to the sink.
func (m *Machine) consumeSignals() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case sig, ok := <-m.capture.Updates():
			if !ok {
				return
			}
			m.handleSignal(sig)
		}
	}
}

func (m *Machine) handleSignal(sig domain.CaptureSignal) {
	switch sig.Kind {
	case domain.SignalTranscript:
		m.mu.Lock()
		capturing := !m.closed && isCapturing(m.state.Phase)
		m.mu.Unlock()
		if capturing {
			m.sink.TranscriptUpdated(sig.Final, sig.Interim)
		}
	case domain.SignalRecovering:
		m.dispatch(event{typ: evRecoveryStarted})
	case domain.SignalResumed:
		m.dispatch(event{typ: evRecoveryCompleted})
	case domain.SignalError:
		code := sig.Code
		if code == "" {
			code = domain.ErrorCodeCaptureFault
		}
		transcript := strings.TrimSpace(sig.Final)
		if transcript == "" {
			transcript = strings.TrimSpace(sig.Interim)
		}
		m.dispatch(event{
			typ:        evRecognitionError,
			code:       code,
			message:    sig.Message,
			transcript: transcript,
		})
	}
}
