// Package speech adapts speech recognition engines to the capture port. The
// Bridge in this package fronts the browser's recognition engine: the
// frontend owns the actual microphone session and pushes its lifecycle events
// here, while capture commands travel the other way through a Commander.
package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/rs/zerolog"

	"voicedeck/internal/domain"
)

// Commander sends a capture command to the frontend engine. Known actions are
// CommandStart, CommandStop, and CommandRequestPermission.
type Commander func(action string)

const (
	CommandStart             = "capture:start"
	CommandStop              = "capture:stop"
	CommandRequestPermission = "capture:request-permission"
)

// One spontaneous engine drop per session is absorbed with a restart; a
// second one within the same session is a real fault.
const maxSilentRestarts = 1

const interimCoalesceDelay = 120 * time.Millisecond

// Bridge implements the speech capture port on top of a recognition engine
// running in the frontend. Interim-only updates are debounced so a fast
// talker does not flood the machine; updates carrying new final text flush
// immediately.
type Bridge struct {
	commander Commander
	log       zerolog.Logger

	mu         sync.Mutex
	listening  bool
	recovering bool
	restarts   int
	finals     []string
	interim    string

	updates  chan domain.CaptureSignal
	debounce func(func())
}

func NewBridge(commander Commander, log zerolog.Logger) *Bridge {
	return &Bridge{
		commander: commander,
		log:       log.With().Str("component", "speech_bridge").Logger(),
		updates:   make(chan domain.CaptureSignal, 32),
		debounce:  debounce.New(interimCoalesceDelay),
	}
}

func (b *Bridge) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.listening = true
	b.recovering = false
	b.restarts = 0
	b.mu.Unlock()

	b.commander(CommandStart)
	return nil
}

func (b *Bridge) Stop() error {
	b.mu.Lock()
	wasListening := b.listening
	b.listening = false
	b.recovering = false
	b.mu.Unlock()

	if wasListening {
		b.commander(CommandStop)
	}
	return nil
}

func (b *Bridge) ResetTranscript() {
	b.mu.Lock()
	b.finals = nil
	b.interim = ""
	b.mu.Unlock()
}

func (b *Bridge) FinalTranscript() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.finals, " ")
}

func (b *Bridge) InterimTranscript() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.interim
}

func (b *Bridge) Listening() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listening
}

func (b *Bridge) Updates() <-chan domain.CaptureSignal {
	return b.updates
}

// PushStarted records that the engine session opened. If the bridge was
// mid-recovery this completes the round trip.
func (b *Bridge) PushStarted() {
	b.mu.Lock()
	wasRecovering := b.recovering
	b.recovering = false
	b.mu.Unlock()

	if wasRecovering {
		b.emit(domain.CaptureSignal{Kind: domain.SignalResumed})
	}
}

// PushResult folds an engine result into the accumulated transcript. final
// holds newly committed text, interim the current provisional tail.
func (b *Bridge) PushResult(final, interim string) {
	b.mu.Lock()
	final = strings.TrimSpace(final)
	if final != "" {
		b.finals = append(b.finals, final)
		b.restarts = 0
	}
	b.interim = interim
	signal := domain.CaptureSignal{
		Kind:    domain.SignalTranscript,
		Final:   strings.Join(b.finals, " "),
		Interim: interim,
	}
	b.mu.Unlock()

	if final != "" {
		b.emit(signal)
		return
	}
	b.debounce(func() { b.emit(b.snapshotSignal()) })
}

func (b *Bridge) snapshotSignal() domain.CaptureSignal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.CaptureSignal{
		Kind:    domain.SignalTranscript,
		Final:   strings.Join(b.finals, " "),
		Interim: b.interim,
	}
}

// PushEnded handles the engine closing its session on its own, which browser
// engines do after silence or an internal timeout. While the machine still
// wants audio this is treated as a dropout: restart once, fault on repeat.
func (b *Bridge) PushEnded() {
	b.mu.Lock()
	if !b.listening {
		b.mu.Unlock()
		return
	}
	b.restarts++
	attempt := b.restarts
	exhausted := attempt > maxSilentRestarts
	if !exhausted {
		b.recovering = true
	}
	final := strings.Join(b.finals, " ")
	interim := b.interim
	b.mu.Unlock()

	if exhausted {
		b.log.Warn().Msg("engine dropped twice without new speech")
		b.emit(domain.CaptureSignal{
			Kind:    domain.SignalError,
			Code:    domain.ErrorCodeCaptureFault,
			Message: "speech session ended unexpectedly",
			Final:   final,
			Interim: interim,
		})
		return
	}

	b.log.Debug().Int("restart", attempt).Msg("engine dropped, restarting")
	b.emit(domain.CaptureSignal{Kind: domain.SignalRecovering})
	b.commander(CommandStart)
}

// PushError surfaces an engine error. The raw engine code (Web Speech API
// vocabulary) is mapped onto recorder error codes.
func (b *Bridge) PushError(engineCode, message string) {
	b.mu.Lock()
	b.recovering = false
	final := strings.Join(b.finals, " ")
	interim := b.interim
	b.mu.Unlock()

	code := mapEngineError(engineCode)
	if message == "" {
		message = engineCode
	}
	b.emit(domain.CaptureSignal{
		Kind:    domain.SignalError,
		Code:    code,
		Message: message,
		Final:   final,
		Interim: interim,
	})
}

func mapEngineError(engineCode string) domain.ErrorCode {
	switch strings.ToLower(strings.TrimSpace(engineCode)) {
	case "not-allowed", "service-not-allowed":
		return domain.ErrorCodePermissionDenied
	case "no-speech":
		return domain.ErrorCodeNoSpeech
	case "network", "aborted", "audio-capture":
		return domain.ErrorCodeCaptureFault
	default:
		return domain.ErrorCodeCaptureFault
	}
}

func (b *Bridge) emit(signal domain.CaptureSignal) {
	select {
	case b.updates <- signal:
	default:
		b.log.Warn().Str("kind", string(signal.Kind)).Msg("dropping capture signal, consumer is behind")
	}
}

// PermissionBridge implements the microphone permission port against
// permission state pushed from the frontend.
type PermissionBridge struct {
	commander Commander

	mu      sync.Mutex
	state   domain.PermissionState
	waiters []chan bool
}

func NewPermissionBridge(commander Commander) *PermissionBridge {
	return &PermissionBridge{commander: commander, state: domain.PermissionUnknown}
}

func (p *PermissionBridge) Query() domain.PermissionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Request asks the frontend to trigger the browser permission prompt and
// waits for the pushed outcome.
func (p *PermissionBridge) Request(ctx context.Context) (bool, error) {
	p.mu.Lock()
	switch p.state {
	case domain.PermissionGranted:
		p.mu.Unlock()
		return true, nil
	case domain.PermissionDenied:
		p.mu.Unlock()
		return false, nil
	}
	wait := make(chan bool, 1)
	p.waiters = append(p.waiters, wait)
	p.mu.Unlock()

	p.commander(CommandRequestPermission)

	select {
	case granted := <-wait:
		return granted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// PushState records the permission state reported by the frontend and
// resolves any pending requests once the answer is definitive.
func (p *PermissionBridge) PushState(state string) {
	resolved := domain.PermissionUnknown
	switch domain.PermissionState(state) {
	case domain.PermissionGranted:
		resolved = domain.PermissionGranted
	case domain.PermissionDenied:
		resolved = domain.PermissionDenied
	case domain.PermissionPrompt:
		resolved = domain.PermissionPrompt
	}

	p.mu.Lock()
	p.state = resolved
	var waiters []chan bool
	if resolved == domain.PermissionGranted || resolved == domain.PermissionDenied {
		waiters = p.waiters
		p.waiters = nil
	}
	p.mu.Unlock()

	for _, wait := range waiters {
		wait <- resolved == domain.PermissionGranted
	}
}
