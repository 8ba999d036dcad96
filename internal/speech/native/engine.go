// Package native captures microphone audio with ffmpeg and transcribes it
// over a Deepgram live websocket, presenting the result as a speech capture
// engine. It is the headless alternative to the browser bridge: same port,
// no frontend involved.
package native

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voicedeck/internal/domain"
)

// Config ties together the audio and transcription halves of the engine.
type Config struct {
	Deepgram DeepgramConfig `yaml:"deepgram"`
	Audio    AudioConfig    `yaml:"audio"`
}

// 100ms of 16kHz mono s16le per websocket frame.
const pumpChunkBytes = 3200

const redialPause = 200 * time.Millisecond

// One transparent redial per session; a second stream failure without new
// committed speech in between is surfaced as a capture fault.
const maxRedials = 1

// Engine implements the speech capture port over ffmpeg plus Deepgram.
// Accumulated transcript text survives stream redials and stop/start cycles
// until ResetTranscript.
type Engine struct {
	cfg Config
	log zerolog.Logger

	mu        sync.Mutex
	listening bool
	redials   int
	finals    []string
	interim   string
	cancel    context.CancelFunc
	mic       micSession
	strm      *stream
	done      chan struct{}

	updates chan domain.CaptureSignal
}

func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		log:     log.With().Str("component", "native_engine").Logger(),
		updates: make(chan domain.CaptureSignal, 32),
	}
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.listening {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	sessionCtx, cancel := context.WithCancel(ctx)
	mic, strm, err := e.open(sessionCtx)
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	e.mu.Lock()
	e.listening = true
	e.redials = 0
	e.cancel = cancel
	e.mic = mic
	e.strm = strm
	e.done = done
	e.mu.Unlock()

	go e.run(sessionCtx, mic, strm, done)
	return nil
}

func (e *Engine) open(ctx context.Context) (micSession, *stream, error) {
	mic, err := openMicrophone(ctx, e.cfg.Audio)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open microphone: %w", err)
	}
	strm, err := dialStream(ctx, e.cfg.Deepgram, e.cfg.Audio)
	if err != nil {
		_ = mic.Stop()
		return nil, nil, err
	}
	return mic, strm, nil
}

func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.listening {
		e.mu.Unlock()
		return nil
	}
	e.listening = false
	cancel := e.cancel
	mic := e.mic
	strm := e.strm
	done := e.done
	e.cancel, e.mic, e.strm, e.done = nil, nil, nil, nil
	e.mu.Unlock()

	if strm != nil {
		_ = strm.Close()
	}
	var stopErr error
	if mic != nil {
		stopErr = mic.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return stopErr
}

func (e *Engine) ResetTranscript() {
	e.mu.Lock()
	e.finals = nil
	e.interim = ""
	e.mu.Unlock()
}

func (e *Engine) FinalTranscript() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.Join(e.finals, " ")
}

func (e *Engine) InterimTranscript() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interim
}

func (e *Engine) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listening
}

func (e *Engine) Updates() <-chan domain.CaptureSignal {
	return e.updates
}

// run pumps one stream to completion and redials on dropouts until either
// the session is stopped or the redial budget runs out.
func (e *Engine) run(ctx context.Context, mic micSession, strm *stream, done chan struct{}) {
	defer close(done)

	for {
		err := e.pump(mic, strm)
		if ctx.Err() != nil || !e.Listening() {
			return
		}

		e.mu.Lock()
		e.redials++
		exhausted := e.redials > maxRedials
		e.mu.Unlock()

		if exhausted {
			e.log.Warn().Err(err).Msg("stream dropped past redial budget")
			e.failSession(err)
			return
		}

		e.log.Debug().Err(err).Msg("stream dropped, redialing")
		e.emit(domain.CaptureSignal{Kind: domain.SignalRecovering})
		time.Sleep(redialPause)

		next, dialErr := dialStream(ctx, e.cfg.Deepgram, e.cfg.Audio)
		if dialErr != nil {
			e.failSession(dialErr)
			return
		}
		e.mu.Lock()
		e.strm = next
		e.mu.Unlock()
		strm = next
		e.emit(domain.CaptureSignal{Kind: domain.SignalResumed})
	}
}

// pump feeds microphone audio into the stream and folds recognition events
// into the accumulated transcript. Returns when the stream ends.
func (e *Engine) pump(mic micSession, strm *stream) error {
	go func() {
		buf := make([]byte, pumpChunkBytes)
		for {
			n, readErr := mic.Read(buf)
			if n > 0 {
				if err := strm.SendAudio(buf[:n]); err != nil {
					return
				}
			}
			if readErr != nil {
				if readErr != io.EOF {
					e.log.Debug().Err(readErr).Msg("microphone read ended")
				}
				strm.CloseSend()
				return
			}
		}
	}()

	for event := range strm.Events() {
		e.handleEvent(event)
	}
	return strm.Wait()
}

func (e *Engine) handleEvent(event transcriptEvent) {
	e.mu.Lock()
	if event.Final {
		e.finals = append(e.finals, event.Text)
		e.interim = ""
		e.redials = 0
	} else {
		e.interim = event.Text
	}
	signal := domain.CaptureSignal{
		Kind:    domain.SignalTranscript,
		Final:   strings.Join(e.finals, " "),
		Interim: e.interim,
	}
	e.mu.Unlock()
	e.emit(signal)
}

// failSession tears the session down and reports the captured text alongside
// the fault so nothing dictated so far is lost.
func (e *Engine) failSession(err error) {
	e.mu.Lock()
	e.listening = false
	mic := e.mic
	cancel := e.cancel
	e.cancel, e.mic, e.strm = nil, nil, nil
	final := strings.Join(e.finals, " ")
	interim := e.interim
	e.mu.Unlock()

	if mic != nil {
		_ = mic.Stop()
	}
	if cancel != nil {
		cancel()
	}

	message := "speech stream failed"
	if err != nil {
		message = err.Error()
	}
	e.emit(domain.CaptureSignal{
		Kind:    domain.SignalError,
		Code:    domain.ErrorCodeCaptureFault,
		Message: message,
		Final:   final,
		Interim: interim,
	})
}

func (e *Engine) emit(signal domain.CaptureSignal) {
	select {
	case e.updates <- signal:
	default:
		e.log.Warn().Str("kind", string(signal.Kind)).Msg("dropping capture signal, consumer is behind")
	}
}

// Permission reports microphone access for the native engine. Access is
// mediated by the OS at process level, so there is nothing to prompt for.
type Permission struct{}

func (Permission) Query() domain.PermissionState {
	return domain.PermissionGranted
}

func (Permission) Request(context.Context) (bool, error) {
	return true, nil
}
