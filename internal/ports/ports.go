package ports

import (
	"context"

	"voicedeck/internal/domain"
)

// SpeechCapture wraps a continuous speech recognition engine. The recorder
// machine is its sole owner: only one capture session may be active at a time
// and only the machine may call Start/Stop.
type SpeechCapture interface {
	// Start begins (or resumes) a recognition session. Accumulated transcript
	// text survives stop/start cycles until ResetTranscript is called.
	Start(ctx context.Context) error
	// Stop ends the active session. Calling Stop while idle is a no-op.
	Stop() error
	// ResetTranscript discards all accumulated final and interim text.
	ResetTranscript()
	// FinalTranscript returns the committed transcript captured so far.
	FinalTranscript() string
	// InterimTranscript returns provisional text that may still change.
	InterimTranscript() string
	// Listening reports whether the engine is actively capturing.
	Listening() bool
	// Updates delivers transcript, recovery, and error signals. The channel
	// spans capture sessions and closes only when the provider shuts down.
	Updates() <-chan domain.CaptureSignal
}

// MicrophonePermission queries and requests microphone access.
type MicrophonePermission interface {
	Query() domain.PermissionState
	Request(ctx context.Context) (bool, error)
}

// ReminderParser turns a finished transcript into a schedulable reminder.
type ReminderParser interface {
	Parse(ctx context.Context, transcript string) (*domain.Reminder, error)
}

// EventSink surfaces recorder state and events to the UI.
type EventSink interface {
	RecorderStateChanged(phase domain.RecorderPhase, reason domain.StateReason)
	TranscriptUpdated(final string, interim string)
	CountdownTick(secondsRemaining int)
	RecorderError(code domain.ErrorCode, message string)
}

// Notifier delivers due-reminder notifications. Delivery mechanics (service
// worker, system tray, push) live outside the core.
type Notifier interface {
	Notify(ctx context.Context, reminder domain.Reminder) error
}

// ReminderStore persists confirmed reminders.
type ReminderStore interface {
	Add(reminder *domain.Reminder) (*domain.Reminder, error)
	List() []*domain.Reminder
	Complete(id string) error
	Delete(id string) error
}
