package domain

import "time"

// RecorderPhase identifies the active variant of the recorder state.
type RecorderPhase string

const (
	PhaseIdle                 RecorderPhase = "idle"
	PhaseRequestingPermission RecorderPhase = "requesting_permission"
	PhaseRecording            RecorderPhase = "recording"
	PhaseRecovering           RecorderPhase = "recovering"
	PhaseProcessing           RecorderPhase = "processing"
	PhaseConfirming           RecorderPhase = "confirming"
	PhaseError                RecorderPhase = "error"
)

// RecorderState is the tagged union driving the voice recorder. Exactly one
// phase is active; payload fields are meaningful only for the phase that
// carries them (Transcript for Processing, Result for Confirming, ErrorMessage
// and PreservedTranscript for Error).
type RecorderState struct {
	Phase               RecorderPhase `json:"phase"`
	Transcript          string        `json:"transcript,omitempty"`
	Result              *Reminder     `json:"result,omitempty"`
	ErrorMessage        string        `json:"errorMessage,omitempty"`
	ErrorCode           ErrorCode     `json:"errorCode,omitempty"`
	PreservedTranscript string        `json:"preservedTranscript,omitempty"`
}

// StateReason provides a structured reason for recorder phase transitions.
type StateReason string

const (
	ReasonRecorderReady       StateReason = "recorder_ready"
	ReasonPermissionRequested StateReason = "permission_requested"
	ReasonRecordingStarted    StateReason = "recording_started"
	ReasonSessionRecovering   StateReason = "session_recovering"
	ReasonSessionResumed      StateReason = "session_resumed"
	ReasonTranscribing        StateReason = "transcribing"
	ReasonReminderParsed      StateReason = "reminder_parsed"
	ReasonReminderConfirmed   StateReason = "reminder_confirmed"
	ReasonRecorderReset       StateReason = "recorder_reset"
	ReasonRecorderFailed      StateReason = "recorder_failed"
)

// ErrorCode identifies recorder fault categories.
type ErrorCode string

const (
	ErrorCodePermissionDenied ErrorCode = "permission_denied"
	ErrorCodeNoSpeech         ErrorCode = "no_speech"
	ErrorCodeCaptureFault     ErrorCode = "capture_fault"
	ErrorCodeProcessing       ErrorCode = "processing"
	ErrorCodeStartup          ErrorCode = "startup"
)

// PermissionState mirrors the platform microphone permission status.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
	PermissionUnknown PermissionState = "unknown"
)

// SignalKind classifies updates coming out of a speech capture session.
type SignalKind string

const (
	SignalTranscript SignalKind = "transcript"
	SignalRecovering SignalKind = "recovering"
	SignalResumed    SignalKind = "resumed"
	SignalError      SignalKind = "error"
)

// CaptureSignal is an incremental update from the speech capture provider.
// Transcript signals carry the accumulated final text plus any interim tail;
// error signals carry a code and message, and whatever text was captured
// before the fault.
type CaptureSignal struct {
	Kind    SignalKind `json:"kind"`
	Final   string     `json:"final,omitempty"`
	Interim string     `json:"interim,omitempty"`
	Code    ErrorCode  `json:"code,omitempty"`
	Message string     `json:"message,omitempty"`
}

// OSFamily identifies the host platform family reported by the frontend.
type OSFamily string

const (
	OSiOS     OSFamily = "ios"
	OSAndroid OSFamily = "android"
	OSDesktop OSFamily = "desktop"
	OSOther   OSFamily = "other"
)

// Environment describes the runtime the speech engine lives in. Installed-app
// mode on iOS imposes the strictest continuous-recognition session limits, and
// the limit tightens further on older OS majors.
type Environment struct {
	OS           OSFamily `json:"os"`
	OSMajor      int      `json:"osMajor"`
	OSMinor      int      `json:"osMinor"`
	InstalledApp bool     `json:"installedApp"`
}

// Constrained reports whether the environment enforces short recognition
// session ceilings that require forced stop/pause/restart cycling.
func (e Environment) Constrained() bool {
	return e.OS == OSiOS && e.InstalledApp
}

// RepeatRule describes reminder recurrence.
type RepeatRule string

const (
	RepeatNone    RepeatRule = ""
	RepeatDaily   RepeatRule = "daily"
	RepeatWeekly  RepeatRule = "weekly"
	RepeatMonthly RepeatRule = "monthly"
)

// Reminder is a parsed, schedulable reminder. It is both the processing
// result handed back by the transcript parser and the record persisted by the
// store once confirmed.
type Reminder struct {
	ID        string     `json:"id,omitempty"`
	Title     string     `json:"title"`
	DueAt     time.Time  `json:"dueAt"`
	Repeat    RepeatRule `json:"repeat,omitempty"`
	Summary   string     `json:"summary"`
	Source    string     `json:"source,omitempty"`
	CreatedAt time.Time  `json:"createdAt,omitempty"`
	Done      bool       `json:"done"`
	Notified  bool       `json:"notified"`
}

// Snapshot is the read-only view of the recorder surfaced to the UI.
type Snapshot struct {
	Phase               RecorderPhase `json:"phase"`
	Active              bool          `json:"active"`
	CountdownSeconds    int           `json:"countdownSeconds"`
	Transcript          string        `json:"transcript"`
	InterimTranscript   string        `json:"interimTranscript"`
	ErrorMessage        string        `json:"errorMessage,omitempty"`
	PreservedTranscript string        `json:"preservedTranscript,omitempty"`
	Result              *Reminder     `json:"result,omitempty"`
}
