package main

import (
	"errors"
	"testing"

	"voicedeck/internal/domain"
)

func TestStateReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.StateReason]string{
		domain.ReasonRecorderReady:       "Ready",
		domain.ReasonPermissionRequested: "Waiting for microphone permission",
		domain.ReasonRecordingStarted:    "Listening...",
		domain.ReasonSessionRecovering:   "Reconnecting...",
		domain.ReasonSessionResumed:      "Listening...",
		domain.ReasonTranscribing:        "Working on it...",
		domain.ReasonReminderParsed:      "Does this look right?",
		domain.ReasonReminderConfirmed:   "Reminder saved",
		domain.ReasonRecorderReset:       "Ready",
		domain.ReasonRecorderFailed:      "Something went wrong",
	}

	for reason, want := range cases {
		reason := reason
		want := want
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := stateReasonMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := stateReasonMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:          "Startup failed",
		domain.ErrorCodePermissionDenied: "Microphone access is blocked",
		domain.ErrorCodeNoSpeech:         "Didn't catch that",
		domain.ErrorCodeCaptureFault:     "Recording was interrupted",
		domain.ErrorCodeProcessing:       "Couldn't turn that into a reminder",
	}
	for code, want := range cases {
		code := code
		want := want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
}

func TestGetSnapshotWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	snapshot := app.GetSnapshot()
	if snapshot.Phase != domain.PhaseIdle || snapshot.Active {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	app.bootErr = errors.New("boot")
	snapshot = app.GetSnapshot()
	if snapshot.Phase != domain.PhaseError || snapshot.ErrorMessage != "boot" {
		t.Fatalf("unexpected boot snapshot: %+v", snapshot)
	}
}
