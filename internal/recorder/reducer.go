package recorder

import "voicedeck/internal/domain"

type eventType string

const (
	evStartRecording     eventType = "start_recording"
	evPermissionGranted  eventType = "permission_granted"
	evPermissionDenied   eventType = "permission_denied"
	evStopRecording      eventType = "stop_recording"
	evRecognitionError   eventType = "recognition_error"
	evRecoveryStarted    eventType = "recovery_started"
	evRecoveryCompleted  eventType = "recovery_completed"
	evProcessingComplete eventType = "processing_complete"
	evProcessingError    eventType = "processing_error"
	evRetryProcessing    eventType = "retry_processing"
	evConfirm            eventType = "confirm"
	evReset              eventType = "reset"
)

type event struct {
	typ        eventType
	transcript string
	message    string
	code       domain.ErrorCode
	result     *domain.Reminder
}

// command is a follow-up effect requested by a transition. The reducer stays
// pure; the machine executes commands against its collaborators.
type command int

const (
	cmdRequestPermission command = iota
	cmdStartCapture
	cmdStopCapture
	cmdBeginProcessing
	cmdScheduleAutoReset
	cmdCancelAutoReset
	cmdClearCapture
)

// reduce is the single authority over recorder transitions. It is total:
// state x event pairs outside the transition table return the state unchanged
// with no commands.
func reduce(state domain.RecorderState, ev event) (domain.RecorderState, []command) {
	switch state.Phase {
	case domain.PhaseIdle:
		if ev.typ == evStartRecording {
			return domain.RecorderState{Phase: domain.PhaseRequestingPermission}, []command{cmdRequestPermission}
		}

	case domain.PhaseRequestingPermission:
		switch ev.typ {
		case evPermissionGranted:
			return domain.RecorderState{Phase: domain.PhaseRecording}, []command{cmdStartCapture}
		case evPermissionDenied:
			return errorState(ev, ""), []command{cmdScheduleAutoReset}
		}

	case domain.PhaseRecording:
		switch ev.typ {
		case evStopRecording:
			return domain.RecorderState{Phase: domain.PhaseProcessing, Transcript: ev.transcript}, []command{cmdBeginProcessing}
		case evRecognitionError:
			return errorState(ev, ""), []command{cmdStopCapture, cmdScheduleAutoReset}
		case evRecoveryStarted:
			return domain.RecorderState{Phase: domain.PhaseRecovering}, nil
		}

	case domain.PhaseRecovering:
		switch ev.typ {
		case evRecoveryCompleted:
			return domain.RecorderState{Phase: domain.PhaseRecording}, nil
		case evStopRecording:
			return domain.RecorderState{Phase: domain.PhaseProcessing, Transcript: ev.transcript}, []command{cmdBeginProcessing}
		case evRecognitionError:
			return errorState(ev, ""), []command{cmdStopCapture, cmdScheduleAutoReset}
		}

	case domain.PhaseProcessing:
		switch ev.typ {
		case evProcessingComplete:
			return domain.RecorderState{Phase: domain.PhaseConfirming, Result: ev.result}, nil
		case evProcessingError:
			// Keep the in-flight transcript so the user can retry without
			// re-recording.
			return errorState(ev, state.Transcript), []command{cmdScheduleAutoReset}
		}

	case domain.PhaseConfirming:
		switch ev.typ {
		case evConfirm, evReset:
			return domain.RecorderState{Phase: domain.PhaseIdle}, []command{cmdClearCapture}
		}

	case domain.PhaseError:
		switch ev.typ {
		case evReset:
			return domain.RecorderState{Phase: domain.PhaseIdle}, []command{cmdCancelAutoReset, cmdClearCapture}
		case evRetryProcessing:
			if state.PreservedTranscript == "" {
				return state, nil
			}
			return domain.RecorderState{Phase: domain.PhaseProcessing, Transcript: state.PreservedTranscript},
				[]command{cmdCancelAutoReset, cmdBeginProcessing}
		case evPermissionDenied, evRecognitionError, evProcessingError:
			// Re-entering Error never loses a previously preserved transcript
			// unless the new event supplies one.
			return errorState(ev, state.PreservedTranscript), []command{cmdScheduleAutoReset}
		}
	}

	return state, nil
}

func errorState(ev event, fallbackTranscript string) domain.RecorderState {
	preserved := ev.transcript
	if preserved == "" {
		preserved = fallbackTranscript
	}
	return domain.RecorderState{
		Phase:               domain.PhaseError,
		ErrorMessage:        ev.message,
		ErrorCode:           ev.code,
		PreservedTranscript: preserved,
	}
}

func reasonFor(ev event) domain.StateReason {
	switch ev.typ {
	case evStartRecording:
		return domain.ReasonPermissionRequested
	case evPermissionGranted:
		return domain.ReasonRecordingStarted
	case evRecoveryStarted:
		return domain.ReasonSessionRecovering
	case evRecoveryCompleted:
		return domain.ReasonSessionResumed
	case evStopRecording, evRetryProcessing:
		return domain.ReasonTranscribing
	case evProcessingComplete:
		return domain.ReasonReminderParsed
	case evConfirm:
		return domain.ReasonReminderConfirmed
	case evReset:
		return domain.ReasonRecorderReset
	default:
		return domain.ReasonRecorderFailed
	}
}
