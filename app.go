package main

import (
	"context"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voicedeck/internal/bootstrap"
	"voicedeck/internal/config"
	"voicedeck/internal/domain"
)

const (
	eventRecorder    = "voicedeck:recorder"
	eventTranscript  = "voicedeck:transcript"
	eventCountdown   = "voicedeck:countdown"
	eventError       = "voicedeck:error"
	eventCapture     = "voicedeck:capture"
	eventReminderDue = "voicedeck:reminder-due"
)

// App is the Wails application root. It binds the recorder machine and the
// reminder store to the frontend and relays speech engine events both ways.
type App struct {
	ctx context.Context

	services bootstrap.Services
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	commander := func(action string) {
		if a.ctx != nil {
			runtime.EventsEmit(a.ctx, eventCapture, action)
		}
	}

	services, err := bootstrap.Build(a, a, commander)
	if err != nil {
		a.bootErr = err
		a.RecorderError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.services.Scheduler.Start(ctx)
	a.RecorderStateChanged(domain.PhaseIdle, domain.ReasonRecorderReady)
}

func (a *App) shutdown(context.Context) {
	if a.services.Scheduler != nil {
		a.services.Scheduler.Stop()
	}
	if a.services.Machine != nil {
		a.services.Machine.Close()
	}
}

// SetEnvironment receives the frontend's platform probe and adjusts session
// timing accordingly.
func (a *App) SetEnvironment(osFamily string, osMajor int, osMinor int, installedApp bool) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Machine.SetEnvironment(domain.Environment{
		OS:           domain.OSFamily(osFamily),
		OSMajor:      osMajor,
		OSMinor:      osMinor,
		InstalledApp: installedApp,
	})
	return nil
}

// ToggleRecording starts a session from idle or stops the active one.
func (a *App) ToggleRecording() (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}
	a.services.Machine.ToggleRecording()
	return a.services.Machine.Snapshot(), nil
}

// ForceRetry restarts a capture session that appears hung.
func (a *App) ForceRetry() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Machine.ForceRetry()
	return nil
}

// ResetRecorder returns the recorder to idle from any state.
func (a *App) ResetRecorder() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Machine.Reset()
	return nil
}

// RetryProcessing re-runs the parser on the transcript preserved by the last
// error.
func (a *App) RetryProcessing() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Machine.RetryProcessing()
	return nil
}

// ConfirmReminder accepts the parsed reminder, persists it, and returns the
// recorder to idle.
func (a *App) ConfirmReminder() (*domain.Reminder, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	result, err := a.services.Machine.Confirm()
	if err != nil {
		return nil, err
	}
	stored, err := a.services.Store.Add(result)
	if err != nil {
		a.RecorderError(domain.ErrorCodeProcessing, err.Error())
		return nil, err
	}
	return stored, nil
}

// GetSnapshot returns the current recorder view.
func (a *App) GetSnapshot() domain.Snapshot {
	if a.services.Machine == nil {
		snapshot := domain.Snapshot{Phase: domain.PhaseIdle}
		if a.bootErr != nil {
			snapshot.Phase = domain.PhaseError
			snapshot.ErrorMessage = a.bootErr.Error()
		}
		return snapshot
	}
	return a.services.Machine.Snapshot()
}

// ListReminders returns all stored reminders ordered by due time.
func (a *App) ListReminders() ([]*domain.Reminder, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Store.List(), nil
}

func (a *App) CompleteReminder(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Store.Complete(id)
}

func (a *App) DeleteReminder(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Store.Delete(id)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	cfg := a.services.Config
	info := map[string]string{
		"speechEngine":  string(cfg.Speech.Engine),
		"rulesFile":     cfg.Parser.RulesPath,
		"remindersFile": cfg.Reminders.StorePath,
	}
	if cfg.Speech.Engine == config.EngineNative {
		info["provider"] = "Deepgram"
		info["model"] = cfg.Speech.Deepgram.Model
		info["audioInput"] = cfg.Speech.Audio.InputDevice
	}
	return info
}

// SpeechStarted is called by the frontend when its recognition session opens.
func (a *App) SpeechStarted() {
	if bridge := a.services.SpeechBridge; bridge != nil {
		bridge.PushStarted()
	}
}

// SpeechResult relays recognition results from the frontend engine.
func (a *App) SpeechResult(final string, interim string) {
	if bridge := a.services.SpeechBridge; bridge != nil {
		bridge.PushResult(final, interim)
	}
}

// SpeechEnded is called when the frontend engine closes its session on its
// own.
func (a *App) SpeechEnded() {
	if bridge := a.services.SpeechBridge; bridge != nil {
		bridge.PushEnded()
	}
}

// SpeechError relays a frontend engine error.
func (a *App) SpeechError(code string, message string) {
	if bridge := a.services.SpeechBridge; bridge != nil {
		bridge.PushError(code, message)
	}
}

// PermissionChanged relays the frontend microphone permission state.
func (a *App) PermissionChanged(state string) {
	if bridge := a.services.PermissionBridge; bridge != nil {
		bridge.PushState(state)
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services.Machine == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// RecorderStateChanged emits recorder lifecycle updates to the frontend.
func (a *App) RecorderStateChanged(phase domain.RecorderPhase, reason domain.StateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventRecorder, map[string]string{
		"phase":   string(phase),
		"reason":  string(reason),
		"message": stateReasonMessage(reason),
	})
}

// TranscriptUpdated emits live transcript text.
func (a *App) TranscriptUpdated(final string, interim string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, map[string]string{
		"final":   final,
		"interim": interim,
	})
}

// CountdownTick emits the remaining session seconds.
func (a *App) CountdownTick(secondsRemaining int) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventCountdown, map[string]int{
		"secondsRemaining": secondsRemaining,
	})
}

// RecorderError emits backend errors to the UI.
func (a *App) RecorderError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

// Notify surfaces a due reminder to the frontend, which renders the actual
// notification.
func (a *App) Notify(_ context.Context, reminder domain.Reminder) error {
	if a.ctx == nil {
		return fmt.Errorf("application is not initialized")
	}
	runtime.EventsEmit(a.ctx, eventReminderDue, reminder)
	return nil
}

func stateReasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonRecorderReady:
		return "Ready"
	case domain.ReasonPermissionRequested:
		return "Waiting for microphone permission"
	case domain.ReasonRecordingStarted:
		return "Listening..."
	case domain.ReasonSessionRecovering:
		return "Reconnecting..."
	case domain.ReasonSessionResumed:
		return "Listening..."
	case domain.ReasonTranscribing:
		return "Working on it..."
	case domain.ReasonReminderParsed:
		return "Does this look right?"
	case domain.ReasonReminderConfirmed:
		return "Reminder saved"
	case domain.ReasonRecorderReset:
		return "Ready"
	case domain.ReasonRecorderFailed:
		return "Something went wrong"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermissionDenied:
		return "Microphone access is blocked"
	case domain.ErrorCodeNoSpeech:
		return "Didn't catch that"
	case domain.ErrorCodeCaptureFault:
		return "Recording was interrupted"
	case domain.ErrorCodeProcessing:
		return "Couldn't turn that into a reminder"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
