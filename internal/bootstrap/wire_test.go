package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"voicedeck/internal/domain"
)

func TestBuildBrowserEngine(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("VOICEDECK_CONFIG", "")

	services, err := Build(noopEventSink{}, noopNotifier{}, func(string) {})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Machine.Close()

	if services.Machine == nil || services.Store == nil || services.Scheduler == nil {
		t.Fatalf("incomplete service graph: %+v", services)
	}
	if services.SpeechBridge == nil || services.PermissionBridge == nil {
		t.Fatalf("expected browser bridges to be exposed")
	}
}

func TestBuildNativeEngine(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("VOICEDECK_CONFIG", "")
	t.Setenv("VOICEDECK_SPEECH_ENGINE", "native")
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	services, err := Build(noopEventSink{}, noopNotifier{}, func(string) {})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Machine.Close()

	if services.SpeechBridge != nil || services.PermissionBridge != nil {
		t.Fatalf("native engine must not expose browser bridges")
	}
}

func TestBuildFailsOnInvalidRules(t *testing.T) {
	home := t.TempDir()
	rules := filepath.Join(home, "bad.rules")
	if err := os.WriteFile(rules, []byte("not a valid rule\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("HOME", home)
	t.Setenv("VOICEDECK_CONFIG", "")
	t.Setenv("VOICEDECK_RULES_FILE", rules)

	if _, err := Build(noopEventSink{}, noopNotifier{}, func(string) {}); err == nil {
		t.Fatalf("expected build error due to invalid rules")
	}
}

type noopEventSink struct{}

func (noopEventSink) RecorderStateChanged(_ domain.RecorderPhase, _ domain.StateReason) {}
func (noopEventSink) TranscriptUpdated(_, _ string)                                     {}
func (noopEventSink) CountdownTick(_ int)                                               {}
func (noopEventSink) RecorderError(_ domain.ErrorCode, _ string)                        {}

type noopNotifier struct{}

func (noopNotifier) Notify(_ context.Context, _ domain.Reminder) error { return nil }
