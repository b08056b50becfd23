package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"voicelink/internal/domain"
)

type noopEventSink struct{}

func (noopEventSink) SessionStateChanged(domain.SessionState, domain.SessionStateReason) {}
func (noopEventSink) PartialTranscript(string)                                           {}
func (noopEventSink) FinalTranscript(string, string)                                     {}
func (noopEventSink) SessionError(domain.ErrorCode, string)                              {}

func TestBuildSuccess(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("VOICELINK_DEEPGRAM_API_KEY", "test-key")

	services, err := Build(noopEventSink{}, zap.NewNop())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	if services.Controller == nil {
		t.Fatal("expected a controller")
	}
	if services.Consumer == nil {
		t.Fatal("expected a consumer")
	}
	if services.Store == nil || services.Watcher == nil {
		t.Fatal("expected the mailbox store and watcher")
	}
	if got := services.Controller.Status(); got.State != domain.SessionStateIdle {
		t.Fatalf("expected an idle controller, got %q", got.State)
	}
}

func TestBuildFailsOnInvalidVocabRules(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	rules := filepath.Join(configHome, "bad.rules")
	if err := os.WriteFile(rules, []byte("not a valid rule\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("VOICELINK_VOCAB_RULES_FILE", rules)

	if _, err := Build(noopEventSink{}, zap.NewNop()); err == nil {
		t.Fatal("expected a build error for malformed rules")
	}
}
