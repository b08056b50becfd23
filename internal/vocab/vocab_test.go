package vocab

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRules(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.rules")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEngineAppliesLiteralRules(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "vscode => VS Code\n# a comment\ngithub => GitHub\n")
	engine, err := NewEngine(path, 0)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	got, err := engine.Apply("open vscode and push to github")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if got != "open VS Code and push to GitHub" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestEngineMatchesWholeWordsOnly(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "cat => feline\n")
	engine, err := NewEngine(path, 0)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	got, err := engine.Apply("the catalog has a cat")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if got != "the catalog has a feline" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestEngineMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(filepath.Join(t.TempDir(), "nope.rules"), 0)
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	got, err := engine.Apply("unchanged")
	if err != nil || got != "unchanged" {
		t.Fatalf("unexpected result: %q, %v", got, err)
	}
}

func TestEngineRejectsMalformedLine(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "no arrow here\n")
	if _, err := NewEngine(path, 0); err == nil {
		t.Fatalf("expected parse error")
	}
}
