// Package platform holds the OS-facing adapters: insertion helpers, the
// process table, the application directory and foreground activation. Every
// adapter shells out to a configurable helper so the heuristics above them
// stay testable against fakes.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"voicelink/internal/domain"
)

// Helper exit codes for a failed text replacement.
const (
	exitFocusLost           = 10
	exitSelectionLost       = 11
	exitAccessibilityDenied = 12
)

// HelperTarget drives the focused-control insertion helper. The helper is
// invoked as `<command> attach|replace|detach`; replace reads a JSON
// `{"old":..,"new":..}` document on stdin and reports failure classes via
// exit code.
type HelperTarget struct {
	command []string
}

// NewHelperTarget builds a target from a shell-style command string. An
// empty command yields nil, which disables the direct insertion path.
func NewHelperTarget(command string) *HelperTarget {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil
	}
	return &HelperTarget{command: fields}
}

func (t *HelperTarget) Attach(ctx context.Context) error {
	cmd := t.build(ctx, "attach")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("insertion helper attach failed: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (t *HelperTarget) ReplaceText(ctx context.Context, old, new string) (domain.InsertionFailure, error) {
	payload, err := json.Marshal(map[string]string{"old": old, "new": new})
	if err != nil {
		return domain.InsertionFailureOther, err
	}

	cmd := t.build(ctx, "replace")
	cmd.Stdin = bytes.NewReader(payload)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return "", nil
	}

	failure := classifyExit(err)
	return failure, fmt.Errorf("insertion helper replace failed (%s): %w (%s)",
		failure, err, strings.TrimSpace(string(out)))
}

func (t *HelperTarget) Detach() {
	// Best effort; a dead helper just means there is nothing to detach from.
	_ = t.build(context.Background(), "detach").Run()
}

func (t *HelperTarget) build(ctx context.Context, verb string) *exec.Cmd {
	args := append(append([]string(nil), t.command[1:]...), verb)
	return exec.CommandContext(ctx, t.command[0], args...)
}

// UnavailableTarget is the stand-in when no insertion helper is configured.
// Attach always fails, so every session runs on the typing fallback.
type UnavailableTarget struct{}

func (UnavailableTarget) Attach(context.Context) error {
	return errors.New("no insertion helper configured")
}

func (UnavailableTarget) ReplaceText(context.Context, string, string) (domain.InsertionFailure, error) {
	return domain.InsertionFailureOther, errors.New("no insertion helper configured")
}

func (UnavailableTarget) Detach() {}

func classifyExit(err error) domain.InsertionFailure {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return domain.InsertionFailureOther
	}
	switch exitErr.ExitCode() {
	case exitFocusLost:
		return domain.InsertionFailureFocusLost
	case exitSelectionLost:
		return domain.InsertionFailureSelectionLost
	case exitAccessibilityDenied:
		return domain.InsertionFailureAccessibilityDenied
	default:
		return domain.InsertionFailureOther
	}
}
