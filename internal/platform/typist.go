package platform

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// CommandTypist emits simulated keystrokes through an xdotool-compatible
// tool. It is the fallback insertion path and must work without any
// accessibility integration.
type CommandTypist struct {
	command []string
}

func NewCommandTypist(command string) *CommandTypist {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		fields = []string{"xdotool"}
	}
	return &CommandTypist{command: fields}
}

func (t *CommandTypist) TypeBackspaces(ctx context.Context, count int) error {
	if count <= 0 {
		return nil
	}
	args := []string{"key", "--repeat", strconv.Itoa(count), "--delay", "1", "BackSpace"}
	if out, err := t.build(ctx, args).CombinedOutput(); err != nil {
		return fmt.Errorf("backspace emission failed: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (t *CommandTypist) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	// `--` keeps text starting with a dash from being parsed as a flag.
	args := []string{"type", "--delay", "1", "--", text}
	if out, err := t.build(ctx, args).CombinedOutput(); err != nil {
		return fmt.Errorf("keystroke emission failed: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (t *CommandTypist) build(ctx context.Context, args []string) *exec.Cmd {
	full := append(append([]string(nil), t.command[1:]...), args...)
	return exec.CommandContext(ctx, t.command[0], full...)
}
