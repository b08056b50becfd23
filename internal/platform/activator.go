package platform

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// CommandActivator raises applications by desktop-file id through a
// gtk-launch style command. Yield is optional; without a configured yield
// command it is a logged no-op and focus stays where it is.
type CommandActivator struct {
	activate []string
	yield    []string
	log      *zap.Logger
}

func NewCommandActivator(activateCommand, yieldCommand string, log *zap.Logger) *CommandActivator {
	activate := strings.Fields(activateCommand)
	if len(activate) == 0 {
		activate = []string{"gtk-launch"}
	}
	return &CommandActivator{
		activate: activate,
		yield:    strings.Fields(yieldCommand),
		log:      log,
	}
}

func (a *CommandActivator) Activate(ctx context.Context, bundleID string) error {
	if strings.TrimSpace(bundleID) == "" {
		return fmt.Errorf("empty application id")
	}
	args := append(append([]string(nil), a.activate[1:]...), bundleID)
	if out, err := exec.CommandContext(ctx, a.activate[0], args...).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to activate %q: %w (%s)", bundleID, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (a *CommandActivator) YieldForeground(ctx context.Context) error {
	if len(a.yield) == 0 {
		a.log.Debug("no yield command configured, keeping foreground")
		return nil
	}
	if out, err := exec.CommandContext(ctx, a.yield[0], a.yield[1:]...).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to yield foreground: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}
