// Package resolver returns focus to the application that originated a
// dictation. Routing hints degrade gracefully: a bundle identifier activates
// directly, a process name or pid is mapped to an identifier through an
// ordered chain of matching strategies, and when everything fails the host
// simply yields the foreground. Resolution failure is never fatal to the
// caller; the transcript always outranks a tidy focus return.
package resolver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"voicelink/internal/domain"
	"voicelink/internal/ports"
)

const stageResolver = "resolver"

// Outcome reports how (and whether) activation happened.
type Outcome struct {
	Activated bool
	BundleID  string
	Strategy  string
}

// Resolver resolves and activates return targets.
type Resolver struct {
	apps      ports.AppDirectory
	procs     ports.ProcessTable
	activator ports.Activator
	traces    ports.TraceSink
	log       *zap.Logger
}

func New(apps ports.AppDirectory, procs ports.ProcessTable, activator ports.Activator, traces ports.TraceSink, log *zap.Logger) *Resolver {
	return &Resolver{apps: apps, procs: procs, activator: activator, traces: traces, log: log}
}

// ResolveAndActivate works through the strategy chain in strict priority
// order, stopping at the first success. A nil or empty target, or an
// exhausted chain, degrades to a generic foreground yield.
func (r *Resolver) ResolveAndActivate(ctx context.Context, traceID string, target *domain.ReturnTarget) Outcome {
	if target == nil || target.IsZero() {
		return r.yield(ctx, traceID, "no return target captured")
	}

	switch target.Kind() {
	case domain.ReturnTargetBundleID:
		if outcome, ok := r.activate(ctx, traceID, "bundle_id", target.BundleID); ok {
			return outcome
		}
	case domain.ReturnTargetProcessID:
		if bundleID, strategy, ok := r.resolvePID(traceID, target.PID); ok {
			if outcome, ok := r.activate(ctx, traceID, strategy, bundleID); ok {
				return outcome
			}
		}
	case domain.ReturnTargetProcessName:
		if bundleID, strategy, ok := r.resolveName(traceID, target.ProcessName); ok {
			if outcome, ok := r.activate(ctx, traceID, strategy, bundleID); ok {
				return outcome
			}
		}
	}

	return r.yield(ctx, traceID, fmt.Sprintf("resolver exhausted for %s target", target.Kind()))
}

func (r *Resolver) activate(ctx context.Context, traceID, strategy, bundleID string) (Outcome, bool) {
	err := r.activator.Activate(ctx, bundleID)
	r.record(traceID, strategy, err == nil, bundleID)
	if err != nil {
		r.log.Warn("activation failed",
			zap.String("trace_id", traceID),
			zap.String("bundle_id", bundleID),
			zap.String("strategy", strategy),
			zap.Error(err))
		return Outcome{}, false
	}
	return Outcome{Activated: true, BundleID: bundleID, Strategy: strategy}, true
}

func (r *Resolver) yield(ctx context.Context, traceID, reason string) Outcome {
	err := r.activator.YieldForeground(ctx)
	r.record(traceID, "yield_foreground", err == nil, reason)
	if err != nil {
		r.log.Warn("foreground yield failed", zap.String("trace_id", traceID), zap.Error(err))
		return Outcome{Strategy: "yield_foreground"}
	}
	return Outcome{Activated: true, Strategy: "yield_foreground"}
}

// resolveName tries each name strategy in order and returns the first
// identifier found.
func (r *Resolver) resolveName(traceID, name string) (string, string, bool) {
	installed := r.apps.InstalledApps()
	for _, s := range nameStrategies() {
		bundleID, ok := s.match(installed, name)
		r.record(traceID, s.name, ok, name)
		if ok {
			return bundleID, s.name, true
		}
	}
	return "", "", false
}

// resolvePID tries each pid strategy in order; the last one recurses into
// name matching via the process table's short name.
func (r *Resolver) resolvePID(traceID string, pid int) (string, string, bool) {
	for _, app := range r.apps.RunningApps() {
		if app.PID == pid && app.BundleID != "" {
			r.record(traceID, "pid_running_proxy", true, app.BundleID)
			return app.BundleID, "pid_running_proxy", true
		}
	}
	r.record(traceID, "pid_running_proxy", false, fmt.Sprintf("pid %d", pid))

	if execPath, err := r.procs.ExecutablePath(pid); err == nil && execPath != "" {
		for _, app := range r.apps.InstalledApps() {
			if app.ExecPath == execPath && app.BundleID != "" {
				r.record(traceID, "pid_executable_path", true, app.BundleID)
				return app.BundleID, "pid_executable_path", true
			}
		}
	}
	r.record(traceID, "pid_executable_path", false, fmt.Sprintf("pid %d", pid))

	shortName, err := r.procs.ShortName(pid)
	if err != nil || shortName == "" {
		r.record(traceID, "pid_short_name", false, fmt.Sprintf("pid %d", pid))
		return "", "", false
	}
	return r.resolveName(traceID, shortName)
}

func (r *Resolver) record(traceID, event string, matched bool, message string) {
	if r.traces == nil {
		return
	}
	r.traces.Record(domain.TraceEvent{
		TraceID:   traceID,
		Stage:     stageResolver,
		Event:     event,
		Changed:   matched,
		Message:   message,
		CreatedAt: time.Now(),
	})
}
