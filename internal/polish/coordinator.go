// Package polish applies a slower, higher-quality correction after a fast
// provisional transcript has already been inserted. The wait is bounded; on
// timeout the provisional text stands. A real replacement leaves behind an
// undo snapshot with a fixed TTL.
package polish

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"voicelink/internal/domain"
	"voicelink/internal/insertion"
	"voicelink/internal/ports"
	"voicelink/internal/resolver"
)

const stagePolish = "polish"

var (
	ErrNothingToUndo = errors.New("no auto-edit to undo")
	ErrUndoExpired   = errors.New("auto-edit undo window has expired")
)

// Inserter is the slice of the insertion engine the coordinator needs.
type Inserter interface {
	Finish(ctx context.Context, final string) (insertion.UpdateResult, error)
	ReplaceOnce(ctx context.Context, traceID, old, new string) (insertion.UpdateResult, error)
	Cancel()
}

// ReturnActivator re-activates the origin application before an undo edit.
type ReturnActivator interface {
	ResolveAndActivate(ctx context.Context, traceID string, target *domain.ReturnTarget) resolver.Outcome
}

type pendingResult struct {
	text    string
	traceID string
}

type awaitState struct {
	traceID string
	ready   chan pendingResult
}

// Coordinator owns the deferred-polish window and the undo snapshot.
type Coordinator struct {
	inserter  Inserter
	activator ReturnActivator
	confirmer ports.PolishConfirmer
	traces    ports.TraceSink
	log       *zap.Logger

	timeout        time.Duration
	undoTTL        time.Duration
	requireConfirm bool
	now            func() time.Time

	mu       sync.Mutex
	awaiting *awaitState
	buffered *pendingResult
	snapshot *domain.AutoEditUndoSnapshot
	target   *domain.ReturnTarget
}

// Options tunes coordinator behavior; zero values take the reference
// defaults (12s polish window, 180s undo TTL).
type Options struct {
	Timeout        time.Duration
	UndoTTL        time.Duration
	RequireConfirm bool
}

func NewCoordinator(inserter Inserter, activator ReturnActivator, confirmer ports.PolishConfirmer, traces ports.TraceSink, log *zap.Logger, opts Options) *Coordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	if opts.UndoTTL <= 0 {
		opts.UndoTTL = 180 * time.Second
	}
	return &Coordinator{
		inserter:       inserter,
		activator:      activator,
		confirmer:      confirmer,
		traces:         traces,
		log:            log,
		timeout:        opts.Timeout,
		undoTTL:        opts.UndoTTL,
		requireConfirm: opts.RequireConfirm,
		now:            time.Now,
	}
}

// AwaitPolish blocks until a polish result for traceID arrives or the window
// closes, then finishes the insertion session with whichever text won. It
// returns the text that ended up committed. A result that arrived before
// awaiting began is consumed immediately.
func (c *Coordinator) AwaitPolish(ctx context.Context, traceID, provisional string, target *domain.ReturnTarget) (string, error) {
	c.mu.Lock()
	if buffered := c.buffered; buffered != nil && buffered.traceID == traceID {
		c.buffered = nil
		c.target = cloneTarget(target)
		c.mu.Unlock()
		return c.apply(ctx, traceID, provisional, buffered.text)
	}
	state := &awaitState{traceID: traceID, ready: make(chan pendingResult, 1)}
	c.awaiting = state
	c.target = cloneTarget(target)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.awaiting == state {
			c.awaiting = nil
		}
		c.mu.Unlock()
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case result := <-state.ready:
		return c.apply(ctx, traceID, provisional, result.text)
	case <-timer.C:
		c.record(traceID, "timeout", false, "keeping provisional text")
		c.log.Info("polish window closed", zap.String("trace_id", traceID))
		if _, err := c.inserter.Finish(ctx, provisional); err != nil {
			return provisional, err
		}
		return provisional, nil
	case <-ctx.Done():
		// The session must not stay attached past a cancelled wait, or the
		// next recording would find the inserter busy.
		c.inserter.Cancel()
		c.record(traceID, "cancelled", false, "")
		return provisional, ctx.Err()
	}
}

// OnPolishReady hands a provider result to the coordinator. If nobody is
// awaiting yet the single most recent result is buffered and consumed as
// soon as awaiting begins.
func (c *Coordinator) OnPolishReady(text, traceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.awaiting != nil && c.awaiting.traceID == traceID {
		select {
		case c.awaiting.ready <- pendingResult{text: text, traceID: traceID}:
		default:
		}
		return
	}
	c.buffered = &pendingResult{text: text, traceID: traceID}
}

// CancelWait discards any outstanding wait and buffered result. Starting a
// new recording calls this.
func (c *Coordinator) CancelWait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.awaiting = nil
	c.buffered = nil
}

// UndoLastAutoEdit re-activates the return target and reverses the last
// polish replacement through the same insertion path. The snapshot is
// consumed destructively and expires silently past its TTL.
func (c *Coordinator) UndoLastAutoEdit(ctx context.Context) error {
	c.mu.Lock()
	snapshot := c.snapshot
	target := c.target
	c.snapshot = nil
	c.mu.Unlock()

	if snapshot == nil {
		return ErrNothingToUndo
	}
	if snapshot.Expired(c.now(), c.undoTTL) {
		c.record(snapshot.TraceID, "undo_expired", false, "")
		return ErrUndoExpired
	}

	c.activator.ResolveAndActivate(ctx, snapshot.TraceID, target)
	if _, err := c.inserter.ReplaceOnce(ctx, snapshot.TraceID, snapshot.AfterText, snapshot.BeforeText); err != nil {
		return err
	}
	c.record(snapshot.TraceID, "undo_applied", true, "")
	return nil
}

// Snapshot returns the current undo snapshot, if any, for inspection.
func (c *Coordinator) Snapshot() *domain.AutoEditUndoSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil
	}
	copied := *c.snapshot
	return &copied
}

func (c *Coordinator) apply(ctx context.Context, traceID, provisional, polished string) (string, error) {
	if polished == "" || polished == provisional {
		c.record(traceID, "skipped", false, "polish produced no change")
		if _, err := c.inserter.Finish(ctx, provisional); err != nil {
			return provisional, err
		}
		return provisional, nil
	}

	if c.requireConfirm && c.confirmer != nil && !c.confirmer.ConfirmReplace(provisional, polished) {
		c.record(traceID, "declined", false, "")
		if _, err := c.inserter.Finish(ctx, provisional); err != nil {
			return provisional, err
		}
		return provisional, nil
	}

	if _, err := c.inserter.Finish(ctx, polished); err != nil {
		c.record(traceID, "apply_failed", false, err.Error())
		return provisional, err
	}

	c.mu.Lock()
	c.snapshot = &domain.AutoEditUndoSnapshot{
		BeforeText: provisional,
		AfterText:  polished,
		TraceID:    traceID,
		CreatedAt:  c.now(),
	}
	c.mu.Unlock()

	c.record(traceID, "applied", true, "")
	return polished, nil
}

func (c *Coordinator) record(traceID, event string, changed bool, message string) {
	if c.traces == nil {
		return
	}
	c.traces.Record(domain.TraceEvent{
		TraceID:   traceID,
		Stage:     stagePolish,
		Event:     event,
		Changed:   changed,
		Message:   message,
		CreatedAt: time.Now(),
	})
}

func cloneTarget(target *domain.ReturnTarget) *domain.ReturnTarget {
	if target == nil {
		return nil
	}
	copied := *target
	return &copied
}
