// Package consumer turns pending cross-process intents into dictation
// actions. It is the only reader of the shared mailbox on the host side.
package consumer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"voicelink/internal/domain"
)

// IntentSource is the mailbox slice the consumer reads. Consumption is
// destructive; acknowledgment is recorded before any dispatch starts.
type IntentSource interface {
	ConsumePendingIntent(maxAge time.Duration) (*domain.PendingIntent, error)
	MarkAcknowledged() error
}

// Controller is the dictation session surface the consumer drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (domain.StopResult, error)
	Busy() bool
}

// Undoer reverses the most recent automatic correction.
type Undoer interface {
	UndoLastAutoEdit(ctx context.Context) error
}

// Options tunes the consumer loop.
type Options struct {
	// PollInterval is the fallback cadence; the file watcher usually fires
	// first.
	PollInterval time.Duration
	// MaxIntentAge is the staleness window: older intents are dropped, not
	// dispatched.
	MaxIntentAge time.Duration
	// IdleLogWindow bounds how often an empty mailbox is logged.
	IdleLogWindow time.Duration
	// OpenSettings handles a settings intent. Optional.
	OpenSettings func(ctx context.Context) error
}

const undoPayload = "undo"

// Consumer polls and watches the shared mailbox and dispatches intents to
// the session controller at most once each.
type Consumer struct {
	source     IntentSource
	controller Controller
	undoer     Undoer
	log        *zap.Logger
	opts       Options

	watcherTicks <-chan struct{}
	notify       chan struct{}

	// handling rejects overlapping dispatches; a slow session start must not
	// let a queued trigger start a second one.
	handling atomic.Bool

	idleMu         sync.Mutex
	lastIdleLog    time.Time
	idleSuppressed int
}

func New(source IntentSource, controller Controller, undoer Undoer, watcherTicks <-chan struct{}, log *zap.Logger, opts Options) *Consumer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 750 * time.Millisecond
	}
	if opts.MaxIntentAge <= 0 {
		opts.MaxIntentAge = 30 * time.Second
	}
	if opts.IdleLogWindow <= 0 {
		opts.IdleLogWindow = time.Minute
	}
	return &Consumer{
		source:       source,
		controller:   controller,
		undoer:       undoer,
		log:          log,
		opts:         opts,
		watcherTicks: watcherTicks,
		notify:       make(chan struct{}, 1),
	}
}

// NotifyForeground requests an immediate mailbox check, typically when the
// host window regains focus.
func (c *Consumer) NotifyForeground() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, checking the mailbox on every trigger.
func (c *Consumer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.watcherTicks:
		case <-c.notify:
		}
		c.checkOnce(ctx)
	}
}

func (c *Consumer) checkOnce(ctx context.Context) {
	if !c.handling.CompareAndSwap(false, true) {
		c.log.Debug("intent check skipped, dispatch in progress")
		return
	}
	defer c.handling.Store(false)

	intent, err := c.source.ConsumePendingIntent(c.opts.MaxIntentAge)
	if err != nil {
		c.log.Warn("failed to read pending intent", zap.Error(err))
		return
	}
	if intent == nil {
		c.logIdle()
		return
	}

	// Acknowledgment must land before any dispatch side effect, so the
	// writer can distinguish "host saw it" from "host acted on it".
	if err := c.source.MarkAcknowledged(); err != nil {
		c.log.Warn("failed to acknowledge intent", zap.Error(err))
	}

	c.dispatch(ctx, intent)
}

func (c *Consumer) dispatch(ctx context.Context, intent *domain.PendingIntent) {
	age := time.Since(intent.CreatedAt)
	c.log.Info("dispatching intent",
		zap.String("kind", string(intent.Kind)),
		zap.Duration("age", age))

	switch intent.Kind {
	case domain.IntentKindVoice:
		c.toggleDictation(ctx)
	case domain.IntentKindVoiceControl:
		c.handleVoiceControl(ctx, intent.Payload)
	case domain.IntentKindSettings:
		if c.opts.OpenSettings == nil {
			c.log.Info("settings intent ignored, no handler configured")
			return
		}
		if err := c.opts.OpenSettings(ctx); err != nil {
			c.log.Warn("failed to open settings", zap.Error(err))
		}
	default:
		c.log.Warn("unknown intent kind", zap.String("kind", string(intent.Kind)))
	}
}

// toggleDictation starts a session, or stops the one in flight. A repeated
// trigger while listening is the user's stop gesture.
func (c *Consumer) toggleDictation(ctx context.Context) {
	if c.controller.Busy() {
		if _, err := c.controller.Stop(ctx); err != nil {
			c.log.Warn("failed to stop dictation", zap.Error(err))
		}
		return
	}
	if err := c.controller.Start(ctx); err != nil {
		c.log.Warn("failed to start dictation", zap.Error(err))
	}
}

func (c *Consumer) handleVoiceControl(ctx context.Context, payload string) {
	switch payload {
	case undoPayload:
		if c.undoer == nil {
			c.log.Info("undo requested but no undo handler configured")
			return
		}
		if err := c.undoer.UndoLastAutoEdit(ctx); err != nil {
			c.log.Warn("undo failed", zap.Error(err))
		}
	default:
		c.log.Warn("unknown voice control payload", zap.String("payload", payload))
	}
}

// logIdle reports an empty mailbox at most once per window, with a count of
// suppressed checks in between.
func (c *Consumer) logIdle() {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()

	if time.Since(c.lastIdleLog) < c.opts.IdleLogWindow {
		c.idleSuppressed++
		return
	}
	c.log.Debug("no pending intent", zap.Int("suppressed_checks", c.idleSuppressed))
	c.lastIdleLog = time.Now()
	c.idleSuppressed = 0
}
