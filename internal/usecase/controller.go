package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicelink/internal/domain"
	"voicelink/internal/insertion"
	"voicelink/internal/ports"
	"voicelink/internal/resolver"
)

var (
	ErrNoActiveSession = errors.New("no active recording session")
	ErrSessionBusy     = errors.New("a dictation session is already in progress")
)

// Inserter is the slice of the insertion engine the controller drives.
type Inserter interface {
	StartSession(ctx context.Context, traceID string) error
	Update(ctx context.Context, candidate string) (insertion.UpdateResult, error)
	Finish(ctx context.Context, final string) (insertion.UpdateResult, error)
	Cancel()
}

// PolishCoordinator is the deferred-correction window.
type PolishCoordinator interface {
	AwaitPolish(ctx context.Context, traceID, provisional string, target *domain.ReturnTarget) (string, error)
	OnPolishReady(text, traceID string)
	CancelWait()
}

// ReturnResolver reactivates the originating application.
type ReturnResolver interface {
	ResolveAndActivate(ctx context.Context, traceID string, target *domain.ReturnTarget) resolver.Outcome
}

// ReturnTargetSource yields the captured return target, read-and-clear.
type ReturnTargetSource interface {
	TakeReturnTarget() (*domain.ReturnTarget, error)
}

// Config controls dictation session behavior.
type Config struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	ChunkSize      int
	StreamingGrace time.Duration

	// Polish is deferred only when all three hold; otherwise the best-known
	// text is applied immediately on stop.
	StreamingMode     bool
	FastPathEnabled   bool
	CorrectionEnabled bool

	// ErrorRecovery is how long an error banner holds before the controller
	// accepts a new start.
	ErrorRecovery time.Duration
}

// SessionController owns the dictation lifecycle: it is the single mutator
// of the session state machine. Idle and Error are the only states that
// accept a start; Listening accepts exactly one stop.
type SessionController struct {
	audio          ports.AudioCapture
	provider       ports.TranscriptionProvider
	inserter       Inserter
	vocab          ports.VocabEngine
	polish         PolishCoordinator
	polishProvider ports.PolishProvider
	resolver       ReturnResolver
	targets        ReturnTargetSource
	events         ports.EventSink
	log            *zap.Logger
	cfg            Config

	mu      sync.Mutex
	state   domain.SessionState
	current *activeSession
}

func NewSessionController(
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	inserter Inserter,
	vocab ports.VocabEngine,
	polishCoord PolishCoordinator,
	polishProvider ports.PolishProvider,
	returnResolver ReturnResolver,
	targets ReturnTargetSource,
	events ports.EventSink,
	log *zap.Logger,
	cfg Config,
) *SessionController {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.ErrorRecovery <= 0 {
		cfg.ErrorRecovery = 3 * time.Second
	}
	return &SessionController{
		audio:          audio,
		provider:       provider,
		inserter:       inserter,
		vocab:          vocab,
		polish:         polishCoord,
		polishProvider: polishProvider,
		resolver:       returnResolver,
		targets:        targets,
		events:         events,
		log:            log,
		cfg:            cfg,
		state:          domain.SessionStateIdle,
	}
}

// Start begins a new capture/transcription session.
func (c *SessionController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.SessionStateIdle && c.state != domain.SessionStateError {
		c.mu.Unlock()
		return ErrSessionBusy
	}
	c.state = domain.SessionStateListening
	c.mu.Unlock()

	// A new recording supersedes any polish still in flight.
	c.polish.CancelWait()

	if c.provider == nil {
		c.fail(domain.ErrorCodeProvider, domain.SessionReasonProviderFailed, "no transcription provider configured")
		return errors.New("no transcription provider configured")
	}

	traceID := uuid.NewString()
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	stream, err := c.provider.StartStreaming(sessionCtx, c.cfg.Streaming)
	if err != nil {
		cancel()
		c.fail(domain.ErrorCodeProvider, domain.SessionReasonProviderFailed, err.Error())
		return err
	}

	audioSession, err := c.audio.Start(sessionCtx, c.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		c.fail(domain.ErrorCodeAudioStream, domain.SessionReasonProviderFailed, err.Error())
		return err
	}

	if err := c.inserter.StartSession(sessionCtx, traceID); err != nil {
		// Insertion is not load-bearing for capture; dictation proceeds and
		// the transcript is still recoverable from the aggregator.
		c.log.Warn("insertion session unavailable", zap.String("trace_id", traceID), zap.Error(err))
	}

	active := &activeSession{
		traceID:    traceID,
		cancel:     cancel,
		audio:      audioSession,
		stream:     stream,
		aggregator: newTranscriptAggregator(),
		eventsDone: make(chan struct{}),
		audioDone:  make(chan struct{}),
	}

	c.mu.Lock()
	c.current = active
	c.mu.Unlock()

	go consumeTranscripts(sessionCtx, active.stream, active.aggregator, c.inserter, c.events, active.eventsDone)
	go pumpAudioChunks(active.audio, active.stream, c.cfg.ChunkSize, c.events, active.audioDone)

	c.events.SessionStateChanged(domain.SessionStateListening, domain.SessionReasonListening)
	c.log.Info("dictation started", zap.String("trace_id", traceID))
	return nil
}

// Stop ends the active session, finalizes the transcript, hands off to the
// polish window when configured, and returns focus to the caller.
func (c *SessionController) Stop(ctx context.Context) (domain.StopResult, error) {
	c.mu.Lock()
	if c.current == nil || c.state != domain.SessionStateListening {
		c.mu.Unlock()
		return domain.StopResult{}, ErrNoActiveSession
	}
	active := c.current
	c.state = domain.SessionStateStopping
	c.mu.Unlock()

	c.events.SessionStateChanged(domain.SessionStateStopping, domain.SessionReasonTranscribing)

	if err := active.audio.Stop(); err != nil {
		c.events.SessionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}

	if c.cfg.StreamingGrace > 0 {
		timer := time.NewTimer(c.cfg.StreamingGrace)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	_ = active.stream.CloseSend()
	streamErr := waitForStream(active.stream, 4*time.Second)
	<-active.eventsDone
	<-active.audioDone

	// Prefer the best available partial over an empty final: a failed
	// finalize must not blank out a good in-progress transcript.
	raw := active.aggregator.Best()
	if raw == "" && streamErr != nil {
		c.inserter.Cancel()
		c.events.SessionError(domain.ErrorCodeTranscription, streamErr.Error())
		c.finishSession(active, domain.SessionStateError, domain.SessionReasonTranscribeFailed)
		return domain.StopResult{}, streamErr
	}
	if raw == "" {
		c.inserter.Cancel()
		result := domain.StopResult{TraceID: active.traceID}
		c.returnToCaller(ctx, active, result.FinalTranscript, domain.SessionReasonEmptyTranscript)
		return result, nil
	}

	final := raw
	if c.vocab != nil {
		transformed, err := c.vocab.Apply(raw)
		if err != nil {
			// Local substitutions are best-effort; the raw transcript wins.
			c.log.Warn("vocab pass failed", zap.String("trace_id", active.traceID), zap.Error(err))
		} else {
			final = transformed
		}
	}

	result := domain.StopResult{
		RawTranscript:   raw,
		FinalTranscript: final,
		Language:        active.aggregator.Language(),
		TraceID:         active.traceID,
	}

	if c.shouldDeferPolish() {
		result.PolishDeferred = true
		result.FinalTranscript = c.finalizeWithPolish(ctx, active, final)
		return result, nil
	}

	if _, err := c.inserter.Finish(ctx, final); err != nil && !errors.Is(err, insertion.ErrNoSession) {
		c.events.SessionError(domain.ErrorCodeInsertion, err.Error())
	}
	c.events.FinalTranscript(raw, result.FinalTranscript)
	c.returnToCaller(ctx, active, result.FinalTranscript, domain.SessionReasonInserted)
	return result, nil
}

// Abort cancels and discards an active session without transcription.
func (c *SessionController) Abort() error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	active := c.current
	c.mu.Unlock()

	active.cancel()
	_ = active.audio.Stop()
	_ = active.stream.Close()
	<-active.eventsDone
	<-active.audioDone

	c.inserter.Cancel()
	c.polish.CancelWait()
	c.finishSession(active, domain.SessionStateIdle, domain.SessionReasonDiscarded)
	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonDiscarded)
	return nil
}

// Status returns the current controller status.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	active := c.state != domain.SessionStateIdle && c.state != domain.SessionStateError
	return domain.Status{State: c.state, Active: active}
}

// Busy reports whether a session is mid-flight; the intent consumer uses
// this to turn a repeated intent into a toggle.
func (c *SessionController) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == domain.SessionStateListening ||
		c.state == domain.SessionStateStopping ||
		c.state == domain.SessionStateFinalizing
}

func (c *SessionController) shouldDeferPolish() bool {
	return c.cfg.StreamingMode && c.cfg.FastPathEnabled && c.cfg.CorrectionEnabled && c.polishProvider != nil
}

// finalizeWithPolish runs the bounded correction window and returns whatever
// text ended up committed.
func (c *SessionController) finalizeWithPolish(ctx context.Context, active *activeSession, provisional string) string {
	c.mu.Lock()
	c.state = domain.SessionStateFinalizing
	c.mu.Unlock()
	c.events.SessionStateChanged(domain.SessionStateFinalizing, domain.SessionReasonCorrecting)

	target := c.takeTarget()

	go func(text, traceID string) {
		polished, err := c.polishProvider.Polish(context.WithoutCancel(ctx), text, traceID)
		if err != nil {
			c.log.Warn("polish request failed", zap.String("trace_id", traceID), zap.Error(err))
			return
		}
		c.polish.OnPolishReady(polished, traceID)
	}(provisional, active.traceID)

	applied, err := c.polish.AwaitPolish(ctx, active.traceID, provisional, target)
	if err != nil {
		c.events.SessionError(domain.ErrorCodePolish, err.Error())
	}

	c.events.FinalTranscript(provisional, applied)
	c.resolveAndFinish(ctx, active, target, domain.SessionReasonInserted)
	return applied
}

// returnToCaller takes the captured target, activates it, and retires the
// session. Resolution failures are non-fatal by design.
func (c *SessionController) returnToCaller(ctx context.Context, active *activeSession, _ string, reason domain.SessionStateReason) {
	c.resolveAndFinish(ctx, active, c.takeTarget(), reason)
}

func (c *SessionController) resolveAndFinish(ctx context.Context, active *activeSession, target *domain.ReturnTarget, reason domain.SessionStateReason) {
	outcome := c.resolver.ResolveAndActivate(ctx, active.traceID, target)
	if !outcome.Activated {
		c.events.SessionError(domain.ErrorCodeResolver, "could not return focus to the origin application")
	}
	c.events.SessionStateChanged(domain.SessionStateReturned, reason)
	c.finishSession(active, domain.SessionStateIdle, reason)
}

func (c *SessionController) takeTarget() *domain.ReturnTarget {
	if c.targets == nil {
		return nil
	}
	target, err := c.targets.TakeReturnTarget()
	if err != nil {
		c.log.Warn("failed to read return target", zap.Error(err))
		return nil
	}
	return target
}

func (c *SessionController) finishSession(active *activeSession, state domain.SessionState, reason domain.SessionStateReason) {
	active.cancel()

	c.mu.Lock()
	if c.current == active {
		c.current = nil
	}
	c.state = state
	c.mu.Unlock()

	if state != domain.SessionStateIdle {
		c.events.SessionStateChanged(state, reason)
	}
	if state == domain.SessionStateError {
		c.scheduleErrorRecovery()
	}
}

// fail records a start-path failure. The host stays foregrounded in Error so
// the user sees what happened, then recovers to Idle.
func (c *SessionController) fail(code domain.ErrorCode, reason domain.SessionStateReason, detail string) {
	c.mu.Lock()
	c.state = domain.SessionStateError
	c.mu.Unlock()

	c.events.SessionError(code, detail)
	c.events.SessionStateChanged(domain.SessionStateError, reason)
	c.scheduleErrorRecovery()
}

func (c *SessionController) scheduleErrorRecovery() {
	time.AfterFunc(c.cfg.ErrorRecovery, func() {
		c.mu.Lock()
		recovered := false
		if c.state == domain.SessionStateError && c.current == nil {
			c.state = domain.SessionStateIdle
			recovered = true
		}
		c.mu.Unlock()
		if recovered {
			c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecovered)
		}
	})
}
