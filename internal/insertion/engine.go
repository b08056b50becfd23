package insertion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"voicelink/internal/domain"
	"voicelink/internal/ports"
)

var (
	ErrNoSession     = errors.New("no active insertion session")
	ErrSessionActive = errors.New("an insertion session is already active")
)

const stageInsertion = "insertion"

// UpdateResult reports how a commit was delivered.
type UpdateResult struct {
	Method    domain.InsertionMethod
	Committed string
	Length    int
}

// Engine drives incremental text delivery into the focused application.
// Exactly one session may be active at a time. Direct insertion is preferred;
// once a session degrades to simulated typing it stays there for the rest of
// the dictation, so the two techniques never interleave mid-stream.
type Engine struct {
	target ports.TextTarget
	typist ports.Typist
	traces ports.TraceSink
	log    *zap.Logger

	retryBackoff time.Duration

	mu      sync.Mutex
	session *session
}

type session struct {
	traceID       string
	lastCommitted string
	usingFallback bool
}

func NewEngine(target ports.TextTarget, typist ports.Typist, traces ports.TraceSink, log *zap.Logger) *Engine {
	return &Engine{
		target:       target,
		typist:       typist,
		traces:       traces,
		log:          log,
		retryBackoff: 50 * time.Millisecond,
	}
}

// SetRetryBackoff adjusts the pause before the single re-attach retry.
func (e *Engine) SetRetryBackoff(d time.Duration) {
	if d >= 0 {
		e.retryBackoff = d
	}
}

// StartSession attaches to the focused control and begins a session.
func (e *Engine) StartSession(ctx context.Context, traceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return ErrSessionActive
	}

	s := &session{traceID: traceID}
	if err := e.target.Attach(ctx); err != nil {
		// The session still starts; it just lives in fallback from the
		// first character.
		s.usingFallback = true
		e.record(traceID, "attach_failed_fallback", true, err.Error())
	} else {
		e.record(traceID, "attached", false, "")
	}
	e.session = s
	return nil
}

// Update merges a raw candidate into the committed text and delivers the
// difference. Duplicate runs in the candidate are collapsed before merging.
func (e *Engine) Update(ctx context.Context, candidate string) (UpdateResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if s == nil {
		return UpdateResult{}, ErrNoSession
	}

	merged := Merge(s.lastCommitted, CollapseDuplicateRuns(candidate))
	if merged == s.lastCommitted {
		return e.result(s), nil
	}

	if err := e.deliver(ctx, s, s.lastCommitted, merged); err != nil {
		return UpdateResult{}, err
	}
	s.lastCommitted = merged
	return e.result(s), nil
}

// Finish reconciles the session with the final text and detaches. If the
// session degraded to fallback mid-stream the final commit also goes through
// fallback, even if direct insertion would now nominally work, to avoid a
// double insert.
func (e *Engine) Finish(ctx context.Context, final string) (UpdateResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if s == nil {
		return UpdateResult{}, ErrNoSession
	}

	if final != s.lastCommitted && final != "" {
		if err := e.deliver(ctx, s, s.lastCommitted, final); err != nil {
			return UpdateResult{}, err
		}
		s.lastCommitted = final
	}

	result := e.result(s)
	e.record(s.traceID, "finished", false, fmt.Sprintf("method=%s length=%d", result.Method, result.Length))
	e.closeLocked()
	return result, nil
}

// ReplaceOnce runs a one-shot session that swaps old text for new through
// the usual insertion path. Used by undo, where no dictation session exists
// anymore.
func (e *Engine) ReplaceOnce(ctx context.Context, traceID, old, new string) (UpdateResult, error) {
	if err := e.StartSession(ctx, traceID); err != nil {
		return UpdateResult{}, err
	}
	e.mu.Lock()
	if e.session != nil {
		e.session.lastCommitted = old
	}
	e.mu.Unlock()
	return e.Finish(ctx, new)
}

// Cancel detaches from the focused control without undoing already-inserted
// characters.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return
	}
	e.record(e.session.traceID, "cancelled", false, "")
	e.closeLocked()
}

// Active reports whether a session is currently attached.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

func (e *Engine) closeLocked() {
	if e.session != nil && !e.session.usingFallback {
		e.target.Detach()
	}
	e.session = nil
}

func (e *Engine) result(s *session) UpdateResult {
	method := domain.InsertionMethodDirect
	if s.usingFallback {
		method = domain.InsertionMethodTyping
	}
	return UpdateResult{
		Method:    method,
		Committed: s.lastCommitted,
		Length:    utf8.RuneCountInString(s.lastCommitted),
	}
}

func (e *Engine) deliver(ctx context.Context, s *session, old, new string) error {
	if s.usingFallback {
		return e.deliverTyping(ctx, old, new)
	}

	failure, err := e.target.ReplaceText(ctx, old, new)
	if err == nil {
		return nil
	}

	if retryableFailure(failure) {
		e.record(s.traceID, "retry_reattach", false, string(failure))
		time.Sleep(e.retryBackoff)
		e.target.Detach()
		if attachErr := e.target.Attach(ctx); attachErr == nil {
			if _, retryErr := e.target.ReplaceText(ctx, old, new); retryErr == nil {
				return nil
			}
		}
	}

	// Second failure, or a category with no retry budget: degrade for the
	// remainder of this dictation.
	s.usingFallback = true
	e.target.Detach()
	e.record(s.traceID, "fallback_engaged", true, string(failure))
	e.log.Warn("direct insertion unavailable, using simulated typing",
		zap.String("trace_id", s.traceID),
		zap.String("failure", string(failure)))
	return e.deliverTyping(ctx, old, new)
}

func (e *Engine) deliverTyping(ctx context.Context, old, new string) error {
	prefix := commonPrefixLen(old, new)
	if erase := utf8.RuneCountInString(old[prefix:]); erase > 0 {
		if err := e.typist.TypeBackspaces(ctx, erase); err != nil {
			return fmt.Errorf("fallback erase failed: %w", err)
		}
	}
	if tail := new[prefix:]; tail != "" {
		if err := e.typist.TypeText(ctx, tail); err != nil {
			return fmt.Errorf("fallback typing failed: %w", err)
		}
	}
	return nil
}

func retryableFailure(failure domain.InsertionFailure) bool {
	switch failure {
	case domain.InsertionFailureFocusLost,
		domain.InsertionFailureSelectionLost,
		domain.InsertionFailureAccessibilityDenied:
		return true
	default:
		return false
	}
}

// commonPrefixLen returns the byte length of the longest common prefix that
// ends on a rune boundary in both strings.
func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) {
		ra, sa := utf8.DecodeRuneInString(a[n:])
		rb, _ := utf8.DecodeRuneInString(b[n:])
		if ra != rb {
			break
		}
		n += sa
	}
	return n
}

func (e *Engine) record(traceID, event string, changed bool, message string) {
	if e.traces == nil {
		return
	}
	e.traces.Record(domain.TraceEvent{
		TraceID:   traceID,
		Stage:     stageInsertion,
		Event:     event,
		Changed:   changed,
		Message:   message,
		CreatedAt: time.Now(),
	})
}
