package polish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"voicelink/internal/domain"
	"voicelink/internal/insertion"
	"voicelink/internal/resolver"
)

func newTestCoordinator(opts Options) (*Coordinator, *fakeInserter, *fakeActivator, *fakeTraceSink) {
	inserter := &fakeInserter{}
	activator := &fakeActivator{}
	traces := &fakeTraceSink{}
	c := NewCoordinator(inserter, activator, &acceptAll{}, traces, zap.NewNop(), opts)
	return c, inserter, activator, traces
}

func TestAwaitPolishAppliesResult(t *testing.T) {
	t.Parallel()

	c, inserter, _, traces := newTestCoordinator(Options{Timeout: time.Second})

	go func() {
		time.Sleep(20 * time.Millisecond)
		c.OnPolishReady("Hello, world.", "t1")
	}()

	got, err := c.AwaitPolish(context.Background(), "t1", "hello world", nil)
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if got != "Hello, world." {
		t.Fatalf("unexpected applied text: %q", got)
	}
	if inserter.lastFinish != "Hello, world." {
		t.Fatalf("polished text did not reach the inserter: %q", inserter.lastFinish)
	}
	if !traces.has("applied") {
		t.Fatalf("expected an applied audit record")
	}

	snapshot := c.Snapshot()
	if snapshot == nil || snapshot.BeforeText != "hello world" || snapshot.AfterText != "Hello, world." {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestAwaitPolishTimeoutKeepsProvisional(t *testing.T) {
	t.Parallel()

	c, inserter, _, traces := newTestCoordinator(Options{Timeout: 30 * time.Millisecond})

	got, err := c.AwaitPolish(context.Background(), "t1", "hello world", nil)
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("timeout must keep the provisional text, got %q", got)
	}
	if inserter.lastFinish != "hello world" {
		t.Fatalf("inserter should have finished with provisional text")
	}
	if !traces.has("timeout") {
		t.Fatalf("expected a timeout audit record")
	}
	if c.Snapshot() != nil {
		t.Fatalf("no snapshot should exist without a real change")
	}
}

func TestEarlyResultIsBufferedAndConsumed(t *testing.T) {
	t.Parallel()

	c, inserter, _, _ := newTestCoordinator(Options{Timeout: time.Second})

	// Result lands before anyone awaits.
	c.OnPolishReady("polished text", "t1")

	got, err := c.AwaitPolish(context.Background(), "t1", "raw text", nil)
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if got != "polished text" {
		t.Fatalf("buffered result was not consumed: %q", got)
	}
	if inserter.lastFinish != "polished text" {
		t.Fatalf("unexpected finish text: %q", inserter.lastFinish)
	}
}

func TestBufferKeepsOnlyMostRecentResult(t *testing.T) {
	t.Parallel()

	c, _, _, _ := newTestCoordinator(Options{Timeout: time.Second})

	c.OnPolishReady("first", "t1")
	c.OnPolishReady("second", "t1")

	got, err := c.AwaitPolish(context.Background(), "t1", "raw", nil)
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if got != "second" {
		t.Fatalf("only the most recent result should survive, got %q", got)
	}
}

func TestUnchangedResultIsSkipped(t *testing.T) {
	t.Parallel()

	c, _, _, traces := newTestCoordinator(Options{Timeout: time.Second})
	c.OnPolishReady("same text", "t1")

	got, err := c.AwaitPolish(context.Background(), "t1", "same text", nil)
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if got != "same text" {
		t.Fatalf("unexpected text: %q", got)
	}
	if !traces.has("skipped") {
		t.Fatalf("expected a skipped audit record")
	}
	if c.Snapshot() != nil {
		t.Fatalf("no snapshot for a no-op polish")
	}
}

func TestConfirmationDeclineKeepsProvisional(t *testing.T) {
	t.Parallel()

	inserter := &fakeInserter{}
	traces := &fakeTraceSink{}
	c := NewCoordinator(inserter, &fakeActivator{}, &declineAll{}, traces, zap.NewNop(), Options{
		Timeout:        time.Second,
		RequireConfirm: true,
	})

	c.OnPolishReady("polished", "t1")
	got, err := c.AwaitPolish(context.Background(), "t1", "raw", nil)
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if got != "raw" {
		t.Fatalf("declined polish must keep provisional, got %q", got)
	}
	if !traces.has("declined") {
		t.Fatalf("expected a declined audit record")
	}
}

func TestCancelledWaitReleasesInsertionSession(t *testing.T) {
	t.Parallel()

	c, inserter, _, traces := newTestCoordinator(Options{Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := c.AwaitPolish(ctx, "t1", "hello world", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got != "hello world" {
		t.Fatalf("cancelled wait must keep the provisional text, got %q", got)
	}

	inserter.mu.Lock()
	cancels := inserter.cancels
	inserter.mu.Unlock()
	if cancels != 1 {
		t.Fatalf("cancelled wait must release the insertion session, got %d cancels", cancels)
	}
	if !traces.has("cancelled") {
		t.Fatalf("expected a cancelled audit record")
	}
}

func TestCancelWaitDiscardsBufferedResult(t *testing.T) {
	t.Parallel()

	c, _, _, _ := newTestCoordinator(Options{Timeout: 30 * time.Millisecond})
	c.OnPolishReady("polished", "t1")
	c.CancelWait()

	got, err := c.AwaitPolish(context.Background(), "t1", "raw", nil)
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if got != "raw" {
		t.Fatalf("discarded result must not apply, got %q", got)
	}
}

func TestUndoLastAutoEdit(t *testing.T) {
	t.Parallel()

	c, inserter, activator, _ := newTestCoordinator(Options{Timeout: time.Second})
	target := &domain.ReturnTarget{BundleID: "com.example.notes"}

	c.OnPolishReady("Polished.", "t1")
	if _, err := c.AwaitPolish(context.Background(), "t1", "raw", target); err != nil {
		t.Fatalf("await failed: %v", err)
	}

	if err := c.UndoLastAutoEdit(context.Background()); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if activator.lastTarget == nil || activator.lastTarget.BundleID != "com.example.notes" {
		t.Fatalf("undo must re-activate the return target")
	}
	if inserter.lastReplaceOld != "Polished." || inserter.lastReplaceNew != "raw" {
		t.Fatalf("undo must reverse the replacement, got %q -> %q", inserter.lastReplaceOld, inserter.lastReplaceNew)
	}

	// Snapshot is consumed destructively.
	if err := c.UndoLastAutoEdit(context.Background()); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo, got %v", err)
	}
}

func TestUndoExpiresSilently(t *testing.T) {
	t.Parallel()

	c, _, _, _ := newTestCoordinator(Options{Timeout: time.Second, UndoTTL: 180 * time.Second})
	c.OnPolishReady("Polished.", "t1")
	if _, err := c.AwaitPolish(context.Background(), "t1", "raw", nil); err != nil {
		t.Fatalf("await failed: %v", err)
	}

	c.now = func() time.Time { return time.Now().Add(181 * time.Second) }
	if err := c.UndoLastAutoEdit(context.Background()); !errors.Is(err, ErrUndoExpired) {
		t.Fatalf("expected ErrUndoExpired, got %v", err)
	}
}

type fakeInserter struct {
	mu             sync.Mutex
	lastFinish     string
	lastReplaceOld string
	lastReplaceNew string
	cancels        int
	finishErr      error
}

func (f *fakeInserter) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeInserter) Finish(_ context.Context, final string) (insertion.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finishErr != nil {
		return insertion.UpdateResult{}, f.finishErr
	}
	f.lastFinish = final
	return insertion.UpdateResult{Method: domain.InsertionMethodDirect, Committed: final}, nil
}

func (f *fakeInserter) ReplaceOnce(_ context.Context, _ string, old, new string) (insertion.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReplaceOld = old
	f.lastReplaceNew = new
	return insertion.UpdateResult{Method: domain.InsertionMethodDirect, Committed: new}, nil
}

type fakeActivator struct {
	mu         sync.Mutex
	lastTarget *domain.ReturnTarget
}

func (f *fakeActivator) ResolveAndActivate(_ context.Context, _ string, target *domain.ReturnTarget) resolver.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTarget = target
	return resolver.Outcome{Activated: true}
}

type acceptAll struct{}

func (acceptAll) ConfirmReplace(_, _ string) bool { return true }

type declineAll struct{}

func (declineAll) ConfirmReplace(_, _ string) bool { return false }

type fakeTraceSink struct {
	mu     sync.Mutex
	events []domain.TraceEvent
}

func (f *fakeTraceSink) Record(event domain.TraceEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeTraceSink) has(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.Event == event {
			return true
		}
	}
	return false
}
