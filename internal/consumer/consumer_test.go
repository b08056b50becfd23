package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"voicelink/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	mu      sync.Mutex
	intents []*domain.PendingIntent
	calls   []string
}

func (s *fakeSource) ConsumePendingIntent(time.Duration) (*domain.PendingIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "consume")
	if len(s.intents) == 0 {
		return nil, nil
	}
	intent := s.intents[0]
	s.intents = s.intents[1:]
	return intent, nil
}

func (s *fakeSource) MarkAcknowledged() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "ack")
	return nil
}

func (s *fakeSource) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fakeController struct {
	mu      sync.Mutex
	busy    bool
	starts  int
	stops   int
	calls   *fakeSource
	started chan struct{}
	release chan struct{}
}

func (c *fakeController) Start(context.Context) error {
	c.mu.Lock()
	c.starts++
	if c.calls != nil {
		c.calls.mu.Lock()
		c.calls.calls = append(c.calls.calls, "start")
		c.calls.mu.Unlock()
	}
	started := c.started
	release := c.release
	c.mu.Unlock()

	if started != nil {
		close(started)
		c.mu.Lock()
		c.started = nil
		c.mu.Unlock()
	}
	if release != nil {
		<-release
	}
	return nil
}

func (c *fakeController) Stop(context.Context) (domain.StopResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return domain.StopResult{}, nil
}

func (c *fakeController) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *fakeController) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts, c.stops
}

type fakeUndoer struct {
	mu    sync.Mutex
	calls int
}

func (u *fakeUndoer) UndoLastAutoEdit(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	return nil
}

func voiceIntent() *domain.PendingIntent {
	return &domain.PendingIntent{Kind: domain.IntentKindVoice, CreatedAt: time.Now()}
}

func TestAcknowledgmentPrecedesDispatch(t *testing.T) {
	t.Parallel()

	source := &fakeSource{intents: []*domain.PendingIntent{voiceIntent()}}
	controller := &fakeController{calls: source}
	c := New(source, controller, nil, nil, zap.NewNop(), Options{})

	c.checkOnce(context.Background())

	want := []string{"consume", "ack", "start"}
	got := source.callLog()
	if len(got) != len(want) {
		t.Fatalf("unexpected call log: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected call log: %v", got)
		}
	}
}

func TestVoiceIntentTogglesStopWhileBusy(t *testing.T) {
	t.Parallel()

	source := &fakeSource{intents: []*domain.PendingIntent{voiceIntent()}}
	controller := &fakeController{busy: true}
	c := New(source, controller, nil, nil, zap.NewNop(), Options{})

	c.checkOnce(context.Background())

	starts, stops := controller.counts()
	if starts != 0 || stops != 1 {
		t.Fatalf("expected a toggle stop, got starts=%d stops=%d", starts, stops)
	}
}

func TestEmptyMailboxDispatchesNothing(t *testing.T) {
	t.Parallel()

	source := &fakeSource{}
	controller := &fakeController{}
	c := New(source, controller, nil, nil, zap.NewNop(), Options{})

	c.checkOnce(context.Background())

	starts, stops := controller.counts()
	if starts != 0 || stops != 0 {
		t.Fatalf("expected no dispatch, got starts=%d stops=%d", starts, stops)
	}
}

func TestUndoPayloadRoutesToUndoer(t *testing.T) {
	t.Parallel()

	source := &fakeSource{intents: []*domain.PendingIntent{{
		Kind:      domain.IntentKindVoiceControl,
		Payload:   "undo",
		CreatedAt: time.Now(),
	}}}
	controller := &fakeController{}
	undoer := &fakeUndoer{}
	c := New(source, controller, undoer, nil, zap.NewNop(), Options{})

	c.checkOnce(context.Background())

	if undoer.calls != 1 {
		t.Fatalf("expected one undo call, got %d", undoer.calls)
	}
	starts, stops := controller.counts()
	if starts != 0 || stops != 0 {
		t.Fatalf("undo must not touch the session, got starts=%d stops=%d", starts, stops)
	}
}

func TestSettingsIntentUsesHandler(t *testing.T) {
	t.Parallel()

	source := &fakeSource{intents: []*domain.PendingIntent{{
		Kind:      domain.IntentKindSettings,
		CreatedAt: time.Now(),
	}}}
	opened := 0
	c := New(source, &fakeController{}, nil, nil, zap.NewNop(), Options{
		OpenSettings: func(context.Context) error {
			opened++
			return nil
		},
	})

	c.checkOnce(context.Background())

	if opened != 1 {
		t.Fatalf("expected the settings handler to run once, got %d", opened)
	}
}

func TestOverlappingTriggerIsSkipped(t *testing.T) {
	t.Parallel()

	source := &fakeSource{intents: []*domain.PendingIntent{voiceIntent(), voiceIntent()}}
	controller := &fakeController{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := New(source, controller, nil, nil, zap.NewNop(), Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.checkOnce(context.Background())
	}()

	<-controller.started
	// First dispatch is mid-start; this trigger must be rejected, not queued.
	c.checkOnce(context.Background())
	close(controller.release)
	<-done

	starts, _ := controller.counts()
	if starts != 1 {
		t.Fatalf("expected exactly one start, got %d", starts)
	}
}

func TestRunReactsToWatcherTicks(t *testing.T) {
	t.Parallel()

	source := &fakeSource{intents: []*domain.PendingIntent{voiceIntent()}}
	controller := &fakeController{started: make(chan struct{})}
	ticks := make(chan struct{}, 1)
	c := New(source, controller, nil, ticks, zap.NewNop(), Options{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	ticks <- struct{}{}
	select {
	case <-controller.started:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher tick did not trigger a dispatch")
	}

	cancel()
	<-done
}

func TestForegroundNotificationTriggersCheck(t *testing.T) {
	t.Parallel()

	source := &fakeSource{intents: []*domain.PendingIntent{voiceIntent()}}
	controller := &fakeController{started: make(chan struct{})}
	c := New(source, controller, nil, nil, zap.NewNop(), Options{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	c.NotifyForeground()
	select {
	case <-controller.started:
	case <-time.After(2 * time.Second):
		t.Fatal("foreground notification did not trigger a dispatch")
	}

	cancel()
	<-done
}
