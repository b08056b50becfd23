package intentstore

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher observes the mailbox file and delivers a tick whenever it changes.
// Renames from the atomic write show up as Create events, so both are
// watched. Ticks are debounced: editors and the sender both touch the file
// in quick bursts.
type Watcher struct {
	watcher     *fsnotify.Watcher
	mailboxPath string
	debounceDur time.Duration
	ticks       chan struct{}
	log         *zap.Logger
}

// NewWatcher creates a watcher for the given store.
func NewWatcher(store *Store, log *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: the file is replaced by rename on
	// every write and a file-level watch would go stale.
	if err := fsw.Add(filepath.Dir(store.Path())); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		watcher:     fsw,
		mailboxPath: store.Path(),
		debounceDur: 100 * time.Millisecond,
		ticks:       make(chan struct{}, 1),
		log:         log,
	}, nil
}

// Ticks delivers one value per (debounced) mailbox change.
func (w *Watcher) Ticks() <-chan struct{} {
	return w.ticks
}

// Run processes filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var lastTick time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.mailboxPath {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if time.Since(lastTick) < w.debounceDur {
				continue
			}
			lastTick = time.Now()
			select {
			case w.ticks <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("mailbox watch error", zap.Error(err))
		}
	}
}
