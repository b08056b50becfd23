// Package intentstore implements the mailbox shared between the extension
// process and the host. The mailbox is a single JSON document written with
// an atomic rename; there are no locks, writes are last-write-wins, and a
// missing or unreadable file is the normal "nothing pending" state. The host
// is the only consumer, so correctness rests on read-and-clear semantics
// plus the staleness window rather than on any cross-process mutex.
package intentstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"voicelink/internal/domain"
)

const mailboxFile = "mailbox.json"

type document struct {
	PendingIntent        *domain.PendingIntent `json:"pendingIntent,omitempty"`
	LaunchAcknowledgedAt *time.Time            `json:"launchAcknowledgedAt,omitempty"`
	ReturnTarget         *domain.ReturnTarget  `json:"returnTarget,omitempty"`
}

// Store reads and writes the shared mailbox document.
type Store struct {
	path string
	now  func() time.Time
}

// NewStore creates a store rooted at stateDir.
func NewStore(stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{path: filepath.Join(stateDir, mailboxFile), now: time.Now}, nil
}

// Path returns the mailbox file path, for observation by a watcher.
func (s *Store) Path() string {
	return s.path
}

// SetPendingIntent records a pending intent, overwriting any prior one.
func (s *Store) SetPendingIntent(intent domain.PendingIntent) error {
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = s.now()
	}
	return s.update(func(doc *document) bool {
		doc.PendingIntent = &intent
		doc.LaunchAcknowledgedAt = nil
		return true
	})
}

// ConsumePendingIntent atomically reads and clears the pending intent.
// It returns nil when nothing is pending or when the stored intent is older
// than maxAge; a stale intent is cleared without being delivered.
func (s *Store) ConsumePendingIntent(maxAge time.Duration) (*domain.PendingIntent, error) {
	var consumed *domain.PendingIntent
	err := s.update(func(doc *document) bool {
		intent := doc.PendingIntent
		if intent == nil {
			return false
		}
		doc.PendingIntent = nil
		if maxAge > 0 && s.now().Sub(intent.CreatedAt) > maxAge {
			return true
		}
		consumed = intent
		return true
	})
	return consumed, err
}

// MarkAcknowledged stamps the mailbox so the sender can tell its intent was
// observed even if the host crashes before dispatch completes.
func (s *Store) MarkAcknowledged() error {
	now := s.now()
	return s.update(func(doc *document) bool {
		doc.LaunchAcknowledgedAt = &now
		return true
	})
}

// SetReturnTarget records routing back to the originating application.
func (s *Store) SetReturnTarget(target domain.ReturnTarget) error {
	if target.CapturedAt.IsZero() {
		target.CapturedAt = s.now()
	}
	return s.update(func(doc *document) bool {
		doc.ReturnTarget = &target
		return true
	})
}

// TakeReturnTarget reads and clears the return target.
func (s *Store) TakeReturnTarget() (*domain.ReturnTarget, error) {
	var taken *domain.ReturnTarget
	err := s.update(func(doc *document) bool {
		taken = doc.ReturnTarget
		doc.ReturnTarget = nil
		return taken != nil
	})
	return taken, err
}

// update applies mutate to the current document and writes the result back
// only when mutate reports a change. A consume that found nothing must not
// touch the file: the host polls the mailbox constantly, and an unconditional
// write-back would race a sender publishing a fresh intent between our read
// and our rename.
func (s *Store) update(mutate func(doc *document) bool) error {
	doc := s.read()
	if !mutate(&doc) {
		return nil
	}
	return s.write(doc)
}

func (s *Store) read() document {
	var doc document
	contents, err := os.ReadFile(s.path)
	if err != nil {
		// Absent mailbox, or a write raced us mid-rename: empty state.
		return doc
	}
	if err := json.Unmarshal(contents, &doc); err != nil {
		// A corrupt document is unrecoverable and unactionable; the next
		// write replaces it wholesale.
		return document{}
	}
	return doc
}

func (s *Store) write(doc document) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode mailbox: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), mailboxFile+".*")
	if err != nil {
		return fmt.Errorf("failed to stage mailbox write: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(payload)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		return errors.Join(writeErr, closeErr)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to publish mailbox: %w", err)
	}
	return nil
}
