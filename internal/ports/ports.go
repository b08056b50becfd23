package ports

import (
	"context"
	"io"
	"time"

	"voicelink/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
	Language       string
}

// StreamingSession is an active provider streaming session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// IntentStore is the cross-process mailbox shared with the extension.
// Reads against an empty store are the normal "nothing pending" state.
type IntentStore interface {
	SetPendingIntent(intent domain.PendingIntent) error
	ConsumePendingIntent(maxAge time.Duration) (*domain.PendingIntent, error)
	MarkAcknowledged() error
	SetReturnTarget(target domain.ReturnTarget) error
	TakeReturnTarget() (*domain.ReturnTarget, error)
}

// TextTarget is the direct accessibility-style insertion path into the
// focused control of the frontmost application.
type TextTarget interface {
	Attach(ctx context.Context) error
	ReplaceText(ctx context.Context, old, new string) (domain.InsertionFailure, error)
	Detach()
}

// Typist is the simulated-keystroke fallback insertion path.
type Typist interface {
	TypeBackspaces(ctx context.Context, count int) error
	TypeText(ctx context.Context, text string) error
}

// AppDirectory lists installed and running application candidates.
type AppDirectory interface {
	InstalledApps() []domain.AppInfo
	RunningApps() []domain.AppInfo
}

// ProcessTable resolves low-level process identity. Implementations wrap
// whatever platform introspection is available; heuristics stay testable
// against fakes.
type ProcessTable interface {
	ExecutablePath(pid int) (string, error)
	ShortName(pid int) (string, error)
}

// Activator brings an application to the foreground, or yields it.
type Activator interface {
	Activate(ctx context.Context, bundleID string) error
	// YieldForeground returns control to whatever the OS considers previous,
	// without pinpointing a specific application.
	YieldForeground(ctx context.Context) error
}

// PolishProvider produces a corrected version of a finalized transcript.
type PolishProvider interface {
	Polish(ctx context.Context, text, traceID string) (string, error)
}

// PolishConfirmer asks for explicit confirmation before a polish result is
// applied. Presentation is out of scope; implementations may auto-accept.
type PolishConfirmer interface {
	ConfirmReplace(before, after string) bool
}

// VocabEngine applies deterministic local substitutions to a transcript.
type VocabEngine interface {
	Apply(text string) (string, error)
}

// TraceSink records audit events for offline correlation across processes.
type TraceSink interface {
	Record(event domain.TraceEvent)
}

// EventSink emits host state/events for whoever is observing the process.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	PartialTranscript(text string)
	FinalTranscript(raw string, final string)
	SessionError(code domain.ErrorCode, detail string)
}
