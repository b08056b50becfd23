package usecase

import (
	"sync"

	"voicelink/internal/domain"
	"voicelink/internal/ports"
)

type activeSession struct {
	traceID string
	cancel  func()
	audio   ports.AudioSession
	stream  ports.StreamingSession

	aggregator *transcriptAggregator
	eventsDone chan struct{}
	audioDone  chan struct{}
}

// transcriptAggregator accumulates provider output independently of what the
// insertion engine managed to put on screen; it is the source of truth for
// the transcript itself.
type transcriptAggregator struct {
	mu          sync.Mutex
	finals      string
	lastPartial string
	language    string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

func (a *transcriptAggregator) Add(event domain.TranscriptEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Language != "" {
		a.language = event.Language
	}
	text := event.Text
	if text == "" {
		return
	}
	if event.Kind == domain.TranscriptKindFinal {
		a.finals = mergeTranscript(a.finals, text)
		a.lastPartial = ""
		return
	}
	a.lastPartial = text
}

// Best returns the most complete transcript available: accumulated finals
// extended by the last partial. A finalize failure upstream must never blank
// out an in-progress transcript, so even a pure-partial session yields text.
func (a *transcriptAggregator) Best() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lastPartial == "" {
		return a.finals
	}
	return mergeTranscript(a.finals, a.lastPartial)
}

func (a *transcriptAggregator) Language() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.language
}
