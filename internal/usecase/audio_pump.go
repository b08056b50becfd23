package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"voicelink/internal/domain"
	"voicelink/internal/insertion"
	"voicelink/internal/ports"
)

// mergeTranscript is the shared merge used for both the aggregator and the
// live insertion stream.
func mergeTranscript(committed, candidate string) string {
	return insertion.Merge(committed, insertion.CollapseDuplicateRuns(candidate))
}

func pumpAudioChunks(
	audio ports.AudioSession,
	stream ports.StreamingSession,
	chunkSize int,
	events ports.EventSink,
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("failed to stream audio: %v", sendErr))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}

// consumeTranscripts feeds provider events into the aggregator and pushes
// partials to the insertion engine as they arrive, in provider order.
func consumeTranscripts(
	ctx context.Context,
	stream ports.StreamingSession,
	aggregator *transcriptAggregator,
	inserter Inserter,
	events ports.EventSink,
	done chan struct{},
) {
	defer close(done)

	for event := range stream.Events() {
		text := strings.TrimSpace(event.Text)
		if text == "" {
			continue
		}
		event.Text = text
		aggregator.Add(event)

		if event.Kind == domain.TranscriptKindPartial {
			events.PartialTranscript(text)
		}
		if _, err := inserter.Update(ctx, text); err != nil && !errors.Is(err, insertion.ErrNoSession) {
			events.SessionError(domain.ErrorCodeInsertion, fmt.Sprintf("live insertion failed: %v", err))
		}
	}
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
