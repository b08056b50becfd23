package usecase

import (
	"testing"

	"voicelink/internal/domain"
)

func addFinal(a *transcriptAggregator, text string) {
	a.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: text})
}

func addPartial(a *transcriptAggregator, text string) {
	a.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: text})
}

func TestAggregatorAccumulatesFinals(t *testing.T) {
	t.Parallel()

	a := newTranscriptAggregator()
	addFinal(a, "I went to the stor")
	addFinal(a, "store yesterday")

	if got := a.Best(); got != "I went to the store yesterday" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestAggregatorPartialExtendsFinals(t *testing.T) {
	t.Parallel()

	a := newTranscriptAggregator()
	addFinal(a, "hello there")
	addPartial(a, "general")

	if got := a.Best(); got != "hello there general" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestAggregatorFinalClearsPartial(t *testing.T) {
	t.Parallel()

	a := newTranscriptAggregator()
	addPartial(a, "hell")
	addPartial(a, "hello th")
	addFinal(a, "hello there")

	if got := a.Best(); got != "hello there" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestAggregatorPartialOnlySessionYieldsText(t *testing.T) {
	t.Parallel()

	a := newTranscriptAggregator()
	addPartial(a, "ship the release")

	if got := a.Best(); got != "ship the release" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestAggregatorIgnoresRegression(t *testing.T) {
	t.Parallel()

	a := newTranscriptAggregator()
	addFinal(a, "hello world")
	addFinal(a, "hello")

	if got := a.Best(); got != "hello world" {
		t.Fatalf("a shorter restatement must not shrink the transcript: %q", got)
	}
}

func TestAggregatorTracksLanguage(t *testing.T) {
	t.Parallel()

	a := newTranscriptAggregator()
	a.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "hej", Language: "sv"})
	a.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "hej hej"})

	if got := a.Language(); got != "sv" {
		t.Fatalf("unexpected language: %q", got)
	}
}

func TestMergeTranscriptCollapsesDuplicateRuns(t *testing.T) {
	t.Parallel()

	if got := mergeTranscript("", "go home go home please"); got != "go home please" {
		t.Fatalf("unexpected merge: %q", got)
	}
}
