package insertion

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Merge folds a new candidate transcript into the previously committed text.
// Committed text only ever grows: candidates that merely re-state a earlier
// portion of the text (a known ASR artifact) are ignored, overlapping
// candidates are stitched at the longest suffix/prefix overlap, and anything
// genuinely new is appended with a word-boundary space heuristic.
func Merge(committed, candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return committed
	}
	if committed == "" {
		return candidate
	}
	if candidate == committed {
		return committed
	}
	// Monotonic growth, the common case for streaming partials.
	if strings.HasPrefix(candidate, committed) {
		return candidate
	}
	// Candidate restates text we already hold: a regression, not new speech.
	if strings.Contains(committed, candidate) {
		return committed
	}
	if overlap := overlapLength(committed, candidate); overlap > 0 {
		return committed + candidate[overlap:]
	}
	return joinWithBoundary(committed, candidate)
}

// overlapLength returns the length of the longest suffix of a that is also a
// prefix of b.
func overlapLength(a, b string) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	for n := max; n > 0; n-- {
		if a[len(a)-n:] == b[:n] {
			return n
		}
	}
	return 0
}

func joinWithBoundary(a, b string) string {
	last, _ := utf8.DecodeLastRuneInString(a)
	first, _ := utf8.DecodeRuneInString(b)
	if isWordRune(last) && isWordRune(first) {
		return a + " " + b
	}
	return a + b
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// minCharUnit keeps the character-level pass away from natural repeats
// inside ordinary words ("banana", "pepper").
const minCharUnit = 4

// CollapseDuplicateRuns removes degenerate back-to-back repetitions from a
// raw candidate before it is merged. Some providers emit a whole phrase two
// or three times in a row; the longest repeating unit is detected at the
// word-token level first, then at the character level, keeping one copy plus
// any genuine tail.
func CollapseDuplicateRuns(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return trimmed
	}

	tokens := strings.Fields(trimmed)
	tokens = collapseTokenRuns(tokens)
	collapsed := strings.Join(tokens, " ")

	return collapseCharRuns(collapsed)
}

func collapseTokenRuns(tokens []string) []string {
	for unit := len(tokens) / 2; unit >= 1; unit-- {
		for start := 0; start+2*unit <= len(tokens); start++ {
			if !tokenRunsEqual(tokens, start, start+unit, unit) {
				continue
			}
			end := start + 2*unit
			for end+unit <= len(tokens) && tokenRunsEqual(tokens, start, end, unit) {
				end += unit
			}
			collapsed := make([]string, 0, len(tokens)-(end-start-unit))
			collapsed = append(collapsed, tokens[:start+unit]...)
			collapsed = append(collapsed, tokens[end:]...)
			return collapseTokenRuns(collapsed)
		}
	}
	return tokens
}

func tokenRunsEqual(tokens []string, a, b, n int) bool {
	for i := 0; i < n; i++ {
		if !strings.EqualFold(tokens[a+i], tokens[b+i]) {
			return false
		}
	}
	return true
}

// collapseCharRuns handles repeats with no token boundary to split on. The
// unit must repeat from the start and span the candidate, so short repeats
// occurring naturally inside words are left alone.
func collapseCharRuns(text string) string {
	runes := []rune(text)
	for unit := len(runes) / 2; unit >= minCharUnit; unit-- {
		repeats := 1
		for (repeats+1)*unit <= len(runes) && runesEqual(runes[:unit], runes[repeats*unit:(repeats+1)*unit]) {
			repeats++
		}
		// Two short repeats without a token boundary are indistinguishable
		// from words like "couscous"; demand a third copy before collapsing.
		if repeats < 3 {
			continue
		}
		tail := runes[repeats*unit:]
		if len(tail) > 0 && !runesEqual(runes[:len(tail)], tail) {
			// Tail is new material, not a partial fourth repeat.
			return string(runes[:unit]) + string(tail)
		}
		return string(runes[:unit])
	}
	return text
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
