// Package vocab applies the user's local substitution rules to a final
// transcript before it is inserted. Rules are deterministic and local; the
// heavier contextual correction belongs to the polish service.
package vocab

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Engine applies literal substitutions loaded from a rules file. Each line
// has the form `spoken => written`; blank lines and #-comments are skipped.
type Engine struct {
	rules     []rule
	loopLimit int
}

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// NewEngine loads rules from path. A missing file yields an empty engine;
// that is the common case for fresh installs.
func NewEngine(path string, loopLimit int) (*Engine, error) {
	if loopLimit <= 0 {
		loopLimit = 10
	}
	if strings.TrimSpace(path) == "" {
		return &Engine{loopLimit: loopLimit}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Engine{loopLimit: loopLimit}, nil
		}
		return nil, fmt.Errorf("failed to read vocab file %q: %w", path, err)
	}

	rules, err := parse(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse vocab file %q: %w", path, err)
	}
	return &Engine{rules: rules, loopLimit: loopLimit}, nil
}

// Apply transforms text, repeating until the rules reach a fixed point or
// the iteration limit trips.
func (e *Engine) Apply(text string) (string, error) {
	if len(e.rules) == 0 {
		return text, nil
	}

	result := text
	for i := 0; i < e.loopLimit; i++ {
		changed := false
		for _, r := range e.rules {
			next := r.re.ReplaceAllString(result, r.replacement)
			if next != result {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result, nil
}

func parse(contents string) ([]rule, error) {
	var rules []rule
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=>", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: expected `spoken => written`", index+1)
		}
		from := strings.TrimSpace(parts[0])
		to := strings.TrimSpace(parts[1])
		if from == "" {
			return nil, fmt.Errorf("line %d: empty source", index+1)
		}

		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		rules = append(rules, rule{re: re, replacement: to})
	}
	return rules, nil
}
