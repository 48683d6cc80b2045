package pii

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	detectors "github.com/hannes/yaak-anonymizer/pii/detectors"
)

// TextAnonymizer substitutes detected spans in a single string.
type TextAnonymizer interface {
	Anonymize(text string, spans []detectors.Entity, operators map[string]OperatorConfig) (EngineResult, error)
}

// OperatorResult describes one substitution. Start and End index into EngineResult.Text.
type OperatorResult struct {
	Start      int    `json:"start"`
	End        int    `json:"end"`
	EntityType string `json:"entity_type"`
	Text       string `json:"text"`
	Operator   string `json:"operator"`
}

// EngineResult is the anonymized text plus the substitutions that produced it
type EngineResult struct {
	Text  string           `json:"text"`
	Items []OperatorResult `json:"items"`
}

// Engine is the default TextAnonymizer. It is stateless and safe for concurrent use.
type Engine struct{}

// NewEngine creates a new anonymizer engine
func NewEngine() *Engine {
	return &Engine{}
}

// Anonymize replaces every span, after overlap resolution, according to operators.
func (e *Engine) Anonymize(text string, spans []detectors.Entity, operators map[string]OperatorConfig) (EngineResult, error) {
	if len(spans) == 0 {
		return EngineResult{Text: text, Items: []OperatorResult{}}, nil
	}

	for _, span := range spans {
		if err := validateSpan(text, span); err != nil {
			return EngineResult{}, err
		}
	}

	resolved := resolveConflicts(spans)

	var sb strings.Builder
	sb.Grow(len(text))
	items := make([]OperatorResult, 0, len(resolved))
	cursor := 0

	for _, span := range resolved {
		op := operatorFor(operators, span.Label)
		original := text[span.StartPos:span.EndPos]

		var replacement string
		switch op.Type {
		case OperatorReplace, "":
			replacement = op.NewValue
			if replacement == "" {
				replacement = "<" + span.Label + ">"
			}
		case OperatorKeep:
			replacement = original
		default:
			return EngineResult{}, fmt.Errorf("%w: unknown operator %q for entity %s", ErrInvalidArgument, op.Type, span.Label)
		}

		sb.WriteString(text[cursor:span.StartPos])
		start := sb.Len()
		sb.WriteString(replacement)
		items = append(items, OperatorResult{
			Start:      start,
			End:        sb.Len(),
			EntityType: span.Label,
			Text:       replacement,
			Operator:   orDefault(op.Type, OperatorReplace),
		})
		cursor = span.EndPos
	}
	sb.WriteString(text[cursor:])

	return EngineResult{Text: sb.String(), Items: items}, nil
}

// orDefault returns s, or def when s is empty.
func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func validateSpan(text string, span detectors.Entity) error {
	if span.StartPos < 0 || span.EndPos > len(text) || span.StartPos > span.EndPos {
		return fmt.Errorf("%w: %s [%d,%d) outside text of length %d", ErrMalformedSpan, span.Label, span.StartPos, span.EndPos, len(text))
	}
	if !isRuneBoundary(text, span.StartPos) || !isRuneBoundary(text, span.EndPos) {
		return fmt.Errorf("%w: %s [%d,%d) splits a UTF-8 sequence", ErrMalformedSpan, span.Label, span.StartPos, span.EndPos)
	}
	return nil
}

func isRuneBoundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	return utf8.RuneStart(s[i])
}

// resolveConflicts returns non-overlapping spans in ascending order. Spans inside a
// kept span are dropped (the more confident wins on identical ranges), overlapping
// spans of one type are merged, and a span overlapping a different type is trimmed
// to start where the previous one ends.
func resolveConflicts(spans []detectors.Entity) []detectors.Entity {
	sorted := make([]detectors.Entity, 0, len(spans))
	for _, s := range spans {
		if s.StartPos < s.EndPos {
			sorted = append(sorted, s)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.StartPos != b.StartPos {
			return a.StartPos < b.StartPos
		}
		if a.EndPos != b.EndPos {
			return a.EndPos > b.EndPos
		}
		return a.Confidence > b.Confidence
	})

	kept := make([]detectors.Entity, 0, len(sorted))
	for _, s := range sorted {
		if len(kept) == 0 {
			kept = append(kept, s)
			continue
		}
		last := &kept[len(kept)-1]
		switch {
		case last.Contains(s):
			// identical ranges are ordered by confidence, so last already wins
			continue
		case last.Overlaps(s) && last.Label == s.Label:
			last.EndPos = s.EndPos
			if s.Confidence > last.Confidence {
				last.Confidence = s.Confidence
			}
			continue
		case last.Overlaps(s):
			s.StartPos = last.EndPos
		}
		kept = append(kept, s)
	}
	return kept
}
