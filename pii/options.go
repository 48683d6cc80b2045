package pii

import (
	"strings"

	"github.com/samber/lo"
)

const (
	// OperatorReplace substitutes the span with NewValue, or <ENTITY_TYPE> when empty.
	OperatorReplace = "replace"
	// OperatorKeep leaves the span as it is.
	OperatorKeep = "keep"

	// DefaultOperatorKey selects the operator for entity types without their own entry.
	DefaultOperatorKey = "DEFAULT"
)

// OperatorConfig selects how spans of one entity type are substituted.
type OperatorConfig struct {
	Type     string `json:"type"`
	NewValue string `json:"new_value,omitempty"`
}

// Options carries the recognized knobs for one analyze/anonymize call.
// It is passed by value to both the analyzer and the anonymizer.
type Options struct {
	Language       string                    `json:"language,omitempty"`
	KeysToSkip     []string                  `json:"keys_to_skip,omitempty"`
	Entities       []string                  `json:"entities,omitempty"`
	ScoreThreshold float64                   `json:"score_threshold,omitempty"`
	Operators      map[string]OperatorConfig `json:"operators,omitempty"`
}

// skips reports whether key is listed verbatim in KeysToSkip.
func (o Options) skips(key string) bool {
	return lo.Contains(o.KeysToSkip, key)
}

// nested returns the options to use inside the mapping stored under key:
// dotted skip paths "key.rest" become "rest", everything else is dropped.
func (o Options) nested(key string) Options {
	prefix := key + "."
	o.KeysToSkip = lo.FilterMap(o.KeysToSkip, func(path string, _ int) (string, bool) {
		if !strings.HasPrefix(path, prefix) {
			return "", false
		}
		return strings.TrimPrefix(path, prefix), true
	})
	return o
}

// accepts reports whether a detected entity passes the allow-list and score threshold.
func (o Options) accepts(label string, confidence float64) bool {
	if len(o.Entities) > 0 && !lo.Contains(o.Entities, label) {
		return false
	}
	return confidence >= o.ScoreThreshold
}

// operatorFor returns the operator configured for label, falling back to DEFAULT
// and then to a plain placeholder replacement.
func operatorFor(operators map[string]OperatorConfig, label string) OperatorConfig {
	if op, ok := operators[label]; ok {
		return op
	}
	if op, ok := operators[DefaultOperatorKey]; ok {
		return op
	}
	return OperatorConfig{Type: OperatorReplace}
}
