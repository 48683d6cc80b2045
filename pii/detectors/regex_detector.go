package detectors

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/samber/lo"
)

// RegexDetector implements Detector using regular expressions
type RegexDetector struct {
	patterns  map[string]*regexp.Regexp
	languages []string
}

func NewRegexDetector(patterns map[string]string) (*RegexDetector, error) {
	regexMap := make(map[string]*regexp.Regexp, len(patterns))
	for label, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern for %s: %w", label, err)
		}
		regexMap[label] = re
	}

	return &RegexDetector{
		patterns:  regexMap,
		languages: []string{DefaultLanguage},
	}, nil
}

// SetSupportedLanguages replaces the language tags this detector accepts
func (r *RegexDetector) SetSupportedLanguages(languages []string) {
	r.languages = append([]string(nil), languages...)
}

// GetName returns the name of this detector
func (r *RegexDetector) GetName() string {
	return DetectorNameRegex
}

// Detect processes the input and returns detected entities ordered by start position
func (r *RegexDetector) Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error) {
	language := input.Language
	if language == "" {
		language = DefaultLanguage
	}
	if !lo.Contains(r.languages, language) {
		return DetectorOutput{}, fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedLanguage, language, r.languages)
	}

	var entities []Entity

	// loop through all patterns and find matches
	for label, pattern := range r.patterns {
		if err := ctx.Err(); err != nil {
			return DetectorOutput{}, err
		}
		matches := pattern.FindAllStringIndex(input.Text, -1)
		for _, match := range matches {
			startPos := match[0]
			endPos := match[1]
			entities = append(entities, Entity{
				Text:       input.Text[startPos:endPos],
				Label:      label,
				StartPos:   startPos,
				EndPos:     endPos,
				Confidence: 1.0,
			})
		}
	}

	// map iteration order is random; keep output stable
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].StartPos != entities[j].StartPos {
			return entities[i].StartPos < entities[j].StartPos
		}
		return entities[i].Label < entities[j].Label
	})

	return DetectorOutput{
		Text:     input.Text,
		Entities: entities,
	}, nil
}

// Close implements the Detector interface
func (r *RegexDetector) Close() error {
	// Regex detector doesn't need cleanup
	return nil
}
