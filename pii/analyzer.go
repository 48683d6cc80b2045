package pii

import (
	"context"
	"fmt"
	"sort"

	detectors "github.com/hannes/yaak-anonymizer/pii/detectors"
)

// DetectorProvider is an interface for getting the current detector
// This allows BatchAnalyzer to always use the latest detector after hot reloads
type DetectorProvider interface {
	GetDetector() (detectors.Detector, error)
}

// AnnotatedNode pairs one mapping entry with the detections computed for it.
// Exactly one of Spans, ListSpans or Children is meaningful, depending on Value.Kind():
// scalars use Spans, sequences use ListSpans (one collection per element), and nested
// mappings use Children. Skipped nodes were excluded from detection and carry their
// value through untouched.
type AnnotatedNode struct {
	Key       string               `json:"key"`
	Value     Value                `json:"value"`
	Skipped   bool                 `json:"skipped,omitempty"`
	Spans     []detectors.Entity   `json:"spans,omitempty"`
	ListSpans [][]detectors.Entity `json:"list_spans,omitempty"`
	Children  []AnnotatedNode      `json:"children,omitempty"`
}

// BatchAnalyzer runs a detector over single texts and over nested structures
type BatchAnalyzer struct {
	detectorProvider DetectorProvider
}

// NewBatchAnalyzer creates a new batch analyzer
func NewBatchAnalyzer(detectorProvider DetectorProvider) *BatchAnalyzer {
	return &BatchAnalyzer{detectorProvider: detectorProvider}
}

// AnalyzeText returns the spans detected in text, filtered by opts and ordered by start.
func (a *BatchAnalyzer) AnalyzeText(ctx context.Context, text string, opts Options) ([]detectors.Entity, error) {
	detector, err := a.detectorProvider.GetDetector()
	if err != nil {
		return nil, fmt.Errorf("failed to get detector: %w", err)
	}

	output, err := detector.Detect(ctx, detectors.DetectorInput{Text: text, Language: opts.Language})
	if err != nil {
		return nil, err
	}

	entities := make([]detectors.Entity, 0, len(output.Entities))
	for _, entity := range output.Entities {
		if opts.accepts(entity.Label, entity.Confidence) {
			entities = append(entities, entity)
		}
	}
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].StartPos < entities[j].StartPos
	})
	return entities, nil
}

// AnalyzeList returns one span collection per element of values. Scalars are analyzed
// in their string form; null and nested sequences get an empty collection.
func (a *BatchAnalyzer) AnalyzeList(ctx context.Context, values []Value, opts Options) ([][]detectors.Entity, error) {
	results := make([][]detectors.Entity, len(values))
	for i, value := range values {
		switch {
		case value.Kind() == KindMapping:
			return nil, fmt.Errorf("%w: mapping at index %d of a sequence", ErrUnsupportedShape, i)
		case value.IsScalar():
			spans, err := a.AnalyzeText(ctx, value.Text(), opts)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			results[i] = spans
		default:
			results[i] = []detectors.Entity{}
		}
	}
	return results, nil
}

// AnalyzeDict annotates every entry of m, in order. Skipped keys and zero values
// carry no detections, and neither do integers, booleans or floats.
// Dotted entries of opts.KeysToSkip reach into nested mappings.
func (a *BatchAnalyzer) AnalyzeDict(ctx context.Context, m *Mapping, opts Options) ([]AnnotatedNode, error) {
	nodes := make([]AnnotatedNode, 0, m.Len())
	for _, entry := range m.Entries() {
		node := AnnotatedNode{Key: entry.Key, Value: entry.Value}

		if entry.Value.IsZero() || opts.skips(entry.Key) {
			node.Skipped = true
			node.Spans = []detectors.Entity{}
			nodes = append(nodes, node)
			continue
		}

		switch v := entry.Value; {
		case v.Kind() == KindMapping:
			children, err := a.AnalyzeDict(ctx, v.Mapping(), opts.nested(entry.Key))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", entry.Key, err)
			}
			node.Children = children
		case v.Kind() == KindString:
			spans, err := a.AnalyzeText(ctx, v.Text(), opts)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", entry.Key, err)
			}
			node.Spans = spans
		case v.Kind() == KindSequence:
			listSpans, err := a.AnalyzeList(ctx, v.Items(), opts)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", entry.Key, err)
			}
			node.ListSpans = listSpans
		default:
			// stored as is, never analyzed
			node.Spans = []detectors.Entity{}
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
