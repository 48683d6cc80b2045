package pii

import (
	"context"
	"errors"
	"fmt"
	"testing"

	detectors "github.com/hannes/yaak-anonymizer/pii/detectors"
)

// mockDetector implements detectors.Detector for testing.
// It returns the entities registered for the exact input text.
type mockDetector struct {
	byText map[string][]detectors.Entity
	err    error
	calls  []detectors.DetectorInput
}

func (m *mockDetector) Detect(ctx context.Context, input detectors.DetectorInput) (detectors.DetectorOutput, error) {
	m.calls = append(m.calls, input)
	if m.err != nil {
		return detectors.DetectorOutput{}, m.err
	}
	return detectors.DetectorOutput{Text: input.Text, Entities: m.byText[input.Text]}, nil
}

func (m *mockDetector) GetName() string {
	return "mock_detector"
}

func (m *mockDetector) Close() error {
	return nil
}

// staticProvider hands out a fixed detector
type staticProvider struct {
	detector detectors.Detector
	err      error
}

func (p staticProvider) GetDetector() (detectors.Detector, error) {
	return p.detector, p.err
}

func newTestAnalyzer(byText map[string][]detectors.Entity) (*BatchAnalyzer, *mockDetector) {
	detector := &mockDetector{byText: byText}
	return NewBatchAnalyzer(staticProvider{detector: detector}), detector
}

func mapping(kv ...any) *Mapping {
	m := NewMapping()
	for i := 0; i+1 < len(kv); i += 2 {
		v, err := FromInterface(kv[i+1])
		if err != nil {
			panic(err)
		}
		m.Set(kv[i].(string), v)
	}
	return m
}

func TestAnalyzeText_FiltersAndSorts(t *testing.T) {
	text := "Call 212-121-1424 or mail a@b.io"
	analyzer, _ := newTestAnalyzer(map[string][]detectors.Entity{
		text: {
			{Label: "EMAIL_ADDRESS", StartPos: 26, EndPos: 32, Confidence: 0.9},
			{Label: "PHONE_NUMBER", StartPos: 5, EndPos: 17, Confidence: 0.8},
			{Label: "PERSON", StartPos: 0, EndPos: 4, Confidence: 0.2},
		},
	})

	spans, err := analyzer.AnalyzeText(context.Background(), text, Options{ScoreThreshold: 0.5})
	if err != nil {
		t.Fatalf("AnalyzeText failed: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans above threshold, got %d: %+v", len(spans), spans)
	}
	if spans[0].Label != "PHONE_NUMBER" || spans[1].Label != "EMAIL_ADDRESS" {
		t.Errorf("expected spans ordered by start, got %+v", spans)
	}

	spans, err = analyzer.AnalyzeText(context.Background(), text, Options{Entities: []string{"EMAIL_ADDRESS"}})
	if err != nil {
		t.Fatalf("AnalyzeText failed: %v", err)
	}
	if len(spans) != 1 || spans[0].Label != "EMAIL_ADDRESS" {
		t.Errorf("expected only EMAIL_ADDRESS, got %+v", spans)
	}
}

func TestAnalyzeText_PassesLanguage(t *testing.T) {
	analyzer, detector := newTestAnalyzer(nil)

	if _, err := analyzer.AnalyzeText(context.Background(), "hola", Options{Language: "es"}); err != nil {
		t.Fatalf("AnalyzeText failed: %v", err)
	}
	if len(detector.calls) != 1 || detector.calls[0].Language != "es" {
		t.Errorf("expected language es to reach the detector, got %+v", detector.calls)
	}
}

func TestAnalyzeText_DetectorErrors(t *testing.T) {
	analyzer := NewBatchAnalyzer(staticProvider{err: fmt.Errorf("detector is unhealthy")})
	if _, err := analyzer.AnalyzeText(context.Background(), "x", Options{}); err == nil {
		t.Error("expected error when no detector is available")
	}

	detector := &mockDetector{err: fmt.Errorf("lang fr: %w", detectors.ErrUnsupportedLanguage)}
	analyzer = NewBatchAnalyzer(staticProvider{detector: detector})
	_, err := analyzer.AnalyzeDict(context.Background(), mapping("name", "Pierre"), Options{Language: "fr"})
	if !errors.Is(err, detectors.ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestAnalyzeList(t *testing.T) {
	analyzer, _ := newTestAnalyzer(map[string][]detectors.Entity{
		"Morris likes this": {{Label: "PERSON", StartPos: 0, EndPos: 6, Confidence: 0.85}},
		"42":                {{Label: "NUMBER", StartPos: 0, EndPos: 2, Confidence: 0.6}},
	})

	values := []Value{String("Morris likes this"), Int(42), Null(), Sequence(String("inner"))}
	results, err := analyzer.AnalyzeList(context.Background(), values, Options{})
	if err != nil {
		t.Fatalf("AnalyzeList failed: %v", err)
	}
	if len(results) != len(values) {
		t.Fatalf("expected %d span collections, got %d", len(values), len(results))
	}
	if len(results[0]) != 1 || results[0][0].Label != "PERSON" {
		t.Errorf("expected PERSON span for element 0, got %+v", results[0])
	}
	if len(results[1]) != 1 {
		t.Errorf("expected integer to be analyzed in string form, got %+v", results[1])
	}
	if len(results[2]) != 0 || len(results[3]) != 0 {
		t.Errorf("expected empty collections for null and nested sequence, got %+v", results[2:])
	}
}

func TestAnalyzeList_RejectsMappings(t *testing.T) {
	analyzer, _ := newTestAnalyzer(nil)
	values := []Value{String("a"), MappingValue(mapping("k", "v"))}

	_, err := analyzer.AnalyzeList(context.Background(), values, Options{})
	if !errors.Is(err, ErrUnsupportedShape) {
		t.Errorf("expected ErrUnsupportedShape, got %v", err)
	}
}

func TestAnalyzeDict_SkipsKeysAndZeroValues(t *testing.T) {
	analyzer, detector := newTestAnalyzer(map[string][]detectors.Entity{
		"Jane":    {{Label: "PERSON", StartPos: 0, EndPos: 4, Confidence: 0.9}},
		"Dr. Who": {{Label: "PERSON", StartPos: 4, EndPos: 7, Confidence: 0.9}},
	})

	m := mapping(
		"id", "Jane",
		"name", "Jane",
		"empty", "",
		"count", 0,
		"none", nil,
		"profile", map[string]any{"alias": "Dr. Who", "nick": "Dr. Who"},
	)
	opts := Options{KeysToSkip: []string{"id", "profile.nick"}}

	nodes, err := analyzer.AnalyzeDict(context.Background(), m, opts)
	if err != nil {
		t.Fatalf("AnalyzeDict failed: %v", err)
	}
	if len(nodes) != 6 {
		t.Fatalf("expected 6 nodes, got %d", len(nodes))
	}

	byKey := map[string]AnnotatedNode{}
	for _, node := range nodes {
		byKey[node.Key] = node
	}

	for _, key := range []string{"id", "empty", "count", "none"} {
		if !byKey[key].Skipped {
			t.Errorf("expected %s to be skipped", key)
		}
	}
	if byKey["name"].Skipped || len(byKey["name"].Spans) != 1 {
		t.Errorf("expected name to carry one span, got %+v", byKey["name"])
	}

	children := byKey["profile"].Children
	if len(children) != 2 {
		t.Fatalf("expected 2 profile children, got %d", len(children))
	}
	if children[0].Key != "alias" || len(children[0].Spans) != 1 {
		t.Errorf("expected alias to be analyzed, got %+v", children[0])
	}
	if children[1].Key != "nick" || !children[1].Skipped {
		t.Errorf("expected profile.nick to be skipped, got %+v", children[1])
	}

	// id, empty, count, none and profile.nick never reach the detector
	if len(detector.calls) != 2 {
		t.Errorf("expected 2 detector calls, got %d", len(detector.calls))
	}
}

func TestAnalyzeDict_DottedPathNeedsExactPrefix(t *testing.T) {
	analyzer, _ := newTestAnalyzer(nil)
	m := mapping(
		"user", map[string]any{"name": "a"},
		"username", map[string]any{"name": "b"},
	)

	nodes, err := analyzer.AnalyzeDict(context.Background(), m, Options{KeysToSkip: []string{"user.name"}})
	if err != nil {
		t.Fatalf("AnalyzeDict failed: %v", err)
	}
	if !nodes[0].Children[0].Skipped {
		t.Error("expected user.name to be skipped")
	}
	if nodes[1].Children[0].Skipped {
		t.Error("expected username.name not to be skipped")
	}
}

func TestAnalyzeDict_SequenceValues(t *testing.T) {
	analyzer, _ := newTestAnalyzer(map[string][]detectors.Entity{
		"Mike": {{Label: "PERSON", StartPos: 0, EndPos: 4, Confidence: 0.9}},
	})
	m := mapping("names", []any{"Mike", "table"})

	nodes, err := analyzer.AnalyzeDict(context.Background(), m, Options{})
	if err != nil {
		t.Fatalf("AnalyzeDict failed: %v", err)
	}
	if len(nodes[0].ListSpans) != 2 {
		t.Fatalf("expected one span collection per element, got %+v", nodes[0].ListSpans)
	}
	if len(nodes[0].ListSpans[0]) != 1 || len(nodes[0].ListSpans[1]) != 0 {
		t.Errorf("unexpected list spans: %+v", nodes[0].ListSpans)
	}
}

func TestAnalyzeDict_NonStringScalarsNotAnalyzed(t *testing.T) {
	analyzer, detector := newTestAnalyzer(map[string][]detectors.Entity{
		"10001": {{Label: "US_ZIP_CODE", StartPos: 0, EndPos: 5, Confidence: 1}},
	})
	m := mapping("zip", 10001, "active", true, "ratio", 0.5)

	nodes, err := analyzer.AnalyzeDict(context.Background(), m, Options{})
	if err != nil {
		t.Fatalf("AnalyzeDict failed: %v", err)
	}
	for _, node := range nodes {
		if node.Skipped || node.Spans == nil || len(node.Spans) != 0 {
			t.Errorf("expected %s to carry an empty span collection, got %+v", node.Key, node)
		}
	}
	if len(detector.calls) != 0 {
		t.Errorf("expected no detector calls, got %v", detector.calls)
	}
}
