package pii

import (
	"context"
	"errors"
	"testing"

	detectors "github.com/hannes/yaak-anonymizer/pii/detectors"
)

func TestAnonymizeList_PersonNames(t *testing.T) {
	values := []Value{
		String("Morris likes this"),
		String("You should talk to Mike"),
		String("Mary had a little startup"),
	}
	spans := [][]detectors.Entity{
		{{Label: "PERSON", StartPos: 0, EndPos: 6, Confidence: 0.85}},
		{{Label: "PERSON", StartPos: 19, EndPos: 23, Confidence: 0.85}},
		{},
	}

	got, err := NewBatchAnonymizer(nil).AnonymizeList(values, spans, Options{})
	if err != nil {
		t.Fatalf("AnonymizeList failed: %v", err)
	}

	want := []string{"<PERSON> likes this", "You should talk to <PERSON>", "Mary had a little startup"}
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		if s, _ := got[i].AsString(); s != want[i] {
			t.Errorf("element %d: expected %q, got %q", i, want[i], s)
		}
	}
}

func TestAnonymizeList_EmptySpanCollections(t *testing.T) {
	values := []Value{String("a"), Int(7), Null()}

	got, err := NewBatchAnonymizer(nil).AnonymizeList(values, nil, Options{})
	if err != nil {
		t.Fatalf("AnonymizeList failed: %v", err)
	}
	if !Sequence(got...).Equal(Sequence(values...)) {
		t.Errorf("expected values unchanged, got %v", Sequence(got...))
	}
}

func TestAnonymizeList_LengthMismatch(t *testing.T) {
	values := []Value{String("a"), String("b")}
	spans := [][]detectors.Entity{{}}

	_, err := NewBatchAnonymizer(nil).AnonymizeList(values, spans, Options{})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAnonymizeList_RejectsMappings(t *testing.T) {
	values := []Value{MappingValue(mapping("k", "v"))}

	_, err := NewBatchAnonymizer(nil).AnonymizeList(values, nil, Options{})
	if !errors.Is(err, ErrUnsupportedShape) {
		t.Errorf("expected ErrUnsupportedShape, got %v", err)
	}
}

func TestAnonymizeList_NonStringScalars(t *testing.T) {
	values := []Value{Int(5551234), Bool(true), Float(2.5)}
	spans := [][]detectors.Entity{
		{{Label: "NUMBER", StartPos: 0, EndPos: 7}},
		{},
		{{Label: "X", StartPos: 0, EndPos: 3}},
	}
	ops := map[string]OperatorConfig{"X": {Type: OperatorKeep}}

	got, err := NewBatchAnonymizer(nil).AnonymizeList(values, spans, Options{Operators: ops})
	if err != nil {
		t.Fatalf("AnonymizeList failed: %v", err)
	}
	if s, ok := got[0].AsString(); !ok || s != "<NUMBER>" {
		t.Errorf("expected detected integer to become a placeholder string, got %v", got[0])
	}
	if !got[1].Equal(Bool(true)) {
		t.Errorf("expected bool untouched, got %v", got[1])
	}
	if !got[2].Equal(Float(2.5)) {
		t.Errorf("expected kept float to stay a float, got %v", got[2])
	}
}

func TestAnonymizeDict_IntegerUntouched(t *testing.T) {
	nodes := []AnnotatedNode{{Key: "key_c", Value: Int(3), Spans: []detectors.Entity{}}}

	got, err := NewBatchAnonymizer(nil).AnonymizeDict(nodes, Options{})
	if err != nil {
		t.Fatalf("AnonymizeDict failed: %v", err)
	}
	v, ok := got.Get("key_c")
	if !ok || !v.Equal(Int(3)) {
		t.Errorf("expected key_c to stay integer 3, got %v", v)
	}
}

func TestAnonymizeDict_NonStringScalarsIgnoreSpans(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		spans []detectors.Entity
	}{
		{"int", Int(10001), []detectors.Entity{{Label: "US_ZIP_CODE", StartPos: 0, EndPos: 5, Confidence: 1}}},
		{"bool", Bool(true), []detectors.Entity{{Label: "FLAG", StartPos: 0, EndPos: 4, Confidence: 1}}},
		{"float", Float(212.5), []detectors.Entity{{Label: "NUMBER", StartPos: 0, EndPos: 3, Confidence: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes := []AnnotatedNode{{Key: "field", Value: tt.value, Spans: tt.spans}}

			got, err := NewBatchAnonymizer(nil).AnonymizeDict(nodes, Options{})
			if err != nil {
				t.Fatalf("AnonymizeDict failed: %v", err)
			}
			v, ok := got.Get("field")
			if !ok || !v.Equal(tt.value) {
				t.Errorf("expected %v unchanged, got %v", tt.value, v)
			}
		})
	}
}

func TestPipeline_RegexDetectorKeepsIntegerZip(t *testing.T) {
	dm := NewDetectorManager(detectors.DetectorNameRegex, nil)
	defer dm.Close()

	in := NewMapping()
	in.Set("zip", Int(10001))
	in.Set("address", String("Main St, 10001"))

	nodes, err := NewBatchAnalyzer(dm).AnalyzeDict(context.Background(), in, Options{})
	if err != nil {
		t.Fatalf("AnalyzeDict failed: %v", err)
	}
	out, err := NewBatchAnonymizer(nil).AnonymizeDict(nodes, Options{})
	if err != nil {
		t.Fatalf("AnonymizeDict failed: %v", err)
	}

	if v, _ := out.Get("zip"); !v.Equal(Int(10001)) {
		t.Errorf("expected zip to stay integer 10001, got %v", v)
	}
	if v, _ := out.Get("address"); !v.Equal(String("Main St, <US_ZIP_CODE>")) {
		t.Errorf("expected zip in address to be replaced, got %v", v)
	}

	if s := SummarizeNodes(nodes); s.LeafCount != 1 || s.EntityCounts["US_ZIP_CODE"] != 1 {
		t.Errorf("expected one analyzed leaf with one zip code, got %+v", s)
	}
}

func TestAnonymizeDict_NestedPhoneNumber(t *testing.T) {
	text := "My phone number is 212-121-1424"
	inner := mapping("key_a1", text)
	nodes := []AnnotatedNode{{
		Key:   "key_a",
		Value: MappingValue(inner),
		Children: []AnnotatedNode{{
			Key:   "key_a1",
			Value: String(text),
			Spans: []detectors.Entity{{Label: "PHONE_NUMBER", StartPos: 19, EndPos: 31, Confidence: 0.75}},
		}},
	}}

	got, err := NewBatchAnonymizer(nil).AnonymizeDict(nodes, Options{})
	if err != nil {
		t.Fatalf("AnonymizeDict failed: %v", err)
	}

	want := mapping("key_a", map[string]any{"key_a1": "My phone number is <PHONE_NUMBER>"})
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", MappingValue(want), MappingValue(got))
	}
}

func TestAnonymizeDict_ChildMismatch(t *testing.T) {
	nodes := []AnnotatedNode{{
		Key:      "outer",
		Value:    MappingValue(mapping("a", "x", "b", "y")),
		Children: []AnnotatedNode{{Key: "a", Value: String("x")}},
	}}

	_, err := NewBatchAnonymizer(nil).AnonymizeDict(nodes, Options{})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAnonymizeDict_PropagatesMalformedSpan(t *testing.T) {
	nodes := []AnnotatedNode{{
		Key:   "name",
		Value: String("Mike"),
		Spans: []detectors.Entity{{Label: "PERSON", StartPos: 0, EndPos: 10}},
	}}

	_, err := NewBatchAnonymizer(nil).AnonymizeDict(nodes, Options{})
	if !errors.Is(err, ErrMalformedSpan) {
		t.Errorf("expected ErrMalformedSpan, got %v", err)
	}
}

// analyzeAndAnonymize runs the full pipeline over m with the mock detector
func analyzeAndAnonymize(t *testing.T, byText map[string][]detectors.Entity, m *Mapping, opts Options) *Mapping {
	t.Helper()
	analyzer, _ := newTestAnalyzer(byText)
	nodes, err := analyzer.AnalyzeDict(context.Background(), m, opts)
	if err != nil {
		t.Fatalf("AnalyzeDict failed: %v", err)
	}
	out, err := NewBatchAnonymizer(nil).AnonymizeDict(nodes, opts)
	if err != nil {
		t.Fatalf("AnonymizeDict failed: %v", err)
	}
	return out
}

func TestPipeline_PreservesShape(t *testing.T) {
	byText := map[string][]detectors.Entity{
		"Mike":         {{Label: "PERSON", StartPos: 0, EndPos: 4, Confidence: 0.9}},
		"mike@corp.io": {{Label: "EMAIL_ADDRESS", StartPos: 0, EndPos: 12, Confidence: 1}},
	}
	in := NewMapping()
	in.Set("zeta", String("Mike"))
	in.Set("alpha", MappingValue(mapping("email", "mike@corp.io", "age", 41)))
	in.Set("tags", Sequence(String("Mike"), Bool(false), Null()))
	in.Set("id", String("Mike"))
	in.Set("missing", Null())

	out := analyzeAndAnonymize(t, byText, in, Options{KeysToSkip: []string{"id"}})

	if got := out.Keys(); len(got) != 5 || got[0] != "zeta" || got[1] != "alpha" || got[4] != "missing" {
		t.Errorf("expected key order preserved, got %v", got)
	}

	want := NewMapping()
	want.Set("zeta", String("<PERSON>"))
	want.Set("alpha", MappingValue(mapping("email", "<EMAIL_ADDRESS>", "age", 41)))
	want.Set("tags", Sequence(String("<PERSON>"), Bool(false), Null()))
	want.Set("id", String("Mike"))
	want.Set("missing", Null())

	if !out.Equal(want) {
		t.Errorf("expected %v, got %v", MappingValue(want), MappingValue(out))
	}
}

func TestPipeline_Idempotent(t *testing.T) {
	byText := map[string][]detectors.Entity{
		"Call Mike": {{Label: "PERSON", StartPos: 5, EndPos: 9, Confidence: 0.9}},
	}
	in := mapping("note", "Call Mike", "nested", map[string]any{"n": 1})

	once := analyzeAndAnonymize(t, byText, in, Options{})
	twice := analyzeAndAnonymize(t, byText, once, Options{})

	if !once.Equal(twice) {
		t.Errorf("expected second pass to be a no-op: %v vs %v", MappingValue(once), MappingValue(twice))
	}
}
