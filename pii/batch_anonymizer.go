package pii

import (
	"fmt"

	detectors "github.com/hannes/yaak-anonymizer/pii/detectors"
)

// BatchAnonymizer rebuilds nested data with every leaf passed through a TextAnonymizer.
// The output always has the same shape as the input: mapping keys and their order,
// sequence lengths and element order are preserved.
type BatchAnonymizer struct {
	engine TextAnonymizer
}

// NewBatchAnonymizer creates a batch anonymizer. A nil engine selects the default Engine.
func NewBatchAnonymizer(engine TextAnonymizer) *BatchAnonymizer {
	if engine == nil {
		engine = NewEngine()
	}
	return &BatchAnonymizer{engine: engine}
}

// AnonymizeList anonymizes each scalar of values with the span collection at the same
// position. An empty spanCollections means no detections for any element; otherwise its
// length must match values. Null and nested sequence elements are returned unchanged and
// mapping elements are rejected with ErrUnsupportedShape.
func (b *BatchAnonymizer) AnonymizeList(values []Value, spanCollections [][]detectors.Entity, opts Options) ([]Value, error) {
	if len(spanCollections) == 0 {
		spanCollections = make([][]detectors.Entity, len(values))
	} else if len(spanCollections) != len(values) {
		return nil, fmt.Errorf("%w: %d span collections for %d values", ErrInvalidArgument, len(spanCollections), len(values))
	}

	out := make([]Value, len(values))
	for i, value := range values {
		switch {
		case value.Kind() == KindMapping:
			return nil, fmt.Errorf("%w: mapping at index %d of a sequence", ErrUnsupportedShape, i)
		case value.IsScalar():
			anonymized, err := b.anonymizeLeaf(value, spanCollections[i], opts)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = anonymized
		default:
			out[i] = value
		}
	}
	return out, nil
}

// AnonymizeDict rebuilds the mapping described by nodes. Values are dispatched in a
// fixed order: mapping, string, sequence, then any other value. A string is never
// treated as a sequence of characters. Any other value, including integers, booleans
// and floats, is stored unchanged whatever its spans say.
func (b *BatchAnonymizer) AnonymizeDict(nodes []AnnotatedNode, opts Options) (*Mapping, error) {
	out := NewMapping()
	for _, node := range nodes {
		value := node.Value
		var result Value

		switch {
		case node.Skipped:
			result = value
		case value.Kind() == KindMapping:
			if err := checkChildren(node); err != nil {
				return nil, err
			}
			nested, err := b.AnonymizeDict(node.Children, opts)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", node.Key, err)
			}
			result = MappingValue(nested)
		case value.Kind() == KindString:
			anonymized, err := b.anonymizeLeaf(value, node.Spans, opts)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", node.Key, err)
			}
			result = anonymized
		case value.Kind() == KindSequence:
			items, err := b.AnonymizeList(value.Items(), node.ListSpans, opts)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", node.Key, err)
			}
			result = Sequence(items...)
		default:
			result = value
		}

		out.Set(node.Key, result)
	}
	return out, nil
}

// AnonymizeText anonymizes a single leaf string.
func (b *BatchAnonymizer) AnonymizeText(text string, spans []detectors.Entity, opts Options) (string, error) {
	res, err := b.engine.Anonymize(text, spans, opts.Operators)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// anonymizeLeaf substitutes spans in the string form of a scalar. Non-string scalars
// keep their value and type unless a substitution actually changed their text.
func (b *BatchAnonymizer) anonymizeLeaf(value Value, spans []detectors.Entity, opts Options) (Value, error) {
	if value.Kind() != KindString && len(spans) == 0 {
		return value, nil
	}

	text := value.Text()
	anonymized, err := b.AnonymizeText(text, spans, opts)
	if err != nil {
		return Value{}, err
	}
	if value.Kind() != KindString && anonymized == text {
		return value, nil
	}
	return String(anonymized), nil
}

// checkChildren verifies that a mapping node's annotations line up with its entries.
func checkChildren(node AnnotatedNode) error {
	entries := node.Value.Mapping().Entries()
	if len(node.Children) != len(entries) {
		return fmt.Errorf("%w: %s has %d entries but %d annotated children", ErrInvalidArgument, node.Key, len(entries), len(node.Children))
	}
	for i, child := range node.Children {
		if child.Key != entries[i].Key {
			return fmt.Errorf("%w: %s child %d is %q, expected %q", ErrInvalidArgument, node.Key, i, child.Key, entries[i].Key)
		}
	}
	return nil
}
