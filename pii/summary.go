package pii

import (
	detectors "github.com/hannes/yaak-anonymizer/pii/detectors"
)

// Summary counts what one request analyzed, for the audit log.
type Summary struct {
	LeafCount    int
	EntityCounts map[string]int
}

// SummarizeNodes walks annotated nodes and tallies analyzed leaves and detected entity types.
func SummarizeNodes(nodes []AnnotatedNode) Summary {
	s := Summary{EntityCounts: map[string]int{}}
	s.addNodes(nodes)
	return s
}

// SummarizeList tallies one span collection per analyzed list element.
func SummarizeList(spanCollections [][]detectors.Entity) Summary {
	s := Summary{EntityCounts: map[string]int{}}
	s.addList(spanCollections)
	return s
}

// SummarizeText tallies the spans of a single leaf string.
func SummarizeText(spans []detectors.Entity) Summary {
	s := Summary{EntityCounts: map[string]int{}}
	s.addSpans(spans)
	return s
}

// Record turns the summary into an audit record for requestID.
func (s Summary) Record(requestID, operation string) AuditRecord {
	return AuditRecord{
		RequestID:    requestID,
		Operation:    operation,
		LeafCount:    s.LeafCount,
		EntityCounts: s.EntityCounts,
	}
}

func (s *Summary) addNodes(nodes []AnnotatedNode) {
	for _, node := range nodes {
		switch {
		case node.Skipped:
		case node.Value.Kind() == KindMapping:
			s.addNodes(node.Children)
		case node.Value.Kind() == KindSequence:
			s.addList(node.ListSpans)
		case node.Value.Kind() == KindString:
			s.addSpans(node.Spans)
		}
	}
}

func (s *Summary) addList(spanCollections [][]detectors.Entity) {
	for _, spans := range spanCollections {
		s.addSpans(spans)
	}
}

func (s *Summary) addSpans(spans []detectors.Entity) {
	s.LeafCount++
	for _, span := range spans {
		s.EntityCounts[span.Label]++
	}
}
