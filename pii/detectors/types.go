package detectors

// DetectorInput represents the input for PII detection
type DetectorInput struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// DetectorOutput represents the output of PII detection
type DetectorOutput struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities"`
}

// Entity represents a detected PII span within a single leaf string.
// StartPos and EndPos are UTF-8 byte offsets (EndPos exclusive).
type Entity struct {
	Text       string  `json:"text,omitempty"`
	Label      string  `json:"label"`
	StartPos   int     `json:"start_pos"`
	EndPos     int     `json:"end_pos"`
	Confidence float64 `json:"confidence"`
}

// Overlaps reports whether e and other share at least one byte.
func (e Entity) Overlaps(other Entity) bool {
	return e.StartPos < other.EndPos && other.StartPos < e.EndPos
}

// Contains reports whether other lies entirely within e.
func (e Entity) Contains(other Entity) bool {
	return e.StartPos <= other.StartPos && other.EndPos <= e.EndPos
}
