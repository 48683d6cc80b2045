package detectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// defaultModelTimeout bounds a single call to the analyzer service.
const defaultModelTimeout = 10 * time.Second

// ModelDetector implements Detector by calling an external analyzer service over HTTP
type ModelDetector struct {
	baseURL string
	client  *http.Client
}

func NewModelDetector(baseURL string) *ModelDetector {
	return &ModelDetector{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultModelTimeout},
	}
}

// GetName returns the name of this detector
func (m *ModelDetector) GetName() string {
	return DetectorNameModel
}

type modelRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

type modelResponse struct {
	Entities []modelEntity `json:"entities"`
}

// modelEntity is one detection as the analyzer service reports it. StartPos and
// EndPos count characters (code points), not bytes.
type modelEntity struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	StartPos   float64 `json:"start_pos"`
	EndPos     float64 `json:"end_pos"`
	Confidence float64 `json:"confidence"`
}

// Detect sends the input to the model server (POST baseURL/detect) and returns its entities
func (m *ModelDetector) Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error) {
	jsonData, err := json.Marshal(modelRequest(input))
	if err != nil {
		return DetectorOutput{}, fmt.Errorf("model detector: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/detect", bytes.NewReader(jsonData))
	if err != nil {
		return DetectorOutput{}, fmt.Errorf("model detector: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	response, err := m.client.Do(req)
	if err != nil {
		return DetectorOutput{}, fmt.Errorf("model detector: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		message := strings.TrimSpace(string(body))
		if isLanguageRejection(response.StatusCode, message) {
			return DetectorOutput{}, fmt.Errorf("%w: %q (model server: %s)", ErrUnsupportedLanguage, input.Language, message)
		}
		return DetectorOutput{}, fmt.Errorf("model detector: unexpected status %d: %s", response.StatusCode, message)
	}

	entities, err := convertResponseToEntities(response.Body, input.Text)
	if err != nil {
		return DetectorOutput{}, err
	}

	return DetectorOutput{
		Text:     input.Text,
		Entities: entities,
	}, nil
}

// isLanguageRejection reports whether a client error from the model server
// refers to the requested language.
func isLanguageRejection(status int, message string) bool {
	if status != http.StatusBadRequest && status != http.StatusUnprocessableEntity {
		return false
	}
	return strings.Contains(strings.ToLower(message), "language")
}

// convertResponseToEntities decodes the model server payload and converts its
// character offsets into byte offsets of text.
func convertResponseToEntities(body io.Reader, text string) ([]Entity, error) {
	var payload modelResponse
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("model detector: decode: %w", err)
	}

	offsets := runeOffsets(text)
	entities := make([]Entity, 0, len(payload.Entities))
	for _, e := range payload.Entities {
		entity := Entity{
			Text:       e.Text,
			Label:      e.Label,
			StartPos:   byteOffset(offsets, len(text), int(e.StartPos)),
			EndPos:     byteOffset(offsets, len(text), int(e.EndPos)),
			Confidence: e.Confidence,
		}
		if entity.Text == "" && entity.StartPos >= 0 && entity.StartPos <= entity.EndPos && entity.EndPos <= len(text) {
			entity.Text = text[entity.StartPos:entity.EndPos]
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// runeOffsets returns the byte offset of every character in text, plus len(text).
func runeOffsets(text string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}

// byteOffset maps a character offset to a byte offset. Offsets outside the text
// stay out of range so the anonymizer rejects them.
func byteOffset(offsets []int, textLen, pos int) int {
	switch {
	case pos < 0:
		return pos
	case pos >= len(offsets):
		return textLen + pos - (len(offsets) - 1)
	default:
		return offsets[pos]
	}
}

// Close implements the Detector interface
func (m *ModelDetector) Close() error {
	m.client.CloseIdleConnections()
	return nil
}
