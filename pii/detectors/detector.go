package detectors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	DetectorNameModel = "model_detector"
	DetectorNameRegex = "regex_detector"
)

// DefaultLanguage is used when a DetectorInput carries no language tag.
const DefaultLanguage = "en"

// ErrUnsupportedLanguage is returned by detectors asked to analyze a language they do not support.
var ErrUnsupportedLanguage = errors.New("unsupported language")

type Detector interface {
	GetName() string
	Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error)
	Close() error
}

type NewDetectorFunc func(settings map[string]interface{}) (Detector, error)

var (
	factoriesMu       sync.RWMutex
	detectorFactories = make(map[string]NewDetectorFunc)
)

func RegisterDetectorFactory(name string, factory NewDetectorFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	detectorFactories[name] = factory
}

func NewDetector(name string, settings map[string]interface{}) (Detector, error) {
	factoriesMu.RLock()
	factory, ok := detectorFactories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("detector factory not found for name: %s", name)
	}
	return factory(settings)
}

// RegisteredDetectors returns the names of all registered detector factories, sorted.
func RegisteredDetectors() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(detectorFactories))
	for name := range detectorFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	// Register built-in detector factories
	RegisterDetectorFactory(DetectorNameModel, func(settings map[string]interface{}) (Detector, error) {
		baseURL, ok := settings["base_url"].(string)
		if !ok || baseURL == "" {
			return nil, fmt.Errorf("base_url is required for model detector")
		}
		return NewModelDetector(baseURL), nil
	})

	RegisterDetectorFactory(DetectorNameRegex, func(settings map[string]interface{}) (Detector, error) {
		patterns := PIIPatterns
		if custom, ok := settings["patterns"].(map[string]string); ok && len(custom) > 0 {
			patterns = custom
		}
		detector, err := NewRegexDetector(patterns)
		if err != nil {
			return nil, err
		}
		if languages, ok := settings["languages"].([]string); ok && len(languages) > 0 {
			detector.SetSupportedLanguages(languages)
		}
		return detector, nil
	})
}

func CloseDetector(detector Detector) error {
	return detector.Close()
}
