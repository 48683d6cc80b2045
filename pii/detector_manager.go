package pii

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	detectors "github.com/hannes/yaak-anonymizer/pii/detectors"
)

// validationText is analyzed once after each load to prove the detector works.
const validationText = "Contact john.smith@example.com or 212-555-0100"

// DetectorManager manages detector lifecycle with thread-safe hot reload capability
type DetectorManager struct {
	mu              sync.RWMutex
	currentDetector detectors.Detector
	detectorName    string
	isHealthy       bool
	lastError       error
	loadedAt        time.Time
}

// NewDetectorManager creates a new detector manager and loads the named detector.
// A failed initial load leaves the manager unhealthy rather than returning an error,
// so the server can start and report the problem on /health.
func NewDetectorManager(name string, settings map[string]interface{}) *DetectorManager {
	dm := &DetectorManager{}

	if err := dm.Reload(name, settings); err != nil {
		log.Printf("[DetectorManager] Warning: Failed to load initial detector: %v", err)
		log.Printf("[DetectorManager] Detector manager created but marked as unhealthy")
	}

	return dm
}

// NewDetectorManagerWithDetector wraps an already constructed detector.
func NewDetectorManagerWithDetector(detector detectors.Detector) *DetectorManager {
	return &DetectorManager{
		currentDetector: detector,
		detectorName:    detector.GetName(),
		isHealthy:       true,
		loadedAt:        time.Now(),
	}
}

// GetDetector returns the current detector in a thread-safe manner
func (dm *DetectorManager) GetDetector() (detectors.Detector, error) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	if !dm.isHealthy {
		if dm.lastError == nil {
			return nil, fmt.Errorf("detector is closed")
		}
		return nil, fmt.Errorf("detector is unhealthy: %w", dm.lastError)
	}

	if dm.currentDetector == nil {
		return nil, fmt.Errorf("no detector available")
	}

	return dm.currentDetector, nil
}

// Reload builds the named detector, validates it with a test inference, and swaps it in
func (dm *DetectorManager) Reload(name string, settings map[string]interface{}) error {
	log.Printf("[DetectorManager] Loading detector: %s", name)

	newDetector, err := detectors.NewDetector(name, settings)
	if err != nil {
		dm.markUnhealthy(err)
		log.Printf("[DetectorManager] Failed to create detector: %v", err)
		return fmt.Errorf("failed to create detector: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := newDetector.Detect(ctx, detectors.DetectorInput{Text: validationText}); err != nil {
		if closeErr := newDetector.Close(); closeErr != nil {
			log.Printf("[DetectorManager] Warning: failed to close failed detector: %v", closeErr)
		}
		dm.markUnhealthy(err)
		log.Printf("[DetectorManager] Detector validation inference failed: %v", err)
		return fmt.Errorf("detector validation failed: %w", err)
	}

	// Swap detectors atomically (critical section)
	dm.mu.Lock()
	oldDetector := dm.currentDetector
	dm.currentDetector = newDetector
	dm.detectorName = name
	dm.isHealthy = true
	dm.lastError = nil
	dm.loadedAt = time.Now()
	dm.mu.Unlock()

	// Close old detector outside lock to minimize critical section
	if oldDetector != nil {
		log.Printf("[DetectorManager] Closing old detector: %s", oldDetector.GetName())
		if err := oldDetector.Close(); err != nil {
			log.Printf("[DetectorManager] Warning: failed to close old detector: %v", err)
		}
	}

	log.Printf("[DetectorManager] Detector %s ready", name)
	return nil
}

func (dm *DetectorManager) markUnhealthy(err error) {
	dm.mu.Lock()
	dm.isHealthy = false
	dm.lastError = err
	dm.mu.Unlock()
}

// IsHealthy returns whether the current detector is healthy
func (dm *DetectorManager) IsHealthy() bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.isHealthy
}

// GetLastError returns the last error encountered (if any)
func (dm *DetectorManager) GetLastError() error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.lastError
}

// GetInfo returns information about the current detector state
func (dm *DetectorManager) GetInfo() map[string]interface{} {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	info := map[string]interface{}{
		"detector": dm.detectorName,
		"healthy":  dm.isHealthy,
	}

	if !dm.loadedAt.IsZero() {
		info["loaded_at"] = dm.loadedAt.UTC().Format(time.RFC3339)
	}

	if dm.lastError != nil {
		info["error"] = dm.lastError.Error()
	} else {
		info["error"] = nil
	}

	return info
}

// Close closes the current detector and cleans up resources
func (dm *DetectorManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.currentDetector != nil {
		log.Printf("[DetectorManager] Closing current detector")
		if err := dm.currentDetector.Close(); err != nil {
			return fmt.Errorf("failed to close detector: %w", err)
		}
		dm.currentDetector = nil
	}

	dm.isHealthy = false
	return nil
}
