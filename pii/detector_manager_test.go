package pii

import (
	"context"
	"fmt"
	"testing"

	detectors "github.com/hannes/yaak-anonymizer/pii/detectors"
)

func init() {
	detectors.RegisterDetectorFactory("failing_detector", func(settings map[string]interface{}) (detectors.Detector, error) {
		return &mockDetector{err: fmt.Errorf("inference failed")}, nil
	})
}

func TestDetectorManager_LoadsRegexDetector(t *testing.T) {
	dm := NewDetectorManager(detectors.DetectorNameRegex, nil)
	defer dm.Close()

	if !dm.IsHealthy() {
		t.Fatalf("expected healthy manager, last error: %v", dm.GetLastError())
	}
	detector, err := dm.GetDetector()
	if err != nil {
		t.Fatalf("GetDetector failed: %v", err)
	}
	if detector.GetName() != detectors.DetectorNameRegex {
		t.Errorf("expected %s, got %s", detectors.DetectorNameRegex, detector.GetName())
	}

	info := dm.GetInfo()
	if info["detector"] != detectors.DetectorNameRegex || info["healthy"] != true {
		t.Errorf("unexpected info: %v", info)
	}
	if _, ok := info["loaded_at"]; !ok {
		t.Error("expected loaded_at in info")
	}
}

func TestDetectorManager_UnknownDetector(t *testing.T) {
	dm := NewDetectorManager("no_such_detector", nil)

	if dm.IsHealthy() {
		t.Error("expected unhealthy manager")
	}
	if _, err := dm.GetDetector(); err == nil {
		t.Error("expected GetDetector to fail")
	}
	if dm.GetInfo()["error"] == nil {
		t.Error("expected error in info")
	}
}

func TestDetectorManager_FailedValidationMarksUnhealthy(t *testing.T) {
	dm := NewDetectorManager(detectors.DetectorNameRegex, nil)
	defer dm.Close()

	if err := dm.Reload("failing_detector", nil); err == nil {
		t.Fatal("expected reload to fail validation")
	}
	if dm.IsHealthy() {
		t.Error("expected manager to be unhealthy after failed reload")
	}

	// a later successful reload recovers
	if err := dm.Reload(detectors.DetectorNameRegex, nil); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if _, err := dm.GetDetector(); err != nil {
		t.Errorf("expected detector after recovery, got %v", err)
	}
}

func TestDetectorManager_Close(t *testing.T) {
	dm := NewDetectorManagerWithDetector(&mockDetector{})

	if _, err := dm.GetDetector(); err != nil {
		t.Fatalf("GetDetector failed: %v", err)
	}
	if err := dm.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := dm.GetDetector(); err == nil {
		t.Error("expected GetDetector to fail after Close")
	}
}

func TestDetectorManager_ServesAnalyzer(t *testing.T) {
	dm := NewDetectorManager(detectors.DetectorNameRegex, nil)
	defer dm.Close()

	spans, err := NewBatchAnalyzer(dm).AnalyzeText(context.Background(), "SSN 123-45-6789", Options{})
	if err != nil {
		t.Fatalf("AnalyzeText failed: %v", err)
	}
	if len(spans) != 1 || spans[0].Label != "US_SSN" {
		t.Errorf("expected one US_SSN span, got %+v", spans)
	}
}
