package model

import "testing"

func TestDetectionResult_Best(t *testing.T) {
	var empty *DetectionResult
	if _, ok := empty.Best(); ok {
		t.Error("nil result should have no best detection")
	}

	r := &DetectionResult{Detections: []PlateDetection{
		{RawText: "WPCAB1234", Confidence: 0.41},
		{RawText: "WPCAB1284", FormattedText: "WP CAB-1284", Confidence: 0.93},
		{RawText: "WPCA81234", Confidence: 0.70},
	}}

	best, ok := r.Best()
	if !ok {
		t.Fatal("expected a detection")
	}
	if best.PlateText() != "WP CAB-1284" {
		t.Errorf("best plate = %q", best.PlateText())
	}
	if r.Detections[0].PlateText() != "WPCAB1234" {
		t.Error("PlateText should fall back to raw text")
	}
}
