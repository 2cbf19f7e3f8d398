package model

// BoundingBox is the pixel rectangle of a detected plate.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// PlateDetection is a single plate read from an image.
type PlateDetection struct {
	RawText       string      `json:"raw_text"`
	FormattedText string      `json:"formatted_text"`
	BBox          BoundingBox `json:"bbox"`
	Confidence    float64     `json:"confidence"`
}

// DetectionResult is the response of the plate recognition service.
// Image holds the annotated image as base64 JPEG when the service returns one.
type DetectionResult struct {
	Error         string           `json:"error,omitempty"`
	Image         string           `json:"image,omitempty"`
	Detections    []PlateDetection `json:"detections"`
	DetectedCount int              `json:"detected_count"`
	Success       bool             `json:"success"`
}

// Best returns the detection with the highest confidence.
func (r *DetectionResult) Best() (PlateDetection, bool) {
	if r == nil || len(r.Detections) == 0 {
		return PlateDetection{}, false
	}
	best := r.Detections[0]
	for _, d := range r.Detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best, true
}

// PlateText returns the formatted text, falling back to the raw OCR text.
func (d PlateDetection) PlateText() string {
	if d.FormattedText != "" {
		return d.FormattedText
	}
	return d.RawText
}
