package models

import (
	"image"
	"time"
)

// RawDetection is a single detector output before class filtering.
// Box is [x1, y1, x2, y2] in the pixel space of the submitted image.
type RawDetection struct {
	ClassID    int
	ClassName  string
	Confidence float32
	Box        [4]float64
}

// Detection is a target-class detection as returned to callers.
type Detection struct {
	ClassName  string     `json:"class_name"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"`
}

// DetectionSet holds the filtered detections of one request and, once
// rendered, the annotated image.
type DetectionSet struct {
	Detections []Detection
	Image      image.Image
}

// Count is always the number of kept detections.
func (s DetectionSet) Count() int {
	return len(s.Detections)
}

type PredictResponse struct {
	PlasticDetections []Detection `json:"plastic_detections"`
	PlasticCount      int         `json:"plastic_count"`
	AnnotatedImageB64 string      `json:"annotated_image_b64"`
}

// NewPredictResponse builds the wire payload from a rendered set. The count
// is taken from the set so it cannot drift from the detection list.
func NewPredictResponse(set DetectionSet, annotatedB64 string) PredictResponse {
	dets := set.Detections
	if dets == nil {
		dets = []Detection{}
	}
	return PredictResponse{
		PlasticDetections: dets,
		PlasticCount:      set.Count(),
		AnnotatedImageB64: annotatedB64,
	}
}

type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Detect      time.Duration
	Filter      time.Duration
	Render      time.Duration
	Encode      time.Duration
	Total       time.Duration
}
