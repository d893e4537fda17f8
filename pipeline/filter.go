package pipeline

import "github.com/oceanwatch/plastic-detection-service/models"

// Filter keeps the detections whose class name equals target exactly, in
// the order the detector produced them.
func Filter(raw []models.RawDetection, target string) models.DetectionSet {
	kept := make([]models.Detection, 0, len(raw))
	for _, det := range raw {
		if det.ClassName != target {
			continue
		}
		kept = append(kept, models.Detection{
			ClassName:  det.ClassName,
			Confidence: float64(det.Confidence),
			Box:        det.Box,
		})
	}
	return models.DetectionSet{Detections: kept}
}
