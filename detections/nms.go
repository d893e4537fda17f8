package detections

import (
	"math"
	"sort"

	"github.com/oceanwatch/plastic-detection-service/models"
)

// outputLayout describes a YOLO head output of shape [1, 4+classes, anchors]
// with boxes as centre x, centre y, width, height in input pixels.
type outputLayout struct {
	numClasses int
	numAnchors int
}

// decodeOutput picks the best class for every anchor and keeps those scoring
// at least threshold. Boxes are mapped back to source image pixels and
// clipped to the image.
func decodeOutput(output []float32, layout outputLayout, threshold float32, lb letterbox, label func(int) string) []models.RawDetection {
	n := layout.numAnchors
	candidates := make([]models.RawDetection, 0, 64)

	for i := 0; i < n; i++ {
		classID, prob := -1, float32(0)
		for c := 0; c < layout.numClasses; c++ {
			if curr := output[n*(c+4)+i]; curr > prob {
				prob = curr
				classID = c
			}
		}

		if classID < 0 || prob < threshold {
			continue
		}

		xc := float64(output[i])
		yc := float64(output[n+i])
		w := float64(output[2*n+i])
		h := float64(output[3*n+i])

		x1, y1 := lb.clip(lb.unscale(xc-w/2, yc-h/2))
		x2, y2 := lb.clip(lb.unscale(xc+w/2, yc+h/2))

		candidates = append(candidates, models.RawDetection{
			ClassID:    classID,
			ClassName:  label(classID),
			Confidence: prob,
			Box:        [4]float64{x1, y1, x2, y2},
		})
	}

	return candidates
}

// nonMaxSuppression removes overlapping boxes of the same class. The result
// is ordered by descending confidence; ties keep anchor order.
func nonMaxSuppression(candidates []models.RawDetection, iouThreshold float32, maxDetections int) []models.RawDetection {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	kept := make([]models.RawDetection, 0, len(candidates))
	suppressed := make([]bool, len(candidates))

	for i := range candidates {
		if suppressed[i] {
			continue
		}
		kept = append(kept, candidates[i])
		if len(kept) == maxDetections {
			break
		}

		for j := i + 1; j < len(candidates); j++ {
			if suppressed[j] || candidates[j].ClassID != candidates[i].ClassID {
				continue
			}
			if calculateIOU(candidates[i].Box, candidates[j].Box) > float64(iouThreshold) {
				suppressed[j] = true
			}
		}
	}

	return kept
}

func calculateIOU(box1, box2 [4]float64) float64 {
	x1 := math.Max(box1[0], box2[0])
	y1 := math.Max(box1[1], box2[1])
	x2 := math.Min(box1[2], box2[2])
	y2 := math.Min(box1[3], box2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0.0
	}

	intersection := (x2 - x1) * (y2 - y1)
	area1 := (box1[2] - box1[0]) * (box1[3] - box1[1])
	area2 := (box2[2] - box2[0]) * (box2[3] - box2[1])
	union := area1 + area2 - intersection
	if union <= 0 {
		return 0.0
	}

	return intersection / union
}
