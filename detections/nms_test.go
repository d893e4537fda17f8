package detections

import (
	"math"
	"strconv"
	"testing"

	"github.com/oceanwatch/plastic-detection-service/models"
)

func identityBox() letterbox {
	return letterbox{gain: 1, srcW: 1000, srcH: 1000}
}

// makeOutput builds a [1, 4+classes, anchors] tensor. Each anchor is given
// as cx, cy, w, h followed by one score per class.
func makeOutput(classes int, anchors [][]float32) []float32 {
	n := len(anchors)
	out := make([]float32, (4+classes)*n)
	for i, a := range anchors {
		for row, v := range a {
			out[row*n+i] = v
		}
	}
	return out
}

func labelFor(names ...string) func(int) string {
	return func(id int) string {
		if id < len(names) {
			return names[id]
		}
		return strconv.Itoa(id)
	}
}

func TestDecodeOutputPicksBestClassAboveThreshold(t *testing.T) {
	output := makeOutput(2, [][]float32{
		{50, 50, 20, 10, 0.9, 0.1},
		{10, 10, 4, 4, 0.2, 0.3},
		{100, 80, 10, 20, 0.1, 0.6},
	})

	dets := decodeOutput(output, outputLayout{numClasses: 2, numAnchors: 3}, 0.5, identityBox(), labelFor("Plastic", "Metal"))

	equals(t, 2, len(dets))
	equals(t, models.RawDetection{ClassID: 0, ClassName: "Plastic", Confidence: 0.9, Box: [4]float64{40, 45, 60, 55}}, dets[0])
	equals(t, 1, dets[1].ClassID)
	equals(t, "Metal", dets[1].ClassName)
	equals(t, [4]float64{95, 70, 105, 90}, dets[1].Box)
}

func TestDecodeOutputThresholdIsInclusive(t *testing.T) {
	output := makeOutput(1, [][]float32{{5, 5, 2, 2, 0.5}})
	dets := decodeOutput(output, outputLayout{numClasses: 1, numAnchors: 1}, 0.5, identityBox(), labelFor("Plastic"))
	equals(t, 1, len(dets))
}

func TestDecodeOutputUndoesLetterbox(t *testing.T) {
	lb := letterbox{gain: 0.5, padX: 0, padY: 20, srcW: 200, srcH: 200}
	output := makeOutput(1, [][]float32{
		{50, 70, 20, 20, 0.8},
		{5, 40, 20, 20, 0.8},
		{95, 110, 20, 40, 0.8},
	})

	dets := decodeOutput(output, outputLayout{numClasses: 1, numAnchors: 3}, 0.5, lb, labelFor("Plastic"))

	equals(t, 3, len(dets))
	equals(t, [4]float64{80, 80, 120, 120}, dets[0].Box)
	// Boxes reaching past the image edges are clipped to it.
	equals(t, [4]float64{0, 20, 30, 60}, dets[1].Box)
	equals(t, [4]float64{170, 140, 200, 200}, dets[2].Box)
}

func TestDecodeOutputUnknownClassFallsBackToID(t *testing.T) {
	output := makeOutput(3, [][]float32{{5, 5, 2, 2, 0, 0, 0.7}})
	dets := decodeOutput(output, outputLayout{numClasses: 3, numAnchors: 1}, 0.5, identityBox(), labelFor("Plastic"))
	equals(t, "2", dets[0].ClassName)
}

func TestNonMaxSuppressionIsClassAware(t *testing.T) {
	candidates := []models.RawDetection{
		{ClassID: 0, ClassName: "Plastic", Confidence: 0.7, Box: [4]float64{0, 0, 10, 10}},
		{ClassID: 0, ClassName: "Plastic", Confidence: 0.9, Box: [4]float64{1, 1, 11, 11}},
		{ClassID: 1, ClassName: "Metal", Confidence: 0.8, Box: [4]float64{1, 1, 11, 11}},
		{ClassID: 0, ClassName: "Plastic", Confidence: 0.6, Box: [4]float64{50, 50, 60, 60}},
	}

	kept := nonMaxSuppression(candidates, 0.5, MaxDetections)

	equals(t, 3, len(kept))
	equals(t, float32(0.9), kept[0].Confidence)
	equals(t, "Metal", kept[1].ClassName)
	equals(t, [4]float64{50, 50, 60, 60}, kept[2].Box)
}

func TestNonMaxSuppressionLimitsCount(t *testing.T) {
	var candidates []models.RawDetection
	for i := 0; i < 10; i++ {
		x := float64(i * 20)
		candidates = append(candidates, models.RawDetection{Confidence: 0.9, Box: [4]float64{x, 0, x + 10, 10}})
	}
	equals(t, 4, len(nonMaxSuppression(candidates, 0.5, 4)))
}

func TestNonMaxSuppressionStableForTies(t *testing.T) {
	candidates := []models.RawDetection{
		{ClassID: 0, Confidence: 0.8, Box: [4]float64{0, 0, 10, 10}},
		{ClassID: 0, Confidence: 0.8, Box: [4]float64{100, 0, 110, 10}},
	}
	kept := nonMaxSuppression(candidates, 0.5, MaxDetections)
	equals(t, [4]float64{0, 0, 10, 10}, kept[0].Box)
	equals(t, [4]float64{100, 0, 110, 10}, kept[1].Box)
}

func TestCalculateIOU(t *testing.T) {
	equals(t, 1.0, calculateIOU([4]float64{0, 0, 10, 10}, [4]float64{0, 0, 10, 10}))
	equals(t, 0.0, calculateIOU([4]float64{0, 0, 10, 10}, [4]float64{20, 20, 30, 30}))

	iou := calculateIOU([4]float64{0, 0, 10, 10}, [4]float64{5, 0, 15, 10})
	assert(t, math.Abs(iou-1.0/3.0) < 1e-9, "iou = %v", iou)

	equals(t, 0.0, calculateIOU([4]float64{5, 5, 5, 5}, [4]float64{5, 5, 5, 5}))
}
