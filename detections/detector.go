package detections

import (
	"context"
	"errors"
	"image"

	"github.com/oceanwatch/plastic-detection-service/models"
)

var (
	ErrInference  = errors.New("inference failed")
	ErrPoolBusy   = errors.New("no detector session available")
	ErrPoolClosed = errors.New("pool is closed")
)

// Detector runs object detection on a decoded image. Implementations must
// not modify img and must return detections in a deterministic order.
type Detector interface {
	Detect(ctx context.Context, img image.Image, threshold float32) ([]models.RawDetection, error)

	// Labels maps class identifiers to the names the model was trained with.
	Labels() map[int]string
}
