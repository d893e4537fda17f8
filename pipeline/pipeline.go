// Package pipeline turns an uploaded image into the prediction response:
// decode, detect, filter to the target class, annotate and encode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/oceanwatch/plastic-detection-service/annotate"
	"github.com/oceanwatch/plastic-detection-service/detections"
	"github.com/oceanwatch/plastic-detection-service/imagecodec"
	"github.com/oceanwatch/plastic-detection-service/metrics"
	"github.com/oceanwatch/plastic-detection-service/models"
)

const DefaultTargetClass = "Plastic"

type Config struct {
	TargetClass   string
	ConfThreshold float32
	JPEGQuality   int
	// DetectTimeout bounds a single detector call. Zero disables it.
	DetectTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		TargetClass:   DefaultTargetClass,
		ConfThreshold: detections.DefaultConfThreshold,
		JPEGQuality:   imagecodec.DefaultJPEGQuality,
	}
}

// Pipeline is safe for concurrent use; every Run owns its own image and
// results, and only the detector is shared.
type Pipeline struct {
	detector detections.Detector
	renderer *annotate.Renderer
	cfg      Config
}

func New(detector detections.Detector, cfg Config) *Pipeline {
	if cfg.TargetClass == "" {
		cfg.TargetClass = DefaultTargetClass
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = imagecodec.DefaultJPEGQuality
	}
	return &Pipeline{
		detector: detector,
		renderer: annotate.NewRenderer(annotate.DefaultStyle()),
		cfg:      cfg,
	}
}

func (p *Pipeline) TargetClass() string { return p.cfg.TargetClass }

func (p *Pipeline) Labels() map[int]string { return p.detector.Labels() }

// Run processes one uploaded image. The returned timings are always non-nil,
// also when a stage fails.
func (p *Pipeline) Run(ctx context.Context, requestID string, data []byte) (*models.PredictResponse, *models.ProcessingTimings, error) {
	startTotal := time.Now()
	timings := &models.ProcessingTimings{RequestID: requestID}
	defer func() { timings.Total = time.Since(startTotal) }()

	if len(data) == 0 {
		return nil, timings, stageError(StageDecode, ErrMissingImage)
	}

	decodeStart := time.Now()
	img, err := imagecodec.Decode(data)
	timings.ImageDecode = observe(StageDecode, decodeStart)
	if err != nil {
		return nil, timings, stageError(StageDecode, err)
	}

	detectStart := time.Now()
	raw, err := p.detect(ctx, img)
	timings.Detect = observe(StageDetect, detectStart)
	if err != nil {
		return nil, timings, stageError(StageDetect, err)
	}

	filterStart := time.Now()
	set := Filter(raw, p.cfg.TargetClass)
	timings.Filter = observe(StageFilter, filterStart)
	metrics.TargetDetections.Add(float64(set.Count()))
	metrics.DroppedDetections.Add(float64(len(raw) - set.Count()))

	renderStart := time.Now()
	set.Image, err = p.render(img, set.Detections)
	timings.Render = observe(StageRender, renderStart)
	if err != nil {
		return nil, timings, stageError(StageRender, err)
	}

	encodeStart := time.Now()
	encoded, err := imagecodec.Encode(set.Image, imagecodec.JPEG, imagecodec.JPEGQuality(p.cfg.JPEGQuality))
	timings.Encode = observe(StageEncode, encodeStart)
	if err != nil {
		return nil, timings, stageError(StageEncode, err)
	}

	response := models.NewPredictResponse(set, imagecodec.ToBase64Text(encoded))
	return &response, timings, nil
}

func (p *Pipeline) detect(ctx context.Context, img image.Image) ([]models.RawDetection, error) {
	if p.cfg.DetectTimeout <= 0 {
		return wrapInference(p.detector.Detect(ctx, img, p.cfg.ConfThreshold))
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.DetectTimeout)
	defer cancel()

	type result struct {
		dets []models.RawDetection
		err  error
	}
	done := make(chan result, 1)
	go func() {
		dets, err := p.detector.Detect(ctx, img, p.cfg.ConfThreshold)
		done <- result{dets, err}
	}()

	select {
	case r := <-done:
		return wrapInference(r.dets, r.err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w after %v", detections.ErrInference, ErrDetectTimeout, p.cfg.DetectTimeout)
		}
		return nil, ctx.Err()
	}
}

// wrapInference marks backend failures as inference errors unless they
// already carry a more specific cause.
func wrapInference(dets []models.RawDetection, err error) ([]models.RawDetection, error) {
	switch {
	case err == nil:
		return dets, nil
	case errors.Is(err, detections.ErrInference),
		errors.Is(err, detections.ErrPoolBusy),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w", detections.ErrInference, err)
}

func (p *Pipeline) render(img image.Image, dets []models.Detection) (out image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("annotation renderer panicked")
			out, err = nil, fmt.Errorf("%w: %v", ErrRender, r)
		}
	}()
	return p.renderer.Render(img, dets), nil
}

func observe(stage Stage, start time.Time) time.Duration {
	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
	return elapsed
}
