package detections

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/oceanwatch/plastic-detection-service/metrics"
	"github.com/oceanwatch/plastic-detection-service/models"
)

type ModelSession struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
}

func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	if m.Input != nil {
		m.Input.Destroy()
	}
	if m.Output != nil {
		m.Output.Destroy()
	}
}

// ModelSpec is the tensor layout of a YOLO detection model.
type ModelSpec struct {
	Path        string
	InputName   string
	OutputName  string
	InputWidth  int
	InputHeight int
	InputShape  ort.Shape
	OutputShape ort.Shape
}

func (s ModelSpec) layout() outputLayout {
	return outputLayout{
		numClasses: int(s.OutputShape[1]) - 4,
		numAnchors: int(s.OutputShape[2]),
	}
}

// InspectModel reads input and output shapes from the model file. Only
// static shapes are supported.
func InspectModel(modelPath string) (ModelSpec, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return ModelSpec{}, fmt.Errorf("read model io info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return ModelSpec{}, fmt.Errorf("expected 1 input and at least 1 output, got %d and %d", len(inputs), len(outputs))
	}

	in, out := inputs[0], outputs[0]
	if len(in.Dimensions) != 4 || len(out.Dimensions) != 3 {
		return ModelSpec{}, fmt.Errorf("unexpected tensor ranks: input %v, output %v", in.Dimensions, out.Dimensions)
	}

	inShape := ort.NewShape(1, 3, orDefault(in.Dimensions[2], DefaultInputSize), orDefault(in.Dimensions[3], DefaultInputSize))
	for _, d := range out.Dimensions[1:] {
		if d <= 0 {
			return ModelSpec{}, fmt.Errorf("dynamic output shape %v is not supported, export the model with a fixed image size", out.Dimensions)
		}
	}
	if out.Dimensions[1] <= 4 {
		return ModelSpec{}, fmt.Errorf("output %v has no class scores", out.Dimensions)
	}

	return ModelSpec{
		Path:        modelPath,
		InputName:   in.Name,
		OutputName:  out.Name,
		InputWidth:  int(inShape[3]),
		InputHeight: int(inShape[2]),
		InputShape:  inShape,
		OutputShape: ort.NewShape(1, out.Dimensions[1], out.Dimensions[2]),
	}, nil
}

func orDefault(dim, def int64) int64 {
	if dim <= 0 {
		return def
	}
	return dim
}

// NewModelSession creates a session with its own bound input and output
// tensors.
func NewModelSession(spec ModelSpec, threads int) (*ModelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	options.SetIntraOpNumThreads(threads)
	options.SetInterOpNumThreads(1)

	inputTensor, err := ort.NewEmptyTensor[float32](spec.InputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](spec.OutputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		spec.Path,
		[]string{spec.InputName},
		[]string{spec.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ModelSession{
		Session: session,
		Input:   inputTensor,
		Output:  outputTensor,
	}, nil
}

type ONNXConfig struct {
	ModelPath    string
	LabelsPath   string
	PoolSize     int
	IouThreshold float32
}

// ONNXDetector runs a YOLO-style ONNX model through a pool of sessions.
type ONNXDetector struct {
	spec         ModelSpec
	labels       map[int]string
	pool         *ModelSessionPool
	preprocessor *Preprocessor
	iouThreshold float32
}

func NewONNXDetector(cfg ONNXConfig) (*ONNXDetector, error) {
	spec, err := InspectModel(cfg.ModelPath)
	if err != nil {
		return nil, err
	}

	labels, err := ResolveLabels(cfg.ModelPath, cfg.LabelsPath)
	if err != nil {
		return nil, err
	}
	if classes := spec.layout().numClasses; classes != len(labels) {
		log.WithFields(log.Fields{
			"model_classes": classes,
			"labels":        len(labels),
		}).Warn("label count does not match model output")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	threads := runtime.NumCPU() / poolSize
	if threads < 1 {
		threads = 1
	}

	pool, err := NewModelSessionPool(func() (*ModelSession, error) {
		return NewModelSession(spec, threads)
	}, poolSize)
	if err != nil {
		return nil, err
	}

	iou := cfg.IouThreshold
	if iou <= 0 {
		iou = DefaultIouThreshold
	}

	return &ONNXDetector{
		spec:         spec,
		labels:       labels,
		pool:         pool,
		preprocessor: NewPreprocessor(spec.InputWidth, spec.InputHeight),
		iouThreshold: iou,
	}, nil
}

func (d *ONNXDetector) Labels() map[int]string {
	labels := make(map[int]string, len(d.labels))
	for id, name := range d.labels {
		labels[id] = name
	}
	return labels
}

func (d *ONNXDetector) label(classID int) string {
	if name, ok := d.labels[classID]; ok {
		return name
	}
	return strconv.Itoa(classID)
}

func (d *ONNXDetector) Spec() ModelSpec { return d.spec }

func (d *ONNXDetector) Pool() *ModelSessionPool { return d.pool }

func (d *ONNXDetector) Detect(ctx context.Context, img image.Image, threshold float32) ([]models.RawDetection, error) {
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInference)
	}

	session, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	healthy := true
	defer func() { d.pool.Release(session, healthy) }()

	prepStart := time.Now()
	lb := d.preprocessor.Process(img, session.Input.GetData())
	metrics.StageDuration.WithLabelValues("preprocess").Observe(time.Since(prepStart).Seconds())

	inferStart := time.Now()
	if err := session.Session.Run(); err != nil {
		healthy = false
		return nil, fmt.Errorf("%w: model inference: %v", ErrInference, err)
	}
	metrics.StageDuration.WithLabelValues("inference").Observe(time.Since(inferStart).Seconds())

	postStart := time.Now()
	candidates := decodeOutput(session.Output.GetData(), d.spec.layout(), threshold, lb, d.label)
	dets := nonMaxSuppression(candidates, d.iouThreshold, MaxDetections)
	metrics.StageDuration.WithLabelValues("postprocess").Observe(time.Since(postStart).Seconds())

	return dets, nil
}

func (d *ONNXDetector) Close() {
	d.pool.Destroy()
}
