package detections

const (
	DefaultInputSize     = 640
	DefaultConfThreshold = 0.5
	DefaultIouThreshold  = 0.7
	MaxDetections        = 300
	LetterboxFill        = 114
)
