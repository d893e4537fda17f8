package detections

import (
	"image"
	"image/color"
	"math"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/sys/cpu"
)

var (
	useAVX512 = cpu.X86.HasAVX512
	useAVX2   = cpu.X86.HasAVX2
	useSSE41  = cpu.X86.HasSSE41
	useASIMD  = cpu.ARM64.HasASIMD
)

// CPUFeatures lists the vector extensions available to the onnxruntime
// kernels on this host.
func CPUFeatures() []string {
	var features []string
	if useAVX512 {
		features = append(features, "avx512")
	}
	if useAVX2 {
		features = append(features, "avx2")
	}
	if useSSE41 {
		features = append(features, "sse4.1")
	}
	if useASIMD {
		features = append(features, "asimd")
	}
	return features
}

// letterbox records how an image was scaled and padded into the model input
// so that boxes can be mapped back to source pixels.
type letterbox struct {
	gain       float64
	padX, padY int
	srcW, srcH float64
}

func (l letterbox) unscale(x, y float64) (float64, float64) {
	return (x - float64(l.padX)) / l.gain, (y - float64(l.padY)) / l.gain
}

// clip limits a point to the source image, [0,srcW]x[0,srcH].
func (l letterbox) clip(x, y float64) (float64, float64) {
	return math.Max(0, math.Min(x, l.srcW)), math.Max(0, math.Min(y, l.srcH))
}

// Preprocessor turns an image into a normalised NCHW float tensor.
type Preprocessor struct {
	width, height int
	numWorkers    int
}

func NewPreprocessor(width, height int) *Preprocessor {
	return &Preprocessor{
		width:      width,
		height:     height,
		numWorkers: runtime.GOMAXPROCS(0),
	}
}

// Process letterboxes img into the model input size and writes the RGB planes
// into dst, which must hold 3*width*height values. img is only read.
func (p *Preprocessor) Process(img image.Image, dst []float32) letterbox {
	canvas, lb := p.letterbox(img)
	p.processParallel(canvas, dst)
	return lb
}

func (p *Preprocessor) letterbox(img image.Image) (*image.NRGBA, letterbox) {
	srcW, srcH := img.Bounds().Dx(), img.Bounds().Dy()
	gain := math.Min(float64(p.width)/float64(srcW), float64(p.height)/float64(srcH))

	newW := clampInt(int(math.Round(float64(srcW)*gain)), 1, p.width)
	newH := clampInt(int(math.Round(float64(srcH)*gain)), 1, p.height)
	lb := letterbox{
		gain: gain,
		padX: (p.width - newW) / 2,
		padY: (p.height - newH) / 2,
		srcW: float64(srcW),
		srcH: float64(srcH),
	}

	resized := imaging.Resize(img, newW, newH, imaging.Linear)
	canvas := imaging.New(p.width, p.height, color.NRGBA{LetterboxFill, LetterboxFill, LetterboxFill, 255})
	canvas = imaging.Paste(canvas, resized, image.Pt(lb.padX, lb.padY))
	return canvas, lb
}

func (p *Preprocessor) processParallel(img *image.NRGBA, buffer []float32) {
	channelSize := p.width * p.height
	workers := p.numWorkers
	if workers > p.height {
		workers = p.height
	}
	rowsPerWorker := p.height / workers

	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		startRow := w * rowsPerWorker
		endRow := (w + 1) * rowsPerWorker
		if w == workers-1 {
			endRow = p.height
		}

		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				row := img.Pix[y*img.Stride : y*img.Stride+p.width*4]
				offset := y * p.width
				for x := 0; x < p.width; x++ {
					i := offset + x
					buffer[i] = float32(row[x*4]) / 255.0
					buffer[channelSize+i] = float32(row[x*4+1]) / 255.0
					buffer[channelSize*2+i] = float32(row[x*4+2]) / 255.0
				}
			}
		}(startRow, endRow)
	}

	wg.Wait()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
