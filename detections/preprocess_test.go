package detections

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func TestPreprocessLetterboxesWideImage(t *testing.T) {
	src := imaging.New(200, 100, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	p := NewPreprocessor(64, 64)
	buf := make([]float32, 3*64*64)

	lb := p.Process(src, buf)

	equals(t, 0.32, lb.gain)
	equals(t, 0, lb.padX)
	equals(t, 16, lb.padY)

	plane := 64 * 64
	fill := float32(LetterboxFill) / 255.0
	// Padding rows at the top carry the fill colour in every channel.
	equals(t, fill, buf[0])
	equals(t, fill, buf[plane])
	equals(t, fill, buf[2*plane])

	// The centre of the canvas is the red source image.
	centre := 32*64 + 32
	equals(t, float32(1), buf[centre])
	equals(t, float32(0), buf[plane+centre])
	equals(t, float32(0), buf[2*plane+centre])
}

func TestPreprocessDoesNotModifySource(t *testing.T) {
	src := imaging.New(10, 30, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	before := imaging.Clone(src)

	NewPreprocessor(32, 32).Process(src, make([]float32, 3*32*32))

	equals(t, before.Pix, src.Pix)
}

func TestLetterboxUnscaleRoundTrip(t *testing.T) {
	p := NewPreprocessor(640, 640)
	_, lb := p.letterbox(image.NewNRGBA(image.Rect(0, 0, 1280, 720)))

	equals(t, 0.5, lb.gain)
	equals(t, 140, lb.padY)

	x, y := lb.unscale(320, 140)
	equals(t, 640.0, x)
	equals(t, 0.0, y)

	x, y = lb.clip(lb.unscale(700, 10))
	equals(t, 1280.0, x)
	equals(t, 0.0, y)
}

func TestCPUFeaturesDoesNotPanic(t *testing.T) {
	for _, f := range CPUFeatures() {
		notEquals(t, "", f)
	}
}
