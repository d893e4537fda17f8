// Package annotate draws detection boxes and labels onto images.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/oceanwatch/plastic-detection-service/models"
)

// coordLimit keeps converted coordinates far away from int and 26.6 fixed
// point overflow; anything beyond it is off-canvas anyway.
const coordLimit = 1 << 20

type Style struct {
	Color       color.NRGBA
	LineWidth   int
	LabelOffset int
	Face        font.Face
}

func DefaultStyle() Style {
	return Style{
		Color:       color.NRGBA{R: 255, A: 255},
		LineWidth:   3,
		LabelOffset: 10,
		Face:        basicfont.Face7x13,
	}
}

type Renderer struct {
	style Style
}

func NewRenderer(style Style) *Renderer {
	if style.LineWidth < 1 {
		style.LineWidth = 1
	}
	if style.Face == nil {
		style.Face = basicfont.Face7x13
	}
	return &Renderer{style: style}
}

// Render draws with the default style.
func Render(img image.Image, dets []models.Detection) *image.NRGBA {
	return NewRenderer(DefaultStyle()).Render(img, dets)
}

// Render returns a copy of img with one box and label per detection, drawn
// in slice order. img itself is left untouched. Boxes partly or entirely
// outside the image are clipped.
func (r *Renderer) Render(img image.Image, dets []models.Detection) *image.NRGBA {
	dst := imaging.Clone(img)
	for _, det := range dets {
		r.drawBox(dst, det.Box)
		r.drawLabel(dst, det)
	}
	return dst
}

// Label is the caption drawn above a box.
func Label(det models.Detection) string {
	return fmt.Sprintf("%s %.2f", det.ClassName, det.Confidence)
}

func (r *Renderer) drawBox(dst *image.NRGBA, box [4]float64) {
	x1, y1 := toPixel(box[0]), toPixel(box[1])
	x2, y2 := toPixel(box[2]), toPixel(box[3])

	left, right := minInt(x1, x2), maxInt(x1, x2)
	top, bottom := minInt(y1, y2), maxInt(y1, y2)
	w := r.style.LineWidth

	src := image.NewUniform(r.style.Color)
	bands := []image.Rectangle{
		image.Rect(left, top, right+1, top+w),
		image.Rect(left, bottom-w+1, right+1, bottom+1),
		image.Rect(left, top, left+w, bottom+1),
		image.Rect(right-w+1, top, right+1, bottom+1),
	}
	for _, band := range bands {
		clipped := band.Intersect(dst.Bounds())
		if clipped.Empty() {
			continue
		}
		draw.Draw(dst, clipped, src, image.Point{}, draw.Src)
	}
}

func (r *Renderer) drawLabel(dst *image.NRGBA, det models.Detection) {
	x := toPixel(det.Box[0])
	y := toPixel(det.Box[1]) - r.style.LabelOffset
	ascent := r.style.Face.Metrics().Ascent.Ceil()

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(r.style.Color),
		Face: r.style.Face,
		Dot:  fixed.P(x, y+ascent),
	}
	d.DrawString(Label(det))
}

func toPixel(v float64) int {
	switch {
	case math.IsNaN(v):
		return -coordLimit
	case v > coordLimit:
		return coordLimit
	case v < -coordLimit:
		return -coordLimit
	}
	return int(math.Floor(v))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
