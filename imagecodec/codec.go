// Package imagecodec converts between uploaded bytes, in-memory RGB images
// and the text-safe encoding used in responses.
package imagecodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var (
	ErrDecode = errors.New("image could not be decoded")
	ErrEncode = errors.New("image could not be encoded")
)

type Format int

const (
	JPEG Format = iota
	PNG
)

func (f Format) String() string {
	switch f {
	case JPEG:
		return "JPEG"
	case PNG:
		return "PNG"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

const DefaultJPEGQuality = 75

// Decode reads an image in any registered format and returns an opaque RGB
// copy in stored orientation; EXIF rotation is not applied so boxes refer to
// the pixel grid the caller uploaded. Alpha is discarded rather than
// composited, so colour values are kept as stored.
func Decode(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", ErrDecode)
	}

	return toRGB(img), nil
}

func toRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for y := 0; y < dst.Rect.Dy(); y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+dst.Rect.Dx()*4]
		for i := 3; i < len(row); i += 4 {
			row[i] = 0xff
		}
	}
	return dst
}

type encodeOptions struct {
	jpegQuality int
}

type EncodeOption func(*encodeOptions)

// JPEGQuality sets the quality used for JPEG output, 1 to 100.
func JPEGQuality(quality int) EncodeOption {
	return func(o *encodeOptions) {
		o.jpegQuality = quality
	}
}

// Encode serialises img in the given format.
func Encode(img image.Image, format Format, opts ...EncodeOption) ([]byte, error) {
	o := encodeOptions{jpegQuality: DefaultJPEGQuality}
	for _, opt := range opts {
		opt(&o)
	}

	var target imaging.Format
	switch format {
	case JPEG:
		target = imaging.JPEG
	case PNG:
		target = imaging.PNG
	default:
		return nil, fmt.Errorf("%w: unsupported format %v", ErrEncode, format)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, target, imaging.JPEGQuality(o.jpegQuality)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// ToBase64Text encodes data with the standard padded alphabet on one line.
func ToBase64Text(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
