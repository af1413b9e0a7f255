// Package vision prepares captured frames for upload.
//
// Frames are downscaled to a bounded width and re-encoded as JPEG so the
// classification request stays small. The step is lossy but
// deterministic for a given input and options.
package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"
)

// Defaults for Options.
const (
	DefaultMaxWidth = 512
	DefaultQuality  = 60
	MIMETypeJPEG    = "image/jpeg"
)

// ErrEmptyImage is returned for nil or zero-sized frames.
var ErrEmptyImage = errors.New("vision: empty image")

// Options controls preprocessing.
type Options struct {
	MaxWidth int // Frames wider than this are scaled down
	Quality  int // JPEG quality 1-100
}

// DefaultOptions returns a 512px, quality 60 setup.
func DefaultOptions() Options {
	return Options{MaxWidth: DefaultMaxWidth, Quality: DefaultQuality}
}

// Payload is an encoded frame ready for the classification request.
type Payload struct {
	Data     []byte // Encoded image bytes
	MIMEType string
	Width    int
	Height   int
}

// Base64 returns the payload in standard base64.
func (p *Payload) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Data)
}

// ScaledSize returns the output dimensions for a w x h frame under
// maxWidth. Aspect ratio is preserved and height is rounded to nearest.
func ScaledSize(w, h, maxWidth int) (int, int) {
	if maxWidth <= 0 || w <= maxWidth {
		return w, h
	}
	nh := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
	if nh < 1 {
		nh = 1
	}
	return maxWidth, nh
}

// Resize scales img down to maxWidth. Frames already narrow enough are
// returned unchanged.
func Resize(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	w, h := ScaledSize(b.Dx(), b.Dy(), maxWidth)
	if w == b.Dx() && h == b.Dy() {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Encode encodes img as JPEG at the given quality.
func Encode(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("vision: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Preprocess downsizes and encodes a frame.
func Preprocess(img image.Image, opts Options) (*Payload, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	scaled := Resize(img, opts.MaxWidth)
	data, err := Encode(scaled, opts.Quality)
	if err != nil {
		return nil, err
	}

	b := scaled.Bounds()
	return &Payload{
		Data:     data,
		MIMEType: MIMETypeJPEG,
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

// Decode decodes an encoded image using the registered decoders.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("vision: decode image: %w", err)
	}
	return img, nil
}
