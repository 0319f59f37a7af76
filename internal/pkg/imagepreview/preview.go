// Package imagepreview validates uploaded establishment photos and renders
// the small JPEG preview shown next to the upload area.
package imagepreview

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	// WebP uploads from phones.
	_ "golang.org/x/image/webp"
)

const (
	defaultMaxSide = 300
	defaultQuality = 75
)

// Previewer implements ports.ImagePreviewer.
type Previewer struct {
	maxSide int
	quality int
}

// New creates a Previewer producing JPEGs whose longer side is at most
// maxSide pixels. Zero values pick the defaults.
func New(maxSide, quality int) *Previewer {
	if maxSide <= 0 {
		maxSide = defaultMaxSide
	}
	if quality <= 0 || quality > 100 {
		quality = defaultQuality
	}
	return &Previewer{maxSide: maxSide, quality: quality}
}

// Inspect sniffs data and returns its content type; anything but an image is rejected.
func (p *Previewer) Inspect(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%s is not an image", mt.String())
	}
	return mt.String(), nil
}

// Preview decodes data and renders a downscaled JPEG. Images already within
// bounds are re-encoded at their own size.
func (p *Previewer) Preview(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w > p.maxSide || h > p.maxSide {
		img = imaging.Fit(img, p.maxSide, p.maxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.quality)); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// Bounds returns the pixel size of an encoded image.
func Bounds(data []byte) (image.Point, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Point{}, err
	}
	return image.Point{X: cfg.Width, Y: cfg.Height}, nil
}
