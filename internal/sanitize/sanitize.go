// Package sanitize obscures detected regions and brands the result. Blur is
// deliberately irreversible at viewing resolution; a thin border makes the
// redaction visible rather than hidden.
package sanitize

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/m3rciful/carpostbot/internal/detect"
)

// Config holds sanitizer tunables with deployed defaults.
type Config struct {
	// BlurSigma is the Gaussian blur strength applied to each region.
	BlurSigma float64
	// MarkText is composited onto the bottom-right corner of every image.
	MarkText string
	// MarkScale sizes the mark relative to image height.
	MarkScale float64
	// FontPath locates a TTF for the mark; empty falls back to a basic face.
	FontPath string
}

const (
	defaultBlurSigma = 30
	defaultMarkScale = 0.035
)

// Sanitizer redacts regions and applies the brand mark.
type Sanitizer struct {
	cfg Config
}

// New returns a Sanitizer with defaults applied.
func New(cfg Config) *Sanitizer {
	if cfg.BlurSigma <= 0 {
		cfg.BlurSigma = defaultBlurSigma
	}
	if cfg.MarkScale <= 0 {
		cfg.MarkScale = defaultMarkScale
	}
	return &Sanitizer{cfg: cfg}
}

// Sanitize blurs every in-bounds region, outlines it, and composites the
// brand mark. It always produces an output image: zero regions still get the
// mark. It fails only on unusable input.
func (s *Sanitizer) Sanitize(img image.Image, regions []detect.Region) (*image.NRGBA, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("empty image %dx%d", bounds.Dx(), bounds.Dy())
	}

	out := imaging.Clone(img)

	for _, r := range regions {
		rect := clipRegion(r, out.Bounds())
		if rect.Empty() {
			continue
		}
		roi := imaging.Crop(out, rect)
		blurred := imaging.Blur(roi, s.cfg.BlurSigma)
		out = imaging.Paste(out, blurred, rect.Min)
		drawBorder(out, rect)
	}

	if s.cfg.MarkText != "" {
		marked, err := s.applyMark(out)
		if err != nil {
			return nil, fmt.Errorf("brand mark: %w", err)
		}
		out = marked
	}

	return out, nil
}

// clipRegion intersects a region with the image bounds. Regions fully outside
// collapse to the empty rectangle and are skipped by the caller.
func clipRegion(r detect.Region, bounds image.Rectangle) image.Rectangle {
	rect := image.Rect(r.Left, r.Top, r.Right, r.Bottom)
	return rect.Intersect(bounds)
}
