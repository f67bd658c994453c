package sanitize

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// markMargin is the inset from the bottom-right corner in pixels.
const markMargin = 20

// borderColor outlines redacted blocks so viewers can see redaction occurred.
var borderColor = color.NRGBA{R: 200, G: 200, B: 200, A: 255}

// drawBorder traces a one-pixel outline around rect directly on img.
func drawBorder(img *image.NRGBA, rect image.Rectangle) {
	for x := rect.Min.X; x < rect.Max.X; x++ {
		img.SetNRGBA(x, rect.Min.Y, borderColor)
		img.SetNRGBA(x, rect.Max.Y-1, borderColor)
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		img.SetNRGBA(rect.Min.X, y, borderColor)
		img.SetNRGBA(rect.Max.X-1, y, borderColor)
	}
}

// applyMark composites the semi-transparent brand text onto the bottom-right
// corner with a small drop shadow. Placement depends only on the image
// dimensions and the text, so re-marking an identical image lands on the
// same pixels.
func (s *Sanitizer) applyMark(img *image.NRGBA) (*image.NRGBA, error) {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()

	dc := gg.NewContextForImage(img)

	fontSize := float64(h) * s.cfg.MarkScale
	if fontSize < 8 {
		fontSize = 8
	}
	if s.cfg.FontPath != "" {
		if err := dc.LoadFontFace(s.cfg.FontPath, fontSize); err != nil {
			return nil, err
		}
	} else {
		// Fixed-size fallback face; the mark stays legible but ignores scale.
		dc.SetFontFace(basicfont.Face7x13)
	}

	textW, _ := dc.MeasureString(s.cfg.MarkText)
	x := float64(w) - textW - markMargin
	y := float64(h) - markMargin

	dc.SetRGBA255(0, 0, 0, 120)
	dc.DrawString(s.cfg.MarkText, x+2, y+2)
	dc.SetRGBA255(255, 255, 255, 200)
	dc.DrawString(s.cfg.MarkText, x, y)

	out := dc.Image()
	if nrgba, ok := out.(*image.NRGBA); ok {
		return nrgba, nil
	}
	return nrgbaFrom(out), nil
}

func nrgbaFrom(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x-b.Min.X, y-b.Min.Y, img.At(x, y))
		}
	}
	return out
}
