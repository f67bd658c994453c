package sanitize

import (
	"image"
	"image/color"
	"testing"

	"github.com/m3rciful/carpostbot/internal/detect"
)

// checkerboard gives the blur something to visibly destroy.
func checkerboard(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			if (x/4+y/4)%2 == 0 {
				c = color.NRGBA{A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestSanitizeBlursRegion(t *testing.T) {
	s := New(Config{BlurSigma: 10})
	src := checkerboard(200, 120)
	region := detect.Region{Left: 40, Top: 30, Right: 120, Bottom: 80, Confidence: 0.9}

	out, err := s.Sanitize(src, []detect.Region{region})
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}

	// The high-contrast checker pattern cannot survive a sigma-10 blur: some
	// interior pixel must differ from the source.
	changed := false
	for y := region.Top + 4; y < region.Bottom-4 && !changed; y++ {
		for x := region.Left + 4; x < region.Right-4; x++ {
			if out.NRGBAAt(x, y) != src.NRGBAAt(x, y) {
				changed = true
				break
			}
		}
	}
	if !changed {
		t.Fatal("region pixels unchanged after blur")
	}

	// Pixels well away from the region stay untouched.
	if out.NRGBAAt(190, 110) != src.NRGBAAt(190, 110) {
		t.Fatal("pixel outside region modified")
	}
}

func TestSanitizeDrawsBorder(t *testing.T) {
	s := New(Config{BlurSigma: 5})
	src := checkerboard(100, 100)
	region := detect.Region{Left: 20, Top: 20, Right: 60, Bottom: 50}

	out, err := s.Sanitize(src, []detect.Region{region})
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	want := color.NRGBA{R: 200, G: 200, B: 200, A: 255}
	if got := out.NRGBAAt(20, 20); got != want {
		t.Fatalf("border pixel = %+v, expected %+v", got, want)
	}
	if got := out.NRGBAAt(59, 35); got != want {
		t.Fatalf("right border pixel = %+v, expected %+v", got, want)
	}
}

func TestSanitizeClipsOutOfBoundsRegions(t *testing.T) {
	s := New(Config{BlurSigma: 5})
	src := checkerboard(80, 80)

	regions := []detect.Region{
		{Left: -30, Top: -30, Right: 20, Bottom: 20},   // partially outside
		{Left: 200, Top: 200, Right: 300, Bottom: 300}, // fully outside
	}
	out, err := s.Sanitize(src, regions)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if out.Bounds() != src.Bounds() {
		t.Fatalf("bounds changed: %v", out.Bounds())
	}
}

func TestSanitizeZeroRegionsStillMarks(t *testing.T) {
	s := New(Config{MarkText: "@netsi_car"})
	src := checkerboard(400, 300)

	out, err := s.Sanitize(src, nil)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	// The mark lives in the bottom-right corner; something there must differ.
	changed := false
	for y := 250; y < 300 && !changed; y++ {
		for x := 250; x < 400; x++ {
			if out.NRGBAAt(x, y) != src.NRGBAAt(x, y) {
				changed = true
				break
			}
		}
	}
	if !changed {
		t.Fatal("no mark composited")
	}
}

func TestSanitizeMarkDeterministic(t *testing.T) {
	s := New(Config{MarkText: "@netsi_car"})
	src := checkerboard(320, 240)

	a, err := s.Sanitize(src, nil)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	b, err := s.Sanitize(src, nil)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(a.Pix) != len(b.Pix) {
		t.Fatalf("pix length mismatch: %d vs %d", len(a.Pix), len(b.Pix))
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatalf("output differs at byte %d", i)
		}
	}
}

func TestSanitizeRejectsNilImage(t *testing.T) {
	s := New(Config{})
	if _, err := s.Sanitize(nil, nil); err == nil {
		t.Fatal("expected error for nil image")
	}
}
