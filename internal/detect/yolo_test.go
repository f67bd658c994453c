package detect

import (
	"image"
	"testing"
)

// tensor builds a [1, 5, anchors] output buffer from per-anchor boxes.
func tensor(anchors int, boxes [][5]float32) []float32 {
	data := make([]float32, 5*anchors)
	for i, b := range boxes {
		data[i] = b[0]           // cx
		data[anchors+i] = b[1]   // cy
		data[2*anchors+i] = b[2] // w
		data[3*anchors+i] = b[3] // h
		data[4*anchors+i] = b[4] // score
	}
	return data
}

func TestDecodeBoxesThreshold(t *testing.T) {
	data := tensor(3, [][5]float32{
		{100, 100, 40, 20, 0.9},
		{200, 200, 40, 20, 0.1},
		{300, 300, 40, 20, 0.5},
	})

	regions := decodeBoxes(data, 5, 3, 0.25)
	if len(regions) != 2 {
		t.Fatalf("regions = %d, expected 2", len(regions))
	}
	first := regions[0]
	if first.Left != 80 || first.Top != 90 || first.Right != 120 || first.Bottom != 110 {
		t.Fatalf("box = %+v", first)
	}
	if first.Confidence != 0.9 {
		t.Fatalf("confidence = %f", first.Confidence)
	}
}

func TestDecodeBoxesRejectsMalformedTensor(t *testing.T) {
	if got := decodeBoxes([]float32{1, 2, 3}, 5, 100, 0.25); got != nil {
		t.Fatalf("expected nil for short tensor, got %v", got)
	}
	if got := decodeBoxes(nil, 4, 0, 0.25); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestNonMaxSuppressKeepsStrongest(t *testing.T) {
	regions := []Region{
		{Left: 0, Top: 0, Right: 100, Bottom: 50, Confidence: 0.6},
		{Left: 5, Top: 2, Right: 105, Bottom: 52, Confidence: 0.9}, // same plate
		{Left: 300, Top: 300, Right: 360, Bottom: 330, Confidence: 0.5},
	}

	kept := nonMaxSuppress(regions, 0.45)
	if len(kept) != 2 {
		t.Fatalf("kept = %d, expected 2", len(kept))
	}
	if kept[0].Confidence != 0.9 {
		t.Fatalf("strongest not kept first: %+v", kept[0])
	}
	if kept[1].Left != 300 {
		t.Fatalf("distant box dropped: %+v", kept[1])
	}
}

func TestMapToSourceUndoesLetterbox(t *testing.T) {
	// 1280x720 source into 640: scale 0.5, vertical pad (640-360)/2 = 140.
	lb := letterboxed{scale: 0.5, padX: 0, padY: 140, size: 640}
	bounds := image.Rect(0, 0, 1280, 720)

	in := []Region{{Left: 100, Top: 240, Right: 200, Bottom: 290, Confidence: 0.8}}
	out := mapToSource(in, lb, bounds)
	if len(out) != 1 {
		t.Fatalf("out = %d", len(out))
	}
	got := out[0]
	if got.Left != 200 || got.Top != 200 || got.Right != 400 || got.Bottom != 300 {
		t.Fatalf("mapped = %+v", got)
	}
}

func TestMapToSourceClipsAndDropsEmpty(t *testing.T) {
	lb := letterboxed{scale: 1, padX: 0, padY: 0, size: 640}
	bounds := image.Rect(0, 0, 100, 100)

	in := []Region{
		{Left: -20, Top: -20, Right: 50, Bottom: 50, Confidence: 0.8}, // clips to origin
		{Left: 200, Top: 200, Right: 300, Bottom: 300, Confidence: 0.8}, // fully outside
	}
	out := mapToSource(in, lb, bounds)
	if len(out) != 1 {
		t.Fatalf("out = %d, expected 1", len(out))
	}
	if out[0].Left != 0 || out[0].Top != 0 {
		t.Fatalf("clip failed: %+v", out[0])
	}
}

func TestLetterboxGeometry(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1280, 720))
	lb := letterbox(img, 640)

	if lb.scale != 0.5 {
		t.Fatalf("scale = %f", lb.scale)
	}
	if lb.padX != 0 || lb.padY != 140 {
		t.Fatalf("pad = (%d,%d)", lb.padX, lb.padY)
	}
	if len(lb.data) != 3*640*640 {
		t.Fatalf("plane size = %d", len(lb.data))
	}
	// Padding rows hold the neutral gray fill.
	if got := lb.data[0]; got != 114.0/255 {
		t.Fatalf("pad pixel = %f", got)
	}
}
