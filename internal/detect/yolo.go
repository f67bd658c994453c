package detect

import (
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
)

// letterboxed carries the model input planes plus the geometry needed to map
// detections back to source pixel space.
type letterboxed struct {
	data  []float32 // CHW, RGB, [0,1]
	scale float64
	padX  int
	padY  int
	size  int
}

// letterbox resizes img to fit a size×size square preserving aspect ratio,
// pads the rest with neutral gray, and emits normalized CHW planes.
func letterbox(img image.Image, size int) letterboxed {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	scale := float64(size) / float64(srcW)
	if s := float64(size) / float64(srcH); s < scale {
		scale = s
	}
	newW := int(float64(srcW) * scale)
	newH := int(float64(srcH) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	padX := (size - newW) / 2
	padY := (size - newH) / 2

	resized := imaging.Resize(img, newW, newH, imaging.Linear)
	canvas := imaging.New(size, size, color.NRGBA{R: 114, G: 114, B: 114, A: 255})
	composed := imaging.Paste(canvas, resized, image.Pt(padX, padY))

	data := make([]float32, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		row := composed.Pix[y*composed.Stride : y*composed.Stride+size*4]
		for x := 0; x < size; x++ {
			i := y*size + x
			data[i] = float32(row[x*4]) / 255
			data[plane+i] = float32(row[x*4+1]) / 255
			data[2*plane+i] = float32(row[x*4+2]) / 255
		}
	}

	return letterboxed{data: data, scale: scale, padX: padX, padY: padY, size: size}
}

// decodeBoxes interprets a YOLO single-class output tensor laid out as
// [1, rows, anchors] with rows cx, cy, w, h, score. Boxes below threshold
// are discarded; coordinates stay in letterbox space.
func decodeBoxes(data []float32, rows, anchors int, threshold float32) []Region {
	if rows < 5 || anchors <= 0 || len(data) < rows*anchors {
		return nil
	}
	var regions []Region
	for i := 0; i < anchors; i++ {
		score := data[4*anchors+i]
		if score < threshold {
			continue
		}
		cx := data[i]
		cy := data[anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]
		regions = append(regions, Region{
			Left:       int(cx - w/2),
			Top:        int(cy - h/2),
			Right:      int(cx + w/2),
			Bottom:     int(cy + h/2),
			Confidence: score,
		})
	}
	return regions
}

// nonMaxSuppress keeps the highest-confidence box of each overlapping cluster.
func nonMaxSuppress(regions []Region, iouThreshold float32) []Region {
	if len(regions) <= 1 {
		return regions
	}
	sorted := append([]Region(nil), regions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })

	var kept []Region
	for _, cand := range sorted {
		overlaps := false
		for _, k := range kept {
			if iou(cand, k) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, cand)
		}
	}
	return kept
}

func iou(a, b Region) float32 {
	left := max(a.Left, b.Left)
	top := max(a.Top, b.Top)
	right := min(a.Right, b.Right)
	bottom := min(a.Bottom, b.Bottom)
	if right <= left || bottom <= top {
		return 0
	}
	inter := float32((right - left) * (bottom - top))
	union := float32(a.Width()*a.Height()+b.Width()*b.Height()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// mapToSource translates letterbox-space regions back into source pixel
// coordinates and clips them to the image bounds.
func mapToSource(regions []Region, lb letterboxed, bounds image.Rectangle) []Region {
	if len(regions) == 0 {
		return regions
	}
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		mapped := Region{
			Left:       int(float64(r.Left-lb.padX) / lb.scale),
			Top:        int(float64(r.Top-lb.padY) / lb.scale),
			Right:      int(float64(r.Right-lb.padX) / lb.scale),
			Bottom:     int(float64(r.Bottom-lb.padY) / lb.scale),
			Confidence: r.Confidence,
		}
		if mapped.Left < bounds.Min.X {
			mapped.Left = bounds.Min.X
		}
		if mapped.Top < bounds.Min.Y {
			mapped.Top = bounds.Min.Y
		}
		if mapped.Right > bounds.Max.X {
			mapped.Right = bounds.Max.X
		}
		if mapped.Bottom > bounds.Max.Y {
			mapped.Bottom = bounds.Max.Y
		}
		if mapped.Width() <= 0 || mapped.Height() <= 0 {
			continue
		}
		out = append(out, mapped)
	}
	return out
}
