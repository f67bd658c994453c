package pipeline

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/m3rciful/carpostbot/internal/apperr"
	"github.com/m3rciful/carpostbot/internal/artifact"
	"github.com/m3rciful/carpostbot/internal/detect"
	"github.com/m3rciful/carpostbot/internal/sanitize"
)

type stubDetector struct {
	regions []detect.Region
	err     error
}

func (d *stubDetector) Detect(image.Image) ([]detect.Region, error) {
	return d.regions, d.err
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 120, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 120; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func newTestPipeline(t *testing.T, det detect.Detector) (*Pipeline, *artifact.Store) {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return New(det, sanitize.New(sanitize.Config{BlurSigma: 5}), store), store
}

func TestProcessProducesArtifact(t *testing.T) {
	p, store := newTestPipeline(t, &stubDetector{
		regions: []detect.Region{{Left: 10, Top: 10, Right: 60, Bottom: 40, Confidence: 0.9}},
	})

	h, err := p.Process(bytes.NewReader(testJPEG(t)), 2)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if h.Ordinal != 2 {
		t.Fatalf("ordinal = %d", h.Ordinal)
	}
	path, err := p.Path(h)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("artifact is not a valid jpeg: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("store len = %d", store.Len())
	}
}

func TestProcessDetectorFailureYieldsNoArtifact(t *testing.T) {
	p, store := newTestPipeline(t, &stubDetector{err: errors.New("session exploded")})

	_, err := p.Process(bytes.NewReader(testJPEG(t)), 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, apperr.ErrDetection) {
		t.Fatalf("error = %v, expected detection failure", err)
	}
	var app *apperr.Error
	if !errors.As(err, &app) || app.UserMessage() == "" {
		t.Fatalf("missing user message: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("store len = %d after failure", store.Len())
	}
}

func TestProcessRejectsGarbageInput(t *testing.T) {
	p, store := newTestPipeline(t, &stubDetector{})

	_, err := p.Process(bytes.NewReader([]byte("not an image")), 0)
	if !errors.Is(err, apperr.ErrDetection) {
		t.Fatalf("error = %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("store len = %d", store.Len())
	}
}

func TestProcessFileRemovesTempOnSuccess(t *testing.T) {
	p, _ := newTestPipeline(t, &stubDetector{})

	tmp := filepath.Join(t.TempDir(), "incoming.jpg")
	if err := os.WriteFile(tmp, testJPEG(t), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	if _, err := p.ProcessFile(tmp, 0); err != nil {
		t.Fatalf("process file: %v", err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatalf("temp file survived success: %v", err)
	}
}

func TestProcessFileRemovesTempOnFailure(t *testing.T) {
	p, store := newTestPipeline(t, &stubDetector{err: errors.New("boom")})

	tmp := filepath.Join(t.TempDir(), "incoming.jpg")
	if err := os.WriteFile(tmp, testJPEG(t), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	if _, err := p.ProcessFile(tmp, 0); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatalf("temp file survived failure: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("store len = %d", store.Len())
	}
}
