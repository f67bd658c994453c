// Package detect runs license-plate detection on decoded images using a
// versioned ONNX model. Detection is best-effort: an empty result is valid,
// but inference errors and a missing model are hard failures so sanitization
// is never skipped silently.
package detect

import (
	"fmt"
	"image"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/m3rciful/carpostbot/core/logger"
	"log/slog"
)

// Region is one detection result in source-image pixel space.
type Region struct {
	Left, Top, Right, Bottom int
	Confidence               float32
}

// Width returns the region width in pixels.
func (r Region) Width() int { return r.Right - r.Left }

// Height returns the region height in pixels.
func (r Region) Height() int { return r.Bottom - r.Top }

// Detector finds candidate sensitive regions in an image.
type Detector interface {
	Detect(img image.Image) ([]Region, error)
}

// Config holds detector tunables. Thresholds are configuration, not
// correctness-critical values; the defaults mirror the deployed model.
type Config struct {
	ModelPath           string
	ConfidenceThreshold float32
	IoUThreshold        float32
	InputSize           int
}

const (
	defaultConfidence = 0.25
	defaultIoU        = 0.45
	defaultInputSize  = 640
)

// ONNXDetector wraps one process-wide onnxruntime session. The session is
// loaded once at startup and reused for every inference call; Run is guarded
// by a mutex because the runtime binding makes no concurrency promises.
type ONNXDetector struct {
	cfg Config

	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// NewONNXDetector loads the model and prepares an inference session.
// A missing model artifact is a startup-fatal condition.
func NewONNXDetector(cfg Config) (*ONNXDetector, error) {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = defaultConfidence
	}
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = defaultIoU
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = defaultInputSize
	}

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("detector model artifact %s: %w", cfg.ModelPath, err)
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("onnxruntime init: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{"images"},
		[]string{"output0"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("load detector session: %w", err)
	}

	logger.DET.Info("model loaded",
		slog.String("event", "detect.model.load"),
		slog.String("model", cfg.ModelPath),
		slog.Int("input_size", cfg.InputSize),
	)

	return &ONNXDetector{cfg: cfg, session: session}, nil
}

// Detect runs inference and returns regions above the confidence threshold,
// mapped back to source pixel space. Zero regions is a normal result.
func (d *ONNXDetector) Detect(img image.Image) ([]Region, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}

	lb := letterbox(img, d.cfg.InputSize)

	inputShape := ort.NewShape(1, 3, int64(d.cfg.InputSize), int64(d.cfg.InputSize))
	input, err := ort.NewTensor(inputShape, lb.data)
	if err != nil {
		return nil, fmt.Errorf("detector input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}

	d.mu.Lock()
	err = d.session.Run([]ort.Value{input}, outputs)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("detector inference: %w", err)
	}

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok || out == nil {
		return nil, fmt.Errorf("detector output: unexpected tensor type")
	}
	defer out.Destroy()

	shape := out.GetShape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("detector output: unexpected shape %v", shape)
	}

	regions := decodeBoxes(out.GetData(), int(shape[1]), int(shape[2]), d.cfg.ConfidenceThreshold)
	regions = nonMaxSuppress(regions, d.cfg.IoUThreshold)
	regions = mapToSource(regions, lb, img.Bounds())

	logger.DET.Debug("inference complete",
		slog.String("event", "detect.infer"),
		slog.Int("regions", len(regions)),
	)
	return regions, nil
}

// Close releases the inference session.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			return err
		}
		d.session = nil
	}
	return nil
}
