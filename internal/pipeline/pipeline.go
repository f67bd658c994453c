// Package pipeline orchestrates processing of one submitted photo:
// decode, detect, sanitize, encode, persist. Raw input bytes never survive
// the call; temporary storage is released on every exit path.
package pipeline

import (
	"bytes"
	"image/jpeg"
	"io"
	"os"
	"time"

	"github.com/disintegration/imaging"

	"github.com/m3rciful/carpostbot/core/logger"
	"github.com/m3rciful/carpostbot/internal/apperr"
	"github.com/m3rciful/carpostbot/internal/artifact"
	"github.com/m3rciful/carpostbot/internal/detect"
	"github.com/m3rciful/carpostbot/internal/sanitize"
	"log/slog"
)

// jpegQuality matches the encoder setting used for published photos.
const jpegQuality = 95

// Pipeline wires the detector, sanitizer and artifact store.
type Pipeline struct {
	detector  detect.Detector
	sanitizer *sanitize.Sanitizer
	store     *artifact.Store
}

// New assembles a pipeline from its collaborators.
func New(detector detect.Detector, sanitizer *sanitize.Sanitizer, store *artifact.Store) *Pipeline {
	return &Pipeline{detector: detector, sanitizer: sanitizer, store: store}
}

// Process consumes the raw photo stream and returns the processed artifact
// handle. ordinal fixes the photo's position inside the final album.
// On any failure no artifact is produced and nothing raw is left behind.
func (p *Pipeline) Process(raw io.Reader, ordinal int) (artifact.Handle, error) {
	start := time.Now()

	data, err := io.ReadAll(raw)
	if err != nil {
		return artifact.Handle{}, apperr.Detection("Failed to read the photo.", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return artifact.Handle{}, apperr.Detection("Could not decode the photo.", err)
	}

	regions, err := p.detector.Detect(img)
	if err != nil {
		return artifact.Handle{}, apperr.Detection("Plate detection failed for this photo.", err)
	}

	clean, err := p.sanitizer.Sanitize(img, regions)
	if err != nil {
		return artifact.Handle{}, apperr.Sanitization("Could not sanitize the photo.", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, clean, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return artifact.Handle{}, apperr.Sanitization("Could not encode the processed photo.", err)
	}

	handle, err := p.store.Put(buf.Bytes(), ordinal)
	if err != nil {
		return artifact.Handle{}, apperr.Sanitization("Could not persist the processed photo.", err)
	}

	logger.PIPE.Info("photo processed",
		slog.String("event", "pipeline.process"),
		slog.String("status", "ok"),
		slog.String("artifact_id", handle.ID),
		slog.Int("ordinal", ordinal),
		slog.Int("regions", len(regions)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return handle, nil
}

// ProcessFile processes a downloaded temp file and removes it before
// returning, success or not.
func (p *Pipeline) ProcessFile(path string, ordinal int) (artifact.Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		_ = os.Remove(path)
		return artifact.Handle{}, apperr.Detection("Failed to open the downloaded photo.", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(path)
	}()
	return p.Process(f, ordinal)
}

// Release drops the given artifacts' storage.
func (p *Pipeline) Release(handles ...artifact.Handle) {
	p.store.Release(handles...)
}

// Path resolves an artifact handle for publishing.
func (p *Pipeline) Path(h artifact.Handle) (string, error) {
	return p.store.Path(h)
}
