// Package generate produces listing captions and blog posts through the
// Gemini backend. The backend is a black box to the workflow: text in,
// formatted text or a generation failure out.
package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/m3rciful/carpostbot/core/logger"
	"github.com/m3rciful/carpostbot/core/telegram/format"
	"github.com/m3rciful/carpostbot/internal/apperr"
	"log/slog"
)

// Generator is what the workflow depends on; tests substitute stubs.
type Generator interface {
	// ListingCaption renders raw vehicle details into formatted listing copy.
	ListingCaption(ctx context.Context, raw string) (string, error)
	// BlogPost renders a topic into a long-form post.
	BlogPost(ctx context.Context, topic string) (string, error)
}

// Config configures the Gemini-backed generator.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// contentClient is the slice of the genai SDK the generator uses.
type contentClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements Generator over google.golang.org/genai.
type Gemini struct {
	client  contentClient
	model   string
	timeout time.Duration
}

// NewGemini builds the generator; the underlying client is created once and
// shared read-only across concurrent calls.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gemini{client: client.Models, model: cfg.Model, timeout: timeout}, nil
}

// ListingCaption implements Generator.
func (g *Gemini) ListingCaption(ctx context.Context, raw string) (string, error) {
	return g.generate(ctx, raw, listingInstruction, "listing")
}

// BlogPost implements Generator.
func (g *Gemini) BlogPost(ctx context.Context, topic string) (string, error) {
	return g.generate(ctx, topic, blogInstruction, "blog")
}

func (g *Gemini) generate(ctx context.Context, userText, instruction, preset string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.GenerateContent(ctx, g.model,
		genai.Text(userText),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0.2),
			ThinkingConfig:    &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
		},
	)
	if err != nil {
		logger.GEN.Error("generation failed",
			slog.String("event", "generate.call"),
			slog.String("status", "fail"),
			slog.String("mode", preset),
			slog.String("model", g.model),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
			slog.String("err", err.Error()),
		)
		if ctx.Err() != nil {
			return "", apperr.Generation("The writer took too long. Please try again.", ctx.Err())
		}
		return "", apperr.Generation("The writer is unavailable. Please try again.", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", apperr.Generation("The writer returned nothing. Please try again.", nil)
	}
	if format.HasDisallowedTags(text) {
		// Tags outside the allowed set would make Telegram reject the whole
		// message at send time. Demote such copy to plain text here.
		logger.GEN.Warn("generation markup demoted",
			slog.String("event", "generate.markup"),
			slog.String("mode", preset),
		)
		text = format.EscapeHTML(format.StripTags(text))
	}

	logger.GEN.Info("generation complete",
		slog.String("event", "generate.call"),
		slog.String("status", "ok"),
		slog.String("mode", preset),
		slog.String("model", g.model),
		slog.Int("count", len(text)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return text, nil
}
