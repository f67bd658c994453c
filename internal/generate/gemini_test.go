package generate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/m3rciful/carpostbot/internal/apperr"
)

type stubClient struct {
	lastModel       string
	lastInstruction string
	lastUserText    string

	text  string
	err   error
	block bool
}

func respondWith(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func (s *stubClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.lastModel = model
	if config != nil && config.SystemInstruction != nil && len(config.SystemInstruction.Parts) > 0 {
		s.lastInstruction = config.SystemInstruction.Parts[0].Text
	}
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		s.lastUserText = contents[0].Parts[0].Text
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return respondWith(s.text), nil
}

func newTestGemini(stub *stubClient) *Gemini {
	return &Gemini{client: stub, model: "test-model", timeout: time.Second}
}

func TestListingCaptionUsesListingPreset(t *testing.T) {
	stub := &stubClient{text: "  <b>2018 Corolla</b>  "}
	g := newTestGemini(stub)

	got, err := g.ListingCaption(context.Background(), "corolla 2018 silver")
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if got != "<b>2018 Corolla</b>" {
		t.Fatalf("caption = %q, expected trimmed text", got)
	}
	if stub.lastModel != "test-model" {
		t.Fatalf("model = %q", stub.lastModel)
	}
	if stub.lastUserText != "corolla 2018 silver" {
		t.Fatalf("user text = %q", stub.lastUserText)
	}
	if stub.lastInstruction != listingInstruction {
		t.Fatal("listing call did not carry the listing instruction")
	}
}

func TestBlogPostUsesBlogPreset(t *testing.T) {
	stub := &stubClient{text: "post body"}
	g := newTestGemini(stub)

	if _, err := g.BlogPost(context.Background(), "rainy season driving"); err != nil {
		t.Fatalf("blog: %v", err)
	}
	if stub.lastInstruction != blogInstruction {
		t.Fatal("blog call did not carry the blog instruction")
	}
}

func TestGenerateDemotesDisallowedMarkup(t *testing.T) {
	stub := &stubClient{text: `<div class="x"><b>2018 Corolla</b> 45k km</div>`}
	g := newTestGemini(stub)

	got, err := g.ListingCaption(context.Background(), "corolla 2018")
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	// Copy carrying tags outside the allowed set would be rejected by
	// Telegram wholesale, so it is delivered as plain text instead.
	if strings.Contains(got, "<") || strings.Contains(got, ">") {
		t.Fatalf("caption = %q, expected tag-free text", got)
	}
	if !strings.Contains(got, "2018 Corolla") {
		t.Fatalf("caption = %q, lost the copy itself", got)
	}
}

func TestGenerateKeepsAllowedMarkup(t *testing.T) {
	stub := &stubClient{text: "<b>2018 Corolla</b> <i>clean</i>"}
	g := newTestGemini(stub)

	got, err := g.ListingCaption(context.Background(), "corolla 2018")
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if got != "<b>2018 Corolla</b> <i>clean</i>" {
		t.Fatalf("caption = %q, allowed tags must survive", got)
	}
}

func TestGenerateTimeout(t *testing.T) {
	g := &Gemini{client: &stubClient{block: true}, model: "test-model", timeout: 20 * time.Millisecond}

	_, err := g.ListingCaption(context.Background(), "details")
	if !errors.Is(err, apperr.ErrGeneration) {
		t.Fatalf("error = %v, expected generation failure", err)
	}
	var app *apperr.Error
	if !errors.As(err, &app) {
		t.Fatalf("error type = %T", err)
	}
	if !strings.Contains(app.UserMessage(), "too long") {
		t.Fatalf("user message = %q", app.UserMessage())
	}
}

func TestGenerateBackendError(t *testing.T) {
	g := newTestGemini(&stubClient{err: errors.New("quota exceeded")})

	_, err := g.BlogPost(context.Background(), "topic")
	if !errors.Is(err, apperr.ErrGeneration) {
		t.Fatalf("error = %v", err)
	}
}

func TestGenerateEmptyResponse(t *testing.T) {
	g := newTestGemini(&stubClient{text: "   "})

	_, err := g.ListingCaption(context.Background(), "details")
	if !errors.Is(err, apperr.ErrGeneration) {
		t.Fatalf("error = %v", err)
	}
}
