package publish

import (
	"errors"
	"fmt"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/carpostbot/internal/apperr"
	"github.com/m3rciful/carpostbot/internal/artifact"
)

type fakeSender struct {
	calls []tele.Album
	opts  [][]interface{}
	errs  []error
}

func (f *fakeSender) SendAlbum(to tele.Recipient, a tele.Album, opts ...interface{}) ([]tele.Message, error) {
	f.calls = append(f.calls, a)
	f.opts = append(f.opts, opts)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return nil, nil
}

type fakePaths struct{}

func (fakePaths) Path(h artifact.Handle) (string, error) {
	if h.ID == "" {
		return "", errors.New("unknown artifact")
	}
	return "/tmp/" + h.ID + ".jpg", nil
}

func handles(n int) []artifact.Handle {
	hs := make([]artifact.Handle, n)
	for i := range hs {
		hs[i] = artifact.Handle{ID: fmt.Sprintf("h%d", i), Ordinal: i}
	}
	return hs
}

func TestPublishOrdersByOrdinalCaptionFirstOnly(t *testing.T) {
	sender := &fakeSender{}
	p := New(sender, fakePaths{}, "@channel")

	// Shuffled arrival order; ordinals decide the album order.
	hs := []artifact.Handle{
		{ID: "c", Ordinal: 2},
		{ID: "a", Ordinal: 0},
		{ID: "b", Ordinal: 1},
	}
	if err := p.Publish("<b>caption</b>", hs); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("sends = %d", len(sender.calls))
	}

	album := sender.calls[0]
	wantFiles := []string{"/tmp/a.jpg", "/tmp/b.jpg", "/tmp/c.jpg"}
	for i, item := range album {
		photo, ok := item.(*tele.Photo)
		if !ok {
			t.Fatalf("item %d is %T", i, item)
		}
		if photo.FileLocal != wantFiles[i] {
			t.Fatalf("item %d file = %s, expected %s", i, photo.FileLocal, wantFiles[i])
		}
		if i == 0 && photo.Caption != "<b>caption</b>" {
			t.Fatalf("first caption = %q", photo.Caption)
		}
		if i > 0 && photo.Caption != "" {
			t.Fatalf("item %d carries caption %q", i, photo.Caption)
		}
	}
}

func TestPublishRefusesEmptyAndOversized(t *testing.T) {
	sender := &fakeSender{}
	p := New(sender, fakePaths{}, "@channel")

	if err := p.Publish("c", nil); !errors.Is(err, apperr.ErrPublish) {
		t.Fatalf("empty batch error = %v", err)
	}
	if err := p.Publish("c", handles(MaxAlbumSize+1)); !errors.Is(err, apperr.ErrPublish) {
		t.Fatalf("oversized batch error = %v", err)
	}
	if len(sender.calls) != 0 {
		t.Fatalf("transport called %d times for refused batches", len(sender.calls))
	}

	if err := p.Publish("c", handles(MaxAlbumSize)); err != nil {
		t.Fatalf("cap-sized batch refused: %v", err)
	}
}

func TestPublishTransportFailure(t *testing.T) {
	sender := &fakeSender{errs: []error{errors.New("gateway timeout")}}
	p := New(sender, fakePaths{}, "@channel")

	err := p.Publish("c", handles(2))
	if !errors.Is(err, apperr.ErrPublish) {
		t.Fatalf("error = %v", err)
	}
	var app *apperr.Error
	if !errors.As(err, &app) || app.UserMessage() == "" {
		t.Fatalf("missing user message: %v", err)
	}
}

func TestPublishRetriesPlainOnMarkupRejection(t *testing.T) {
	sender := &fakeSender{errs: []error{&tele.Error{Code: 400, Description: "can't parse entities"}}}
	p := New(sender, fakePaths{}, "@channel")

	if err := p.Publish("<b>bold</b> & more", handles(1)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sender.calls) != 2 {
		t.Fatalf("sends = %d, expected HTML attempt plus plain retry", len(sender.calls))
	}
	retry := sender.calls[1][0].(*tele.Photo)
	if retry.Caption != "bold & more" {
		t.Fatalf("plain caption = %q", retry.Caption)
	}
}

func TestPublishResolverFailure(t *testing.T) {
	sender := &fakeSender{}
	p := New(sender, fakePaths{}, "@channel")

	err := p.Publish("c", []artifact.Handle{{ID: ""}})
	if !errors.Is(err, apperr.ErrPublish) {
		t.Fatalf("error = %v", err)
	}
	if len(sender.calls) != 0 {
		t.Fatal("transport called despite missing artifact")
	}
}
