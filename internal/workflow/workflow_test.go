package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/carpostbot/internal/apperr"
	"github.com/m3rciful/carpostbot/internal/artifact"
	"github.com/m3rciful/carpostbot/internal/session"
)

type fakeCtx struct {
	tele.Context
	user  *tele.User
	chat  *tele.Chat
	text  string
	msg   *tele.Message
	store map[string]interface{}
	sent  []interface{}
}

func newCtx(userID int64, text string) *fakeCtx {
	return &fakeCtx{
		user:  &tele.User{ID: userID},
		chat:  &tele.Chat{ID: userID * 10},
		text:  text,
		msg:   &tele.Message{},
		store: make(map[string]interface{}),
	}
}

func newPhotoCtx(userID int64) *fakeCtx {
	c := newCtx(userID, "")
	c.msg = &tele.Message{Photo: &tele.Photo{File: tele.File{FileID: "remote"}}}
	return c
}

func (c *fakeCtx) Sender() *tele.User          { return c.user }
func (c *fakeCtx) Chat() *tele.Chat            { return c.chat }
func (c *fakeCtx) Text() string                { return c.text }
func (c *fakeCtx) Message() *tele.Message      { return c.msg }
func (c *fakeCtx) Update() tele.Update         { return tele.Update{} }
func (c *fakeCtx) Get(k string) interface{}    { return c.store[k] }
func (c *fakeCtx) Set(k string, v interface{}) { c.store[k] = v }

func (c *fakeCtx) Send(what interface{}, opts ...interface{}) error {
	c.sent = append(c.sent, what)
	return nil
}

func (c *fakeCtx) Callback() *tele.Callback {
	v, _ := c.store["callback"].(*tele.Callback)
	return v
}

func (c *fakeCtx) lastText(t *testing.T) string {
	t.Helper()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if s, ok := c.sent[i].(string); ok {
			return s
		}
	}
	t.Fatal("no text sent")
	return ""
}

type stubGen struct {
	caption string
	post    string
	err     error
	calls   int
	block   func() // runs before returning, lets tests hold a call in flight
}

func (g *stubGen) ListingCaption(ctx context.Context, raw string) (string, error) {
	g.calls++
	if g.block != nil {
		g.block()
	}
	if g.err != nil {
		return "", g.err
	}
	return g.caption, nil
}

func (g *stubGen) BlogPost(ctx context.Context, topic string) (string, error) {
	g.calls++
	if g.block != nil {
		g.block()
	}
	if g.err != nil {
		return "", g.err
	}
	return g.post, nil
}

type stubProcessor struct {
	err      error
	next     int
	released []artifact.Handle
}

func (p *stubProcessor) ProcessFile(path string, ordinal int) (artifact.Handle, error) {
	if p.err != nil {
		return artifact.Handle{}, p.err
	}
	p.next++
	return artifact.Handle{ID: fmt.Sprintf("art-%d", p.next), Ordinal: ordinal}, nil
}

func (p *stubProcessor) Release(handles ...artifact.Handle) {
	p.released = append(p.released, handles...)
}

func (p *stubProcessor) Path(h artifact.Handle) (string, error) {
	return "/tmp/" + h.ID + ".jpg", nil
}

type stubPublisher struct {
	err     error
	batches [][]artifact.Handle
	caption string
	block   func() // runs before returning, lets tests hold a publish in flight
}

func (p *stubPublisher) Publish(caption string, handles []artifact.Handle) error {
	if p.block != nil {
		p.block()
	}
	if p.err != nil {
		return p.err
	}
	p.caption = caption
	p.batches = append(p.batches, handles)
	return nil
}

func newTestManager(t *testing.T, gen *stubGen, proc *stubProcessor, pub *stubPublisher) *Manager {
	t.Helper()
	m := New(session.NewRegistry(), gen, proc, pub, t.TempDir())
	m.fetch = func(c tele.Context, file *tele.File) (string, error) {
		return "incoming.jpg", nil
	}
	return m
}

func sendPhotos(t *testing.T, m *Manager, userID int64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := m.PhotoHandler(newPhotoCtx(userID)); err != nil {
			t.Fatalf("photo %d: %v", i, err)
		}
	}
}

func TestListingHappyPath(t *testing.T) {
	gen := &stubGen{caption: "<b>2018 Corolla</b>"}
	proc := &stubProcessor{}
	pub := &stubPublisher{}
	m := newTestManager(t, gen, proc, pub)

	// Entry action puts the user into the subject stage.
	if err := m.EntryHandler(newCtx(1, btnNewListing)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if !m.InProgress(1) {
		t.Fatal("not in progress after entry action")
	}

	// Raw details produce the caption and advance to media intake.
	if err := m.ManagerHandler(newCtx(1, "corolla 2018 silver 45k km")); err != nil {
		t.Fatalf("subject: %v", err)
	}

	sendPhotos(t, m, 1, 3)

	done := newCtx(1, "/done")
	if err := m.DoneHandler(done); err != nil {
		t.Fatalf("done: %v", err)
	}
	if len(pub.batches) != 1 {
		t.Fatalf("publishes = %d", len(pub.batches))
	}
	if pub.caption != "<b>2018 Corolla</b>" {
		t.Fatalf("published caption = %q", pub.caption)
	}
	batch := pub.batches[0]
	if len(batch) != 3 {
		t.Fatalf("album size = %d", len(batch))
	}
	for i, h := range batch {
		if h.Ordinal != i {
			t.Fatalf("ordinal at %d = %d", i, h.Ordinal)
		}
	}
	// Publish clears the pass and releases storage.
	if m.InProgress(1) {
		t.Fatal("still in progress after publish")
	}
	if len(proc.released) != 3 {
		t.Fatalf("released = %d artifacts", len(proc.released))
	}
}

func TestCancelReleasesArtifacts(t *testing.T) {
	gen := &stubGen{caption: "caption"}
	proc := &stubProcessor{}
	m := newTestManager(t, gen, proc, &stubPublisher{})

	if err := m.EntryHandler(newCtx(1, btnNewListing)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if err := m.ManagerHandler(newCtx(1, "details")); err != nil {
		t.Fatalf("subject: %v", err)
	}
	sendPhotos(t, m, 1, 2)

	if err := m.CancelHandler(newCtx(1, "/cancel")); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if m.InProgress(1) {
		t.Fatal("still in progress after cancel")
	}
	if len(proc.released) != 2 {
		t.Fatalf("released = %d artifacts", len(proc.released))
	}

	// A later /done must not publish the discarded pass.
	done := newCtx(1, "/done")
	if err := m.DoneHandler(done); err != nil {
		t.Fatalf("done: %v", err)
	}
	if got := done.lastText(t); got == "" {
		t.Fatal("expected refusal message")
	}
}

func TestCancelIdleIsNoOp(t *testing.T) {
	m := newTestManager(t, &stubGen{}, &stubProcessor{}, &stubPublisher{})
	c := newCtx(1, "/cancel")
	if err := m.CancelHandler(c); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := c.lastText(t); got != "Nothing to cancel." {
		t.Fatalf("reply = %q", got)
	}
}

func TestGenerationFailureStaysInStage(t *testing.T) {
	gen := &stubGen{err: apperr.Generation("The writer is unavailable. Please try again.", errors.New("backend"))}
	m := newTestManager(t, gen, &stubProcessor{}, &stubPublisher{})

	if err := m.EntryHandler(newCtx(1, btnNewListing)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	c := newCtx(1, "details")
	if err := m.ManagerHandler(c); err != nil {
		t.Fatalf("subject: %v", err)
	}
	if got := c.lastText(t); got != "The writer is unavailable. Please try again." {
		t.Fatalf("reply = %q", got)
	}

	// The stage survives the failure, so a retry works without re-entering.
	gen.err = nil
	gen.caption = "second try"
	if err := m.ManagerHandler(newCtx(1, "details again")); err != nil {
		t.Fatalf("retry: %v", err)
	}
	sendPhotos(t, m, 1, 1)
}

func TestPublishFailureRetainsArtifactsForRetry(t *testing.T) {
	gen := &stubGen{caption: "caption"}
	proc := &stubProcessor{}
	pub := &stubPublisher{err: apperr.Publish("Publishing to the channel failed. Send /done to retry.", errors.New("net"))}
	m := newTestManager(t, gen, proc, pub)

	if err := m.EntryHandler(newCtx(1, btnNewListing)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if err := m.ManagerHandler(newCtx(1, "details")); err != nil {
		t.Fatalf("subject: %v", err)
	}
	sendPhotos(t, m, 1, 2)

	fail := newCtx(1, "/done")
	if err := m.DoneHandler(fail); err != nil {
		t.Fatalf("done: %v", err)
	}
	if !m.InProgress(1) {
		t.Fatal("pass cleared despite publish failure")
	}
	if len(proc.released) != 0 {
		t.Fatalf("released = %d artifacts after failure", len(proc.released))
	}

	pub.err = nil
	if err := m.DoneHandler(newCtx(1, "/done")); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(pub.batches) != 1 || len(pub.batches[0]) != 2 {
		t.Fatalf("retry batch = %v", pub.batches)
	}
	if m.InProgress(1) {
		t.Fatal("pass not cleared after successful retry")
	}
}

func TestEleventhPhotoRejected(t *testing.T) {
	gen := &stubGen{caption: "caption"}
	proc := &stubProcessor{}
	pub := &stubPublisher{}
	m := newTestManager(t, gen, proc, pub)

	if err := m.EntryHandler(newCtx(1, btnNewListing)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if err := m.ManagerHandler(newCtx(1, "details")); err != nil {
		t.Fatalf("subject: %v", err)
	}
	sendPhotos(t, m, 1, 10)

	c := newPhotoCtx(1)
	if err := m.PhotoHandler(c); err != nil {
		t.Fatalf("photo 11: %v", err)
	}
	if got := c.lastText(t); got == "" {
		t.Fatal("expected album-full reply")
	}
	if proc.next != 10 {
		t.Fatalf("processed = %d photos, expected 10", proc.next)
	}

	if err := m.DoneHandler(newCtx(1, "/done")); err != nil {
		t.Fatalf("done: %v", err)
	}
	if len(pub.batches[0]) != 10 {
		t.Fatalf("album size = %d", len(pub.batches[0]))
	}
}

func TestPhotoOutsideMediaStage(t *testing.T) {
	m := newTestManager(t, &stubGen{}, &stubProcessor{}, &stubPublisher{})

	if err := m.EntryHandler(newCtx(1, btnNewListing)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	c := newPhotoCtx(1)
	if err := m.PhotoHandler(c); err != nil {
		t.Fatalf("photo: %v", err)
	}
	if got := c.lastText(t); got == "" {
		t.Fatal("expected hint")
	}
	// Stage must not change.
	if err := m.ManagerHandler(newCtx(1, "details")); err != nil {
		t.Fatalf("subject after stray photo: %v", err)
	}
}

func TestDoneWithoutPhotos(t *testing.T) {
	gen := &stubGen{caption: "caption"}
	pub := &stubPublisher{}
	m := newTestManager(t, gen, &stubProcessor{}, pub)

	if err := m.EntryHandler(newCtx(1, btnNewListing)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if err := m.ManagerHandler(newCtx(1, "details")); err != nil {
		t.Fatalf("subject: %v", err)
	}

	c := newCtx(1, "/done")
	if err := m.DoneHandler(c); err != nil {
		t.Fatalf("done: %v", err)
	}
	if len(pub.batches) != 0 {
		t.Fatal("published without photos")
	}
	if got := c.lastText(t); got != "Send at least one photo before /done." {
		t.Fatalf("reply = %q", got)
	}
}

func TestBlogFlow(t *testing.T) {
	gen := &stubGen{post: "long form post"}
	m := newTestManager(t, gen, &stubProcessor{}, &stubPublisher{})

	if err := m.EntryHandler(newCtx(1, btnNewPost)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	c := newCtx(1, "rainy season driving")
	if err := m.ManagerHandler(c); err != nil {
		t.Fatalf("topic: %v", err)
	}
	if got := c.lastText(t); got != "long form post" {
		t.Fatalf("reply = %q", got)
	}
	if m.InProgress(1) {
		t.Fatal("blog pass not cleared after delivery")
	}
}

func TestStaleCancelButtonIgnored(t *testing.T) {
	gen := &stubGen{caption: "caption"}
	m := newTestManager(t, gen, &stubProcessor{}, &stubPublisher{})

	if err := m.EntryHandler(newCtx(1, btnNewListing)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	staleEpoch := m.sessions.Epoch(1) - 1

	c := newCtx(1, "")
	c.store["callback"] = &tele.Callback{Data: fmt.Sprintf("%s|%d", cancelAction, staleEpoch)}
	if err := m.CancelCallback(c); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if !m.InProgress(1) {
		t.Fatal("stale cancel button killed the active pass")
	}

	// A button carrying the live epoch does cancel.
	live := newCtx(1, "")
	live.store["callback"] = &tele.Callback{Data: fmt.Sprintf("%s|%d", cancelAction, m.sessions.Epoch(1))}
	if err := m.CancelCallback(live); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if m.InProgress(1) {
		t.Fatal("live cancel button ignored")
	}
}

func TestCancelDuringPublishKeepsNewPass(t *testing.T) {
	gen := &stubGen{caption: "caption"}
	proc := &stubProcessor{}
	pub := &stubPublisher{}
	m := newTestManager(t, gen, proc, pub)

	if err := m.EntryHandler(newCtx(1, btnNewListing)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if err := m.ManagerHandler(newCtx(1, "details")); err != nil {
		t.Fatalf("subject: %v", err)
	}
	sendPhotos(t, m, 1, 2)

	inFlight := make(chan struct{})
	release := make(chan struct{})
	pub.block = func() {
		close(inFlight)
		<-release
	}

	done := make(chan error, 1)
	go func() { done <- m.DoneHandler(newCtx(1, "/done")) }()
	<-inFlight

	// Cancel skips the work lock, so it lands while the album is still in
	// flight, and the user immediately starts over.
	if err := m.CancelHandler(newCtx(1, "/cancel")); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := m.EntryHandler(newCtx(1, btnNewListing)); err != nil {
		t.Fatalf("re-entry: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("done: %v", err)
	}

	// The late publish belongs to the cancelled pass and must not touch the
	// new one.
	if st := m.sessions.Stage(1); st != session.StageAwaitingSubject {
		t.Fatalf("stage after late publish = %q, want %q", st, session.StageAwaitingSubject)
	}
	if len(proc.released) != 2 {
		t.Fatalf("released = %d artifacts, want the 2 from cancel", len(proc.released))
	}
}

func TestCancelDuringBlogGenerationKeepsNewPass(t *testing.T) {
	gen := &stubGen{post: "long form post"}
	m := newTestManager(t, gen, &stubProcessor{}, &stubPublisher{})

	if err := m.EntryHandler(newCtx(1, btnNewPost)); err != nil {
		t.Fatalf("entry: %v", err)
	}

	inFlight := make(chan struct{})
	release := make(chan struct{})
	gen.block = func() {
		close(inFlight)
		<-release
	}

	topic := newCtx(1, "rainy season driving")
	done := make(chan error, 1)
	go func() { done <- m.ManagerHandler(topic) }()
	<-inFlight

	if err := m.CancelHandler(newCtx(1, "/cancel")); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := m.EntryHandler(newCtx(1, btnNewListing)); err != nil {
		t.Fatalf("re-entry: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("topic: %v", err)
	}

	if st := m.sessions.Stage(1); st != session.StageAwaitingSubject {
		t.Fatalf("stage after late generation = %q, want %q", st, session.StageAwaitingSubject)
	}
	// The cancelled pass's post is never delivered.
	if got := topic.lastText(t); got == "long form post" {
		t.Fatal("stale post delivered after cancel")
	}
}

func TestIdleTextShowsEntryHint(t *testing.T) {
	m := newTestManager(t, &stubGen{}, &stubProcessor{}, &stubPublisher{})
	c := newCtx(1, "hello?")
	if err := m.EntryHandler(c); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if got := c.lastText(t); got == "" {
		t.Fatal("expected hint")
	}
}

func TestStartingNewPassDropsOldArtifacts(t *testing.T) {
	gen := &stubGen{caption: "caption"}
	proc := &stubProcessor{}
	m := newTestManager(t, gen, proc, &stubPublisher{})

	if err := m.EntryHandler(newCtx(1, btnNewListing)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if err := m.ManagerHandler(newCtx(1, "details")); err != nil {
		t.Fatalf("subject: %v", err)
	}
	sendPhotos(t, m, 1, 2)

	// Entry action mid-pass starts over and releases collected media.
	if err := m.EntryHandler(newCtx(1, btnNewListing)); err != nil {
		t.Fatalf("re-entry: %v", err)
	}
	if len(proc.released) != 2 {
		t.Fatalf("released = %d artifacts", len(proc.released))
	}
}
