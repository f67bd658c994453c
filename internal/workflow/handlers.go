package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/carpostbot/core/logger"
	"github.com/m3rciful/carpostbot/core/telegram/callbacks"
	"github.com/m3rciful/carpostbot/core/telegram/helpers"
	"github.com/m3rciful/carpostbot/core/telegram/keyboard"
	"github.com/m3rciful/carpostbot/internal/apperr"
	"github.com/m3rciful/carpostbot/internal/publish"
	"github.com/m3rciful/carpostbot/internal/session"
)

// wfComponent scopes workflow events in the structured log stream.
const wfComponent = "service.workflow"

// StartHandler greets and shows the entry keyboard. An active pass stays
// untouched: /start is a menu, not a reset.
func (m *Manager) StartHandler(c tele.Context) error {
	return helpers.SendHTML(c,
		"Hi! I prepare channel posts for you.\n\n"+
			"<b>"+btnNewListing+"</b> — turn raw vehicle details into a formatted listing with sanitized photos.\n"+
			"<b>"+btnNewPost+"</b> — write a long-form post from a topic.",
		entryKeyboard())
}

// EntryHandler routes reply-keyboard entry actions and idle text. The message
// router only falls through to it when no workflow pass is active.
func (m *Manager) EntryHandler(c tele.Context) error {
	uid := c.Sender().ID
	switch c.Text() {
	case btnNewListing:
		m.beginPass(uid, c.Chat().ID, session.StageAwaitingSubject)
		return helpers.SendHTML(c,
			"Send me the vehicle details in one message: make, model, year, mileage, condition, price, contact.",
			keyboard.RemoveKeyboard())
	case btnNewPost:
		m.beginPass(uid, c.Chat().ID, session.StageAwaitingTopic)
		return helpers.SendHTML(c, "What should the post be about? Pick a topic or type your own.", topicKeyboard())
	default:
		return helpers.SendHTML(c, "Pick an action from the keyboard below to get started.", entryKeyboard())
	}
}

func (m *Manager) beginPass(userID, chatID int64, st session.Stage) {
	released := m.sessions.Begin(userID, chatID, st)
	m.media.Release(released...)
	logger.Info(context.Background(), wfComponent, "workflow.begin",
		slog.Int64("user_id", userID),
		slog.String("stage", string(st)),
	)
}

// ManagerHandler receives text while a pass is active and dispatches on the
// current stage.
func (m *Manager) ManagerHandler(c tele.Context) error {
	uid := c.Sender().ID
	l := m.workLock(uid)
	l.Lock()
	defer l.Unlock()

	switch m.sessions.Stage(uid) {
	case session.StageAwaitingSubject:
		return m.handleSubject(c)
	case session.StageAwaitingTopic:
		return m.handleTopic(c)
	case session.StageAwaitingMedia:
		return helpers.SendText(c, "Send photos now, then /done to publish. /cancel discards the pass.")
	default:
		return nil
	}
}

func (m *Manager) handleSubject(c tele.Context) error {
	uid := c.Sender().ID
	epoch := m.sessions.Epoch(uid)

	if err := helpers.SendText(c, "✍️ Writing the listing copy..."); err != nil {
		return err
	}

	caption, err := m.gen.ListingCaption(helpers.BuildContext(c), c.Text())
	if err != nil {
		return helpers.SendText(c, userMessage(err))
	}

	stale := false
	m.sessions.Update(uid, func(s *session.Session) {
		if s.Epoch != epoch || s.Stage != session.StageAwaitingSubject {
			stale = true
			return
		}
		s.Caption = caption
		s.Stage = session.StageAwaitingMedia
	})
	if stale {
		logger.Info(helpers.BuildContext(c), wfComponent, "workflow.stale",
			slog.Int64("user_id", uid),
			slog.Uint64("epoch", epoch),
		)
		return nil
	}

	if _, err := helpers.SendRich(c, caption); err != nil {
		return err
	}
	return helpers.SendHTML(c,
		"Now send the photos, one by one (up to 10). When you are done, send /done to publish.",
		cancelMarkup(epoch))
}

func (m *Manager) handleTopic(c tele.Context) error {
	uid := c.Sender().ID
	epoch := m.sessions.Epoch(uid)

	if err := helpers.SendText(c, "✍️ Writing the post..."); err != nil {
		return err
	}

	post, err := m.gen.BlogPost(helpers.BuildContext(c), c.Text())
	if err != nil {
		return helpers.SendText(c, userMessage(err))
	}
	released, ok := m.sessions.ResetIfEpoch(uid, epoch)
	if !ok {
		logger.Info(helpers.BuildContext(c), wfComponent, "workflow.stale",
			slog.Int64("user_id", uid),
			slog.Uint64("epoch", epoch),
		)
		return nil
	}
	m.media.Release(released...)

	if _, err := helpers.SendRich(c, post, entryKeyboard()); err != nil {
		return err
	}
	return nil
}

// PhotoHandler ingests one photo while a pass is active: download, sanitize,
// append. Only StageAwaitingMedia accepts photos.
func (m *Manager) PhotoHandler(c tele.Context) error {
	uid := c.Sender().ID
	l := m.workLock(uid)
	l.Lock()
	defer l.Unlock()

	snap := m.sessions.Snapshot(uid)
	if snap.Stage != session.StageAwaitingMedia {
		return helpers.SendText(c, "I wasn't expecting a photo yet. "+stageHint(snap.Stage))
	}
	if snap.MediaCount() >= publish.MaxAlbumSize {
		return helpers.SendText(c,
			fmt.Sprintf("Album is full (%d photos). Send /done to publish or /cancel to discard.", publish.MaxAlbumSize))
	}

	photo := c.Message().Photo
	if photo == nil {
		return nil
	}

	path, err := m.fetch(c, &photo.File)
	if err != nil {
		logger.Warn(helpers.BuildContext(c), wfComponent, "workflow.photo.download",
			slog.Int64("user_id", uid),
			slog.String("err", err.Error()),
		)
		return helpers.SendText(c, "Couldn't download that photo. Please send it again.")
	}

	handle, err := m.media.ProcessFile(path, snap.MediaCount())
	if err != nil {
		return helpers.SendText(c, userMessage(err))
	}

	stale := false
	var count int
	m.sessions.Update(uid, func(s *session.Session) {
		if s.Epoch != snap.Epoch || s.Stage != session.StageAwaitingMedia {
			stale = true
			return
		}
		s.Media = append(s.Media, handle)
		count = len(s.Media)
	})
	if stale {
		m.media.Release(handle)
		return nil
	}

	processed, err := m.media.Path(handle)
	if err != nil {
		return helpers.SendText(c, userMessage(err))
	}
	return c.Send(&tele.Photo{
		File:    tele.FromDisk(processed),
		Caption: fmt.Sprintf("Photo %d ✅ Plates blurred. Send more or /done to publish.", count),
	})
}

// DoneHandler publishes the collected album and clears the session.
func (m *Manager) DoneHandler(c tele.Context) error {
	uid := c.Sender().ID
	l := m.workLock(uid)
	l.Lock()
	defer l.Unlock()

	snap := m.sessions.Snapshot(uid)
	if snap.Stage != session.StageAwaitingMedia {
		return helpers.SendHTML(c, "Nothing to publish. "+stageHint(snap.Stage), entryKeyboard())
	}
	if snap.MediaCount() == 0 {
		return helpers.SendText(c, "Send at least one photo before /done.")
	}

	if err := m.pub.Publish(snap.Caption, snap.Media); err != nil {
		// Artifacts and stage stay intact so /done can be retried.
		return helpers.SendText(c, userMessage(err))
	}

	// The user may have cancelled (and started over) while the album was in
	// flight: cancel skips the work lock. Only the pass that ran this publish
	// may clear the session.
	released, ok := m.sessions.ResetIfEpoch(uid, snap.Epoch)
	if !ok {
		logger.Info(helpers.BuildContext(c), wfComponent, "workflow.stale",
			slog.Int64("user_id", uid),
			slog.Uint64("epoch", snap.Epoch),
		)
		return nil
	}
	m.media.Release(released...)
	logger.Info(helpers.BuildContext(c), wfComponent, "workflow.publish",
		slog.Int64("user_id", uid),
		slog.Int("photos", snap.MediaCount()),
	)
	return helpers.SendHTML(c, "Published to the channel ✅", entryKeyboard())
}

// CancelHandler aborts the active pass. It skips the work lock on purpose:
// cancelling must not wait behind an in-flight generation or photo; the epoch
// bump makes those results stale instead.
func (m *Manager) CancelHandler(c tele.Context) error {
	uid := c.Sender().ID
	if !m.sessions.InProgress(uid) {
		return helpers.SendText(c, "Nothing to cancel.")
	}
	m.media.Release(m.sessions.Reset(uid)...)
	logger.Info(helpers.BuildContext(c), wfComponent, "workflow.cancel",
		slog.Int64("user_id", uid),
	)
	return helpers.SendHTML(c, "Cancelled. Ready when you are.", entryKeyboard())
}

// CancelCallback handles the inline Cancel button. Buttons outlive passes in
// chat history; the epoch payload rejects presses aimed at a finished pass.
func (m *Manager) CancelCallback(c tele.Context) error {
	uid := c.Sender().ID
	if ep, err := callbacks.PayloadInt64(c); err == nil && uint64(ep) != m.sessions.Epoch(uid) {
		return helpers.SendText(c, "That pass is already over.")
	}
	return m.CancelHandler(c)
}

// StatusHandler reports runtime counters. Registered admin-only and hidden.
func (m *Manager) StatusHandler(c tele.Context) error {
	var sendErrs uint64
	if m.dispatcherErrors != nil {
		sendErrs = m.dispatcherErrors()
	}
	return helpers.SendHTML(c, fmt.Sprintf(
		"<b>Status</b>\nActive sessions: <code>%d</code>\nSend errors: <code>%d</code>",
		m.sessions.ActiveCount(), sendErrs))
}

func stageHint(st session.Stage) string {
	switch st {
	case session.StageAwaitingSubject:
		return "Send the vehicle details as text first."
	case session.StageAwaitingTopic:
		return "Send the post topic as text first."
	case session.StageAwaitingMedia:
		return "Send photos, then /done."
	default:
		return "Pick an action from the keyboard."
	}
}

// userMessage recovers a typed failure into its operator-facing text.
func userMessage(err error) string {
	var app *apperr.Error
	if errors.As(err, &app) && app.UserMessage() != "" {
		return app.UserMessage()
	}
	return "Something went wrong. Please try again."
}
