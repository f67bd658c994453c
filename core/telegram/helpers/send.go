package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/carpostbot/core/logger"
	"github.com/m3rciful/carpostbot/core/telegram/format"
	"github.com/m3rciful/carpostbot/core/telegram/sender"
	"github.com/m3rciful/carpostbot/core/telegram/ui"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := currentDispatcher()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	if err := disp.Enqueue(ctx, action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("action", action),
				slog.String("endpoint", endpoint),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var sendOpts *tele.SendOptions
	if len(opts) > 0 {
		sendOpts = opts[0]
	}
	return sendAsync(c, "send.text", "sendMessage", func() error {
		if sendOpts != nil {
			return c.Send(text, sendOpts)
		}
		return c.Send(text)
	})
}

// SendHTML sends a message with HTML parse mode and optional reply markup.
func SendHTML(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	var rm *tele.ReplyMarkup
	if len(markup) > 0 {
		rm = markup[0]
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, ReplyMarkup: rm, DisableWebPagePreview: true}
	return SendText(c, text, opts)
}

// SendRich attempts an HTML-parse-mode send and, if the transport rejects the
// entity markup, re-sends the same text stripped to plain. It is synchronous:
// callers need the delivery outcome, so it bypasses the async dispatcher.
func SendRich(c tele.Context, text string, markup ...*tele.ReplyMarkup) (ui.RenderResult, error) {
	var rm *tele.ReplyMarkup
	if len(markup) > 0 {
		rm = markup[0]
	}

	err := c.Send(text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		ReplyMarkup:           rm,
		DisableWebPagePreview: true,
	})
	if err == nil {
		return ui.RenderResult{}, nil
	}
	if !isMarkupRejection(err) {
		return ui.RenderResult{}, err
	}

	ctx := BuildContext(c)
	logger.Warn(ctx, "tg", "send.rich.fallback",
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
	plain := format.StripTags(text)
	if sendErr := c.Send(plain, &tele.SendOptions{ReplyMarkup: rm, DisableWebPagePreview: true}); sendErr != nil {
		return ui.RenderResult{Plain: true}, sendErr
	}
	return ui.RenderResult{Plain: true}, nil
}

// isMarkupRejection reports whether the API refused the message because of
// its entities, as opposed to a transport-level failure.
func isMarkupRejection(err error) bool {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 400
	}
	return false
}

// EditHTML edits a message with HTML parse mode and optional reply markup.
func EditHTML(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	var rm *tele.ReplyMarkup
	if len(markup) > 0 {
		rm = markup[0]
	}
	return c.Edit(text, &tele.SendOptions{ParseMode: tele.ModeHTML, ReplyMarkup: rm})
}

// EditOrSendHTML tries to edit the message (HTML) or sends a new one if edit fails.
func EditOrSendHTML(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	var rm *tele.ReplyMarkup
	if len(markup) > 0 {
		rm = markup[0]
	}
	return c.EditOrSend(text, &tele.SendOptions{ParseMode: tele.ModeHTML, ReplyMarkup: rm})
}
