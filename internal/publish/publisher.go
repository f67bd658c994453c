// Package publish composes processed artifacts into one atomic album post
// for the configured channel. The first photo carries the listing caption;
// the batch never exceeds the transport's album limit.
package publish

import (
	"errors"
	"sort"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/carpostbot/core/logger"
	"github.com/m3rciful/carpostbot/core/telegram/format"
	"github.com/m3rciful/carpostbot/internal/apperr"
	"github.com/m3rciful/carpostbot/internal/artifact"
	"log/slog"
)

// MaxAlbumSize is the transport-imposed media group limit.
const MaxAlbumSize = 10

// AlbumSender is the single transport call the publisher depends on.
type AlbumSender interface {
	SendAlbum(to tele.Recipient, a tele.Album, opts ...interface{}) ([]tele.Message, error)
}

// channel adapts a configured channel id or @username to tele.Recipient.
type channel string

// Recipient implements tele.Recipient.
func (c channel) Recipient() string { return string(c) }

// PathResolver maps artifact handles to readable files.
type PathResolver interface {
	Path(h artifact.Handle) (string, error)
}

// Publisher posts albums to the broadcast channel.
type Publisher struct {
	sender  AlbumSender
	paths   PathResolver
	channel channel
}

// New builds a Publisher targeting the given channel.
func New(sender AlbumSender, paths PathResolver, channelID string) *Publisher {
	return &Publisher{sender: sender, paths: paths, channel: channel(channelID)}
}

// Publish sends the artifacts as one album, ordered by arrival, caption on
// the first item only. A batch over the album limit is refused outright:
// the intake path caps accepted photos, so an oversized batch here means a
// bug upstream and silently truncating it would lose operator data.
func (p *Publisher) Publish(caption string, handles []artifact.Handle) error {
	if len(handles) == 0 {
		return apperr.Publish("Nothing to publish.", nil)
	}
	if len(handles) > MaxAlbumSize {
		return apperr.Publish("Too many photos for one album.", nil)
	}

	ordered := append([]artifact.Handle(nil), handles...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Ordinal < ordered[j].Ordinal })

	album := make(tele.Album, 0, len(ordered))
	for i, h := range ordered {
		path, err := p.paths.Path(h)
		if err != nil {
			return apperr.Publish("A processed photo went missing.", err)
		}
		photo := &tele.Photo{File: tele.FromDisk(path)}
		if i == 0 {
			photo.Caption = caption
		}
		album = append(album, photo)
	}

	start := time.Now()
	_, err := p.sender.SendAlbum(p.channel, album, &tele.SendOptions{ParseMode: tele.ModeHTML})
	if err != nil && isMarkupRejection(err) && caption != "" {
		// The channel post is more valuable than the formatting; retry plain.
		album[0].(*tele.Photo).Caption = format.StripTags(caption)
		_, err = p.sender.SendAlbum(p.channel, album)
	}
	if err != nil {
		logger.PUB.Error("album publish failed",
			slog.String("event", "publish.album"),
			slog.String("status", "fail"),
			slog.Int("album_size", len(album)),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
			slog.String("err", err.Error()),
		)
		return apperr.Publish("Publishing to the channel failed. Send /done to retry.", err)
	}

	logger.PUB.Info("album published",
		slog.String("event", "publish.album"),
		slog.String("status", "ok"),
		slog.Int("album_size", len(album)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

func isMarkupRejection(err error) bool {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 400
	}
	return false
}
