package ui

import tele "gopkg.in/telebot.v4"

// RenderResult reports how a rich-markup message was actually delivered.
// Plain is true when the HTML render was rejected by the transport and the
// same text was re-sent without formatting.
type RenderResult struct {
	Plain bool
}

// FallbackProvider exposes handlers used when incoming updates
// cannot be mapped to commands, callbacks, or expected media.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownPhoto() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}
