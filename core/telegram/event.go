package telegram

import (
	"strings"

	"github.com/m3rciful/godialog/core/dialogue"

	tele "gopkg.in/telebot.v4"
)

// Adapt converts an inbound Telegram update into the transport-neutral
// event shape consumed by the dialogue engine.
func Adapt(c tele.Context) dialogue.Event {
	var ev dialogue.Event
	if user := c.Sender(); user != nil {
		ev.UserID = user.ID
	}
	if chat := c.Chat(); chat != nil {
		ev.ChatID = chat.ID
	}

	if msg := c.Message(); msg != nil {
		ev.Text = msg.Text
		ev.Caption = msg.Caption

		media := map[dialogue.MediaKind]string{}
		if msg.Photo != nil {
			media[dialogue.MediaPhoto] = msg.Photo.FileID
		}
		if msg.Video != nil {
			media[dialogue.MediaVideo] = msg.Video.FileID
		}
		if msg.Audio != nil {
			media[dialogue.MediaAudio] = msg.Audio.FileID
		}
		if msg.Voice != nil {
			media[dialogue.MediaVoice] = msg.Voice.FileID
		}
		if msg.VideoNote != nil {
			media[dialogue.MediaVideoNote] = msg.VideoNote.FileID
		}
		if msg.Document != nil {
			media[dialogue.MediaDocument] = msg.Document.FileID
		}
		if len(media) > 0 {
			ev.Media = media
		}

		if msg.Venue != nil {
			ev.Venue = &dialogue.Venue{Address: msg.Venue.Address}
		}
		if msg.Contact != nil {
			ev.Contact = &dialogue.Contact{Phone: msg.Contact.PhoneNumber}
		}
	}

	if cb := c.Callback(); cb != nil {
		ev.Callback = &dialogue.Callback{Payload: callbackPayload(cb)}
	}

	return ev
}

// callbackPayload extracts the button payload from a callback, tolerating
// both raw data and the "\funique|payload" framing produced by markup
// helpers.
func callbackPayload(cb *tele.Callback) string {
	if cb.Unique != "" {
		return cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	if key, payload, ok := strings.Cut(raw, "|"); ok {
		if payload != "" {
			return payload
		}
		return key
	}
	return raw
}
