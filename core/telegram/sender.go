package telegram

import (
	"context"
	"fmt"

	"github.com/m3rciful/godialog/core/dialogue"

	tele "gopkg.in/telebot.v4"
)

// BotSender renders dialogue prompts through a Telegram bot client.
type BotSender struct {
	bot *tele.Bot
}

// NewBotSender wraps an initialized bot.
func NewBotSender(bot *tele.Bot) *BotSender {
	return &BotSender{bot: bot}
}

// SendText sends a plain text prompt with an optional keyboard.
func (s *BotSender) SendText(_ context.Context, chatID int64, text string, kb *dialogue.Keyboard) error {
	opts := sendOptions(kb)
	if _, err := s.bot.Send(tele.ChatID(chatID), text, opts...); err != nil {
		return fmt.Errorf("telegram send text: %w", err)
	}
	return nil
}

// SendMedia sends a media prompt referenced by its stored file id.
func (s *BotSender) SendMedia(_ context.Context, chatID int64, media dialogue.MediaRef, caption string, kb *dialogue.Keyboard) error {
	file := tele.File{FileID: media.FileID}

	var what any
	switch media.Kind {
	case dialogue.MediaPhoto:
		what = &tele.Photo{File: file, Caption: caption}
	case dialogue.MediaVideo:
		what = &tele.Video{File: file, Caption: caption}
	case dialogue.MediaAudio:
		what = &tele.Audio{File: file, Caption: caption}
	case dialogue.MediaVoice:
		what = &tele.Voice{File: file, Caption: caption}
	case dialogue.MediaVideoNote:
		what = &tele.VideoNote{File: file}
	case dialogue.MediaDocument:
		what = &tele.Document{File: file, Caption: caption}
	default:
		return fmt.Errorf("telegram send media: unsupported kind %q", media.Kind)
	}

	opts := sendOptions(kb)
	if _, err := s.bot.Send(tele.ChatID(chatID), what, opts...); err != nil {
		return fmt.Errorf("telegram send media: %w", err)
	}
	return nil
}

func sendOptions(kb *dialogue.Keyboard) []interface{} {
	if markup := Markup(kb); markup != nil {
		return []interface{}{markup}
	}
	return nil
}

// Markup converts a dialogue keyboard into Telegram reply markup.
// Inline keyboards carry the button payload as callback data; reply
// keyboards echo the button text back as a regular message.
func Markup(kb *dialogue.Keyboard) *tele.ReplyMarkup {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}
	markup := &tele.ReplyMarkup{}

	if kb.Inline {
		inline := make([][]tele.InlineButton, len(kb.Rows))
		for i, row := range kb.Rows {
			r := make([]tele.InlineButton, len(row))
			for j, btn := range row {
				data := btn.Data
				if data == "" {
					data = btn.Text
				}
				r[j] = tele.InlineButton{Text: btn.Text, Data: data}
			}
			inline[i] = r
		}
		markup.InlineKeyboard = inline
		return markup
	}

	markup.ResizeKeyboard = true
	markup.OneTimeKeyboard = true
	rows := make([]tele.Row, len(kb.Rows))
	for i, row := range kb.Rows {
		buttons := make([]tele.Btn, len(row))
		for j, btn := range row {
			buttons[j] = markup.Text(btn.Text)
		}
		rows[i] = markup.Row(buttons...)
	}
	markup.Reply(rows...)
	return markup
}
