package middleware

import (
	"time"

	"github.com/m3rciful/godialog/core/logger"
	tghelpers "github.com/m3rciful/godialog/core/telegram/helpers"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Logging builds the per-update logging context and emits one receipt
// line per update. Downstream handlers reuse the stored context so all
// log lines of an update share the same rid.
func Logging(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		user := c.Sender()
		chat := c.Chat()

		var chatID, userID int64
		if chat != nil {
			chatID = chat.ID
		}
		if user != nil {
			userID = user.ID
		}
		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set("rid", rid)
		c.Set("update_start", time.Now())

		ctx := logger.WithRID(logger.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		tghelpers.StoreContext(c, ctx)

		attrs := []slog.Attr{slog.String("status", "ok")}
		if user != nil && user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		switch {
		case upd.Callback != nil:
			attrs = append(attrs, slog.String("kind", "callback"),
				slog.String("payload", logger.SanitizeLimit(upd.Callback.Data, 256)))
		case upd.Message != nil:
			attrs = append(attrs, slog.String("kind", "message"))
			if t := c.Text(); t != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
			}
		}
		logger.Debug(ctx, "tg", "update.received", attrs...)

		return next(c)
	}
}
