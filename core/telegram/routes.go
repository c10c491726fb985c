package telegram

import (
	"github.com/m3rciful/godialog/core/dialogue"
	tghelpers "github.com/m3rciful/godialog/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// dialogueEndpoints lists the update kinds a dialogue answer can arrive
// on. Anything else is ignored by the engine anyway.
var dialogueEndpoints = []any{
	tele.OnText,
	tele.OnCallback,
	tele.OnPhoto,
	tele.OnVideo,
	tele.OnAudio,
	tele.OnVoice,
	tele.OnVideoNote,
	tele.OnDocument,
	tele.OnVenue,
	tele.OnContact,
}

// DialogueRoutes forwards every answer-bearing update kind into the
// engine. Users without an active dialogue pass through unanswered; when
// no fallback is given their updates are simply dropped.
func DialogueRoutes(eng *dialogue.Engine, fallback tele.HandlerFunc) []Route {
	forward := func(c tele.Context) error {
		ctx := tghelpers.WithHandler(c, "dialogue")
		ev := Adapt(c)

		if fallback != nil {
			active, err := eng.Active(ctx, ev.UserID)
			if err != nil {
				return err
			}
			if !active {
				return fallback(c)
			}
		}

		err := eng.HandleEvent(ctx, ev)
		if c.Callback() != nil {
			// Stop the Telegram client spinner regardless of outcome.
			_ = c.Respond()
		}
		return err
	}

	routes := make([]Route, 0, len(dialogueEndpoints))
	for _, endpoint := range dialogueEndpoints {
		routes = append(routes, Route{Endpoint: endpoint, Handler: forward})
	}
	return routes
}

// StartCommand binds a bot command to starting the named dialogue. The
// triggering update is fed back into the engine so the first prompt is
// rendered immediately.
func StartCommand(eng *dialogue.Engine, command, name string) Route {
	return Route{
		Endpoint: command,
		Handler: func(c tele.Context) error {
			ctx := tghelpers.WithHandler(c, "dialogue.start")
			ev := Adapt(c)
			if err := eng.Start(ctx, name, ev.UserID, ev.ChatID); err != nil {
				return err
			}
			return eng.HandleEvent(ctx, ev)
		},
	}
}
