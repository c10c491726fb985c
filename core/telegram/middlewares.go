package telegram

import (
	"time"

	coreconfig "github.com/m3rciful/godialog/core/config"
	"github.com/m3rciful/godialog/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares builds the shared middleware chain for bots.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited func(tele.Context) error) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.Recover},
	}

	if cfg != nil {
		if interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond; interval > 0 {
			opts := middleware.RateLimitOptions{Interval: interval}
			if onLimited != nil {
				opts.OnLimited = onLimited
			}
			mws = append(mws, Middleware{Name: "rate_limit", Use: middleware.RateLimit(opts)})
		}
	}

	mws = append(mws, Middleware{Name: "logging", Use: middleware.Logging})
	return mws
}
