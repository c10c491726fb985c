package middleware

import (
	"sync"
	"time"

	"github.com/m3rciful/godialog/core/logger"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	OnLimited tele.HandlerFunc
}

// RateLimit returns a middleware that enforces a minimum interval between
// updates from the same user. Limited updates are dropped silently unless
// OnLimited is set.
func RateLimit(opts RateLimitOptions) tele.MiddlewareFunc {
	var (
		lastSeen   = make(map[int64]time.Time)
		lastSeenMu sync.Mutex
	)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}

			now := time.Now()
			lastSeenMu.Lock()
			if last, ok := lastSeen[user.ID]; ok && now.Sub(last) < opts.Interval {
				lastSeenMu.Unlock()
				attrs := []slog.Attr{slog.Int64("user_id", user.ID)}
				if chat := c.Chat(); chat != nil {
					attrs = append(attrs, slog.Int64("chat_id", chat.ID))
				}
				logger.Warn(logger.Background(), "tg", "rate_limit", attrs...)
				if opts.OnLimited != nil {
					_ = opts.OnLimited(c)
				}
				return nil
			}
			lastSeen[user.ID] = now
			lastSeenMu.Unlock()

			return next(c)
		}
	}
}
