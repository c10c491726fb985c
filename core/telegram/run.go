package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/godialog/core/config"
	"github.com/m3rciful/godialog/core/logger"

	tele "gopkg.in/telebot.v4"
	"log/slog"
)

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config *coreconfig.Config

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks and route builders.
type Runtime struct {
	Bot    *tele.Bot
	Sender *BotSender
}

// NewBot builds a configured Telegram bot client without starting it.
// Callers that need the bot before RunTelegram (for example to construct
// a dialogue sender) build it here and pass routes referencing it.
func NewBot(cfg *coreconfig.Config) (*tele.Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram: nil config provided")
	}
	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	})
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: BuildHTTPClient(),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

// RunTelegram wires middlewares and routes into the bot and runs it until
// the provided context is done.
func RunTelegram(ctx context.Context, bot *tele.Bot, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	if bot == nil {
		return fmt.Errorf("telegram: nil bot provided")
	}
	cfg := opts.Config

	rt := Runtime{Bot: bot, Sender: NewBotSender(bot)}

	switch p := bot.Poller.(type) {
	case *tele.Webhook:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
		)
	default:
		timeoutSec := 10
		if cfg.Telegram.LongPollTimeoutSeconds > 0 {
			timeoutSec = cfg.Telegram.LongPollTimeoutSeconds
		}
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", "polling"),
			slog.Int("timeout_seconds", timeoutSec),
		)

		if !opts.DisableWebhookCleanup && strings.EqualFold(cfg.Telegram.RunMode, coreconfig.RunModeLongpoll) {
			if err := deleteWebhook(cfg.Telegram.Token, false); err != nil {
				logger.Warn(ctx, "tg", "delete_webhook", slog.String("err", err.Error()))
			} else {
				logger.Info(ctx, "tg", "delete_webhook")
			}
		}
	}

	for _, mw := range opts.Middlewares {
		if mw.Use == nil {
			continue
		}
		bot.Use(mw.Use)
	}
	for _, route := range opts.Routes {
		if route.Endpoint == nil || route.Handler == nil {
			continue
		}
		bot.Handle(route.Endpoint, route.Handler)
	}

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(ctx, rt)
	}

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func deleteWebhook(token string, dropPending bool) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/deleteWebhook", token)
	body := "drop_pending_updates=false"
	if dropPending {
		body = "drop_pending_updates=true"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleteWebhook status: %s", resp.Status)
	}
	return nil
}
