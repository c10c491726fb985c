package telegram

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// WebhookOptions declares webhook listener settings.
type WebhookOptions struct {
	Listen string
	Port   int
	URL    string
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
}

const defaultLongPollTimeout = 10 * time.Second

// BuildPoller returns a Telebot poller based on the configured run mode.
// Anything other than webhook falls back to long polling.
func BuildPoller(opts PollerOptions) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(opts.RunMode), "webhook") {
		return &tele.Webhook{
			Listen:   fmt.Sprintf("%s:%d", opts.Webhook.Listen, opts.Webhook.Port),
			Endpoint: &tele.WebhookEndpoint{PublicURL: opts.Webhook.URL},
		}
	}

	timeout := defaultLongPollTimeout
	if opts.LongPollTimeoutSeconds > 0 {
		timeout = time.Duration(opts.LongPollTimeoutSeconds) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}
}
