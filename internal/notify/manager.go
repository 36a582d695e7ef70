package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/watchhook/watchhook/internal/config"
	"github.com/watchhook/watchhook/internal/metrics"
	"github.com/watchhook/watchhook/internal/watch"
)

// Channel is the interface every notification backend implements.
type Channel interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Result is the outcome of one channel send. Err is nil on success.
type Result struct {
	Channel string
	Err     error
}

// OK reports whether the send succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Dispatcher fans a change out to the configured channels, one after the
// other. A failing channel never stops the ones after it.
type Dispatcher struct {
	channels []Channel
	log      zerolog.Logger
	now      func() time.Time
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher builds the channel list from cfg once. Channels without the
// settings they need are left out: Telegram needs enabled plus both a bot
// token and a chat id. client is shared by all channels and may be nil.
func NewDispatcher(cfg *config.Config, client *http.Client, log zerolog.Logger, opts ...Option) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: SendTimeout}
	}
	d := &Dispatcher{log: log, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}

	if u := cfg.DiscordWebhook(); u != "" {
		d.Add(&Discord{WebhookURL: u, Client: client})
	}
	if u := cfg.SlackWebhook(); u != "" {
		d.Add(&Slack{WebhookURL: u, Client: client})
	}
	if token, chatID, ok := cfg.TelegramCredentials(); ok && cfg.TelegramEnabled() {
		tg, err := NewTelegram(token, chatID, client)
		if err != nil {
			log.Error().Err(err).Str("channel", "Telegram").Msg("telegram channel unavailable")
		} else {
			d.Add(tg)
		}
	}
	return d
}

// Add appends a channel. nil is ignored.
func (d *Dispatcher) Add(c Channel) {
	if c != nil {
		d.channels = append(d.channels, c)
	}
}

// Len returns the number of active channels.
func (d *Dispatcher) Len() int {
	return len(d.channels)
}

// Dispatch sends the change in report to every channel and returns one
// Result per channel. Failures are logged here; callers may ignore the
// results.
func (d *Dispatcher) Dispatch(ctx context.Context, job watch.Job, report watch.Report) []Result {
	msg := NewMessage(job, report, d.now())
	results := make([]Result, 0, len(d.channels))
	for _, c := range d.channels {
		name := c.Name()
		err := c.Send(ctx, msg)
		results = append(results, Result{Channel: name, Err: err})
		if err != nil {
			metrics.IncNotificationFailed(name)
			d.log.Error().Err(err).Str("channel", name).Str("job", msg.JobName).Msgf("Failed to send %s notification", name)
			continue
		}
		metrics.IncNotificationSent(name)
		d.log.Info().Str("channel", name).Str("job", msg.JobName).Msgf("%s notification sent", name)
	}
	return results
}
