// Package notify posts operational alerts to a webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Config controls the alert webhook.
type Config struct {
	WebhookURL  string        `env:"USERBASE_ALERT_WEBHOOK_URL"`
	Source      string        `env:"USERBASE_ALERT_SOURCE, default=userbase"`
	MinInterval time.Duration `env:"USERBASE_ALERT_MIN_INTERVAL, default=2s"`
	Burst       int           `env:"USERBASE_ALERT_BURST, default=5"`
	SendTimeout time.Duration `env:"USERBASE_ALERT_SEND_TIMEOUT, default=5s"`
}

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Source string         `json:"source"`
	Event  string         `json:"event"`
	At     time.Time      `json:"at"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Webhook is a fire-and-forget alerter. Alerts over the rate limit are
// dropped and delivery failures are only logged.
type Webhook struct {
	cfg     Config
	log     *slog.Logger
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebhook returns a Webhook for cfg.
func NewWebhook(cfg Config, log *slog.Logger) (*Webhook, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("notify: webhook url is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 2 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	return &Webhook{
		cfg:     cfg,
		log:     log,
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), cfg.Burst),
	}, nil
}

// Alert queues event for delivery and returns immediately.
// The request outlives ctx on purpose: callers are usually failing requests.
func (w *Webhook) Alert(_ context.Context, event string, fields map[string]any) {
	if !w.limiter.Allow() {
		w.log.Warn("alert.drop.rate_limited", "event", event)
		return
	}
	p := Payload{Source: w.cfg.Source, Event: event, At: time.Now().UTC(), Fields: fields}
	go w.send(p)
}

func (w *Webhook) send(p Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.SendTimeout)
	defer cancel()

	body, err := json.Marshal(p)
	if err != nil {
		w.log.Error("alert.marshal.fail", "event", p.Event, "err", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		w.log.Error("alert.request.fail", "event", p.Event, "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.log.Error("alert.send.fail", "event", p.Event, "err", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.log.Error("alert.send.rejected", "event", p.Event, "status", resp.StatusCode)
	}
}

// Nop drops every alert.
type Nop struct{}

func (Nop) Alert(context.Context, string, map[string]any) {}
