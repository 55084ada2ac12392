package dispatch

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"tanbih/internal/providers/email"
	"tanbih/internal/providers/telegram"
	"tanbih/internal/providers/whatsapp"
)

// TextSender is a chat-style channel: one address, one rendered body.
type TextSender interface {
	Send(ctx context.Context, to, text string) (string, error)
}

// EmailSender needs a subject and a display name on top of the body.
type EmailSender interface {
	Configured() bool
	Send(ctx context.Context, toEmail, toName, subject, htmlBody string) (string, error)
}

// ChannelSet is one run's view of the outbound channels. A nil Telegram
// or WhatsApp means not configured and is silently not attempted; Email
// stays non-nil even when unconfigured so the miss gets reported.
type ChannelSet struct {
	Telegram TextSender
	WhatsApp TextSender
	Email    EmailSender
}

type SettingsStore interface {
	GetIntegrationSettings(ctx context.Context, name string) (map[string]string, bool, error)
}

// Factory builds a ChannelSet at the start of each run: tokens come from
// env, the WhatsApp instance and email sender identity from the
// integrations store. Limiters and breakers are long-lived and shared
// across runs.
type Factory struct {
	Settings SettingsStore

	TelegramBotToken string
	SendgridAPIKey   string

	HTTP *http.Client

	TelegramLimiter *rate.Limiter
	TelegramBreaker *gobreaker.CircuitBreaker
	WhatsAppLimiter *rate.Limiter
	WhatsAppBreaker *gobreaker.CircuitBreaker
}

func (f *Factory) Build(ctx context.Context) (ChannelSet, error) {
	var cs ChannelSet

	httpClient := f.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}

	if f.TelegramBotToken != "" {
		cs.Telegram = &telegram.Client{
			BotToken: f.TelegramBotToken,
			HTTP:     httpClient,
			Limiter:  f.TelegramLimiter,
			Breaker:  f.TelegramBreaker,
		}
	}

	wa, found, err := f.Settings.GetIntegrationSettings(ctx, "whatsapp")
	if err != nil {
		return cs, err
	}
	if found {
		apiKey := wa["apikey"]
		if apiKey == "" {
			apiKey = wa["access_token"]
		}
		c := &whatsapp.Client{
			BaseURL:  wa["api_base_url"],
			APIKey:   apiKey,
			Instance: wa["instance_name"],
			HTTP:     httpClient,
			Limiter:  f.WhatsAppLimiter,
			Breaker:  f.WhatsAppBreaker,
		}
		if c.Configured() {
			cs.WhatsApp = c
		}
	}

	em, _, err := f.Settings.GetIntegrationSettings(ctx, "email")
	if err != nil {
		return cs, err
	}
	cs.Email = email.New(f.SendgridAPIKey, em["sender_address"], em["sender_name"])

	return cs, nil
}
