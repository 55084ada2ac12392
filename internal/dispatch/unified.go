package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tanbih/internal/clock"
	"tanbih/internal/domain"
	"tanbih/internal/observability"
	"tanbih/internal/store"
	"tanbih/internal/template"
)

// SendUnified is the ad hoc multi-channel path behind
// POST /unified-notification: no scheduling, no dedup and no daily
// quota, since the caller decides what goes out. Every attempt is
// still logged.
func (o *Orchestrator) SendUnified(ctx context.Context, req domain.UnifiedRequest, now time.Time) (domain.UnifiedResponse, error) {
	if err := req.Validate(); err != nil {
		return domain.UnifiedResponse{}, err
	}

	channels, err := o.Channels(ctx)
	if err != nil {
		return domain.UnifiedResponse{}, err
	}
	templates, err := o.Store.ActiveTemplates(ctx)
	if err != nil {
		return domain.UnifiedResponse{}, err
	}

	vars := template.Vars{Fields: req.Data}
	day := clock.Day(now)

	resp := domain.UnifiedResponse{}
	for _, ch := range req.Channels {
		result := o.sendUnifiedChannel(ctx, req, ch, templates, channels, vars, day)
		resp.Results = append(resp.Results, result)
		resp.Summary.Total++
		if result.Status == domain.StatusSent {
			resp.Summary.Success++
		} else {
			resp.Summary.Failed++
		}
	}
	resp.Success = resp.Summary.Failed == 0
	return resp, nil
}

func (o *Orchestrator) sendUnifiedChannel(ctx context.Context, req domain.UnifiedRequest, ch domain.Channel, templates []store.MessageTemplate, channels ChannelSet, vars template.Vars, day string) domain.ChannelResult {
	body := req.Data["message"]
	if text := pickStoredTemplate(templates, ch, req.TemplateKey); text != "" {
		body = template.Render(text, vars)
	}

	var msgID string
	var err error
	switch ch {
	case domain.ChannelTelegram:
		if channels.Telegram == nil || req.Recipient.TelegramID == "" {
			err = domain.ErrNotConfigured
			break
		}
		msgID, err = channels.Telegram.Send(ctx, req.Recipient.TelegramID, body)
	case domain.ChannelWhatsApp:
		if channels.WhatsApp == nil || req.Recipient.WhatsAppNumber == "" {
			err = domain.ErrNotConfigured
			break
		}
		msgID, err = channels.WhatsApp.Send(ctx, req.Recipient.WhatsAppNumber, body)
	case domain.ChannelEmail:
		if channels.Email == nil || !channels.Email.Configured() || req.Recipient.Email == "" {
			err = domain.ErrNotConfigured
			break
		}
		subject := req.Data["subject"]
		if subject == "" {
			subject = req.Type
		}
		msgID, err = channels.Email.Send(ctx, req.Recipient.Email, req.Recipient.Name, subject, body)
	case domain.ChannelInApp:
		if req.Recipient.ID == "" {
			err = errors.New("in_app channel requires recipient.id")
			break
		}
		err = o.Store.InsertInApp(ctx, store.InAppInsert{
			ID:          o.NewLogID(),
			RecipientID: req.Recipient.ID,
			Title:       req.Type,
			Body:        body,
			ItemID:      req.ItemID,
			Now:         time.Now().UTC(),
		})
	}

	in := store.NotificationLogInsert{
		ItemID:      req.ItemID,
		RecipientID: req.Recipient.ID,
		Day:         day,
	}
	result := domain.ChannelResult{Channel: ch}
	if err != nil {
		result.Status = domain.StatusFailed
		result.Error = err.Error()
		observability.ChannelSend.WithLabelValues(string(ch), "error").Inc()
		o.logOutcome(ctx, in, string(ch), domain.StatusFailed, "", err.Error(), body)
		slog.Error("unified send failed", "err", err, "channel", ch, "type", req.Type)
		return result
	}
	result.Status = domain.StatusSent
	result.ProviderMsgID = msgID
	observability.ChannelSend.WithLabelValues(string(ch), "ok").Inc()
	o.logOutcome(ctx, in, string(ch), domain.StatusSent, msgID, "", body)
	return result
}
