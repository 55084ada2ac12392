// Package dispatch runs the reminder pipeline: select due reminders,
// resolve recipients, gate on dedup and the daily quota, render, fan out
// per channel and account for every outcome on a run row.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"tanbih/internal/clock"
	"tanbih/internal/domain"
	"tanbih/internal/observability"
	"tanbih/internal/store"
	"tanbih/internal/template"
)

type Store interface {
	ActiveRecipients(ctx context.Context, itemID string) ([]domain.Recipient, error)
	HasAttemptToday(ctx context.Context, itemID, deadlineID, recipientID string, reminderDay int, day string) (bool, error)
	RateLimitCount(ctx context.Context, recipientID, day string) (int, error)
	IncrementRateLimit(ctx context.Context, recipientID, day string) (int, error)
	InsertNotificationLog(ctx context.Context, in store.NotificationLogInsert) error
	CreateRun(ctx context.Context, in store.RunInsert) error
	FinishRun(ctx context.Context, in store.RunUpdate) error
	ActiveTemplates(ctx context.Context) ([]store.MessageTemplate, error)
	InsertInApp(ctx context.Context, in store.InAppInsert) error
	TouchDeadlineReminder(ctx context.Context, deadlineID string, now time.Time) error
}

type Scheduler interface {
	DueReminders(ctx context.Context, now time.Time) ([]domain.DueReminder, error)
}

type Orchestrator struct {
	Store     Store
	Scheduler Scheduler
	// Channels builds the run's sender set; integration settings are
	// re-read on every run so config edits apply without a restart.
	Channels func(ctx context.Context) (ChannelSet, error)

	MaxPerDay  int
	AppBaseURL string

	NewRunID func() string
	NewLogID func() string
}

type RunOptions struct {
	TriggeredBy string
	Source      string
}

type Summary struct {
	RunID      string
	Status     domain.RunStatus
	DurationMS int64
	Results    domain.RunResults
	Error      string
}

// Run executes one dispatch. Exactly one automation_runs row is written
// and always driven to a terminal status; a fatal error (the item scan or
// setup failing) yields status failed plus a non-nil error for the
// caller. Partial send failures are not fatal.
func (o *Orchestrator) Run(ctx context.Context, now time.Time, opts RunOptions) (Summary, error) {
	runID := o.NewRunID()
	start := time.Now()

	if err := o.Store.CreateRun(ctx, store.RunInsert{
		ID:          runID,
		Status:      string(domain.RunRunning),
		TriggeredBy: opts.TriggeredBy,
		Source:      opts.Source,
		StartedAt:   start.UTC(),
	}); err != nil {
		return Summary{}, err
	}

	tally, runErr := o.execute(ctx, now, runID)
	duration := time.Since(start)

	sentTotal := 0
	for _, n := range tally.results.Sent {
		sentTotal += n
	}

	var status domain.RunStatus
	var errMsg string
	fatal := runErr != nil && !errors.Is(runErr, context.Canceled)
	switch {
	case fatal:
		status = domain.RunFailed
		errMsg = runErr.Error()
	case sentTotal == 0 && tally.results.Failed > 0:
		status = domain.RunFailed
	case tally.results.Failed > 0:
		status = domain.RunCompletedWithErrors
	default:
		status = domain.RunCompleted
	}
	if runErr != nil && errMsg == "" {
		errMsg = runErr.Error() // cancellation, recorded but not fatal
	}

	resultsJSON, _ := json.Marshal(tally.results)

	// The terminal write must survive caller cancellation: a run row may
	// never be left in running state.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.Store.FinishRun(finishCtx, store.RunUpdate{
		ID:             runID,
		Status:         string(status),
		CompletedAt:    time.Now().UTC(),
		DurationMS:     duration.Milliseconds(),
		ItemsProcessed: tally.results.Processed,
		ItemsSuccess:   tally.itemsSuccess,
		ItemsFailed:    tally.itemsFailed,
		Results:        resultsJSON,
		ErrorMessage:   errMsg,
	}); err != nil {
		slog.Error("finish run failed", "err", err, "run_id", runID, "status", status)
	}

	observability.DispatchRuns.WithLabelValues(string(status)).Inc()
	observability.RunDuration.Observe(duration.Seconds())

	summary := Summary{
		RunID:      runID,
		Status:     status,
		DurationMS: duration.Milliseconds(),
		Results:    tally.results,
		Error:      errMsg,
	}
	if fatal {
		return summary, runErr
	}
	return summary, nil
}

type runTally struct {
	results      domain.RunResults
	itemsSuccess int
	itemsFailed  int
}

type pairOutcome struct {
	sent   bool
	failed bool
}

func (o *Orchestrator) execute(ctx context.Context, now time.Time, runID string) (runTally, error) {
	tally := runTally{results: domain.RunResults{Sent: map[string]int{}}}

	templates, err := o.Store.ActiveTemplates(ctx)
	if err != nil {
		return tally, err
	}
	channels, err := o.Channels(ctx)
	if err != nil {
		return tally, err
	}
	due, err := o.Scheduler.DueReminders(ctx, now)
	if err != nil {
		return tally, err
	}

	day := clock.Day(now)
	for _, rem := range due {
		if ctx.Err() != nil {
			return tally, ctx.Err()
		}

		recipients, err := o.Store.ActiveRecipients(ctx, rem.Item.ID)
		if err != nil {
			slog.Error("recipient resolution failed", "err", err, "item_id", rem.Item.ID)
			tally.results.Failed++
			tally.itemsFailed++
			continue
		}
		if len(recipients) == 0 {
			continue // no active recipients is not an error
		}

		tally.results.Processed++
		remSent, remFailed := false, false
		for _, rcpt := range recipients {
			out := o.dispatchPair(ctx, runID, day, rem, rcpt, templates, channels, &tally.results)
			remSent = remSent || out.sent
			remFailed = remFailed || out.failed
		}
		if remSent {
			tally.itemsSuccess++
		} else if remFailed {
			tally.itemsFailed++
		}
	}
	return tally, nil
}

// dispatchPair handles one (reminder, recipient) pair: dedup, quota,
// render, then every applicable channel independently.
func (o *Orchestrator) dispatchPair(ctx context.Context, runID, day string, rem domain.DueReminder, rcpt domain.Recipient, templates []store.MessageTemplate, channels ChannelSet, res *domain.RunResults) pairOutcome {
	base := store.NotificationLogInsert{
		RunID:       runID,
		ItemID:      rem.Item.ID,
		DeadlineID:  rem.DeadlineID,
		RecipientID: rcpt.ID,
		ReminderDay: rem.DaysUntilDue,
		Day:         day,
	}

	dup, err := o.Store.HasAttemptToday(ctx, rem.Item.ID, rem.DeadlineID, rcpt.ID, rem.DaysUntilDue, day)
	if err != nil {
		slog.Error("dedup lookup failed", "err", err, "item_id", rem.Item.ID, "recipient_id", rcpt.ID)
		res.Failed++
		return pairOutcome{failed: true}
	}
	if dup {
		res.Skipped++
		observability.Skips.WithLabelValues("duplicate").Inc()
		o.logOutcome(ctx, base, string(domain.ChannelAll), domain.StatusSkipped, "", "", "")
		return pairOutcome{}
	}

	count, err := o.Store.RateLimitCount(ctx, rcpt.ID, day)
	if err != nil {
		slog.Error("rate limit read failed", "err", err, "recipient_id", rcpt.ID)
		res.Failed++
		return pairOutcome{failed: true}
	}
	if count >= o.MaxPerDay {
		res.RateLimited++
		observability.Skips.WithLabelValues("rate_limited").Inc()
		o.logOutcome(ctx, base, string(domain.ChannelAll), domain.StatusRateLimited, "", "", "")
		return pairOutcome{}
	}

	vars := reminderVars(rem, rcpt, o.AppBaseURL)
	var out pairOutcome

	attempt := func(channel domain.Channel, send func(body string) (string, error)) {
		body := template.Render(pickTemplate(templates, channel, reminderTemplateType), vars)
		start := time.Now()
		msgID, err := send(body)
		observability.ProviderLatency.WithLabelValues(string(channel)).Observe(time.Since(start).Seconds())
		if err != nil {
			out.failed = true
			res.Failed++
			observability.ChannelSend.WithLabelValues(string(channel), "error").Inc()
			o.logOutcome(ctx, base, string(channel), domain.StatusFailed, "", err.Error(), body)
			slog.Error("channel send failed", "err", err, "channel", channel,
				"item_id", rem.Item.ID, "recipient_id", rcpt.ID)
			return
		}
		out.sent = true
		res.Sent[string(channel)]++
		observability.ChannelSend.WithLabelValues(string(channel), "ok").Inc()
		o.logOutcome(ctx, base, string(channel), domain.StatusSent, msgID, "", body)
	}

	if channels.Telegram != nil && rcpt.TelegramID != "" {
		attempt(domain.ChannelTelegram, func(body string) (string, error) {
			return channels.Telegram.Send(ctx, rcpt.TelegramID, body)
		})
	}
	if channels.WhatsApp != nil && rcpt.WhatsAppNumber != "" {
		attempt(domain.ChannelWhatsApp, func(body string) (string, error) {
			return channels.WhatsApp.Send(ctx, rcpt.WhatsAppNumber, body)
		})
	}
	if rcpt.Email != "" {
		if channels.Email == nil || !channels.Email.Configured() {
			// fail closed, but visibly: the miss is recorded, not dropped
			res.Skipped++
			observability.Skips.WithLabelValues("email_not_configured").Inc()
			o.logOutcome(ctx, base, string(domain.ChannelEmail), domain.StatusSkipped, "", "email provider not configured", "")
		} else {
			attempt(domain.ChannelEmail, func(body string) (string, error) {
				return channels.Email.Send(ctx, rcpt.Email, rcpt.Name, emailSubject(rem), body)
			})
		}
	}
	attempt(domain.ChannelInApp, func(body string) (string, error) {
		err := o.Store.InsertInApp(ctx, store.InAppInsert{
			ID:          o.NewLogID(),
			RecipientID: rcpt.ID,
			Title:       rem.Item.Title,
			Body:        body,
			ItemID:      rem.Item.ID,
			Now:         time.Now().UTC(),
		})
		return "", err
	})

	if out.sent {
		// One dispatched reminder counts once against the daily quota,
		// however many channels carried it.
		if _, err := o.Store.IncrementRateLimit(ctx, rcpt.ID, day); err != nil {
			slog.Error("rate limit increment failed", "err", err, "recipient_id", rcpt.ID)
		}
		if rem.DeadlineID != "" {
			if err := o.Store.TouchDeadlineReminder(ctx, rem.DeadlineID, time.Now().UTC()); err != nil {
				slog.Error("deadline touch failed", "err", err, "deadline_id", rem.DeadlineID)
			}
		}
	}
	return out
}

func (o *Orchestrator) logOutcome(ctx context.Context, base store.NotificationLogInsert, channel string, status domain.SendStatus, msgID, errMsg, body string) {
	in := base
	in.ID = o.NewLogID()
	in.Channel = channel
	in.Status = string(status)
	in.ProviderMsgID = msgID
	in.ErrorMessage = errMsg
	in.Message = body
	in.Now = time.Now().UTC()

	// Outcome rows are the audit trail and the dedup source of truth;
	// write them even when the caller has already cancelled.
	if err := o.Store.InsertNotificationLog(context.WithoutCancel(ctx), in); err != nil {
		slog.Error("notification log insert failed", "err", err,
			"item_id", in.ItemID, "recipient_id", in.RecipientID, "channel", channel, "status", status)
	}
}
