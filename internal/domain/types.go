package domain

import (
	"errors"
	"time"
)

type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelInApp    Channel = "in_app"
	ChannelAll      Channel = "all" // template fallback only, never a send target
)

type SendStatus string

const (
	StatusSent        SendStatus = "sent"
	StatusFailed      SendStatus = "failed"
	StatusSkipped     SendStatus = "skipped"
	StatusRateLimited SendStatus = "rate_limited"
)

type RunStatus string

const (
	RunPending             RunStatus = "pending"
	RunRunning             RunStatus = "running"
	RunCompleted           RunStatus = "completed"
	RunCompletedWithErrors RunStatus = "completed_with_errors"
	RunFailed              RunStatus = "failed"
)

const WorkflowFinished = "finished"

type Item struct {
	ID             string
	Title          string
	RefNumber      string
	ExpiryDate     time.Time
	Status         string // active | expired | archived
	WorkflowStatus string
	Department     string
	Category       string
	Notes          string
	DynamicFields  map[string]string
	Rule           *ReminderRule
	Deadlines      []Deadline
}

// Deadline is one of possibly several independent expiry dates on an item
// (a vehicle's license, inspection and insurance each get their own).
type Deadline struct {
	ID                 string
	ItemID             string
	Label              string
	DueDate            time.Time
	Status             string
	LastReminderSentAt *time.Time
}

type ReminderRule struct {
	ID         string
	DaysBefore []int
	IsActive   bool
}

// Matches reports whether the rule fires for the given day offset.
// Membership is exact: a rule {7,3,1,0} does not fire at 5 days out.
func (r *ReminderRule) Matches(daysUntilDue int) bool {
	if r == nil || !r.IsActive {
		return false
	}
	for _, d := range r.DaysBefore {
		if d == daysUntilDue {
			return true
		}
	}
	return false
}

type Recipient struct {
	ID             string
	Name           string
	TelegramID     string
	WhatsAppNumber string
	Email          string
	IsActive       bool
}

// DueReminder is one scheduler hit: an item (or one of its deadlines)
// whose due date matches its reminder rule today.
type DueReminder struct {
	Item          Item
	DueDate       time.Time
	DaysUntilDue  int
	DeadlineID    string // empty when the item's own expiry_date fired
	DeadlineLabel string
}

type UnifiedRecipient struct {
	ID             string `json:"id,omitempty"` // required for the in_app channel
	Name           string `json:"name"`
	TelegramID     string `json:"telegram_id,omitempty"`
	WhatsAppNumber string `json:"whatsapp_number,omitempty"`
	Email          string `json:"email,omitempty"`
}

type UnifiedRequest struct {
	Type        string            `json:"type"`
	Channels    []Channel         `json:"channels"`
	Recipient   UnifiedRecipient  `json:"recipient"`
	Data        map[string]string `json:"data"`
	TemplateKey string            `json:"template_key,omitempty"`
	TenantID    string            `json:"tenant_id,omitempty"`
	ItemID      string            `json:"item_id,omitempty"`
	Priority    string            `json:"priority,omitempty"`
}

func (r UnifiedRequest) Validate() error {
	if len(r.Channels) == 0 {
		return ErrNoChannels
	}
	for _, c := range r.Channels {
		switch c {
		case ChannelTelegram, ChannelWhatsApp, ChannelEmail, ChannelInApp:
		default:
			return ErrUnknownChannel
		}
	}
	return nil
}

var (
	ErrNoChannels     = errors.New("no channels requested")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrNotConfigured  = errors.New("channel not configured")
)

type ChannelResult struct {
	Channel       Channel    `json:"channel"`
	Status        SendStatus `json:"status"`
	ProviderMsgID string     `json:"provider_message_id,omitempty"`
	Error         string     `json:"error,omitempty"`
}

type UnifiedResponse struct {
	Success bool            `json:"success"`
	Results []ChannelResult `json:"results"`
	Summary UnifiedSummary  `json:"summary"`
}

type UnifiedSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// RunResults is the JSON summary persisted on every automation run row.
type RunResults struct {
	Processed   int            `json:"processed"`
	Sent        map[string]int `json:"sent"`
	Failed      int            `json:"failed"`
	Skipped     int            `json:"skipped"`
	RateLimited int            `json:"rate_limited"`
}
