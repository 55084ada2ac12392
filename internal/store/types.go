package store

import (
	"encoding/json"
	"time"
)

type NotificationLogInsert struct {
	ID            string
	RunID         string
	ItemID        string
	DeadlineID    string
	RecipientID   string
	ReminderDay   int
	Day           string // Riyadh calendar day, dedup key
	Channel       string
	Status        string
	ProviderMsgID string
	ErrorMessage  string
	Message       string
	Now           time.Time
}

type NotificationLog struct {
	ID            string
	RunID         string
	ItemID        string
	DeadlineID    string
	RecipientID   string
	ReminderDay   int
	Day           string
	Channel       string
	Status        string
	ProviderMsgID string
	ErrorMessage  string
	CreatedAt     time.Time
}

type RunInsert struct {
	ID          string
	Status      string
	TriggeredBy string
	Source      string
	StartedAt   time.Time
}

type RunUpdate struct {
	ID             string
	Status         string
	CompletedAt    time.Time
	DurationMS     int64
	ItemsProcessed int
	ItemsSuccess   int
	ItemsFailed    int
	Results        json.RawMessage
	ErrorMessage   string
}

type AutomationRun struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	TriggeredBy    string          `json:"triggered_by,omitempty"`
	Source         string          `json:"source,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	DurationMS     int64           `json:"duration_ms"`
	ItemsProcessed int             `json:"items_processed"`
	ItemsSuccess   int             `json:"items_success"`
	ItemsFailed    int             `json:"items_failed"`
	Results        json.RawMessage `json:"results,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

type MessageTemplate struct {
	ID           string
	Channel      string
	TemplateType string
	Text         string
	IsDefault    bool
	IsActive     bool
}

type InAppInsert struct {
	ID          string
	RecipientID string
	Title       string
	Body        string
	ItemID      string
	Now         time.Time
}
