package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tanbih/internal/domain"
	"tanbih/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// ListActiveItems loads every item eligible for reminders together with
// its rule and any active deadlines. Finished or non-active items are
// filtered server-side; the scheduler does the day math.
func (s *Store) ListActiveItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT i.id, i.title, COALESCE(i.ref_number,''), i.expiry_date, i.status,
		       COALESCE(i.workflow_status,''), COALESCE(d.name,''), COALESCE(c.name,''),
		       COALESCE(i.notes,''), COALESCE(i.dynamic_fields,'{}'::jsonb),
		       COALESCE(r.id::text,''), r.days_before, COALESCE(r.is_active,false)
		FROM items i
		LEFT JOIN departments d ON d.id = i.department_id
		LEFT JOIN categories c ON c.id = i.category_id
		LEFT JOIN reminder_rules r ON r.id = i.reminder_rule_id
		WHERE i.status = 'active' AND COALESCE(i.workflow_status,'') <> 'finished'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Item
	ids := make([]string, 0, 64)
	for rows.Next() {
		var it domain.Item
		var fieldsJSON []byte
		var ruleID string
		var daysBefore []int32
		var ruleActive bool
		if err := rows.Scan(&it.ID, &it.Title, &it.RefNumber, &it.ExpiryDate, &it.Status,
			&it.WorkflowStatus, &it.Department, &it.Category, &it.Notes, &fieldsJSON,
			&ruleID, &daysBefore, &ruleActive); err != nil {
			return nil, err
		}
		it.DynamicFields = decodeStringMap(fieldsJSON)
		if ruleID != "" {
			rule := &domain.ReminderRule{ID: ruleID, IsActive: ruleActive}
			for _, d := range daysBefore {
				rule.DaysBefore = append(rule.DaysBefore, int(d))
			}
			it.Rule = rule
		}
		items = append(items, it)
		ids = append(ids, it.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	deadlines, err := s.activeDeadlines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Deadlines = deadlines[items[i].ID]
	}
	return items, nil
}

func (s *Store) activeDeadlines(ctx context.Context, itemIDs []string) (map[string][]domain.Deadline, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, item_id, COALESCE(deadline_label,''), due_date, status, last_reminder_sent_at
		FROM item_deadlines
		WHERE status = 'active' AND item_id = ANY($1)
	`, itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.Deadline)
	for rows.Next() {
		var d domain.Deadline
		if err := rows.Scan(&d.ID, &d.ItemID, &d.Label, &d.DueDate, &d.Status, &d.LastReminderSentAt); err != nil {
			return nil, err
		}
		out[d.ItemID] = append(out[d.ItemID], d)
	}
	return out, rows.Err()
}

func (s *Store) ActiveRecipients(ctx context.Context, itemID string) ([]domain.Recipient, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT r.id, r.name, COALESCE(r.telegram_id,''), COALESCE(r.whatsapp_number,''),
		       COALESCE(r.email,''), r.is_active
		FROM recipients r
		JOIN item_recipients ir ON ir.recipient_id = r.id
		WHERE ir.item_id = $1 AND r.is_active
	`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var r domain.Recipient
		if err := rows.Scan(&r.ID, &r.Name, &r.TelegramID, &r.WhatsAppNumber, &r.Email, &r.IsActive); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// HasAttemptToday is the dedup guard lookup: a sent or failed row for the
// same (item|deadline, recipient, reminder_day) on the same calendar day
// makes the pair a skip. Only scheduler rows count: ad hoc sends have no
// run_id and must not suppress a due reminder. Skip rows don't count
// either.
func (s *Store) HasAttemptToday(ctx context.Context, itemID, deadlineID, recipientID string, reminderDay int, day string) (bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT 1 FROM notification_logs
		WHERE item_id = $1 AND COALESCE(deadline_id,'') = $2 AND recipient_id = $3
		  AND reminder_day = $4 AND day = $5::date AND run_id IS NOT NULL
		  AND status IN ('sent','failed')
		LIMIT 1
	`, itemID, deadlineID, recipientID, reminderDay, day)
	var one int
	err := row.Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) RateLimitCount(ctx context.Context, recipientID, day string) (int, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT count FROM rate_limits WHERE recipient_id = $1 AND day = $2::date
	`, recipientID, day)
	var count int
	err := row.Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// IncrementRateLimit bumps the per-recipient daily counter. The upsert is
// a single atomic statement so concurrent runs never lose an update.
func (s *Store) IncrementRateLimit(ctx context.Context, recipientID, day string) (int, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO rate_limits (recipient_id, day, count, last_sent_at)
		VALUES ($1, $2::date, 1, now())
		ON CONFLICT (recipient_id, day)
		DO UPDATE SET count = rate_limits.count + 1, last_sent_at = now()
		RETURNING count
	`, recipientID, day)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) InsertNotificationLog(ctx context.Context, in store.NotificationLogInsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO notification_logs
			(id, run_id, item_id, deadline_id, recipient_id, reminder_day, day,
			 channel, status, provider_message_id, error_message, message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7::date,$8,$9,$10,$11,$12,$13)
	`, in.ID, nullIfEmpty(in.RunID), nullIfEmpty(in.ItemID), nullIfEmpty(in.DeadlineID), nullIfEmpty(in.RecipientID),
		in.ReminderDay, in.Day, in.Channel, in.Status,
		nullIfEmpty(in.ProviderMsgID), nullIfEmpty(in.ErrorMessage), nullIfEmpty(in.Message), in.Now)
	return err
}

func (s *Store) CreateRun(ctx context.Context, in store.RunInsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO automation_runs (id, status, triggered_by, source, started_at)
		VALUES ($1,$2,$3,$4,$5)
	`, in.ID, in.Status, nullIfEmpty(in.TriggeredBy), nullIfEmpty(in.Source), in.StartedAt)
	return err
}

func (s *Store) FinishRun(ctx context.Context, in store.RunUpdate) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE automation_runs
		SET status=$2, completed_at=$3, duration_ms=$4,
		    items_processed=$5, items_success=$6, items_failed=$7,
		    results=$8, error_message=$9
		WHERE id=$1
	`, in.ID, in.Status, in.CompletedAt, in.DurationMS,
		in.ItemsProcessed, in.ItemsSuccess, in.ItemsFailed,
		in.Results, nullIfEmpty(in.ErrorMessage))
	return err
}

func (s *Store) GetRun(ctx context.Context, id string) (store.AutomationRun, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, status, COALESCE(triggered_by,''), COALESCE(source,''), started_at,
		       completed_at, COALESCE(duration_ms,0), COALESCE(items_processed,0),
		       COALESCE(items_success,0), COALESCE(items_failed,0),
		       COALESCE(results,'null'::jsonb), COALESCE(error_message,'')
		FROM automation_runs WHERE id=$1
	`, id)
	var r store.AutomationRun
	err := row.Scan(&r.ID, &r.Status, &r.TriggeredBy, &r.Source, &r.StartedAt,
		&r.CompletedAt, &r.DurationMS, &r.ItemsProcessed, &r.ItemsSuccess,
		&r.ItemsFailed, &r.Results, &r.ErrorMessage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.AutomationRun{}, false, nil
		}
		return store.AutomationRun{}, false, err
	}
	return r, true, nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.AutomationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, status, COALESCE(triggered_by,''), COALESCE(source,''), started_at,
		       completed_at, COALESCE(duration_ms,0), COALESCE(items_processed,0),
		       COALESCE(items_success,0), COALESCE(items_failed,0),
		       COALESCE(results,'null'::jsonb), COALESCE(error_message,'')
		FROM automation_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.AutomationRun
	for rows.Next() {
		var r store.AutomationRun
		if err := rows.Scan(&r.ID, &r.Status, &r.TriggeredBy, &r.Source, &r.StartedAt,
			&r.CompletedAt, &r.DurationMS, &r.ItemsProcessed, &r.ItemsSuccess,
			&r.ItemsFailed, &r.Results, &r.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ActiveTemplates(ctx context.Context) ([]store.MessageTemplate, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, channel, COALESCE(template_type,''), template_text, is_default, is_active
		FROM message_templates WHERE is_active
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.MessageTemplate
	for rows.Next() {
		var t store.MessageTemplate
		if err := rows.Scan(&t.ID, &t.Channel, &t.TemplateType, &t.Text, &t.IsDefault, &t.IsActive); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetIntegrationSettings reads one integration's key/value blob, e.g.
// whatsapp -> {api_base_url, apikey, instance_name}.
func (s *Store) GetIntegrationSettings(ctx context.Context, name string) (map[string]string, bool, error) {
	row := s.DB.QueryRow(ctx, `SELECT settings FROM integration_settings WHERE name=$1`, name)
	var raw []byte
	err := row.Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return decodeStringMap(raw), true, nil
}

func (s *Store) InsertInApp(ctx context.Context, in store.InAppInsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO in_app_notifications (id, recipient_id, title, body, item_id, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5,false,$6)
	`, in.ID, in.RecipientID, in.Title, in.Body, nullIfEmpty(in.ItemID), in.Now)
	return err
}

func (s *Store) TouchDeadlineReminder(ctx context.Context, deadlineID string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE item_deadlines SET last_reminder_sent_at = $2 WHERE id = $1
	`, deadlineID, now)
	return err
}

func decodeStringMap(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var anyMap map[string]any
	if err := json.Unmarshal(raw, &anyMap); err != nil || len(anyMap) == 0 {
		return nil
	}
	out := make(map[string]string, len(anyMap))
	for k, v := range anyMap {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
