// Package schedule selects which reminders are due on a given day.
package schedule

import (
	"context"
	"time"

	"tanbih/internal/clock"
	"tanbih/internal/domain"
)

type Store interface {
	ListActiveItems(ctx context.Context) ([]domain.Item, error)
}

type Scheduler struct {
	Store Store
}

// DueReminders walks active items and returns every (item|deadline) whose
// day offset matches its reminder rule exactly. Items with active
// deadlines are reminded per deadline; the item's own expiry_date is
// only consulted when it has none. Missed days are not caught up.
func (s *Scheduler) DueReminders(ctx context.Context, now time.Time) ([]domain.DueReminder, error) {
	items, err := s.Store.ListActiveItems(ctx)
	if err != nil {
		return nil, err
	}

	var due []domain.DueReminder
	for _, it := range items {
		if it.Rule == nil || !it.Rule.IsActive {
			continue
		}

		if len(it.Deadlines) > 0 {
			for _, d := range it.Deadlines {
				days := clock.DaysUntilDue(now, d.DueDate)
				if it.Rule.Matches(days) {
					due = append(due, domain.DueReminder{
						Item:          it,
						DueDate:       d.DueDate,
						DaysUntilDue:  days,
						DeadlineID:    d.ID,
						DeadlineLabel: d.Label,
					})
				}
			}
			continue
		}

		if it.ExpiryDate.IsZero() {
			continue
		}
		days := clock.DaysUntilDue(now, it.ExpiryDate)
		if it.Rule.Matches(days) {
			due = append(due, domain.DueReminder{
				Item:         it,
				DueDate:      it.ExpiryDate,
				DaysUntilDue: days,
			})
		}
	}
	return due, nil
}
