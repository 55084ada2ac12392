// Package clock resolves "today" for reminder math. All calendar
// arithmetic runs in Saudi local time; callers inject the reference
// instant so runs are reproducible in tests.
package clock

import (
	"sync"
	"time"
)

var riyadh = sync.OnceValue(func() *time.Location {
	loc, err := time.LoadLocation("Asia/Riyadh")
	if err != nil {
		// KSA has no DST, so a fixed UTC+3 offset is exact.
		return time.FixedZone("AST", 3*60*60)
	}
	return loc
})

// Location returns the dispatch timezone. Changing the served region is
// a one-line change here.
func Location() *time.Location {
	return riyadh()
}

// Today truncates the given instant to local midnight.
func Today(now time.Time) time.Time {
	local := now.In(Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Location())
}

// Day returns the calendar-day key (YYYY-MM-DD) used by the dedup guard
// and the rate-limit table.
func Day(now time.Time) string {
	return Today(now).Format("2006-01-02")
}

// DaysUntilDue computes whole calendar days between today and the due
// date, both normalized to local midnight. Past-due dates go negative.
func DaysUntilDue(now, due time.Time) int {
	return int(Today(due).Sub(Today(now)).Hours() / 24)
}
