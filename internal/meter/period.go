package meter

import "time"

// minResetDay and maxResetDay bound the configurable monthly reset day.
// Capping at 28 sidesteps end-of-month ambiguity: every month has a 28th.
const (
	minResetDay = 1
	maxResetDay = 28
)

// ClampResetDay forces day into the valid 1..28 range.
func ClampResetDay(day int) int {
	if day < minResetDay {
		return minResetDay
	}
	if day > maxResetDay {
		return maxResetDay
	}
	return day
}

// CurrentPeriodStart returns the start of the billing period containing now.
// If now's day-of-month has reached resetDay the period started on resetDay
// of the current month, otherwise on resetDay of the previous month
// (rolling over the year in January). Pure function: callers must recompute
// on every query rather than cache the boundary.
func CurrentPeriodStart(now time.Time, resetDay int) time.Time {
	resetDay = ClampResetDay(resetDay)

	year, month, day := now.Date()
	if day >= resetDay {
		return time.Date(year, month, resetDay, 0, 0, 0, 0, now.Location())
	}
	// time.Date normalizes month-1, so January rolls to December of the
	// previous year on its own.
	return time.Date(year, month-1, resetDay, 0, 0, 0, 0, now.Location())
}
