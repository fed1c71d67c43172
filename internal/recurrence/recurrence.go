// Package recurrence computes the next run time for a recurring campaign
// from its persisted recurrence rule. The calculator is pure: it takes the
// rule and "now" and performs no I/O, so it can be tested exhaustively
// against fixed clocks.
package recurrence

import (
	"time"

	"github.com/clienthq/followup-engine/internal/domain"
)

// Next returns the next timestamp strictly after now that satisfies the
// rule, with the rule's configured clock time applied. The second return
// is false when the rule produces no further runs (type "once").
func Next(rule domain.RecurrenceRule, now time.Time) (time.Time, bool) {
	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}
	hour, minute := rule.ClockTime()

	var next time.Time
	switch rule.Type {
	case domain.RecurrenceOnce:
		return time.Time{}, false

	case domain.RecurrenceDaily:
		next = atClock(now.AddDate(0, 0, interval), hour, minute)

	case domain.RecurrenceWeekly:
		if len(rule.DaysOfWeek) > 0 {
			next = nextSelectedWeekday(now, rule.DaysOfWeek, hour, minute)
		} else {
			next = atClock(now.AddDate(0, 0, interval*7), hour, minute)
		}

	case domain.RecurrenceMonthly:
		next = atClock(now.AddDate(0, interval, 0), hour, minute)

	case domain.RecurrenceYearly:
		next = atClock(now.AddDate(interval, 0, 0), hour, minute)

	default:
		next = atClock(now.AddDate(0, 0, interval), hour, minute)
	}

	// Never return a timestamp at or before now: a stale rule or clock skew
	// would otherwise make the campaign re-fire on the very next poll.
	for !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, true
}

// Ended reports whether the rule's end conditions stop the campaign before
// the candidate next run: either the send budget is used up (endAfter) or
// the next run would land past the configured end date.
func Ended(rule domain.RecurrenceRule, sendCount int, next time.Time) bool {
	if rule.Type == domain.RecurrenceOnce && sendCount >= 1 {
		return true
	}
	if rule.EndAfter != nil && sendCount >= *rule.EndAfter {
		return true
	}
	if rule.EndDate != nil && next.After(*rule.EndDate) {
		return true
	}
	return false
}

// nextSelectedWeekday scans forward day-by-day (at most 7 steps) to the
// first date whose weekday is in days and whose clock time is still ahead
// of now.
func nextSelectedWeekday(now time.Time, days []int, hour, minute int) time.Time {
	selected := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		if d >= 0 && d <= 6 {
			selected[time.Weekday(d)] = true
		}
	}
	if len(selected) == 0 {
		selected[now.Weekday()] = true
	}

	for offset := 0; offset <= 7; offset++ {
		candidate := atClock(now.AddDate(0, 0, offset), hour, minute)
		if selected[candidate.Weekday()] && candidate.After(now) {
			return candidate
		}
	}
	// Unreachable with a non-empty selection; fall back one week out.
	return atClock(now.AddDate(0, 0, 7), hour, minute)
}

func atClock(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
