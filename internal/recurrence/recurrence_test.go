package recurrence

import (
	"testing"
	"time"

	"github.com/clienthq/followup-engine/internal/domain"
)

// Tuesday 2026-03-10 10:00 UTC. A fixed reference point keeps weekday
// expectations readable.
var tuesday10am = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func rule(t domain.RecurrenceType, interval int, timeOfDay string, days ...int) domain.RecurrenceRule {
	return domain.RecurrenceRule{Type: t, Interval: interval, TimeOfDay: timeOfDay, DaysOfWeek: days}
}

func TestNext_Once(t *testing.T) {
	_, ok := Next(rule(domain.RecurrenceOnce, 1, "09:00"), tuesday10am)
	if ok {
		t.Error("once rule should produce no next run")
	}
}

func TestNext_Daily(t *testing.T) {
	tests := []struct {
		name     string
		interval int
		now      time.Time
		want     time.Time
	}{
		{
			name:     "interval 1 advances one day",
			interval: 1,
			now:      tuesday10am,
			want:     time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "interval 3 advances three days",
			interval: 3,
			now:      tuesday10am,
			want:     time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "month boundary",
			interval: 1,
			now:      time.Date(2026, 3, 31, 14, 0, 0, 0, time.UTC),
			want:     time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Next(rule(domain.RecurrenceDaily, tt.interval, "09:00"), tt.now)
			if !ok {
				t.Fatal("expected a next run")
			}
			if !got.Equal(tt.want) {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNext_WeeklySelectedDays(t *testing.T) {
	// daysOfWeek = [Mon, Wed], now = Tuesday 10:00 → Wednesday 09:00.
	got, ok := Next(rule(domain.RecurrenceWeekly, 1, "09:00", 1, 3), tuesday10am)
	if !ok {
		t.Fatal("expected a next run")
	}
	want := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}
	if got.Weekday() != time.Wednesday {
		t.Errorf("weekday = %v, want Wednesday", got.Weekday())
	}
}

func TestNext_WeeklySameDayEarlierClock(t *testing.T) {
	// Now is Tuesday 10:00 and Tuesday is selected, but 09:00 has already
	// passed — the result must skip to the following selected day.
	got, _ := Next(rule(domain.RecurrenceWeekly, 1, "09:00", 2), tuesday10am)
	want := time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next() = %v, want next Tuesday %v", got, want)
	}
}

func TestNext_WeeklySameDayLaterClock(t *testing.T) {
	// Tuesday selected with a clock time still ahead today.
	got, _ := Next(rule(domain.RecurrenceWeekly, 1, "16:30", 2), tuesday10am)
	want := time.Date(2026, 3, 10, 16, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next() = %v, want same-day %v", got, want)
	}
}

func TestNext_WeeklyNoSelection(t *testing.T) {
	got, _ := Next(rule(domain.RecurrenceWeekly, 2, "09:00"), tuesday10am)
	want := time.Date(2026, 3, 24, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next() = %v, want interval*7 days out %v", got, want)
	}
}

func TestNext_WeeklyAlwaysOnSelectedDay(t *testing.T) {
	days := []int{1, 3, 5}
	selected := map[time.Weekday]bool{time.Monday: true, time.Wednesday: true, time.Friday: true}

	now := tuesday10am
	for i := 0; i < 30; i++ {
		got, ok := Next(rule(domain.RecurrenceWeekly, 1, "09:00", days...), now)
		if !ok {
			t.Fatal("expected a next run")
		}
		if !got.After(now) {
			t.Fatalf("Next() = %v not strictly after now %v", got, now)
		}
		if !selected[got.Weekday()] {
			t.Fatalf("Next() landed on %v, not in selected days", got.Weekday())
		}
		now = got
	}
}

func TestNext_Monthly(t *testing.T) {
	got, _ := Next(rule(domain.RecurrenceMonthly, 2, "08:15"), tuesday10am)
	want := time.Date(2026, 5, 10, 8, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}
}

func TestNext_YearlyHonorsInterval(t *testing.T) {
	got, _ := Next(rule(domain.RecurrenceYearly, 2, "09:00"), tuesday10am)
	want := time.Date(2028, 3, 10, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next() = %v, want interval respected %v", got, want)
	}
}

func TestNext_StrictlyFuture(t *testing.T) {
	// A computed time at or before now must roll forward by a day.
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	got, _ := Next(rule(domain.RecurrenceWeekly, 1, "09:00", 2), now)
	if !got.After(now) {
		t.Errorf("Next() = %v not strictly after now %v", got, now)
	}
}

func TestNext_PeriodStability(t *testing.T) {
	// Recomputing from the previous output must keep advancing by the
	// same period, never collapsing onto itself.
	r := rule(domain.RecurrenceDaily, 2, "09:00")
	prev := tuesday10am
	for i := 0; i < 10; i++ {
		next, ok := Next(r, prev)
		if !ok {
			t.Fatal("expected a next run")
		}
		if !next.After(prev) {
			t.Fatalf("iteration %d: %v not after %v", i, next, prev)
		}
		if i > 0 {
			if diff := next.Sub(prev); diff != 48*time.Hour {
				t.Fatalf("iteration %d: period %v, want 48h", i, diff)
			}
		}
		prev = next
	}
}

func TestEnded(t *testing.T) {
	three := 3
	endDate := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		rule      domain.RecurrenceRule
		sendCount int
		next      time.Time
		want      bool
	}{
		{"once after first send", rule(domain.RecurrenceOnce, 1, "09:00"), 1, tuesday10am, true},
		{"endAfter not reached", domain.RecurrenceRule{Type: domain.RecurrenceDaily, Interval: 1, TimeOfDay: "09:00", EndAfter: &three}, 2, tuesday10am, false},
		{"endAfter reached", domain.RecurrenceRule{Type: domain.RecurrenceDaily, Interval: 1, TimeOfDay: "09:00", EndAfter: &three}, 3, tuesday10am, true},
		{"endDate passed", domain.RecurrenceRule{Type: domain.RecurrenceDaily, Interval: 1, TimeOfDay: "09:00", EndDate: &endDate}, 0, time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC), true},
		{"endDate ahead", domain.RecurrenceRule{Type: domain.RecurrenceDaily, Interval: 1, TimeOfDay: "09:00", EndDate: &endDate}, 0, tuesday10am, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ended(tt.rule, tt.sendCount, tt.next); got != tt.want {
				t.Errorf("Ended() = %v, want %v", got, tt.want)
			}
		})
	}
}
