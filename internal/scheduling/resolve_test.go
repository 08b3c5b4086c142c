// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package scheduling

import (
	"testing"
	"time"
)

// 2026-01-01 is a Thursday; that anchors most fixtures below.
func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intp(v int) *int { return &v }

// ============================================================================
// Resolve: basic kinds
// ============================================================================

func TestResolve_DailyInitialAnchorsOnStartDate(t *testing.T) {
	rule := NewRule(RuleConfig{Kind: Daily})
	cal := DefaultCalendar()

	thursday := date(2026, time.January, 1)
	got := Resolve(rule, thursday, true, cal)
	if !got.Equal(thursday) {
		t.Errorf("initial daily resolve = %v, want anchor %v", got, thursday)
	}
}

func TestResolve_DailySkipsSunday(t *testing.T) {
	rule := NewRule(RuleConfig{Kind: Daily})
	cal := DefaultCalendar()

	// Thursday -> Friday -> Saturday -> Monday (Sunday skipped).
	steps := []time.Time{
		date(2026, time.January, 1), // Thursday
		date(2026, time.January, 2), // Friday
		date(2026, time.January, 3), // Saturday
		date(2026, time.January, 5), // Monday
	}
	for i := 0; i < len(steps)-1; i++ {
		got := Resolve(rule, steps[i], false, cal)
		if !got.Equal(steps[i+1]) {
			t.Errorf("step %d: Resolve(%v) = %v, want %v", i, steps[i], got, steps[i+1])
		}
	}
}

func TestResolve_Idempotent(t *testing.T) {
	rule := NewRule(RuleConfig{Kind: Weekly, DaysOfWeek: []int{1, 3, 5}})
	cal := NewCalendar([]time.Time{date(2026, time.January, 7)}, nil)
	anchor := date(2026, time.January, 5)

	first := Resolve(rule, anchor, false, cal)
	second := Resolve(rule, anchor, false, cal)
	if !first.Equal(second) {
		t.Errorf("Resolve not deterministic: %v vs %v", first, second)
	}
}

func TestResolve_ForwardProgress(t *testing.T) {
	cal := NewCalendar([]time.Time{date(2026, time.January, 2)}, []time.Weekday{time.Saturday, time.Sunday})
	anchor := date(2026, time.January, 1)

	tests := []struct {
		name string
		cfg  RuleConfig
	}{
		{"daily", RuleConfig{Kind: Daily}},
		{"weekly", RuleConfig{Kind: Weekly, DaysOfWeek: []int{2}}},
		{"monthly", RuleConfig{Kind: Monthly, DaysOfMonth: []int{10}}},
		{"quarterly", RuleConfig{Kind: Quarterly, DayOfMonth: intp(15)}},
		{"half_yearly", RuleConfig{Kind: HalfYearly, DayOfMonth: intp(15)}},
		{"yearly", RuleConfig{Kind: Yearly, DayOfMonth: intp(15), Month: intp(5)}},
		{"interval", RuleConfig{Kind: Interval, IntervalDays: 7}},
		{"interval_zero_defaults_to_one", RuleConfig{Kind: Interval}},
		{"unknown_kind_defaults_to_daily", RuleConfig{Kind: "fortnightly"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := NewRule(tt.cfg)
			got := Resolve(rule, anchor, false, cal)
			if !got.After(anchor) {
				t.Errorf("Resolve(%v) = %v, not after anchor", anchor, got)
			}
			if !cal.IsWorkingDay(got) {
				t.Errorf("Resolve(%v) = %v lands on a non-working day", anchor, got)
			}
		})
	}
}

// ============================================================================
// Resolve: weekly constraint
// ============================================================================

func TestResolve_WeeklyAllowedSet(t *testing.T) {
	// Mon/Wed/Fri.
	rule := NewRule(RuleConfig{Kind: Weekly, DaysOfWeek: []int{1, 3, 5}})
	cal := DefaultCalendar()

	got := Resolve(rule, date(2026, time.January, 5), false, cal) // Monday
	if want := date(2026, time.January, 7); !got.Equal(want) {    // Wednesday
		t.Errorf("from Monday: got %v, want %v", got, want)
	}

	got = Resolve(rule, date(2026, time.January, 9), false, cal) // Friday
	if want := date(2026, time.January, 12); !got.Equal(want) {  // next Monday
		t.Errorf("from Friday: got %v, want %v", got, want)
	}

	// Every resolved date stays inside the allowed set over a long run.
	cur := date(2026, time.January, 5)
	for i := 0; i < 50; i++ {
		cur = Resolve(rule, cur, false, cal)
		switch cur.Weekday() {
		case time.Monday, time.Wednesday, time.Friday:
		default:
			t.Fatalf("iteration %d landed on %v (%s)", i, cur, cur.Weekday())
		}
	}
}

func TestResolve_WeeklyInitialKeepsMatchingAnchor(t *testing.T) {
	rule := NewRule(RuleConfig{Kind: Weekly, DaysOfWeek: []int{1}})
	cal := DefaultCalendar()

	monday := date(2026, time.January, 5)
	if got := Resolve(rule, monday, true, cal); !got.Equal(monday) {
		t.Errorf("initial weekly on matching weekday = %v, want %v", got, monday)
	}
}

func TestResolve_WeeklyHolidayLandsOnNextAllowedWeekday(t *testing.T) {
	rule := NewRule(RuleConfig{Kind: Weekly, DaysOfWeek: []int{1}})
	// The target Monday is a holiday; the skip must not settle on Tuesday.
	cal := NewCalendar([]time.Time{date(2026, time.January, 12)}, nil)

	got := Resolve(rule, date(2026, time.January, 5), false, cal)
	if want := date(2026, time.January, 19); !got.Equal(want) {
		t.Errorf("got %v, want following Monday %v", got, want)
	}
}

func TestResolve_WeeklyLegacyScalarFallback(t *testing.T) {
	rule := NewRule(RuleConfig{Kind: Weekly, DayOfWeek: intp(4)}) // Thursday
	cal := DefaultCalendar()

	got := Resolve(rule, date(2026, time.January, 5), false, cal)
	if want := date(2026, time.January, 8); !got.Equal(want) {
		t.Errorf("got %v, want Thursday %v", got, want)
	}
}

// ============================================================================
// Resolve: monthly constraint
// ============================================================================

func TestResolve_MonthlyAllowedSet(t *testing.T) {
	rule := NewRule(RuleConfig{Kind: Monthly, DaysOfMonth: []int{1, 15}})
	cal := DefaultCalendar()

	tests := []struct {
		name   string
		anchor time.Time
		want   time.Time
	}{
		{"day 2 reaches the 15th", date(2026, time.April, 2), date(2026, time.April, 15)},
		{"day 16 rolls to next month's 1st", date(2026, time.April, 16), date(2026, time.May, 1)},
		{"day 15 rolls to next month's 1st", date(2026, time.April, 15), date(2026, time.May, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(rule, tt.anchor, false, cal)
			if !got.Equal(tt.want) {
				t.Errorf("Resolve(%v) = %v, want %v", tt.anchor, got, tt.want)
			}
		})
	}
}

func TestResolve_MonthlyShortMonthClampsToLastDay(t *testing.T) {
	rule := NewRule(RuleConfig{Kind: Monthly, DaysOfMonth: []int{31}})
	cal := DefaultCalendar()

	// February 2026 has 28 days; a 31st-of-month rule lands on the 28th
	// (a Saturday, working under the default Sunday-only weekend).
	got := Resolve(rule, date(2026, time.February, 5), false, cal)
	if want := date(2026, time.February, 28); !got.Equal(want) {
		t.Errorf("got %v, want clamped %v", got, want)
	}
}

// ============================================================================
// Resolve: quarterly / half-yearly / yearly / interval
// ============================================================================

func TestResolve_QuarterlyPreservesTargetDay(t *testing.T) {
	rule := NewRule(RuleConfig{Kind: Quarterly, DayOfMonth: intp(31)})
	cal := DefaultCalendar()

	// Jan 31 + 3 months with target day 31 clamps to Apr 30.
	got := Resolve(rule, date(2026, time.January, 31), false, cal)
	if want := date(2026, time.April, 30); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolve_HalfYearlyJumpsSixMonths(t *testing.T) {
	rule := NewRule(RuleConfig{Kind: HalfYearly, DayOfMonth: intp(10)})
	cal := DefaultCalendar()

	got := Resolve(rule, date(2026, time.February, 10), false, cal)
	if want := date(2026, time.August, 10); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolve_YearlyPreservesMonthAndDay(t *testing.T) {
	// Month is zero-based in the config (2 = March).
	rule := NewRule(RuleConfig{Kind: Yearly, DayOfMonth: intp(16), Month: intp(2)})
	cal := DefaultCalendar()

	got := Resolve(rule, date(2026, time.January, 10), false, cal)
	if want := date(2027, time.March, 16); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolve_IntervalAddsConfiguredGap(t *testing.T) {
	rule := NewRule(RuleConfig{Kind: Interval, IntervalDays: 10})
	cal := DefaultCalendar()

	// Jan 1 + 10 days = Jan 11, a Sunday, so the result slides to Monday.
	got := Resolve(rule, date(2026, time.January, 1), false, cal)
	if want := date(2026, time.January, 12); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolve_IntervalInitialAnchorsOnStartDate(t *testing.T) {
	rule := NewRule(RuleConfig{Kind: Interval, IntervalDays: 10})
	cal := DefaultCalendar()

	anchor := date(2026, time.January, 1)
	if got := Resolve(rule, anchor, true, cal); !got.Equal(anchor) {
		t.Errorf("initial interval resolve = %v, want anchor %v", got, anchor)
	}
}

// ============================================================================
// Resolve: calendar respect
// ============================================================================

func TestResolve_CalendarRespect(t *testing.T) {
	holidays := []time.Time{date(2026, time.January, 2)} // Friday
	cal := NewCalendar(holidays, []time.Weekday{time.Saturday, time.Sunday})
	rule := NewRule(RuleConfig{Kind: Daily})

	// Thursday -> Friday holiday -> weekend -> Monday.
	got := Resolve(rule, date(2026, time.January, 1), false, cal)
	if want := date(2026, time.January, 5); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if cal.IsHoliday(got) || cal.IsWeekend(got) {
		t.Errorf("resolved date %v is non-working", got)
	}
}

func TestResolve_NormalizesTimeOfDay(t *testing.T) {
	rule := NewRule(RuleConfig{Kind: Daily})
	cal := DefaultCalendar()

	anchor := time.Date(2026, time.January, 1, 17, 45, 12, 0, time.UTC)
	got := Resolve(rule, anchor, false, cal)
	if want := date(2026, time.January, 2); !got.Equal(want) {
		t.Errorf("got %v, want midnight-normalized %v", got, want)
	}
}

// ============================================================================
// Calendar
// ============================================================================

func TestCalendar_Defaults(t *testing.T) {
	cal := DefaultCalendar()

	if !cal.IsWeekend(date(2026, time.January, 4)) { // Sunday
		t.Error("default weekend should include Sunday")
	}
	if cal.IsWeekend(date(2026, time.January, 3)) { // Saturday
		t.Error("default weekend should not include Saturday")
	}
	if cal.IsHoliday(date(2026, time.January, 1)) {
		t.Error("default calendar should have no holidays")
	}
}

func TestCalendar_HolidayMatchesDayGranularity(t *testing.T) {
	cal := NewCalendar([]time.Time{time.Date(2026, time.March, 17, 9, 30, 0, 0, time.UTC)}, nil)

	if !cal.IsHoliday(date(2026, time.March, 17)) {
		t.Error("holiday with time-of-day component should match the whole day")
	}
}
