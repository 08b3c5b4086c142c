// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package scheduling

import "time"

// FrequencyKind identifies how a task recurs.
type FrequencyKind string

// Recurrence kinds.
const (
	Daily      FrequencyKind = "daily"
	Weekly     FrequencyKind = "weekly"
	Monthly    FrequencyKind = "monthly"
	Quarterly  FrequencyKind = "quarterly"
	HalfYearly FrequencyKind = "half_yearly"
	Yearly     FrequencyKind = "yearly"
	Interval   FrequencyKind = "interval"
)

// ValidFrequencyKinds contains all valid frequency kinds.
var ValidFrequencyKinds = map[FrequencyKind]bool{
	Daily:      true,
	Weekly:     true,
	Monthly:    true,
	Quarterly:  true,
	HalfYearly: true,
	Yearly:     true,
	Interval:   true,
}

// RuleConfig is the persisted, user-supplied shape of a recurrence rule.
// The set fields take precedence; the legacy single-value fields act as
// fallback when the corresponding set is empty.
type RuleConfig struct {
	Kind         FrequencyKind `json:"kind" db:"kind"`
	DaysOfWeek   []int         `json:"days_of_week,omitempty"`
	DaysOfMonth  []int         `json:"days_of_month,omitempty"`
	IntervalDays int           `json:"interval_days,omitempty"`

	// Legacy single-value fields.
	DayOfWeek  *int `json:"day_of_week,omitempty"`
	DayOfMonth *int `json:"day_of_month,omitempty"`
	Month      *int `json:"month,omitempty"`
}

// Rule is a normalized recurrence rule. The allowed sets are computed once
// here so the resolver never branches on the legacy fields.
type Rule struct {
	Kind FrequencyKind

	weekdays  map[time.Weekday]struct{} // Weekly
	monthDays map[int]struct{}          // Monthly
	interval  int                       // Interval, always >= 1
	targetDay int                       // Quarterly/HalfYearly/Yearly, 1..31
	yearMonth time.Month                // Yearly
}

// NewRule normalizes cfg into a Rule. Malformed configs are repaired via
// documented defaults rather than rejected: an unknown kind becomes Daily,
// an empty weekday set falls back to the legacy scalar (default Monday), an
// empty day-of-month set falls back to the legacy scalar (default 1), and a
// non-positive interval becomes 1. The resolver is therefore total.
func NewRule(cfg RuleConfig) Rule {
	r := Rule{Kind: cfg.Kind}
	if !ValidFrequencyKinds[r.Kind] {
		r.Kind = Daily
	}

	r.weekdays = make(map[time.Weekday]struct{})
	for _, d := range cfg.DaysOfWeek {
		if d >= 0 && d <= 6 {
			r.weekdays[time.Weekday(d)] = struct{}{}
		}
	}
	if len(r.weekdays) == 0 {
		d := 1 // Monday
		if cfg.DayOfWeek != nil && *cfg.DayOfWeek >= 0 && *cfg.DayOfWeek <= 6 {
			d = *cfg.DayOfWeek
		}
		r.weekdays[time.Weekday(d)] = struct{}{}
	}

	r.monthDays = make(map[int]struct{})
	for _, d := range cfg.DaysOfMonth {
		if d >= 1 && d <= 31 {
			r.monthDays[d] = struct{}{}
		}
	}
	if len(r.monthDays) == 0 {
		d := 1
		if cfg.DayOfMonth != nil && *cfg.DayOfMonth >= 1 && *cfg.DayOfMonth <= 31 {
			d = *cfg.DayOfMonth
		}
		r.monthDays[d] = struct{}{}
	}

	r.interval = cfg.IntervalDays
	if r.interval < 1 {
		r.interval = 1
	}

	r.targetDay = 1
	if cfg.DayOfMonth != nil && *cfg.DayOfMonth >= 1 && *cfg.DayOfMonth <= 31 {
		r.targetDay = *cfg.DayOfMonth
	}

	r.yearMonth = time.January
	if cfg.Month != nil && *cfg.Month >= 0 && *cfg.Month <= 11 {
		r.yearMonth = time.Month(*cfg.Month + 1)
	}

	return r
}

// allowsWeekday reports whether t's weekday is in the rule's weekday set.
func (r Rule) allowsWeekday(t time.Time) bool {
	_, ok := r.weekdays[t.Weekday()]
	return ok
}

// allowsMonthDay reports whether day t satisfies the day-of-month set.
// When every allowed day exceeds the length of t's month (a 31st-of-month
// rule landing in February), the last day of the month counts as a match so
// short months are clamped instead of skipped.
func (r Rule) allowsMonthDay(t time.Time) bool {
	if _, ok := r.monthDays[t.Day()]; ok {
		return true
	}
	last := daysInMonth(t.Year(), t.Month())
	if t.Day() != last {
		return false
	}
	for d := range r.monthDays {
		if d > last {
			return true
		}
	}
	return false
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
