// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package scheduling implements the recurrence engine: resolving the next
// valid occurrence date for a recurrence rule against a tenant calendar, and
// reconciling a task's due-date pointer with its completion history to
// materialize the occurrences that are visible today.
//
// Everything in this package is pure date arithmetic at day granularity.
// There is no I/O and no shared state; the calendar is always passed in
// explicitly by the caller.
package scheduling

import "time"

// Calendar is a tenant's non-working-day oracle. A date is non-working when
// it falls on a holiday or its weekday is in the weekend set.
type Calendar struct {
	holidays map[time.Time]struct{}
	weekend  map[time.Weekday]struct{}
}

// NewCalendar builds a Calendar from a holiday list and a weekend weekday
// set. An empty weekend set defaults to Sunday. Holiday dates are matched at
// day granularity regardless of their time-of-day component.
func NewCalendar(holidays []time.Time, weekend []time.Weekday) Calendar {
	c := Calendar{
		holidays: make(map[time.Time]struct{}, len(holidays)),
		weekend:  make(map[time.Weekday]struct{}, len(weekend)),
	}
	for _, h := range holidays {
		c.holidays[Day(h)] = struct{}{}
	}
	for _, w := range weekend {
		if w >= time.Sunday && w <= time.Saturday {
			c.weekend[w] = struct{}{}
		}
	}
	if len(c.weekend) == 0 {
		c.weekend[time.Sunday] = struct{}{}
	}
	return c
}

// DefaultCalendar returns a calendar with no holidays and a Sunday-only
// weekend.
func DefaultCalendar() Calendar {
	return NewCalendar(nil, nil)
}

// IsHoliday reports whether t falls on a configured holiday.
func (c Calendar) IsHoliday(t time.Time) bool {
	_, ok := c.holidays[Day(t)]
	return ok
}

// IsWeekend reports whether t's weekday is in the weekend set.
func (c Calendar) IsWeekend(t time.Time) bool {
	_, ok := c.weekend[t.Weekday()]
	return ok
}

// IsWorkingDay reports whether t is neither a holiday nor a weekend day.
func (c Calendar) IsWorkingDay(t time.Time) bool {
	return !c.IsHoliday(t) && !c.IsWeekend(t)
}

// Day normalizes t to UTC midnight. All comparisons in this package happen
// at day granularity.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}
