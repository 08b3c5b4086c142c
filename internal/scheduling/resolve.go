// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package scheduling

import "time"

// Loop bounds. A year of daily steps covers every reachable constraint; an
// iteration count beyond these indicates a defect, not a legitimate rule.
const (
	maxScanDays = 366
	maxSkipDays = 366
)

// Resolve computes the next valid occurrence date for rule, anchored at
// anchor. When initial is true the anchor itself is a candidate (the first
// occurrence starts exactly on the chosen date); otherwise the result is
// strictly after the anchor. The result is always a working day per cal,
// normalized to UTC midnight. Resolve is pure and never fails: malformed
// rules are repaired by NewRule and every loop is bounded.
func Resolve(rule Rule, anchor time.Time, initial bool, cal Calendar) time.Time {
	candidate := Day(anchor)

	switch rule.Kind {
	case Weekly:
		if !initial {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return scanToWorking(candidate, cal, rule.allowsWeekday)

	case Monthly:
		if !initial {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return scanToWorking(candidate, cal, rule.allowsMonthDay)

	case Interval:
		if !initial {
			candidate = candidate.AddDate(0, 0, rule.interval)
		}

	case Quarterly:
		if !initial {
			candidate = addMonthsToTarget(candidate, 3, rule.targetDay)
		}

	case HalfYearly:
		if !initial {
			candidate = addMonthsToTarget(candidate, 6, rule.targetDay)
		}

	case Yearly:
		if !initial {
			candidate = yearAhead(candidate, rule.yearMonth, rule.targetDay)
		}

	default: // Daily
		if !initial {
			candidate = candidate.AddDate(0, 0, 1)
		}
	}

	return skipToWorking(candidate, cal)
}

// skipToWorking advances candidate one day at a time past holidays and
// weekend days.
func skipToWorking(candidate time.Time, cal Calendar) time.Time {
	for i := 0; i < maxSkipDays; i++ {
		if cal.IsWorkingDay(candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// scanToWorking advances candidate day by day until it both satisfies the
// rule constraint and is a working day. Re-checking the constraint after a
// holiday skip keeps a skip from landing on a disallowed weekday or
// day-of-month.
func scanToWorking(candidate time.Time, cal Calendar, allowed func(time.Time) bool) time.Time {
	for i := 0; i < maxScanDays; i++ {
		if allowed(candidate) && cal.IsWorkingDay(candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// addMonthsToTarget jumps n calendar months ahead of t and lands on
// targetDay, clamped to the length of the destination month. Month
// arithmetic is done on the first of the month so a Jan 31 anchor cannot
// overflow into an extra month.
func addMonthsToTarget(t time.Time, n int, targetDay int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return clampDay(first.Year(), first.Month(), targetDay)
}

// yearAhead jumps one year ahead of t and lands on the rule's target month
// and day.
func yearAhead(t time.Time, month time.Month, targetDay int) time.Time {
	return clampDay(t.Year()+1, month, targetDay)
}

func clampDay(year int, month time.Month, day int) time.Time {
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
