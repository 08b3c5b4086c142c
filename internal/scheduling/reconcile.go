// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package scheduling

import (
	"errors"
	"sort"
	"time"
)

// MaxVisibleInstances bounds the reconciliation walk. It doubles as the
// maximum number of outstanding occurrences a single task can surface at
// once and as the defensive cap against a rule that stops advancing.
const MaxVisibleInstances = 30

// ErrResolverStalled is returned by Reconcile when the resolver fails to
// move the pointer forward. The instances produced up to that point are
// still valid; callers should log the anomaly rather than discard them.
var ErrResolverStalled = errors.New("scheduling: resolver did not advance pointer")

// Occurrence is one concrete calendar-day instance a user must act on.
type Occurrence struct {
	Date    time.Time `json:"date"`
	Backlog bool      `json:"backlog"`
}

// CompletionRecord identifies a history entry that resolves an occurrence.
// InstanceDate names the logical occurrence the completion satisfies;
// older records that predate instance tracking carry only the wall-clock
// Timestamp, which is used as fallback.
type CompletionRecord struct {
	InstanceDate time.Time
	Timestamp    time.Time
}

// day returns the calendar day the record resolves.
func (c CompletionRecord) day() time.Time {
	if !c.InstanceDate.IsZero() {
		return Day(c.InstanceDate)
	}
	return Day(c.Timestamp)
}

// Reconcile walks the due-date pointer from nextDue up to today and returns
// every occurrence not already resolved by a completion record, oldest
// first. Occurrences strictly before today are flagged as backlog. The walk
// stops after MaxVisibleInstances iterations, and stops with
// ErrResolverStalled if the resolver ever returns a date at or before the
// current pointer.
func Reconcile(rule Rule, nextDue, today time.Time, done []CompletionRecord, cal Calendar) ([]Occurrence, error) {
	resolved := make(map[time.Time]struct{}, len(done))
	for _, c := range done {
		resolved[c.day()] = struct{}{}
	}

	pointer := Day(nextDue)
	todayDay := Day(today)

	var out []Occurrence
	for i := 0; i < MaxVisibleInstances && !pointer.After(todayDay); i++ {
		if _, ok := resolved[pointer]; !ok {
			out = append(out, Occurrence{
				Date:    pointer,
				Backlog: pointer.Before(todayDay),
			})
		}

		next := Resolve(rule, pointer, false, cal)
		if !next.After(pointer) {
			sortOccurrences(out)
			return out, ErrResolverStalled
		}
		pointer = next
	}

	sortOccurrences(out)
	return out, nil
}

// ShouldAdvance reports whether completing instanceDate moves the task's
// due-date pointer: only the exact pointer target advances it. Completing a
// backlog date records history but leaves the schedule untouched.
func ShouldAdvance(nextDue, instanceDate time.Time) bool {
	return SameDay(nextDue, instanceDate)
}

func sortOccurrences(out []Occurrence) {
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
}
