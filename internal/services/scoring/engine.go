// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package scoring implements the tenant points engine. Points are awarded
// when an assigner verifies a delegated task: finishing ahead of the deadline
// earns a per-unit bonus, finishing late costs a per-unit penalty. Totals can
// go negative.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
)

// HistoryActionPoints is the delegation history action recorded when a task
// is scored.
const HistoryActionPoints = "Points Calculated"

// Result is the outcome of scoring one task.
type Result struct {
	// Points awarded to the doer. Negative when the task finished late.
	Points int
	// Bracket is the label of the bracket that matched.
	Bracket string
	// AssignerKickback is the assigner's share, zero unless Points > 0.
	AssignerKickback int
}

// Engine scores completed tasks against a tenant's point settings.
type Engine struct {
	settings models.PointSettings
}

// NewEngine creates a scoring engine for one tenant's settings.
func NewEngine(settings models.PointSettings) *Engine {
	return &Engine{settings: settings}
}

// Enabled reports whether the tenant has scoring switched on with at least
// one bracket configured.
func (e *Engine) Enabled() bool {
	return e.settings.Active && len(e.settings.Brackets) > 0
}

// Score computes the points for a task created at createdAt with the given
// deadline, completed at completionTime.
func (e *Engine) Score(createdAt, deadline, completionTime time.Time) Result {
	if !e.Enabled() {
		return Result{}
	}

	bracket := e.selectBracket(deadline.Sub(createdAt).Hours() / 24)

	unitHours := 1.0
	if bracket.Unit == models.UnitDay {
		unitHours = 24
	}

	deltaHours := deadline.Sub(completionTime).Hours()

	var points int
	if deltaHours >= 0 {
		points = int(math.Floor(deltaHours / unitHours * float64(bracket.EarlyBonus)))
	} else {
		points = -int(math.Floor(-deltaHours / unitHours * float64(bracket.LatePenalty)))
	}

	return Result{
		Points:           points,
		Bracket:          bracket.Label,
		AssignerKickback: kickback(points),
	}
}

// selectBracket picks the first bracket, in ascending duration order, whose
// limit covers the planned duration. Tasks longer than every bracket fall
// into the last one.
func (e *Engine) selectBracket(durationDays float64) models.PointBracket {
	brackets := make([]models.PointBracket, len(e.settings.Brackets))
	copy(brackets, e.settings.Brackets)
	sort.SliceStable(brackets, func(i, j int) bool {
		return brackets[i].MaxDurationDays < brackets[j].MaxDurationDays
	})

	for _, b := range brackets {
		if durationDays <= b.MaxDurationDays {
			return b
		}
	}
	return brackets[len(brackets)-1]
}

// kickback is the assigner's share of a positive score, at least 5 points.
func kickback(points int) int {
	if points <= 0 {
		return 0
	}
	share := int(math.Floor(float64(points) * 0.1))
	if share < 5 {
		return 5
	}
	return share
}

// UnlockedBadges returns the badges from the library that a new total
// crosses and the employee has not earned yet.
func UnlockedBadges(library []models.Badge, earned []models.EarnedBadge, totalPoints int) []models.Badge {
	have := make(map[uuid.UUID]bool, len(earned))
	for _, b := range earned {
		have[b.BadgeID] = true
	}

	var unlocked []models.Badge
	for _, b := range library {
		if totalPoints >= b.PointThreshold && !have[b.ID] {
			unlocked = append(unlocked, b)
		}
	}
	return unlocked
}
