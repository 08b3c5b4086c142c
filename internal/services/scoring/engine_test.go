// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package scoring

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
)

func testSettings() models.PointSettings {
	return models.PointSettings{
		Active: true,
		Brackets: []models.PointBracket{
			{Label: "short", MaxDurationDays: 1, Unit: models.UnitHour, EarlyBonus: 2, LatePenalty: 3},
			{Label: "medium", MaxDurationDays: 7, Unit: models.UnitDay, EarlyBonus: 10, LatePenalty: 15},
			{Label: "long", MaxDurationDays: 30, Unit: models.UnitDay, EarlyBonus: 20, LatePenalty: 25},
		},
	}
}

func TestScore_EarlyHourly(t *testing.T) {
	engine := NewEngine(testSettings())

	createdAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	deadline := createdAt.Add(12 * time.Hour) // duration 0.5 days -> "short"
	completed := deadline.Add(-3 * time.Hour) // 3 hours early

	result := engine.Score(createdAt, deadline, completed)
	if result.Bracket != "short" {
		t.Fatalf("bracket = %q, want short", result.Bracket)
	}
	// 3 hours x 2 points/hour
	if result.Points != 6 {
		t.Fatalf("points = %d, want 6", result.Points)
	}
	if result.AssignerKickback != 5 {
		t.Fatalf("kickback = %d, want minimum 5", result.AssignerKickback)
	}
}

func TestScore_LateDaily_Negative(t *testing.T) {
	engine := NewEngine(testSettings())

	createdAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	deadline := createdAt.Add(5 * 24 * time.Hour)  // "medium"
	completed := deadline.Add(2 * 24 * time.Hour)  // 2 days late

	result := engine.Score(createdAt, deadline, completed)
	if result.Bracket != "medium" {
		t.Fatalf("bracket = %q, want medium", result.Bracket)
	}
	// 2 days x 15 penalty/day
	if result.Points != -30 {
		t.Fatalf("points = %d, want -30", result.Points)
	}
	if result.AssignerKickback != 0 {
		t.Fatalf("kickback = %d, want 0 for late completion", result.AssignerKickback)
	}
}

func TestScore_FractionalUnitsFloor(t *testing.T) {
	engine := NewEngine(testSettings())

	createdAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	deadline := createdAt.Add(3 * 24 * time.Hour) // "medium", day unit
	completed := deadline.Add(-36 * time.Hour)    // 1.5 days early

	result := engine.Score(createdAt, deadline, completed)
	// 1.5 days x 10 = 15, floor applies to the product
	if result.Points != 15 {
		t.Fatalf("points = %d, want 15", result.Points)
	}
}

func TestScore_ExactlyOnDeadline(t *testing.T) {
	engine := NewEngine(testSettings())

	createdAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	deadline := createdAt.Add(48 * time.Hour)

	result := engine.Score(createdAt, deadline, deadline)
	if result.Points != 0 {
		t.Fatalf("points = %d, want 0 on deadline", result.Points)
	}
	if result.AssignerKickback != 0 {
		t.Fatalf("kickback = %d, want 0 for zero points", result.AssignerKickback)
	}
}

func TestScore_DurationBeyondAllBrackets(t *testing.T) {
	engine := NewEngine(testSettings())

	createdAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	deadline := createdAt.Add(90 * 24 * time.Hour) // longer than every bracket
	completed := deadline.Add(-24 * time.Hour)

	result := engine.Score(createdAt, deadline, completed)
	if result.Bracket != "long" {
		t.Fatalf("bracket = %q, want long (fallback to last)", result.Bracket)
	}
	if result.Points != 20 {
		t.Fatalf("points = %d, want 20", result.Points)
	}
}

func TestScore_Disabled(t *testing.T) {
	engine := NewEngine(models.PointSettings{Active: false})

	result := engine.Score(time.Now(), time.Now().Add(time.Hour), time.Now())
	if result.Points != 0 || result.Bracket != "" {
		t.Fatalf("expected zero result for disabled engine, got %+v", result)
	}
}

func TestKickback_TenPercent(t *testing.T) {
	engine := NewEngine(testSettings())

	createdAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	deadline := createdAt.Add(5 * 24 * time.Hour)     // "medium"
	completed := deadline.Add(-10 * 24 * time.Hour)   // 10 days early

	result := engine.Score(createdAt, deadline, completed)
	// 10 days x 10 = 100 points, 10% kickback beats the 5 point floor
	if result.Points != 100 {
		t.Fatalf("points = %d, want 100", result.Points)
	}
	if result.AssignerKickback != 10 {
		t.Fatalf("kickback = %d, want 10", result.AssignerKickback)
	}
}

func TestUnlockedBadges(t *testing.T) {
	bronze := models.Badge{ID: uuid.New(), Name: "Bronze", PointThreshold: 50}
	silver := models.Badge{ID: uuid.New(), Name: "Silver", PointThreshold: 150}
	gold := models.Badge{ID: uuid.New(), Name: "Gold", PointThreshold: 500}
	library := []models.Badge{bronze, silver, gold}

	earned := []models.EarnedBadge{{BadgeID: bronze.ID, Name: "Bronze"}}

	unlocked := UnlockedBadges(library, earned, 200)
	if len(unlocked) != 1 {
		t.Fatalf("expected 1 unlock, got %d", len(unlocked))
	}
	if unlocked[0].ID != silver.ID {
		t.Fatalf("expected Silver unlock, got %s", unlocked[0].Name)
	}
}

func TestUnlockedBadges_NoneBelowThreshold(t *testing.T) {
	library := []models.Badge{{ID: uuid.New(), Name: "Bronze", PointThreshold: 50}}

	if unlocked := UnlockedBadges(library, nil, 49); unlocked != nil {
		t.Fatalf("expected no unlocks, got %v", unlocked)
	}
}
