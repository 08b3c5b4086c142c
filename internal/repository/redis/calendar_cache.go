// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package redis

import (
	"context"
	"time"
)

const (
	// Cache key prefixes for tenant calendar data
	calendarPrefix     = "taskloop:calendar:"
	calendarTenantKey  = calendarPrefix + "tenant:"
	leaderboardPrefix  = "taskloop:leaderboard:"
	leaderboardHashKey = leaderboardPrefix + "tenant:"

	// Calendars change rarely but feed every occurrence computation, so the
	// TTL can be generous. Writes invalidate explicitly.
	calendarTTL    = 10 * time.Minute
	leaderboardTTL = 60 * time.Second
)

// CalendarCache caches the tenant calendar payload (weekends plus holidays)
// that the occurrence listing endpoints rebuild on every request.
type CalendarCache struct {
	client *Client
}

// NewCalendarCache creates a calendar cache.
func NewCalendarCache(client *Client) *CalendarCache {
	return &CalendarCache{client: client}
}

// GetOrSetTenant retrieves a tenant's calendar payload from cache, or
// computes it with fn and caches the result.
func (c *CalendarCache) GetOrSetTenant(ctx context.Context, tenantID string, dest interface{}, fn func() (interface{}, error)) error {
	return c.client.GetOrSetJSON(ctx, calendarTenantKey+tenantID, dest, calendarTTL, fn)
}

// InvalidateTenant removes a tenant's cached calendar. Settings updates call
// this so the next listing sees the new weekends and holidays.
func (c *CalendarCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	return c.client.Delete(ctx, calendarTenantKey+tenantID)
}

// GetOrSetLeaderboard retrieves a tenant's cached leaderboard, or computes it.
func (c *CalendarCache) GetOrSetLeaderboard(ctx context.Context, tenantID string, dest interface{}, fn func() (interface{}, error)) error {
	return c.client.GetOrSetJSON(ctx, leaderboardHashKey+tenantID, dest, leaderboardTTL, fn)
}

// InvalidateLeaderboard removes a tenant's cached leaderboard after a scoring
// event.
func (c *CalendarCache) InvalidateLeaderboard(ctx context.Context, tenantID string) error {
	return c.client.Delete(ctx, leaderboardHashKey+tenantID)
}

// InvalidateAll removes every cached calendar and leaderboard entry.
func (c *CalendarCache) InvalidateAll(ctx context.Context) error {
	for _, pattern := range []string{calendarPrefix + "*", leaderboardPrefix + "*"} {
		keys, err := c.client.Keys(ctx, pattern)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			continue
		}
		if err := c.client.Delete(ctx, keys...); err != nil {
			return err
		}
	}
	return nil
}
