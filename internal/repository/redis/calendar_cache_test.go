// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package redis

import (
	"context"
	"testing"
)

type calendarPayload struct {
	Weekends []int    `json:"weekends"`
	Holidays []string `json:"holidays"`
}

func TestCalendarCache_GetOrSetTenant(t *testing.T) {
	client := newTestClient(t)
	cache := NewCalendarCache(client)
	ctx := context.Background()

	calls := 0
	fn := func() (interface{}, error) {
		calls++
		return calendarPayload{Weekends: []int{0, 6}, Holidays: []string{"2026-01-01"}}, nil
	}

	var result calendarPayload
	if err := cache.GetOrSetTenant(ctx, "tenant-1", &result, fn); err != nil {
		t.Fatalf("GetOrSetTenant (first): %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected fn called once, got %d", calls)
	}
	if len(result.Weekends) != 2 || result.Weekends[1] != 6 {
		t.Fatalf("unexpected payload: %+v", result)
	}

	var cached calendarPayload
	if err := cache.GetOrSetTenant(ctx, "tenant-1", &cached, fn); err != nil {
		t.Fatalf("GetOrSetTenant (second): %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cache hit, fn called %d times", calls)
	}
	if len(cached.Holidays) != 1 || cached.Holidays[0] != "2026-01-01" {
		t.Fatalf("unexpected cached payload: %+v", cached)
	}
}

func TestCalendarCache_InvalidateTenant(t *testing.T) {
	client := newTestClient(t)
	cache := NewCalendarCache(client)
	ctx := context.Background()

	calls := 0
	fn := func() (interface{}, error) {
		calls++
		return calendarPayload{Weekends: []int{0}}, nil
	}

	var result calendarPayload
	if err := cache.GetOrSetTenant(ctx, "tenant-2", &result, fn); err != nil {
		t.Fatalf("GetOrSetTenant: %v", err)
	}
	if err := cache.InvalidateTenant(ctx, "tenant-2"); err != nil {
		t.Fatalf("InvalidateTenant: %v", err)
	}
	if err := cache.GetOrSetTenant(ctx, "tenant-2", &result, fn); err != nil {
		t.Fatalf("GetOrSetTenant after invalidate: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected recompute after invalidation, fn called %d times", calls)
	}
}

func TestCalendarCache_TenantsIsolated(t *testing.T) {
	client := newTestClient(t)
	cache := NewCalendarCache(client)
	ctx := context.Background()

	fnA := func() (interface{}, error) {
		return calendarPayload{Weekends: []int{0}}, nil
	}
	fnB := func() (interface{}, error) {
		return calendarPayload{Weekends: []int{5, 6}}, nil
	}

	var a, b calendarPayload
	if err := cache.GetOrSetTenant(ctx, "tenant-a", &a, fnA); err != nil {
		t.Fatalf("GetOrSetTenant a: %v", err)
	}
	if err := cache.GetOrSetTenant(ctx, "tenant-b", &b, fnB); err != nil {
		t.Fatalf("GetOrSetTenant b: %v", err)
	}
	if len(a.Weekends) != 1 || len(b.Weekends) != 2 {
		t.Fatalf("tenants share cache entries: a=%+v b=%+v", a, b)
	}
}

func TestCalendarCache_InvalidateAll(t *testing.T) {
	client := newTestClient(t)
	cache := NewCalendarCache(client)
	ctx := context.Background()

	calls := 0
	fn := func() (interface{}, error) {
		calls++
		return calendarPayload{}, nil
	}

	var result calendarPayload
	if err := cache.GetOrSetTenant(ctx, "t1", &result, fn); err != nil {
		t.Fatalf("GetOrSetTenant: %v", err)
	}
	var board []string
	if err := cache.GetOrSetLeaderboard(ctx, "t1", &board, func() (interface{}, error) {
		return []string{"alice"}, nil
	}); err != nil {
		t.Fatalf("GetOrSetLeaderboard: %v", err)
	}

	if err := cache.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll: %v", err)
	}

	size, err := client.DBSize(ctx)
	if err != nil {
		t.Fatalf("DBSize: %v", err)
	}
	if size != 0 {
		t.Fatalf("expected empty db after InvalidateAll, got %d keys", size)
	}
}
