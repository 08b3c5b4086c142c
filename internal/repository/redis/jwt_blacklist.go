// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTokenBlacklisted is returned by ValidateToken for revoked tokens.
var ErrTokenBlacklisted = errors.New("token is blacklisted")

const (
	jwtBlacklistPrefix     = "jwt:blacklist:"
	jwtUserBlacklistPrefix = "jwt:blacklist:user:"
)

// JWTBlacklist tracks revoked access tokens. Individual tokens are keyed by
// JTI with a TTL matching the token's remaining lifetime; user-level entries
// revoke every token issued before a cutoff, which covers password changes.
type JWTBlacklist struct {
	client *Client
}

// NewJWTBlacklist creates a JWT blacklist over a Redis client.
func NewJWTBlacklist(client *Client) *JWTBlacklist {
	return &JWTBlacklist{client: client}
}

// TokenValidator carries the claims ValidateToken checks.
type TokenValidator struct {
	JTI      string
	UserID   string
	IssuedAt time.Time
}

// BlacklistToken revokes a single token until it expires. Tokens already past
// their expiry are skipped since they can no longer authenticate.
func (b *JWTBlacklist) BlacklistToken(ctx context.Context, jti string, expiresAt time.Time, reason string) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if reason == "" {
		reason = "revoked"
	}
	return b.client.Set(ctx, b.blacklistKey(jti), reason, ttl)
}

// IsBlacklisted reports whether a token was revoked.
func (b *JWTBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	return b.client.Exists(ctx, b.blacklistKey(jti))
}

// GetBlacklistReason returns the revocation reason, or empty when the token
// is not blacklisted.
func (b *JWTBlacklist) GetBlacklistReason(ctx context.Context, jti string) (string, error) {
	reason, err := b.client.Get(ctx, b.blacklistKey(jti))
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return reason, nil
}

// RemoveFromBlacklist un-revokes a token.
func (b *JWTBlacklist) RemoveFromBlacklist(ctx context.Context, jti string) error {
	return b.client.Delete(ctx, b.blacklistKey(jti))
}

// BlacklistUserTokens revokes every token of a user issued before the cutoff.
// The ttl should cover the access token lifetime.
func (b *JWTBlacklist) BlacklistUserTokens(ctx context.Context, userID string, issuedBefore time.Time, ttl time.Duration) error {
	return b.client.Set(ctx, b.userBlacklistKey(userID), strconv.FormatInt(issuedBefore.UnixNano(), 10), ttl)
}

// IsUserTokenBlacklisted reports whether a token issued at the given time
// falls under a user-level revocation.
func (b *JWTBlacklist) IsUserTokenBlacklisted(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	val, err := b.client.Get(ctx, b.userBlacklistKey(userID))
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	cutoff, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, nil
	}
	return issuedAt.UnixNano() < cutoff, nil
}

// ClearUserBlacklist removes a user-level revocation.
func (b *JWTBlacklist) ClearUserBlacklist(ctx context.Context, userID string) error {
	return b.client.Delete(ctx, b.userBlacklistKey(userID))
}

// GetBlacklistCount returns how many individual tokens are currently revoked.
func (b *JWTBlacklist) GetBlacklistCount(ctx context.Context) (int64, error) {
	keys, err := b.client.Keys(ctx, jwtBlacklistPrefix+"*")
	if err != nil {
		return 0, err
	}
	var count int64
	for _, key := range keys {
		if !strings.HasPrefix(key, jwtUserBlacklistPrefix) {
			count++
		}
	}
	return count, nil
}

// ValidateToken checks both the per-token and user-level blacklists. Empty
// claims skip the corresponding check.
func (b *JWTBlacklist) ValidateToken(ctx context.Context, v TokenValidator) error {
	if v.JTI != "" {
		blacklisted, err := b.IsBlacklisted(ctx, v.JTI)
		if err != nil {
			return err
		}
		if blacklisted {
			return ErrTokenBlacklisted
		}
	}

	if v.UserID != "" && !v.IssuedAt.IsZero() {
		blacklisted, err := b.IsUserTokenBlacklisted(ctx, v.UserID, v.IssuedAt)
		if err != nil {
			return err
		}
		if blacklisted {
			return ErrTokenBlacklisted
		}
	}

	return nil
}

func (b *JWTBlacklist) blacklistKey(jti string) string {
	return jwtBlacklistPrefix + jti
}

func (b *JWTBlacklist) userBlacklistKey(userID string) string {
	return jwtUserBlacklistPrefix + userID
}
