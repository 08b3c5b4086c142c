// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	apierrors "github.com/lrbcloud/taskloop/internal/api/errors"
	"github.com/lrbcloud/taskloop/internal/services/auth"
)

// Context keys for auth middleware.
const (
	// UserContextKey is the context key for the authenticated claims.
	UserContextKey contextKey = "user"

	// TokenContextKey is the context key for the raw JWT token.
	TokenContextKey contextKey = "token"
)

// HTTP headers for auth.
const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
)

// ClaimsValidator validates a raw access token and returns its claims.
// Satisfied by auth.Service.Validate, which also consults the revocation
// blacklist.
type ClaimsValidator func(ctx context.Context, token string) (*auth.Claims, error)

// AuthConfig contains configuration for the auth middleware.
type AuthConfig struct {
	// Validator checks tokens (required).
	Validator ClaimsValidator

	// TokenLookup defines how to extract the token from the request.
	// Format: "<source>:<name>", e.g. "header:Authorization" or
	// "cookie:auth_token". Multiple lookups separated by comma.
	// Default: "header:Authorization".
	TokenLookup string

	// AuthScheme is the authorization scheme in the header (default "Bearer").
	AuthScheme string

	// ErrorHandler is called when authentication fails.
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)
}

// Auth returns an authentication middleware that validates bearer tokens
// and stores the claims in the request context.
func Auth(config AuthConfig) func(http.Handler) http.Handler {
	if config.Validator == nil {
		panic("auth middleware: validator is required")
	}
	if config.TokenLookup == "" {
		config.TokenLookup = "header:Authorization"
	}
	if config.AuthScheme == "" {
		config.AuthScheme = "Bearer"
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = defaultAuthErrorHandler
	}

	extractors := parseTokenLookup(config.TokenLookup, config.AuthScheme)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string
			for _, extractor := range extractors {
				if token := extractor(r); token != "" {
					tokenString = token
					break
				}
			}

			if tokenString == "" {
				config.ErrorHandler(w, r, apierrors.Unauthorized(""))
				return
			}

			claims, err := config.Validator(r.Context(), tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrExpiredToken):
					config.ErrorHandler(w, r, apierrors.ExpiredToken())
				default:
					config.ErrorHandler(w, r, apierrors.InvalidToken(""))
				}
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			ctx = context.WithValue(ctx, TokenContextKey, tokenString)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth is like Auth but lets unauthenticated requests through with
// nil claims in context.
func OptionalAuth(config AuthConfig) func(http.Handler) http.Handler {
	if config.Validator == nil {
		panic("auth middleware: validator is required")
	}
	if config.TokenLookup == "" {
		config.TokenLookup = "header:Authorization"
	}
	if config.AuthScheme == "" {
		config.AuthScheme = "Bearer"
	}

	extractors := parseTokenLookup(config.TokenLookup, config.AuthScheme)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string
			for _, extractor := range extractors {
				if token := extractor(r); token != "" {
					tokenString = token
					break
				}
			}
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := config.Validator(r.Context(), tokenString)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			ctx = context.WithValue(ctx, TokenContextKey, tokenString)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ============================================================================
// Token extraction functions
// ============================================================================

type tokenExtractor func(*http.Request) string

func parseTokenLookup(lookup, authScheme string) []tokenExtractor {
	parts := strings.Split(lookup, ",")
	extractors := make([]tokenExtractor, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}

		source := strings.ToLower(kv[0])
		name := kv[1]

		switch source {
		case "header":
			extractors = append(extractors, headerExtractor(name, authScheme))
		case "query":
			extractors = append(extractors, queryExtractor(name))
		case "cookie":
			extractors = append(extractors, cookieExtractor(name))
		}
	}

	return extractors
}

func headerExtractor(name, authScheme string) tokenExtractor {
	return func(r *http.Request) string {
		header := r.Header.Get(name)
		if header == "" {
			return ""
		}

		// Require the scheme prefix per RFC 6750. Tokens without a scheme
		// can be confused with other auth schemes (Basic, Digest).
		if authScheme != "" {
			prefix := authScheme + " "
			if strings.HasPrefix(header, prefix) {
				return strings.TrimPrefix(header, prefix)
			}
			return ""
		}

		return header
	}
}

func queryExtractor(name string) tokenExtractor {
	return func(r *http.Request) string {
		return r.URL.Query().Get(name)
	}
}

func cookieExtractor(name string) tokenExtractor {
	return func(r *http.Request) string {
		cookie, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return cookie.Value
	}
}

// ============================================================================
// Error handler
// ============================================================================

func defaultAuthErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	requestID := GetRequestID(r.Context())
	if apiErr, ok := err.(*apierrors.APIError); ok {
		apierrors.WriteErrorWithRequestID(w, apiErr, requestID)
	} else {
		apierrors.WriteErrorWithRequestID(w, apierrors.Unauthorized(err.Error()), requestID)
	}
}

// ============================================================================
// Context helpers
// ============================================================================

// GetUserFromContext retrieves the claims from the context, nil if absent.
func GetUserFromContext(ctx context.Context) *auth.Claims {
	if claims, ok := ctx.Value(UserContextKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// GetUserFromRequest is a convenience wrapper over GetUserFromContext.
func GetUserFromRequest(r *http.Request) *auth.Claims {
	return GetUserFromContext(r.Context())
}

// GetTokenFromContext retrieves the raw JWT token from the context.
func GetTokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(TokenContextKey).(string); ok {
		return token
	}
	return ""
}

// MustGetUser retrieves claims from context and panics if not found. Use
// only in handlers mounted behind the Auth middleware.
func MustGetUser(ctx context.Context) *auth.Claims {
	claims := GetUserFromContext(ctx)
	if claims == nil {
		panic("auth: user claims not found in context")
	}
	return claims
}
