// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/lrbcloud/taskloop/internal/api/handlers"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/services/auth"
)

// ============================================================================
// Constructor tests
// ============================================================================

func TestNewAuthHandler_NilLogger(t *testing.T) {
	h := handlers.NewAuthHandler(nil, nil)
	if h == nil {
		t.Fatal("NewAuthHandler returned nil with nil logger")
	}
}

func TestNewAuthHandler_WithLogger(t *testing.T) {
	h := handlers.NewAuthHandler(nil, logger.Nop())
	if h == nil {
		t.Fatal("NewAuthHandler returned nil")
	}
}

// ============================================================================
// Login
// ============================================================================

func TestAuthHandler_Login_Success(t *testing.T) {
	s := setupTestSuite(t)
	body := `{"subdomain":"acme","username":"admin","password":"correct-horse-battery"}`

	w := doRequest(t, s.router, "POST", "/api/v1/auth/login", body, "")
	assertStatus(t, w, http.StatusOK)

	var resp handlers.LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse login response: %v. Body: %s", err, w.Body.String())
	}
	if resp.AccessToken == "" {
		t.Error("expected an access token")
	}
	if resp.RefreshToken == "" {
		t.Error("expected a refresh token")
	}
	if resp.Employee.Username != "admin" {
		t.Errorf("expected employee username admin, got %q", resp.Employee.Username)
	}
	if resp.Employee.TenantID != s.tenant.ID.String() {
		t.Errorf("expected tenant_id %s, got %s", s.tenant.ID, resp.Employee.TenantID)
	}
}

func TestAuthHandler_Login_TokenIsUsable(t *testing.T) {
	s := setupTestSuite(t)
	body := `{"subdomain":"acme","username":"doer","password":"correct-horse-battery"}`

	w := doRequest(t, s.router, "POST", "/api/v1/auth/login", body, "")
	assertStatus(t, w, http.StatusOK)

	var resp handlers.LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse login response: %v", err)
	}

	w = doRequest(t, s.router, "GET", "/api/v1/auth/me", "", resp.AccessToken)
	assertStatus(t, w, http.StatusOK)

	me := assertJSON(t, w)
	if me["employee_id"] != s.doer.ID.String() {
		t.Errorf("expected employee_id %s, got %v", s.doer.ID, me["employee_id"])
	}
}

func TestAuthHandler_Login_WrongPassword(t *testing.T) {
	s := setupTestSuite(t)
	body := `{"subdomain":"acme","username":"admin","password":"not-the-password"}`

	w := doRequest(t, s.router, "POST", "/api/v1/auth/login", body, "")
	assertStatus(t, w, http.StatusUnauthorized)
	assertErrorCode(t, w, "INVALID_CREDENTIALS")
}

func TestAuthHandler_Login_UnknownUsername(t *testing.T) {
	s := setupTestSuite(t)
	body := `{"subdomain":"acme","username":"nobody","password":"correct-horse-battery"}`

	w := doRequest(t, s.router, "POST", "/api/v1/auth/login", body, "")
	assertStatus(t, w, http.StatusUnauthorized)
	assertErrorCode(t, w, "INVALID_CREDENTIALS")
}

func TestAuthHandler_Login_UnknownSubdomain(t *testing.T) {
	s := setupTestSuite(t)
	body := `{"subdomain":"globex","username":"admin","password":"correct-horse-battery"}`

	w := doRequest(t, s.router, "POST", "/api/v1/auth/login", body, "")
	assertStatus(t, w, http.StatusUnauthorized)
	assertErrorCode(t, w, "INVALID_CREDENTIALS")
}

func TestAuthHandler_Login_EmptyBody(t *testing.T) {
	s := setupTestSuite(t)

	w := doRequest(t, s.router, "POST", "/api/v1/auth/login", "", "")
	assertStatus(t, w, http.StatusBadRequest)
}

func TestAuthHandler_Login_InvalidJSON(t *testing.T) {
	s := setupTestSuite(t)

	w := doRequest(t, s.router, "POST", "/api/v1/auth/login", "{bad json}", "")
	assertStatus(t, w, http.StatusBadRequest)
}

func TestAuthHandler_Login_MissingPassword(t *testing.T) {
	s := setupTestSuite(t)
	body := `{"subdomain":"acme","username":"admin"}`

	w := doRequest(t, s.router, "POST", "/api/v1/auth/login", body, "")
	assertStatus(t, w, http.StatusBadRequest)
}

func TestAuthHandler_Login_MissingSubdomain(t *testing.T) {
	s := setupTestSuite(t)
	body := `{"username":"admin","password":"correct-horse-battery"}`

	w := doRequest(t, s.router, "POST", "/api/v1/auth/login", body, "")
	assertStatus(t, w, http.StatusBadRequest)
}

func TestAuthHandler_Login_WrongMethod(t *testing.T) {
	s := setupTestSuite(t)

	w := doRequest(t, s.router, "GET", "/api/v1/auth/login", "", "")
	assertStatus(t, w, http.StatusMethodNotAllowed)
}

// ============================================================================
// Refresh
// ============================================================================

func TestAuthHandler_Refresh_Success(t *testing.T) {
	s := setupTestSuite(t)
	body := `{"subdomain":"acme","username":"admin","password":"correct-horse-battery"}`

	w := doRequest(t, s.router, "POST", "/api/v1/auth/login", body, "")
	assertStatus(t, w, http.StatusOK)

	var login handlers.LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("failed to parse login response: %v", err)
	}

	refreshBody, _ := json.Marshal(handlers.RefreshRequest{RefreshToken: login.RefreshToken})
	w = doRequest(t, s.router, "POST", "/api/v1/auth/refresh", string(refreshBody), "")
	assertStatus(t, w, http.StatusOK)

	var refreshed handlers.RefreshResponse
	if err := json.Unmarshal(w.Body.Bytes(), &refreshed); err != nil {
		t.Fatalf("failed to parse refresh response: %v", err)
	}
	if refreshed.AccessToken == "" {
		t.Error("expected a new access token")
	}
	if refreshed.RefreshToken == "" {
		t.Error("expected a new refresh token")
	}
}

func TestAuthHandler_Refresh_InvalidToken(t *testing.T) {
	s := setupTestSuite(t)
	body := `{"refresh_token":"not-a-real-token"}`

	w := doRequest(t, s.router, "POST", "/api/v1/auth/refresh", body, "")
	assertStatus(t, w, http.StatusUnauthorized)
	assertErrorCode(t, w, "INVALID_TOKEN")
}

func TestAuthHandler_Refresh_AccessTokenRejected(t *testing.T) {
	s := setupTestSuite(t)

	// An access token must not pass as a refresh token.
	access := s.tokenFor(t, s.admin)
	refreshBody, _ := json.Marshal(handlers.RefreshRequest{RefreshToken: access})
	w := doRequest(t, s.router, "POST", "/api/v1/auth/refresh", string(refreshBody), "")
	assertStatus(t, w, http.StatusUnauthorized)
}

func TestAuthHandler_Refresh_MissingToken(t *testing.T) {
	s := setupTestSuite(t)
	body := `{"refresh_token":""}`

	w := doRequest(t, s.router, "POST", "/api/v1/auth/refresh", body, "")
	assertStatus(t, w, http.StatusBadRequest)
}

// ============================================================================
// Logout
// ============================================================================

func TestAuthHandler_Logout_WithoutToken(t *testing.T) {
	s := setupTestSuite(t)

	// Logout always succeeds so clients can drop their session.
	w := doRequest(t, s.router, "POST", "/api/v1/auth/logout", "", "")
	assertStatus(t, w, http.StatusNoContent)
}

func TestAuthHandler_Logout_WithToken(t *testing.T) {
	s := setupTestSuite(t)
	token := s.tokenFor(t, s.admin)

	w := doRequest(t, s.router, "POST", "/api/v1/auth/logout", "", token)
	assertStatus(t, w, http.StatusNoContent)
}

// ============================================================================
// Current employee
// ============================================================================

func TestAuthHandler_Me_NoToken(t *testing.T) {
	s := setupTestSuite(t)

	w := doRequest(t, s.router, "GET", "/api/v1/auth/me", "", "")
	assertStatus(t, w, http.StatusUnauthorized)
}

func TestAuthHandler_Me_GarbageToken(t *testing.T) {
	s := setupTestSuite(t)

	w := doRequest(t, s.router, "GET", "/api/v1/auth/me", "", "garbage.token.value")
	assertStatus(t, w, http.StatusUnauthorized)
}

func TestAuthHandler_Me_ExpiredToken(t *testing.T) {
	s := setupTestSuite(t)

	// A second JWT service with a negative TTL signs already-expired tokens
	// with the same secret.
	cfg := auth.DefaultJWTConfig(testJWTSecret)
	cfg.AccessTokenTTL = -time.Minute
	expired := auth.NewJWTService(cfg)
	token, _, err := expired.GenerateAccessToken(s.admin)
	if err != nil {
		t.Fatalf("failed to generate expired token: %v", err)
	}

	w := doRequest(t, s.router, "GET", "/api/v1/auth/me", "", token)
	assertStatus(t, w, http.StatusUnauthorized)
}

func TestAuthHandler_Me_FieldsPresent(t *testing.T) {
	s := setupTestSuite(t)
	token := s.tokenFor(t, s.admin)

	w := doRequest(t, s.router, "GET", "/api/v1/auth/me", "", token)
	assertStatus(t, w, http.StatusOK)

	body := assertJSON(t, w)
	for _, field := range []string{"employee_id", "tenant_id", "username", "roles"} {
		if _, ok := body[field]; !ok {
			t.Errorf("expected field %q in response, not found", field)
		}
	}
	if body["tenant_id"] != s.tenant.ID.String() {
		t.Errorf("expected tenant_id %s, got %v", s.tenant.ID, body["tenant_id"])
	}
}

func TestAuthHandler_Me_WrongMethod(t *testing.T) {
	s := setupTestSuite(t)
	token := s.tokenFor(t, s.admin)

	w := doRequest(t, s.router, "POST", "/api/v1/auth/me", "", token)
	assertStatus(t, w, http.StatusMethodNotAllowed)
}
