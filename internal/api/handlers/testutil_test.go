// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/api"
	"github.com/lrbcloud/taskloop/internal/api/handlers"
	"github.com/lrbcloud/taskloop/internal/api/middleware"
	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/pkg/crypto"
	apperrors "github.com/lrbcloud/taskloop/internal/pkg/errors"
	"github.com/lrbcloud/taskloop/internal/services/auth"
)

const (
	testJWTSecret = "test-secret-key-for-testing-purposes-only-minimum-32-chars"

	testSubdomain = "acme"
	testPassword  = "correct-horse-battery"
)

// ============================================================================
// In-memory stores for the auth service
// ============================================================================

type memEmployeeStore struct {
	mu        sync.RWMutex
	employees map[uuid.UUID]*models.Employee
}

func newMemEmployeeStore() *memEmployeeStore {
	return &memEmployeeStore{employees: make(map[uuid.UUID]*models.Employee)}
}

func (s *memEmployeeStore) add(e *models.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
}

func (s *memEmployeeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.employees[id]; ok {
		return e, nil
	}
	return nil, apperrors.NotFound("employee")
}

func (s *memEmployeeStore) GetByUsername(_ context.Context, tenantID uuid.UUID, username string) (*models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.employees {
		if e.TenantID == tenantID && e.Username == username {
			return e, nil
		}
	}
	return nil, apperrors.NotFound("employee")
}

type memTenantStore struct {
	mu      sync.RWMutex
	tenants map[string]*models.Tenant
}

func newMemTenantStore() *memTenantStore {
	return &memTenantStore{tenants: make(map[string]*models.Tenant)}
}

func (s *memTenantStore) add(t *models.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.Subdomain] = t
}

func (s *memTenantStore) GetBySubdomain(_ context.Context, subdomain string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tenants[subdomain]; ok {
		return t, nil
	}
	return nil, apperrors.NotFound("tenant")
}

// ============================================================================
// Test suite
// ============================================================================

// testSuite provides shared test infrastructure for handler tests: a real
// router with a real auth service backed by in-memory stores.
type testSuite struct {
	router      chi.Router
	handlers    *api.Handlers
	jwt         *auth.JWTService
	authService *auth.Service
	employees   *memEmployeeStore
	tenants     *memTenantStore

	tenant *models.Tenant
	admin  *models.Employee
	doer   *models.Employee
}

// setupTestSuite creates a test suite with system and auth handlers
// configured, one tenant, and two seeded employees (an admin and a doer)
// sharing testPassword.
func setupTestSuite(t *testing.T) *testSuite {
	t.Helper()

	employees := newMemEmployeeStore()
	tenants := newMemTenantStore()

	tenant := &models.Tenant{
		ID:        uuid.New(),
		Name:      "Acme Corp",
		Subdomain: testSubdomain,
	}
	tenants.add(tenant)

	hash, err := crypto.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("failed to hash test password: %v", err)
	}

	admin := &models.Employee{
		ID:           uuid.New(),
		TenantID:     tenant.ID,
		Name:         "Test Admin",
		Username:     "admin",
		Email:        "admin@acme.test",
		PasswordHash: hash,
		Roles:        []models.Role{models.RoleAdmin},
	}
	doer := &models.Employee{
		ID:           uuid.New(),
		TenantID:     tenant.ID,
		Name:         "Test Doer",
		Username:     "doer",
		Email:        "doer@acme.test",
		PasswordHash: hash,
		Roles:        []models.Role{models.RoleDoer},
	}
	employees.add(admin)
	employees.add(doer)

	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(testJWTSecret))
	authService := auth.NewService(employees, tenants, jwtService, nil, nil)

	h := &api.Handlers{
		System: handlers.NewSystemHandler("test-version", "test-commit", "2026-01-01T00:00:00Z", nil),
		Auth:   handlers.NewAuthHandler(authService, nil),
	}

	config := api.RouterConfig{
		Validator:      authService.Validate,
		CORSConfig:     middleware.DefaultCORSConfig(),
		RequestTimeout: 5 * time.Second,
	}

	return &testSuite{
		router:      api.NewRouter(config, h),
		handlers:    h,
		jwt:         jwtService,
		authService: authService,
		employees:   employees,
		tenants:     tenants,
		tenant:      tenant,
		admin:       admin,
		doer:        doer,
	}
}

// tokenFor issues a valid access token for the given employee.
func (s *testSuite) tokenFor(t *testing.T, e *models.Employee) string {
	t.Helper()

	token, _, err := s.jwt.GenerateAccessToken(e)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// ============================================================================
// Request helpers
// ============================================================================

// doRequest performs an HTTP request against the test router.
func doRequest(t *testing.T, router chi.Router, method, path string, body string, token string) *httptest.ResponseRecorder {
	t.Helper()

	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// assertJSON checks that the response is valid JSON and returns the parsed body.
func assertJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	contentType := w.Header().Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}

	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Errorf("failed to parse JSON response: %v. Body: %s", err, w.Body.String())
	}
	return result
}

// assertErrorCode checks the error code in the JSON response.
func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Errorf("failed to parse error response: %v. Body: %s", err, w.Body.String())
		return
	}
	if errResp.Code != expectedCode {
		t.Errorf("expected error code %q, got %q", expectedCode, errResp.Code)
	}
}

// withUserContext adds claims to the request context, bypassing the auth
// middleware for direct handler tests.
func withUserContext(r *http.Request, employeeID, tenantID uuid.UUID, username string, roles ...models.Role) *http.Request {
	claims := &auth.Claims{
		EmployeeID: employeeID.String(),
		TenantID:   tenantID.String(),
		Username:   username,
		Roles:      roles,
	}
	ctx := context.WithValue(r.Context(), middleware.UserContextKey, claims)
	return r.WithContext(ctx)
}
