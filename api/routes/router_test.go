package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	pkgAuth "github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/marketplace-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubRedis struct {
	stubPinger
	data  map[string]string
	allow bool
}

func newStubRedis(allow bool) *stubRedis {
	return &stubRedis{data: map[string]string{}, allow: allow}
}

func (s *stubRedis) Get(_ context.Context, key string) (string, error) {
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (s *stubRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key], _ = value.(string)
	return true, nil
}

func (s *stubRedis) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *stubRedis) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("test:%s:%s", scope, id)
}

func (s *stubRedis) Take(_ context.Context, _ string, limit int64, window time.Duration) (pkgredis.Quota, error) {
	if s.allow {
		return pkgredis.Quota{Allowed: true, Count: 1, Remaining: limit - 1, ResetIn: window}, nil
	}
	return pkgredis.Quota{Count: 99, ResetIn: window}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "marketplace", ExpirationMinutes: 60},
		RateLimit: config.RateLimitConfig{
			Window:       time.Minute,
			PaymentLimit: 5,
			WalletLimit:  5,
		},
		FeatureFlags: config.FeatureFlagsConfig{IdempotencyEnabled: true},
	}
}

func newTestRouter(cfg *config.Config, store *stubRedis) http.Handler {
	reg := prometheus.NewRegistry()
	return NewRouter(cfg, nil, stubPinger{}, store, reg, metrics.NewHTTPMetrics(reg), nil, nil, nil, nil, nil)
}

func bearer(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), time.Hour, pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(testConfig(), newStubRedis(true))

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestAPIRequiresToken(t *testing.T) {
	router := newTestRouter(testConfig(), newStubRedis(true))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestMoneyRoutesRequireIdempotencyKey(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, newStubRedis(true))

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/payment", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, cfg, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminRoutesRejectCustomers(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, newStubRedis(true))
	token := bearer(t, cfg, enums.UserRoleCustomer)

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPatch, "/api/v1/orders/payment/admin"},
		{http.MethodPatch, "/api/v1/wallet/withdrawals/" + uuid.NewString() + "/process"},
		{http.MethodPatch, "/api/v1/wallet/withdrawals/" + uuid.NewString() + "/decline"},
		{http.MethodPost, "/api/v1/wallet/bonus"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(`{}`))
		req.Header.Set("Authorization", token)
		req.Header.Set("Idempotency-Key", uuid.NewString())
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusForbidden {
			t.Fatalf("%s %s: expected 403 got %d", tc.method, tc.path, resp.Code)
		}
	}
}

func TestWithdrawalRateLimited(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, newStubRedis(false))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/withdrawals", strings.NewReader(`{"amount":"10"}`))
	req.Header.Set("Authorization", bearer(t, cfg, enums.UserRoleCustomer))
	req.Header.Set("Idempotency-Key", "w-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
}

func TestUnavailableServiceReturnsInternal(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, newStubRedis(true))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet/balance", nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
