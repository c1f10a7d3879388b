package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"reelgen/internal/credit"
	"reelgen/internal/http/handlers"
	"reelgen/internal/infra"
	"reelgen/internal/middleware"
	"reelgen/internal/provider"
	"reelgen/internal/publish"
	"reelgen/internal/task"
	"reelgen/internal/testkit"
)

func newTestRouter(t *testing.T, cfg *infra.Config) http.Handler {
	t.Helper()
	store := testkit.NewStore()
	logger := zerolog.Nop()
	ledger := credit.NewLedger(store, logger)
	var gateway provider.Gateway = &testkit.Gateway{}
	app := &handlers.App{
		SQL:    store,
		Logger: logger,
		Tasks: task.NewManager(task.ManagerOptions{
			SQL:     store,
			Gateway: gateway,
			Ledger:  ledger,
			Logger:  logger,
		}),
		Publisher: publish.NewController(store, logger),
		Ledger:    ledger,
	}
	return NewRouter(app, cfg)
}

func bearerFor(t *testing.T, secret, userID string) string {
	t.Helper()
	token, err := middleware.SignJWT(secret, middleware.TokenClaims{
		Sub: userID,
		Exp: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

// Two authenticated users behind one NAT address each get their own rate
// budget; exhausting user A's must not touch user B's.
func TestRateLimitKeyedByUserNotAddress(t *testing.T) {
	cfg := &infra.Config{JWTSecret: "router-test-secret", RateLimitPerMin: 1}
	router := newTestRouter(t, cfg)

	const sharedAddr = "203.0.113.9:44120"
	send := func(auth string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/me/credits", nil)
		req.RemoteAddr = sharedAddr
		req.Header.Set("Authorization", auth)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	userA := bearerFor(t, cfg.JWTSecret, "6b1d2a9e-0f3c-4e5d-8a7b-9c0d1e2f3a4b")
	userB := bearerFor(t, cfg.JWTSecret, "9e8d7c6b-5a4f-4e3d-a2b1-0c9d8e7f6a5b")

	if code := send(userA); code != http.StatusOK {
		t.Fatalf("user A first request: got %d, want 200", code)
	}
	if code := send(userA); code != http.StatusTooManyRequests {
		t.Fatalf("user A second request: got %d, want 429", code)
	}
	if code := send(userB); code != http.StatusOK {
		t.Fatalf("user B first request: got %d, want 200", code)
	}
}

func TestRateLimitDoesNotGateHealthz(t *testing.T) {
	cfg := &infra.Config{JWTSecret: "router-test-secret", RateLimitPerMin: 1}
	router := newTestRouter(t, cfg)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
		req.RemoteAddr = "203.0.113.9:44121"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("healthz request %d: got %d, want 200", i+1, rec.Code)
		}
	}
}
