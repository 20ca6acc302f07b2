package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestRateLimiter(t *testing.T, config RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(config, testLogger())
	t.Cleanup(rl.Stop)
	return rl
}

func doRequest(handler http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/test", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), userID))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGeneralMiddleware_AllowsWithinBurst(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    3,
		AccountRegRate:  rate.Limit(1),
		AccountRegBurst: 1,
		CleanupInterval: time.Minute,
	})
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		if w := doRequest(handler, "u1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}
}

func TestGeneralMiddleware_RejectsOverBurst(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:     rate.Limit(0.01),
		GeneralBurst:    1,
		AccountRegRate:  rate.Limit(1),
		AccountRegBurst: 1,
		CleanupInterval: time.Minute,
	})
	handler := rl.GeneralMiddleware()(okHandler())

	if w := doRequest(handler, "u1"); w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", w.Code)
	}

	w := doRequest(handler, "u1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header is missing")
	}
}

// TestGeneralMiddleware_PerUserIsolation はユーザーごとに独立した
// バケットが使われることを検証する。
func TestGeneralMiddleware_PerUserIsolation(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:     rate.Limit(0.01),
		GeneralBurst:    1,
		AccountRegRate:  rate.Limit(1),
		AccountRegBurst: 1,
		CleanupInterval: time.Minute,
	})
	handler := rl.GeneralMiddleware()(okHandler())

	if w := doRequest(handler, "u1"); w.Code != http.StatusOK {
		t.Fatalf("u1 first request: status = %d, want 200", w.Code)
	}
	if w := doRequest(handler, "u1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("u1 second request: status = %d, want 429", w.Code)
	}
	// 別ユーザーは制限されない
	if w := doRequest(handler, "u2"); w.Code != http.StatusOK {
		t.Errorf("u2 request: status = %d, want 200", w.Code)
	}
}

// TestAccountRegistrationMiddleware_IndependentBuckets はアカウント作成の
// 制限がAPI全般の制限と独立であることを検証する。
func TestAccountRegistrationMiddleware_IndependentBuckets(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:     rate.Limit(10),
		GeneralBurst:    10,
		AccountRegRate:  rate.Limit(0.01),
		AccountRegBurst: 1,
		CleanupInterval: time.Minute,
	})
	general := rl.GeneralMiddleware()(okHandler())
	accountReg := rl.AccountRegistrationMiddleware()(okHandler())

	if w := doRequest(accountReg, "u1"); w.Code != http.StatusOK {
		t.Fatalf("first registration: status = %d, want 200", w.Code)
	}
	if w := doRequest(accountReg, "u1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second registration: status = %d, want 429", w.Code)
	}
	// アカウント作成が枯渇してもAPI全般は通る
	if w := doRequest(general, "u1"); w.Code != http.StatusOK {
		t.Errorf("general request: status = %d, want 200", w.Code)
	}
}

func TestRateLimitMiddleware_RequiresUserID(t *testing.T) {
	rl := newTestRateLimiter(t, NewRateLimiterConfig(120, 10))
	handler := rl.GeneralMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
