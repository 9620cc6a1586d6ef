package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/essay-coach-gateway/internal/domain/grading"
	"github.com/bryanwahyu/essay-coach-gateway/internal/middleware"
)

func TestExtractCredential(t *testing.T) {
	t.Run("CookieFirst", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "access_token", Value: "from-cookie"})
		r.Header.Set("Authorization", "Bearer from-header")
		assert.Equal(t, "from-cookie", middleware.ExtractCredential(r))
	})

	t.Run("BearerFallback", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "bearer  tok ")
		assert.Equal(t, "tok", middleware.ExtractCredential(r))
	})

	t.Run("OtherSchemesIgnored", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		assert.Empty(t, middleware.ExtractCredential(r))
	})
}

func TestCredentialMiddleware(t *testing.T) {
	var got string
	h := middleware.Credential(middleware.RequireCredential(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.CredentialFromContext(r.Context())
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", got)

	assert.Empty(t, middleware.CredentialFromContext(context.Background()))
}

func TestRateLimiter(t *testing.T) {
	rl := middleware.NewRateLimiter(0.001, 2)
	defer rl.Stop()

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		h.ServeHTTP(rec, r)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// other clients have their own bucket
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiter_RotatingTokensShareBucket(t *testing.T) {
	rl := middleware.NewRateLimiter(1, 1)
	defer rl.Stop()

	h := middleware.Credential(rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	allowed := 0
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.9:4000"
		r.Header.Set("Authorization", fmt.Sprintf("Bearer junk-%d", i))
		h.ServeHTTP(rec, r)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestValidateStruct(t *testing.T) {
	type cmd struct {
		Name string `validate:"required,max=5"`
		Mode string `validate:"omitempty,oneof=a b"`
	}
	assert.NoError(t, middleware.ValidateStruct(cmd{Name: "ok"}))

	err := middleware.ValidateStruct(cmd{Name: "toolong", Mode: "c"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, middleware.ErrValidation))
	assert.Contains(t, err.Error(), "Name: max=5")
	assert.Contains(t, err.Error(), "Mode: oneof=a b")
}

func TestValidateRunID(t *testing.T) {
	assert.NoError(t, middleware.ValidateRunID("6f1c2b0e-1d4a-4c35-9a57-0e1f2a3b4c5d"))
	assert.ErrorIs(t, middleware.ValidateRunID(""), middleware.ErrValidation)
	assert.ErrorIs(t, middleware.ValidateRunID("../etc"), middleware.ErrValidation)
	assert.ErrorIs(t, middleware.ValidateRunID(strings.Repeat("a", 129)), middleware.ErrValidation)
}

func TestSanitizeAndPaging(t *testing.T) {
	assert.Equal(t, "hello\tworld", middleware.SanitizeString("  hello\x00\tworld\x07  "))
	assert.Equal(t, 20, middleware.ValidateLimit(0))
	assert.Equal(t, 100, middleware.ValidateLimit(1000))
	assert.Equal(t, 15, middleware.ValidateLimit(15))
	assert.Equal(t, 1, middleware.ValidatePage(-3))
	assert.Equal(t, 4, middleware.ValidatePage(4))
}

func TestHealthHandler(t *testing.T) {
	up := middleware.CheckFunc(func(context.Context) error { return nil })
	down := middleware.CheckFunc(func(context.Context) error { return errors.New("no route to host") })

	serve := func(checks ...middleware.DependencyCheck) (int, middleware.HealthReport) {
		rec := httptest.NewRecorder()
		middleware.HealthHandler(checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		var report middleware.HealthReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		return rec.Code, report
	}

	t.Run("RequiredDown", func(t *testing.T) {
		code, report := serve(
			middleware.DependencyCheck{Name: "database", Checker: down},
			middleware.DependencyCheck{Name: "engine", Checker: up, Optional: true},
		)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, middleware.StatusUnhealthy, report.Status)
		assert.Equal(t, "no route to host", report.Checks["database"].Message)
		assert.Equal(t, middleware.StatusHealthy, report.Checks["engine"].Status)
	})

	t.Run("OptionalDownDegrades", func(t *testing.T) {
		code, report := serve(
			middleware.DependencyCheck{Name: "database", Checker: up},
			middleware.DependencyCheck{Name: "engine", Checker: down, Optional: true},
		)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, middleware.StatusDegraded, report.Status)
		assert.True(t, report.Checks["engine"].Optional)
		assert.Equal(t, middleware.StatusUnhealthy, report.Checks["engine"].Status)
	})

	t.Run("NoChecks", func(t *testing.T) {
		code, report := serve()
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, middleware.StatusHealthy, report.Status)
	})
}

func TestMetrics_RunCounters(t *testing.T) {
	m := middleware.NewMetrics()
	m.RunSubmitted()
	m.RunSubmitted()
	m.RunFinished(domain.StatusSucceeded, "")
	m.RunFinished(domain.StatusFailed, domain.FailureSubmission)

	n, err := testutil.GatherAndCount(m.Registry(), "essay_gateway_runs_finished_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	body := httptest.NewRecorder()
	m.Handler().ServeHTTP(body, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, body.Body.String(), "essay_gateway_runs_submitted_total 2")
	// one submitted run still being polled
	assert.Contains(t, body.Body.String(), "essay_gateway_runs_running 1")

	m.RunCancelled()
	body = httptest.NewRecorder()
	m.Handler().ServeHTTP(body, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, body.Body.String(), "essay_gateway_runs_running 0")
	assert.Contains(t, body.Body.String(), `essay_gateway_runs_finished_total{kind="",status="cancelled"} 1`)
}
