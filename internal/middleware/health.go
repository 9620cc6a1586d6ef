package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker pings one dependency of the gateway
type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// DatabaseHealthChecker pings the feedback database
type DatabaseHealthChecker struct {
	DB *sql.DB
}

func (d *DatabaseHealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.DB.PingContext(ctx)
}

// DependencyCheck names a dependency. A failing Optional dependency only
// degrades the gateway: the proxy keeps serving while grading or report
// archiving is down.
type DependencyCheck struct {
	Name     string
	Checker  HealthChecker
	Optional bool
}

// HealthReport is the /health body
type HealthReport struct {
	Status    string                       `json:"status"`
	Timestamp time.Time                    `json:"timestamp"`
	Checks    map[string]DependencyOutcome `json:"checks"`
}

// DependencyOutcome of one check
type DependencyOutcome struct {
	Status    string `json:"status"`
	Optional  bool   `json:"optional,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Message   string `json:"message,omitempty"`
}

// HealthHandler runs every check concurrently. Unhealthy (503) when a
// required dependency fails, degraded (200) when only optional ones do.
func HealthHandler(checks []DependencyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		report := HealthReport{
			Status:    StatusHealthy,
			Timestamp: time.Now(),
			Checks:    make(map[string]DependencyOutcome, len(checks)),
		}

		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for _, c := range checks {
			wg.Add(1)
			go func(c DependencyCheck) {
				defer wg.Done()
				start := time.Now()
				err := c.Checker.Check(ctx)
				out := DependencyOutcome{
					Status:    StatusHealthy,
					Optional:  c.Optional,
					LatencyMS: time.Since(start).Milliseconds(),
				}
				if err != nil {
					out.Status = StatusUnhealthy
					out.Message = err.Error()
				}

				mu.Lock()
				defer mu.Unlock()
				report.Checks[c.Name] = out
				switch {
				case err == nil:
				case !c.Optional:
					report.Status = StatusUnhealthy
				case report.Status == StatusHealthy:
					report.Status = StatusDegraded
				}
			}(c)
		}
		wg.Wait()

		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

// ReadinessHandler reports ready once the router is serving
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessHandler creates a liveness check handler (simplest check)
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
