package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	appgrading "github.com/bryanwahyu/essay-coach-gateway/internal/application/grading"
	domain "github.com/bryanwahyu/essay-coach-gateway/internal/domain/grading"
	"github.com/bryanwahyu/essay-coach-gateway/internal/infra/proxy"
	"github.com/bryanwahyu/essay-coach-gateway/internal/middleware"
)

var (
	errBadRequest = errors.New("bad request")
	errTooLarge   = errors.New("request body too large")
)

// maxAnalyzeBody leaves room for 100000 escaped runes of essay content
const maxAnalyzeBody = 1 << 20

// Deps wired by cmd/api
type Deps struct {
	Tracker *appgrading.Tracker
	Service *appgrading.Service
	// Gateways keyed by api version ("v1", "v2")
	Gateways     map[string]*proxy.Gateway
	Metrics      *middleware.Metrics
	Limiter      *middleware.RateLimiter
	Health       []middleware.DependencyCheck
	CORSOrigins  []string
	AuthRequired bool
	Log          *logrus.Logger
}

type Router struct {
	tracker *appgrading.Tracker
	svc     *appgrading.Service
	log     *logrus.Entry
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Router{tracker: d.Tracker, svc: d.Service, log: log.WithField("component", "http")}
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Logging(log))
	if d.Metrics != nil {
		mux.Use(d.Metrics.Middleware)
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	mux.Use(middleware.Credential)

	mux.Get("/health", middleware.HealthHandler(d.Health))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	if d.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	mux.Route("/v1", func(rt chi.Router) {
		rt.Use(middleware.RequireCredential(d.AuthRequired))
		if d.Limiter != nil {
			rt.Use(d.Limiter.Middleware)
		}
		rt.Post("/essays/analyze", r.wrap(r.handleAnalyze))
		rt.Get("/runs/{id}", r.wrap(r.handleGetRun))
		rt.Delete("/runs/{id}", r.wrap(r.handleCancelRun))
		rt.Get("/runs/{id}/history", r.wrap(r.handleRunHistory))
		rt.Get("/feedback", r.wrap(r.handleListFeedback))
	})

	for version, gw := range d.Gateways {
		mux.Handle("/api/"+version+"/*", gw)
	}

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		switch {
		case errors.Is(err, errTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, errBadRequest), errors.Is(err, middleware.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrRunNotFound):
			writeError(w, http.StatusNotFound, "run not found")
		case errors.Is(err, domain.ErrAlreadyTracked):
			writeError(w, http.StatusConflict, "run already tracked")
		case errors.Is(err, domain.ErrSubmission):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			r.log.WithError(err).WithField("path", req.URL.Path).Error("handler failed")
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

// POST /v1/essays/analyze
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	var cmd appgrading.SubmitEssayCommand
	req.Body = http.MaxBytesReader(w, req.Body, maxAnalyzeBody)
	if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return fmt.Errorf("%w: limit is %d bytes", errTooLarge, mbe.Limit)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	cmd.EssayQuestion = middleware.SanitizeString(cmd.EssayQuestion)
	cmd.UserID = middleware.SanitizeString(cmd.UserID)
	if err := middleware.ValidateStruct(cmd); err != nil {
		return err
	}

	snap, err := r.tracker.Start(req.Context(), cmd)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, snap)
}

// GET /v1/runs/{id}
func (r *Router) handleGetRun(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRunID(id); err != nil {
		return err
	}
	snap, err := r.tracker.Get(domain.RunID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, snap)
}

// DELETE /v1/runs/{id}
func (r *Router) handleCancelRun(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRunID(id); err != nil {
		return err
	}
	if err := r.tracker.Cancel(domain.RunID(id)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/runs/{id}/history?user_id=
func (r *Router) handleRunHistory(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRunID(id); err != nil {
		return err
	}
	userID := middleware.SanitizeString(req.URL.Query().Get("user_id"))
	if userID == "" {
		userID = domain.AnonymousUser
	}
	h, err := r.svc.History(req.Context(), userID, domain.RunID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, h)
}

// GET /v1/feedback?user_id=&page=&page_size=
func (r *Router) handleListFeedback(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	userID := middleware.SanitizeString(q.Get("user_id"))
	if userID == "" {
		userID = domain.AnonymousUser
	}
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))

	list, err := r.svc.ListFeedback(req.Context(), userID, middleware.ValidatePage(page), middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	_ = writeJSON(w, status, map[string]string{"error": msg})
}
