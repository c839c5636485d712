// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/okian/meeple/internal/adapters/mq/queue"
	service "github.com/okian/meeple/internal/app"
	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/internal/domain/types"
	"github.com/okian/meeple/internal/lifecycle"
	"github.com/okian/meeple/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	ScoreForUser(ctx context.Context, userID string, gameID int64, hint *model.Tier) (model.ScoreResult, error)
	Recommend(ctx context.Context, userID string, limit int, hint *model.Tier) ([]model.ScoreResult, error)
	RequestRetrain(ctx context.Context, t *model.Tier, maxAge time.Duration) ([]types.RetrainTicket, error)
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	scoreHandler     *ScoreHandler
	recommendHandler *RecommendHandler
	retrainHandler   *RetrainHandler
	log              logger.Logger
	retrainMaxAge    time.Duration
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{log: logger.Nop(), retrainMaxAge: defaultRetrainMaxAge}
	for _, opt := range opts {
		opt(s)
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.scoreHandler = NewScoreHandler(deps, v)
	s.recommendHandler = NewRecommendHandler(deps, v)
	s.retrainHandler = NewRetrainHandler(deps, v, s.retrainMaxAge)
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	if r == nil {
		panic("router is nil")
	}
	r.Use(RequestID)
	r.Use(RequestLogger(s.log))

	r.With(MetricsMiddleware("healthz")).Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.With(MetricsMiddleware("stats")).Get("/stats", s.statsHandler.HandleStats)
	r.With(MetricsMiddleware("retrain")).Post("/retrain", s.retrainHandler.HandleRetrain)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.With(MetricsMiddleware("score")).Get("/score/{gameID}", s.scoreHandler.HandleScore)
		r.With(MetricsMiddleware("recommendations")).Get("/recommendations", s.recommendHandler.HandleRecommend)
	})
}

// Handler returns a router with every route registered.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrUnknownTier),
		errors.Is(err, lifecycle.ErrNotTrainable):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, model.ErrDataUnavailable),
		errors.Is(err, service.ErrNotStarted),
		errors.Is(err, queue.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}

// parseTierHint reads the optional tier query parameter.
func parseTierHint(r *http.Request) (*model.Tier, error) {
	raw := r.URL.Query().Get("tier")
	if raw == "" {
		return nil, nil //nolint:nilnil // absent hint
	}
	t, err := model.ParseTier(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
