// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tasktune/fatigue/internal/domain/model"
	"github.com/tasktune/fatigue/internal/domain/scoring"
	"github.com/tasktune/fatigue/pkg/logger"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 16

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Predict scores one feature vector.
	Predict(ctx context.Context, in model.FeatureVector) (scoring.Result, error)

	// Ready reports whether the checkpoint is loaded.
	Ready() bool
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	predictHandler *PredictHandler
	metricsHandler http.Handler

	allowedOrigins []string
	maxBodyBytes   int64
	logger         logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS allow list; "*" allows every origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.allowedOrigins = origins
		}
	}
}

// WithMaxBodyBytes caps the size of request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithLogger sets a custom logger for request logging.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		allowedOrigins: []string{"*"},
		maxBodyBytes:   DefaultMaxBodyBytes,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.predictHandler = NewPredictHandler(deps, s.maxBodyBytes)
	s.metricsHandler = NewMetricsHandler()
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/predict", MetricsMiddleware(s.predictHandler.HandlePredict, "predict"))
	mux.Handle("/metrics", s.metricsHandler)
}

// Wrap applies the cross-cutting middleware shared by every route:
// request ids, CORS and request logging.
func (s *Server) Wrap(next http.Handler) http.Handler {
	log := s.logger
	if log == nil {
		log = logger.Named("http")
	}
	return RequestIDMiddleware(CORSMiddleware(s.allowedOrigins)(LoggingMiddleware(log)(next)))
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
		msg = publicMessage(err)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// publicMessage drops the operation prefix added by WrapKind.
func publicMessage(err error) string {
	var ke *KindError
	if errors.As(err, &ke) {
		if ke.Err != nil {
			return ke.Err.Error()
		}
		return ke.Kind.Error()
	}
	return err.Error()
}
