// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tasktune/fatigue/internal/domain/checkpoint"
	"github.com/tasktune/fatigue/internal/domain/model"
	"github.com/tasktune/fatigue/internal/domain/scoring"
	"github.com/tasktune/fatigue/pkg/logger"
	"github.com/tasktune/fatigue/pkg/metrics"
)

// ErrNotStarted is returned by Predict before Start has succeeded.
var ErrNotStarted = errors.New("service not started")

// Service owns the loaded checkpoint and the scorer built from it.
type Service struct {
	mu sync.RWMutex

	// Core components
	params *checkpoint.Params
	scorer scoring.Scorer

	// Configuration
	checkpointPath string

	// State
	started   bool
	startedAt time.Time

	// Counters
	predictions      atomic.Int64
	validationErrors atomic.Int64
	inferenceErrors  atomic.Int64

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCheckpointPath sets the checkpoint file loaded by Start.
func WithCheckpointPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.checkpointPath = path
		}
	}
}

// WithParams injects already loaded params; Start then skips the file.
func WithParams(params *checkpoint.Params) Option {
	return func(s *Service) {
		if params != nil {
			s.params = params
		}
	}
}

// WithScorer injects a scorer; Start then skips building one.
func WithScorer(scorer scoring.Scorer) Option {
	return func(s *Service) {
		if scorer != nil {
			s.scorer = scorer
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		checkpointPath: "models/met_fatigue_minimal.json",
		logger:         nil, // Will be replaced when service starts
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start loads the checkpoint and builds the scorer. It must succeed before
// any request is served; a failure leaves the service unstarted.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	begin := time.Now()
	if s.params == nil && s.scorer == nil {
		s.logger.Info(ctx, "loading checkpoint", logger.String("path", s.checkpointPath))
		params, err := checkpoint.Load(ctx, s.checkpointPath)
		if err != nil {
			metrics.RecordCheckpointLoadError()
			return fmt.Errorf("start: %w", err)
		}
		s.params = params
	}

	if s.scorer == nil {
		scorer, err := scoring.NewModelScorer(s.params)
		if err != nil {
			metrics.RecordCheckpointLoadError()
			return fmt.Errorf("start: %w", err)
		}
		s.scorer = scorer
	}

	s.started = true
	s.startedAt = time.Now()
	metrics.SetCheckpointLoaded(true)
	metrics.RecordCheckpointLoadDuration(float64(time.Since(begin).Milliseconds()))

	fields := []logger.Field{logger.Duration("took", time.Since(begin))}
	if s.params != nil {
		summary := s.params.Summary()
		fields = append(fields,
			logger.String("source", summary.Source),
			logger.Int("params", summary.ParamCount),
			logger.Any("features", summary.Features),
		)
		metrics.UpdateModelParameters(summary.ParamCount)
	}
	s.logger.Info(ctx, "fatigue scorer ready", fields...)

	return nil
}

// Stop marks the service as no longer serving.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.started = false
	metrics.SetCheckpointLoaded(false)
	s.logger.Info(context.Background(), "fatigue service stopped",
		logger.Int("predictions", int(s.predictions.Load())),
	)
}

// Ready reports whether Start has completed successfully.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Params returns the loaded checkpoint params, nil before Start or when a
// scorer was injected directly.
func (s *Service) Params() *checkpoint.Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// Predict scores one feature vector.
func (s *Service) Predict(ctx context.Context, in model.FeatureVector) (scoring.Result, error) {
	s.mu.RLock()
	scorer, started := s.scorer, s.started
	s.mu.RUnlock()
	if !started {
		return scoring.Result{}, ErrNotStarted
	}

	begin := time.Now()
	result, err := scorer.Score(ctx, in)
	elapsedMs := float64(time.Since(begin).Microseconds()) / 1000

	switch {
	case errors.Is(err, scoring.ErrValidation):
		s.validationErrors.Add(1)
		metrics.RecordPredictionError(metrics.ErrorKindValidation)
		s.logger.Debug(ctx, "rejected features", logger.Any("features", in), logger.Error(err))
		return scoring.Result{}, err
	case err != nil:
		s.inferenceErrors.Add(1)
		metrics.RecordPredictionError(metrics.ErrorKindInference)
		s.logger.Warn(ctx, "inference failed", logger.Any("features", in), logger.Error(err))
		return scoring.Result{}, err
	}

	s.predictions.Add(1)
	metrics.RecordPrediction(result.Fatigue, elapsedMs)
	if result.Clamped {
		metrics.RecordPredictionClamped()
	}
	s.logger.Debug(ctx, "scored features",
		logger.Any("features", in),
		logger.Float64("fatigue", result.Fatigue),
	)
	return result, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"checkpointPath":   s.checkpointPath,
		"predictions":      s.predictions.Load(),
		"validationErrors": s.validationErrors.Load(),
		"inferenceErrors":  s.inferenceErrors.Load(),
		"features":         model.FeatureNames[:],
	}

	if s.started {
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
	}
	if s.params != nil {
		stats["paramCount"] = s.params.Summary().ParamCount
		if s.params.Source != "" {
			stats["checkpointPath"] = s.params.Source
		}
	}

	return stats
}
