// Package scoring turns a feature vector into a fatigue score using a loaded
// checkpoint: validate, standardize, forward pass, clamp.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tasktune/fatigue/internal/domain/checkpoint"
	"github.com/tasktune/fatigue/internal/domain/model"
	"github.com/tasktune/fatigue/internal/domain/nn"
)

// Default scoring configuration constants.
const (
	// StandardizeEps keeps zero-variance features from dividing by zero.
	StandardizeEps = 1e-6
	minScoreValue  = 0
	maxScoreValue  = 100
)

// Forwarder evaluates the network on one standardized vector.
type Forwarder interface {
	Forward(x []float64) (float64, error)
}

// Option applies a configuration option to the ModelScorer.
type Option func(*ModelScorer)

// WithForwarder replaces the network built from the checkpoint.
func WithForwarder(f Forwarder) Option {
	return func(s *ModelScorer) {
		if f != nil {
			s.net = f
		}
	}
}

// Result contains the computed fatigue score.
type Result struct {
	Fatigue      float64
	Standardized [model.FeatureCount]float64
	// Clamped is true when the raw network output fell outside [0,100].
	Clamped bool
}

// Scorer computes a fatigue score from a feature vector.
type Scorer interface {
	// Score computes a score. It fails with *ValidationError for out-of-range
	// input and with *InferenceError when the forward pass cannot complete.
	Score(ctx context.Context, in model.FeatureVector) (Result, error)
}

// ModelScorer implements Scorer over immutable checkpoint params. It holds no
// mutable state and is safe for concurrent use.
type ModelScorer struct {
	mu    [model.FeatureCount]float64
	sigma [model.FeatureCount]float64
	net   Forwarder
}

// NewModelScorer builds a scorer from validated params.
func NewModelScorer(params *checkpoint.Params, opts ...Option) (*ModelScorer, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: nil params", checkpoint.ErrInvalidCheckpoint)
	}
	s := &ModelScorer{
		mu:    params.Mu,
		sigma: params.Sigma,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	if s.net == nil {
		net, err := nn.New(params)
		if err != nil {
			return nil, err
		}
		s.net = net
	}
	return s, nil
}

// Score computes the fatigue score for the given input.
func (s *ModelScorer) Score(ctx context.Context, in model.FeatureVector) (Result, error) {
	if err := in.Validate(); err != nil {
		var rangeErr *model.RangeError
		if errors.As(err, &rangeErr) {
			return Result{}, &ValidationError{Field: rangeErr.Field, Value: rangeErr.Value, Reason: rangeErr.Reason}
		}
		return Result{}, &ValidationError{Reason: err.Error()}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, &InferenceError{Op: "score", Err: err}
	}

	z, err := s.Standardize(in)
	if err != nil {
		return Result{}, err
	}

	raw, err := s.net.Forward(z[:])
	if err != nil {
		return Result{}, &InferenceError{Op: "forward", Err: err}
	}
	if math.IsNaN(raw) {
		return Result{}, &InferenceError{Op: "forward", Err: errors.New("network returned NaN")}
	}

	// Output must stay in [0,100] regardless of what the network returns.
	score := math.Max(minScoreValue, math.Min(maxScoreValue, raw))

	return Result{
		Fatigue:      score,
		Standardized: z,
		Clamped:      score != raw,
	}, nil
}

// Standardize applies z = (x - mu) / (sigma + eps) feature by feature.
func (s *ModelScorer) Standardize(in model.FeatureVector) ([model.FeatureCount]float64, error) {
	x := in.Values()
	var z [model.FeatureCount]float64
	for i := range x {
		z[i] = (x[i] - s.mu[i]) / (s.sigma[i] + StandardizeEps)
		if math.IsNaN(z[i]) || math.IsInf(z[i], 0) {
			return z, &InferenceError{
				Op:  "standardize",
				Err: fmt.Errorf("%s standardized to %v", model.FeatureNames[i], z[i]),
			}
		}
	}
	return z, nil
}
