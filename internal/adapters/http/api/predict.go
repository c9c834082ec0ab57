package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/tasktune/fatigue/internal/domain/model"
	"github.com/tasktune/fatigue/internal/domain/scoring"
)

// Predictor scores one feature vector.
type Predictor interface {
	Predict(ctx context.Context, in model.FeatureVector) (scoring.Result, error)
}

// PredictHandler handles POST /predict.
type PredictHandler struct {
	predictor    Predictor
	maxBodyBytes int64
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(p Predictor, maxBodyBytes int64) *PredictHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &PredictHandler{predictor: p, maxBodyBytes: maxBodyBytes}
}

// predictRequest mirrors the OpenAPI schema for POST /predict. Pointers
// distinguish a missing field from a zero value.
type predictRequest struct {
	MET          *float64     `json:"met"`
	DurationMin  *json.Number `json:"duration_min"`
	Preference01 *float64     `json:"preference01"`
}

type predictResponse struct {
	Fatigue float64 `json:"fatigue"`
}

func (p predictRequest) featureVector() (model.FeatureVector, error) {
	switch {
	case p.MET == nil:
		return model.FeatureVector{}, errors.New("missing met")
	case p.DurationMin == nil:
		return model.FeatureVector{}, errors.New("missing duration_min")
	case p.Preference01 == nil:
		return model.FeatureVector{}, errors.New("missing preference01")
	}
	duration, err := parseInteger(*p.DurationMin)
	if err != nil {
		return model.FeatureVector{}, fmt.Errorf("duration_min: %w", err)
	}
	return model.FeatureVector{
		MET:          *p.MET,
		DurationMin:  duration,
		Preference01: *p.Preference01,
	}, nil
}

// parseInteger accepts integral JSON numbers, including forms like 30.0.
func parseInteger(n json.Number) (int, error) {
	if i, err := n.Int64(); err == nil {
		if i > math.MaxInt32 || i < math.MinInt32 {
			return 0, fmt.Errorf("%s is out of range", n)
		}
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("%s is not a number", n)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%s is not an integer", n)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%s is out of range", n)
	}
	return int(f), nil
}

// ReadinessChecker reports whether the model is loaded.
type ReadinessChecker interface {
	Ready() bool
}

// HandlePredict handles POST /predict requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
		return
	}
	if rc, ok := h.predictor.(ReadinessChecker); ok && !rc.Ready() {
		writeError(w, http.StatusServiceUnavailable, "not_ready", NewKind(op, ErrNotReady))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large",
				WrapKind(op, ErrBadRequest, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	var req predictRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("invalid JSON body: %w", err)))
		return
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("body must contain a single JSON object")))
		return
	}

	in, err := req.featureVector()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	result, err := h.predictor.Predict(r.Context(), in)
	if err != nil {
		status, code, kind := classify(err)
		writeError(w, status, code, WrapKind(op, kind, err))
		return
	}

	writeJSON(w, http.StatusOK, predictResponse{Fatigue: result.Fatigue})
}

// classify maps a Predict failure to status, response code and API kind.
// Validation and inference failures are both client-visible 400s.
func classify(err error) (int, string, error) {
	switch {
	case errors.Is(err, scoring.ErrValidation):
		return http.StatusBadRequest, "validation_error", ErrValidation
	case errors.Is(err, scoring.ErrInference):
		return http.StatusBadRequest, "inference_error", ErrInference
	case errors.Is(err, ErrNotReady):
		return http.StatusServiceUnavailable, "not_ready", ErrNotReady
	default:
		return http.StatusInternalServerError, "internal_error", ErrInternal
	}
}
