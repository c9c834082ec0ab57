// Package probe drives a running fatigue service end to end: it checks
// health, submits generated feature vectors concurrently and verifies every
// response.
package probe

import (
	"errors"
	"time"
)

// Sentinel kinds for probe failures.
var (
	ErrUnhealthy    = errors.New("service unhealthy")
	ErrVerification = errors.New("verification failed")
	ErrInvalidProbe = errors.New("invalid probe config")
)

// Config holds configuration for a probe run.
type Config struct {
	BaseURL         string        // Base URL of the service
	NumVectors      int           // Number of feature vectors to generate
	InvalidShare    float64       // Fraction of vectors made deliberately out of range
	Workers         int           // Number of concurrent workers
	Timeout         time.Duration // HTTP request timeout
	DeterminismRuns int           // Number of vectors re-submitted to check determinism
	Seed            int64         // Seed for vector generation
	OutputFile      string        // Optional file for generated vectors and results
	Verbose         bool          // Log every failed check
}

// Validate checks the config before a run.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return errors.Join(ErrInvalidProbe, errors.New("base url must not be empty"))
	case c.NumVectors <= 0:
		return errors.Join(ErrInvalidProbe, errors.New("vectors must be positive"))
	case c.InvalidShare < 0 || c.InvalidShare > 1:
		return errors.Join(ErrInvalidProbe, errors.New("invalid share must be within [0, 1]"))
	case c.Workers <= 0:
		return errors.Join(ErrInvalidProbe, errors.New("workers must be positive"))
	case c.Timeout <= 0:
		return errors.Join(ErrInvalidProbe, errors.New("timeout must be positive"))
	case c.DeterminismRuns < 0:
		return errors.Join(ErrInvalidProbe, errors.New("determinism runs must not be negative"))
	}
	return nil
}

// Vector is one generated request body plus whether it should be accepted.
type Vector struct {
	MET          float64 `json:"met"`
	DurationMin  int     `json:"duration_min"`
	Preference01 float64 `json:"preference01"`
	// Invalid marks vectors the service must reject with 400.
	Invalid bool `json:"-"`
}

// Outcome is the service response to one vector.
type Outcome struct {
	Vector    Vector  `json:"vector"`
	Invalid   bool    `json:"invalid"`
	Status    int     `json:"status"`
	Fatigue   float64 `json:"fatigue,omitempty"`
	Code      string  `json:"code,omitempty"`
	RequestID string  `json:"request_id,omitempty"`
	Err       string  `json:"error,omitempty"`
}

// Stats holds probe statistics.
type Stats struct {
	RunID              string
	VectorsGenerated   int
	VectorsSubmitted   int
	Accepted           int
	Rejected           int
	TransportFailures  int
	VerificationErrors int
	DeterminismChecked int
	MinFatigue         float64
	MaxFatigue         float64
	MeanFatigue        float64
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
