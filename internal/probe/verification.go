package probe

import (
	"fmt"
	"math"
	"net/http"
)

// Verify checks one outcome against what the service must return: 200 with a
// score in [0,100] for valid vectors, 400 for invalid ones.
func Verify(o Outcome) error {
	if o.Err != "" {
		return fmt.Errorf("%w: transport: %s", ErrVerification, o.Err)
	}
	if o.Invalid {
		if o.Status != http.StatusBadRequest {
			return fmt.Errorf("%w: invalid vector %+v got status %d, want 400", ErrVerification, o.Vector, o.Status)
		}
		return nil
	}
	if o.Status != http.StatusOK {
		return fmt.Errorf("%w: valid vector %+v got status %d (%s), want 200", ErrVerification, o.Vector, o.Status, o.Code)
	}
	if math.IsNaN(o.Fatigue) || o.Fatigue < 0 || o.Fatigue > 100 {
		return fmt.Errorf("%w: vector %+v scored %v outside [0,100]", ErrVerification, o.Vector, o.Fatigue)
	}
	return nil
}

// VerifyDeterminism checks that a re-submitted vector scored exactly the same.
func VerifyDeterminism(first, again Outcome) error {
	if err := Verify(again); err != nil {
		return err
	}
	if first.Status != again.Status {
		return fmt.Errorf("%w: vector %+v status changed %d -> %d", ErrVerification, first.Vector, first.Status, again.Status)
	}
	if first.Fatigue != again.Fatigue {
		return fmt.Errorf("%w: vector %+v score changed %v -> %v", ErrVerification, first.Vector, first.Fatigue, again.Fatigue)
	}
	return nil
}

// summarize fills score statistics from accepted outcomes.
func summarize(outcomes []Outcome, stats *Stats) {
	var sum float64
	n := 0
	stats.MinFatigue = math.Inf(1)
	stats.MaxFatigue = math.Inf(-1)
	for _, o := range outcomes {
		switch {
		case o.Err != "":
			stats.TransportFailures++
			continue
		case o.Status == http.StatusOK:
			stats.Accepted++
		default:
			stats.Rejected++
			continue
		}
		sum += o.Fatigue
		n++
		stats.MinFatigue = math.Min(stats.MinFatigue, o.Fatigue)
		stats.MaxFatigue = math.Max(stats.MaxFatigue, o.Fatigue)
	}
	if n == 0 {
		stats.MinFatigue, stats.MaxFatigue = 0, 0
		return
	}
	stats.MeanFatigue = sum / float64(n)
}
