// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"math"
)

// Feature names in the order the network was trained on. mu/sigma in the
// checkpoint are indexed by this order.
const (
	FeatureMET          = "met"
	FeatureDurationMin  = "duration_min"
	FeaturePreference01 = "preference01"
)

// FeatureCount is the width of the network input.
const FeatureCount = 3

// FeatureNames lists the input features in training order.
var FeatureNames = [FeatureCount]string{FeatureMET, FeatureDurationMin, FeaturePreference01}

// FeatureVector is a single scoring input. It is a value type; callers build
// a fresh one per request.
type FeatureVector struct {
	MET          float64 // metabolic equivalent of the activity, >= 0
	DurationMin  int     // activity duration in whole minutes, >= 0
	Preference01 float64 // how much the user likes the activity, in [0,1]
}

// Values returns the features as a float slice ordered like FeatureNames.
func (f FeatureVector) Values() [FeatureCount]float64 {
	return [FeatureCount]float64{f.MET, float64(f.DurationMin), f.Preference01}
}

// RangeError describes a single feature outside its declared bound.
type RangeError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s=%v %s", e.Field, e.Value, e.Reason)
}

// Validate checks every feature against its bound and returns the first
// violation in feature order.
func (f FeatureVector) Validate() error {
	switch {
	case math.IsNaN(f.MET) || math.IsInf(f.MET, 0):
		return &RangeError{Field: FeatureMET, Value: f.MET, Reason: "must be a finite number"}
	case f.MET < 0:
		return &RangeError{Field: FeatureMET, Value: f.MET, Reason: "must be >= 0"}
	case f.DurationMin < 0:
		return &RangeError{Field: FeatureDurationMin, Value: float64(f.DurationMin), Reason: "must be >= 0"}
	case math.IsNaN(f.Preference01) || math.IsInf(f.Preference01, 0):
		return &RangeError{Field: FeaturePreference01, Value: f.Preference01, Reason: "must be a finite number"}
	case f.Preference01 < 0 || f.Preference01 > 1:
		return &RangeError{Field: FeaturePreference01, Value: f.Preference01, Reason: "must be within [0, 1]"}
	}
	return nil
}

// SameOrder reports whether names matches FeatureNames exactly.
func SameOrder(names []string) bool {
	if len(names) != FeatureCount {
		return false
	}
	for i, n := range names {
		if n != FeatureNames[i] {
			return false
		}
	}
	return true
}
