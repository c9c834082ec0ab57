package probe

import (
	"context"
	"fmt"
	"math/rand"
)

// Ranges for valid vectors, loosely following everyday activities.
const (
	maxMET      = 16.0
	maxDuration = 180
)

// invalidKinds enumerates the ways a generated vector is made out of range.
const (
	invalidNegativeMET = iota
	invalidNegativeDuration
	invalidPreferenceLow
	invalidPreferenceHigh
	invalidKindCount
)

// GenerateVectors creates n vectors; round(n*invalidShare) of them are out of
// range. The same seed yields the same vectors.
func GenerateVectors(ctx context.Context, n int, invalidShare float64, seed int64) ([]Vector, error) {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible load, not security
	numInvalid := int(float64(n)*invalidShare + 0.5)

	vectors := make([]Vector, n)
	for i := range vectors {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during generation: %w", err)
		}
		vectors[i] = validVector(rng)
	}

	// Spread the invalid vectors across the slice.
	for _, i := range rng.Perm(n)[:numInvalid] {
		vectors[i] = invalidate(vectors[i], rng)
	}
	return vectors, nil
}

func validVector(rng *rand.Rand) Vector {
	return Vector{
		MET:          roundTo(rng.Float64()*maxMET, 2),
		DurationMin:  rng.Intn(maxDuration + 1),
		Preference01: roundTo(rng.Float64(), 3),
	}
}

func invalidate(v Vector, rng *rand.Rand) Vector {
	v.Invalid = true
	switch rng.Intn(invalidKindCount) {
	case invalidNegativeMET:
		v.MET = -roundTo(0.01+rng.Float64()*maxMET, 2)
	case invalidNegativeDuration:
		v.DurationMin = -1 - rng.Intn(maxDuration)
	case invalidPreferenceLow:
		v.Preference01 = -roundTo(0.001+rng.Float64(), 3)
	default:
		v.Preference01 = 1 + roundTo(0.001+rng.Float64(), 3)
	}
	return v
}

func roundTo(x float64, digits int) float64 {
	p := 1.0
	for i := 0; i < digits; i++ {
		p *= 10
	}
	return float64(int64(x*p+0.5)) / p
}
