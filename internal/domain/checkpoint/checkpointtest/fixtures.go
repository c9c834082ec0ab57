// Package checkpointtest builds in-memory parameter sets for tests.
package checkpointtest

import (
	"math/rand"

	"github.com/tasktune/fatigue/internal/domain/checkpoint"
	"github.com/tasktune/fatigue/internal/domain/model"
)

// ReferencePath is the saved reference checkpoint, relative to the module root.
const ReferencePath = "testdata/reference_checkpoint.json"

// Constant returns params whose weights are all zero, so every input scores
// exactly 100*sigmoid(outputBias). Batch-norm layers are identity.
func Constant(outputBias float64) *checkpoint.Params {
	p := skeleton()
	p.Output.Bias[0] = outputBias
	return p
}

// Random returns valid params with weights drawn from a seeded source.
func Random(seed int64) *checkpoint.Params {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible fixtures
	p := skeleton()
	p.Mu = [model.FeatureCount]float64{5, 40, 0.5}
	p.Sigma = [model.FeatureCount]float64{2, 20, 0.3}
	for _, l := range []*checkpoint.Linear{&p.Hidden1, &p.Hidden2, &p.Hidden3, &p.Output} {
		for _, row := range l.Weight {
			for i := range row {
				row[i] = rng.Float64() - 0.5
			}
		}
		for i := range l.Bias {
			l.Bias[i] = rng.Float64() - 0.5
		}
	}
	for _, b := range []*checkpoint.BatchNorm{&p.Norm1, &p.Norm2} {
		for i := range b.Weight {
			b.Weight[i] = 0.9 + 0.2*rng.Float64()
			b.RunningMean[i] = 0.3 * rng.Float64()
			b.RunningVar[i] = 0.5 + rng.Float64()
		}
	}
	return p
}

func skeleton() *checkpoint.Params {
	p := &checkpoint.Params{
		Features: model.FeatureNames,
		Sigma:    [model.FeatureCount]float64{1, 1, 1},
		Hidden1:  zeroLinear(model.FeatureCount, checkpoint.Hidden1Width),
		Norm1:    identityNorm(checkpoint.Hidden1Width),
		Hidden2:  zeroLinear(checkpoint.Hidden1Width, checkpoint.Hidden2Width),
		Norm2:    identityNorm(checkpoint.Hidden2Width),
		Hidden3:  zeroLinear(checkpoint.Hidden2Width, checkpoint.Hidden3Width),
		Output:   zeroLinear(checkpoint.Hidden3Width, checkpoint.OutputWidth),
	}
	return p
}

func zeroLinear(in, out int) checkpoint.Linear {
	w := make([][]float64, out)
	for i := range w {
		w[i] = make([]float64, in)
	}
	return checkpoint.Linear{Weight: w, Bias: make([]float64, out)}
}

func identityNorm(width int) checkpoint.BatchNorm {
	b := checkpoint.BatchNorm{
		Weight:      make([]float64, width),
		Bias:        make([]float64, width),
		RunningMean: make([]float64, width),
		RunningVar:  make([]float64, width),
		Eps:         checkpoint.DefaultBatchNormEps,
	}
	for i := 0; i < width; i++ {
		b.Weight[i] = 1
		b.RunningVar[i] = 1
	}
	return b
}
