// Package nn evaluates the fatigue network in inference mode.
//
// Topology (fixed):
//
//	Linear(3,128) ReLU BatchNorm(128)
//	Linear(128,64) ReLU BatchNorm(64)
//	Linear(64,32) ReLU
//	Linear(32,1) Sigmoid, scaled by 100
//
// Dropout layers from training are identity here and batch-norm uses the frozen
// running statistics from the checkpoint. A Network holds no per-call state and
// is safe for concurrent use.
package nn

import (
	"errors"
	"fmt"
	"math"

	"github.com/tasktune/fatigue/internal/domain/checkpoint"
	"gonum.org/v1/gonum/mat"
)

// OutputScale maps the sigmoid output onto the fatigue percentage.
const OutputScale = 100.0

// ErrForward is returned when a forward pass cannot complete.
var ErrForward = errors.New("forward pass failed")

type layer interface {
	name() string
	apply(x *mat.VecDense) *mat.VecDense
}

// Network is an immutable evaluation-mode copy of the checkpoint weights.
type Network struct {
	in     int
	layers []layer
}

// New copies params into a Network. params must already be validated.
func New(params *checkpoint.Params) (*Network, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: nil params", ErrForward)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Network{
		in: params.Hidden1.In(),
		layers: []layer{
			newDense("hidden1", params.Hidden1),
			activation{label: "relu1", fn: relu},
			newNorm("norm1", params.Norm1),
			newDense("hidden2", params.Hidden2),
			activation{label: "relu2", fn: relu},
			newNorm("norm2", params.Norm2),
			newDense("hidden3", params.Hidden3),
			activation{label: "relu3", fn: relu},
			newDense("output", params.Output),
			activation{label: "sigmoid", fn: sigmoid},
		},
	}, nil
}

// InputWidth returns the number of features the network expects.
func (n *Network) InputWidth() int { return n.in }

// Forward evaluates the network on a single standardized input vector and
// returns the scaled output, nominally in [0,100].
func (n *Network) Forward(x []float64) (out float64, err error) {
	if len(x) != n.in {
		return 0, fmt.Errorf("%w: input has %d values, want %d", ErrForward, len(x), n.in)
	}
	// gonum reports dimension mismatches by panicking.
	defer func() {
		if r := recover(); r != nil {
			out, err = 0, fmt.Errorf("%w: %v", ErrForward, r)
		}
	}()

	v := mat.NewVecDense(len(x), append([]float64(nil), x...))
	for _, l := range n.layers {
		v = l.apply(v)
	}
	if v.Len() != 1 {
		return 0, fmt.Errorf("%w: output has %d values, want 1", ErrForward, v.Len())
	}
	y := v.AtVec(0) * OutputScale
	if math.IsNaN(y) {
		return 0, fmt.Errorf("%w: output is NaN", ErrForward)
	}
	return y, nil
}

// dense is y = Wx + b.
type dense struct {
	label string
	w     *mat.Dense
	b     *mat.VecDense
}

func newDense(label string, l checkpoint.Linear) dense {
	rows, cols := l.Out(), l.In()
	flat := make([]float64, 0, rows*cols)
	for _, row := range l.Weight {
		flat = append(flat, row...)
	}
	return dense{
		label: label,
		w:     mat.NewDense(rows, cols, flat),
		b:     mat.NewVecDense(len(l.Bias), append([]float64(nil), l.Bias...)),
	}
}

func (d dense) name() string { return d.label }

func (d dense) apply(x *mat.VecDense) *mat.VecDense {
	rows, _ := d.w.Dims()
	y := mat.NewVecDense(rows, nil)
	y.MulVec(d.w, x)
	y.AddVec(y, d.b)
	return y
}

// norm applies frozen batch-norm statistics folded into a per-unit
// scale and shift: y = x*scale + shift.
type norm struct {
	label string
	scale *mat.VecDense
	shift *mat.VecDense
}

func newNorm(label string, b checkpoint.BatchNorm) norm {
	w := b.Width()
	scale := make([]float64, w)
	shift := make([]float64, w)
	for i := 0; i < w; i++ {
		scale[i] = b.Weight[i] / math.Sqrt(b.RunningVar[i]+b.Eps)
		shift[i] = b.Bias[i] - b.RunningMean[i]*scale[i]
	}
	return norm{
		label: label,
		scale: mat.NewVecDense(w, scale),
		shift: mat.NewVecDense(w, shift),
	}
}

func (n norm) name() string { return n.label }

func (n norm) apply(x *mat.VecDense) *mat.VecDense {
	y := mat.NewVecDense(x.Len(), nil)
	y.MulElemVec(x, n.scale)
	y.AddVec(y, n.shift)
	return y
}

type activation struct {
	label string
	fn    func(float64) float64
}

func (a activation) name() string { return a.label }

func (a activation) apply(x *mat.VecDense) *mat.VecDense {
	for i := 0; i < x.Len(); i++ {
		x.SetVec(i, a.fn(x.AtVec(i)))
	}
	return x
}

func relu(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

// Describe lists the evaluation pipeline, one entry per layer.
func (n *Network) Describe() []string {
	names := make([]string, len(n.layers))
	for i, l := range n.layers {
		names[i] = l.name()
	}
	return names
}
