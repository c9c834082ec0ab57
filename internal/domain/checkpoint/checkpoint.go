// Package checkpoint loads the trained fatigue network and its feature
// normalization statistics from a serialized artifact.
//
// The artifact is a JSON or YAML document with the keys mu, sigma and
// state_dict (plus optional features and bn_eps). state_dict entries are named
// after the training network's layer indices so an exported state dict loads
// without renaming.
package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/tasktune/fatigue/internal/domain/model"
	"gopkg.in/yaml.v3"
)

// DefaultBatchNormEps matches the epsilon batch-norm layers were trained with.
const DefaultBatchNormEps = 1e-5

// Layer widths of the fixed topology.
const (
	Hidden1Width = 128
	Hidden2Width = 64
	Hidden3Width = 32
	OutputWidth  = 1
)

// state_dict key prefixes, by position in the training network.
const (
	keyHidden1 = "net.0"
	keyNorm1   = "net.2"
	keyHidden2 = "net.4"
	keyNorm2   = "net.6"
	keyHidden3 = "net.8"
	keyOutput  = "net.10"
)

// Linear holds the parameters of a fully connected layer.
// Weight is laid out [out][in].
type Linear struct {
	Weight [][]float64
	Bias   []float64
}

// In returns the input width of the layer.
func (l Linear) In() int {
	if len(l.Weight) == 0 {
		return 0
	}
	return len(l.Weight[0])
}

// Out returns the output width of the layer.
func (l Linear) Out() int { return len(l.Weight) }

// BatchNorm holds the affine parameters and frozen running statistics of a
// batch-normalization layer.
type BatchNorm struct {
	Weight      []float64
	Bias        []float64
	RunningMean []float64
	RunningVar  []float64
	Eps         float64
}

// Width returns the number of normalized units.
func (b BatchNorm) Width() int { return len(b.Weight) }

// Params is the full parameter set for one loaded checkpoint. A Params value
// is built once at startup and shared read-only; nothing mutates it after
// Validate succeeds.
type Params struct {
	Features [model.FeatureCount]string
	Mu       [model.FeatureCount]float64
	Sigma    [model.FeatureCount]float64

	Hidden1 Linear
	Norm1   BatchNorm
	Hidden2 Linear
	Norm2   BatchNorm
	Hidden3 Linear
	Output  Linear

	// Source is the file the params were read from, empty when decoded
	// from a stream or built in code.
	Source string
}

// document is the on-disk shape.
type document struct {
	Features  []string             `yaml:"features"`
	Mu        []float64            `yaml:"mu"`
	Sigma     []float64            `yaml:"sigma"`
	BNEps     *float64             `yaml:"bn_eps"`
	StateDict map[string]yaml.Node `yaml:"state_dict"`
}

// Load reads and validates the checkpoint at path.
func Load(ctx context.Context, path string) (*Params, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadCheckpoint, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadCheckpoint, err)
	}
	p, err := Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.Source = path
	return p, nil
}

// Decode parses a checkpoint document from r and validates it.
func Decode(r io.Reader) (*Params, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalidCheckpoint, err)
	}

	p := &Params{Features: model.FeatureNames}
	if len(doc.Features) > 0 && !model.SameOrder(doc.Features) {
		return nil, fmt.Errorf("%w: feature order %v does not match %v", ErrInvalidCheckpoint, doc.Features, model.FeatureNames)
	}
	if len(doc.Mu) != model.FeatureCount {
		return nil, fmt.Errorf("%w: mu has %d values, want %d", ErrInvalidCheckpoint, len(doc.Mu), model.FeatureCount)
	}
	if len(doc.Sigma) != model.FeatureCount {
		return nil, fmt.Errorf("%w: sigma has %d values, want %d", ErrInvalidCheckpoint, len(doc.Sigma), model.FeatureCount)
	}
	copy(p.Mu[:], doc.Mu)
	copy(p.Sigma[:], doc.Sigma)

	eps := DefaultBatchNormEps
	if doc.BNEps != nil {
		eps = *doc.BNEps
	}

	sd := stateDict(doc.StateDict)
	var err error
	if p.Hidden1, err = sd.linear(keyHidden1); err != nil {
		return nil, err
	}
	if p.Norm1, err = sd.batchNorm(keyNorm1, eps); err != nil {
		return nil, err
	}
	if p.Hidden2, err = sd.linear(keyHidden2); err != nil {
		return nil, err
	}
	if p.Norm2, err = sd.batchNorm(keyNorm2, eps); err != nil {
		return nil, err
	}
	if p.Hidden3, err = sd.linear(keyHidden3); err != nil {
		return nil, err
	}
	if p.Output, err = sd.linear(keyOutput); err != nil {
		return nil, err
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

type stateDict map[string]yaml.Node

func (sd stateDict) node(key string) (*yaml.Node, error) {
	n, ok := sd[key]
	if !ok {
		return nil, fmt.Errorf("%w: state_dict is missing %q", ErrInvalidCheckpoint, key)
	}
	return &n, nil
}

func (sd stateDict) vector(key string) ([]float64, error) {
	n, err := sd.node(key)
	if err != nil {
		return nil, err
	}
	var v []float64
	if err := n.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCheckpoint, key, err)
	}
	return v, nil
}

func (sd stateDict) matrix(key string) ([][]float64, error) {
	n, err := sd.node(key)
	if err != nil {
		return nil, err
	}
	var m [][]float64
	if err := n.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCheckpoint, key, err)
	}
	return m, nil
}

func (sd stateDict) linear(prefix string) (Linear, error) {
	w, err := sd.matrix(prefix + ".weight")
	if err != nil {
		return Linear{}, err
	}
	b, err := sd.vector(prefix + ".bias")
	if err != nil {
		return Linear{}, err
	}
	return Linear{Weight: w, Bias: b}, nil
}

func (sd stateDict) batchNorm(prefix string, eps float64) (BatchNorm, error) {
	var bn BatchNorm
	fields := []struct {
		suffix string
		dst    *[]float64
	}{
		{".weight", &bn.Weight},
		{".bias", &bn.Bias},
		{".running_mean", &bn.RunningMean},
		{".running_var", &bn.RunningVar},
	}
	for _, f := range fields {
		v, err := sd.vector(prefix + f.suffix)
		if err != nil {
			return BatchNorm{}, err
		}
		*f.dst = v
	}
	bn.Eps = eps
	return bn, nil
}

// Validate checks every tensor against the fixed topology and rejects
// non-finite values.
func (p *Params) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil params", ErrInvalidCheckpoint)
	}
	if !model.SameOrder(p.Features[:]) {
		return fmt.Errorf("%w: feature order %v does not match %v", ErrInvalidCheckpoint, p.Features, model.FeatureNames)
	}
	if err := finite("mu", p.Mu[:]); err != nil {
		return err
	}
	if err := finite("sigma", p.Sigma[:]); err != nil {
		return err
	}
	for i, s := range p.Sigma {
		if s < 0 {
			return fmt.Errorf("%w: sigma[%d]=%v is negative", ErrInvalidCheckpoint, i, s)
		}
	}

	checks := []func() error{
		func() error { return checkLinear(keyHidden1, p.Hidden1, model.FeatureCount, Hidden1Width) },
		func() error { return checkBatchNorm(keyNorm1, p.Norm1, Hidden1Width) },
		func() error { return checkLinear(keyHidden2, p.Hidden2, Hidden1Width, Hidden2Width) },
		func() error { return checkBatchNorm(keyNorm2, p.Norm2, Hidden2Width) },
		func() error { return checkLinear(keyHidden3, p.Hidden3, Hidden2Width, Hidden3Width) },
		func() error { return checkLinear(keyOutput, p.Output, Hidden3Width, OutputWidth) },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func checkLinear(name string, l Linear, in, out int) error {
	if len(l.Weight) != out {
		return fmt.Errorf("%w: %s.weight has %d rows, want %d", ErrInvalidCheckpoint, name, len(l.Weight), out)
	}
	for r, row := range l.Weight {
		if len(row) != in {
			return fmt.Errorf("%w: %s.weight row %d has %d columns, want %d", ErrInvalidCheckpoint, name, r, len(row), in)
		}
		if err := finite(name+".weight", row); err != nil {
			return err
		}
	}
	if len(l.Bias) != out {
		return fmt.Errorf("%w: %s.bias has %d values, want %d", ErrInvalidCheckpoint, name, len(l.Bias), out)
	}
	return finite(name+".bias", l.Bias)
}

func checkBatchNorm(name string, b BatchNorm, width int) error {
	tensors := []struct {
		suffix string
		v      []float64
	}{
		{".weight", b.Weight},
		{".bias", b.Bias},
		{".running_mean", b.RunningMean},
		{".running_var", b.RunningVar},
	}
	for _, t := range tensors {
		if len(t.v) != width {
			return fmt.Errorf("%w: %s%s has %d values, want %d", ErrInvalidCheckpoint, name, t.suffix, len(t.v), width)
		}
		if err := finite(name+t.suffix, t.v); err != nil {
			return err
		}
	}
	for i, v := range b.RunningVar {
		if v < 0 {
			return fmt.Errorf("%w: %s.running_var[%d]=%v is negative", ErrInvalidCheckpoint, name, i, v)
		}
	}
	if !(b.Eps > 0) || math.IsInf(b.Eps, 0) {
		return fmt.Errorf("%w: %s eps=%v must be a positive finite number", ErrInvalidCheckpoint, name, b.Eps)
	}
	return nil
}

func finite(name string, v []float64) error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %s[%d] is not finite", ErrInvalidCheckpoint, name, i)
		}
	}
	return nil
}

// LayerSummary describes one parameterized layer.
type LayerSummary struct {
	Name   string `json:"name" yaml:"name"`
	Kind   string `json:"kind" yaml:"kind"`
	Shape  string `json:"shape" yaml:"shape"`
	Params int    `json:"params" yaml:"params"`
}

// Summary is a human-oriented description of a checkpoint.
type Summary struct {
	Source     string         `json:"source,omitempty" yaml:"source,omitempty"`
	Features   []string       `json:"features" yaml:"features,flow"`
	Mu         []float64      `json:"mu" yaml:"mu,flow"`
	Sigma      []float64      `json:"sigma" yaml:"sigma,flow"`
	Layers     []LayerSummary `json:"layers" yaml:"layers"`
	ParamCount int            `json:"param_count" yaml:"param_count"`
}

// Summary reports the layer shapes and trainable parameter count.
func (p *Params) Summary() Summary {
	s := Summary{
		Source:   p.Source,
		Features: append([]string(nil), p.Features[:]...),
		Mu:       append([]float64(nil), p.Mu[:]...),
		Sigma:    append([]float64(nil), p.Sigma[:]...),
	}
	addLinear := func(name string, l Linear) {
		n := l.Out()*l.In() + len(l.Bias)
		s.Layers = append(s.Layers, LayerSummary{
			Name: name, Kind: "linear", Shape: fmt.Sprintf("%dx%d", l.Out(), l.In()), Params: n,
		})
		s.ParamCount += n
	}
	addNorm := func(name string, b BatchNorm) {
		// running statistics are buffers, not trainable parameters
		n := len(b.Weight) + len(b.Bias)
		s.Layers = append(s.Layers, LayerSummary{
			Name: name, Kind: "batchnorm", Shape: fmt.Sprintf("%d", b.Width()), Params: n,
		})
		s.ParamCount += n
	}
	addLinear(keyHidden1, p.Hidden1)
	addNorm(keyNorm1, p.Norm1)
	addLinear(keyHidden2, p.Hidden2)
	addNorm(keyNorm2, p.Norm2)
	addLinear(keyHidden3, p.Hidden3)
	addLinear(keyOutput, p.Output)
	return s
}
