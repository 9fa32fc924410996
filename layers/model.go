// Package layers runs Keras Sequential models exported in the TF.js
// layers-model format, entirely in Go. Only the layer types a small image
// classifier needs are implemented; anything else fails at load time.
package layers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorgonia.org/tensor"

	"github.com/Tutortoise/tumor-detection-service/artifacts"
)

var (
	ErrUnsupportedLayer      = errors.New("unsupported layer")
	ErrUnsupportedActivation = errors.New("unsupported activation")
)

type layer interface {
	forward(x *tensor.Dense) (*tensor.Dense, error)
}

type namedLayer struct {
	name  string
	class string
	layer layer
}

// Model is a loaded Sequential network. It holds no mutable state, so Predict
// may be called concurrently.
type Model struct {
	Name       string
	InputShape []int // per-example shape; zero entries are unconstrained
	layers     []namedLayer
}

// Load fetches model.json and its shards from location and builds the model.
func Load(ctx context.Context, client *http.Client, location string) (*Model, error) {
	a, err := artifacts.Fetch(ctx, client, location)
	if err != nil {
		return nil, err
	}
	return Build(a)
}

// Build assembles a Model from fetched artifacts.
func Build(a *artifacts.Artifacts) (*Model, error) {
	if a == nil || a.Model == nil {
		return nil, fmt.Errorf("no model artifacts")
	}
	if a.Model.Format != "" && a.Model.Format != artifacts.FormatLayersModel {
		return nil, fmt.Errorf("model format %q is not %q", a.Model.Format, artifacts.FormatLayersModel)
	}

	name, specs, err := parseTopology(a.Model.ModelTopology)
	if err != nil {
		return nil, err
	}

	weights := newWeightIndex(a.Weights)
	m := &Model{Name: name}
	for i, spec := range specs {
		var common commonConfig
		if err := json.Unmarshal(spec.Config, &common); err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, spec.ClassName, err)
		}
		if i == 0 {
			m.InputShape = common.inputShape()
		}

		l, err := buildLayer(spec, common, weights)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", common.Name, err)
		}
		if l != nil {
			m.layers = append(m.layers, namedLayer{name: common.Name, class: spec.ClassName, layer: l})
		}
	}
	if len(m.layers) == 0 {
		return nil, fmt.Errorf("model %q has no layers", name)
	}
	return m, nil
}

// Predict runs the forward pass on a batched input.
func (m *Model) Predict(ctx context.Context, x *tensor.Dense) (*tensor.Dense, error) {
	if x == nil {
		return nil, fmt.Errorf("no input tensor")
	}
	if x.Dtype() != tensor.Float32 {
		return nil, fmt.Errorf("input dtype %v, want %v", x.Dtype(), tensor.Float32)
	}
	if x.RequiresIterator() {
		x = x.Materialize().(*tensor.Dense)
	}
	if err := m.checkInput(x.Shape()); err != nil {
		return nil, err
	}

	out := x
	for _, l := range m.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := l.layer.forward(out)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", l.class, l.name, err)
		}
		out = next
	}
	return out, nil
}

func (m *Model) checkInput(shape []int) error {
	if m.InputShape == nil {
		return nil
	}
	if len(shape) != len(m.InputShape)+1 {
		return fmt.Errorf("input shape %v does not match model input [batch %v]", shape, m.InputShape)
	}
	for i, d := range m.InputShape {
		if d != 0 && shape[i+1] != d {
			return fmt.Errorf("input shape %v does not match model input [batch %v]", shape, m.InputShape)
		}
	}
	return nil
}

type topology struct {
	ClassName   string          `json:"class_name"`
	Config      json.RawMessage `json:"config"`
	ModelConfig *topology       `json:"model_config"`
}

type layerSpec struct {
	ClassName string          `json:"class_name"`
	Config    json.RawMessage `json:"config"`
}

type sequentialConfig struct {
	Name   string      `json:"name"`
	Layers []layerSpec `json:"layers"`
}

func parseTopology(raw json.RawMessage) (string, []layerSpec, error) {
	var top topology
	if err := json.Unmarshal(raw, &top); err != nil {
		return "", nil, fmt.Errorf("parse topology: %w", err)
	}
	if top.ModelConfig != nil {
		top = *top.ModelConfig
	}
	if top.ClassName != "Sequential" {
		return "", nil, fmt.Errorf("%w: model class %q, only Sequential is supported", ErrUnsupportedLayer, top.ClassName)
	}

	// Older Keras versions store the layer list directly as the config.
	if trimmed := strings.TrimSpace(string(top.Config)); strings.HasPrefix(trimmed, "[") {
		var specs []layerSpec
		if err := json.Unmarshal(top.Config, &specs); err != nil {
			return "", nil, fmt.Errorf("parse layers: %w", err)
		}
		return "sequential", specs, nil
	}

	var cfg sequentialConfig
	if err := json.Unmarshal(top.Config, &cfg); err != nil {
		return "", nil, fmt.Errorf("parse sequential config: %w", err)
	}
	return cfg.Name, cfg.Layers, nil
}

// weightIndex finds a layer's parameters by name. Converters write either
// "<layer>/<param>" or a scoped "<model>/<layer>/<param>".
type weightIndex map[string]*tensor.Dense

func newWeightIndex(weights []artifacts.Weight) weightIndex {
	idx := make(weightIndex, len(weights))
	for _, w := range weights {
		name := strings.TrimSuffix(w.Name, ":0")
		idx[name] = w.Tensor
	}
	return idx
}

func (w weightIndex) find(layerName, param string) (*tensor.Dense, error) {
	key := layerName + "/" + param
	t, ok := w[key]
	if !ok {
		for name, candidate := range w {
			if strings.HasSuffix(name, "/"+key) {
				t, ok = candidate, true
				break
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("missing weight %s", key)
	}
	if t.Dims() == 0 || t.Dtype() != tensor.Float32 {
		return nil, fmt.Errorf("weight %s: want a float32 array, got %v %v", key, t.Dtype(), t.Shape())
	}
	return t, nil
}

// values is find for one-axis parameters.
func (w weightIndex) values(layerName, param string) ([]float32, error) {
	t, err := w.find(layerName, param)
	if err != nil {
		return nil, err
	}
	if t.Dims() != 1 {
		return nil, fmt.Errorf("weight %s/%s has shape %v, want a vector", layerName, param, t.Shape())
	}
	return floats(t), nil
}
