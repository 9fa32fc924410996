// Package artifacts reads TensorFlow.js layers-model artifacts: the model.json
// topology document and the binary weight shards it references.
package artifacts

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const FormatLayersModel = "layers-model"

// ModelJSON mirrors the model.json document written by the TF.js converter.
type ModelJSON struct {
	Format          string          `json:"format"`
	GeneratedBy     string          `json:"generatedBy"`
	ConvertedBy     string          `json:"convertedBy"`
	ModelTopology   json.RawMessage `json:"modelTopology"`
	WeightsManifest []WeightGroup   `json:"weightsManifest"`
}

// WeightGroup is one entry of the weights manifest. The weights of a group are
// laid out back to back across the concatenation of its shard files.
type WeightGroup struct {
	Paths   []string     `json:"paths"`
	Weights []WeightSpec `json:"weights"`
}

type WeightSpec struct {
	Name         string        `json:"name"`
	Shape        []int         `json:"shape"`
	DType        string        `json:"dtype"`
	Quantization *Quantization `json:"quantization,omitempty"`
}

// Quantization describes affine quantized storage: value = q*Scale + Min.
type Quantization struct {
	DType string  `json:"dtype"`
	Scale float32 `json:"scale"`
	Min   float32 `json:"min"`
}

// Parse decodes a model.json document.
func Parse(r io.Reader) (*ModelJSON, error) {
	var m ModelJSON
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("parse model.json: %w", err)
	}
	if len(m.ModelTopology) == 0 {
		return nil, fmt.Errorf("parse model.json: missing modelTopology")
	}
	return &m, nil
}

// ReadFile parses a model.json from disk.
func ReadFile(path string) (*ModelJSON, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// ShardPaths lists every shard path of the manifest in order.
func (m *ModelJSON) ShardPaths() []string {
	var paths []string
	for _, group := range m.WeightsManifest {
		paths = append(paths, group.Paths...)
	}
	return paths
}
