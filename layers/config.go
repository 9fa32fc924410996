package layers

import (
	"encoding/json"
	"fmt"
)

type commonConfig struct {
	Name            string `json:"name"`
	BatchInputShape []*int `json:"batch_input_shape"`
	BatchShape      []*int `json:"batch_shape"`
}

// inputShape drops the batch axis; unknown dimensions become 0.
func (c commonConfig) inputShape() []int {
	shape := c.BatchInputShape
	if shape == nil {
		shape = c.BatchShape
	}
	if len(shape) < 2 {
		return nil
	}
	out := make([]int, len(shape)-1)
	for i, d := range shape[1:] {
		if d != nil {
			out[i] = *d
		}
	}
	return out
}

type convConfig struct {
	Filters      int    `json:"filters"`
	KernelSize   []int  `json:"kernel_size"`
	Strides      []int  `json:"strides"`
	Padding      string `json:"padding"`
	DataFormat   string `json:"data_format"`
	DilationRate []int  `json:"dilation_rate"`
	Activation   string `json:"activation"`
	UseBias      *bool  `json:"use_bias"`
}

type poolConfig struct {
	PoolSize   []int  `json:"pool_size"`
	Strides    []int  `json:"strides"`
	Padding    string `json:"padding"`
	DataFormat string `json:"data_format"`
}

type denseConfig struct {
	Units      int    `json:"units"`
	Activation string `json:"activation"`
	UseBias    *bool  `json:"use_bias"`
}

type batchNormConfig struct {
	Axis    json.RawMessage `json:"axis"`
	Epsilon float32         `json:"epsilon"`
	Center  *bool           `json:"center"`
	Scale   *bool           `json:"scale"`
}

type activationConfig struct {
	Activation string `json:"activation"`
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// pair reads a Keras 2D hyper-parameter, defaulting to def when absent.
func pair(v []int, def [2]int) ([2]int, error) {
	switch len(v) {
	case 0:
		return def, nil
	case 1:
		return [2]int{v[0], v[0]}, nil
	case 2:
		return [2]int{v[0], v[1]}, nil
	}
	return [2]int{}, fmt.Errorf("expected 2 values, got %v", v)
}

func checkChannelsLast(format string) error {
	if format != "" && format != "channels_last" {
		return fmt.Errorf("%w: data_format %s", ErrUnsupportedLayer, format)
	}
	return nil
}
