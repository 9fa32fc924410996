package layers

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

// activation applies in place. lastDim is the size of the innermost axis,
// which softmax normalizes over.
type activation func(data []float32, lastDim int)

func lookupActivation(name string) (activation, error) {
	switch name {
	case "", "linear":
		return nil, nil
	case "relu":
		return relu, nil
	case "relu6":
		return relu6, nil
	case "sigmoid":
		return sigmoid, nil
	case "tanh":
		return tanh, nil
	case "softmax":
		return softmax, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedActivation, name)
}

func relu(data []float32, _ int) {
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
}

func relu6(data []float32, _ int) {
	for i, v := range data {
		switch {
		case v < 0:
			data[i] = 0
		case v > 6:
			data[i] = 6
		}
	}
}

func sigmoid(data []float32, _ int) {
	for i, v := range data {
		data[i] = float32(1 / (1 + math.Exp(-float64(v))))
	}
}

func tanh(data []float32, _ int) {
	for i, v := range data {
		data[i] = float32(math.Tanh(float64(v)))
	}
}

func softmax(data []float32, lastDim int) {
	for start := 0; start+lastDim <= len(data); start += lastDim {
		row := data[start : start+lastDim]
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - maxVal))
			row[i] = float32(e)
			sum += e
		}
		for i := range row {
			row[i] = float32(float64(row[i]) / sum)
		}
	}
}

type activationLayer struct {
	act activation
}

func (a activationLayer) forward(x *tensor.Dense) (*tensor.Dense, error) {
	out := clone(x)
	apply(a.act, out)
	return out, nil
}

func apply(act activation, t *tensor.Dense) {
	shape := t.Shape()
	if act == nil || shape.Dims() == 0 {
		return
	}
	act(floats(t), shape[shape.Dims()-1])
}
