package layers

import (
	"gorgonia.org/tensor"
)

// zeros allocates a float32 tensor.
func zeros(shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.Of(tensor.Float32))
}

// floats is the row-major backing slice of a float32 tensor. Writes go
// through to the tensor.
func floats(t *tensor.Dense) []float32 {
	return t.Data().([]float32)
}

// withShape views the data of t under another shape of the same size.
func withShape(t *tensor.Dense, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(floats(t)))
}

func clone(t *tensor.Dense) *tensor.Dense {
	return t.Clone().(*tensor.Dense)
}
