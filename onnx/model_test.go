package onnx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// Argument validation happens before the runtime library is touched.
func TestNew_RequiresShapes(t *testing.T) {
	_, err := New([]byte("not-a-model"), Options{InputName: "input", OutputName: "output"})
	require.Error(t, err)

	_, err = New([]byte("not-a-model"), Options{InputShape: []int{1, 168, 150, 1}})
	require.Error(t, err)
}

func TestPredict_RejectsShapeBeforeRunning(t *testing.T) {
	m := &Model{inShape: tensor.Shape{1, 168, 150, 1}}

	x := tensor.New(tensor.WithShape(1, 150, 168, 1), tensor.Of(tensor.Float32))
	_, err := m.Predict(context.Background(), x)
	require.Error(t, err)

	_, err = m.Predict(context.Background(), nil)
	require.Error(t, err)
}
