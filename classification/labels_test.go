package classification

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func scoreTensor(scores []float32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(scores))
}

func TestDecode_TieBreaksToLowerIndex(t *testing.T) {
	out := scoreTensor([]float32{0.5, 0.5, 0.1, 0.1}, 1, 4)

	pred, err := Decode(out, nil)
	require.NoError(t, err)
	require.Equal(t, 0, pred.Index)
	require.Equal(t, "Glioma", pred.Label)
	require.Equal(t, []float32{0.5, 0.5, 0.1, 0.1}, pred.Scores)
}

func TestDecode_EachClass(t *testing.T) {
	for i, label := range DefaultLabels {
		scores := make([]float32, len(DefaultLabels))
		scores[i] = 1
		out := scoreTensor(scores, 1, len(scores))

		pred, err := Decode(out, DefaultLabels)
		require.NoError(t, err)
		require.Equal(t, label, pred.Label)
	}
}

func TestDecode_RankOneOutput(t *testing.T) {
	out := scoreTensor([]float32{0, 0, 0, 3}, 4)

	pred, err := Decode(out, nil)
	require.NoError(t, err)
	require.Equal(t, "Pituitary", pred.Label)
}

func TestDecode_IndexOutsideLabels(t *testing.T) {
	out := scoreTensor([]float32{0, 0, 0, 0, 9}, 1, 5)

	_, err := Decode(out, nil)
	require.Error(t, err)
}

func TestDecode_LaterTieKeepsFirst(t *testing.T) {
	pred, err := Decode(scoreTensor([]float32{0.1, 0.4, 0.4, 0.1}, 1, 4), nil)
	require.NoError(t, err)
	require.Equal(t, 1, pred.Index)
	require.Equal(t, "Meningioma", pred.Label)
}

func TestDecode_UsesFirstBatchRow(t *testing.T) {
	out := scoreTensor([]float32{0, 0, 1, 0, 1, 0, 0, 0}, 2, 4)
	pred, err := Decode(out, nil)
	require.NoError(t, err)
	require.Equal(t, "No Tumor", pred.Label)
	require.Equal(t, []float32{0, 0, 1, 0}, pred.Scores)
}

func TestDecode_RejectsRankThree(t *testing.T) {
	_, err := Decode(scoreTensor(make([]float32, 4), 1, 1, 4), nil)
	require.Error(t, err)
}
