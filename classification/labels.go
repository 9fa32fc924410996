package classification

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/Tutortoise/tumor-detection-service/models"
)

// Decode picks the highest scoring class of the first batch row. Equal scores
// resolve to the lower class index.
func Decode(output *tensor.Dense, labels []string) (models.Prediction, error) {
	if output == nil {
		return models.Prediction{}, fmt.Errorf("no model output")
	}
	if len(labels) == 0 {
		labels = DefaultLabels
	}

	shape := output.Shape()
	var rows, cols int
	switch shape.Dims() {
	case 1:
		rows, cols = 1, shape[0]
	case 2:
		rows, cols = shape[0], shape[1]
	default:
		return models.Prediction{}, fmt.Errorf("model output has shape %v, want (batch, classes)", shape)
	}
	if rows == 0 || cols == 0 {
		return models.Prediction{}, fmt.Errorf("model output of shape %v is empty", shape)
	}
	data, ok := output.Data().([]float32)
	if !ok || len(data) < rows*cols {
		return models.Prediction{}, fmt.Errorf("model output is not a dense float32 %v tensor", shape)
	}

	scores := tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(data[:rows*cols]))
	best, err := scores.Argmax(1)
	if err != nil {
		return models.Prediction{}, err
	}
	index, err := firstIndex(best)
	if err != nil {
		return models.Prediction{}, err
	}
	if index >= len(labels) {
		return models.Prediction{}, fmt.Errorf("class index %d outside the %d known labels", index, len(labels))
	}

	return models.Prediction{
		Index:  index,
		Label:  labels[index],
		Scores: append([]float32(nil), data[:cols]...),
	}, nil
}

func firstIndex(argmax *tensor.Dense) (int, error) {
	switch v := argmax.Data().(type) {
	case []int:
		if len(v) > 0 {
			return v[0], nil
		}
	case int:
		return v, nil
	}
	return 0, fmt.Errorf("unexpected argmax result %v", argmax.Data())
}
