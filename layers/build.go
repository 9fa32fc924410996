package layers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// buildLayer returns nil for layers that are no-ops at inference time.
func buildLayer(spec layerSpec, common commonConfig, w weightIndex) (layer, error) {
	switch spec.ClassName {
	case "InputLayer", "Dropout", "SpatialDropout2D", "GaussianNoise":
		return nil, nil

	case "Flatten":
		return flatten{}, nil

	case "Activation":
		var cfg activationConfig
		if err := json.Unmarshal(spec.Config, &cfg); err != nil {
			return nil, err
		}
		act, err := lookupActivation(cfg.Activation)
		if err != nil {
			return nil, err
		}
		return activationLayer{act: act}, nil

	case "Conv2D":
		var cfg convConfig
		if err := json.Unmarshal(spec.Config, &cfg); err != nil {
			return nil, err
		}
		return newConv2D(common.Name, cfg, w)

	case "MaxPooling2D", "AveragePooling2D":
		var cfg poolConfig
		if err := json.Unmarshal(spec.Config, &cfg); err != nil {
			return nil, err
		}
		return newPool2D(cfg, spec.ClassName == "MaxPooling2D")

	case "GlobalAveragePooling2D":
		var cfg poolConfig
		if err := json.Unmarshal(spec.Config, &cfg); err != nil {
			return nil, err
		}
		if err := checkChannelsLast(cfg.DataFormat); err != nil {
			return nil, err
		}
		return globalAvgPool{}, nil

	case "Dense":
		var cfg denseConfig
		if err := json.Unmarshal(spec.Config, &cfg); err != nil {
			return nil, err
		}
		return newDense(common.Name, cfg, w)

	case "BatchNormalization":
		var cfg batchNormConfig
		if err := json.Unmarshal(spec.Config, &cfg); err != nil {
			return nil, err
		}
		return newBatchNorm(common.Name, cfg, w)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedLayer, spec.ClassName)
}

// checkAxisLast accepts the Keras spellings of "last axis" for rank-4 input.
func checkAxisLast(raw json.RawMessage) error {
	s := strings.Trim(strings.TrimSpace(string(raw)), "[]")
	switch strings.TrimSpace(s) {
	case "", "-1", "3":
		return nil
	}
	return fmt.Errorf("%w: normalization over axis %s", ErrUnsupportedLayer, string(raw))
}
