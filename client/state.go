package client

// State is the session's position in the load/upload state machine. Predict
// only does work in StateReady.
type State string

const (
	StateEmpty       State = "no_model/no_image"
	StateModelLoaded State = "model_loaded/no_image"
	StateImageLoaded State = "no_model/image_loaded"
	StateReady       State = "model_loaded/image_loaded"
)

func stateOf(hasModel, hasImage bool) State {
	switch {
	case hasModel && hasImage:
		return StateReady
	case hasModel:
		return StateModelLoaded
	case hasImage:
		return StateImageLoaded
	default:
		return StateEmpty
	}
}

// Status tells callers whether Predict produced a label.
type Status string

const (
	StatusNotReady Status = "not_ready"
	StatusOK       Status = "ok"
	StatusFailed   Status = "failed"
)
