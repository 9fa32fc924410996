package models

import "time"

// Prediction is a decoded classifier output.
type Prediction struct {
	Index  int       `json:"index"`
	Label  string    `json:"label"`
	Scores []float32 `json:"scores"`
}

type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Total       time.Duration
}
