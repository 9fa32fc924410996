// Package client is the inference side of the classifier: it loads the model
// published by the asset server, accepts image uploads and turns the latest
// one into a label.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"gorgonia.org/tensor"

	"github.com/Tutortoise/tumor-detection-service/classification"
	"github.com/Tutortoise/tumor-detection-service/models"
)

var (
	ErrStaleUpload = errors.New("upload superseded by a newer one")
	ErrNoModel     = errors.New("loader returned no model")
)

// Model is a loaded classifier.
type Model interface {
	Predict(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error)
}

// Loader turns the model location into a Model.
type Loader interface {
	Load(ctx context.Context, url string) (Model, error)
}

type LoaderFunc func(ctx context.Context, url string) (Model, error)

func (f LoaderFunc) Load(ctx context.Context, url string) (Model, error) {
	return f(ctx, url)
}

type Options struct {
	ModelURL string
	Labels   []string
	Logger   *log.Logger
	Debug    bool
}

// Result is the outcome of one Predict call.
type Result struct {
	Status       Status
	Prediction   models.Prediction
	MissingModel bool
	MissingImage bool
}

// Session holds the model, the latest upload and the latest prediction of one
// user.
type Session struct {
	loader   Loader
	modelURL string
	labels   []string
	logger   *log.Logger
	debug    bool

	mu         sync.Mutex
	model      Model
	upload     *Upload
	prediction *models.Prediction
	uploadSeq  uint64
}

func NewSession(loader Loader, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)
	}
	labels := opts.Labels
	if len(labels) == 0 {
		labels = classification.DefaultLabels
	}
	return &Session{
		loader:   loader,
		modelURL: opts.ModelURL,
		labels:   labels,
		logger:   logger,
		debug:    opts.Debug,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stateOf(s.model != nil, s.upload != nil)
}

func (s *Session) CanPredict() bool {
	return s.State() == StateReady
}

// CurrentUpload returns the current image, or nil.
func (s *Session) CurrentUpload() *Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upload
}

// Prediction returns the last published prediction.
func (s *Session) Prediction() (models.Prediction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prediction == nil {
		return models.Prediction{}, false
	}
	return *s.prediction, true
}

// LoadModel fetches the model. A failure leaves the session without a model;
// there is no retry.
func (s *Session) LoadModel(ctx context.Context) error {
	m, err := s.loader.Load(ctx, s.modelURL)
	if err == nil && m == nil {
		err = ErrNoModel
	}
	if err != nil {
		s.logger.Printf("Model loading failed: %v", err)
		return fmt.Errorf("load model from %s: %w", s.modelURL, err)
	}

	s.mu.Lock()
	s.model = m
	s.mu.Unlock()

	s.logger.Printf("Model loaded from %s", s.modelURL)
	return nil
}

// HandleUpload decodes an image and makes it the current one. If another
// upload started after this one by the time decoding finishes, the result is
// dropped and ErrStaleUpload returned.
func (s *Session) HandleUpload(ctx context.Context, r io.Reader) (*Upload, error) {
	s.mu.Lock()
	s.uploadSeq++
	token := s.uploadSeq
	s.mu.Unlock()

	up, err := decodeUpload(ctx, r)
	if err != nil {
		s.logger.Printf("Upload %d failed: %v", token, err)
		return nil, err
	}
	up.Token = token

	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.uploadSeq {
		s.logger.Printf("Discarding upload %d, upload %d is newer", token, s.uploadSeq)
		return nil, ErrStaleUpload
	}
	s.upload = up
	s.prediction = nil

	b := up.Image.Bounds()
	s.logger.Printf("Image uploaded: %dx%d", b.Dx(), b.Dy())
	return up, nil
}

// Predict classifies the current upload. Missing preconditions are reported
// as StatusNotReady with a nil error and change nothing.
func (s *Session) Predict(ctx context.Context) (Result, error) {
	startTotal := time.Now()

	s.mu.Lock()
	model, up := s.model, s.upload
	s.mu.Unlock()

	if model == nil || up == nil {
		res := Result{Status: StatusNotReady, MissingModel: model == nil, MissingImage: up == nil}
		if res.MissingImage {
			s.logger.Println("Tensor is not available.")
		}
		if res.MissingModel {
			s.logger.Println("Model is not loaded.")
		}
		return res, nil
	}

	timings := &models.ProcessingTimings{
		RequestID:   fmt.Sprintf("%d", up.Token),
		ImageDecode: up.DecodeTime,
	}

	prepStart := time.Now()
	input, err := classification.Preprocess(up.Pixels)
	timings.Preprocess = time.Since(prepStart)
	if err != nil {
		return s.fail(up, err)
	}

	inferStart := time.Now()
	output, err := model.Predict(ctx, input)
	timings.Inference = time.Since(inferStart)
	if err != nil {
		return s.fail(up, &classification.ProcessingError{Message: "model inference", Cause: err})
	}

	postStart := time.Now()
	pred, err := classification.Decode(output, s.labels)
	timings.Postprocess = time.Since(postStart)
	if err != nil {
		return s.fail(up, &classification.ProcessingError{Message: "decode prediction", Cause: err})
	}

	s.mu.Lock()
	if s.upload == up {
		s.prediction = &pred
	}
	s.mu.Unlock()

	timings.Total = time.Since(startTotal)
	s.logTimings(timings)
	s.logger.Printf("Predicted class: %d (%s)", pred.Index, pred.Label)
	return Result{Status: StatusOK, Prediction: pred}, nil
}

func (s *Session) fail(up *Upload, err error) (Result, error) {
	s.logger.Printf("Error in making prediction: %v", err)
	s.mu.Lock()
	if s.upload == up {
		s.prediction = nil
	}
	s.mu.Unlock()
	return Result{Status: StatusFailed}, err
}

func (s *Session) logTimings(t *models.ProcessingTimings) {
	if s.debug {
		s.logger.Printf("[DEBUG] Upload: %s - Processing times:\n"+
			"\tImage Decode: %v\n"+
			"\tPreprocess:  %v\n"+
			"\tInference:   %v\n"+
			"\tPostprocess: %v\n"+
			"\tTotal:       %v",
			t.RequestID,
			t.ImageDecode,
			t.Preprocess,
			t.Inference,
			t.Postprocess,
			t.Total)
	}
}
