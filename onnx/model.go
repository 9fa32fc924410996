// Package onnx runs the classifier through ONNX Runtime. It is the
// alternative to the pure-Go layers backend for deployments that ship a
// converted .onnx copy of the network.
package onnx

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/Tutortoise/tumor-detection-service/artifacts"
)

type Options struct {
	LibraryPath string // ONNX Runtime shared library; empty uses the platform default
	InputName   string
	OutputName  string
	InputShape  []int // including the batch axis
	NumClasses  int
}

var envOnce sync.Once
var envErr error

func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("error initializing ONNX environment: %w", err)
		}
	})
	return envErr
}

// Model owns one session with preallocated input and output tensors, so calls
// to Predict are serialized.
type Model struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	inShape tensor.Shape
}

// Load fetches an .onnx file from location (URL or local path) and opens a
// session for it.
func Load(ctx context.Context, client *http.Client, location string, opts Options) (*Model, error) {
	data, err := artifacts.Get(ctx, client, location)
	if err != nil {
		return nil, fmt.Errorf("fetch onnx model: %w", err)
	}
	return New(data, opts)
}

// New creates a session from serialized ONNX bytes.
func New(onnxData []byte, opts Options) (*Model, error) {
	if len(opts.InputShape) == 0 || opts.NumClasses <= 0 {
		return nil, fmt.Errorf("onnx model needs an input shape and class count")
	}
	if err := initEnvironment(opts.LibraryPath); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(1)

	inputShape := make([]int64, len(opts.InputShape))
	for i, d := range opts.InputShape {
		inputShape[i] = int64(d)
	}
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(inputShape...))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(opts.InputShape[0]), int64(opts.NumClasses)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSessionWithONNXData(
		onnxData,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &Model{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
		inShape: tensor.Shape(opts.InputShape).Clone(),
	}, nil
}

func (m *Model) Predict(ctx context.Context, x *tensor.Dense) (*tensor.Dense, error) {
	if x == nil || !x.Shape().Eq(m.inShape) {
		var got tensor.Shape
		if x != nil {
			got = x.Shape()
		}
		return nil, fmt.Errorf("input shape %v, session expects %v", got, m.inShape)
	}
	if x.RequiresIterator() {
		x = x.Materialize().(*tensor.Dense)
	}
	data, ok := x.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("input dtype %v, want %v", x.Dtype(), tensor.Float32)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.input.GetData(), data)
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	scores := append([]float32(nil), m.output.GetData()...)
	return tensor.New(tensor.WithShape(m.inShape[0], len(scores)/m.inShape[0]), tensor.WithBacking(scores)), nil
}

func (m *Model) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.session.Destroy()
	}
	if m.input != nil {
		m.input.Destroy()
	}
	if m.output != nil {
		m.output.Destroy()
	}
}
