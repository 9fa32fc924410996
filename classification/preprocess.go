package classification

import (
	"fmt"
	"runtime"
	"sync"

	"gorgonia.org/tensor"
)

// Preprocess converts an (H, W, C) pixel tensor with values in 0..255 into the
// (1, 168, 150, 1) model input: bilinear resize, channel mean, scale to [0,1].
func Preprocess(pixels *tensor.Dense) (*tensor.Dense, error) {
	src, err := pixelData(pixels)
	if err != nil {
		return nil, &ProcessingError{Message: "preprocess", Cause: err}
	}
	shape := pixels.Shape()

	gray := resizeGray(src, shape[0], shape[1], shape[2], InputHeight, InputWidth)

	if err := gray.Reshape(InputHeight, InputWidth, InputChannels); err != nil {
		return nil, &ProcessingError{Message: "expand channel", Cause: err}
	}
	if err := gray.Reshape(1, InputHeight, InputWidth, InputChannels); err != nil {
		return nil, &ProcessingError{Message: "expand batch", Cause: err}
	}
	return gray, nil
}

// pixelData returns the row-major values of an (H, W, C) float32 tensor after
// checking that the backing data covers the whole shape.
func pixelData(pixels *tensor.Dense) ([]float32, error) {
	if pixels == nil {
		return nil, fmt.Errorf("no pixel tensor")
	}
	shape := pixels.Shape()
	if shape.Dims() != 3 || shape[0] <= 0 || shape[1] <= 0 || shape[2] <= 0 {
		return nil, fmt.Errorf("expected (height, width, channels) pixels, got shape %v", shape)
	}
	if pixels.Dtype() != tensor.Float32 {
		return nil, fmt.Errorf("expected float32 pixels, got %v", pixels.Dtype())
	}
	if pixels.RequiresIterator() {
		return nil, fmt.Errorf("pixel tensor of shape %v is a strided view", shape)
	}
	data, ok := pixels.Data().([]float32)
	if !ok || len(data) != shape.TotalSize() {
		return nil, fmt.Errorf("pixel tensor holds %d values for shape %v", len(data), shape)
	}
	return data, nil
}

// resizeGray samples the source the way tf.image.resizeBilinear does with
// alignCorners and halfPixelCenters both off, averages the channels and
// divides by PixelScale. Output rows are split between workers; every output
// value depends only on the input, so the result does not depend on
// scheduling.
func resizeGray(src []float32, inH, inW, channels, outH, outW int) *tensor.Dense {
	dst := make([]float32, outH*outW)

	scaleY := float32(inH) / float32(outH)
	scaleX := float32(inW) / float32(outW)

	xs := make([]sample, outW)
	for x := 0; x < outW; x++ {
		xs[x] = newSample(float32(x)*scaleX, inW)
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > outH {
		numWorkers = outH
	}
	rowsPerWorker := outH / numWorkers
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if w == numWorkers-1 {
			endY = outH
		}

		go func(startY, endY int) {
			defer wg.Done()
			for y := startY; y < endY; y++ {
				sy := newSample(float32(y)*scaleY, inH)
				top := sy.lo * inW * channels
				bottom := sy.hi * inW * channels
				for x := 0; x < outW; x++ {
					sx := xs[x]
					var sum float32
					for c := 0; c < channels; c++ {
						tl := src[top+sx.lo*channels+c]
						tr := src[top+sx.hi*channels+c]
						bl := src[bottom+sx.lo*channels+c]
						br := src[bottom+sx.hi*channels+c]
						t := tl + (tr-tl)*sx.frac
						b := bl + (br-bl)*sx.frac
						sum += t + (b-t)*sy.frac
					}
					dst[y*outW+x] = clamp01(sum / float32(channels) / PixelScale)
				}
			}
		}(startY, endY)
	}

	wg.Wait()
	return tensor.New(tensor.WithShape(outH, outW), tensor.WithBacking(dst))
}

type sample struct {
	lo, hi int
	frac   float32
}

func newSample(in float32, size int) sample {
	lo := int(in)
	if lo > size-1 {
		lo = size - 1
	}
	hi := lo + 1
	if hi > size-1 {
		hi = size - 1
	}
	return sample{lo: lo, hi: hi, frac: in - float32(lo)}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
