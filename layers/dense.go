package layers

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

type flatten struct{}

func (flatten) forward(x *tensor.Dense) (*tensor.Dense, error) {
	xs := x.Shape()
	if xs.Dims() < 2 {
		return nil, fmt.Errorf("cannot flatten shape %v", xs)
	}
	return withShape(x, xs[0], xs[1:].TotalSize()), nil
}

type dense struct {
	kernel []float32 // [in, units]
	in     int
	units  int
	bias   []float32
	act    activation
}

func newDense(name string, cfg denseConfig, w weightIndex) (*dense, error) {
	act, err := lookupActivation(cfg.Activation)
	if err != nil {
		return nil, err
	}
	kernel, err := w.find(name, "kernel")
	if err != nil {
		return nil, err
	}
	ks := kernel.Shape()
	if ks.Dims() != 2 {
		return nil, fmt.Errorf("kernel shape %v, want [in, units]", ks)
	}
	if cfg.Units != 0 && ks[1] != cfg.Units {
		return nil, fmt.Errorf("kernel has %d units, config says %d", ks[1], cfg.Units)
	}

	d := &dense{kernel: floats(kernel), in: ks[0], units: ks[1], act: act}
	if boolOr(cfg.UseBias, true) {
		bias, err := w.find(name, "bias")
		if err != nil {
			return nil, err
		}
		if d.bias = floats(bias); len(d.bias) != d.units {
			return nil, fmt.Errorf("bias has %d values for %d units", len(d.bias), d.units)
		}
	}
	return d, nil
}

// forward contracts the last axis of x with the kernel.
func (d *dense) forward(x *tensor.Dense) (*tensor.Dense, error) {
	xs := x.Shape()
	if xs.Dims() < 1 || xs[xs.Dims()-1] != d.in {
		return nil, fmt.Errorf("input shape %v, want last axis %d", xs, d.in)
	}
	rows := xs.TotalSize() / d.in

	shape := append(xs[:xs.Dims()-1].Clone(), d.units)
	out := zeros(shape...)
	src, res := floats(x), floats(out)
	for r := 0; r < rows; r++ {
		acc := res[r*d.units : (r+1)*d.units]
		if d.bias != nil {
			copy(acc, d.bias)
		}
		for i, v := range src[r*d.in : (r+1)*d.in] {
			if v == 0 {
				continue
			}
			for u, kv := range d.kernel[i*d.units : (i+1)*d.units] {
				acc[u] += v * kv
			}
		}
	}

	apply(d.act, out)
	return out, nil
}

// batchNorm applies the frozen moving statistics over the last axis.
type batchNorm struct {
	scale []float32
	shift []float32
}

func newBatchNorm(name string, cfg batchNormConfig, w weightIndex) (*batchNorm, error) {
	if err := checkAxisLast(cfg.Axis); err != nil {
		return nil, err
	}
	mean, err := w.values(name, "moving_mean")
	if err != nil {
		return nil, err
	}
	variance, err := w.values(name, "moving_variance")
	if err != nil {
		return nil, err
	}
	if len(mean) != len(variance) {
		return nil, fmt.Errorf("moving_mean has %d values, moving_variance %d", len(mean), len(variance))
	}

	var gamma, beta []float32
	if boolOr(cfg.Scale, true) {
		if gamma, err = w.values(name, "gamma"); err != nil {
			return nil, err
		}
	}
	if boolOr(cfg.Center, true) {
		if beta, err = w.values(name, "beta"); err != nil {
			return nil, err
		}
	}
	n := len(mean)
	if (gamma != nil && len(gamma) != n) || (beta != nil && len(beta) != n) {
		return nil, fmt.Errorf("gamma/beta do not match %d channels", n)
	}

	eps := cfg.Epsilon
	if eps == 0 {
		eps = 1e-3
	}
	bn := &batchNorm{scale: make([]float32, n), shift: make([]float32, n)}
	for c := 0; c < n; c++ {
		s := float32(1 / math.Sqrt(float64(variance[c]+eps)))
		if gamma != nil {
			s *= gamma[c]
		}
		bn.scale[c] = s
		bn.shift[c] = -mean[c] * s
		if beta != nil {
			bn.shift[c] += beta[c]
		}
	}
	return bn, nil
}

func (bn *batchNorm) forward(x *tensor.Dense) (*tensor.Dense, error) {
	ch := len(bn.scale)
	xs := x.Shape()
	if xs.Dims() < 1 || xs[xs.Dims()-1] != ch {
		return nil, fmt.Errorf("input shape %v, want last axis %d", xs, ch)
	}
	out := clone(x)
	data := floats(out)
	for i, v := range data {
		c := i % ch
		data[i] = v*bn.scale[c] + bn.shift[c]
	}
	return out, nil
}
