package layers

import (
	"fmt"

	"gorgonia.org/tensor"
)

type conv2D struct {
	kernel  []float32 // [kh, kw, in, out]
	kshape  [4]int
	bias    []float32 // [out], nil without bias
	strides [2]int
	same    bool
	act     activation
}

func newConv2D(name string, cfg convConfig, w weightIndex) (*conv2D, error) {
	if err := checkChannelsLast(cfg.DataFormat); err != nil {
		return nil, err
	}
	dilation, err := pair(cfg.DilationRate, [2]int{1, 1})
	if err != nil {
		return nil, err
	}
	if dilation != [2]int{1, 1} {
		return nil, fmt.Errorf("%w: dilated convolution %v", ErrUnsupportedLayer, dilation)
	}
	strides, err := pair(cfg.Strides, [2]int{1, 1})
	if err != nil {
		return nil, err
	}
	same, err := parsePadding(cfg.Padding)
	if err != nil {
		return nil, err
	}
	act, err := lookupActivation(cfg.Activation)
	if err != nil {
		return nil, err
	}

	kernel, err := w.find(name, "kernel")
	if err != nil {
		return nil, err
	}
	ks := kernel.Shape()
	if ks.Dims() != 4 {
		return nil, fmt.Errorf("kernel shape %v, want [kh, kw, in, out]", ks)
	}
	if cfg.Filters != 0 && ks[3] != cfg.Filters {
		return nil, fmt.Errorf("kernel has %d filters, config says %d", ks[3], cfg.Filters)
	}

	c := &conv2D{
		kernel:  floats(kernel),
		kshape:  [4]int{ks[0], ks[1], ks[2], ks[3]},
		strides: strides,
		same:    same,
		act:     act,
	}
	if boolOr(cfg.UseBias, true) {
		bias, err := w.find(name, "bias")
		if err != nil {
			return nil, err
		}
		if c.bias = floats(bias); len(c.bias) != ks[3] {
			return nil, fmt.Errorf("bias has %d values for %d filters", len(c.bias), ks[3])
		}
	}
	return c, nil
}

func (c *conv2D) forward(x *tensor.Dense) (*tensor.Dense, error) {
	xs := x.Shape()
	if xs.Dims() != 4 {
		return nil, fmt.Errorf("expected NHWC input, got shape %v", xs)
	}
	n, inH, inW, inC := xs[0], xs[1], xs[2], xs[3]
	kh, kw, kc, outC := c.kshape[0], c.kshape[1], c.kshape[2], c.kshape[3]
	if inC != kc {
		return nil, fmt.Errorf("input has %d channels, kernel expects %d", inC, kc)
	}

	outH, padTop, err := outputSize(inH, kh, c.strides[0], c.same)
	if err != nil {
		return nil, err
	}
	outW, padLeft, err := outputSize(inW, kw, c.strides[1], c.same)
	if err != nil {
		return nil, err
	}

	out := zeros(n, outH, outW, outC)
	src, dst, k := floats(x), floats(out), c.kernel

	parallelRows(n*outH, func(start, end int) {
		for row := start; row < end; row++ {
			b, oy := row/outH, row%outH
			for ox := 0; ox < outW; ox++ {
				acc := dst[((b*outH+oy)*outW+ox)*outC : ((b*outH+oy)*outW+ox+1)*outC]
				if c.bias != nil {
					copy(acc, c.bias)
				}
				for ky := 0; ky < kh; ky++ {
					iy := oy*c.strides[0] + ky - padTop
					if iy < 0 || iy >= inH {
						continue
					}
					for kx := 0; kx < kw; kx++ {
						ix := ox*c.strides[1] + kx - padLeft
						if ix < 0 || ix >= inW {
							continue
						}
						px := src[((b*inH+iy)*inW+ix)*inC : ((b*inH+iy)*inW+ix+1)*inC]
						for ci, v := range px {
							if v == 0 {
								continue
							}
							kr := k[((ky*kw+kx)*kc+ci)*outC : ((ky*kw+kx)*kc+ci+1)*outC]
							for oc, kv := range kr {
								acc[oc] += v * kv
							}
						}
					}
				}
			}
		}
	})

	apply(c.act, out)
	return out, nil
}

func parsePadding(padding string) (same bool, err error) {
	switch padding {
	case "", "valid":
		return false, nil
	case "same":
		return true, nil
	}
	return false, fmt.Errorf("%w: padding %q", ErrUnsupportedLayer, padding)
}

// outputSize follows TensorFlow's VALID/SAME arithmetic and returns the output
// extent and the padding added before the first element.
func outputSize(in, k, stride int, same bool) (out, padBefore int, err error) {
	if stride <= 0 {
		return 0, 0, fmt.Errorf("invalid stride %d", stride)
	}
	if same {
		out = (in + stride - 1) / stride
		padTotal := (out-1)*stride + k - in
		if padTotal < 0 {
			padTotal = 0
		}
		return out, padTotal / 2, nil
	}
	if in < k {
		return 0, 0, fmt.Errorf("input extent %d smaller than window %d", in, k)
	}
	return (in-k)/stride + 1, 0, nil
}
