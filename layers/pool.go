package layers

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

type pool2D struct {
	size    [2]int
	strides [2]int
	same    bool
	max     bool
}

func newPool2D(cfg poolConfig, isMax bool) (*pool2D, error) {
	if err := checkChannelsLast(cfg.DataFormat); err != nil {
		return nil, err
	}
	size, err := pair(cfg.PoolSize, [2]int{2, 2})
	if err != nil {
		return nil, err
	}
	strides, err := pair(cfg.Strides, size)
	if err != nil {
		return nil, err
	}
	same, err := parsePadding(cfg.Padding)
	if err != nil {
		return nil, err
	}
	return &pool2D{size: size, strides: strides, same: same, max: isMax}, nil
}

// forward ignores padded positions: a max never sees them and an average
// divides by the number of real inputs in the window.
func (p *pool2D) forward(x *tensor.Dense) (*tensor.Dense, error) {
	xs := x.Shape()
	if xs.Dims() != 4 {
		return nil, fmt.Errorf("expected NHWC input, got shape %v", xs)
	}
	n, inH, inW, ch := xs[0], xs[1], xs[2], xs[3]
	outH, padTop, err := outputSize(inH, p.size[0], p.strides[0], p.same)
	if err != nil {
		return nil, err
	}
	outW, padLeft, err := outputSize(inW, p.size[1], p.strides[1], p.same)
	if err != nil {
		return nil, err
	}

	out := zeros(n, outH, outW, ch)
	src, res := floats(x), floats(out)
	parallelRows(n*outH, func(start, end int) {
		for row := start; row < end; row++ {
			b, oy := row/outH, row%outH
			y0 := max(oy*p.strides[0]-padTop, 0)
			y1 := min(oy*p.strides[0]-padTop+p.size[0], inH)
			for ox := 0; ox < outW; ox++ {
				x0 := max(ox*p.strides[1]-padLeft, 0)
				x1 := min(ox*p.strides[1]-padLeft+p.size[1], inW)
				dst := res[((b*outH+oy)*outW+ox)*ch : ((b*outH+oy)*outW+ox+1)*ch]
				for c := 0; c < ch; c++ {
					var acc float32
					if p.max {
						acc = float32(math.Inf(-1))
					}
					for iy := y0; iy < y1; iy++ {
						for ix := x0; ix < x1; ix++ {
							v := src[((b*inH+iy)*inW+ix)*ch+c]
							if p.max {
								if v > acc {
									acc = v
								}
							} else {
								acc += v
							}
						}
					}
					if !p.max {
						acc /= float32((y1 - y0) * (x1 - x0))
					}
					dst[c] = acc
				}
			}
		}
	})
	return out, nil
}

type globalAvgPool struct{}

func (globalAvgPool) forward(x *tensor.Dense) (*tensor.Dense, error) {
	xs := x.Shape()
	if xs.Dims() != 4 {
		return nil, fmt.Errorf("expected NHWC input, got shape %v", xs)
	}
	n, h, w, ch := xs[0], xs[1], xs[2], xs[3]
	out := zeros(n, ch)
	in, res := floats(x), floats(out)
	for b := 0; b < n; b++ {
		dst := res[b*ch : (b+1)*ch]
		for i := 0; i < h*w; i++ {
			src := in[(b*h*w+i)*ch : (b*h*w+i+1)*ch]
			for c, v := range src {
				dst[c] += v
			}
		}
		for c := range dst {
			dst[c] /= float32(h * w)
		}
	}
	return out, nil
}
