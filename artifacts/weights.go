package artifacts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

var ErrUnsupportedDType = errors.New("unsupported weight dtype")

// Weight is a decoded, named parameter tensor.
type Weight struct {
	Name   string
	Tensor *tensor.Dense
}

// DecodeWeights slices each group's concatenated shard bytes into float32
// tensors in manifest order. groupData[i] holds the bytes of group i.
func DecodeWeights(groups []WeightGroup, groupData [][]byte) ([]Weight, error) {
	if len(groups) != len(groupData) {
		return nil, fmt.Errorf("have data for %d weight groups, manifest lists %d", len(groupData), len(groups))
	}

	var weights []Weight
	for g, group := range groups {
		buf := groupData[g]
		offset := 0
		for _, spec := range group.Weights {
			width, err := spec.byteWidth()
			if err != nil {
				return nil, fmt.Errorf("weight %q: %w", spec.Name, err)
			}
			shape := tensor.Shape(spec.Shape)
			n := shape.TotalSize()
			if n <= 0 {
				return nil, fmt.Errorf("weight %q has empty shape %v", spec.Name, spec.Shape)
			}
			end := offset + n*width
			if end > len(buf) {
				return nil, fmt.Errorf("weight %q needs bytes [%d:%d], group %d has %d", spec.Name, offset, end, g, len(buf))
			}
			data := make([]float32, n)
			spec.decode(buf[offset:end], data)
			t := tensor.New(tensor.WithShape(shape.Clone()...), tensor.WithBacking(data))
			weights = append(weights, Weight{Name: spec.Name, Tensor: t})
			offset = end
		}
		if offset != len(buf) {
			return nil, fmt.Errorf("weight group %d: %d trailing bytes after last weight", g, len(buf)-offset)
		}
	}
	return weights, nil
}

func (s WeightSpec) byteWidth() (int, error) {
	if q := s.Quantization; q != nil {
		switch q.DType {
		case "uint8":
			return 1, nil
		case "uint16":
			return 2, nil
		}
		return 0, fmt.Errorf("%w: quantized %s", ErrUnsupportedDType, q.DType)
	}
	switch s.DType {
	case "float32", "int32":
		return 4, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedDType, s.DType)
}

// decode assumes byteWidth already accepted the spec. TF.js writes
// little-endian data.
func (s WeightSpec) decode(src []byte, dst []float32) {
	if q := s.Quantization; q != nil {
		for i := range dst {
			var v float32
			if q.DType == "uint8" {
				v = float32(src[i])
			} else {
				v = float32(binary.LittleEndian.Uint16(src[2*i:]))
			}
			dst[i] = v*q.Scale + q.Min
		}
		return
	}
	for i := range dst {
		bits := binary.LittleEndian.Uint32(src[4*i:])
		if s.DType == "int32" {
			dst[i] = float32(int32(bits))
		} else {
			dst[i] = math.Float32frombits(bits)
		}
	}
}
