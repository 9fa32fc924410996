package artifacts

import (
	"context"
	"encoding/binary"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

const testModelJSON = `{
  "format": "layers-model",
  "generatedBy": "keras v2.12.0",
  "convertedBy": "TensorFlow.js Converter v4.4.0",
  "modelTopology": {"class_name": "Sequential", "config": {"name": "sequential", "layers": []}},
  "weightsManifest": [{
    "paths": ["group1-shard1of2.bin", "group1-shard2of2.bin"],
    "weights": [
      {"name": "dense/kernel", "shape": [2, 2], "dtype": "float32"},
      {"name": "dense/bias", "shape": [2], "dtype": "float32",
       "quantization": {"dtype": "uint8", "scale": 0.5, "min": -1}}
    ]
  }]
}`

func float32Bytes(values ...float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// The kernel's 16 bytes plus the 2 quantized bias bytes, split across two
// shards at an arbitrary boundary.
func testShards() (string, string) {
	all := append(float32Bytes(1, 2, 3, 4), 0, 4)
	return string(all[:10]), string(all[10:])
}

func TestParse(t *testing.T) {
	m, err := Parse(strings.NewReader(testModelJSON))
	require.NoError(t, err)
	require.Equal(t, FormatLayersModel, m.Format)
	require.Equal(t, []string{"group1-shard1of2.bin", "group1-shard2of2.bin"}, m.ShardPaths())
	require.Len(t, m.WeightsManifest[0].Weights, 2)
}

func TestParse_MissingTopology(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"format": "layers-model"}`))
	require.Error(t, err)
}

func TestFetch_HTTP(t *testing.T) {
	shard1, shard2 := testShards()
	mux := http.NewServeMux()
	mux.HandleFunc("/model/model.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testModelJSON))
	})
	mux.HandleFunc("/model/group1-shard1of2.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(shard1))
	})
	mux.HandleFunc("/model/group1-shard2of2.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(shard2))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, err := Fetch(context.Background(), srv.Client(), srv.URL+"/model/model.json")
	require.NoError(t, err)
	require.Len(t, a.Weights, 2)

	require.Equal(t, "dense/kernel", a.Weights[0].Name)
	require.True(t, a.Weights[0].Tensor.Shape().Eq(tensor.Shape{2, 2}))
	require.Equal(t, []float32{1, 2, 3, 4}, a.Weights[0].Tensor.Data())

	require.Equal(t, "dense/bias", a.Weights[1].Name)
	require.Equal(t, []float32{-1, 1}, a.Weights[1].Tensor.Data())
}

func TestFetch_MissingShard(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/model.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testModelJSON))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := Fetch(context.Background(), srv.Client(), srv.URL+"/model.json")
	require.Error(t, err)
	require.Contains(t, err.Error(), "group1-shard1of2.bin")
}

func TestFetch_LocalPath(t *testing.T) {
	dir := t.TempDir()
	shard1, shard2 := testShards()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.json"), []byte(testModelJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "group1-shard1of2.bin"), []byte(shard1), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "group1-shard2of2.bin"), []byte(shard2), 0o644))

	a, err := Fetch(context.Background(), nil, filepath.Join(dir, "model.json"))
	require.NoError(t, err)
	require.Len(t, a.Weights, 2)
}

func TestDecodeWeights_SizeMismatch(t *testing.T) {
	groups := []WeightGroup{{Weights: []WeightSpec{{Name: "w", Shape: []int{3}, DType: "float32"}}}}

	_, err := DecodeWeights(groups, [][]byte{float32Bytes(1, 2)})
	require.Error(t, err)

	_, err = DecodeWeights(groups, [][]byte{float32Bytes(1, 2, 3, 4)})
	require.Error(t, err)
}

func TestDecodeWeights_Int32AndUint16(t *testing.T) {
	int32Data := make([]byte, 8)
	binary.LittleEndian.PutUint32(int32Data, uint32(0xFFFFFFFF))
	binary.LittleEndian.PutUint32(int32Data[4:], 7)
	uint16Data := make([]byte, 2)
	binary.LittleEndian.PutUint16(uint16Data, 300)

	groups := []WeightGroup{{Weights: []WeightSpec{
		{Name: "steps", Shape: []int{2}, DType: "int32"},
		{Name: "q", Shape: []int{1}, DType: "float32", Quantization: &Quantization{DType: "uint16", Scale: 0.1, Min: 0}},
	}}}

	weights, err := DecodeWeights(groups, [][]byte{append(int32Data, uint16Data...)})
	require.NoError(t, err)
	require.Equal(t, []float32{-1, 7}, weights[0].Tensor.Data())
	q, err := weights[1].Tensor.At(0)
	require.NoError(t, err)
	require.InDelta(t, 30, q, 1e-4)
}

func TestDecodeWeights_Uint8WithOffset(t *testing.T) {
	groups := []WeightGroup{{Weights: []WeightSpec{
		{Name: "conv/kernel", Shape: []int{2, 2}, DType: "float32", Quantization: &Quantization{DType: "uint8", Scale: 0.5, Min: -10}},
	}}}

	weights, err := DecodeWeights(groups, [][]byte{{200, 0, 20, 255}})
	require.NoError(t, err)
	require.Len(t, weights, 1)
	require.True(t, weights[0].Tensor.Shape().Eq(tensor.Shape{2, 2}))
	require.InDeltaSlice(t, []float32{90, -10, 0, 117.5}, weights[0].Tensor.Data(), 1e-6)
}

func TestDecodeWeights_Uint8ByteCount(t *testing.T) {
	groups := []WeightGroup{{Weights: []WeightSpec{
		{Name: "q", Shape: []int{3}, DType: "float32", Quantization: &Quantization{DType: "uint8", Scale: 1, Min: 0}},
	}}}

	_, err := DecodeWeights(groups, [][]byte{{1, 2}})
	require.Error(t, err)
}

func TestDecodeWeights_UnsupportedDType(t *testing.T) {
	groups := []WeightGroup{{Weights: []WeightSpec{{Name: "s", Shape: []int{1}, DType: "string"}}}}
	_, err := DecodeWeights(groups, [][]byte{{}})
	require.ErrorIs(t, err, ErrUnsupportedDType)
}
