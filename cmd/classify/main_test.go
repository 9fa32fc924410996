package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/Tutortoise/tumor-detection-service/client"
	"github.com/Tutortoise/tumor-detection-service/config"
	"github.com/Tutortoise/tumor-detection-service/models"
)

type constantModel []float32

func (m constantModel) Predict(context.Context, *tensor.Dense) (*tensor.Dense, error) {
	scores := append([]float32(nil), m...)
	return tensor.New(tensor.WithShape(1, len(scores)), tensor.WithBacking(scores)), nil
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("stdout closed") }

func writeImage(t *testing.T, dir string) string {
	t.Helper()
	img := imaging.New(400, 200, color.NRGBA{R: 90, G: 90, B: 90, A: 255})
	path := filepath.Join(dir, "scan.png")
	require.NoError(t, imaging.Save(img, path))
	return path
}

func newSession(m client.Model, loadErr error) *client.Session {
	loader := client.LoaderFunc(func(context.Context, string) (client.Model, error) {
		if loadErr != nil {
			return nil, loadErr
		}
		return m, nil
	})
	return client.NewSession(loader, client.Options{Logger: log.New(io.Discard, "", 0)})
}

func TestClassifyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeImage(t, dir)

	s := newSession(constantModel{0, 0, 0, 1}, nil)
	require.NoError(t, s.LoadModel(context.Background()))

	out := classifyFile(context.Background(), s, path, dir)
	require.Equal(t, client.StatusOK, out.Status)
	require.Equal(t, "Pituitary", out.Prediction.Label)

	preview, err := imaging.Open(filepath.Join(dir, "scan_preview.png"))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 350, 175), preview.Bounds())
}

func TestClassifyFile_ModelNotLoaded(t *testing.T) {
	path := writeImage(t, t.TempDir())

	s := newSession(nil, os.ErrNotExist)
	require.Error(t, s.LoadModel(context.Background()))

	out := classifyFile(context.Background(), s, path, "")
	require.Equal(t, client.StatusNotReady, out.Status)
	require.Nil(t, out.Prediction)
}

func TestClassifyFile_MissingFile(t *testing.T) {
	s := newSession(constantModel{1, 0, 0, 0}, nil)
	out := classifyFile(context.Background(), s, filepath.Join(t.TempDir(), "absent.png"), "")
	require.Equal(t, client.StatusFailed, out.Status)
	require.NotEmpty(t, out.Error)
}

func TestNewLoader_UnknownBackend(t *testing.T) {
	_, _, err := newLoader("tfjs-node", http.DefaultClient, &config.ClientConfig{}, 4)
	require.Error(t, err)

	loader, cleanup, err := newLoader(config.BackendLayers, http.DefaultClient, &config.ClientConfig{}, 4)
	require.NoError(t, err)
	require.NotNil(t, loader)
	cleanup()
}

func TestReport(t *testing.T) {
	ok := output{File: "a.png", Status: client.StatusOK, Prediction: &models.Prediction{Index: 2, Label: "No Tumor"}}

	var buf bytes.Buffer
	require.NoError(t, report(&buf, ok, false))
	require.Equal(t, "a.png: No Tumor\n", buf.String())

	buf.Reset()
	require.NoError(t, report(&buf, output{File: "b.png", Status: client.StatusFailed, Error: "bad image"}, false))
	require.Equal(t, "b.png: failed (bad image)\n", buf.String())

	buf.Reset()
	require.NoError(t, report(&buf, ok, true))
	require.Contains(t, buf.String(), `"label":"No Tumor"`)
}

func TestReport_WriteError(t *testing.T) {
	ok := output{File: "a.png", Status: client.StatusOK, Prediction: &models.Prediction{Label: "Glioma"}}
	require.Error(t, report(brokenWriter{}, ok, true))
	require.Error(t, report(brokenWriter{}, ok, false))
}
