// Command classify loads the tumor classifier from the asset server and labels
// MRI images given on the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/Tutortoise/tumor-detection-service/classification"
	"github.com/Tutortoise/tumor-detection-service/client"
	"github.com/Tutortoise/tumor-detection-service/config"
	"github.com/Tutortoise/tumor-detection-service/layers"
	"github.com/Tutortoise/tumor-detection-service/models"
	"github.com/Tutortoise/tumor-detection-service/onnx"
)

type output struct {
	File       string             `json:"file"`
	Status     client.Status      `json:"status"`
	Prediction *models.Prediction `json:"prediction,omitempty"`
	Error      string             `json:"error,omitempty"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	os.Exit(run())
}

func run() int {
	cfg := config.LoadClient()
	modelURL := flag.String("model", cfg.ModelURL, "URL or path of model.json (or the .onnx file with -backend onnx)")
	backend := flag.String("backend", cfg.Backend, "inference backend: layers or onnx")
	previewDir := flag.String("preview-dir", "", "write a 350x350 preview of each image into this directory")
	asJSON := flag.Bool("json", false, "print one JSON object per image")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] image...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = classification.DefaultLabels
	}

	loader, cleanup, err := newLoader(*backend, httpClient, cfg, len(labels))
	if err != nil {
		log.Printf("Failed to set up backend: %v", err)
		return 2
	}
	defer cleanup()

	session := client.NewSession(loader, client.Options{
		ModelURL: *modelURL,
		Labels:   labels,
		Logger:   log.Default(),
		Debug:    cfg.Debug,
	})

	// A failed load is not fatal: every prediction then reports not_ready.
	_ = session.LoadModel(ctx)

	failed := false
	for _, path := range flag.Args() {
		out := classifyFile(ctx, session, path, *previewDir)
		if out.Status != client.StatusOK {
			failed = true
		}
		if err := report(os.Stdout, out, *asJSON); err != nil {
			log.Printf("Failed to write result for %s: %v", path, err)
			return 1
		}
	}

	if failed {
		return 1
	}
	return 0
}

// report prints one result, as a JSON line or as "file: label".
func report(w io.Writer, out output, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(out)
	}
	var err error
	switch {
	case out.Prediction != nil:
		_, err = fmt.Fprintf(w, "%s: %s\n", out.File, out.Prediction.Label)
	case out.Error != "":
		_, err = fmt.Fprintf(w, "%s: %s (%s)\n", out.File, out.Status, out.Error)
	default:
		_, err = fmt.Fprintf(w, "%s: %s\n", out.File, out.Status)
	}
	return err
}

func classifyFile(ctx context.Context, session *client.Session, path, previewDir string) output {
	out := output{File: path, Status: client.StatusFailed}

	f, err := os.Open(path)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	defer f.Close()

	up, err := session.HandleUpload(ctx, f)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	if previewDir != "" {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + "_preview.png"
		if err := imaging.Save(up.Preview, filepath.Join(previewDir, name)); err != nil {
			log.Printf("Failed to write preview for %s: %v", path, err)
		}
	}

	res, err := session.Predict(ctx)
	out.Status = res.Status
	if err != nil {
		out.Error = err.Error()
		return out
	}
	if res.Status == client.StatusNotReady {
		out.Error = "model not loaded"
		return out
	}
	out.Prediction = &res.Prediction
	return out
}

func newLoader(backend string, httpClient *http.Client, cfg *config.ClientConfig, numClasses int) (client.Loader, func(), error) {
	switch backend {
	case config.BackendLayers:
		return client.LoaderFunc(func(ctx context.Context, url string) (client.Model, error) {
			m, err := layers.Load(ctx, httpClient, url)
			if err != nil {
				return nil, err
			}
			return m, nil
		}), func() {}, nil

	case config.BackendONNX:
		var loaded *onnx.Model
		loader := client.LoaderFunc(func(ctx context.Context, url string) (client.Model, error) {
			m, err := onnx.Load(ctx, httpClient, url, onnx.Options{
				LibraryPath: cfg.ONNXLibrary,
				InputName:   cfg.ONNXInputName,
				OutputName:  cfg.ONNXOutputName,
				InputShape:  classification.InputShape,
				NumClasses:  numClasses,
			})
			if err != nil {
				return nil, err
			}
			loaded = m
			return m, nil
		})
		cleanup := func() {
			if loaded != nil {
				loaded.Destroy()
			}
		}
		return loader, cleanup, nil
	}
	return nil, nil, errors.New("unknown backend " + backend)
}
