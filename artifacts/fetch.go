package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// Artifacts is a fully fetched model: the parsed topology document and the
// decoded weights.
type Artifacts struct {
	Model   *ModelJSON
	Weights []Weight
}

// Fetch downloads model.json from location and then every shard it lists,
// resolved relative to it. location may be an http(s) URL or a local path.
func Fetch(ctx context.Context, client *http.Client, location string) (*Artifacts, error) {
	if client == nil {
		client = http.DefaultClient
	}

	raw, err := get(ctx, client, location)
	if err != nil {
		return nil, fmt.Errorf("fetch topology: %w", err)
	}
	model, err := Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	groupData := make([][]byte, len(model.WeightsManifest))
	for g, group := range model.WeightsManifest {
		var buf bytes.Buffer
		for _, p := range group.Paths {
			shardLocation, err := resolve(location, p)
			if err != nil {
				return nil, err
			}
			data, err := get(ctx, client, shardLocation)
			if err != nil {
				return nil, fmt.Errorf("fetch shard %s: %w", p, err)
			}
			buf.Write(data)
		}
		groupData[g] = buf.Bytes()
	}

	weights, err := DecodeWeights(model.WeightsManifest, groupData)
	if err != nil {
		return nil, err
	}
	return &Artifacts{Model: model, Weights: weights}, nil
}

// Get reads a whole resource from an http(s) URL or a local path.
func Get(ctx context.Context, client *http.Client, location string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	return get(ctx, client, location)
}

func get(ctx context.Context, client *http.Client, location string) ([]byte, error) {
	if !isRemote(location) {
		return os.ReadFile(location)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: %s", location, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func resolve(base, ref string) (string, error) {
	if !isRemote(base) {
		return filepath.Join(filepath.Dir(base), filepath.FromSlash(ref)), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse model url: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse shard path %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

func isRemote(location string) bool {
	u, err := url.Parse(location)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}
