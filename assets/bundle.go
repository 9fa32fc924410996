// Package assets exposes the on-disk model bundle: model.json plus the weight
// shard files next to it. Shards are served from a lookup table built once at
// start-up; request paths are never joined onto the directory.
package assets

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/Tutortoise/tumor-detection-service/artifacts"
)

const TopologyFile = "model.json"

var shardName = regexp.MustCompile(`^group[0-9]+-shard[A-Za-z0-9._-]*$`)

// Bundle is the immutable set of files the server may return.
type Bundle struct {
	dir      string
	topology string
	shards   map[string]string
}

// Open scans dir for model.json and shard files. A missing model.json is not
// an error: the route answers 404 until a bundle is deployed and the server
// restarted.
func Open(dir string, logger *log.Logger) (*Bundle, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve model directory: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read model directory: %w", err)
	}

	b := &Bundle{dir: abs, shards: make(map[string]string)}
	for _, entry := range entries {
		name := entry.Name()
		isTopology := name == TopologyFile
		if !isTopology && !shardName.MatchString(name) {
			continue
		}
		// Stat follows symlinks, as volume mounts link every file.
		path := filepath.Join(abs, name)
		fi, err := os.Stat(path)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		if isTopology {
			b.topology = path
		} else {
			b.shards[name] = path
		}
	}

	if logger != nil {
		b.checkManifest(logger)
	}
	return b, nil
}

// checkManifest warns about shards the topology lists but the directory lacks.
func (b *Bundle) checkManifest(logger *log.Logger) {
	if b.topology == "" {
		logger.Printf("No %s in %s", TopologyFile, b.dir)
		return
	}
	model, err := artifacts.ReadFile(b.topology)
	if err != nil {
		logger.Printf("Cannot parse %s: %v", b.topology, err)
		return
	}
	for _, p := range model.ShardPaths() {
		if _, ok := b.shards[p]; !ok {
			logger.Printf("Shard %s listed in %s is not in %s", p, TopologyFile, b.dir)
		}
	}
}

func (b *Bundle) Dir() string { return b.dir }

// Topology returns the path of model.json, if present.
func (b *Bundle) Topology() (string, bool) {
	return b.topology, b.topology != ""
}

// Shard looks up a shard by its exact file name.
func (b *Bundle) Shard(name string) (string, bool) {
	path, ok := b.shards[name]
	return path, ok
}

// Shards lists the known shard names in sorted order.
func (b *Bundle) Shards() []string {
	names := make([]string, 0, len(b.shards))
	for name := range b.shards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
