package assets

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestOpen_BuildsAllowList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "model.json", `{"modelTopology": {}, "weightsManifest": [{"paths": ["group1-shard1", "group1-shard2"]}]}`)
	writeFile(t, dir, "group1-shard1", "a")
	writeFile(t, dir, "group1-shard2", "b")
	writeFile(t, dir, "notes.txt", "not served")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "group1-shard3"), 0o755))

	b, err := Open(dir, nil)
	require.NoError(t, err)

	path, ok := b.Topology()
	require.True(t, ok)
	require.Equal(t, filepath.Join(b.Dir(), "model.json"), path)
	require.Equal(t, []string{"group1-shard1", "group1-shard2"}, b.Shards())

	_, ok = b.Shard("group1-shard3")
	require.False(t, ok)
	_, ok = b.Shard("notes.txt")
	require.False(t, ok)
	_, ok = b.Shard("group1-shard1/../../etc/passwd")
	require.False(t, ok)
}

func TestOpen_WarnsAboutMissingShards(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "model.json", `{"modelTopology": {}, "weightsManifest": [{"paths": ["group1-shard1of2.bin", "group1-shard2of2.bin"]}]}`)
	writeFile(t, dir, "group1-shard1of2.bin", "a")

	var logs bytes.Buffer
	_, err := Open(dir, log.New(&logs, "", 0))
	require.NoError(t, err)
	require.Contains(t, logs.String(), "group1-shard2of2.bin")
	require.NotContains(t, logs.String(), "group1-shard1of2.bin listed")
}

func TestOpen_MissingTopology(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "group1-shard1", "a")

	var logs bytes.Buffer
	b, err := Open(dir, log.New(&logs, "", 0))
	require.NoError(t, err)
	_, ok := b.Topology()
	require.False(t, ok)
	require.Contains(t, logs.String(), "No model.json")
}

func TestOpen_MissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent"), nil)
	require.Error(t, err)
}

func TestOpen_FollowsSymlinks(t *testing.T) {
	release := t.TempDir()
	writeFile(t, release, "model.json", `{"modelTopology": {}, "weightsManifest": [{"paths": ["group1-shard1"]}]}`)
	writeFile(t, release, "group1-shard1", "weights")

	dir := t.TempDir()
	for _, name := range []string{"model.json", "group1-shard1"} {
		require.NoError(t, os.Symlink(filepath.Join(release, name), filepath.Join(dir, name)))
	}
	require.NoError(t, os.Symlink(filepath.Join(release, "absent"), filepath.Join(dir, "group1-shard2")))
	require.NoError(t, os.Symlink(release, filepath.Join(dir, "group1-shard3")))

	var logs bytes.Buffer
	b, err := Open(dir, log.New(&logs, "", 0))
	require.NoError(t, err)
	require.NotContains(t, logs.String(), "No model.json")

	_, ok := b.Topology()
	require.True(t, ok)
	require.Equal(t, []string{"group1-shard1"}, b.Shards())

	path, ok := b.Shard("group1-shard1")
	require.True(t, ok)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "weights", string(data))
}
