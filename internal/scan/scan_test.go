package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.bin")
	writeFile(t, path, []byte("Hello, World!"))

	hash, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f", hash)

	// Reproducible.
	again, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, hash, again)
}

func TestHashEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	writeFile(t, path, nil)

	hash, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hash)
}

func TestHashMissingFile(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "nope.mp3"))
	assert.Error(t, err)
}

func TestWalkFiltersAndOrders(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.mp3"), []byte("b"))
	writeFile(t, filepath.Join(root, "a.flac"), []byte("a"))
	writeFile(t, filepath.Join(root, "notes.txt"), []byte("x"))
	writeFile(t, filepath.Join(root, "sub", "c.ogg"), []byte("c"))

	res, err := Walk(context.Background(), root, Options{})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	assert.Equal(t, []string{
		filepath.Join(root, "a.flac"),
		filepath.Join(root, "b.mp3"),
		filepath.Join(root, "sub", "c.ogg"),
	}, res.Paths)
}

func TestWalkExtensionWhitelist(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp3"), []byte("a"))
	writeFile(t, filepath.Join(root, "b.flac"), []byte("b"))

	res, err := Walk(context.Background(), root, Options{Extensions: []string{".flac"}})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "b.flac")}, res.Paths)
}

func TestWalkMaxDepth(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "top.mp3"), []byte("1"))
	writeFile(t, filepath.Join(root, "one", "mid.mp3"), []byte("2"))
	writeFile(t, filepath.Join(root, "one", "two", "deep.mp3"), []byte("3"))

	res, err := Walk(context.Background(), root, Options{MaxDepth: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "one", "mid.mp3"),
		filepath.Join(root, "top.mp3"),
	}, res.Paths)

	res, err = Walk(context.Background(), root, Options{MaxDepth: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "top.mp3")}, res.Paths)
}

func TestWalkSymlinkPolicy(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "linked.mp3"), []byte("x"))
	require.NoError(t, os.Symlink(filepath.Join(outside, "linked.mp3"), filepath.Join(root, "link.mp3")))

	res, err := Walk(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Paths)

	res, err = Walk(context.Background(), root, Options{FollowSymlinks: true})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "link.mp3")}, res.Paths)
}

func TestWalkSymlinkedDirectory(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "a.mp3"), []byte("a"))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "linkdir")))

	res, err := Walk(context.Background(), root, Options{FollowSymlinks: true})
	require.NoError(t, err)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, "a.mp3", filepath.Base(res.Paths[0]))
}

func TestWalkCancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp3"), []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Walk(ctx, root, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalkProgress(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3", "d.mp3"} {
		writeFile(t, filepath.Join(root, name), []byte(name))
	}

	var calls []int
	_, err := Walk(context.Background(), root, Options{
		ProgressEvery: 2,
		Progress:      func(n int) { calls = append(calls, n) },
	})
	require.NoError(t, err)
	assert.NotEmpty(t, calls)
	for _, n := range calls {
		assert.Zero(t, n%2)
	}
}

func TestWalkMissingRoot(t *testing.T) {
	res, err := Walk(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{})
	require.NoError(t, err)
	assert.Len(t, res.Errors, 1)
	assert.Empty(t, res.Paths)
}
