package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalk(t *testing.T) {
	root := t.TempDir()

	want := []string{
		createTestFile(t, root, "main.go", "package main\n"),
		createTestFile(t, root, "README.md", "# hi\n"),
		createTestFile(t, root, "pkg/util/util.go", "package util\n"),
		createTestFile(t, root, "web/app.ts", "export const x = 1;\n"),
	}

	createTestFile(t, root, ".git/config", "[core]\n")
	createTestFile(t, root, ".env", "SECRET=1\n")
	createTestFile(t, root, "vendor/dep/dep.go", "package dep\n")
	createTestFile(t, root, "node_modules/x/index.js", "module.exports = {}\n")
	createTestFile(t, root, "dist/bundle.js", "var a;\n")
	createTestFile(t, root, "build/out.txt", "built\n")
	createTestFile(t, root, "logo.png", "\x89PNG\r\n\x1a\n\x00\x00\x00")
	createTestFile(t, root, "big.txt", strings.Repeat("a", 200))

	files, err := Walk(context.Background(), root, WalkOptions{MaxFileSize: 100})
	require.NoError(t, err)

	assert.ElementsMatch(t, want, files)
	assert.IsIncreasing(t, files)
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f))
	}
}

func TestWalk_GitIgnore(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, ".gitignore", "*.log\ngenerated/\nsecret.go\n")

	keep := createTestFile(t, root, "main.go", "package main\n")
	createTestFile(t, root, "debug.log", "trace\n")
	createTestFile(t, root, "generated/api.go", "package generated\n")
	createTestFile(t, root, "secret.go", "package main\n")

	files, err := Walk(context.Background(), root, WalkOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, files)
}

func TestWalk_EmptyDirectory(t *testing.T) {
	files, err := Walk(context.Background(), t.TempDir(), WalkOptions{})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWalk_MissingRoot(t *testing.T) {
	_, err := Walk(context.Background(), filepath.Join(t.TempDir(), "missing"), WalkOptions{})
	assert.Error(t, err)
}

func TestWalk_UnreadableDirectoryIsSkipped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := t.TempDir()
	keep := createTestFile(t, root, "a.go", "package a\n")
	createTestFile(t, root, "locked/b.go", "package b\n")
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	var skipped []string
	files, err := Walk(context.Background(), root, WalkOptions{
		OnSkip: func(path string, err error) {
			assert.ErrorIs(t, err, os.ErrPermission)
			skipped = append(skipped, path)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, files)
	assert.Equal(t, []string{locked}, skipped)
}

func TestWalk_UnreadableFileIsSkipped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := t.TempDir()
	keep := createTestFile(t, root, "a.go", "package a\n")
	secret := createTestFile(t, root, "secret.go", "package a\n")
	require.NoError(t, os.Chmod(secret, 0o000))

	var skipped []string
	files, err := Walk(context.Background(), root, WalkOptions{
		OnSkip: func(path string, _ error) { skipped = append(skipped, path) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, files)
	assert.Equal(t, []string{secret}, skipped)
}

func TestWalk_Cancelled(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "main.go", "package main\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Walk(ctx, root, WalkOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsBinary(t *testing.T) {
	root := t.TempDir()

	bin, err := isBinary(createTestFile(t, root, "a.bin", "abc\x00def"))
	require.NoError(t, err)
	assert.True(t, bin)

	bin, err = isBinary(createTestFile(t, root, "a.txt", "plain text"))
	require.NoError(t, err)
	assert.False(t, bin)

	bin, err = isBinary(createTestFile(t, root, "empty", ""))
	require.NoError(t, err)
	assert.False(t, bin)
}

func TestIndexLock(t *testing.T) {
	var lock IndexLock

	assert.True(t, lock.TryAcquire("/a"))
	assert.True(t, lock.Held("/a"))
	assert.False(t, lock.TryAcquire("/a"))
	assert.True(t, lock.TryAcquire("/b"), "roots are locked independently")

	lock.Release("/a")
	assert.False(t, lock.Held("/a"))
	assert.True(t, lock.TryAcquire("/a"))
}
