package walk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return root
}

func walkPaths(t *testing.T, w *Walker) []string {
	t.Helper()
	files, err := w.Walk(context.Background())
	require.NoError(t, err)
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

func TestWalkSkipsBuiltinDirs(t *testing.T) {
	root := makeTree(t, map[string]string{
		"src/main.go":             "package main\n",
		".git/config":             "noise\n",
		"node_modules/x/index.js": "js\n",
		"target/debug/out":        "bin\n",
		"__pycache__/a.pyc":       "pyc\n",
	})

	paths := walkPaths(t, New(root, nil))
	assert.Equal(t, []string{"src/main.go"}, paths)
}

func TestWalkSkipsBinaryExtensions(t *testing.T) {
	root := makeTree(t, map[string]string{
		"logo.png": "not really a png",
		"main.go":  "package main\n",
	})

	paths := walkPaths(t, New(root, nil))
	assert.Equal(t, []string{"main.go"}, paths)
}

func TestWalkHonorsGitignore(t *testing.T) {
	root := makeTree(t, map[string]string{
		".gitignore":   "*.log\nbuild/\n",
		"app.log":      "noise\n",
		"build/out.go": "package out\n",
		"main.go":      "package main\n",
	})

	paths := walkPaths(t, New(root, nil))
	assert.NotContains(t, paths, "app.log")
	assert.NotContains(t, paths, "build/out.go")
	assert.Contains(t, paths, "main.go")
	assert.Contains(t, paths, ".gitignore")
}

func TestWalkNestedGitignoreScoped(t *testing.T) {
	root := makeTree(t, map[string]string{
		"sub/.gitignore": "secret.txt\n",
		"sub/secret.txt": "hidden\n",
		"secret.txt":     "visible at root\n",
	})

	paths := walkPaths(t, New(root, nil))
	assert.NotContains(t, paths, "sub/secret.txt")
	assert.Contains(t, paths, "secret.txt")
}

func TestWalkLaterLayerOverrides(t *testing.T) {
	root := makeTree(t, map[string]string{
		".gitignore":       "keep.txt\n",
		".codesearchignore": "!keep.txt\nextra.txt\n",
		"keep.txt":         "unignored by the later layer\n",
		"extra.txt":        "ignored only for search\n",
	})

	paths := walkPaths(t, New(root, nil))
	assert.Contains(t, paths, "keep.txt")
	assert.NotContains(t, paths, "extra.txt")
}

func TestWalkExtraPatterns(t *testing.T) {
	root := makeTree(t, map[string]string{
		"vendor/lib.go": "package lib\n",
		"main.go":       "package main\n",
	})

	paths := walkPaths(t, New(root, []string{"vendor/"}))
	assert.Equal(t, []string{"main.go"}, paths)
}

func TestIsIgnoredWithoutWalk(t *testing.T) {
	root := makeTree(t, map[string]string{
		".gitignore": "*.tmp\n",
		"a.tmp":      "x\n",
		"a.go":       "package a\n",
	})

	w := New(root, nil)
	assert.True(t, w.IsIgnored("a.tmp"))
	assert.False(t, w.IsIgnored("a.go"))
	assert.True(t, w.IsIgnored("node_modules/x.js"))
}
