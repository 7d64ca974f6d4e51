package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriterWritesThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestRotatingWriterRotatesAtSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	line := bytes.Repeat([]byte("x"), 512*1024)
	for i := 0; i < 3; i++ {
		_, err = w.Write(line)
		require.NoError(t, err)
	}

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "rotated file should exist")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(1024*1024)+1)
}
