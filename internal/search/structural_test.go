package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-search/kestrel/internal/chunk"
)

func TestDetectStructural(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantKind chunk.Kind
		wantID   string
		wantNil  bool
	}{
		{"struct with pascal", "Chunk struct", chunk.KindStruct, "Chunk", false},
		{"keyword first", "struct ChunkKind", chunk.KindStruct, "ChunkKind", false},
		{"trait", "trait Chunker", chunk.KindInterface, "Chunker", false},
		{"interface", "interface RetryPolicy", chunk.KindInterface, "RetryPolicy", false},
		{"enum", "enum TokenKind", chunk.KindEnum, "TokenKind", false},
		{"class", "class HttpServer", chunk.KindClass, "HttpServer", false},
		{"function snake", "function handle_auth", chunk.KindFunction, "handle_auth", false},
		{"method", "method read_chunk", chunk.KindMethod, "read_chunk", false},
		{"keyword only", "struct definitions", chunk.Kind(""), "", true},
		{"identifier only", "ChunkKind usage", chunk.Kind(""), "", true},
		{"natural language", "how does the watcher debounce events", chunk.Kind(""), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectStructural(tt.query)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantID, got.Identifier)
		})
	}
}

func TestDetectStructuralMostSpecificKeywordWins(t *testing.T) {
	// "function" and "struct" both present: struct is more specific.
	got := DetectStructural("function that builds the Chunk struct")
	require.NotNil(t, got)
	assert.Equal(t, chunk.KindStruct, got.Kind)
	assert.Equal(t, "Chunk", got.Identifier)
}
