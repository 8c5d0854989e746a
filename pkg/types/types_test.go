package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunk_Validate(t *testing.T) {
	tests := []struct {
		name    string
		chunk   Chunk
		wantErr bool
	}{
		{"valid", Chunk{FilePath: "a.go", StartLine: 1, EndLine: 3, Content: "x"}, false},
		{"no lines", Chunk{FilePath: "a.go", Content: "x"}, false},
		{"empty content", Chunk{FilePath: "a.go", StartLine: 1, EndLine: 1}, true},
		{"negative line", Chunk{Content: "x", StartLine: -1, EndLine: 2}, true},
		{"reversed", Chunk{Content: "x", StartLine: 5, EndLine: 2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.chunk.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChunk_Metadata(t *testing.T) {
	c := Chunk{FilePath: "/src/a.go", StartLine: 2, EndLine: 9, Content: "x"}
	assert.Equal(t, ChunkMetadata{FilePath: "/src/a.go", StartLine: 2, EndLine: 9}, c.Metadata())
}

func TestSearchResult_Validate(t *testing.T) {
	ok := SearchResult{Content: "x", Metadata: ChunkMetadata{FilePath: "a.go"}, Similarity: 0.7}
	assert.NoError(t, ok.Validate())

	noContent := ok
	noContent.Content = ""
	assert.ErrorIs(t, noContent.Validate(), ErrEmptyContent)

	noPath := ok
	noPath.Metadata.FilePath = ""
	assert.ErrorIs(t, noPath.Validate(), ErrMissingFileInfo)

	outOfRange := ok
	outOfRange.Similarity = 1.2
	assert.ErrorIs(t, outOfRange.Validate(), ErrInvalidSimilarity)
}

func TestSearchOptions_Defaults(t *testing.T) {
	var opts SearchOptions
	assert.Equal(t, DefaultSearchLimit, opts.EffectiveLimit())
	assert.Equal(t, DefaultSearchThreshold, opts.EffectiveThreshold())

	zero := 0.0
	opts = SearchOptions{Limit: 10, Threshold: &zero}
	assert.Equal(t, 10, opts.EffectiveLimit())
	assert.Equal(t, 0.0, opts.EffectiveThreshold())
}
