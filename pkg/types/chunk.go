package types

import "errors"

// Chunk is a contiguous span of a file's text that is embedded as one unit.
// Line numbers are 1-based and inclusive. Chunks produced by the
// statement-breakpoint splitter carry zero line numbers.
type Chunk struct {
	FilePath  string
	StartLine int
	EndLine   int
	Content   string
}

// EmbeddedChunk pairs a chunk with the vector produced for its content
type EmbeddedChunk struct {
	Chunk
	Embedding []float32
}

// Validate checks the chunk for structural consistency
func (c *Chunk) Validate() error {
	if c.Content == "" {
		return ErrEmptyContent
	}

	if c.StartLine < 0 || c.EndLine < 0 {
		return errors.New("line numbers must not be negative")
	}

	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}

	return nil
}

// Metadata returns the location metadata stored alongside the chunk's vector
func (c *Chunk) Metadata() ChunkMetadata {
	return ChunkMetadata{
		FilePath:  c.FilePath,
		StartLine: c.StartLine,
		EndLine:   c.EndLine,
	}
}
