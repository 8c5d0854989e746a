package types

const (
	// DefaultSearchLimit caps the number of rows a search returns when no limit is given
	DefaultSearchLimit = 4

	// DefaultSearchThreshold is the similarity a row must exceed when no threshold is given
	DefaultSearchThreshold = 0.5
)

// ChunkMetadata locates a chunk inside its source file
type ChunkMetadata struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// SearchResult is one ranked row returned by retrieval
type SearchResult struct {
	Content    string        `json:"content"`
	Metadata   ChunkMetadata `json:"metadata"`
	Similarity float64       `json:"similarity"` // 1 - cosine distance
}

// SearchOptions tunes a retrieval call. Zero values select the defaults.
type SearchOptions struct {
	Limit     int
	Threshold *float64

	// ProjectDir restricts the search to one indexed project when set
	ProjectDir string
}

// EffectiveLimit returns the limit to apply, falling back to DefaultSearchLimit
func (o SearchOptions) EffectiveLimit() int {
	if o.Limit <= 0 {
		return DefaultSearchLimit
	}
	return o.Limit
}

// EffectiveThreshold returns the threshold to apply, falling back to DefaultSearchThreshold
func (o SearchOptions) EffectiveThreshold() float64 {
	if o.Threshold == nil {
		return DefaultSearchThreshold
	}
	return *o.Threshold
}

// Validate checks the search result is well formed
func (sr *SearchResult) Validate() error {
	if sr.Content == "" {
		return ErrEmptyContent
	}

	if sr.Metadata.FilePath == "" {
		return ErrMissingFileInfo
	}

	if sr.Similarity < -1 || sr.Similarity > 1 {
		return ErrInvalidSimilarity
	}

	return nil
}
