package types

import "errors"

// Domain errors for type validation
var (
	ErrInvalidSimilarity = errors.New("similarity must be between -1 and 1")
	ErrMissingFileInfo   = errors.New("file info is required")
	ErrEmptyContent      = errors.New("content cannot be empty")
)
