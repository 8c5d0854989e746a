package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidKind is returned for an owner kind other than resource or document
	ErrInvalidKind = errors.New("invalid owner kind")
)

// OwnerKind selects the owner table (resources or documents) and its embedding table
type OwnerKind string

const (
	KindResource OwnerKind = "resource"
	KindDocument OwnerKind = "document"
)

// Kinds lists every owner kind
var Kinds = []OwnerKind{KindResource, KindDocument}

// Validate reports ErrInvalidKind for unknown kinds
func (k OwnerKind) Validate() error {
	switch k {
	case KindResource, KindDocument:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, string(k))
	}
}

func (k OwnerKind) ownerTable() string {
	if k == KindDocument {
		return "documents"
	}
	return "resources"
}

func (k OwnerKind) embeddingTable() string {
	if k == KindDocument {
		return "document_embeddings"
	}
	return "embeddings"
}

func (k OwnerKind) ownerColumn() string {
	if k == KindDocument {
		return "document_id"
	}
	return "resource_id"
}

// Project is an indexed directory tree
type Project struct {
	ID            int64
	RootDirectory string
	CreatedAt     time.Time
}

// Owner is a Resource or Document row: one indexed file of a project
type Owner struct {
	ID          int64
	ProjectID   int64
	Kind        OwnerKind
	FilePath    string
	ContentHash string
	ModTime     time.Time
	UpdatedAt   time.Time
}

// Embedding is one chunk of an owner's content together with its vector
type Embedding struct {
	ID        int64
	OwnerID   int64
	Content   string
	Vector    []float32
	FilePath  string
	StartLine int
	EndLine   int
}

// ScoredEmbedding is an embedding ranked against a query vector
type ScoredEmbedding struct {
	Embedding
	Similarity float64 // 1 - cosine distance
}

// SearchParams bounds a similarity search
type SearchParams struct {
	// Limit caps the number of rows; non-positive selects DefaultSearchLimit
	Limit int

	// Threshold is the similarity a row must exceed
	Threshold float64

	// ProjectID restricts the search to one project when non-zero
	ProjectID int64
}

// DefaultSearchLimit applies when SearchParams.Limit is not positive
const DefaultSearchLimit = 4

func (p SearchParams) limit() int {
	if p.Limit <= 0 {
		return DefaultSearchLimit
	}
	return p.Limit
}

// Status summarizes what is stored for a project
type Status struct {
	Project            *Project
	Resources          int
	Documents          int
	ResourceEmbeddings int
	DocumentEmbeddings int
	DatabaseSizeBytes  int64
}

// Storage persists projects, their resource and document rows, and the
// embeddings owned by those rows. Every method taking an OwnerKind operates on
// the table pair selected by that kind.
type Storage interface {
	// Project operations
	CreateProject(ctx context.Context, rootDirectory string) (*Project, error)
	GetProjectByRoot(ctx context.Context, rootDirectory string) (*Project, error)
	GetOrCreateProject(ctx context.Context, rootDirectory string) (*Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	DeleteProject(ctx context.Context, projectID int64) error

	// Owner (resource/document) operations
	GetOwner(ctx context.Context, kind OwnerKind, projectID int64, filePath string) (*Owner, error)
	ListOwners(ctx context.Context, kind OwnerKind, projectID int64) ([]Owner, error)
	InsertOwner(ctx context.Context, owner *Owner) error
	UpdateOwnerContent(ctx context.Context, kind OwnerKind, ownerID int64, contentHash string, modTime time.Time) error
	DeleteOwner(ctx context.Context, kind OwnerKind, ownerID int64) error
	DeleteOwnersByProject(ctx context.Context, kind OwnerKind, projectID int64) (int64, error)

	// Embedding operations
	InsertEmbeddings(ctx context.Context, kind OwnerKind, ownerID int64, rows []Embedding) error
	ListEmbeddings(ctx context.Context, kind OwnerKind, ownerID int64) ([]Embedding, error)
	CountEmbeddings(ctx context.Context, kind OwnerKind, ownerID int64) (int, error)
	DeleteEmbeddingsByOwner(ctx context.Context, kind OwnerKind, ownerID int64) (int64, error)
	DeleteEmbeddingsByOwners(ctx context.Context, kind OwnerKind, ownerIDs []int64) (int64, error)
	DeleteEmbeddingsByProject(ctx context.Context, kind OwnerKind, projectID int64) (int64, error)

	// Search operations
	SearchEmbeddings(ctx context.Context, kind OwnerKind, query []float32, params SearchParams) ([]ScoredEmbedding, error)

	// Status operations
	GetStatus(ctx context.Context, projectID int64) (*Status, error)

	// Lifecycle
	BeginTx(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is a Storage bound to one database transaction
type Tx interface {
	Storage
	Commit() error
	Rollback() error
}

// WithTx runs fn in a transaction, committing on success and rolling back on error
func WithTx(ctx context.Context, s Storage, fn func(tx Tx) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
