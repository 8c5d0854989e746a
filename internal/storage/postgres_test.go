package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupPostgres connects to AGENTCTX_TEST_POSTGRES_DSN, which must point at a
// disposable database with the pgvector extension available.
func setupPostgres(t *testing.T) *PostgresStorage {
	t.Helper()
	dsn := os.Getenv("AGENTCTX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AGENTCTX_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := NewPostgresStorage(ctx, dsn, 2)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `TRUNCATE projects CASCADE`)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewPostgresStorage_InvalidDimension(t *testing.T) {
	_, err := NewPostgresStorage(context.Background(), "postgres://localhost/none", 0)
	assert.Error(t, err)
}

func TestPostgres_OwnersAndEmbeddings(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	p, err := s.GetOrCreateProject(ctx, "/repo")
	require.NoError(t, err)

	owner := createOwner(t, s, KindResource, p.ID, "main.go")
	dup := &Owner{ProjectID: p.ID, Kind: KindResource, FilePath: "main.go", ContentHash: "x"}
	assert.ErrorIs(t, s.InsertOwner(ctx, dup), ErrAlreadyExists)

	require.NoError(t, s.InsertEmbeddings(ctx, KindResource, owner.ID, []Embedding{
		{Content: "a", Vector: []float32{1, 0}, FilePath: "main.go", StartLine: 1, EndLine: 2},
	}))

	got, err := s.ListEmbeddings(ctx, KindResource, owner.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []float32{1, 0}, got[0].Vector)
	assert.Equal(t, owner.ID, got[0].OwnerID)

	n, err := s.DeleteEmbeddingsByOwners(ctx, KindResource, []int64{owner.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPostgres_Search(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	p, err := s.GetOrCreateProject(ctx, "/repo")
	require.NoError(t, err)
	seedSearch(t, s, KindDocument, p.ID, map[string][]float32{
		"a.md": {0.95, 0.31225},
		"b.md": {0.6, 0.8},
		"c.md": {0.91, 0.41461},
	})

	results, err := s.SearchEmbeddings(ctx, KindDocument, []float32{1, 0}, SearchParams{Threshold: 0.9, ProjectID: p.ID})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a.md", results[0].FilePath)
	assert.Equal(t, "c.md", results[1].FilePath)

	status, err := s.GetStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Documents)
	assert.Equal(t, 3, status.DocumentEmbeddings)
}

func TestPostgres_TxRollback(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	p, err := s.GetOrCreateProject(ctx, "/repo")
	require.NoError(t, err)

	err = WithTx(ctx, s, func(tx Tx) error {
		if err := tx.InsertOwner(ctx, &Owner{ProjectID: p.ID, Kind: KindResource, FilePath: "a.go", ContentHash: "h"}); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = s.GetOwner(ctx, KindResource, p.ID, "a.go")
	assert.ErrorIs(t, err, ErrNotFound)
}
