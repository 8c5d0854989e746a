package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PostgresStorage implements Storage on PostgreSQL with the pgvector
// extension. Embedding columns are vector(dimension) with HNSW cosine indexes,
// so ranking happens in the database.
type PostgresStorage struct {
	*pgQueries
	db *sqlx.DB
}

// NewPostgresStorage connects to dsn, enables pgvector and migrates the schema.
// dimension fixes the width of the vector columns on first migration.
func NewPostgresStorage(ctx context.Context, dsn string, dimension int) (*PostgresStorage, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", dimension)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := ApplyMigrations(ctx, db.DB, postgresMigrations(dimension)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &PostgresStorage{pgQueries: &pgQueries{q: db}, db: db}, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func (s *PostgresStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &pgTx{pgQueries: &pgQueries{q: tx}, tx: tx}, nil
}

type pgTx struct {
	*pgQueries
	tx *sqlx.Tx
}

func (t *pgTx) Commit() error {
	return t.tx.Commit()
}

func (t *pgTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *pgTx) Close() error {
	return nil
}

func (t *pgTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, errors.New("nested transactions not supported")
}

func postgresMigrations(dimension int) MigrationSet {
	return MigrationSet{
		BindType: sqlx.DOLLAR,
		Migrations: []Migration{
			{
				Version: "1.0.0",
				Up:      fmt.Sprintf(postgresV1Up, dimension, dimension),
				Down:    postgresV1Down,
			},
		},
	}
}

const postgresV1Up = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS projects (
    id BIGSERIAL PRIMARY KEY,
    root_directory TEXT NOT NULL UNIQUE,
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS resources (
    id BIGSERIAL PRIMARY KEY,
    project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    file_path TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    mtime BIGINT NOT NULL DEFAULT 0,
    updated_at BIGINT NOT NULL DEFAULT 0,
    UNIQUE(project_id, file_path)
);

CREATE TABLE IF NOT EXISTS documents (
    id BIGSERIAL PRIMARY KEY,
    project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    file_path TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    mtime BIGINT NOT NULL DEFAULT 0,
    updated_at BIGINT NOT NULL DEFAULT 0,
    UNIQUE(project_id, file_path)
);

CREATE TABLE IF NOT EXISTS embeddings (
    id BIGSERIAL PRIMARY KEY,
    resource_id BIGINT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
    content TEXT NOT NULL,
    embedding vector(%d) NOT NULL,
    dimension INTEGER NOT NULL,
    file_path TEXT NOT NULL,
    start_line INTEGER NOT NULL DEFAULT 0,
    end_line INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_embeddings_resource ON embeddings(resource_id);
CREATE INDEX IF NOT EXISTS idx_embeddings_vector ON embeddings USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS document_embeddings (
    id BIGSERIAL PRIMARY KEY,
    document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    content TEXT NOT NULL,
    embedding vector(%d) NOT NULL,
    dimension INTEGER NOT NULL,
    file_path TEXT NOT NULL,
    start_line INTEGER NOT NULL DEFAULT 0,
    end_line INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_document_embeddings_document ON document_embeddings(document_id);
CREATE INDEX IF NOT EXISTS idx_document_embeddings_vector ON document_embeddings USING hnsw (embedding vector_cosine_ops);
`

const postgresV1Down = `
DROP TABLE IF EXISTS document_embeddings;
DROP TABLE IF EXISTS embeddings;
DROP TABLE IF EXISTS documents;
DROP TABLE IF EXISTS resources;
DROP TABLE IF EXISTS projects;
`

// pgQueries holds the statements shared by the pool and its transactions.
// Statements are written with ? and rebound to $n.
type pgQueries struct {
	q sqlx.ExtContext
}

func rebind(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

func isConflict(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

type pgProjectRow struct {
	ID            int64  `db:"id"`
	RootDirectory string `db:"root_directory"`
	CreatedAt     int64  `db:"created_at"`
}

func (r pgProjectRow) project() *Project {
	return &Project{ID: r.ID, RootDirectory: r.RootDirectory, CreatedAt: fromMillis(r.CreatedAt)}
}

type pgOwnerRow struct {
	ID          int64  `db:"id"`
	ProjectID   int64  `db:"project_id"`
	FilePath    string `db:"file_path"`
	ContentHash string `db:"content_hash"`
	MTime       int64  `db:"mtime"`
	UpdatedAt   int64  `db:"updated_at"`
}

func (r pgOwnerRow) owner(kind OwnerKind) Owner {
	return Owner{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		Kind:        kind,
		FilePath:    r.FilePath,
		ContentHash: r.ContentHash,
		ModTime:     fromMillis(r.MTime),
		UpdatedAt:   fromMillis(r.UpdatedAt),
	}
}

type pgEmbeddingRow struct {
	ID         int64           `db:"id"`
	OwnerID    int64           `db:"owner_id"`
	Content    string          `db:"content"`
	Embedding  pgvector.Vector `db:"embedding"`
	FilePath   string          `db:"file_path"`
	StartLine  int             `db:"start_line"`
	EndLine    int             `db:"end_line"`
	Similarity float64         `db:"similarity"`
}

func (r pgEmbeddingRow) embedding() Embedding {
	return Embedding{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Content:   r.Content,
		Vector:    r.Embedding.Slice(),
		FilePath:  r.FilePath,
		StartLine: r.StartLine,
		EndLine:   r.EndLine,
	}
}

// Project operations

func (s *pgQueries) CreateProject(ctx context.Context, rootDirectory string) (*Project, error) {
	row := pgProjectRow{RootDirectory: rootDirectory, CreatedAt: toMillis(time.Now())}
	err := sqlx.GetContext(ctx, s.q, &row.ID,
		rebind(`INSERT INTO projects (root_directory, created_at) VALUES (?, ?) RETURNING id`),
		row.RootDirectory, row.CreatedAt,
	)
	if isConflict(err) {
		return nil, fmt.Errorf("project %s: %w", rootDirectory, ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return row.project(), nil
}

func (s *pgQueries) GetProjectByRoot(ctx context.Context, rootDirectory string) (*Project, error) {
	var row pgProjectRow
	err := sqlx.GetContext(ctx, s.q, &row,
		rebind(`SELECT id, root_directory, created_at FROM projects WHERE root_directory = ?`),
		rootDirectory,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return row.project(), nil
}

func (s *pgQueries) GetOrCreateProject(ctx context.Context, rootDirectory string) (*Project, error) {
	p, err := s.GetProjectByRoot(ctx, rootDirectory)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	p, err = s.CreateProject(ctx, rootDirectory)
	if errors.Is(err, ErrAlreadyExists) {
		return s.GetProjectByRoot(ctx, rootDirectory)
	}
	return p, err
}

func (s *pgQueries) ListProjects(ctx context.Context) ([]Project, error) {
	var rows []pgProjectRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, `SELECT id, root_directory, created_at FROM projects ORDER BY root_directory`); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	projects := make([]Project, 0, len(rows))
	for _, r := range rows {
		projects = append(projects, *r.project())
	}
	return projects, nil
}

func (s *pgQueries) DeleteProject(ctx context.Context, projectID int64) error {
	res, err := s.q.ExecContext(ctx, rebind(`DELETE FROM projects WHERE id = ?`), projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Owner operations

func (s *pgQueries) GetOwner(ctx context.Context, kind OwnerKind, projectID int64, filePath string) (*Owner, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	var row pgOwnerRow
	err := sqlx.GetContext(ctx, s.q, &row,
		rebind(fmt.Sprintf(`SELECT id, project_id, file_path, content_hash, mtime, updated_at FROM %s WHERE project_id = ? AND file_path = ?`, kind.ownerTable())),
		projectID, filePath,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	o := row.owner(kind)
	return &o, nil
}

func (s *pgQueries) ListOwners(ctx context.Context, kind OwnerKind, projectID int64) ([]Owner, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	var rows []pgOwnerRow
	err := sqlx.SelectContext(ctx, s.q, &rows,
		rebind(fmt.Sprintf(`SELECT id, project_id, file_path, content_hash, mtime, updated_at FROM %s WHERE project_id = ? ORDER BY file_path`, kind.ownerTable())),
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s rows: %w", kind, err)
	}
	owners := make([]Owner, 0, len(rows))
	for _, r := range rows {
		owners = append(owners, r.owner(kind))
	}
	return owners, nil
}

func (s *pgQueries) InsertOwner(ctx context.Context, owner *Owner) error {
	if err := owner.Kind.Validate(); err != nil {
		return err
	}

	now := toMillis(time.Now())
	err := sqlx.GetContext(ctx, s.q, &owner.ID,
		rebind(fmt.Sprintf(`INSERT INTO %s (project_id, file_path, content_hash, mtime, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING id`, owner.Kind.ownerTable())),
		owner.ProjectID, owner.FilePath, owner.ContentHash, toMillis(owner.ModTime), now,
	)
	if isConflict(err) {
		return fmt.Errorf("%s %s: %w", owner.Kind, owner.FilePath, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", owner.Kind, err)
	}
	owner.UpdatedAt = fromMillis(now)
	return nil
}

func (s *pgQueries) UpdateOwnerContent(ctx context.Context, kind OwnerKind, ownerID int64, contentHash string, modTime time.Time) error {
	if err := kind.Validate(); err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx,
		rebind(fmt.Sprintf(`UPDATE %s SET content_hash = ?, mtime = ?, updated_at = ? WHERE id = ?`, kind.ownerTable())),
		contentHash, toMillis(modTime), toMillis(time.Now()), ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgQueries) DeleteOwner(ctx context.Context, kind OwnerKind, ownerID int64) error {
	if err := kind.Validate(); err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, kind.ownerTable())), ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgQueries) DeleteOwnersByProject(ctx context.Context, kind OwnerKind, projectID int64) (int64, error) {
	if err := kind.Validate(); err != nil {
		return 0, err
	}

	res, err := s.q.ExecContext(ctx, rebind(fmt.Sprintf(`DELETE FROM %s WHERE project_id = ?`, kind.ownerTable())), projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s rows: %w", kind, err)
	}
	return res.RowsAffected()
}

// Embedding operations

func (s *pgQueries) InsertEmbeddings(ctx context.Context, kind OwnerKind, ownerID int64, rows []Embedding) error {
	if err := kind.Validate(); err != nil {
		return err
	}

	query := rebind(fmt.Sprintf(
		`INSERT INTO %s (%s, content, embedding, dimension, file_path, start_line, end_line) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		kind.embeddingTable(), kind.ownerColumn(),
	))
	for i := range rows {
		r := &rows[i]
		if err := sqlx.GetContext(ctx, s.q, &r.ID, query,
			ownerID, r.Content, pgvector.NewVector(r.Vector), len(r.Vector), r.FilePath, r.StartLine, r.EndLine,
		); err != nil {
			return fmt.Errorf("failed to insert embedding %d: %w", i, err)
		}
		r.OwnerID = ownerID
	}
	return nil
}

func (s *pgQueries) ListEmbeddings(ctx context.Context, kind OwnerKind, ownerID int64) ([]Embedding, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	var rows []pgEmbeddingRow
	err := sqlx.SelectContext(ctx, s.q, &rows,
		rebind(fmt.Sprintf(`SELECT id, %s AS owner_id, content, embedding, file_path, start_line, end_line FROM %s WHERE %s = ? ORDER BY id`,
			kind.ownerColumn(), kind.embeddingTable(), kind.ownerColumn())),
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	out := make([]Embedding, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.embedding())
	}
	return out, nil
}

func (s *pgQueries) CountEmbeddings(ctx context.Context, kind OwnerKind, ownerID int64) (int, error) {
	if err := kind.Validate(); err != nil {
		return 0, err
	}

	var n int
	err := sqlx.GetContext(ctx, s.q, &n,
		rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`, kind.embeddingTable(), kind.ownerColumn())),
		ownerID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return n, nil
}

func (s *pgQueries) DeleteEmbeddingsByOwner(ctx context.Context, kind OwnerKind, ownerID int64) (int64, error) {
	return s.DeleteEmbeddingsByOwners(ctx, kind, []int64{ownerID})
}

func (s *pgQueries) DeleteEmbeddingsByOwners(ctx context.Context, kind OwnerKind, ownerIDs []int64) (int64, error) {
	if err := kind.Validate(); err != nil {
		return 0, err
	}
	if len(ownerIDs) == 0 {
		return 0, nil
	}

	res, err := s.q.ExecContext(ctx,
		rebind(fmt.Sprintf(`DELETE FROM %s WHERE %s = ANY(?)`, kind.embeddingTable(), kind.ownerColumn())),
		pq.Array(ownerIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete embeddings: %w", err)
	}
	return res.RowsAffected()
}

func (s *pgQueries) DeleteEmbeddingsByProject(ctx context.Context, kind OwnerKind, projectID int64) (int64, error) {
	if err := kind.Validate(); err != nil {
		return 0, err
	}

	res, err := s.q.ExecContext(ctx,
		rebind(fmt.Sprintf(`DELETE FROM %s WHERE %s IN (SELECT id FROM %s WHERE project_id = ?)`,
			kind.embeddingTable(), kind.ownerColumn(), kind.ownerTable())),
		projectID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete project embeddings: %w", err)
	}
	return res.RowsAffected()
}

// Search operations

func (s *pgQueries) SearchEmbeddings(ctx context.Context, kind OwnerKind, query []float32, params SearchParams) ([]ScoredEmbedding, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	vec := pgvector.NewVector(query)
	stmt := fmt.Sprintf(
		`SELECT e.id, e.%s AS owner_id, e.content, e.embedding, e.file_path, e.start_line, e.end_line,
		        1 - (e.embedding <=> ?) AS similarity
		 FROM %s e`,
		kind.ownerColumn(), kind.embeddingTable(),
	)
	args := []any{vec}
	if params.ProjectID != 0 {
		stmt += fmt.Sprintf(` INNER JOIN %s o ON o.id = e.%s`, kind.ownerTable(), kind.ownerColumn())
	}
	stmt += ` WHERE 1 - (e.embedding <=> ?) > ?`
	args = append(args, vec, params.Threshold)
	if params.ProjectID != 0 {
		stmt += ` AND o.project_id = ?`
		args = append(args, params.ProjectID)
	}
	stmt += ` ORDER BY e.embedding <=> ?, e.id LIMIT ?`
	args = append(args, vec, params.limit())

	var rows []pgEmbeddingRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, rebind(stmt), args...); err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}

	out := make([]ScoredEmbedding, 0, len(rows))
	for _, r := range rows {
		out = append(out, ScoredEmbedding{Embedding: r.embedding(), Similarity: r.Similarity})
	}
	return out, nil
}

// Status operations

func (s *pgQueries) GetStatus(ctx context.Context, projectID int64) (*Status, error) {
	var row pgProjectRow
	err := sqlx.GetContext(ctx, s.q, &row, rebind(`SELECT id, root_directory, created_at FROM projects WHERE id = ?`), projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	status := &Status{Project: row.project()}
	counts := []struct {
		dest  *int
		query string
	}{
		{&status.Resources, `SELECT COUNT(*) FROM resources WHERE project_id = ?`},
		{&status.Documents, `SELECT COUNT(*) FROM documents WHERE project_id = ?`},
		{&status.ResourceEmbeddings, `SELECT COUNT(*) FROM embeddings e JOIN resources r ON r.id = e.resource_id WHERE r.project_id = ?`},
		{&status.DocumentEmbeddings, `SELECT COUNT(*) FROM document_embeddings e JOIN documents d ON d.id = e.document_id WHERE d.project_id = ?`},
	}
	for _, c := range counts {
		if err := sqlx.GetContext(ctx, s.q, c.dest, rebind(c.query), projectID); err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}

	_ = sqlx.GetContext(ctx, s.q, &status.DatabaseSizeBytes, `SELECT pg_database_size(current_database())`)
	return status, nil
}
