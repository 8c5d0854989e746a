package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLiteStorage implements Storage on SQLite. Vectors are stored as
// little-endian float32 BLOBs and ranked in Go.
type SQLiteStorage struct {
	*sqliteQueries
	db *sql.DB
}

// sqliteDSN appends the per-connection pragmas to dbPath
func sqliteDSN(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + connParams
}

// openDatabase opens a SQLite database with appropriate settings. Foreign keys
// and the busy timeout are connection-scoped, so they travel in the DSN and
// hold for any connection the pool opens.
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, sqliteDSN(dbPath))
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// one shared connection: SQLite has a single writer, and ":memory:"
	// databases exist per connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read foreign_keys: %w", err)
	}
	if fk != 1 {
		_ = db.Close()
		return nil, errors.New("failed to enable foreign keys")
	}

	return db, nil
}

// NewSQLiteStorage opens (or creates) the database at dbPath and migrates it
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db, sqliteMigrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{
		sqliteQueries: &sqliteQueries{q: db},
		db:            db,
	}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{sqliteQueries: &sqliteQueries{q: tx}, tx: tx}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteTx runs every statement on its transaction, never on the pool, so a
// transaction holding the only connection cannot wait on itself.
type sqliteTx struct {
	*sqliteQueries
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) Close() error {
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, errors.New("nested transactions not supported")
}

// sqliteQueries holds the statements shared by the database and its transactions
type sqliteQueries struct {
	q querier
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Project operations

func (s *sqliteQueries) CreateProject(ctx context.Context, rootDirectory string) (*Project, error) {
	now := time.Now()
	var id int64
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO projects (root_directory, created_at) VALUES (?, ?) RETURNING id`,
		rootDirectory, toMillis(now),
	).Scan(&id)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("project %s: %w", rootDirectory, ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return &Project{ID: id, RootDirectory: rootDirectory, CreatedAt: fromMillis(toMillis(now))}, nil
}

func (s *sqliteQueries) GetProjectByRoot(ctx context.Context, rootDirectory string) (*Project, error) {
	var (
		p       Project
		created int64
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT id, root_directory, created_at FROM projects WHERE root_directory = ?`,
		rootDirectory,
	).Scan(&p.ID, &p.RootDirectory, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	p.CreatedAt = fromMillis(created)
	return &p, nil
}

func (s *sqliteQueries) GetOrCreateProject(ctx context.Context, rootDirectory string) (*Project, error) {
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

func (s *sqliteQueries) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, root_directory, created_at FROM projects ORDER BY root_directory`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []Project
	for rows.Next() {
		var (
			p       Project
			created int64
		)
		if err := rows.Scan(&p.ID, &p.RootDirectory, &created); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.CreatedAt = fromMillis(created)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *sqliteQueries) DeleteProject(ctx context.Context, projectID int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Owner operations

func (s *sqliteQueries) GetOwner(ctx context.Context, kind OwnerKind, projectID int64, filePath string) (*Owner, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	o := Owner{Kind: kind}
	var mtime, updated int64
	err := s.q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, project_id, file_path, content_hash, mtime, updated_at FROM %s WHERE project_id = ? AND file_path = ?`, kind.ownerTable()),
		projectID, filePath,
	).Scan(&o.ID, &o.ProjectID, &o.FilePath, &o.ContentHash, &mtime, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	o.ModTime = fromMillis(mtime)
	o.UpdatedAt = fromMillis(updated)
	return &o, nil
}

func (s *sqliteQueries) ListOwners(ctx context.Context, kind OwnerKind, projectID int64) ([]Owner, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, project_id, file_path, content_hash, mtime, updated_at FROM %s WHERE project_id = ? ORDER BY file_path`, kind.ownerTable()),
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s rows: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var owners []Owner
	for rows.Next() {
		o := Owner{Kind: kind}
		var mtime, updated int64
		if err := rows.Scan(&o.ID, &o.ProjectID, &o.FilePath, &o.ContentHash, &mtime, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		o.ModTime = fromMillis(mtime)
		o.UpdatedAt = fromMillis(updated)
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

func (s *sqliteQueries) InsertOwner(ctx context.Context, owner *Owner) error {
	if err := owner.Kind.Validate(); err != nil {
		return err
	}

	now := time.Now()
	err := s.q.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (project_id, file_path, content_hash, mtime, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING id`, owner.Kind.ownerTable()),
		owner.ProjectID, owner.FilePath, owner.ContentHash, toMillis(owner.ModTime), toMillis(now),
	).Scan(&owner.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s %s: %w", owner.Kind, owner.FilePath, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", owner.Kind, err)
	}
	owner.UpdatedAt = fromMillis(toMillis(now))
	return nil
}

func (s *sqliteQueries) UpdateOwnerContent(ctx context.Context, kind OwnerKind, ownerID int64, contentHash string, modTime time.Time) error {
	if err := kind.Validate(); err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET content_hash = ?, mtime = ?, updated_at = ? WHERE id = ?`, kind.ownerTable()),
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

func (s *sqliteQueries) DeleteOwner(ctx context.Context, kind OwnerKind, ownerID int64) error {
	if err := kind.Validate(); err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, kind.ownerTable()), ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteQueries) DeleteOwnersByProject(ctx context.Context, kind OwnerKind, projectID int64) (int64, error) {
	if err := kind.Validate(); err != nil {
		return 0, err
	}

	res, err := s.q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE project_id = ?`, kind.ownerTable()), projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s rows: %w", kind, err)
	}
	return res.RowsAffected()
}

// Embedding operations

func (s *sqliteQueries) InsertEmbeddings(ctx context.Context, kind OwnerKind, ownerID int64, rows []Embedding) error {
	if err := kind.Validate(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s, content, embedding, dimension, file_path, start_line, end_line) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		kind.embeddingTable(), kind.ownerColumn(),
	)
	for i := range rows {
		r := &rows[i]
		res, err := s.q.ExecContext(ctx, query,
			ownerID, r.Content, serializeVector(r.Vector), len(r.Vector), r.FilePath, r.StartLine, r.EndLine,
		)
		if err != nil {
			return fmt.Errorf("failed to insert embedding %d: %w", i, err)
		}
		if id, err := res.LastInsertId(); err == nil {
			r.ID = id
		}
		r.OwnerID = ownerID
	}
	return nil
}

func (s *sqliteQueries) ListEmbeddings(ctx context.Context, kind OwnerKind, ownerID int64) ([]Embedding, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, %s, content, embedding, file_path, start_line, end_line FROM %s WHERE %s = ? ORDER BY id`,
			kind.ownerColumn(), kind.embeddingTable(), kind.ownerColumn()),
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Embedding
	for rows.Next() {
		e, err := scanSQLiteEmbedding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanSQLiteEmbedding(rows *sql.Rows) (Embedding, error) {
	var (
		e    Embedding
		blob []byte
	)
	if err := rows.Scan(&e.ID, &e.OwnerID, &e.Content, &blob, &e.FilePath, &e.StartLine, &e.EndLine); err != nil {
		return e, fmt.Errorf("failed to scan embedding: %w", err)
	}
	vec, err := deserializeVector(blob)
	if err != nil {
		return e, fmt.Errorf("embedding %d: %w", e.ID, err)
	}
	e.Vector = vec
	return e, nil
}

func (s *sqliteQueries) CountEmbeddings(ctx context.Context, kind OwnerKind, ownerID int64) (int, error) {
	if err := kind.Validate(); err != nil {
		return 0, err
	}

	var n int
	err := s.q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`, kind.embeddingTable(), kind.ownerColumn()),
		ownerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return n, nil
}

func (s *sqliteQueries) DeleteEmbeddingsByOwner(ctx context.Context, kind OwnerKind, ownerID int64) (int64, error) {
	return s.DeleteEmbeddingsByOwners(ctx, kind, []int64{ownerID})
}

func (s *sqliteQueries) DeleteEmbeddingsByOwners(ctx context.Context, kind OwnerKind, ownerIDs []int64) (int64, error) {
	if err := kind.Validate(); err != nil {
		return 0, err
	}
	if len(ownerIDs) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(
		fmt.Sprintf(`DELETE FROM %s WHERE %s IN (?)`, kind.embeddingTable(), kind.ownerColumn()),
		ownerIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to build delete: %w", err)
	}

	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete embeddings: %w", err)
	}
	return res.RowsAffected()
}

func (s *sqliteQueries) DeleteEmbeddingsByProject(ctx context.Context, kind OwnerKind, projectID int64) (int64, error) {
	if err := kind.Validate(); err != nil {
		return 0, err
	}

	res, err := s.q.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s IN (SELECT id FROM %s WHERE project_id = ?)`,
			kind.embeddingTable(), kind.ownerColumn(), kind.ownerTable()),
		projectID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete project embeddings: %w", err)
	}
	return res.RowsAffected()
}

// Search operations

func (s *sqliteQueries) SearchEmbeddings(ctx context.Context, kind OwnerKind, query []float32, params SearchParams) ([]ScoredEmbedding, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf(
		`SELECT e.id, e.%s, e.content, e.embedding, e.file_path, e.start_line, e.end_line FROM %s e`,
		kind.ownerColumn(), kind.embeddingTable(),
	)
	var args []any
	if params.ProjectID != 0 {
		stmt += fmt.Sprintf(` INNER JOIN %s o ON o.id = e.%s WHERE o.project_id = ?`, kind.ownerTable(), kind.ownerColumn())
		args = append(args, params.ProjectID)
	}

	rows, err := s.q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []ScoredEmbedding
	for rows.Next() {
		e, err := scanSQLiteEmbedding(rows)
		if err != nil {
			return nil, err
		}
		sim, ok := cosineSimilarity(e.Vector, query)
		if !ok {
			continue
		}
		candidates = append(candidates, ScoredEmbedding{Embedding: e, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rankEmbeddings(candidates, params.Threshold, params.limit()), nil
}

// Status operations

func (s *sqliteQueries) GetStatus(ctx context.Context, projectID int64) (*Status, error) {
	var (
		p       Project
		created int64
	)
	err := s.q.QueryRowContext(ctx, `SELECT id, root_directory, created_at FROM projects WHERE id = ?`, projectID).
		Scan(&p.ID, &p.RootDirectory, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	p.CreatedAt = fromMillis(created)

	status := &Status{Project: &p}
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
		if err := s.q.QueryRowContext(ctx, c.query, projectID).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}

	var pageCount, pageSize int64
	if err := s.q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := s.q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			status.DatabaseSizeBytes = pageCount * pageSize
		}
	}

	return status, nil
}
