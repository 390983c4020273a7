package upload

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jmoiron/sqlx"
	"github.com/lumensite/lumen/internal/db"
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS upload_sessions (
	id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	declared_size INTEGER NOT NULL,
	chunk_size INTEGER NOT NULL,
	total_chunks INTEGER NOT NULL,
	checksum TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	artifact_name TEXT NOT NULL DEFAULT '',
	artifact_size INTEGER NOT NULL DEFAULT 0,
	artifact_url TEXT NOT NULL DEFAULT '',
	artifact_checksum TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_upload_sessions_status ON upload_sessions(status);
CREATE INDEX IF NOT EXISTS idx_upload_sessions_expires_at ON upload_sessions(expires_at);
`

const chunkSchema = `
CREATE TABLE IF NOT EXISTS upload_chunks (
	session_id TEXT NOT NULL REFERENCES upload_sessions(id) ON DELETE CASCADE,
	idx INTEGER NOT NULL,
	received_at INTEGER NOT NULL,
	PRIMARY KEY (session_id, idx)
);
`

const sessionColumns = `id, file_name, declared_size, chunk_size, total_chunks, checksum, status, reason,
	artifact_name, artifact_size, artifact_url, artifact_checksum, created_at, updated_at, expires_at`

type sessionRow struct {
	ID               string `db:"id"`
	FileName         string `db:"file_name"`
	DeclaredSize     int64  `db:"declared_size"`
	ChunkSize        int64  `db:"chunk_size"`
	TotalChunks      uint32 `db:"total_chunks"`
	Checksum         string `db:"checksum"`
	Status           string `db:"status"`
	Reason           string `db:"reason"`
	ArtifactName     string `db:"artifact_name"`
	ArtifactSize     int64  `db:"artifact_size"`
	ArtifactURL      string `db:"artifact_url"`
	ArtifactChecksum string `db:"artifact_checksum"`
	CreatedAt        int64  `db:"created_at"`
	UpdatedAt        int64  `db:"updated_at"`
	ExpiresAt        int64  `db:"expires_at"`
}

// SQLiteSessionStore persists sessions and their received chunk indices in sqlite.
// State transitions are conditional updates, so they hold across processes sharing the database.
type SQLiteSessionStore struct {
	db *sqlx.DB
}

func NewSQLiteSessionStore(database *sqlx.DB) (*SQLiteSessionStore, error) {
	if err := db.Migrate(database, sessionSchema, chunkSchema); err != nil {
		return nil, fmt.Errorf("init upload session schema: %w", err)
	}
	return &SQLiteSessionStore{db: database}, nil
}

func (s *SQLiteSessionStore) Create(ctx context.Context, sess *Session) error {
	row := toRow(sess)
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO upload_sessions (`+sessionColumns+`) VALUES (
		:id, :file_name, :declared_size, :chunk_size, :total_chunks, :checksum, :status, :reason,
		:artifact_name, :artifact_size, :artifact_url, :artifact_checksum, :created_at, :updated_at, :expires_at)`, row)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}

	if sess.Received != nil && sess.Received.Cardinality() > 0 {
		for idx := range sess.Received.Iter() {
			if _, err := s.db.ExecContext(ctx,
				`INSERT OR IGNORE INTO upload_chunks (session_id, idx, received_at) VALUES (?, ?, ?)`,
				sess.ID, int64(idx), row.UpdatedAt); err != nil {
				return fmt.Errorf("insert chunk %d of %s: %w", idx, sess.ID, err)
			}
		}
	}
	return nil
}

func (s *SQLiteSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	return getSession(ctx, s.db, id)
}

func (s *SQLiteSessionStore) AddChunk(ctx context.Context, id string, index uint32, expiresAt time.Time) (*Session, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin add chunk: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	res, err := tx.ExecContext(ctx,
		`UPDATE upload_sessions SET expires_at = ?, updated_at = ? WHERE id = ? AND status = ? AND ? < total_chunks`,
		expiresAt.UnixMilli(), now, id, string(StatusOpen), int64(index))
	if err != nil {
		return nil, fmt.Errorf("touch session %s: %w", id, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		cur, err := getSession(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if cur.Status != StatusOpen {
			return nil, closedError(id, cur.Status)
		}
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, cur.TotalChunks)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO upload_chunks (session_id, idx, received_at) VALUES (?, ?, ?)`,
		id, int64(index), now); err != nil {
		return nil, fmt.Errorf("record chunk %d of %s: %w", index, id, err)
	}

	sess, err := getSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add chunk: %w", err)
	}
	return sess, nil
}

func (s *SQLiteSessionStore) Transition(ctx context.Context, id string, t Transition) (bool, error) {
	query := `UPDATE upload_sessions SET status = ?, updated_at = ?`
	args := []any{string(t.To), time.Now().UnixMilli()}

	if t.Reason != "" {
		query += `, reason = ?`
		args = append(args, t.Reason)
	}
	if t.Artifact != nil {
		query += `, artifact_name = ?, artifact_size = ?, artifact_url = ?, artifact_checksum = ?`
		args = append(args, t.Artifact.PublishedName, t.Artifact.Size, t.Artifact.URL, t.Artifact.Checksum)
	}
	if !t.ExpiresAt.IsZero() {
		query += `, expires_at = ?`
		args = append(args, t.ExpiresAt.UnixMilli())
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, string(t.From))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition %s %s->%s: %w", id, t.From, t.To, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition %s: %w", id, err)
	}
	if n == 1 {
		return true, nil
	}

	// lost the race, or the session does not exist
	var exists int
	if err := s.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM upload_sessions WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("transition %s: %w", id, err)
	}
	if exists == 0 {
		return false, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return false, nil
}

func (s *SQLiteSessionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return nil
}

func (s *SQLiteSessionStore) ListExpired(ctx context.Context, now time.Time) ([]*Session, error) {
	return s.list(ctx, `SELECT `+sessionColumns+` FROM upload_sessions WHERE expires_at < ? ORDER BY expires_at`, now.UnixMilli())
}

func (s *SQLiteSessionStore) ListByStatus(ctx context.Context, status Status) ([]*Session, error) {
	return s.list(ctx, `SELECT `+sessionColumns+` FROM upload_sessions WHERE status = ? ORDER BY created_at`, string(status))
}

func (s *SQLiteSessionStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM upload_sessions WHERE status IN (?, ?)`, string(StatusOpen), string(StatusAssembling))
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}

// Close is a no-op. The database is owned by the caller.
func (s *SQLiteSessionStore) Close() error {
	return nil
}

func (s *SQLiteSessionStore) list(ctx context.Context, query string, args ...any) ([]*Session, error) {
	var rows []sessionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]*Session, 0, len(rows))
	for _, row := range rows {
		sess, err := loadReceived(ctx, s.db, &row)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func getSession(ctx context.Context, q sqlx.QueryerContext, id string) (*Session, error) {
	var row sessionRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+sessionColumns+` FROM upload_sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	} else if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return loadReceived(ctx, q, &row)
}

func loadReceived(ctx context.Context, q sqlx.QueryerContext, row *sessionRow) (*Session, error) {
	var indices []uint32
	if err := sqlx.SelectContext(ctx, q, &indices, `SELECT idx FROM upload_chunks WHERE session_id = ?`, row.ID); err != nil {
		return nil, fmt.Errorf("load chunks of %s: %w", row.ID, err)
	}
	sess := fromRow(row)
	sess.Received.Append(indices...)
	return sess, nil
}

func toRow(s *Session) *sessionRow {
	row := &sessionRow{
		ID:           s.ID,
		FileName:     s.FileName,
		DeclaredSize: s.DeclaredSize,
		ChunkSize:    s.ChunkSize,
		TotalChunks:  s.TotalChunks,
		Checksum:     s.Checksum,
		Status:       string(s.Status),
		Reason:       s.Reason,
		CreatedAt:    s.CreatedAt.UnixMilli(),
		UpdatedAt:    s.UpdatedAt.UnixMilli(),
		ExpiresAt:    s.ExpiresAt.UnixMilli(),
	}
	if s.Artifact != nil {
		row.ArtifactName = s.Artifact.PublishedName
		row.ArtifactSize = s.Artifact.Size
		row.ArtifactURL = s.Artifact.URL
		row.ArtifactChecksum = s.Artifact.Checksum
	}
	return row
}

func fromRow(row *sessionRow) *Session {
	s := &Session{
		ID:           row.ID,
		FileName:     row.FileName,
		DeclaredSize: row.DeclaredSize,
		ChunkSize:    row.ChunkSize,
		TotalChunks:  row.TotalChunks,
		Checksum:     row.Checksum,
		Received:     mapset.NewThreadUnsafeSet[uint32](),
		Status:       Status(row.Status),
		Reason:       row.Reason,
		CreatedAt:    time.UnixMilli(row.CreatedAt),
		UpdatedAt:    time.UnixMilli(row.UpdatedAt),
		ExpiresAt:    time.UnixMilli(row.ExpiresAt),
	}
	if row.ArtifactName != "" {
		s.Artifact = &Artifact{
			PublishedName: row.ArtifactName,
			Size:          row.ArtifactSize,
			URL:           row.ArtifactURL,
			Checksum:      row.ArtifactChecksum,
		}
	}
	return s
}

var _ SessionStore = (*SQLiteSessionStore)(nil)
