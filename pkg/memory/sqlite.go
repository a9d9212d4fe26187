package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// timestampLayout is fixed-width so that MIN/MAX over the column sort correctly.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// recentPrealloc 限制 Recent 预分配的容量，limit 来自外部输入。
const recentPrealloc = 64

var schemaStmts = []string{
	`CREATE TABLE IF NOT EXISTS chat_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS chat_history_by_session ON chat_history(session_id, id);`,
}

// SQLiteStore implements Store backed by a single SQLite file.
// The *sql.DB pool is opened once and shared by all requests.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// Option customizes a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the time source used for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// DSNForFile returns the driver DSN used for a database file.
func DSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite store: empty path")
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path), nil
}

// NewSQLiteStore opens (or creates) the database at path and ensures the schema exists.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	dsn, err := DSNForFile(path)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "sqlite store: create db directory")
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: open")
	}

	// WAL lets history reads proceed while a chat request is appending.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite store: set WAL mode")
	}

	s := &SQLiteStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	for _, st := range schemaStmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID, role, content string) error {
	ts := s.now().UTC().Format(timestampLayout)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_history (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)",
		sessionID, role, content, ts,
	)
	return unavailable("append", err)
}

func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return []Turn{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, timestamp
		FROM chat_history
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, unavailable("recent", err)
	}
	defer func() { _ = rows.Close() }()

	turns := make([]Turn, 0, min(limit, recentPrealloc))
	for rows.Next() {
		var t Turn
		var ts string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &ts); err != nil {
			return nil, unavailable("recent", err)
		}
		t.Timestamp = parseTimestamp(ts)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("recent", err)
	}

	// newest first from the query; callers want chronological order
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *SQLiteStore) ContextSummary(ctx context.Context, sessionID string) (string, error) {
	turns, err := s.Recent(ctx, sessionID, ContextWindow)
	if err != nil {
		return "", err
	}
	return RenderSummary(turns), nil
}

func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chat_history WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, unavailable("clear", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("clear", err)
	}
	return n, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			h.session_id,
			MIN(h.timestamp),
			MAX(h.timestamp),
			COUNT(*),
			COALESCE((
				SELECT u.content FROM chat_history u
				WHERE u.session_id = h.session_id AND u.role = 'user'
				ORDER BY u.id ASC
				LIMIT 1
			), '')
		FROM chat_history h
		GROUP BY h.session_id
		ORDER BY MAX(h.timestamp) DESC, MAX(h.id) DESC`)
	if err != nil {
		return nil, unavailable("list sessions", err)
	}
	defer func() { _ = rows.Close() }()

	infos := []SessionInfo{}
	for rows.Next() {
		var info SessionInfo
		var first, last, firstUser string
		if err := rows.Scan(&info.SessionID, &first, &last, &info.MessageCount, &firstUser); err != nil {
			return nil, unavailable("list sessions", err)
		}
		info.FirstMessage = parseTimestamp(first)
		info.LastMessage = parseTimestamp(last)
		info.Preview = preview(firstUser)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list sessions", err)
	}
	return infos, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return unavailable("ping", errors.New("db is nil"))
	}
	return unavailable("ping", s.db.PingContext(ctx))
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func parseTimestamp(v string) time.Time {
	t, err := time.Parse(timestampLayout, v)
	if err != nil {
		// rows written by other tools may use sqlite's CURRENT_TIMESTAMP format
		t, _ = time.Parse("2006-01-02 15:04:05", v)
	}
	return t
}
