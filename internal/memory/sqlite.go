// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const dbFile = "memory.db"

// SQLiteStore keeps turns in SQLite with an FTS5 trigram index over the
// user text and reply.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates dir/memory.db and its schema.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating memory directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFile)+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			profile TEXT NOT NULL,
			user_text TEXT NOT NULL,
			reply TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_profile ON turns(profile)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='turns_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		return nil
	}

	ftsStatements := []string{
		`CREATE VIRTUAL TABLE turns_fts USING fts5(user_text, reply, content=turns, content_rowid=rowid, tokenize='trigram')`,
		`CREATE TRIGGER turns_ai AFTER INSERT ON turns BEGIN
			INSERT INTO turns_fts(rowid, user_text, reply) VALUES (new.rowid, new.user_text, new.reply);
		END`,
		`CREATE TRIGGER turns_ad AFTER DELETE ON turns BEGIN
			INSERT INTO turns_fts(turns_fts, rowid, user_text, reply) VALUES('delete', old.rowid, old.user_text, old.reply);
		END`,
	}
	for _, stmt := range ftsStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	return nil
}

// Add inserts one turn. Missing ids and timestamps are filled in.
func (s *SQLiteStore) Add(ctx context.Context, turn Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, profile, user_text, reply, created_at) VALUES (?, ?, ?, ?, ?)`,
		turn.ID, turn.Profile, turn.User, turn.Reply, turn.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	return nil
}

// Search ranks the profile's turns by FTS5 relevance. Terms shorter than
// three characters cannot match a trigram index and are dropped.
func (s *SQLiteStore) Search(ctx context.Context, profile, query string, limit int) ([]Turn, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.profile, t.user_text, t.reply, t.created_at
		FROM turns_fts
		JOIN turns t ON t.rowid = turns_fts.rowid
		WHERE turns_fts MATCH ? AND t.profile = ?
		ORDER BY turns_fts.rank
		LIMIT ?`, match, profile, limit)
	if err != nil {
		return nil, fmt.Errorf("querying memory: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// All returns every turn for profile (or all profiles), oldest first.
func (s *SQLiteStore) All(ctx context.Context, profile string) ([]Turn, error) {
	q := `SELECT id, profile, user_text, reply, created_at FROM turns`
	var args []any
	if profile != "" {
		q += ` WHERE profile = ?`
		args = append(args, profile)
	}
	q += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing memory: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	var turns []Turn
	for rows.Next() {
		var (
			t       Turn
			created string
		)
		if err := rows.Scan(&t.ID, &t.Profile, &t.User, &t.Reply, &created); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ftsQuery builds an OR query of quoted terms usable with a trigram index.
func ftsQuery(text string) string {
	var parts []string
	for _, term := range searchTerms(text, 16) {
		if len([]rune(term)) < 3 {
			continue
		}
		parts = append(parts, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(parts, " OR ")
}
