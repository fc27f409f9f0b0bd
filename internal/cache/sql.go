package cache

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver.
	_ "modernc.org/sqlite"             // SQLite driver.

	apperrors "github.com/fntranslate/livetranslate/internal/errors"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStore keeps entries in a relational table. SQLite and Postgres share the schema.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQLite opens or creates the SQLite file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CacheFailed, "create cache dir")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CacheFailed, "open sqlite")
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)
	return newSQLStore(ctx, db, dialectSQLite)
}

// OpenPostgres connects with a pgx DSN (postgres://...).
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CacheFailed, "open postgres")
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return newSQLStore(ctx, db, dialectPostgres)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, apperrors.Wrap(err, apperrors.CacheFailed, "ping cache db")
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS translation_cache (
			normalized_text TEXT NOT NULL,
			source_lang TEXT NOT NULL,
			target_lang TEXT NOT NULL,
			source_text TEXT NOT NULL,
			translated_text TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (normalized_text, source_lang, target_lang)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_translation_cache_created_at ON translation_cache(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.Wrap(err, apperrors.CacheFailed, "migrate translation_cache")
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Get looks up one entry.
func (s *SQLStore) Get(ctx context.Context, k Key) (Entry, bool, error) {
	q := s.rebind(`SELECT source_text, translated_text, created_at FROM translation_cache
		WHERE normalized_text = ? AND source_lang = ? AND target_lang = ?`)
	e := Entry{Key: k}
	var created int64
	err := s.db.QueryRowContext(ctx, q, k.Text, k.Source, k.Target).Scan(&e.SourceText, &e.Translation, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, apperrors.Wrap(err, apperrors.CacheFailed, "select translation")
	}
	e.CreatedAt = time.Unix(created, 0)
	return e, true, nil
}

// PutBatch inserts entries in one transaction; existing keys are left as they are.
func (s *SQLStore) PutBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CacheFailed, "begin")
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO translation_cache
		(normalized_text, source_lang, target_lang, source_text, translated_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (normalized_text, source_lang, target_lang) DO NOTHING`))
	if err != nil {
		_ = tx.Rollback()
		return apperrors.Wrap(err, apperrors.CacheFailed, "prepare insert")
	}
	defer stmt.Close()

	for _, e := range entries {
		created := e.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, e.Text, e.Source, e.Target, e.SourceText, e.Translation, created.Unix()); err != nil {
			_ = tx.Rollback()
			return apperrors.Wrap(err, apperrors.CacheFailed, "insert translation")
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, apperrors.CacheFailed, "commit")
	}
	return nil
}

// Prune deletes entries older than before.
func (s *SQLStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM translation_cache WHERE created_at < ?`), before.Unix())
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CacheFailed, "prune")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CacheFailed, "prune rows affected")
	}
	return n, nil
}

// Count returns the number of entries.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM translation_cache`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(err, apperrors.CacheFailed, "count")
	}
	return n, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
