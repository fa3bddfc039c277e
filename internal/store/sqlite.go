// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides options/capability/post/log persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.migrateOptions(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating options: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS options (
			name       TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS auth_capabilities (
			scope      TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL,

			CHECK (value IN ('accepted', 'rejected')),
			CHECK (scope IN ('license_for_verify', 'content_proxy'))
		);

		CREATE TABLE IF NOT EXISTS posts (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			title      TEXT NOT NULL,
			content    TEXT NOT NULL,
			excerpt    TEXT NOT NULL DEFAULT '',
			slug       TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT 'draft',
			author     TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,

			CHECK (status IN ('draft', 'publish', 'pending', 'private'))
		);

		CREATE INDEX IF NOT EXISTS idx_posts_slug ON posts(slug);
		CREATE INDEX IF NOT EXISTS idx_posts_status ON posts(status);

		CREATE TABLE IF NOT EXISTS post_terms (
			post_id  INTEGER NOT NULL,
			taxonomy TEXT NOT NULL,
			term     TEXT NOT NULL,

			PRIMARY KEY (post_id, taxonomy, term),
			FOREIGN KEY (post_id) REFERENCES posts(id)
		);

		CREATE TABLE IF NOT EXISTS generation_log (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			subject    TEXT NOT NULL DEFAULT '',
			word_count INTEGER NOT NULL DEFAULT 0,
			provider   TEXT NOT NULL DEFAULT '',
			http_code  INTEGER NOT NULL DEFAULT 0,
			result_id  TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_generation_log_kind
			ON generation_log(kind, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// migrateOptions collapses legacy license-key option aliases into the
// canonical name. Runs once at open; reads elsewhere only touch the
// canonical option.
func (s *SQLiteStore) migrateOptions(ctx context.Context) error {
	canonical, err := s.GetOption(ctx, OptLicenseKey)
	if err != nil {
		return err
	}

	for _, alias := range LegacyLicenseKeyAliases {
		val, err := s.GetOption(ctx, alias)
		if err != nil {
			return err
		}
		if canonical == "" && val != "" {
			if err := s.SetOption(ctx, OptLicenseKey, val); err != nil {
				return err
			}
			canonical = val
			s.logger.Info("migrated legacy license key option", "from", alias)
		}
		if val != "" {
			if err := s.DeleteOption(ctx, alias); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetOption returns the option value, or "" if unset.
func (s *SQLiteStore) GetOption(ctx context.Context, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM options WHERE name = ?", name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting option %q: %w", name, err)
	}
	return value, nil
}

// SetOption stores an option value, replacing any existing one.
func (s *SQLiteStore) SetOption(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO options (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("setting option %q: %w", name, err)
	}
	return nil
}

// DeleteOption removes an option. Deleting a missing option is not an error.
func (s *SQLiteStore) DeleteOption(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM options WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting option %q: %w", name, err)
	}
	return nil
}

// GetCapability returns the learned capability for a scope, CapabilityUnknown
// if nothing has been learned.
func (s *SQLiteStore) GetCapability(ctx context.Context, scope string) (Capability, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM auth_capabilities WHERE scope = ?", scope).Scan(&value)
	if err == sql.ErrNoRows {
		return CapabilityUnknown, nil
	}
	if err != nil {
		return CapabilityUnknown, fmt.Errorf("getting capability %q: %w", scope, err)
	}
	return Capability(value), nil
}

// SetCapability records a learned capability. The rejected state latches:
// once a scope is rejected, only ResetCapability moves it out of that state.
func (s *SQLiteStore) SetCapability(ctx context.Context, scope string, value Capability) error {
	if value != CapabilityAccepted && value != CapabilityRejected {
		return fmt.Errorf("capability %q cannot be stored for scope %q", value, scope)
	}

	current, err := s.GetCapability(ctx, scope)
	if err != nil {
		return err
	}
	if current == CapabilityRejected && value != CapabilityRejected {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO auth_capabilities (scope, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		scope, string(value), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("setting capability %q: %w", scope, err)
	}
	return nil
}

// ResetCapability is the operator override that returns a scope to unknown.
func (s *SQLiteStore) ResetCapability(ctx context.Context, scope string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM auth_capabilities WHERE scope = ?", scope); err != nil {
		return fmt.Errorf("resetting capability %q: %w", scope, err)
	}
	return nil
}

// CreatePost inserts a new post and fills in its assigned ID and timestamps.
func (s *SQLiteStore) CreatePost(ctx context.Context, post *Post) error {
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (title, content, excerpt, slug, status, author, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		post.Title, post.Content, post.Excerpt, post.Slug, post.Status, post.Author, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating post: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading post id: %w", err)
	}
	post.ID = id
	return nil
}

// UpdatePost rewrites an existing post. Returns ErrNotFound for an unknown ID.
func (s *SQLiteStore) UpdatePost(ctx context.Context, post *Post) error {
	post.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET title = ?, content = ?, excerpt = ?, slug = ?, status = ?, author = ?, updated_at = ?
		WHERE id = ?`,
		post.Title, post.Content, post.Excerpt, post.Slug, post.Status, post.Author, post.UpdatedAt, post.ID)
	if err != nil {
		return fmt.Errorf("updating post %d: %w", post.ID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update of post %d: %w", post.ID, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPost fetches a post by ID.
func (s *SQLiteStore) GetPost(ctx context.Context, id int64) (*Post, error) {
	post := &Post{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, excerpt, slug, status, author, created_at, updated_at
		FROM posts WHERE id = ?`, id).Scan(
		&post.ID, &post.Title, &post.Content, &post.Excerpt, &post.Slug,
		&post.Status, &post.Author, &post.CreatedAt, &post.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting post %d: %w", id, err)
	}
	return post, nil
}

// SetPostTerms replaces a post's terms within one taxonomy.
func (s *SQLiteStore) SetPostTerms(ctx context.Context, postID int64, taxonomy string, terms []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting terms transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM post_terms WHERE post_id = ? AND taxonomy = ?", postID, taxonomy); err != nil {
		return fmt.Errorf("clearing terms: %w", err)
	}

	for _, term := range terms {
		if term == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO post_terms (post_id, taxonomy, term) VALUES (?, ?, ?)",
			postID, taxonomy, term); err != nil {
			return fmt.Errorf("inserting term %q: %w", term, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing terms: %w", err)
	}
	return nil
}

// GetPostTerms lists a post's terms within one taxonomy.
func (s *SQLiteStore) GetPostTerms(ctx context.Context, postID int64, taxonomy string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT term FROM post_terms WHERE post_id = ? AND taxonomy = ? ORDER BY term", postID, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("listing terms: %w", err)
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("scanning term: %w", err)
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}

// SaveGenerationLog records one proxy exchange. Assigns an ID if unset.
func (s *SQLiteStore) SaveGenerationLog(ctx context.Context, entry *GenerationLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generation_log (id, kind, title, subject, word_count, provider, http_code, result_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Kind, entry.Title, entry.Subject, entry.WordCount,
		entry.Provider, entry.HTTPCode, entry.ResultID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving generation log: %w", err)
	}
	return nil
}

// ListGenerationLog returns the most recent log entries, newest first.
func (s *SQLiteStore) ListGenerationLog(ctx context.Context, limit int) ([]*GenerationLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, title, subject, word_count, provider, http_code, result_id, created_at
		FROM generation_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing generation log: %w", err)
	}
	defer rows.Close()

	var entries []*GenerationLogEntry
	for rows.Next() {
		entry := &GenerationLogEntry{}
		if err := rows.Scan(&entry.ID, &entry.Kind, &entry.Title, &entry.Subject, &entry.WordCount,
			&entry.Provider, &entry.HTTPCode, &entry.ResultID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning generation log: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
