package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ssasy-auth/demo/internal/model"
	"github.com/ssasy-auth/demo/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: Initial schema
	`
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL,
	public_key TEXT NOT NULL,
	crv TEXT NOT NULL,
	x TEXT NOT NULL,
	y TEXT NOT NULL,
	signature TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_key ON users(crv, x, y);

CREATE TABLE IF NOT EXISTS thoughts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	text TEXT NOT NULL,
	author_id INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(author_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_thoughts_created_at ON thoughts(created_at DESC);
`,
	// Future migrations go here:
	// Migration 2: `ALTER TABLE ...`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO users (username, public_key, crv, x, y, signature, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, user.Username, user.Credential.PublicKey, user.Credential.Crv, user.Credential.X, user.Credential.Y, user.Credential.Signature, user.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "users.username") {
				return 0, store.ErrDuplicateName
			}
			return 0, store.ErrDuplicateKey
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, username, public_key, crv, x, y, signature, created_at
FROM users
WHERE id = ?
LIMIT 1
`, id)
	return scanUser(row)
}

func (s *Store) GetUserByPublicKey(ctx context.Context, crv, x, y string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, username, public_key, crv, x, y, signature, created_at
FROM users
WHERE crv = ? AND x = ? AND y = ?
LIMIT 1
`, crv, x, y)
	return scanUser(row)
}

// GetUserByCoordinates looks up a user by point coordinates alone, for
// directory lookups that do not name the curve.
func (s *Store) GetUserByCoordinates(ctx context.Context, x, y string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, username, public_key, crv, x, y, signature, created_at
FROM users
WHERE x = ? AND y = ?
ORDER BY id ASC
LIMIT 1
`, x, y)
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, username, public_key, crv, x, y, signature, created_at
FROM users
ORDER BY created_at ASC, id ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) CreateThought(ctx context.Context, thought *model.Thought) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO thoughts (text, author_id, created_at)
VALUES (?, ?, ?)
`, thought.Text, thought.AuthorID, thought.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetThought(ctx context.Context, id int64) (model.Thought, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT t.id, t.text, t.author_id, u.username, t.created_at
FROM thoughts t
LEFT JOIN users u ON u.id = t.author_id
WHERE t.id = ?
LIMIT 1
`, id)
	return scanThought(row)
}

func (s *Store) ListThoughts(ctx context.Context) ([]model.Thought, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT t.id, t.text, t.author_id, u.username, t.created_at
FROM thoughts t
LEFT JOIN users u ON u.id = t.author_id
ORDER BY t.created_at DESC, t.id DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var thoughts []model.Thought
	for rows.Next() {
		thought, err := scanThought(rows)
		if err != nil {
			return nil, err
		}
		thoughts = append(thoughts, thought)
	}
	return thoughts, rows.Err()
}

func (s *Store) ListThoughtsByAuthor(ctx context.Context, authorID int64) ([]model.Thought, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT t.id, t.text, t.author_id, u.username, t.created_at
FROM thoughts t
LEFT JOIN users u ON u.id = t.author_id
WHERE t.author_id = ?
ORDER BY t.created_at DESC, t.id DESC
`, authorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var thoughts []model.Thought
	for rows.Next() {
		thought, err := scanThought(rows)
		if err != nil {
			return nil, err
		}
		thoughts = append(thoughts, thought)
	}
	return thoughts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (model.User, error) {
	var u model.User
	var createdAt int64
	err := row.Scan(&u.ID, &u.Username, &u.Credential.PublicKey, &u.Credential.Crv, &u.Credential.X, &u.Credential.Y, &u.Credential.Signature, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, err
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return u, nil
}

func scanThought(row scanner) (model.Thought, error) {
	var t model.Thought
	var createdAt int64
	var authorName sql.NullString
	err := row.Scan(&t.ID, &t.Text, &t.AuthorID, &authorName, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Thought{}, store.ErrNotFound
		}
		return model.Thought{}, err
	}
	t.AuthorName = authorName.String
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	return t, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
