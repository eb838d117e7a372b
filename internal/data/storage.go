// Package data holds the entities of the task service and their SQL storage.
package data

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrEditConflict      = errors.New("edit conflict")
	ErrDuplicateUsername = errors.New("duplicate username")
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const queryTimeout = 5 * time.Second

//go:embed schema/*.sql
var schemaFS embed.FS

type Config struct {
	Dialect            string
	DSN                string
	MaxOpenConnections int
	MaxIdleConnections int
	MaxIdleTime        time.Duration
}

// InMemory returns the configuration of a private in-memory SQLite database.
func InMemory() Config {
	return Config{Dialect: DialectSQLite, DSN: ":memory:"}
}

type Storage struct {
	db      *sql.DB
	dialect string
}

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	var driver string
	switch cfg.Dialect {
	case DialectPostgres:
		driver = "postgres"
	case DialectSQLite:
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("unknown database dialect %q", cfg.Dialect)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.Dialect == DialectSQLite {
		// each connection to :memory: is its own database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConnections)
		db.SetMaxIdleConns(cfg.MaxIdleConnections)
		db.SetConnMaxIdleTime(cfg.MaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Storage{db: db, dialect: cfg.Dialect}
	err = s.migrate(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

func (s *Storage) migrate(ctx context.Context) error {
	if s.dialect == DialectSQLite {
		_, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`)
		if err != nil {
			return err
		}
	}
	schema, err := schemaFS.ReadFile("schema/" + s.dialect + ".sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(schema))
	return err
}

func (s *Storage) Close() error {
	return s.db.Close()
}

var placeholderRegexp = regexp.MustCompile(`\$(\d+)`)

// query adapts a query written with $N placeholders to the dialect.
func (s *Storage) query(q string) string {
	if s.dialect == DialectSQLite {
		return placeholderRegexp.ReplaceAllString(q, "?$1")
	}
	return q
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE"))
	}
	return false
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func (s *Storage) InsertUser(ctx context.Context, u *User) error {
	query := `INSERT INTO users (created_at, username, email, password_hash)
			  VALUES ($1, $2, $3, $4)
			  RETURNING id, version`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	createdAt := time.Now()
	row := s.db.QueryRowContext(ctx, s.query(query), toMillis(createdAt), u.Username, u.Email, u.PasswordHash)
	err := row.Scan(&u.ID, &u.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUsername
		}
		return err
	}
	u.CreatedAt = fromMillis(toMillis(createdAt))
	return nil
}

func (s *Storage) getUser(ctx context.Context, where string, arg any) (*User, error) {
	query := `SELECT id, created_at, username, email, password_hash, version
			  FROM users
			  WHERE ` + where
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := s.db.QueryRowContext(ctx, s.query(query), arg)
	var u User
	var createdAt int64
	err := row.Scan(&u.ID, &createdAt, &u.Username, &u.Email, &u.PasswordHash, &u.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

func (s *Storage) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, `id = $1`, id)
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, `username = $1`, username)
}

func (s *Storage) InsertTask(ctx context.Context, t *Task) error {
	query := `INSERT INTO tasks (created_at, message, creator_id, assignee_id)
			  VALUES ($1, $2, $3, $4)
			  RETURNING id, version`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	createdAt := time.Now()
	row := s.db.QueryRowContext(ctx, s.query(query), toMillis(createdAt), t.Message, t.CreatorID, t.AssigneeID)
	err := row.Scan(&t.ID, &t.Version)
	if err != nil {
		return err
	}
	t.CreatedAt = fromMillis(toMillis(createdAt))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var createdAt int64
	err := row.Scan(&t.ID, &createdAt, &t.Message, &t.CreatorID, &t.AssigneeID, &t.Version)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = fromMillis(createdAt)
	return &t, nil
}

func (s *Storage) GetTaskByID(ctx context.Context, id int64) (*Task, error) {
	query := `SELECT id, created_at, message, creator_id, assignee_id, version
			  FROM tasks
			  WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	t, err := scanTask(s.db.QueryRowContext(ctx, s.query(query), id))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return t, nil
}

func (s *Storage) ListTasks(ctx context.Context, f TaskFilter) ([]*Task, error) {
	query := `SELECT id, created_at, message, creator_id, assignee_id, version
			  FROM tasks
			  WHERE (assignee_id = $1 OR $1 = 0) AND (creator_id = $2 OR $2 = 0)
			  ORDER BY id
			  LIMIT $3 OFFSET $4`
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := max(f.Offset, 0)

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, s.query(query), f.AssigneeID, f.CreatorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask writes message and assignee if t.Version still matches the
// stored row, and bumps t.Version.
func (s *Storage) UpdateTask(ctx context.Context, t *Task) error {
	query := `UPDATE tasks SET message = $1, assignee_id = $2, version = version + 1
			  WHERE id = $3 AND version = $4
			  RETURNING version`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, s.query(query), t.Message, t.AssigneeID, t.ID, t.Version)
	err := row.Scan(&t.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrEditConflict
		default:
			return err
		}
	}
	return nil
}

func (s *Storage) DeleteTask(ctx context.Context, t *Task) error {
	query := `DELETE FROM tasks
			  WHERE id = $1 AND version = $2`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, s.query(query), t.ID, t.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEditConflict
	}
	return nil
}

func (s *Storage) Dialect() string {
	return s.dialect
}
