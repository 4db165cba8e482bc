// Package sqlite provides the local backend, storing tasks in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vibetodo/backend"
	"vibetodo/internal/config"
	"vibetodo/internal/utils"
)

// Name is the registry name of this backend
const Name = "sqlite"

func init() {
	backend.RegisterWithPriority(Name, "Local SQLite database", func(ctx context.Context, s backend.Settings, d backend.Deps) (backend.Backend, error) {
		return New(s.Get("db_path", DefaultPath()))
	}, 10)
}

// DefaultPath returns the database path used when db_path is not configured.
func DefaultPath() string {
	return filepath.Join(config.GetDataDir(), "tasks.db")
}

// Backend implements backend.Backend using SQLite
type Backend struct {
	db   *sql.DB
	path string
}

// New opens (creating if needed) the database at path and initializes the schema.
// The special path ":memory:" opens a private in-memory database.
func New(path string) (*Backend, error) {
	if path != ":memory:" {
		path = config.ExpandPath(path)
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A second connection to ":memory:" would see a different database.
	db.SetMaxOpenConns(1)

	b := &Backend{db: db, path: path}
	if err := b.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	utils.Debugf("sqlite backend opened at %s", path)
	return b, nil
}

// initSchema creates the tasks table if it doesn't exist
func (b *Backend) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			status TEXT NOT NULL DEFAULT 'todo',
			priority TEXT NOT NULL DEFAULT 'medium',
			time_spent INTEGER NOT NULL DEFAULT 0,
			due_date TEXT,
			tags TEXT DEFAULT '',
			project TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
		CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
	`

	_, err := b.db.Exec(schema)
	return err
}

// Name returns the registry name of the backend
func (b *Backend) Name() string {
	return Name
}

// Path returns the database location
func (b *Backend) Path() string {
	return b.path
}

// =============================================================================
// Repository Operations
// =============================================================================

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = `SELECT id, title, description, status, priority, time_spent, due_date, tags, project, created_at, updated_at FROM tasks`

// Save inserts a task with an empty ID and updates one with an ID.
// An update that matches no row inserts the task under its given ID.
func (b *Backend) Save(ctx context.Context, task *backend.Task) (*backend.Task, error) {
	saved := task.Clone()
	now := time.Now().UTC()
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = now
	}
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = now
	}

	if saved.ID == "" {
		res, err := b.db.ExecContext(ctx,
			`INSERT INTO tasks (title, description, status, priority, time_spent, due_date, tags, project, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			saved.Title, saved.Description, string(saved.Status), string(saved.Priority), saved.TimeSpent,
			timeToNullString(saved.DueDate), joinTags(saved.Tags), stringToNull(saved.Project),
			formatTime(saved.CreatedAt), formatTime(saved.UpdatedAt),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert task: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		saved.ID = strconv.FormatInt(id, 10)
		return saved, nil
	}

	id, err := strconv.ParseInt(saved.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid sqlite task id %q: must be an integer", saved.ID)
	}

	res, err := b.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?, time_spent = ?, due_date = ?, tags = ?, project = ?, created_at = ?, updated_at = ?
		 WHERE id = ?`,
		saved.Title, saved.Description, string(saved.Status), string(saved.Priority), saved.TimeSpent,
		timeToNullString(saved.DueDate), joinTags(saved.Tags), stringToNull(saved.Project),
		formatTime(saved.CreatedAt), formatTime(saved.UpdatedAt),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return saved, nil
	}

	_, err = b.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, status, priority, time_spent, due_date, tags, project, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, saved.Title, saved.Description, string(saved.Status), string(saved.Priority), saved.TimeSpent,
		timeToNullString(saved.DueDate), joinTags(saved.Tags), stringToNull(saved.Project),
		formatTime(saved.CreatedAt), formatTime(saved.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	return saved, nil
}

// GetByID returns a task by ID, or nil if it doesn't exist
func (b *Backend) GetByID(ctx context.Context, id string) (*backend.Task, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, nil
	}

	task, err := scanTaskFrom(b.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", n))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ListAll returns tasks newest first, optionally filtered by status
func (b *Backend) ListAll(ctx context.Context, status backend.TaskStatus) ([]backend.Task, error) {
	query := selectColumns
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tasks := []backend.Task{}
	for rows.Next() {
		task, err := scanTaskFrom(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// Delete removes a task and reports whether a row was deleted
func (b *Backend) Delete(ctx context.Context, id string) (bool, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false, nil
	}

	res, err := b.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", n)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Close closes the database connection
func (b *Backend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// =============================================================================
// Row Helpers
// =============================================================================

// timeToNullString converts an optional time to a nullable timestamp column
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// formatTime writes fixed-width UTC timestamps so that text ordering matches time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func stringToNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// parseOptionalDate parses a nullable date column
func parseOptionalDate(str sql.NullString) *time.Time {
	if !str.Valid || str.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, str.String)
	if err != nil {
		return nil
	}
	return &t
}

// joinTags stores tags comma separated; tag values must not contain commas.
func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	tags := []string{}
	for _, tag := range strings.Split(s, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// scanner is satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTaskFrom(s scanner) (*backend.Task, error) {
	var (
		id                   int64
		task                 backend.Task
		status, priority     string
		description, tags    sql.NullString
		dueDate, project     sql.NullString
		createdAt, updatedAt string
	)
	if err := s.Scan(&id, &task.Title, &description, &status, &priority, &task.TimeSpent,
		&dueDate, &tags, &project, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	task.ID = strconv.FormatInt(id, 10)
	task.Description = description.String
	task.Status = backend.TaskStatus(status)
	task.Priority = backend.TaskPriority(priority)
	task.DueDate = parseOptionalDate(dueDate)
	task.Tags = splitTags(tags.String)
	task.Project = project.String
	task.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	task.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &task, nil
}

// Verify interface compliance at compile time
var _ backend.Backend = (*Backend)(nil)
