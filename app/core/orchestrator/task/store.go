package task

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"taskchat/app/core/orchestrator/db"
)

const taskColumns = `id, user_id, title, description, completed, COALESCE(due_date, 0), created_at, updated_at`

type Store struct {
	db      *db.DB
	counter uint64
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

func (s *Store) Create(ctx context.Context, userID string, title string, description string, dueDate int64) (Task, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Task{}, fmt.Errorf("user_id is required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, fmt.Errorf("title is required")
	}
	now := time.Now().Unix()
	id := s.newID("task")

	var due interface{}
	if dueDate > 0 {
		due = dueDate
	}
	query := `INSERT INTO tasks (id, user_id, title, description, completed, due_date, created_at, updated_at) VALUES (?, ?, ?, ?, 0, ?, ?, ?)`
	if _, err := s.db.Conn().ExecContext(ctx, query, id, userID, title, description, due, now, now); err != nil {
		return Task{}, err
	}
	return Task{
		ID:          id,
		UserID:      userID,
		Title:       title,
		Description: description,
		DueDate:     dueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *Store) Get(ctx context.Context, userID string, taskID string) (Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ? AND user_id = ?`
	return scanTask(s.db.Conn().QueryRowContext(ctx, query, taskID, userID))
}

// FindByTitle resolves a task by case-insensitive substring match on the
// title, scoped to the owner. When several tasks match, the newest-created
// one wins; conversational use accepts this as a convenience, not a
// uniqueness guarantee.
func (s *Store) FindByTitle(ctx context.Context, userID string, fragment string) (Task, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return Task{}, sql.ErrNoRows
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ? AND instr(lower(title), lower(?)) > 0 ORDER BY created_at DESC, id DESC LIMIT 1`
	return scanTask(s.db.Conn().QueryRowContext(ctx, query, userID, fragment))
}

// List returns the owner's tasks newest-created first, optionally filtered to
// pending or completed.
func (s *Store) List(ctx context.Context, userID string, status string, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		query string
		args  []interface{}
	)
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", StatusAll:
		query = `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
		args = []interface{}{userID, limit}
	case StatusPending:
		query = `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ? AND completed = 0 ORDER BY created_at DESC, id DESC LIMIT ?`
		args = []interface{}{userID, limit}
	case StatusCompleted:
		query = `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ? AND completed = 1 ORDER BY created_at DESC, id DESC LIMIT ?`
		args = []interface{}{userID, limit}
	default:
		return nil, fmt.Errorf("invalid status: %s", status)
	}

	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Task, 0, limit)
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.DueDate, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// Apply updates the supplied fields of the owner's task inside one
// transaction and returns the updated row. sql.ErrNoRows when the task does
// not exist or belongs to another owner.
func (s *Store) Apply(ctx context.Context, userID string, taskID string, update Update) (Task, error) {
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return Task{}, err
	}
	defer tx.Rollback()

	current, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID))
	if err != nil {
		return Task{}, err
	}

	if update.Title != nil {
		current.Title = strings.TrimSpace(*update.Title)
	}
	if update.Description != nil {
		current.Description = *update.Description
	}
	if update.DueDate != nil {
		current.DueDate = *update.DueDate
	}
	current.UpdatedAt = time.Now().Unix()

	var due interface{}
	if current.DueDate > 0 {
		due = current.DueDate
	}
	query := `UPDATE tasks SET title = ?, description = ?, due_date = ?, updated_at = ? WHERE id = ? AND user_id = ?`
	if _, err := tx.ExecContext(ctx, query, current.Title, current.Description, due, current.UpdatedAt, taskID, userID); err != nil {
		return Task{}, err
	}

	if err := tx.Commit(); err != nil {
		return Task{}, err
	}
	return current, nil
}

func (s *Store) Complete(ctx context.Context, userID string, taskID string) (Task, error) {
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return Task{}, err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET completed = 1, updated_at = ? WHERE id = ? AND user_id = ?`, now, taskID, userID)
	if err != nil {
		return Task{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Task{}, err
	}
	if affected == 0 {
		return Task{}, sql.ErrNoRows
	}

	updated, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID))
	if err != nil {
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, err
	}
	return updated, nil
}

// Delete removes the owner's task and returns the removed row.
func (s *Store) Delete(ctx context.Context, userID string, taskID string) (Task, error) {
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return Task{}, err
	}
	defer tx.Rollback()

	removed, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID))
	if err != nil {
		return Task{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID); err != nil {
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, err
	}
	return removed, nil
}

func scanTask(row *sql.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.DueDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *Store) newID(prefix string) string {
	seq := atomic.AddUint64(&s.counter, 1)
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq)
}
