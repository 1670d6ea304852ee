package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tutorial is a published or draft tutorial
type Tutorial struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TutorialFilter narrows ListTutorials results
type TutorialFilter struct {
	Published *bool
	Query     string
	Limit     int
	Offset    int
}

type tutorialRow struct {
	ID          int64          `db:"id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	Published   bool           `db:"published"`
	PublishedAt sql.NullTime   `db:"published_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r tutorialRow) tutorial() *Tutorial {
	return &Tutorial{
		ID:          r.ID,
		Title:       r.Title,
		Description: nullStringValue(r.Description),
		Published:   r.Published,
		PublishedAt: nullTimeToPtr(r.PublishedAt),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

const tutorialColumns = "id, title, description, published, published_at, created_at, updated_at"

// ListTutorials returns tutorials matching filter ordered by ID
func (db *DB) ListTutorials(ctx context.Context, filter TutorialFilter) ([]*Tutorial, error) {
	pool, err := db.Pool(ctx)
	if err != nil {
		return nil, err
	}

	var conditions []string
	var args []any

	if filter.Published != nil {
		conditions = append(conditions, "published = ?")
		args = append(args, *filter.Published)
	}
	if filter.Query != "" {
		conditions = append(conditions, "(title LIKE ? OR description LIKE ?)")
		pattern := "%" + filter.Query + "%"
		args = append(args, pattern, pattern)
	}

	query := "SELECT " + tutorialColumns + " FROM tutorials"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	var rows []tutorialRow
	if err := pool.SelectContext(ctx, &rows, pool.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list tutorials: %w", err)
	}

	tutorials := make([]*Tutorial, 0, len(rows))
	for _, row := range rows {
		tutorials = append(tutorials, row.tutorial())
	}
	return tutorials, nil
}

// GetTutorial returns a tutorial by ID, nil if it does not exist
func (db *DB) GetTutorial(ctx context.Context, id int64) (*Tutorial, error) {
	pool, err := db.Pool(ctx)
	if err != nil {
		return nil, err
	}

	var row tutorialRow
	err = pool.GetContext(ctx, &row, pool.Rebind("SELECT "+tutorialColumns+" FROM tutorials WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tutorial %d: %w", id, err)
	}
	return row.tutorial(), nil
}

// CountTutorials returns the number of stored tutorials
func (db *DB) CountTutorials(ctx context.Context) (int, error) {
	pool, err := db.Pool(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	if err := pool.GetContext(ctx, &count, "SELECT COUNT(*) FROM tutorials"); err != nil {
		return 0, fmt.Errorf("failed to count tutorials: %w", err)
	}
	return count, nil
}

// CreateTutorial inserts t and fills in its ID and timestamps
func (db *DB) CreateTutorial(ctx context.Context, t *Tutorial) error {
	pool, err := db.Pool(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var publishedAt sql.NullTime
	if t.Published {
		publishedAt = sql.NullTime{Time: now, Valid: true}
	}

	err = pool.QueryRowxContext(ctx, pool.Rebind(`
		INSERT INTO tutorials (title, description, published, published_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`), t.Title, stringToNull(t.Description), t.Published, publishedAt, now, now).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create tutorial: %w", err)
	}

	t.PublishedAt = nullTimeToPtr(publishedAt)
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

// UpdateTutorial stores the title and description of t
func (db *DB) UpdateTutorial(ctx context.Context, t *Tutorial) error {
	pool, err := db.Pool(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := pool.ExecContext(ctx, pool.Rebind(`
		UPDATE tutorials SET title = ?, description = ?, updated_at = ? WHERE id = ?
	`), t.Title, stringToNull(t.Description), now, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update tutorial %d: %w", t.ID, err)
	}
	if err := expectAffected(result, t.ID); err != nil {
		return err
	}

	t.UpdatedAt = now
	return nil
}

// PublishTutorial marks a tutorial as published at the given time.
// Publishing an already published tutorial keeps its original time.
func (db *DB) PublishTutorial(ctx context.Context, id int64, at time.Time) error {
	pool, err := db.Pool(ctx)
	if err != nil {
		return err
	}

	result, err := pool.ExecContext(ctx, pool.Rebind(`
		UPDATE tutorials
		SET published = ?, published_at = COALESCE(published_at, ?), updated_at = ?
		WHERE id = ?
	`), true, at.UTC(), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to publish tutorial %d: %w", id, err)
	}
	return expectAffected(result, id)
}

// DeleteTutorial removes a tutorial
func (db *DB) DeleteTutorial(ctx context.Context, id int64) error {
	pool, err := db.Pool(ctx)
	if err != nil {
		return err
	}

	result, err := pool.ExecContext(ctx, pool.Rebind("DELETE FROM tutorials WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete tutorial %d: %w", id, err)
	}
	return expectAffected(result, id)
}

func expectAffected(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("tutorial %d: %w", id, ErrNotFound)
	}
	return nil
}
