package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewUpload inserts a staged upload awaiting a process request. The item is
// assigned a fresh token that the browser uses to address it over the socket.
func (s *Store) NewUpload(ctx context.Context, filename, stagedPath, contentType string, sizeBytes int64) (*Item, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	token := uuid.NewString()

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO render_items (
            token, filename, staged_path, content_type, size_bytes, status,
            progress_percent, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token,
		filename,
		nullableString(stagedPath),
		nullableString(contentType),
		sizeBytes,
		StatusUploaded,
		0.0,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert upload: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a render item by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM render_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetByToken fetches a render item by its upload token.
func (s *Store) GetByToken(ctx context.Context, token string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM render_items WHERE token = ?`, token)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by token: %w", err)
	}
	return item, nil
}

// Update persists changes to an existing render item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE render_items
         SET filename = ?, staged_path = ?, content_type = ?, size_bytes = ?,
             width = ?, height = ?, status = ?, progress_stage = ?,
             progress_percent = ?, progress_message = ?, rendered_file = ?,
             final_file = ?, video_url = ?, error_message = ?, updated_at = ?,
             last_heartbeat = ?
         WHERE id = ?`,
		item.Filename,
		nullableString(item.StagedPath),
		nullableString(item.ContentType),
		item.SizeBytes,
		item.Width,
		item.Height,
		item.Status,
		nullableString(item.ProgressStage),
		item.ProgressPercent,
		nullableString(item.ProgressMessage),
		nullableString(item.RenderedFile),
		nullableString(item.FinalFile),
		nullableString(item.VideoURL),
		nullableString(item.ErrorMessage),
		item.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(item.LastHeartbeat),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// UpdateProgress persists only the progress fields for an in-flight item.
// Render progress arrives frequently, so this avoids rewriting the full row.
func (s *Store) UpdateProgress(ctx context.Context, id int64, stage, message string, percent float64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE render_items
         SET progress_stage = ?, progress_message = ?, progress_percent = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(stage),
		nullableString(message),
		percent,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// Release moves an uploaded item into the pending state so the workflow
// manager can pick it up. It returns false when the item was not in the
// uploaded state, which makes release idempotent for repeated process
// requests from a reconnecting browser.
func (s *Store) Release(ctx context.Context, token string) (*Item, bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE render_items SET status = ?, updated_at = ? WHERE token = ? AND status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		token,
		StatusUploaded,
	)
	if err != nil {
		return nil, false, fmt.Errorf("release item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	item, err := s.GetByToken(ctx, token)
	if err != nil {
		return nil, false, err
	}
	return item, affected > 0, nil
}

// ItemsByStatus returns items matching a status ordered by creation time.
func (s *Store) ItemsByStatus(ctx context.Context, status Status) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM render_items WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// List returns render items filtered by status set (or all items when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM render_items`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list render items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// NextForStatuses returns the oldest item matching any of the provided statuses.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Item, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	query := `SELECT ` + itemColumns + ` FROM render_items WHERE status IN (` + placeholders + `) ORDER BY created_at LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, args...)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Remove deletes an item by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM render_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
