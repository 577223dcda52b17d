package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, token, filename, staged_path, content_type, size_bytes, width, height, status, progress_stage, progress_percent, progress_message, rendered_file, final_file, video_url, error_message, created_at, updated_at, last_heartbeat"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id               int64
		token            string
		filename         string
		stagedPath       sql.NullString
		contentType      sql.NullString
		sizeBytes        sql.NullInt64
		width            sql.NullInt64
		height           sql.NullInt64
		statusStr        string
		progressStage    sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		renderedFile     sql.NullString
		finalFile        sql.NullString
		videoURL         sql.NullString
		errorMessage     sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&token,
		&filename,
		&stagedPath,
		&contentType,
		&sizeBytes,
		&width,
		&height,
		&statusStr,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&renderedFile,
		&finalFile,
		&videoURL,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		Token:           token,
		Filename:        filename,
		StagedPath:      stagedPath.String,
		ContentType:     contentType.String,
		SizeBytes:       sizeBytes.Int64,
		Width:           int(width.Int64),
		Height:          int(height.Int64),
		Status:          Status(statusStr),
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		RenderedFile:    renderedFile.String,
		FinalFile:       finalFile.String,
		VideoURL:        videoURL.String,
		ErrorMessage:    errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			item.LastHeartbeat = &heartbeat
		}
	}
	return item, nil
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
