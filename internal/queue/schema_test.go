package queue_test

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"filmstrip/internal/queue"
)

func TestOpenRejectsForeignSchemaVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw database: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("stamp version: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close raw database: %v", err)
	}

	if _, err := queue.OpenAt(dbPath); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("OpenAt error = %v, want ErrSchemaMismatch", err)
	}
}
