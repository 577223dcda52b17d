package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"filmstrip/internal/queue"
	"filmstrip/internal/testsupport"
)

func TestInboxMonitorIngestsDroppedFiles(t *testing.T) {
	d, store, cfg := newDaemon(t, testsupport.WithInbox())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	dropped := filepath.Join(cfg.Inbox.Dir, "beach.jpg")
	testsupport.WriteFile(t, dropped, 2048)

	// Inbox ingestion bypasses the browser release step, so the item should
	// move into (or past) the processing pipeline on its own.
	var item *queue.Item
	deadline := time.Now().Add(30 * time.Second)
	for {
		items, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(items) > 0 && items[0].Status != queue.StatusUploaded {
			item = items[0]
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("inbox file was never ingested")
		}
		time.Sleep(25 * time.Millisecond)
	}

	if item.Filename != "beach.jpg" {
		t.Fatalf("Filename = %q", item.Filename)
	}

	// Source file is consumed once staged.
	for {
		if _, err := os.Stat(dropped); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("dropped file was not removed after ingestion")
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestInboxMonitorIgnoresUnsupportedFiles(t *testing.T) {
	d, store, cfg := newDaemon(t, testsupport.WithInbox())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	dropped := filepath.Join(cfg.Inbox.Dir, "readme.txt")
	testsupport.WriteFile(t, dropped, 64)

	time.Sleep(1200 * time.Millisecond)
	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("Items = %v, want none", items)
	}
	if _, err := os.Stat(dropped); err != nil {
		t.Fatalf("expected unsupported file to be left in place: %v", err)
	}
}
