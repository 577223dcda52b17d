package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"filmstrip/internal/queue"
	"filmstrip/internal/testsupport"
)

func TestOpenInitializesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item, err := store.NewUpload(ctx, "sunset.jpg", "/staging/sunset.jpg", "image/jpeg", 2048)
	if err != nil {
		t.Fatalf("NewUpload failed: %v", err)
	}
	if item.ID == 0 {
		t.Fatal("expected item ID to be assigned")
	}
	if item.Token == "" {
		t.Fatal("expected token to be assigned")
	}
	if item.Status != queue.StatusUploaded {
		t.Fatalf("expected status uploaded, got %s", item.Status)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Filename != "sunset.jpg" {
		t.Fatalf("unexpected fetched item: %#v", fetched)
	}

	byToken, err := store.GetByToken(ctx, item.Token)
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}
	if byToken == nil || byToken.ID != item.ID {
		t.Fatalf("expected to find inserted item, got %#v", byToken)
	}
}

func TestGetByTokenMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	item, err := store.GetByToken(context.Background(), "no-such-token")
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil for unknown token, got %#v", item)
	}
}

func TestReleaseMovesUploadedToPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewUpload(t, store, "beach.png")

	released, changed, err := store.Release(ctx, item.Token)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if !changed {
		t.Fatal("expected release to transition the item")
	}
	if released.Status != queue.StatusPending {
		t.Fatalf("expected status pending, got %s", released.Status)
	}

	// Repeated process requests from a reconnecting browser are no-ops.
	again, changed, err := store.Release(ctx, item.Token)
	if err != nil {
		t.Fatalf("second Release failed: %v", err)
	}
	if changed {
		t.Fatal("expected second release to be a no-op")
	}
	if again.Status != queue.StatusPending {
		t.Fatalf("expected status to remain pending, got %s", again.Status)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	cases := []struct {
		name          string
		initialStatus queue.Status
		expected      queue.Status
	}{
		{"inspecting", queue.StatusInspecting, queue.StatusPending},
		{"rendering", queue.StatusRendering, queue.StatusInspected},
		{"publishing", queue.StatusPublishing, queue.StatusRendered},
	}
	var ids []int64
	for i, tc := range cases {
		item := testsupport.NewUpload(t, store, fmt.Sprintf("img-%d.jpg", i))
		item.Status = tc.initialStatus
		item.ProgressStage = tc.name
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		ids = append(ids, item.ID)
	}

	count, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if int(count) != len(cases) {
		t.Fatalf("expected %d items reset, got %d", len(cases), count)
	}

	for idx, tc := range cases {
		updated, err := store.GetByID(ctx, ids[idx])
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if updated.Status != tc.expected {
			t.Fatalf("%s: expected status %s, got %s", tc.name, tc.expected, updated.Status)
		}
		if updated.LastHeartbeat != nil {
			t.Fatalf("%s: expected heartbeat cleared", tc.name)
		}
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	stale := testsupport.NewUpload(t, store, "stale.jpg")
	stale.Status = queue.StatusRendering
	old := time.Now().UTC().Add(-time.Hour)
	stale.LastHeartbeat = &old
	if err := store.Update(ctx, stale); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fresh := testsupport.NewUpload(t, store, "fresh.jpg")
	fresh.Status = queue.StatusRendering
	now := time.Now().UTC()
	fresh.LastHeartbeat = &now
	if err := store.Update(ctx, fresh); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	count, err := store.ReclaimStaleProcessing(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 item reclaimed, got %d", count)
	}

	updated, err := store.GetByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusInspected {
		t.Fatalf("expected stale item rolled back to inspected, got %s", updated.Status)
	}

	untouched, err := store.GetByID(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if untouched.Status != queue.StatusRendering {
		t.Fatalf("expected fresh item untouched, got %s", untouched.Status)
	}
}

func TestRetryFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	failed := testsupport.NewUpload(t, store, "broken.jpg")
	failed.SetFailed("render exploded")
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	count, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 item retried, got %d", count)
	}

	updated, err := store.GetByID(ctx, failed.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusPending {
		t.Fatalf("expected status pending, got %s", updated.Status)
	}
	if updated.ErrorMessage != "" {
		t.Fatalf("expected error cleared, got %q", updated.ErrorMessage)
	}
}

func TestNextForStatusesOrdering(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first := testsupport.NewUpload(t, store, "first.jpg")
	second := testsupport.NewUpload(t, store, "second.jpg")

	for _, item := range []*queue.Item{first, second} {
		if _, changed, err := store.Release(ctx, item.Token); err != nil || !changed {
			t.Fatalf("Release failed: changed=%v err=%v", changed, err)
		}
	}

	next, err := store.NextForStatuses(ctx, queue.StatusPending)
	if err != nil {
		t.Fatalf("NextForStatuses failed: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest pending item first, got %#v", next)
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewUpload(t, store, "a.jpg")

	done := testsupport.NewUpload(t, store, "b.jpg")
	done.Status = queue.StatusCompleted
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	busy := testsupport.NewUpload(t, store, "c.jpg")
	busy.Status = queue.StatusRendering
	if err := store.Update(ctx, busy); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 || health.Uploaded != 1 || health.Completed != 1 || health.Processing != 1 {
		t.Fatalf("unexpected health summary: %#v", health)
	}
}

func TestClearCompleted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	keep := testsupport.NewUpload(t, store, "keep.jpg")

	done := testsupport.NewUpload(t, store, "done.jpg")
	done.Status = queue.StatusCompleted
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	count, err := store.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("ClearCompleted failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 item cleared, got %d", count)
	}

	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != keep.ID {
		t.Fatalf("unexpected remaining items: %#v", remaining)
	}
}

func TestUpdateProgressPersistsFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewUpload(t, store, "progress.jpg")

	if err := store.UpdateProgress(ctx, item.ID, "Rendering", "Encoding frames", 42.5); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	updated, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.ProgressStage != "Rendering" || updated.ProgressPercent != 42.5 {
		t.Fatalf("progress not persisted: %#v", updated)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := queue.ParseStatus("  Rendering "); !ok || status != queue.StatusRendering {
		t.Fatalf("ParseStatus failed: %v %v", status, ok)
	}
	if _, ok := queue.ParseStatus("bogus"); ok {
		t.Fatal("expected bogus status to be rejected")
	}
}
