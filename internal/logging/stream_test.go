package logging

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestStreamHubPublishAndFetch(t *testing.T) {
	hub := NewStreamHub(8)
	for i := 0; i < 3; i++ {
		hub.Publish(LogEvent{Message: fmt.Sprintf("event-%d", i)})
	}

	events, next, err := hub.Fetch(context.Background(), 0, 10, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if next != 3 {
		t.Fatalf("expected cursor 3, got %d", next)
	}
	if events[0].Sequence != 1 || events[2].Sequence != 3 {
		t.Fatalf("unexpected sequence numbers: %d..%d", events[0].Sequence, events[2].Sequence)
	}
}

func TestStreamHubDropsOldestAtCapacity(t *testing.T) {
	hub := NewStreamHub(2)
	hub.Publish(LogEvent{Message: "one"})
	hub.Publish(LogEvent{Message: "two"})
	hub.Publish(LogEvent{Message: "three"})

	if first := hub.FirstSequence(); first != 2 {
		t.Fatalf("expected first buffered sequence 2, got %d", first)
	}
	events, _, _ := hub.Fetch(context.Background(), 0, 10, false)
	if len(events) != 2 || events[0].Message != "two" {
		t.Fatalf("unexpected buffer contents: %#v", events)
	}
}

func TestStreamHubFetchWaitsForPublish(t *testing.T) {
	hub := NewStreamHub(8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		events, _, err := hub.Fetch(context.Background(), 0, 10, true)
		if err != nil {
			t.Errorf("Fetch failed: %v", err)
			return
		}
		if len(events) != 1 || events[0].Message != "wake" {
			t.Errorf("unexpected events: %#v", events)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Publish(LogEvent{Message: "wake"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake on publish")
	}
}

func TestStreamHubFetchHonorsContextCancel(t *testing.T) {
	hub := NewStreamHub(8)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := hub.Fetch(ctx, 0, 10, true)
	if err == nil {
		t.Fatal("expected context error from blocked fetch")
	}
}

func TestStreamHubTail(t *testing.T) {
	hub := NewStreamHub(8)
	for i := 0; i < 5; i++ {
		hub.Publish(LogEvent{Message: fmt.Sprintf("event-%d", i)})
	}
	events, cursor := hub.Tail(2)
	if len(events) != 2 || events[0].Message != "event-3" {
		t.Fatalf("unexpected tail: %#v", events)
	}
	if cursor != 5 {
		t.Fatalf("expected cursor 5, got %d", cursor)
	}
}

func TestStreamHandlerCapturesKnownFields(t *testing.T) {
	hub := NewStreamHub(8)
	logger, err := New(Options{Level: "debug", Format: "console", OutputPaths: []string{"stdout"}, StreamHub: hub})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.With(String(FieldComponent, "render")).Info(
		"progress",
		Int64(FieldItemID, 42),
		String(FieldStage, "Rendering"),
		String("percent", "50"),
	)

	events, _ := hub.Tail(1)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.Component != "render" || evt.ItemID != 42 || evt.Stage != "Rendering" {
		t.Fatalf("known fields not promoted: %#v", evt)
	}
	if evt.Fields["percent"] != "50" {
		t.Fatalf("extra field not captured: %#v", evt.Fields)
	}
}
