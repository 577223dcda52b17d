package ws_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"filmstrip/internal/config"
	"filmstrip/internal/logging"
	"filmstrip/internal/queue"
	"filmstrip/internal/testsupport"
	"filmstrip/internal/ws"
)

func newHub(t *testing.T) (*ws.Hub, *queue.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := ws.NewHub(cfg, store, logging.NewNop())
	t.Cleanup(hub.Close)
	return hub, store, cfg
}

func dial(t *testing.T, hub *ws.Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) ws.Message {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var msg ws.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	return msg
}

func send(t *testing.T, conn *websocket.Conn, payload map[string]string) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
}

func TestHandshakeConfirmation(t *testing.T) {
	hub, _, _ := newHub(t)
	conn := dial(t, hub)

	msg := readMessage(t, conn)
	if msg.Type != ws.TypeConnection {
		t.Fatalf("first message type = %q, want %q", msg.Type, ws.TypeConnection)
	}
	if msg.Status != "connected" {
		t.Errorf("handshake status = %q, want connected", msg.Status)
	}
}

func TestProcessReleasesItem(t *testing.T) {
	hub, store, _ := newHub(t)
	item := testsupport.NewUpload(t, store, "beach.jpg")

	conn := dial(t, hub)
	readMessage(t, conn) // handshake

	send(t, conn, map[string]string{"type": "process", "token": item.Token})
	msg := readMessage(t, conn)
	if msg.Type != ws.TypeProgress {
		t.Fatalf("message type = %q, want %q", msg.Type, ws.TypeProgress)
	}
	if msg.Token != item.Token {
		t.Errorf("token = %q, want %q", msg.Token, item.Token)
	}

	updated, err := store.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusPending {
		t.Errorf("status = %s, want pending", updated.Status)
	}

	// A reconnecting browser resends process; it must stay a no-op.
	send(t, conn, map[string]string{"type": "process", "token": item.Token})
	again := readMessage(t, conn)
	if again.Type == ws.TypeError {
		t.Fatalf("repeat process returned error %q", again.Error)
	}
}

func TestProcessUnknownToken(t *testing.T) {
	hub, _, _ := newHub(t)
	conn := dial(t, hub)
	readMessage(t, conn)

	send(t, conn, map[string]string{"type": "process", "token": "no-such-token"})
	msg := readMessage(t, conn)
	if msg.Type != ws.TypeError {
		t.Fatalf("message type = %q, want error", msg.Type)
	}
}

func TestSubscribeReturnsSnapshot(t *testing.T) {
	hub, store, _ := newHub(t)
	item := testsupport.NewUpload(t, store, "sunset.png")
	item.Status = queue.StatusRendering
	item.ProgressStage = "Rendering"
	item.ProgressPercent = 42
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	conn := dial(t, hub)
	readMessage(t, conn)

	send(t, conn, map[string]string{"type": "subscribe", "token": item.Token})
	msg := readMessage(t, conn)
	if msg.Type != ws.TypeProgress {
		t.Fatalf("message type = %q, want progress", msg.Type)
	}
	if msg.Percent != 42 {
		t.Errorf("percent = %v, want 42", msg.Percent)
	}
	if msg.Stage != "Rendering" {
		t.Errorf("stage = %q, want Rendering", msg.Stage)
	}
}

func TestItemProgressBroadcast(t *testing.T) {
	hub, store, _ := newHub(t)
	item := testsupport.NewUpload(t, store, "beach.jpg")

	conn := dial(t, hub)
	readMessage(t, conn)
	send(t, conn, map[string]string{"type": "subscribe", "token": item.Token})
	readMessage(t, conn) // snapshot

	item.Status = queue.StatusCompleted
	item.ProgressStage = "Completed"
	item.ProgressPercent = 100
	item.VideoURL = "/videos/beach.mp4"
	hub.ItemProgress(item)

	msg := readMessage(t, conn)
	if msg.Type != ws.TypeComplete {
		t.Fatalf("message type = %q, want complete", msg.Type)
	}
	if msg.VideoURL != "/videos/beach.mp4" {
		t.Errorf("video_url = %q", msg.VideoURL)
	}
}

func TestItemProgressFiltersBySubscription(t *testing.T) {
	hub, store, _ := newHub(t)
	mine := testsupport.NewUpload(t, store, "mine.jpg")
	theirs := testsupport.NewUpload(t, store, "theirs.jpg")

	conn := dial(t, hub)
	readMessage(t, conn)
	send(t, conn, map[string]string{"type": "subscribe", "token": mine.Token})
	readMessage(t, conn)

	theirs.ProgressStage = "Rendering"
	hub.ItemProgress(theirs)
	mine.ProgressStage = "Inspecting"
	hub.ItemProgress(mine)

	msg := readMessage(t, conn)
	if msg.Token != mine.Token {
		t.Fatalf("received update for %q, want %q", msg.Token, mine.Token)
	}
}

func TestFailedItemBroadcastsError(t *testing.T) {
	hub, store, _ := newHub(t)
	item := testsupport.NewUpload(t, store, "broken.jpg")

	conn := dial(t, hub)
	readMessage(t, conn)

	item.SetFailed("ffmpeg not found")
	hub.ItemProgress(item)

	msg := readMessage(t, conn)
	if msg.Type != ws.TypeError {
		t.Fatalf("message type = %q, want error", msg.Type)
	}
	if msg.Error != "ffmpeg not found" {
		t.Errorf("error = %q", msg.Error)
	}
}

func TestPingGetsPong(t *testing.T) {
	hub, _, _ := newHub(t)
	conn := dial(t, hub)
	readMessage(t, conn)

	send(t, conn, map[string]string{"type": "ping"})
	msg := readMessage(t, conn)
	if msg.Type != ws.TypePong {
		t.Fatalf("message type = %q, want pong", msg.Type)
	}
}

func TestUnknownMessageTypeGetsError(t *testing.T) {
	hub, _, _ := newHub(t)
	conn := dial(t, hub)
	readMessage(t, conn)

	send(t, conn, map[string]string{"type": "bogus"})
	msg := readMessage(t, conn)
	if msg.Type != ws.TypeError {
		t.Fatalf("message type = %q, want error", msg.Type)
	}
	if !strings.Contains(msg.Error, "bogus") {
		t.Errorf("error = %q, want the offending type named", msg.Error)
	}

	// The session must survive the bad frame.
	send(t, conn, map[string]string{"type": "ping"})
	if msg := readMessage(t, conn); msg.Type != ws.TypePong {
		t.Fatalf("message type after bad frame = %q, want pong", msg.Type)
	}
}

func TestMalformedMessageGetsError(t *testing.T) {
	hub, _, _ := newHub(t)
	conn := dial(t, hub)
	readMessage(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	msg := readMessage(t, conn)
	if msg.Type != ws.TypeError {
		t.Fatalf("message type = %q, want error", msg.Type)
	}
}
