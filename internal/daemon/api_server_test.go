package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filmstrip/internal/api"
	"filmstrip/internal/daemon"
	"filmstrip/internal/logging"
)

func startDaemon(t *testing.T) (*daemon.Daemon, string) {
	t.Helper()

	d, _, _ := newDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("expected api server address")
	}
	return d, "http://" + addr
}

func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, content := range files {
		part, err := writer.CreateFormFile("images", name)
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("part write failed: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer close failed: %v", err)
	}
	return body, writer.FormDataContentType()
}

func postUpload(t *testing.T, baseURL string, files map[string][]byte) (*http.Response, api.UploadResponse) {
	t.Helper()

	body, contentType := multipartBody(t, files)
	resp, err := http.Post(baseURL+"/api/upload", contentType, body)
	if err != nil {
		t.Fatalf("POST /api/upload failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded api.UploadResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode upload response: %v", err)
		}
	}
	return resp, decoded
}

func TestAPIUploadAcceptsAndRejects(t *testing.T) {
	_, baseURL := startDaemon(t)

	resp, decoded := postUpload(t, baseURL, map[string][]byte{
		"vacation.jpg": bytes.Repeat([]byte{0x42}, 4096),
		"notes.txt":    []byte("not an image"),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(decoded.Accepted) != 1 {
		t.Fatalf("Accepted = %v, want one entry", decoded.Accepted)
	}
	if decoded.Accepted[0].Filename != "vacation.jpg" {
		t.Fatalf("accepted filename = %q", decoded.Accepted[0].Filename)
	}
	if decoded.Accepted[0].Token == "" {
		t.Fatal("expected accepted upload to carry a token")
	}
	if len(decoded.Rejected) != 1 {
		t.Fatalf("Rejected = %v, want one entry", decoded.Rejected)
	}
	if !strings.Contains(decoded.Rejected[0].Reason, "unsupported file extension") {
		t.Fatalf("rejected reason = %q", decoded.Rejected[0].Reason)
	}
}

func TestAPIUploadRejectsEmptyRequest(t *testing.T) {
	_, baseURL := startDaemon(t)

	resp, _ := postUpload(t, baseURL, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAPIUploadMethodNotAllowed(t *testing.T) {
	_, baseURL := startDaemon(t)

	resp, err := http.Get(baseURL + "/api/upload")
	if err != nil {
		t.Fatalf("GET /api/upload failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestAPIStatusAndQueue(t *testing.T) {
	_, baseURL := startDaemon(t)

	_, decoded := postUpload(t, baseURL, map[string][]byte{
		"portrait.png": bytes.Repeat([]byte{0x17}, 1024),
	})
	if len(decoded.Accepted) != 1 {
		t.Fatalf("Accepted = %v", decoded.Accepted)
	}

	resp, err := http.Get(baseURL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status failed: %v", err)
	}
	defer resp.Body.Close()
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running daemon")
	}
	if status.PID != os.Getpid() {
		t.Fatalf("PID = %d, want %d", status.PID, os.Getpid())
	}
	if !status.Workflow.Running {
		t.Fatal("expected running workflow")
	}

	listResp, err := http.Get(baseURL + "/api/queue?status=uploaded")
	if err != nil {
		t.Fatalf("GET /api/queue failed: %v", err)
	}
	defer listResp.Body.Close()
	var list api.QueueListResponse
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode queue list: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("Items = %v, want one entry", list.Items)
	}
	if list.Items[0].Token != decoded.Accepted[0].Token {
		t.Fatalf("queue token = %q, want %q", list.Items[0].Token, decoded.Accepted[0].Token)
	}
	if list.Items[0].Stage != "queued" {
		t.Fatalf("stageKey = %q, want queued", list.Items[0].Stage)
	}

	itemResp, err := http.Get(fmt.Sprintf("%s/api/queue/%d", baseURL, list.Items[0].ID))
	if err != nil {
		t.Fatalf("GET /api/queue/{id} failed: %v", err)
	}
	defer itemResp.Body.Close()
	var single api.QueueItemResponse
	if err := json.NewDecoder(itemResp.Body).Decode(&single); err != nil {
		t.Fatalf("decode queue item: %v", err)
	}
	if single.Item.Filename != "portrait.png" {
		t.Fatalf("item filename = %q", single.Item.Filename)
	}
}

func TestAPIQueueRejectsUnknownStatus(t *testing.T) {
	_, baseURL := startDaemon(t)

	resp, err := http.Get(baseURL + "/api/queue?status=bogus")
	if err != nil {
		t.Fatalf("GET /api/queue failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAPIServesBrowserApp(t *testing.T) {
	_, baseURL := startDaemon(t)

	resp, err := http.Get(baseURL + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	page, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Contains(page, []byte("Filmstrip")) {
		t.Fatal("expected index page content")
	}
}

func TestAPIServesPublishedVideos(t *testing.T) {
	d, _, cfg := newDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	baseURL := "http://" + d.APIAddr()

	// The library root backs /videos/ directly.
	videoPath := filepath.Join(cfg.Paths.LibraryDir, "sunset.mp4")
	if err := os.MkdirAll(filepath.Dir(videoPath), 0o755); err != nil {
		t.Fatalf("mkdir library: %v", err)
	}
	if err := os.WriteFile(videoPath, []byte("fake mp4 payload"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}

	resp, err := http.Get(baseURL + "/videos/sunset.mp4")
	if err != nil {
		t.Fatalf("GET /videos/sunset.mp4 failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(content) != "fake mp4 payload" {
		t.Fatalf("body = %q", content)
	}
}

func TestAPILogsTail(t *testing.T) {
	d, baseURL := startDaemon(t)

	stream := logging.NewStreamHub(64)
	d.SetLogStream(stream)
	stream.Publish(logging.LogEvent{
		Timestamp: time.Now().UTC(),
		Level:     "INFO",
		Message:   "render finished",
		Component: "renderer",
	})

	resp, err := http.Get(baseURL + "/api/logs?tail=1")
	if err != nil {
		t.Fatalf("GET /api/logs failed: %v", err)
	}
	defer resp.Body.Close()
	var logs api.LogStreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(logs.Events) != 1 {
		t.Fatalf("Events = %v, want one entry", logs.Events)
	}
	if logs.Events[0].Message != "render finished" {
		t.Fatalf("message = %q", logs.Events[0].Message)
	}
	if logs.Next == 0 {
		t.Fatal("expected a non-zero cursor")
	}
}

func TestAPIUploadEnforcesSizeLimit(t *testing.T) {
	d, _, cfg := newDaemon(t)
	cfg.Upload.MaxFileMiB = 1

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	baseURL := "http://" + d.APIAddr()

	resp, decoded := postUpload(t, baseURL, map[string][]byte{
		"huge.jpg": bytes.Repeat([]byte{0x01}, 1<<20+64),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(decoded.Accepted) != 0 {
		t.Fatalf("Accepted = %v, want none", decoded.Accepted)
	}
	if len(decoded.Rejected) != 1 || !strings.Contains(decoded.Rejected[0].Reason, "limit") {
		t.Fatalf("Rejected = %v", decoded.Rejected)
	}
}
