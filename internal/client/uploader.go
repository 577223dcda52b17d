package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filmstrip/internal/api"
	"filmstrip/internal/logging"
)

// uploadFieldName is the multipart form field the daemon reads files from.
const uploadFieldName = "images"

// Uploader POSTs image files to the daemon and hands back the tokens that
// track their renders.
type Uploader struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewUploader builds an uploader for the daemon at baseURL, e.g.
// "http://127.0.0.1:7474".
func NewUploader(baseURL string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Uploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  logging.NewComponentLogger(logger, "uploader"),
	}
}

// Upload submits the given files as one multipart request and returns the
// daemon's accept/reject verdict per file.
func (u *Uploader) Upload(ctx context.Context, paths []string) (api.UploadResponse, error) {
	if len(paths) == 0 {
		return api.UploadResponse{}, fmt.Errorf("no files to upload")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, path := range paths {
		if err := appendFile(writer, path); err != nil {
			return api.UploadResponse{}, err
		}
	}
	if err := writer.Close(); err != nil {
		return api.UploadResponse{}, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/api/upload", body)
	if err != nil {
		return api.UploadResponse{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return api.UploadResponse{}, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return api.UploadResponse{}, fmt.Errorf("upload rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result api.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return api.UploadResponse{}, fmt.Errorf("decode upload response: %w", err)
	}

	u.logger.Info("upload finished",
		logging.Int("accepted", len(result.Accepted)),
		logging.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

func appendFile(writer *multipart.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile(uploadFieldName, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create form part for %s: %w", path, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy %s into request: %w", path, err)
	}
	return nil
}
