package daemon

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"filmstrip/internal/api"
	"filmstrip/internal/logging"
)

// uploadFieldName is the multipart form field the browser app uses for files.
const uploadFieldName = "images"

// maxUploadFiles caps how many files a single request may carry.
const maxUploadFiles = 32

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	perFile := s.daemon.cfg.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, perFile*maxUploadFiles+1<<20)

	reader, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "expected multipart/form-data")
		return
	}

	resp := api.UploadResponse{
		Accepted: []api.AcceptedUpload{},
		Rejected: []api.RejectedUpload{},
	}
	seen := 0

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed multipart body")
			return
		}
		if part.FormName() != uploadFieldName {
			_ = part.Close()
			continue
		}

		filename := filepath.Base(strings.TrimSpace(part.FileName()))
		if filename == "" || filename == "." || filename == string(filepath.Separator) {
			resp.Rejected = append(resp.Rejected, api.RejectedUpload{Filename: part.FileName(), Reason: "missing filename"})
			_ = part.Close()
			continue
		}

		seen++
		if seen > maxUploadFiles {
			resp.Rejected = append(resp.Rejected, api.RejectedUpload{Filename: filename, Reason: "too many files in one request"})
			_ = part.Close()
			continue
		}

		ext := strings.ToLower(filepath.Ext(filename))
		if !s.daemon.cfg.ExtensionAllowed(ext) {
			resp.Rejected = append(resp.Rejected, api.RejectedUpload{Filename: filename, Reason: fmt.Sprintf("unsupported file extension %q", ext)})
			_ = part.Close()
			continue
		}

		contentType := part.Header.Get("Content-Type")
		size, stagedPath, err := s.stagePart(part, filename, perFile)
		_ = part.Close()
		if err != nil {
			resp.Rejected = append(resp.Rejected, api.RejectedUpload{Filename: filename, Reason: err.Error()})
			continue
		}

		item, err := s.daemon.store.NewUpload(r.Context(), filename, stagedPath, contentType, size)
		if err != nil {
			_ = os.Remove(stagedPath)
			s.log().Error("failed to enqueue upload", logging.String("filename", filename), logging.Error(err))
			resp.Rejected = append(resp.Rejected, api.RejectedUpload{Filename: filename, Reason: "failed to store upload"})
			continue
		}

		resp.Accepted = append(resp.Accepted, api.AcceptedUpload{Token: item.Token, Filename: item.Filename})
		s.log().Info("upload staged",
			logging.Int64("item_id", item.ID),
			logging.String("token", item.Token),
			logging.String("filename", item.Filename),
			logging.Int64("size_bytes", size))
		if err := s.daemon.notifier.NotifyUploadReceived(r.Context(), item.Filename); err != nil {
			s.log().Warn("upload notification failed", logging.Error(err))
		}
	}

	if seen == 0 && len(resp.Rejected) == 0 {
		s.writeError(w, http.StatusBadRequest, "no files in request")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// stagePart copies one multipart file into the staging area, enforcing the
// per-file size cap and rejecting empty uploads.
func (s *apiServer) stagePart(part io.Reader, filename string, limit int64) (int64, string, error) {
	dst, err := createIncoming(s.daemon.cfg, filename)
	if err != nil {
		return 0, "", errors.New("failed to stage upload")
	}
	stagedPath := dst.Name()

	written, err := io.Copy(dst, io.LimitReader(part, limit+1))
	closeErr := dst.Close()
	if err != nil || closeErr != nil {
		_ = os.Remove(stagedPath)
		return 0, "", errors.New("failed to stage upload")
	}
	if written == 0 {
		_ = os.Remove(stagedPath)
		return 0, "", errors.New("empty file")
	}
	if written > limit {
		_ = os.Remove(stagedPath)
		return 0, "", fmt.Errorf("file exceeds %d MiB limit", s.daemon.cfg.Upload.MaxFileMiB)
	}
	return written, stagedPath, nil
}
