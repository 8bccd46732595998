package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// allowedUploadTypes maps accepted sniffed MIME types to stored extensions.
var allowedUploadTypes = map[string]string{
	"application/pdf": ".pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"text/plain": ".txt",
}

// saveUpload stores a multipart file field under the upload directory. The
// content type is sniffed from the bytes, never trusted from the client.
// Returns the client's file name and the stored path.
func (s *Server) saveUpload(r *http.Request, field string) (string, string, error) {
	maxBytes := s.Cfg.MaxUploadMB << 20
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return "", "", fmt.Errorf("%w: multipart body too large or malformed", domain.ErrValidation)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", "", fmt.Errorf("%w: missing file field %q", domain.ErrValidation, field)
	}
	defer file.Close()

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return "", "", fmt.Errorf("op=upload.sniff: %w", err)
	}
	ext := ""
	for allowed, e := range allowedUploadTypes {
		if mtype.Is(allowed) {
			ext = e
			break
		}
	}
	if ext == "" {
		return "", "", fmt.Errorf("%w: unsupported file type %s, expected pdf, docx or txt", domain.ErrValidation, mtype.String())
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", "", fmt.Errorf("op=upload.rewind: %w", err)
	}

	if err := os.MkdirAll(s.Cfg.UploadDir, 0o750); err != nil {
		return "", "", fmt.Errorf("op=upload.mkdir: %w", err)
	}
	path := filepath.Join(s.Cfg.UploadDir, uuid.NewString()+ext)
	dst, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("op=upload.create: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(file, maxBytes)); err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("op=upload.copy: %w", err)
	}
	return header.Filename, path, nil
}
