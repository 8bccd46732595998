package tika

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPath_SanitizesAndCollapses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		_, _ = w.Write([]byte("Senior\x00 Go   Engineer\n\n7 years"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "resume.txt")
	require.NoError(t, os.WriteFile(path, []byte("raw"), 0o600))

	c := New(srv.URL)
	out, err := c.ExtractPath(context.Background(), "resume.txt", path)
	require.NoError(t, err)
	assert.Equal(t, "Senior Go Engineer 7 years", out)
}

func TestExtractPath_RejectsOutsidePath(t *testing.T) {
	c := New("http://localhost:9998")
	_, err := c.ExtractPath(context.Background(), "passwd", "/etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disallowed path")
}

func TestExtractPath_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "resume.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	c := New(srv.URL)
	_, err := c.ExtractPath(context.Background(), "resume.pdf", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tika status 422")
}

func TestContentTypeFromExt(t *testing.T) {
	assert.Equal(t, "application/pdf", contentTypeFromExt(".pdf"))
	assert.Equal(t, "text/plain", contentTypeFromExt(".TXT"))
	assert.Empty(t, contentTypeFromExt(""))
}
