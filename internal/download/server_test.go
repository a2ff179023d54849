package download

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const body = ",filename,FrameCnt\n0,A.SRT,1\n"

func serve(t *testing.T, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/export", nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	require.NoError(t, NewServer(nil).ServeFile(rec, req, path))
	return rec
}

func writeExport(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestServeFile_Full(t *testing.T) {
	rec := serve(t, writeExport(t, body), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=data.csv", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "29", rec.Header().Get("Content-Length"))
}

func TestServeFile_Range(t *testing.T) {
	rec := serve(t, writeExport(t, body), http.Header{"Range": {"bytes=0-8"}})

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, ",filename", rec.Body.String())
	assert.Equal(t, "bytes 0-8/29", rec.Header().Get("Content-Range"))
	assert.Equal(t, "9", rec.Header().Get("Content-Length"))
}

func TestServeFile_Unsatisfiable(t *testing.T) {
	rec := serve(t, writeExport(t, body), http.Header{"Range": {"bytes=100-"}})

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */29", rec.Header().Get("Content-Range"))
}

func TestServeFile_MalformedRangeServesAll(t *testing.T) {
	rec := serve(t, writeExport(t, body), http.Header{"Range": {"rows=1-2"}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, rec.Body.String())
}

func TestServeFile_EmptyFileIgnoresRange(t *testing.T) {
	rec := serve(t, writeExport(t, ""), http.Header{"Range": {"bytes=0-10"}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("Content-Length"))
}

func TestServeFile_NotFound(t *testing.T) {
	rec := serve(t, filepath.Join(t.TempDir(), "data.csv"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, t.TempDir(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeFile_Head(t *testing.T) {
	req := httptest.NewRequest(http.MethodHead, "/export", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, NewServer(nil).ServeFile(rec, req, writeExport(t, body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "29", rec.Header().Get("Content-Length"))
}
