// Package download serves exported CSV files over HTTP with byte-range support.
package download

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dronetrace/dronetrace/internal/logging"
)

const csvContentType = "text/csv; charset=utf-8"

type FileServer interface {
	ServeFile(w http.ResponseWriter, r *http.Request, path string) error
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{logger: logging.WithComponent(logger, "download")}
}

func contentType(path string) string {
	ext := filepath.Ext(path)
	if ext == ".csv" {
		return csvContentType
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ServeFile writes path as an attachment. A missing file is answered with 404
// and a nil error; returned errors mean nothing useful was written yet.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "export not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat export: %w", err)
	}
	if stat.IsDir() {
		http.Error(w, "export not found", http.StatusNotFound)
		return nil
	}
	size := stat.Size()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType(path))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filepath.Base(path)}))
	h.Set("Last-Modified", stat.ModTime().UTC().Format(http.TimeFormat))

	var rng *Range
	if size > 0 {
		rng, err = ParseRange(r.Header.Get("Range"), size)
	}
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		// Malformed ranges are ignored and the full body is sent.
		s.logger.Debug("ignoring malformed range", "range", r.Header.Get("Range"))
		rng = nil
	}

	start := time.Now()
	if rng == nil {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			s.copy(w, f, size, path, start)
		}
		return nil
	}

	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		return fmt.Errorf("seek export: %w", err)
	}
	h.Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	h.Set("Content-Range", rng.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method != http.MethodHead {
		s.copy(w, f, rng.Length(), path, start)
	}
	return nil
}

func (s *Server) copy(w io.Writer, f io.Reader, n int64, path string, start time.Time) {
	written, err := io.CopyN(w, f, n)
	if err != nil {
		logging.WithFile(s.logger, path).Warn("export download interrupted",
			"written", written, "want", n, "error", err)
		return
	}
	logging.WithFile(s.logger, path).Debug("export served", "bytes", written, "duration_ms", time.Since(start).Milliseconds())
}
