package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source is a registered folder of subtitle logs.
type Source struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Path        string    `json:"path"`
	DisplayName string    `json:"display_name"`
	Present     bool      `json:"present"`
	CreatedAt   time.Time `json:"created_at"`
}

const SourceTypeFolder = "folder"

// LogFile is the outcome of converting one discovered log in a job.
type LogFile struct {
	ID          string    `json:"id"`
	JobID       string    `json:"job_id"`
	SourceID    string    `json:"source_id,omitempty"`
	Seq         int       `json:"seq"`
	Path        string    `json:"path"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	Mtime       time.Time `json:"mtime"`
	Fingerprint string    `json:"fingerprint"`
	Rows        int       `json:"rows"`
	Status      string    `json:"status"`
	ErrorCode   string    `json:"error_code,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	FileStatusConverted = "converted"
	FileStatusFailed    = "failed"
	FileStatusSkipped   = "skipped"
)

const (
	JobTypeConvert = "convert"

	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

type Job struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	SourceID  string    `json:"source_id,omitempty"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func NewID() string {
	return uuid.NewString()
}

// HasLogExt reports whether name ends with ext. Case folding only applies
// when caseSensitive is false.
func HasLogExt(name, ext string, caseSensitive bool) bool {
	if ext == "" || len(name) < len(ext) {
		return false
	}
	suffix := name[len(name)-len(ext):]
	if caseSensitive {
		return suffix == ext
	}
	return strings.EqualFold(suffix, ext)
}
