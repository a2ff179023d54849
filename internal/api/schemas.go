package api

import (
	"math"
	"time"

	"github.com/dronetrace/dronetrace/internal/catalog"
	"github.com/dronetrace/dronetrace/internal/telemetry"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State        string       `json:"state"`
	LastError    string       `json:"last_error,omitempty"`
	SourcesCount int          `json:"sources_count"`
	FlightsCount int          `json:"flights_count"`
	JobsRunning  int          `json:"jobs_running"`
	JobsPending  int          `json:"jobs_pending"`
	ActiveJob    *JobResponse `json:"active_job,omitempty"`
}

type AddFolderRequest struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name,omitempty"`
}

type AddFolderResponse struct {
	SourceID string `json:"source_id"`
}

type SourceResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
	Present     bool   `json:"present"`
	CreatedAt   string `json:"created_at"`
}

type SourcesResponse struct {
	Sources []SourceResponse `json:"sources"`
}

// ConvertRequest queues one source, or every source when SourceID is empty.
type ConvertRequest struct {
	SourceID string `json:"source_id,omitempty"`
}

type ConvertResponse struct {
	JobIDs []string `json:"job_ids"`
}

type JobResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	SourceID  string `json:"source_id,omitempty"`
	Progress  int    `json:"progress"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type LogFileResponse struct {
	Seq         int    `json:"seq"`
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	Fingerprint string `json:"fingerprint"`
	Rows        int    `json:"rows"`
	Status      string `json:"status"`
	ErrorCode   string `json:"error_code,omitempty"`
	Error       string `json:"error,omitempty"`
}

type LogFilesResponse struct {
	Files []LogFileResponse `json:"files"`
}

// AltitudeResponse uses pointers so that missing statistics encode as null.
type AltitudeResponse struct {
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Mean  *float64 `json:"mean"`
	First *float64 `json:"first"`
	Last  *float64 `json:"last"`
}

type FlightResponse struct {
	Filename        string           `json:"filename"`
	Date            string           `json:"date"`
	TimeInit        string           `json:"time_init"`
	TimeEnd         string           `json:"time_end"`
	DurationSeconds float64          `json:"duration_seconds"`
	RelAlt          AltitudeResponse `json:"rel_alt"`
	AbsAlt          AltitudeResponse `json:"abs_alt"`
}

type FlightsResponse struct {
	Flights []FlightResponse `json:"flights"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func SourceToResponse(s *catalog.Source) SourceResponse {
	return SourceResponse{
		ID:          s.ID,
		Type:        s.Type,
		Path:        s.Path,
		DisplayName: s.DisplayName,
		Present:     s.Present,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
	}
}

func JobToResponse(j *catalog.Job) JobResponse {
	return JobResponse{
		ID:        j.ID,
		Type:      j.Type,
		Status:    j.Status,
		SourceID:  j.SourceID,
		Progress:  j.Progress,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}

func LogFileToResponse(f *catalog.LogFile) LogFileResponse {
	return LogFileResponse{
		Seq:         f.Seq,
		Path:        f.Path,
		Filename:    f.Filename,
		Size:        f.Size,
		Fingerprint: f.Fingerprint,
		Rows:        f.Rows,
		Status:      f.Status,
		ErrorCode:   f.ErrorCode,
		Error:       f.Error,
	}
}

func optional(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func altitudeToResponse(a telemetry.AltitudeStats) AltitudeResponse {
	return AltitudeResponse{
		Min:   optional(a.Min),
		Max:   optional(a.Max),
		Mean:  optional(a.Mean),
		First: optional(a.First),
		Last:  optional(a.Last),
	}
}

func FlightToResponse(f telemetry.FlightSummary) FlightResponse {
	return FlightResponse{
		Filename:        f.Filename,
		Date:            f.Date,
		TimeInit:        f.TimeInit,
		TimeEnd:         f.TimeEnd,
		DurationSeconds: f.DurationSeconds,
		RelAlt:          altitudeToResponse(f.RelAlt),
		AbsAlt:          altitudeToResponse(f.AbsAlt),
	}
}
