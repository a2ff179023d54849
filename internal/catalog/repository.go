package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dronetrace/dronetrace/internal/telemetry"
)

// Repository persists sources, jobs, per-job file outcomes and flight summaries.
// Lookups of a single row return (nil, nil) when the row does not exist.
type Repository interface {
	CreateSource(ctx context.Context, source *Source) error
	GetSource(ctx context.Context, id string) (*Source, error)
	GetSourceByPath(ctx context.Context, path string) (*Source, error)
	ListSources(ctx context.Context) ([]*Source, error)
	DeleteSource(ctx context.Context, id string) error
	UpdateSourcePresent(ctx context.Context, id string, present bool) error

	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error

	ReplaceLogFiles(ctx context.Context, jobID string, files []*LogFile) error
	ListLogFiles(ctx context.Context, jobID string) ([]*LogFile, error)

	ReplaceFlights(ctx context.Context, sourceID, jobID string, flights []telemetry.FlightSummary) error
	ListFlights(ctx context.Context, sourceID string) ([]telemetry.FlightSummary, error)
	CountFlights(ctx context.Context) (int, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// timeLayout has fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sourceColumns = `id, type, path, display_name, present, created_at`

func (r *SQLiteRepository) CreateSource(ctx context.Context, s *Source) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sources (`+sourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.Type, s.Path, s.DisplayName, boolToInt(s.Present), s.CreatedAt.UTC().Format(timeLayout))
	return err
}

func (r *SQLiteRepository) GetSource(ctx context.Context, id string) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	return nilIfNoRows(scanSource(row))
}

func (r *SQLiteRepository) GetSourceByPath(ctx context.Context, path string) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE path = ?`, path)
	return nilIfNoRows(scanSource(row))
}

func (r *SQLiteRepository) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY created_at DESC, path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *SQLiteRepository) DeleteSource(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) UpdateSourcePresent(ctx context.Context, id string, present bool) error {
	_, err := r.db.ExecContext(ctx, "UPDATE sources SET present = ? WHERE id = ?", boolToInt(present), id)
	return err
}

const jobColumns = `id, type, status, source_id, progress, error, created_at, updated_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Type, j.Status, nullString(j.SourceID), j.Progress, nullString(j.Error),
		j.CreatedAt.UTC().Format(timeLayout), j.UpdatedAt.UTC().Format(timeLayout))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return nilIfNoRows(scanJob(row))
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE status = 'pending' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), now(), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?
	`, progress, now(), id)
	return err
}

const logFileColumns = `id, job_id, source_id, seq, path, filename, size, mtime, fingerprint, row_count, status, error_code, error, created_at`

// ReplaceLogFiles swaps the file outcomes recorded for jobID in one transaction.
func (r *SQLiteRepository) ReplaceLogFiles(ctx context.Context, jobID string, files []*LogFile) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM log_files WHERE job_id = ?", jobID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO log_files (`+logFileColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, f := range files {
			if f.ID == "" {
				f.ID = NewID()
			}
			f.JobID = jobID
			if f.CreatedAt.IsZero() {
				f.CreatedAt = time.Now()
			}
			if _, err := stmt.ExecContext(ctx,
				f.ID, jobID, nullString(f.SourceID), f.Seq, f.Path, f.Filename, f.Size,
				f.Mtime.UTC().Format(timeLayout), f.Fingerprint, f.Rows, f.Status,
				nullString(f.ErrorCode), nullString(f.Error), f.CreatedAt.UTC().Format(timeLayout),
			); err != nil {
				return fmt.Errorf("insert log file %s: %w", f.Filename, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) ListLogFiles(ctx context.Context, jobID string) ([]*LogFile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+logFileColumns+` FROM log_files WHERE job_id = ? ORDER BY seq
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*LogFile
	for rows.Next() {
		var f LogFile
		var sourceID, errCode, errMsg sql.NullString
		var mtime, createdAt string
		if err := rows.Scan(&f.ID, &f.JobID, &sourceID, &f.Seq, &f.Path, &f.Filename, &f.Size,
			&mtime, &f.Fingerprint, &f.Rows, &f.Status, &errCode, &errMsg, &createdAt); err != nil {
			return nil, err
		}
		f.SourceID = sourceID.String
		f.ErrorCode = errCode.String
		f.Error = errMsg.String
		f.Mtime = parseTime(mtime)
		f.CreatedAt = parseTime(createdAt)
		files = append(files, &f)
	}
	return files, rows.Err()
}

const flightColumns = `filename, date, time_init, time_end, duration_seconds,
	min_rel_alt, max_rel_alt, mean_rel_alt, first_rel_alt, last_rel_alt,
	min_abs_alt, max_abs_alt, mean_abs_alt, first_abs_alt, last_abs_alt`

// ReplaceFlights discards the summaries stored for sourceID and stores
// flights in their given order.
func (r *SQLiteRepository) ReplaceFlights(ctx context.Context, sourceID, jobID string, flights []telemetry.FlightSummary) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM flights WHERE source_id = ?", sourceID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO flights (source_id, job_id, seq, `+flightColumns+`, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		created := now()
		for i, f := range flights {
			if _, err := stmt.ExecContext(ctx, sourceID, jobID, i,
				f.Filename, f.Date, f.TimeInit, f.TimeEnd, f.DurationSeconds,
				nullFloat(f.RelAlt.Min), nullFloat(f.RelAlt.Max), nullFloat(f.RelAlt.Mean), nullFloat(f.RelAlt.First), nullFloat(f.RelAlt.Last),
				nullFloat(f.AbsAlt.Min), nullFloat(f.AbsAlt.Max), nullFloat(f.AbsAlt.Mean), nullFloat(f.AbsAlt.First), nullFloat(f.AbsAlt.Last),
				created,
			); err != nil {
				return fmt.Errorf("insert flight %s/%s: %w", f.Filename, f.Date, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) ListFlights(ctx context.Context, sourceID string) ([]telemetry.FlightSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+flightColumns+` FROM flights WHERE source_id = ? ORDER BY seq
	`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flights []telemetry.FlightSummary
	for rows.Next() {
		var f telemetry.FlightSummary
		var rel, abs [5]sql.NullFloat64
		if err := rows.Scan(&f.Filename, &f.Date, &f.TimeInit, &f.TimeEnd, &f.DurationSeconds,
			&rel[0], &rel[1], &rel[2], &rel[3], &rel[4],
			&abs[0], &abs[1], &abs[2], &abs[3], &abs[4]); err != nil {
			return nil, err
		}
		f.RelAlt = statsFromNull(rel)
		f.AbsAlt = statsFromNull(abs)
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

func (r *SQLiteRepository) CountFlights(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM flights").Scan(&count)
	return count, err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (*Source, error) {
	var s Source
	var present int
	var createdAt string
	if err := row.Scan(&s.ID, &s.Type, &s.Path, &s.DisplayName, &present, &createdAt); err != nil {
		return nil, err
	}
	s.Present = present == 1
	s.CreatedAt = parseTime(createdAt)
	return &s, nil
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var sourceID, errMsg sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&j.ID, &j.Type, &j.Status, &sourceID, &j.Progress, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.SourceID = sourceID.String
	j.Error = errMsg.String
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func nilIfNoRows[T any](v *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

// parseTime accepts RFC 3339 as well as SQLite's datetime('now') format.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f float64) sql.NullFloat64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func statsFromNull(v [5]sql.NullFloat64) telemetry.AltitudeStats {
	f := func(n sql.NullFloat64) float64 {
		if !n.Valid {
			return math.NaN()
		}
		return n.Float64
	}
	return telemetry.AltitudeStats{Min: f(v[0]), Max: f(v[1]), Mean: f(v[2]), First: f(v[3]), Last: f(v[4])}
}
