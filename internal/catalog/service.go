package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dronetrace/dronetrace/internal/export"
	"github.com/dronetrace/dronetrace/internal/logging"
	"github.com/dronetrace/dronetrace/internal/metrics"
	"github.com/dronetrace/dronetrace/internal/telemetry"
)

var (
	ErrSourceNotFound = errors.New("source not found")
	ErrNoLogs         = errors.New("no log files found")
	ErrAllFailed      = errors.New("no log file could be converted")
	ErrNotUTF8        = errors.New("log file is not valid UTF-8")
)

// CodeEncoding classifies ErrNotUTF8 alongside the telemetry codes.
const CodeEncoding = "encoding"

// FailurePolicy decides what a conversion does with a log file that fails.
type FailurePolicy string

const (
	// FailureAbort stops the run at the first failing file.
	FailureAbort FailurePolicy = "abort"
	// FailureSkip records the failure and continues with the next file.
	FailureSkip FailurePolicy = "skip"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FailureAbort, FailureSkip:
		return p, nil
	case "":
		return FailureAbort, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

type Options struct {
	Discover DiscoverOptions
	Policy   FailurePolicy
	// Progress receives one "Processing file: <name>" line per log. Nil disables it.
	Progress io.Writer
}

// Result is the outcome of converting one directory.
type Result struct {
	Dir       string                    `json:"dir"`
	Files     []*LogFile                `json:"files"`
	Corpus    *telemetry.Table          `json:"-"`
	Flights   []telemetry.FlightSummary `json:"flights"`
	Artifacts *export.Artifacts         `json:"artifacts,omitempty"`
	Elapsed   time.Duration             `json:"elapsed"`
}

// Count returns the number of files with the given status.
func (r *Result) Count(status string) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}

type CatalogService interface {
	AddFolder(ctx context.Context, path, displayName string) (*Source, error)
	RemoveSource(ctx context.Context, id string) error
	GetSources(ctx context.Context) ([]*Source, error)
	GetSource(ctx context.Context, id string) (*Source, error)
	ConvertSource(ctx context.Context, sourceID string) (*Job, error)
	ConvertAll(ctx context.Context) ([]*Job, error)
	GetJobFiles(ctx context.Context, jobID string) ([]*LogFile, error)
	GetFlights(ctx context.Context, sourceID string) ([]telemetry.FlightSummary, error)
	CountFlights(ctx context.Context) (int, error)
}

type Service struct {
	repo      Repository
	opts      Options
	publisher Publisher
	logger    *slog.Logger
}

func NewService(repo Repository, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Discover.Ext == "" {
		opts.Discover = DefaultDiscoverOptions()
	}
	if opts.Policy == "" {
		opts.Policy = FailureAbort
	}
	return &Service{repo: repo, opts: opts, logger: logging.WithComponent(logger, "catalog")}
}

// SetPublisher installs the exporter run after each successful job.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

func (s *Service) AddFolder(ctx context.Context, path, displayName string) (*Source, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absPath)
	}

	existing, err := s.repo.GetSourceByPath(ctx, absPath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if displayName == "" {
		displayName = filepath.Base(absPath)
	}

	source := &Source{
		ID:          NewID(),
		Type:        SourceTypeFolder,
		Path:        absPath,
		DisplayName: displayName,
		Present:     true,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.CreateSource(ctx, source); err != nil {
		return nil, err
	}

	s.logger.Info("folder added", "source_id", source.ID, "path", logging.SanitizePath(absPath))
	return source, nil
}

// RemoveSource deletes the source; its jobs, file outcomes and flights cascade.
func (s *Service) RemoveSource(ctx context.Context, id string) error {
	source, err := s.repo.GetSource(ctx, id)
	if err != nil {
		return err
	}
	if source == nil {
		return ErrSourceNotFound
	}
	return s.repo.DeleteSource(ctx, id)
}

func (s *Service) GetSources(ctx context.Context) ([]*Source, error) {
	return s.repo.ListSources(ctx)
}

func (s *Service) GetSource(ctx context.Context, id string) (*Source, error) {
	return s.repo.GetSource(ctx, id)
}

func (s *Service) GetJobFiles(ctx context.Context, jobID string) ([]*LogFile, error) {
	return s.repo.ListLogFiles(ctx, jobID)
}

func (s *Service) GetFlights(ctx context.Context, sourceID string) ([]telemetry.FlightSummary, error) {
	return s.repo.ListFlights(ctx, sourceID)
}

func (s *Service) CountFlights(ctx context.Context) (int, error) {
	return s.repo.CountFlights(ctx)
}

// ConvertSource queues a conversion job for the source.
func (s *Service) ConvertSource(ctx context.Context, sourceID string) (*Job, error) {
	source, err := s.repo.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, ErrSourceNotFound
	}
	return s.createJob(ctx, source.ID)
}

// ConvertAll queues a job for every source without a pending one.
func (s *Service) ConvertAll(ctx context.Context) ([]*Job, error) {
	sources, err := s.repo.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.repo.ListPendingJobs(ctx)
	if err != nil {
		return nil, err
	}
	queued := make(map[string]bool, len(pending))
	for _, j := range pending {
		queued[j.SourceID] = true
	}

	var jobs []*Job
	for _, src := range sources {
		if queued[src.ID] {
			continue
		}
		job, err := s.createJob(ctx, src.ID)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *Service) createJob(ctx context.Context, sourceID string) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:        NewID(),
		Type:      JobTypeConvert,
		Status:    JobStatusPending,
		SourceID:  sourceID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("convert job created", "job_id", job.ID, "source_id", sourceID)
	return job, nil
}

// ConvertFolder registers dir as a source and converts it immediately,
// recording the run as a job.
func (s *Service) ConvertFolder(ctx context.Context, dir string) (*Job, *Result, error) {
	source, err := s.AddFolder(ctx, dir, "")
	if err != nil {
		return nil, nil, err
	}
	job, err := s.createJob(ctx, source.ID)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.ExecuteConvert(ctx, job.ID, source)
	return job, res, err
}

// Convert discovers the logs of dir and converts them into a corpus and its
// flight summaries. Nothing is persisted.
func (s *Service) Convert(ctx context.Context, dir string) (*Result, error) {
	return s.convert(ctx, dir, nil)
}

func (s *Service) convert(ctx context.Context, dir string, onFile func(done, total int)) (*Result, error) {
	start := time.Now()
	log := s.logger.With("dir", logging.SanitizePath(dir))

	paths, err := DiscoverLogs(dir, s.opts.Discover)
	if err != nil {
		return nil, fmt.Errorf("discover logs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s with extension %s", ErrNoLogs, dir, s.opts.Discover.Ext)
	}
	log.Info("found log files", "count", len(paths))

	res := &Result{Dir: dir}
	fail := func(err error) (*Result, error) {
		res.Elapsed = time.Since(start)
		metrics.ConversionDuration.WithLabelValues("failed").Observe(res.Elapsed.Seconds())
		return res, err
	}

	var tables []*telemetry.Table
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			res.Files = append(res.Files, skipped(dir, paths[i:], i)...)
			return fail(err)
		}

		lf := &LogFile{Seq: i, Path: p, Filename: logName(dir, p), CreatedAt: time.Now()}
		res.Files = append(res.Files, lf)
		if s.opts.Progress != nil {
			fmt.Fprintf(s.opts.Progress, "Processing file: %s\n", lf.Filename)
		}

		tbl, err := convertFile(lf)
		if err != nil {
			lf.Status = FileStatusFailed
			lf.ErrorCode = ErrorCode(err)
			lf.Error = err.Error()
			metrics.FilesProcessedTotal.WithLabelValues(FileStatusFailed, lf.ErrorCode).Inc()

			if s.opts.Policy == FailureAbort {
				res.Files = append(res.Files, skipped(dir, paths[i+1:], i+1)...)
				return fail(fmt.Errorf("convert %s: %w", lf.Filename, err))
			}
			logging.WithFile(log, p).Warn("skipping log file", "code", lf.ErrorCode, "error", err)
		} else {
			lf.Status = FileStatusConverted
			lf.Rows = tbl.Len()
			tables = append(tables, tbl)
			metrics.FilesProcessedTotal.WithLabelValues(FileStatusConverted, "").Inc()
			metrics.RowsParsedTotal.Add(float64(tbl.Len()))
			logging.WithFile(log, p).Debug("log file converted", "rows", tbl.Len())
		}

		if onFile != nil {
			onFile(i+1, len(paths))
		}
	}

	if len(tables) == 0 {
		return fail(fmt.Errorf("%w: %d of %d failed", ErrAllFailed, len(paths), len(paths)))
	}

	res.Corpus = telemetry.Concat(tables...)
	res.Flights, err = telemetry.Summarize(res.Corpus)
	if err != nil {
		return fail(fmt.Errorf("summarize flights: %w", err))
	}

	res.Elapsed = time.Since(start)
	metrics.FlightsSummarizedTotal.Add(float64(len(res.Flights)))
	metrics.ConversionDuration.WithLabelValues("ok").Observe(res.Elapsed.Seconds())
	log.Info("conversion finished",
		"files", len(paths),
		"failed", res.Count(FileStatusFailed),
		"rows", res.Corpus.Len(),
		"flights", len(res.Flights),
		"elapsed", res.Elapsed)
	return res, nil
}

// ExecuteConvert runs a queued job against its source: it converts, stores
// the file outcomes and flights, and hands the result to the publisher.
func (s *Service) ExecuteConvert(ctx context.Context, jobID string, source *Source) (*Result, error) {
	log := logging.WithSourceID(logging.WithJobID(s.logger, jobID), source.ID)

	if err := s.repo.UpdateJobStatus(ctx, jobID, JobStatusRunning, ""); err != nil {
		return nil, fmt.Errorf("mark job running: %w", err)
	}
	log.Info("starting conversion", "path", logging.SanitizePath(source.Path))

	if _, err := os.Stat(source.Path); err != nil {
		s.repo.UpdateSourcePresent(ctx, source.ID, false)
		s.failJob(ctx, jobID, err)
		return nil, fmt.Errorf("source unavailable: %w", err)
	}
	if !source.Present {
		s.repo.UpdateSourcePresent(ctx, source.ID, true)
	}

	res, err := s.convert(ctx, source.Path, func(done, total int) {
		s.repo.UpdateJobProgress(ctx, jobID, done*100/total)
	})

	if res != nil {
		for _, f := range res.Files {
			f.SourceID = source.ID
		}
		if perr := s.repo.ReplaceLogFiles(context.WithoutCancel(ctx), jobID, res.Files); perr != nil {
			log.Warn("failed to record log files", "error", perr)
		}
	}
	if err != nil {
		s.failJob(ctx, jobID, err)
		return res, err
	}

	if err := s.repo.ReplaceFlights(ctx, source.ID, jobID, res.Flights); err != nil {
		err = fmt.Errorf("store flights: %w", err)
		s.failJob(ctx, jobID, err)
		return res, err
	}

	if s.publisher != nil {
		artifacts, err := s.publisher.Publish(ctx, source, res)
		if err != nil {
			err = fmt.Errorf("publish exports: %w", err)
			s.failJob(ctx, jobID, err)
			return res, err
		}
		res.Artifacts = artifacts
	}

	s.repo.UpdateJobProgress(ctx, jobID, 100)
	if err := s.repo.UpdateJobStatus(ctx, jobID, JobStatusCompleted, ""); err != nil {
		return res, fmt.Errorf("mark job completed: %w", err)
	}
	metrics.JobsProcessedTotal.WithLabelValues(JobStatusCompleted).Inc()
	log.Info("conversion job completed", "flights", len(res.Flights), "rows", res.Corpus.Len())
	return res, nil
}

func (s *Service) failJob(ctx context.Context, jobID string, cause error) {
	msg := fmt.Sprintf("%s: %v", ErrorCode(cause), cause)
	if err := s.repo.UpdateJobStatus(context.WithoutCancel(ctx), jobID, JobStatusFailed, msg); err != nil {
		s.logger.Error("failed to mark job failed", "job_id", jobID, "error", err)
	}
	metrics.JobsProcessedTotal.WithLabelValues(JobStatusFailed).Inc()
	s.logger.Error("conversion job failed", "job_id", jobID, "code", ErrorCode(cause), "error", cause)
}

// ErrorCode returns the stable classification of a conversion error.
func ErrorCode(err error) string {
	if errors.Is(err, ErrNotUTF8) {
		return CodeEncoding
	}
	return string(telemetry.Classify(err))
}

func convertFile(lf *LogFile) (*telemetry.Table, error) {
	if err := describeFile(lf); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(lf.Path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s: %w", lf.Filename, ErrNotUTF8)
	}
	return telemetry.BuildTable(lf.Filename, string(data))
}

// logName is the path of a log relative to its source folder, with forward
// slashes. Logs found in subdirectories keep their directory so that
// same-named files stay distinct flights.
func logName(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

func skipped(dir string, paths []string, firstSeq int) []*LogFile {
	files := make([]*LogFile, 0, len(paths))
	for i, p := range paths {
		files = append(files, &LogFile{
			Seq:       firstSeq + i,
			Path:      p,
			Filename:  logName(dir, p),
			Status:    FileStatusSkipped,
			CreatedAt: time.Now(),
		})
	}
	return files
}
