package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dronetrace/dronetrace/internal/export"
	"github.com/dronetrace/dronetrace/internal/logging"
	"github.com/dronetrace/dronetrace/internal/metrics"
	"github.com/dronetrace/dronetrace/internal/objectstore"
)

// Publisher turns a successful conversion into durable artifacts.
type Publisher interface {
	Publish(ctx context.Context, source *Source, res *Result) (*export.Artifacts, error)
}

const (
	ExportKindFull    = "full"
	ExportKindSummary = "summary"
)

// ExportPublisher writes both CSV exports and mirrors them to object storage.
// Mirror failures are logged and counted but do not fail the job.
type ExportPublisher struct {
	outputDir string
	names     export.Names
	mirror    objectstore.Mirror
	logger    *slog.Logger
}

// NewExportPublisher writes into outputDir, or into each source's own folder
// when outputDir is empty. A nil mirror disables mirroring.
func NewExportPublisher(outputDir string, names export.Names, mirror objectstore.Mirror, logger *slog.Logger) (*ExportPublisher, error) {
	if err := names.Validate(); err != nil {
		return nil, err
	}
	if outputDir != "" {
		if err := export.ValidateOutputDir(outputDir); err != nil {
			return nil, err
		}
	}
	if mirror == nil {
		mirror = objectstore.Noop{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &ExportPublisher{
		outputDir: outputDir,
		names:     names,
		mirror:    mirror,
		logger:    logging.WithComponent(logger, "export"),
	}, nil
}

// Dir returns the directory the exports of source are written to.
func (p *ExportPublisher) Dir(source *Source) string {
	if p.outputDir != "" {
		return p.outputDir
	}
	return source.Path
}

// Path returns the export file of the given kind for source.
func (p *ExportPublisher) Path(source *Source, kind string) (string, error) {
	switch kind {
	case ExportKindFull:
		return filepath.Join(p.Dir(source), p.names.Full), nil
	case ExportKindSummary:
		return filepath.Join(p.Dir(source), p.names.Summary), nil
	default:
		return "", fmt.Errorf("unknown export kind %q", kind)
	}
}

func (p *ExportPublisher) Publish(ctx context.Context, source *Source, res *Result) (*export.Artifacts, error) {
	a, err := export.ExportRun(p.Dir(source), p.names, res.Corpus, res.Flights)
	if err != nil {
		return nil, err
	}
	metrics.ExportBytesTotal.WithLabelValues(ExportKindFull).Add(float64(a.FullBytes))
	metrics.ExportBytesTotal.WithLabelValues(ExportKindSummary).Add(float64(a.SummaryBytes))
	p.logger.Info("exports written",
		"source_id", source.ID,
		"full", logging.SanitizePath(a.FullPath),
		"summary", logging.SanitizePath(a.SummaryPath))

	if p.mirror.Enabled() {
		folder := export.SanitizeName(source.DisplayName, 128)
		for _, f := range []struct{ name, path string }{
			{p.names.Full, a.FullPath},
			{p.names.Summary, a.SummaryPath},
		} {
			key := objectstore.Key(folder, f.name)
			if err := p.mirror.Put(ctx, key, f.path); err != nil {
				metrics.MirrorUploadsTotal.WithLabelValues("failed").Inc()
				p.logger.Warn("mirror upload failed", "key", key, "error", err)
				continue
			}
			metrics.MirrorUploadsTotal.WithLabelValues("ok").Inc()
		}
	}
	return a, nil
}
