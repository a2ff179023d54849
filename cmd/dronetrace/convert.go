package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/dronetrace/dronetrace/internal/catalog"
	"github.com/dronetrace/dronetrace/internal/config"
	"github.com/dronetrace/dronetrace/internal/export"
)

// convert runs one folder conversion in the foreground, mirroring the
// batch workflow: progress lines, both exports, then a preview of the corpus.
func convert(cfg config.Config, cmd *command, stdout io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg)

	dir, err := filepath.Abs(cmd.dir)
	if err != nil {
		return err
	}

	opts, err := serviceOptions(cfg, cmd.policy)
	if err != nil {
		return err
	}
	opts.Discover.Recursive = opts.Discover.Recursive || cmd.recursive
	opts.Progress = stdout

	outputDir := cmd.outputDir
	if outputDir == "" {
		outputDir = cfg.OutputDir()
	}

	database, repo, err := openCatalog(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	publisher, err := newPublisher(ctx, cfg, outputDir, logger)
	if err != nil {
		return err
	}

	svc := catalog.NewService(repo, opts, logger)
	svc.SetPublisher(publisher)

	_, res, err := svc.ConvertFolder(ctx, dir)
	if res != nil {
		printFailures(stdout, res)
	}
	if err != nil {
		return err
	}

	printArtifacts(stdout, res.Artifacts)

	rows := cfg.PreviewRows()
	if cmd.rows >= 0 {
		rows = cmd.rows
	}
	return export.Preview(stdout, res.Corpus, rows)
}

func printFailures(w io.Writer, res *catalog.Result) {
	for _, f := range res.Files {
		switch f.Status {
		case catalog.FileStatusFailed:
			fmt.Fprintf(w, "failed: %s [%s] %s\n", f.Filename, f.ErrorCode, f.Error)
		case catalog.FileStatusSkipped:
			fmt.Fprintf(w, "skipped: %s\n", f.Filename)
		}
	}
}

func printArtifacts(w io.Writer, a *export.Artifacts) {
	if a == nil {
		return
	}
	fmt.Fprintf(w, "wrote %s (%s)\n", a.FullPath, humanize.Bytes(uint64(a.FullBytes)))
	fmt.Fprintf(w, "wrote %s (%s)\n", a.SummaryPath, humanize.Bytes(uint64(a.SummaryBytes)))
}
