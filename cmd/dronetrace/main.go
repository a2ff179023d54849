package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dronetrace/dronetrace/internal/api"
	"github.com/dronetrace/dronetrace/internal/catalog"
	"github.com/dronetrace/dronetrace/internal/config"
	"github.com/dronetrace/dronetrace/internal/db"
	"github.com/dronetrace/dronetrace/internal/export"
	"github.com/dronetrace/dronetrace/internal/logging"
	"github.com/dronetrace/dronetrace/internal/objectstore"
)

const usage = `usage:
  dronetrace [convert] [flags] <dir>   convert every log in dir and write the CSV exports
  dronetrace serve                     run the conversion service and local API
  dronetrace version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n\n%s", err, usage)
		return 2
	}

	if cmd.name == "version" {
		fmt.Fprintf(stdout, "dronetrace %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildTime)
		return 0
	}

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}

	switch cmd.name {
	case "serve":
		err = serve(cfg)
	default:
		err = convert(cfg, cmd, stdout)
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// command is a parsed invocation. Zero-valued overrides keep the configured value.
type command struct {
	name      string
	dir       string
	policy    string
	outputDir string
	recursive bool
	rows      int
}

func parseArgs(args []string, stderr io.Writer) (*command, error) {
	cmd := &command{name: "convert", rows: -1}
	if len(args) > 0 {
		switch args[0] {
		case "serve", "version":
			if len(args) > 1 {
				return nil, fmt.Errorf("%s takes no arguments", args[0])
			}
			cmd.name = args[0]
			return cmd, nil
		case "convert":
			args = args[1:]
		}
	}

	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cmd.policy, "policy", "", "per-file failure policy: abort or skip")
	fs.StringVar(&cmd.outputDir, "out", "", "directory for the CSV exports (default: the input folder)")
	fs.BoolVar(&cmd.recursive, "recursive", false, "also search subdirectories for logs")
	fs.IntVar(&cmd.rows, "rows", -1, "preview rows printed after conversion (default from config)")
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() != 1 {
		return nil, errors.New("exactly one log directory is required")
	}
	cmd.dir = fs.Arg(0)
	return cmd, nil
}

func openCatalog(cfg config.Config, logger *slog.Logger) (*db.DB, catalog.Repository, error) {
	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return database, catalog.NewRepository(database.Conn()), nil
}

func newPublisher(ctx context.Context, cfg config.Config, outputDir string, logger *slog.Logger) (*catalog.ExportPublisher, error) {
	s3 := cfg.ObjectStore()
	mirror, err := objectstore.New(objectstore.Config{
		Endpoint:  s3.Endpoint,
		AccessKey: s3.AccessKey,
		SecretKey: s3.SecretKey,
		UseSSL:    s3.UseSSL,
		Bucket:    s3.Bucket,
		Prefix:    s3.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure object store: %w", err)
	}
	if m, ok := mirror.(*objectstore.MinioMirror); ok {
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare bucket %s: %w", s3.Bucket, err)
		}
		logger.Info("export mirror enabled", "endpoint", s3.Endpoint, "bucket", s3.Bucket)
	}

	names := export.Names{Full: cfg.FullExportName(), Summary: cfg.SummaryExportName()}
	return catalog.NewExportPublisher(outputDir, names, mirror, logger)
}

func serviceOptions(cfg config.Config, policy string) (catalog.Options, error) {
	if policy == "" {
		policy = cfg.FailurePolicy()
	}
	p, err := catalog.ParseFailurePolicy(policy)
	if err != nil {
		return catalog.Options{}, err
	}
	return catalog.Options{
		Discover: catalog.DiscoverOptions{
			Ext:           cfg.LogExt(),
			CaseSensitive: cfg.ExtCaseSensitive(),
			Recursive:     cfg.Recursive(),
		},
		Policy: p,
	}, nil
}

func ensureDeviceID(ctx context.Context, repo catalog.Repository) (string, error) {
	return ensureSecret(ctx, repo, "device_id", 16)
}

func ensureAuthToken(ctx context.Context, repo catalog.Repository) (string, error) {
	return ensureSecret(ctx, repo, api.AuthTokenKey, 32)
}

func ensureSecret(ctx context.Context, repo catalog.Repository, key string, size int) (string, error) {
	existing, err := repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	value := hex.EncodeToString(buf)

	if err := repo.SetConfig(ctx, key, value); err != nil {
		return "", err
	}
	return value, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	return logging.NewLogger(cfg.LogLevel())
}
