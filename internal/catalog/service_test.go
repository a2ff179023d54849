package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dronetrace/dronetrace/internal/db"
	"github.com/dronetrace/dronetrace/internal/export"
	"github.com/dronetrace/dronetrace/internal/telemetry"
)

func setupTestDB(t *testing.T) (*db.DB, Repository) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	repo := NewRepository(database.Conn())
	return database, repo
}

func srtBlock(frame int, date, clock string, diffMs int, rel, abs float64) string {
	return strings.Join([]string{
		fmt.Sprint(frame),
		"00:00:00,000 --> 00:00:00,033",
		fmt.Sprintf("DiffTime : %dms", diffMs),
		date + " " + clock,
		fmt.Sprintf("[iso : 100] [shutter : 1/6000.0] [fnum : 280] [ev : 0] [ct : 5064] [color_md : default] "+
			"[focal_len : 240] [dzoom_ratio: 10000, delta:0] [latitude: 22.543211] [longitude: 113.958870] "+
			"[rel_alt: %.3f abs_alt: %.3f]", rel, abs),
	}, "\n")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

// writeFlightDir creates A.SRT (2 frames) and B.SRT (1 frame).
func writeFlightDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "A.SRT",
		srtBlock(1, "2023-05-27", "13:42:15", 33, 10, 100)+"\n\n"+
			srtBlock(2, "2023-05-27", "13:42:16", 40, 14, 104)+"\n\n")
	writeFile(t, dir, "B.SRT", srtBlock(1, "2023-06-01", "09:00:00", 1000, 5, 50)+"\n")
	writeFile(t, dir, "notes.txt", "not a log")
	return dir
}

func TestService_AddFolder(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, Options{}, nil)

	tmpDir := t.TempDir()

	source, err := svc.AddFolder(context.Background(), tmpDir, "Test Folder")
	if err != nil {
		t.Fatalf("AddFolder() error = %v", err)
	}

	if source.ID == "" {
		t.Error("source.ID is empty")
	}
	if source.Path != tmpDir {
		t.Errorf("source.Path = %s, want %s", source.Path, tmpDir)
	}
	if source.DisplayName != "Test Folder" {
		t.Errorf("source.DisplayName = %s, want Test Folder", source.DisplayName)
	}

	again, err := svc.AddFolder(context.Background(), tmpDir, "")
	if err != nil {
		t.Fatalf("second AddFolder() error = %v", err)
	}
	if again.ID != source.ID {
		t.Errorf("AddFolder() on the same path returned a new source %s", again.ID)
	}
}

func TestService_AddFolder_InvalidPath(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, Options{}, nil)

	_, err := svc.AddFolder(context.Background(), "/nonexistent/path", "Test")
	if err == nil {
		t.Error("AddFolder() should return error for nonexistent path")
	}
}

func TestService_AddFolder_NotDirectory(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, Options{}, nil)

	file := writeFile(t, t.TempDir(), "x.SRT", "")
	if _, err := svc.AddFolder(context.Background(), file, "Test"); err == nil {
		t.Error("AddFolder() should return error for file path")
	}
}

func TestService_Convert(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	var progress bytes.Buffer
	svc := NewService(repo, Options{Progress: &progress}, nil)

	res, err := svc.Convert(context.Background(), writeFlightDir(t))
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	if got := progress.String(); got != "Processing file: A.SRT\nProcessing file: B.SRT\n" {
		t.Errorf("progress output = %q", got)
	}
	if res.Corpus.Len() != 3 {
		t.Errorf("corpus rows = %d, want 3", res.Corpus.Len())
	}
	if len(res.Flights) != 2 {
		t.Fatalf("flights = %d, want 2", len(res.Flights))
	}
	if res.Flights[0].Filename != "A.SRT" || res.Flights[1].Filename != "B.SRT" {
		t.Errorf("flight order = %s, %s", res.Flights[0].Filename, res.Flights[1].Filename)
	}
	if len(res.Files) != 2 {
		t.Fatalf("files = %d, want 2", len(res.Files))
	}
	for i, f := range res.Files {
		if f.Seq != i || f.Status != FileStatusConverted || f.Fingerprint == "" || f.Size == 0 {
			t.Errorf("file[%d] = %+v", i, f)
		}
	}
	if res.Files[0].Rows != 2 || res.Files[1].Rows != 1 {
		t.Errorf("rows = %d, %d, want 2, 1", res.Files[0].Rows, res.Files[1].Rows)
	}
}

func TestService_Convert_NoLogs(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, Options{}, nil)
	dir := t.TempDir()
	writeFile(t, dir, "lower.srt", srtBlock(1, "2023-05-27", "13:42:15", 33, 1, 2))

	_, err := svc.Convert(context.Background(), dir)
	if !errors.Is(err, ErrNoLogs) {
		t.Fatalf("Convert() error = %v, want ErrNoLogs", err)
	}
}

func TestService_Convert_CaseInsensitive(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, Options{Discover: DiscoverOptions{Ext: ".SRT"}}, nil)
	dir := t.TempDir()
	writeFile(t, dir, "lower.srt", srtBlock(1, "2023-05-27", "13:42:15", 33, 1, 2))

	res, err := svc.Convert(context.Background(), dir)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if res.Corpus.Len() != 1 {
		t.Errorf("corpus rows = %d, want 1", res.Corpus.Len())
	}
}

func TestService_Convert_RecursiveSameNames(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	opts := Options{Discover: DiscoverOptions{Ext: ".SRT", CaseSensitive: true, Recursive: true}}
	svc := NewService(repo, opts, nil)

	dir := t.TempDir()
	writeFile(t, dir, "a/DJI_0001.SRT",
		srtBlock(1, "2023-05-27", "10:00:00", 100, 10, 100)+"\n\n"+
			srtBlock(2, "2023-05-27", "10:00:01", 100, 20, 110))
	writeFile(t, dir, "b/DJI_0001.SRT", srtBlock(1, "2023-05-27", "15:00:00", 500, 50, 150))

	res, err := svc.Convert(context.Background(), dir)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	if len(res.Files) != 2 || res.Files[0].Filename != "a/DJI_0001.SRT" || res.Files[1].Filename != "b/DJI_0001.SRT" {
		t.Fatalf("files = %+v", res.Files)
	}
	if len(res.Flights) != 2 {
		t.Fatalf("flights = %d, want 2 (one per file)", len(res.Flights))
	}

	a, b := res.Flights[0], res.Flights[1]
	if a.Filename != "a/DJI_0001.SRT" || a.TimeInit != "10:00:00" || a.TimeEnd != "10:00:01" || a.DurationSeconds != 0.2 {
		t.Errorf("flight a = %+v", a)
	}
	if b.Filename != "b/DJI_0001.SRT" || b.TimeInit != "15:00:00" || b.DurationSeconds != 0.5 {
		t.Errorf("flight b = %+v", b)
	}
	if a.RelAlt.Last != 20 || b.RelAlt.First != 50 {
		t.Errorf("altitudes mixed across files: a=%+v b=%+v", a.RelAlt, b.RelAlt)
	}
}

func TestLogName(t *testing.T) {
	dir := filepath.Join("data", "flights")
	tests := []struct {
		path string
		want string
	}{
		{filepath.Join(dir, "A.SRT"), "A.SRT"},
		{filepath.Join(dir, "sub", "A.SRT"), "sub/A.SRT"},
		{filepath.Join("elsewhere", "B.SRT"), "B.SRT"},
	}
	for _, tt := range tests {
		if got := logName(dir, tt.path); got != tt.want {
			t.Errorf("logName(%q, %q) = %q, want %q", dir, tt.path, got, tt.want)
		}
	}
}

func TestService_Convert_FailurePolicy(t *testing.T) {
	dir := writeFlightDir(t)
	writeFile(t, dir, "AA.SRT", srtBlock(1, "2023-05-27", "13:42:15", 33, 1, 2)+"\n\nx\ny\nz\nw\nv\n")

	t.Run("abort", func(t *testing.T) {
		database, repo := setupTestDB(t)
		defer database.Close()

		svc := NewService(repo, Options{Policy: FailureAbort}, nil)
		res, err := svc.Convert(context.Background(), dir)
		if !errors.Is(err, telemetry.ErrMalformedBlock) {
			t.Fatalf("Convert() error = %v, want ErrMalformedBlock", err)
		}
		if res.Corpus != nil {
			t.Error("aborted run produced a corpus")
		}
		want := []string{FileStatusConverted, FileStatusFailed, FileStatusSkipped}
		if len(res.Files) != len(want) {
			t.Fatalf("files = %d, want %d", len(res.Files), len(want))
		}
		for i, st := range want {
			if res.Files[i].Status != st {
				t.Errorf("file[%d] %s status = %s, want %s", i, res.Files[i].Filename, res.Files[i].Status, st)
			}
		}
		if res.Files[1].ErrorCode != string(telemetry.CodeMalformedBlock) {
			t.Errorf("error code = %s", res.Files[1].ErrorCode)
		}
	})

	t.Run("skip", func(t *testing.T) {
		database, repo := setupTestDB(t)
		defer database.Close()

		svc := NewService(repo, Options{Policy: FailureSkip}, nil)
		res, err := svc.Convert(context.Background(), dir)
		if err != nil {
			t.Fatalf("Convert() error = %v", err)
		}
		if res.Corpus.Len() != 3 {
			t.Errorf("corpus rows = %d, want 3", res.Corpus.Len())
		}
		if res.Count(FileStatusFailed) != 1 || res.Count(FileStatusConverted) != 2 {
			t.Errorf("failed = %d, converted = %d", res.Count(FileStatusFailed), res.Count(FileStatusConverted))
		}
	})
}

func TestService_Convert_AllFailSkip(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	dir := t.TempDir()
	writeFile(t, dir, "bad.SRT", "1\n2\n3\n")
	writeFile(t, dir, "latin1.SRT", "\xff\xfe")

	svc := NewService(repo, Options{Policy: FailureSkip}, nil)
	res, err := svc.Convert(context.Background(), dir)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("Convert() error = %v, want ErrAllFailed", err)
	}
	if res.Files[1].ErrorCode != CodeEncoding {
		t.Errorf("latin1 error code = %s, want %s", res.Files[1].ErrorCode, CodeEncoding)
	}
}

func TestService_ExecuteConvert_PersistsAndPublishes(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	svc := NewService(repo, Options{}, nil)
	pub, err := NewExportPublisher("", export.Names{Full: "data.csv", Summary: "data_summ.csv"}, nil, nil)
	if err != nil {
		t.Fatalf("NewExportPublisher() error = %v", err)
	}
	svc.SetPublisher(pub)

	dir := writeFlightDir(t)
	job, res, err := svc.ConvertFolder(ctx, dir)
	if err != nil {
		t.Fatalf("ConvertFolder() error = %v", err)
	}

	stored, _ := repo.GetJob(ctx, job.ID)
	if stored.Status != JobStatusCompleted || stored.Progress != 100 {
		t.Errorf("job = %+v, want completed at 100", stored)
	}

	files, err := svc.GetJobFiles(ctx, job.ID)
	if err != nil || len(files) != 2 {
		t.Fatalf("GetJobFiles() = %d files, err %v", len(files), err)
	}
	if files[0].Filename != "A.SRT" || files[0].Rows != 2 || files[0].SourceID != stored.SourceID {
		t.Errorf("files[0] = %+v", files[0])
	}

	flights, err := svc.GetFlights(ctx, stored.SourceID)
	if err != nil || len(flights) != 2 {
		t.Fatalf("GetFlights() = %d flights, err %v", len(flights), err)
	}
	if flights[0] != res.Flights[0] {
		t.Errorf("stored flight = %+v, want %+v", flights[0], res.Flights[0])
	}

	if res.Artifacts == nil {
		t.Fatal("no artifacts")
	}
	if res.Artifacts.FullPath != filepath.Join(dir, "data.csv") {
		t.Errorf("full export = %s", res.Artifacts.FullPath)
	}
	summ, err := os.ReadFile(filepath.Join(dir, "data_summ.csv"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if lines := strings.Count(string(summ), "\n"); lines != 3 {
		t.Errorf("summary lines = %d, want 3", lines)
	}
}

func TestService_ExecuteConvert_FailureMarksJob(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	svc := NewService(repo, Options{}, nil)
	dir := t.TempDir()
	writeFile(t, dir, "bad.SRT", srtBlock(1, "2023-05-27", "13:42:15", 33, 1, 2)+"\n\n9\na --> b\nDiffTime : 1ms\n2023-05-27 1\n[rel_alt: 1 abs_alt: 2]")

	job, _, err := svc.ConvertFolder(ctx, dir)
	if !errors.Is(err, telemetry.ErrMissingKey) {
		t.Fatalf("ConvertFolder() error = %v, want ErrMissingKey", err)
	}

	stored, _ := repo.GetJob(ctx, job.ID)
	if stored.Status != JobStatusFailed {
		t.Errorf("job status = %s, want failed", stored.Status)
	}
	if !strings.HasPrefix(stored.Error, "missing_key: ") {
		t.Errorf("job error = %q", stored.Error)
	}
	files, _ := repo.ListLogFiles(ctx, job.ID)
	if len(files) != 1 || files[0].Status != FileStatusFailed {
		t.Errorf("log files = %+v", files)
	}
	if n, _ := repo.CountFlights(ctx); n != 0 {
		t.Errorf("flights stored after failure: %d", n)
	}
}

func TestService_ConvertSource_NotFound(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, Options{}, nil)
	if _, err := svc.ConvertSource(context.Background(), "missing"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("ConvertSource() error = %v, want ErrSourceNotFound", err)
	}
	if err := svc.RemoveSource(context.Background(), "missing"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("RemoveSource() error = %v, want ErrSourceNotFound", err)
	}
}

func TestService_ConvertAll_SkipsQueued(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	svc := NewService(repo, Options{}, nil)
	a, _ := svc.AddFolder(ctx, t.TempDir(), "a")
	if _, err := svc.AddFolder(ctx, t.TempDir(), "b"); err != nil {
		t.Fatalf("AddFolder() error = %v", err)
	}
	if _, err := svc.ConvertSource(ctx, a.ID); err != nil {
		t.Fatalf("ConvertSource() error = %v", err)
	}

	jobs, err := svc.ConvertAll(ctx)
	if err != nil {
		t.Fatalf("ConvertAll() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].SourceID == a.ID {
		t.Errorf("ConvertAll() queued %+v, want only source b", jobs)
	}
}

func TestService_RemoveSource_Cascades(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	svc := NewService(repo, Options{}, nil)
	job, _, err := svc.ConvertFolder(ctx, writeFlightDir(t))
	if err != nil {
		t.Fatalf("ConvertFolder() error = %v", err)
	}

	stored, _ := repo.GetJob(ctx, job.ID)
	if err := svc.RemoveSource(ctx, stored.SourceID); err != nil {
		t.Fatalf("RemoveSource() error = %v", err)
	}
	if n, _ := repo.CountFlights(ctx); n != 0 {
		t.Errorf("flights left after removal: %d", n)
	}
	if j, _ := repo.GetJob(ctx, job.ID); j != nil {
		t.Errorf("job left after removal: %+v", j)
	}
}

func TestParseFailurePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FailurePolicy
		wantErr bool
	}{
		{"", FailureAbort, false},
		{"abort", FailureAbort, false},
		{"Skip", FailureSkip, false},
		{"retry", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFailurePolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFailurePolicy(%q) = %q, %v", tt.in, got, err)
		}
	}
}
