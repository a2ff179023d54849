package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dronetrace/dronetrace/internal/telemetry"
)

// Names are the file names of the two exports inside the output directory.
type Names struct {
	Full    string
	Summary string
}

// Validate checks both names.
func (n Names) Validate() error {
	if err := ValidateName(n.Full); err != nil {
		return fmt.Errorf("full export: %w", err)
	}
	if err := ValidateName(n.Summary); err != nil {
		return fmt.Errorf("summary export: %w", err)
	}
	if n.Full == n.Summary {
		return fmt.Errorf("%w: full and summary exports share the name %q", ErrInvalidName, n.Full)
	}
	return nil
}

// Artifacts describes the files written by ExportRun.
type Artifacts struct {
	FullPath     string `json:"full_path"`
	FullBytes    int64  `json:"full_bytes"`
	SummaryPath  string `json:"summary_path"`
	SummaryBytes int64  `json:"summary_bytes"`
}

// ExportRun writes the corpus and the flight summaries into dir. Each file is
// written to a temporary name first and renamed into place, so readers never
// observe a partial export.
func ExportRun(dir string, names Names, corpus *telemetry.Table, flights []telemetry.FlightSummary) (*Artifacts, error) {
	if err := ValidateOutputDir(dir); err != nil {
		return nil, err
	}
	if err := names.Validate(); err != nil {
		return nil, err
	}

	a := &Artifacts{
		FullPath:    filepath.Join(dir, names.Full),
		SummaryPath: filepath.Join(dir, names.Summary),
	}

	var err error
	a.FullBytes, err = writeAtomic(a.FullPath, func(w io.Writer) error {
		return WriteCorpusCSV(w, corpus)
	})
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", names.Full, err)
	}

	a.SummaryBytes, err = writeAtomic(a.SummaryPath, func(w io.Writer) error {
		return WriteSummaryCSV(w, flights)
	})
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", names.Summary, err)
	}

	return a, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func writeAtomic(path string, write func(io.Writer) error) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	cw := &countingWriter{w: tmp}
	if err := write(cw); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, err
	}
	return cw.n, nil
}
