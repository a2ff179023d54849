package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const fingerprintSize = 64 * 1024

// DiscoverOptions controls which files in a source directory are logs.
type DiscoverOptions struct {
	Ext           string
	CaseSensitive bool
	Recursive     bool
}

// DefaultDiscoverOptions matches "*.SRT" directly inside the directory.
func DefaultDiscoverOptions() DiscoverOptions {
	return DiscoverOptions{Ext: ".SRT", CaseSensitive: true}
}

// DiscoverLogs returns the log files of dir in lexical path order. Without
// Recursive only direct children are considered; with it, hidden
// subdirectories are skipped.
func DiscoverLogs(dir string, opts DiscoverOptions) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var paths []string
	if !opts.Recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !HasLogExt(e.Name(), opts.Ext, opts.CaseSensitive) {
				continue
			}
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
		return paths, nil
	}

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if HasLogExt(d.Name(), opts.Ext, opts.CaseSensitive) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// describeFile fills the filesystem facts of a LogFile.
func describeFile(lf *LogFile) error {
	info, err := os.Stat(lf.Path)
	if err != nil {
		return err
	}
	lf.Size = info.Size()
	lf.Mtime = info.ModTime()

	fp, err := computeFingerprint(lf.Path)
	if err != nil {
		return err
	}
	lf.Fingerprint = fp
	return nil
}

// computeFingerprint hashes the first 64 KiB of the file.
func computeFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, io.LimitReader(f, fingerprintSize)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
