package catalog

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDiscoverLogs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.SRT", "a.SRT", "c.srt", "d.txt", "sub/e.SRT", ".hidden/f.SRT", "sub/.g/h.SRT"} {
		writeFile(t, dir, name, "x")
	}
	if err := os.Mkdir(filepath.Join(dir, "dir.SRT"), 0755); err != nil {
		t.Fatal(err)
	}

	rel := func(paths []string) []string {
		out := make([]string, len(paths))
		for i, p := range paths {
			r, _ := filepath.Rel(dir, p)
			out[i] = filepath.ToSlash(r)
		}
		return out
	}

	tests := []struct {
		name string
		opts DiscoverOptions
		want []string
	}{
		{"default", DefaultDiscoverOptions(), []string{"a.SRT", "b.SRT"}},
		{"case insensitive", DiscoverOptions{Ext: ".SRT"}, []string{"a.SRT", "b.SRT", "c.srt"}},
		{"recursive", DiscoverOptions{Ext: ".SRT", CaseSensitive: true, Recursive: true}, []string{"a.SRT", "b.SRT", "sub/e.SRT"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiscoverLogs(dir, tt.opts)
			if err != nil {
				t.Fatalf("DiscoverLogs() error = %v", err)
			}
			if !reflect.DeepEqual(rel(got), tt.want) {
				t.Errorf("DiscoverLogs() = %v, want %v", rel(got), tt.want)
			}
		})
	}
}

func TestDiscoverLogs_NotADirectory(t *testing.T) {
	file := writeFile(t, t.TempDir(), "a.SRT", "x")
	if _, err := DiscoverLogs(file, DefaultDiscoverOptions()); err == nil {
		t.Error("DiscoverLogs() on a file should fail")
	}
	if _, err := DiscoverLogs(filepath.Join(t.TempDir(), "missing"), DefaultDiscoverOptions()); err == nil {
		t.Error("DiscoverLogs() on a missing dir should fail")
	}
}

func TestHasLogExt(t *testing.T) {
	tests := []struct {
		name          string
		ext           string
		caseSensitive bool
		want          bool
	}{
		{"DJI_0001.SRT", ".SRT", true, true},
		{"DJI_0001.srt", ".SRT", true, false},
		{"DJI_0001.srt", ".SRT", false, true},
		{"DJI_0001.SRT.bak", ".SRT", true, false},
		{"SRT", ".SRT", true, false},
		{".SRT", ".SRT", true, true},
		{"a.SRT", "", true, false},
	}

	for _, tt := range tests {
		if got := HasLogExt(tt.name, tt.ext, tt.caseSensitive); got != tt.want {
			t.Errorf("HasLogExt(%q, %q, %v) = %v, want %v", tt.name, tt.ext, tt.caseSensitive, got, tt.want)
		}
	}
}

func TestComputeFingerprint_UsesPrefixOnly(t *testing.T) {
	dir := t.TempDir()
	prefix := strings.Repeat("a", fingerprintSize)
	p1 := writeFile(t, dir, "one.SRT", prefix+"tail-one")
	p2 := writeFile(t, dir, "two.SRT", prefix+"tail-two")
	p3 := writeFile(t, dir, "three.SRT", "short")

	f1, err := computeFingerprint(p1)
	if err != nil {
		t.Fatalf("computeFingerprint() error = %v", err)
	}
	f2, _ := computeFingerprint(p2)
	f3, _ := computeFingerprint(p3)

	if f1 != f2 {
		t.Error("files sharing the first 64 KiB should share a fingerprint")
	}
	if f1 == f3 {
		t.Error("different prefixes produced the same fingerprint")
	}
	if len(f1) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(f1))
	}
}
