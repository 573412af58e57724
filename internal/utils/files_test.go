package utils

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestResolveFileName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://host/a/b/report.pdf", "report.pdf"},
		{"https://host/file.zip?token=abc", "file.zip"},
		{"https://host/my%20file.iso", "my file.iso"},
		{"https://host", DefaultFileName},
		{"https://host/", DefaultFileName},
		{"", DefaultFileName},
		{"://bad url", DefaultFileName},
		{"https://host/dir/a%3Cb%3E.txt", "a_b_.txt"},
	}

	for _, tt := range tests {
		if got := ResolveFileName(tt.input); got != tt.expected {
			t.Errorf("ResolveFileName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestTempPaths(t *testing.T) {
	if got := TempPath("/tmp/x/file.bin"); got != "/tmp/x/file.bin.temp" {
		t.Errorf("TempPath = %q", got)
	}
	if got := PartPath("/tmp/x/file.bin", 3); got != "/tmp/x/file.bin.part3.temp" {
		t.Errorf("PartPath = %q", got)
	}
}

func writeParts(t *testing.T, dir string, contents ...string) []string {
	t.Helper()
	var paths []string
	for i, c := range contents {
		p := PartPath(filepath.Join(dir, "out.bin"), i+1)
		if err := os.WriteFile(p, []byte(c), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		paths = append(paths, p)
	}
	return paths
}

func TestMergeConcatenatesInOrder(t *testing.T) {
	dir := t.TempDir()
	parts := writeParts(t, dir, "alpha-", "beta-", "", "gamma")
	dest := filepath.Join(dir, "out.bin")

	if err := Merge(parts, dest); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "alpha-beta-gamma" {
		t.Errorf("merged content = %q", got)
	}
}

func TestMergeIsRepeatable(t *testing.T) {
	dir := t.TempDir()
	parts := writeParts(t, dir, "0123456789", "abcdef")

	first := filepath.Join(dir, "first.bin")
	second := filepath.Join(dir, "second.bin")
	if err := Merge(parts, first); err != nil {
		t.Fatalf("Merge first: %v", err)
	}
	if err := Merge(parts, second); err != nil {
		t.Fatalf("Merge second: %v", err)
	}
	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if !bytes.Equal(a, b) {
		t.Errorf("merges differ: %q vs %q", a, b)
	}
}

func TestMergeTruncatesDestination(t *testing.T) {
	dir := t.TempDir()
	parts := writeParts(t, dir, "short")
	dest := filepath.Join(dir, "out.bin")
	if err := os.WriteFile(dest, []byte("a much longer previous content"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := Merge(parts, dest); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "short" {
		t.Errorf("expected truncated destination, got %q", got)
	}
}

func TestMergeMissingPart(t *testing.T) {
	dir := t.TempDir()
	parts := writeParts(t, dir, "first")
	parts = append(parts, filepath.Join(dir, "missing.part2.temp"))

	err := Merge(parts, filepath.Join(dir, "out.bin"))
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestRenewOutputPath(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "file.txt")
	if got := RenewOutputPath(target); got != target {
		t.Errorf("expected unchanged path, got %q", got)
	}

	os.WriteFile(target, []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "file-(1).txt"), []byte("x"), 0644)
	if got := RenewOutputPath(target); got != filepath.Join(dir, "file-(2).txt") {
		t.Errorf("expected file-(2).txt, got %q", got)
	}
}

func TestCleanDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.bin.temp", "b.bin.part1.temp", "b.bin.part2.temp", "keep.bin"} {
		os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644)
	}

	removed, err := CleanDir(dir)
	if err != nil {
		t.Fatalf("CleanDir: %v", err)
	}
	sort.Strings(removed)
	if len(removed) != 3 || removed[0] != "a.bin.temp" {
		t.Errorf("unexpected removed list: %v", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "keep.bin")); err != nil {
		t.Errorf("keep.bin should survive: %v", err)
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"100", 100},
		{"100B", 100},
		{"32KiB", 32 * 1024},
		{"1.5MiB", 1536 * 1024},
		{"1MB", 1000 * 1000},
		{"2GiB", 2 << 30},
	}
	for _, tt := range tests {
		got, err := ParseBytes(tt.input)
		if err != nil {
			t.Errorf("ParseBytes(%q): %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, got, tt.expected)
		}
	}
	if _, err := ParseBytes("lots"); err == nil {
		t.Error("expected error for invalid input")
	}
}
