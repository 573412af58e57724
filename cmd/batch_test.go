package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadBatchFile(t *testing.T) {
	content := `
- link: https://example.com/a.iso
  category: Programs
- link: https://example.com/b.zip
  dir: /tmp/elsewhere
- category: Video
`
	path := filepath.Join(t.TempDir(), "batch.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := readBatchFile(path)
	if err != nil {
		t.Fatalf("readBatchFile: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].URL != "https://example.com/a.iso" || entries[0].Category != "Programs" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Dir != "/tmp/elsewhere" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
}

func TestReadBatchFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	os.WriteFile(path, []byte("link: [unclosed"), 0644)
	if _, err := readBatchFile(path); err == nil {
		t.Error("expected a parse error")
	}
	if _, err := readBatchFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected a read error")
	}
}
