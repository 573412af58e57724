package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tanq16/rangedl/internal/utils"
)

func TestDefaultSettings(t *testing.T) {
	s := Default()

	if s.Segments != 4 {
		t.Errorf("expected default segments 4, got %d", s.Segments)
	}
	if s.MinSegmentSize != 1<<20 {
		t.Errorf("expected default min segment size 1MiB, got %d", s.MinSegmentSize)
	}
	if s.ChunkSize != 32*1024 {
		t.Errorf("expected default chunk size 32KiB, got %d", s.ChunkSize)
	}
	if s.Timeout != 5*time.Minute {
		t.Errorf("expected default timeout 5m, got %v", s.Timeout)
	}
	if len(s.Categories) != 5 {
		t.Errorf("expected 5 default categories, got %v", s.Categories)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
download_dir: /data/downloads
categories: [Music, Books]
segments: 8
min_segment_size: 4MiB
chunk_size: 64KiB
timeout: 30s
keep_alive_timeout: 10s
workers: 3
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	s, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if s.DownloadDir != "/data/downloads" {
		t.Errorf("expected download dir /data/downloads, got %s", s.DownloadDir)
	}
	if len(s.Categories) != 2 || s.Categories[0] != "Music" {
		t.Errorf("unexpected categories %v", s.Categories)
	}
	if s.Segments != 8 || s.Workers != 3 {
		t.Errorf("expected 8 segments and 3 workers, got %d and %d", s.Segments, s.Workers)
	}
	if s.MinSegmentSize != 4<<20 || s.ChunkSize != 64<<10 {
		t.Errorf("unexpected sizes %d / %d", s.MinSegmentSize, s.ChunkSize)
	}
	if s.Timeout != 30*time.Second || s.KeepAliveTimeout != 10*time.Second {
		t.Errorf("unexpected timeouts %v / %v", s.Timeout, s.KeepAliveTimeout)
	}
	if s.UserAgent != utils.ToolUserAgent {
		t.Errorf("unset fields should keep defaults, got user agent %q", s.UserAgent)
	}
}

func TestLoadFromYAMLInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(configPath, []byte("timeout: soon\n"), 0644)
	if _, err := LoadFromFile(configPath); err == nil {
		t.Error("expected an error for an invalid duration")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RANGEDL_SEGMENTS", "6")
	t.Setenv("RANGEDL_CHUNK_SIZE", "16KiB")
	t.Setenv("RANGEDL_TIMEOUT", "1m")
	t.Setenv("RANGEDL_CATEGORIES", "A, B ,C")

	s := Default()
	if err := s.LoadFromEnv(""); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if s.Segments != 6 || s.ChunkSize != 16<<10 || s.Timeout != time.Minute {
		t.Errorf("env values not applied: %+v", s)
	}
	if len(s.Categories) != 3 || s.Categories[1] != "B" {
		t.Errorf("unexpected categories %v", s.Categories)
	}

	t.Setenv("RANGEDL_WORKERS", "many")
	if err := s.LoadFromEnv(""); err == nil {
		t.Error("expected an error for a non-numeric worker count")
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(envPath, []byte("RANGEDL_USER_AGENT=from-env-file\n"), 0644)
	t.Setenv("RANGEDL_USER_AGENT", "")
	os.Unsetenv("RANGEDL_USER_AGENT")

	s := Default()
	if err := s.LoadFromEnv(envPath); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if s.UserAgent != "from-env-file" {
		t.Errorf("expected user agent from .env, got %q", s.UserAgent)
	}

	if err := s.LoadFromEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("a missing env file should be ignored: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"no dir", func(s *Settings) { s.DownloadDir = "" }},
		{"zero segments", func(s *Settings) { s.Segments = 0 }},
		{"zero workers", func(s *Settings) { s.Workers = 0 }},
		{"zero chunk", func(s *Settings) { s.ChunkSize = 0 }},
		{"zero timeout", func(s *Settings) { s.Timeout = 0 }},
	}
	for _, tt := range tests {
		s := Default()
		tt.mutate(&s)
		if err := s.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	merged := base.Merge(Settings{Segments: 2, UserAgent: "custom"})
	if merged.Segments != 2 || merged.UserAgent != "custom" {
		t.Errorf("override not applied: %+v", merged)
	}
	if merged.ChunkSize != base.ChunkSize || merged.DownloadDir != base.DownloadDir {
		t.Error("zero override fields must keep base values")
	}
}

func TestDestination(t *testing.T) {
	s := Default()
	s.DownloadDir = t.TempDir()

	dir, err := s.Destination("")
	if err != nil || dir != s.DownloadDir {
		t.Errorf("expected base dir, got %q (%v)", dir, err)
	}
	dir, err = s.Destination("Video")
	if err != nil {
		t.Fatalf("Destination: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() || filepath.Base(dir) != "Video" {
		t.Errorf("expected created Video directory, got %q", dir)
	}
	if _, err := s.Destination("Unknown"); !errors.Is(err, utils.ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath for an unknown category, got %v", err)
	}
}
