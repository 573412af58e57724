package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tanq16/rangedl/internal/utils"
	"gopkg.in/yaml.v3"
)

// Settings is everything the CLI feeds into the registry and engine.
type Settings struct {
	DownloadDir      string
	Categories       []string
	Segments         int
	MinSegmentSize   int64
	ChunkSize        int64
	Timeout          time.Duration
	KeepAliveTimeout time.Duration
	UserAgent        string
	Workers          int
}

func Default() Settings {
	dir := "."
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, "Downloads")
	}
	return Settings{
		DownloadDir:      dir,
		Categories:       []string{"General", "Compressed", "Programs", "Video", "Documents"},
		Segments:         4,
		MinSegmentSize:   1 << 20,
		ChunkSize:        utils.DefaultChunkSize,
		Timeout:          5 * time.Minute,
		KeepAliveTimeout: 90 * time.Second,
		UserAgent:        utils.ToolUserAgent,
		Workers:          1,
	}
}

// yamlSettings keeps sizes and durations as human strings.
type yamlSettings struct {
	DownloadDir      string   `yaml:"download_dir"`
	Categories       []string `yaml:"categories"`
	Segments         int      `yaml:"segments"`
	MinSegmentSize   string   `yaml:"min_segment_size"`
	ChunkSize        string   `yaml:"chunk_size"`
	Timeout          string   `yaml:"timeout"`
	KeepAliveTimeout string   `yaml:"keep_alive_timeout"`
	UserAgent        string   `yaml:"user_agent"`
	Workers          int      `yaml:"workers"`
}

// LoadFromFile reads a YAML settings file on top of Default().
func LoadFromFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config file: %w", err)
	}
	var ys yamlSettings
	if err := yaml.Unmarshal(data, &ys); err != nil {
		return Settings{}, fmt.Errorf("parse config file: %w", err)
	}

	s := Default()
	if ys.DownloadDir != "" {
		s.DownloadDir = ys.DownloadDir
	}
	if len(ys.Categories) > 0 {
		s.Categories = ys.Categories
	}
	if ys.Segments != 0 {
		s.Segments = ys.Segments
	}
	if ys.Workers != 0 {
		s.Workers = ys.Workers
	}
	if ys.UserAgent != "" {
		s.UserAgent = ys.UserAgent
	}
	if err := setSize(&s.MinSegmentSize, ys.MinSegmentSize, "min_segment_size"); err != nil {
		return Settings{}, err
	}
	if err := setSize(&s.ChunkSize, ys.ChunkSize, "chunk_size"); err != nil {
		return Settings{}, err
	}
	if err := setDuration(&s.Timeout, ys.Timeout, "timeout"); err != nil {
		return Settings{}, err
	}
	if err := setDuration(&s.KeepAliveTimeout, ys.KeepAliveTimeout, "keep_alive_timeout"); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func setSize(dst *int64, value, name string) error {
	if value == "" {
		return nil
	}
	n, err := utils.ParseBytes(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, value, name string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = d
	return nil
}

// LoadFromEnv applies RANGEDL_* variables. When envFile is set and exists it
// seeds the environment first without overriding variables already present.
func (s *Settings) LoadFromEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if v := os.Getenv("RANGEDL_DOWNLOAD_DIR"); v != "" {
		s.DownloadDir = v
	}
	if v := os.Getenv("RANGEDL_CATEGORIES"); v != "" {
		var categories []string
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				categories = append(categories, c)
			}
		}
		s.Categories = categories
	}
	if v := os.Getenv("RANGEDL_SEGMENTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse RANGEDL_SEGMENTS: %w", err)
		}
		s.Segments = n
	}
	if v := os.Getenv("RANGEDL_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse RANGEDL_WORKERS: %w", err)
		}
		s.Workers = n
	}
	if err := setSize(&s.MinSegmentSize, os.Getenv("RANGEDL_MIN_SEGMENT_SIZE"), "RANGEDL_MIN_SEGMENT_SIZE"); err != nil {
		return err
	}
	if err := setSize(&s.ChunkSize, os.Getenv("RANGEDL_CHUNK_SIZE"), "RANGEDL_CHUNK_SIZE"); err != nil {
		return err
	}
	if err := setDuration(&s.Timeout, os.Getenv("RANGEDL_TIMEOUT"), "RANGEDL_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&s.KeepAliveTimeout, os.Getenv("RANGEDL_KEEP_ALIVE_TIMEOUT"), "RANGEDL_KEEP_ALIVE_TIMEOUT"); err != nil {
		return err
	}
	if v := os.Getenv("RANGEDL_USER_AGENT"); v != "" {
		s.UserAgent = v
	}
	return nil
}

func (s *Settings) Validate() error {
	if s.DownloadDir == "" {
		return errors.New("config: download_dir is required")
	}
	if s.Segments <= 0 {
		return errors.New("config: segments must be positive")
	}
	if s.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if s.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if s.MinSegmentSize < 0 {
		return errors.New("config: min_segment_size must not be negative")
	}
	if s.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	return nil
}

// Merge returns s with the non-zero fields of override applied.
func (s Settings) Merge(override Settings) Settings {
	if override.DownloadDir != "" {
		s.DownloadDir = override.DownloadDir
	}
	if len(override.Categories) > 0 {
		s.Categories = override.Categories
	}
	if override.Segments != 0 {
		s.Segments = override.Segments
	}
	if override.MinSegmentSize != 0 {
		s.MinSegmentSize = override.MinSegmentSize
	}
	if override.ChunkSize != 0 {
		s.ChunkSize = override.ChunkSize
	}
	if override.Timeout != 0 {
		s.Timeout = override.Timeout
	}
	if override.KeepAliveTimeout != 0 {
		s.KeepAliveTimeout = override.KeepAliveTimeout
	}
	if override.UserAgent != "" {
		s.UserAgent = override.UserAgent
	}
	if override.Workers != 0 {
		s.Workers = override.Workers
	}
	return s
}

// Destination returns the directory for category, creating it. An empty
// category means the download directory itself.
func (s Settings) Destination(category string) (string, error) {
	dir := s.DownloadDir
	if category != "" {
		if !slices.Contains(s.Categories, category) {
			return "", fmt.Errorf("%w: unknown category %q", utils.ErrInvalidPath, category)
		}
		dir = filepath.Join(dir, category)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrInvalidPath, err)
	}
	return dir, nil
}
