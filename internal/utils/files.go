package utils

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ResolveFileName derives a file name from the last path component of rawURL.
// It never fails: unparsable URLs and URLs without a path yield DefaultFileName.
func ResolveFileName(rawURL string) string {
	if strings.TrimSpace(rawURL) == "" {
		return DefaultFileName
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" {
		return DefaultFileName
	}
	name := path.Base(parsed.Path)
	name = unsafeNameRegex.ReplaceAllString(name, "_")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == "/" || name == "_" {
		return DefaultFileName
	}
	return name
}

func TempPath(finalPath string) string {
	return finalPath + ".temp"
}

func PartPath(finalPath string, number int) string {
	return fmt.Sprintf("%s.part%d.temp", finalPath, number)
}

// Merge truncates destination and appends every part in the given order.
// A failed merge leaves destination partially written.
func Merge(parts []string, destination string) error {
	log := GetLogger("merger")
	destFile, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrIO, destination, err)
	}
	defer destFile.Close()

	var totalWritten int64
	for _, partPath := range parts {
		written, err := appendFile(destFile, partPath)
		if err != nil {
			return err
		}
		totalWritten += written
	}
	if err := destFile.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrIO, destination, err)
	}
	log.Debug().Int("parts", len(parts)).Int64("totalBytes", totalWritten).Str("outputFile", destination).Msg("Merge completed")
	return nil
}

func appendFile(dst io.Writer, partPath string) (int64, error) {
	src, err := os.Open(partPath)
	if err != nil {
		return 0, fmt.Errorf("%w: open part %s: %w", ErrIO, partPath, err)
	}
	defer src.Close()
	written, err := io.Copy(dst, src)
	if err != nil {
		return written, fmt.Errorf("%w: copy part %s: %w", ErrIO, partPath, err)
	}
	return written, nil
}

// RemoveFiles deletes every path, ignoring ones that are already gone.
func RemoveFiles(paths ...string) error {
	var firstErr error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("%w: remove %s: %w", ErrIO, p, err)
		}
	}
	return firstErr
}

// CleanDir removes leftover partial files (".temp" and ".partN.temp") from dir
// and returns the names it deleted.
func CleanDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".temp") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return removed, err
		}
		removed = append(removed, entry.Name())
	}
	return removed, nil
}

// FileSize returns the size of p, or 0 if it does not exist.
func FileSize(p string) int64 {
	info, err := os.Stat(p)
	if err != nil {
		return 0
	}
	return info.Size()
}
