package utils

import (
	"errors"
	"regexp"
)

const DefaultChunkSize = 32 * 1024 // 32KB read buffer per fetch
const DefaultFileName = "unknown.file"
const LogFile = ".rangedl.log"
const ToolUserAgent = "rangedl/1.0"

// Registry-level validation errors, returned before any I/O.
var (
	ErrInvalidURL   = errors.New("invalid url")
	ErrInvalidPath  = errors.New("invalid path")
	ErrDuplicateURL = errors.New("url is already tracked")
	ErrUnknownTask  = errors.New("task is not tracked by this registry")
)

// Protocol and file system failures, fatal to the current attempt.
var (
	ErrProbeFailed      = errors.New("probe failed")
	ErrSizeUnknown      = errors.New("server did not report a content length")
	ErrRangeUnsupported = errors.New("range requests are not supported")
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrStalled          = errors.New("no data received within timeout")
	ErrIO               = errors.New("i/o error")
)

// Cancellation causes. Neither is a failure.
var (
	ErrPaused    = errors.New("download paused")
	ErrCancelled = errors.New("download cancelled")
)

var unsafeNameRegex = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]+`)

// Local-only User-Agent list
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.3 Safari/605.1.15",
	"curl/7.88.1",
	"Wget/1.21.4",
}
