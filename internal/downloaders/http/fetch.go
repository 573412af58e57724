package rangehttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tanq16/rangedl/internal/utils"
)

type RangeRequest struct {
	URL    string
	Path   string
	Start  int64
	End    int64 // inclusive; negative means to the end of the content
	Append bool
}

func (r RangeRequest) ranged() bool {
	return r.Start > 0 || r.End >= 0
}

func (r RangeRequest) header() string {
	if r.End < 0 {
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// contentRangeStart parses the first byte of a "bytes a-b/size" header.
func contentRangeStart(header string) (int64, bool) {
	byteRange, found := strings.CutPrefix(header, "bytes ")
	if !found {
		return 0, false
	}
	first, _, found := strings.Cut(byteRange, "-")
	if !found {
		return 0, false
	}
	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, false
	}
	return start, true
}

// Fetch streams one GET into r.Path and returns the bytes written by this call.
// On cancellation it returns the context cause and leaves the file as written.
func (e *Engine) Fetch(ctx context.Context, r RangeRequest, events chan<- Event) (int64, error) {
	log := utils.GetLogger("engine").With().Str("url", r.URL).Str("path", r.Path).Logger()

	flag := os.O_WRONLY | os.O_CREATE
	if r.Append {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	outFile, err := os.OpenFile(r.Path, flag, 0644)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", utils.ErrIO, r.Path, err)
	}
	defer outFile.Close()

	fetchCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, r.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating GET request: %v", err)
	}
	if r.ranged() {
		req.Header.Set("Range", r.header())
		log.Debug().Str("range", r.header()).Msg("Requesting range")
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, context.Cause(ctx)
		}
		return 0, fmt.Errorf("error executing GET request: %w", err)
	}
	defer resp.Body.Close()

	if r.ranged() && resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("%w: range %s answered with %d", utils.ErrRangeUnsupported, r.header(), resp.StatusCode)
	}
	if !r.ranged() && resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: %d", utils.ErrUnexpectedStatus, resp.StatusCode)
	}
	if r.ranged() {
		if start, ok := contentRangeStart(resp.Header.Get("Content-Range")); ok && start != r.Start {
			return 0, fmt.Errorf("%w: asked for offset %d, got %d", utils.ErrRangeUnsupported, r.Start, start)
		}
	}
	expected := resp.ContentLength
	var body io.Reader = resp.Body
	if r.End >= 0 {
		// a server may answer with more than was asked for; stop at the range end
		expected = r.End - r.Start + 1
		body = io.LimitReader(resp.Body, expected)
	}

	watchdog := time.AfterFunc(e.stallTimeout, func() { cancel(utils.ErrStalled) })
	defer watchdog.Stop()

	buffer := make([]byte, e.chunkSize)
	var written int64
	for {
		if ctx.Err() != nil {
			return written, context.Cause(ctx)
		}
		bytesRead, readErr := body.Read(buffer)
		if bytesRead > 0 {
			watchdog.Reset(e.stallTimeout)
			if _, writeErr := outFile.Write(buffer[:bytesRead]); writeErr != nil {
				return written, fmt.Errorf("%w: write %s: %w", utils.ErrIO, r.Path, writeErr)
			}
			written += int64(bytesRead)
			emit(events, Event{Kind: EventBytes, Bytes: int64(bytesRead)})
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			if ctx.Err() != nil {
				return written, context.Cause(ctx)
			}
			if errors.Is(context.Cause(fetchCtx), utils.ErrStalled) {
				return written, fmt.Errorf("%w after %d bytes (%s)", utils.ErrStalled, written, e.stallTimeout)
			}
			return written, fmt.Errorf("error reading response body: %w", readErr)
		}
	}
	if expected >= 0 && written != expected {
		return written, fmt.Errorf("size mismatch: expected %d bytes, got %d", expected, written)
	}
	if err := outFile.Sync(); err != nil {
		return written, fmt.Errorf("%w: sync %s: %w", utils.ErrIO, r.Path, err)
	}
	return written, nil
}
