// Package rangehttp performs resumable HTTP fetches into local files: a HEAD
// probe, ranged GETs streamed in chunks, and the unsegmented download path.
package rangehttp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tanq16/rangedl/internal/utils"
)

type FileInfo struct {
	Size          int64
	AcceptsRanges bool
	ContentType   string
}

type EventKind int

const (
	EventBytes     EventKind = iota // Bytes holds the chunk length
	EventStarted                    // Bytes holds the offset the stream starts from
	EventCompleted                  // final file is in place
	EventError                      // Err holds the failure
)

// Event is an immutable notification from one fetch. Events are sent with a
// blocking send, so the receiver must drain the channel until the call returns.
type Event struct {
	Kind  EventKind
	Bytes int64
	Err   error
}

type Options struct {
	ChunkSize    int
	StallTimeout time.Duration // defaults to the client timeout
}

type Engine struct {
	client       *utils.HTTPClient
	chunkSize    int
	stallTimeout time.Duration
}

func New(client *utils.HTTPClient, opts Options) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = utils.DefaultChunkSize
	}
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = client.Timeout()
	}
	return &Engine{
		client:       client,
		chunkSize:    opts.ChunkSize,
		stallTimeout: opts.StallTimeout,
	}
}

// Probe issues a HEAD request and reports the content length and range support.
func (e *Engine) Probe(ctx context.Context, url string) (FileInfo, error) {
	log := utils.GetLogger("engine")
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%w: %v", utils.ErrProbeFailed, err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return FileInfo{}, context.Cause(ctx)
		}
		return FileInfo{}, fmt.Errorf("%w: %v", utils.ErrProbeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return FileInfo{}, fmt.Errorf("%w: server returned %d", utils.ErrProbeFailed, resp.StatusCode)
	}
	size := resp.ContentLength
	if size <= 0 {
		if parsed, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
			size = parsed
		}
	}
	if size <= 0 {
		return FileInfo{}, utils.ErrSizeUnknown
	}
	info := FileInfo{
		Size:          size,
		AcceptsRanges: strings.EqualFold(strings.TrimSpace(resp.Header.Get("Accept-Ranges")), "bytes"),
		ContentType:   resp.Header.Get("Content-Type"),
	}
	log.Debug().Str("url", url).Int64("size", info.Size).Bool("ranges", info.AcceptsRanges).Msg("Probe completed")
	return info, nil
}

func emit(events chan<- Event, ev Event) {
	if events != nil {
		events <- ev
	}
}
