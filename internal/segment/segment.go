// Package segment binds one byte range of a download to its own partial file.
package segment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	rangehttp "github.com/tanq16/rangedl/internal/downloaders/http"
	"github.com/tanq16/rangedl/internal/utils"
)

type Status int

const (
	NotStarted Status = iota
	Downloading
	Completed
	Failed
	Cancelled
	Paused
	Merging
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Downloading:
		return "downloading"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case Paused:
		return "paused"
	case Merging:
		return "merging"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Fetcher is the part of the engine a segment needs.
type Fetcher interface {
	Probe(ctx context.Context, url string) (rangehttp.FileInfo, error)
	Fetch(ctx context.Context, r rangehttp.RangeRequest, events chan<- rangehttp.Event) (int64, error)
}

type MessageKind int

const (
	ProgressChanged MessageKind = iota
	StatusChanged
)

// Message is an immutable report from a segment to its owning task.
type Message struct {
	Kind            MessageKind
	Number          int
	BytesDownloaded int64
	Status          Status
	Err             error
}

type Segment struct {
	url    string
	number int
	start  int64
	path   string

	mu         sync.RWMutex
	end        int64
	downloaded int64
	status     Status
	err        error
	cancel     context.CancelCauseFunc
}

func New(url string, number int, startByte, endByte int64, path string) (*Segment, error) {
	if number < 1 {
		return nil, fmt.Errorf("segment number must be 1 or more, got %d", number)
	}
	if startByte < 0 || endByte < startByte {
		return nil, fmt.Errorf("invalid segment range [%d, %d]", startByte, endByte)
	}
	return &Segment{
		url:    url,
		number: number,
		start:  startByte,
		end:    endByte,
		path:   path,
	}, nil
}

// Partition splits total bytes into count contiguous segments backed by
// "<finalPath>.partN.temp"; the last segment takes the remainder.
func Partition(url, finalPath string, total int64, count int) ([]*Segment, error) {
	if total <= 0 {
		return nil, utils.ErrSizeUnknown
	}
	if count < 1 {
		count = 1
	}
	if int64(count) > total {
		count = int(total)
	}
	size := total / int64(count)
	segments := make([]*Segment, 0, count)
	for i := 0; i < count; i++ {
		start := int64(i) * size
		end := start + size - 1
		if i == count-1 {
			end = total - 1
		}
		s, err := New(url, i+1, start, end, utils.PartPath(finalPath, i+1))
		if err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	return segments, nil
}

func (s *Segment) Number() int      { return s.number }
func (s *Segment) StartByte() int64 { return s.start }
func (s *Segment) Path() string     { return s.path }

func (s *Segment) EndByte() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.end
}

// Span is the number of bytes the segment covers.
func (s *Segment) Span() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.span()
}

func (s *Segment) span() int64 {
	return s.end - s.start + 1
}

func (s *Segment) BytesDownloaded() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.downloaded
}

func (s *Segment) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Segment) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Progress is the floored completion percentage, 0 for an empty span.
func (s *Segment) Progress() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return progress(s.downloaded, s.span())
}

func progress(downloaded, span int64) int {
	if span <= 0 {
		return 0
	}
	return int(downloaded * 100 / span)
}

type Snapshot struct {
	Number          int
	StartByte       int64
	EndByte         int64
	BytesDownloaded int64
	Progress        int
	Status          Status
	Error           string
}

func (s *Segment) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Number:          s.number,
		StartByte:       s.start,
		EndByte:         s.end,
		BytesDownloaded: s.downloaded,
		Progress:        progress(s.downloaded, s.span()),
		Status:          s.status,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

// Restore picks up the length of an existing partial file. A file longer than
// the span is discarded.
func (s *Segment) Restore() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restore()
}

func (s *Segment) restore() int64 {
	size := utils.FileSize(s.path)
	if size > s.span() {
		log := utils.GetLogger("segment")
		log.Warn().Int("segment", s.number).Int64("size", size).Msg("Partial file is larger than the segment, restarting")
		os.Remove(s.path)
		size = 0
	}
	s.downloaded = size
	return size
}

// Start fetches [start+downloaded, end] into the segment file. It is a no-op
// while the segment is Downloading or Merging, or once it is Completed.
func (s *Segment) Start(ctx context.Context, f Fetcher, out chan<- Message) error {
	log := utils.GetLogger("segment").With().Int("segment", s.number).Logger()
	s.mu.Lock()
	if s.status == Downloading || s.status == Merging || s.status == Completed {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	s.cancel = cancel
	s.status = Downloading
	s.err = nil
	s.mu.Unlock()
	s.send(out, Message{Kind: StatusChanged, Status: Downloading})

	info, err := f.Probe(runCtx, s.url)
	if err != nil {
		return s.finish(runCtx, out, err)
	}
	if !info.AcceptsRanges {
		return s.finish(runCtx, out, fmt.Errorf("%w: segment %d", utils.ErrRangeUnsupported, s.number))
	}

	s.mu.Lock()
	if s.end > info.Size-1 {
		log.Debug().Int64("end", s.end).Int64("size", info.Size).Msg("Clamping segment end to content size")
		s.end = info.Size - 1
	}
	if s.end < s.start {
		s.mu.Unlock()
		return s.finish(runCtx, out, fmt.Errorf("segment %d starts past the end of the content (%d bytes)", s.number, info.Size))
	}
	offset := s.restore()
	span, end := s.span(), s.end
	s.mu.Unlock()
	s.send(out, Message{Kind: ProgressChanged, BytesDownloaded: offset})

	if offset < span {
		log.Debug().Int64("offset", offset).Str("range", fmt.Sprintf("%d-%d", s.start+offset, end)).Msg("Fetching segment")
		events := make(chan rangehttp.Event, 64)
		relayed := make(chan struct{})
		go func() {
			defer close(relayed)
			for ev := range events {
				if ev.Kind != rangehttp.EventBytes {
					continue
				}
				s.mu.Lock()
				s.downloaded += ev.Bytes
				current := s.downloaded
				s.mu.Unlock()
				s.send(out, Message{Kind: ProgressChanged, BytesDownloaded: current})
			}
		}()
		req := rangehttp.RangeRequest{URL: s.url, Path: s.path, Start: s.start + offset, End: end, Append: offset > 0}
		_, err = f.Fetch(runCtx, req, events)
		close(events)
		<-relayed
		if err != nil {
			return s.finish(runCtx, out, err)
		}
	}
	return s.finish(runCtx, out, nil)
}

func (s *Segment) finish(ctx context.Context, out chan<- Message, err error) error {
	s.mu.Lock()
	s.cancel = nil
	switch {
	case err == nil:
		s.status = Completed
	case ctx.Err() != nil:
		err = context.Cause(ctx)
		if errors.Is(err, utils.ErrCancelled) {
			s.status = Cancelled
		} else {
			s.status = Paused
		}
	default:
		s.status = Failed
		s.err = err
	}
	status := s.status
	s.mu.Unlock()
	s.send(out, Message{Kind: StatusChanged, Status: status, Err: err})
	return err
}

// Cancel requests cooperative cancellation of a running fetch and returns at once.
func (s *Segment) Cancel() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel(utils.ErrCancelled)
	}
}

func (s *Segment) MarkMerging() { s.setStatus(Merging) }

func (s *Segment) MarkCompleted() { s.setStatus(Completed) }

func (s *Segment) setStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *Segment) send(out chan<- Message, m Message) {
	if out == nil {
		return
	}
	m.Number = s.number
	if m.Kind == StatusChanged {
		m.BytesDownloaded = s.BytesDownloaded()
	}
	out <- m
}
