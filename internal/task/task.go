// Package task aggregates one download, segmented or single-stream, into the
// unit a user starts, pauses and watches.
package task

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	rangehttp "github.com/tanq16/rangedl/internal/downloaders/http"
	"github.com/tanq16/rangedl/internal/rate"
	"github.com/tanq16/rangedl/internal/segment"
	"github.com/tanq16/rangedl/internal/utils"
)

type Status int

const (
	NotStarted Status = iota
	Pending
	Downloading
	Paused
	Completed
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Pending:
		return "pending"
	case Downloading:
		return "downloading"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Engine is everything a task needs from the HTTP layer.
type Engine interface {
	segment.Fetcher
	Download(ctx context.Context, url, finalPath string, events chan<- rangehttp.Event) error
}

type Options struct {
	Segments       int
	MinSegmentSize int64
	RateInterval   time.Duration
}

type mode int

const (
	modeUndecided mode = iota
	modeSingle
	modeSegmented
)

type Task struct {
	id       string
	url      string
	dir      string
	fileName string
	engine   Engine
	opts     Options

	mu         sync.RWMutex
	status     Status
	totalSize  int64
	downloaded int64
	rate       float64
	errMsg     string
	mode       mode
	segments   []*segment.Segment
	running    bool
	cancel     context.CancelCauseFunc
	done       chan struct{}

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// New resolves the file name from url; an existing file in dir gets a
// non-colliding "name-(N).ext" sibling.
func New(url, dir string, eng Engine, opts Options) *Task {
	if opts.Segments < 1 {
		opts.Segments = 1
	}
	if opts.RateInterval <= 0 {
		opts.RateInterval = time.Second
	}
	finalPath := utils.RenewOutputPath(filepath.Join(dir, utils.ResolveFileName(url)))
	id := uuid.NewString()
	return &Task{
		id:       id,
		url:      url,
		dir:      dir,
		fileName: filepath.Base(finalPath),
		engine:   eng,
		opts:     opts,
		subs:     make(map[int]func(Event)),
	}
}

// logger is looked up per call so a later SetLogOutput is honoured.
func (t *Task) logger() zerolog.Logger {
	return utils.GetLogger("task").With().Str("task", t.id[:8]).Str("url", t.url).Logger()
}

func (t *Task) ID() string       { return t.id }
func (t *Task) URL() string      { return t.url }
func (t *Task) Dir() string      { return t.dir }
func (t *Task) FileName() string { return t.fileName }
func (t *Task) FilePath() string { return filepath.Join(t.dir, t.fileName) }

func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *Task) TotalSize() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalSize
}

func (t *Task) DownloadedSize() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.downloaded
}

// ProgressPercentage is floor(downloaded*100/total), 0 while the size is unknown.
func (t *Task) ProgressPercentage() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return percentage(t.downloaded, t.totalSize)
}

func percentage(downloaded, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(min(downloaded*100/total, 100))
}

func (t *Task) TransferRate() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rate
}

// TimeLeft returns rate.Unbounded when no progress is being made.
func (t *Task) TimeLeft() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return rate.TimeLeft(t.totalSize, t.downloaded, t.rate)
}

// Error is the captured message of the last failure.
func (t *Task) Error() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.errMsg
}

// Active reports whether a fetch is running.
func (t *Task) Active() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

type Snapshot struct {
	ID             string
	URL            string
	Dir            string
	FileName       string
	Status         Status
	TotalSize      int64
	DownloadedSize int64
	Progress       int
	TransferRate   float64
	TimeLeft       time.Duration
	Error          string
	Segments       []segment.Snapshot
}

func (t *Task) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := Snapshot{
		ID:             t.id,
		URL:            t.url,
		Dir:            t.dir,
		FileName:       t.fileName,
		Status:         t.status,
		TotalSize:      t.totalSize,
		DownloadedSize: t.downloaded,
		Progress:       percentage(t.downloaded, t.totalSize),
		TransferRate:   t.rate,
		TimeLeft:       rate.TimeLeft(t.totalSize, t.downloaded, t.rate),
		Error:          t.errMsg,
	}
	for _, s := range t.segments {
		snap.Segments = append(snap.Segments, s.Snapshot())
	}
	return snap
}

// SetPending marks an idle task as queued.
func (t *Task) SetPending() {
	t.mu.Lock()
	if t.running || t.status == Completed || t.status == Pending {
		t.mu.Unlock()
		return
	}
	t.status = Pending
	t.mu.Unlock()
	t.publish(EventStatus)
}

// Start runs the download and blocks until it completes, fails, or is
// stopped. It is a no-op while a fetch is already running or once Completed.
// The returned error is the failure, or ErrPaused / ErrCancelled when stopped.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running || t.status == Completed {
		t.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	done := make(chan struct{})
	defer close(done)
	t.running = true
	t.cancel = cancel
	t.done = done
	t.status = Downloading
	t.errMsg = ""
	t.rate = 0
	t.mu.Unlock()
	t.publish(EventStatus)
	log := t.logger()
	log.Debug().Msg("Starting download")

	err := t.run(runCtx)
	return t.finish(runCtx, err)
}

func (t *Task) run(ctx context.Context) error {
	info, err := t.engine.Probe(ctx, t.url)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.totalSize = info.Size
	if t.mode == modeUndecided {
		t.mode = modeSingle
		if info.AcceptsRanges && t.opts.Segments > 1 && info.Size/int64(t.opts.Segments) >= t.opts.MinSegmentSize {
			t.mode = modeSegmented
		}
	}
	if t.mode == modeSegmented && t.segments == nil {
		t.segments, err = segment.Partition(t.url, t.FilePath(), info.Size, t.opts.Segments)
	}
	m := t.mode
	t.mu.Unlock()
	if err != nil {
		return err
	}

	log := t.logger()
	if m == modeSegmented {
		log.Debug().Int("segments", t.opts.Segments).Int64("size", info.Size).Msg("Using segmented download")
		return t.runSegmented(ctx)
	}
	log.Debug().Int64("size", info.Size).Msg("Using single-stream download")
	return t.runSingle(ctx)
}

func (t *Task) finish(runCtx context.Context, err error) error {
	log := t.logger()
	t.mu.Lock()
	t.running = false
	t.cancel = nil
	t.rate = 0
	var kind EventKind
	switch {
	case err == nil:
		t.status = Completed
		t.downloaded = t.totalSize
		kind = EventCompleted
		log.Info().Str("path", t.FilePath()).Msg("Download completed")
	case runCtx.Err() != nil:
		err = context.Cause(runCtx)
		if errors.Is(err, utils.ErrPaused) && t.status != Cancelled {
			t.status = Paused
		} else {
			t.status = Cancelled
		}
		kind = EventStatus
		log.Debug().Str("status", t.status.String()).Msg("Download stopped")
	default:
		t.status = Failed
		t.errMsg = err.Error()
		kind = EventError
		log.Error().Err(err).Msg("Download failed")
	}
	t.mu.Unlock()
	t.publish(kind)
	return err
}

// Pause stops the running fetch, keeping partial files for a later Start.
func (t *Task) Pause() {
	t.mu.Lock()
	switch {
	case t.running:
		t.status = Paused
		t.cancel(utils.ErrPaused)
	case t.status == NotStarted || t.status == Pending:
		t.status = Paused
	default:
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.publish(EventStatus)
}

// Cancel marks the task Cancelled and stops any running fetch. Partial files
// are kept; a Completed task is left alone.
func (t *Task) Cancel() {
	t.mu.Lock()
	if t.status == Completed {
		t.mu.Unlock()
		return
	}
	t.status = Cancelled
	if t.running {
		t.cancel(utils.ErrCancelled)
	}
	t.mu.Unlock()
	t.publish(EventStatus)
}

// Wait blocks until the running fetch, if any, has returned.
func (t *Task) Wait() {
	t.mu.RLock()
	done, running := t.done, t.running
	t.mu.RUnlock()
	if running {
		<-done
	}
}

// RemovePartials deletes the temp and segment files of an idle task.
func (t *Task) RemovePartials() error {
	t.mu.RLock()
	if t.running {
		t.mu.RUnlock()
		return fmt.Errorf("task %s is still running", t.id)
	}
	paths := []string{utils.TempPath(t.FilePath())}
	for _, s := range t.segments {
		paths = append(paths, s.Path())
	}
	t.mu.RUnlock()
	return utils.RemoveFiles(paths...)
}
