package task

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	rangehttp "github.com/tanq16/rangedl/internal/downloaders/http"
	"github.com/tanq16/rangedl/internal/rate"
	"github.com/tanq16/rangedl/internal/segment"
	"github.com/tanq16/rangedl/internal/utils"
)

func (t *Task) runSingle(ctx context.Context) error {
	events := make(chan rangehttp.Event, 64)
	folded := make(chan struct{})
	go func() {
		defer close(folded)
		t.foldEngine(events)
	}()
	err := t.engine.Download(ctx, t.url, t.FilePath(), events)
	close(events)
	<-folded
	return err
}

// foldEngine is the only writer of the byte counter during a single-stream run.
func (t *Task) foldEngine(events <-chan rangehttp.Event) {
	downloaded := t.DownloadedSize()
	estimator := rate.NewEstimator(downloaded, time.Now())
	ticker := time.NewTicker(t.opts.RateInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case rangehttp.EventStarted:
				downloaded = ev.Bytes
				estimator.Reset(downloaded, time.Now())
			case rangehttp.EventBytes:
				downloaded += ev.Bytes
			default:
				continue
			}
			t.setDownloaded(downloaded)
		case now := <-ticker.C:
			t.setRate(estimator.Sample(downloaded, now))
		}
	}
}

func (t *Task) runSegmented(ctx context.Context) error {
	t.mu.RLock()
	segments := t.segments
	t.mu.RUnlock()

	msgs := make(chan segment.Message, 64)
	folded := make(chan struct{})
	go func() {
		defer close(folded)
		t.foldSegments(segments, msgs)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range segments {
		if s.Status() == segment.Completed {
			continue
		}
		s := s
		g.Go(func() error {
			return s.Start(gctx, t.engine, msgs)
		})
	}
	err := g.Wait()
	close(msgs)
	<-folded
	if err != nil {
		return err
	}
	return t.merge(segments)
}

// foldSegments is the only writer of the byte counter during a segmented run.
// The counter is the sum of each segment's reported bytes.
func (t *Task) foldSegments(segments []*segment.Segment, msgs <-chan segment.Message) {
	perSegment := make(map[int]int64, len(segments))
	var downloaded int64
	for _, s := range segments {
		perSegment[s.Number()] = s.BytesDownloaded()
		downloaded += perSegment[s.Number()]
	}
	t.setDownloaded(downloaded)
	estimator := rate.NewEstimator(downloaded, time.Now())
	ticker := time.NewTicker(t.opts.RateInterval)
	defer ticker.Stop()
	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if m.Kind == segment.StatusChanged {
				log := t.logger()
				log.Debug().Int("segment", m.Number).Str("status", m.Status.String()).Msg("Segment status changed")
			}
			downloaded += m.BytesDownloaded - perSegment[m.Number]
			perSegment[m.Number] = m.BytesDownloaded
			t.setDownloaded(downloaded)
		case now := <-ticker.C:
			t.setRate(estimator.Sample(downloaded, now))
		}
	}
}

func (t *Task) merge(segments []*segment.Segment) error {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s.MarkMerging()
		parts = append(parts, s.Path())
	}
	defer func() {
		for _, s := range segments {
			s.MarkCompleted()
		}
	}()
	if err := utils.Merge(parts, t.FilePath()); err != nil {
		return err
	}
	if err := utils.RemoveFiles(parts...); err != nil {
		log := t.logger()
		log.Warn().Err(err).Msg("Could not remove segment files")
	}
	return nil
}

func (t *Task) setDownloaded(n int64) {
	t.mu.Lock()
	if t.totalSize > 0 && n > t.totalSize {
		n = t.totalSize
	}
	t.downloaded = n
	t.mu.Unlock()
}

func (t *Task) setRate(bps float64) {
	t.mu.Lock()
	t.rate = bps
	t.mu.Unlock()
	t.publish(EventProgress)
}
