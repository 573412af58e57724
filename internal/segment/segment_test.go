package segment

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	rangehttp "github.com/tanq16/rangedl/internal/downloaders/http"
	"github.com/tanq16/rangedl/internal/testutils"
	"github.com/tanq16/rangedl/internal/utils"
)

func newEngine() *rangehttp.Engine {
	return rangehttp.New(utils.NewHTTPClient(utils.HTTPClientConfig{Timeout: 10 * time.Second}), rangehttp.Options{ChunkSize: 64})
}

// collect drains messages until the returned function is called.
func collect(out chan Message) func() []Message {
	var msgs []Message
	done := make(chan struct{})
	go func() {
		defer close(done)
		for m := range out {
			msgs = append(msgs, m)
		}
	}()
	return func() []Message {
		close(out)
		<-done
		return msgs
	}
}

func TestNewValidates(t *testing.T) {
	tests := []struct {
		name   string
		number int
		start  int64
		end    int64
	}{
		{"zero number", 0, 0, 10},
		{"negative start", 1, -1, 10},
		{"end before start", 1, 10, 9},
	}
	for _, tt := range tests {
		if _, err := New("http://h/f", tt.number, tt.start, tt.end, "p"); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestPartition(t *testing.T) {
	segs, err := Partition("http://h/f", "/tmp/f", 1003, 4)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(segs) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(segs))
	}
	var covered int64
	for i, s := range segs {
		if s.Number() != i+1 {
			t.Errorf("segment %d has number %d", i, s.Number())
		}
		if s.StartByte() != covered {
			t.Errorf("segment %d starts at %d, want %d", s.Number(), s.StartByte(), covered)
		}
		covered += s.Span()
	}
	if covered != 1003 {
		t.Errorf("segments cover %d bytes, want 1003", covered)
	}
	if segs[3].EndByte() != 1002 || segs[3].Span() != 253 {
		t.Errorf("last segment should take the remainder, got [%d, %d]", segs[3].StartByte(), segs[3].EndByte())
	}
	if segs[1].Path() != "/tmp/f.part2.temp" {
		t.Errorf("unexpected part path %q", segs[1].Path())
	}
}

func TestProgress(t *testing.T) {
	s, _ := New("http://h/f", 1, 0, 499, "p")
	s.downloaded = 250
	if s.Progress() != 50 {
		t.Errorf("expected 50, got %d", s.Progress())
	}
	s.downloaded = 499
	if s.Progress() != 99 {
		t.Errorf("expected floored 99, got %d", s.Progress())
	}
}

func TestStartDownloadsRange(t *testing.T) {
	content := testutils.Content(1000)
	srv := testutils.NewServer(t, content)
	path := filepath.Join(t.TempDir(), "f.part2.temp")
	s, _ := New(srv.FileURL("f"), 2, 500, 999, path)

	out := make(chan Message, 16)
	stop := collect(out)
	err := s.Start(context.Background(), newEngine(), out)
	msgs := stop()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Status() != Completed || s.BytesDownloaded() != 500 || s.Progress() != 100 {
		t.Errorf("unexpected final state: %+v", s.Snapshot())
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, content[500:]) {
		t.Error("segment content mismatch")
	}
	last := msgs[len(msgs)-1]
	if last.Kind != StatusChanged || last.Status != Completed || last.Number != 2 {
		t.Errorf("expected final Completed status message, got %+v", last)
	}
}

func TestStartClampsEnd(t *testing.T) {
	srv := testutils.NewServer(t, testutils.Content(800))
	s, _ := New(srv.FileURL("f"), 2, 500, 999, filepath.Join(t.TempDir(), "p"))

	if err := s.Start(context.Background(), newEngine(), nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.EndByte() != 799 || s.BytesDownloaded() != 300 {
		t.Errorf("expected clamped range ending at 799 with 300 bytes, got %+v", s.Snapshot())
	}
}

func TestStartResumesPartialFile(t *testing.T) {
	content := testutils.Content(1000)
	srv := testutils.NewServer(t, content)
	path := filepath.Join(t.TempDir(), "p")
	os.WriteFile(path, content[0:200], 0644)
	s, _ := New(srv.FileURL("f"), 1, 0, 499, path)

	if err := s.Start(context.Background(), newEngine(), nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if srv.BytesServed() != 300 {
		t.Errorf("expected 300 bytes served, got %d", srv.BytesServed())
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, content[:500]) {
		t.Error("resumed segment content mismatch")
	}
}

func TestStartDiscardsOversizedPartFile(t *testing.T) {
	content := testutils.Content(1000)
	srv := testutils.NewServer(t, content)
	path := filepath.Join(t.TempDir(), "p")
	os.WriteFile(path, content[:700], 0644)
	s, _ := New(srv.FileURL("f"), 1, 0, 499, path)

	if err := s.Start(context.Background(), newEngine(), nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if srv.BytesServed() != 500 || s.BytesDownloaded() != 500 {
		t.Errorf("expected a fresh 500-byte fetch, served %d, downloaded %d", srv.BytesServed(), s.BytesDownloaded())
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, content[:500]) {
		t.Error("refetched segment content mismatch")
	}
}

func TestStartStaysWithinSpan(t *testing.T) {
	content := testutils.Content(1000)
	srv := testutils.NewServer(t, content)
	srv.IgnoreRangeEnd(true)
	path := filepath.Join(t.TempDir(), "p")
	s, _ := New(srv.FileURL("f"), 1, 0, 99, path)

	out := make(chan Message, 16)
	stop := collect(out)
	err := s.Start(context.Background(), newEngine(), out)
	msgs := stop()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, m := range msgs {
		if m.BytesDownloaded > s.Span() {
			t.Fatalf("segment reported %d bytes for a %d-byte span", m.BytesDownloaded, s.Span())
		}
	}
	if s.BytesDownloaded() != 100 || utils.FileSize(path) != 100 {
		t.Errorf("expected 100 bytes, got downloaded=%d file=%d", s.BytesDownloaded(), utils.FileSize(path))
	}
}

func TestStartRangeUnsupported(t *testing.T) {
	srv := testutils.NewServer(t, testutils.Content(1000))
	srv.SetAcceptRanges(false)
	s, _ := New(srv.FileURL("f"), 1, 0, 499, filepath.Join(t.TempDir(), "p"))

	err := s.Start(context.Background(), newEngine(), nil)
	if !errors.Is(err, utils.ErrRangeUnsupported) {
		t.Fatalf("expected ErrRangeUnsupported, got %v", err)
	}
	if s.Status() != Failed || s.Err() == nil {
		t.Errorf("expected Failed with error, got %+v", s.Snapshot())
	}
}

func TestStartIsNoOpWhenCompleted(t *testing.T) {
	srv := testutils.NewServer(t, testutils.Content(100))
	s, _ := New(srv.FileURL("f"), 1, 0, 99, filepath.Join(t.TempDir(), "p"))
	s.MarkCompleted()

	if err := s.Start(context.Background(), newEngine(), nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if srv.Requests() != 0 {
		t.Errorf("expected no requests, got %d", srv.Requests())
	}
}

func TestCancelAndPause(t *testing.T) {
	tests := []struct {
		name     string
		stop     func(s *Segment, cancel context.CancelCauseFunc)
		expected Status
	}{
		{"cancel", func(s *Segment, _ context.CancelCauseFunc) { s.Cancel() }, Cancelled},
		{"pause", func(_ *Segment, cancel context.CancelCauseFunc) { cancel(utils.ErrPaused) }, Paused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutils.NewServer(t, testutils.Content(1000))
			srv.StallAt(250)
			path := filepath.Join(t.TempDir(), "p")
			s, _ := New(srv.FileURL("f"), 1, 0, 999, path)
			ctx, cancel := context.WithCancelCause(context.Background())
			defer cancel(nil)

			out := make(chan Message, 16)
			result := make(chan error, 1)
			go func() { result <- s.Start(ctx, newEngine(), out) }()
			for m := range out {
				if m.Kind == ProgressChanged && m.BytesDownloaded == 250 {
					break
				}
			}
			tt.stop(s, cancel)
			go func() {
				for range out {
				}
			}()
			if err := <-result; err == nil {
				t.Fatal("expected a cancellation cause")
			}
			close(out)
			if s.Status() != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, s.Status())
			}
			if utils.FileSize(path) != 250 {
				t.Errorf("partial file should be kept with 250 bytes, got %d", utils.FileSize(path))
			}
		})
	}
}
