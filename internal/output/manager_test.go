package output

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	rangehttp "github.com/tanq16/rangedl/internal/downloaders/http"
	"github.com/tanq16/rangedl/internal/segment"
	"github.com/tanq16/rangedl/internal/task"
	"github.com/tanq16/rangedl/internal/testutils"
	"github.com/tanq16/rangedl/internal/utils"
)

func newTask(t *testing.T, url string) *task.Task {
	eng := rangehttp.New(utils.NewHTTPClient(utils.HTTPClientConfig{Timeout: 10 * time.Second}), rangehttp.Options{})
	return task.New(url, t.TempDir(), eng, task.Options{Segments: 2, MinSegmentSize: 1, RateInterval: 10 * time.Millisecond})
}

func TestManagerFollowsTasks(t *testing.T) {
	srv := testutils.NewServer(t, testutils.Content(2048))
	ok := newTask(t, srv.FileURL("good.bin"))

	failing := testutils.NewServer(t, testutils.Content(10))
	failing.FailWith(http.StatusForbidden)
	bad := newTask(t, failing.FileURL("bad.bin"))

	var buf bytes.Buffer
	m := NewManager()
	m.out = &buf
	m.Track(ok)
	m.Track(bad)

	if err := ok.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	bad.Start(context.Background())

	lines := strings.Join(m.lines(100), "\n")
	if !strings.Contains(lines, "good.bin completed") {
		t.Errorf("expected completed line, got:\n%s", lines)
	}
	if !strings.Contains(lines, "bad.bin failed") || !strings.Contains(lines, "probe failed") {
		t.Errorf("expected failure with message, got:\n%s", lines)
	}

	m.ShowSummary()
	summary := buf.String()
	if !strings.Contains(summary, "Completed 1 of 2") || !strings.Contains(summary, "Failed 1 of 2") {
		t.Errorf("unexpected summary:\n%s", summary)
	}
}

func TestLinesRespectsLimit(t *testing.T) {
	m := NewManager()
	for i := 0; i < 5; i++ {
		m.Track(newTask(t, "https://host/file.bin"))
	}
	if got := len(m.lines(3)); got != 3 {
		t.Errorf("expected 3 lines, got %d", got)
	}
}

func TestPrintProgressBar(t *testing.T) {
	bar := PrintProgressBar(50, 100, 10)
	if !strings.Contains(bar, "50.0%") {
		t.Errorf("expected 50.0%% in %q", bar)
	}
	if !strings.Contains(PrintProgressBar(500, 100, 10), "100.0%") {
		t.Error("progress above total should clamp to 100%")
	}
}

func TestPrintSegmentBar(t *testing.T) {
	segments := []segment.Snapshot{
		{Number: 1, StartByte: 0, EndByte: 499, BytesDownloaded: 500},
		{Number: 2, StartByte: 500, EndByte: 999, BytesDownloaded: 250},
	}
	bar := PrintSegmentBar(segments, 1000, 20)
	if !strings.Contains(bar, "75.0%") {
		t.Errorf("expected 75.0%% in %q", bar)
	}
	if got := strings.Count(bar, StyleSymbols["hline"]); got != 15 {
		t.Errorf("expected 15 filled cells, got %d", got)
	}
	if got := strings.Count(bar, StyleSymbols["track"]); got != 5 {
		t.Errorf("expected 5 empty cells, got %d", got)
	}
	if !strings.Contains(PrintSegmentBar(nil, 0, 10), "0.0%") {
		t.Error("empty segment list should draw an empty bar")
	}
}
