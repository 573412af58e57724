// Package testutils provides a range-capable HTTP server for package tests.
package testutils

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// Content returns n deterministic bytes.
func Content(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

// Server serves one payload at every path. It honours HEAD and single
// "bytes=a-b" / "bytes=a-" ranges, counts body bytes written, and can stall
// mid-body until the client goes away.
type Server struct {
	*httptest.Server
	content []byte

	mu           sync.Mutex
	acceptRanges   bool
	ignoreRangeEnd bool
	stallAt        int64
	failStatus     int

	served   atomic.Int64
	requests atomic.Int64

	release     chan struct{}
	releaseOnce sync.Once
}

func NewServer(t testing.TB, content []byte) *Server {
	t.Helper()
	s := &Server{
		content:      content,
		acceptRanges: true,
		stallAt:      -1,
		release:      make(chan struct{}),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Close() {
	s.releaseOnce.Do(func() { close(s.release) })
	s.Server.Close()
}

// FileURL returns a URL whose last path component is name.
func (s *Server) FileURL(name string) string {
	return s.Server.URL + "/files/" + name
}

func (s *Server) SetAcceptRanges(accept bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acceptRanges = accept
}

// IgnoreRangeEnd makes ranged GETs answer from the requested start through the
// end of the content, as servers that round ranges up do.
func (s *Server) IgnoreRangeEnd(ignore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignoreRangeEnd = ignore
}

// StallAt makes any GET covering absolute offset write the bytes before it and
// then block. A negative offset disables stalling.
func (s *Server) StallAt(offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stallAt = offset
}

// FailWith answers every request with status. Zero restores normal serving.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

func (s *Server) BytesServed() int64 { return s.served.Load() }

func (s *Server) Requests() int64 { return s.requests.Load() }

func (s *Server) ResetCounters() {
	s.served.Store(0)
	s.requests.Store(0)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	s.mu.Lock()
	acceptRanges, ignoreRangeEnd, stallAt, failStatus := s.acceptRanges, s.ignoreRangeEnd, s.stallAt, s.failStatus
	s.mu.Unlock()

	if failStatus != 0 {
		w.WriteHeader(failStatus)
		return
	}
	size := int64(len(s.content))
	w.Header().Set("Content-Type", "application/octet-stream")
	if acceptRanges {
		w.Header().Set("Accept-Ranges", "bytes")
	}
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	start, end := int64(0), size-1
	status := http.StatusOK
	if rangeHeader := r.Header.Get("Range"); acceptRanges && rangeHeader != "" {
		var ok bool
		start, end, ok = parseRange(rangeHeader, size)
		if !ok {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if ignoreRangeEnd {
			end = size - 1
		}
		status = http.StatusPartialContent
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	}
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.WriteHeader(status)

	if stallAt >= start && stallAt <= end {
		n, _ := w.Write(s.content[start:stallAt])
		s.served.Add(int64(n))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		select {
		case <-r.Context().Done():
		case <-s.release:
		}
		return
	}
	n, _ := w.Write(s.content[start : end+1])
	s.served.Add(int64(n))
}

func parseRange(header string, size int64) (int64, int64, bool) {
	ranges, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(ranges, ",") {
		return 0, 0, false
	}
	first, last, found := strings.Cut(ranges, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}
	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}
		end = min(end, size-1)
	}
	return start, end, true
}
