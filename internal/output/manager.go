package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/tanq16/rangedl/internal/rate"
	"github.com/tanq16/rangedl/internal/task"
	"github.com/tanq16/rangedl/internal/utils"
)

type entry struct {
	task        *task.Task
	snapshot    task.Snapshot
	speed       ewma.MovingAverage
	startTime   time.Time
	lastUpdated time.Time
	unsubscribe func()
}

// Manager redraws one block per tracked task. It only observes tasks through
// their events and never changes their state.
type Manager struct {
	entries     []*entry
	mutex       sync.RWMutex
	out         io.Writer
	numLines    int
	doneCh      chan struct{}
	displayTick time.Duration
	displayWg   sync.WaitGroup
}

func NewManager() *Manager {
	return &Manager{
		out:         os.Stdout,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

// Track subscribes to t and adds it to the display.
func (m *Manager) Track(t *task.Task) {
	e := &entry{
		task:        t,
		snapshot:    t.Snapshot(),
		speed:       ewma.NewMovingAverage(),
		startTime:   time.Now(),
		lastUpdated: time.Now(),
	}
	m.mutex.Lock()
	m.entries = append(m.entries, e)
	m.mutex.Unlock()
	e.unsubscribe = t.Subscribe(func(ev task.Event) {
		m.handle(e, ev)
	})
}

func (m *Manager) handle(e *entry, ev task.Event) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if ev.Kind == task.EventProgress {
		e.speed.Add(ev.Snapshot.TransferRate)
	}
	if e.snapshot.Status != task.Downloading && ev.Snapshot.Status == task.Downloading {
		e.startTime = time.Now()
	}
	e.snapshot = ev.Snapshot
	e.lastUpdated = time.Now()
}

func (m *Manager) lines(maxLines int) []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var lines []string
	indent := strings.Repeat(" ", 2)
	streamIndent := strings.Repeat(" ", 2+4)
	for _, e := range m.entries {
		if len(lines) >= maxLines {
			break
		}
		snap := e.snapshot
		elapsed := time.Since(e.startTime).Round(time.Second)
		if snap.Status != task.Downloading {
			elapsed = e.lastUpdated.Sub(e.startTime).Round(time.Second)
		}
		message := fmt.Sprintf("%s %s", snap.FileName, snap.Status)
		lines = append(lines, fmt.Sprintf("%s%s %s %s", indent, statusIndicator(snap.Status), debugStyle.Render(elapsed.String()), statusStyle(snap.Status).Render(message)))

		switch snap.Status {
		case task.Downloading, task.Paused:
			speed := e.speed.Value()
			detail := fmt.Sprintf("%s / %s %s %s %s ETA %s",
				utils.FormatBytes(uint64(snap.DownloadedSize)), utils.FormatBytes(uint64(snap.TotalSize)),
				StyleSymbols["bullet"], utils.FormatSpeed(speed), StyleSymbols["bullet"],
				utils.FormatETA(etaFor(snap, speed)))
			bar := PrintProgressBar(snap.DownloadedSize, snap.TotalSize, 30)
			if len(snap.Segments) > 0 {
				bar = PrintSegmentBar(snap.Segments, snap.TotalSize, 30)
			}
			lines = append(lines, streamIndent+bar+streamStyle.Render(detail))
		case task.Failed:
			lines = append(lines, streamIndent+errorStyle.Render(snap.Error))
		}
	}
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}

func etaFor(snap task.Snapshot, speed float64) time.Duration {
	if snap.Status != task.Downloading || speed <= 0 {
		return snap.TimeLeft
	}
	return rate.TimeLeft(snap.TotalSize, snap.DownloadedSize, speed)
}

func (m *Manager) updateDisplay() {
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	lines := m.lines(getTerminalHeight() - 3)
	for _, line := range lines {
		fmt.Fprintln(m.out, line)
	}
	m.numLines = len(lines)
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, e := range m.entries {
		if e.unsubscribe != nil {
			e.unsubscribe()
		}
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	var success, failures, stopped int
	for _, e := range m.entries {
		switch e.snapshot.Status {
		case task.Completed:
			success++
		case task.Failed:
			failures++
		case task.Paused, task.Cancelled:
			stopped++
		}
	}
	total := len(m.entries)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, total)))
	if stopped > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+warningStyle.Render(fmt.Sprintf("Stopped %d of %d (partial files kept)", stopped, total)))
	}
	if failures > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, total)))
		fmt.Fprintln(m.out)
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
		i := 0
		for _, e := range m.entries {
			if e.snapshot.Status != task.Failed {
				continue
			}
			i++
			fmt.Fprintf(m.out, "%s%s %s\n", strings.Repeat(" ", 2+2), errorStyle.Render(fmt.Sprintf("%d.", i)), errorStyle.Render(e.snapshot.URL))
			fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %s", e.snapshot.Error)))
		}
	}
	fmt.Fprintln(m.out)
}
