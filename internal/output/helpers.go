package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/tanq16/rangedl/internal/segment"
	"golang.org/x/term"
)

func PrintProgressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	if total <= 0 {
		total = 1
	}
	if current < 0 {
		current = 0
	}
	if current > total {
		current = total
	}
	percent := float64(current) / float64(total)
	filled := max(0, min(int(percent*float64(width)), width))
	bar := StyleSymbols["bullet"]
	bar += strings.Repeat(StyleSymbols["hline"], filled)
	if filled < width {
		bar += strings.Repeat(" ", width-filled)
	}
	bar += StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%% %s ", bar, percent*100, StyleSymbols["bullet"]))
}

// PrintSegmentBar draws one bar in which every segment fills its own slice,
// so a stalled segment shows up as a gap.
func PrintSegmentBar(segments []segment.Snapshot, total int64, width int) string {
	if len(segments) == 0 || total <= 0 {
		return PrintProgressBar(0, total, width)
	}
	width = max(width, len(segments))
	var bar strings.Builder
	var downloaded int64
	used := 0
	for i, s := range segments {
		span := s.EndByte - s.StartByte + 1
		cells := max(int(span*int64(width)/total), 1)
		if i == len(segments)-1 {
			cells = max(width-used, 1)
		}
		used += cells
		filled := 0
		if span > 0 {
			filled = min(int(s.BytesDownloaded*int64(cells)/span), cells)
		}
		bar.WriteString(strings.Repeat(StyleSymbols["hline"], filled))
		bar.WriteString(strings.Repeat(StyleSymbols["track"], cells-filled))
		downloaded += s.BytesDownloaded
	}
	percent := float64(min(downloaded, total)) / float64(total)
	return debugStyle.Render(fmt.Sprintf("%s%s%s %.1f%% %s ", StyleSymbols["bullet"], bar.String(), StyleSymbols["bullet"], percent*100, StyleSymbols["bullet"]))
}

func getTerminalHeight() int {
	_, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || height <= 0 {
		return 24 // Default fallback height
	}
	return height
}

// IsTerminal reports whether stdout can host the live display.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
