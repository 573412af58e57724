package utils

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
)

func TestSetLogOutput(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	t.Cleanup(func() { InitLogger(false) })

	log := GetLogger("test")
	log.Info().Str("url", "https://host/f").Msg("redirected")

	line := buf.String()
	if !strings.Contains(line, "redirected") || !strings.Contains(line, "component=test") {
		t.Errorf("unexpected log line %q", line)
	}
	if !regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} `).MatchString(line) {
		t.Errorf("expected a DateTime timestamp, got %q", line)
	}
}
