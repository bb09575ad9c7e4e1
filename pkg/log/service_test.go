package log_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mwantia/comicshelf/pkg/log"
)

func TestParseLevels(t *testing.T) {
	cases := map[string]log.LogLevel{
		"debug":   log.Debug,
		"INFO":    log.Info,
		"warning": log.Warn,
		"error":   log.Error,
		"":        log.Info,
		"bogus":   log.Info,
	}
	for in, want := range cases {
		if got := log.Parse(in); got != want {
			t.Fatalf("Parse(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNamedLoggerFiltersAndPrefixes(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWriterLogger("comicshelf", "info", &buf).Named("library")

	logger.Debug("hidden %d", 1)
	logger.Warn("scan of %s failed", "Foo.cbz")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
	if !strings.Contains(out, "[comicshelf/library]") {
		t.Fatalf("expected named prefix, got %q", out)
	}
	if !strings.Contains(out, "scan of Foo.cbz failed") {
		t.Fatalf("expected formatted message, got %q", out)
	}
}
