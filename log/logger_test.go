package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLoggerCreatesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}
	defer l.Close()

	for _, name := range []string{"00_last_results.log", "01_debug.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestLoggerWritesLevels(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}

	l.Info("starting run on %s", "/bin/target")
	l.Warn("candidate %q unusable", "x")
	l.Error("boom: %v", os.ErrNotExist)
	l.Debug("stdin[0] = %q", 'A')
	l.Close()

	results, err := os.ReadFile(filepath.Join(dir, "00_last_results.log"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"INFO: starting run on /bin/target", "WARN:", "ERROR: boom"} {
		if !strings.Contains(string(results), want) {
			t.Errorf("results log missing %q", want)
		}
	}

	debug, err := os.ReadFile(filepath.Join(dir, "01_debug.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(debug), "DEBUG: stdin[0]") {
		t.Error("debug log missing debug entry")
	}
	if !strings.Contains(string(debug), "ERROR: boom") {
		t.Error("debug log missing error entry")
	}
}

func TestWriteSummary(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}

	l.WriteSummary("/bin/target", 512, 4217, 3*time.Second)
	l.Close()

	results, err := os.ReadFile(filepath.Join(dir, "00_last_results.log"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"RUN SUMMARY", "/bin/target", "512", "4217"} {
		if !strings.Contains(string(results), want) {
			t.Errorf("summary missing %q", want)
		}
	}
}

func TestLibraryLoggerImplementations(t *testing.T) {
	// Compile-time checks that every logger satisfies the interface.
	var _ LibraryLogger = NoOpLogger{}
	var _ LibraryLogger = StdoutLogger{}
	var _ LibraryLogger = &Logger{}
}
