package logging

import (
	"fmt"
	"testing"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(format string, args ...any) { r.record("DEBUG", format, args...) }
func (r *recordingLogger) Info(format string, args ...any)  { r.record("INFO", format, args...) }
func (r *recordingLogger) Warn(format string, args ...any)  { r.record("WARN", format, args...) }
func (r *recordingLogger) Error(format string, args ...any) { r.record("ERROR", format, args...) }

func (r *recordingLogger) record(level, format string, args ...any) {
	r.lines = append(r.lines, level+" "+fmt.Sprintf(format, args...))
}

func TestOrNop_NilLogger(t *testing.T) {
	logger := OrNop(nil)
	if logger == nil {
		t.Fatal("expected a non-nil logger")
	}
	// Must not panic.
	logger.Info("hello %s", "world")
}

func TestOrNop_NilPointerInsideInterface(t *testing.T) {
	var typed *recordingLogger
	logger := OrNop(typed)
	logger.Warn("ignored")
}

func TestMulti_FansOutToAllLoggers(t *testing.T) {
	first := &recordingLogger{}
	second := &recordingLogger{}

	logger := Multi(first, nil, second)
	logger.Info("run %d settled", 7)

	for i, rec := range []*recordingLogger{first, second} {
		if len(rec.lines) != 1 {
			t.Fatalf("logger %d: expected 1 line, got %d", i, len(rec.lines))
		}
		if rec.lines[0] != "INFO run 7 settled" {
			t.Fatalf("logger %d: unexpected line %q", i, rec.lines[0])
		}
	}
}

func TestMulti_FlattensNestedMulti(t *testing.T) {
	inner := &recordingLogger{}
	nested := Multi(Multi(inner))

	if nested != inner {
		t.Fatal("expected single-logger multi to collapse to the logger itself")
	}
}

func TestFileLogger_LevelFiltering(t *testing.T) {
	t.Setenv(logDirEnvVar, t.TempDir())

	logger := newFileLogger("Test", WARN, true)
	defer func() {
		if err := logger.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}()

	// Below the threshold; must be a no-op rather than a panic.
	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept %d", 1)
	logger.Error("kept %d", 2)
}
