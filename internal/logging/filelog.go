package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const logDirEnvVar = "DEVHUB_LOG_DIR"

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var (
	fileLoggerInstance *FileLogger
	fileLoggerOnce     sync.Once
)

// FileLogger writes component-tagged log lines to devhub-service.log.
type FileLogger struct {
	file       *os.File
	logger     *log.Logger
	level      Level
	mu         sync.Mutex
	component  string
	enableFile bool
}

// GetFileLogger returns the singleton file logger instance.
func GetFileLogger() *FileLogger {
	fileLoggerOnce.Do(func() {
		fileLoggerInstance = newFileLogger("", DEBUG, true)
	})
	return fileLoggerInstance
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	base := GetFileLogger()
	return &FileLogger{
		file:       base.file,
		logger:     base.logger,
		level:      base.level,
		component:  component,
		enableFile: base.enableFile,
	}
}

func newFileLogger(component string, level Level, enableFile bool) *FileLogger {
	l := &FileLogger{
		level:      level,
		component:  component,
		enableFile: enableFile,
	}

	if enableFile {
		logDir, err := resolveLogDirectory()
		if err != nil {
			log.Printf("Failed to resolve log directory: %v", err)
			return l
		}
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Failed to create log directory %s: %v", logDir, err)
			return l
		}

		logPath := filepath.Join(logDir, "devhub-service.log")
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("Failed to open log file: %v", err)
			return l
		}

		l.file = file
		l.logger = log.New(file, "", 0) // we format ourselves
	}

	return l
}

func resolveLogDirectory() (string, error) {
	if override := strings.TrimSpace(os.Getenv(logDirEnvVar)); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return home, nil
}

// SetLevel sets the minimum log level.
func (l *FileLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Close closes the log file.
func (l *FileLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *FileLogger) log(level Level, format string, args ...any) {
	if level < l.level || !l.enableFile {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	// Format: 2026-08-26 12:34:56 [INFO] [ComponentName] file.go:123 - Message
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	component := l.component
	if component == "" {
		component = "DEVHUB"
	}

	message := fmt.Sprintf(format, args...)
	logLine := fmt.Sprintf("%s [%s] [%s] %s:%d - %s\n",
		timestamp, levelToString(level), component, file, line, message)

	if l.logger != nil {
		l.logger.Print(logLine)
	}
	if os.Getenv("DEVHUB_SERVER_MODE") == "deploy" {
		fmt.Print(logLine)
	}
}

// Debug logs a debug message.
func (l *FileLogger) Debug(format string, args ...any) {
	l.log(DEBUG, format, args...)
}

// Info logs an info message.
func (l *FileLogger) Info(format string, args ...any) {
	l.log(INFO, format, args...)
}

// Warn logs a warning message.
func (l *FileLogger) Warn(format string, args ...any) {
	l.log(WARN, format, args...)
}

// Error logs an error message.
func (l *FileLogger) Error(format string, args ...any) {
	l.log(ERROR, format, args...)
}

func levelToString(level Level) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
