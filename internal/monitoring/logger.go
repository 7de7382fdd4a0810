// Package monitoring configures the process log.
//
// Lines are written as
//
//	LEVEL - 2006-01-02 15:04:05,000 - module - message
//
// Nothing is configured at import time: call Init once at process start to
// choose the destination and level. AttachFile tees every subsequent line to
// a run log file.
package monitoring

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/CosmosHua/Open3D-ML/internal/timeutil"
)

// Level is a log severity.
type Level int

// Log levels, lowest first.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

// String returns the level name as printed in log lines.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL%d", int(l))
	}
}

// ParseLevel converts a level name such as "info" to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug, nil
	case "info", "INFO", "":
		return LevelInfo, nil
	case "warning", "warn", "WARNING", "WARN":
		return LevelWarning, nil
	case "error", "ERROR":
		return LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

const timeLayout = "2006-01-02 15:04:05,000"

type sink struct {
	mu     sync.Mutex
	base   io.Writer
	files  []io.Writer
	level  Level
	clock  timeutil.Clock
	output *log.Logger
}

var std = newSink(os.Stderr, LevelInfo, timeutil.RealClock{})

func newSink(w io.Writer, level Level, clock timeutil.Clock) *sink {
	return &sink{base: w, level: level, clock: clock, output: log.New(w, "", 0)}
}

// rewire must be called with mu held.
func (s *sink) rewire() {
	writers := append([]io.Writer{s.base}, s.files...)
	s.output.SetOutput(io.MultiWriter(writers...))
}

func (s *sink) write(level Level, module, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}
	ts := s.clock.Now().Format(timeLayout)
	_ = s.output.Output(3, fmt.Sprintf("%s - %s - %s - %s", level, ts, module, msg))
}

// Init directs log output to w at the given minimum level. A nil clock uses
// the wall clock. Files attached earlier are detached.
func Init(w io.Writer, level Level, clock timeutil.Clock) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	std.mu.Lock()
	defer std.mu.Unlock()
	std.base = w
	std.files = nil
	std.level = level
	std.clock = clock
	std.rewire()
}

// AttachFile appends every following log line to the file at path as well.
// The returned detach function stops the tee and closes the file.
func AttachFile(path string) (detach func() error, err error) {
	//nolint:gosec // G304: log paths come from the run configuration
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	std.mu.Lock()
	std.files = append(std.files, f)
	std.rewire()
	std.mu.Unlock()

	var once sync.Once
	return func() error {
		var closeErr error
		once.Do(func() {
			std.mu.Lock()
			for i, w := range std.files {
				if w == io.Writer(f) {
					std.files = append(std.files[:i], std.files[i+1:]...)
					break
				}
			}
			std.rewire()
			std.mu.Unlock()
			closeErr = f.Close()
		})
		return closeErr
	}, nil
}

// Logger writes lines tagged with a module name.
type Logger struct {
	module string
}

// New returns a logger for module.
func New(module string) *Logger {
	return &Logger{module: module}
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, v ...any) {
	std.write(LevelDebug, l.module, fmt.Sprintf(format, v...))
}

// Infof logs at info level.
func (l *Logger) Infof(format string, v ...any) {
	std.write(LevelInfo, l.module, fmt.Sprintf(format, v...))
}

// Warnf logs at warning level.
func (l *Logger) Warnf(format string, v ...any) {
	std.write(LevelWarning, l.module, fmt.Sprintf(format, v...))
}

// Errorf logs at error level.
func (l *Logger) Errorf(format string, v ...any) {
	std.write(LevelError, l.module, fmt.Sprintf(format, v...))
}

var diag = New("ml3d")

// Logf is the package-level diagnostic logger used by helpers that only need
// a printf hook. It defaults to info lines under module "ml3d" but may be
// replaced by SetLogger.
var Logf func(format string, v ...interface{}) = diag.Infof

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
