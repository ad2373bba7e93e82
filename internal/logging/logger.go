package logging

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// colorEnabled tracks whether or not color output is permitted. It's
// disabled automatically when standard error isn't a terminal so that
// redirected logs (e.g. to a file or CI log collector) aren't polluted
// with escape codes.
var colorEnabled = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

// Logger is the main logger type. It has the novel property that it still
// functions if nil, but it doesn't log anything. It wraps the standard
// logger provided by the log package, so it respects any flags set for
// that logger. It is safe for concurrent usage.
type Logger struct {
	// prefix is any prefix specified for the logger.
	prefix string
	// level is the minimum level at which this logger (and its
	// subloggers) will emit output.
	level Level
}

// RootLogger is the root logger from which all other loggers derive. By
// default it logs at LevelInfo.
var RootLogger = &Logger{level: LevelInfo}

// SetLevel adjusts the logging level for a logger and all loggers derived
// from it going forward. It does not affect subloggers already created
// before a future call mutates shared state, since each sublogger copies
// its level at creation time.
func (l *Logger) SetLevel(level Level) {
	if l != nil {
		l.level = level
	}
}

// Sublogger creates a new sublogger with the specified name.
func (l *Logger) Sublogger(name string) *Logger {
	// If the logger is nil, then the sublogger will be as well.
	if l == nil {
		return nil
	}

	// Compute the new prefix.
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}

	// Create the new logger, inheriting the parent's level.
	return &Logger{
		prefix: prefix,
		level:  l.level,
	}
}

// enabled indicates whether or not the logger should emit at the
// specified level.
func (l *Logger) enabled(level Level) bool {
	return l != nil && l.level >= level
}

// output is the internal logging method.
func (l *Logger) output(calldepth int, line string) {
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	log.Output(calldepth, line)
}

// Info logs information with semantics equivalent to fmt.Print, but only
// if the logger's level is at least LevelInfo.
func (l *Logger) Info(v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.output(3, fmt.Sprint(v...))
	}
}

// Infof logs information with semantics equivalent to fmt.Printf, but
// only if the logger's level is at least LevelInfo.
func (l *Logger) Infof(format string, v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.output(3, fmt.Sprintf(format, v...))
	}
}

// Debug logs information with semantics equivalent to fmt.Print, but only
// if the logger's level is at least LevelDebug.
func (l *Logger) Debug(v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.output(3, fmt.Sprint(v...))
	}
}

// Debugf logs information with semantics equivalent to fmt.Printf, but
// only if the logger's level is at least LevelDebug.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.output(3, fmt.Sprintf(format, v...))
	}
}

// Warn logs error information with a warning prefix, colorized yellow
// when output is a terminal.
func (l *Logger) Warn(err error) {
	if l.enabled(LevelWarn) {
		if colorEnabled {
			l.output(3, color.YellowString("warning: %v", err))
		} else {
			l.output(3, fmt.Sprintf("warning: %v", err))
		}
	}
}

// Error logs error information with an error prefix, colorized red when
// output is a terminal.
func (l *Logger) Error(err error) {
	if l.enabled(LevelError) {
		if colorEnabled {
			l.output(3, color.RedString("error: %v", err))
		} else {
			l.output(3, fmt.Sprintf("error: %v", err))
		}
	}
}

// Writer returns an io.Writer that writes lines using Info. It is mostly
// useful for plugging a logger into APIs (such as some progress
// reporters) that expect an io.Writer.
func (l *Logger) Writer() io.Writer {
	if !l.enabled(LevelInfo) {
		return io.Discard
	}
	return &lineWriter{callback: l.Info}
}

// lineWriter is an io.Writer that splits its input stream into lines and
// forwards each complete line to callback.
type lineWriter struct {
	callback func(...interface{})
	buffer   []byte
}

// Write implements io.Writer.Write.
func (w *lineWriter) Write(buffer []byte) (int, error) {
	w.buffer = append(w.buffer, buffer...)
	var processed int
	remaining := w.buffer
	for {
		index := indexByte(remaining, '\n')
		if index == -1 {
			break
		}
		w.callback(string(trimCarriageReturn(remaining[:index])))
		processed += index + 1
		remaining = remaining[index+1:]
	}
	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}
	return len(buffer), nil
}

// indexByte finds the first occurrence of b in buffer, or -1.
func indexByte(buffer []byte, b byte) int {
	for i, c := range buffer {
		if c == b {
			return i
		}
	}
	return -1
}

// trimCarriageReturn trims any single trailing carriage return from the
// end of a byte slice.
func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}
