package main

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Markers the driver embeds in its messages. The logger keys its
// collapsing and suppression rules on them.
const (
	progressMarker = " flash memory at offset "
	mismatchMarker = " differs from file"
)

// maxErrors is the number of mismatch lines printed per phase below verbosity 2.
const maxErrors = 10

// Logger is the console reporter for one invocation.
// Verbosity 0 is quiet, 1 shows progress as dots, 2 prints everything.
type Logger struct {
	w       io.Writer
	verbose int
	needEOL bool
	errors  int
	t0      time.Time
	now     func() time.Time
}

// NewLogger returns a Logger writing to w at the given verbosity.
func NewLogger(w io.Writer, verbose int) *Logger {
	l := &Logger{w: w, verbose: verbose, now: time.Now}
	l.t0 = l.now()
	return l
}

// Verbosity returns the current verbosity level.
func (l *Logger) Verbosity() int {
	return l.verbose
}

// SetVerbosity changes the verbosity level.
func (l *Logger) SetVerbosity(v int) {
	l.verbose = v
}

// RaiseVerbosity lifts the verbosity to at least v.
func (l *Logger) RaiseVerbosity(v int) {
	if l.verbose < v {
		l.verbose = v
	}
}

func (l *Logger) Log(message string) {
	l.log(message, false)
}

func (l *Logger) Logf(format string, args ...any) {
	l.log(fmt.Sprintf(format, args...), false)
}

// Importantf logs a message that is shown even at verbosity 0.
func (l *Logger) Importantf(format string, args ...any) {
	l.log(fmt.Sprintf(format, args...), true)
}

// Errorf logs an error message. Errors are always shown.
func (l *Logger) Errorf(format string, args ...any) {
	l.log("ERROR: "+fmt.Sprintf(format, args...), true)
}

// Divider starts a new phase: prints a rule, resets the phase clock and
// the suppressed error counter.
func (l *Logger) Divider() {
	l.log("===================\n", false)
	l.t0 = l.now()
	l.errors = 0
}

// Done reports the time spent in the current phase.
func (l *Logger) Done() {
	l.log(fmt.Sprintf("\tDone, %.1f seconds\n", l.now().Sub(l.t0).Seconds()), false)
}

func (l *Logger) log(message string, important bool) {
	if !important && l.verbose <= 0 {
		return
	}

	if l.verbose < 2 && strings.Contains(message, progressMarker) {
		l.needEOL = true
		l.write(".")
		return
	}

	if l.verbose < 2 && strings.Contains(message, mismatchMarker) {
		l.errors++
		switch {
		case l.errors == maxErrors+1:
			message = "\t(rest of errors suppressed)\n"
		case l.errors > maxErrors+1:
			return
		}
	}

	if l.needEOL {
		l.needEOL = false
		l.write("\n")
	}

	message = strings.ReplaceAll(message, "\r", "\n")
	message = strings.ReplaceAll(message, "\t", "* ")
	l.write(l.now().Format("15:04:05 ") + message)
}

func (l *Logger) write(s string) {
	_, _ = io.WriteString(l.w, s)
	// *os.File is unbuffered; buffered writers get flushed per write.
	if f, ok := l.w.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
}
