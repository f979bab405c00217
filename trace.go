package main

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const (
	EnvTraceLevel   = "PARTFLASH_TRACE_LEVEL"
	EnvTraceNoColor = "PARTFLASH_TRACE_NOCOLOR"
)

var (
	traceOnce sync.Once
	tracer    = zerolog.Nop()
)

// configureTrace sets up the driver trace log from the environment.
// Tracing is off unless PARTFLASH_TRACE_LEVEL names a level.
func configureTrace(w io.Writer) {
	traceOnce.Do(func() {
		tracer = newTracer(w, os.Getenv(EnvTraceLevel), os.Getenv(EnvTraceNoColor))
	})
}

func newTracer(w io.Writer, levelEnv, noColorEnv string) zerolog.Logger {
	lvl, ok := parseTraceLevel(levelEnv)
	if !ok || lvl == zerolog.Disabled {
		return zerolog.Nop()
	}

	noColor := !isTerminal(w)
	if v, ok := parseBool(noColorEnv); ok {
		noColor = v
	}

	out := zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func parseTraceLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.Disabled, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.Disabled, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
