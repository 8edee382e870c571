package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

var (
	mu     sync.Mutex
	out    io.Writer = os.Stderr
	format           = "logfmt"
	filter           = level.AllowInfo()
	std              = build()
)

// Levels accepted by SetLevel.
var Levels = []string{"debug", "info", "warn", "error"}

func build() kitlog.Logger {
	writer := kitlog.NewSyncWriter(out)
	var l kitlog.Logger
	if format == "json" {
		l = kitlog.NewJSONLogger(writer)
	} else {
		l = kitlog.NewLogfmtLogger(writer)
	}
	l = kitlog.With(l, "ts", kitlog.DefaultTimestampUTC, "app", "cfncheck")
	// The level filter goes last.
	return level.NewFilter(l, filter)
}

// Logger returns the shared logger, for components that take a go-kit
// logger.
func Logger() kitlog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return std
}

func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	std = build()
}

// SetFormat switches between "logfmt" and "json" records.
func SetFormat(f string) error {
	if f != "logfmt" && f != "json" {
		return errors.Errorf("unknown log format %q", f)
	}
	mu.Lock()
	defer mu.Unlock()
	format = f
	std = build()
	return nil
}

func SetLevel(name string) error {
	var opt level.Option
	switch strings.ToLower(name) {
	case "debug":
		opt = level.AllowDebug()
	case "info", "":
		opt = level.AllowInfo()
	case "warn", "warning":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		return errors.Errorf("unknown log level %q, want one of %s", name, strings.Join(Levels, ", "))
	}
	mu.Lock()
	defer mu.Unlock()
	filter = opt
	std = build()
	return nil
}

func logAt(lvl func(kitlog.Logger) kitlog.Logger, msg string) {
	_ = lvl(Logger()).Log("msg", msg)
}

func Printf(format string, v ...interface{}) {
	logAt(level.Info, fmt.Sprintf(format, v...))
}

func Println(v ...interface{}) {
	logAt(level.Info, strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func Debugf(format string, v ...interface{}) {
	logAt(level.Debug, fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...interface{}) {
	logAt(level.Warn, fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	logAt(level.Error, fmt.Sprintf(format, v...))
}

func Fatal(v ...interface{}) {
	logAt(level.Error, fmt.Sprint(v...))
	os.Exit(1)
}

func Fatalf(format string, v ...interface{}) {
	logAt(level.Error, fmt.Sprintf(format, v...))
	os.Exit(1)
}
