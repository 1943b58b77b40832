// Package logger builds the process-wide zerolog logger and the component
// loggers derived from it.
//
// main calls Init once; every component receives a logger by injection and
// tags it with WithComponent, so tests can pass zerolog.Nop() instead.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ComponentField is the field naming the subsystem that wrote an entry.
const ComponentField = "component"

// Options controls how Init builds the logger.
type Options struct {
	// Level is the minimum level: trace, debug, info, warn or error.
	// Unknown values fall back to info.
	Level string
	// Pretty writes coloured console lines instead of JSON.
	Pretty bool
	// Output defaults to os.Stdout.
	Output io.Writer
	// Service is attached to every entry.
	Service string
}

var (
	mu   sync.Mutex
	root *zerolog.Logger
)

// Init builds the root logger on the first call and returns it. Later calls
// return the same logger and ignore opts.
func Init(opts Options) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if root != nil {
		return *root
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl := parseLevel(opts.Level)
	zerolog.SetGlobalLevel(lvl)

	l := zerolog.New(writer(opts)).Level(lvl).With().Timestamp().Caller().Logger()
	if opts.Service != "" {
		l = l.With().Str("service", opts.Service).Logger()
	}
	root = &l
	return l
}

func writer(opts Options) io.Writer {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if !opts.Pretty {
		return out
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			ComponentField,
			zerolog.CallerFieldName,
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{ComponentField},
		FormatPartValueByName: func(v interface{}, _ string) string {
			if v == nil {
				return ""
			}
			return fmt.Sprintf("[%s]", v)
		},
	}
}

// Get returns the root logger. It panics before Init.
func Get() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		panic("logger: Get called before Init")
	}
	return *root
}

// WithComponent tags parent with the subsystem name.
func WithComponent(parent zerolog.Logger, name string) zerolog.Logger {
	return parent.With().Str(ComponentField, name).Logger()
}

// Reset forgets the root logger so the next Init rebuilds it. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	root = nil
}

func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" || lvl > zerolog.ErrorLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
