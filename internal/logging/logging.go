// Package logging configures the process-wide zerolog logger. Only entry
// points call it, and only the first call has any effect.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment overrides, applied on top of the configured values
const (
	EnvLogLevel   = "SUP_LOG_LEVEL"
	EnvLogFormat  = "SUP_LOG_FORMAT"
	EnvLogNoColor = "SUP_LOG_NOCOLOR"
)

// Profile selects the defaults Configure starts from
type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Options controls how the logger is built
type Options struct {
	App     string
	Level   zerolog.Level
	JSON    bool
	NoColor bool
	Out     io.Writer
}

var (
	configureOnce sync.Once
	configured    zerolog.Logger
)

// Configure installs the global logger for app at the given level name and returns it.
// Later calls return the logger built by the first one.
func Configure(app, level string) zerolog.Logger {
	return configure(ProfileRuntime, app, level)
}

// ConfigureTests installs a debug-level logger for tests
func ConfigureTests() zerolog.Logger {
	return configure(ProfileTest, "test", "")
}

func configure(profile Profile, app, level string) zerolog.Logger {
	configureOnce.Do(func() {
		opts := defaultOptions(profile, app)
		if lvl, ok := ParseLevel(level); ok {
			opts.Level = lvl
		}
		applyEnvOverrides(&opts)
		configured = New(opts)
		zerolog.SetGlobalLevel(opts.Level)
		log.Logger = configured
	})
	return configured
}

// New builds a logger from opts without touching global state
func New(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    opts.NoColor,
		}
	}

	ctx := zerolog.New(out).Level(opts.Level).With().Timestamp()
	if opts.App != "" {
		ctx = ctx.Str("app", opts.App)
	}
	return ctx.Logger()
}

func defaultOptions(profile Profile, app string) Options {
	switch profile {
	case ProfileTest:
		return Options{App: app, Level: zerolog.DebugLevel, NoColor: true}
	default:
		return Options{App: app, Level: zerolog.InfoLevel}
	}
}

func applyEnvOverrides(opts *Options) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		opts.Level = lvl
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))) {
	case "json":
		opts.JSON = true
	case "console":
		opts.JSON = false
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		opts.NoColor = v
	}
}

// ParseLevel maps a level name to a zerolog level. The boolean is false for
// an empty or unrecognized name.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
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
