package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions controls rotation of the daemon log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Level is one of debug, info, warn or error. Empty means info.
	Level string
}

// SetupLevel installs a JSON logger on stdout as the process default and returns
// it. Lines carry the service name and, when set, the environment. Records
// below the level parsed by ParseLevel are dropped.
func SetupLevel(service, env, level string) *slog.Logger {
	return install(os.Stdout, ParseLevel(level), service, env)
}

// SetupFile behaves like SetupLevel but writes to a size-rotated file, mirroring
// every line to stdout when mirror is set.
func SetupFile(service, env string, opts FileOptions, mirror bool) (*slog.Logger, io.Closer) {
	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	var out io.Writer = rotator
	if mirror {
		out = io.MultiWriter(os.Stdout, rotator)
	}
	return install(out, ParseLevel(opts.Level), service, env), rotator
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			}
			if attr.Key == slog.LevelKey {
				level := strings.ToUpper(attr.Value.String())
				return slog.String("severity", level)
			}
			if attr.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			if attr.Value.Kind() == slog.KindString && IsSensitive(attr.Key) {
				return slog.String(attr.Key, MaskValue(attr.Value.String()))
			}
			return attr
		},
	})
}

func install(w io.Writer, level slog.Level, service, env string) *slog.Logger {
	handler := newHandler(w, level)
	attrs := []slog.Attr{
		slog.String("service", strings.TrimSpace(service)),
	}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}

	base := slog.New(handler).With(withArgs...)
	slog.SetDefault(base)

	// Bridge the standard library logger so existing packages continue to work.
	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}
