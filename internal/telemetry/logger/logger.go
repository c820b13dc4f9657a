package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the structured logger used across the LibOS.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger
}

// Config selects the handler behind a Logger.
type Config struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is json or text. Empty means json; console is accepted for text.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
	// AddSource records the caller's file and line.
	AddSource bool
	// Attrs are attached to every record, as key/value pairs.
	Attrs []any
}

// DefaultConfig is the configuration of the logger installed at start-up.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: os.Stderr}
}

// level is shared by every logger built by New, so SetLevel reaches
// loggers that were derived earlier with With.
var level slog.LevelVar

// New builds a Logger and sets the shared level from cfg.
func New(cfg Config) (Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	h, err := newHandler(cfg)
	if err != nil {
		return nil, err
	}
	level.Set(lvl)

	base := slog.New(h)
	if len(cfg.Attrs) > 0 {
		base = base.With(cfg.Attrs...)
	}
	return &entry{sl: base, ctx: context.Background()}, nil
}

func newHandler(cfg Config) (slog.Handler, error) {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     &level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return formatAddress(a)
		},
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		return slog.NewJSONHandler(w, opts), nil
	case "text", "console":
		return slog.NewTextHandler(w, opts), nil
	}
	return nil, fmt.Errorf("unknown log format %q", cfg.Format)
}

// ParseLevel maps a level name to its slog.Level. The empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// SetLevel changes the shared level at runtime. Unknown names are ignored.
func SetLevel(name string) {
	if lvl, err := ParseLevel(name); err == nil {
		level.Set(lvl)
	}
}

// GetLevel returns the name of the shared level.
func GetLevel() string {
	return strings.ToLower(level.Level().String())
}

// entry carries the context that WithContext attached.
type entry struct {
	sl  *slog.Logger
	ctx context.Context
}

func (e *entry) Debug(msg string, args ...any) { e.sl.DebugContext(e.ctx, msg, args...) }
func (e *entry) Info(msg string, args ...any)  { e.sl.InfoContext(e.ctx, msg, args...) }
func (e *entry) Warn(msg string, args ...any)  { e.sl.WarnContext(e.ctx, msg, args...) }
func (e *entry) Error(msg string, args ...any) { e.sl.ErrorContext(e.ctx, msg, args...) }

func (e *entry) With(args ...any) Logger {
	return &entry{sl: e.sl.With(args...), ctx: e.ctx}
}

func (e *entry) WithContext(ctx context.Context) Logger {
	return &entry{sl: e.sl, ctx: ctx}
}

// Slog returns the *slog.Logger behind l. Loggers from elsewhere get
// slog.Default.
func Slog(l Logger) *slog.Logger {
	if e, ok := l.(*entry); ok {
		return e.sl
	}
	return slog.Default()
}

var fallback atomic.Pointer[entry]

func init() {
	fallback.Store(&entry{
		sl:  slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: &level})),
		ctx: context.Background(),
	})
}

// SetDefault installs l as the logger returned by Default. Loggers not
// built by New are ignored.
func SetDefault(l Logger) {
	if e, ok := l.(*entry); ok {
		fallback.Store(e)
	}
}

// Default returns the process-wide logger.
func Default() Logger {
	return fallback.Load()
}
