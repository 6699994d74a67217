// Package logger configures structured logging for the server. Production
// runs emit JSON; development runs get a compact colored console format.
package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Logger wraps slog.Logger.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Writer      io.Writer
	Format      string
	Environment string
	Level       slog.Level
	AddSource   bool
}

// New creates a logger from the configuration. When Format is empty the
// environment decides: production logs JSON, everything else logs console.
func New(cfg Config) *Logger {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	format := cfg.Format
	if format == "" {
		if cfg.Environment == "production" {
			format = "json"
		} else {
			format = "console"
		}
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				if src, ok := a.Value.Any().(*slog.Source); ok {
					src.File = filepath.Base(src.File)
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(cfg.Writer, opts)
	} else {
		handler = newConsoleHandler(cfg.Writer, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// ParseLevel converts a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

const (
	ansiReset = "\033[0m"
	ansiDim   = "\033[2m"
	ansiBold  = "\033[1m"
	ansiCyan  = "\033[36m"
)

// levelTags maps levels to their colored console tag.
var levelTags = map[slog.Level]string{
	slog.LevelDebug: "\033[35mDEBUG" + ansiReset,
	slog.LevelInfo:  "\033[32m INFO" + ansiReset,
	slog.LevelWarn:  "\033[33m WARN" + ansiReset,
	slog.LevelError: "\033[31mERROR" + ansiReset,
}

// consoleHandler renders records as single colored lines for development.
type consoleHandler struct {
	opts     *slog.HandlerOptions
	mu       *sync.Mutex
	w        io.Writer
	rendered string // attrs accumulated via WithAttrs, already formatted
	group    string // dotted prefix accumulated via WithGroup
}

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

func newConsoleHandler(w io.Writer, opts *slog.HandlerOptions) *consoleHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &consoleHandler{opts: opts, mu: new(sync.Mutex), w: w}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	buf := bufPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		bufPool.Put(buf)
	}()

	buf.WriteString(ansiDim)
	buf.WriteString(r.Time.Format("15:04:05.000"))
	buf.WriteString(ansiReset)
	buf.WriteByte(' ')

	if tag, ok := levelTags[r.Level]; ok {
		buf.WriteString(tag)
	} else {
		buf.WriteString(r.Level.String())
	}
	buf.WriteByte(' ')

	if h.opts.AddSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		frame, _ := frames.Next()
		buf.WriteString(ansiDim)
		buf.WriteString(filepath.Base(frame.File))
		buf.WriteString(ansiReset)
		buf.WriteByte(' ')
	}

	buf.WriteString(ansiBold)
	buf.WriteString(r.Message)
	buf.WriteString(ansiReset)

	if h.rendered != "" {
		buf.WriteByte(' ')
		buf.WriteString(ansiCyan)
		buf.WriteString(strings.TrimSuffix(h.rendered, " "))
		buf.WriteString(ansiReset)
	}

	if r.NumAttrs() > 0 {
		buf.WriteByte(' ')
		buf.WriteString(ansiCyan)
		first := true
		r.Attrs(func(a slog.Attr) bool {
			if !first {
				buf.WriteByte(' ')
			}
			first = false
			appendAttr(buf, h.group, a)
			return true
		})
		buf.WriteString(ansiReset)
	}

	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var buf bytes.Buffer
	buf.WriteString(h.rendered)
	for _, a := range attrs {
		appendAttr(&buf, h.group, a)
		buf.WriteByte(' ')
	}
	return &consoleHandler{opts: h.opts, mu: h.mu, w: h.w, rendered: buf.String(), group: h.group}
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &consoleHandler{opts: h.opts, mu: h.mu, w: h.w, rendered: h.rendered, group: h.group + name + "."}
}

// appendAttr writes key=value, resolving group attrs with a dotted prefix.
func appendAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		for i, ga := range a.Value.Group() {
			if i > 0 {
				buf.WriteByte(' ')
			}
			appendAttr(buf, prefix+a.Key+".", ga)
		}
		return
	}
	buf.WriteString(prefix)
	buf.WriteString(a.Key)
	buf.WriteByte('=')
	buf.WriteString(a.Value.String())
}

// Fatal logs at error level and exits.
func (l *Logger) Fatal(msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}
