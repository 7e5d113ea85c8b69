package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogFile is the name of the log inside log_dir.
const LogFile = "romba.log"

// rombaHandler is a slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
//
// Keys added under a group are prefixed with the group name and a dot.
type rombaHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	opID   string
	prefix string
	attrs  []string
}

func newRombaHandler(w io.Writer, opID string, level slog.Leveler) *rombaHandler {
	return &rombaHandler{mu: &sync.Mutex{}, w: w, level: level, opID: opID}
}

func (h *rombaHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.level == nil || level >= h.level.Level()
}

func (h *rombaHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\t%s\t%s\t%s", r.Time.UTC().Format("2006-01-02T15:04:05Z"), r.Level, h.opID, r.Message)
	for _, a := range h.attrs {
		b.WriteString("\t")
		b.WriteString(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&b, h.prefix, a)
		return true
	})
	b.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *rombaHandler) appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			h.appendAttr(b, prefix, ga)
		}
		return
	}
	fmt.Fprintf(b, "\t%s%s=%v", prefix, a.Key, a.Value)
}

func (h *rombaHandler) clone() *rombaHandler {
	c := *h
	c.attrs = append([]string{}, h.attrs...)
	return &c
}

func (h *rombaHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	for _, a := range attrs {
		var b strings.Builder
		c.appendAttr(&b, c.prefix, a)
		if s := strings.TrimPrefix(b.String(), "\t"); s != "" {
			c.attrs = append(c.attrs, strings.Split(s, "\t")...)
		}
	}
	return c
}

func (h *rombaHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.prefix += name + "."
	return c
}

// newLogger creates a structured logger that writes Info and above to both
// logDir/romba.log and stderr. It returns the slog.Logger, the open log
// file (for cleanup), and any error.
func newLogger(logDir string, opID string) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(logDir, LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	handler := newRombaHandler(io.MultiWriter(f, os.Stderr), opID, slog.LevelInfo)
	return slog.New(handler), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the romba.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
