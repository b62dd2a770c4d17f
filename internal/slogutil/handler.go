// Package slogutil provides the slog handler and helpers used for cdd logging.
package slogutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Handler writes one line per record:
//
//	TIMESTAMP [level] Message | key=value key=value
//
// Values containing spaces, quotes or '=' are quoted. The level tag is
// colored when the writer is a terminal.
type Handler struct {
	sink     *sink
	level    slog.Leveler
	withTime bool
	prefix   string
	// attrs holds the rendered " key=value" pairs added with WithAttrs.
	attrs string
}

// sink is the writer shared by a handler and every handler derived from it.
type sink struct {
	mu   sync.Mutex
	w    io.Writer
	tags map[string]string
}

// NewHandler creates a handler writing to w with timestamps.
func NewHandler(w io.Writer, opts *slog.HandlerOptions) *Handler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &Handler{sink: newSink(w), level: level, withTime: true}
}

func newSink(w io.Writer) *sink {
	r := lipgloss.NewRenderer(w)
	colors := map[string]lipgloss.Color{
		"debug": "8",
		"info":  "6",
		"warn":  "3",
		"error": "1",
	}
	tags := make(map[string]string, len(colors))
	for name, c := range colors {
		tags[name] = r.NewStyle().Foreground(c).Render("[" + name + "]")
	}
	return &sink{w: w, tags: tags}
}

// WithoutTime returns a copy of the handler that omits timestamps.
func (h *Handler) WithoutTime() *Handler {
	c := *h
	c.withTime = false
	return &c
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	if h.withTime {
		b.WriteString(r.Time.UTC().Format(time.RFC3339))
		b.WriteByte(' ')
	}
	b.WriteString(h.sink.tags[levelString(r.Level)])
	b.WriteByte(' ')
	b.WriteString(r.Message)

	pairs := h.attrs
	if r.NumAttrs() > 0 {
		var rb strings.Builder
		r.Attrs(func(a slog.Attr) bool {
			writeAttr(&rb, h.prefix, a)
			return true
		})
		pairs += rb.String()
	}
	if pairs != "" {
		b.WriteString(" |")
		b.WriteString(pairs)
	}
	b.WriteByte('\n')

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	_, err := io.WriteString(h.sink.w, b.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	for _, a := range attrs {
		writeAttr(&b, h.prefix, a)
	}
	c := *h
	c.attrs += b.String()
	return &c
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix += name + "."
	return &c
}

// writeAttr renders " key=value", flattening group values into dotted keys.
func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			sub += a.Key + "."
		}
		for _, g := range a.Value.Group() {
			writeAttr(b, sub, g)
		}
		return
	}
	if a.Key == "" {
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(quote(formatValue(a.Value)))
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func levelString(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	default:
		return fmt.Sprint(v.Any())
	}
}
