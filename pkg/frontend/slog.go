package frontend

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"
	"strings"

	"github.com/wayneeseguin/logsink/pkg/types"
)

// CategoryKey is the attribute or field that carries a record's category.
const CategoryKey = "category"

// Handler is a slog.Handler that writes to the sink. The "category"
// attribute selects the category; other attributes are appended to the
// message as key=value pairs.
type Handler struct {
	logger   *Logger
	level    slog.Leveler
	category string
	prefix   string // Group prefix for attribute keys
	attrs    string // Preformatted attributes from WithAttrs
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler creates a handler logging at level and above. A nil level
// means slog.LevelDebug.
func NewHandler(l *Logger, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelDebug
	}
	return &Handler{logger: l, level: level}
}

// SeverityFromSlog maps slog levels onto the five severities.
func SeverityFromSlog(level slog.Level) types.Severity {
	switch {
	case level < slog.LevelInfo:
		return types.SeverityDebug
	case level < slog.LevelWarn:
		return types.SeverityInfo
	case level < slog.LevelError:
		return types.SeverityWarning
	case level < slog.LevelError+4:
		return types.SeverityError
	default:
		return types.SeverityFatal
	}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler. It never returns an error; sink failures
// go to the sink's error handler.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	category := h.category
	var b strings.Builder
	b.WriteString(r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		if h.prefix == "" && a.Key == CategoryKey {
			category = a.Value.String()
			return true
		}
		appendAttr(&b, h.prefix, a)
		return true
	})

	rec := types.Record{
		Time:     r.Time,
		Severity: SeverityFromSlog(r.Level),
		Category: category,
		Message:  b.String(),
	}
	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		rec.File, rec.Line, rec.Function = frame.File, frame.Line, frame.Function
	}
	h.logger.Emit(rec)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		if h.prefix == "" && a.Key == CategoryKey {
			h2.category = a.Value.String()
			continue
		}
		appendAttr(&b, h.prefix, a)
	}
	h2.attrs = b.String()
	return &h2
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if len(group) == 0 {
			return
		}
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range group {
			appendAttr(b, prefix, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(quoteIfNeeded(a.Value.String()))
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
