package frontend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wayneeseguin/logsink/pkg/types"
)

// LogrusHook copies logrus entries into the sink. The "category" field
// selects the category; other fields are appended to the message.
type LogrusHook struct {
	logger *Logger
	levels []logrus.Level
}

var _ logrus.Hook = (*LogrusHook)(nil)

// NewLogrusHook creates a hook for the given levels, or all levels when none
// are given.
func NewLogrusHook(l *Logger, levels ...logrus.Level) *LogrusHook {
	if len(levels) == 0 {
		levels = logrus.AllLevels
	}
	return &LogrusHook{logger: l, levels: levels}
}

// SeverityFromLogrus maps logrus levels onto the five severities.
func SeverityFromLogrus(level logrus.Level) types.Severity {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return types.SeverityDebug
	case logrus.InfoLevel:
		return types.SeverityInfo
	case logrus.WarnLevel:
		return types.SeverityWarning
	case logrus.ErrorLevel:
		return types.SeverityError
	default:
		return types.SeverityFatal
	}
}

// Levels implements logrus.Hook.
func (h *LogrusHook) Levels() []logrus.Level {
	return h.levels
}

// Fire implements logrus.Hook.
func (h *LogrusHook) Fire(entry *logrus.Entry) error {
	var category string
	keys := make([]string, 0, len(entry.Data))
	for k, v := range entry.Data {
		if k == CategoryKey {
			category = fmt.Sprint(v)
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(entry.Message)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(quoteIfNeeded(fieldString(entry.Data[k])))
	}

	rec := types.Record{
		Time:     entry.Time,
		Severity: SeverityFromLogrus(entry.Level),
		Category: category,
		Message:  b.String(),
	}
	if entry.HasCaller() {
		rec.File, rec.Line, rec.Function = entry.Caller.File, entry.Caller.Line, entry.Caller.Function
	}
	h.logger.Emit(rec)
	return nil
}

func fieldString(v interface{}) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(v)
}
