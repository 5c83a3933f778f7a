package types

import (
	"fmt"
	"strings"
)

// Severity is the level of a log record. Values outside 0..4 are invalid.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityFatal
)

// NumSeverities is the number of severity levels the sink routes on.
const NumSeverities = 5

var severityNames = [NumSeverities]string{
	"DEBUG", "INFO", "WARNING", "ERROR", "FATAL",
}

// Valid reports whether s is one of the five known severities.
func (s Severity) Valid() bool {
	return s >= SeverityDebug && s <= SeverityFatal
}

// String returns the upper-case severity name used as the routing directory.
func (s Severity) String() string {
	if !s.Valid() {
		return fmt.Sprintf("SEVERITY(%d)", int(s))
	}
	return severityNames[s]
}

// Glyph returns the single-letter marker used at the start of a log line.
func (s Severity) Glyph() byte {
	if !s.Valid() {
		return '?'
	}
	return severityNames[s][0]
}

// ParseSeverity maps a case-insensitive name to a Severity.
// "warn" and "critical" are accepted as aliases for WARNING and ERROR.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return SeverityDebug, nil
	case "INFO":
		return SeverityInfo, nil
	case "WARNING", "WARN":
		return SeverityWarning, nil
	case "ERROR", "CRITICAL":
		return SeverityError, nil
	case "FATAL":
		return SeverityFatal, nil
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// KeyKind discriminates the two forms of RoutingKey.
type KeyKind int

const (
	KindSeverity KeyKind = iota
	KindCategory
)

// DefaultCategory is used in category mode for records that carry no category.
const DefaultCategory = "default"

// RoutingKey identifies which FileWriter a record belongs to. It is either a
// severity or a dot-delimited category such as "socket.Msg".
type RoutingKey struct {
	kind     KeyKind
	severity Severity
	category string
}

// SeverityKey returns the routing key for a severity.
func SeverityKey(s Severity) RoutingKey {
	return RoutingKey{kind: KindSeverity, severity: s}
}

// CategoryKey returns the routing key for a category. An empty category maps
// to DefaultCategory.
func CategoryKey(category string) RoutingKey {
	if category == "" {
		category = DefaultCategory
	}
	return RoutingKey{kind: KindCategory, category: category}
}

// Kind returns whether the key is severity or category based.
func (k RoutingKey) Kind() KeyKind { return k.kind }

// Severity returns the severity of a severity key.
func (k RoutingKey) Severity() Severity { return k.severity }

// Category returns the category of a category key.
func (k RoutingKey) Category() string { return k.category }

// Segments returns the relative directory segments for this key: the
// severity name, or the sanitized dot-split parts of the category.
func (k RoutingKey) Segments() []string {
	if k.kind == KindSeverity {
		return []string{k.severity.String()}
	}
	parts := strings.Split(k.category, ".")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		segments = append(segments, sanitizeSegment(p))
	}
	return segments
}

// String renders the key for diagnostics.
func (k RoutingKey) String() string {
	if k.kind == KindSeverity {
		return "severity:" + k.severity.String()
	}
	return "category:" + k.category
}

// sanitizeSegment keeps a category segment inside its parent directory.
func sanitizeSegment(s string) string {
	switch s {
	case "", ".", "..":
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0, ':':
			return '_'
		}
		return r
	}, s)
}
