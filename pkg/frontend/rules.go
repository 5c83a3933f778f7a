package frontend

import (
	"path"
	"sort"
	"strings"

	"github.com/wayneeseguin/logsink/pkg/types"
)

// Rules enables or disables records by category and severity.
//
// Keys have the form "<category>.<level>" where level is a severity name
// accepted by types.ParseSeverity ("debug", "warning", "critical", ...). A
// key without a level suffix applies to every level, so "socket.*" covers
// every category below socket. The category part may contain "*"
// wildcards. When several rules match, the one with the longest literal
// category wins and a rule naming a level beats one that does not. Records
// no rule matches are enabled.
type Rules struct {
	rules []rule
}

type rule struct {
	category string
	severity types.Severity
	anyLevel bool
	enabled  bool
	weight   int
}

// NewRules compiles a rules map. A nil or empty map enables everything.
func NewRules(m map[string]bool) *Rules {
	r := &Rules{}
	for key, enabled := range m {
		r.rules = append(r.rules, parseRule(key, enabled))
	}
	sort.SliceStable(r.rules, func(i, j int) bool {
		if r.rules[i].weight != r.rules[j].weight {
			return r.rules[i].weight > r.rules[j].weight
		}
		return r.rules[i].category < r.rules[j].category
	})
	return r
}

func parseRule(key string, enabled bool) rule {
	ru := rule{category: key, anyLevel: true, enabled: enabled}
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		if sev, err := types.ParseSeverity(key[i+1:]); err == nil {
			ru.category = key[:i]
			ru.severity = sev
			ru.anyLevel = false
		}
	}

	// Exact categories first, then by literal length; an exact level breaks
	// ties.
	ru.weight = 2 * len(strings.ReplaceAll(ru.category, "*", ""))
	if !strings.Contains(ru.category, "*") {
		ru.weight += 1000
	}
	if !ru.anyLevel {
		ru.weight++
	}
	return ru
}

func (ru rule) matches(category string, sev types.Severity) bool {
	if !ru.anyLevel && ru.severity != sev {
		return false
	}
	if ru.category == category || ru.category == "*" {
		return true
	}
	ok, err := path.Match(ru.category, category)
	return err == nil && ok
}

// Enabled reports whether a record of category and sev should be logged.
// An empty category is treated as the default category.
func (r *Rules) Enabled(category string, sev types.Severity) bool {
	if r == nil {
		return true
	}
	if category == "" {
		category = types.DefaultCategory
	}
	for _, ru := range r.rules {
		if ru.matches(category, sev) {
			return ru.enabled
		}
	}
	return true
}

// Len returns the number of rules.
func (r *Rules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}
