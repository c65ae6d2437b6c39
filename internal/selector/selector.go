// Package selector picks the runtime version for a canonical platform from a
// configuration table such as
//
//	default@3.11.3.abc:rhel8@3.11.9.xyz:windows@3.11.8.def
//
// The "default" entry is the baseline. Every other entry whose pattern is a
// prefix of the platform key overwrites the result, so among several matching
// patterns the one written last wins. Callers should warn when Matches
// returns more than one entry.
package selector

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/chevah/pythia/internal/failure"
)

// DefaultPattern is the reserved pattern of the fallback entry.
const DefaultPattern = "default"

// Entry is one pattern@version pair.
type Entry struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Version string `json:"version" yaml:"version"`
}

func (e Entry) String() string { return e.Pattern + "@" + e.Version }

// Table is an ordered list of entries.
type Table []Entry

// ParseTable parses a colon-separated list of pattern@version pairs. Empty
// items (a trailing colon) are ignored.
func ParseTable(s string) (Table, error) {
	var t Table
	for i, item := range strings.Split(s, ":") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		pattern, ver, ok := strings.Cut(item, "@")
		pattern, ver = strings.TrimSpace(pattern), strings.TrimSpace(ver)
		if !ok || pattern == "" || ver == "" {
			return nil, &failure.Error{
				Code:     failure.Config,
				Msg:      fmt.Sprintf("version table entry %d is not pattern@version", i+1),
				Detected: item,
			}
		}
		t = append(t, Entry{Pattern: pattern, Version: ver})
	}
	if len(t) == 0 {
		return nil, failure.New(failure.Config, "version table is empty")
	}
	return t, nil
}

func (t Table) String() string {
	parts := make([]string, len(t))
	for i, e := range t {
		parts[i] = e.String()
	}
	return strings.Join(parts, ":")
}

// HasDefault reports whether the table has a default entry.
func (t Table) HasDefault() bool {
	for _, e := range t {
		if e.Pattern == DefaultPattern {
			return true
		}
	}
	return false
}

// Select scans the table once, in order. A specific match always beats the
// default, wherever the default is written. It returns "" when no entry
// matches and the table has no default.
func Select(t Table, key string) string {
	baseline, specific := "", ""
	for _, e := range t {
		switch {
		case e.Pattern == DefaultPattern:
			baseline = e.Version
		case strings.HasPrefix(key, e.Pattern):
			specific = e.Version
		}
	}
	if specific != "" {
		return specific
	}
	return baseline
}

// Matches returns the specific entries that match key, in table order.
func Matches(t Table, key string) []Entry {
	var out []Entry
	for _, e := range t {
		if e.Pattern != DefaultPattern && strings.HasPrefix(key, e.Pattern) {
			out = append(out, e)
		}
	}
	return out
}

// Selection is the version chosen for one platform.
type Selection struct {
	Platform string  `json:"platform"`
	Version  string  `json:"version"`
	Matched  []Entry `json:"matched,omitempty"`
	Default  bool    `json:"default"`
}

// Choose selects the version for key and logs a warning when more than one
// specific pattern matched. A table that yields nothing is a config error.
func Choose(t Table, key string, logger *slog.Logger) (Selection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sel := Selection{Platform: key, Version: Select(t, key), Matched: Matches(t, key)}
	if sel.Version == "" {
		return sel, &failure.Error{
			Code:     failure.Config,
			Msg:      "no runtime version configured for this platform and no default entry",
			Detected: key,
			Required: t.String(),
		}
	}
	sel.Default = len(sel.Matched) == 0
	if len(sel.Matched) > 1 {
		patterns := make([]string, len(sel.Matched))
		for i, e := range sel.Matched {
			patterns[i] = e.Pattern
		}
		logger.Warn("several version table patterns match, the last one wins",
			"platform", key, "patterns", strings.Join(patterns, ","), "version", sel.Version)
	}
	return sel, nil
}
