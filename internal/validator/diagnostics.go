package validator

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/walker"
)

type DiagnosticLevel int

const (
	LevelError DiagnosticLevel = iota
	LevelWarning
)

func (l DiagnosticLevel) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	}
	return "unknown"
}

// Rule ids, usable in ignore directives and the disable list.
const (
	RuleTemplate         = "template"
	RuleSection          = "section"
	RuleRequired         = "required"
	RuleInvalidProperty  = "invalid-property"
	RuleTypeMismatch     = "type-mismatch"
	RuleResourceType     = "resource-type"
	RuleReference        = "reference"
	RuleIntrinsicArgs    = "intrinsic-args"
	RuleIntrinsicNesting = "intrinsic-nesting"
	RuleUnknownFunction  = "unknown-function"
	RuleParameter        = "parameter"
	RuleDuplicateKey     = "duplicate-key"
)

var Rules = []string{
	RuleTemplate, RuleSection, RuleRequired, RuleInvalidProperty, RuleTypeMismatch,
	RuleResourceType, RuleReference, RuleIntrinsicArgs, RuleIntrinsicNesting,
	RuleUnknownFunction, RuleParameter, RuleDuplicateKey,
}

type Diagnostic struct {
	Level    DiagnosticLevel
	Rule     string
	Path     walker.Path
	Message  string
	Position parser.Position
}

func (d Diagnostic) String() string {
	p := d.Path.String()
	if p == "" {
		return fmt.Sprintf("%s [%s] %s", d.Level, d.Rule, d.Message)
	}
	return fmt.Sprintf("%s [%s] %s: %s", d.Level, d.Rule, p, d.Message)
}

// IgnoreRule silences diagnostics whose path starts with Path. Path segments
// may be glob patterns; "*" matches exactly one segment. An empty Rules list
// silences every rule.
type IgnoreRule struct {
	Path  string   `toml:"path"`
	Rules []string `toml:"rules"`
}

func (r IgnoreRule) matches(d Diagnostic) bool {
	if len(r.Rules) > 0 && !contains(r.Rules, d.Rule) {
		return false
	}
	pattern := walker.ParsePath(r.Path)
	if len(pattern) > len(d.Path) {
		return false
	}
	for i, seg := range pattern {
		ok, err := path.Match(seg, d.Path[i])
		if err != nil {
			ok = seg == d.Path[i]
		}
		if !ok {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// Collector accumulates diagnostics in report order. Suppression is applied
// once, by Diagnostics.
type Collector struct {
	diagnostics []Diagnostic
	ignore      []IgnoreRule
	disabled    map[string]bool
}

func NewCollector(ignore []IgnoreRule, disabled []string) *Collector {
	c := &Collector{disabled: make(map[string]bool, len(disabled))}
	c.ignore = append(c.ignore, ignore...)
	for _, r := range disabled {
		c.disabled[r] = true
	}
	return c
}

func (c *Collector) Ignore(r IgnoreRule) {
	c.ignore = append(c.ignore, r)
}

func (c *Collector) Report(rule string, pos parser.Position, p walker.Path, format string, args ...interface{}) {
	level := LevelError
	if rule == RuleDuplicateKey {
		level = LevelWarning
	}
	c.diagnostics = append(c.diagnostics, Diagnostic{
		Level:    level,
		Rule:     rule,
		Path:     p,
		Message:  fmt.Sprintf(format, args...),
		Position: pos,
	})
}

// Diagnostics returns everything reported that no ignore rule or disabled
// rule id silences, in report order.
func (c *Collector) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, 0, len(c.diagnostics))
next:
	for _, d := range c.diagnostics {
		if c.disabled[d.Rule] {
			continue
		}
		for _, r := range c.ignore {
			if r.matches(d) {
				continue next
			}
		}
		out = append(out, d)
	}
	return out
}

const maxSuggestionDistance = 3

// Suggest returns the candidate closest to name, or "" when none is close
// enough to be a likely typo.
func Suggest(name string, candidates []string) string {
	if name == "" || len(candidates) == 0 {
		return ""
	}
	ranks := fuzzy.RankFindFold(name, candidates)
	sort.Stable(ranks)
	if len(ranks) > 0 && ranks[0].Distance <= maxSuggestionDistance {
		return ranks[0].Target
	}

	best, bestDist := "", maxSuggestionDistance+1
	lower := strings.ToLower(name)
	for _, c := range candidates {
		if c == name {
			continue
		}
		d := fuzzy.LevenshteinDistance(lower, strings.ToLower(c))
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func withSuggestion(msg, name string, candidates []string) string {
	if s := Suggest(name, candidates); s != "" && s != name {
		return fmt.Sprintf("%s, did you mean '%s'?", msg, s)
	}
	return msg
}
