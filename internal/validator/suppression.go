package validator

import (
	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/walker"
)

// metadataKey is the Metadata entry holding template-authored directives.
const metadataKey = "cfncheck"

// suppressions reads ignore directives from the template into the collector.
//
// Template level, under Metadata.cfncheck.ignore:
//
//	- Resources.A.*
//	- {path: Outputs, rules: [type-mismatch]}
//
// Resource level, under Resources.X.Metadata.cfncheck.ignore, a list of rule
// ids scoped to that resource.
type suppressions struct {
	walker.NopChecker

	out *Collector
}

func newSuppressions(out *Collector) *suppressions {
	return &suppressions{out: out}
}

func (s *suppressions) Metadata(_ walker.Path, v parser.Value) {
	l, ok := directives(v)
	if !ok {
		return
	}
	for _, e := range l.Elements {
		if p, ok := parser.AsString(e); ok {
			s.out.Ignore(IgnoreRule{Path: p})
			continue
		}
		m, ok := e.(*parser.Map)
		if !ok {
			continue
		}
		pv, _ := m.Get("path")
		p, ok := parser.AsString(pv)
		if !ok {
			continue
		}
		rv, _ := m.Get("rules")
		s.out.Ignore(IgnoreRule{Path: p, Rules: stringList(rv)})
	}
}

func (s *suppressions) Resource(path walker.Path, _ string, v parser.Value) {
	m, ok := v.(*parser.Map)
	if !ok {
		return
	}
	meta, ok := m.Get("Metadata")
	if !ok {
		return
	}
	l, ok := directives(meta)
	if !ok {
		return
	}
	rules := stringList(l)
	if len(rules) == 0 {
		return
	}
	s.out.Ignore(IgnoreRule{Path: path.String(), Rules: rules})
}

func directives(meta parser.Value) (*parser.List, bool) {
	m, ok := meta.(*parser.Map)
	if !ok {
		return nil, false
	}
	own, ok := m.Get(metadataKey)
	if !ok {
		return nil, false
	}
	om, ok := own.(*parser.Map)
	if !ok {
		return nil, false
	}
	ign, ok := om.Get("ignore")
	if !ok {
		return nil, false
	}
	l, ok := ign.(*parser.List)
	return l, ok
}

func stringList(v parser.Value) []string {
	l, ok := v.(*parser.List)
	if !ok {
		return nil
	}
	var out []string
	for _, e := range l.Elements {
		if s, ok := parser.AsString(e); ok {
			out = append(out, s)
		}
	}
	return out
}
