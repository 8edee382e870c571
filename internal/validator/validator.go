package validator

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/cfncheck/cfncheck/internal/index"
	"github.com/cfncheck/cfncheck/internal/inference"
	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/schema"
	"github.com/cfncheck/cfncheck/internal/walker"
)

// Options tunes a single lint.
type Options struct {
	// Parameters holds runtime parameter values, by parameter name.
	Parameters    map[string]string
	Ignore        []IgnoreRule
	DisabledRules []string
}

type Result struct {
	Diagnostics []Diagnostic
	// Calls lists every intrinsic call in walk order with its inferred shape.
	Calls []inference.Record
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// Lint checks one template against table. Problems in the template are
// returned as diagnostics; the error is reserved for a table that
// contradicts itself.
func Lint(table *schema.Table, src []byte, opts Options) (*Result, error) {
	out := NewCollector(opts.Ignore, opts.DisabledRules)

	tmpl, err := parser.Parse(src)
	if err != nil {
		out.Report(RuleTemplate, parsePosition(err), nil, "%v", err)
		return &Result{Diagnostics: out.Diagnostics()}, nil
	}
	for _, d := range tmpl.Duplicates {
		out.Report(RuleDuplicateKey, d.Position, nil, "duplicate key %q, the last occurrence is used", d.Key)
	}
	for _, t := range tmpl.UnknownTags {
		out.Report(RuleUnknownFunction, t.Position, nil, "%s",
			withSuggestion("unknown tag "+t.Tag, t.Tag, functionTags()))
	}

	binder := index.NewBinder(table, opts.Parameters)
	bindings := binder.Bindings()
	engine := inference.New(bindings)
	structural := NewStructural(table, engine, bindings, out)

	w := walker.New(
		binder,
		engine,
		NewSections(table, bindings, out),
		NewParameters(opts.Parameters, out),
		structural,
		NewNesting(out),
		NewFunctions(out),
		NewReferences(bindings, out),
		newSuppressions(out),
	)
	w.Walk(tmpl.Root)
	bindings.Seal()

	undeclared(bindings, opts.Parameters, out)

	if err := structural.Err(); err != nil {
		return nil, err
	}
	return &Result{Diagnostics: out.Diagnostics(), Calls: engine.Records()}, nil
}

func undeclared(b *index.Bindings, runtime map[string]string, out *Collector) {
	names := make([]string, 0, len(runtime))
	for name := range runtime {
		if _, ok := b.Parameter(name); !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		out.Report(RuleParameter, parser.Position{}, walker.Path{walker.SectionParameters, name}, "%s",
			withSuggestion("value given for undeclared parameter "+name, name, b.ParameterNames()))
	}
}

func parsePosition(err error) parser.Position {
	m := yamlLine.FindStringSubmatch(err.Error())
	if m == nil {
		return parser.Position{Line: 1, Column: 1}
	}
	line, _ := strconv.Atoi(m[1])
	return parser.Position{Line: line, Column: 1}
}

func functionTags() []string {
	kinds := parser.Kinds()
	tags := make([]string, 0, len(kinds))
	for _, k := range kinds {
		tags = append(tags, k.Tag())
	}
	return tags
}
