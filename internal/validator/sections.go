package validator

import (
	"regexp"

	"github.com/cfncheck/cfncheck/internal/index"
	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/schema"
	"github.com/cfncheck/cfncheck/internal/walker"
)

const (
	formatVersion        = "2010-09-09"
	maxDescriptionLength = 1024
)

var (
	logicalIDPattern   = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	resourceAttributes = []string{
		"Condition", "CreationPolicy", "DeletionPolicy", "DependsOn", "Metadata",
		"Properties", "Type", "UpdatePolicy", "UpdateReplacePolicy", "Version",
	}
	outputAttributes = []string{"Condition", "Description", "Export", "Value"}
	deletionPolicies = []string{"Delete", "Retain", "RetainExceptOnCreate", "Snapshot"}
)

// Sections checks the overall layout of the template: which sections exist,
// their shapes and the attributes of each entry.
type Sections struct {
	walker.NopChecker

	table    *schema.Table
	bindings *index.Bindings
	out      *Collector
}

func NewSections(table *schema.Table, b *index.Bindings, out *Collector) *Sections {
	return &Sections{table: table, bindings: b, out: out}
}

func (s *Sections) Template(path walker.Path, root parser.Value) {
	m, ok := root.(*parser.Map)
	if !ok {
		s.out.Report(RuleTemplate, root.Pos(), path, "template must be an object, got %s", parser.Describe(root))
		return
	}
	for _, key := range m.Keys() {
		if walker.IsSection(key) {
			continue
		}
		e, _ := m.Entry(key)
		s.out.Report(RuleSection, e.KeyPos, path.Child(e.Key), "%s",
			withSuggestion("invalid top-level section "+e.Key, e.Key, walker.Sections))
	}
	if _, ok := m.Get(walker.SectionResources); !ok {
		s.out.Report(RuleRequired, m.Position, path.Child(walker.SectionResources), "required section Resources is missing")
	}
}

func (s *Sections) FormatVersion(path walker.Path, v parser.Value) {
	if text, ok := parser.ScalarText(v); ok && text == formatVersion {
		return
	}
	s.out.Report(RuleSection, v.Pos(), path, "AWSTemplateFormatVersion must be %q", formatVersion)
}

func (s *Sections) Description(path walker.Path, v parser.Value) {
	text, ok := parser.AsString(v)
	if !ok {
		s.out.Report(RuleSection, v.Pos(), path, "Description must be a string, got %s", parser.Describe(v))
		return
	}
	if len(text) > maxDescriptionLength {
		s.out.Report(RuleSection, v.Pos(), path, "Description is %d bytes, the limit is %d", len(text), maxDescriptionLength)
	}
}

func (s *Sections) Metadata(path walker.Path, v parser.Value) {
	s.requireObject(path, "Metadata", v)
}

func (s *Sections) Parameters(path walker.Path, v parser.Value) {
	s.requireObject(path, "Parameters", v)
}

func (s *Sections) Mappings(path walker.Path, v parser.Value) {
	s.requireObject(path, "Mappings", v)
}

func (s *Sections) Mapping(path walker.Path, name string, v parser.Value) {
	s.logicalID(path, v, "mapping", name)
	m, ok := v.(*parser.Map)
	if !ok {
		s.out.Report(RuleSection, v.Pos(), path, "mapping %s must be an object, got %s", name, parser.Describe(v))
		return
	}
	for _, top := range m.Keys() {
		second, _ := m.Get(top)
		sm, ok := second.(*parser.Map)
		if !ok {
			s.out.Report(RuleSection, second.Pos(), path.Child(top), "mapping %s key %s must be an object, got %s",
				name, top, parser.Describe(second))
			continue
		}
		for _, key := range sm.Keys() {
			leaf, _ := sm.Get(key)
			switch leaf.(type) {
			case *parser.Scalar, *parser.List:
			default:
				s.out.Report(RuleSection, leaf.Pos(), path.Child(top).Child(key),
					"mapping values must be a string, number or list, got %s", parser.Describe(leaf))
			}
		}
	}
}

func (s *Sections) Conditions(path walker.Path, v parser.Value) {
	s.requireObject(path, "Conditions", v)
}

func (s *Sections) Condition(path walker.Path, name string, v parser.Value) {
	if c, ok := v.(*parser.Call); ok {
		switch c.Kind {
		case parser.KindEquals, parser.KindAnd, parser.KindOr, parser.KindNot, parser.KindCondition:
			return
		}
	}
	s.out.Report(RuleSection, v.Pos(), path, "condition %s must be Fn::Equals, Fn::And, Fn::Or, Fn::Not or Condition, got %s",
		name, parser.Describe(v))
}

func (s *Sections) Transform(path walker.Path, v parser.Value) {
	if _, ok := parser.AsString(v); ok {
		return
	}
	if l, ok := v.(*parser.List); ok {
		for i, e := range l.Elements {
			if _, ok := parser.AsString(e); !ok {
				s.out.Report(RuleSection, e.Pos(), path.Index(i), "transform names must be strings, got %s", parser.Describe(e))
			}
		}
		return
	}
	s.out.Report(RuleSection, v.Pos(), path, "Transform must be a string or a list of strings, got %s", parser.Describe(v))
}

func (s *Sections) Resources(path walker.Path, v parser.Value) {
	m, ok := v.(*parser.Map)
	if !ok {
		s.out.Report(RuleSection, v.Pos(), path, "Resources must be an object, got %s", parser.Describe(v))
		return
	}
	if len(m.Entries) == 0 {
		s.out.Report(RuleSection, m.Position, path, "Resources must declare at least one resource")
	}
}

func (s *Sections) Resource(path walker.Path, name string, v parser.Value) {
	s.logicalID(path, v, "resource", name)
	m, ok := v.(*parser.Map)
	if !ok {
		s.out.Report(RuleSection, v.Pos(), path, "resource %s must be an object, got %s", name, parser.Describe(v))
		return
	}
	s.attributes(path, m, "resource", resourceAttributes)

	typ, ok := m.Get("Type")
	switch {
	case !ok:
		s.out.Report(RuleRequired, m.Position, path.Child("Type"), "required attribute Type of resource %s is missing", name)
	default:
		t, isString := parser.AsString(typ)
		switch {
		case !isString:
			s.out.Report(RuleTypeMismatch, typ.Pos(), path.Child("Type"), "resource Type must be a string, got %s", parser.Describe(typ))
		case index.IsCustomType(t):
		default:
			if _, known := s.table.Resource(t); !known {
				s.out.Report(RuleResourceType, typ.Pos(), path.Child("Type"), "%s",
					withSuggestion("invalid resource type "+t, t, s.table.ResourceTypeNames()))
			}
		}
	}

	if dep, ok := m.Get("DependsOn"); ok {
		s.dependsOn(path.Child("DependsOn"), name, dep)
	}
	if cond, ok := m.Get("Condition"); ok {
		s.conditionName(path.Child("Condition"), cond)
	}
	if dp, ok := m.Get("DeletionPolicy"); ok {
		s.deletionPolicy(path.Child("DeletionPolicy"), dp)
	}
	if urp, ok := m.Get("UpdateReplacePolicy"); ok {
		s.deletionPolicy(path.Child("UpdateReplacePolicy"), urp)
	}
}

func (s *Sections) dependsOn(path walker.Path, self string, v parser.Value) {
	check := func(p walker.Path, e parser.Value) {
		target, ok := parser.AsString(e)
		if !ok {
			s.out.Report(RuleTypeMismatch, e.Pos(), p, "DependsOn entries must be strings, got %s", parser.Describe(e))
			return
		}
		if target == self {
			s.out.Report(RuleReference, e.Pos(), p, "resource %s can not depend on itself", self)
			return
		}
		if _, ok := s.bindings.Resource(target); !ok {
			s.out.Report(RuleReference, e.Pos(), p, "%s",
				withSuggestion("DependsOn target '"+target+"' is not a resource", target, s.bindings.ResourceNames()))
		}
	}
	if l, ok := v.(*parser.List); ok {
		for i, e := range l.Elements {
			check(path.Index(i), e)
		}
		return
	}
	check(path, v)
}

func (s *Sections) conditionName(path walker.Path, v parser.Value) {
	name, ok := parser.AsString(v)
	if !ok {
		s.out.Report(RuleTypeMismatch, v.Pos(), path, "Condition must be a condition name, got %s", parser.Describe(v))
		return
	}
	if _, ok := s.bindings.Condition(name); !ok {
		s.out.Report(RuleReference, v.Pos(), path, "%s",
			withSuggestion("unresolved condition '"+name+"'", name, s.bindings.ConditionNames()))
	}
}

func (s *Sections) deletionPolicy(path walker.Path, v parser.Value) {
	if _, ok := v.(*parser.Call); ok {
		return
	}
	p, ok := parser.AsString(v)
	if ok && contains(deletionPolicies, p) {
		return
	}
	text, _ := parser.ScalarText(v)
	s.out.Report(RuleSection, v.Pos(), path, "%s",
		withSuggestion("invalid policy '"+text+"'", text, deletionPolicies))
}

func (s *Sections) Outputs(path walker.Path, v parser.Value) {
	s.requireObject(path, "Outputs", v)
}

func (s *Sections) Output(path walker.Path, name string, v parser.Value) {
	s.logicalID(path, v, "output", name)
	m, ok := v.(*parser.Map)
	if !ok {
		s.out.Report(RuleSection, v.Pos(), path, "output %s must be an object, got %s", name, parser.Describe(v))
		return
	}
	s.attributes(path, m, "output", outputAttributes)
	if _, ok := m.Get("Value"); !ok {
		s.out.Report(RuleRequired, m.Position, path.Child("Value"), "required attribute Value of output %s is missing", name)
	}
	if cond, ok := m.Get("Condition"); ok {
		s.conditionName(path.Child("Condition"), cond)
	}
	if exp, ok := m.Get("Export"); ok {
		em, ok := exp.(*parser.Map)
		if !ok {
			s.out.Report(RuleTypeMismatch, exp.Pos(), path.Child("Export"), "Export must be an object, got %s", parser.Describe(exp))
		} else if _, ok := em.Get("Name"); !ok {
			s.out.Report(RuleRequired, em.Position, path.Child("Export").Child("Name"), "required attribute Name of Export is missing")
		}
	}
}

func (s *Sections) requireObject(path walker.Path, section string, v parser.Value) {
	if _, ok := v.(*parser.Map); !ok {
		s.out.Report(RuleSection, v.Pos(), path, "%s must be an object, got %s", section, parser.Describe(v))
	}
}

func (s *Sections) attributes(path walker.Path, m *parser.Map, what string, known []string) {
	for _, key := range m.Keys() {
		if contains(known, key) {
			continue
		}
		e, _ := m.Entry(key)
		s.out.Report(RuleInvalidProperty, e.KeyPos, path.Child(e.Key), "%s",
			withSuggestion("invalid "+what+" attribute "+e.Key, e.Key, known))
	}
}

func (s *Sections) logicalID(path walker.Path, v parser.Value, what, name string) {
	if !logicalIDPattern.MatchString(name) {
		s.out.Report(RuleSection, v.Pos(), path, "%s name %q must be alphanumeric", what, name)
	}
}
