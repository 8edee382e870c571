package validator

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/cfncheck/cfncheck/internal/index"
	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/schema"
	"github.com/cfncheck/cfncheck/internal/walker"
)

// Resolver gives the inferred result shape of a call.
type Resolver interface {
	Resolve(c *parser.Call) schema.Shape
}

// Structural checks values against shapes from the Table. Only a Table that
// contradicts itself makes it fail; everything else becomes a diagnostic.
type Structural struct {
	walker.NopChecker

	table    *schema.Table
	calls    Resolver
	bindings *index.Bindings
	out      *Collector
	fatal    error
}

func NewStructural(table *schema.Table, calls Resolver, bindings *index.Bindings, out *Collector) *Structural {
	return &Structural{table: table, calls: calls, bindings: bindings, out: out}
}

// Err returns the first specification inconsistency met during the walk.
func (s *Structural) Err() error { return s.fatal }

func (s *Structural) Resource(path walker.Path, name string, v parser.Value) {
	if s.fatal != nil {
		return
	}
	r, ok := s.bindings.Resource(name)
	if !ok {
		return
	}
	m, ok := v.(*parser.Map)
	if !ok {
		return
	}
	props, hasProps := m.Get("Properties")
	propsPath := path.Child("Properties")
	pos := m.Position
	if hasProps {
		pos = props.Pos()
	}

	var err error
	switch {
	case r.Custom():
		err = s.checkProperties(propsPath, pos, props, map[string]schema.PropertySpec{
			"ServiceToken": {Required: true, Shape: schema.Primitives(schema.String)},
		}, r.Type, true)
	case r.Spec != nil:
		err = s.checkProperties(propsPath, pos, props, r.Spec.Properties, r.Type, false)
	}
	if err != nil && s.fatal == nil {
		s.fatal = err
	}
}

// checkProperties validates a resource's Properties value. A missing or
// omitted Properties is an empty object. Fn::If branches are checked one by
// one.
func (s *Structural) checkProperties(path walker.Path, pos parser.Position, props parser.Value,
	specs map[string]schema.PropertySpec, owner string, open bool) error {
	switch t := props.(type) {
	case nil, *parser.Absent:
		return s.checkObject(path, &parser.Map{Position: pos}, specs, owner, open)
	case *parser.Map:
		if _, ok := parser.External(t); ok {
			return nil
		}
		return s.checkObject(path, t, specs, owner, open)
	case *parser.Call:
		if t.Kind == parser.KindIf {
			return s.eachBranch(path, t, func(p walker.Path, branch parser.Value) error {
				return s.checkProperties(p, branch.Pos(), branch, specs, owner, open)
			})
		}
		return nil
	}
	s.out.Report(RuleTypeMismatch, props.Pos(), path, "expected %s properties object, got %s", owner, parser.Describe(props))
	return nil
}

func (s *Structural) eachBranch(path walker.Path, c *parser.Call, fn func(walker.Path, parser.Value) error) error {
	l, ok := c.Args.(*parser.List)
	if !ok || len(l.Elements) != 3 {
		return nil
	}
	argPath := path.Child(c.Kind.String())
	for i := 1; i <= 2; i++ {
		if err := fn(argPath.Index(i), l.Elements[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Structural) checkObject(path walker.Path, m *parser.Map, specs map[string]schema.PropertySpec, owner string, open bool) error {
	for _, key := range m.Keys() {
		v, _ := m.Get(key)
		spec, ok := specs[key]
		if !ok {
			if !open {
				entry, _ := m.Entry(key)
				s.out.Report(RuleInvalidProperty, entry.KeyPos, path.Child(key),
					"%s", withSuggestion("invalid property "+key+" for "+owner, key, propertyNames(specs)))
			}
			continue
		}
		if err := s.Check(path.Child(key), v, spec.Shape); err != nil {
			return err
		}
	}

	for _, name := range propertyNames(specs) {
		if !specs[name].Required {
			continue
		}
		v, ok := m.Get(name)
		if _, absent := v.(*parser.Absent); !ok || absent {
			s.out.Report(RuleRequired, m.Position, path.Child(name), "required property %s of %s is missing", name, owner)
		}
	}
	return nil
}

func propertyNames(specs map[string]schema.PropertySpec) []string {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check compares v with shape and reports every mismatch. Omitted values and
// transform-expanded functions are not checked. A call passes when its
// inferred shape may overlap shape or cannot be inferred.
func (s *Structural) Check(path walker.Path, v parser.Value, shape schema.Shape) error {
	if _, ok := parser.External(v); ok {
		return nil
	}
	switch t := v.(type) {
	case *parser.Absent:
		return nil
	case *parser.Call:
		if t.Kind == parser.KindIf {
			return s.eachBranch(path, t, func(p walker.Path, branch parser.Value) error {
				return s.Check(p, branch, shape)
			})
		}
		resolved := s.calls.Resolve(t)
		if !resolved.Resolved() {
			return nil
		}
		for _, a := range shape {
			if resolved.Intersects(a) {
				return nil
			}
		}
		s.out.Report(RuleTypeMismatch, t.Position, path, "expected %s, got %s from %s", shape, resolved, t.Name())
		return nil
	}

	if len(shape) == 1 {
		return s.checkAtom(path, v, shape[0], s.out)
	}

	// Several alternatives: accept the first that fits without complaint.
	for _, a := range shape {
		scratch := NewCollector(nil, nil)
		if err := s.checkAtom(path, v, a, scratch); err != nil {
			return err
		}
		if len(scratch.diagnostics) == 0 {
			return nil
		}
	}
	s.out.Report(RuleTypeMismatch, v.Pos(), path, "expected %s, got %s", shape, parser.Describe(v))
	return nil
}

func (s *Structural) checkAtom(path walker.Path, v parser.Value, a schema.Atom, out *Collector) error {
	switch a.Kind {
	case schema.AtomPrimitive:
		if !admits(a.Primitive, v) {
			out.Report(RuleTypeMismatch, v.Pos(), path, "expected %s, got %s", a.Primitive, parser.Describe(v))
		}
		return nil
	case schema.AtomList:
		l, ok := v.(*parser.List)
		if !ok {
			out.Report(RuleTypeMismatch, v.Pos(), path, "expected %s, got %s", a, parser.Describe(v))
			return nil
		}
		elem := schema.Of(*a.Elem)
		for i, e := range l.Elements {
			if err := s.checkWith(path.Index(i), e, elem, out); err != nil {
				return err
			}
		}
		return nil
	case schema.AtomNamed:
		nested, ok := s.table.Nested(a.Named)
		if !ok {
			return errors.Wrapf(schema.ErrInconsistent, "property type %s is not defined", a.Named)
		}
		if nested.Alias.Resolved() {
			return s.checkWith(path, v, nested.Alias, out)
		}
		m, ok := v.(*parser.Map)
		if !ok {
			out.Report(RuleTypeMismatch, v.Pos(), path, "expected %s object, got %s", a.Named, parser.Describe(v))
			return nil
		}
		return s.withOutput(out).checkObject(path, m, nested.Properties, a.Named, false)
	}
	panic("validator: unhandled atom kind")
}

// checkWith runs Check writing into out instead of the main collector.
func (s *Structural) checkWith(path walker.Path, v parser.Value, shape schema.Shape, out *Collector) error {
	return s.withOutput(out).Check(path, v, shape)
}

func (s *Structural) withOutput(out *Collector) *Structural {
	if out == s.out {
		return s
	}
	c := *s
	c.out = out
	return &c
}

// admits is the primitive predicate table for literal values. Template
// values are loosely typed: strings holding numbers or booleans are accepted
// where those are expected, and any scalar is a valid String.
func admits(p schema.Primitive, v parser.Value) bool {
	sc, isScalar := v.(*parser.Scalar)
	switch p {
	case schema.String, schema.Timestamp:
		return isScalar && sc.Kind != parser.NullScalar
	case schema.Number, schema.Long, schema.Double:
		if !isScalar {
			return false
		}
		switch sc.Kind {
		case parser.NumberScalar:
			return true
		case parser.StringScalar:
			_, ok := sc.Float()
			return ok
		}
		return false
	case schema.Boolean:
		if !isScalar {
			return false
		}
		switch sc.Kind {
		case parser.BoolScalar:
			return true
		case parser.StringScalar:
			_, ok := sc.Bool()
			return ok
		}
		return false
	case schema.Json:
		switch v.(type) {
		case *parser.Map, *parser.List:
			return true
		}
		return isScalar && sc.Kind == parser.StringScalar
	}
	panic("validator: unhandled primitive " + p.String())
}
