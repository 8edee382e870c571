// Package inference resolves the result type of every intrinsic call in a
// template without evaluating it.
package inference

import (
	"strconv"
	"strings"

	"github.com/cfncheck/cfncheck/internal/index"
	"github.com/cfncheck/cfncheck/internal/intrinsic"
	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/schema"
	"github.com/cfncheck/cfncheck/internal/walker"
)

// Record is one resolved call, kept for hover and debugging output.
type Record struct {
	Path     walker.Path
	Position parser.Position
	Kind     parser.Kind
	Shape    schema.Shape
	Call     *parser.Call
}

type pendingCall struct {
	path walker.Path
	call *parser.Call
}

// Engine is a checker. Calls seen before the bindings are sealed are queued
// and resolved when sealing happens.
type Engine struct {
	walker.NopChecker

	bindings *index.Bindings
	pending  []pendingCall
	records  []Record
}

func New(b *index.Bindings) *Engine {
	e := &Engine{bindings: b}
	b.OnSeal(e.flush)
	return e
}

func (e *Engine) Call(path walker.Path, c *parser.Call) {
	if !e.bindings.Sealed() {
		e.pending = append(e.pending, pendingCall{path: path, call: c})
		return
	}
	e.record(path, c)
}

func (e *Engine) flush() {
	pending := e.pending
	e.pending = nil
	for _, p := range pending {
		e.record(p.path, p.call)
	}
}

func (e *Engine) record(path walker.Path, c *parser.Call) {
	e.records = append(e.records, Record{
		Path:     path,
		Position: c.Position,
		Kind:     c.Kind,
		Shape:    e.Resolve(c),
		Call:     c,
	})
}

func (e *Engine) Records() []Record { return e.records }

// Resolve returns the result shape of c, computing and storing it on first
// use. Before the bindings are sealed nothing is stored and nil is returned.
func (e *Engine) Resolve(c *parser.Call) schema.Shape {
	if s, ok := c.Resolved(); ok {
		return s
	}
	if !e.bindings.Sealed() {
		return nil
	}
	s := e.infer(c)
	c.SetResolved(s)
	return s
}

func (e *Engine) infer(c *parser.Call) schema.Shape {
	fn := intrinsic.Lookup(c.Kind)
	switch fn.Result.Kind {
	case intrinsic.Fixed:
		return fn.Result.Shape
	case intrinsic.Opaque:
		return nil
	case intrinsic.Deferred:
	default:
		panic("inference: unhandled result rule")
	}

	switch c.Kind {
	case parser.KindRef:
		name, ok := parser.AsString(c.Args)
		if !ok {
			return nil
		}
		return e.ref(name)
	case parser.KindSub:
		return e.sub(c.Args)
	case parser.KindGetAtt:
		return e.getAtt(c.Args)
	case parser.KindFindInMap:
		return e.findInMap(c.Args)
	case parser.KindSelect:
		return e.selectElem(c.Args)
	case parser.KindIf:
		return e.ifBranches(c.Args)
	case parser.KindJoin, parser.KindGetAZs, parser.KindEquals, parser.KindAnd, parser.KindOr,
		parser.KindNot, parser.KindBase64, parser.KindCidr, parser.KindImportValue, parser.KindSplit,
		parser.KindCondition:
		panic("inference: " + c.Kind.String() + " has no deferred rule")
	}
	panic("inference: unhandled function kind " + c.Kind.String())
}

func (e *Engine) ref(name string) schema.Shape {
	if s, ok := index.PseudoParameters[name]; ok {
		return s
	}
	if p, ok := e.bindings.Parameter(name); ok {
		return ParameterShape(p)
	}
	if r, ok := e.bindings.Resource(name); ok {
		if s, ok := r.Attributes["Ref"]; ok {
			return s
		}
	}
	return nil
}

func (e *Engine) sub(args parser.Value) schema.Shape {
	str := schema.Primitives(schema.String)
	tmpl, vars, ok := intrinsic.SubTemplate(args)
	if !ok {
		return str
	}
	name, ok := intrinsic.SingleSubToken(tmpl)
	if !ok {
		return str
	}
	if vars != nil {
		if v, ok := vars.Get(name); ok {
			return e.Classify(v)
		}
	}
	if i := strings.Index(name, "."); i != -1 {
		if _, ok := e.bindings.Resource(name[:i]); ok {
			return e.attribute(name[:i], name[i+1:])
		}
	}
	return e.ref(name)
}

func (e *Engine) getAtt(args parser.Value) schema.Shape {
	l, ok := args.(*parser.List)
	if !ok || len(l.Elements) != 2 {
		return nil
	}
	res, ok := parser.AsString(l.Elements[0])
	if !ok {
		return nil
	}
	attr, ok := parser.AsString(l.Elements[1])
	if !ok {
		return nil
	}
	return e.attribute(res, attr)
}

// attribute looks up the full dotted attribute name first and falls back to
// its first segment. Extra segments into a Json attribute narrow to String.
func (e *Engine) attribute(resource, attr string) schema.Shape {
	r, ok := e.bindings.Resource(resource)
	if !ok || r.Attributes == nil {
		return nil
	}
	if s, ok := r.Attributes[attr]; ok {
		return s
	}
	i := strings.Index(attr, ".")
	if i == -1 {
		return nil
	}
	s, ok := r.Attributes[attr[:i]]
	if !ok {
		return nil
	}
	if s.Contains(schema.PrimitiveAtom(schema.Json)) {
		return schema.Primitives(schema.String)
	}
	return s
}

// findInMap filters the mapping table level by level. A literal key narrows
// to its entry; a dynamic key keeps every entry of that level.
func (e *Engine) findInMap(args parser.Value) schema.Shape {
	l, ok := args.(*parser.List)
	if !ok || len(l.Elements) < 3 {
		return nil
	}
	table := e.bindings.Mappings()

	var level []parser.Value
	if name, ok := literalKey(l.Elements[0]); ok {
		if m, ok := table.Get(name); ok {
			level = append(level, m)
		}
	} else {
		for _, name := range table.Names() {
			m, _ := table.Get(name)
			level = append(level, m)
		}
	}

	for _, key := range l.Elements[1:3] {
		level = narrow(level, key)
	}

	var shapes []schema.Shape
	for _, v := range level {
		s := e.Classify(v)
		if s.Resolved() {
			shapes = append(shapes, s)
		}
	}
	return schema.Union(shapes...)
}

func narrow(level []parser.Value, key parser.Value) []parser.Value {
	literal, isLiteral := literalKey(key)
	var next []parser.Value
	for _, v := range level {
		m, ok := v.(*parser.Map)
		if !ok {
			continue
		}
		if isLiteral {
			if child, ok := m.Get(literal); ok {
				next = append(next, child)
			}
			continue
		}
		for _, k := range m.Keys() {
			child, _ := m.Get(k)
			next = append(next, child)
		}
	}
	return next
}

func literalKey(v parser.Value) (string, bool) {
	if _, ok := v.(*parser.Call); ok {
		return "", false
	}
	return parser.ScalarText(v)
}

func (e *Engine) selectElem(args parser.Value) schema.Shape {
	l, ok := args.(*parser.List)
	if !ok || len(l.Elements) != 2 {
		return nil
	}
	switch src := l.Elements[1].(type) {
	case *parser.Call:
		var elems []schema.Atom
		for _, a := range e.Resolve(src) {
			if a.Kind == schema.AtomList {
				elems = append(elems, *a.Elem)
			}
		}
		return schema.Of(elems...)
	case *parser.List:
		if idx, ok := literalIndex(l.Elements[0]); ok {
			if idx >= len(src.Elements) {
				return nil
			}
			return e.Classify(src.Elements[idx])
		}
		var shapes []schema.Shape
		for _, el := range src.Elements {
			s := e.Classify(el)
			if !s.Resolved() {
				return nil
			}
			shapes = append(shapes, s)
		}
		return schema.Union(shapes...)
	}
	return nil
}

func literalIndex(v parser.Value) (int, bool) {
	text, ok := literalKey(v)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(text)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// ifBranches is the union of both branches. A branch that omits the value
// contributes nothing; an unresolved branch leaves the whole call unresolved.
func (e *Engine) ifBranches(args parser.Value) schema.Shape {
	l, ok := args.(*parser.List)
	if !ok || len(l.Elements) != 3 {
		return nil
	}
	var shapes []schema.Shape
	for _, branch := range l.Elements[1:] {
		if _, ok := branch.(*parser.Absent); ok {
			continue
		}
		s := e.Classify(branch)
		if !s.Resolved() {
			return nil
		}
		shapes = append(shapes, s)
	}
	return schema.Union(shapes...)
}

// Classify returns the shape of a template value: literals by their kind,
// calls by their resolution.
func (e *Engine) Classify(v parser.Value) schema.Shape {
	switch t := v.(type) {
	case *parser.Scalar:
		switch t.Kind {
		case parser.StringScalar:
			return schema.Primitives(schema.String)
		case parser.NumberScalar:
			return schema.Primitives(schema.Number)
		case parser.BoolScalar:
			return schema.Primitives(schema.Boolean)
		case parser.NullScalar:
			return nil
		}
		panic("inference: unhandled scalar kind")
	case *parser.Map:
		return schema.Primitives(schema.Json)
	case *parser.List:
		return e.classifyList(t)
	case *parser.Call:
		return e.Resolve(t)
	case *parser.Absent:
		return nil
	}
	panic("inference: unhandled value type")
}

// classifyList yields one List atom per distinct element shape.
func (e *Engine) classifyList(l *parser.List) schema.Shape {
	if len(l.Elements) == 0 {
		return nil
	}
	var atoms []schema.Atom
	for _, el := range l.Elements {
		if _, ok := el.(*parser.Absent); ok {
			continue
		}
		s := e.Classify(el)
		if !s.Resolved() {
			return nil
		}
		for _, a := range s {
			atoms = append(atoms, schema.ListAtom(a))
		}
	}
	return schema.Of(atoms...)
}

// ParameterShape maps a parameter's declared type to the shape a Ref to it
// yields.
func ParameterShape(p *index.ParameterBinding) schema.Shape {
	t := p.Type
	switch {
	case t == "String":
		return stringParameterShape(p)
	case t == "Number":
		return schema.Primitives(schema.Number, schema.String)
	case t == "List<Number>":
		return schema.Of(
			schema.ListAtom(schema.PrimitiveAtom(schema.Number)),
			schema.ListAtom(schema.PrimitiveAtom(schema.String)),
		)
	case t == "CommaDelimitedList", strings.HasPrefix(t, "List<"):
		return schema.ListOf(schema.String)
	case strings.HasPrefix(t, "AWS::SSM::Parameter::Value<"):
		inner := strings.TrimSuffix(strings.TrimPrefix(t, "AWS::SSM::Parameter::Value<"), ">")
		if inner == "CommaDelimitedList" || strings.HasPrefix(inner, "List<") {
			return schema.ListOf(schema.String)
		}
		return schema.Primitives(schema.String)
	case t == "AWS::SSM::Parameter::Name", strings.HasPrefix(t, "AWS::"):
		return schema.Primitives(schema.String)
	}
	return nil
}

// stringParameterShape classifies the runtime value, else the Default. With
// neither, any scalar is accepted.
func stringParameterShape(p *index.ParameterBinding) schema.Shape {
	if p.HasRuntime {
		return classifyText(p.Runtime)
	}
	if p.Default != nil {
		if text, ok := parser.ScalarText(p.Default); ok {
			return classifyText(text)
		}
		return schema.Primitives(schema.String)
	}
	return schema.Primitives(schema.String, schema.Number, schema.Boolean)
}

func classifyText(s string) schema.Shape {
	out := schema.Primitives(schema.String)
	switch strings.ToLower(s) {
	case "true", "false":
		out = schema.Union(out, schema.Primitives(schema.Boolean))
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		out = schema.Union(out, schema.Primitives(schema.Number))
	}
	return out
}
