// Package walker performs the single depth-first traversal of a parsed
// template, dispatching every node to a list of checkers.
package walker

import (
	"strconv"
	"strings"

	"github.com/cfncheck/cfncheck/internal/parser"
)

// Top-level section names, in traversal order.
const (
	SectionFormatVersion = "AWSTemplateFormatVersion"
	SectionDescription   = "Description"
	SectionMetadata      = "Metadata"
	SectionParameters    = "Parameters"
	SectionMappings      = "Mappings"
	SectionConditions    = "Conditions"
	SectionTransform     = "Transform"
	SectionResources     = "Resources"
	SectionOutputs       = "Outputs"
)

var Sections = []string{
	SectionFormatVersion,
	SectionDescription,
	SectionMetadata,
	SectionParameters,
	SectionMappings,
	SectionConditions,
	SectionTransform,
	SectionResources,
	SectionOutputs,
}

func IsSection(name string) bool {
	for _, s := range Sections {
		if s == name {
			return true
		}
	}
	return false
}

// Path locates a node from the template root. Child and Index return new
// paths and never modify the receiver.
type Path []string

func (p Path) Child(name string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = name
	return out
}

func (p Path) Index(i int) Path { return p.Child(strconv.Itoa(i)) }

func (p Path) String() string { return strings.Join(p, ".") }

func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

func ParsePath(s string) Path {
	if s == "" {
		return Path{}
	}
	return Path(strings.Split(s, "."))
}

// Checker receives one callback per structural node kind. Section callbacks
// get the raw section value, whatever its shape. Value is invoked for every
// node below the named section entries; Call and LeaveCall bracket the visit
// of a call's arguments.
type Checker interface {
	Template(path Path, root parser.Value)
	FormatVersion(path Path, v parser.Value)
	Description(path Path, v parser.Value)
	Metadata(path Path, v parser.Value)
	Parameters(path Path, v parser.Value)
	Parameter(path Path, name string, v parser.Value)
	Mappings(path Path, v parser.Value)
	Mapping(path Path, name string, v parser.Value)
	Conditions(path Path, v parser.Value)
	Condition(path Path, name string, v parser.Value)
	Transform(path Path, v parser.Value)
	Resources(path Path, v parser.Value)
	Resource(path Path, name string, v parser.Value)
	Properties(path Path, resource string, v parser.Value)
	Outputs(path Path, v parser.Value)
	Output(path Path, name string, v parser.Value)
	Value(path Path, v parser.Value)
	Call(path Path, c *parser.Call)
	LeaveCall(path Path, c *parser.Call)
}

// NopChecker implements every Checker method as a no-op. Embed it and
// override what you need.
type NopChecker struct{}

func (NopChecker) Template(Path, parser.Value) {}
func (NopChecker) FormatVersion(Path, parser.Value) {}
func (NopChecker) Description(Path, parser.Value) {}
func (NopChecker) Metadata(Path, parser.Value) {}
func (NopChecker) Parameters(Path, parser.Value) {}
func (NopChecker) Parameter(Path, string, parser.Value) {}
func (NopChecker) Mappings(Path, parser.Value) {}
func (NopChecker) Mapping(Path, string, parser.Value) {}
func (NopChecker) Conditions(Path, parser.Value) {}
func (NopChecker) Condition(Path, string, parser.Value) {}
func (NopChecker) Transform(Path, parser.Value) {}
func (NopChecker) Resources(Path, parser.Value) {}
func (NopChecker) Resource(Path, string, parser.Value) {}
func (NopChecker) Properties(Path, string, parser.Value) {}
func (NopChecker) Outputs(Path, parser.Value) {}
func (NopChecker) Output(Path, string, parser.Value) {}
func (NopChecker) Value(Path, parser.Value) {}
func (NopChecker) Call(Path, *parser.Call) {}
func (NopChecker) LeaveCall(Path, *parser.Call) {}

type Walker struct {
	checkers []Checker
}

func New(checkers ...Checker) *Walker {
	return &Walker{checkers: checkers}
}

func (w *Walker) dispatch(fn func(Checker)) {
	for _, c := range w.checkers {
		fn(c)
	}
}

// Walk visits root once. It never fails: a section of the wrong shape is
// handed to its callback and not descended into.
func (w *Walker) Walk(root parser.Value) {
	path := Path{}
	w.dispatch(func(c Checker) { c.Template(path, root) })

	m, ok := root.(*parser.Map)
	if !ok {
		return
	}

	for _, name := range Sections {
		v, ok := m.Get(name)
		if !ok {
			continue
		}
		w.section(path.Child(name), name, v)
	}
	for _, key := range m.Keys() {
		if IsSection(key) {
			continue
		}
		v, _ := m.Get(key)
		w.value(path.Child(key), v)
	}
}

func (w *Walker) section(path Path, name string, v parser.Value) {
	switch name {
	case SectionFormatVersion:
		w.dispatch(func(c Checker) { c.FormatVersion(path, v) })
		w.value(path, v)
	case SectionDescription:
		w.dispatch(func(c Checker) { c.Description(path, v) })
		w.value(path, v)
	case SectionTransform:
		w.dispatch(func(c Checker) { c.Transform(path, v) })
		w.value(path, v)
	case SectionMetadata:
		w.dispatch(func(c Checker) { c.Metadata(path, v) })
		w.fields(path, v, "")
	case SectionParameters:
		w.dispatch(func(c Checker) { c.Parameters(path, v) })
		w.entries(path, v, func(p Path, n string, e parser.Value) {
			w.dispatch(func(c Checker) { c.Parameter(p, n, e) })
			w.fields(p, e, "")
		})
	case SectionMappings:
		w.dispatch(func(c Checker) { c.Mappings(path, v) })
		w.entries(path, v, func(p Path, n string, e parser.Value) {
			w.dispatch(func(c Checker) { c.Mapping(p, n, e) })
			w.fields(p, e, "")
		})
	case SectionConditions:
		w.dispatch(func(c Checker) { c.Conditions(path, v) })
		w.entries(path, v, func(p Path, n string, e parser.Value) {
			w.dispatch(func(c Checker) { c.Condition(p, n, e) })
			w.value(p, e)
		})
	case SectionResources:
		w.dispatch(func(c Checker) { c.Resources(path, v) })
		w.entries(path, v, w.resource)
	case SectionOutputs:
		w.dispatch(func(c Checker) { c.Outputs(path, v) })
		w.entries(path, v, func(p Path, n string, e parser.Value) {
			w.dispatch(func(c Checker) { c.Output(p, n, e) })
			w.fields(p, e, "")
		})
	default:
		panic("walker: unhandled section " + name)
	}
}

func (w *Walker) resource(path Path, name string, v parser.Value) {
	w.dispatch(func(c Checker) { c.Resource(path, name, v) })

	m, ok := v.(*parser.Map)
	if !ok {
		return
	}
	w.fields(path, m, "Properties")

	props, ok := m.Get("Properties")
	if !ok {
		return
	}
	propsPath := path.Child("Properties")
	w.dispatch(func(c Checker) { c.Properties(propsPath, name, props) })
	if pm, ok := props.(*parser.Map); ok {
		w.fields(propsPath, pm, "")
		return
	}
	w.value(propsPath, props)
}

// entries calls fn for every key of a map section; non-map sections are
// leaves.
func (w *Walker) entries(path Path, v parser.Value, fn func(Path, string, parser.Value)) {
	m, ok := v.(*parser.Map)
	if !ok {
		return
	}
	for _, key := range m.Keys() {
		e, _ := m.Get(key)
		fn(path.Child(key), key, e)
	}
}

// fields visits every value of a map except the one named skip.
func (w *Walker) fields(path Path, v parser.Value, skip string) {
	m, ok := v.(*parser.Map)
	if !ok {
		return
	}
	for _, key := range m.Keys() {
		if key == skip {
			continue
		}
		e, _ := m.Get(key)
		w.value(path.Child(key), e)
	}
}

func (w *Walker) value(path Path, v parser.Value) {
	w.dispatch(func(c Checker) { c.Value(path, v) })

	switch t := v.(type) {
	case *parser.Scalar, *parser.Absent:
	case *parser.List:
		for i, e := range t.Elements {
			w.value(path.Index(i), e)
		}
	case *parser.Map:
		w.fields(path, t, "")
	case *parser.Call:
		w.dispatch(func(c Checker) { c.Call(path, t) })
		w.args(path.Child(t.Kind.String()), t.Args)
		w.dispatch(func(c Checker) { c.LeaveCall(path, t) })
	default:
		panic("walker: unhandled value type")
	}
}

// args visits a call's raw arguments without a Value callback for the
// argument container itself.
func (w *Walker) args(path Path, v parser.Value) {
	if l, ok := v.(*parser.List); ok {
		for i, e := range l.Elements {
			w.value(path.Index(i), e)
		}
		return
	}
	w.value(path, v)
}
