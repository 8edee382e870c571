package index

import (
	"math"
	"strconv"

	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/schema"
	"github.com/cfncheck/cfncheck/internal/walker"
)

// Binder is the checker that fills Bindings from the declaring sections. It
// seals them when the Resources section is reached, or at Outputs when a
// template has no Resources.
type Binder struct {
	walker.NopChecker

	table    *schema.Table
	runtime  map[string]string
	bindings *Bindings
}

func NewBinder(table *schema.Table, runtime map[string]string) *Binder {
	return &Binder{table: table, runtime: runtime, bindings: New()}
}

func (b *Binder) Bindings() *Bindings { return b.bindings }

func (b *Binder) Parameters(_ walker.Path, v parser.Value) {
	m, ok := v.(*parser.Map)
	if !ok {
		return
	}
	for _, name := range m.Keys() {
		decl, _ := m.Get(name)
		entry, _ := m.Entry(name)
		p := ParameterFromDecl(name, decl)
		p.Position = entry.KeyPos
		if val, ok := b.runtime[name]; ok {
			p.Runtime, p.HasRuntime = val, true
		}
		b.bindings.AddParameter(p)
	}
}

func (b *Binder) Mappings(_ walker.Path, v parser.Value) {
	m, ok := v.(*parser.Map)
	if !ok {
		return
	}
	for _, name := range m.Keys() {
		e, _ := m.Get(name)
		if mm, ok := e.(*parser.Map); ok {
			b.bindings.AddMapping(name, mm)
		}
	}
}

func (b *Binder) Conditions(_ walker.Path, v parser.Value) {
	m, ok := v.(*parser.Map)
	if !ok {
		return
	}
	for _, name := range m.Keys() {
		e, _ := m.Get(name)
		b.bindings.AddCondition(name, e)
	}
}

func (b *Binder) Resources(_ walker.Path, v parser.Value) {
	if m, ok := v.(*parser.Map); ok {
		for _, name := range m.Keys() {
			decl, _ := m.Get(name)
			entry, _ := m.Entry(name)
			r := b.resourceFromDecl(name, decl)
			r.Position = entry.KeyPos
			b.bindings.AddResource(r)
		}
	}
	b.bindings.Seal()
}

func (b *Binder) Outputs(walker.Path, parser.Value) {
	b.bindings.Seal()
}

func (b *Binder) resourceFromDecl(name string, decl parser.Value) *ResourceBinding {
	r := &ResourceBinding{Name: name}
	m, ok := decl.(*parser.Map)
	if !ok {
		return r
	}
	if t, ok := m.Get("Type"); ok {
		r.Type, _ = parser.AsString(t)
	}
	if c, ok := m.Get("Condition"); ok {
		r.Condition, _ = parser.AsString(c)
	}
	if spec, ok := b.table.Resource(r.Type); ok {
		r.Spec = spec
		r.Attributes = make(map[string]schema.Shape, len(spec.Attributes))
		for a, s := range spec.Attributes {
			r.Attributes[a] = s
		}
	}
	return r
}

// ParameterFromDecl reads a parameter declaration. Malformed attributes are
// left unset; the section checks report them.
func ParameterFromDecl(name string, decl parser.Value) *ParameterBinding {
	p := &ParameterBinding{Name: name}
	m, ok := decl.(*parser.Map)
	if !ok {
		return p
	}
	if t, ok := m.Get("Type"); ok {
		p.Type, _ = parser.AsString(t)
	}
	if d, ok := m.Get("Default"); ok {
		p.Default = d
	}
	if av, ok := m.Get("AllowedValues"); ok {
		if l, ok := av.(*parser.List); ok {
			for _, e := range l.Elements {
				if s, ok := parser.ScalarText(e); ok {
					p.AllowedValues = append(p.AllowedValues, s)
				}
			}
		}
	}
	if ap, ok := m.Get("AllowedPattern"); ok {
		p.AllowedPattern, _ = parser.AsString(ap)
	}
	p.MinLength = intAttr(m, "MinLength")
	p.MaxLength = intAttr(m, "MaxLength")
	p.MinValue = floatAttr(m, "MinValue")
	p.MaxValue = floatAttr(m, "MaxValue")
	return p
}

func floatAttr(m *parser.Map, key string) *float64 {
	v, ok := m.Get(key)
	if !ok {
		return nil
	}
	s, ok := parser.ScalarText(v)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func intAttr(m *parser.Map, key string) *int {
	f := floatAttr(m, key)
	if f == nil || *f != math.Trunc(*f) {
		return nil
	}
	i := int(*f)
	return &i
}
