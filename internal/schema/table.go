package schema

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrInconsistent marks a specification that contradicts itself. Nothing
// checked against such a table can be trusted.
var ErrInconsistent = errors.New("inconsistent specification")

type PropertySpec struct {
	Required bool
	Shape    Shape
}

type ResourceTypeSpec struct {
	Name       string
	Properties map[string]PropertySpec
	Attributes map[string]Shape
}

// RequiredProperties returns the required property names, sorted.
func (r *ResourceTypeSpec) RequiredProperties() []string {
	return requiredOf(r.Properties)
}

type NestedTypeSpec struct {
	Name       string
	Properties map[string]PropertySpec
	// Alias is set for nested types that are a bare primitive or list.
	Alias Shape
}

func (n *NestedTypeSpec) RequiredProperties() []string {
	return requiredOf(n.Properties)
}

func requiredOf(props map[string]PropertySpec) []string {
	var names []string
	for name, p := range props {
		if p.Required {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Table is the compiled, read-only specification. It is built once and
// shared by every lint.
type Table struct {
	Version   string
	resources map[string]*ResourceTypeSpec
	nested    map[string]*NestedTypeSpec
}

// NewTable assembles a table from already compiled entries and verifies every
// named reference resolves.
func NewTable(version string, resources []*ResourceTypeSpec, nested []*NestedTypeSpec) (*Table, error) {
	t := &Table{
		Version:   version,
		resources: make(map[string]*ResourceTypeSpec, len(resources)),
		nested:    make(map[string]*NestedTypeSpec, len(nested)),
	}
	for _, r := range resources {
		t.resources[r.Name] = r
	}
	for _, n := range nested {
		t.nested[n.Name] = n
	}
	if err := t.verify(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) Resource(name string) (*ResourceTypeSpec, bool) {
	r, ok := t.resources[name]
	return r, ok
}

func (t *Table) Nested(name string) (*NestedTypeSpec, bool) {
	n, ok := t.nested[name]
	return n, ok
}

func (t *Table) ResourceTypeNames() []string {
	names := make([]string, 0, len(t.resources))
	for name := range t.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Table) verify() error {
	check := func(owner, prop string, s Shape) error {
		if !s.Resolved() {
			return errors.Wrapf(ErrInconsistent, "%s.%s declares no primitive, list or named shape", owner, prop)
		}
		for _, a := range s {
			if name, ok := namedIn(a); ok {
				if _, found := t.nested[name]; !found {
					return errors.Wrapf(ErrInconsistent, "%s.%s references unknown type %s", owner, prop, name)
				}
			}
		}
		return nil
	}
	for _, r := range t.resources {
		for p, ps := range r.Properties {
			if err := check(r.Name, p, ps.Shape); err != nil {
				return err
			}
		}
		for a, s := range r.Attributes {
			if err := check(r.Name, a, s); err != nil {
				return err
			}
		}
	}
	for _, n := range t.nested {
		for p, ps := range n.Properties {
			if err := check(n.Name, p, ps.Shape); err != nil {
				return err
			}
		}
	}
	return nil
}

func namedIn(a Atom) (string, bool) {
	switch a.Kind {
	case AtomNamed:
		return a.Named, true
	case AtomList:
		return namedIn(*a.Elem)
	}
	return "", false
}

// Compile turns a specification document into a Table, resolving property
// type references relative to their owning resource type.
func Compile(d *Document) (*Table, error) {
	var resources []*ResourceTypeSpec
	var nested []*NestedTypeSpec

	for name, def := range d.ResourceTypes {
		r := &ResourceTypeSpec{
			Name:       name,
			Properties: make(map[string]PropertySpec, len(def.Properties)),
			Attributes: make(map[string]Shape, len(def.Attributes)),
		}
		for p, pd := range def.Properties {
			s, err := d.shapeOf(name, name+"."+p, pd.TypeDef)
			if err != nil {
				return nil, err
			}
			r.Properties[p] = PropertySpec{Required: pd.Required, Shape: s}
		}
		for a, ad := range def.Attributes {
			s, err := d.shapeOf(name, name+"#"+a, ad.TypeDef)
			if err != nil {
				return nil, err
			}
			r.Attributes[a] = s
		}
		resources = append(resources, r)
	}

	for name, def := range d.PropertyTypes {
		owner := ownerOf(name)
		n := &NestedTypeSpec{Name: name, Properties: make(map[string]PropertySpec, len(def.Properties))}
		if def.Properties == nil && (def.PrimitiveType != "" || def.Type != "") {
			s, err := d.shapeOf(owner, name, def.TypeDef)
			if err != nil {
				return nil, err
			}
			n.Alias = s
		}
		for p, pd := range def.Properties {
			s, err := d.shapeOf(owner, name+"."+p, pd.TypeDef)
			if err != nil {
				return nil, err
			}
			n.Properties[p] = PropertySpec{Required: pd.Required, Shape: s}
		}
		nested = append(nested, n)
	}

	return NewTable(d.ResourceSpecificationVersion, resources, nested)
}

func ownerOf(propertyType string) string {
	if i := strings.Index(propertyType, "."); i != -1 {
		return propertyType[:i]
	}
	return ""
}

func (d *Document) shapeOf(owner, what string, td TypeDef) (Shape, error) {
	if td.PrimitiveType != "" {
		p, ok := ParsePrimitive(td.PrimitiveType)
		if !ok {
			return nil, errors.Wrapf(ErrInconsistent, "%s has unknown primitive type %s", what, td.PrimitiveType)
		}
		return Of(PrimitiveAtom(p)), nil
	}
	switch td.Type {
	case "":
		return nil, errors.Wrapf(ErrInconsistent, "%s declares no primitive, list or named shape", what)
	case "List":
		elem, err := d.itemAtom(owner, what, td)
		if err != nil {
			return nil, err
		}
		return Of(ListAtom(elem)), nil
	case "Map":
		// Maps are opaque to the shape model.
		return Primitives(Json), nil
	}
	name, err := d.resolveNamed(owner, what, td.Type)
	if err != nil {
		return nil, err
	}
	return Of(NamedAtom(name)), nil
}

func (d *Document) itemAtom(owner, what string, td TypeDef) (Atom, error) {
	if td.PrimitiveItemType != "" {
		p, ok := ParsePrimitive(td.PrimitiveItemType)
		if !ok {
			return Atom{}, errors.Wrapf(ErrInconsistent, "%s has unknown item type %s", what, td.PrimitiveItemType)
		}
		return PrimitiveAtom(p), nil
	}
	if td.ItemType == "" {
		return Atom{}, errors.Wrapf(ErrInconsistent, "%s is a list without an item type", what)
	}
	name, err := d.resolveNamed(owner, what, td.ItemType)
	if err != nil {
		return Atom{}, err
	}
	return NamedAtom(name), nil
}

func (d *Document) resolveNamed(owner, what, ref string) (string, error) {
	if owner != "" {
		if _, ok := d.PropertyTypes[owner+"."+ref]; ok {
			return owner + "." + ref, nil
		}
	}
	if _, ok := d.PropertyTypes[ref]; ok {
		return ref, nil
	}
	return "", errors.Wrapf(ErrInconsistent, "%s references unknown type %s", what, ref)
}
