package schema

import "strings"

type Primitive int

const (
	String Primitive = iota
	Number
	Boolean
	Long
	Double
	Json
	Timestamp
)

var primitiveNames = map[Primitive]string{
	String:    "String",
	Number:    "Number",
	Boolean:   "Boolean",
	Long:      "Long",
	Double:    "Double",
	Json:      "Json",
	Timestamp: "Timestamp",
}

func (p Primitive) String() string {
	if n, ok := primitiveNames[p]; ok {
		return n
	}
	return "Unknown"
}

// ParsePrimitive maps a specification-document primitive name to a Primitive.
// Integer is folded into Number.
func ParsePrimitive(name string) (Primitive, bool) {
	switch name {
	case "String":
		return String, true
	case "Integer", "Number":
		return Number, true
	case "Boolean":
		return Boolean, true
	case "Long":
		return Long, true
	case "Double":
		return Double, true
	case "Json", "Map":
		return Json, true
	case "Timestamp":
		return Timestamp, true
	}
	return 0, false
}

type AtomKind int

const (
	AtomPrimitive AtomKind = iota
	AtomList
	AtomNamed
)

// Atom is one admissible shape: a primitive, a list of atoms or a named
// nested type from the Table.
type Atom struct {
	Kind      AtomKind
	Primitive Primitive
	Elem      *Atom
	Named     string
}

func PrimitiveAtom(p Primitive) Atom { return Atom{Kind: AtomPrimitive, Primitive: p} }

func ListAtom(elem Atom) Atom { return Atom{Kind: AtomList, Elem: &elem} }

func NamedAtom(name string) Atom { return Atom{Kind: AtomNamed, Named: name} }

func (a Atom) Equal(b Atom) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case AtomPrimitive:
		return a.Primitive == b.Primitive
	case AtomList:
		return a.Elem.Equal(*b.Elem)
	case AtomNamed:
		return a.Named == b.Named
	}
	panic("schema: unhandled atom kind")
}

func (a Atom) String() string {
	switch a.Kind {
	case AtomPrimitive:
		return a.Primitive.String()
	case AtomList:
		return "List<" + a.Elem.String() + ">"
	case AtomNamed:
		return a.Named
	}
	panic("schema: unhandled atom kind")
}

// Intersects reports whether a value of shape a may also be a value of shape b.
// Number, Long and Double are mutually compatible and Timestamp values are
// strings; everything else must match exactly. Named types and lists
// intersect Json, and so does a string, which may hold a serialised document.
func (a Atom) Intersects(b Atom) bool {
	switch {
	case a.Kind == AtomPrimitive && b.Kind == AtomPrimitive:
		fa, fb := primitiveFamily(a.Primitive), primitiveFamily(b.Primitive)
		if (fa == String && fb == Json) || (fa == Json && fb == String) {
			return true
		}
		return fa == fb
	case a.Kind == AtomList && b.Kind == AtomList:
		return a.Elem.Intersects(*b.Elem)
	case a.Kind == AtomList && b.Kind == AtomPrimitive:
		return b.Primitive == Json
	case a.Kind == AtomPrimitive && b.Kind == AtomList:
		return a.Primitive == Json
	case a.Kind == AtomNamed && b.Kind == AtomNamed:
		return a.Named == b.Named
	case a.Kind == AtomNamed && b.Kind == AtomPrimitive:
		return b.Primitive == Json
	case a.Kind == AtomPrimitive && b.Kind == AtomNamed:
		return a.Primitive == Json
	}
	return false
}

func primitiveFamily(p Primitive) Primitive {
	switch p {
	case Number, Long, Double:
		return Number
	case Timestamp:
		return String
	}
	return p
}

// Shape is a non-empty set of alternative atoms; any one suffices. A nil Shape
// means the shape is unresolved.
type Shape []Atom

func Of(atoms ...Atom) Shape {
	if len(atoms) == 0 {
		return nil
	}
	var s Shape
	for _, a := range atoms {
		s = s.add(a)
	}
	return s
}

func Primitives(ps ...Primitive) Shape {
	atoms := make([]Atom, 0, len(ps))
	for _, p := range ps {
		atoms = append(atoms, PrimitiveAtom(p))
	}
	return Of(atoms...)
}

func ListOf(p Primitive) Shape { return Of(ListAtom(PrimitiveAtom(p))) }

// Union merges shapes, dropping duplicates and keeping first-seen order.
// Unresolved inputs contribute nothing; the union of nothing is unresolved.
func Union(shapes ...Shape) Shape {
	var out Shape
	for _, s := range shapes {
		for _, a := range s {
			out = out.add(a)
		}
	}
	return out
}

func (s Shape) add(a Atom) Shape {
	if s.Contains(a) {
		return s
	}
	return append(s, a)
}

func (s Shape) Resolved() bool { return len(s) > 0 }

func (s Shape) Contains(a Atom) bool {
	for _, x := range s {
		if x.Equal(a) {
			return true
		}
	}
	return false
}

// Intersects reports whether any atom of s intersects atom a.
func (s Shape) Intersects(a Atom) bool {
	for _, x := range s {
		if x.Intersects(a) {
			return true
		}
	}
	return false
}

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for _, a := range s {
		if !o.Contains(a) {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	if !s.Resolved() {
		return "unresolved"
	}
	names := make([]string, 0, len(s))
	for _, a := range s {
		names = append(names, a.String())
	}
	return strings.Join(names, " | ")
}
