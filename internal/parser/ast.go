package parser

import (
	"strconv"

	"github.com/cfncheck/cfncheck/internal/schema"
)

type Node interface {
	Pos() Position
}

type Position struct {
	Line   int
	Column int
}

type Template struct {
	Root        Value
	Duplicates  []Duplicate
	UnknownTags []UnknownTag
}

// Duplicate records a mapping key that appears more than once. The last
// occurrence wins in the value tree.
type Duplicate struct {
	Position Position
	Key      string
}

type UnknownTag struct {
	Position Position
	Tag      string
}

// Value is one node of a parsed template: *Scalar, *List, *Map, *Call or
// *Absent.
type Value interface {
	Node
	isValue()
}

type ScalarKind int

const (
	StringScalar ScalarKind = iota
	NumberScalar
	BoolScalar
	NullScalar
)

func (k ScalarKind) String() string {
	switch k {
	case StringScalar:
		return "String"
	case NumberScalar:
		return "Number"
	case BoolScalar:
		return "Boolean"
	case NullScalar:
		return "null"
	}
	return "unknown"
}

type Scalar struct {
	Position Position
	Kind     ScalarKind
	Text     string
}

func (v *Scalar) Pos() Position { return v.Position }
func (v *Scalar) isValue()      {}

func (v *Scalar) Bool() (bool, bool) {
	switch v.Text {
	case "true", "True", "TRUE":
		return true, true
	case "false", "False", "FALSE":
		return false, true
	}
	return false, false
}

func (v *Scalar) Float() (float64, bool) {
	f, err := strconv.ParseFloat(v.Text, 64)
	return f, err == nil
}

type List struct {
	Position Position
	Elements []Value
}

func (v *List) Pos() Position { return v.Position }
func (v *List) isValue()      {}

type Entry struct {
	Key    string
	KeyPos Position
	Value  Value
}

type Map struct {
	Position Position
	Entries  []Entry
}

func (v *Map) Pos() Position { return v.Position }
func (v *Map) isValue()      {}

func (v *Map) Get(key string) (Value, bool) {
	for i := len(v.Entries) - 1; i >= 0; i-- {
		if v.Entries[i].Key == key {
			return v.Entries[i].Value, true
		}
	}
	return nil, false
}

// Entry returns the entry for key, including its key position.
func (v *Map) Entry(key string) (Entry, bool) {
	for i := len(v.Entries) - 1; i >= 0; i-- {
		if v.Entries[i].Key == key {
			return v.Entries[i], true
		}
	}
	return Entry{}, false
}

func (v *Map) Keys() []string {
	keys := make([]string, 0, len(v.Entries))
	seen := make(map[string]bool, len(v.Entries))
	for _, e := range v.Entries {
		if !seen[e.Key] {
			seen[e.Key] = true
			keys = append(keys, e.Key)
		}
	}
	return keys
}

// Call is an intrinsic function invocation. Resolved is assigned at most once,
// by the inference engine.
type Call struct {
	Position Position
	Kind     Kind
	Args     Value
	// Tagged is true when the call was written as a YAML tag (!GetAtt).
	Tagged bool

	resolved    schema.Shape
	resolvedSet bool
}

func (c *Call) Pos() Position { return c.Position }
func (c *Call) isValue()      {}

// Name returns the function name in the encoding the author used.
func (c *Call) Name() string {
	if c.Tagged {
		return c.Kind.Tag()
	}
	return c.Kind.String()
}

func (c *Call) Resolved() (schema.Shape, bool) {
	return c.resolved, c.resolvedSet
}

func (c *Call) SetResolved(s schema.Shape) {
	if c.resolvedSet {
		panic("parser: resolved type assigned twice for " + c.Kind.String())
	}
	c.resolved = s
	c.resolvedSet = true
}

// Absent is the "omit this property" marker (Ref AWS::NoValue).
type Absent struct {
	Position Position
	Tagged   bool
}

func (v *Absent) Pos() Position { return v.Position }
func (v *Absent) isValue()      {}

// AsString returns the text of a string scalar.
func AsString(v Value) (string, bool) {
	if s, ok := v.(*Scalar); ok && s.Kind == StringScalar {
		return s.Text, true
	}
	return "", false
}

// ScalarText returns the text of any non-null scalar.
func ScalarText(v Value) (string, bool) {
	if s, ok := v.(*Scalar); ok && s.Kind != NullScalar {
		return s.Text, true
	}
	return "", false
}

// Describe names the runtime kind of a value for messages.
func Describe(v Value) string {
	switch t := v.(type) {
	case nil:
		return "nothing"
	case *Scalar:
		return t.Kind.String()
	case *List:
		return "List"
	case *Map:
		return "Object"
	case *Call:
		return t.Name()
	case *Absent:
		return "AWS::NoValue"
	}
	return "unknown"
}

// Equal compares two value trees ignoring positions and surface encoding.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case *Scalar:
		y, ok := b.(*Scalar)
		return ok && x.Kind == y.Kind && x.Text == y.Text
	case *List:
		y, ok := b.(*List)
		if !ok || len(x.Elements) != len(y.Elements) {
			return false
		}
		for i := range x.Elements {
			if !Equal(x.Elements[i], y.Elements[i]) {
				return false
			}
		}
		return true
	case *Map:
		y, ok := b.(*Map)
		if !ok || len(x.Entries) != len(y.Entries) {
			return false
		}
		for i := range x.Entries {
			if x.Entries[i].Key != y.Entries[i].Key || !Equal(x.Entries[i].Value, y.Entries[i].Value) {
				return false
			}
		}
		return true
	case *Call:
		y, ok := b.(*Call)
		return ok && x.Kind == y.Kind && Equal(x.Args, y.Args)
	case *Absent:
		_, ok := b.(*Absent)
		return ok
	}
	return false
}
