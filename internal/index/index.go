// Package index holds the declarations captured from a template during the
// walk: parameters, resources, mappings and conditions. Bindings are
// append-only until sealed and read-only afterwards.
package index

import (
	"sort"
	"strings"

	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/schema"
)

type ParameterBinding struct {
	Name     string
	Type     string
	Position parser.Position

	Default        parser.Value
	AllowedValues  []string
	AllowedPattern string
	MinLength      *int
	MaxLength      *int
	MinValue       *float64
	MaxValue       *float64

	// Runtime is the caller-supplied value, if any.
	Runtime    string
	HasRuntime bool
}

type ResourceBinding struct {
	Name     string
	Type     string
	Position parser.Position
	// Spec is nil when the type is not in the Table.
	Spec       *schema.ResourceTypeSpec
	Attributes map[string]schema.Shape
	Condition  string
}

// Custom reports whether the resource is a custom resource, whose
// properties and attributes are provider-defined.
func (r *ResourceBinding) Custom() bool {
	return IsCustomType(r.Type)
}

func IsCustomType(t string) bool {
	return strings.HasPrefix(t, "Custom::") || t == "AWS::CloudFormation::CustomResource"
}

// MappingTable is the Mappings section: mapping name -> top-level key ->
// second-level key -> value, in template order.
type MappingTable struct {
	names []string
	maps  map[string]*parser.Map
}

func (m *MappingTable) Get(name string) (*parser.Map, bool) {
	v, ok := m.maps[name]
	return v, ok
}

func (m *MappingTable) Names() []string { return m.names }

type Bindings struct {
	parameters map[string]*ParameterBinding
	paramOrder []string
	resources  map[string]*ResourceBinding
	resOrder   []string
	conditions map[string]parser.Value
	condOrder  []string
	mappings   MappingTable

	sealed bool
	onSeal []func()
}

func New() *Bindings {
	return &Bindings{
		parameters: make(map[string]*ParameterBinding),
		resources:  make(map[string]*ResourceBinding),
		conditions: make(map[string]parser.Value),
		mappings:   MappingTable{maps: make(map[string]*parser.Map)},
	}
}

func (b *Bindings) mustOpen() {
	if b.sealed {
		panic("index: bindings are sealed")
	}
}

func (b *Bindings) AddParameter(p *ParameterBinding) {
	b.mustOpen()
	if _, ok := b.parameters[p.Name]; !ok {
		b.paramOrder = append(b.paramOrder, p.Name)
	}
	b.parameters[p.Name] = p
}

func (b *Bindings) AddResource(r *ResourceBinding) {
	b.mustOpen()
	if _, ok := b.resources[r.Name]; !ok {
		b.resOrder = append(b.resOrder, r.Name)
	}
	b.resources[r.Name] = r
}

func (b *Bindings) AddMapping(name string, m *parser.Map) {
	b.mustOpen()
	if _, ok := b.mappings.maps[name]; !ok {
		b.mappings.names = append(b.mappings.names, name)
	}
	b.mappings.maps[name] = m
}

func (b *Bindings) AddCondition(name string, v parser.Value) {
	b.mustOpen()
	if _, ok := b.conditions[name]; !ok {
		b.condOrder = append(b.condOrder, name)
	}
	b.conditions[name] = v
}

// OnSeal registers fn to run once the bindings are sealed. Registering after
// sealing runs fn immediately.
func (b *Bindings) OnSeal(fn func()) {
	if b.sealed {
		fn()
		return
	}
	b.onSeal = append(b.onSeal, fn)
}

// Seal freezes the bindings and runs the OnSeal hooks in registration order.
// Sealing twice is a no-op.
func (b *Bindings) Seal() {
	if b.sealed {
		return
	}
	b.sealed = true
	hooks := b.onSeal
	b.onSeal = nil
	for _, fn := range hooks {
		fn()
	}
}

func (b *Bindings) Sealed() bool { return b.sealed }

func (b *Bindings) Parameter(name string) (*ParameterBinding, bool) {
	p, ok := b.parameters[name]
	return p, ok
}

func (b *Bindings) Resource(name string) (*ResourceBinding, bool) {
	r, ok := b.resources[name]
	return r, ok
}

func (b *Bindings) Condition(name string) (parser.Value, bool) {
	c, ok := b.conditions[name]
	return c, ok
}

func (b *Bindings) Mappings() *MappingTable { return &b.mappings }

func (b *Bindings) ParameterNames() []string { return b.paramOrder }
func (b *Bindings) ResourceNames() []string  { return b.resOrder }
func (b *Bindings) ConditionNames() []string { return b.condOrder }

// RefTargets lists every name a Ref may point at, pseudo-parameters
// included, sorted.
func (b *Bindings) RefTargets() []string {
	names := make([]string, 0, len(b.paramOrder)+len(b.resOrder)+len(PseudoParameters))
	names = append(names, b.paramOrder...)
	names = append(names, b.resOrder...)
	for name := range PseudoParameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PseudoParameters are the built-in Ref targets and their shapes.
var PseudoParameters = map[string]schema.Shape{
	"AWS::AccountId":        schema.Primitives(schema.String),
	"AWS::NotificationARNs": schema.ListOf(schema.String),
	"AWS::NoValue":          schema.Primitives(schema.String),
	"AWS::Partition":        schema.Primitives(schema.String),
	"AWS::Region":           schema.Primitives(schema.String),
	"AWS::StackId":          schema.Primitives(schema.String),
	"AWS::StackName":        schema.Primitives(schema.String),
	"AWS::URLSuffix":        schema.Primitives(schema.String),
}
