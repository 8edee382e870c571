// Package graph extracts the dependency graph between the parameters,
// resources and outputs of a template, and renders it as Mermaid.
package graph

import (
	"fmt"
	"strings"

	"github.com/cfncheck/cfncheck/internal/intrinsic"
	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/walker"
)

type NodeKind int

const (
	ParameterNode NodeKind = iota
	ResourceNode
	OutputNode
)

type EdgeKind string

const (
	EdgeRef       EdgeKind = "Ref"
	EdgeGetAtt    EdgeKind = "GetAtt"
	EdgeSub       EdgeKind = "Sub"
	EdgeDependsOn EdgeKind = "DependsOn"
)

type Node struct {
	Name string
	Kind NodeKind
	// Type is the resource or parameter type, empty for outputs.
	Type string
}

// Edge points from the dependent node to the node it uses.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}

type Graph struct {
	Nodes []Node
	Edges []Edge
}

func (g *Graph) Node(name string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// Build walks the template once and returns its graph. Edges to names that
// are not declared are left out.
func Build(root parser.Value) *Graph {
	b := &builder{graph: &Graph{}, declared: map[string]bool{}, seen: map[Edge]bool{}}
	walker.New(b).Walk(root)
	return b.graph
}

type builder struct {
	walker.NopChecker

	graph    *Graph
	declared map[string]bool
	seen     map[Edge]bool
}

func (b *builder) declare(v parser.Value, kind NodeKind) {
	m, ok := v.(*parser.Map)
	if !ok {
		return
	}
	for _, name := range m.Keys() {
		decl, _ := m.Get(name)
		var typ string
		if dm, ok := decl.(*parser.Map); ok && kind != OutputNode {
			if t, ok := dm.Get("Type"); ok {
				typ, _ = parser.AsString(t)
			}
		}
		b.graph.Nodes = append(b.graph.Nodes, Node{Name: name, Kind: kind, Type: typ})
		b.declared[name] = true
	}
}

func (b *builder) Parameters(_ walker.Path, v parser.Value) { b.declare(v, ParameterNode) }
func (b *builder) Resources(_ walker.Path, v parser.Value) { b.declare(v, ResourceNode) }
func (b *builder) Outputs(_ walker.Path, v parser.Value) { b.declare(v, OutputNode) }

func (b *builder) Resource(_ walker.Path, name string, v parser.Value) {
	m, ok := v.(*parser.Map)
	if !ok {
		return
	}
	dep, ok := m.Get("DependsOn")
	if !ok {
		return
	}
	if l, ok := dep.(*parser.List); ok {
		for _, e := range l.Elements {
			if target, ok := parser.AsString(e); ok {
				b.edge(name, target, EdgeDependsOn)
			}
		}
		return
	}
	if target, ok := parser.AsString(dep); ok {
		b.edge(name, target, EdgeDependsOn)
	}
}

func (b *builder) Call(path walker.Path, c *parser.Call) {
	if len(path) < 2 || (path[0] != walker.SectionResources && path[0] != walker.SectionOutputs) {
		return
	}
	from := path[1]

	switch c.Kind {
	case parser.KindRef:
		if name, ok := parser.AsString(c.Args); ok {
			b.edge(from, name, EdgeRef)
		}
	case parser.KindGetAtt:
		if l, ok := c.Args.(*parser.List); ok && len(l.Elements) > 0 {
			if name, ok := parser.AsString(l.Elements[0]); ok {
				b.edge(from, name, EdgeGetAtt)
			}
		}
	case parser.KindSub:
		tmpl, vars, ok := intrinsic.SubTemplate(c.Args)
		if !ok {
			return
		}
		for _, tok := range intrinsic.SubTokens(tmpl) {
			if tok.Literal {
				continue
			}
			if vars != nil {
				if _, ok := vars.Get(tok.Name); ok {
					continue
				}
			}
			name := tok.Name
			if i := strings.Index(name, "."); i != -1 {
				name = name[:i]
			}
			b.edge(from, name, EdgeSub)
		}
	}
}

func (b *builder) edge(from, to string, kind EdgeKind) {
	if from == to || !b.declared[to] {
		return
	}
	e := Edge{From: from, To: to, Kind: kind}
	if b.seen[e] {
		return
	}
	b.seen[e] = true
	b.graph.Edges = append(b.graph.Edges, e)
}

func clean(s string) string {
	return "n_" + strings.NewReplacer(":", "_", ".", "_", "-", "_").Replace(s)
}

// Mermaid renders the graph as a left-to-right flowchart. Parameters are
// rounded, outputs are stadiums and resources are boxes labelled with their
// type.
func (g *Graph) Mermaid() string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for _, n := range g.Nodes {
		id := clean(n.Name)
		switch n.Kind {
		case ParameterNode:
			sb.WriteString(fmt.Sprintf("  %s(%q)\n", id, n.Name))
			sb.WriteString(fmt.Sprintf("  class %s param\n", id))
		case ResourceNode:
			label := n.Name
			if n.Type != "" {
				label += "<br/>" + n.Type
			}
			sb.WriteString(fmt.Sprintf("  %s[%q]\n", id, label))
			sb.WriteString(fmt.Sprintf("  class %s res\n", id))
		case OutputNode:
			sb.WriteString(fmt.Sprintf("  %s([%q])\n", id, n.Name))
			sb.WriteString(fmt.Sprintf("  class %s out\n", id))
		}
	}
	for _, e := range g.Edges {
		arrow := "-->"
		if e.Kind == EdgeDependsOn {
			arrow = "-.->"
		}
		sb.WriteString(fmt.Sprintf("  %s %s|%s| %s\n", clean(e.From), arrow, e.Kind, clean(e.To)))
	}

	sb.WriteString("  classDef param fill:#dfd,stroke:#333,stroke-width:1px;\n")
	sb.WriteString("  classDef res fill:#bbf,stroke:#333,stroke-width:2px;\n")
	sb.WriteString("  classDef out fill:#f9f,stroke:#333,stroke-width:1px,font-style:italic;\n")
	return sb.String()
}
