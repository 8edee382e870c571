package validator

import (
	"github.com/cfncheck/cfncheck/internal/intrinsic"
	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/walker"
)

// Nesting enforces that a call is allowed by its nearest enclosing call.
// Permissions are not inherited from further up.
type Nesting struct {
	walker.NopChecker

	out   *Collector
	stack []*intrinsic.Function
	names []string
}

func NewNesting(out *Collector) *Nesting {
	return &Nesting{out: out}
}

func (n *Nesting) Call(path walker.Path, c *parser.Call) {
	if len(n.stack) > 0 {
		parent := n.stack[len(n.stack)-1]
		if !parent.Allows(c.Kind) {
			n.out.Report(RuleIntrinsicNesting, c.Position, path,
				"%s can not be used within %s", c.Name(), n.names[len(n.names)-1])
		}
	}
	n.stack = append(n.stack, intrinsic.Lookup(c.Kind))
	n.names = append(n.names, c.Name())
}

func (n *Nesting) LeaveCall(walker.Path, *parser.Call) {
	n.stack = n.stack[:len(n.stack)-1]
	n.names = n.names[:len(n.names)-1]
}

// Functions checks the raw argument shape of every call and flags
// single-key "Fn::" objects that name no known function. Functions expanded
// by transforms are left alone.
type Functions struct {
	walker.NopChecker

	out *Collector
}

func NewFunctions(out *Collector) *Functions {
	return &Functions{out: out}
}

func (f *Functions) Call(path walker.Path, c *parser.Call) {
	for _, problem := range intrinsic.Lookup(c.Kind).CheckArgs(c.Args) {
		f.out.Report(RuleIntrinsicArgs, c.Position, path, "%s", problem)
	}
}

func (f *Functions) Value(path walker.Path, v parser.Value) {
	m, ok := v.(*parser.Map)
	if !ok || len(m.Entries) != 1 {
		return
	}
	key := m.Entries[0].Key
	if len(key) <= 4 || key[:4] != "Fn::" || parser.IsExternalFunction(key) {
		return
	}
	f.out.Report(RuleUnknownFunction, m.Entries[0].KeyPos, path,
		"%s", withSuggestion("unknown function "+key, key, parser.FunctionNames()))
}
