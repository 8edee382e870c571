package validator

import (
	"sort"
	"strings"

	"github.com/cfncheck/cfncheck/internal/index"
	"github.com/cfncheck/cfncheck/internal/intrinsic"
	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/walker"
)

type pendingRef struct {
	path walker.Path
	call *parser.Call
}

// References reports identifiers in calls that name nothing declared.
// Calls met before the bindings are sealed are checked once they are.
type References struct {
	walker.NopChecker

	bindings *index.Bindings
	out      *Collector
	pending  []pendingRef
}

func NewReferences(b *index.Bindings, out *Collector) *References {
	r := &References{bindings: b, out: out}
	b.OnSeal(r.flush)
	return r
}

func (r *References) Call(path walker.Path, c *parser.Call) {
	if !r.bindings.Sealed() {
		r.pending = append(r.pending, pendingRef{path: path, call: c})
		return
	}
	r.check(path, c)
}

func (r *References) flush() {
	pending := r.pending
	r.pending = nil
	for _, p := range pending {
		r.check(p.path, p.call)
	}
}

func (r *References) check(path walker.Path, c *parser.Call) {
	switch c.Kind {
	case parser.KindRef:
		if name, ok := parser.AsString(c.Args); ok {
			r.ref(path, c.Position, name)
		}
	case parser.KindGetAtt:
		l, ok := c.Args.(*parser.List)
		if !ok || len(l.Elements) != 2 {
			return
		}
		res, ok := parser.AsString(l.Elements[0])
		if !ok {
			return
		}
		attr, literal := parser.AsString(l.Elements[1])
		r.getAtt(path, c.Position, res, attr, literal)
	case parser.KindSub:
		r.sub(path, c)
	case parser.KindIf:
		if l, ok := c.Args.(*parser.List); ok && len(l.Elements) > 0 {
			if name, ok := parser.AsString(l.Elements[0]); ok {
				r.condition(path, l.Elements[0].Pos(), name)
			}
		}
	case parser.KindCondition:
		if name, ok := parser.AsString(c.Args); ok {
			r.condition(path, c.Position, name)
		}
	case parser.KindFindInMap:
		r.findInMap(path, c)
	case parser.KindJoin, parser.KindSelect, parser.KindGetAZs, parser.KindEquals, parser.KindAnd,
		parser.KindOr, parser.KindNot, parser.KindBase64, parser.KindCidr, parser.KindImportValue,
		parser.KindSplit:
	default:
		panic("validator: unhandled function kind " + c.Kind.String())
	}
}

func (r *References) ref(path walker.Path, pos parser.Position, name string) {
	if _, ok := index.PseudoParameters[name]; ok {
		return
	}
	if _, ok := r.bindings.Parameter(name); ok {
		return
	}
	if _, ok := r.bindings.Resource(name); ok {
		return
	}
	r.out.Report(RuleReference, pos, path, "%s",
		withSuggestion("unresolved reference '"+name+"'", name, r.bindings.RefTargets()))
}

func (r *References) getAtt(path walker.Path, pos parser.Position, resource, attr string, literal bool) {
	res, ok := r.bindings.Resource(resource)
	if !ok {
		r.out.Report(RuleReference, pos, path, "%s",
			withSuggestion("unresolved resource '"+resource+"'", resource, r.bindings.ResourceNames()))
		return
	}
	if !literal || res.Spec == nil || res.Custom() {
		return
	}
	if _, ok := res.Attributes[attr]; ok {
		return
	}
	if i := strings.Index(attr, "."); i != -1 {
		if _, ok := res.Attributes[attr[:i]]; ok {
			return
		}
	}
	names := make([]string, 0, len(res.Attributes))
	for a := range res.Attributes {
		if a != "Ref" {
			names = append(names, a)
		}
	}
	sort.Strings(names)
	r.out.Report(RuleReference, pos, path, "%s",
		withSuggestion("resource "+resource+" of type "+res.Type+" has no attribute '"+attr+"'", attr, names))
}

func (r *References) sub(path walker.Path, c *parser.Call) {
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
		if i := strings.Index(tok.Name, "."); i != -1 {
			if _, ok := r.bindings.Resource(tok.Name[:i]); ok {
				r.getAtt(path, c.Position, tok.Name[:i], tok.Name[i+1:], true)
				continue
			}
		}
		r.ref(path, c.Position, tok.Name)
	}
}

func (r *References) condition(path walker.Path, pos parser.Position, name string) {
	if _, ok := r.bindings.Condition(name); ok {
		return
	}
	r.out.Report(RuleReference, pos, path, "%s",
		withSuggestion("unresolved condition '"+name+"'", name, r.bindings.ConditionNames()))
}

func (r *References) findInMap(path walker.Path, c *parser.Call) {
	l, ok := c.Args.(*parser.List)
	if !ok || len(l.Elements) < 2 {
		return
	}
	name, ok := literal(l.Elements[0])
	if !ok {
		return
	}
	table := r.bindings.Mappings()
	m, ok := table.Get(name)
	if !ok {
		r.out.Report(RuleReference, l.Elements[0].Pos(), path, "%s",
			withSuggestion("unresolved mapping '"+name+"'", name, table.Names()))
		return
	}
	key, ok := literal(l.Elements[1])
	if !ok {
		return
	}
	if _, ok := m.Get(key); !ok {
		r.out.Report(RuleReference, l.Elements[1].Pos(), path, "%s",
			withSuggestion("mapping "+name+" has no key '"+key+"'", key, m.Keys()))
	}
}

func literal(v parser.Value) (string, bool) {
	if _, ok := v.(*parser.Call); ok {
		return "", false
	}
	return parser.ScalarText(v)
}
