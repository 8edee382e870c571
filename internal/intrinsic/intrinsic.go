// Package intrinsic describes every intrinsic function kind: the shape its
// raw arguments must have, the kinds it may contain and how its result type
// is determined.
package intrinsic

import (
	"fmt"
	"strings"

	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/schema"
)

type RuleKind int

const (
	// Fixed results never depend on the template.
	Fixed RuleKind = iota
	// Deferred results need Parameters, Mappings or Resources lookups.
	Deferred
	// Opaque results come from outside the template and stay unresolved.
	Opaque
)

type ResultRule struct {
	Kind  RuleKind
	Shape schema.Shape
}

// KindSet is a set of function kinds.
type KindSet uint32

func SetOf(kinds ...parser.Kind) KindSet {
	var s KindSet
	for _, k := range kinds {
		s |= 1 << uint(k)
	}
	return s
}

func (s KindSet) Has(k parser.Kind) bool { return s&(1<<uint(k)) != 0 }

func (s KindSet) Kinds() []parser.Kind {
	var out []parser.Kind
	for _, k := range parser.Kinds() {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

type Function struct {
	Kind    parser.Kind
	Allowed KindSet
	Result  ResultRule
	args    func(parser.Value) []string
}

// CheckArgs returns a message for every way args fails the function's
// required argument shape. It says nothing about what the arguments refer to.
func (f *Function) CheckArgs(args parser.Value) []string {
	if f.args == nil {
		return nil
	}
	return f.args(args)
}

func (f *Function) Allows(child parser.Kind) bool { return f.Allowed.Has(child) }

var (
	valueFunctions = SetOf(
		parser.KindBase64, parser.KindFindInMap, parser.KindGetAtt, parser.KindGetAZs,
		parser.KindIf, parser.KindImportValue, parser.KindJoin, parser.KindSelect,
		parser.KindSplit, parser.KindSub, parser.KindRef, parser.KindCidr,
	)
	conditionFunctions = SetOf(
		parser.KindFindInMap, parser.KindRef, parser.KindAnd, parser.KindEquals,
		parser.KindNot, parser.KindOr, parser.KindCondition,
	)
)

var table = func() map[parser.Kind]*Function {
	m := make(map[parser.Kind]*Function)
	for _, k := range parser.Kinds() {
		f := define(k)
		m[k] = &f
	}
	return m
}()

// Lookup returns the description of kind k.
func Lookup(k parser.Kind) *Function {
	f, ok := table[k]
	if !ok {
		panic(fmt.Sprintf("intrinsic: unknown function kind %d", k))
	}
	return f
}

func define(k parser.Kind) Function {
	fixed := func(s schema.Shape) ResultRule { return ResultRule{Kind: Fixed, Shape: s} }
	deferred := ResultRule{Kind: Deferred}
	str := schema.Primitives(schema.String)
	boolean := schema.Primitives(schema.Boolean)
	strList := schema.ListOf(schema.String)

	switch k {
	case parser.KindRef:
		return Function{Kind: k, Result: deferred, args: stringArg(k)}
	case parser.KindGetAtt:
		return Function{Kind: k, Allowed: SetOf(parser.KindRef), Result: deferred, args: getAttArgs}
	case parser.KindSub:
		return Function{Kind: k, Allowed: valueFunctions, Result: deferred, args: subArgs}
	case parser.KindJoin:
		return Function{Kind: k, Allowed: valueFunctions, Result: fixed(str), args: joinArgs}
	case parser.KindSelect:
		return Function{Kind: k, Allowed: SetOf(parser.KindFindInMap, parser.KindGetAtt, parser.KindGetAZs,
			parser.KindIf, parser.KindSplit, parser.KindRef, parser.KindCidr, parser.KindSelect), Result: deferred, args: selectArgs}
	case parser.KindGetAZs:
		return Function{Kind: k, Allowed: SetOf(parser.KindRef), Result: fixed(strList), args: scalarOrCall(k)}
	case parser.KindIf:
		return Function{Kind: k, Allowed: valueFunctions, Result: deferred, args: ifArgs}
	case parser.KindEquals:
		return Function{Kind: k, Allowed: SetOf(parser.KindBase64, parser.KindFindInMap, parser.KindGetAZs,
			parser.KindJoin, parser.KindSelect, parser.KindSplit, parser.KindSub, parser.KindRef), Result: fixed(boolean), args: listArgs(k, 2, 2)}
	case parser.KindAnd, parser.KindOr:
		return Function{Kind: k, Allowed: conditionFunctions, Result: fixed(boolean), args: listArgs(k, 2, 10)}
	case parser.KindNot:
		return Function{Kind: k, Allowed: conditionFunctions, Result: fixed(boolean), args: listArgs(k, 1, 1)}
	case parser.KindBase64:
		return Function{Kind: k, Allowed: valueFunctions, Result: fixed(str), args: scalarOrCall(k)}
	case parser.KindFindInMap:
		return Function{Kind: k, Allowed: SetOf(parser.KindFindInMap, parser.KindRef), Result: deferred, args: listArgs(k, 3, 3)}
	case parser.KindCidr:
		return Function{Kind: k, Allowed: SetOf(parser.KindSelect, parser.KindRef, parser.KindGetAtt,
			parser.KindImportValue, parser.KindSub), Result: fixed(strList), args: listArgs(k, 3, 3)}
	case parser.KindImportValue:
		return Function{Kind: k, Allowed: SetOf(parser.KindBase64, parser.KindFindInMap, parser.KindIf,
			parser.KindJoin, parser.KindSelect, parser.KindSplit, parser.KindSub, parser.KindRef), Result: ResultRule{Kind: Opaque}, args: scalarOrCall(k)}
	case parser.KindSplit:
		return Function{Kind: k, Allowed: valueFunctions, Result: fixed(strList), args: splitArgs}
	case parser.KindCondition:
		return Function{Kind: k, Result: fixed(boolean), args: stringArg(k)}
	}
	panic(fmt.Sprintf("intrinsic: unhandled function kind %s", k))
}

func stringArg(k parser.Kind) func(parser.Value) []string {
	return func(v parser.Value) []string {
		if _, ok := parser.AsString(v); !ok {
			return []string{fmt.Sprintf("%s must be a string, got %s", k, parser.Describe(v))}
		}
		return nil
	}
}

func scalarOrCall(k parser.Kind) func(parser.Value) []string {
	return func(v parser.Value) []string {
		switch v.(type) {
		case *parser.Scalar, *parser.Call:
			return nil
		}
		return []string{fmt.Sprintf("%s must be a string or a function, got %s", k, parser.Describe(v))}
	}
}

func listArgs(k parser.Kind, min, max int) func(parser.Value) []string {
	return func(v parser.Value) []string {
		l, ok := v.(*parser.List)
		if !ok {
			return []string{fmt.Sprintf("%s must be a list, got %s", k, parser.Describe(v))}
		}
		n := len(l.Elements)
		if n < min || n > max {
			if min == max {
				return []string{fmt.Sprintf("%s must have exactly %d elements, got %d", k, min, n)}
			}
			return []string{fmt.Sprintf("%s must have between %d and %d elements, got %d", k, min, max, n)}
		}
		return nil
	}
}

func isStringOrCall(v parser.Value) bool {
	if _, ok := v.(*parser.Call); ok {
		return true
	}
	_, ok := parser.AsString(v)
	return ok
}

func isListOrCall(v parser.Value) bool {
	switch v.(type) {
	case *parser.List, *parser.Call:
		return true
	}
	return false
}

func getAttArgs(v parser.Value) []string {
	l, ok := v.(*parser.List)
	if !ok || len(l.Elements) != 2 {
		return []string{"Fn::GetAtt must be a list of [LogicalName, AttributeName] or a \"LogicalName.AttributeName\" string"}
	}
	var problems []string
	if _, ok := parser.AsString(l.Elements[0]); !ok {
		problems = append(problems, "Fn::GetAtt logical name must be a string")
	}
	if !isStringOrCall(l.Elements[1]) {
		problems = append(problems, "Fn::GetAtt attribute name must be a string or Ref")
	}
	return problems
}

func subArgs(v parser.Value) []string {
	if _, ok := parser.AsString(v); ok {
		return nil
	}
	l, ok := v.(*parser.List)
	if !ok || len(l.Elements) != 2 {
		return []string{"Fn::Sub must be a string or a list of [String, Variables]"}
	}
	var problems []string
	if _, ok := parser.AsString(l.Elements[0]); !ok {
		problems = append(problems, "Fn::Sub template must be a string")
	}
	if _, ok := l.Elements[1].(*parser.Map); !ok {
		problems = append(problems, "Fn::Sub variables must be an object")
	}
	return problems
}

func joinArgs(v parser.Value) []string {
	l, ok := v.(*parser.List)
	if !ok || len(l.Elements) != 2 {
		return []string{"Fn::Join must be a list of [Delimiter, Values]"}
	}
	var problems []string
	if _, ok := parser.AsString(l.Elements[0]); !ok {
		problems = append(problems, "Fn::Join delimiter must be a string")
	}
	if !isListOrCall(l.Elements[1]) {
		problems = append(problems, "Fn::Join values must be a list")
	}
	return problems
}

func selectArgs(v parser.Value) []string {
	l, ok := v.(*parser.List)
	if !ok || len(l.Elements) != 2 {
		return []string{"Fn::Select must be a list of [Index, Values]"}
	}
	var problems []string
	switch idx := l.Elements[0].(type) {
	case *parser.Call:
	case *parser.Scalar:
		if f, ok := idx.Float(); !ok || f < 0 || f != float64(int(f)) {
			problems = append(problems, fmt.Sprintf("Fn::Select index must be a non-negative integer, got %q", idx.Text))
		}
	default:
		problems = append(problems, "Fn::Select index must be an integer")
	}
	if !isListOrCall(l.Elements[1]) {
		problems = append(problems, "Fn::Select values must be a list")
	}
	return problems
}

func ifArgs(v parser.Value) []string {
	l, ok := v.(*parser.List)
	if !ok || len(l.Elements) != 3 {
		return []string{"Fn::If must be a list of [Condition, ValueIfTrue, ValueIfFalse]"}
	}
	if _, ok := parser.AsString(l.Elements[0]); !ok {
		return []string{"Fn::If condition name must be a string"}
	}
	return nil
}

func splitArgs(v parser.Value) []string {
	l, ok := v.(*parser.List)
	if !ok || len(l.Elements) != 2 {
		return []string{"Fn::Split must be a list of [Delimiter, Source]"}
	}
	var problems []string
	if _, ok := parser.AsString(l.Elements[0]); !ok {
		problems = append(problems, "Fn::Split delimiter must be a string")
	}
	if !isStringOrCall(l.Elements[1]) {
		problems = append(problems, "Fn::Split source must be a string")
	}
	return problems
}

// SubToken is one ${...} substitution inside an Fn::Sub template.
type SubToken struct {
	Name string
	// Literal is set for ${!Name}, which renders as the text "${Name}".
	Literal bool
}

// SubTokens extracts the substitution tokens of a Fn::Sub template string.
func SubTokens(s string) []SubToken {
	var tokens []SubToken
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			return tokens
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			return tokens
		}
		inner := s[start+2 : start+end]
		if strings.HasPrefix(inner, "!") {
			tokens = append(tokens, SubToken{Name: inner[1:], Literal: true})
		} else {
			tokens = append(tokens, SubToken{Name: strings.TrimSpace(inner)})
		}
		s = s[start+end+1:]
	}
}

// SubTemplate splits the Fn::Sub arguments into the template string and the
// variable map, either of which may be missing.
func SubTemplate(args parser.Value) (string, *parser.Map, bool) {
	if s, ok := parser.AsString(args); ok {
		return s, nil, true
	}
	l, ok := args.(*parser.List)
	if !ok || len(l.Elements) == 0 {
		return "", nil, false
	}
	s, ok := parser.AsString(l.Elements[0])
	if !ok {
		return "", nil, false
	}
	var vars *parser.Map
	if len(l.Elements) > 1 {
		vars, _ = l.Elements[1].(*parser.Map)
	}
	return s, vars, true
}

// SingleSubToken returns the token name when the template consists of exactly
// one substitution and whitespace.
func SingleSubToken(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "${") || !strings.HasSuffix(trimmed, "}") {
		return "", false
	}
	tokens := SubTokens(trimmed)
	if len(tokens) != 1 || tokens[0].Literal {
		return "", false
	}
	if strings.Count(trimmed, "${") != 1 || strings.Count(trimmed, "}") != 1 {
		return "", false
	}
	return tokens[0].Name, true
}
