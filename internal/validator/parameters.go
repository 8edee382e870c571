package validator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/cfncheck/cfncheck/internal/index"
	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/walker"
)

var (
	parameterAttributes = []string{
		"AllowedPattern", "AllowedValues", "ConstraintDescription", "Default", "Description",
		"MaxLength", "MaxValue", "MinLength", "MinValue", "NoEcho", "Type",
	}
	awsParameterTypes = []string{
		"AWS::EC2::AvailabilityZone::Name",
		"AWS::EC2::Image::Id",
		"AWS::EC2::Instance::Id",
		"AWS::EC2::KeyPair::KeyName",
		"AWS::EC2::SecurityGroup::GroupName",
		"AWS::EC2::SecurityGroup::Id",
		"AWS::EC2::Subnet::Id",
		"AWS::EC2::VPC::Id",
		"AWS::EC2::Volume::Id",
		"AWS::Route53::HostedZone::Id",
	}
)

func parameterTypes() []string {
	types := []string{"String", "Number", "List<Number>", "CommaDelimitedList", "AWS::SSM::Parameter::Name"}
	for _, t := range awsParameterTypes {
		types = append(types, t, "List<"+t+">")
	}
	return types
}

func knownParameterType(t string) bool {
	if strings.HasPrefix(t, "AWS::SSM::Parameter::Value<") && strings.HasSuffix(t, ">") {
		inner := t[len("AWS::SSM::Parameter::Value<") : len(t)-1]
		return inner == "String" || knownParameterType(inner)
	}
	return contains(parameterTypes(), t)
}

// Parameters checks each parameter declaration, and its Default and runtime
// value against the declared constraints. Constraints are compiled to a CUE
// definition; values are unified with it and must stay concrete.
type Parameters struct {
	walker.NopChecker

	ctx     *cue.Context
	runtime map[string]string
	out     *Collector
}

func NewParameters(runtime map[string]string, out *Collector) *Parameters {
	return &Parameters{ctx: cuecontext.New(), runtime: runtime, out: out}
}

func (p *Parameters) Parameter(path walker.Path, name string, v parser.Value) {
	if !logicalIDPattern.MatchString(name) {
		p.out.Report(RuleSection, v.Pos(), path, "parameter name %q must be alphanumeric", name)
	}
	m, ok := v.(*parser.Map)
	if !ok {
		p.out.Report(RuleSection, v.Pos(), path, "parameter %s must be an object, got %s", name, parser.Describe(v))
		return
	}
	for _, key := range m.Keys() {
		if !contains(parameterAttributes, key) {
			e, _ := m.Entry(key)
			p.out.Report(RuleInvalidProperty, e.KeyPos, path.Child(e.Key), "%s",
				withSuggestion("invalid parameter attribute "+e.Key, e.Key, parameterAttributes))
		}
	}

	typ, ok := m.Get("Type")
	if !ok {
		p.out.Report(RuleRequired, m.Position, path.Child("Type"), "required attribute Type of parameter %s is missing", name)
		return
	}
	t, ok := parser.AsString(typ)
	if !ok || !knownParameterType(t) {
		text, _ := parser.ScalarText(typ)
		p.out.Report(RuleParameter, typ.Pos(), path.Child("Type"), "%s",
			withSuggestion(fmt.Sprintf("invalid parameter type '%s'", text), text, parameterTypes()))
		return
	}

	binding := index.ParameterFromDecl(name, v)
	binding.Type = t
	if val, ok := p.runtime[name]; ok {
		binding.Runtime, binding.HasRuntime = val, true
	}
	p.constraints(path, m, binding)
}

func (p *Parameters) constraints(path walker.Path, m *parser.Map, b *index.ParameterBinding) {
	var kind string
	switch b.Type {
	case "String":
		kind = "string"
	case "Number":
		kind = "number"
	default:
		return
	}

	src, problems := constraintSource(kind, b)
	for _, problem := range problems {
		p.out.Report(RuleParameter, m.Position, path, "parameter %s: %s", b.Name, problem)
	}
	def := p.ctx.CompileString(src)
	if err := def.Err(); err != nil {
		p.out.Report(RuleParameter, m.Position, path, "parameter %s has invalid constraints: %v", b.Name, err)
		return
	}
	constraint := def.LookupPath(cue.ParsePath("#P"))

	if b.Default != nil {
		if text, ok := parser.ScalarText(b.Default); ok {
			p.validate(constraint, path.Child("Default"), b.Default.Pos(), b, "Default", text)
		} else {
			p.out.Report(RuleTypeMismatch, b.Default.Pos(), path.Child("Default"),
				"Default of parameter %s must be a scalar, got %s", b.Name, parser.Describe(b.Default))
		}
	}
	if b.HasRuntime {
		p.validate(constraint, path, m.Position, b, "value", b.Runtime)
	}
}

func (p *Parameters) validate(constraint cue.Value, path walker.Path, pos parser.Position, b *index.ParameterBinding, what, text string) {
	var value interface{} = text
	if b.Type == "Number" {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.out.Report(RuleParameter, pos, path, "%s %q of Number parameter %s is not a number", what, text, b.Name)
			return
		}
		value = cueNumber(f)
	}
	res := constraint.Unify(p.ctx.Encode(value))
	if err := res.Validate(cue.Concrete(true)); err != nil {
		for _, e := range cueerrors.Errors(err) {
			p.out.Report(RuleParameter, pos, path, "%s %q of parameter %s violates its constraints: %s",
				what, text, b.Name, e.Error())
		}
	}
}

// constraintSource renders the parameter's constraints as a CUE definition
// #P. Constraints that cannot be expressed are returned as problems.
func constraintSource(kind string, b *index.ParameterBinding) (string, []string) {
	var problems []string
	var imports string
	parts := []string{kind}

	if kind == "string" {
		if b.AllowedPattern != "" {
			parts = append(parts, "=~"+cueString("^(?:"+b.AllowedPattern+")$"))
		}
		if b.MinLength != nil {
			parts = append(parts, fmt.Sprintf("strings.MinRunes(%d)", *b.MinLength))
			imports = "import \"strings\"\n\n"
		}
		if b.MaxLength != nil {
			parts = append(parts, fmt.Sprintf("strings.MaxRunes(%d)", *b.MaxLength))
			imports = "import \"strings\"\n\n"
		}
	} else {
		if b.MinValue != nil {
			parts = append(parts, ">="+strconv.FormatFloat(*b.MinValue, 'f', -1, 64))
		}
		if b.MaxValue != nil {
			parts = append(parts, "<="+strconv.FormatFloat(*b.MaxValue, 'f', -1, 64))
		}
	}

	if len(b.AllowedValues) > 0 {
		var alts []string
		for _, av := range b.AllowedValues {
			if kind == "string" {
				alts = append(alts, cueString(av))
				continue
			}
			f, err := strconv.ParseFloat(av, 64)
			if err != nil {
				problems = append(problems, fmt.Sprintf("allowed value %q is not a number", av))
				continue
			}
			alts = append(alts, fmt.Sprint(cueNumber(f)))
		}
		if len(alts) > 0 {
			parts = append(parts, "("+strings.Join(alts, " | ")+")")
		}
	}

	return imports + "#P: " + strings.Join(parts, " & ") + "\n", problems
}

// cueNumber keeps whole numbers integral, since CUE does not unify an int
// literal with a float.
func cueNumber(f float64) interface{} {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// cueString quotes s as a raw CUE string so regular expressions keep their
// backslashes.
func cueString(s string) string {
	if !strings.Contains(s, "\"#") {
		return "#\"" + s + "\"#"
	}
	return strconv.Quote(s)
}
