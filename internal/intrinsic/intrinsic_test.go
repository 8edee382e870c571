package intrinsic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/schema"
)

func callAt(t *testing.T, src string) *parser.Call {
	t.Helper()
	tmpl, err := parser.Parse([]byte("V: " + src))
	require.NoError(t, err)
	v, _ := tmpl.Root.(*parser.Map).Get("V")
	c, ok := v.(*parser.Call)
	require.True(t, ok, "%q is not a call", src)
	return c
}

func TestEveryKindIsDescribed(t *testing.T) {
	for _, k := range parser.Kinds() {
		f := Lookup(k)
		assert.Equal(t, k, f.Kind)
	}
	assert.Panics(t, func() { Lookup(parser.Kind(99)) })
}

func TestResultRules(t *testing.T) {
	fixed := map[parser.Kind]schema.Shape{
		parser.KindJoin:      schema.Primitives(schema.String),
		parser.KindBase64:    schema.Primitives(schema.String),
		parser.KindGetAZs:    schema.ListOf(schema.String),
		parser.KindSplit:     schema.ListOf(schema.String),
		parser.KindCidr:      schema.ListOf(schema.String),
		parser.KindEquals:    schema.Primitives(schema.Boolean),
		parser.KindAnd:       schema.Primitives(schema.Boolean),
		parser.KindOr:        schema.Primitives(schema.Boolean),
		parser.KindNot:       schema.Primitives(schema.Boolean),
		parser.KindCondition: schema.Primitives(schema.Boolean),
	}
	for k, shape := range fixed {
		r := Lookup(k).Result
		assert.Equal(t, Fixed, r.Kind, k.String())
		assert.True(t, shape.Equal(r.Shape), "%s returns %s", k, r.Shape)
	}
	for _, k := range []parser.Kind{parser.KindRef, parser.KindSub, parser.KindGetAtt,
		parser.KindFindInMap, parser.KindSelect, parser.KindIf} {
		assert.Equal(t, Deferred, Lookup(k).Result.Kind, k.String())
	}
	assert.Equal(t, Opaque, Lookup(parser.KindImportValue).Result.Kind)
}

func TestAllowLists(t *testing.T) {
	and := Lookup(parser.KindAnd)
	assert.False(t, and.Allows(parser.KindGetAtt))
	assert.True(t, and.Allows(parser.KindEquals))
	assert.True(t, and.Allows(parser.KindCondition))

	sub := Lookup(parser.KindSub)
	assert.True(t, sub.Allows(parser.KindGetAtt))
	assert.False(t, sub.Allows(parser.KindEquals))

	assert.Empty(t, Lookup(parser.KindRef).Allowed.Kinds())
	assert.Equal(t, []parser.Kind{parser.KindRef}, Lookup(parser.KindGetAZs).Allowed.Kinds())
}

func TestCheckArgs(t *testing.T) {
	cases := []struct {
		src  string
		bad  bool
		want string
	}{
		{`!Ref Env`, false, ""},
		{`{Ref: [a]}`, true, "must be a string"},
		{`!Equals [a, b]`, false, ""},
		{`!Equals [a]`, true, "exactly 2 elements"},
		{`!If [C, a, b]`, false, ""},
		{`!If [C, a]`, true, "Fn::If must be a list"},
		{`!If [[C], a, b]`, true, "condition name"},
		{`!FindInMap [M, a, b]`, false, ""},
		{`!FindInMap [M, a]`, true, "exactly 3"},
		{`!GetAtt A.b`, false, ""},
		{`!GetAtt A`, true, "LogicalName"},
		{`!Sub "${A}"`, false, ""},
		{`!Sub ["${A}", {A: x}]`, false, ""},
		{`!Sub ["${A}", [x]]`, true, "variables must be an object"},
		{`!Join [",", [a, b]]`, false, ""},
		{`!Join [",", a]`, true, "values must be a list"},
		{`!Select [0, [a]]`, false, ""},
		{`!Select ["-1", [a]]`, true, "non-negative integer"},
		{`!And [a]`, true, "between 2 and 10"},
		{`!Not [a]`, false, ""},
		{`!Split [",", !Ref L]`, false, ""},
		{`!Base64 [a]`, true, "string or a function"},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			c := callAt(t, tc.src)
			problems := Lookup(c.Kind).CheckArgs(c.Args)
			if !tc.bad {
				assert.Empty(t, problems)
				return
			}
			require.NotEmpty(t, problems)
			assert.Contains(t, problems[0], tc.want)
		})
	}
}

func TestSubTokens(t *testing.T) {
	tokens := SubTokens("arn:${AWS::Partition}:s3:::${Bucket}/${!Literal}")
	require.Len(t, tokens, 3)
	assert.Equal(t, "AWS::Partition", tokens[0].Name)
	assert.Equal(t, "Bucket", tokens[1].Name)
	assert.True(t, tokens[2].Literal)

	name, ok := SingleSubToken("  ${Env} ")
	assert.True(t, ok)
	assert.Equal(t, "Env", name)

	_, ok = SingleSubToken("${A}-${B}")
	assert.False(t, ok)
	_, ok = SingleSubToken("x-${A}")
	assert.False(t, ok)
	_, ok = SingleSubToken("${!A}")
	assert.False(t, ok)
}
