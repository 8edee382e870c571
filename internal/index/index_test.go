package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/schema"
	"github.com/cfncheck/cfncheck/internal/walker"
)

const template = `
Parameters:
  Env:
    Type: String
    Default: prod
    AllowedValues: [prod, dev]
    MaxLength: 4
  Size:
    Type: Number
    MinValue: 1
    MaxValue: 10.5
Mappings:
  Regions:
    us-east-1: {Ami: ami-1}
Conditions:
  IsProd: !Equals [!Ref Env, prod]
Resources:
  Bucket:
    Type: AWS::S3::Bucket
    Condition: IsProd
  Thing:
    Type: Custom::Thing
  Odd: nope
`

func bind(t *testing.T, src string, runtime map[string]string) *Bindings {
	t.Helper()
	table, err := schema.LoadFullTable()
	require.NoError(t, err)
	tmpl, err := parser.Parse([]byte(src))
	require.NoError(t, err)

	b := NewBinder(table, runtime)
	walker.New(b).Walk(tmpl.Root)
	return b.Bindings()
}

func TestBinderCapturesDeclarations(t *testing.T) {
	b := bind(t, template, map[string]string{"Env": "dev"})
	require.True(t, b.Sealed())

	env, ok := b.Parameter("Env")
	require.True(t, ok)
	assert.Equal(t, "String", env.Type)
	assert.Equal(t, []string{"prod", "dev"}, env.AllowedValues)
	require.NotNil(t, env.MaxLength)
	assert.Equal(t, 4, *env.MaxLength)
	assert.True(t, env.HasRuntime)
	assert.Equal(t, "dev", env.Runtime)
	assert.Equal(t, 3, env.Position.Line)

	size, _ := b.Parameter("Size")
	require.NotNil(t, size.MaxValue)
	assert.Equal(t, 10.5, *size.MaxValue)
	assert.False(t, size.HasRuntime)

	bucket, ok := b.Resource("Bucket")
	require.True(t, ok)
	require.NotNil(t, bucket.Spec)
	assert.Equal(t, "IsProd", bucket.Condition)
	assert.Contains(t, bucket.Attributes, "Arn")

	thing, _ := b.Resource("Thing")
	assert.True(t, thing.Custom())
	assert.Nil(t, thing.Spec)

	odd, _ := b.Resource("Odd")
	assert.Equal(t, "", odd.Type)

	_, ok = b.Mappings().Get("Regions")
	assert.True(t, ok)
	_, ok = b.Condition("IsProd")
	assert.True(t, ok)

	assert.Equal(t, []string{"Env", "Size"}, b.ParameterNames())
	assert.Equal(t, []string{"Bucket", "Thing", "Odd"}, b.ResourceNames())
	assert.Contains(t, b.RefTargets(), "AWS::Region")
}

func TestSealing(t *testing.T) {
	b := New()
	var order []string
	b.OnSeal(func() { order = append(order, "first") })
	b.OnSeal(func() { order = append(order, "second") })
	b.AddParameter(&ParameterBinding{Name: "P"})

	b.Seal()
	b.Seal()
	assert.Equal(t, []string{"first", "second"}, order)

	b.OnSeal(func() { order = append(order, "late") })
	assert.Equal(t, []string{"first", "second", "late"}, order)

	assert.Panics(t, func() { b.AddParameter(&ParameterBinding{Name: "Q"}) })
	assert.Panics(t, func() { b.AddResource(&ResourceBinding{Name: "R"}) })
}

func TestOutputsSealWithoutResources(t *testing.T) {
	b := bind(t, "Outputs:\n  O: {Value: x}\n", nil)
	assert.True(t, b.Sealed())
}
