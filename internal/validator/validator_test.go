package validator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfncheck/cfncheck/internal/parser"
	"github.com/cfncheck/cfncheck/internal/schema"
)

func lint(t *testing.T, src string, opts Options) []Diagnostic {
	t.Helper()
	res := lintResult(t, src, opts)
	return res.Diagnostics
}

func lintResult(t *testing.T, src string, opts Options) *Result {
	t.Helper()
	table, err := schema.LoadFullTable()
	require.NoError(t, err)
	res, err := Lint(table, []byte(src), opts)
	require.NoError(t, err)
	return res
}

func at(diags []Diagnostic, path string) []Diagnostic {
	var out []Diagnostic
	for _, d := range diags {
		if d.Path.String() == path {
			out = append(out, d)
		}
	}
	return out
}

func withRule(diags []Diagnostic, rule string) []Diagnostic {
	var out []Diagnostic
	for _, d := range diags {
		if d.Rule == rule {
			out = append(out, d)
		}
	}
	return out
}

func TestMissingResources(t *testing.T) {
	diags := lint(t, "AWSTemplateFormatVersion: \"2010-09-09\"\n", Options{})
	require.Len(t, diags, 1)
	assert.Equal(t, "Resources", diags[0].Path.String())
	assert.Contains(t, diags[0].Message, "required")
	assert.Equal(t, LevelError, diags[0].Level)
}

func TestUnknownResourceType(t *testing.T) {
	diags := lint(t, `
Resources:
  X:
    Type: AWS::Foo::Bar
    Properties:
      Anything: 1
`, Options{})
	require.Len(t, diags, 1)
	assert.Equal(t, "Resources.X.Type", diags[0].Path.String())
	assert.Contains(t, diags[0].Message, "invalid")
	assert.Equal(t, RuleResourceType, diags[0].Rule)
}

func TestResourceTypeSuggestion(t *testing.T) {
	diags := lint(t, `
Resources:
  X:
    Type: AWS::S3::Buckt
`, Options{})
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "did you mean 'AWS::S3::Bucket'?")
}

func TestNonObjectTemplate(t *testing.T) {
	diags := lint(t, "- a\n- b\n", Options{})
	require.Len(t, diags, 1)
	assert.Equal(t, RuleTemplate, diags[0].Rule)
}

func TestParseErrorIsOneDiagnostic(t *testing.T) {
	diags := lint(t, "Resources:\n  A: [\n", Options{})
	require.Len(t, diags, 1)
	assert.Equal(t, RuleTemplate, diags[0].Rule)
	assert.Empty(t, diags[0].Path)
	assert.Greater(t, diags[0].Position.Line, 0)
}

const mixed = `
Parameters:
  Size: {Type: Number}
Resources:
  Fn:
    Type: AWS::Lambda::Function
    Properties:
      Role: !GetAtt Rol.Arn
      Code: {ZipFile: x}
      Architectures:
        - {}
      Timeoutt: 3
  Q:
    Type: AWS::SQS::Queue
    Properties:
      DelaySeconds: !Ref Missing
`

func TestLintIsIdempotent(t *testing.T) {
	first := lint(t, mixed, Options{})
	second := lint(t, mixed, Options{})
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestListElementMismatch(t *testing.T) {
	diags := lint(t, mixed, Options{})
	found := at(diags, "Resources.Fn.Properties.Architectures.0")
	require.Len(t, found, 1)
	assert.Equal(t, RuleTypeMismatch, found[0].Rule)
	assert.Contains(t, found[0].Message, "String")
}

func TestDiagnosticsInWalkOrder(t *testing.T) {
	diags := lint(t, mixed, Options{})
	var paths []string
	for _, d := range diags {
		paths = append(paths, d.Path.String())
	}
	assert.Equal(t, []string{
		"Resources.Fn.Properties.Architectures.0",
		"Resources.Fn.Properties.Timeoutt",
		"Resources.Fn.Properties.Role",
		"Resources.Q.Properties.DelaySeconds",
	}, paths)
	assert.Contains(t, diags[1].Message, "did you mean 'Timeout'?")
}

func TestParameterRefCompatibility(t *testing.T) {
	tests := []struct {
		name     string
		property string
		param    string
		want     int
	}{
		{"number parameter where string expected", "BucketName", "{Type: Number}", 0},
		{"boolean-like default where boolean expected", "FifoTopic", `{Type: String, Default: "true"}`, 0},
		{"boolean-like default where number expected", "DelaySeconds", `{Type: String, Default: "true"}`, 1},
	}
	types := map[string]string{
		"BucketName":   "AWS::S3::Bucket",
		"FifoTopic":    "AWS::SNS::Topic",
		"DelaySeconds": "AWS::SQS::Queue",
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := `
Parameters:
  P: ` + tt.param + `
Resources:
  R:
    Type: ` + types[tt.property] + `
    Properties:
      ` + tt.property + `: !Ref P
`
			diags := lint(t, src, Options{})
			assert.Len(t, diags, tt.want, "%v", diags)
			for _, d := range diags {
				assert.Equal(t, RuleTypeMismatch, d.Rule)
			}
		})
	}
}

func TestGetAttNesting(t *testing.T) {
	diags := lint(t, `
Conditions:
  C: !And [!GetAtt B.Arn, !Equals [a, b]]
Resources:
  B:
    Type: AWS::S3::Bucket
`, Options{})
	nesting := withRule(diags, RuleIntrinsicNesting)
	require.Len(t, nesting, 1)
	assert.Contains(t, nesting[0].Message, "can not be used within")
	assert.Equal(t, "Conditions.C.Fn::And.0", nesting[0].Path.String())

	diags = lint(t, `
Resources:
  B:
    Type: AWS::S3::Bucket
  T:
    Type: AWS::SNS::Topic
    Properties:
      DisplayName: !Sub ["${arn}", {arn: !GetAtt B.Arn}]
      TopicName: !Sub "${B.Arn}"
`, Options{})
	assert.Empty(t, diags)
}

func TestFindInMapDynamicKey(t *testing.T) {
	res := lintResult(t, `
Mappings:
  A:
    B: {C: x, D: 1}
Resources:
  R:
    Type: AWS::S3::Bucket
    Properties:
      BucketName: !FindInMap [A, B, !Ref AWS::Region]
`, Options{})
	assert.Empty(t, res.Diagnostics)
	require.Len(t, res.Calls, 2)
	assert.Equal(t, parser.KindFindInMap, res.Calls[0].Kind)
	assert.True(t, res.Calls[0].Shape.Equal(schema.Primitives(schema.String, schema.Number)),
		"got %s", res.Calls[0].Shape)
}

func TestEveryCallIsResolvedOnce(t *testing.T) {
	res := lintResult(t, mixed, Options{})
	for _, r := range res.Calls {
		_, done := r.Call.Resolved()
		assert.True(t, done, "call at %s", r.Path)
	}
}

const twoBuckets = `
Metadata:
  cfncheck:
    ignore:
      - Resources.A.*
Resources:
  A:
    Type: AWS::S3::Bucket
    Properties:
      Foo: 1
  B:
    Type: AWS::S3::Bucket
    Properties:
      Foo: 1
`

func TestTemplateSuppression(t *testing.T) {
	diags := lint(t, twoBuckets, Options{})
	require.Len(t, diags, 1)
	assert.Equal(t, "Resources.B.Properties.Foo", diags[0].Path.String())
}

func TestSuppressionWithRules(t *testing.T) {
	src := `
Metadata:
  cfncheck:
    ignore:
      - path: Resources
        rules: [reference]
Resources:
  A:
    Type: AWS::S3::Bucket
    Properties:
      BucketName: !Ref Nope
      Foo: 1
`
	diags := lint(t, src, Options{})
	require.Len(t, diags, 1)
	assert.Equal(t, RuleInvalidProperty, diags[0].Rule)
}

func TestResourceSuppression(t *testing.T) {
	diags := lint(t, `
Resources:
  A:
    Type: AWS::S3::Bucket
    Metadata:
      cfncheck:
        ignore: [invalid-property]
    Properties:
      Foo: 1
  B:
    Type: AWS::S3::Bucket
    Properties:
      Foo: 1
`, Options{})
	require.Len(t, diags, 1)
	assert.Equal(t, "Resources.B.Properties.Foo", diags[0].Path.String())
}

func TestOptionsIgnoreAndDisable(t *testing.T) {
	diags := lint(t, twoBuckets, Options{Ignore: []IgnoreRule{{Path: "Resources.B"}}})
	assert.Empty(t, diags)

	diags = lint(t, mixed, Options{DisabledRules: []string{RuleTypeMismatch, RuleReference}})
	require.Len(t, diags, 1)
	assert.Equal(t, RuleInvalidProperty, diags[0].Rule)
}

func TestParameterConstraints(t *testing.T) {
	src := `
Parameters:
  Env:
    Type: String
    AllowedValues: [dev, prod]
    Default: test
  Name:
    Type: String
    AllowedPattern: "[a-z]+"
    MinLength: 3
    Default: ab
  Count:
    Type: Number
    MinValue: 1
    MaxValue: 5
    Default: 10
  Ok:
    Type: Number
    AllowedValues: [1, 2]
    Default: 2
Resources:
  H:
    Type: AWS::CloudFormation::WaitConditionHandle
`
	diags := lint(t, src, Options{})
	for _, path := range []string{"Parameters.Env.Default", "Parameters.Name.Default", "Parameters.Count.Default"} {
		found := at(diags, path)
		require.NotEmpty(t, found, path)
		assert.Equal(t, RuleParameter, found[0].Rule)
		assert.Contains(t, found[0].Message, "violates its constraints")
	}
	assert.Empty(t, at(diags, "Parameters.Ok.Default"))

	diags = lint(t, src, Options{Parameters: map[string]string{"Env": "prod", "Count": "three", "Envv": "x"}})
	assert.Empty(t, at(diags, "Parameters.Env"))
	count := at(diags, "Parameters.Count")
	require.Len(t, count, 1)
	assert.Contains(t, count[0].Message, "is not a number")
	undeclared := at(diags, "Parameters.Envv")
	require.Len(t, undeclared, 1)
	assert.Contains(t, undeclared[0].Message, "did you mean 'Env'?")
}

func TestRuntimeValueViolation(t *testing.T) {
	diags := lint(t, `
Parameters:
  Env:
    Type: String
    AllowedValues: [dev, prod]
Resources:
  H:
    Type: AWS::CloudFormation::WaitConditionHandle
`, Options{Parameters: map[string]string{"Env": "qa"}})
	require.NotEmpty(t, diags)
	for _, d := range diags {
		assert.Equal(t, "Parameters.Env", d.Path.String())
		assert.Contains(t, d.Message, `value "qa"`)
	}
}

func TestInvalidParameterType(t *testing.T) {
	diags := lint(t, `
Parameters:
  P: {Type: Strng}
Resources:
  H:
    Type: AWS::CloudFormation::WaitConditionHandle
`, Options{})
	require.Len(t, diags, 1)
	assert.Equal(t, RuleParameter, diags[0].Rule)
	assert.Contains(t, diags[0].Message, "did you mean 'String'?")
}

func TestUnknownFunctions(t *testing.T) {
	diags := lint(t, `
Resources:
  B:
    Type: AWS::S3::Bucket
    Properties:
      BucketName: {"Fn::Joinn": ["-", [a, b]]}
  T:
    Type: AWS::SNS::Topic
    Properties:
      TopicName: !Joinn ["-", [a, b]]
`, Options{})
	unknown := withRule(diags, RuleUnknownFunction)
	require.Len(t, unknown, 2)
	var msgs []string
	for _, d := range unknown {
		msgs = append(msgs, d.Message)
	}
	joined := strings.Join(msgs, "\n")
	assert.Contains(t, joined, "did you mean 'Fn::Join'?")
	assert.Contains(t, joined, "did you mean '!Join'?")
}

func TestDuplicateKeysAreWarnings(t *testing.T) {
	diags := lint(t, `
Resources:
  A:
    Type: AWS::S3::Bucket
  A:
    Type: AWS::SNS::Topic
`, Options{})
	require.Len(t, diags, 1)
	assert.Equal(t, RuleDuplicateKey, diags[0].Rule)
	assert.Equal(t, LevelWarning, diags[0].Level)
}

func TestReferenceSuggestions(t *testing.T) {
	diags := lint(t, `
Conditions:
  IsProd: !Equals [a, b]
Resources:
  Bucket:
    Type: AWS::S3::Bucket
    Condition: IsPrd
  Topic:
    Type: AWS::SNS::Topic
    DependsOn: Buckt
    Properties:
      TopicName: !Ref Buckett
      DisplayName: !GetAtt Bucket.Ar
`, Options{})
	joined := ""
	for _, d := range diags {
		assert.Equal(t, RuleReference, d.Rule, d.String())
		joined += d.Message + "\n"
	}
	assert.Contains(t, joined, "did you mean 'IsProd'?")
	assert.Contains(t, joined, "did you mean 'Bucket'?")
	assert.Contains(t, joined, "did you mean 'Arn'?")
}

func TestLintAllKeepsOrder(t *testing.T) {
	table, err := schema.LoadFullTable()
	require.NoError(t, err)
	sources := []Source{
		{Name: "a.yaml", Content: []byte(mixed)},
		{Name: "b.yaml", Content: []byte("Resources:\n  H: {Type: AWS::CloudFormation::WaitConditionHandle}\n")},
		{Name: "c.yaml", Content: []byte("{}")},
	}
	results := LintAll(context.Background(), table, sources, Options{})
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, sources[i].Name, r.Name)
		require.NoError(t, r.Err)
	}
	assert.Len(t, results[0].Result.Diagnostics, 4)
	assert.Empty(t, results[1].Result.Diagnostics)
	assert.Len(t, results[2].Result.Diagnostics, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, r := range LintAll(ctx, table, sources, Options{}) {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestJsonPropertyAcceptsStringCalls(t *testing.T) {
	diags := lint(t, `
Parameters:
  Doc: {Type: String}
Resources:
  Literal:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument: '{"Version":"2012-10-17"}'
  Sub:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument: !Sub '{"Version":"2012-10-17","Id":"${AWS::StackName}"}'
  Ref:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument: !Ref Doc
  Join:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument: !Join ["", ['{"Version":', '"2012-10-17"}']]
      Policies:
        - PolicyName: inline
          PolicyDocument: !Sub '{"Statement":[]}'
`, Options{})
	assert.Empty(t, diags)
}

func TestRequiredProperties(t *testing.T) {
	diags := lint(t, `
Resources:
  Fn:
    Type: AWS::Lambda::Function
    Properties:
      Code: {}
  Bare:
    Type: AWS::Lambda::Function
`, Options{})
	require.Len(t, diags, 3)
	for _, d := range diags {
		assert.Equal(t, RuleRequired, d.Rule)
	}
	root := at(diags, "Resources.Fn.Properties.Role")
	require.Len(t, root, 1)
	assert.Equal(t, "required property Role of AWS::Lambda::Function is missing", root[0].Message)
	assert.Len(t, at(diags, "Resources.Bare.Properties.Role"), 1)
	assert.Len(t, at(diags, "Resources.Bare.Properties.Code"), 1)
}

func TestRequiredNestedProperties(t *testing.T) {
	diags := lint(t, `
Resources:
  R:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument: {}
      Policies:
        - PolicyDocument: {}
        - PolicyName: !Ref AWS::NoValue
          PolicyDocument: {}
        - PolicyName: complete
          PolicyDocument: {}
`, Options{})
	require.Len(t, diags, 2)
	missing := at(diags, "Resources.R.Properties.Policies.0.PolicyName")
	require.Len(t, missing, 1)
	assert.Equal(t, RuleRequired, missing[0].Rule)
	assert.Contains(t, missing[0].Message, "required property PolicyName of AWS::IAM::Role.Policy is missing")

	omitted := at(diags, "Resources.R.Properties.Policies.1.PolicyName")
	require.Len(t, omitted, 1, "AWS::NoValue counts as not supplied")
	assert.Equal(t, RuleRequired, omitted[0].Rule)
}

func TestPropertiesIfBranchesCheckedSeparately(t *testing.T) {
	diags := lint(t, `
Conditions:
  C: !Equals [a, b]
Resources:
  L:
    Type: AWS::Lambda::Function
    Properties: !If
      - C
      - {Role: x, Code: {}}
      - {Code: {}}
`, Options{})
	required := withRule(diags, RuleRequired)
	require.Len(t, required, 1)
	assert.Equal(t, "Resources.L.Properties.Fn::If.2.Role", required[0].Path.String())
	assert.Empty(t, at(diags, "Resources.L.Properties.Fn::If.1.Role"))
}

func TestTransformFunctionsAreNotChecked(t *testing.T) {
	diags := lint(t, `
Resources:
  R:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument: {"Fn::Transform": {Name: AWS::Include, Parameters: {Location: s3://b/doc.json}}}
  B:
    Type: AWS::S3::Bucket
    Properties: !Transform {Name: BucketDefaults}
  Q:
    Type: AWS::SQS::Queue
    Properties:
      DelaySeconds: !Length [a, b]
      QueueName: {"Fn::ToJsonString": {a: 1}}
`, Options{})
	assert.Empty(t, diags)
}

func TestDuplicatedInvalidKeysReportedOnce(t *testing.T) {
	diags := lint(t, `
Foo: 1
Foo: 2
Parameters:
  P:
    Type: String
    Defualt: a
    Defualt: b
Resources:
  H:
    Type: AWS::CloudFormation::WaitConditionHandle
`, Options{})
	assert.Len(t, at(diags, "Foo"), 1)
	assert.Len(t, at(diags, "Parameters.P.Defualt"), 1)
	assert.Len(t, withRule(diags, RuleDuplicateKey), 2)
	assert.Len(t, diags, 4)
}
