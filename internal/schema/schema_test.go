package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTableCompiles(t *testing.T) {
	table, err := LoadFullTable()
	require.NoError(t, err)

	bucket, ok := table.Resource("AWS::S3::Bucket")
	require.True(t, ok)
	assert.True(t, bucket.Properties["BucketName"].Shape.Equal(Primitives(String)))
	assert.True(t, bucket.Properties["Tags"].Shape.Equal(Of(ListAtom(NamedAtom("Tag")))))
	assert.True(t, bucket.Properties["VersioningConfiguration"].Shape.Equal(
		Of(NamedAtom("AWS::S3::Bucket.VersioningConfiguration"))), "owner-relative names resolve first")

	fn, ok := table.Resource("AWS::Lambda::Function")
	require.True(t, ok)
	assert.Equal(t, []string{"Code", "Role"}, fn.RequiredProperties())
	assert.True(t, fn.Properties["Timeout"].Shape.Equal(Primitives(Number)), "Integer folds into Number")

	stack, ok := table.Resource("AWS::CloudFormation::Stack")
	require.True(t, ok)
	assert.True(t, stack.Properties["Parameters"].Shape.Equal(Primitives(Json)))

	vc, ok := table.Nested("AWS::S3::Bucket.VersioningConfiguration")
	require.True(t, ok)
	assert.Equal(t, []string{"Status"}, vc.RequiredProperties())

	_, ok = table.Resource("AWS::Nope::Thing")
	assert.False(t, ok)
	assert.Contains(t, table.ResourceTypeNames(), "AWS::SQS::Queue")
}

func TestCompileRejectsInconsistentDocuments(t *testing.T) {
	unknownNested := `{"ResourceTypes": {"X::Y::Z": {"Properties": {"P": {"Type": "Missing"}}}}}`
	d, err := ParseDocument([]byte(unknownNested))
	require.NoError(t, err)
	_, err = Compile(d)
	require.Error(t, err)
	assert.Equal(t, ErrInconsistent, errors.Cause(err))
	assert.Contains(t, err.Error(), "Missing")

	noShape := `{"ResourceTypes": {"X::Y::Z": {"Properties": {"P": {"Required": true}}}}}`
	d, err = ParseDocument([]byte(noShape))
	require.NoError(t, err)
	_, err = Compile(d)
	require.Error(t, err)
	assert.Equal(t, ErrInconsistent, errors.Cause(err))

	_, err = NewTable("1", []*ResourceTypeSpec{{
		Name:       "X::Y::Z",
		Properties: map[string]PropertySpec{"P": {Shape: Of(NamedAtom("Ghost"))}},
	}}, nil)
	assert.Equal(t, ErrInconsistent, errors.Cause(err))
}

func TestMergeAndLoad(t *testing.T) {
	dir := t.TempDir()
	extra := filepath.Join(dir, "extra.json")
	content := `{
  "ResourceSpecificationVersion": "99.0.0",
  "ResourceTypes": {
    "Acme::Widget::Thing": {"Properties": {"Size": {"PrimitiveType": "Integer", "Required": true}}},
    "AWS::S3::Bucket": {"Properties": {"ObjectLockEnabled": {"PrimitiveType": "Boolean"}}}
  }
}`
	require.NoError(t, os.WriteFile(extra, []byte(content), 0o644))

	table, err := LoadFullTable(extra)
	require.NoError(t, err)
	assert.Equal(t, "99.0.0", table.Version)

	widget, ok := table.Resource("Acme::Widget::Thing")
	require.True(t, ok)
	assert.Equal(t, []string{"Size"}, widget.RequiredProperties())

	bucket, _ := table.Resource("AWS::S3::Bucket")
	assert.Contains(t, bucket.Properties, "ObjectLockEnabled")
	assert.Contains(t, bucket.Properties, "BucketName", "merge keeps existing properties")

	_, err = LoadFullTable(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestShapeUnion(t *testing.T) {
	s := Union(Primitives(String, Number), Primitives(Number, Boolean), nil)
	assert.Equal(t, "String | Number | Boolean", s.String())

	assert.False(t, Union().Resolved())
	assert.False(t, Union(nil, nil).Resolved())
	assert.Nil(t, Of())
	assert.Equal(t, "unresolved", Shape(nil).String())

	assert.True(t, Primitives(String, Number).Equal(Primitives(Number, String)))
	assert.False(t, Primitives(String).Equal(Primitives(String, Number)))
}

func TestAtomIntersects(t *testing.T) {
	cases := []struct {
		a, b Atom
		want bool
	}{
		{PrimitiveAtom(Number), PrimitiveAtom(Long), true},
		{PrimitiveAtom(Double), PrimitiveAtom(Number), true},
		{PrimitiveAtom(String), PrimitiveAtom(Timestamp), true},
		{PrimitiveAtom(String), PrimitiveAtom(Number), false},
		{PrimitiveAtom(Boolean), PrimitiveAtom(String), false},
		{ListAtom(PrimitiveAtom(String)), ListAtom(PrimitiveAtom(String)), true},
		{ListAtom(PrimitiveAtom(String)), ListAtom(PrimitiveAtom(Number)), false},
		{ListAtom(PrimitiveAtom(String)), PrimitiveAtom(String), false},
		{NamedAtom("Tag"), NamedAtom("Tag"), true},
		{NamedAtom("Tag"), NamedAtom("Other"), false},
		{NamedAtom("Tag"), PrimitiveAtom(Json), true},
		{PrimitiveAtom(Json), NamedAtom("Tag"), true},
		{PrimitiveAtom(String), PrimitiveAtom(Json), true},
		{PrimitiveAtom(Json), PrimitiveAtom(Timestamp), true},
		{PrimitiveAtom(Number), PrimitiveAtom(Json), false},
		{ListAtom(PrimitiveAtom(String)), PrimitiveAtom(Json), true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.a.Intersects(tc.b), "%s ~ %s", tc.a, tc.b)
	}
	assert.True(t, Primitives(Boolean, Number).Intersects(PrimitiveAtom(Long)))
}
