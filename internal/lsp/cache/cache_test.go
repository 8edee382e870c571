package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfncheck/cfncheck/internal/schema"
	"github.com/cfncheck/cfncheck/internal/validator"
)

const bucket = `Resources:
  B:
    Type: AWS::S3::Bucket
    Properties:
      BucketNme: x
`

func session(t *testing.T) *Session {
	t.Helper()
	table, err := schema.LoadFullTable()
	require.NoError(t, err)
	return NewSession("test", table)
}

func TestViewOfPicksLongestRoot(t *testing.T) {
	s := session(t)
	assert.Nil(t, s.ViewOf("file:///a/b.yaml"))

	outer := s.CreateViewWithOptions("outer", "/work", validator.Options{})
	inner := s.CreateViewWithOptions("inner", "/work/stacks", validator.Options{})

	assert.Same(t, inner, s.ViewOf("file:///work/stacks/app.yaml"))
	assert.Same(t, outer, s.ViewOf("file:///work/other.yaml"))
	assert.Same(t, outer, s.ViewOf("file:///elsewhere.yaml"))
}

func TestUpdateKeepsNewestVersion(t *testing.T) {
	v := session(t).CreateViewWithOptions("v", "/", validator.Options{})
	uri := "file:///stack.yaml"

	before := v.Snapshot()
	doc := v.Update(uri, 2, bucket)
	require.NoError(t, doc.Err)
	assert.Len(t, doc.Result.Diagnostics, 1)

	_, ok := before.Document(uri)
	assert.False(t, ok, "earlier snapshots are not modified")

	stale := v.Update(uri, 1, "Resources: {}")
	assert.Same(t, doc, stale)

	v.Close(uri)
	_, ok = v.Snapshot().Document(uri)
	assert.False(t, ok)
}

func TestViewOptionsApply(t *testing.T) {
	v := session(t).CreateViewWithOptions("v", "/", validator.Options{DisabledRules: []string{validator.RuleInvalidProperty}})
	doc := v.Update("file:///stack.yaml", 1, bucket)
	require.NoError(t, doc.Err)
	assert.Empty(t, doc.Result.Diagnostics)
}
