package graph

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfncheck/cfncheck/internal/parser"
)

const template = `
Parameters:
  Env: {Type: String}
Resources:
  Logs:
    Type: AWS::S3::Bucket
    Properties:
      BucketName: !Sub "${Env}-${AWS::Region}-logs"
  Site:
    Type: AWS::S3::Bucket
    DependsOn: [Logs]
    Properties:
      BucketName: !Ref Env
      Tags:
        - Key: logs
          Value: !GetAtt Logs.Arn
        - Key: again
          Value: !GetAtt Logs.Arn
        - Key: unknown
          Value: !Ref Nowhere
        - Key: var
          Value: !Sub ["${x}", {x: !Ref Env}]
Outputs:
  SiteUrl:
    Value: !Sub "https://${Site.WebsiteURL}"
`

func build(t *testing.T) *Graph {
	t.Helper()
	tmpl, err := parser.Parse([]byte(template))
	require.NoError(t, err)
	return Build(tmpl.Root)
}

func TestBuild(t *testing.T) {
	g := build(t)

	require.Len(t, g.Nodes, 4)
	site, ok := g.Node("Site")
	require.True(t, ok)
	assert.Equal(t, ResourceNode, site.Kind)
	assert.Equal(t, "AWS::S3::Bucket", site.Type)
	env, _ := g.Node("Env")
	assert.Equal(t, ParameterNode, env.Kind)
	out, _ := g.Node("SiteUrl")
	assert.Equal(t, OutputNode, out.Kind)

	assert.Equal(t, []Edge{
		{From: "Logs", To: "Env", Kind: EdgeSub},
		{From: "Site", To: "Logs", Kind: EdgeDependsOn},
		{From: "Site", To: "Env", Kind: EdgeRef},
		{From: "Site", To: "Logs", Kind: EdgeGetAtt},
		{From: "SiteUrl", To: "Site", Kind: EdgeSub},
	}, g.Edges)
}

func TestMermaid(t *testing.T) {
	m := build(t).Mermaid()
	assert.Contains(t, m, "graph LR\n")
	assert.Contains(t, m, `n_Site["Site<br/>AWS::S3::Bucket"]`)
	assert.Contains(t, m, `n_Env("Env")`)
	assert.Contains(t, m, `n_SiteUrl(["SiteUrl"])`)
	assert.Contains(t, m, "n_Site -.->|DependsOn| n_Logs")
	assert.Contains(t, m, "n_Site -->|GetAtt| n_Logs")
}

func TestServer(t *testing.T) {
	srv := httptest.NewServer(NewServer("stack.yaml", build(t)).Handler())
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "stack.yaml")

	code, body = get("/graph")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "n_Site")

	code, _ = get("/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServerWithoutGraph(t *testing.T) {
	s := NewServer("empty", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graph", nil))
	assert.Contains(t, rec.Body.String(), "No resources")
}

func TestServerSetGraph(t *testing.T) {
	s := NewServer("stack.yaml", nil)
	body := func() string {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graph", nil))
		return rec.Body.String()
	}
	assert.Contains(t, body(), "No resources")

	s.SetGraph(build(t))
	assert.Contains(t, body(), "n_SiteUrl")
}
