package lsp

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfncheck/cfncheck/internal/schema"
)

func frame(t *testing.T, msgs ...map[string]any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, m := range msgs {
		m["jsonrpc"] = "2.0"
		body, err := json.Marshal(m)
		require.NoError(t, err)
		fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n%s", len(body), body)
	}
	return &buf
}

func run(t *testing.T, msgs ...map[string]any) []*JsonRpcMessage {
	t.Helper()
	table, err := schema.LoadFullTable()
	require.NoError(t, err)

	var out bytes.Buffer
	srv := NewServer(frame(t, msgs...), &out, table)
	require.NoError(t, srv.Run())

	var replies []*JsonRpcMessage
	r := bufio.NewReader(&out)
	for {
		msg, err := readMessage(r)
		if err != nil {
			break
		}
		replies = append(replies, msg)
	}
	return replies
}

func initialize(root string) map[string]any {
	return map[string]any{"id": 1, "method": "initialize", "params": map[string]any{"rootPath": root}}
}

func open(uri, text string) map[string]any {
	return map[string]any{"method": "textDocument/didOpen", "params": map[string]any{
		"textDocument": map[string]any{"uri": uri, "languageId": "yaml", "version": 1, "text": text},
	}}
}

func published(t *testing.T, replies []*JsonRpcMessage) []PublishDiagnosticsParams {
	t.Helper()
	var out []PublishDiagnosticsParams
	for _, m := range replies {
		if m.Method != "textDocument/publishDiagnostics" {
			continue
		}
		var p PublishDiagnosticsParams
		require.NoError(t, json.Unmarshal(m.Params, &p))
		out = append(out, p)
	}
	return out
}

const stack = `Resources:
  Bucket:
    Type: AWS::S3::Bucket
    Properties:
      BucketNme: logs
  Topic:
    Type: AWS::SNS::Topic
    Properties:
      TopicName: !GetAtt Bucket.Arn
`

func TestInitialize(t *testing.T) {
	replies := run(t, initialize(t.TempDir()), map[string]any{"method": "exit"})
	require.Len(t, replies, 1)
	assert.EqualValues(t, 1, replies[0].ID)
	caps := replies[0].Result.(map[string]any)["capabilities"].(map[string]any)
	assert.Equal(t, true, caps["hoverProvider"])
}

func TestPublishDiagnostics(t *testing.T) {
	root := t.TempDir()
	uri := "file://" + root + "/stack.yaml"
	replies := run(t, initialize(root), open(uri, stack))

	pubs := published(t, replies)
	require.Len(t, pubs, 1)
	assert.Equal(t, uri, pubs[0].URI)
	require.Len(t, pubs[0].Diagnostics, 1)

	d := pubs[0].Diagnostics[0]
	assert.Equal(t, "invalid-property", d.Code)
	assert.Equal(t, severityError, d.Severity)
	assert.Equal(t, "cfncheck", d.Source)
	assert.Contains(t, d.Message, "did you mean 'BucketName'?")
	assert.Equal(t, Range{Start: Position{Line: 4, Character: 6}, End: Position{Line: 4, Character: 15}}, d.Range)
}

func TestChangeAndClose(t *testing.T) {
	root := t.TempDir()
	uri := "file://" + root + "/stack.yaml"
	fixed := strings.Replace(stack, "BucketNme", "BucketName", 1)
	replies := run(t,
		initialize(root),
		open(uri, stack),
		map[string]any{"method": "textDocument/didChange", "params": map[string]any{
			"textDocument":   map[string]any{"uri": uri, "version": 2},
			"contentChanges": []any{map[string]any{"text": fixed}},
		}},
		map[string]any{"method": "textDocument/didClose", "params": map[string]any{
			"textDocument": map[string]any{"uri": uri},
		}},
	)

	pubs := published(t, replies)
	require.Len(t, pubs, 3)
	assert.Len(t, pubs[0].Diagnostics, 1)
	assert.Empty(t, pubs[1].Diagnostics)
	assert.Equal(t, 2, pubs[1].Version)
	assert.Empty(t, pubs[2].Diagnostics)
}

func TestHoverShowsInferredType(t *testing.T) {
	root := t.TempDir()
	uri := "file://" + root + "/stack.yaml"
	replies := run(t,
		initialize(root),
		open(uri, stack),
		map[string]any{"id": 2, "method": "textDocument/hover", "params": map[string]any{
			"textDocument": map[string]any{"uri": uri},
			"position":     map[string]any{"line": 8, "character": 25},
		}},
		map[string]any{"id": 3, "method": "textDocument/hover", "params": map[string]any{
			"textDocument": map[string]any{"uri": uri},
			"position":     map[string]any{"line": 0, "character": 0},
		}},
	)

	var hovers []*JsonRpcMessage
	for _, m := range replies {
		if m.ID != nil && m.Method == "" {
			hovers = append(hovers, m)
		}
	}
	require.Len(t, hovers, 3)
	contents := hovers[1].Result.(map[string]any)["contents"].(map[string]any)
	assert.Equal(t, "markdown", contents["kind"])
	assert.Contains(t, contents["value"], "!GetAtt")
	assert.Contains(t, contents["value"], "Type: `String`")
	assert.Nil(t, hovers[2].Result)
}

func TestNullResultIsSent(t *testing.T) {
	table, err := schema.LoadFullTable()
	require.NoError(t, err)

	var out bytes.Buffer
	in := frame(t,
		map[string]any{"id": 4, "method": "textDocument/hover", "params": map[string]any{
			"textDocument": map[string]any{"uri": "file:///none.yaml"},
			"position":     map[string]any{"line": 0, "character": 0},
		}},
		map[string]any{"id": 5, "method": "shutdown"},
	)
	require.NoError(t, NewServer(in, &out, table).Run())

	raw := out.String()
	assert.Contains(t, raw, `{"jsonrpc":"2.0","id":4,"result":null}`)
	assert.Contains(t, raw, `{"jsonrpc":"2.0","id":5,"result":null}`)
	assert.NotContains(t, raw, `"error"`)
}

func TestUnknownMethod(t *testing.T) {
	replies := run(t, map[string]any{"id": 7, "method": "workspace/symbol"})
	require.Len(t, replies, 1)
	require.NotNil(t, replies[0].Error)
	assert.Equal(t, codeMethodNotFound, replies[0].Error.Code)
}

func TestTokenRange(t *testing.T) {
	lines := []string{"Resources:", "  A: {Type: X}"}
	assert.Equal(t, Range{Start: Position{Line: 1, Character: 2}, End: Position{Line: 1, Character: 3}},
		tokenRange(lines, 2, 3))
	assert.Equal(t, Range{Start: Position{Line: 9, Character: 0}, End: Position{Line: 9, Character: 1}},
		tokenRange(lines, 10, 0))
}
