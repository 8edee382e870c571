package lsp

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/cfncheck/cfncheck/internal/inference"
	"github.com/cfncheck/cfncheck/internal/logger"
	"github.com/cfncheck/cfncheck/internal/lsp/cache"
	"github.com/cfncheck/cfncheck/internal/schema"
	"github.com/cfncheck/cfncheck/internal/validator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type JsonRpcMessage struct {
	Jsonrpc string              `json:"jsonrpc"`
	Method  string              `json:"method,omitempty"`
	Params  jsoniter.RawMessage `json:"params,omitempty"`
	ID      any                 `json:"id,omitempty"`
	Result  any                 `json:"result,omitempty"`
	Error   *JsonRpcError       `json:"error,omitempty"`
}

// response is a success reply. Result is always present, null included.
type response struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result"`
}

type errorResponse struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Error   *JsonRpcError `json:"error"`
}

type JsonRpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

type InitializeParams struct {
	RootURI  string `json:"rootUri"`
	RootPath string `json:"rootPath"`
}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

type TextDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

type HoverParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

type Hover struct {
	Contents any `json:"contents"`
}

type MarkupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity"`
	Code     string `json:"code"`
	Source   string `json:"source"`
	Message  string `json:"message"`
}

type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Version     int          `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

const (
	severityError   = 1
	severityWarning = 2
)

// Server speaks LSP over a pair of streams. Documents are linted in full on
// every open and change; results are pushed with publishDiagnostics.
type Server struct {
	in      *bufio.Reader
	out     io.Writer
	writeMu sync.Mutex
	session *cache.Session
	exited  bool
}

func NewServer(in io.Reader, out io.Writer, table *schema.Table) *Server {
	return &Server{
		in:      bufio.NewReader(in),
		out:     out,
		session: cache.NewSession("lsp", table),
	}
}

// Run serves until the client sends exit or closes the input.
func (s *Server) Run() error {
	for !s.exited {
		msg, err := readMessage(s.in)
		if err != nil {
			if errors.Cause(err) == io.EOF {
				return nil
			}
			return err
		}
		s.handleMessage(msg)
	}
	return nil
}

func readMessage(reader *bufio.Reader) (*JsonRpcMessage, error) {
	contentLength := -1
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		if line == "\r\n" || line == "\n" {
			break
		}
		var n int
		if _, err := fmt.Sscanf(line, "Content-Length: %d", &n); err == nil {
			contentLength = n
		}
	}
	if contentLength < 0 {
		return nil, errors.New("message without Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(reader, body); err != nil {
		return nil, errors.Wrap(err, "reading message body")
	}

	var msg JsonRpcMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, errors.Wrap(err, "decoding message")
	}
	return &msg, nil
}

func (s *Server) handleMessage(msg *JsonRpcMessage) {
	switch msg.Method {
	case "initialize":
		var params InitializeParams
		_ = json.Unmarshal(msg.Params, &params)
		root := params.RootPath
		if params.RootURI != "" {
			root = cache.URIToPath(params.RootURI)
		}
		if root == "" {
			root = "/"
		}
		s.session.CreateView("default", root)
		s.respond(msg.ID, map[string]any{
			"capabilities": map[string]any{
				"textDocumentSync": 1, // Full sync
				"hoverProvider":    true,
			},
			"serverInfo": map[string]any{"name": "cfncheck"},
		})
	case "initialized":
	case "shutdown":
		s.respond(msg.ID, nil)
	case "exit":
		s.exited = true
	case "textDocument/didOpen":
		var params DidOpenTextDocumentParams
		if err := json.Unmarshal(msg.Params, &params); err == nil {
			s.update(params.TextDocument.URI, params.TextDocument.Version, params.TextDocument.Text)
		}
	case "textDocument/didChange":
		var params DidChangeTextDocumentParams
		if err := json.Unmarshal(msg.Params, &params); err == nil && len(params.ContentChanges) > 0 {
			text := params.ContentChanges[len(params.ContentChanges)-1].Text
			s.update(params.TextDocument.URI, params.TextDocument.Version, text)
		}
	case "textDocument/didClose":
		var params DidCloseTextDocumentParams
		if err := json.Unmarshal(msg.Params, &params); err == nil {
			if v := s.view(params.TextDocument.URI); v != nil {
				v.Close(params.TextDocument.URI)
			}
			s.notify("textDocument/publishDiagnostics", PublishDiagnosticsParams{
				URI:         params.TextDocument.URI,
				Diagnostics: []Diagnostic{},
			})
		}
	case "textDocument/hover":
		var params HoverParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			s.respondError(msg.ID, codeInvalidParams, err.Error())
			return
		}
		if res := s.hover(params); res != nil {
			s.respond(msg.ID, res)
			return
		}
		s.respond(msg.ID, nil)
	default:
		if msg.ID != nil {
			s.respondError(msg.ID, codeMethodNotFound, "method not supported: "+msg.Method)
		}
	}
}

func (s *Server) view(uri string) *cache.View {
	v := s.session.ViewOf(uri)
	if v == nil {
		v = s.session.CreateView("default", "/")
	}
	return v
}

func (s *Server) update(uri string, version int, text string) {
	doc := s.view(uri).Update(uri, version, text)
	if doc.Err != nil {
		logger.Warnf("linting %s: %v", uri, doc.Err)
		return
	}
	logger.Debugf("linted %s version %d: %d diagnostics", uri, doc.Version, len(doc.Result.Diagnostics))
	s.notify("textDocument/publishDiagnostics", PublishDiagnosticsParams{
		URI:         uri,
		Version:     doc.Version,
		Diagnostics: toLSP(doc.Text, doc.Result.Diagnostics),
	})
}

func toLSP(text string, diags []validator.Diagnostic) []Diagnostic {
	lines := strings.Split(text, "\n")
	out := make([]Diagnostic, 0, len(diags))
	for _, d := range diags {
		severity := severityError
		if d.Level == validator.LevelWarning {
			severity = severityWarning
		}
		msg := d.Message
		if p := d.Path.String(); p != "" {
			msg = p + ": " + msg
		}
		out = append(out, Diagnostic{
			Range:    tokenRange(lines, d.Position.Line, d.Position.Column),
			Severity: severity,
			Code:     d.Rule,
			Source:   "cfncheck",
			Message:  msg,
		})
	}
	return out
}

// tokenRange converts a 1-based position into a 0-based range spanning the
// token that starts there.
func tokenRange(lines []string, line, col int) Range {
	if line < 1 {
		line = 1
	}
	if col < 1 {
		col = 1
	}
	start := Position{Line: line - 1, Character: col - 1}
	end := start
	if line-1 < len(lines) {
		text := lines[line-1]
		i := col - 1
		for i < len(text) && !strings.ContainsRune(" \t\r:,]}", rune(text[i])) {
			i++
		}
		end.Character = i
	}
	if end.Character <= start.Character {
		end.Character = start.Character + 1
	}
	return Range{Start: start, End: end}
}

// hover describes the intrinsic call nearest to the left of the cursor on
// its line, with the type inferred for it.
func (s *Server) hover(params HoverParams) *Hover {
	doc, ok := s.view(params.TextDocument.URI).Snapshot().Document(params.TextDocument.URI)
	if !ok || doc.Result == nil {
		return nil
	}
	line := params.Position.Line + 1
	col := params.Position.Character + 1

	var best *inference.Record
	for i := range doc.Result.Calls {
		r := &doc.Result.Calls[i]
		if r.Position.Line != line || r.Position.Column > col {
			continue
		}
		if best == nil || r.Position.Column > best.Position.Column {
			best = r
		}
	}
	if best == nil {
		return nil
	}

	content := fmt.Sprintf("**%s** at `%s`\n\n", best.Call.Name(), best.Path)
	if best.Shape.Resolved() {
		content += fmt.Sprintf("Type: `%s`", best.Shape)
	} else {
		content += "Type: unresolved"
	}
	return &Hover{Contents: MarkupContent{Kind: "markdown", Value: content}}
}

func (s *Server) respond(id any, result any) {
	s.send(response{Jsonrpc: "2.0", ID: id, Result: result})
}

func (s *Server) respondError(id any, code int, message string) {
	s.send(errorResponse{Jsonrpc: "2.0", ID: id, Error: &JsonRpcError{Code: code, Message: message}})
}

func (s *Server) notify(method string, params any) {
	raw, err := json.Marshal(params)
	if err != nil {
		logger.Warnf("encoding %s: %v", method, err)
		return
	}
	s.send(JsonRpcMessage{Jsonrpc: "2.0", Method: method, Params: raw})
}

func (s *Server) send(msg any) {
	body, err := json.Marshal(msg)
	if err != nil {
		logger.Warnf("encoding response: %v", err)
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	fmt.Fprintf(s.out, "Content-Length: %d\r\n\r\n%s", len(body), body)
}
