package parser

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const noValue = "AWS::NoValue"

type Parser struct {
	content     []byte
	duplicates  []Duplicate
	unknownTags []UnknownTag
}

func NewParser(content []byte) *Parser {
	return &Parser{content: content}
}

// Parse reads a YAML or JSON template. Intrinsic functions written either as
// single-key maps or as tags become *Call nodes.
func (p *Parser) Parse() (*Template, error) {
	content := p.content
	if looksLikeJSON(content) {
		// Raw tabs cannot occur inside valid JSON strings, only as whitespace,
		// which the YAML scanner rejects in some positions.
		content = bytes.ReplaceAll(content, []byte("\t"), []byte(" "))
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing template")
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, errors.New("parsing template: document is empty")
	}

	root := p.convert(doc.Content[0], false)
	return &Template{
		Root:        root,
		Duplicates:  p.duplicates,
		UnknownTags: p.unknownTags,
	}, nil
}

// Parse is a shorthand for NewParser(content).Parse().
func Parse(content []byte) (*Template, error) {
	return NewParser(content).Parse()
}

func looksLikeJSON(content []byte) bool {
	trimmed := bytes.TrimSpace(content)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

func position(n *yaml.Node) Position {
	return Position{Line: n.Line, Column: n.Column}
}

func isCustomTag(tag string) bool {
	return strings.HasPrefix(tag, "!") && !strings.HasPrefix(tag, "!!")
}

// convert builds a Value from a YAML node. logical is set while converting the
// arguments of And/Or/Not, the only place {"Condition": x} is a function.
func (p *Parser) convert(n *yaml.Node, logical bool) Value {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		return p.convert(n.Alias, logical)
	}
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return p.convert(n.Content[0], logical)
	}

	if isCustomTag(n.Tag) {
		kind, ok := LookupTag(n.Tag)
		if !ok {
			if name, ok := externalTag(n.Tag); ok {
				return &Map{Position: position(n), Entries: []Entry{{
					Key:    name,
					KeyPos: position(n),
					Value:  p.convertPlain(n, false, true),
				}}}
			}
			p.unknownTags = append(p.unknownTags, UnknownTag{Position: position(n), Tag: n.Tag})
			return p.convertPlain(n, logical, true)
		}
		args := p.convertPlain(n, kind.Logical(), true)
		return newCall(kind, args, true, position(n))
	}
	return p.convertPlain(n, logical, false)
}

func (p *Parser) convertPlain(n *yaml.Node, logical, tagged bool) Value {
	switch n.Kind {
	case yaml.ScalarNode:
		return scalarOf(n, tagged)
	case yaml.SequenceNode:
		l := &List{Position: position(n), Elements: make([]Value, 0, len(n.Content))}
		for _, c := range n.Content {
			l.Elements = append(l.Elements, p.convert(c, logical))
		}
		return l
	case yaml.MappingNode:
		return p.convertMapping(n, logical)
	case yaml.AliasNode:
		if n.Alias != nil {
			return p.convertPlain(n.Alias, logical, tagged)
		}
	}
	return &Scalar{Position: position(n), Kind: NullScalar}
}

func (p *Parser) convertMapping(n *yaml.Node, logical bool) Value {
	if len(n.Content) == 2 {
		key := n.Content[0].Value
		if kind, ok := LookupKind(key); ok && (kind != KindCondition || logical) {
			args := p.convert(n.Content[1], kind.Logical())
			return newCall(kind, args, false, position(n))
		}
	}

	m := &Map{Position: position(n), Entries: make([]Entry, 0, len(n.Content)/2)}
	seen := make(map[string]bool, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if seen[k.Value] {
			p.duplicates = append(p.duplicates, Duplicate{Position: position(k), Key: k.Value})
		}
		seen[k.Value] = true
		m.Entries = append(m.Entries, Entry{
			Key:    k.Value,
			KeyPos: position(k),
			Value:  p.convert(v, false),
		})
	}
	return m
}

// scalarOf classifies a scalar the way YAML resolves it untagged, so that
// "!Ref 5" and {"Ref": 5} carry the same number. An empty tagged scalar such
// as a bare "!GetAZs" is the empty string.
func scalarOf(n *yaml.Node, tagged bool) *Scalar {
	s := &Scalar{Position: position(n), Kind: StringScalar, Text: n.Value}
	if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) != 0 {
		return s
	}
	tag := n.ShortTag()
	if tagged {
		if n.Value == "" {
			return s
		}
		plain := *n
		plain.Tag = ""
		tag = plain.ShortTag()
	}
	switch tag {
	case "!!int", "!!float":
		s.Kind = NumberScalar
	case "!!bool":
		s.Kind = BoolScalar
	case "!!null":
		s.Kind = NullScalar
	}
	return s
}

// newCall normalises the argument encodings that differ between the two
// surface syntaxes, so both produce identical calls.
func newCall(kind Kind, args Value, tagged bool, pos Position) Value {
	switch kind {
	case KindRef:
		if name, ok := AsString(args); ok && name == noValue {
			return &Absent{Position: pos, Tagged: tagged}
		}
	case KindGetAtt:
		if s, ok := args.(*Scalar); ok && s.Kind == StringScalar {
			if i := strings.Index(s.Text, "."); i != -1 {
				args = &List{Position: s.Position, Elements: []Value{
					&Scalar{Position: s.Position, Kind: StringScalar, Text: s.Text[:i]},
					&Scalar{Position: s.Position, Kind: StringScalar, Text: s.Text[i+1:]},
				}}
			}
		}
	}
	return &Call{Position: pos, Kind: kind, Args: args, Tagged: tagged}
}
