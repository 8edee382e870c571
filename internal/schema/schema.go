package schema

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

//go:embed cfn_spec.json
var defaultSpecJSON []byte

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Document is a CloudFormation resource specification as published for each
// region. Property type keys are "<ResourceType>.<Name>" or a bare global name
// such as "Tag".
type Document struct {
	ResourceSpecificationVersion string                      `json:"ResourceSpecificationVersion"`
	ResourceTypes                map[string]*ResourceTypeDef `json:"ResourceTypes"`
	PropertyTypes                map[string]*PropertyTypeDef `json:"PropertyTypes"`
}

type ResourceTypeDef struct {
	Documentation string                   `json:"Documentation,omitempty"`
	Attributes    map[string]*AttributeDef `json:"Attributes,omitempty"`
	Properties    map[string]*PropertyDef  `json:"Properties"`
}

type PropertyTypeDef struct {
	Documentation string                  `json:"Documentation,omitempty"`
	Properties    map[string]*PropertyDef `json:"Properties,omitempty"`
	TypeDef
}

type PropertyDef struct {
	Documentation string `json:"Documentation,omitempty"`
	Required      bool   `json:"Required"`
	UpdateType    string `json:"UpdateType,omitempty"`
	TypeDef
}

type AttributeDef struct {
	TypeDef
}

type TypeDef struct {
	PrimitiveType     string `json:"PrimitiveType,omitempty"`
	Type              string `json:"Type,omitempty"`
	ItemType          string `json:"ItemType,omitempty"`
	PrimitiveItemType string `json:"PrimitiveItemType,omitempty"`
}

func NewDocument() *Document {
	return &Document{
		ResourceTypes: make(map[string]*ResourceTypeDef),
		PropertyTypes: make(map[string]*PropertyTypeDef),
	}
}

func ParseDocument(content []byte) (*Document, error) {
	d := NewDocument()
	if err := json.Unmarshal(content, d); err != nil {
		return nil, errors.Wrap(err, "failed to parse specification")
	}
	if d.ResourceTypes == nil {
		d.ResourceTypes = make(map[string]*ResourceTypeDef)
	}
	if d.PropertyTypes == nil {
		d.PropertyTypes = make(map[string]*PropertyTypeDef)
	}
	return d, nil
}

func LoadDocument(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading specification %s", path)
	}
	d, err := ParseDocument(content)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", filepath.Base(path))
	}
	return d, nil
}

// DefaultDocument returns the built-in embedded specification.
func DefaultDocument() *Document {
	d, err := ParseDocument(defaultSpecJSON)
	if err != nil {
		panic(fmt.Sprintf("failed to parse default embedded specification: %v", err))
	}
	return d
}

// Merge adds types from 'other' to 'd'.
// Types present in both are merged property by property, 'other' winning.
func (d *Document) Merge(other *Document) {
	if other == nil {
		return
	}
	if other.ResourceSpecificationVersion != "" {
		d.ResourceSpecificationVersion = other.ResourceSpecificationVersion
	}
	for name, def := range other.ResourceTypes {
		existing, ok := d.ResourceTypes[name]
		if !ok {
			d.ResourceTypes[name] = def
			continue
		}
		if existing.Properties == nil {
			existing.Properties = make(map[string]*PropertyDef)
		}
		for p, pd := range def.Properties {
			existing.Properties[p] = pd
		}
		if existing.Attributes == nil {
			existing.Attributes = make(map[string]*AttributeDef)
		}
		for a, ad := range def.Attributes {
			existing.Attributes[a] = ad
		}
	}
	for name, def := range other.PropertyTypes {
		existing, ok := d.PropertyTypes[name]
		if !ok || def.Properties == nil || existing.Properties == nil {
			d.PropertyTypes[name] = def
			continue
		}
		for p, pd := range def.Properties {
			existing.Properties[p] = pd
		}
	}
}

// LoadFullTable compiles the embedded specification merged with every extra
// document, in order.
func LoadFullTable(paths ...string) (*Table, error) {
	d := DefaultDocument()
	for _, path := range paths {
		extra, err := LoadDocument(path)
		if err != nil {
			return nil, err
		}
		d.Merge(extra)
	}
	return Compile(d)
}
