// Package payload reads and writes schema payloads: lists of object types,
// each with its nested attribute types, encoded as JSON or YAML.
package payload

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/contentschema/internal/orm/schema"
)

// Format is a payload encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat converts a format name
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown payload format: %s", s)
	}
}

// FormatForPath picks the format from a file extension, defaulting to JSON
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Document is the top level of a payload
type Document struct {
	ObjectTypes []ObjectType `json:"object_types" yaml:"object_types"`
}

// ObjectType is the payload form of schema.ObjectType
type ObjectType struct {
	TypeID int `json:"type_id,omitempty" yaml:"type_id,omitempty"`
	// PreviousTypeID renumbers the stored type with that id
	PreviousTypeID        int         `json:"previous_type_id,omitempty" yaml:"previous_type_id,omitempty"`
	Name                  string      `json:"name" yaml:"name"`
	ExcludeFromVersioning bool        `json:"exclude_from_versioning,omitempty" yaml:"exclude_from_versioning,omitempty"`
	Attributes            []Attribute `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Attribute is the payload form of schema.AttributeType
type Attribute struct {
	Name string `json:"name" yaml:"name"`
	// PreviousName renames the stored attribute with that name
	PreviousName             string          `json:"previous_name,omitempty" yaml:"previous_name,omitempty"`
	Kind                     schema.DataKind `json:"kind" yaml:"kind"`
	Multivalue               bool            `json:"multivalue,omitempty" yaml:"multivalue,omitempty"`
	Optimized                bool            `json:"optimized,omitempty" yaml:"optimized,omitempty"`
	QuickColumnName          string          `json:"quick_column_name,omitempty" yaml:"quick_column_name,omitempty"`
	LinkedObjectTypeID       int             `json:"linked_object_type_id,omitempty" yaml:"linked_object_type_id,omitempty"`
	ForeignLinkAttributeName string          `json:"foreign_link_attribute_name,omitempty" yaml:"foreign_link_attribute_name,omitempty"`
	ForeignLinkRule          string          `json:"foreign_link_rule,omitempty" yaml:"foreign_link_rule,omitempty"`
	ExcludeFromVersioning    bool            `json:"exclude_from_versioning,omitempty" yaml:"exclude_from_versioning,omitempty"`
	ExternalStorage          bool            `json:"external_storage,omitempty" yaml:"external_storage,omitempty"`
}

// Decode reads a payload and converts it to object types
func Decode(r io.Reader, format Format) ([]*schema.ObjectType, error) {
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode json payload: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode yaml payload: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown payload format: %s", format)
	}
	return doc.Types()
}

// Encode writes object types as a payload
func Encode(w io.Writer, format Format, types []*schema.ObjectType) error {
	doc := NewDocument(types)
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown payload format: %s", format)
	}
}

// NewDocument converts object types to their payload form
func NewDocument(types []*schema.ObjectType) *Document {
	doc := &Document{ObjectTypes: make([]ObjectType, 0, len(types))}
	for _, t := range types {
		ot := ObjectType{
			TypeID:                t.TypeID,
			Name:                  t.Name,
			ExcludeFromVersioning: t.ExcludeFromVersioning,
		}
		for _, a := range t.Attributes() {
			ot.Attributes = append(ot.Attributes, Attribute{
				Name:                     a.Name,
				Kind:                     a.Kind,
				Multivalue:               a.Multivalue,
				Optimized:                a.Optimized,
				QuickColumnName:          a.QuickColumnName,
				LinkedObjectTypeID:       a.LinkedObjectTypeID,
				ForeignLinkAttributeName: a.ForeignLinkAttributeName,
				ForeignLinkRule:          a.ForeignLinkRule,
				ExcludeFromVersioning:    a.ExcludeFromVersioning,
				ExternalStorage:          a.ExternalStorage,
			})
		}
		doc.ObjectTypes = append(doc.ObjectTypes, ot)
	}
	return doc
}

// Types converts the document to never stored object types. Previous ids
// and names are carried over so the importer can resolve them.
func (d *Document) Types() ([]*schema.ObjectType, error) {
	types := make([]*schema.ObjectType, 0, len(d.ObjectTypes))
	for i, ot := range d.ObjectTypes {
		if ot.Name == "" {
			return nil, fmt.Errorf("object type %d: name is required", i)
		}

		t := schema.NewObjectType(ot.TypeID, ot.Name)
		t.PreviousTypeID = ot.PreviousTypeID
		t.ExcludeFromVersioning = ot.ExcludeFromVersioning

		for _, pa := range ot.Attributes {
			if pa.Name == "" {
				return nil, fmt.Errorf("object type %s: attribute name is required", ot.Name)
			}
			if _, dup := t.Attribute(pa.Name); dup {
				return nil, fmt.Errorf("object type %s: duplicate attribute %s", ot.Name, pa.Name)
			}
			a := &schema.AttributeType{
				Name:                     pa.Name,
				PreviousName:             pa.PreviousName,
				ObjectTypeID:             ot.TypeID,
				Kind:                     pa.Kind,
				Multivalue:               pa.Multivalue,
				Optimized:                pa.Optimized,
				QuickColumnName:          pa.QuickColumnName,
				LinkedObjectTypeID:       pa.LinkedObjectTypeID,
				ForeignLinkAttributeName: pa.ForeignLinkAttributeName,
				ForeignLinkRule:          pa.ForeignLinkRule,
				ExcludeFromVersioning:    pa.ExcludeFromVersioning,
				ExternalStorage:          pa.ExternalStorage,
			}
			if err := t.AddAttribute(a); err != nil {
				return nil, err
			}
		}
		types = append(types, t)
	}
	return types, nil
}
