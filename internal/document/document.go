// Package document maps a whole ISO 8211 file to a YAML document and back:
// the DDR leader, every field definition and every data record with its
// decoded subfield values.
package document

import (
	"fmt"
	"io"

	ddf "github.com/beetlebugorg/iso8211/pkg/iso8211"
	"gopkg.in/yaml.v3"
)

// Document is the YAML form of an ISO 8211 file.
type Document struct {
	Leader  Leader     `yaml:"leader"`
	Fields  []FieldDef `yaml:"fields"`
	Records []Record   `yaml:"records"`
}

// Leader holds the DDR leader values. Single characters are kept as
// one-character strings.
type Leader struct {
	InterchangeLevel       string `yaml:"interchange_level"`
	LeaderIden             string `yaml:"leader_iden"`
	CodeExtensionIndicator string `yaml:"code_extension"`
	VersionNumber          string `yaml:"version"`
	AppIndicator           string `yaml:"app_indicator"`
	ExtendedCharSet        string `yaml:"extended_charset"`
	SizeFieldLength        int    `yaml:"size_field_length"`
	SizeFieldPos           int    `yaml:"size_field_pos"`
	SizeFieldTag           int    `yaml:"size_field_tag"`
}

// FieldDef is one field definition of the DDR.
type FieldDef struct {
	Tag            string `yaml:"tag"`
	Name           string `yaml:"name"`
	Struct         string `yaml:"struct"`
	Type           string `yaml:"type"`
	ArrayDescr     string `yaml:"array_descr,omitempty"`
	FormatControls string `yaml:"format_controls,omitempty"`
}

// Record is one data record.
type Record struct {
	Offset      int64   `yaml:"offset,omitempty"`
	ReuseLeader bool    `yaml:"reuse_leader,omitempty"`
	Fields      []Field `yaml:"fields"`
}

// Field is one field occurrence. Fields with subfields carry Instances,
// one map of subfield name to value per subfield group. Fields without
// subfields carry their bytes in Raw, or in Hex when they are not
// printable text.
type Field struct {
	Tag       string           `yaml:"tag"`
	Instances []map[string]any `yaml:"instances,omitempty"`
	Raw       *string          `yaml:"raw,omitempty"`
	Hex       string           `yaml:"hex,omitempty"`
}

// Decode reads a document from YAML.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

// Encode writes the document as YAML.
func (d *Document) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return enc.Close()
}

var structCodes = codeTable(ddf.Elementary, ddf.Vector, ddf.Array, ddf.Concatenated)

var typeCodes = codeTable(ddf.CharString, ddf.ImplicitPoint, ddf.ExplicitPoint,
	ddf.ExplicitPointScaled, ddf.CharBitString, ddf.BitString, ddf.MixedDataType)

func codeTable[T fmt.Stringer](codes ...T) map[string]T {
	m := make(map[string]T, len(codes))
	for _, c := range codes {
		m[c.String()] = c
	}
	return m
}

// defn builds the engine definition for a FieldDef.
func (f FieldDef) defn() (*ddf.FieldDefn, error) {
	sc, ok := structCodes[f.Struct]
	if !ok {
		return nil, fmt.Errorf("field %s: unknown struct %q", f.Tag, f.Struct)
	}
	tc, ok := typeCodes[f.Type]
	if !ok {
		return nil, fmt.Errorf("field %s: unknown type %q", f.Tag, f.Type)
	}
	return ddf.NewFieldDefn(f.Tag, f.Name, f.ArrayDescr, sc, tc, f.FormatControls)
}
