package document

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	ddf "github.com/beetlebugorg/iso8211/pkg/iso8211"
)

// Export reads every data record of m from the first one on.
func Export(m *ddf.Module) (*Document, error) {
	doc := &Document{
		Leader: Leader{
			InterchangeLevel:       string(m.InterchangeLevel()),
			LeaderIden:             string(m.LeaderIden()),
			CodeExtensionIndicator: string(m.CodeExtensionIndicator()),
			VersionNumber:          string(m.VersionNumber()),
			AppIndicator:           string(m.AppIndicator()),
			ExtendedCharSet:        m.ExtendedCharSet(),
			SizeFieldLength:        m.SizeFieldLength(),
			SizeFieldPos:           m.SizeFieldPos(),
			SizeFieldTag:           m.SizeFieldTag(),
		},
	}
	for _, d := range m.FieldDefns() {
		doc.Fields = append(doc.Fields, FieldDef{
			Tag:            d.Tag(),
			Name:           d.Name(),
			Struct:         d.DataStructCode().String(),
			Type:           d.DataTypeCode().String(),
			ArrayDescr:     d.ArrayDescr(),
			FormatControls: d.FormatControls(),
		})
	}

	if err := m.Rewind(); err != nil {
		return nil, err
	}
	for {
		rec, err := m.ReadRecord()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(doc.Records), err)
		}
		out := Record{
			Offset:      rec.Offset(),
			ReuseLeader: rec.ReuseHeader() && !rec.DataOnly(),
		}
		for _, f := range rec.Fields() {
			field, err := exportField(f)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", len(doc.Records), err)
			}
			out.Fields = append(out.Fields, field)
		}
		doc.Records = append(doc.Records, out)
	}
	return doc, nil
}

func exportField(f *ddf.Field) (Field, error) {
	defn := f.Defn()
	out := Field{Tag: f.Tag()}

	if defn.SubfieldCount() == 0 {
		raw := f.Data()
		if n := len(raw); n > 0 && raw[n-1] == ddf.FieldTerminator {
			raw = raw[:n-1]
		}
		if printable(raw) {
			s := string(raw)
			out.Raw = &s
		} else {
			out.Hex = hex.EncodeToString(raw)
		}
		return out, nil
	}

	for i := 0; i < f.RepeatCount(); i++ {
		inst := make(map[string]any, defn.SubfieldCount())
		for _, sf := range defn.Subfields() {
			data, err := f.SubfieldData(sf, i)
			if err != nil {
				return out, err
			}
			inst[sf.Name()] = exportValue(sf, data)
		}
		out.Instances = append(out.Instances, inst)
	}
	return out, nil
}

func exportValue(sf *ddf.SubfieldDefn, data []byte) any {
	switch sf.Type() {
	case ddf.DataTypeInt:
		v, _ := sf.ExtractIntData(data)
		return v
	case ddf.DataTypeFloat:
		v, _ := sf.ExtractFloatData(data)
		return v
	case ddf.DataTypeBinaryString:
		v, _ := sf.ExtractStringData(data)
		return hex.EncodeToString([]byte(v))
	default:
		v, _ := sf.ExtractStringData(data)
		return v
	}
}

func printable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, c := range b {
		if c < 0x20 && c != '\t' && c != '\n' {
			return false
		}
	}
	return true
}
