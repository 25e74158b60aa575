package document

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	ddf "github.com/beetlebugorg/iso8211/pkg/iso8211"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// CreateFile writes the document as a new ISO 8211 file at path.
func CreateFile(path string, doc *Document, log *zap.Logger) (err error) {
	m, err := ddf.CreateWithOptions(path, ddf.OpenOptions{Logger: log})
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, m.Close())
	}()
	return Write(m, doc)
}

// Write authors doc on a freshly created module. The module is not closed.
func Write(m *ddf.Module, doc *Document) error {
	params, err := doc.Leader.params()
	if err != nil {
		return err
	}
	if err := m.Initialize(params); err != nil {
		return err
	}

	for _, fd := range doc.Fields {
		defn, err := fd.defn()
		if err != nil {
			return err
		}
		if err := m.AddField(defn); err != nil {
			return err
		}
	}

	for i, r := range doc.Records {
		if err := writeRecord(m, r); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

func (l Leader) params() (ddf.LeaderParams, error) {
	p := ddf.DefaultLeaderParams()
	chars := []struct {
		name  string
		value string
		dst   *byte
	}{
		{"interchange_level", l.InterchangeLevel, &p.InterchangeLevel},
		{"leader_iden", l.LeaderIden, &p.LeaderIden},
		{"code_extension", l.CodeExtensionIndicator, &p.CodeExtensionIndicator},
		{"version", l.VersionNumber, &p.VersionNumber},
		{"app_indicator", l.AppIndicator, &p.AppIndicator},
	}
	for _, c := range chars {
		switch len(c.value) {
		case 0:
		case 1:
			*c.dst = c.value[0]
		default:
			return p, fmt.Errorf("leader %s: want one character, got %q", c.name, c.value)
		}
	}
	if l.ExtendedCharSet != "" {
		if len(l.ExtendedCharSet) != 3 {
			return p, fmt.Errorf("leader extended_charset: want three characters, got %q", l.ExtendedCharSet)
		}
		p.ExtendedCharSet = l.ExtendedCharSet
	}
	if l.SizeFieldLength != 0 {
		p.SizeFieldLength = l.SizeFieldLength
	}
	if l.SizeFieldPos != 0 {
		p.SizeFieldPos = l.SizeFieldPos
	}
	if l.SizeFieldTag != 0 {
		p.SizeFieldTag = l.SizeFieldTag
	}
	return p, nil
}

func writeRecord(m *ddf.Module, r Record) error {
	rec := ddf.NewRecord(m)
	occurrences := make(map[string]int)

	for _, fd := range r.Fields {
		defn := m.FindFieldDefn(fd.Tag)
		if defn == nil {
			return fmt.Errorf("%w: %q is not defined", ddf.ErrFieldNotFound, fd.Tag)
		}
		f, err := rec.AddField(defn)
		if err != nil {
			return err
		}
		occurrence := occurrences[fd.Tag]
		occurrences[fd.Tag]++

		if defn.SubfieldCount() == 0 {
			if err := setRaw(rec, f, fd); err != nil {
				return err
			}
			continue
		}
		if fd.Raw != nil || fd.Hex != "" {
			return fmt.Errorf("field %s has subfields, raw bytes are not accepted", fd.Tag)
		}
		if defn.IsRepeating() && len(fd.Instances) == 0 {
			// no instances: the field is only its terminator
			if err := setRaw(rec, f, Field{Tag: fd.Tag}); err != nil {
				return err
			}
			continue
		}
		for i, inst := range fd.Instances {
			if err := setInstance(rec, defn, occurrence, i, inst); err != nil {
				return err
			}
		}
	}
	rec.SetReuseHeader(r.ReuseLeader)
	return rec.Write()
}

func setRaw(rec *ddf.Record, f *ddf.Field, fd Field) error {
	var raw []byte
	switch {
	case fd.Raw != nil:
		raw = []byte(*fd.Raw)
	case fd.Hex != "":
		b, err := hex.DecodeString(fd.Hex)
		if err != nil {
			return fmt.Errorf("field %s: %w", fd.Tag, err)
		}
		raw = b
	}
	img := append(raw, ddf.FieldTerminator)
	if err := rec.ResizeField(f, len(img)); err != nil {
		return err
	}
	copy(f.Data(), img)
	return nil
}

func setInstance(rec *ddf.Record, defn *ddf.FieldDefn, occurrence, instance int, values map[string]any) error {
	for name := range values {
		if defn.FindSubfieldDefn(name) == nil {
			return fmt.Errorf("%w: %s.%s", ddf.ErrSubfieldNotFound, defn.Tag(), name)
		}
	}
	tag := defn.Tag()
	for _, sf := range defn.Subfields() {
		v, ok := values[sf.Name()]
		if !ok {
			if instance == 0 {
				continue // default instance already in place
			}
			v = zeroValue(sf)
		}
		var err error
		switch sf.Type() {
		case ddf.DataTypeInt:
			var n int
			if n, err = toInt(v); err == nil {
				err = rec.SetIntSubfield(tag, occurrence, sf.Name(), instance, n)
			}
		case ddf.DataTypeFloat:
			var x float64
			if x, err = toFloat(v); err == nil {
				err = rec.SetFloatSubfield(tag, occurrence, sf.Name(), instance, x)
			}
		case ddf.DataTypeBinaryString:
			var b []byte
			if b, err = hex.DecodeString(fmt.Sprint(v)); err == nil {
				err = rec.SetStringSubfield(tag, occurrence, sf.Name(), instance, string(b))
			}
		default:
			err = rec.SetStringSubfield(tag, occurrence, sf.Name(), instance, toString(v))
		}
		if err != nil {
			return fmt.Errorf("%s.%s[%d]: %w", tag, sf.Name(), instance, err)
		}
	}
	return nil
}

func zeroValue(sf *ddf.SubfieldDefn) any {
	switch sf.Type() {
	case ddf.DataTypeInt:
		return 0
	case ddf.DataTypeFloat:
		return 0.0
	default:
		return ""
	}
}

var errNotNumber = errors.New("not a number")

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d: %w", n, ddf.ErrRange)
		}
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v: %w", n, errNotNumber)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%q: %w", n, errNotNumber)
		}
		return i, nil
	}
	return 0, fmt.Errorf("%v: %w", v, errNotNumber)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q: %w", n, errNotNumber)
		}
		return x, nil
	}
	return 0, fmt.Errorf("%v: %w", v, errNotNumber)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
