package filestore

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/xeipuuv/gojsonschema"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/queryfile"
)

// Format selects the document encoding.
type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case JSON, CSV:
		return f, nil
	}
	return "", errs.InvalidArgument("unknown file format %q (want json or csv)", s)
}

// rowReader yields raw rows until io.EOF.
type rowReader interface {
	next() (model.Row, error)
}

// codec reads and writes one document format.
type codec interface {
	// reader starts decoding a document. header reports the columns the
	// document declares, or nil when the format has no header.
	reader(m *model.Schema, r io.Reader) (rr rowReader, header []string, err error)

	encode(m *model.Schema, rows []model.Row) ([]byte, error)
}

func codecFor(f Format) codec {
	if f == CSV {
		return csvCodec{}
	}
	return &jsonCodec{schemas: make(map[string]*gojsonschema.Schema)}
}

// canonicalReader coerces every raw row into canonical values.
type canonicalReader struct {
	m  *model.Schema
	rr rowReader
}

func (c canonicalReader) next() (model.Row, error) {
	raw, err := c.rr.next()
	if err != nil {
		return nil, err
	}
	return queryfile.Canonical(c.m, raw)
}

// jsonCodec reads a top-level array element by element and validates each
// element against the model's item schema.
type jsonCodec struct {
	schemas map[string]*gojsonschema.Schema
}

func (c *jsonCodec) itemSchema(m *model.Schema) (*gojsonschema.Schema, error) {
	if s, ok := c.schemas[m.Name()]; ok {
		return s, nil
	}
	props := make(map[string]any, len(m.Properties()))
	for _, p := range m.Properties() {
		props[p.Column()] = map[string]any{"type": []string{jsonType(p), "null"}}
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}))
	if err != nil {
		return nil, fmt.Errorf("build json schema for %s: %w", m.Name(), err)
	}
	c.schemas[m.Name()] = s
	return s, nil
}

func jsonType(p model.Property) string {
	t := p.Type
	if t == model.TypeRef {
		if p.Embed {
			return "object"
		}
		t = p.KeyType
	}
	switch t {
	case model.TypeFloat:
		return "number"
	case model.TypeBool:
		return "boolean"
	case model.TypeObject:
		return "object"
	case model.TypeString, model.TypeUUID:
		return "string"
	default:
		return "integer"
	}
}

func (c *jsonCodec) reader(m *model.Schema, r io.Reader) (rowReader, []string, error) {
	schema, err := c.itemSchema(m)
	if err != nil {
		return nil, nil, err
	}
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return emptyReader{}, nil, nil
	}
	if err != nil {
		return nil, nil, errs.SchemaMismatch(m.Name(), "", "document is not valid JSON: "+err.Error())
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, nil, errs.SchemaMismatch(m.Name(), "", "document is not a JSON array")
	}
	return &jsonReader{m: m, dec: dec, schema: schema}, nil, nil
}

type jsonReader struct {
	m      *model.Schema
	dec    *json.Decoder
	schema *gojsonschema.Schema
	index  int
	done   bool
}

func (r *jsonReader) next() (model.Row, error) {
	if r.done {
		return nil, io.EOF
	}
	if !r.dec.More() {
		r.done = true
		if tok, err := r.dec.Token(); err != nil || tok != json.Delim(']') {
			return nil, errs.SchemaMismatch(r.m.Name(), "", "unterminated JSON array")
		}
		return nil, io.EOF
	}
	var item json.RawMessage
	if err := r.dec.Decode(&item); err != nil {
		return nil, errs.SchemaMismatch(r.m.Name(), "", fmt.Sprintf("element %d: %v", r.index, err))
	}
	res, err := r.schema.Validate(gojsonschema.NewBytesLoader(item))
	if err != nil {
		return nil, errs.SchemaMismatch(r.m.Name(), "", fmt.Sprintf("element %d: %v", r.index, err))
	}
	if !res.Valid() {
		re := res.Errors()[0]
		col := re.Field()
		if p, ok := re.Details()["property"].(string); ok {
			col = p
		}
		return nil, errs.SchemaMismatch(r.m.Name(), col, fmt.Sprintf("element %d: %s", r.index, re.Description()))
	}

	d := json.NewDecoder(bytes.NewReader(item))
	d.UseNumber()
	var row map[string]any
	if err := d.Decode(&row); err != nil {
		return nil, errs.SchemaMismatch(r.m.Name(), "", fmt.Sprintf("element %d: %v", r.index, err))
	}
	r.index++
	return row, nil
}

// encode writes one object per line with keys in schema order.
func (c *jsonCodec) encode(m *model.Schema, rows []model.Row) ([]byte, error) {
	if len(rows) == 0 {
		return []byte("[]\n"), nil
	}
	var buf bytes.Buffer
	buf.WriteString("[\n")
	for i, row := range rows {
		buf.WriteString("  {")
		for j, col := range m.Columns() {
			if j > 0 {
				buf.WriteByte(',')
			}
			k, _ := json.Marshal(col)
			v, err := json.Marshal(row[col])
			if err != nil {
				return nil, fmt.Errorf("encode %s.%s: %w", m.Name(), col, err)
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteByte('}')
		if i < len(rows)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("]\n")
	return buf.Bytes(), nil
}

type csvCodec struct{}

func (csvCodec) reader(m *model.Schema, r io.Reader) (rowReader, []string, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return emptyReader{}, nil, nil
	}
	if err != nil {
		return nil, nil, errs.SchemaMismatch(m.Name(), "", "cannot read csv header: "+err.Error())
	}
	for _, col := range header {
		if _, ok := m.LookupColumn(col); !ok {
			return nil, nil, errs.SchemaMismatch(m.Name(), col, "csv header names an undeclared column")
		}
	}
	return &csvReader{m: m, cr: cr, header: header}, header, nil
}

type csvReader struct {
	m      *model.Schema
	cr     *csv.Reader
	header []string
}

func (r *csvReader) next() (model.Row, error) {
	rec, err := r.cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errs.SchemaMismatch(r.m.Name(), "", "cannot read csv record: "+err.Error())
	}
	row := make(model.Row, len(r.header))
	for i, col := range r.header {
		row[col] = csvValue(r.m, col, rec[i])
	}
	return row, nil
}

// csvNull marks a null field. An empty field is an empty string for
// string columns and null for every other column.
const csvNull = `\N`

func csvValue(m *model.Schema, col, field string) any {
	switch field {
	case csvNull:
		return nil
	case "":
		if p, ok := m.LookupColumn(col); ok && p.Type == model.TypeString {
			return ""
		}
		return nil
	}
	return field
}

func (csvCodec) encode(m *model.Schema, rows []model.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	cols := m.Columns()
	if err := w.Write(cols); err != nil {
		return nil, err
	}
	rec := make([]string, len(cols))
	for _, row := range rows {
		for i, col := range cols {
			s, err := csvField(row[col])
			if err != nil {
				return nil, fmt.Errorf("encode %s.%s: %w", m.Name(), col, err)
			}
			rec[i] = s
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func csvField(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return csvNull, nil
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		b, err := json.Marshal(x)
		return string(b), err
	}
}

type emptyReader struct{}

func (emptyReader) next() (model.Row, error) { return nil, io.EOF }

// checkHeader fails when a document header lacks a referenced column.
func checkHeader(m *model.Schema, header, refs []string) error {
	if header == nil {
		return nil
	}
	for _, col := range refs {
		if !slices.Contains(header, col) {
			return errs.SchemaMismatch(m.Name(), col, "column not in document header")
		}
	}
	return nil
}
