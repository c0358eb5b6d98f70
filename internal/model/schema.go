package model

import (
	"fmt"
	"strings"

	"github.com/roach88/quarry/internal/errs"
)

// Row is a raw record as exchanged with executors: storage column name to
// primitive value. Column order is given by the schema, not the map.
type Row map[string]any

// Values maps property names to values, as accepted by inserts and updates.
type Values map[string]any

// Schema is a model type: a name plus an ordered, fixed set of properties.
type Schema struct {
	name     string
	props    []Property
	byName   map[string]int
	byColumn map[string]int
	pk       int
}

// New validates a model description and builds its schema.
// The schema is not registered; see Define and Registry.Define.
func New(name string, props ...Property) (*Schema, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errs.InvalidArgument("model name is empty")
	}
	if len(props) == 0 {
		return nil, errs.InvalidArgument("model %s declares no properties", name)
	}

	s := &Schema{
		name:     name,
		props:    make([]Property, 0, len(props)),
		byName:   make(map[string]int, len(props)),
		byColumn: make(map[string]int, len(props)),
		pk:       -1,
	}
	for _, p := range props {
		if p.Name == "" {
			return nil, errs.InvalidArgument("model %s has a property without a name", name)
		}
		if p.Type == TypeUnknown {
			return nil, errs.InvalidArgument("property %s.%s has no type", name, p.Name)
		}
		if _, dup := s.byName[p.Name]; dup {
			return nil, errs.InvalidArgument("property %s.%s declared twice", name, p.Name)
		}
		if _, dup := s.byColumn[p.Column()]; dup {
			return nil, errs.InvalidArgument("storage name %q used twice in model %s", p.Column(), name)
		}
		if p.PrimaryKey {
			if s.pk >= 0 {
				return nil, errs.InvalidArgument("model %s declares more than one primary key (%s, %s)",
					name, s.props[s.pk].Name, p.Name)
			}
			if !p.Generated() {
				return nil, errs.InvalidArgument("primary key %s.%s must be int, string or uuid", name, p.Name)
			}
			s.pk = len(s.props)
		}
		if p.Type == TypeRef && p.Ref == "" {
			return nil, errs.InvalidArgument("reference %s.%s has no target model", name, p.Name)
		}
		if p.Type == TypeRef && !p.Embed && p.KeyType == TypeUnknown {
			return nil, errs.InvalidArgument("reference %s.%s: model %s declares no primary key", name, p.Name, p.Ref)
		}
		p.Model = name
		if p.HasDefault && p.Default != nil {
			def, err := p.Coerce(p.Default)
			if err != nil {
				return nil, fmt.Errorf("default of %s.%s: %w", name, p.Name, err)
			}
			p.Default = def
		}
		s.byName[p.Name] = len(s.props)
		s.byColumn[p.Column()] = len(s.props)
		s.props = append(s.props, p)
	}
	return s, nil
}

// MustNew is like New but panics on an invalid description.
func MustNew(name string, props ...Property) *Schema {
	s, err := New(name, props...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the model name, which is also its table or document name.
func (s *Schema) Name() string {
	return s.name
}

// Properties returns the properties in declaration order.
func (s *Schema) Properties() []Property {
	out := make([]Property, len(s.props))
	copy(out, s.props)
	return out
}

// Columns returns the storage names in declaration order.
func (s *Schema) Columns() []string {
	cols := make([]string, len(s.props))
	for i, p := range s.props {
		cols[i] = p.Column()
	}
	return cols
}

// Field returns the declared property with the given name. For undeclared
// names it returns a property bound to this model but unknown to it; using
// it in a query fails with UNBOUND_PROPERTY when the query is executed.
func (s *Schema) Field(name string) Property {
	if p, ok := s.Lookup(name); ok {
		return p
	}
	return Property{Name: name, Model: s.name}
}

// Lookup returns the declared property with the given name.
func (s *Schema) Lookup(name string) (Property, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Property{}, false
	}
	return s.props[i], true
}

// LookupColumn returns the declared property stored under column.
func (s *Schema) LookupColumn(column string) (Property, bool) {
	i, ok := s.byColumn[column]
	if !ok {
		return Property{}, false
	}
	return s.props[i], true
}

// PrimaryKey returns the primary-key property, if one is declared.
func (s *Schema) PrimaryKey() (Property, bool) {
	if s.pk < 0 {
		return Property{}, false
	}
	return s.props[s.pk], true
}

// Bind resolves p against the schema. Free references (no model) are looked
// up by name; bound references must belong to this model.
func (s *Schema) Bind(p Property) (Property, error) {
	if p.Model != "" && p.Model != s.name {
		return Property{}, errs.UnboundProperty(s.name, p.String())
	}
	declared, ok := s.Lookup(p.Name)
	if !ok {
		return Property{}, errs.UnboundProperty(s.name, p.Name)
	}
	return declared, nil
}

// New returns an empty record of this model.
func (s *Schema) New() *Record {
	return &Record{schema: s, values: make(map[string]any, len(s.props))}
}

// Make builds a record from property values, coercing each one.
func (s *Schema) Make(values Values) (*Record, error) {
	r := s.New()
	for _, name := range sortedKeys(values) {
		if err := r.Set(name, values[name]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// FromRow converts a raw row into a record.
//
// Columns the schema does not declare are ignored. Missing or null columns
// leave the property unset, except for Required properties, which yield a
// MISSING_VALUE error. The record is returned even when err is non-nil so
// callers can decide whether a row-level error is fatal.
func (s *Schema) FromRow(row Row) (*Record, error) {
	return s.fromRow(row, nil)
}

// FromColumns is FromRow for a projected read: only the listed columns are
// converted and checked.
func (s *Schema) FromColumns(row Row, columns []string) (*Record, error) {
	want := make(map[string]bool, len(columns))
	for _, c := range columns {
		want[c] = true
	}
	return s.fromRow(row, want)
}

func (s *Schema) fromRow(row Row, want map[string]bool) (*Record, error) {
	r := s.New()
	var firstErr error
	for _, p := range s.props {
		if want != nil && !want[p.Column()] {
			continue
		}
		raw, ok := row[p.Column()]
		if !ok || raw == nil {
			if ok {
				r.values[p.Name] = nil
			}
			if p.Required && !p.HasDefault && firstErr == nil {
				firstErr = errs.MissingValue(s.name, p.Name)
			}
			continue
		}
		v, err := p.Coerce(raw)
		if err != nil {
			if firstErr == nil {
				firstErr = errs.SchemaMismatch(s.name, p.Column(), err.Error())
			}
			continue
		}
		r.values[p.Name] = v
	}
	return r, firstErr
}

// RowFromValues validates and coerces property values into a storage row.
// Unset properties with a default are filled in.
func (s *Schema) RowFromValues(values Values) (Row, error) {
	for name := range values {
		if _, ok := s.byName[name]; !ok {
			return nil, errs.UnboundProperty(s.name, name)
		}
	}
	row := make(Row, len(values))
	for _, p := range s.props {
		v, ok := values[p.Name]
		if !ok {
			if p.HasDefault {
				row[p.Column()] = p.Default
			}
			continue
		}
		cv, err := p.Coerce(v)
		if err != nil {
			return nil, err
		}
		row[p.Column()] = cv
	}
	return row, nil
}

// String returns the model name and its properties, for diagnostics.
func (s *Schema) String() string {
	var b strings.Builder
	b.WriteString(s.name)
	b.WriteString("{")
	for i, p := range s.props {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", p.Name, p.Type)
		if p.PrimaryKey {
			b.WriteString(" pk")
		}
	}
	b.WriteString("}")
	return b.String()
}
