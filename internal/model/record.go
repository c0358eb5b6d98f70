package model

import (
	"reflect"
	"sort"

	"github.com/roach88/quarry/internal/errs"
)

// Record is an instance of a model.
//
// A Record is not safe for concurrent mutation.
type Record struct {
	schema *Schema
	values map[string]any
}

// Schema returns the record's model.
func (r *Record) Schema() *Schema {
	return r.schema
}

// Set assigns a value to a property after coercing it to the property type.
func (r *Record) Set(name string, v any) error {
	p, ok := r.schema.Lookup(name)
	if !ok {
		return errs.UnboundProperty(r.schema.name, name)
	}
	cv, err := p.Coerce(v)
	if err != nil {
		return err
	}
	r.values[name] = cv
	return nil
}

// Unset removes a value so reads fall back to the default.
func (r *Record) Unset(name string) {
	delete(r.values, name)
}

// IsSet reports whether the property was assigned (possibly to nil).
func (r *Record) IsSet(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Value returns the property's value, its default when unset, or nil.
func (r *Record) Value(name string) any {
	if v, ok := r.values[name]; ok {
		return v
	}
	if p, ok := r.schema.Lookup(name); ok && p.HasDefault {
		return p.Default
	}
	return nil
}

// Require returns the property's value or default, failing with
// MISSING_VALUE when neither exists.
func (r *Record) Require(name string) (any, error) {
	p, ok := r.schema.Lookup(name)
	if !ok {
		return nil, errs.UnboundProperty(r.schema.name, name)
	}
	if v, ok := r.values[name]; ok && v != nil {
		return v, nil
	}
	if p.HasDefault && p.Default != nil {
		return p.Default, nil
	}
	return nil, errs.MissingValue(r.schema.name, name)
}

// String returns a string property, or "" when unset or of another type.
func (r *Record) String(name string) string {
	s, _ := r.Value(name).(string)
	return s
}

// Int returns an int property, or 0.
func (r *Record) Int(name string) int64 {
	n, _ := r.Value(name).(int64)
	return n
}

// Float returns a float property, or 0.
func (r *Record) Float(name string) float64 {
	f, _ := r.Value(name).(float64)
	return f
}

// Bool returns a bool property, or false.
func (r *Record) Bool(name string) bool {
	b, _ := r.Value(name).(bool)
	return b
}

// Key returns the primary-key value, or nil.
func (r *Record) Key() any {
	pk, ok := r.schema.PrimaryKey()
	if !ok {
		return nil
	}
	return r.Value(pk.Name)
}

// Values returns a copy of the assigned values keyed by property name.
func (r *Record) Values() Values {
	out := make(Values, len(r.values))
	for k, v := range r.values {
		if m, ok := v.(map[string]any); ok {
			v = copyMap(m)
		}
		out[k] = v
	}
	return out
}

// Row returns the record as a storage row. Unset properties with a default
// are included; other unset properties are omitted.
func (r *Record) Row() Row {
	row := make(Row, len(r.schema.props))
	for _, p := range r.schema.props {
		v, ok := r.values[p.Name]
		if !ok {
			if !p.HasDefault {
				continue
			}
			v = p.Default
		}
		if m, ok := v.(map[string]any); ok {
			v = copyMap(m)
		}
		row[p.Column()] = v
	}
	return row
}

// Clone returns an independent copy of the record.
func (r *Record) Clone() *Record {
	return &Record{schema: r.schema, values: r.Values()}
}

// Equal reports whether both records belong to the same model and hold the
// same value (after defaults) for every property.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.schema.name != o.schema.name {
		return false
	}
	for _, p := range r.schema.props {
		if !reflect.DeepEqual(r.Value(p.Name), o.Value(p.Name)) {
			return false
		}
	}
	return true
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
