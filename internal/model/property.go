package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/quarry/internal/errs"
)

// FieldType is the semantic type of a property.
type FieldType int

const (
	TypeUnknown FieldType = iota
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeUUID
	TypeObject // nested mapping
	TypeRef    // reference to another model
)

var fieldTypeNames = map[FieldType]string{
	TypeUnknown: "unknown",
	TypeString:  "string",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeBool:    "bool",
	TypeUUID:    "uuid",
	TypeObject:  "object",
	TypeRef:     "ref",
}

// String returns the type name used in schema files.
func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// ParseFieldType parses a type name as written in schema files.
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str", "text":
		return TypeString, nil
	case "int", "integer", "int64":
		return TypeInt, nil
	case "float", "float64", "real":
		return TypeFloat, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "uuid":
		return TypeUUID, nil
	case "object", "map", "json":
		return TypeObject, nil
	case "ref":
		return TypeRef, nil
	}
	return TypeUnknown, errs.InvalidArgument("unknown field type %q", s)
}

// Property describes one field of a model.
//
// Properties are built with Prop and options, and are bound to their model
// (Model is set) when the schema is created. A Property is a plain value:
// copying it never affects the schema it came from.
type Property struct {
	Name       string
	Type       FieldType
	Model      string // owning model, empty for free references
	PrimaryKey bool
	Required   bool
	Default    any
	HasDefault bool
	Storage    string // storage name override
	Ref        string // referenced model for TypeRef
	KeyType    FieldType
	Embed      bool
}

// Option configures a Property.
type Option func(*Property)

// Prop creates a property description.
func Prop(name string, t FieldType, opts ...Option) Property {
	p := Property{Name: name, Type: t}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// PrimaryKey marks the property as the model's primary key.
func PrimaryKey() Option {
	return func(p *Property) { p.PrimaryKey = true }
}

// Required makes rows without a value for the property fail with
// MISSING_VALUE when they are read.
func Required() Option {
	return func(p *Property) { p.Required = true }
}

// Default sets the value returned for the property when it was never set.
func Default(v any) Option {
	return func(p *Property) {
		p.Default = v
		p.HasDefault = true
	}
}

// StorageName overrides the column or key the property is stored under.
func StorageName(name string) Option {
	return func(p *Property) { p.Storage = name }
}

// Ref makes the property a reference to target. Unless the reference is
// embedded, the target must declare a primary key; its type becomes the
// stored key type and New rejects the property otherwise.
func Ref(target *Schema) Option {
	return func(p *Property) {
		p.Type = TypeRef
		p.Ref = target.Name()
		if pk, ok := target.PrimaryKey(); ok {
			p.KeyType = pk.Type
		}
	}
}

// Embed stores the full referenced row instead of its primary key.
func Embed() Option {
	return func(p *Property) { p.Embed = true }
}

// Column returns the storage name of the property.
func (p Property) Column() string {
	if p.Storage != "" {
		return p.Storage
	}
	return p.Name
}

// IsZero reports whether p is the zero Property.
func (p Property) IsZero() bool {
	return p.Name == "" && p.Type == TypeUnknown
}

// SameAs reports whether p and o refer to the same declared field.
func (p Property) SameAs(o Property) bool {
	return p.Name == o.Name && p.Model == o.Model
}

// Generated reports whether a missing value is filled in by the backend or
// the engine on insert.
func (p Property) Generated() bool {
	return p.PrimaryKey && (p.Type == TypeInt || p.Type == TypeUUID || p.Type == TypeString)
}

// String returns "model.name", or just the name for free references.
func (p Property) String() string {
	if p.Model == "" {
		return p.Name
	}
	return p.Model + "." + p.Name
}

// Coerce converts v into the canonical Go value for the property's type.
//
// Canonical values are string, int64, float64, bool, map[string]any and nil.
// UUIDs are canonical strings. References hold the referenced key (or the
// nested row when embedded); a *Record is accepted and reduced accordingly.
func (p Property) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if rec, ok := v.(*Record); ok {
		if p.Type != TypeRef {
			return nil, p.invalid(v)
		}
		if p.Embed {
			return copyMap(rec.Row()), nil
		}
		return coerceTo(p.keyType(), rec.Key())
	}
	switch p.Type {
	case TypeRef:
		if p.Embed {
			return coerceTo(TypeObject, v)
		}
		out, err := coerceTo(p.keyType(), v)
		if err != nil {
			return nil, p.invalid(v)
		}
		return out, nil
	default:
		out, err := coerceTo(p.Type, v)
		if err != nil {
			return nil, p.invalid(v)
		}
		return out, nil
	}
}

func (p Property) keyType() FieldType {
	if p.KeyType == TypeUnknown {
		return TypeInt
	}
	return p.KeyType
}

func (p Property) invalid(v any) error {
	e := errs.InvalidArgument("cannot use %T value %v as %s", v, v, p.Type)
	e.Model = p.Model
	e.Property = p.Name
	return e
}

// coerceTo is the type-directed conversion shared by all properties.
func coerceTo(t FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch t {
	case TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case json.Number:
			return x.String(), nil
		case fmt.Stringer:
			return x.String(), nil
		}
	case TypeInt:
		return toInt(v)
	case TypeFloat:
		return toFloat(v)
	case TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			if x == "" {
				return nil, nil
			}
			return strconv.ParseBool(x)
		default:
			n, err := toInt(v)
			if err != nil {
				return nil, err
			}
			return n != int64(0), nil
		}
	case TypeUUID:
		switch x := v.(type) {
		case uuid.UUID:
			return x.String(), nil
		case [16]byte:
			return uuid.UUID(x).String(), nil
		case string:
			if x == "" {
				return nil, nil
			}
			id, err := uuid.Parse(x)
			if err != nil {
				return nil, err
			}
			return id.String(), nil
		}
	case TypeObject:
		switch x := v.(type) {
		case map[string]any:
			return copyMap(x), nil
		case Row:
			return copyMap(x), nil
		case Values:
			return copyMap(x), nil
		case string:
			if x == "" {
				return nil, nil
			}
			var m map[string]any
			d := json.NewDecoder(bytes.NewReader([]byte(x)))
			d.UseNumber()
			if err := d.Decode(&m); err != nil {
				return nil, err
			}
			return copyMap(m), nil
		}
	}
	return nil, fmt.Errorf("unsupported conversion of %T to %s", v, t)
}

func toInt(v any) (any, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows int64", x)
		}
		return int64(x), nil
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, err
		}
		return floatToInt(f)
	case string:
		if x == "" {
			return nil, nil
		}
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	}
	return nil, fmt.Errorf("unsupported conversion of %T to int", v)
}

func floatToInt(f float64) (any, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}

func toFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		if x == "" {
			return nil, nil
		}
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	n, err := toInt(v)
	if err != nil {
		return nil, err
	}
	return float64(n.(int64)), nil
}

func copyMap[M ~map[string]any](m M) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeNested(v)
	}
	return out
}

// normalizeNested gives nested numbers one representation regardless of
// which decoder produced them: integral values become int64, others float64.
func normalizeNested(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return copyMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeNested(e)
		}
		return out
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	}
	return v
}
