// Package model provides the typed data-modeling layer of quarry.
//
// A model type is described by a static list of properties and built once at
// startup:
//
//	var Fruit = model.Define("fruit",
//	    model.Prop("id", model.TypeInt, model.PrimaryKey()),
//	    model.Prop("name", model.TypeString),
//	    model.Prop("color", model.TypeString, model.Default("green")),
//	)
//
// Define validates the description, returns a *Schema and appends it to the
// process-wide DefaultRegistry. Schemas never change after definition.
//
// Instances of a model are *Record values. A Record holds the values that
// were set on it, keyed by property name. Reading an unset property returns
// its default (or nil); Require fails with a MISSING_VALUE error instead.
//
// # Rows
//
// Executors exchange data as Row values: storage column name → primitive
// value (string, int64, float64, bool, nil or a nested map). Schema.FromRow
// and Record.Row convert between the two shapes. Property.Coerce normalizes
// whatever a driver or decoder produced (json.Number, []byte, CSV strings,
// SQLite integers for booleans) into the canonical Go value for the
// property's type.
//
// # References
//
// A TypeRef property points at another model. The stored value is the
// referenced record's primary key, so loading a record never loads the
// records it points at. A property marked Embed stores the referenced
// record's full row instead, for document backends.
package model
