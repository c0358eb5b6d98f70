// Package testutil provides fixtures shared by backend tests: the Fruit
// model, sample items, a discarding logger and a conformance suite every
// executor must pass.
package testutil

import (
	"io"
	"log/slog"

	"github.com/roach88/quarry/internal/model"
)

// Fruit returns a fresh Fruit model:
//
//	fruit{name: string, color: string (stored as "colour"), id: int pk,
//	      weight: float, ripe: bool default false}
func Fruit() *model.Schema {
	return model.MustNew("fruit",
		model.Prop("name", model.TypeString, model.Required()),
		model.Prop("color", model.TypeString, model.StorageName("colour")),
		model.Prop("id", model.TypeInt, model.PrimaryKey()),
		model.Prop("weight", model.TypeFloat),
		model.Prop("ripe", model.TypeBool, model.Default(false)),
	)
}

// Tag returns a model with a generated uuid key and a reference to fruit.
func Tag(fruit *model.Schema) *model.Schema {
	return model.MustNew("tag",
		model.Prop("id", model.TypeUUID, model.PrimaryKey()),
		model.Prop("label", model.TypeString),
		model.Prop("fruit", model.TypeRef, model.Ref(fruit)),
		model.Prop("meta", model.TypeObject),
	)
}

// FruitItems returns the standard sample items.
func FruitItems() []model.Values {
	return []model.Values{
		{"name": "apple", "color": "red", "weight": 1.5},
		{"name": "banana", "color": "yellow", "weight": 2.25, "ripe": true},
		{"name": "cherry", "color": "red", "weight": 0.25},
		{"name": "date", "color": "brown", "weight": 0.5, "ripe": true},
	}
}

// QuietLogger returns a logger that discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
