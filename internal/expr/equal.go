package expr

import (
	"reflect"

	"github.com/roach88/quarry/internal/model"
)

// Equal reports whether two trees are structurally equal. Deferred nodes
// are equal when their names are; resolvers are not compared.
func Equal(a, b Expression) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case Comparison:
		y, ok := b.(Comparison)
		if !ok || x.Op != y.Op || !sameProperty(x.Property, y.Property) {
			return false
		}
		xo, xok := x.Other()
		yo, yok := y.Other()
		if xok || yok {
			return xok && yok && sameProperty(xo, yo)
		}
		return reflect.DeepEqual(x.Value, y.Value)
	case Many:
		y, ok := b.(Many)
		if !ok || x.Logic != y.Logic || len(x.Children) != len(y.Children) {
			return false
		}
		for i := range x.Children {
			if !Equal(x.Children[i], y.Children[i]) {
				return false
			}
		}
		return true
	case Text:
		y, ok := b.(Text)
		return ok && x.Mode == y.Mode && x.Pattern == y.Pattern && x.Fold == y.Fold &&
			sameProperty(x.Property, y.Property)
	case Not:
		y, ok := b.(Not)
		return ok && Equal(x.Child, y.Child)
	case Deferred:
		y, ok := b.(Deferred)
		return ok && x.Name == y.Name
	default:
		return reflect.DeepEqual(a, b)
	}
}

// EqualOrders reports whether two orderings are equal.
func EqualOrders(a, b []Order) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Direction != b[i].Direction || !sameProperty(a[i].Property, b[i].Property) {
			return false
		}
	}
	return true
}

func sameProperty(a, b model.Property) bool {
	return a.Name == b.Name && a.Model == b.Model
}
