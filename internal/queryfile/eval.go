package queryfile

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/quarry/internal/expr"
	"github.com/roach88/quarry/internal/model"
)

// truth is a three-valued logic result.
type truth int8

const (
	no truth = iota
	unknown
	yes
)

func eval(e expr.Expression, row model.Row) truth {
	switch node := e.(type) {
	case expr.Comparison:
		return evalComparison(node, row)
	case expr.Many:
		return evalMany(node, row)
	case expr.Text:
		return evalText(node, row)
	case expr.Not:
		switch eval(node.Child, row) {
		case yes:
			return no
		case no:
			return yes
		default:
			return unknown
		}
	default:
		return unknown
	}
}

func evalComparison(c expr.Comparison, row model.Row) truth {
	left := row[c.Property.Column()]
	right := c.Value
	if other, ok := c.Other(); ok {
		right = row[other.Column()]
	} else if right == nil {
		// IS NULL / IS NOT NULL
		isNull := left == nil
		if c.Op == expr.OpNe {
			isNull = !isNull
		}
		return fromBool(isNull)
	}
	if left == nil || right == nil {
		return unknown
	}

	cmp, ok := compareValues(left, right)
	if !ok {
		if c.Op == expr.OpNe {
			return yes
		}
		return no
	}
	if m, isMap := left.(map[string]any); isMap && (c.Op == expr.OpEq || c.Op == expr.OpNe) {
		eq := equalMaps(m, right)
		return fromBool(eq == (c.Op == expr.OpEq))
	}

	switch c.Op {
	case expr.OpEq:
		return fromBool(cmp == 0)
	case expr.OpNe:
		return fromBool(cmp != 0)
	case expr.OpLt:
		return fromBool(cmp < 0)
	case expr.OpLe:
		return fromBool(cmp <= 0)
	case expr.OpGt:
		return fromBool(cmp > 0)
	case expr.OpGe:
		return fromBool(cmp >= 0)
	}
	return unknown
}

func evalMany(m expr.Many, row model.Row) truth {
	if m.Logic == expr.LogicOr {
		out := no
		for _, c := range m.Children {
			switch eval(c, row) {
			case yes:
				return yes
			case unknown:
				out = unknown
			}
		}
		return out
	}
	out := yes
	for _, c := range m.Children {
		switch eval(c, row) {
		case no:
			return no
		case unknown:
			out = unknown
		}
	}
	return out
}

func evalText(t expr.Text, row model.Row) truth {
	v, ok := row[t.Property.Column()].(string)
	if !ok {
		return unknown
	}
	s, pattern := normalize(v, t.Fold), normalize(t.Pattern, t.Fold)
	switch t.Mode {
	case expr.TextPrefix:
		return fromBool(strings.HasPrefix(s, pattern))
	case expr.TextSuffix:
		return fromBool(strings.HasSuffix(s, pattern))
	case expr.TextContains:
		return fromBool(strings.Contains(s, pattern))
	default:
		return fromBool(s == pattern)
	}
}

// normalize brings s to NFC and, when fold is set, case-folds it.
func normalize(s string, fold bool) string {
	s = norm.NFC.String(s)
	if fold {
		s = cases.Fold().String(s)
	}
	return s
}

func equalMaps(a map[string]any, b any) bool {
	bm, ok := b.(map[string]any)
	if !ok || len(a) != len(bm) {
		return false
	}
	for k, av := range a {
		bv, ok := bm[k]
		if !ok {
			return false
		}
		if am, ok := av.(map[string]any); ok {
			if !equalMaps(am, bv) {
				return false
			}
			continue
		}
		if av == nil || bv == nil {
			if av != bv {
				return false
			}
			continue
		}
		if c, ok := compareValues(av, bv); !ok || c != 0 {
			return false
		}
	}
	return true
}

func fromBool(b bool) truth {
	if b {
		return yes
	}
	return no
}
