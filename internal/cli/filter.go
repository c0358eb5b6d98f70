package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/quarry/internal/expr"
	"github.com/roach88/quarry/internal/model"
)

// Filter operators, longest first so ">=" wins over ">".
var filterOps = []string{">=", "<=", "!=", "<>", "==", "^=", "$=", "*=", "=", "<", ">"}

// parseWhere parses --where terms of the form <field><op><value>.
//
//	name=apple     weight>=2     color!=null
//	name^=ap       name$=le      name*=pp       (prefix, suffix, contains)
//
// The literal null compares with a missing value. Values are converted to
// the field's type when the query is bound. Fields are not checked here, so
// an unknown field surfaces as UNBOUND_PROPERTY.
func parseWhere(terms []string, fold bool) ([]expr.Expression, error) {
	out := make([]expr.Expression, 0, len(terms))
	for _, term := range terms {
		name, op, raw, err := splitTerm(term)
		if err != nil {
			return nil, err
		}
		p := expr.Field(name)

		var e expr.Expression
		switch op {
		case "^=", "$=", "*=":
			t := map[string]func(model.Property, string) expr.Text{
				"^=": expr.HasPrefix,
				"$=": expr.HasSuffix,
				"*=": expr.Contains,
			}[op](p, raw)
			if fold {
				t = t.CaseInsensitive()
			}
			e = t
		default:
			c, ok := expr.Compare(p, op, literal(raw))
			if !ok {
				return nil, fmt.Errorf("where %q: unsupported operator %q", term, op)
			}
			e = c
		}
		out = append(out, e)
	}
	return out, nil
}

func splitTerm(term string) (name, op, value string, err error) {
	i := strings.IndexAny(term, "=<>!^$*")
	if i <= 0 {
		return "", "", "", fmt.Errorf("where %q: expected <field><op><value>", term)
	}
	rest := term[i:]
	for _, candidate := range filterOps {
		if strings.HasPrefix(rest, candidate) {
			return strings.TrimSpace(term[:i]), candidate, strings.TrimSpace(rest[len(candidate):]), nil
		}
	}
	return "", "", "", fmt.Errorf("where %q: unsupported operator", term)
}

// parseAssignments parses --set terms of the form <field>=<value>.
func parseAssignments(terms []string) (model.Values, error) {
	values := make(model.Values, len(terms))
	for _, term := range terms {
		name, raw, ok := strings.Cut(term, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("set %q: expected <field>=<value>", term)
		}
		values[name] = literal(raw)
	}
	return values, nil
}

func literal(raw string) any {
	if raw == "null" {
		return nil
	}
	return raw
}
