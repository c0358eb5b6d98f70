package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/expr"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/query"
)

// selectFlags are the flags shared by select and compile.
type selectFlags struct {
	Where      []string
	Order      []string
	Fields     []string
	Limit      int
	Offset     int
	IgnoreCase bool
}

func (sf *selectFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringArrayVarP(&sf.Where, "where", "w", nil, "filter <field><op><value>, repeatable (ANDed)")
	fs.StringArrayVarP(&sf.Order, "order", "o", nil, `order term "field", "field desc" or "-field", repeatable`)
	fs.StringSliceVarP(&sf.Fields, "fields", "f", nil, "properties to return (default all)")
	fs.IntVar(&sf.Limit, "limit", -1, "maximum number of records (-1 for no limit)")
	fs.IntVar(&sf.Offset, "offset", 0, "records to skip")
	fs.BoolVarP(&sf.IgnoreCase, "ignore-case", "i", false, "case-insensitive text filters")
}

// build applies the flags to a select on c.
func (sf *selectFlags) build(c *query.Collection) (query.SelectQuery, error) {
	where, err := parseWhere(sf.Where, sf.IgnoreCase)
	if err != nil {
		return query.SelectQuery{}, commandError(ErrCodeUsage, err)
	}
	fields := make([]model.Property, len(sf.Fields))
	for i, name := range sf.Fields {
		fields[i] = expr.Field(name)
	}
	orders := make([]expr.Order, len(sf.Order))
	for i, term := range sf.Order {
		orders[i] = expr.ParseOrder(term)
	}

	q := c.Select(fields...).Where(where...).OrderBy(orders...).Offset(sf.Offset)
	if sf.Limit >= 0 {
		q = q.Limit(sf.Limit)
	}
	return q, q.Err()
}

// columns returns the property names a select shows.
func (sf *selectFlags) columns(m *model.Schema) []string {
	if len(sf.Fields) > 0 {
		return sf.Fields
	}
	props := m.Properties()
	out := make([]string, len(props))
	for i, p := range props {
		out[i] = p.Name
	}
	return out
}
