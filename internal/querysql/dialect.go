package querysql

import (
	"strconv"
	"strings"

	"github.com/roach88/quarry/internal/model"
)

// Dialect captures the differences between the SQL databases quarry targets.
type Dialect struct {
	// Name identifies the dialect ("sqlite", "postgres").
	Name string

	// Numbered selects $1, $2, ... placeholders instead of ?.
	Numbered bool

	// Returning makes inserts report generated keys with RETURNING.
	Returning bool

	// OpenLimit is emitted as the LIMIT when only an OFFSET is requested.
	// Empty means the dialect accepts OFFSET alone.
	OpenLimit string

	// Collation is appended to ORDER BY terms on text columns so ordering
	// is by byte value on every backend.
	Collation string

	// ColumnsQuery lists the columns of the table named by its single
	// parameter.
	ColumnsQuery string

	types   map[model.FieldType]string
	autoKey string
}

// SQLite is the dialect of both SQLite drivers.
var SQLite = Dialect{
	Name:         "sqlite",
	OpenLimit:    "-1",
	Collation:    "COLLATE BINARY",
	ColumnsQuery: "SELECT name FROM pragma_table_info(?) ORDER BY cid",
	types: map[model.FieldType]string{
		model.TypeString: "TEXT",
		model.TypeInt:    "INTEGER",
		model.TypeFloat:  "REAL",
		model.TypeBool:   "BOOLEAN",
		model.TypeUUID:   "TEXT",
		model.TypeObject: "TEXT",
	},
	autoKey: "INTEGER PRIMARY KEY AUTOINCREMENT",
}

// Postgres is the dialect of the pgx driver.
var Postgres = Dialect{
	Name:         "postgres",
	Numbered:     true,
	Returning:    true,
	Collation:    `COLLATE "C"`,
	ColumnsQuery: "SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position",
	types: map[model.FieldType]string{
		model.TypeString: "TEXT",
		model.TypeInt:    "BIGINT",
		model.TypeFloat:  "DOUBLE PRECISION",
		model.TypeBool:   "BOOLEAN",
		model.TypeUUID:   "TEXT",
		model.TypeObject: "TEXT",
	},
	autoKey: "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY",
}

// DialectFor returns the dialect with the given name.
func DialectFor(name string) (Dialect, bool) {
	switch name {
	case SQLite.Name:
		return SQLite, true
	case Postgres.Name:
		return Postgres, true
	default:
		return Dialect{}, false
	}
}

// Placeholder returns the placeholder for the n-th (1-based) parameter.
func (d Dialect) Placeholder(n int) string {
	if d.Numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Quote quotes an identifier. Dotted paths are split and each part quoted
// separately, so "main.fruit" becomes "main"."fruit".
func (d Dialect) Quote(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// ColumnType returns the column type used for a property.
func (d Dialect) ColumnType(p model.Property) string {
	t := p.Type
	if t == model.TypeRef {
		t = p.KeyType
		if p.Embed {
			t = model.TypeObject
		}
	}
	if s, ok := d.types[t]; ok {
		return s
	}
	return "TEXT"
}
