package querysql

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/quarry/internal/expr"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/queryir"
)

// Statement is one parameterized SQL statement.
type Statement struct {
	SQL  string
	Args []any
}

// Program is the executable form of one operation on a SQL backend.
//
// Selects compile to a single statement whose result columns are Columns.
// Inserts compile to one statement per item. Updates and deletes compile to
// a single statement.
type Program struct {
	Kind       queryir.Kind
	Model      *model.Schema
	Statements []Statement

	// Columns are the result columns of a select, in SELECT order.
	Columns []string

	// Keys holds, for inserts, the primary key each item already carries
	// (nil when the database generates it).
	Keys []any

	// Returning is set when insert statements report the generated key as a
	// result row.
	Returning bool

	// References lists every column the operation touches.
	References []string
}

// Compiler compiles bound operations to parameterized SQL.
//
// CRITICAL: every select carries an ORDER BY ending in the primary key, so
// results are deterministic.
// CRITICAL: values are always parameters, never interpolated.
type Compiler struct {
	Dialect Dialect
}

// NewCompiler creates a compiler for the dialect.
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{Dialect: d}
}

// Compile converts a bound operation into a Program.
func (c *Compiler) Compile(op queryir.Operation) (*Program, error) {
	if op == nil {
		return nil, fmt.Errorf("cannot compile nil operation")
	}

	var (
		prog *Program
		err  error
	)
	switch o := op.(type) {
	case queryir.Select:
		prog, err = c.compileSelect(o)
	case queryir.Insert:
		prog, err = c.compileInsert(o)
	case queryir.Update:
		prog, err = c.compileUpdate(o)
	case queryir.Delete:
		prog, err = c.compileDelete(o)
	default:
		return nil, fmt.Errorf("unsupported operation type: %T", op)
	}
	if err != nil {
		return nil, fmt.Errorf("compile %s %s: %w", op.Kind(), op.Schema().Name(), err)
	}
	prog.Kind = op.Kind()
	prog.Model = op.Schema()
	prog.References = queryir.Columns(op)
	return prog, nil
}

// CompileExpr compiles a bound expression to a WHERE fragment and its
// parameters. Placeholders are numbered from 1.
func (c *Compiler) CompileExpr(e expr.Expression) (string, []any, error) {
	w := c.writer()
	frag, err := w.expr(e)
	if err != nil {
		return "", nil, err
	}
	return frag, w.args, nil
}

func (c *Compiler) writer() *writer {
	return &writer{d: c.Dialect}
}

// writer accumulates the parameters of one statement.
type writer struct {
	d    Dialect
	args []any
}

// param records v and returns its placeholder.
func (w *writer) param(v any) string {
	w.args = append(w.args, toArg(v))
	return w.d.Placeholder(len(w.args))
}

func (w *writer) col(p model.Property) string {
	return w.d.Quote(p.Column())
}

func (c *Compiler) compileSelect(s queryir.Select) (*Program, error) {
	w := c.writer()
	var sb strings.Builder

	projection := s.Projection()
	cols := make([]string, len(projection))
	quoted := make([]string, len(projection))
	for i, p := range projection {
		cols[i] = p.Column()
		quoted[i] = w.col(p)
	}

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(w.d.Quote(s.Model.Name()))

	if err := w.where(&sb, s.Where); err != nil {
		return nil, err
	}

	// MANDATORY: always order, ending with a stable tiebreaker.
	sb.WriteString(" ORDER BY ")
	sb.WriteString(w.orderBy(s.Model, s.OrderBy))

	switch {
	case s.Limit != queryir.NoLimit:
		sb.WriteString(" LIMIT ")
		sb.WriteString(w.param(int64(s.Limit)))
	case s.Offset > 0 && w.d.OpenLimit != "":
		sb.WriteString(" LIMIT ")
		sb.WriteString(w.d.OpenLimit)
	}
	if s.Offset > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(w.param(int64(s.Offset)))
	}

	return &Program{
		Statements: []Statement{{SQL: sb.String(), Args: w.args}},
		Columns:    cols,
	}, nil
}

// orderBy renders the requested ordering followed by the primary key, or by
// every remaining column when the model has no primary key.
func (w *writer) orderBy(m *model.Schema, orders []expr.Order) string {
	var terms []string
	used := make(map[string]bool)
	add := func(p model.Property, desc bool) {
		if used[p.Column()] {
			return
		}
		used[p.Column()] = true
		term := w.col(p)
		if p.Type == model.TypeString || p.Type == model.TypeUUID {
			term += " " + w.d.Collation
		}
		if desc {
			term += " DESC"
		} else {
			term += " ASC"
		}
		terms = append(terms, term)
	}

	for _, o := range orders {
		add(o.Property, o.Descending())
	}
	if pk, ok := m.PrimaryKey(); ok {
		add(pk, false)
	} else {
		for _, p := range m.Properties() {
			add(p, false)
		}
	}
	return strings.Join(terms, ", ")
}

func (c *Compiler) compileInsert(ins queryir.Insert) (*Program, error) {
	prog := &Program{}
	pk, hasPK := ins.Model.PrimaryKey()
	table := c.Dialect.Quote(ins.Model.Name())

	for _, row := range ins.Rows {
		w := c.writer()
		var names, marks []string
		for _, p := range ins.Model.Properties() {
			v, ok := row[p.Column()]
			if !ok {
				continue
			}
			names = append(names, w.col(p))
			marks = append(marks, w.param(v))
		}

		var sb strings.Builder
		sb.WriteString("INSERT INTO ")
		sb.WriteString(table)
		if len(names) == 0 {
			sb.WriteString(" DEFAULT VALUES")
		} else {
			fmt.Fprintf(&sb, " (%s) VALUES (%s)", strings.Join(names, ", "), strings.Join(marks, ", "))
		}

		var key any
		if hasPK {
			key = row[pk.Column()]
			if key == nil && c.Dialect.Returning {
				sb.WriteString(" RETURNING ")
				sb.WriteString(w.col(pk))
				prog.Returning = true
			}
		}
		prog.Keys = append(prog.Keys, key)
		prog.Statements = append(prog.Statements, Statement{SQL: sb.String(), Args: w.args})
	}
	return prog, nil
}

func (c *Compiler) compileUpdate(u queryir.Update) (*Program, error) {
	w := c.writer()
	var sb strings.Builder

	sb.WriteString("UPDATE ")
	sb.WriteString(w.d.Quote(u.Model.Name()))
	sb.WriteString(" SET ")
	for i, a := range u.Set {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(w.col(a.Property))
		sb.WriteString(" = ")
		sb.WriteString(w.param(a.Value))
	}
	if err := w.where(&sb, u.Where); err != nil {
		return nil, err
	}
	return &Program{Statements: []Statement{{SQL: sb.String(), Args: w.args}}}, nil
}

func (c *Compiler) compileDelete(d queryir.Delete) (*Program, error) {
	w := c.writer()
	var sb strings.Builder

	sb.WriteString("DELETE FROM ")
	sb.WriteString(w.d.Quote(d.Model.Name()))
	if err := w.where(&sb, d.Where); err != nil {
		return nil, err
	}
	return &Program{Statements: []Statement{{SQL: sb.String(), Args: w.args}}}, nil
}

func (w *writer) where(sb *strings.Builder, e expr.Expression) error {
	if e == nil {
		return nil
	}
	frag, err := w.expr(e)
	if err != nil {
		return fmt.Errorf("compile where: %w", err)
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(frag)
	return nil
}

// expr compiles one node.
// CRITICAL: literal values are NEVER interpolated.
func (w *writer) expr(e expr.Expression) (string, error) {
	switch node := e.(type) {
	case expr.Comparison:
		return w.comparison(node)
	case expr.Many:
		return w.many(node)
	case expr.Text:
		return w.text(node), nil
	case expr.Not:
		inner, err := w.expr(node.Child)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case expr.Deferred:
		return "", fmt.Errorf("deferred expression %q was not resolved", node.Name)
	case nil:
		return "", fmt.Errorf("nil expression")
	default:
		return "", fmt.Errorf("unsupported expression type: %T", e)
	}
}

func (w *writer) comparison(c expr.Comparison) (string, error) {
	left := w.col(c.Property)
	if other, ok := c.Other(); ok {
		return fmt.Sprintf("%s %s %s", left, c.Op, w.col(other)), nil
	}
	if c.Value == nil {
		switch c.Op {
		case expr.OpEq:
			return left + " IS NULL", nil
		case expr.OpNe:
			return left + " IS NOT NULL", nil
		default:
			return "", fmt.Errorf("operator %s cannot compare with null", c.Op)
		}
	}
	return fmt.Sprintf("%s %s %s", left, c.Op, w.param(c.Value)), nil
}

// many joins the parenthesized children: "(e1) AND (e2) AND ...".
func (w *writer) many(m expr.Many) (string, error) {
	if len(m.Children) == 0 {
		return "", fmt.Errorf("empty %s group", m.Logic)
	}
	parts := make([]string, len(m.Children))
	for i, child := range m.Children {
		frag, err := w.expr(child)
		if err != nil {
			return "", err
		}
		parts[i] = "(" + frag + ")"
	}
	return strings.Join(parts, " "+string(m.Logic)+" "), nil
}

func (w *writer) text(t expr.Text) string {
	pattern := escapeLike(t.Pattern)
	switch t.Mode {
	case expr.TextPrefix:
		pattern += "%"
	case expr.TextSuffix:
		pattern = "%" + pattern
	case expr.TextContains:
		pattern = "%" + pattern + "%"
	}
	left := w.col(t.Property)
	if t.Fold {
		// LOWER is ASCII-only in SQLite.
		left = "LOWER(" + left + ")"
		pattern = strings.ToLower(pattern)
	}
	return fmt.Sprintf(`%s LIKE %s ESCAPE '\'`, left, w.param(pattern))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes LIKE wildcards so the pattern matches literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// toArg converts a canonical value into a driver argument. Objects are
// stored as JSON text.
func toArg(v any) any {
	switch val := v.(type) {
	case map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	case int:
		return int64(val)
	default:
		return v
	}
}

// CreateTable returns the DDL creating the model's table if it is missing.
func (c *Compiler) CreateTable(m *model.Schema) string {
	var cols []string
	for _, p := range m.Properties() {
		def := c.Dialect.Quote(p.Column()) + " "
		switch {
		case p.PrimaryKey && p.Type == model.TypeInt:
			def += c.Dialect.autoKey
		case p.PrimaryKey:
			def += c.Dialect.ColumnType(p) + " PRIMARY KEY"
		default:
			def += c.Dialect.ColumnType(p)
			if p.Required && !p.HasDefault {
				def += " NOT NULL"
			}
		}
		cols = append(cols, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", c.Dialect.Quote(m.Name()), strings.Join(cols, ", "))
}

// Describe renders a program as text, one statement per line followed by
// its arguments. Used by the CLI and golden tests.
func (p *Program) Describe() string {
	var sb strings.Builder
	for _, st := range p.Statements {
		sb.WriteString(st.SQL)
		sb.WriteString("\n")
		if len(st.Args) > 0 {
			args := make([]string, len(st.Args))
			for i, a := range st.Args {
				args[i] = describeArg(a)
			}
			sb.WriteString("  -- args: ")
			sb.WriteString(strings.Join(args, ", "))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func describeArg(a any) string {
	switch v := a.(type) {
	case string:
		return strconv.Quote(v)
	case nil:
		return "NULL"
	default:
		return fmt.Sprint(v)
	}
}
