package pgsql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rzpsarthak13/docbridge/internal/schema"
)

// Source is something a query can read from: a *Table or another *Query.
type Source interface {
	Atom
	isSource()
}

func (*Table) isSource() {}
func (*Query) isSource() {}

// Query is the compilation unit shared by every concrete query kind. It holds
// an ordered list of atoms that compile into SQL text plus positional
// arguments. Queries are built once and never modified after construction.
type Query struct {
	table *Table
	base  *Query
	atoms []Atom

	// syntheticFields are computed columns this query outputs. They are
	// visible to queries built on top of this one.
	syntheticFields map[string]schema.Type

	// localFields are lateral join outputs visible to this query itself.
	localFields map[string]schema.Type

	// columns are the output column names when they are known.
	columns []string

	nameSubqueries bool
	isIndex        bool
}

func newQuery(from Source) *Query {
	q := &Query{
		syntheticFields: map[string]schema.Type{},
		localFields:     map[string]schema.Type{},
		nameSubqueries:  true,
	}
	switch s := from.(type) {
	case *Table:
		q.table = s
	case *Query:
		q.base = s
	}
	return q
}

// Compile renders the query with placeholders starting at $1 and subquery
// aliases starting at A.
func (q *Query) Compile() (string, []any) {
	return q.CompileAt(0, 'A')
}

// CompileAt renders the query with placeholders numbered after argOffset and
// subquery aliases starting at alias. Nested queries continue both sequences
// so that placeholder numbers always match argument positions.
func (q *Query) CompileAt(argOffset int, alias rune) (string, []any) {
	parts := make([]string, 0, len(q.atoms))
	var args []any
	lastAlias := ""

	for _, atom := range q.atoms {
		switch a := atom.(type) {
		case *Arg:
			argOffset++
			parts = append(parts, "$"+strconv.Itoa(argOffset)+a.TypeHint)
			args = append(args, a.Value)
		case *Query:
			name := ""
			if q.nameSubqueries {
				name = string(alias)
				alias++
				lastAlias = name
			}
			sql, subArgs := a.CompileAt(argOffset, alias)
			parts = append(parts, "(", sql, strings.TrimSpace(") "+name))
			args = append(args, subArgs...)
			argOffset += len(subArgs)
		case *Table:
			parts = append(parts, quoteIdent(a.Name()))
		case fromRef:
			qualifier := lastAlias
			if qualifier == "" && q.table != nil {
				qualifier = quoteIdent(q.table.Name())
			}
			if qualifier == "" {
				parts = append(parts, quoteIdent(a.field))
			} else {
				parts = append(parts, qualifier+"."+quoteIdent(a.field))
			}
		case Raw:
			parts = append(parts, string(a))
		}
	}

	return strings.Join(parts, " "), args
}

// Atoms returns a copy of the query's atoms.
func (q *Query) Atoms() []Atom {
	return append([]Atom(nil), q.atoms...)
}

// Table returns the table at the root of the query.
func (q *Query) Table() *Table {
	if q.base != nil {
		return q.base.Table()
	}
	return q.table
}

// Field looks up a field visible in this query's scope: lateral join outputs
// first, then the fields produced by the source query, then the table.
func (q *Query) Field(name string) (schema.Type, bool) {
	if t, ok := q.localFields[name]; ok {
		return t, true
	}
	if q.base != nil {
		if t, ok := q.base.syntheticFields[name]; ok {
			return t, true
		}
		return q.base.Field(name)
	}
	if q.table != nil {
		return q.table.Field(name)
	}
	return nil, false
}

// SyntheticFields returns the computed fields this query outputs.
func (q *Query) SyntheticFields() map[string]schema.Type {
	return q.syntheticFields
}

// source returns the atom this query reads from.
func (q *Query) source() Atom {
	if q.base != nil {
		return q.base
	}
	return q.table
}

// resolveFieldName converts a selector field into a column reference. Dotted
// fields dereference JSON, with numeric segments indexing JSON arrays. hint
// is passed to typeHint. When it yields a cast, the final segment is
// extracted as text so the cast applies to the value.
func (q *Query) resolveFieldName(field string, hint any) (string, error) {
	if strings.Contains(field, ".$") {
		return "", fmt.Errorf("%w: `.$` array fields not implemented: %s", ErrUnsupportedOperator, field)
	}

	if strings.Contains(field, ".") {
		segments := strings.Split(field, ".")
		first, rest := segments[0], segments[1:]
		t, ok := q.Field(first)
		if ok && schema.IsArray(t) && !q.isIndex {
			return "", &nonScalarArrayAccessError{field: first, path: rest}
		}
		if ok {
			cast, err := typeHint(hint)
			if err != nil {
				return "", fmt.Errorf("field %s: %w", field, err)
			}
			return "(" + quoteIdent(first) + jsonPath(rest, cast != "") + ")" + cast, nil
		}
	}

	if _, ok := q.Field(field); ok {
		return quoteIdent(field), nil
	}

	return "", fmt.Errorf("%w: %s", ErrUnknownField, field)
}

// resolveColumn is resolveFieldName for contexts without the subquery
// fallback for paths through array columns.
func (q *Query) resolveColumn(field string, hint any) (string, error) {
	resolved, err := q.resolveFieldName(field, hint)
	var nsa *nonScalarArrayAccessError
	if errors.As(err, &nsa) {
		return "", fmt.Errorf("%w: path through array field %s", ErrUnsupportedOperator, nsa.field)
	}
	return resolved, err
}

// jsonPath renders JSON traversal operators for the given path segments.
func jsonPath(segments []string, lastAsText bool) string {
	var b strings.Builder
	for i, seg := range segments {
		if i == len(segments)-1 && lastAsText {
			b.WriteString("->>")
		} else {
			b.WriteString("->")
		}
		if isIndexSegment(seg) {
			b.WriteString(seg)
		} else {
			b.WriteString(quoteLiteral(seg))
		}
	}
	return b.String()
}

func isIndexSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
