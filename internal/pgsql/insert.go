package pgsql

import (
	"fmt"
	"strings"

	"github.com/rzpsarthak13/docbridge/internal/document"
)

// InsertQuery is an INSERT of a single row.
type InsertQuery struct {
	*Query
}

// NewInsertQuery builds an INSERT for one row. Columns are emitted with _id
// first, then in name order. With ignoreConflicts a row whose key already
// exists is skipped.
func NewInsertQuery(table *Table, row any, ignoreConflicts bool) (*InsertQuery, error) {
	entries, ok := document.Entries(row)
	if !ok || len(entries) == 0 {
		return nil, fmt.Errorf("%w: nothing to insert into %s", ErrMalformedSelector, table.Name())
	}

	q := newQuery(table)
	cols := make([]string, 0, len(entries))
	values := make([]Atom, 0, 2*len(entries))

	ordered := make([]document.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Key == "_id" {
			ordered = append([]document.Entry{e}, ordered...)
		} else {
			ordered = append(ordered, e)
		}
	}

	for i, e := range ordered {
		t, ok := table.Field(e.Key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, e.Key)
		}
		cols = append(cols, quoteIdent(e.Key))
		if i > 0 {
			values = append(values, Raw(","))
		}
		values = append(values, NewArg(e.Value, t))
	}

	q.atoms = append(q.atoms,
		Raw("INSERT INTO"), table,
		Raw("( "+strings.Join(cols, ", ")+" )"),
		Raw("VALUES ("),
	)
	q.atoms = append(q.atoms, values...)
	q.atoms = append(q.atoms, Raw(")"))
	if ignoreConflicts {
		q.atoms = append(q.atoms, Raw("ON CONFLICT DO NOTHING"))
	}
	return &InsertQuery{Query: q}, nil
}
