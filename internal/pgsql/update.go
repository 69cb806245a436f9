package pgsql

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rzpsarthak13/docbridge/internal/document"
	"github.com/rzpsarthak13/docbridge/internal/schema"
)

// UpdateOptions configures an UpdateQuery.
type UpdateOptions struct {
	// Limit1 updates at most one matching row.
	Limit1 bool

	// Returning makes the query return the updated rows.
	Returning bool
}

// UpdateQuery is an UPDATE compiled from an update modifier.
type UpdateQuery struct {
	*Query
}

// updateBuilder collects SET assignments, one per column.
type updateBuilder struct {
	q           *Query
	table       *Table
	assignments [][]Atom
	assigned    map[string]bool
}

// NewUpdateQuery compiles an update modifier ($set, $unset, $inc, $push,
// $addToSet, $pull) or a replacement document into an UPDATE. $setOnInsert
// only applies to upserts and is ignored here.
func NewUpdateQuery(table *Table, selector, modifier any, opts UpdateOptions) (*UpdateQuery, error) {
	entries, ok := document.Entries(modifier)
	if !ok || len(entries) == 0 {
		return nil, fmt.Errorf("%w: update modifier must be a non-empty document", ErrMalformedSelector)
	}

	q := newQuery(table)
	b := &updateBuilder{q: q, table: table, assigned: map[string]bool{}}

	if !strings.HasPrefix(entries[0].Key, "$") {
		if err := b.replace(entries); err != nil {
			return nil, err
		}
	} else {
		for _, e := range entries {
			if err := b.apply(e.Key, e.Value); err != nil {
				return nil, err
			}
		}
	}

	if len(b.assignments) == 0 {
		return nil, fmt.Errorf("%w: update modifier changes nothing", ErrMalformedSelector)
	}

	where, err := q.compileSelector(selector)
	if err != nil {
		return nil, err
	}

	q.atoms = append(q.atoms, Raw("UPDATE"), table, Raw("SET"))
	for i, a := range b.assignments {
		if i > 0 {
			q.atoms = append(q.atoms, Raw(","))
		}
		q.atoms = append(q.atoms, a...)
	}
	q.atoms = append(q.atoms, whereClause(table, where, opts.Limit1)...)
	if opts.Returning {
		q.atoms = append(q.atoms, Raw("RETURNING *"))
	}
	return &UpdateQuery{Query: q}, nil
}

// replace sets every column to the value in the replacement document, or
// NULL when the document omits it. _id is never changed.
func (b *updateBuilder) replace(entries []document.Entry) error {
	values := make(map[string]any, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Key, "$") {
			return fmt.Errorf("%w: replacement document cannot contain %s", ErrMalformedSelector, e.Key)
		}
		if _, ok := b.table.Field(e.Key); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, e.Key)
		}
		values[e.Key] = e.Value
	}
	for _, name := range b.table.FieldNames() {
		if name == "_id" {
			continue
		}
		t, _ := b.table.Field(name)
		b.assign(name, Raw(quoteIdent(name)+" ="), NewArg(values[name], t))
	}
	return nil
}

func (b *updateBuilder) apply(op string, fields any) error {
	entries, ok := document.Entries(fields)
	if !ok {
		return fmt.Errorf("%w: %s expects a document", ErrMalformedSelector, op)
	}

	switch op {
	case "$setOnInsert":
		return nil
	case "$set":
		return b.set(entries)
	case "$unset":
		return b.unset(entries)
	}

	for _, e := range entries {
		if strings.Contains(e.Key, ".") {
			return fmt.Errorf("%w: %s on nested field %s", ErrUnsupportedOperator, op, e.Key)
		}
		t, ok := b.table.Field(e.Key)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, e.Key)
		}
		col := quoteIdent(e.Key)

		switch op {
		case "$inc":
			if _, isNum := document.Number(e.Value); !isNum {
				return fmt.Errorf("%w: $inc expects a number for %s", ErrMalformedSelector, e.Key)
			}
			if err := b.assign(e.Key, Raw(col+" = COALESCE("+col+", 0) +"), NewArg(e.Value, nil)); err != nil {
				return err
			}

		case "$push":
			if !schema.IsArray(t) {
				return fmt.Errorf("%w: $push to non-array field %s", ErrArrayOperator, e.Key)
			}
			if each, ok := document.Get(e.Value, "$each"); ok {
				if err := b.assign(e.Key, Raw(col+" = ARRAY_CAT("+col+","), NewArg(each, t), Raw(")")); err != nil {
					return err
				}
				continue
			}
			if err := b.assign(e.Key, Raw(col+" = ARRAY_APPEND("+col+","), NewArg(e.Value, nil), Raw(")")); err != nil {
				return err
			}

		case "$addToSet":
			if !schema.IsArray(t) {
				return fmt.Errorf("%w: $addToSet to non-array field %s", ErrArrayOperator, e.Key)
			}
			if document.IsDocument(e.Value) {
				if _, hasEach := document.Get(e.Value, "$each"); hasEach {
					return fmt.Errorf("%w: $addToSet with $each", ErrUnsupportedOperator)
				}
			}
			err := b.assign(e.Key,
				Raw(col+" = CASE WHEN"), NewArg(e.Value, nil),
				Raw("= ANY(COALESCE("+col+", '{}')) THEN "+col+" ELSE ARRAY_APPEND("+col+","), NewArg(e.Value, nil),
				Raw(") END"),
			)
			if err != nil {
				return err
			}

		case "$pull":
			if !schema.IsArray(t) {
				return fmt.Errorf("%w: $pull from non-array field %s", ErrArrayOperator, e.Key)
			}
			if document.IsDocument(e.Value) {
				return fmt.Errorf("%w: $pull with a condition", ErrUnsupportedOperator)
			}
			if err := b.assign(e.Key, Raw(col+" = ARRAY_REMOVE("+col+","), NewArg(e.Value, nil), Raw(")")); err != nil {
				return err
			}

		default:
			return fmt.Errorf("%w: update %s", ErrUnsupportedOperator, op)
		}
	}
	return nil
}

// set assigns top-level columns directly and nested paths with JSONB_SET.
// Paths into the same column are chained into one assignment.
func (b *updateBuilder) set(entries []document.Entry) error {
	paths := map[string][]document.Entry{}
	var order []string

	for _, e := range entries {
		first, rest, nested := strings.Cut(e.Key, ".")
		t, ok := b.table.Field(first)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, first)
		}
		if !nested {
			if err := b.assign(first, Raw(quoteIdent(first)+" ="), NewArg(e.Value, t)); err != nil {
				return err
			}
			continue
		}
		if _, isJSON := schema.Concrete(t).(schema.JSON); !isJSON {
			return fmt.Errorf("%w: $set on nested path of non-JSON field %s", ErrUnsupportedOperator, e.Key)
		}
		if _, seen := paths[first]; !seen {
			order = append(order, first)
		}
		paths[first] = append(paths[first], document.Entry{Key: rest, Value: e.Value})
	}

	for _, col := range order {
		sets := paths[col]
		quoted := quoteIdent(col)
		atoms := []Atom{Raw(quoted + " = " + strings.Repeat("JSONB_SET(", len(sets)) + "COALESCE(" + quoted + ", '{}'::JSONB)")}
		for _, s := range sets {
			encoded, err := json.Marshal(document.Plain(driverValue(s.Value)))
			if err != nil {
				return fmt.Errorf("failed to encode value for %s.%s: %w", col, s.Key, err)
			}
			atoms = append(atoms,
				Raw(", "+pathLiteral(s.Key)+","),
				&Arg{Value: string(encoded), TypeHint: "::JSONB"},
				Raw(")"),
			)
		}
		if err := b.assign(col, atoms...); err != nil {
			return err
		}
	}
	return nil
}

func (b *updateBuilder) unset(entries []document.Entry) error {
	paths := map[string][]string{}
	var order []string

	for _, e := range entries {
		first, rest, nested := strings.Cut(e.Key, ".")
		t, ok := b.table.Field(first)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, first)
		}
		if !nested {
			if schema.IsNotNull(t) {
				return fmt.Errorf("%w: cannot unset non-nullable field %s", ErrMalformedSelector, first)
			}
			if err := b.assign(first, Raw(quoteIdent(first)+" = NULL")); err != nil {
				return err
			}
			continue
		}
		if _, seen := paths[first]; !seen {
			order = append(order, first)
		}
		paths[first] = append(paths[first], rest)
	}

	for _, col := range order {
		quoted := quoteIdent(col)
		expr := quoted + " = " + quoted
		for _, p := range paths[col] {
			expr += " #- " + pathLiteral(p)
		}
		if err := b.assign(col, Raw(expr)); err != nil {
			return err
		}
	}
	return nil
}

func (b *updateBuilder) assign(column string, atoms ...Atom) error {
	if b.assigned[column] {
		return fmt.Errorf("%w: conflicting updates to %s", ErrMalformedSelector, column)
	}
	b.assigned[column] = true
	b.assignments = append(b.assignments, atoms)
	return nil
}

// pathLiteral renders a dotted path as a Postgres text[] literal.
func pathLiteral(path string) string {
	segments := strings.Split(path, ".")
	for i, s := range segments {
		segments[i] = `"` + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`) + `"`
	}
	return quoteLiteral("{" + strings.Join(segments, ",") + "}")
}
