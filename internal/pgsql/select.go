package pgsql

import (
	"fmt"
	"strings"

	"github.com/rzpsarthak13/docbridge/internal/document"
	"github.com/rzpsarthak13/docbridge/internal/schema"
)

// SelectOptions mirrors the options of a document-store find.
type SelectOptions struct {
	// Sort maps fields to 1 (ascending) or -1 (descending).
	Sort any

	// Limit caps the number of rows. Zero means no limit.
	Limit int64

	// Skip drops the first Skip rows.
	Skip int64

	// Projection is an inclusion, exclusion or computed projection.
	Projection any
}

// Lookup joins documents of another collection into an array field.
type Lookup struct {
	From         string `json:"from" bson:"from"`
	LocalField   string `json:"localField" bson:"localField"`
	ForeignField string `json:"foreignField" bson:"foreignField"`
	As           string `json:"as" bson:"as"`
}

// SQLOptions carries the aggregation features that have no find equivalent.
type SQLOptions struct {
	// AddFields adds computed fields to every row.
	AddFields any

	// Lookup joins another collection.
	Lookup *Lookup

	// Count replaces the selected rows with a single row holding their count.
	Count bool
}

// SelectQuery is a SELECT statement over a table or another query.
type SelectQuery struct {
	*Query
}

// NewSelectQuery builds:
//
//	SELECT <list> FROM <source> [LEFT JOIN LATERAL ..] [WHERE ..] [ORDER BY ..] [LIMIT $n] [OFFSET $n]
func NewSelectQuery(from Source, selector any, opts *SelectOptions, sqlOpts *SQLOptions) (*SelectQuery, error) {
	if opts == nil {
		opts = &SelectOptions{}
	}
	if sqlOpts == nil {
		sqlOpts = &SQLOptions{}
	}

	q := newQuery(from)
	sq := &SelectQuery{Query: q}

	var lookupAtoms []Atom
	if sqlOpts.Lookup != nil {
		atoms, err := sq.compileLookup(sqlOpts.Lookup)
		if err != nil {
			return nil, err
		}
		lookupAtoms = atoms
	}

	var selectList []Atom
	var err error
	switch {
	case sqlOpts.Count:
		selectList = []Atom{Raw(`COUNT(*) AS "count"`)}
		q.columns = []string{"count"}
		q.syntheticFields["count"] = schema.Int{}
	case opts.Projection != nil && sqlOpts.AddFields != nil:
		return nil, fmt.Errorf("%w: projection and added fields cannot be combined", ErrMalformedSelector)
	case opts.Projection != nil && len(document.Keys(opts.Projection)) > 0:
		selectList, err = sq.compileProjection(opts.Projection)
	case sqlOpts.AddFields != nil && len(document.Keys(sqlOpts.AddFields)) > 0:
		selectList, err = sq.compileAddFields(sqlOpts.AddFields)
	default:
		selectList = []Atom{Raw("*")}
		q.columns = sq.sourceColumns()
	}
	if err != nil {
		return nil, err
	}

	where, err := q.compileSelector(selector)
	if err != nil {
		return nil, err
	}

	orderBy, err := q.compileSort(opts.Sort)
	if err != nil {
		return nil, err
	}

	q.atoms = append(q.atoms, Raw("SELECT"))
	q.atoms = append(q.atoms, selectList...)
	q.atoms = append(q.atoms, Raw("FROM"), q.source())
	q.atoms = append(q.atoms, lookupAtoms...)
	if len(where) > 0 {
		q.atoms = append(q.atoms, Raw("WHERE"))
		q.atoms = append(q.atoms, where...)
	}
	q.atoms = append(q.atoms, orderBy...)
	if opts.Limit > 0 {
		q.atoms = append(q.atoms, Raw("LIMIT"), NewArg(opts.Limit, nil))
	}
	if opts.Skip > 0 {
		q.atoms = append(q.atoms, Raw("OFFSET"), NewArg(opts.Skip, nil))
	}

	return sq, nil
}

// Columns returns the output columns of the query, or nil when unknown.
func (q *Query) Columns() []string {
	return q.columns
}

// sourceColumns lists the columns SELECT * produces.
func (sq *SelectQuery) sourceColumns() []string {
	var cols []string
	if sq.base != nil {
		if sq.base.columns == nil {
			return nil
		}
		cols = append(cols, sq.base.columns...)
	} else if sq.table != nil {
		cols = sq.table.FieldNames()
	}
	for name := range sq.localFields {
		cols = append(cols, name)
	}
	return cols
}

func (sq *SelectQuery) compileLookup(l *Lookup) ([]Atom, error) {
	if l.From == "" || l.LocalField == "" || l.ForeignField == "" || l.As == "" {
		return nil, fmt.Errorf("%w: $lookup needs from, localField, foreignField and as", ErrMalformedSelector)
	}
	if _, ok := sq.Field(l.LocalField); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, l.LocalField)
	}

	atoms := []Atom{
		Raw(fmt.Sprintf(
			"LEFT JOIN LATERAL (SELECT COALESCE(ARRAY_AGG(TO_JSONB(l.*)), '{}') AS %s FROM %s l WHERE l.%s =",
			quoteIdent(l.As), quoteIdent(l.From), quoteIdent(l.ForeignField),
		)),
		fromRef{field: l.LocalField},
		Raw(") lookup ON TRUE"),
	}
	sq.localFields[l.As] = schema.NewArray(schema.JSON{})
	return atoms, nil
}

// compileAddFields selects every source column plus the computed fields.
// Computed fields replace source columns of the same name.
func (sq *SelectQuery) compileAddFields(addFields any) ([]Atom, error) {
	entries, _ := document.Entries(addFields)
	added := make(map[string]bool, len(entries))
	for _, e := range entries {
		added[e.Key] = true
	}

	sourceCols := sq.sourceColumns()
	overrides := false
	for _, c := range sourceCols {
		if added[c] {
			overrides = true
			break
		}
	}

	var list []Atom
	cols := make([]string, 0, len(sourceCols)+len(entries))
	if overrides {
		for _, c := range sourceCols {
			if added[c] {
				continue
			}
			list = appendListItem(list, Raw(quoteIdent(c)))
			cols = append(cols, c)
		}
	} else {
		list = []Atom{Raw("*")}
		cols = append(cols, sourceCols...)
	}

	synthetic := make(map[string]schema.Type, len(entries))
	for _, e := range entries {
		atoms, err := sq.compileExpression(e.Value, nil)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", e.Key, err)
		}
		atoms = append(atoms, Raw("AS "+quoteIdent(e.Key)))
		list = appendListItem(list, atoms...)
		cols = append(cols, e.Key)
		synthetic[e.Key] = sq.inferType(e.Value)
	}

	for k, v := range synthetic {
		sq.syntheticFields[k] = v
	}
	if sourceCols != nil {
		sq.columns = cols
	}
	return list, nil
}

// compileProjection handles inclusion, exclusion and computed projections.
// _id is included unless excluded explicitly.
func (sq *SelectQuery) compileProjection(projection any) ([]Atom, error) {
	entries, ok := document.Entries(projection)
	if !ok {
		return nil, fmt.Errorf("%w: projection must be a document", ErrMalformedSelector)
	}

	excludeID := false
	inclusion, exclusion := false, false
	for _, e := range entries {
		switch {
		case isProjectionFlag(e.Value) && !truthy(e.Value):
			if e.Key == "_id" {
				excludeID = true
			} else {
				exclusion = true
			}
		default:
			inclusion = true
		}
	}
	if inclusion && exclusion {
		return nil, fmt.Errorf("%w: projection cannot mix inclusion and exclusion", ErrMalformedSelector)
	}

	if !inclusion {
		return sq.compileExclusion(entries, excludeID)
	}

	var list []Atom
	var cols []string
	synthetic := map[string]schema.Type{}
	if !excludeID {
		if _, hasID := document.Get(projection, "_id"); !hasID {
			list = appendListItem(list, Raw(quoteIdent("_id")))
			cols = append(cols, "_id")
		}
	}

	for _, e := range entries {
		if e.Key == "_id" && excludeID {
			continue
		}
		if isProjectionFlag(e.Value) {
			field, err := sq.resolveColumn(e.Key, nil)
			if err != nil {
				return nil, err
			}
			if strings.Contains(e.Key, ".") {
				field += " AS " + quoteIdent(e.Key)
			}
			list = appendListItem(list, Raw(field))
			cols = append(cols, e.Key)
			continue
		}

		atoms, err := sq.compileExpression(e.Value, nil)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", e.Key, err)
		}
		atoms = append(atoms, Raw("AS "+quoteIdent(e.Key)))
		list = appendListItem(list, atoms...)
		cols = append(cols, e.Key)
		synthetic[e.Key] = sq.inferType(e.Value)
	}

	for k, v := range synthetic {
		sq.syntheticFields[k] = v
	}
	sq.columns = cols
	return list, nil
}

func (sq *SelectQuery) compileExclusion(entries []document.Entry, excludeID bool) ([]Atom, error) {
	cols := sq.sourceColumns()
	if cols == nil {
		return nil, fmt.Errorf("%w: exclusion projection over a source with unknown columns", ErrMalformedSelector)
	}

	excluded := make(map[string]bool, len(entries))
	for _, e := range entries {
		if strings.Contains(e.Key, ".") {
			return nil, fmt.Errorf("%w: nested exclusion %s", ErrUnsupportedOperator, e.Key)
		}
		excluded[e.Key] = true
	}
	if !excludeID {
		delete(excluded, "_id")
	}

	var list []Atom
	var kept []string
	for _, c := range cols {
		if excluded[c] {
			continue
		}
		list = appendListItem(list, Raw(quoteIdent(c)))
		kept = append(kept, c)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: projection excludes every field", ErrMalformedSelector)
	}
	sq.columns = kept
	return list, nil
}

func (q *Query) compileSort(sort any) ([]Atom, error) {
	if sort == nil {
		return nil, nil
	}
	entries, ok := document.Entries(sort)
	if !ok {
		return nil, fmt.Errorf("%w: sort must be a document", ErrMalformedSelector)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	result := []Atom{Raw("ORDER BY")}
	for i, e := range entries {
		var direction string
		n, isNum := document.Number(e.Value)
		switch {
		case isNum && n == 1:
			direction = "ASC"
		case isNum && n == -1:
			direction = "DESC"
		default:
			return nil, fmt.Errorf("%w: sort direction for %s must be 1 or -1", ErrMalformedSelector, e.Key)
		}

		var field string
		if _, own := q.syntheticFields[e.Key]; own {
			field = quoteIdent(e.Key)
		} else {
			resolved, err := q.resolveColumn(e.Key, nil)
			if err != nil {
				return nil, err
			}
			field = resolved
		}
		if i > 0 {
			result = append(result, Raw(","))
		}
		result = append(result, Raw(field+" "+direction))
	}
	return result, nil
}

// inferType guesses the column type of a computed field so later stages can
// cast it.
func (sq *SelectQuery) inferType(expr any) schema.Type {
	if s, ok := expr.(string); ok {
		if strings.HasPrefix(s, "$") && !strings.Contains(s, ".") {
			if t, ok := sq.Field(s[1:]); ok {
				return t
			}
			return schema.Unknown{}
		}
		return schema.String{}
	}

	entries, isDoc := document.Entries(expr)
	if !isDoc {
		switch {
		case expr == nil:
			return schema.Unknown{}
		case isDateValue(expr):
			return schema.Date{}
		case document.IsArray(expr):
			return schema.Unknown{}
		}
		switch valueKind(expr) {
		case "boolean":
			return schema.Bool{}
		case "number":
			if document.IsIntegral(expr) {
				return schema.Int{}
			}
			return schema.Float{}
		}
		return schema.Unknown{}
	}
	if len(entries) == 0 || !strings.HasPrefix(entries[0].Key, "$") {
		return schema.JSON{}
	}

	switch op := entries[0].Key; op {
	case "$add", "$subtract", "$multiply", "$divide", "$pow", "$abs", "$sum":
		return schema.Float{}
	case "$eq", "$ne", "$lt", "$lte", "$gt", "$gte", "$in":
		return schema.Bool{}
	case "$first":
		return sq.inferType(entries[0].Value)
	}
	return schema.Unknown{}
}

func isProjectionFlag(v any) bool {
	switch v.(type) {
	case bool:
		return true
	}
	_, ok := document.Number(v)
	return ok
}

// appendListItem appends a comma separated select list item.
func appendListItem(list []Atom, item ...Atom) []Atom {
	if len(list) > 0 {
		if last, ok := list[len(list)-1].(Raw); ok {
			list[len(list)-1] = last + ","
		} else {
			list = append(list, Raw(","))
		}
	}
	return append(list, item...)
}
