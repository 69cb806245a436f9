package pgsql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/schema"
)

// CreateTableQuery is a CREATE TABLE for a collection.
type CreateTableQuery struct {
	*Query
}

// NewCreateTableQuery renders every column with its full type, modifiers
// included. _id is the primary key.
func NewCreateTableQuery(table *Table, ifNotExists bool) (*CreateTableQuery, error) {
	q := newQuery(table)

	columns := make([]string, 0, len(table.Fields()))
	for _, name := range table.FieldNames() {
		t, _ := table.Field(name)
		rendered, err := schema.Render(t)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		column := quoteIdent(name) + " " + rendered
		if name == "_id" {
			column += " PRIMARY KEY"
		}
		columns = append(columns, column)
	}

	create := "CREATE TABLE"
	if ifNotExists {
		create += " IF NOT EXISTS"
	}
	q.atoms = append(q.atoms, Raw(create), table, Raw("( "+strings.Join(columns, ", ")+" )"))
	return &CreateTableQuery{Query: q}, nil
}

var indexNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// IndexName returns the default name of an index: idx_<table>_<fields>.
func IndexName(table string, keys []core.IndexKey) string {
	parts := []string{"idx", table}
	for _, k := range keys {
		parts = append(parts, indexNameSanitizer.ReplaceAllString(k.Field, "_"))
	}
	return strings.Join(parts, "_")
}

// CreateIndexQuery is a CREATE INDEX. JSON paths may traverse array
// columns here.
type CreateIndexQuery struct {
	*Query
	name string
}

// NewCreateIndexQuery builds an index over the given keys. Unique indexes
// coalesce nullable text columns so that missing values collide the way
// they do in the document store.
func NewCreateIndexQuery(table *Table, spec core.IndexSpec) (*CreateIndexQuery, error) {
	if len(spec.Keys) == 0 {
		return nil, fmt.Errorf("%w: index has no keys", ErrMalformedSelector)
	}

	q := newQuery(table)
	q.isIndex = true

	name := spec.Name
	if name == "" {
		name = IndexName(table.Name(), spec.Keys)
	}

	fields := make([]string, 0, len(spec.Keys))
	for _, k := range spec.Keys {
		field, err := q.indexField(k.Field, spec.Unique)
		if err != nil {
			return nil, err
		}
		if k.Direction < 0 {
			field += " DESC"
		}
		fields = append(fields, field)
	}

	create := "CREATE INDEX IF NOT EXISTS"
	if spec.Unique {
		create = "CREATE UNIQUE INDEX IF NOT EXISTS"
	}
	q.atoms = append(q.atoms,
		Raw(create+" "+quoteIdent(name)+" ON"), table,
		Raw("USING btree ( "+strings.Join(fields, " , ")+" )"),
	)
	return &CreateIndexQuery{Query: q, name: name}, nil
}

// Name returns the index name.
func (c *CreateIndexQuery) Name() string {
	return c.name
}

func (q *Query) indexField(field string, unique bool) (string, error) {
	resolved, err := q.resolveFieldName(field, nil)
	if err != nil {
		return "", err
	}
	if !unique {
		return resolved, nil
	}
	t, ok := q.Field(field)
	if !ok || schema.IsNotNull(t) {
		return resolved, nil
	}
	if value, ok := schema.IndexCoalesceValue(t); ok {
		return "(COALESCE(" + resolved + ", " + value + "))", nil
	}
	return resolved, nil
}

// DropIndexQuery is a DROP INDEX.
type DropIndexQuery struct {
	*Query
}

// NewDropIndexQuery drops an index by name if it exists.
func NewDropIndexQuery(name string) *DropIndexQuery {
	q := newQuery(nil)
	q.atoms = append(q.atoms, Raw("DROP INDEX IF EXISTS "+quoteIdent(name)))
	return &DropIndexQuery{Query: q}
}

// NewListIndexesQuery selects the name and definition of every index on the table.
func NewListIndexesQuery(table *Table) *Query {
	q := newQuery(table)
	q.atoms = append(q.atoms,
		Raw("SELECT indexname, indexdef FROM pg_indexes WHERE tablename ="),
		NewArg(table.Name(), nil),
	)
	return q
}

var indexDefPattern = regexp.MustCompile(`^CREATE (UNIQUE )?INDEX (\S+) ON \S+ USING \w+ \((.*)\)$`)

// ParseIndexDef converts a pg_indexes definition back into an IndexSpec.
// Only plain and coalesced column keys are recovered. Other expressions are
// kept verbatim as the key field.
func ParseIndexDef(name, def string) core.IndexSpec {
	spec := core.IndexSpec{Name: name}
	m := indexDefPattern.FindStringSubmatch(def)
	if m == nil {
		return spec
	}
	spec.Unique = m[1] != ""

	for _, part := range splitTopLevel(m[3]) {
		part = strings.TrimSpace(part)
		direction := 1
		if trimmed, ok := strings.CutSuffix(part, " DESC"); ok {
			part, direction = trimmed, -1
		}
		spec.Keys = append(spec.Keys, core.IndexKey{Field: indexKeyField(part), Direction: direction})
	}
	return spec
}

var coalescePattern = regexp.MustCompile(`^\(?COALESCE\((.+?), .+\)\)?$`)

func indexKeyField(expr string) string {
	if m := coalescePattern.FindStringSubmatch(expr); m != nil {
		expr = m[1]
	}
	return strings.Trim(expr, `"`)
}

// splitTopLevel splits on commas outside parentheses and quotes.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	inQuote := false
	for i, r := range s {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case inQuote:
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
