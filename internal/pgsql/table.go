package pgsql

import (
	"sort"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/schema"
)

// Table is a Postgres table backing one collection.
type Table struct {
	name    string
	fields  map[string]schema.Type
	indexes []core.IndexSpec
}

// NewTable creates a table with the given column types.
func NewTable(name string, fields map[string]schema.Type) *Table {
	copied := make(map[string]schema.Type, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &Table{name: name, fields: copied}
}

// TableFromSchema resolves every field of a collection schema and creates the table.
func TableFromSchema(name string, cs core.CollectionSchema, indexes []core.IndexSpec) (*Table, error) {
	fields, err := schema.TableFields(cs)
	if err != nil {
		return nil, err
	}
	t := &Table{name: name, fields: fields}
	for _, idx := range indexes {
		t.AddIndex(idx)
	}
	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Field returns the type of a column.
func (t *Table) Field(name string) (schema.Type, bool) {
	f, ok := t.fields[name]
	return f, ok
}

// Fields returns all columns of the table.
func (t *Table) Fields() map[string]schema.Type {
	return t.fields
}

// FieldNames returns the column names sorted with _id first.
func (t *Table) FieldNames() []string {
	names := make([]string, 0, len(t.fields))
	for name := range t.fields {
		if name != "_id" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := t.fields["_id"]; ok {
		names = append([]string{"_id"}, names...)
	}
	return names
}

// AddIndex records an index declared for the table.
func (t *Table) AddIndex(idx core.IndexSpec) {
	t.indexes = append(t.indexes, idx)
}

// Indexes returns the declared indexes.
func (t *Table) Indexes() []core.IndexSpec {
	return t.indexes
}
