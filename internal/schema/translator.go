package schema

import (
	"fmt"
	"sort"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

// Translator converts between documents and Postgres rows of one table.
type Translator struct {
	fields    map[string]Type
	mapper    *TypeMapper
	validator *Validator
}

// NewTranslator creates a translator for a table with the given columns.
func NewTranslator(fields map[string]Type) *Translator {
	return &Translator{
		fields:    fields,
		mapper:    NewTypeMapper(),
		validator: NewValidator(fields),
	}
}

// Fields returns the column types the translator was built with.
func (t *Translator) Fields() map[string]Type {
	return t.fields
}

// Columns returns the column names in sorted order with _id first.
func (t *Translator) Columns() []string {
	cols := make([]string, 0, len(t.fields))
	for name := range t.fields {
		if name != "_id" {
			cols = append(cols, name)
		}
	}
	sort.Strings(cols)
	if _, ok := t.fields["_id"]; ok {
		cols = append([]string{"_id"}, cols...)
	}
	return cols
}

// Validator returns the document validator for the table.
func (t *Translator) Validator() *Validator {
	return t.validator
}

// ToRow converts a document into column values.
func (t *Translator) ToRow(doc core.Document) (map[string]any, error) {
	if doc == nil {
		return nil, fmt.Errorf("document cannot be nil")
	}
	if err := t.validator.ValidateDocument(doc); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	row := make(map[string]any, len(doc))
	for name, value := range doc {
		converted, err := t.mapper.ConvertToDBValue(value, t.fields[name])
		if err != nil {
			return nil, fmt.Errorf("failed to convert value for column '%s': %w", name, err)
		}
		row[name] = converted
	}
	return row, nil
}

// FromRow converts a row scanned with pgx.RowToMap into a document.
// NULL columns are dropped so that absent and null fields look the same as
// they do in the document store. Columns not in the table, such as computed
// fields of an aggregation, are passed through unchanged.
func (t *Translator) FromRow(row map[string]any) (core.Document, error) {
	if row == nil {
		return nil, fmt.Errorf("row cannot be nil")
	}

	doc := make(core.Document, len(row))
	for name, value := range row {
		if value == nil {
			continue
		}
		colType, ok := t.fields[name]
		if !ok {
			doc[name] = value
			continue
		}
		converted, err := t.mapper.ConvertFromDBValue(value, colType)
		if err != nil {
			return nil, fmt.Errorf("failed to convert value for column '%s': %w", name, err)
		}
		doc[name] = converted
	}
	return doc, nil
}
