package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

var (
	// ErrInvalidSchema is returned for malformed collection schemas.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrInvalidDocument is returned when a document does not fit the table.
	ErrInvalidDocument = errors.New("invalid document")
)

// Validator validates collection schemas and documents against resolved
// column types.
type Validator struct {
	fields map[string]Type
	mapper *TypeMapper
}

// NewValidator creates a validator for a table with the given columns.
// fields may be nil when only ValidateSchema is used.
func NewValidator(fields map[string]Type) *Validator {
	return &Validator{
		fields: fields,
		mapper: NewTypeMapper(),
	}
}

// ValidateSchema checks the shape of a collection schema before any column
// type is resolved.
func (v *Validator) ValidateSchema(cs core.CollectionSchema) error {
	if len(cs) == 0 {
		return fmt.Errorf("%w: schema has no fields", ErrInvalidSchema)
	}

	names := make([]string, 0, len(cs))
	for name := range cs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := cs[name]
		if name == "" || strings.HasPrefix(name, "$") {
			return fmt.Errorf("%w: invalid field name %q", ErrInvalidSchema, name)
		}
		if field == nil {
			return fmt.Errorf("%w: field %q has no descriptor", ErrInvalidSchema, name)
		}
		if field.Max != nil && *field.Max <= 0 {
			return fmt.Errorf("%w: field %q has non-positive max %d", ErrInvalidSchema, name, *field.Max)
		}
		if parent, ok := strings.CutSuffix(name, ".$"); ok {
			p, exists := cs[parent]
			if !exists || p == nil || p.Type != core.KindArray {
				return fmt.Errorf("%w: member descriptor %q has no array parent", ErrInvalidSchema, name)
			}
			continue
		}
		if strings.Contains(name, ".") {
			return fmt.Errorf("%w: nested field %q must be declared inside an object", ErrInvalidSchema, name)
		}
	}
	return nil
}

// ValidateDocument validates a full document about to be inserted.
func (v *Validator) ValidateDocument(doc core.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document cannot be nil", ErrInvalidDocument)
	}

	for name, t := range v.fields {
		value, exists := doc[name]
		if (!exists || value == nil) && IsNotNull(t) && !HasDefault(t) && name != "_id" {
			return fmt.Errorf("%w: field '%s' cannot be NULL", ErrInvalidDocument, name)
		}
	}

	return v.ValidatePartial(doc)
}

// ValidatePartial validates only the fields present in doc.
func (v *Validator) ValidatePartial(doc core.Document) error {
	for name, value := range doc {
		t, ok := v.fields[name]
		if !ok {
			return fmt.Errorf("%w: unknown field '%s'", ErrInvalidDocument, name)
		}
		if value == nil {
			if IsNotNull(t) {
				return fmt.Errorf("%w: field '%s' cannot be NULL", ErrInvalidDocument, name)
			}
			continue
		}
		if _, err := v.mapper.ConvertToDBValue(value, t); err != nil {
			rendered, _ := Render(Concrete(t))
			return fmt.Errorf("%w: field '%s': expected %s, got %T: %w", ErrInvalidDocument, name, rendered, value, err)
		}
	}
	return nil
}
