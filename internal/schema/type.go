package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/document"
)

var (
	// ErrResolverOnlyField is returned when a computed field is resolved to a column type.
	ErrResolverOnlyField = errors.New("can't generate type for resolver-only field")

	// ErrArrayWithoutSubtype is returned when an array field has no ".$" descriptor.
	ErrArrayWithoutSubtype = errors.New("no schema type provided for array member")

	// ErrUnrecognizedSchema is returned for field kinds with no column type.
	ErrUnrecognizedSchema = errors.New("unrecognized schema")

	// ErrUnknownType is returned when the Unknown type is rendered.
	ErrUnknownType = errors.New("cannot convert unknown type to string")
)

// Type models a Postgres column type. The set of variants is closed.
type Type interface {
	isType()
}

// String is TEXT, or VARCHAR(MaxLength) when MaxLength is positive.
type String struct {
	MaxLength int
}

// Bool is BOOL.
type Bool struct{}

// Int is INTEGER.
type Int struct{}

// Float is REAL.
type Float struct{}

// Date is TIMESTAMPTZ.
type Date struct{}

// JSON is JSONB.
type JSON struct{}

// Array is an array of a concrete subtype.
type Array struct {
	Subtype Type
}

// ID is a fixed length document identifier referencing another collection.
type ID struct {
	Collection string
}

// NotNull marks the wrapped type as non-nullable.
type NotNull struct {
	Type Type
}

// DefaultValue attaches a column default to the wrapped type.
type DefaultValue struct {
	Type  Type
	Value any
}

// Unknown is used inside the query builder when a type cannot be determined.
// It cannot be rendered.
type Unknown struct{}

func (String) isType()       {}
func (Bool) isType()         {}
func (Int) isType()          {}
func (Float) isType()        {}
func (Date) isType()         {}
func (JSON) isType()         {}
func (Array) isType()        {}
func (ID) isType()           {}
func (NotNull) isType()      {}
func (DefaultValue) isType() {}
func (Unknown) isType()      {}

// idLength is the length of generated document identifiers.
const idLength = 27

// NewArray returns an array type of the concrete form of subtype.
func NewArray(subtype Type) Array {
	return Array{Subtype: Concrete(subtype)}
}

// Render returns the Postgres rendering of t, including modifiers.
func Render(t Type) (string, error) {
	switch v := t.(type) {
	case String:
		if v.MaxLength > 0 {
			return fmt.Sprintf("VARCHAR(%d)", v.MaxLength), nil
		}
		return "TEXT", nil
	case Bool:
		return "BOOL", nil
	case Int:
		return "INTEGER", nil
	case Float:
		return "REAL", nil
	case Date:
		return "TIMESTAMPTZ", nil
	case JSON:
		return "JSONB", nil
	case Array:
		sub, err := Render(v.Subtype)
		if err != nil {
			return "", err
		}
		return sub + "[]", nil
	case ID:
		return fmt.Sprintf("VARCHAR(%d)", idLength), nil
	case NotNull:
		inner, err := Render(v.Type)
		if err != nil {
			return "", err
		}
		return inner + " NOT NULL", nil
	case DefaultValue:
		inner, err := Render(v.Type)
		if err != nil {
			return "", err
		}
		literal, err := defaultLiteral(v.Value, v.Type)
		if err != nil {
			return "", err
		}
		return inner + " DEFAULT " + literal, nil
	case Unknown, nil:
		return "", ErrUnknownType
	}
	return "", fmt.Errorf("%w: %T", ErrUnknownType, t)
}

// Concrete strips modifiers from t and returns the raw column type.
func Concrete(t Type) Type {
	switch v := t.(type) {
	case NotNull:
		return Concrete(v.Type)
	case DefaultValue:
		return Concrete(v.Type)
	case String, Bool, Int, Float, Date, JSON, Array, ID, Unknown:
		return t
	}
	return Unknown{}
}

// IsArray reports whether t is an array type, looking through modifiers.
func IsArray(t Type) bool {
	_, ok := Concrete(t).(Array)
	return ok
}

// IsNotNull reports whether t carries a NOT NULL modifier.
func IsNotNull(t Type) bool {
	switch v := t.(type) {
	case NotNull:
		return true
	case DefaultValue:
		return IsNotNull(v.Type)
	}
	return false
}

// HasDefault reports whether t carries a column default.
func HasDefault(t Type) bool {
	switch v := t.(type) {
	case DefaultValue:
		return true
	case NotNull:
		return HasDefault(v.Type)
	}
	return false
}

// IndexCoalesceValue returns the literal used to emulate document-store null
// semantics inside unique indexes. The second result is false for types that
// have no natural coalesce value.
func IndexCoalesceValue(t Type) (string, bool) {
	switch Concrete(t).(type) {
	case String, ID:
		return "''", true
	case Bool, Int, Float, Date, JSON, Array, Unknown:
		return "", false
	}
	return "", false
}

// defaultLiteral renders a column default value as a SQL literal.
func defaultLiteral(value any, t Type) (string, error) {
	if arr, ok := document.Array(value); ok && len(arr) == 0 {
		if a, isArr := Concrete(t).(Array); isArr {
			sub, err := Render(a.Subtype)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("'{}'::%s[]", sub), nil
		}
		return "'{}'", nil
	}

	switch v := value.(type) {
	case string:
		return quoteLiteral(v), nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case time.Time:
		return quoteLiteral(v.UTC().Format(time.RFC3339Nano)), nil
	}

	if n, ok := document.Number(value); ok {
		if document.IsIntegral(value) {
			return fmt.Sprintf("%d", int64(n)), nil
		}
		return fmt.Sprintf("%g", n), nil
	}

	if document.IsDocument(value) || document.IsArray(value) {
		encoded, err := json.Marshal(document.Plain(value))
		if err != nil {
			return "", fmt.Errorf("failed to encode default value: %w", err)
		}
		return quoteLiteral(string(encoded)), nil
	}

	return "", fmt.Errorf("unsupported default value of type %T", value)
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// FromSchema resolves the column type of a single field. arrayField is the
// descriptor of the array members ("<field>.$") and is only required for
// array fields.
func FromSchema(fieldName string, field, arrayField *core.FieldSchema) (Type, error) {
	if field == nil {
		return nil, fmt.Errorf("%w: field %q has no descriptor", ErrUnrecognizedSchema, fieldName)
	}
	if field.IsResolverOnly() {
		return nil, fmt.Errorf("%w: %s", ErrResolverOnlyField, fieldName)
	}

	if field.DefaultValue != nil {
		rest := *field
		rest.DefaultValue = nil
		inner, err := FromSchema(fieldName, &rest, arrayField)
		if err != nil {
			return nil, err
		}
		return DefaultValue{Type: inner, Value: field.DefaultValue}, nil
	}

	if isFalse(field.Optional) || isFalse(field.Nullable) {
		rest := *field
		rest.Optional = nil
		rest.Nullable = nil
		inner, err := FromSchema(fieldName, &rest, arrayField)
		if err != nil {
			return nil, err
		}
		return NotNull{Type: inner}, nil
	}

	switch field.Type {
	case core.KindString:
		if field.ForeignKey != "" {
			return ID{Collection: field.ForeignKey}, nil
		}
		if field.Max != nil {
			return String{MaxLength: *field.Max}, nil
		}
		return String{}, nil
	case core.KindBoolean:
		return Bool{}, nil
	case core.KindDate:
		return Date{}, nil
	case core.KindNumber:
		return Float{}, nil
	case core.KindInteger:
		return Int{}, nil
	case core.KindObject, core.KindJSON, core.KindSchema:
		return JSON{}, nil
	case core.KindArray:
		if arrayField == nil {
			return nil, fmt.Errorf("%w: %s", ErrArrayWithoutSubtype, fieldName)
		}
		sub, err := FromSchema(fieldName+".$", arrayField, nil)
		if err != nil {
			return nil, err
		}
		return NewArray(sub), nil
	}

	return nil, fmt.Errorf("%w: field %q has type %q", ErrUnrecognizedSchema, fieldName, field.Type)
}

func isFalse(b *bool) bool {
	return b != nil && !*b
}

// TableFields resolves the column type of every stored field of a collection.
// Array member descriptors are consumed by their parent and resolver-only
// fields are skipped. An _id column is added when the schema omits it.
func TableFields(cs core.CollectionSchema) (map[string]Type, error) {
	if err := NewValidator(nil).ValidateSchema(cs); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(cs))
	for name := range cs {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make(map[string]Type, len(cs)+1)
	for _, name := range names {
		if strings.Contains(name, ".$") {
			continue
		}
		field := cs[name]
		if field.IsResolverOnly() {
			continue
		}
		t, err := FromSchema(name, field, cs[name+".$"])
		if err != nil {
			return nil, err
		}
		fields[name] = t
	}

	if _, ok := fields["_id"]; !ok {
		fields["_id"] = String{}
	}
	return fields, nil
}
