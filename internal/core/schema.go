package core

// FieldKind is the declared primitive kind of a document field.
type FieldKind string

const (
	KindString  FieldKind = "String"
	KindBoolean FieldKind = "Boolean"
	KindNumber  FieldKind = "Number"
	KindInteger FieldKind = "Integer"
	KindDate    FieldKind = "Date"
	KindObject  FieldKind = "Object"
	KindJSON    FieldKind = "JSON"
	KindSchema  FieldKind = "Schema"
	KindArray   FieldKind = "Array"
)

// FieldSchema describes a single field of a collection.
// It mirrors the document-store schema the collection was declared with.
type FieldSchema struct {
	// Type is the declared primitive kind.
	Type FieldKind `yaml:"type" json:"type"`

	// Max is the maximum length for strings. Nil means unbounded.
	Max *int `yaml:"max,omitempty" json:"max,omitempty"`

	// Optional and Nullable follow document-store semantics: both default to
	// true, and an explicit false makes the column NOT NULL.
	Optional *bool `yaml:"optional,omitempty" json:"optional,omitempty"`
	Nullable *bool `yaml:"nullable,omitempty" json:"nullable,omitempty"`

	// DefaultValue is applied as a column default when non-nil.
	DefaultValue any `yaml:"default_value,omitempty" json:"default_value,omitempty"`

	// ForeignKey names the collection an identifier field points at.
	ForeignKey string `yaml:"foreign_key,omitempty" json:"foreign_key,omitempty"`

	// ResolveAs marks a field that is computed by a resolver.
	ResolveAs *ResolveAs `yaml:"resolve_as,omitempty" json:"resolve_as,omitempty"`
}

// ResolveAs describes a resolver attached to a field.
type ResolveAs struct {
	FieldName string `yaml:"field_name" json:"field_name"`

	// AddOriginalField keeps the stored field next to the resolved one.
	AddOriginalField bool `yaml:"add_original_field" json:"add_original_field"`
}

// IsResolverOnly reports whether the field exists only as a resolver and
// therefore has no stored column.
func (f *FieldSchema) IsResolverOnly() bool {
	return f != nil && f.ResolveAs != nil && !f.ResolveAs.AddOriginalField
}

// CollectionSchema maps field names to their descriptors. Array members are
// described by a "<field>.$" entry.
type CollectionSchema map[string]*FieldSchema

// IndexKey is one key of an index, in order.
type IndexKey struct {
	Field string `yaml:"field" json:"field"`

	// Direction is 1 for ascending and -1 for descending.
	Direction int `yaml:"direction" json:"direction"`
}

// IndexSpec represents an index on a collection.
type IndexSpec struct {
	// Name is the index name. It is generated from the keys when empty.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Keys are the fields that make up this index.
	Keys []IndexKey `yaml:"keys" json:"keys"`

	// Unique indicates whether this is a unique index.
	Unique bool `yaml:"unique,omitempty" json:"unique,omitempty"`
}
