package pgsql

import (
	"encoding/json"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/rzpsarthak13/docbridge/internal/document"
	"github.com/rzpsarthak13/docbridge/internal/schema"
)

// Atom is one piece of a compiled query: literal SQL (Raw), an argument
// (*Arg), a nested query (*Query) or a table reference (*Table).
type Atom interface {
	isAtom()
}

// Raw is literal SQL text.
type Raw string

// Arg is a query argument. It compiles to a $n placeholder followed by its
// type hint, and its value is appended to the argument list.
type Arg struct {
	Value    any
	TypeHint string
}

// fromRef references a column of the query's FROM source. It compiles to the
// quoted column qualified by the source alias or table name.
type fromRef struct {
	field string
}

func (Raw) isAtom()     {}
func (*Arg) isAtom()    {}
func (*Query) isAtom()  {}
func (*Table) isAtom()  {}
func (fromRef) isAtom() {}

// NewArg wraps a value as an argument. Arrays of objects need an explicit
// JSON hint: they are sent as a single JSONB document for JSON columns and
// as JSONB[] otherwise.
func NewArg(value any, t schema.Type) *Arg {
	arg := &Arg{Value: driverValue(value)}
	if document.IsDocument(value) {
		arg.Value = document.Plain(value)
		return arg
	}

	items, ok := document.Array(value)
	if !ok {
		return arg
	}
	arg.Value = document.Plain(value)
	if len(items) == 0 || !document.IsDocument(items[0]) {
		return arg
	}

	if _, isJSON := schema.Concrete(t).(schema.JSON); isJSON && t != nil {
		if encoded, err := json.Marshal(arg.Value); err == nil {
			arg.Value = string(encoded)
			arg.TypeHint = "::JSONB"
			return arg
		}
	}
	arg.TypeHint = "::JSONB[]"
	return arg
}

// driverValue converts document-store scalar types pgx cannot encode.
func driverValue(v any) any {
	switch x := v.(type) {
	case primitive.DateTime:
		return x.Time()
	case primitive.ObjectID:
		return x.Hex()
	case primitive.Undefined:
		return nil
	}
	return v
}
