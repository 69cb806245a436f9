package pgsql

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/rzpsarthak13/docbridge/internal/document"
	"github.com/rzpsarthak13/docbridge/internal/schema"
)

// typeHint returns the cast to append to a JSON extraction or literal so
// Postgres can infer its type. hint is either a schema.Type or a value whose
// Go type selects the cast. Values without a natural cast yield "".
func typeHint(hint any) (string, error) {
	if t, ok := hint.(schema.Type); ok {
		rendered, err := schema.Render(schema.Concrete(t))
		if err != nil {
			return "", err
		}
		return "::" + rendered, nil
	}
	return valueHint(hint), nil
}

func valueHint(v any) string {
	switch v.(type) {
	case string:
		return "::TEXT"
	case bool:
		return "::BOOL"
	case time.Time, *time.Time, primitive.DateTime:
		return "::TIMESTAMPTZ"
	}
	if _, ok := document.Number(v); ok {
		if document.IsIntegral(v) {
			return "::INTEGER"
		}
		return "::REAL"
	}
	return ""
}

// valueKind groups values the way a dynamically typed caller would: numbers,
// strings, booleans and everything else.
func valueKind(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	if _, ok := document.Number(v); ok {
		return "number"
	}
	return "object"
}

// unifiedTypeHint returns a common hint for two branches when both contain
// an argument of the same kind.
func unifiedTypeHint(a, b []Atom) string {
	aArg, bArg := firstArg(a), firstArg(b)
	if aArg == nil || bArg == nil || valueKind(aArg.Value) != valueKind(bArg.Value) {
		return ""
	}
	return valueHint(aArg.Value)
}

func firstArg(atoms []Atom) *Arg {
	for _, a := range atoms {
		if arg, ok := a.(*Arg); ok {
			return arg
		}
	}
	return nil
}

func isDateValue(v any) bool {
	switch v.(type) {
	case time.Time, *time.Time, primitive.DateTime:
		return true
	}
	return false
}
