package pgsql

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedOperator is returned for selector, expression or update
	// operators outside the supported set.
	ErrUnsupportedOperator = errors.New("unsupported operator")

	// ErrMalformedSelector is returned when an operator receives an operand of
	// the wrong shape.
	ErrMalformedSelector = errors.New("malformed selector")

	// ErrUnknownField is returned when a field cannot be resolved in scope.
	ErrUnknownField = errors.New("cannot resolve field name")

	// ErrArrayOperator is returned for comparisons an array column cannot express.
	ErrArrayOperator = errors.New("invalid array operator")
)

// nonScalarArrayAccessError signals a JSON path that indexes through an
// array column. It is recovered by the selector compiler and never returned.
type nonScalarArrayAccessError struct {
	field string
	path  []string
}

func (e *nonScalarArrayAccessError) Error() string {
	return fmt.Sprintf("non-scalar array access: %s.%s", e.field, strings.Join(e.path, "."))
}
