package pgsql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rzpsarthak13/docbridge/internal/document"
	"github.com/rzpsarthak13/docbridge/internal/schema"
)

var arithmeticOps = map[string]string{
	"$add":      "+",
	"$subtract": "-",
	"$multiply": "*",
	"$divide":   "/",
	"$pow":      "^",
	"$eq":       "=",
	"$ne":       "<>",
	"$lt":       "<",
	"$lte":      "<=",
	"$gt":       ">",
	"$gte":      ">=",
}

func isMagnitudeOp(op string) bool {
	switch op {
	case "$lt", "$lte", "$gt", "$gte":
		return true
	}
	return false
}

// CompileExpression compiles an aggregation expression in the scope of q.
// hint is forwarded to field references, see resolveFieldName.
func (q *Query) CompileExpression(expr any, hint any) ([]Atom, error) {
	return q.compileExpression(expr, hint)
}

func (q *Query) compileExpression(expr any, hint any) ([]Atom, error) {
	if s, ok := expr.(string); ok {
		if strings.HasPrefix(s, "$") {
			field, err := q.resolveColumn(s[1:], hint)
			if err != nil {
				return nil, err
			}
			return []Atom{Raw(field)}, nil
		}
		return []Atom{NewArg(s, nil)}, nil
	}

	entries, isDoc := document.Entries(expr)
	if !isDoc {
		return []Atom{NewArg(expr, nil)}, nil
	}
	if len(entries) == 0 {
		return []Atom{Raw("'{}'::JSONB")}, nil
	}

	op, operand := entries[0].Key, entries[0].Value
	if !strings.HasPrefix(op, "$") {
		return []Atom{NewArg(expr, nil)}, nil
	}

	if sym, ok := arithmeticOps[op]; ok {
		return q.compileArithmetic(op, sym, operand)
	}

	switch op {
	case "$cond":
		return q.compileCond(operand)

	case "$abs", "$sum":
		inner, err := q.compileExpression(operand, nil)
		if err != nil {
			return nil, err
		}
		return wrap(strings.ToUpper(op[1:])+"(", inner, ")"), nil

	case "$in":
		args, ok := document.Array(operand)
		if !ok || len(args) != 2 {
			return nil, fmt.Errorf("%w: $in expects [value, array]", ErrMalformedSelector)
		}
		array, err := q.compileExpression(args[1], nil)
		if err != nil {
			return nil, err
		}
		value, err := q.compileExpression(args[0], nil)
		if err != nil {
			return nil, err
		}
		result := append(array, Raw("@> ARRAY["))
		result = append(result, value...)
		return append(result, Raw("]")), nil

	case "$arrayElemAt":
		return q.compileArrayElemAt(operand)

	case "$first":
		return q.compileExpression(operand, hint)
	}

	return nil, fmt.Errorf("%w: expression %s", ErrUnsupportedOperator, op)
}

func (q *Query) compileArithmetic(op, sym string, operand any) ([]Atom, error) {
	items, ok := document.Array(operand)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects an array", ErrMalformedSelector, op)
	}

	var operandHint any
	if isMagnitudeOp(op) {
		operandHint = 0
	}

	operands := make([][]Atom, 0, len(items))
	isDateDiff := false
	for _, item := range items {
		atoms, err := q.compileExpression(item, operandHint)
		if err != nil {
			return nil, err
		}
		operands = append(operands, atoms)
		if op == "$subtract" && len(items) == 2 && q.isDateOperand(item, atoms) {
			isDateDiff = true
		}
	}

	open, closing := "(", ")"
	if isDateDiff {
		open, closing = "(1000 * EXTRACT(EPOCH FROM", "))"
	}

	result := []Atom{Raw(open)}
	for i, atoms := range operands {
		if i > 0 {
			result = append(result, Raw(sym))
		}
		result = append(result, atoms...)
	}
	return append(result, Raw(closing)), nil
}

// isDateOperand reports whether an operand is a date literal or a reference
// to a date column.
func (q *Query) isDateOperand(expr any, atoms []Atom) bool {
	for _, a := range atoms {
		if arg, ok := a.(*Arg); ok && isDateValue(arg.Value) {
			return true
		}
	}
	s, ok := expr.(string)
	if !ok || !strings.HasPrefix(s, "$") {
		return false
	}
	t, ok := q.Field(s[1:])
	if !ok {
		return false
	}
	_, isDate := schema.Concrete(t).(schema.Date)
	return isDate
}

func (q *Query) compileCond(operand any) ([]Atom, error) {
	var ifExpr, thenExpr, elseExpr any
	if items, ok := document.Array(operand); ok {
		if len(items) != 3 {
			return nil, fmt.Errorf("%w: $cond expects [if, then, else]", ErrMalformedSelector)
		}
		ifExpr, thenExpr, elseExpr = items[0], items[1], items[2]
	} else if document.IsDocument(operand) {
		ifExpr, _ = document.Get(operand, "if")
		thenExpr, _ = document.Get(operand, "then")
		elseExpr, _ = document.Get(operand, "else")
	} else {
		return nil, fmt.Errorf("%w: $cond expects a document or an array", ErrMalformedSelector)
	}

	cond, err := q.compileCondition(ifExpr)
	if err != nil {
		return nil, err
	}
	thenAtoms, err := q.compileExpression(thenExpr, nil)
	if err != nil {
		return nil, err
	}
	elseAtoms, err := q.compileExpression(elseExpr, nil)
	if err != nil {
		return nil, err
	}

	result := []Atom{Raw("(CASE WHEN")}
	result = append(result, cond...)
	result = append(result, Raw("THEN"))
	result = append(result, thenAtoms...)
	result = append(result, Raw("ELSE"))
	result = append(result, elseAtoms...)
	result = append(result, Raw("END)"))
	if hint := unifiedTypeHint(thenAtoms, elseAtoms); hint != "" {
		result = append(result, Raw(hint))
	}
	return result, nil
}

// compileCondition treats a bare field reference as an existence test.
func (q *Query) compileCondition(expr any) ([]Atom, error) {
	if s, ok := expr.(string); ok && strings.HasPrefix(s, "$") {
		field, err := q.resolveColumn(s[1:], nil)
		if err != nil {
			return nil, err
		}
		return []Atom{Raw(field), Raw("IS NOT NULL")}, nil
	}
	return q.compileExpression(expr, nil)
}

// compileArrayElemAt supports a field path whose first segment is an array
// column together with a literal index.
func (q *Query) compileArrayElemAt(operand any) ([]Atom, error) {
	args, ok := document.Array(operand)
	if !ok || len(args) != 2 {
		return nil, fmt.Errorf("%w: invalid arguments to $arrayElemAt", ErrMalformedSelector)
	}
	path, ok := args[0].(string)
	if !ok || !strings.HasPrefix(path, "$") || !document.IsIntegral(args[1]) {
		return nil, fmt.Errorf("%w: invalid arguments to $arrayElemAt", ErrMalformedSelector)
	}
	n, _ := document.Number(args[1])
	index := int(n)

	tokens := strings.Split(path[1:], ".")
	field := tokens[0]
	if _, ok := q.Field(field); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	column := quoteIdent(field)
	subscript := strconv.Itoa(index + 1)
	if index < 0 {
		subscript = "ARRAY_LENGTH(" + column + ", 1) + " + strconv.Itoa(index+1)
	}

	sql := "(" + column + ")[" + subscript + "]"
	if len(tokens) > 1 {
		sql += jsonPath(tokens[1:], true)
	}
	return []Atom{Raw(sql)}, nil
}

func wrap(open string, inner []Atom, closing string) []Atom {
	out := make([]Atom, 0, len(inner)+2)
	out = append(out, Raw(open))
	out = append(out, inner...)
	return append(out, Raw(closing))
}
