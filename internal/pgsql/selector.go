package pgsql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/rzpsarthak13/docbridge/internal/document"
	"github.com/rzpsarthak13/docbridge/internal/schema"
)

var comparisonOps = map[string]string{
	"$eq":  "=",
	"$ne":  "<>",
	"$lt":  "<",
	"$lte": "<=",
	"$gt":  ">",
	"$gte": ">=",
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CompileSelector compiles a selector in the scope of q. An empty selector
// compiles to no atoms, which callers treat as always true.
func (q *Query) CompileSelector(selector any) ([]Atom, error) {
	return q.compileSelector(selector)
}

func (q *Query) compileSelector(selector any) ([]Atom, error) {
	if selector == nil {
		return nil, nil
	}
	entries, ok := document.Entries(selector)
	if !ok {
		return nil, fmt.Errorf("%w: selector must be a document, got %T", ErrMalformedSelector, selector)
	}

	switch len(entries) {
	case 0:
		return nil, nil
	case 1:
	default:
		members := make([]any, 0, len(entries))
		for _, e := range entries {
			members = append(members, bson.D{{Key: e.Key, Value: e.Value}})
		}
		return q.compileMultiSelector(members, "AND")
	}

	key, value := entries[0].Key, entries[0].Value
	switch key {
	case "$and", "$or":
		members, ok := document.Array(value)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects an array", ErrMalformedSelector, key)
		}
		return q.compileMultiSelector(members, strings.ToUpper(key[1:]))
	case "$expr":
		return q.compileExpression(value, nil)
	case "$comment":
		return nil, nil
	}

	if strings.HasPrefix(key, "$") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, key)
	}
	return q.compileComparison(key, value)
}

// compileMultiSelector joins the compiled members with separator. Members
// that compile to nothing are dropped.
func (q *Query) compileMultiSelector(members []any, separator string) ([]Atom, error) {
	var result []Atom
	for _, member := range members {
		atoms, err := q.compileSelector(member)
		if err != nil {
			return nil, err
		}
		if len(atoms) == 0 {
			continue
		}
		if len(result) > 0 {
			result = append(result, Raw(separator))
		}
		result = append(result, atoms...)
	}
	if len(result) == 0 {
		return nil, nil
	}
	return append(append([]Atom{Raw("(")}, result...), Raw(")")), nil
}

// comparisonHint picks the value used to cast a JSON path for a comparison.
func comparisonHint(value any) any {
	entries, ok := document.Entries(value)
	if !ok || len(entries) != 1 {
		return value
	}
	op, operand := entries[0].Key, entries[0].Value
	if _, isCmp := comparisonOps[op]; isCmp {
		return operand
	}
	if op == "$in" || op == "$nin" {
		if items, ok := document.Array(operand); ok && len(items) > 0 {
			return items[0]
		}
	}
	return nil
}

func (q *Query) compileComparison(fieldName string, value any) ([]Atom, error) {
	field, err := q.resolveFieldName(fieldName, comparisonHint(value))
	if err != nil {
		var nsa *nonScalarArrayAccessError
		if errors.As(err, &nsa) {
			return q.compileNonScalarArrayAccess(nsa.field, nsa.path, value)
		}
		return nil, err
	}

	if document.IsUndefined(value) {
		return []Atom{Raw("1=1")}, nil
	}
	if value == nil {
		return []Atom{Raw(q.nullTestField(fieldName, field) + " IS NULL")}, nil
	}

	entries, isDoc := document.Entries(value)
	if !isDoc {
		return q.arrayify(fieldName, field, "=", value)
	}

	switch len(entries) {
	case 0:
		return nil, fmt.Errorf("%w: empty comparison for %s", ErrMalformedSelector, fieldName)
	case 1:
	default:
		members := make([]any, 0, len(entries))
		for _, e := range entries {
			members = append(members, bson.D{{Key: fieldName, Value: bson.D{{Key: e.Key, Value: e.Value}}}})
		}
		return q.compileMultiSelector(members, "AND")
	}

	comparer, operand := entries[0].Key, entries[0].Value
	switch comparer {
	case "$not":
		inner, err := q.compileComparison(fieldName, operand)
		if err != nil {
			return nil, err
		}
		return append(append([]Atom{Raw("NOT (")}, inner...), Raw(")")), nil

	case "$nin":
		return q.compileComparison(fieldName, bson.D{{Key: "$not", Value: bson.D{{Key: "$in", Value: operand}}}})

	case "$in":
		return q.compileIn(fieldName, field, operand)

	case "$exists":
		if truthy(operand) {
			return []Atom{Raw(field + " IS NOT NULL")}, nil
		}
		return []Atom{Raw(field + " IS NULL")}, nil

	case "$geoWithin":
		return q.compileGeoWithin(operand)
	}

	if op, ok := comparisonOps[comparer]; ok {
		return q.arrayify(fieldName, field, op, operand)
	}
	return nil, fmt.Errorf("%w: %s: %s", ErrUnsupportedOperator, fieldName, comparer)
}

// compileIn tests membership with array containment so the same form works
// for scalar columns. Array columns match when any element overlaps.
func (q *Query) compileIn(fieldName, field string, operand any) ([]Atom, error) {
	items, ok := document.Array(operand)
	if !ok {
		return nil, fmt.Errorf("%w: $in expects an array", ErrMalformedSelector)
	}
	if len(items) == 0 {
		return []Atom{Raw("1=0")}, nil
	}

	t, known := q.Field(fieldName)
	var hint any
	switch {
	case known && schema.IsArray(t):
		hint = schema.Concrete(t).(schema.Array).Subtype
	case known && !isUnknown(t):
		hint = t
	default:
		hint = items[0]
	}
	cast, err := typeHint(hint)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", fieldName, err)
	}
	if cast != "" {
		cast += "[]"
	}

	atoms := []Atom{Raw("ARRAY[")}
	for i, item := range items {
		if i > 0 {
			atoms = append(atoms, Raw(","))
		}
		atoms = append(atoms, NewArg(item, nil))
	}

	if known && schema.IsArray(t) {
		return append(atoms, Raw("]"+cast+" && "+field)), nil
	}
	return append(atoms, Raw("]"+cast+" @> ARRAY["+field+"]")), nil
}

// compileGeoWithin compiles a $centerSphere search against the lng/lat pair
// stored in the JSON column named by $comment.locationName. The radius is in
// miles.
func (q *Query) compileGeoWithin(operand any) ([]Atom, error) {
	center, _ := document.Get(operand, "$centerSphere")
	comment, _ := document.Get(operand, "$comment")
	locationName, _ := document.Get(comment, "locationName")
	name, _ := locationName.(string)

	parts, ok := document.Array(center)
	if !ok || len(parts) != 2 || name == "" {
		return nil, fmt.Errorf("%w: invalid $geoWithin selector", ErrMalformedSelector)
	}
	point, ok := document.Array(parts[0])
	if !ok || len(point) != 2 {
		return nil, fmt.Errorf("%w: invalid $geoWithin center", ErrMalformedSelector)
	}
	if !identifierPattern.MatchString(name) {
		return nil, fmt.Errorf("%w: invalid $geoWithin location name %q", ErrMalformedSelector, name)
	}
	if _, ok := q.Field(name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}

	loc := quoteIdent(name)
	return []Atom{
		Raw(fmt.Sprintf("(EARTH_DISTANCE(LL_TO_EARTH((%s->>'lng')::FLOAT8, (%s->>'lat')::FLOAT8),", loc, loc)),
		Raw("LL_TO_EARTH("),
		NewArg(point[0], nil),
		Raw(","),
		NewArg(point[1], nil),
		// metres to miles
		Raw(")) * 0.000621371) <"),
		NewArg(parts[1], nil),
	}, nil
}

// nullTestField returns the reference used to compare a field with null. A
// JSON path extracts its last segment as text, so a JSON null and a missing
// key are both SQL NULL. $exists keeps the JSON reference and tells them apart.
func (q *Query) nullTestField(unresolvedField, resolvedField string) string {
	if !strings.Contains(unresolvedField, ".") || strings.Contains(unresolvedField, ".$") {
		return resolvedField
	}
	segments := strings.Split(unresolvedField, ".")
	t, ok := q.Field(segments[0])
	if !ok || (schema.IsArray(t) && !q.isIndex) {
		return resolvedField
	}
	return "(" + quoteIdent(segments[0]) + jsonPath(segments[1:], true) + ")"
}

// arrayify emulates document-store equality against array columns, where a
// scalar matches when the array contains it.
func (q *Query) arrayify(unresolvedField, resolvedField, op string, value any) ([]Atom, error) {
	if value == nil {
		switch op {
		case "=":
			return []Atom{Raw(q.nullTestField(unresolvedField, resolvedField) + " IS NULL")}, nil
		case "<>":
			return []Atom{Raw(q.nullTestField(unresolvedField, resolvedField) + " IS NOT NULL")}, nil
		}
	}

	if t, ok := q.Field(unresolvedField); ok && schema.IsArray(t) && !document.IsArray(value) {
		switch op {
		case "<>":
			return []Atom{Raw("NOT (" + resolvedField + " @> ARRAY["), NewArg(value, nil), Raw("])")}, nil
		case "=":
			return []Atom{Raw(resolvedField + " @> ARRAY["), NewArg(value, nil), Raw("]")}, nil
		default:
			return nil, fmt.Errorf("%w: %s", ErrArrayOperator, op)
		}
	}

	hint := ""
	if strings.Contains(unresolvedField, ".") && !strings.Contains(resolvedField, "::") {
		hint = valueHint(value)
	}
	t, _ := q.Field(unresolvedField)
	return []Atom{Raw(resolvedField + hint + " " + op), NewArg(value, t)}, nil
}

// compileNonScalarArrayAccess matches rows where any element of an array of
// JSON objects has the given value at path.
func (q *Query) compileNonScalarArrayAccess(fieldName string, path []string, value any) ([]Atom, error) {
	if document.IsDocument(value) {
		return nil, fmt.Errorf("%w: operators on paths through array %s", ErrUnsupportedOperator, fieldName)
	}
	selector := "unnested" + jsonPath(path, true)
	return []Atom{
		Raw("(_id IN (SELECT _id FROM"),
		q.source(),
		Raw(", UNNEST(" + quoteIdent(fieldName) + ") unnested WHERE " + selector + " ="),
		NewArg(value, nil),
		Raw("))"),
	}, nil
}

func isUnknown(t schema.Type) bool {
	_, ok := schema.Concrete(t).(schema.Unknown)
	return ok
}

func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	}
	if n, ok := document.Number(v); ok {
		return n != 0
	}
	return true
}
