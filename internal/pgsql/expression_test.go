package pgsql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCompileExpression(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		expr     any
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "field reference",
			expr:    "$score",
			wantSQL: `"score"`,
		},
		{
			name:     "literal string",
			expr:     "score",
			wantSQL:  `$1`,
			wantArgs: []any{"score"},
		},
		{
			name:     "arithmetic",
			expr:     bson.M{"$subtract": bson.A{"$score", 1}},
			wantSQL:  `( "score" - $1 )`,
			wantArgs: []any{1},
		},
		{
			name:     "nested arithmetic",
			expr:     bson.M{"$multiply": bson.A{bson.M{"$add": bson.A{"$score", "$rating"}}, 2}},
			wantSQL:  `( ( "score" + "rating" ) * $1 )`,
			wantArgs: []any{2},
		},
		{
			name:     "date subtraction yields milliseconds",
			expr:     bson.M{"$subtract": bson.A{now, "$postedAt"}},
			wantSQL:  `(1000 * EXTRACT(EPOCH FROM $1 - "postedAt" ))`,
			wantArgs: []any{now},
		},
		{
			name:    "date column subtraction",
			expr:    bson.M{"$subtract": bson.A{"$postedAt", "$postedAt"}},
			wantSQL: `(1000 * EXTRACT(EPOCH FROM "postedAt" - "postedAt" ))`,
		},
		{
			name:     "cond with unified hint",
			expr:     bson.M{"$cond": bson.M{"if": "$meta", "then": "yes", "else": "no"}},
			wantSQL:  `(CASE WHEN "meta" IS NOT NULL THEN $1 ELSE $2 END) ::TEXT`,
			wantArgs: []any{"yes", "no"},
		},
		{
			name:     "cond array form without common kind",
			expr:     bson.M{"$cond": bson.A{bson.M{"$gt": bson.A{"$score", 1}}, "many", 0}},
			wantSQL:  `(CASE WHEN ( "score" > $1 ) THEN $2 ELSE $3 END)`,
			wantArgs: []any{1, "many", 0},
		},
		{
			name:    "abs",
			expr:    bson.M{"$abs": "$score"},
			wantSQL: `ABS( "score" )`,
		},
		{
			name:    "sum",
			expr:    bson.M{"$sum": "$score"},
			wantSQL: `SUM( "score" )`,
		},
		{
			name:     "in",
			expr:     bson.M{"$in": bson.A{"ai", "$tags"}},
			wantSQL:  `"tags" @> ARRAY[ $1 ]`,
			wantArgs: []any{"ai"},
		},
		{
			name:    "array element",
			expr:    bson.M{"$arrayElemAt": bson.A{"$coauthors.userId", 0}},
			wantSQL: `("coauthors")[1]->>'userId'`,
		},
		{
			name:    "array element from the end",
			expr:    bson.M{"$arrayElemAt": bson.A{"$coauthors.userId", -1}},
			wantSQL: `("coauthors")[ARRAY_LENGTH("coauthors", 1) + 0]->>'userId'`,
		},
		{
			name:    "first",
			expr:    bson.M{"$first": "$tags"},
			wantSQL: `"tags"`,
		},
		{
			name:    "empty object",
			expr:    bson.M{},
			wantSQL: `'{}'::JSONB`,
		},
		{
			name:     "plain object is an argument",
			expr:     bson.M{"a": 1},
			wantSQL:  `$1`,
			wantArgs: []any{map[string]any{"a": 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := compileExpression(t, tt.expr)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestCompileExpressionErrors(t *testing.T) {
	tests := []struct {
		name    string
		expr    any
		wantErr error
	}{
		{"unknown operator", bson.M{"$foo": 1}, ErrUnsupportedOperator},
		{"unknown field", "$nope", ErrUnknownField},
		{"arithmetic needs an array", bson.M{"$add": 1}, ErrMalformedSelector},
		{"in needs two operands", bson.M{"$in": bson.A{"x"}}, ErrMalformedSelector},
		{"array element needs a literal index", bson.M{"$arrayElemAt": bson.A{"$tags", "$score"}}, ErrMalformedSelector},
		{"path through array column", "$coauthors.userId", ErrUnsupportedOperator},
		{"cond needs three branches", bson.M{"$cond": bson.A{true, 1}}, ErrMalformedSelector},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQuery(postsTable())
			_, err := q.compileExpression(tt.expr, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
