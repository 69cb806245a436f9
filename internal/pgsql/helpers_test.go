package pgsql

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/docbridge/internal/schema"
)

func postsTable() *Table {
	return NewTable("posts", map[string]schema.Type{
		"_id":       schema.String{},
		"status":    schema.NotNull{Type: schema.String{}},
		"score":     schema.Int{},
		"rating":    schema.Float{},
		"tags":      schema.NewArray(schema.String{}),
		"meta":      schema.JSON{},
		"location":  schema.JSON{},
		"postedAt":  schema.Date{},
		"coauthors": schema.NewArray(schema.JSON{}),
		"userId":    schema.ID{Collection: "Users"},
	})
}

// compileSelector compiles a selector on its own against the posts table.
func compileSelector(t *testing.T, selector any) (string, []any) {
	t.Helper()
	q := newQuery(postsTable())
	atoms, err := q.compileSelector(selector)
	require.NoError(t, err)
	q.atoms = atoms
	return q.Compile()
}

func compileExpression(t *testing.T, expr any) (string, []any) {
	t.Helper()
	q := newQuery(postsTable())
	atoms, err := q.compileExpression(expr, nil)
	require.NoError(t, err)
	q.atoms = atoms
	return q.Compile()
}
