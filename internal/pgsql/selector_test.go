package pgsql

import (
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCompileSelector(t *testing.T) {
	tests := []struct {
		name     string
		selector any
		wantSQL  string
		wantArgs []any
	}{
		{
			name: "implicit and keeps document order",
			selector: bson.D{
				{Key: "status", Value: "published"},
				{Key: "score", Value: bson.D{{Key: "$gte", Value: 10}}},
			},
			wantSQL:  `( "status" = $1 AND "score" >= $2 )`,
			wantArgs: []any{"published", 10},
		},
		{
			name:     "maps compile in key order",
			selector: bson.M{"status": "a", "score": 1},
			wantSQL:  `( "score" = $1 AND "status" = $2 )`,
			wantArgs: []any{1, "a"},
		},
		{
			name:     "array field equality uses containment",
			selector: bson.M{"tags": "ai"},
			wantSQL:  `"tags" @> ARRAY[ $1 ]`,
			wantArgs: []any{"ai"},
		},
		{
			name:     "array field inequality negates containment",
			selector: bson.M{"tags": bson.M{"$ne": "ai"}},
			wantSQL:  `NOT ("tags" @> ARRAY[ $1 ])`,
			wantArgs: []any{"ai"},
		},
		{
			name:     "in on scalar field",
			selector: bson.M{"status": bson.M{"$in": bson.A{"a", "b"}}},
			wantSQL:  `ARRAY[ $1 , $2 ]::TEXT[] @> ARRAY["status"]`,
			wantArgs: []any{"a", "b"},
		},
		{
			name:     "in on array field overlaps",
			selector: bson.M{"tags": bson.M{"$in": []string{"a"}}},
			wantSQL:  `ARRAY[ $1 ]::TEXT[] && "tags"`,
			wantArgs: []any{"a"},
		},
		{
			name:     "empty in matches nothing",
			selector: bson.M{"status": bson.M{"$in": bson.A{}}},
			wantSQL:  `1=0`,
		},
		{
			name:     "nin",
			selector: bson.M{"status": bson.M{"$nin": bson.A{"a"}}},
			wantSQL:  `NOT ( ARRAY[ $1 ]::TEXT[] @> ARRAY["status"] )`,
			wantArgs: []any{"a"},
		},
		{
			name:     "null",
			selector: bson.M{"status": nil},
			wantSQL:  `"status" IS NULL`,
		},
		{
			name:     "not equal null",
			selector: bson.M{"status": bson.M{"$ne": nil}},
			wantSQL:  `"status" IS NOT NULL`,
		},
		{
			name:     "exists false",
			selector: bson.M{"status": bson.M{"$exists": false}},
			wantSQL:  `"status" IS NULL`,
		},
		{
			name:     "exists true",
			selector: bson.M{"status": bson.M{"$exists": true}},
			wantSQL:  `"status" IS NOT NULL`,
		},
		{
			name:     "undefined is always true",
			selector: bson.M{"status": primitive.Undefined{}},
			wantSQL:  `1=1`,
		},
		{
			name:     "or",
			selector: bson.M{"$or": bson.A{bson.M{"status": "a"}, bson.M{"score": 1}}},
			wantSQL:  `( "status" = $1 OR "score" = $2 )`,
			wantArgs: []any{"a", 1},
		},
		{
			name: "nested and/or",
			selector: bson.M{"$and": bson.A{
				bson.M{"$or": bson.A{bson.M{"status": "a"}, bson.M{"status": "b"}}},
				bson.M{"score": bson.M{"$gt": 5}},
			}},
			wantSQL:  `( ( "status" = $1 OR "status" = $2 ) AND "score" > $3 )`,
			wantArgs: []any{"a", "b", 5},
		},
		{
			name:     "several operators on one field",
			selector: bson.M{"score": bson.M{"$gt": 1, "$lt": 5}},
			wantSQL:  `( "score" > $1 AND "score" < $2 )`,
			wantArgs: []any{1, 5},
		},
		{
			name:     "not",
			selector: bson.M{"status": bson.M{"$not": bson.M{"$eq": "x"}}},
			wantSQL:  `NOT ( "status" = $1 )`,
			wantArgs: []any{"x"},
		},
		{
			name:     "json path with text cast",
			selector: bson.M{"meta.author": "x"},
			wantSQL:  `("meta"->>'author')::TEXT = $1`,
			wantArgs: []any{"x"},
		},
		{
			name:     "json path comparison casts the operand type",
			selector: bson.M{"meta.count": bson.M{"$gt": 3}},
			wantSQL:  `("meta"->>'count')::INTEGER > $1`,
			wantArgs: []any{3},
		},
		{
			name:     "json path null matches json null and missing keys",
			selector: bson.M{"meta.author": nil},
			wantSQL:  `("meta"->>'author') IS NULL`,
		},
		{
			name:     "json path not equal null",
			selector: bson.M{"meta.author": bson.M{"$ne": nil}},
			wantSQL:  `("meta"->>'author') IS NOT NULL`,
		},
		{
			name:     "json path eq null",
			selector: bson.M{"meta.items.0": bson.M{"$eq": nil}},
			wantSQL:  `("meta"->'items'->>0) IS NULL`,
		},
		{
			name:     "json path exists keeps json null",
			selector: bson.M{"meta.author": bson.M{"$exists": true}},
			wantSQL:  `("meta"->'author') IS NOT NULL`,
		},
		{
			name:     "json path with array index",
			selector: bson.M{"meta.items.0": 1.5},
			wantSQL:  `("meta"->'items'->>0)::REAL = $1`,
			wantArgs: []any{1.5},
		},
		{
			name:     "path through array column",
			selector: bson.M{"coauthors.userId": "u1"},
			wantSQL:  `(_id IN (SELECT _id FROM "posts" , UNNEST("coauthors") unnested WHERE unnested->>'userId' = $1 ))`,
			wantArgs: []any{"u1"},
		},
		{
			name: "geo within",
			selector: bson.M{"location": bson.M{"$geoWithin": bson.M{
				"$centerSphere": bson.A{bson.A{-0.1, 51.5}, 10},
				"$comment":      bson.M{"locationName": "location"},
			}}},
			wantSQL:  `(EARTH_DISTANCE(LL_TO_EARTH(("location"->>'lng')::FLOAT8, ("location"->>'lat')::FLOAT8), LL_TO_EARTH( $1 , $2 )) * 0.000621371) < $3`,
			wantArgs: []any{-0.1, 51.5, 10},
		},
		{
			name:     "expr",
			selector: bson.M{"$expr": bson.M{"$gt": bson.A{"$score", 5}}},
			wantSQL:  `( "score" > $1 )`,
			wantArgs: []any{5},
		},
		{
			name:     "comment compiles to nothing",
			selector: bson.M{"$comment": "hint"},
			wantSQL:  ``,
		},
		{
			name:     "empty selector",
			selector: bson.M{},
			wantSQL:  ``,
		},
		{
			name:     "empty members are dropped",
			selector: bson.M{"$and": bson.A{bson.M{}, bson.M{"status": "a"}}},
			wantSQL:  `( "status" = $1 )`,
			wantArgs: []any{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := compileSelector(t, tt.selector)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestCompileSelectorErrors(t *testing.T) {
	tests := []struct {
		name     string
		selector any
		wantErr  error
	}{
		{"in needs an array", bson.M{"status": bson.M{"$in": "not-an-array"}}, ErrMalformedSelector},
		{"unknown comparison", bson.M{"score": bson.M{"$regex": "x"}}, ErrUnsupportedOperator},
		{"unknown logical operator", bson.M{"$nor": bson.A{}}, ErrUnsupportedOperator},
		{"unknown field", bson.M{"nope": 1}, ErrUnknownField},
		{"magnitude on array field", bson.M{"tags": bson.M{"$gt": "a"}}, ErrArrayOperator},
		{"positional operator", bson.M{"tags.$": "a"}, ErrUnsupportedOperator},
		{"operators through array column", bson.M{"coauthors.userId": bson.M{"$in": bson.A{"a"}}}, ErrUnsupportedOperator},
		{"bad geo", bson.M{"location": bson.M{"$geoWithin": bson.M{"$centerSphere": bson.A{}}}}, ErrMalformedSelector},
		{"not a document", "status", ErrMalformedSelector},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQuery(postsTable())
			_, err := q.compileSelector(tt.selector)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

func TestPlaceholderAlignment(t *testing.T) {
	selector := bson.D{
		{Key: "status", Value: bson.D{{Key: "$in", Value: bson.A{"a", "b", "c"}}}},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "score", Value: bson.D{{Key: "$gte", Value: 1}}}},
			bson.D{{Key: "coauthors.userId", Value: "u"}},
		}},
	}

	for _, offset := range []int{0, 3, 10} {
		q := newQuery(postsTable())
		atoms, err := q.compileSelector(selector)
		require.NoError(t, err)
		q.atoms = atoms

		sql, args := q.CompileAt(offset, 'A')
		matches := placeholderPattern.FindAllStringSubmatch(sql, -1)
		require.Len(t, args, 5)
		require.Len(t, matches, 5)

		highest := 0
		for i, m := range matches {
			n, err := strconv.Atoi(m[1])
			require.NoError(t, err)
			assert.Equal(t, offset+i+1, n, "placeholders are numbered left to right")
			highest = max(highest, n)
		}
		assert.Equal(t, offset+len(args), highest)
	}
}

func TestCompileIsIdempotent(t *testing.T) {
	selector := bson.M{
		"status": "a",
		"tags":   bson.M{"$in": bson.A{"x", "y"}},
		"$or":    bson.A{bson.M{"score": bson.M{"$lt": 3}}, bson.M{"meta.k": true}},
	}
	sql1, args1 := compileSelector(t, selector)
	sql2, args2 := compileSelector(t, selector)
	assert.Equal(t, sql1, sql2)
	assert.Equal(t, args1, args2)
}

func TestParenthesisBalance(t *testing.T) {
	selector := bson.M{"$or": bson.A{
		bson.M{"$and": bson.A{bson.M{"status": "a"}, bson.M{"score": 1}, bson.M{"rating": 2.5}}},
		bson.M{"$or": bson.A{bson.M{"status": "b"}, bson.M{"status": "c"}}},
		bson.M{"tags": "x"},
	}}
	sql, _ := compileSelector(t, selector)

	assert.Equal(t, strings.Count(sql, "("), strings.Count(sql, ")"))
	assert.Equal(t, 2, strings.Count(sql, " AND "))
	assert.Equal(t, 2+1, strings.Count(sql, " OR "))
}
