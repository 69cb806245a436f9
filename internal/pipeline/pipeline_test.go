package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/rzpsarthak13/docbridge/internal/pgsql"
	"github.com/rzpsarthak13/docbridge/internal/schema"
)

func postsTable() *pgsql.Table {
	return pgsql.NewTable("posts", map[string]schema.Type{
		"_id":    schema.String{},
		"status": schema.NotNull{Type: schema.String{}},
		"score":  schema.Int{},
		"userId": schema.ID{Collection: "Users"},
	})
}

func stage(name string, data any) bson.D {
	return bson.D{{Key: name, Value: data}}
}

func TestPipelineCompile(t *testing.T) {
	tests := []struct {
		name     string
		stages   []any
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "empty",
			wantSQL: `SELECT * FROM "posts"`,
		},
		{
			name: "stages in clause order share one select",
			stages: []any{
				stage("$match", bson.M{"status": "published"}),
				stage("$sort", bson.M{"score": -1}),
				stage("$skip", 5),
				stage("$limit", 10),
			},
			wantSQL:  `SELECT * FROM "posts" WHERE "status" = $1 ORDER BY "score" DESC LIMIT $2 OFFSET $3`,
			wantArgs: []any{"published", int64(10), int64(5)},
		},
		{
			name: "two matches nest",
			stages: []any{
				stage("$match", bson.M{"status": "published"}),
				stage("$match", bson.M{"score": bson.M{"$gt": 3}}),
			},
			wantSQL:  `SELECT * FROM ( SELECT * FROM "posts" WHERE "status" = $1 ) A WHERE "score" > $2`,
			wantArgs: []any{"published", 3},
		},
		{
			name: "match on an added field nests",
			stages: []any{
				stage("$addFields", bson.M{"double": bson.M{"$multiply": bson.A{"$score", 2}}}),
				stage("$match", bson.M{"double": bson.M{"$gt": 10}}),
			},
			wantSQL:  `SELECT * FROM ( SELECT *, ( "score" * $1 ) AS "double" FROM "posts" ) A WHERE "double" > $2`,
			wantArgs: []any{2, 10},
		},
		{
			name: "skip after limit nests",
			stages: []any{
				stage("$limit", 10),
				stage("$skip", 5),
			},
			wantSQL:  `SELECT * FROM ( SELECT * FROM "posts" LIMIT $1 ) A OFFSET $2`,
			wantArgs: []any{int64(10), int64(5)},
		},
		{
			name: "lookup then match",
			stages: []any{
				stage("$lookup", bson.M{"from": "users", "localField": "userId", "foreignField": "_id", "as": "user"}),
				stage("$match", bson.M{"user": bson.M{"$exists": true}}),
			},
			wantSQL: `SELECT * FROM "posts" LEFT JOIN LATERAL (SELECT COALESCE(ARRAY_AGG(TO_JSONB(l.*)), '{}') AS "user" FROM "users" l WHERE l."_id" = "posts"."userId" ) lookup ON TRUE WHERE "user" IS NOT NULL`,
		},
		{
			name: "three levels",
			stages: []any{
				stage("$match", bson.M{"status": "a"}),
				stage("$limit", 1),
				stage("$match", bson.M{"score": 1}),
				stage("$limit", 2),
				stage("$project", bson.M{"score": 1}),
			},
			wantSQL: `SELECT "_id", "score" FROM ( SELECT * FROM ( SELECT * FROM "posts" WHERE "status" = $1 LIMIT $2 ) B WHERE "score" = $3 LIMIT $4 ) A`,
			wantArgs: []any{"a", int64(1), 1, int64(2)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := New(postsTable(), tt.stages).Compile()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestPipelineErrors(t *testing.T) {
	tests := []struct {
		name    string
		stages  []any
		wantErr error
	}{
		{"unwind", []any{stage("$unwind", "$tags")}, ErrUnwindNotImplemented},
		{"unknown stage", []any{stage("$group", bson.M{"_id": "$status"})}, ErrUnsupportedStage},
		{"two keys", []any{bson.D{{Key: "$match", Value: bson.M{}}, {Key: "$limit", Value: 1}}}, ErrInvalidStage},
		{"empty stage", []any{bson.D{}}, ErrInvalidStage},
		{"not a document", []any{"$match"}, ErrInvalidStage},
		{"limit must be an integer", []any{stage("$limit", "ten")}, ErrInvalidStage},
		{"limit must be positive", []any{stage("$limit", 0)}, ErrInvalidStage},
		{"negative skip", []any{stage("$skip", -1)}, ErrInvalidStage},
		{"lookup must be a document", []any{stage("$lookup", "users")}, ErrInvalidStage},
		{"bad selector", []any{stage("$match", bson.M{"nope": 1})}, pgsql.ErrUnknownField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New(postsTable(), tt.stages).Compile()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUnitIsImmutable(t *testing.T) {
	first, err := newUnit(postsTable()).addStage("$match", bson.M{"status": "a"})
	require.NoError(t, err)

	second, err := first.addStage("$sort", bson.M{"score": 1})
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Nil(t, first.sort)
	assert.Equal(t, rankMatch, first.rank)

	nested, err := second.addStage("$match", bson.M{"score": 2})
	require.NoError(t, err)
	assert.Nil(t, nested.sort)
	assert.Equal(t, bson.M{"status": "a"}, second.selector)

	sql, _ := mustCompile(t, first)
	assert.Equal(t, `SELECT * FROM "posts" WHERE "status" = $1`, sql)
}

func mustCompile(t *testing.T, u *Unit) (string, []any) {
	t.Helper()
	q, err := u.ToQuery()
	require.NoError(t, err)
	return q.Compile()
}
