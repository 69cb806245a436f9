package pgsql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/schema"
)

func TestNewCreateTableQuery(t *testing.T) {
	table := NewTable("notes", map[string]schema.Type{
		"_id":   schema.String{},
		"title": schema.DefaultValue{Type: schema.NotNull{Type: schema.String{}}, Value: ""},
		"tags":  schema.DefaultValue{Type: schema.NotNull{Type: schema.NewArray(schema.String{})}, Value: []any{}},
		"score": schema.Int{},
	})

	q, err := NewCreateTableQuery(table, true)
	require.NoError(t, err)
	sql, args := q.Compile()
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "notes" ( "_id" TEXT PRIMARY KEY, "score" INTEGER, "tags" TEXT[] NOT NULL DEFAULT '{}'::TEXT[], "title" TEXT NOT NULL DEFAULT '' )`,
		sql)
	assert.Empty(t, args)

	q, err = NewCreateTableQuery(NewTable("x", map[string]schema.Type{"_id": schema.Unknown{}}), false)
	assert.Nil(t, q)
	assert.ErrorIs(t, err, schema.ErrUnknownType)
}

func TestNewCreateIndexQuery(t *testing.T) {
	tests := []struct {
		name     string
		spec     core.IndexSpec
		wantName string
		wantSQL  string
	}{
		{
			name:     "compound",
			spec:     core.IndexSpec{Keys: []core.IndexKey{{Field: "status", Direction: 1}, {Field: "score", Direction: -1}}},
			wantName: "idx_posts_status_score",
			wantSQL:  `CREATE INDEX IF NOT EXISTS "idx_posts_status_score" ON "posts" USING btree ( "status" , "score" DESC )`,
		},
		{
			name:     "unique nullable text is coalesced",
			spec:     core.IndexSpec{Keys: []core.IndexKey{{Field: "userId", Direction: 1}}, Unique: true},
			wantName: "idx_posts_userId",
			wantSQL:  `CREATE UNIQUE INDEX IF NOT EXISTS "idx_posts_userId" ON "posts" USING btree ( (COALESCE("userId", '')) )`,
		},
		{
			name:     "unique non-nullable column",
			spec:     core.IndexSpec{Name: "by_status", Keys: []core.IndexKey{{Field: "status", Direction: 1}}, Unique: true},
			wantName: "by_status",
			wantSQL:  `CREATE UNIQUE INDEX IF NOT EXISTS "by_status" ON "posts" USING btree ( "status" )`,
		},
		{
			name:     "path through array column",
			spec:     core.IndexSpec{Keys: []core.IndexKey{{Field: "coauthors.userId", Direction: 1}}},
			wantName: "idx_posts_coauthors_userId",
			wantSQL:  `CREATE INDEX IF NOT EXISTS "idx_posts_coauthors_userId" ON "posts" USING btree ( ("coauthors"->'userId') )`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewCreateIndexQuery(postsTable(), tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, q.Name())
			sql, _ := q.Compile()
			assert.Equal(t, tt.wantSQL, sql)
		})
	}

	_, err := NewCreateIndexQuery(postsTable(), core.IndexSpec{})
	assert.ErrorIs(t, err, ErrMalformedSelector)
}

func TestDropAndListIndexes(t *testing.T) {
	sql, args := NewDropIndexQuery("idx_posts_status").Compile()
	assert.Equal(t, `DROP INDEX IF EXISTS "idx_posts_status"`, sql)
	assert.Empty(t, args)

	sql, args = NewListIndexesQuery(postsTable()).Compile()
	assert.Equal(t, `SELECT indexname, indexdef FROM pg_indexes WHERE tablename = $1`, sql)
	assert.Equal(t, []any{"posts"}, args)
}

func TestParseIndexDef(t *testing.T) {
	tests := []struct {
		name string
		def  string
		want core.IndexSpec
	}{
		{
			name: "compound",
			def:  `CREATE INDEX idx_posts_status_score ON public.posts USING btree (status, score DESC)`,
			want: core.IndexSpec{Name: "i", Keys: []core.IndexKey{{Field: "status", Direction: 1}, {Field: "score", Direction: -1}}},
		},
		{
			name: "unique coalesced",
			def:  `CREATE UNIQUE INDEX idx_posts_userId ON public.posts USING btree (COALESCE("userId", ''::text))`,
			want: core.IndexSpec{Name: "i", Unique: true, Keys: []core.IndexKey{{Field: "userId", Direction: 1}}},
		},
		{
			name: "unrecognised",
			def:  `something else`,
			want: core.IndexSpec{Name: "i"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseIndexDef("i", tt.def))
		})
	}
}
