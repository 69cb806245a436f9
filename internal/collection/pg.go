// Package collection implements core.Collection over each backing store and
// the routing collection that switches between them.
package collection

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/database"
	"github.com/rzpsarthak13/docbridge/internal/document"
	"github.com/rzpsarthak13/docbridge/internal/pgsql"
	"github.com/rzpsarthak13/docbridge/internal/pipeline"
	"github.com/rzpsarthak13/docbridge/internal/schema"
)

// pingTimeout bounds the connectivity check behind IsConnected.
const pingTimeout = 2 * time.Second

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgCollection implements core.Collection on a Postgres table.
type PgCollection struct {
	name       string
	table      *pgsql.Table
	pool       database.Pool
	translator *schema.Translator

	mu      sync.RWMutex
	options map[string]any
}

// NewPgCollection creates a collection backed by table.
func NewPgCollection(name string, table *pgsql.Table, pool database.Pool) *PgCollection {
	return &PgCollection{
		name:       name,
		table:      table,
		pool:       pool,
		translator: schema.NewTranslator(table.Fields()),
		options:    map[string]any{},
	}
}

// Name returns the collection name.
func (c *PgCollection) Name() string {
	return c.name
}

// Table returns the table the collection is stored in.
func (c *PgCollection) Table() *pgsql.Table {
	return c.table
}

// CreateTable creates the table and its declared indexes if they are missing.
func (c *PgCollection) CreateTable(ctx context.Context) error {
	q, err := pgsql.NewCreateTableQuery(c.table, true)
	if err != nil {
		return fmt.Errorf("failed to build CREATE TABLE for %s: %w", c.name, err)
	}
	if _, err := c.exec(ctx, c.pool, q.Query); err != nil {
		return err
	}
	for _, idx := range c.table.Indexes() {
		if err := c.EnsureIndex(ctx, idx); err != nil {
			return err
		}
	}
	zap.S().Infof("[PG] Table %s is ready", c.table.Name())
	return nil
}

// Find returns every matching document.
func (c *PgCollection) Find(ctx context.Context, selector any, opts *core.FindOptions) ([]core.Document, error) {
	q, err := pgsql.NewSelectQuery(c.table, document.Selector(selector), selectOptions(opts), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compile find on %s: %w", c.name, err)
	}
	return c.query(ctx, c.pool, q.Query, "")
}

// FindOne returns the first matching document or nil.
func (c *PgCollection) FindOne(ctx context.Context, selector any, opts *core.FindOptions) (core.Document, error) {
	one := &core.FindOptions{Limit: 1}
	if opts != nil {
		one.Sort, one.Skip, one.Projection = opts.Sort, opts.Skip, opts.Projection
	}
	docs, err := c.Find(ctx, selector, one)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// FindOneArbitrary returns any document of the collection.
func (c *PgCollection) FindOneArbitrary(ctx context.Context) (core.Document, error) {
	return c.FindOne(ctx, nil, nil)
}

// Count returns the number of matching documents.
func (c *PgCollection) Count(ctx context.Context, selector any) (int64, error) {
	q, err := pgsql.NewSelectQuery(c.table, document.Selector(selector), nil, &pgsql.SQLOptions{Count: true})
	if err != nil {
		return 0, fmt.Errorf("failed to compile count on %s: %w", c.name, err)
	}
	sql, args := q.Compile()
	zap.S().Debugf("[PG] %s %v", sql, args)

	var n int64
	if err := c.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c.name, err)
	}
	return n, nil
}

// Aggregate runs an aggregation pipeline translated into nested SELECTs.
func (c *PgCollection) Aggregate(ctx context.Context, stages []any) ([]core.Document, error) {
	q, err := pipeline.New(c.table, stages).ToQuery()
	if err != nil {
		return nil, fmt.Errorf("failed to compile pipeline on %s: %w", c.name, err)
	}
	return c.query(ctx, c.pool, q.Query, "")
}

// Indexes lists the indexes Postgres reports for the table.
func (c *PgCollection) Indexes(ctx context.Context) ([]core.IndexSpec, error) {
	sql, args := pgsql.NewListIndexesQuery(c.table).Compile()
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes of %s: %w", c.name, err)
	}
	defer rows.Close()

	var specs []core.IndexSpec
	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return nil, fmt.Errorf("failed to scan index of %s: %w", c.name, err)
		}
		specs = append(specs, pgsql.ParseIndexDef(name, def))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list indexes of %s: %w", c.name, err)
	}
	return specs, nil
}

// RawInsert validates and inserts a document. A missing _id is generated.
func (c *PgCollection) RawInsert(ctx context.Context, doc core.Document) (string, error) {
	return c.insert(ctx, c.pool, doc)
}

func (c *PgCollection) insert(ctx context.Context, db execer, doc core.Document) (string, error) {
	doc = maps.Clone(doc)
	if doc == nil {
		doc = core.Document{}
	}
	if id, ok := doc["_id"]; !ok || id == nil {
		doc["_id"] = newID()
	}

	row, err := c.translator.ToRow(doc)
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", c.name, err)
	}
	q, err := pgsql.NewInsertQuery(c.table, row, false)
	if err != nil {
		return "", fmt.Errorf("failed to compile insert into %s: %w", c.name, err)
	}
	if _, err := c.exec(ctx, db, q.Query); err != nil {
		return "", err
	}
	return fmt.Sprint(row["_id"]), nil
}

// RawUpdateOne updates at most one matching document.
func (c *PgCollection) RawUpdateOne(ctx context.Context, selector, modifier any) (int64, error) {
	return c.update(ctx, c.pool, selector, modifier, true)
}

// RawUpdateMany updates every matching document.
func (c *PgCollection) RawUpdateMany(ctx context.Context, selector, modifier any) (int64, error) {
	return c.update(ctx, c.pool, selector, modifier, false)
}

// UpdateOne is RawUpdateOne.
func (c *PgCollection) UpdateOne(ctx context.Context, selector, modifier any) (int64, error) {
	return c.RawUpdateOne(ctx, selector, modifier)
}

// UpdateMany is RawUpdateMany.
func (c *PgCollection) UpdateMany(ctx context.Context, selector, modifier any) (int64, error) {
	return c.RawUpdateMany(ctx, selector, modifier)
}

func (c *PgCollection) update(ctx context.Context, db execer, selector, modifier any, limit1 bool) (int64, error) {
	selector = document.Selector(selector)
	if onlyInsertOperators(modifier) {
		n, err := c.Count(ctx, selector)
		if limit1 && n > 1 {
			n = 1
		}
		return n, err
	}

	modifier, err := c.replacementRow(modifier)
	if err != nil {
		return 0, err
	}
	q, err := pgsql.NewUpdateQuery(c.table, selector, modifier, pgsql.UpdateOptions{Limit1: limit1})
	if err != nil {
		return 0, fmt.Errorf("failed to compile update on %s: %w", c.name, err)
	}
	return c.exec(ctx, db, q.Query)
}

// replacementRow converts a replacement document into column values.
// Operator modifiers are returned unchanged.
func (c *PgCollection) replacementRow(modifier any) (any, error) {
	if isOperatorDocument(modifier) {
		return modifier, nil
	}
	doc := core.Document{}
	for _, e := range entriesOf(modifier) {
		if e.Key != "_id" {
			doc[e.Key] = document.Plain(e.Value)
		}
	}
	if err := c.translator.Validator().ValidateDocument(doc); err != nil {
		return nil, fmt.Errorf("invalid replacement for %s: %w", c.name, err)
	}
	row, err := c.translator.ToRow(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid replacement for %s: %w", c.name, err)
	}
	return row, nil
}

// RawRemove deletes every matching document.
func (c *PgCollection) RawRemove(ctx context.Context, selector any) (int64, error) {
	return c.remove(ctx, c.pool, selector, false)
}

func (c *PgCollection) remove(ctx context.Context, db execer, selector any, limit1 bool) (int64, error) {
	q, err := pgsql.NewDeleteQuery(c.table, document.Selector(selector), limit1)
	if err != nil {
		return 0, fmt.Errorf("failed to compile delete on %s: %w", c.name, err)
	}
	return c.exec(ctx, db, q.Query)
}

// EnsureIndex creates an index if it does not exist.
func (c *PgCollection) EnsureIndex(ctx context.Context, index core.IndexSpec) error {
	q, err := pgsql.NewCreateIndexQuery(c.table, index)
	if err != nil {
		return fmt.Errorf("failed to compile index on %s: %w", c.name, err)
	}
	if _, err := c.exec(ctx, c.pool, q.Query); err != nil {
		return err
	}
	zap.S().Debugf("[PG] Ensured index %s on %s", q.Name(), c.table.Name())
	return nil
}

// DropIndex drops an index by name.
func (c *PgCollection) DropIndex(ctx context.Context, name string) error {
	_, err := c.exec(ctx, c.pool, pgsql.NewDropIndexQuery(name).Query)
	return err
}

// BulkWrite applies the operations in order inside a single transaction.
func (c *PgCollection) BulkWrite(ctx context.Context, operations []core.BulkOperation) (result *core.BulkWriteResult, err error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin bulk write on %s: %w", c.name, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				zap.S().Errorf("[PG] Rollback of bulk write on %s failed: %v", c.name, rbErr)
			}
		}
	}()

	result = &core.BulkWriteResult{}
	for i, op := range operations {
		if err = c.applyBulkOperation(ctx, tx, op, result); err != nil {
			return nil, fmt.Errorf("bulk operation %d (%s): %w", i, op.Type, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit bulk write on %s: %w", c.name, err)
	}
	return result, nil
}

func (c *PgCollection) applyBulkOperation(ctx context.Context, tx pgx.Tx, op core.BulkOperation, result *core.BulkWriteResult) error {
	switch op.Type {
	case core.BulkInsertOne:
		if _, err := c.insert(ctx, tx, op.Document); err != nil {
			return err
		}
		result.InsertedCount++

	case core.BulkUpdateOne, core.BulkUpdateMany, core.BulkReplaceOne:
		modifier := op.Update
		if op.Type == core.BulkReplaceOne {
			modifier = op.Replacement
		}
		n, err := c.update(ctx, tx, op.Filter, modifier, op.Type != core.BulkUpdateMany)
		if err != nil {
			return err
		}
		result.MatchedCount += n
		result.ModifiedCount += n
		if n == 0 && op.Upsert {
			if _, err := c.insert(ctx, tx, upsertDocument(op.Filter, modifier)); err != nil {
				return err
			}
			result.UpsertedCount++
		}

	case core.BulkDeleteOne, core.BulkDeleteMany:
		n, err := c.remove(ctx, tx, op.Filter, op.Type == core.BulkDeleteOne)
		if err != nil {
			return err
		}
		result.DeletedCount += n

	default:
		return fmt.Errorf("%w: bulk operation %q", pgsql.ErrUnsupportedOperator, op.Type)
	}
	return nil
}

// FindOneAndUpdate locks the first matching document, updates it with
// UPDATE .. RETURNING and returns the document before or after the update.
// With upsert a seeded document is inserted when nothing matches.
func (c *PgCollection) FindOneAndUpdate(ctx context.Context, selector, modifier any, opts *core.FindOneAndUpdateOptions) (doc core.Document, err error) {
	if opts == nil {
		opts = &core.FindOneAndUpdateOptions{}
	}
	selector = document.Selector(selector)

	find, err := pgsql.NewSelectQuery(c.table, selector, &pgsql.SelectOptions{Sort: opts.Sort, Limit: 1}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compile find on %s: %w", c.name, err)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin find-and-update on %s: %w", c.name, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				zap.S().Errorf("[PG] Rollback of find-and-update on %s failed: %v", c.name, rbErr)
			}
		}
	}()

	found, err := c.query(ctx, tx, find.Query, " FOR UPDATE")
	if err != nil {
		return nil, err
	}

	if len(found) == 0 {
		if opts.Upsert {
			seeded := upsertDocument(selector, modifier)
			id, insertErr := c.insert(ctx, tx, seeded)
			if insertErr != nil {
				return nil, insertErr
			}
			seeded["_id"] = id
			if opts.ReturnNew {
				doc = seeded
			}
		}
		if err = tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit find-and-update on %s: %w", c.name, err)
		}
		return doc, nil
	}

	old := found[0]
	modifier, err = c.replacementRow(modifier)
	if err != nil {
		return nil, err
	}
	doc = old
	if !onlyInsertOperators(modifier) {
		upd, buildErr := pgsql.NewUpdateQuery(c.table, bson.D{{Key: "_id", Value: old["_id"]}}, modifier, pgsql.UpdateOptions{Returning: true})
		if buildErr != nil {
			return nil, fmt.Errorf("failed to compile update on %s: %w", c.name, buildErr)
		}
		updated, queryErr := c.query(ctx, tx, upd.Query, "")
		if queryErr != nil {
			return nil, queryErr
		}
		if opts.ReturnNew && len(updated) > 0 {
			doc = updated[0]
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit find-and-update on %s: %w", c.name, err)
	}
	return doc, nil
}

// Options returns a copy of the collection options.
func (c *PgCollection) Options() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.options)
}

// SetOption sets a collection option.
func (c *PgCollection) SetOption(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.options[key] = value
}

// IsConnected pings the pool.
func (c *PgCollection) IsConnected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return c.pool.Ping(ctx) == nil
}

// query runs a SELECT and decodes the rows. suffix is appended to the
// compiled SQL.
func (c *PgCollection) query(ctx context.Context, db execer, q *pgsql.Query, suffix string) ([]core.Document, error) {
	sql, args := q.Compile()
	sql += suffix
	zap.S().Debugf("[PG] %s %v", sql, args)

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query on %s failed: %w", c.name, err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of %s: %w", c.name, err)
	}

	docs := make([]core.Document, 0, len(records))
	for _, record := range records {
		doc, err := c.translator.FromRow(record)
		if err != nil {
			return nil, fmt.Errorf("failed to decode row of %s: %w", c.name, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *PgCollection) exec(ctx context.Context, db execer, q *pgsql.Query) (int64, error) {
	sql, args := q.Compile()
	zap.S().Debugf("[PG] %s %v", sql, args)

	tag, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("statement on %s failed: %w", c.name, err)
	}
	return tag.RowsAffected(), nil
}

func selectOptions(opts *core.FindOptions) *pgsql.SelectOptions {
	if opts == nil {
		return nil
	}
	return &pgsql.SelectOptions{
		Sort:       opts.Sort,
		Limit:      opts.Limit,
		Skip:       opts.Skip,
		Projection: opts.Projection,
	}
}

var _ core.Collection = (*PgCollection)(nil)
