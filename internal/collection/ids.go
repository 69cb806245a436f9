package collection

import (
	"maps"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/document"
)

// newID generates a document _id. Postgres generates the same form.
func newID() string {
	return uuid.NewString()
}

// withID returns doc when it has an _id, otherwise a copy carrying a new one.
func withID(doc core.Document) core.Document {
	if id, ok := doc["_id"]; ok && id != nil {
		return doc
	}
	out := maps.Clone(doc)
	if out == nil {
		out = core.Document{}
	}
	out["_id"] = newID()
	return out
}

// withUpsertID returns an operator modifier whose $setOnInsert carries a new
// _id, so an upsert inserts the same _id everywhere. Replacement documents,
// selectors pinning _id by equality and modifiers that already set _id are
// returned unchanged.
func withUpsertID(selector, modifier any) any {
	if !isOperatorDocument(modifier) {
		return modifier
	}
	if v, ok := document.Get(document.Selector(selector), "_id"); ok {
		if _, pinned := equalityValue(v); pinned {
			return modifier
		}
	}

	entries := entriesOf(modifier)
	out := make(bson.D, 0, len(entries)+1)
	seeded := false
	for _, e := range entries {
		if e.Key != "$setOnInsert" {
			if e.Key == "$set" {
				if _, ok := document.Get(e.Value, "_id"); ok {
					return modifier
				}
			}
			out = append(out, bson.E{Key: e.Key, Value: e.Value})
			continue
		}
		fields := bson.D{}
		for _, f := range entriesOf(e.Value) {
			if f.Key == "_id" {
				return modifier
			}
			fields = append(fields, bson.E{Key: f.Key, Value: f.Value})
		}
		out = append(out, bson.E{Key: e.Key, Value: append(fields, bson.E{Key: "_id", Value: newID()})})
		seeded = true
	}
	if !seeded {
		out = append(out, bson.E{Key: "$setOnInsert", Value: bson.D{{Key: "_id", Value: newID()}}})
	}
	return out
}

// withBulkIDs copies operations, giving inserts and upserts a generated _id.
func withBulkIDs(operations []core.BulkOperation) []core.BulkOperation {
	out := make([]core.BulkOperation, len(operations))
	for i, op := range operations {
		switch {
		case op.Type == core.BulkInsertOne:
			op.Document = withID(op.Document)
		case op.Upsert && (op.Type == core.BulkUpdateOne || op.Type == core.BulkUpdateMany):
			op.Update = withUpsertID(op.Filter, op.Update)
		}
		out[i] = op
	}
	return out
}
