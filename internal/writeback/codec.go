package writeback

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/document"
)

// envelope is the wire form of a backfill operation. The document travels as
// canonical Extended JSON so ObjectIDs and dates survive the round trip.
type envelope struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Target     string          `json:"target"`
	Document   json.RawMessage `json:"document"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retry_count"`
}

func encodeOperation(op *core.BackfillOperation) ([]byte, error) {
	doc := op.Document
	if doc == nil {
		doc = core.Document{}
	}
	raw, err := bson.MarshalExtJSON(doc, true, false)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document of operation %s: %w", op.ID, err)
	}
	return json.Marshal(envelope{
		ID:         op.ID,
		Collection: op.Collection,
		Target:     op.Target,
		Document:   raw,
		Timestamp:  op.Timestamp,
		RetryCount: op.RetryCount,
	})
}

func decodeOperation(data []byte) (*core.BackfillOperation, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode backfill operation: %w", err)
	}
	var doc bson.M
	if len(env.Document) > 0 {
		if err := bson.UnmarshalExtJSON(env.Document, true, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document of operation %s: %w", env.ID, err)
		}
	}
	return &core.BackfillOperation{
		ID:         env.ID,
		Collection: env.Collection,
		Target:     env.Target,
		Document:   document.ToMap(doc),
		Timestamp:  env.Timestamp,
		RetryCount: env.RetryCount,
	}, nil
}
