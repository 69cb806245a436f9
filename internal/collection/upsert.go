package collection

import (
	"strings"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/document"
)

// upsertDocument builds the document inserted when an upsert matches
// nothing: the equality fields of the selector, then the modifier's
// $set, $setOnInsert, $inc, $push and $addToSet values. A replacement
// document is used as is, keeping the selector's _id.
func upsertDocument(selector, modifier any) core.Document {
	doc := core.Document{}
	for _, e := range entriesOf(selector) {
		if strings.HasPrefix(e.Key, "$") || strings.Contains(e.Key, ".") {
			continue
		}
		if value, ok := equalityValue(e.Value); ok {
			doc[e.Key] = document.Plain(value)
		}
	}

	entries := entriesOf(modifier)
	if len(entries) > 0 && !strings.HasPrefix(entries[0].Key, "$") {
		replacement := core.Document{}
		for _, e := range entries {
			replacement[e.Key] = document.Plain(e.Value)
		}
		if id, ok := doc["_id"]; ok {
			if _, has := replacement["_id"]; !has {
				replacement["_id"] = id
			}
		}
		return replacement
	}

	for _, e := range entries {
		for _, f := range entriesOf(e.Value) {
			switch e.Key {
			case "$set", "$setOnInsert", "$inc":
				setPath(doc, f.Key, document.Plain(f.Value))
			case "$push", "$addToSet":
				if each, ok := document.Get(f.Value, "$each"); ok {
					setPath(doc, f.Key, document.Plain(each))
				} else {
					setPath(doc, f.Key, []any{document.Plain(f.Value)})
				}
			}
		}
	}
	return doc
}

// equalityValue returns the value a selector condition pins a field to.
func equalityValue(cond any) (any, bool) {
	if !document.IsDocument(cond) {
		return cond, true
	}
	entries := entriesOf(cond)
	if len(entries) == 1 && entries[0].Key == "$eq" {
		return entries[0].Value, true
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Key, "$") {
			return nil, false
		}
	}
	return cond, true
}

// setPath assigns value at a dotted path, creating nested documents.
func setPath(doc core.Document, path string, value any) {
	segments := strings.Split(path, ".")
	current := doc
	for _, seg := range segments[:len(segments)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[seg] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

func entriesOf(v any) []document.Entry {
	entries, _ := document.Entries(v)
	return entries
}

// isOperatorDocument reports whether a modifier uses update operators as
// opposed to being a replacement document.
func isOperatorDocument(modifier any) bool {
	entries := entriesOf(modifier)
	return len(entries) > 0 && strings.HasPrefix(entries[0].Key, "$")
}

// onlyInsertOperators reports whether a modifier changes nothing on
// documents that already exist.
func onlyInsertOperators(modifier any) bool {
	entries := entriesOf(modifier)
	if len(entries) == 0 {
		return false
	}
	for _, e := range entries {
		if e.Key != "$setOnInsert" {
			return false
		}
	}
	return true
}
