// Package document gives an ordered, read-only view over the document values
// callers pass as selectors, modifiers and pipeline stages. Ordered documents
// (bson.D) keep their order. Plain maps are visited in key order so that
// compiling the same input twice produces the same output.
package document

import (
	"math"
	"reflect"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Entry is one key/value pair of a document.
type Entry struct {
	Key   string
	Value any
}

// Entries returns the key/value pairs of v in iteration order.
// The second return value is false when v is not a document.
func Entries(v any) ([]Entry, bool) {
	switch d := v.(type) {
	case bson.D:
		out := make([]Entry, 0, len(d))
		for _, e := range d {
			out = append(out, Entry{Key: e.Key, Value: e.Value})
		}
		return out, true
	case *bson.D:
		if d == nil {
			return nil, false
		}
		return Entries(*d)
	case bson.M:
		return sortedEntries(d), true
	case map[string]any:
		return sortedEntries(d), true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make([]Entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out = append(out, Entry{Key: iter.Key().String(), Value: iter.Value().Interface()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, true
}

func sortedEntries(m map[string]any) []Entry {
	out := make([]Entry, 0, len(m))
	for k, val := range m {
		out = append(out, Entry{Key: k, Value: val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// IsDocument reports whether v is a document.
func IsDocument(v any) bool {
	_, ok := Entries(v)
	return ok
}

// Keys returns the keys of a document in iteration order.
func Keys(v any) []string {
	entries, _ := Entries(v)
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys
}

// Get returns the value stored under key.
func Get(v any, key string) (any, bool) {
	entries, ok := Entries(v)
	if !ok {
		return nil, false
	}
	for _, e := range entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Array returns the elements of v when v is a slice or array.
// Byte slices and strings are not arrays.
func Array(v any) ([]any, bool) {
	switch a := v.(type) {
	case bson.A:
		return []any(a), true
	case []any:
		return a, true
	case []byte, string, nil, bson.D:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// IsArray reports whether v is a slice or array value.
func IsArray(v any) bool {
	_, ok := Array(v)
	return ok
}

// IsUndefined reports whether v is the document-store "undefined" value.
func IsUndefined(v any) bool {
	switch v.(type) {
	case primitive.Undefined, *primitive.Undefined:
		return true
	}
	return false
}

// Number converts any Go numeric value to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// IsIntegral reports whether v is a number without a fractional part.
func IsIntegral(v any) bool {
	f, ok := Number(v)
	return ok && !math.IsInf(f, 0) && f == math.Trunc(f)
}

// ToMap converts a document into a plain map, recursively converting nested
// documents and arrays. Non-document values yield nil.
func ToMap(v any) map[string]any {
	entries, ok := Entries(v)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(entries))
	for _, e := range entries {
		out[e.Key] = Plain(e.Value)
	}
	return out
}

// Plain converts nested documents to map[string]any and arrays to []any.
// Other values are returned unchanged.
func Plain(v any) any {
	if IsDocument(v) {
		return ToMap(v)
	}
	if arr, ok := Array(v); ok {
		out := make([]any, len(arr))
		for i, el := range arr {
			out[i] = Plain(el)
		}
		return out
	}
	return v
}

// Selector normalizes the shorthand selector forms: a string or ObjectID is
// an _id lookup and nil matches everything.
func Selector(v any) any {
	switch s := v.(type) {
	case nil:
		return bson.D{}
	case string, primitive.ObjectID:
		return bson.D{{Key: "_id", Value: s}}
	}
	return v
}
