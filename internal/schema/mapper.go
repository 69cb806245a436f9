package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/rzpsarthak13/docbridge/internal/document"
)

// TypeMapper converts values between their document form and the Go values
// pgx encodes for each column Type.
type TypeMapper struct{}

// NewTypeMapper creates a new type mapper.
func NewTypeMapper() *TypeMapper {
	return &TypeMapper{}
}

// ConvertToDBValue converts a document value into a value suitable for a
// column of type t. Nil stays nil.
func (tm *TypeMapper) ConvertToDBValue(value any, t Type) (any, error) {
	if value == nil || document.IsUndefined(value) {
		return nil, nil
	}

	switch c := Concrete(t).(type) {
	case String, ID:
		return tm.toString(value)
	case Bool:
		return tm.toBool(value)
	case Int:
		return tm.toInt64(value)
	case Float:
		return tm.toFloat64(value)
	case Date:
		return tm.toTime(value)
	case JSON:
		return tm.toJSON(value)
	case Array:
		return tm.toArray(value, c.Subtype)
	case Unknown:
		return nil, ErrUnknownType
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownType, t)
}

// ConvertFromDBValue converts a value scanned by pgx back into its document
// form for a column of type t.
func (tm *TypeMapper) ConvertFromDBValue(value any, t Type) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch c := Concrete(t).(type) {
	case String, ID:
		return tm.toString(value)
	case Bool:
		return tm.toBool(value)
	case Int:
		return tm.toInt64(value)
	case Float:
		return tm.toFloat64(value)
	case Date:
		return tm.toTime(value)
	case JSON:
		return tm.fromJSON(value)
	case Array:
		elems, ok := document.Array(value)
		if !ok {
			return nil, fmt.Errorf("cannot convert %T to array", value)
		}
		out := make([]any, len(elems))
		for i, el := range elems {
			converted, err := tm.ConvertFromDBValue(el, c.Subtype)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = converted
		}
		return out, nil
	}
	return value, nil
}

func (tm *TypeMapper) toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string to int64: %w", err)
		}
		return i, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	n, ok := document.Number(value)
	if !ok {
		return 0, fmt.Errorf("cannot convert %T to int64", value)
	}
	if n != math.Trunc(n) {
		return 0, fmt.Errorf("cannot convert non-integral %v to int64", value)
	}
	return int64(n), nil
}

func (tm *TypeMapper) toFloat64(value any) (float64, error) {
	if v, ok := value.(string); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string to float64: %w", err)
		}
		return f, nil
	}
	n, ok := document.Number(value)
	if !ok {
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
	return n, nil
}

func (tm *TypeMapper) toString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case primitive.ObjectID:
		return v.Hex(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.Format(time.RFC3339), nil
	}
	if document.IsIntegral(value) {
		n, _ := document.Number(value)
		return strconv.FormatInt(int64(n), 10), nil
	}
	if n, ok := document.Number(value); ok {
		return strconv.FormatFloat(n, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("cannot convert %T to string", value)
}

func (tm *TypeMapper) toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("cannot convert string to bool: %w", err)
		}
		return b, nil
	}
	if n, ok := document.Number(value); ok {
		return n != 0, nil
	}
	return false, fmt.Errorf("cannot convert %T to bool", value)
}

func (tm *TypeMapper) toTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("cannot convert nil *time.Time")
		}
		return *v, nil
	case primitive.DateTime:
		return v.Time(), nil
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0), nil
	case string:
		formats := []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05",
			"2006-01-02",
		}
		for _, format := range formats {
			if t, err := time.Parse(format, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse time string: %s", v)
	case int64:
		// Milliseconds since the epoch, as document stores represent dates.
		return time.UnixMilli(v), nil
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to time.Time", value)
}

// toJSON returns a value pgx encodes as JSONB.
func (tm *TypeMapper) toJSON(value any) (any, error) {
	switch v := value.(type) {
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			// A bare string is a valid JSON document too.
			return v, nil
		}
		return parsed, nil
	case []byte:
		var parsed any
		if err := json.Unmarshal(v, &parsed); err != nil {
			return nil, fmt.Errorf("cannot parse JSON bytes: %w", err)
		}
		return parsed, nil
	}
	plain := document.Plain(value)
	if _, err := json.Marshal(plain); err != nil {
		return nil, fmt.Errorf("cannot marshal %T to JSON: %w", value, err)
	}
	return plain, nil
}

func (tm *TypeMapper) fromJSON(value any) (any, error) {
	switch v := value.(type) {
	case []byte:
		var parsed any
		if err := json.Unmarshal(v, &parsed); err != nil {
			return nil, fmt.Errorf("cannot parse JSON bytes: %w", err)
		}
		return parsed, nil
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return v, nil
		}
		return parsed, nil
	}
	return document.Plain(value), nil
}

// toArray converts each element and returns a typed slice pgx can encode
// as a Postgres array of the subtype.
func (tm *TypeMapper) toArray(value any, subtype Type) (any, error) {
	elems, ok := document.Array(value)
	if !ok {
		// A scalar assigned to an array column becomes a one element array.
		elems = []any{value}
	}

	switch Concrete(subtype).(type) {
	case String, ID:
		out := make([]string, len(elems))
		for i, el := range elems {
			s, err := tm.toString(el)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = s
		}
		return out, nil
	case Bool:
		out := make([]bool, len(elems))
		for i, el := range elems {
			b, err := tm.toBool(el)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = b
		}
		return out, nil
	case Int:
		out := make([]int64, len(elems))
		for i, el := range elems {
			n, err := tm.toInt64(el)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case Float:
		out := make([]float64, len(elems))
		for i, el := range elems {
			n, err := tm.toFloat64(el)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case Date:
		out := make([]time.Time, len(elems))
		for i, el := range elems {
			ts, err := tm.toTime(el)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = ts
		}
		return out, nil
	}

	out := make([]any, len(elems))
	for i, el := range elems {
		j, err := tm.toJSON(el)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = j
	}
	return out, nil
}
