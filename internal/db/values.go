package db

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ALT-F4-LLC/haul/internal/model"
)

// toDB converts a record value into a driver argument for column c.
func toDB(d Dialect, c Column, v any) (any, error) {
	v, err := model.CheckValue(c.Name, v)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	switch c.Type {
	case TypeInteger:
		switch n := v.(type) {
		case int64:
			return n, nil
		case float64:
			if n == float64(int64(n)) {
				return int64(n), nil
			}
		}
	case TypeReal:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		}
	case TypeText:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			if d == SQLite {
				if b {
					return int64(1), nil
				}
				return int64(0), nil
			}
			return b, nil
		}
	case TypeTimestamp:
		if t, ok := v.(time.Time); ok {
			if d == SQLite {
				return t.UTC().Format(time.RFC3339Nano), nil
			}
			return t, nil
		}
	case TypeBlob:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	case TypeJSON:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s as json: %w", c.Name, err)
		}
		return string(data), nil
	}
	return nil, fmt.Errorf("column %s (%s) cannot hold %T", c.Name, c.Type, v)
}

// fromDB converts a scanned driver value into the canonical record form for
// column c.
func fromDB(c Column, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch c.Type {
	case TypeInteger:
		switch n := raw.(type) {
		case int64:
			return n, nil
		case int32:
			return int64(n), nil
		case float64:
			return int64(n), nil
		}
	case TypeReal:
		switch n := raw.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case TypeText:
		switch s := raw.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case TypeBool:
		switch b := raw.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		}
	case TypeTimestamp:
		switch t := raw.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			return parseTime(c.Name, t)
		case []byte:
			return parseTime(c.Name, string(t))
		}
	case TypeBlob:
		switch b := raw.(type) {
		case []byte:
			out := make([]byte, len(b))
			copy(out, b)
			return out, nil
		case string:
			return []byte(b), nil
		}
	case TypeJSON:
		switch j := raw.(type) {
		case string:
			return decodeJSON(c.Name, []byte(j))
		case []byte:
			return decodeJSON(c.Name, j)
		default:
			return model.CheckValue(c.Name, j)
		}
	}
	return nil, fmt.Errorf("column %s (%s): unexpected driver value %T", c.Name, c.Type, raw)
}

func parseTime(col, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("column %s: parsing timestamp %q: %w", col, s, err)
	}
	return t.UTC(), nil
}

func decodeJSON(col string, data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("column %s: decoding json: %w", col, err)
	}
	return jsonNumbers(v), nil
}

// jsonNumbers turns json.Number into int64 where it fits, float64 otherwise.
func jsonNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(string(val), 10, 64); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case []any:
		for i := range val {
			val[i] = jsonNumbers(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = jsonNumbers(val[k])
		}
		return val
	}
	return v
}

// keyToDB converts a normalised primary key for use as a query argument.
func keyToDB(t *Table, pk any) (any, error) {
	norm, err := model.NormalizePK(pk)
	if err != nil {
		return nil, err
	}
	switch t.PKType {
	case TypeText:
		if s, ok := norm.(string); ok {
			return s, nil
		}
		return fmt.Sprint(norm), nil
	default:
		switch k := norm.(type) {
		case int64:
			return k, nil
		case string:
			i, err := strconv.ParseInt(k, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s primary key %q is not an integer", t.kind, k)
			}
			return i, nil
		}
	}
	return nil, fmt.Errorf("%s: unsupported primary key %T", t.kind, pk)
}

// keyFromDB normalises a scanned primary key.
func keyFromDB(raw any) (any, error) {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	return model.NormalizePK(raw)
}
