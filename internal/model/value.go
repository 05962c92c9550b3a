package model

import (
	"fmt"
	"time"
)

// CheckValue verifies that v can be stored in a container and returns the
// canonical form: integers widen to int64, float32 widens to float64 and
// nested slices and maps are checked recursively.
func CheckValue(field string, v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, float64, int64, time.Time, ID:
		return val, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint:
		if uint64(val) > 1<<63-1 {
			return nil, &SerializationError{Field: field, Value: v, Reason: "unsigned value overflows int64"}
		}
		return int64(val), nil
	case uint64:
		if val > 1<<63-1 {
			return nil, &SerializationError{Field: field, Value: v, Reason: "unsigned value overflows int64"}
		}
		return int64(val), nil
	case float32:
		return float64(val), nil
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out, nil
	case []ID:
		out := make([]ID, len(val))
		copy(out, val)
		return out, nil
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			c, err := CheckValue(fmt.Sprintf("%s[%d]", field, i), item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			c, err := CheckValue(field+"."+k, item)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	default:
		return nil, &SerializationError{Field: field, Value: v, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
}

// FormatValue renders a record value for humans: references as kind-pk,
// strings quoted, bytes by length.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case ID:
		return val.String()
	case []ID:
		out := "["
		for i, id := range val {
			if i > 0 {
				out += ", "
			}
			out += id.String()
		}
		return out + "]"
	case string:
		return fmt.Sprintf("%q", val)
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(val))
	default:
		return fmt.Sprintf("%v", val)
	}
}
