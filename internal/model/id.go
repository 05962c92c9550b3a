package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// ID is a portable handle to an exported object: its kind plus the primary key
// it had in the source database. IDs are comparable and safe to use as map keys.
type ID struct {
	Kind string
	PK   any
}

// NewID builds an ID, normalising pk so that equal keys compare equal.
func NewID(kind string, pk any) (ID, error) {
	norm, err := NormalizePK(pk)
	if err != nil {
		return ID{}, fmt.Errorf("id for %s: %w", kind, err)
	}
	return ID{Kind: kind, PK: norm}, nil
}

func (id ID) String() string {
	return fmt.Sprintf("%s-%v", id.Kind, id.PK)
}

// IsZero reports whether id is the zero ID.
func (id ID) IsZero() bool {
	return id.Kind == "" && id.PK == nil
}

// NormalizePK converts a primary-key value to int64 or string. Integer types of
// any width collapse to int64, UUIDs become their canonical string form.
func NormalizePK(pk any) (any, error) {
	switch v := pk.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return uintPK(uint64(v))
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return uintPK(v)
	case float64:
		// YAML and JSON decoders hand back whole numbers as floats sometimes.
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("primary key %v is not a whole number", v)
		}
		return int64(v), nil
	case string:
		if v == "" {
			return nil, fmt.Errorf("primary key is empty")
		}
		return v, nil
	case uuid.UUID:
		return v.String(), nil
	case []byte:
		if len(v) == 16 {
			u, err := uuid.FromBytes(v)
			if err == nil {
				return u.String(), nil
			}
		}
		return string(v), nil
	case nil:
		return nil, fmt.Errorf("primary key is nil")
	default:
		return nil, fmt.Errorf("unsupported primary key type %T", pk)
	}
}

func uintPK(v uint64) (any, error) {
	if v > math.MaxInt64 {
		return nil, fmt.Errorf("primary key %d overflows int64", v)
	}
	return int64(v), nil
}

// Kind joins a namespace and a model name into a kind tag ("library:book").
func Kind(namespace, name string) string {
	return strings.ToLower(namespace) + ":" + strings.ToLower(name)
}

// ParseKind splits a kind tag into namespace and model name.
func ParseKind(kind string) (namespace, name string, err error) {
	namespace, name, ok := strings.Cut(kind, ":")
	if !ok || namespace == "" || name == "" || strings.Contains(name, ":") {
		return "", "", fmt.Errorf("invalid kind %q: must look like namespace:model", kind)
	}
	return namespace, name, nil
}
