package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ALT-F4-LLC/haul/internal/model"
)

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func str(s string) *yaml.Node { return scalar("!!str", s) }

func mapping(tag string) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: tag}
}

func put(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, str(key), value)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

func idNode(id model.ID) (*yaml.Node, error) {
	pk, err := valueNode("pk", id.PK)
	if err != nil {
		return nil, err
	}
	m := mapping(tagID)
	m.Style = yaml.FlowStyle
	put(m, "kind", str(id.Kind))
	put(m, "pk", pk)
	return m, nil
}

// valueNode converts a record value into a YAML node. field names the value
// in errors.
func valueNode(field string, v any) (*yaml.Node, error) {
	switch val := v.(type) {
	case nil:
		return scalar("!!null", "null"), nil
	case bool:
		return scalar("!!bool", strconv.FormatBool(val)), nil
	case int64:
		return scalar("!!int", strconv.FormatInt(val, 10)), nil
	case float64:
		return scalar("!!float", formatFloat(val)), nil
	case string:
		return str(val), nil
	case time.Time:
		return scalar("!!timestamp", val.Format(time.RFC3339Nano)), nil
	case []byte:
		return scalar("!!binary", base64.StdEncoding.EncodeToString(val)), nil
	case model.ID:
		return idNode(val)
	case []model.ID:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, id := range val {
			n, err := idNode(id)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, n)
		}
		return seq, nil
	case []any:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for i, item := range val {
			n, err := valueNode(fmt.Sprintf("%s[%d]", field, i), item)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, n)
		}
		return seq, nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := mapping("!!map")
		for _, k := range keys {
			n, err := valueNode(field+"."+k, val[k])
			if err != nil {
				return nil, err
			}
			put(m, k, n)
		}
		return m, nil
	default:
		// Accept anything CheckValue can canonicalise, reject the rest.
		cv, err := model.CheckValue(field, v)
		if err != nil {
			return nil, err
		}
		return valueNode(field, cv)
	}
}

func headerNode(h model.Header) (*yaml.Node, error) {
	m := mapping("!!map")
	put(m, "_", str(docHeader))
	put(m, "version", scalar("!!int", strconv.Itoa(h.Version)))

	kinds := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, k := range h.ObjectKinds {
		kinds.Content = append(kinds.Content, str(k))
	}
	put(m, "object_kinds", kinds)

	meta := &yaml.Node{}
	if err := meta.Encode(h.Metadata); err != nil {
		return nil, &model.SerializationError{Field: "metadata", Value: h.Metadata, Reason: err.Error()}
	}
	put(m, "metadata", meta)
	return m, nil
}

func objectNode(rec *model.Record) (*yaml.Node, error) {
	id, err := idNode(rec.ID)
	if err != nil {
		return nil, err
	}

	data := mapping("!!map")
	err = rec.Data.Each(func(name string, value any) error {
		n, err := valueNode(name, value)
		if err != nil {
			var se *model.SerializationError
			if errors.As(err, &se) && se.ID.IsZero() {
				se.ID = rec.ID
			}
			return err
		}
		put(data, name, n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	atts := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, a := range rec.Attachments {
		key, err := valueNode("attachment key", a.Key)
		if err != nil {
			return nil, err
		}
		am := mapping("!!map")
		put(am, "id", str(a.ID))
		put(am, "key", key)
		put(am, "size", scalar("!!int", strconv.FormatInt(a.Size, 10)))
		atts.Content = append(atts.Content, am)
	}

	m := mapping("!!map")
	put(m, "_", str(docObject))
	put(m, "id", id)
	put(m, "kind", str(rec.Kind()))
	put(m, "data", data)
	put(m, "attachments", atts)
	return m, nil
}
