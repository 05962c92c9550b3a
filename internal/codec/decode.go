package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ALT-F4-LLC/haul/internal/model"
)

// Document is one decoded container document: exactly one of Header and
// Record is set.
type Document struct {
	Header *model.Header
	Record *model.Record
}

// Decoder yields container documents one at a time. The first document is
// always the header.
type Decoder struct {
	dec        *yaml.Decoder
	closer     io.Closer
	archive    *Archive
	seenHeader bool
	index      int
}

// NewDecoder decodes a plain YAML container stream from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: yaml.NewDecoder(r)}
}

// Next returns the next document, or io.EOF after the last one.
func (d *Decoder) Next() (*Document, error) {
	var node yaml.Node
	for {
		if err := d.dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				if !d.seenHeader {
					return nil, model.Formatf("stream has no header document")
				}
				return nil, io.EOF
			}
			return nil, &model.FormatError{Msg: fmt.Sprintf("document %d", d.index), Err: err}
		}
		if len(node.Content) > 0 {
			break
		}
	}
	d.index++

	root := node.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, model.Formatf("document %d is not a mapping", d.index)
	}
	tag, err := stringField(root, "_")
	if err != nil {
		return nil, model.Formatf("document %d: %v", d.index, err)
	}

	switch tag {
	case docHeader:
		if d.seenHeader {
			return nil, model.Formatf("document %d: unexpected second header", d.index)
		}
		h, err := decodeHeader(root)
		if err != nil {
			return nil, err
		}
		d.seenHeader = true
		return &Document{Header: h}, nil
	case docObject:
		if !d.seenHeader {
			return nil, model.Formatf("document %d: object before header", d.index)
		}
		rec, err := d.decodeObject(root)
		if err != nil {
			return nil, err
		}
		return &Document{Record: rec}, nil
	default:
		return nil, model.Formatf("document %d: unknown document type %q", d.index, tag)
	}
}

// Close releases the underlying archive entry, if any.
func (d *Decoder) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func stringField(m *yaml.Node, key string) (string, error) {
	n := lookup(m, key)
	if n == nil {
		return "", fmt.Errorf("missing %q", key)
	}
	if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!str" {
		return "", fmt.Errorf("%q must be a string", key)
	}
	return n.Value, nil
}

func decodeHeader(m *yaml.Node) (*model.Header, error) {
	vn := lookup(m, "version")
	if vn == nil {
		return nil, model.Formatf("header has no version")
	}
	var version int
	if err := vn.Decode(&version); err != nil {
		return nil, &model.FormatError{Msg: "header version", Err: err}
	}
	if version < 1 || version > model.CurrentVersion {
		return nil, model.Formatf("unsupported container version %d (this build reads up to %d)", version, model.CurrentVersion)
	}

	h := &model.Header{Version: version}
	if kn := lookup(m, "object_kinds"); kn != nil {
		if err := kn.Decode(&h.ObjectKinds); err != nil {
			return nil, &model.FormatError{Msg: "header object_kinds", Err: err}
		}
	}
	if mn := lookup(m, "metadata"); mn != nil {
		meta, err := nodeValue(mn)
		if err != nil {
			return nil, &model.FormatError{Msg: "header metadata", Err: err}
		}
		h.Metadata = meta
	}
	return h, nil
}

func (d *Decoder) decodeObject(m *yaml.Node) (*model.Record, error) {
	idn := lookup(m, "id")
	if idn == nil {
		return nil, model.Formatf("document %d: object has no id", d.index)
	}
	id, err := decodeID(idn)
	if err != nil {
		return nil, &model.FormatError{Msg: fmt.Sprintf("document %d: id", d.index), Err: err}
	}
	if kind, err := stringField(m, "kind"); err == nil && kind != id.Kind {
		return nil, model.Formatf("%s: kind %q does not match id", id, kind)
	}

	rec := &model.Record{ID: id, Data: model.NewFields()}
	if dn := lookup(m, "data"); dn != nil && dn.ShortTag() != "!!null" {
		if dn.Kind != yaml.MappingNode {
			return nil, model.Formatf("%s: data is not a mapping", id)
		}
		for i := 0; i+1 < len(dn.Content); i += 2 {
			v, err := nodeValue(dn.Content[i+1])
			if err != nil {
				return nil, &model.FormatError{Msg: fmt.Sprintf("%s: field %q", id, dn.Content[i].Value), Err: err}
			}
			rec.Data.Set(dn.Content[i].Value, v)
		}
	}

	if an := lookup(m, "attachments"); an != nil && an.ShortTag() != "!!null" {
		if an.Kind != yaml.SequenceNode {
			return nil, model.Formatf("%s: attachments is not a list", id)
		}
		for _, item := range an.Content {
			a, err := d.decodeAttachment(item)
			if err != nil {
				return nil, &model.FormatError{Msg: fmt.Sprintf("%s: attachment", id), Err: err}
			}
			rec.Attachments = append(rec.Attachments, a)
		}
	}
	return rec, nil
}

func (d *Decoder) decodeAttachment(n *yaml.Node) (model.Attachment, error) {
	if n.Kind != yaml.MappingNode {
		return model.Attachment{}, errors.New("attachment is not a mapping")
	}
	id, err := stringField(n, "id")
	if err != nil {
		return model.Attachment{}, err
	}
	var key any
	if kn := lookup(n, "key"); kn != nil {
		if key, err = nodeValue(kn); err != nil {
			return model.Attachment{}, err
		}
	}
	var size int64
	if sn := lookup(n, "size"); sn != nil {
		if err := sn.Decode(&size); err != nil {
			return model.Attachment{}, err
		}
	}
	if d.archive == nil {
		return model.Attachment{}, fmt.Errorf("attachment %s in a plain yaml container", id)
	}
	archive := d.archive
	return model.AttachmentFromOpener(id, key, size, func() (io.ReadCloser, error) {
		return archive.OpenAttachment(id)
	}), nil
}

func decodeID(n *yaml.Node) (model.ID, error) {
	if n.Kind != yaml.MappingNode {
		return model.ID{}, errors.New("identity reference must be a mapping")
	}
	kind, err := stringField(n, "kind")
	if err != nil {
		return model.ID{}, err
	}
	pn := lookup(n, "pk")
	if pn == nil {
		return model.ID{}, errors.New(`missing "pk"`)
	}
	pk, err := nodeValue(pn)
	if err != nil {
		return model.ID{}, err
	}
	return model.NewID(kind, pk)
}

// nodeValue converts a YAML node back into a record value. Mappings tagged
// !ID become model.ID; sequences made only of IDs become []model.ID.
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0])
	case yaml.ScalarNode:
		return scalarValue(n)
	case yaml.MappingNode:
		if n.Tag == tagID {
			return decodeID(n)
		}
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = v
		}
		return out, nil
	case yaml.SequenceNode:
		items := make([]any, len(n.Content))
		ids := make([]model.ID, 0, len(n.Content))
		for i, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			items[i] = v
			if id, ok := v.(model.ID); ok {
				ids = append(ids, id)
			}
		}
		if len(items) > 0 && len(ids) == len(items) {
			return ids, nil
		}
		return items, nil
	}
	return nil, fmt.Errorf("unsupported yaml node kind %v", n.Kind)
}

func scalarValue(n *yaml.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!str":
		return n.Value, nil
	case "!!bool":
		var b bool
		err := n.Decode(&b)
		return b, err
	case "!!int":
		var i int64
		err := n.Decode(&i)
		return i, err
	case "!!float":
		var f float64
		err := n.Decode(&f)
		return f, err
	case "!!timestamp":
		var t time.Time
		err := n.Decode(&t)
		return t, err
	case "!!binary":
		clean := strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
				return -1
			}
			return r
		}, n.Value)
		return base64.StdEncoding.DecodeString(clean)
	}
	return nil, fmt.Errorf("unsupported scalar tag %s", n.Tag)
}
