package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"

	"github.com/ALT-F4-LLC/haul/internal/model"
)

// Archive is an opened container. It holds either a plain YAML stream or a
// zip archive with metadata.yaml and attachment entries.
type Archive struct {
	r    io.ReaderAt
	size int64
	zip  *zip.Reader
}

// Open sniffs the container format from its first bytes.
func Open(r io.ReaderAt, size int64) (*Archive, error) {
	magic := make([]byte, 2)
	n, err := r.ReadAt(magic, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading container: %w", err)
	}
	a := &Archive{r: r, size: size}
	if n == 2 && bytes.Equal(magic, []byte("PK")) {
		zr, err := zip.NewReader(r, size)
		if err != nil {
			return nil, &model.FormatError{Msg: "reading zip container", Err: err}
		}
		a.zip = zr
	}
	return a, nil
}

// Format reports the container's encoding. Stored and deflated archives are
// both reported as Zip.
func (a *Archive) Format() Format {
	if a.zip != nil {
		return Zip
	}
	return YAML
}

// Documents returns a decoder positioned at the start of the document
// stream. Each call starts over, so a container can be read more than once.
func (a *Archive) Documents() (*Decoder, error) {
	if a.zip == nil {
		d := NewDecoder(io.NewSectionReader(a.r, 0, a.size))
		return d, nil
	}
	f := a.entry(metadataEntry)
	if f == nil {
		return nil, model.Formatf("zip container has no %s", metadataEntry)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &model.FormatError{Msg: metadataEntry, Err: err}
	}
	d := NewDecoder(rc)
	d.closer = rc
	d.archive = a
	return d, nil
}

// OpenAttachment streams the blob stored under id.
func (a *Archive) OpenAttachment(id string) (io.ReadCloser, error) {
	if a.zip == nil {
		return nil, model.Formatf("attachment %s requested from a plain yaml container", id)
	}
	f := a.entry(attachmentPrefix + id)
	if f == nil {
		return nil, model.Formatf("attachment %s is missing from the archive", id)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &model.FormatError{Msg: "attachment " + id, Err: err}
	}
	return rc, nil
}

func (a *Archive) entry(name string) *zip.File {
	for _, f := range a.zip.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ReadAll decodes every document of the container.
func (a *Archive) ReadAll() (model.Header, []*model.Record, error) {
	d, err := a.Documents()
	if err != nil {
		return model.Header{}, nil, err
	}
	defer d.Close()

	var (
		header  model.Header
		records []*model.Record
	)
	for {
		doc, err := d.Next()
		if errors.Is(err, io.EOF) {
			return header, records, nil
		}
		if err != nil {
			return model.Header{}, nil, err
		}
		if doc.Header != nil {
			header = *doc.Header
			continue
		}
		records = append(records, doc.Record)
	}
}
