package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
	"gopkg.in/yaml.v3"

	"github.com/ALT-F4-LLC/haul/internal/model"
)

// EncodeDocuments renders the header and records as a YAML document stream.
// Nothing is returned unless every record encodes.
func EncodeDocuments(header model.Header, records []*model.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	hn, err := headerNode(header)
	if err != nil {
		return nil, err
	}
	if err := enc.Encode(hn); err != nil {
		return nil, fmt.Errorf("encoding header: %w", err)
	}
	for _, rec := range records {
		on, err := objectNode(rec)
		if err != nil {
			return nil, err
		}
		if err := enc.Encode(on); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", rec.ID, err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}
	return buf.Bytes(), nil
}

// Write writes a complete container to w. The document stream is rendered in
// memory first, so an encoding error leaves w untouched.
func Write(w io.Writer, format Format, header model.Header, records []*model.Record) error {
	if !format.IsArchive() {
		for _, rec := range records {
			if len(rec.Attachments) > 0 {
				return fmt.Errorf("%s has attachments: attachments require a zip container format", rec.ID)
			}
		}
	}

	docs, err := EncodeDocuments(header, records)
	if err != nil {
		return err
	}

	if !format.IsArchive() {
		_, err := w.Write(docs)
		return err
	}
	return writeArchive(w, format, docs, records)
}

func writeArchive(w io.Writer, format Format, docs []byte, records []*model.Record) error {
	method := zip.Deflate
	if format == ZipStored {
		method = zip.Store
	}

	zw := zip.NewWriter(w)
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: metadataEntry, Method: method})
	if err != nil {
		return fmt.Errorf("creating %s: %w", metadataEntry, err)
	}
	if _, err := fw.Write(docs); err != nil {
		return fmt.Errorf("writing %s: %w", metadataEntry, err)
	}

	for _, rec := range records {
		for _, a := range rec.Attachments {
			if err := writeAttachment(zw, method, a); err != nil {
				return fmt.Errorf("attachment %s of %s: %w", a.ID, rec.ID, err)
			}
		}
	}
	return zw.Close()
}

func writeAttachment(zw *zip.Writer, method uint16, a model.Attachment) error {
	src, err := a.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	fw, err := zw.CreateHeader(&zip.FileHeader{Name: attachmentPrefix + a.ID, Method: method})
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, src)
	return err
}
