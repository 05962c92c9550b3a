package model

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/google/uuid"
)

// Attachment is a binary blob carried next to a record, addressed by ID inside
// the container. Key is a free-form value the import policy uses to decide
// what the blob belongs to.
type Attachment struct {
	ID   string
	Key  any
	Size int64

	open func() (io.ReadCloser, error)
}

// AttachmentFromData wraps an in-memory blob.
func AttachmentFromData(key any, data []byte) Attachment {
	return Attachment{
		ID:   uuid.NewString(),
		Key:  key,
		Size: int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// AttachmentFromPath reads the blob from a file when the container is written.
func AttachmentFromPath(key any, path string) Attachment {
	a := Attachment{
		ID:  uuid.NewString(),
		Key: key,
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
	if fi, err := os.Stat(path); err == nil {
		a.Size = fi.Size()
	}
	return a
}

// AttachmentFromOpener builds an attachment whose content comes from open.
// Decoded containers use it to stream blobs back out of the archive.
func AttachmentFromOpener(id string, key any, size int64, open func() (io.ReadCloser, error)) Attachment {
	return Attachment{ID: id, Key: key, Size: size, open: open}
}

// Open returns the attachment content. Callers must close it.
func (a Attachment) Open() (io.ReadCloser, error) {
	if a.open == nil {
		return nil, errors.New("attachment " + a.ID + " has no content")
	}
	return a.open()
}
