// Package codec reads and writes container streams: a YAML document stream
// holding one header and any number of object records, optionally packed
// into a zip archive together with attachment blobs.
package codec

import "fmt"

// Format selects the container encoding.
type Format int

const (
	// YAML is a plain-text document stream. It cannot carry attachments.
	YAML Format = iota
	// Zip is a deflate-compressed zip archive.
	Zip
	// ZipStored is a zip archive without compression.
	ZipStored
)

var formatNames = map[Format]string{
	YAML:      "yaml",
	Zip:       "zip",
	ZipStored: "zip-stored",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat parses a format name as printed by String.
func ParseFormat(s string) (Format, error) {
	for f, name := range formatNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("invalid format %q: must be one of yaml, zip, zip-stored", s)
}

// IsArchive reports whether f is a zip-based format.
func (f Format) IsArchive() bool {
	return f == Zip || f == ZipStored
}

const (
	metadataEntry    = "metadata.yaml"
	attachmentPrefix = "attachments/"

	tagID = "!ID"

	docHeader = "header"
	docObject = "object"
)
