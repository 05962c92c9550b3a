package container

import (
	"fmt"
	"io"

	"github.com/ALT-F4-LLC/haul/internal/model"
)

// Dump prints records in a plain-text layout meant for debugging.
func Dump(w io.Writer, records []*model.Record) error {
	for _, rec := range records {
		if _, err := fmt.Fprintf(w, "* %s\n\n  Fields:\n", rec.ID); err != nil {
			return err
		}
		err := rec.Data.Each(func(name string, value any) error {
			_, err := fmt.Fprintf(w, "  - %s = %s\n", name, model.FormatValue(value))
			return err
		})
		if err != nil {
			return err
		}
		if len(rec.Attachments) > 0 {
			if _, err := fmt.Fprint(w, "\n  Attachments:\n"); err != nil {
				return err
			}
			for _, a := range rec.Attachments {
				if _, err := fmt.Fprintf(w, "  - %s: %#v\n", a.ID, a.Key); err != nil {
					return err
				}
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

// Dump prints the collected records.
func (e *Export) Dump(w io.Writer) error { return Dump(w, e.records) }

// Dump prints the buffered records.
func (im *Import) Dump(w io.Writer) error { return Dump(w, im.records) }
