package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/haul/internal/codec"
	"github.com/ALT-F4-LLC/haul/internal/container"
	"github.com/ALT-F4-LLC/haul/internal/model"
	"github.com/ALT-F4-LLC/haul/internal/output"
	"github.com/ALT-F4-LLC/haul/internal/render"
)

type inspectResult struct {
	File        string             `json:"file"`
	Format      string             `json:"format"`
	Version     int                `json:"version"`
	ObjectKinds []string           `json:"object_kinds"`
	Metadata    any                `json:"metadata,omitempty"`
	Objects     int                `json:"objects"`
	Kinds       []render.KindCount `json:"kinds"`
}

var inspectViews = []string{"markdown", "table", "tree", "dump"}

var inspectCmd = &cobra.Command{
	Use:         "inspect <file>",
	Short:       "Show the header and objects of a container",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"skipDB": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		view, _ := cmd.Flags().GetString("view")

		f, err := os.Open(args[0])
		if err != nil {
			return cmdErr(fmt.Errorf("opening container: %w", err), output.CodeFor(err))
		}
		defer f.Close()
		fi, err := f.Stat()
		if err != nil {
			return cmdErr(fmt.Errorf("reading container: %w", err), output.ErrGeneral)
		}
		archive, err := codec.Open(f, fi.Size())
		if err != nil {
			return cmdErr(err, output.CodeFor(err))
		}
		header, records, err := archive.ReadAll()
		if err != nil {
			return cmdErr(err, output.CodeFor(err))
		}
		format := archive.Format().String()

		if w.JSONMode {
			w.Success(inspectResult{
				File:        args[0],
				Format:      format,
				Version:     header.Version,
				ObjectKinds: header.ObjectKinds,
				Metadata:    header.Metadata,
				Objects:     len(records),
				Kinds:       render.CountKinds(records),
			}, "")
			return nil
		}

		var msg string
		switch view {
		case "markdown":
			msg, err = render.RenderInspect(header, format, records)
		case "table":
			msg = render.RenderKinds(render.CountKinds(records)) + "\n" + render.RenderRecords(records)
		case "tree":
			msg, err = render.RenderRefTree(records, valueRefs)
		case "dump":
			var b strings.Builder
			err = container.Dump(&b, records)
			msg = strings.TrimRight(b.String(), "\n")
		default:
			return cmdErr(fmt.Errorf("invalid --view %q: must be one of %s", view, strings.Join(inspectViews, ", ")), output.ErrValidation)
		}
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		w.Success(nil, msg)
		return nil
	},
}

// valueRefs reads references straight from record values. Inspect runs
// without a schema, so fields holding null cannot be told apart from plain
// fields and are left out.
func valueRefs(rec *model.Record) ([]model.Ref, error) {
	var refs []model.Ref
	err := rec.Data.Each(func(name string, value any) error {
		switch v := value.(type) {
		case model.ID:
			refs = append(refs, model.Ref{Field: name, IDs: []model.ID{v}})
		case []model.ID:
			refs = append(refs, model.Ref{Field: name, IDs: v, Many: true})
		}
		return nil
	})
	return refs, err
}

func init() {
	inspectCmd.Flags().String("view", "markdown", "Output view: "+strings.Join(inspectViews, ", "))
	rootCmd.AddCommand(inspectCmd)
}
