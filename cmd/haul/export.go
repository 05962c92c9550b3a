package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/haul/internal/codec"
	"github.com/ALT-F4-LLC/haul/internal/config"
	"github.com/ALT-F4-LLC/haul/internal/container"
	"github.com/ALT-F4-LLC/haul/internal/orm"
	"github.com/ALT-F4-LLC/haul/internal/output"
	"github.com/ALT-F4-LLC/haul/internal/render"
)

type exportResult struct {
	File    string             `json:"file"`
	Format  string             `json:"format"`
	Seeds   int                `json:"seeds"`
	Objects int                `json:"objects"`
	Kinds   []render.KindCount `json:"kinds"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export objects and everything they reference into a container",
	Example: `  haul export --kind shop:order --where status=open -f orders.zip -o zip
  haul export --kind shop:customer --where id=42 > customer.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)
		store := getStore(cmd)

		kind, _ := cmd.Flags().GetString("kind")
		wheres, _ := cmd.Flags().GetStringArray("where")
		file, _ := cmd.Flags().GetString("file")
		formatName, _ := cmd.Flags().GetString("format")
		metaFlags, _ := cmd.Flags().GetStringArray("meta")
		ordered, _ := cmd.Flags().GetBool("ordered")

		if formatName == "" {
			formatName = cfg.Format
		}
		format, err := codec.ParseFormat(formatName)
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		toStdout := file == "" || file == "-"
		if toStdout && w.JSONMode {
			return cmdErr(fmt.Errorf("--json needs --file: the container would share stdout with the JSON result"), output.ErrValidation)
		}

		snapshot := cfg.Snapshot
		if cmd.Flags().Changed("snapshot") {
			snapshot, _ = cmd.Flags().GetBool("snapshot")
		}

		matches := make([]orm.Match, 0, len(wheres))
		for _, expr := range wheres {
			m, err := store.Schema().ParseMatch(kind, expr)
			if err != nil {
				return cmdErr(err, output.CodeFor(err))
			}
			matches = append(matches, m)
		}

		metadata, err := exportMetadata(metaFlags)
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}

		registry, err := store.Schema().Exporters()
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		opts := []container.Option{
			container.WithLogger(getLog(cmd)),
			container.WithMetrics(getMetrics(cmd)),
			container.WithSnapshot(snapshot),
		}
		if ordered {
			opts = append(opts, container.WithDependencyOrder())
		}
		exp, err := container.NewExport(registry, opts...)
		if err != nil {
			return cmdErr(err, output.CodeFor(err))
		}

		seeds, err := store.Find(cmd.Context(), kind, matches)
		if err != nil {
			return cmdErr(fmt.Errorf("selecting %s: %w", kind, err), output.CodeFor(err))
		}
		if len(seeds) == 0 {
			return cmdErr(fmt.Errorf("no %s objects match the filter", kind), output.ErrNotFound)
		}
		if err := exp.ExportObjects(cmd.Context(), store, seeds); err != nil {
			return cmdErr(err, output.CodeFor(err))
		}

		if toStdout {
			bw := bufio.NewWriter(os.Stdout)
			if err := exp.Write(bw, format, metadata); err != nil {
				return cmdErr(err, output.CodeFor(err))
			}
			if err := bw.Flush(); err != nil {
				return err
			}
			w.Info("Exported %d objects from %d %s seeds", exp.Len(), len(seeds), kind)
			return nil
		}

		if err := writeFile(file, func(out io.Writer) error {
			return exp.Write(out, format, metadata)
		}); err != nil {
			return cmdErr(err, output.CodeFor(err))
		}

		counts := render.CountKinds(exp.Records())
		w.Result(exportResult{
			File:    file,
			Format:  format.String(),
			Seeds:   len(seeds),
			Objects: exp.Len(),
			Kinds:   counts,
		}, fmt.Sprintf("Exported %d objects to %s (%s)", exp.Len(), file, format),
			func() string { return render.RenderKinds(counts) })
		return nil
	},
}

// exportMetadata builds the header metadata: who exported and when, plus
// key=value pairs from --meta.
func exportMetadata(pairs []string) (map[string]any, error) {
	meta := map[string]any{
		"exported_by": config.DefaultAuthor(),
		"exported_at": time.Now().UTC().Format(time.RFC3339),
		"haul":        version,
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --meta %q: expected key=value", p)
		}
		meta[k] = v
	}
	return meta, nil
}

// writeFile writes through a temporary file next to path and renames it
// into place, so a failed export never leaves a truncated container.
func writeFile(path string, fn func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".haul-export-*")
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := fn(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("moving output file into place: %w", err)
	}
	return nil
}

func init() {
	exportCmd.Flags().String("kind", "", "Kind of the seed objects, namespace:table (required)")
	exportCmd.Flags().StringArray("where", nil, "Filter seeds by field=value (repeatable)")
	exportCmd.Flags().StringP("file", "f", "", "Output file (default stdout)")
	exportCmd.Flags().StringP("format", "o", "", "Container format: yaml, zip or zip-stored (default $HAUL_FORMAT)")
	exportCmd.Flags().StringArray("meta", nil, "Add key=value to the header metadata (repeatable)")
	exportCmd.Flags().Bool("snapshot", false, "Read inside one transaction (default $HAUL_EXPORT_SNAPSHOT)")
	exportCmd.Flags().Bool("ordered", false, "Write referenced objects before the objects referencing them")
	_ = exportCmd.MarkFlagRequired("kind")
	rootCmd.AddCommand(exportCmd)
}
