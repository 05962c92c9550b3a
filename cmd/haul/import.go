package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/haul/internal/container"
	"github.com/ALT-F4-LLC/haul/internal/db"
	"github.com/ALT-F4-LLC/haul/internal/output"
	"github.com/ALT-F4-LLC/haul/internal/policy"
	"github.com/ALT-F4-LLC/haul/internal/render"
)

type importResult struct {
	File      string               `json:"file"`
	Loaded    int                  `json:"loaded"`
	Created   int                  `json:"created"`
	Linked    int                  `json:"linked"`
	Discarded int                  `json:"discarded"`
	Actions   []render.ActionCount `json:"actions"`
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a container into the database",
	Long: `Import every object of a container in one transaction. Objects are created
unless a rule says otherwise:

  --link kind=f1,f2   reuse the existing object whose f1,f2 match, else create
  --link-pk kind      reuse the existing object with the same primary key, else create
  --discard kind      skip objects of kind; nullable references to them become null

Any error rolls back the whole import.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		store := getStore(cmd)
		ctx := cmd.Context()

		rules, err := importRules(cmd)
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		ignoreUnknown, _ := cmd.Flags().GetBool("ignore-unknown")
		yes, _ := cmd.Flags().GetBool("yes")

		registry, err := store.Schema().Exporters()
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		opts := []container.Option{
			container.WithImportPolicy(rules),
			container.WithLogger(getLog(cmd)),
			container.WithMetrics(getMetrics(cmd)),
		}
		if ignoreUnknown {
			opts = append(opts, container.IgnoreUnknown())
		}
		im, err := container.NewImport(registry, opts...)
		if err != nil {
			return cmdErr(err, output.CodeFor(err))
		}

		f, err := os.Open(args[0])
		if err != nil {
			return cmdErr(fmt.Errorf("opening container: %w", err), output.CodeFor(err))
		}
		defer f.Close()
		fi, err := f.Stat()
		if err != nil {
			return cmdErr(fmt.Errorf("reading container: %w", err), output.ErrGeneral)
		}
		if err := im.Read(f, fi.Size()); err != nil {
			return cmdErr(err, output.CodeFor(err))
		}
		defer im.Close()

		// In human mode, confirm before writing into a database that
		// already holds objects.
		if !w.JSONMode && !yes {
			existing, err := countObjects(ctx, store)
			if err != nil {
				return cmdErr(err, output.ErrGeneral)
			}
			if existing > 0 {
				confirmed, err := confirmImport(len(im.Records()), existing)
				if err != nil {
					return err
				}
				if !confirmed {
					w.Info("Cancelled.")
					return nil
				}
			}
		}

		report, err := im.ImportObjects(ctx, store)
		if err != nil {
			return cmdErr(err, output.CodeFor(err))
		}

		actions := actionCounts(report)
		headline := fmt.Sprintf("Imported %d objects from %s: %d created, %d linked, %d discarded",
			report.Loaded, args[0], len(report.Created), len(report.Linked), len(report.Discarded))
		w.Result(importResult{
			File:      args[0],
			Loaded:    report.Loaded,
			Created:   len(report.Created),
			Linked:    len(report.Linked),
			Discarded: len(report.Discarded),
			Actions:   actions,
		}, headline, func() string { return render.RenderImportSummary(actions) })
		return nil
	},
}

// importRules turns the rule flags into a policy table. Link rules fall
// back to creating the object.
func importRules(cmd *cobra.Command) (*policy.Rules, error) {
	links, _ := cmd.Flags().GetStringArray("link")
	linkPKs, _ := cmd.Flags().GetStringArray("link-pk")
	discards, _ := cmd.Flags().GetStringArray("discard")
	appends, _ := cmd.Flags().GetStringArray("append")
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	attachmentDir, _ := cmd.Flags().GetString("attachments-dir")

	var overwriteFields []string
	if overwrite {
		overwriteFields = []string{policy.OverwriteAll}
	}

	rules := policy.NewRules()
	rules.AttachmentDir = attachmentDir
	for _, l := range links {
		kind, fields, err := policy.ParseLinkRule(l)
		if err != nil {
			return nil, err
		}
		a := policy.LinkByFields{LookupFields: fields, OverwriteFields: overwriteFields, Fallback: policy.Create{}}
		if err := rules.Set(kind, a); err != nil {
			return nil, err
		}
	}
	for _, kind := range linkPKs {
		if err := rules.Set(kind, policy.LinkByPK{OverwriteFields: overwriteFields, Fallback: policy.Create{}}); err != nil {
			return nil, err
		}
	}
	for _, kind := range discards {
		if err := rules.Set(kind, policy.Discard{}); err != nil {
			return nil, err
		}
	}
	for _, rel := range appends {
		kind, field, ok := strings.Cut(rel, ".")
		if !ok || kind == "" || field == "" {
			return nil, fmt.Errorf("invalid --append %q: expected kind.field", rel)
		}
		rules.AppendM2M[rel] = true
	}
	return rules, nil
}

func countObjects(ctx context.Context, store *db.Store) (int, error) {
	total := 0
	for _, kind := range store.Schema().Kinds() {
		n, err := store.Count(ctx, kind)
		if err != nil {
			return 0, fmt.Errorf("counting %s: %w", kind, err)
		}
		total += n
	}
	return total, nil
}

func confirmImport(incoming, existing int) (bool, error) {
	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("The database already holds %d objects. Import %d more?", existing, incoming)).
				Affirmative("Yes, import").
				Negative("Cancel").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, cmdErr(fmt.Errorf("interactive form failed: %w", err), output.ErrGeneral)
	}
	return confirmed, nil
}

func actionCounts(report *container.Report) []render.ActionCount {
	var out []render.ActionCount
	for kind, actions := range report.Tally() {
		for action, n := range actions {
			out = append(out, render.ActionCount{Kind: kind, Action: action, Count: n})
		}
	}
	return out
}

func addImportFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("link", nil, "Link kind=field[,field] to existing objects by those fields (repeatable)")
	cmd.Flags().StringArray("link-pk", nil, "Link objects of kind to existing objects with the same primary key (repeatable)")
	cmd.Flags().StringArray("discard", nil, "Skip objects of kind (repeatable)")
	cmd.Flags().StringArray("append", nil, "Add to many-to-many relation kind.field instead of replacing it (repeatable)")
	cmd.Flags().Bool("overwrite", false, "Overwrite the fields of linked objects with the container's values")
	cmd.Flags().String("attachments-dir", "", "Write attachments below this directory")
	cmd.Flags().Bool("ignore-unknown", false, "Skip kinds this schema does not know instead of failing")
	cmd.Flags().BoolP("yes", "y", false, "Do not ask before importing into a non-empty database")
}

func init() {
	addImportFlags(importCmd)
	rootCmd.AddCommand(importCmd)
}
