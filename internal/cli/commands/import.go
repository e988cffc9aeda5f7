package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/contentschema/internal/cli/ui"
	"github.com/conduit-lang/contentschema/internal/orm/engine"
	"github.com/conduit-lang/contentschema/internal/orm/payload"
	"github.com/conduit-lang/contentschema/internal/orm/transaction"
)

func newImportCommand(opts *globalOptions) *cobra.Command {
	var (
		force           bool
		ignoreOptimized bool
		dryRun          bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Save the object types of a payload",
		Long: `Save every object type of a JSON or YAML payload in one transaction.

Types are matched to stored ones by previous_type_id, type_id, then name.
Conflicts with the stored schema or inside the payload abort the import
before anything is written. Creating, rewriting or dropping quick columns
needs --force-structure-change (or engine.force_structure_change).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := readPayload(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			importOpts := payload.ImportOptions{
				ForceStructureChange: force || a.Config.Engine.ForceStructureChange,
				IgnoreOptimized:      ignoreOptimized,
				DryRun:               dryRun,
			}

			var report *payload.ImportReport
			err = inTransaction(ctx, a, func(tx *transaction.Transaction) error {
				var err error
				report, err = payload.NewImporter(a.Engine).Import(ctx, tx, types, importOpts)
				return err
			})
			if err != nil {
				return explain(cmd, err)
			}

			writeImportReport(cmd.OutOrStdout(), report, dryRun)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force-structure-change", false, "allow quick column DDL")
	cmd.Flags().BoolVar(&ignoreOptimized, "ignore-optimized", false, "keep the stored optimized flags")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve and check without writing")
	return cmd
}

func writeImportReport(w io.Writer, report *payload.ImportReport, dryRun bool) {
	noColor := color.NoColor

	plan := ui.NewTable(w, []string{"type", "name", "action"}, &ui.TableOptions{NoColor: noColor})
	for _, r := range report.Plan {
		id := "new"
		if r.Type.TypeID != 0 {
			id = fmt.Sprintf("%d", r.Type.TypeID)
		}
		plan.AddRow(id, r.Type.Name, string(r.Action))
	}
	plan.Render()

	if dryRun {
		fmt.Fprintln(w, ui.Info("Dry run: nothing was written", noColor))
		return
	}

	changed := 0
	for _, res := range report.Results {
		for _, u := range res.Saved {
			if u.Action != engine.ActionUnchanged {
				changed++
			}
		}
	}

	if effects := report.SideEffects(); len(effects) > 0 {
		details := make([]string, len(effects))
		for i, e := range effects {
			details[i] = e.Error()
		}
		fmt.Fprint(w, ui.Warning("some follow-up steps failed; the metadata was saved", details, noColor))
	}
	ui.WriteSuccess(w, fmt.Sprintf("Imported %d object types (%d rows changed)", len(report.Results), changed), noColor)
}
