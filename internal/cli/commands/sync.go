package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/contentschema/internal/cli/ui"
	"github.com/conduit-lang/contentschema/internal/orm/quickcol"
	"github.com/conduit-lang/contentschema/internal/orm/transaction"
)

var errUnknownAttribute = errors.New("unknown attribute")

func newSyncCommand(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync <attribute-name>",
		Short: "Repair the quick column of an attribute name",
		Long: `Bring the quick column of every attribute with the given name in step
with the stored optimized flags: create and backfill a missing column,
rewrite one of the wrong type and drop one no attribute uses.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			all, err := a.Engine.Catalog().AllAttributes(ctx, a.DB)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(all))
			known := false
			for _, attr := range all {
				names = append(names, attr.Name)
				known = known || attr.Name == name
			}
			// with force, the leftover column of a deleted attribute is dropped
			if !known && !force {
				fmt.Fprint(cmd.ErrOrStderr(), ui.UnknownAttributeError(name, ui.FindSimilar(name, names, nil), color.NoColor))
				return fmt.Errorf("%w: %s", errUnknownAttribute, name)
			}

			var report *quickcol.SyncReport
			err = inTransaction(ctx, a, func(tx *transaction.Transaction) error {
				var err error
				report, err = a.Engine.SyncQuickColumn(ctx, tx, name, force || a.Config.Engine.ForceStructureChange)
				return err
			})
			if err != nil {
				return explain(cmd, err)
			}

			w := cmd.OutOrStdout()
			if report.Statements == 0 {
				fmt.Fprintln(w, ui.Info("Quick column of "+name+" is up to date", color.NoColor))
				return nil
			}
			table := ui.NewKeyValueTable(w, color.NoColor)
			table.AddRow("created", strings.Join(report.Created, ", "))
			table.AddRow("dropped", strings.Join(report.Dropped, ", "))
			table.AddRow("backfilled", fmt.Sprintf("%d", report.Backfilled))
			table.AddRow("evacuated", fmt.Sprintf("%d", report.Evacuated))
			table.Render()
			ui.WriteSuccess(w, fmt.Sprintf("Synchronized %s (%d statements)", name, report.Statements), color.NoColor)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force-structure-change", false, "allow quick column DDL")
	return cmd
}
