package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/contentschema/internal/cli/ui"
	"github.com/conduit-lang/contentschema/internal/orm/migrate"
	"github.com/conduit-lang/contentschema/internal/orm/payload"
	"github.com/conduit-lang/contentschema/internal/orm/schema"
)

func newDiffCommand(opts *globalOptions) *cobra.Command {
	var ignoreOptimized, exitCode bool

	cmd := &cobra.Command{
		Use:   "diff [<old>] <new>",
		Short: "Compare two schemas",
		Long: `Compare two schema payloads, or the stored schema with one payload.

Types are matched by id and attributes by name. Changes that make existing
values unreadable are marked breaking; changes that delete values are marked
as data loss.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var original []*schema.ObjectType
			updatedPath := args[0]

			if len(args) == 2 {
				var err error
				if original, err = readPayload(args[0]); err != nil {
					return err
				}
				updatedPath = args[1]
			} else {
				ctx := cmd.Context()
				a, err := opts.open(ctx)
				if err != nil {
					return err
				}
				defer a.Close()
				if original, err = a.Engine.LoadSchema(ctx, a.DB); err != nil {
					return err
				}
			}

			updated, err := readPayload(updatedPath)
			if err != nil {
				return err
			}

			diff := migrate.DiffSchemas(original, updated, migrate.DiffOptions{IgnoreOptimized: ignoreOptimized})
			writeDiff(cmd.OutOrStdout(), diff)
			if exitCode && !diff.Empty() {
				return fmt.Errorf("schemas differ: %s", diff.Summary())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ignoreOptimized, "ignore-optimized", false, "ignore optimized flags and quick column names")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "fail when the schemas differ")
	return cmd
}

func writeDiff(w io.Writer, diff *migrate.SchemaDiff) {
	changes := diff.Changes()
	if len(changes) == 0 {
		fmt.Fprintln(w, ui.Info("Schemas are identical", color.NoColor))
		return
	}

	table := ui.NewTable(w, []string{"change", "subject", "breaking", "data loss"}, &ui.TableOptions{NoColor: color.NoColor})
	var risky []string
	for _, c := range changes {
		table.AddRow(c.Type.String(), subject(c), yesNo(c.Breaking), yesNo(c.DataLoss))
		if c.Breaking || c.DataLoss {
			risky = append(risky, c.String())
		}
	}
	table.Render()
	fmt.Fprintln(w)
	fmt.Fprintln(w, diff.Summary())
	if len(risky) > 0 {
		fmt.Fprint(w, ui.Warning("some changes affect stored values", risky, color.NoColor))
	}
	fmt.Fprintf(w, "migration name: %s\n", migrate.GenerateMigrationName(changes))
}

func subject(c migrate.SchemaChange) string {
	if c.Attribute != "" {
		return fmt.Sprintf("%d.%s", c.TypeID, c.Attribute)
	}
	if c.TypeName != "" {
		return fmt.Sprintf("%d (%s)", c.TypeID, c.TypeName)
	}
	return fmt.Sprintf("%d", c.TypeID)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// readPayload decodes a schema file, picking the format from its extension
func readPayload(path string) ([]*schema.ObjectType, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	types, err := payload.Decode(f, payload.FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return types, nil
}
