package commands

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/contentschema/internal/cli/ui"
)

// newMigrateCommand creates the migrate command
func newMigrateCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or remove the base tables",
		Long: `Install the tables the schema engine works on.

Migrations:
  1 create_metadata_tables  object_type, attribute_type
  2 create_content_tables   node, attribute
  3 create_history_tables   node_nodeversion, attribute_nodeversion (engine.history)

Available subcommands:
  up      - Apply all pending migrations
  down    - Roll back the last migration, or down to --to
  status  - Show migration status`,
	}

	cmd.AddCommand(newMigrateUpCommand(opts))
	cmd.AddCommand(newMigrateDownCommand(opts))
	cmd.AddCommand(newMigrateStatusCommand(opts))

	return cmd
}

func newMigrateUpCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			runner := a.Migrator()
			migrations := a.Migrations()
			for _, m := range migrations {
				if err := runner.Validate(m); err != nil {
					return err
				}
			}
			if err := runner.Initialize(ctx); err != nil {
				return err
			}

			applied, err := runner.MigrateUp(ctx, migrations)
			if err != nil {
				fmt.Fprint(cmd.ErrOrStderr(), ui.MigrationError(err.Error(),
					fmt.Sprintf("%d migrations were applied before the failure.", applied), color.NoColor))
				return err
			}
			if applied == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), ui.Info("No pending migrations", color.NoColor))
				return nil
			}
			ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Applied %d migrations", applied), color.NoColor)
			return nil
		},
	}
}

func newMigrateDownCommand(opts *globalOptions) *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			runner := a.Migrator()
			if err := runner.Initialize(ctx); err != nil {
				return err
			}

			if to == "" {
				err = runner.MigrateDown(ctx)
			} else {
				version, perr := strconv.ParseInt(to, 10, 64)
				if perr != nil {
					return fmt.Errorf("invalid --to version %q: %w", to, perr)
				}
				err = runner.MigrateDownTo(ctx, version)
			}
			if err != nil {
				fmt.Fprint(cmd.ErrOrStderr(), ui.MigrationError(err.Error(), "", color.NoColor))
				return err
			}
			ui.WriteSuccess(cmd.OutOrStdout(), "Rolled back", color.NoColor)
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "roll back every migration newer than this version")
	return cmd
}

func newMigrateStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			runner := a.Migrator()
			if err := runner.Initialize(ctx); err != nil {
				return err
			}
			status, err := runner.Status(ctx, a.Migrations())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			ui.Header(w, "Migrations", color.NoColor)
			table := ui.NewTable(w, []string{"version", "name", "status", "applied at"}, &ui.TableOptions{NoColor: color.NoColor})
			for _, m := range status.Applied {
				table.AddRow(strconv.FormatInt(m.Version, 10), m.Name, "applied", m.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			for _, m := range status.Pending {
				table.AddRow(strconv.FormatInt(m.Version, 10), m.Name, "pending", "")
			}
			table.Render()
			fmt.Fprintln(w)
			fmt.Fprintln(w, status.Summary())
			return nil
		},
	}
}
