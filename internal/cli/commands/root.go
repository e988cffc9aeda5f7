package commands

import (
	"context"
	"errors"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/contentschema/internal/app"
	"github.com/conduit-lang/contentschema/internal/cli/config"
	"github.com/conduit-lang/contentschema/internal/cli/ui"
	"github.com/conduit-lang/contentschema/internal/orm/conflict"
	"github.com/conduit-lang/contentschema/internal/orm/quickcol"
	"github.com/conduit-lang/contentschema/internal/orm/transaction"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	configPath string
	noColor    bool
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "contentschema",
		Short: "Manage the schema metadata of an EAV content store",
		Long: color.CyanString(`contentschema - runtime schema management for EAV content stores

Object types and their attribute types live as rows in the store itself.
contentschema creates the base tables, saves schema payloads, keeps the
quick columns of optimized attributes in step and compares schemas.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: ./contentschema.yaml)")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(newMigrateCommand(opts))
	rootCmd.AddCommand(newDiffCommand(opts))
	rootCmd.AddCommand(newExportCommand(opts))
	rootCmd.AddCommand(newImportCommand(opts))
	rootCmd.AddCommand(newSyncCommand(opts))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			table := ui.NewKeyValueTable(cmd.OutOrStdout(), color.NoColor)
			table.AddRow("contentschema version", Version)
			table.AddRow("Git commit", GitCommit)
			table.AddRow("Build date", BuildDate)
			table.AddRow("Go version", goVer)
			table.Render()
		},
	}
}

// open loads the configuration and connects to the store
func (o *globalOptions) open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg)
}

// inTransaction runs fn in a transaction bounded by the configured timeout,
// or retried on deadlocks when there is none
func inTransaction(ctx context.Context, a *app.App, fn func(tx *transaction.Transaction) error) error {
	if timeout := a.Config.Engine.TransactionTimeout; timeout > 0 {
		return a.Tx.WithTimeout(ctx, timeout, fn)
	}
	return a.Tx.WithRetry(ctx, fn)
}

// explain prints the friendly form of the errors that have one
func explain(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	w := cmd.ErrOrStderr()

	var ce *conflict.ConflictError
	if errors.As(err, &ce) {
		_, _ = w.Write([]byte(ui.ConflictError(ce, color.NoColor)))
		return err
	}
	var se *quickcol.StructureChangeError
	if errors.As(err, &se) {
		_, _ = w.Write([]byte(ui.StructureChangeError(se.Attribute, se.Changes, color.NoColor)))
	}
	return err
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
