package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/contentschema/internal/orm/payload"
)

func newExportCommand(opts *globalOptions) *cobra.Command {
	var (
		output  string
		format  string
		typeIDs []int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored schema as a payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := payload.FormatYAML
			switch {
			case format != "":
				var err error
				if f, err = payload.ParseFormat(format); err != nil {
					return err
				}
			case output != "":
				f = payload.FormatForPath(output)
			}

			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}

			if err := payload.NewExporter(a.Engine).Export(ctx, a.DB, w, f, typeIDs...); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().StringVar(&format, "format", "", "json or yaml (default: from the output extension, else yaml)")
	cmd.Flags().IntSliceVar(&typeIDs, "type", nil, "export only these object type ids")
	return cmd
}
