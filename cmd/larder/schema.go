package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/acksell/larder/schema"
)

func newSchemaCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "print the table, its GSIs and where each entity type is stored",
		Long: `
  Prints the layout of the configured table. The output can be used to create
  the table and its global secondary indexes in DynamoDB.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.loadConfig()
			if err != nil {
				return err
			}
			ix := schema.For(cfg.Table)
			if err := ix.Validate(); err != nil {
				return err
			}
			d := ix.Describe()
			return render(cmd.OutOrStdout(), cc.format, d, func(w io.Writer) error {
				return render(w, "yaml", d, nil)
			})
		},
	}
}
