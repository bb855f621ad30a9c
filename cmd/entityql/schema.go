package main

import (
	"fmt"
	"os"

	schema "github.com/hanpama/entityql/internal/schema"
	"github.com/spf13/cobra"
)

func newSchemaCommand(root *rootOptions) *cobra.Command {
	var schemaPath, out string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Validate a schema and print it as normalized SDL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if schemaPath == "" {
				cfg, err := root.load()
				if err != nil {
					return err
				}
				schemaPath = cfg.GraphQL.Schema
			}
			sch, err := loadSchema(schemaPath)
			if err != nil {
				return err
			}
			sdl := schema.Render(sch)
			if out == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), sdl)
				return err
			}
			return os.WriteFile(out, []byte(sdl), 0o644)
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "GraphQL SDL file (default graphql.schema)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the SDL to a file instead of stdout")
	return cmd
}
