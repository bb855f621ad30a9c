package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	config "github.com/hanpama/entityql/internal/config"
	schema "github.com/hanpama/entityql/internal/schema"
	memstore "github.com/hanpama/entityql/internal/store/memstore"
	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by all commands.
type rootOptions struct {
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "entityql",
		Short:         "GraphQL query server over indexed subgraph entities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newPlanCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newSchemaCommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	if o.ConfigPath == "" {
		return config.Default(), nil
	}
	return config.Load(o.ConfigPath)
}

func loadSchema(path string) (*schema.Schema, error) {
	if path == "" {
		return nil, fmt.Errorf("a schema file is required (--schema or graphql.schema)")
	}
	sdl, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	sch, err := schema.BuildFromSDL(string(sdl))
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	return sch, nil
}

func loadStore(sch *schema.Schema, fixtures string) (*memstore.Store, error) {
	st := memstore.New()
	if fixtures == "" {
		return st, nil
	}
	f, err := os.Open(fixtures)
	if err != nil {
		return nil, fmt.Errorf("open fixtures: %w", err)
	}
	defer f.Close()
	if err := memstore.LoadFixtures(sch, st, f); err != nil {
		return nil, fmt.Errorf("load fixtures %s: %w", fixtures, err)
	}
	return st, nil
}

// readSource returns a query given inline, as @file, or as - for stdin.
func readSource(arg string, stdin io.Reader) (string, error) {
	switch {
	case arg == "-":
		b, err := io.ReadAll(stdin)
		return string(b), err
	case strings.HasPrefix(arg, "@"):
		b, err := os.ReadFile(arg[1:])
		return string(b), err
	default:
		return arg, nil
	}
}
