package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	execution "github.com/hanpama/entityql/internal/execution"
	resolver "github.com/hanpama/entityql/internal/resolver"
	store "github.com/hanpama/entityql/internal/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// requestFlags are the flags plan and watch share.
type requestFlags struct {
	schema    string
	fixtures  string
	operation string
	variables string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.schema, "schema", "", "GraphQL SDL file (default graphql.schema)")
	cmd.Flags().StringVar(&f.operation, "operation", "", "operation to run when the document has several")
	cmd.Flags().StringVar(&f.variables, "variables", "", "variables as a JSON object")
}

func (f *requestFlags) request(cmd *cobra.Command, arg string) (execution.Request, error) {
	src, err := readSource(arg, cmd.InOrStdin())
	if err != nil {
		return execution.Request{}, fmt.Errorf("read query: %w", err)
	}
	req := execution.Request{Query: src, OperationName: f.operation}
	if f.variables != "" {
		if err := json.Unmarshal([]byte(f.variables), &req.Variables); err != nil {
			return execution.Request{}, fmt.Errorf("parse variables: %w", err)
		}
	}
	return req, nil
}

// recordingStore remembers every query it is asked to run.
type recordingStore struct {
	next store.Store

	mu      sync.Mutex
	queries []store.EntityQuery
}

func (s *recordingStore) FindEntities(ctx context.Context, q store.EntityQuery) ([]store.Entity, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	return s.next.FindEntities(ctx, q)
}

func newPlanCommand(root *rootOptions) *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "plan <query | @file | ->",
		Short: "Print the entity queries a GraphQL query compiles to",
		Long: `Compile a GraphQL query against a schema and print, as JSON, every entity
query sent to the store while resolving it.

Without fixtures the store is empty, so only top level queries are shown.
With --fixtures, nested queries for the loaded entities are shown too.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if flags.schema == "" {
				flags.schema = cfg.GraphQL.Schema
			}
			if flags.fixtures == "" {
				flags.fixtures = cfg.Store.Fixtures
			}
			sch, err := loadSchema(flags.schema)
			if err != nil {
				return err
			}
			st, err := loadStore(sch, flags.fixtures)
			if err != nil {
				return err
			}
			req, err := flags.request(cmd, args[0])
			if err != nil {
				return err
			}

			rec := &recordingStore{next: st}
			cfg.Limits.ResultCacheSize = 0
			cfg.GraphQL.Introspection = false
			exec := newExecutor(cfg, sch, resolver.NewStoreResolver(rec, resolver.NewPermits(1)), st.LatestBlock, zerolog.Nop())
			res, err := exec.Execute(cmd.Context(), req)
			if err != nil {
				return err
			}
			if res.HasErrors() {
				return resultError(res)
			}
			return writeIndented(cmd.OutOrStdout(), rec.queries)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.fixtures, "fixtures", "", "YAML fixtures loaded into the in-memory store")
	return cmd
}

func newWatchCommand(root *rootOptions) *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "watch <subscription | @file | ->",
		Short: "Print the entity types a subscription watches for changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if flags.schema == "" {
				flags.schema = cfg.GraphQL.Schema
			}
			sch, err := loadSchema(flags.schema)
			if err != nil {
				return err
			}
			req, err := flags.request(cmd, args[0])
			if err != nil {
				return err
			}
			exec := execution.NewExecutor(sch, resolver.NewStoreResolver(nil, resolver.NewPermits(1)))
			filters, err := exec.WatchSet(req)
			if err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), filters)
		},
	}
	flags.register(cmd)
	return cmd
}

func resultError(res *resolver.Result) error {
	errs := make([]error, len(res.Errors))
	for i, e := range res.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
