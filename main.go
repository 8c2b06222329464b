package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/spf13/cobra"

	"github.com/stevemurr/booksdb/catalog"
	"github.com/stevemurr/booksdb/config"
	"github.com/stevemurr/booksdb/handler"
	"github.com/stevemurr/booksdb/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfg     config.Config
		backend string
		dataDir string
	)

	root := &cobra.Command{
		Use:          "booksdb",
		Short:        "Create, seed and query the booksDb authors and books collections",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("backend") {
				cfg.Backend = backend
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.DataDir = dataDir
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&backend, "backend", "", "store backend: memory, json, sqlite, postgres or mongo (overrides BOOKSDB_BACKEND)")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory for the json and sqlite backends (overrides BOOKSDB_DATA_DIR)")

	cfgFn := func() config.Config { return cfg }
	root.AddCommand(newSeedCmd(cfgFn), newQueryCmd(cfgFn), newServeCmd(cfgFn))
	return root
}

// openStore opens the configured backend and returns a context bounded by
// the configured timeout.
func openStore(parent context.Context, cfg config.Config) (store.Store, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(parent, cfg.Timeout)
	s, err := store.New(ctx, cfg.StoreOptions())
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("open store (backend=%s): %w", cfg.Backend, err)
	}
	return s, ctx, cancel, nil
}

func newSeedCmd(cfg func() config.Config) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the collections, seed them and run every update, read and delete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, ctx, cancel, err := openStore(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer cancel()
			defer s.Close()

			script := catalog.NewScript(s, cmd.OutOrStdout())
			if reset {
				if err := script.DropCollections(ctx); err != nil {
					return fmt.Errorf("reset: %w", err)
				}
				log.Printf("dropped %s and %s", catalog.AuthorsCollection, catalog.BooksCollection)
			}
			log.Printf("seeding %s (store=%s)", catalog.Database, cfg().Backend)
			return script.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop both collections before seeding")
	return cmd
}

func newQueryCmd(cfg func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "query [name...]",
		Short: "Run the named read queries, or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			queries := catalog.Queries()
			if len(args) > 0 {
				queries = queries[:0:0]
				for _, name := range args {
					q, ok := catalog.QueryByName(name)
					if !ok {
						return fmt.Errorf("unknown query %q", name)
					}
					queries = append(queries, q)
				}
			}

			s, ctx, cancel, err := openStore(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer cancel()
			defer s.Close()

			for _, q := range queries {
				if _, err := catalog.WriteResults(ctx, cmd.OutOrStdout(), s, q); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newServeCmd(cfg func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP inspection API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := cfg()
			ctx, cancel := context.WithTimeout(cmd.Context(), c.Timeout)
			s, err := store.New(ctx, c.StoreOptions())
			cancel()
			if err != nil {
				return fmt.Errorf("open store (backend=%s): %w", c.Backend, err)
			}
			defer s.Close()

			log.Printf("booksdb starting on %s (store=%s, data=%s)", c.Addr, c.Backend, c.DataDir)
			if err := http.ListenAndServe(c.Addr, handler.New(s)); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
}
