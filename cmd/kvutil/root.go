package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/denoland/kv-utils/internal/config"
	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/logging"
	"github.com/denoland/kv-utils/internal/store"
	"github.com/spf13/cobra"
)

// storeFlags override the store section of the environment configuration.
type storeFlags struct {
	Driver   string
	Path     string
	URL      string
	LogLevel string
}

// opener opens the store a command works on.
type opener func(ctx context.Context, flags storeFlags, logger *slog.Logger) (store.Store, error)

// openFromConfig loads the environment configuration, applies the flag
// overrides and opens the configured backend.
func openFromConfig(ctx context.Context, flags storeFlags, logger *slog.Logger) (store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.Driver != "" {
		cfg.Store.Driver = flags.Driver
	}
	if flags.Path != "" {
		cfg.Store.Path = flags.Path
	}
	if flags.URL != "" {
		cfg.Store.URL = flags.URL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Store.Backend(logger))
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer, open opener) *cobra.Command {
	var flags storeFlags
	rc := &cobra.Command{
		Use:   "kvutil",
		Short: "Export and import KV store entries as NDJSON",
		Long: `
kvutil copies the entries of a KV store to and from newline-delimited JSON,
one entry per line in the typed wire format also used by the HTTP server.

The store is chosen by KV_STORE, KV_PATH and DATABASE_URL (or a .env file),
or by the --store, --path and --url flags.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)

	pf := rc.PersistentFlags()
	pf.StringVar(&flags.Driver, "store", "", "store backend: memory, bolt, sqlite or postgres")
	pf.StringVar(&flags.Path, "path", "", "database file for the bolt and sqlite backends")
	pf.StringVar(&flags.URL, "url", "", "PostgreSQL connection string")
	pf.StringVar(&flags.LogLevel, "log-level", "warn", "log level written to stderr")

	env := &cmdEnv{flags: &flags, open: open, stderr: stderr}
	rc.AddCommand(newExportCommand(env))
	rc.AddCommand(newImportCommand(env))
	rc.AddCommand(newGetCommand(env))
	return rc
}

// cmdEnv is shared by the subcommands.
type cmdEnv struct {
	flags  *storeFlags
	open   opener
	stderr io.Writer
}

func (e *cmdEnv) logger() *slog.Logger {
	return slog.New(logging.NewHandler(e.stderr, e.flags.LogLevel, "text"))
}

// withStore opens the store, runs fn and closes the store.
func (e *cmdEnv) withStore(ctx context.Context, fn func(store.Store, *slog.Logger) error) error {
	logger := e.logger()
	st, err := e.open(ctx, *e.flags, logger)
	if err != nil {
		return err
	}
	err = fn(st, logger)
	if cerr := st.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// parseKeyFlag parses a key given in its JSON wire form. An empty flag is a
// nil key.
func parseKeyFlag(name, raw string) (kv.Key, error) {
	if raw == "" {
		return nil, nil
	}
	key, err := kv.ParseKey([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return key, nil
}
