package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/denoland/kv-utils/internal/core"
	"github.com/denoland/kv-utils/internal/ndjson"
	"github.com/denoland/kv-utils/internal/store"
	"github.com/spf13/cobra"
)

const progressInterval = 500 * time.Millisecond

func newImportCommand(env *cmdEnv) *cobra.Command {
	var (
		prefix string
		quiet  bool
		opts   core.ImportOptions
	)
	cmd := &cobra.Command{
		Use:   "import [FILE|-]",
		Short: "Read NDJSON entries into the store",
		Long: `
Imports one entry per line from FILE, or from standard input when FILE is
omitted or "-". Existing keys are skipped unless --overwrite is given. Bad
lines are reported and skipped unless --throw is given. Interrupting the
command stops after the current line.
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.Prefix, err = parseKeyFlag("prefix", prefix); err != nil {
				return err
			}

			var src io.Reader = cmd.InOrStdin()
			var size int64
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer f.Close()
				if fi, err := f.Stat(); err == nil {
					size = fi.Size()
				}
				src = f
			}
			counter := ndjson.NewCountingReader(src, size)
			stderr := cmd.ErrOrStderr()

			return env.withStore(cmd.Context(), func(st store.Store, logger *slog.Logger) error {
				opts.Logger = logger
				opts.OnError = func(e *core.ImportError) {
					fmt.Fprintf(stderr, "line %d: %v\n", e.Count, e.Cause)
				}
				var last time.Time
				if !quiet {
					opts.OnProgress = func(count, skipped, errors int) {
						if time.Since(last) < progressInterval {
							return
						}
						last = time.Now()
						printProgress(stderr, counter, count, skipped, errors)
					}
				}

				res, err := core.ImportEntries(cmd.Context(), st, counter, opts)
				if !quiet {
					printProgress(stderr, counter, res.Count, res.Skipped, res.Errors)
					fmt.Fprintln(stderr)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "read %d lines: %d written, %d skipped, %d failed\n",
					res.Count, res.Written(), res.Skipped, res.Errors)
				if res.Aborted {
					return fmt.Errorf("import interrupted after %d lines", res.Count)
				}
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.Overwrite, "overwrite", false, "replace entries whose key already exists")
	flags.BoolVar(&opts.ThrowOnError, "throw", false, "stop at the first bad line")
	flags.StringVar(&prefix, "prefix", "", "prepend this key to every imported key (JSON)")
	flags.IntVar(&opts.BufferSize, "buffer", 0, "read size in bytes")
	flags.BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

func printProgress(w io.Writer, counter *ndjson.CountingReader, count, skipped, errors int) {
	if counter.Total() > 0 {
		fmt.Fprintf(w, "\r%3d%% %d lines (%d skipped, %d failed)", counter.Progress(), count, skipped, errors)
		return
	}
	fmt.Fprintf(w, "\r%d lines (%d skipped, %d failed)", count, skipped, errors)
}
