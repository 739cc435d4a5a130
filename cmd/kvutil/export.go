package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"

	"github.com/denoland/kv-utils/internal/core"
	"github.com/denoland/kv-utils/internal/store"
	"github.com/spf13/cobra"
)

func newExportCommand(env *cmdEnv) *cobra.Command {
	var (
		prefix, start, end string
		out                string
		opts               core.ExportOptions
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write entries as NDJSON",
		Long: `
Writes the selected entries in key order, one JSON line each, to standard
output or to --out. Keys are given in their JSON wire form, for example
--prefix '[{"type":"string","value":"users"}]'.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sel store.Selector
			var err error
			if sel.Prefix, err = parseKeyFlag("prefix", prefix); err != nil {
				return err
			}
			if sel.Start, err = parseKeyFlag("start", start); err != nil {
				return err
			}
			if sel.End, err = parseKeyFlag("end", end); err != nil {
				return err
			}

			var f *os.File
			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				if f, err = os.Create(out); err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				w = f
			}

			err = env.withStore(cmd.Context(), func(st store.Store, logger *slog.Logger) error {
				bw := bufio.NewWriter(w)
				n, err := core.WriteEntries(cmd.Context(), bw, st, sel, opts)
				if ferr := bw.Flush(); ferr != nil && err == nil {
					err = fmt.Errorf("flush export: %w", ferr)
				}
				if err != nil {
					return err
				}
				logger.Info("export complete", "lines", n)
				return nil
			})
			if f != nil {
				if cerr := f.Close(); cerr != nil && err == nil {
					err = fmt.Errorf("close export file: %w", cerr)
				}
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&prefix, "prefix", "", "export keys under this key (JSON)")
	flags.StringVar(&start, "start", "", "first key to export, inclusive (JSON)")
	flags.StringVar(&end, "end", "", "key to stop before (JSON)")
	flags.IntVar(&opts.Limit, "limit", 0, "maximum number of entries, 0 for all")
	flags.BoolVar(&opts.Reverse, "reverse", false, "export in descending key order")
	flags.IntVar(&opts.BatchSize, "batch", 0, "entries fetched per store round trip")
	flags.StringVarP(&out, "out", "o", "", "output file, - or empty for standard output")
	return cmd
}
