package main

import (
	"fmt"
	"log/slog"

	"github.com/denoland/kv-utils/internal/core"
	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/store"
	"github.com/spf13/cobra"
)

func newGetCommand(env *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:     "get KEY",
		Short:   "Print one entry as a JSON line",
		Example: `  kvutil get '[{"type":"string","value":"users"},{"type":"string","value":"alice"}]'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := kv.ParseKey([]byte(args[0]))
			if err != nil {
				return fmt.Errorf("parse key: %w", err)
			}
			return env.withStore(cmd.Context(), func(st store.Store, _ *slog.Logger) error {
				entry, err := st.Get(cmd.Context(), key)
				if err != nil {
					return err
				}
				if !entry.Exists() {
					return fmt.Errorf("%w: %s", core.ErrEntryNotFound, key)
				}
				line, err := kv.EncodeEntry(entry)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", line)
				return nil
			})
		},
	}
}
