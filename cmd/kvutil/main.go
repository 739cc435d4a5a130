// Command kvutil exports and imports the entries of a KV store as NDJSON.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/denoland/kv-utils/internal/store/bolt" // Register backends
	_ "github.com/denoland/kv-utils/internal/store/memory"
	_ "github.com/denoland/kv-utils/internal/store/postgres"
	_ "github.com/denoland/kv-utils/internal/store/sqlite"
	"github.com/joho/godotenv"
)

func main() {
	// A .env file is optional; flags and the environment take precedence.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc := newRootCommand(os.Stdin, os.Stdout, os.Stderr, openFromConfig)
	if err := rc.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
