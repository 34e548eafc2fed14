package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/villetakanen/pelilauta-17-sub000/internal/config"
	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
	"github.com/villetakanen/pelilauta-17-sub000/internal/factory"
	"github.com/villetakanen/pelilauta-17-sub000/internal/logger"
)

var (
	driverFlag string
	verbose    bool
	rootCmd    = &cobra.Command{
		Use:   "threadctl",
		Short: "Operator tools for the threads document store",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&driverFlag, "driver", "d", "", "Store driver override (redis|postgres|sqlite)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore loads configuration from the environment and opens the configured store.
func openStore(ctx context.Context) (docstore.Store, zerolog.Logger, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	log := logger.NewWithWriter(os.Stderr, "threadctl", level)

	cfg, err := config.New()
	if err != nil {
		return nil, log, err
	}
	if driverFlag != "" {
		cfg.StoreDriver = driverFlag
		if err := cfg.ResolveDefaults(); err != nil {
			return nil, log, err
		}
	}
	st, err := factory.NewStore(ctx, cfg, log)
	return st, log, err
}
