package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
	"github.com/villetakanen/pelilauta-17-sub000/internal/tagindex"
)

func init() {
	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the tag index from the stored threads",
		Long: "Reconciles one index record per thread from its tags and labels, and removes\n" +
			"records whose thread no longer exists.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, log, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			return runReindex(ctx, st, log, cmd.OutOrStdout())
		},
	}
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(ctx context.Context, st docstore.Store, log zerolog.Logger, out io.Writer) error {
	stats, err := tagindex.New(st, log).Rebuild(ctx)
	_, _ = fmt.Fprintf(out, "threads=%d written=%d removed=%d orphans=%d failed=%d\n",
		stats.Threads, stats.Written, stats.Removed, stats.Orphans, stats.Failed)
	if err != nil {
		return err
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d threads could not be reindexed", stats.Failed)
	}
	return nil
}
