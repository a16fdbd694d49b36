package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the offline cache",
		Args:  cobra.NoArgs,
	}

	cacheLsCmd = &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List cache stores and their usage",
		Args:    cobra.NoArgs,
		RunE:    runCacheLs,
	}

	cachePruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete stores left behind by older versions",
		Args:  cobra.NoArgs,
		RunE:  runCachePrune,
	}
)

func init() {
	cacheCmd.AddCommand(cacheLsCmd, cachePruneCmd)
}

func runCacheLs(cmd *cobra.Command, _ []string) error {
	storage, closeStorage, err := openStorage(cfg.Cache)
	if err != nil {
		return err
	}
	defer closeStorage() //nolint:errcheck

	names, err := storage.Keys()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintln(out, dimStyle.Render("cache is empty"))
		return nil
	}

	for _, name := range names {
		store, err := storage.Open(name)
		if err != nil {
			return err
		}
		st := store.Stats()

		label := padRight(name, 12)
		if name != cfg.Cache.AppStore && name != cfg.Cache.AudioStore {
			label = dimStyle.Render(label + " (stale)")
		} else {
			label = titleStyle.Render(label)
		}

		used := "never"
		if !st.LastAccess.IsZero() {
			used = humanize.Time(st.LastAccess)
		}
		fmt.Fprintf(out, "%s %6s entries %10s  last used %s\n",
			label, humanize.Comma(st.ItemCount), humanize.Bytes(uint64(st.Size)), used) //nolint:gosec
	}
	return nil
}

func runCachePrune(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(nil)
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	removed, err := rt.worker.Activate(context.Background())
	for _, name := range removed {
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", name)
	}
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("nothing to prune"))
	}
	return nil
}
