package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/speakdrill/speakdrill/internal/clip"
	"github.com/speakdrill/speakdrill/internal/content"
)

var (
	prefetchAll bool

	prefetchCmd = &cobra.Command{
		Use:   "prefetch [DIALOGUE]",
		Short: "Download every clip of a dialogue for offline use",
		Long: paragraph(fmt.Sprintf(
			"\nStore every voice and rate preset of a dialogue in the audio cache, "+
				"so it %s. Use --all for every dialogue.",
			keyword("plays without a network"))),
		Args: cobra.MaximumNArgs(1),
		RunE: runPrefetch,
	}
)

func init() {
	prefetchCmd.Flags().BoolVarP(&prefetchAll, "all", "a", false, "prefetch every dialogue")
}

func runPrefetch(cmd *cobra.Command, args []string) error {
	if !prefetchAll && len(args) == 0 {
		return errors.New("name a dialogue or pass --all")
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := loadContent(ctx)
	if err != nil {
		return err
	}

	var dialogues []*content.Dialogue
	if prefetchAll {
		dialogues = store.Dialogues()
	} else {
		d, err := findDialogue(store, args[0])
		if err != nil {
			return err
		}
		dialogues = []*content.Dialogue{d}
	}

	rt, err := newRuntime(nil)
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	if err := rt.start(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var failed int
	for _, d := range dialogues {
		urls := clip.PrefetchList(rt.origin.String(), d.ID, d.ClipLines())
		report, err := rt.worker.Prefetch(ctx, urls)
		if err != nil {
			return fmt.Errorf("prefetch %s: %w", d.ID, err)
		}
		failed += report.Failed

		line := fmt.Sprintf("%s %d/%d clips", padRight(d.ID, 16), report.Stored, report.Total)
		if report.Failed > 0 {
			line += " " + errorStyle.Render(fmt.Sprintf("(%d failed)", report.Failed))
		}
		fmt.Fprintln(out, line)
	}

	if failed > 0 {
		return fmt.Errorf("%d clips could not be stored", failed)
	}
	return nil
}
