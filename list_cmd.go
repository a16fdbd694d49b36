package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/speakdrill/speakdrill/internal/content"
	"github.com/speakdrill/speakdrill/internal/ledger"
)

var listCmd = &cobra.Command{
	Use:     "list [QUERY]",
	Aliases: []string{"ls"},
	Short:   "List dialogues",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runList,
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := content.Load(cfg.Content.Path)
	if err != nil {
		return fmt.Errorf("unable to load dialogues: %w", err)
	}

	dialogues := store.Dialogues()
	if len(args) == 1 {
		dialogues = filterDialogues(dialogues, args[0])
	}

	studied := map[string]ledger.Summary{}
	if l, err := openLedger(); err == nil {
		defer l.Close() //nolint:errcheck
		if sums, err := l.Summary(ctx, ""); err == nil {
			for _, s := range sums {
				studied[s.DialogueID] = s
			}
		}
	}

	out := cmd.OutOrStdout()
	if len(dialogues) == 0 {
		fmt.Fprintln(out, dimStyle.Render("no dialogues"))
		return nil
	}
	for _, d := range dialogues {
		progress := ""
		if s, ok := studied[d.ID]; ok {
			progress = fmt.Sprintf("%s %s",
				okStyle.Render(fmt.Sprintf("%d/%d", s.Studied, len(d.Lines))),
				dimStyle.Render("studied"))
		}
		fmt.Fprintf(out, "%s %s %s %s\n",
			titleStyle.Render(padRight(d.ID, 16)),
			padRight(d.Title, 28),
			dimStyle.Render(padRight(fmt.Sprintf("%d lines, %s", len(d.Lines), strings.Join(d.Roles(), "/")), 18)),
			progress)
	}
	return nil
}

// filterDialogues keeps the dialogues whose id or title fuzzy-match query,
// best match first.
func filterDialogues(dialogues []*content.Dialogue, query string) []*content.Dialogue {
	targets := make([]string, len(dialogues))
	for i, d := range dialogues {
		targets[i] = d.ID + " " + d.Title
	}
	matches := fuzzy.Find(query, targets)
	out := make([]*content.Dialogue, 0, len(matches))
	for _, m := range matches {
		out = append(out, dialogues[m.Index])
	}
	return out
}
