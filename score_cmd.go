package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/speakdrill/speakdrill/internal/ledger"
)

var (
	scoreOK    int
	scoreNG    int
	scoreLimit int
	scoreForce bool

	scoreCmd = &cobra.Command{
		Use:   "score",
		Short: "Show and edit study scores",
		Args:  cobra.NoArgs,
	}

	scoreStatsCmd = &cobra.Command{
		Use:   "stats [DIALOGUE]",
		Short: "Show scores per dialogue, or per line of one dialogue",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScoreStats,
	}

	scoreMarkCmd = &cobra.Command{
		Use:   "mark DIALOGUE LINE o|x",
		Short: "Record one attempt at a line",
		Args:  cobra.ExactArgs(3),
		RunE:  runScoreMark,
	}

	scoreAdjustCmd = &cobra.Command{
		Use:   "adjust DIALOGUE LINE",
		Short: "Correct the counts of a line",
		Args:  cobra.ExactArgs(2),
		RunE:  runScoreAdjust,
	}

	scoreRecentCmd = &cobra.Command{
		Use:   "recent",
		Short: "List the latest attempts",
		Args:  cobra.NoArgs,
		RunE:  runScoreRecent,
	}

	scoreResetCmd = &cobra.Command{
		Use:   "reset [DIALOGUE]",
		Short: "Clear the scores of a dialogue, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScoreReset,
	}
)

func init() {
	scoreAdjustCmd.Flags().IntVar(&scoreOK, "ok", 0, "add to the OK count (negative to subtract)")
	scoreAdjustCmd.Flags().IntVar(&scoreNG, "ng", 0, "add to the NG count (negative to subtract)")
	scoreRecentCmd.Flags().IntVarP(&scoreLimit, "limit", "n", 20, "number of attempts")
	scoreResetCmd.Flags().BoolVarP(&scoreForce, "yes", "y", false, "clear every dialogue without a dialogue argument")

	scoreCmd.AddCommand(scoreStatsCmd, scoreMarkCmd, scoreAdjustCmd, scoreRecentCmd, scoreResetCmd)
}

// withLedger runs fn with the score ledger open.
func withLedger(fn func(ctx context.Context, l *ledger.Ledger) error) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close() //nolint:errcheck
	return fn(context.Background(), l)
}

func runScoreStats(cmd *cobra.Command, args []string) error {
	return withLedger(func(ctx context.Context, l *ledger.Ledger) error {
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			entries, err := l.Entries(ctx, args[0])
			if err != nil {
				return err
			}
			printEntries(out, entries)
			return nil
		}

		sums, err := l.Summary(ctx, "")
		if err != nil {
			return err
		}
		if len(sums) == 0 {
			fmt.Fprintln(out, dimStyle.Render("nothing studied yet"))
			return nil
		}
		for _, s := range sums {
			fmt.Fprintf(out, "%s %3d lines  %s %s  %s\n",
				titleStyle.Render(padRight(s.DialogueID, 16)),
				s.Studied,
				okStyle.Render(fmt.Sprintf("○%-4d", s.OKCount)),
				ngStyle.Render(fmt.Sprintf("×%-4d", s.NGCount)),
				dimStyle.Render(humanize.Time(s.LastStudiedAt)))
		}
		return nil
	})
}

func printEntries(w io.Writer, entries []ledger.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, dimStyle.Render("nothing studied yet"))
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %s %s  %s\n",
			padRight(e.Key(), 20),
			okStyle.Render(fmt.Sprintf("○%-4d", e.OKCount)),
			ngStyle.Render(fmt.Sprintf("×%-4d", e.NGCount)),
			dimStyle.Render(humanize.Time(e.LastStudiedAt)))
	}
}

// parseLine reads a line index argument.
func parseLine(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid line %q", s)
	}
	return i, nil
}

// parseMark reads an o/x mark argument.
func parseMark(s string) (bool, error) {
	switch s {
	case "o", "ok", "O":
		return true, nil
	case "x", "ng", "X":
		return false, nil
	default:
		return false, fmt.Errorf("invalid mark %q: use o or x", s)
	}
}

func runScoreMark(cmd *cobra.Command, args []string) error {
	i, err := parseLine(args[1])
	if err != nil {
		return err
	}
	ok, err := parseMark(args[2])
	if err != nil {
		return err
	}
	return withLedger(func(ctx context.Context, l *ledger.Ledger) error {
		e, err := l.Mark(ctx, args[0], i, ok)
		if err != nil {
			return err
		}
		printEntries(cmd.OutOrStdout(), []ledger.Entry{e})
		return nil
	})
}

func runScoreAdjust(cmd *cobra.Command, args []string) error {
	i, err := parseLine(args[1])
	if err != nil {
		return err
	}
	if scoreOK == 0 && scoreNG == 0 {
		return errors.New("nothing to adjust: pass --ok or --ng")
	}
	return withLedger(func(ctx context.Context, l *ledger.Ledger) error {
		e, err := l.Adjust(ctx, args[0], i, scoreOK, scoreNG)
		if err != nil {
			return err
		}
		printEntries(cmd.OutOrStdout(), []ledger.Entry{e})
		return nil
	})
}

func runScoreRecent(cmd *cobra.Command, _ []string) error {
	return withLedger(func(ctx context.Context, l *ledger.Ledger) error {
		attempts, err := l.Recent(ctx, scoreLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(attempts) == 0 {
			fmt.Fprintln(out, dimStyle.Render("no attempts yet"))
			return nil
		}
		for _, a := range attempts {
			mark := okStyle.Render("○")
			if !a.OK {
				mark = ngStyle.Render("×")
			}
			fmt.Fprintf(out, "%s %s  %s\n", mark, padRight(a.Key, 20), dimStyle.Render(humanize.Time(a.CreatedAt)))
		}
		return nil
	})
}

func runScoreReset(cmd *cobra.Command, args []string) error {
	id := ""
	if len(args) == 1 {
		id = args[0]
	} else if !scoreForce {
		return errors.New("pass a dialogue, or --yes to clear every score")
	}
	return withLedger(func(ctx context.Context, l *ledger.Ledger) error {
		n, err := l.Reset(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d lines\n", n)
		return nil
	})
}
