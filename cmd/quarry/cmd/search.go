package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/budget"
	"github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/evidence"
	"github.com/quarrylabs/quarry/internal/snapshot"
)

func newSearchCmd() *cobra.Command {
	var (
		limit      int
		offset     int
		maxChars   int
		perSource  int
		format     string
		snapshotID string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Query the corpus and print budget-constrained evidence",
		Long: `Search runs the configured backend against the corpus and prints
ranked evidence snippets. Without --snapshot the snapshot is built
(or reused) first; with --snapshot an existing snapshot is loaded
and queried as-is.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queryText := strings.Join(args, " ")

			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			b := eng.cfg.QueryBudget()
			if cmd.Flags().Changed("limit") {
				b.MaxTotalItems = limit
			}
			if cmd.Flags().Changed("offset") {
				b.Offset = offset
			}
			if cmd.Flags().Changed("max-chars") {
				b.MaxTotalChars = maxChars
			}
			if cmd.Flags().Changed("per-source") {
				b.MaxItemsPerSource = perSource
			}
			if err := b.Validate(); err != nil {
				return err
			}

			bk, err := eng.registry.Get(eng.cfg.Backend.ID)
			if err != nil {
				return err
			}

			var snap *snapshot.Snapshot
			if snapshotID != "" {
				snap, err = snapshot.StoreFor(eng.corpus.Root()).Load(snapshotID)
			} else {
				snap, err = bk.BuildSnapshot(cmd.Context(), eng.corpus,
					eng.cfg.Backend.Name, eng.cfg.Backend.Configuration)
			}
			if err != nil {
				return err
			}

			res, err := bk.Query(cmd.Context(), eng.corpus, snap, queryText, b)
			if err != nil {
				return err
			}

			// Piped output defaults to the machine-readable envelope.
			if !cmd.Flags().Changed("format") && !stdoutIsTerminal() {
				format = "json"
			}

			switch format {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			case "text":
				printResultText(cmd, res)
				return nil
			default:
				return errors.Newf(errors.ErrCodeInvalidInput,
					"unknown output format %q, expected text or json", format)
			}
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", budget.DefaultMaxTotalItems, "Maximum evidence items to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Ranked items to skip before returning")
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "Cumulative evidence text cap in characters (0 = unlimited)")
	cmd.Flags().IntVar(&perSource, "per-source", 0, "Per-source item cap (0 = unlimited)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	cmd.Flags().StringVar(&snapshotID, "snapshot", "", "Query an existing snapshot id instead of building")
	return cmd
}

func printResultText(cmd *cobra.Command, res *evidence.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "query: %q  snapshot: %s  candidates: %d  returned: %d\n\n",
		res.QueryText, res.SnapshotID, res.Stats["candidates"], res.Stats["returned"])
	if len(res.Evidence) == 0 {
		fmt.Fprintln(out, "no results")
		return
	}
	for _, ev := range res.Evidence {
		fmt.Fprintf(out, "%3d. %-30s score=%.4f stage=%s\n", ev.Rank, ev.ItemID, ev.Score, ev.Stage)
		if ev.SourceURI != "" {
			fmt.Fprintf(out, "     %s [%d:%d]\n", ev.SourceURI, ev.SpanStart, ev.SpanEnd)
		}
		if ev.Text != "" {
			fmt.Fprintf(out, "     %s\n", strings.ReplaceAll(ev.Text, "\n", " "))
		}
		fmt.Fprintln(out)
	}
}
