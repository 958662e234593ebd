package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/pkg/types"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		owner   string
		search  engine.SearchOptions
		sources []string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an owner's memories",
		Long: `Search the memories of an owner entity by semantic similarity to the
query. When no embedding can be generated for the query (no profile,
provider down, empty index) keyword matching is used instead.

Examples:
  recall search --owner c1 "where did Alice grow up"
  recall search --owner c1 --limit 3 --min-score 0.4 "food allergies"
  recall search --owner c1 --source MANUAL --format json "family"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return errors.New("--owner is required")
			}
			for _, s := range sources {
				src := types.MemorySource(strings.ToUpper(s))
				if !src.IsValid() {
					return fmt.Errorf("unknown --source %q", s)
				}
				search.SourceFilter = append(search.SourceFilter, src)
			}

			return opts.run(cmd, func(ctx context.Context, a *app) error {
				resp, err := a.search.Search(ctx, owner, args[0], search)
				if err != nil {
					return fmt.Errorf("searching memories: %w", err)
				}
				if opts.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				printResults(cmd, resp)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner entity ID (required)")
	cmd.Flags().StringVar(&search.UserID, "user", "", "User whose embedding profile is used")
	cmd.Flags().StringVar(&search.ProfileID, "profile", "", "Explicit embedding profile ID")
	cmd.Flags().IntVar(&search.Limit, "limit", 0, "Maximum results (0 uses the configured default)")
	cmd.Flags().Float64Var(&search.MinScore, "min-score", 0, "Drop semantic matches scoring below this")
	cmd.Flags().Float64Var(&search.MinImportance, "min-importance", 0, "Drop memories less important than this")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Only return memories from this source (repeatable)")
	return cmd
}

func printResults(cmd *cobra.Command, resp *engine.SearchResponse) {
	out := cmd.OutOrStdout()
	if len(resp.Results) == 0 {
		fmt.Fprintln(out, "No memories found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SCORE\tIMPORTANCE\tSOURCE\tID\tCONTENT\n")
	for _, r := range resp.Results {
		fmt.Fprintf(w, "%.3f\t%.2f\t%s\t%s\t%s\n",
			r.Score,
			r.Memory.Importance,
			r.Memory.Source,
			truncate(r.Memory.ID, 36),
			truncate(r.Memory.Content, 60))
	}
	w.Flush()

	mode := "semantic"
	if !resp.UsedEmbedding {
		mode = "keyword"
	}
	fmt.Fprintf(out, "\n%d result(s), %s match\n", len(resp.Results), mode)
}
