package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/recall/internal/vectorindex"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Maintain per-owner vector indices",
	}
	cmd.AddCommand(newIndexRebuildCmd(opts), newIndexDeleteCmd(opts), newIndexStatsCmd(opts))
	return cmd
}

func newIndexRebuildCmd(opts *rootOptions) *cobra.Command {
	var owner, user string

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Re-embed every memory of an owner",
		Long: `Discard the owner's vector index and re-embed all of its memories with
the user's current embedding profile. Use after changing profiles or
models. Memories that fail to embed are reported and skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if owner == "" {
				return errors.New("--owner is required")
			}
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				report, err := a.indexer.Rebuild(ctx, user, owner)
				if err != nil {
					return fmt.Errorf("rebuilding index: %w", err)
				}
				if opts.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "indexed %d/%d memories (%d failed, %d dimensions) in %s\n",
					report.Indexed, report.Total, report.Failed, report.Dimensions, report.Duration.Round(time.Millisecond))
				for _, id := range report.FailedIDs {
					fmt.Fprintf(cmd.OutOrStdout(), "  failed: %s\n", id)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner entity ID (required)")
	cmd.Flags().StringVar(&user, "user", "", "User whose embedding profile is used")
	return cmd
}

func newIndexDeleteCmd(opts *rootOptions) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an owner's vector index",
		Long: `Delete the stored vector index of an owner entity, as when the entity
itself is deleted. Memories are not touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if owner == "" {
				return errors.New("--owner is required")
			}
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				existed, err := a.indexer.DeleteOwner(ctx, owner)
				if err != nil {
					return err
				}
				if opts.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"owner": owner, "deleted": existed})
				}
				if existed {
					fmt.Fprintf(cmd.OutOrStdout(), "deleted index for %s\n", owner)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "no index for %s\n", owner)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner entity ID (required)")
	return cmd
}

type ownerIndexStats struct {
	Owner      string `json:"owner"`
	Vectors    int    `json:"vectors"`
	Dimensions int    `json:"dimensions"`
	Version    int    `json:"version"`
}

func newIndexStatsCmd(opts *rootOptions) *cobra.Command {
	var owners []string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show vector index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				rows := make([]ownerIndexStats, 0, len(owners))
				for _, owner := range owners {
					idx, err := a.indices.GetStore(ctx, owner)
					if err != nil {
						return err
					}
					dims, _ := idx.Dimensions()
					rows = append(rows, ownerIndexStats{
						Owner:      owner,
						Vectors:    idx.Size(),
						Dimensions: dims,
						Version:    idx.Version(),
					})
				}
				stats := a.indices.Stats()

				if opts.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), struct {
						Owners []ownerIndexStats `json:"owners"`
						Cache  vectorindex.Stats `json:"cache"`
					}{rows, stats})
				}

				out := cmd.OutOrStdout()
				if len(rows) > 0 {
					w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
					fmt.Fprintf(w, "OWNER\tVECTORS\tDIMENSIONS\tVERSION\n")
					for _, r := range rows {
						fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", r.Owner, r.Vectors, r.Dimensions, r.Version)
					}
					w.Flush()
				}
				fmt.Fprintf(out, "loaded indices: %d, vectors: %d, dirty: %d\n",
					stats.LoadedStores, stats.TotalVectors, stats.DirtyStores)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&owners, "owner", nil, "Owner entity ID to load (repeatable)")
	return cmd
}
