package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

func newMemoryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Manage stored memories",
	}
	cmd.AddCommand(newMemoryAddCmd(opts), newMemoryDeleteCmd(opts))
	return cmd
}

func newMemoryAddCmd(opts *rootOptions) *cobra.Command {
	var (
		owner      string
		user       string
		source     string
		importance float64
		tags       []string
	)

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Store a memory and index it",
		Long: `Store a memory for an owner entity and add its embedding to the owner's
vector index. If the embedding cannot be generated the memory is still
stored and stays reachable through keyword search; run "index rebuild"
later to embed it.

Examples:
  recall memory add --owner c1 "Alice grew up in Lisbon"
  recall memory add --owner c1 --source MANUAL --importance 0.9 "Allergic to peanuts"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return errors.New("--owner is required")
			}
			if importance < 0 || importance > 1 {
				return fmt.Errorf("--importance must be between 0 and 1, got %g", importance)
			}
			src := types.MemorySource(strings.ToUpper(source))
			if !src.IsValid() {
				return fmt.Errorf("unknown --source %q", source)
			}

			return opts.run(cmd, func(ctx context.Context, a *app) error {
				memory := &types.Memory{
					OwnerEntityID: owner,
					Content:       args[0],
					Importance:    importance,
					Source:        src,
					Tags:          tags,
				}
				if err := a.memories.Store(ctx, memory); err != nil {
					return fmt.Errorf("storing memory: %w", err)
				}

				indexed := true
				if err := a.indexer.IndexMemory(ctx, user, memory); err != nil {
					indexed = false
					a.logger.Warn("memory stored without embedding", "memory_id", memory.ID, "error", err)
				} else if err := a.indices.SaveStore(ctx, owner); err != nil {
					return err
				}

				if opts.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"memory": memory, "indexed": indexed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", memory.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner entity ID (required)")
	cmd.Flags().StringVar(&user, "user", "", "User whose embedding profile is used")
	cmd.Flags().StringVar(&source, "source", string(types.SourceManual), "Memory source: AUTO, MANUAL or IMPORT")
	cmd.Flags().Float64Var(&importance, "importance", 0.5, "Importance between 0 and 1")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag to attach (repeatable)")
	return cmd
}

func newMemoryDeleteCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <memory-id>",
		Short: "Delete a memory and drop its vector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				memory, err := a.memories.FindByID(ctx, args[0])
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("memory %s not found", args[0])
				}
				if err != nil {
					return err
				}
				if err := a.memories.Delete(ctx, memory.ID); err != nil {
					return fmt.Errorf("deleting memory: %w", err)
				}
				if _, err := a.indexer.RemoveMemory(ctx, memory.OwnerEntityID, memory.ID); err != nil {
					return err
				}
				if err := a.indices.SaveStore(ctx, memory.OwnerEntityID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", memory.ID)
				return nil
			})
		},
	}
	return cmd
}
