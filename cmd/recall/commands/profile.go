package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scrypster/recall/pkg/types"
)

func newProfileCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage embedding profiles",
	}
	cmd.AddCommand(newProfileAddCmd(opts), newProfileListCmd(opts))
	return cmd
}

func newProfileAddCmd(opts *rootOptions) *cobra.Command {
	var (
		profile  types.EmbeddingProfile
		provider string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update an embedding profile",
		Long: `Store an embedding profile for a user. API keys are referenced, not
stored: use --api-key-ref env:NAME to read the key from the environment
at call time.

Examples:
  recall profile add --user u1 --provider ollama --model nomic-embed-text --default
  recall profile add --user u1 --provider openai --model text-embedding-3-small \
    --api-key-ref env:OPENAI_API_KEY --dimensions 512`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if profile.OwnerID == "" {
				return errors.New("--user is required")
			}
			p, err := types.ParseProvider(provider)
			if err != nil {
				return err
			}
			profile.Provider = p

			return opts.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.profiles.SaveProfile(ctx, &profile); err != nil {
					return fmt.Errorf("saving profile: %w", err)
				}
				if opts.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), profile)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", profile.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&profile.ID, "id", "", "Profile ID (generated when empty)")
	cmd.Flags().StringVar(&profile.OwnerID, "user", "", "Owning user ID (required)")
	cmd.Flags().StringVar(&provider, "provider", "ollama", "Provider: ollama or openai")
	cmd.Flags().StringVar(&profile.ModelName, "model", "", "Embedding model name")
	cmd.Flags().StringVar(&profile.BaseURL, "base-url", "", "Provider base URL")
	cmd.Flags().StringVar(&profile.APIKeyRef, "api-key-ref", "", "API key reference (env:NAME)")
	cmd.Flags().IntVar(&profile.Dimensions, "dimensions", 0, "Requested output dimensions (0 for model default)")
	cmd.Flags().BoolVar(&profile.IsDefault, "default", false, "Make this the user's default profile")
	return cmd
}

func newProfileListCmd(opts *rootOptions) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's embedding profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user == "" {
				return errors.New("--user is required")
			}
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				profiles, err := a.profiles.ListProfiles(ctx, user)
				if err != nil {
					return err
				}
				if opts.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), profiles)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "ID\tPROVIDER\tMODEL\tDIMENSIONS\tDEFAULT\n")
				for _, p := range profiles {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\n", p.ID, p.Provider, p.ModelName, p.Dimensions, p.IsDefault)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User ID (required)")
	return cmd
}
