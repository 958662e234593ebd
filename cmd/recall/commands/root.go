// Package commands implements the recall operator CLI.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/logging"
)

// shutdownTimeout bounds the final flush and background writes on exit.
const shutdownTimeout = 30 * time.Second

// Version information, set by main.
var (
	version = "dev"
	commit  = "none"
)

// SetVersion records build information for the version command.
func SetVersion(v, c string) {
	version, commit = v, c
}

type rootOptions struct {
	configPath string
	envFile    string
	format     string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "recall",
		Short: "Semantic memory retrieval for owner entities",
		Long: `recall stores free-text memories per owner entity, indexes them with an
embedding provider and retrieves the most relevant ones for a query.

When no embedding can be produced, search falls back to keyword matching.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("--format must be text or json, got %q", opts.format)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file (ignored when missing)")
	cmd.PersistentFlags().StringVar(&opts.format, "format", "text", "Output format: text or json")

	cmd.AddCommand(
		newMemoryCmd(opts),
		newSearchCmd(opts),
		newIndexCmd(opts),
		newProfileCmd(opts),
		newBackupCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// run loads configuration, builds the app, calls fn and tears the app down.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	cfg, err := config.Load(o.configPath, o.envFile)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := a.close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(cmd.Context(), a)
}

func (o *rootOptions) jsonOutput() bool {
	return o.format == "json"
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "recall %s (%s)\n", version, commit)
		},
	}
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
