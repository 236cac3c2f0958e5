// Package main provides the entry point for the leyline CLI.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/leyline-dev/leyline"
)

// Build info set via ldflags at build time.
var (
	version = "dev"
)

// defaultRepoURL is the upstream knowledge-base repository.
const defaultRepoURL = "https://github.com/leyline-dev/leyline-docs.git"

// defaultTargetDir is where synced documents are materialized.
const defaultTargetDir = "docs/leyline"

// Styles for human output.
var (
	styleHeading  = lipgloss.NewStyle().Bold(true)
	styleAdded    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleModified = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleRemoved  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleFaint    = lipgloss.NewStyle().Faint(true)
)

func main() {
	if err := fang.Execute(context.Background(), newRootCmd(), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// newRootCmd creates the root command for the leyline CLI.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leyline",
		Short: "Sync and explore development tenets and bindings",
		Long: `Leyline keeps a local, content-addressed cache of development tenets and
bindings synchronized from a remote git repository, and answers discovery
queries (categories, show, search) from a derived metadata index.

The cache lives under ~/.cache/leyline (override with LEYLINE_CACHE_DIR).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Load .env.local then .env so LEYLINE_CACHE_DIR can be set per-repo.
	// Environment variables already set take precedence.
	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		_ = godotenv.Load(".env.local")
		_ = godotenv.Load(".env")
		return nil
	}

	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDiffCmd())
	cmd.AddCommand(newCategoriesCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newSearchCmd())

	return cmd
}

// isJSONMode reads the --json persistent flag.
func isJSONMode(cmd *cobra.Command) bool {
	json, _ := cmd.Flags().GetBool("json")
	return json
}

// newLogger builds the logger for a command invocation: debug text output
// on stderr when --verbose, otherwise discard.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// openCache opens the cache at the configured root.
func openCache(cmd *cobra.Command) (*leyline.Cache, error) {
	return leyline.Open(leyline.DefaultCacheDir(), leyline.WithLogger(newLogger(cmd)))
}

// targetDirArg resolves the optional PATH argument.
func targetDirArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return defaultTargetDir
}
