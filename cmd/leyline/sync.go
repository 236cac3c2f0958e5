package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/leyline-dev/leyline"
)

// newSyncCmd creates the sync command.
func newSyncCmd() *cobra.Command {
	var (
		categories []string
		ref        string
		repoURL    string
		showStats  bool
	)

	cmd := &cobra.Command{
		Use:   "sync [PATH]",
		Short: "Synchronize documents from the remote repository",
		Long: `Sync fetches the requested categories at the pinned ref, populates the
local content-addressed cache, materializes working copies under PATH
(default docs/leyline), and atomically records a new sync manifest.

Individual files that fail are skipped and reported; the sync only fails
as a whole when fetching fails or the manifest cannot be committed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache(cmd)
			if err != nil {
				return err
			}

			provider := &gitProvider{repoURL: repoURL}
			engine := leyline.NewSyncEngine(cache, provider, targetDirArg(args),
				leyline.WithRef(ref),
				leyline.WithSyncLogger(newLogger(cmd)))

			report, err := engine.Sync(cmd.Context(), categories)
			if err != nil {
				printSkipped(cmd, report)
				return err
			}

			if isJSONMode(cmd) {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styleHeading.Render(fmt.Sprintf("Synced %d files at %s", report.Synced, report.Ref)))
			cats := make([]string, 0, len(report.Categories))
			for cat := range report.Categories {
				cats = append(cats, cat)
			}
			sort.Strings(cats)
			for _, cat := range cats {
				fmt.Fprintf(out, "  %-20s %d files\n", cat, report.Categories[cat])
			}
			printSkipped(cmd, report)
			fmt.Fprintln(out, styleFaint.Render(fmt.Sprintf("completed in %s", report.Duration.Round(time.Millisecond))))

			if showStats {
				printCacheStats(cmd, cache)
				statsPath := filepath.Join(cache.Root(), "stats.json")
				if err := cache.Stats().SaveTo(cache.Fs(), statsPath); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&categories, "categories", nil, "Categories to sync (e.g. typescript,go)")
	cmd.Flags().StringVar(&ref, "ref", "main", "Git ref to sync from")
	cmd.Flags().StringVar(&repoURL, "repo", defaultRepoURL, "Remote repository URL")
	cmd.Flags().BoolVar(&showStats, "stats", false, "Print and persist cache statistics")

	return cmd
}

// printSkipped reports per-file failures collected during populate.
func printSkipped(cmd *cobra.Command, report *leyline.Report) {
	if report == nil || len(report.Skipped) == 0 {
		return
	}
	out := cmd.ErrOrStderr()
	fmt.Fprintln(out, styleRemoved.Render(fmt.Sprintf("%d files skipped:", len(report.Skipped))))
	for _, fe := range report.Skipped {
		fmt.Fprintf(out, "  %s\n", fe.Error())
	}
}

// printCacheStats prints the hit/miss counters for --stats.
func printCacheStats(cmd *cobra.Command, cache *leyline.Cache) {
	snap := cache.Stats().Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "cache: %d hits, %d misses, %.1f%% hit ratio, %d bytes served\n",
		snap.Hits, snap.Misses, snap.HitRatio*100, snap.BytesServed)
}
