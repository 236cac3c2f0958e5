package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leyline-dev/leyline"
)

// warmMetadata opens the cache and warms the metadata index for the
// requested categories (all when nil).
func warmMetadata(cmd *cobra.Command, categories []string) (*leyline.MetadataCache, *leyline.Cache, error) {
	cache, err := openCache(cmd)
	if err != nil {
		return nil, nil, err
	}

	// Seed the key index from the last manifest so reads hit blobs cached
	// by previous runs instead of re-reading every working copy.
	if manifest, err := leyline.NewSyncState(cache).Load(); err == nil {
		for path, hash := range manifest.Entries {
			cache.Seed(path, hash)
		}
	}

	meta := leyline.NewMetadataCache(cache, defaultTargetDir,
		leyline.WithMetaLogger(newLogger(cmd)))
	if err := meta.Warm(cmd.Context(), categories).Wait(); err != nil {
		return nil, nil, err
	}
	return meta, cache, nil
}

// newCategoriesCmd lists the synced categories.
func newCategoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List available categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			meta, _, err := warmMetadata(cmd, nil)
			if err != nil {
				return err
			}
			categories := meta.Categories()

			if isJSONMode(cmd) {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(categories)
			}
			for _, cat := range categories {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d documents\n", cat, len(meta.DocumentsIn(cat)))
			}
			return nil
		},
	}
	return cmd
}

// newShowCmd lists the documents of one category.
func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show CATEGORY",
		Short: "Show the documents of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, _, err := warmMetadata(cmd, []string{args[0]})
			if err != nil {
				return err
			}
			docs := meta.DocumentsIn(args[0])

			if isJSONMode(cmd) {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(docs)
			}
			if len(docs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no documents in category %q\n", args[0])
				return nil
			}
			out := cmd.OutOrStdout()
			for _, doc := range docs {
				fmt.Fprintln(out, styleHeading.Render(fmt.Sprintf("%s (%s)", doc.Title, doc.ID)))
				if doc.Summary != "" {
					fmt.Fprintf(out, "  %s\n", doc.Summary)
				}
				fmt.Fprintln(out, styleFaint.Render("  "+doc.Path))
			}
			return nil
		},
	}
	return cmd
}

// newSearchCmd searches the metadata index.
func newSearchCmd() *cobra.Command {
	var (
		limit     int
		showStats bool
	)

	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Search documents by free text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			meta, cache, err := warmMetadata(cmd, nil)
			if err != nil {
				return err
			}

			results := meta.Search(query, limit)

			if isJSONMode(cmd) {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				if len(results) == 0 {
					fmt.Fprintf(out, "no results for %q\n", query)
					if suggestions := meta.Suggest(query, 3); len(suggestions) > 0 {
						fmt.Fprintf(out, "did you mean: %s\n", strings.Join(suggestions, ", "))
					}
				}
				for i, r := range results {
					fmt.Fprintln(out, styleHeading.Render(fmt.Sprintf("%d. %s (%s)", i+1, r.Document.Title, r.Document.ID)))
					fmt.Fprintln(out, styleFaint.Render(fmt.Sprintf("   %s  score=%.1f  matched=%s",
						r.Document.Path, r.Score, strings.Join(r.MatchedTerms, ","))))
				}
			}

			if showStats {
				printCacheStats(cmd, cache)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&showStats, "stats", false, "Print cache statistics")

	return cmd
}
