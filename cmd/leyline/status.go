package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leyline-dev/leyline"
)

// newStatusCmd creates the status command. Status is informational and
// always exits 0.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [PATH]",
		Short: "Show local changes relative to the last sync",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deltas, err := computeDeltas(cmd, targetDirArg(args))
			if err != nil {
				if errors.Is(err, leyline.ErrNoManifest) {
					fmt.Fprintln(cmd.OutOrStdout(), "no sync recorded yet; run 'leyline sync' first")
					return nil
				}
				return err
			}

			if isJSONMode(cmd) {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(deltasJSON(deltas))
			}
			printDeltaSummary(cmd, deltas)
			return nil
		},
	}
	return cmd
}

// computeDeltas diffs the working tree at root against the last manifest.
func computeDeltas(cmd *cobra.Command, root string) ([]leyline.Delta, error) {
	cache, err := openCache(cmd)
	if err != nil {
		return nil, err
	}
	manifest, err := leyline.NewSyncState(cache).Load()
	if err != nil {
		return nil, err
	}
	return leyline.NewComparator(cache.Fs()).Diff(root, manifest)
}

// deltaJSON is the structured form of one delta.
type deltaJSON struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

func deltasJSON(deltas []leyline.Delta) []deltaJSON {
	out := make([]deltaJSON, len(deltas))
	for i, d := range deltas {
		out[i] = deltaJSON{Path: d.Path, Status: d.Status.String()}
	}
	return out
}

// printDeltaSummary prints counts and the non-unmodified paths.
func printDeltaSummary(cmd *cobra.Command, deltas []leyline.Delta) {
	out := cmd.OutOrStdout()
	summary := leyline.Summarize(deltas)
	fmt.Fprintln(out, styleHeading.Render(fmt.Sprintf(
		"%d tracked: %d unmodified, %d modified, %d added, %d removed",
		summary.Total(), summary.Unmodified, summary.Modified, summary.Added, summary.Removed)))

	for _, d := range deltas {
		switch d.Status {
		case leyline.StatusModified:
			fmt.Fprintln(out, styleModified.Render("  M "+d.Path))
		case leyline.StatusAdded:
			fmt.Fprintln(out, styleAdded.Render("  A "+d.Path))
		case leyline.StatusRemoved:
			fmt.Fprintln(out, styleRemoved.Render("  D "+d.Path))
		}
	}
}
