package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/leyline-dev/leyline"
)

// newDiffCmd creates the diff command: status plus a content-level diff
// of modified files against their cached baseline.
func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff [PATH]",
		Short: "Show content changes relative to the last sync",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := targetDirArg(args)
			cache, err := openCache(cmd)
			if err != nil {
				return err
			}
			manifest, err := leyline.NewSyncState(cache).Load()
			if err != nil {
				if errors.Is(err, leyline.ErrNoManifest) {
					fmt.Fprintln(cmd.OutOrStdout(), "no sync recorded yet; run 'leyline sync' first")
					return nil
				}
				return err
			}

			deltas, err := leyline.NewComparator(cache.Fs()).Diff(root, manifest)
			if err != nil {
				return err
			}
			printDeltaSummary(cmd, deltas)

			out := cmd.OutOrStdout()
			for _, d := range deltas {
				if d.Status != leyline.StatusModified {
					continue
				}
				baseline, err := cache.Store().Get(d.ManifestHash)
				if err != nil {
					fmt.Fprintf(out, "\n%s: baseline unavailable (%v)\n", d.Path, err)
					continue
				}
				local, err := afero.ReadFile(cache.Fs(), filepath.Join(root, filepath.FromSlash(d.Path)))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\n%s\n", styleHeading.Render("--- "+d.Path))
				printLineDiff(cmd, string(baseline), string(local))
			}
			return nil
		},
	}
	return cmd
}

// printLineDiff prints a minimal line diff: the common prefix and suffix
// are trimmed and the differing middle is shown as removed/added blocks.
func printLineDiff(cmd *cobra.Command, baseline, local string) {
	out := cmd.OutOrStdout()
	a := strings.Split(baseline, "\n")
	b := strings.Split(local, "\n")

	start := 0
	for start < len(a) && start < len(b) && a[start] == b[start] {
		start++
	}
	endA, endB := len(a), len(b)
	for endA > start && endB > start && a[endA-1] == b[endB-1] {
		endA--
		endB--
	}

	if start == endA && start == endB {
		fmt.Fprintln(out, styleFaint.Render("  (no textual changes)"))
		return
	}

	fmt.Fprintln(out, styleFaint.Render(fmt.Sprintf("@@ line %d @@", start+1)))
	for _, line := range a[start:endA] {
		fmt.Fprintln(out, styleRemoved.Render("- "+line))
	}
	for _, line := range b[start:endB] {
		fmt.Fprintln(out, styleAdded.Render("+ "+line))
	}
}
