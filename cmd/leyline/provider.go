package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/leyline-dev/leyline"
)

// gitProvider fetches document files with the system git binary using a
// shallow, sparse, blobless clone. It is deliberately opaque to the sync
// engine, which only consumes the (path, bytes) list.
type gitProvider struct {
	repoURL string
}

// Fetch implements leyline.Provider.
func (p *gitProvider) Fetch(ctx context.Context, ref string, sparsePaths []string) ([]leyline.RemoteFile, error) {
	dir, err := os.MkdirTemp("", "leyline-fetch-")
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	clone := exec.CommandContext(ctx, "git", "clone",
		"--quiet", "--depth=1", "--filter=blob:none", "--sparse",
		"--branch", ref, p.repoURL, dir)
	if out, err := clone.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("git clone failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	checkoutArgs := append([]string{"-C", dir, "sparse-checkout", "set", "--no-cone"}, sparsePaths...)
	checkout := exec.CommandContext(ctx, "git", checkoutArgs...)
	if out, err := checkout.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("git sparse-checkout failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	var files []leyline.RemoteFile
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, leyline.RemoteFile{Path: filepath.ToSlash(rel), Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read fetched files: %w", err)
	}
	return files, nil
}
