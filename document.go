package leyline

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DocType distinguishes the two document kinds in the knowledge base.
type DocType string

// Document types.
const (
	DocTenet   DocType = "tenet"
	DocBinding DocType = "binding"
)

// Document is the metadata derived from one cached markdown document's
// YAML front-matter. It holds a content hash reference, never blob
// ownership: it is rebuilt whenever the underlying hash changes.
type Document struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Category     string   `json:"category"`
	Type         DocType  `json:"type"`
	Path         string   `json:"path"`
	ContentHash  string   `json:"content_hash"`
	Tags         []string `json:"tags,omitempty"`
	Version      string   `json:"version,omitempty"`
	LastModified string   `json:"last_modified,omitempty"`
	DerivedFrom  string   `json:"derived_from,omitempty"` // bindings only
	EnforcedBy   string   `json:"enforced_by,omitempty"`  // bindings only
	Summary      string   `json:"summary,omitempty"`
}

// frontMatter is the YAML block between --- fences at the top of a
// document. Produced externally; the cache treats it as a parse target.
type frontMatter struct {
	ID           string   `yaml:"id"`
	Version      string   `yaml:"version"`
	LastModified string   `yaml:"last_modified"`
	Tags         []string `yaml:"tags"`
	DerivedFrom  string   `yaml:"derived_from"`
	EnforcedBy   string   `yaml:"enforced_by"`
}

// ParseDocument derives a Document from raw markdown bytes. The path
// determines category and type; the content hash is computed from the
// raw bytes. Required front-matter fields are id, version and
// last_modified.
func ParseDocument(path string, data []byte) (Document, error) {
	fm, body, err := splitFrontMatter(data)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}
	if fm.ID == "" {
		return Document{}, fmt.Errorf("%s: front-matter missing required field id", path)
	}
	if fm.Version == "" {
		return Document{}, fmt.Errorf("%s: front-matter missing required field version", path)
	}
	if fm.LastModified == "" {
		return Document{}, fmt.Errorf("%s: front-matter missing required field last_modified", path)
	}

	docType := DocBinding
	if strings.HasPrefix(path, "tenets/") {
		docType = DocTenet
	}

	return Document{
		ID:           fm.ID,
		Title:        deriveTitle(body, fm.ID),
		Category:     CategoryOf(path),
		Type:         docType,
		Path:         path,
		ContentHash:  HashBytes(data),
		Tags:         fm.Tags,
		Version:      fm.Version,
		LastModified: fm.LastModified,
		DerivedFrom:  fm.DerivedFrom,
		EnforcedBy:   fm.EnforcedBy,
		Summary:      deriveSummary(body),
	}, nil
}

// splitFrontMatter separates the YAML front-matter (between leading ---
// delimiters) from the markdown body.
func splitFrontMatter(data []byte) (frontMatter, string, error) {
	const delim = "---"
	var fm frontMatter

	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return fm, "", fmt.Errorf("document has no front-matter block")
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return fm, "", fmt.Errorf("front-matter block is not terminated")
	}

	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		return fm, "", fmt.Errorf("invalid front-matter: %w", err)
	}

	body := rest[idx+1+len(delim):]
	return fm, strings.TrimLeft(string(body), "\n\r"), nil
}

// deriveTitle returns the first top-level markdown heading, falling back
// to the document ID.
func deriveTitle(body, fallback string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return fallback
}

// summaryLimit bounds the stored preview text.
const summaryLimit = 200

// deriveSummary returns the first non-heading paragraph line, truncated.
func deriveSummary(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) > summaryLimit {
			return line[:summaryLimit]
		}
		return line
	}
	return ""
}
