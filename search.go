package leyline

import (
	"sort"
	"strings"
	"unicode"
)

// Field weights for relevance scoring. The score of a document for a
// query is the sum over matched tokens of term frequency times the weight
// of the field the token appears in, plus a boost when the query matches
// the title or ID exactly. Ties break by path lexical order, which keeps
// repeated searches deterministic.
const (
	weightTitle     = 5.0
	weightTags      = 3.0
	weightBody      = 1.0
	exactMatchBoost = 10.0
)

// maxSuggestDistance is the edit distance bound for "did you mean"
// suggestions.
const maxSuggestDistance = 2

// SearchResult is one ranked hit.
type SearchResult struct {
	Document     Document `json:"document"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms"`
}

// fieldCounts tracks per-field term frequency for one token in one document.
type fieldCounts struct {
	Title int
	Tags  int
	Body  int
}

// weight returns the scoring contribution of these counts.
func (f fieldCounts) weight() float64 {
	return float64(f.Title)*weightTitle + float64(f.Tags)*weightTags + float64(f.Body)*weightBody
}

// searchIndex is an inverted index mapping tokens to per-document field
// frequencies. Entirely derived and rebuildable; it holds document paths,
// never blobs. Callers synchronize access.
type searchIndex struct {
	postings  map[string]map[string]fieldCounts // token -> doc path -> counts
	docTokens map[string][]string               // doc path -> tokens, for removal
	titles    map[string]string                 // doc path -> normalized title/id match key
}

// newSearchIndex creates an empty index.
func newSearchIndex() *searchIndex {
	return &searchIndex{
		postings:  make(map[string]map[string]fieldCounts),
		docTokens: make(map[string][]string),
		titles:    make(map[string]string),
	}
}

// add indexes one document, replacing any previous entry for its path.
// Only that document's tokens are touched; other postings stay intact,
// which is what makes re-indexing after a single content change cheap.
func (ix *searchIndex) add(doc Document, body string) {
	ix.remove(doc.Path)

	counts := make(map[string]fieldCounts)
	for _, tok := range tokenize(doc.Title) {
		fc := counts[tok]
		fc.Title++
		counts[tok] = fc
	}
	for _, tag := range doc.Tags {
		for _, tok := range tokenize(tag) {
			fc := counts[tok]
			fc.Tags++
			counts[tok] = fc
		}
	}
	for _, tok := range tokenize(body) {
		fc := counts[tok]
		fc.Body++
		counts[tok] = fc
	}

	tokens := make([]string, 0, len(counts))
	for tok, fc := range counts {
		tokens = append(tokens, tok)
		docs := ix.postings[tok]
		if docs == nil {
			docs = make(map[string]fieldCounts)
			ix.postings[tok] = docs
		}
		docs[doc.Path] = fc
	}
	sort.Strings(tokens)
	ix.docTokens[doc.Path] = tokens
	ix.titles[doc.Path] = strings.ToLower(strings.TrimSpace(doc.Title)) + "\x00" + strings.ToLower(doc.ID)
}

// remove drops one document from the index, leaving every other
// document's postings untouched.
func (ix *searchIndex) remove(path string) {
	for _, tok := range ix.docTokens[path] {
		docs := ix.postings[tok]
		delete(docs, path)
		if len(docs) == 0 {
			delete(ix.postings, tok)
		}
	}
	delete(ix.docTokens, path)
	delete(ix.titles, path)
}

// scored is an intermediate ranking entry.
type scored struct {
	path    string
	score   float64
	matched []string
}

// search ranks documents for query. Results are sorted by descending
// score with a stable path tie-break; identical queries over an identical
// index always return the identical order.
func (ix *searchIndex) search(query string, limit int) []scored {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	scores := make(map[string]float64)
	matched := make(map[string]map[string]struct{})
	for _, tok := range tokens {
		for path, fc := range ix.postings[tok] {
			scores[path] += fc.weight()
			terms := matched[path]
			if terms == nil {
				terms = make(map[string]struct{})
				matched[path] = terms
			}
			terms[tok] = struct{}{}
		}
	}

	normalized := strings.ToLower(strings.TrimSpace(query))
	for path, key := range ix.titles {
		if _, hit := scores[path]; !hit {
			continue
		}
		title, id, _ := strings.Cut(key, "\x00")
		if normalized == title || normalized == id {
			scores[path] += exactMatchBoost
		}
	}

	results := make([]scored, 0, len(scores))
	for path, score := range scores {
		terms := make([]string, 0, len(matched[path]))
		for tok := range matched[path] {
			terms = append(terms, tok)
		}
		sort.Strings(terms)
		results = append(results, scored{path: path, score: score, matched: terms})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].path < results[j].path
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// suggest proposes near-miss tokens from the index vocabulary for a query
// that returned nothing: tokens within a small edit distance, or sharing
// a prefix of at least three characters. Sorted by distance, then token.
func (ix *searchIndex) suggest(query string, max int) []string {
	if max <= 0 {
		max = 3
	}

	type candidate struct {
		token    string
		distance int
	}
	var candidates []candidate
	seen := make(map[string]struct{})

	for _, qt := range tokenize(query) {
		for tok := range ix.postings {
			if _, dup := seen[tok]; dup {
				continue
			}
			d := levenshtein(qt, tok)
			prefixed := len(qt) >= 3 && strings.HasPrefix(tok, qt[:3])
			if d > maxSuggestDistance && !prefixed {
				continue
			}
			if d == 0 {
				continue
			}
			seen[tok] = struct{}{}
			candidates = append(candidates, candidate{token: tok, distance: d})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].token < candidates[j].token
	})

	if len(candidates) > max {
		candidates = candidates[:max]
	}
	suggestions := make([]string, len(candidates))
	for i, c := range candidates {
		suggestions[i] = c.token
	}
	return suggestions
}

// stopwords are dropped during tokenization.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "in": {}, "is": {}, "it": {}, "of": {},
	"on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "with": {},
}

// tokenize lowercases s and splits it into tokens of letters, digits and
// hyphens. Hyphens are preserved so identifiers like "no-any" stay one
// token. Single-rune tokens and stopwords are dropped.
func tokenize(s string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		tok := strings.Trim(current.String(), "-")
		current.Reset()
		if len(tok) < 2 {
			return
		}
		if _, stop := stopwords[tok]; stop {
			return
		}
		tokens = append(tokens, tok)
	}

	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
