package research

import (
	"fmt"
	"strings"

	"github.com/sells-group/deep-research/internal/model"
)

// normalizeURL produces the dedup key for a URL: case-normalized and
// trailing-slash-insensitive.
func normalizeURL(u string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(u)), "/")
}

// dedupeURLs removes duplicate URLs preserving first-seen order. The first
// form encountered is kept verbatim.
func dedupeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if strings.TrimSpace(u) == "" {
			continue
		}
		key := normalizeURL(u)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}

// collectURLs gathers all URLs across results, deduplicated, preserving the
// upstream provider ordering (first = ranked best).
func collectURLs(results []model.SourceResult) []string {
	urls := make([]string, 0, len(results))
	for _, r := range results {
		if r.Success && r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return dedupeURLs(urls)
}

const (
	summaryMaxChars = 500
	summarySnippet  = 200
	summarySources  = 3
)

// summarize builds the findings summary: the synthesis' first paragraph
// when present, otherwise one condensed excerpt per distinct source for the
// highest-relevance items.
func summarize(results []model.SourceResult, synthesis string) string {
	if synthesis != "" {
		first := synthesis
		if i := strings.Index(synthesis, "\n\n"); i > 0 {
			first = synthesis[:i]
		}
		if len(first) > summaryMaxChars {
			return truncate(first, summaryMaxChars) + "..."
		}
		return first
	}

	// One excerpt per distinct source, high relevance first.
	var parts []string
	seen := make(map[string]struct{})
	for _, relevance := range []model.Relevance{model.RelevanceHigh, model.RelevanceMedium, model.RelevanceLow} {
		for _, r := range results {
			if len(parts) >= summarySources {
				break
			}
			if !r.Success || r.Relevance != relevance || r.Content == "" {
				continue
			}
			if _, ok := seen[r.Source]; ok {
				continue
			}
			seen[r.Source] = struct{}{}
			snippet := r.Content
			if len(snippet) > summarySnippet {
				snippet = truncate(snippet, summarySnippet) + "..."
			}
			parts = append(parts, fmt.Sprintf("[%s] %s", r.Source, snippet))
		}
	}

	if len(parts) == 0 {
		return "No findings extracted."
	}
	return strings.Join(parts, " | ")
}

// Per-source context caps fed to the synthesizer.
const (
	contextOverviewChars = 2000
	contextSnippetChars  = 1000
	contextReadChars     = 1500
)

// buildContext renders the successful results into the synthesizer's input,
// with per-source caps so no single provider dominates the prompt.
func buildContext(results []model.SourceResult) string {
	var parts []string
	perSource := make(map[string]int)

	for _, r := range results {
		if !r.Success || r.Content == "" {
			continue
		}
		// At most 3 snippets per search source; the overview and every
		// deep read pass through.
		if r.Type != TypeOverview && r.Type != TypeURLContent {
			if perSource[r.Source] >= 3 {
				continue
			}
			perSource[r.Source]++
		}

		switch r.Type {
		case TypeOverview:
			parts = append(parts, fmt.Sprintf("[Perplexity Overview] %s", truncate(r.Content, contextOverviewChars)))
		case TypeURLContent:
			parts = append(parts, fmt.Sprintf("[URL: %s] %s", r.URL, truncate(r.Content, contextReadChars)))
		default:
			parts = append(parts, fmt.Sprintf("[%s] %s", r.Source, truncate(r.Content, contextSnippetChars)))
		}
	}

	return strings.Join(parts, "\n\n---\n\n")
}
