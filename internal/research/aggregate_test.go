package research

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/deep-research/internal/model"
)

func TestDedupeURLs(t *testing.T) {
	t.Parallel()

	got := dedupeURLs([]string{
		"https://Example.com/Page/",
		"https://example.com/page",
		"https://example.com/other",
		"",
		"  ",
		"https://example.com/other/",
	})

	// First-seen form kept verbatim.
	assert.Equal(t, []string{"https://Example.com/Page/", "https://example.com/other"}, got)
}

func TestCollectURLs_SkipsFailuresAndEmpty(t *testing.T) {
	t.Parallel()

	got := collectURLs([]model.SourceResult{
		{URL: "https://a.example.com", Success: true},
		{URL: "https://b.example.com", Success: false},
		{URL: "", Success: true},
		{URL: "https://a.example.com/", Success: true},
		{URL: "https://c.example.com", Success: true},
	})

	assert.Equal(t, []string{"https://a.example.com", "https://c.example.com"}, got)
}

func TestSummarize_PrefersSynthesisFirstParagraph(t *testing.T) {
	t.Parallel()

	synthesis := "First paragraph of the narrative.\n\nSecond paragraph with detail."
	got := summarize(nil, synthesis)
	assert.Equal(t, "First paragraph of the narrative.", got)
}

func TestSummarize_TruncatesLongSynthesis(t *testing.T) {
	t.Parallel()

	synthesis := strings.Repeat("x", summaryMaxChars+100)
	got := summarize(nil, synthesis)
	assert.Len(t, got, summaryMaxChars+3)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSummarize_ExcerptsByRelevanceAndDistinctSource(t *testing.T) {
	t.Parallel()

	results := []model.SourceResult{
		{Source: SourceExa, Content: "medium snippet", Relevance: model.RelevanceMedium, Success: true},
		{Source: SourceJinaRead, Content: "deep read content", Relevance: model.RelevanceHigh, Success: true},
		{Source: SourceJinaRead, Content: "another read", Relevance: model.RelevanceHigh, Success: true},
		{Source: SourceRef, Content: "docs snippet", Relevance: model.RelevanceHigh, Success: true},
		{Source: SourceJina, Content: "failed", Relevance: model.RelevanceHigh, Success: false},
	}

	got := summarize(results, "")

	parts := strings.Split(got, " | ")
	assert.Len(t, parts, 3)
	// High relevance first, one excerpt per distinct source.
	assert.Contains(t, parts[0], "[jina_read]")
	assert.Contains(t, parts[1], "[ref]")
	assert.Contains(t, parts[2], "[exa]")
	assert.NotContains(t, got, "failed")
	assert.NotContains(t, got, "another read")
}

func TestSummarize_NoFindings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "No findings extracted.", summarize(nil, ""))
	assert.Equal(t, "No findings extracted.", summarize([]model.SourceResult{
		{Source: SourceRef, Success: false, Error: "boom"},
	}, ""))
}

func TestBuildContext_FormatsAndCaps(t *testing.T) {
	t.Parallel()

	results := []model.SourceResult{
		{Source: SourcePerplexity, Type: TypeOverview, Content: strings.Repeat("o", contextOverviewChars+500), Success: true},
		{Source: SourceJinaRead, Type: TypeURLContent, URL: "https://example.com/deep", Content: strings.Repeat("r", contextReadChars+500), Success: true},
		{Source: SourceExa, Type: TypeSemanticSearch, Content: strings.Repeat("s", contextSnippetChars+500), Success: true},
		{Source: SourceRef, Type: TypeDocumentation, Content: "", Success: true},
		{Source: SourceJina, Type: TypeWebSearch, Content: "down", Success: false},
	}

	got := buildContext(results)

	parts := strings.Split(got, "\n\n---\n\n")
	assert.Len(t, parts, 3)
	assert.True(t, strings.HasPrefix(parts[0], "[Perplexity Overview] "))
	assert.True(t, strings.HasPrefix(parts[1], "[URL: https://example.com/deep] "))
	assert.True(t, strings.HasPrefix(parts[2], "[exa] "))

	// Each section honors its cap plus the label and ellipsis.
	assert.LessOrEqual(t, len(parts[0]), len("[Perplexity Overview] ")+contextOverviewChars+3)
	assert.LessOrEqual(t, len(parts[2]), len("[exa] ")+contextSnippetChars+3)
}

func TestBuildContext_PerSourceSnippetLimit(t *testing.T) {
	t.Parallel()

	var results []model.SourceResult
	for i := 0; i < 6; i++ {
		results = append(results, model.SourceResult{
			Source: SourceExa, Type: TypeSemanticSearch, Content: "snippet", Success: true,
		})
	}

	got := buildContext(results)
	assert.Equal(t, 3, strings.Count(got, "[exa]"))
}

func TestBuildContext_AllDeepReadsIncluded(t *testing.T) {
	t.Parallel()

	var results []model.SourceResult
	results = append(results, model.SourceResult{
		Source: SourcePerplexity, Type: TypeOverview, Content: "overview", Success: true,
	})
	for i := 0; i < 7; i++ {
		results = append(results, model.SourceResult{
			Source:  SourceJinaRead,
			Type:    TypeURLContent,
			URL:     fmt.Sprintf("https://example.com/r%d", i),
			Content: fmt.Sprintf("content %d", i),
			Success: true,
		})
	}

	got := buildContext(results)
	assert.Contains(t, got, "[Perplexity Overview]")
	for i := 0; i < 7; i++ {
		assert.Contains(t, got, fmt.Sprintf("[URL: https://example.com/r%d]", i))
	}
}

func TestBuildContext_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, buildContext(nil))
	assert.Empty(t, buildContext([]model.SourceResult{{Source: SourceRef, Success: false}}))
}
