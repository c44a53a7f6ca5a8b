// Package research orchestrates one query execution across the search
// providers: classification, workflow dispatch, fan-out with partial-failure
// tolerance, and aggregation into a ResearchRun.
package research

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/resilience"
	"github.com/sells-group/deep-research/pkg/exa"
	"github.com/sells-group/deep-research/pkg/jina"
	"github.com/sells-group/deep-research/pkg/perplexity"
	"github.com/sells-group/deep-research/pkg/ref"
)

// Source identifiers recorded on SourceResults.
const (
	SourceRef        = "ref"
	SourceExa        = "exa"
	SourceExaCode    = "exa_code"
	SourceJina       = "jina"
	SourceJinaArxiv  = "jina_arxiv"
	SourceJinaRead   = "jina_read"
	SourcePerplexity = "perplexity"
)

// Result type identifiers recorded on SourceResults.
const (
	TypeDocumentation  = "documentation"
	TypeSemanticSearch = "semantic_search"
	TypeCodeExamples   = "code_examples"
	TypeWebSearch      = "web_search"
	TypeAcademicPapers = "academic_papers"
	TypeURLContent     = "url_content"
	TypeOverview       = "overview"
)

// Source is the capability every search provider adapter implements:
// given a query, return zero or more SourceResults or a typed failure.
type Source interface {
	// Name returns the source identifier recorded on results.
	Name() string
	// Type returns the result type this source produces.
	Type() string
	// Search runs the provider against the query, returning at most limit results.
	Search(ctx context.Context, query string, limit int) ([]model.SourceResult, error)
}

// Reader extracts the content of a single URL.
type Reader interface {
	Read(ctx context.Context, url string) (model.SourceResult, error)
}

// Synthesizer produces a cross-validated narrative with citations from
// gathered findings.
type Synthesizer interface {
	Synthesize(ctx context.Context, query, findings string) (string, error)
}

// Providers bundles the adapters a run can draw on. Each field is an
// independent implementation of the same contract; heterogeneous provider
// APIs are hidden behind the adapters.
type Providers struct {
	Ref        Source
	Exa        Source
	ExaCode    Source
	Jina       Source
	JinaArxiv  Source
	Perplexity Source
	Reader     Reader
	Synth      Synthesizer
}

// ProviderOption configures the provider bundle.
type ProviderOption func(*Providers)

// WithResilience wraps every adapter with transient-error retries and a
// circuit breaker per underlying provider API. Sources sharing one API
// (exa and exa_code, the jina variants and the reader) share one breaker.
func WithResilience(breakers *resilience.ProviderBreakers, retry resilience.RetryConfig) ProviderOption {
	return func(p *Providers) {
		guard := func(s Source, api string) Source {
			r := retry
			r.OnRetry = resilience.RetryLogger(api, "search")
			return &guardedSource{inner: s, cb: breakers.Get(api), retry: r}
		}
		p.Ref = guard(p.Ref, "ref")
		p.Exa = guard(p.Exa, "exa")
		p.ExaCode = guard(p.ExaCode, "exa")
		p.Jina = guard(p.Jina, "jina")
		p.JinaArxiv = guard(p.JinaArxiv, "jina")

		readRetry := retry
		readRetry.OnRetry = resilience.RetryLogger("jina", "read")
		p.Perplexity = guard(p.Perplexity, "perplexity")
		p.Reader = &guardedReader{inner: p.Reader, cb: breakers.Get("jina"), retry: readRetry}
	}
}

// NewProviders wires the provider clients into adapters.
func NewProviders(refClient ref.Client, exaClient exa.Client, jinaClient jina.Client, pplxClient perplexity.Client, opts ...ProviderOption) *Providers {
	p := &Providers{
		Ref:        &refSource{client: refClient},
		Exa:        &exaSource{client: exaClient},
		ExaCode:    &exaSource{client: exaClient, codeMode: true},
		Jina:       &jinaSource{client: jinaClient},
		JinaArxiv:  &jinaSource{client: jinaClient, arxiv: true},
		Perplexity: &perplexitySource{client: pplxClient},
		Reader:     &jinaReader{client: jinaClient},
		Synth:      &perplexitySynth{client: pplxClient},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// truncate cuts s to at most max bytes, backing up to a rune boundary so
// the cut never leaves invalid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// refSource adapts the Ref documentation search API.
type refSource struct {
	client ref.Client
}

func (s *refSource) Name() string { return SourceRef }
func (s *refSource) Type() string { return TypeDocumentation }

func (s *refSource) Search(ctx context.Context, query string, limit int) ([]model.SourceResult, error) {
	resp, err := s.client.Search(ctx, query, limit)
	if err != nil {
		return nil, eris.Wrap(err, "research: ref search")
	}

	results := make([]model.SourceResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Content == "" && r.URL == "" {
			continue
		}
		results = append(results, model.SourceResult{
			Source:    SourceRef,
			Type:      TypeDocumentation,
			URL:       r.URL,
			Title:     r.Title,
			Content:   truncate(r.Content, model.MaxSnippetChars),
			Relevance: model.RelevanceMedium,
			Success:   true,
		})
	}
	return results, nil
}

// exaSource adapts Exa semantic search; codeMode scopes it to developer sites.
type exaSource struct {
	client   exa.Client
	codeMode bool
}

func (s *exaSource) Name() string {
	if s.codeMode {
		return SourceExaCode
	}
	return SourceExa
}

func (s *exaSource) Type() string {
	if s.codeMode {
		return TypeCodeExamples
	}
	return TypeSemanticSearch
}

func (s *exaSource) Search(ctx context.Context, query string, limit int) ([]model.SourceResult, error) {
	var (
		resp *exa.SearchResponse
		err  error
	)
	if s.codeMode {
		resp, err = s.client.CodeSearch(ctx, query, limit)
	} else {
		resp, err = s.client.Search(ctx, exa.SearchRequest{Query: query, NumResults: limit})
	}
	if err != nil {
		return nil, eris.Wrapf(err, "research: %s search", s.Name())
	}

	relevance := model.RelevanceMedium
	if s.codeMode {
		relevance = model.RelevanceHigh
	}

	results := make([]model.SourceResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Text == "" && r.URL == "" {
			continue
		}
		results = append(results, model.SourceResult{
			Source:    s.Name(),
			Type:      s.Type(),
			URL:       r.URL,
			Title:     r.Title,
			Content:   truncate(r.Text, model.MaxSnippetChars),
			Relevance: relevance,
			Success:   true,
		})
	}
	return results, nil
}

// jinaSource adapts Jina web search; arxiv mode scopes results to arxiv.org.
type jinaSource struct {
	client jina.Client
	arxiv  bool
}

func (s *jinaSource) Name() string {
	if s.arxiv {
		return SourceJinaArxiv
	}
	return SourceJina
}

func (s *jinaSource) Type() string {
	if s.arxiv {
		return TypeAcademicPapers
	}
	return TypeWebSearch
}

func (s *jinaSource) Search(ctx context.Context, query string, limit int) ([]model.SourceResult, error) {
	opts := []jina.SearchOption{jina.WithCount(limit)}
	if s.arxiv {
		opts = append(opts, jina.WithSiteFilter("arxiv.org"))
	}

	resp, err := s.client.Search(ctx, query, opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "research: %s search", s.Name())
	}

	relevance := model.RelevanceMedium
	if s.arxiv {
		relevance = model.RelevanceHigh
	}

	results := make([]model.SourceResult, 0, len(resp.Data))
	for _, r := range resp.Data {
		content := r.Content
		if content == "" {
			content = r.Description
		}
		if content == "" && r.URL == "" {
			continue
		}
		results = append(results, model.SourceResult{
			Source:    s.Name(),
			Type:      s.Type(),
			URL:       r.URL,
			Title:     r.Title,
			Content:   truncate(content, model.MaxSnippetChars),
			Relevance: relevance,
			Success:   true,
		})
	}
	return results, nil
}

// jinaReader adapts Jina Reader for single-URL content extraction.
type jinaReader struct {
	client jina.Client
}

func (r *jinaReader) Read(ctx context.Context, url string) (model.SourceResult, error) {
	resp, err := r.client.Read(ctx, url)
	if err != nil {
		return model.SourceResult{}, eris.Wrap(err, "research: jina read")
	}

	return model.SourceResult{
		Source:    SourceJinaRead,
		Type:      TypeURLContent,
		URL:       url,
		Title:     resp.Data.Title,
		Content:   truncate(resp.Data.Content, model.MaxReadContentChars),
		Relevance: model.RelevanceHigh,
		Success:   true,
	}, nil
}

// perplexitySource adapts Perplexity as an overview search with citations.
type perplexitySource struct {
	client perplexity.Client
}

func (s *perplexitySource) Name() string { return SourcePerplexity }
func (s *perplexitySource) Type() string { return TypeOverview }

func (s *perplexitySource) Search(ctx context.Context, query string, _ int) ([]model.SourceResult, error) {
	resp, err := s.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: "sonar",
		Messages: []perplexity.Message{
			{Role: "system", Content: "You are a research assistant. Provide comprehensive, well-cited answers."},
			{Role: "user", Content: query},
		},
		SearchRecencyFilter: "month",
	})
	if err != nil {
		return nil, eris.Wrap(err, "research: perplexity search")
	}

	content := resp.Content()
	if content == "" {
		return nil, nil
	}

	results := []model.SourceResult{{
		Source:    SourcePerplexity,
		Type:      TypeOverview,
		Title:     "AI-Generated Overview",
		Content:   truncate(content, model.MaxReadContentChars),
		Relevance: model.RelevanceHigh,
		Success:   true,
	}}
	// Surface citations as URL-only results so discovered URLs flow into
	// the read step.
	for _, c := range resp.Citations {
		results = append(results, model.SourceResult{
			Source:    SourcePerplexity,
			Type:      TypeOverview,
			URL:       c,
			Relevance: model.RelevanceMedium,
			Success:   true,
		})
	}
	return results, nil
}

// perplexitySynth adapts Perplexity as the cross-validation synthesizer.
type perplexitySynth struct {
	client perplexity.Client
}

const synthesisPromptMaxContext = 12000

func (s *perplexitySynth) Synthesize(ctx context.Context, query, findings string) (string, error) {
	prompt := fmt.Sprintf(`Synthesize these research findings into a comprehensive analysis:

RESEARCH QUERY: %s

COLLECTED FINDINGS:
%s

Provide:
1. **Consensus** - What all sources agree on
2. **Conflicts** - Where sources disagree (with resolution if possible)
3. **Key Insights** - Most important findings
4. **Gaps** - What information is still missing
5. **Conclusion** - Final synthesis with confidence level (high/medium/low)

Be specific and cite which sources support each point.`, query, truncate(findings, synthesisPromptMaxContext))

	resp, err := s.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: "sonar-pro",
		Messages: []perplexity.Message{
			{Role: "system", Content: "You are an expert research analyst. Synthesize findings objectively."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "research: perplexity synthesize")
	}

	return resp.Content(), nil
}
