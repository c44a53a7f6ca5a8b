// Package exa provides a client for the Exa semantic search API.
package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.exa.ai"

// codeDomains restricts code-mode searches to sites likely to carry
// working examples.
var codeDomains = []string{
	"github.com",
	"stackoverflow.com",
	"dev.to",
	"medium.com",
	"hashnode.dev",
}

// Client performs searches against the Exa API.
type Client interface {
	// Search runs a semantic search for the query.
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	// CodeSearch runs a code-focused search scoped to developer sites.
	CodeSearch(ctx context.Context, query string, numResults int) (*SearchResponse, error)
}

// SearchRequest is the request body for POST /search.
type SearchRequest struct {
	Query          string    `json:"query"`
	NumResults     int       `json:"numResults,omitempty"`
	Type           string    `json:"type,omitempty"`
	IncludeDomains []string  `json:"includeDomains,omitempty"`
	Contents       *Contents `json:"contents,omitempty"`
}

// Contents requests text extraction alongside search results.
type Contents struct {
	Text TextContents `json:"text"`
}

// TextContents bounds extracted text length.
type TextContents struct {
	MaxCharacters int `json:"maxCharacters,omitempty"`
}

// SearchResponse is the response from POST /search.
type SearchResponse struct {
	Results []Result `json:"results"`
}

// Result is a single search hit.
type Result struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates an Exa API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.Type == "" {
		req.Type = "auto"
	}
	if req.Contents == nil {
		req.Contents = &Contents{Text: TextContents{MaxCharacters: 3000}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "exa: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "exa: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "exa: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "exa: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("exa: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "exa: unmarshal response")
	}

	return &result, nil
}

func (c *httpClient) CodeSearch(ctx context.Context, query string, numResults int) (*SearchResponse, error) {
	return c.Search(ctx, SearchRequest{
		Query:          query + " code example implementation",
		NumResults:     numResults,
		Type:           "auto",
		IncludeDomains: codeDomains,
		Contents:       &Contents{Text: TextContents{MaxCharacters: 5000}},
	})
}
