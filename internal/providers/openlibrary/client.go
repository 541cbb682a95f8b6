// Package openlibrary adapts the Open Library search API into a
// providers.MetadataProvider.
package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/drallgood/libraryd/internal/logger"
	"github.com/drallgood/libraryd/internal/pipeerr"
	"github.com/drallgood/libraryd/internal/providers"
	"github.com/drallgood/libraryd/internal/ratelimit"
)

const providerName = "openlibrary"

// Client is an Open Library-backed providers.MetadataProvider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	guard      *ratelimit.Guard
}

type searchResponse struct {
	Docs []struct {
		Title          string   `json:"title"`
		AuthorName     []string `json:"author_name"`
		FirstPublish   int      `json:"first_publish_year"`
		Language       []string `json:"language"`
		ISBN           []string `json:"isbn"`
	} `json:"docs"`
}

// NewClient builds a client.
func NewClient(guard *ratelimit.Guard) *Client {
	return NewClientWithURL("https://openlibrary.org/search.json", guard)
}

// NewClientWithURL builds a client against a custom endpoint, used by tests
// to point at an httptest server instead of the live Open Library API.
func NewClientWithURL(baseURL string, guard *ratelimit.Guard) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		guard:      guard,
	}
}

func (c *Client) Name() string { return providerName }

func (c *Client) Search(ctx context.Context, q providers.Query) ([]providers.Candidate, error) {
	if c.guard.Breaker.IsOpen() {
		return nil, pipeerr.New(pipeerr.Transient, providerName, fmt.Errorf("circuit open, retry in %s", c.guard.Breaker.WaitInterval()))
	}
	if err := c.guard.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{"limit": {"5"}}
	if q.Title != "" {
		params.Set("title", q.Title)
	}
	if q.Author != "" {
		params.Set("author", q.Author)
	}
	if q.ISBN != "" {
		params.Set("isbn", q.ISBN)
	}
	if len(params) == 1 {
		return nil, nil
	}

	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building openlibrary request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.guard.Breaker.RecordFailure()
		return nil, pipeerr.New(pipeerr.Transient, providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.guard.Breaker.RecordFailure()
		return nil, pipeerr.New(pipeerr.ClassifyHTTPStatus(resp.StatusCode, ""), providerName, fmt.Errorf("status %d", resp.StatusCode))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding openlibrary response: %w", err)
	}
	c.guard.Breaker.RecordSuccess()

	candidates := make([]providers.Candidate, 0, len(decoded.Docs))
	for _, doc := range decoded.Docs {
		author := ""
		if len(doc.AuthorName) > 0 {
			author = doc.AuthorName[0]
		}
		lang := ""
		if len(doc.Language) > 0 {
			lang = doc.Language[0]
		}
		isbn := ""
		if len(doc.ISBN) > 0 {
			isbn = doc.ISBN[0]
		}
		year := ""
		if doc.FirstPublish > 0 {
			year = fmt.Sprintf("%d", doc.FirstPublish)
		}
		candidates = append(candidates, providers.Candidate{
			Provider: providerName,
			Author:   author,
			Title:    doc.Title,
			Year:     year,
			Language: lang,
			ISBN:     isbn,
		})
	}

	logger.Get().Debug().Str("provider", providerName).Int("candidates", len(candidates)).Msg("search complete")
	return candidates, nil
}
