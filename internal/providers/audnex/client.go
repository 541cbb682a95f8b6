// Package audnex adapts the Audnexus audiobook metadata API into a
// providers.MetadataProvider.
package audnex

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

const providerName = "audnexus"

// Client is an Audnexus-backed providers.MetadataProvider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	guard      *ratelimit.Guard
}

// book is the subset of the Audnexus book schema we care about. Authors and
// narrators come back as either a bare string or a list of {name} objects
// depending on endpoint, so both are decoded loosely.
type book struct {
	ASIN        string      `json:"asin"`
	Title       string      `json:"title"`
	Authors     interface{} `json:"authors,omitempty"`
	Narrators   interface{} `json:"narrators,omitempty"`
	ReleaseDate string      `json:"releaseDate,omitempty"`
	Language    string      `json:"language,omitempty"`
	ISBN        string      `json:"isbn,omitempty"`
	SeriesName  string      `json:"seriesName,omitempty"`
	SeriesPart  string      `json:"seriesPosition,omitempty"`
}

func firstName(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []interface{}:
		if len(t) == 0 {
			return ""
		}
		return firstName(t[0])
	case map[string]interface{}:
		if name, ok := t["name"].(string); ok {
			return name
		}
	}
	return ""
}

// NewClient creates a client against the given guard (min-delay + breaker).
func NewClient(guard *ratelimit.Guard) *Client {
	return NewClientWithURL("https://api.audnex.us", guard)
}

// NewClientWithURL builds a client against a custom endpoint, used by tests
// to point at an httptest server instead of the live Audnexus API.
func NewClientWithURL(baseURL string, guard *ratelimit.Guard) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		guard:      guard,
	}
}

func (c *Client) Name() string { return providerName }

// Search queries Audnexus by title/author and returns normalized candidates.
func (c *Client) Search(ctx context.Context, q providers.Query) ([]providers.Candidate, error) {
	if c.guard.Breaker.IsOpen() {
		return nil, pipeerr.New(pipeerr.Transient, providerName, fmt.Errorf("circuit open, retry in %s", c.guard.Breaker.WaitInterval()))
	}
	if err := c.guard.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	if q.Title != "" {
		params.Set("title", q.Title)
	}
	if q.Author != "" {
		params.Set("author", q.Author)
	}

	reqURL := fmt.Sprintf("%s/books?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building audnexus request: %w", err)
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

	var books []book
	if err := json.NewDecoder(resp.Body).Decode(&books); err != nil {
		return nil, fmt.Errorf("decoding audnexus response: %w", err)
	}
	c.guard.Breaker.RecordSuccess()

	candidates := make([]providers.Candidate, 0, len(books))
	for _, b := range books {
		candidates = append(candidates, providers.Candidate{
			Provider:  providerName,
			Author:    firstName(b.Authors),
			Title:     b.Title,
			Narrator:  firstName(b.Narrators),
			Series:    b.SeriesName,
			SeriesNum: b.SeriesPart,
			ISBN:      b.ISBN,
			Language:  b.Language,
		})
	}

	logger.Get().Debug().Str("provider", providerName).Int("candidates", len(candidates)).Msg("search complete")
	return candidates, nil
}
