// Package googlebooks adapts the Google Books volumes API into a
// providers.MetadataProvider.
package googlebooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/drallgood/libraryd/internal/logger"
	"github.com/drallgood/libraryd/internal/pipeerr"
	"github.com/drallgood/libraryd/internal/providers"
	"github.com/drallgood/libraryd/internal/ratelimit"
)

const providerName = "googlebooks"

// Client is a Google Books-backed providers.MetadataProvider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	guard      *ratelimit.Guard
}

type volumesResponse struct {
	Items []struct {
		VolumeInfo struct {
			Title               string   `json:"title"`
			Authors             []string `json:"authors"`
			PublishedDate       string   `json:"publishedDate"`
			Language            string   `json:"language"`
			IndustryIdentifiers []struct {
				Type       string `json:"type"`
				Identifier string `json:"identifier"`
			} `json:"industryIdentifiers"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// NewClient builds a client. apiKey may be empty; Google Books allows a
// limited number of unauthenticated requests per day.
func NewClient(apiKey string, guard *ratelimit.Guard) *Client {
	return NewClientWithURL("https://www.googleapis.com/books/v1/volumes", apiKey, guard)
}

// NewClientWithURL builds a client against a custom endpoint, used by tests
// to point at an httptest server instead of the live Google Books API.
func NewClientWithURL(baseURL, apiKey string, guard *ratelimit.Guard) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
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

	var terms []string
	if q.Title != "" {
		terms = append(terms, "intitle:"+q.Title)
	}
	if q.Author != "" {
		terms = append(terms, "inauthor:"+q.Author)
	}
	if q.ISBN != "" {
		terms = append(terms, "isbn:"+q.ISBN)
	}
	if len(terms) == 0 {
		return nil, nil
	}

	params := url.Values{"q": {strings.Join(terms, "+")}, "maxResults": {"5"}}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building googlebooks request: %w", err)
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

	var decoded volumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding googlebooks response: %w", err)
	}
	c.guard.Breaker.RecordSuccess()

	candidates := make([]providers.Candidate, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		author := ""
		if len(item.VolumeInfo.Authors) > 0 {
			author = item.VolumeInfo.Authors[0]
		}
		isbn := ""
		for _, id := range item.VolumeInfo.IndustryIdentifiers {
			if id.Type == "ISBN_13" {
				isbn = id.Identifier
				break
			}
		}
		candidates = append(candidates, providers.Candidate{
			Provider: providerName,
			Author:   author,
			Title:    item.VolumeInfo.Title,
			Year:     item.VolumeInfo.PublishedDate,
			Language: item.VolumeInfo.Language,
			ISBN:     isbn,
		})
	}

	logger.Get().Debug().Str("provider", providerName).Int("candidates", len(candidates)).Msg("search complete")
	return candidates, nil
}
