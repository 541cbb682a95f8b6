// Package hardcover adapts the Hardcover GraphQL API into a
// providers.MetadataProvider, limited to candidate search: the catalog sync
// and reading-progress surface of the upstream API is out of scope here.
package hardcover

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hasura/go-graphql-client"

	"github.com/drallgood/libraryd/internal/logger"
	"github.com/drallgood/libraryd/internal/pipeerr"
	"github.com/drallgood/libraryd/internal/providers"
	"github.com/drallgood/libraryd/internal/ratelimit"
)

const (
	providerName   = "hardcover"
	defaultBaseURL = "https://api.hardcover.app/v1/graphql"
)

type authedTransport struct {
	token string
	base  http.RoundTripper
}

func (t *authedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Content-Type", "application/json")
	return t.base.RoundTrip(req)
}

// Client is a Hardcover-backed providers.MetadataProvider.
type Client struct {
	gql   *graphql.Client
	guard *ratelimit.Guard
}

// NewClient builds a client authenticated with the given API token.
func NewClient(token string, guard *ratelimit.Guard) *Client {
	return NewClientWithURL(defaultBaseURL, token, guard)
}

// NewClientWithURL builds a client against a custom endpoint, used by tests
// to point at an httptest server instead of the live Hardcover API.
func NewClientWithURL(baseURL, token string, guard *ratelimit.Guard) *Client {
	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: &authedTransport{token: token, base: http.DefaultTransport},
	}
	return &Client{
		gql:   graphql.NewClient(baseURL, httpClient),
		guard: guard,
	}
}

func (c *Client) Name() string { return providerName }

type booksSearchQuery struct {
	Books []struct {
		Title       graphql.String
		ReleaseDate graphql.String
		Contributions []struct {
			Author struct {
				Name graphql.String
			}
		}
	} `graphql:"books(where: {title: {_ilike: $titlePattern}}, limit: 5)"`
}

// Search queries Hardcover by title and returns normalized candidates.
// Author is not a first-class filter in the upstream schema, so matching on
// the returned contributions is left to the caller's evidence fusion.
func (c *Client) Search(ctx context.Context, q providers.Query) ([]providers.Candidate, error) {
	if c.guard.Breaker.IsOpen() {
		return nil, pipeerr.New(pipeerr.Transient, providerName, fmt.Errorf("circuit open, retry in %s", c.guard.Breaker.WaitInterval()))
	}
	if err := c.guard.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if q.Title == "" {
		return nil, nil
	}

	var query booksSearchQuery
	vars := map[string]interface{}{
		"titlePattern": graphql.String("%" + q.Title + "%"),
	}

	if err := c.gql.Query(ctx, &query, vars); err != nil {
		c.guard.Breaker.RecordFailure()
		return nil, pipeerr.New(pipeerr.Transient, providerName, err)
	}
	c.guard.Breaker.RecordSuccess()

	candidates := make([]providers.Candidate, 0, len(query.Books))
	for _, b := range query.Books {
		author := ""
		if len(b.Contributions) > 0 {
			author = string(b.Contributions[0].Author.Name)
		}
		candidates = append(candidates, providers.Candidate{
			Provider: providerName,
			Author:   author,
			Title:    string(b.Title),
			Year:     string(b.ReleaseDate),
		})
	}

	logger.Get().Debug().Str("provider", providerName).Int("candidates", len(candidates)).Msg("search complete")
	return candidates, nil
}
