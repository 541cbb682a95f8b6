package audnex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/libraryd/internal/providers"
	"github.com/drallgood/libraryd/internal/ratelimit"
)

func newGuard() *ratelimit.Guard {
	return &ratelimit.Guard{
		Limiter: ratelimit.NewLimiter(0),
		Breaker: ratelimit.NewBreaker(3, time.Minute),
	}
}

func TestSearchParsesBooks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/books", r.URL.Path)
		w.Write([]byte(`[{"asin":"B001","title":"The Example","authors":[{"name":"Jane Doe"}],"narrators":"John Roe","isbn":"123"}]`))
	}))
	defer server.Close()

	c := NewClientWithURL(server.URL, newGuard())
	candidates, err := c.Search(context.Background(), providers.Query{Title: "Example"})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Jane Doe", candidates[0].Author)
	assert.Equal(t, "John Roe", candidates[0].Narrator)
	assert.Equal(t, providerName, candidates[0].Provider)
}

func TestSearchTripsBreakerOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	guard := newGuard()
	c := NewClientWithURL(server.URL, guard)
	_, err := c.Search(context.Background(), providers.Query{Title: "x"})
	assert.Error(t, err)

	_, err = c.Search(context.Background(), providers.Query{Title: "x"})
	assert.Error(t, err)
	_, err = c.Search(context.Background(), providers.Query{Title: "x"})
	assert.Error(t, err)
	assert.True(t, guard.Breaker.IsOpen())
}
