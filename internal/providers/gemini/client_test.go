package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/libraryd/internal/pipeerr"
	"github.com/drallgood/libraryd/internal/providers"
	"github.com/drallgood/libraryd/internal/ratelimit"
)

func newGuard() *ratelimit.Guard {
	return &ratelimit.Guard{
		Limiter: ratelimit.NewLimiter(0),
		Breaker: ratelimit.NewBreaker(3, time.Minute),
	}
}

func TestParseTextReturnsStructuredResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"author\":\"Brandon Sanderson\",\"title\":\"The Final Empire\",\"series\":\"Mistborn\",\"series_num\":\"1\"}"}]}}]}`))
	}))
	defer server.Close()

	c := NewClientWithURL(server.URL, "key", newGuard())
	result, err := c.ParseText(context.Background(), "Brandon Sanderson - Mistborn")
	require.NoError(t, err)
	assert.Equal(t, "Brandon Sanderson", result.Author)
	assert.Equal(t, "The Final Empire", result.Title)
	assert.Equal(t, "Mistborn", result.Series)
}

func TestParseTextFallsBackToRawOnUnparseableResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"I couldn't identify this book."}]}}]}`))
	}))
	defer server.Close()

	c := NewClientWithURL(server.URL, "key", newGuard())
	result, err := c.ParseText(context.Background(), "garbled input")
	require.NoError(t, err)
	assert.Empty(t, result.Author)
	assert.Equal(t, "I couldn't identify this book.", result.Raw)
}

func TestCallTripsBreakerOnQuotaExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Quota exceeded, limit: 0 requests per day"}}`))
	}))
	defer server.Close()

	guard := newGuard()
	c := NewClientWithURL(server.URL, "key", guard)
	_, err := c.ParseText(context.Background(), "anything")
	require.Error(t, err)
	assert.Equal(t, pipeerr.QuotaExhausted, pipeerr.CategoryOf(err))
	assert.True(t, guard.Breaker.IsOpen())
}

func TestAnalyzeParsesAudioCreditsResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"title\":\"IT\",\"author\":\"Stephen King\",\"narrator\":\"Steven Weber\",\"confidence\":88}"}]}}]}`))
	}))
	defer server.Close()

	c := NewClientWithURL(server.URL, "key", newGuard())
	analysis, err := c.Analyze(context.Background(), []byte("clip bytes"), providers.AudioModeCredits)
	require.NoError(t, err)
	assert.Equal(t, "Stephen King", analysis.Author)
	assert.Equal(t, 88, analysis.Confidence)
}

func TestAnalyzeRejectsUnknownMode(t *testing.T) {
	c := NewClientWithURL("http://unused.invalid", "key", newGuard())
	_, err := c.Analyze(context.Background(), []byte("clip"), providers.AudioMode("bogus"))
	require.Error(t, err)
}
