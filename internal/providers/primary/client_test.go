package primary

import (
	"context"
	"encoding/json"
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
		Breaker: ratelimit.NewBreaker(5, time.Minute),
	}
}

func TestGenerateSignatureIsDeterministic(t *testing.T) {
	sig1 := generateSignature("salt", "1.0", 1000)
	sig2 := generateSignature("salt", "1.0", 1000)
	assert.Equal(t, sig1, sig2)
	assert.Len(t, sig1, 32)

	sig3 := generateSignature("salt", "1.0", 1001)
	assert.NotEqual(t, sig1, sig3)
}

func TestSearchAppliesConfidenceFloor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "LibraryManager/")
		assert.NotEmpty(t, r.Header.Get("X-LM-Signature"))
		assert.NotEmpty(t, r.Header.Get("X-LM-Timestamp"))
		w.Write([]byte(`{"matches":[
			{"author":"Brandon Sanderson","title":"The Final Empire","confidence":0.92},
			{"author":"Nobody","title":"Low Confidence","confidence":0.2}
		]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "salt", newGuard())
	candidates, err := c.Search(context.Background(), providers.Query{Author: "Brandon Sanderson", Title: "Mistborn"})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "The Final Empire", candidates[0].Title)
	assert.Equal(t, 92, candidates[0].Confidence)
}

func TestIdentifyAudioReturnsDirectResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(submitResponse{
			Author: "A", Title: "T", Confidence: 0.85, SLSource: "database",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "salt", newGuard())
	result, err := c.IdentifyAudio(context.Background(), []byte("clip"), "folder hint")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "A", result.Author)
	assert.Equal(t, "database", result.SLSource)
}

func TestIdentifyAudioPollsTicketUntilComplete(t *testing.T) {
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(submitResponse{TicketID: "abc", QueuePosition: 2})
			return
		}
		polls++
		if polls < 2 {
			json.NewEncoder(w).Encode(pollResponse{Status: "processing"})
			return
		}
		json.NewEncoder(w).Encode(pollResponse{Status: "complete", Result: &submitResponse{
			Author: "B", Title: "T2", Confidence: 0.7, SLSource: "audio", RequeueSuggested: true,
		}})
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "salt", newGuard())
	c.sleep = func(time.Duration) {} // no real waiting in tests

	result, err := c.IdentifyAudio(context.Background(), []byte("clip"), "folder hint")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "B", result.Author)
	assert.True(t, result.RequeueSuggested)
	assert.GreaterOrEqual(t, polls, 2)
}

func TestIdentifyAudioReturnsErrorOnTicketFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(submitResponse{TicketID: "abc"})
			return
		}
		json.NewEncoder(w).Encode(pollResponse{Status: "error", Error: "transcription failed"})
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "salt", newGuard())
	c.sleep = func(time.Duration) {}

	_, err := c.IdentifyAudio(context.Background(), []byte("clip"), "folder hint")
	require.Error(t, err)
}
