// Package openrouter adapts the OpenRouter chat-completions API into a
// providers.TextAIProvider for Layer 3 AI verification and Layer 1's
// transcript-parsing fallback.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/drallgood/libraryd/internal/logger"
	"github.com/drallgood/libraryd/internal/pipeerr"
	"github.com/drallgood/libraryd/internal/providers"
	"github.com/drallgood/libraryd/internal/ratelimit"
)

const (
	providerName   = "openrouter"
	defaultAPIURL  = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel   = "google/gemini-2.0-flash-exp:free"
	requestTimeout = 90 * time.Second

	refererHeader = "https://github.com/drallgood/libraryd"
	titleHeader   = "LibraryD"
)

// Client is the OpenRouter-backed providers.TextAIProvider.
type Client struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	model      string
	guard      *ratelimit.Guard
}

// NewClient builds a client against the live OpenRouter API with the
// configured model, falling back to a free-tier default when model is empty.
func NewClient(apiKey, model string, guard *ratelimit.Guard) *Client {
	return NewClientWithURL(defaultAPIURL, apiKey, model, guard)
}

// NewClientWithURL builds a client against a custom endpoint, used by tests
// to point at an httptest server instead of the live OpenRouter API.
func NewClientWithURL(apiURL, apiKey, model string, guard *ratelimit.Guard) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		apiURL:     apiURL,
		apiKey:     apiKey,
		model:      model,
		guard:      guard,
	}
}

func (c *Client) Name() string { return providerName }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// ParseText implements providers.TextAIProvider. OpenRouter's free-tier
// daily-limit 429s carry "free-models-per-day"/"daily" language in the error
// detail, distinct from an ordinary rate limit, so they trip the breaker
// immediately instead of counting as one transient failure.
func (c *Client) ParseText(ctx context.Context, prompt string) (*providers.TextResult, error) {
	if c.guard.Breaker.IsOpen() {
		return nil, pipeerr.New(pipeerr.Transient, providerName, fmt.Errorf("circuit open, retry in %s", c.guard.Breaker.WaitInterval()))
	}
	if err := c.guard.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []message{{Role: "user", Content: prompt}},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding openrouter request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building openrouter request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", refererHeader)
	req.Header.Set("X-Title", titleHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.guard.Breaker.RecordFailure()
		return nil, pipeerr.New(pipeerr.Transient, providerName, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		lowered := strings.ToLower(string(body))
		if strings.Contains(lowered, "free-models-per-day") || strings.Contains(lowered, "daily") {
			c.guard.Breaker.RecordQuotaExhausted()
			return nil, pipeerr.New(pipeerr.QuotaExhausted, providerName, fmt.Errorf("daily free-tier limit reached"))
		}
		c.guard.Breaker.RecordFailure()
		return nil, pipeerr.New(pipeerr.Transient, providerName, fmt.Errorf("rate limited"))
	}
	if resp.StatusCode != http.StatusOK {
		c.guard.Breaker.RecordFailure()
		return nil, pipeerr.New(pipeerr.ClassifyHTTPStatus(resp.StatusCode, string(body)), providerName, fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding openrouter response: %w", err)
	}
	if parsed.Error != nil {
		c.guard.Breaker.RecordFailure()
		return nil, pipeerr.New(pipeerr.Transient, providerName, fmt.Errorf("%s", parsed.Error.Message))
	}
	c.guard.Breaker.RecordSuccess()

	if len(parsed.Choices) == 0 {
		return &providers.TextResult{}, nil
	}
	text := parsed.Choices[0].Message.Content
	result, err := parseStructuredJSON(text)
	if err != nil {
		logger.Get().Warn().Str("provider", providerName).Err(err).Msg("could not parse AI response as structured JSON")
		return &providers.TextResult{Raw: text}, nil
	}
	result.Raw = text
	return result, nil
}
