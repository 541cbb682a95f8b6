// Package gemini adapts Google's Gemini API into both a
// providers.TextAIProvider (Layer 3 AI verification) and a
// providers.AudioAIProvider (Layers 4/5 audio credits and content analysis).
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/drallgood/libraryd/internal/logger"
	"github.com/drallgood/libraryd/internal/pipeerr"
	"github.com/drallgood/libraryd/internal/providers"
	"github.com/drallgood/libraryd/internal/ratelimit"
)

const (
	providerName = "gemini"

	defaultAPIURL    = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultTextModel = "gemini-2.0-flash"
	defaultAudioModel = "gemini-2.5-flash"

	textTimeout  = 90 * time.Second
	audioTimeout = 120 * time.Second
)

var retryHintPattern = regexp.MustCompile(`retry in (\d+(?:\.\d+)?)s`)

// Client is the Gemini-backed providers.TextAIProvider/providers.AudioAIProvider.
type Client struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	textModel  string
	audioModel string
	guard      *ratelimit.Guard
}

// NewClient builds a client against the live Gemini API.
func NewClient(apiKey string, guard *ratelimit.Guard) *Client {
	return NewClientWithURL(defaultAPIURL, apiKey, guard)
}

// NewClientWithURL builds a client against a custom endpoint, used by tests
// to point at an httptest server instead of the live Gemini API.
func NewClientWithURL(apiURL, apiKey string, guard *ratelimit.Guard) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: audioTimeout},
		apiURL:     apiURL,
		apiKey:     apiKey,
		textModel:  defaultTextModel,
		audioModel: defaultAudioModel,
		guard:      guard,
	}
}

func (c *Client) Name() string { return providerName }

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// call performs one generateContent request and returns the first candidate
// text, handling 429 quota/backoff classification per §4.2.
func (c *Client) call(ctx context.Context, model string, req generateRequest) (string, error) {
	if c.guard.Breaker.IsOpen() {
		return "", pipeerr.New(pipeerr.Transient, providerName, fmt.Errorf("circuit open, retry in %s", c.guard.Breaker.WaitInterval()))
	}
	if err := c.guard.Limiter.Wait(ctx); err != nil {
		return "", err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.apiURL, model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.guard.Breaker.RecordFailure()
		return "", pipeerr.New(pipeerr.Transient, providerName, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		category := pipeerr.ClassifyHTTPStatus(resp.StatusCode, string(body))
		if category == pipeerr.QuotaExhausted {
			c.guard.Breaker.RecordQuotaExhausted()
		} else {
			c.guard.Breaker.RecordFailure()
		}
		return "", pipeerr.New(category, providerName, fmt.Errorf("rate limited: %s", retryHint(string(body))))
	}
	if resp.StatusCode != http.StatusOK {
		c.guard.Breaker.RecordFailure()
		return "", pipeerr.New(pipeerr.ClassifyHTTPStatus(resp.StatusCode, string(body)), providerName, fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding gemini response: %w", err)
	}
	c.guard.Breaker.RecordSuccess()

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

// retryHint extracts the "retry in N.Ns" suggestion from a 429 body, used
// only for logging/diagnostics; the breaker still governs actual backoff.
func retryHint(body string) string {
	m := retryHintPattern.FindStringSubmatch(strings.ToLower(body))
	if len(m) != 2 {
		return "unknown"
	}
	if secs, err := strconv.ParseFloat(m[1], 64); err == nil {
		return fmt.Sprintf("%.1fs", secs)
	}
	return m[1]
}

// ParseText implements providers.TextAIProvider for Layer 3 AI verification
// and Layer 1's transcript-parsing fallback.
func (c *Client) ParseText(ctx context.Context, prompt string) (*providers.TextResult, error) {
	ctx, cancel := context.WithTimeout(ctx, textTimeout)
	defer cancel()

	req := generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{Temperature: 0.1},
	}
	text, err := c.call(ctx, c.textModel, req)
	if err != nil {
		return nil, err
	}
	result, err := parseStructuredJSON(text)
	if err != nil {
		logger.Get().Warn().Str("provider", providerName).Err(err).Msg("could not parse AI response as structured JSON")
		return &providers.TextResult{Raw: text}, nil
	}
	result.Raw = text
	return result, nil
}

var audioPrompts = map[providers.AudioMode]string{
	providers.AudioModeCredits: "Transcribe the opening credits announcement of this audiobook clip " +
		"(for example: \"this is Title by Author, read by Narrator\"). Return JSON with keys " +
		"title, author, narrator, series, series_num, confidence (0-100).",
	providers.AudioModeIdentify: "Listen to this audiobook clip from the middle of a chapter with no " +
		"spoken credits. Identify the book from characters, plot, and narration style. Return JSON " +
		"with keys title, author, narrator, series, series_num, confidence, chapter_number, " +
		"chapter_title, language, character_names, context_clues.",
	providers.AudioModeContent: "Transcribe this audiobook clip and identify the book from its content: " +
		"characters, plot, and narration style. Return JSON with keys title, author, narrator, " +
		"series, series_num, confidence, character_names, context_clues.",
	providers.AudioModeLanguage: "Identify the spoken language of this audiobook clip. Return JSON " +
		"with a single key language (ISO 639-1 code).",
}

// Analyze implements providers.AudioAIProvider for Layers 4 and 5: base64
// encode the clip and ask for a mode-specific structured result.
func (c *Client) Analyze(ctx context.Context, clip []byte, mode providers.AudioMode) (*providers.AudioAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, audioTimeout)
	defer cancel()

	prompt, ok := audioPrompts[mode]
	if !ok {
		return nil, fmt.Errorf("gemini: unsupported audio mode %q", mode)
	}

	req := generateRequest{
		Contents: []content{{Parts: []part{
			{Text: prompt},
			{InlineData: &inlineData{MimeType: "audio/mpeg", Data: base64.StdEncoding.EncodeToString(clip)}},
		}}},
		GenerationConfig: generationConfig{Temperature: 0.1},
	}
	text, err := c.call(ctx, c.audioModel, req)
	if err != nil {
		return nil, err
	}

	analysis, err := parseAudioAnalysis(text)
	if err != nil {
		logger.Get().Warn().Str("provider", providerName).Err(err).Msg("could not parse audio analysis response")
		return &providers.AudioAnalysis{Raw: text}, nil
	}
	analysis.Raw = text
	return analysis, nil
}
