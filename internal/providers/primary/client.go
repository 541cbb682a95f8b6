// Package primary adapts the home identification service ("skaldleita" /
// "bookdb") into both a providers.MetadataProvider (fuzzy text match) and a
// providers.AudioIdentifier (fair-queue audio identification), the two
// contracts §6.2 groups under "primary identification service".
package primary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/drallgood/libraryd/internal/logger"
	"github.com/drallgood/libraryd/internal/pipeerr"
	"github.com/drallgood/libraryd/internal/providers"
	"github.com/drallgood/libraryd/internal/ratelimit"
)

const (
	providerName      = "primary"
	defaultBaseURL    = "https://api.skaldleita.example"
	matchConfidenceMin = 0.5

	// pollInterval and maxWait ground the §4.3 Layer 1 fair-queue contract:
	// "ticket + position polling, max wait 5 minutes, poll every 2 s".
	pollInterval = 2 * time.Second
	maxWait      = 5 * time.Minute
)

// Client is the signed HTTP client for the primary identification service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	salt       string
	guard      *ratelimit.Guard

	// now and sleep are swapped in tests so the fair-queue poll loop never
	// actually waits five minutes.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewClient builds a client against the live service, signed with salt
// (falling back to the published default salt when empty).
func NewClient(baseURL, apiKey, salt string, guard *ratelimit.Guard) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if salt == "" {
		salt = defaultSigningSalt
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		salt:       salt,
		guard:      guard,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

func (c *Client) Name() string { return providerName }

// signedRequest builds an HTTP request carrying the three signing headers
// spec.md §6.2 requires: User-Agent, X-LM-Timestamp, X-LM-Signature.
func (c *Client) signedRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building primary request: %w", err)
	}
	timestamp := c.now().Unix()
	req.Header.Set("User-Agent", "LibraryManager/"+clientVersion)
	req.Header.Set("X-LM-Timestamp", fmt.Sprintf("%d", timestamp))
	req.Header.Set("X-LM-Signature", generateSignature(c.salt, clientVersion, timestamp))
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

type matchResponse struct {
	Matches []struct {
		Author     string  `json:"author"`
		Title      string  `json:"title"`
		Narrator   string  `json:"narrator"`
		Series     string  `json:"series"`
		SeriesNum  string  `json:"series_num"`
		Year       string  `json:"year"`
		Confidence float64 `json:"confidence"`
	} `json:"matches"`
}

// Search implements providers.MetadataProvider via the service's fuzzy
// filename match endpoint. Candidates below matchConfidenceMin are dropped,
// matching the Python source's 0.5 floor.
func (c *Client) Search(ctx context.Context, q providers.Query) ([]providers.Candidate, error) {
	if c.guard.Breaker.IsOpen() {
		return nil, pipeerr.New(pipeerr.Transient, providerName, fmt.Errorf("circuit open, retry in %s", c.guard.Breaker.WaitInterval()))
	}
	if err := c.guard.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if q.Title == "" && q.Author == "" {
		return nil, nil
	}

	filename := strings.TrimSpace(fmt.Sprintf("%s - %s", q.Author, q.Title))
	filename = strings.Trim(filename, " -")
	payload, _ := json.Marshal(map[string]string{"filename": filename})

	req, err := c.signedRequest(ctx, http.MethodPost, "/match", payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.guard.Breaker.RecordFailure()
		return nil, pipeerr.New(pipeerr.Transient, providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.guard.Breaker.RecordFailure()
		return nil, pipeerr.New(pipeerr.Transient, providerName, fmt.Errorf("rate limited"))
	}
	if resp.StatusCode != http.StatusOK {
		c.guard.Breaker.RecordFailure()
		return nil, pipeerr.New(pipeerr.ClassifyHTTPStatus(resp.StatusCode, ""), providerName, fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed matchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding primary match response: %w", err)
	}
	c.guard.Breaker.RecordSuccess()

	candidates := make([]providers.Candidate, 0, len(parsed.Matches))
	for _, m := range parsed.Matches {
		if m.Confidence < matchConfidenceMin {
			continue
		}
		// Defense-in-depth: a series name is sometimes returned as the
		// author by the upstream match endpoint.
		if m.Series != "" && strings.EqualFold(m.Author, m.Series) {
			continue
		}
		candidates = append(candidates, providers.Candidate{
			Provider:   providerName,
			Author:     m.Author,
			Title:      m.Title,
			Narrator:   m.Narrator,
			Series:     m.Series,
			SeriesNum:  m.SeriesNum,
			Year:       m.Year,
			Confidence: int(m.Confidence * 100),
		})
	}

	logger.Get().Debug().Str("provider", providerName).Int("candidates", len(candidates)).Msg("search complete")
	return candidates, nil
}

type submitResponse struct {
	TicketID         string  `json:"ticket_id"`
	QueuePosition    int     `json:"queue_position"`
	EstimatedSeconds int     `json:"estimated_seconds"`
	Author           string  `json:"author"`
	Title            string  `json:"title"`
	Narrator         string  `json:"narrator"`
	Series           string  `json:"series"`
	SeriesNum        string  `json:"series_num"`
	Confidence       float64 `json:"confidence"`
	SLSource         string  `json:"sl_source"`
	RequeueSuggested bool    `json:"requeue_suggested"`
	Transcript       string  `json:"transcript"`
}

type pollResponse struct {
	Status string         `json:"status"` // processing | complete | error
	Error  string         `json:"error"`
	Result *submitResponse `json:"result"`
}

func toAudioIDResult(r *submitResponse) *providers.AudioIDResult {
	if r == nil {
		return nil
	}
	return &providers.AudioIDResult{
		Author:           r.Author,
		Title:            r.Title,
		Narrator:         r.Narrator,
		Series:           r.Series,
		SeriesNum:        r.SeriesNum,
		Confidence:       int(r.Confidence * 100),
		SLSource:         r.SLSource,
		RequeueSuggested: r.RequeueSuggested,
		Transcript:       r.Transcript,
	}
}

// IdentifyAudio implements providers.AudioIdentifier: submit the clip, then
// if the service enqueues it, poll the ticket every pollInterval up to
// maxWait (§4.3 Layer 1). folderHint is sent so the service can fall back to
// it when the audio itself is inconclusive.
func (c *Client) IdentifyAudio(ctx context.Context, clip []byte, folderHint string) (*providers.AudioIDResult, error) {
	if c.guard.Breaker.IsOpen() {
		return nil, pipeerr.New(pipeerr.Transient, providerName, fmt.Errorf("circuit open, retry in %s", c.guard.Breaker.WaitInterval()))
	}
	if err := c.guard.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	submitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	body := struct {
		FolderHint string `json:"folder_hint"`
		Clip       []byte `json:"clip"`
	}{FolderHint: folderHint, Clip: clip}
	payload, _ := json.Marshal(body)

	req, err := c.signedRequest(submitCtx, http.MethodPost, "/api/identify_audio", payload)
	if err != nil {
		return nil, err
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

	var submitted submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return nil, fmt.Errorf("decoding identify_audio response: %w", err)
	}

	if submitted.TicketID == "" {
		// Direct result, no queueing needed.
		c.guard.Breaker.RecordSuccess()
		return toAudioIDResult(&submitted), nil
	}

	result, err := c.pollTicket(ctx, submitted.TicketID)
	if err != nil {
		c.guard.Breaker.RecordFailure()
		return nil, err
	}
	c.guard.Breaker.RecordSuccess()
	return result, nil
}

// pollTicket is the explicit poll loop the design notes call for: a
// poll_interval/max_wait pair and a clock-injected sleep, no hidden
// continuation state.
func (c *Client) pollTicket(ctx context.Context, ticketID string) (*providers.AudioIDResult, error) {
	deadline := c.now().Add(maxWait)
	path := fmt.Sprintf("/api/identify_audio/%s", ticketID)

	for {
		req, err := c.signedRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, pipeerr.New(pipeerr.Transient, providerName, err)
		}
		var polled pollResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&polled)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decoding ticket poll response: %w", decodeErr)
		}

		switch polled.Status {
		case "complete":
			return toAudioIDResult(polled.Result), nil
		case "error":
			return nil, pipeerr.New(pipeerr.Transient, providerName, fmt.Errorf("ticket %s failed: %s", ticketID, polled.Error))
		}

		if c.now().After(deadline) {
			return nil, pipeerr.New(pipeerr.Transient, providerName, fmt.Errorf("ticket %s exceeded max wait of %s", ticketID, maxWait))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		c.sleep(pollInterval)
	}
}
