// Package inference provides the text-generation client used to answer
// bot messages. It shields callers from upstream instability: model
// cold-starts (503 "loading"), transient failures, and slow responses.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	maxAttempts = 3

	// Generation parameters sent with every request.
	maxLength   = 200
	temperature = 0.7
	topP        = 0.9

	// Sleep bounds for the retry loop.
	defaultLoadingWait = 20 * time.Second
	maxLoadingWait     = 30 * time.Second
	baseBackoff        = 1 * time.Second
	maxBackoff         = 10 * time.Second

	defaultRequestTimeout = 30 * time.Second
)

// ErrModelLoading is returned when the model is still warming up after
// all attempts were spent waiting on 503 responses.
var ErrModelLoading = errors.New("inference: model is still loading, try again later")

// HTTPStatusError captures non-2xx upstream responses with status-aware
// context, so callers classify on the status code instead of matching
// error text.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("inference: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// generationRequest is the request shape for the text-generation endpoint.
type generationRequest struct {
	Inputs     string           `json:"inputs"`
	Parameters generationParams `json:"parameters"`
}

type generationParams struct {
	MaxLength   int     `json:"max_length"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	DoSample    bool    `json:"do_sample"`
}

// generation is the normalized response shape. The endpoint returns
// either a single object or a one-element array of this; the array case
// is flattened immediately after decoding.
type generation struct {
	GeneratedText string `json:"generated_text"`
	Error         string `json:"error"`
}

// loadingBody is the 503 response body carrying the warm-up estimate.
type loadingBody struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

// Client calls a HuggingFace-style text-generation endpoint.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client

	// sleep is swapped out in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithModel overrides the default model for this client.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// NewClient creates a text-generation client.
func NewClient(apiKey, baseURL, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("inference: api key must not be empty")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("inference: base url must not be empty")
	}
	if model == "" {
		return nil, errors.New("inference: model must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) modelURL() string {
	return c.baseURL + "/" + c.model
}

// attemptKind classifies one network attempt, replacing the source's
// fragile match-on-error-text control flow.
type attemptKind int

const (
	attemptOK attemptKind = iota
	attemptLoading
	attemptRetryable
	attemptFatal
)

type attemptResult struct {
	kind attemptKind
	text string
	wait time.Duration // loading attempts only
	err  error
}

// Generate produces an assistant reply for the given user message and
// persona/history context. At most one request is in flight at a time;
// up to 3 attempts are made. Timeouts and 4xx responses fail
// immediately, 503 waits for the model to warm up, anything else backs
// off exponentially.
func (c *Client) Generate(ctx context.Context, userMessage, contextBlock string) (string, error) {
	prompt := contextBlock + "\n\nUser: " + userMessage + "\nAssistant:"

	var lastErr error
	loading := false

	for attempt := 0; attempt < maxAttempts; attempt++ {
		res := c.attempt(ctx, prompt)

		switch res.kind {
		case attemptOK:
			return res.text, nil

		case attemptFatal:
			return "", res.err

		case attemptLoading:
			lastErr = res.err
			loading = true
			if attempt < maxAttempts-1 {
				if err := c.sleep(ctx, res.wait); err != nil {
					return "", fmt.Errorf("wait for model: %w", err)
				}
			}

		case attemptRetryable:
			lastErr = res.err
			loading = false
			if attempt < maxAttempts-1 {
				if err := c.sleep(ctx, backoff(attempt)); err != nil {
					return "", fmt.Errorf("wait before retry: %w", err)
				}
			}
		}
	}

	if loading {
		return "", fmt.Errorf("%w: %v", ErrModelLoading, lastErr)
	}
	return "", fmt.Errorf("generate after %d attempts: %w", maxAttempts, lastErr)
}

// attempt performs exactly one network round trip and classifies the outcome.
func (c *Client) attempt(ctx context.Context, prompt string) attemptResult {
	body, err := json.Marshal(generationRequest{
		Inputs: prompt,
		Parameters: generationParams{
			MaxLength:   maxLength,
			Temperature: temperature,
			TopP:        topP,
			DoSample:    true,
		},
	})
	if err != nil {
		return attemptResult{kind: attemptFatal, err: fmt.Errorf("marshal request: %w", err)}
	}

	endpoint := c.modelURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return attemptResult{kind: attemptFatal, err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return attemptResult{kind: attemptFatal, err: fmt.Errorf("request timed out: %w", err)}
		}
		return attemptResult{kind: attemptRetryable, err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return attemptResult{kind: attemptRetryable, err: fmt.Errorf("read response body: %w", err)}
	}

	switch {
	case res.StatusCode == http.StatusServiceUnavailable:
		return attemptResult{
			kind: attemptLoading,
			wait: loadingWait(raw),
			err:  &HTTPStatusError{StatusCode: res.StatusCode, URL: endpoint, Body: truncate(raw)},
		}

	case res.StatusCode >= 400 && res.StatusCode < 500:
		return attemptResult{
			kind: attemptFatal,
			err:  &HTTPStatusError{StatusCode: res.StatusCode, URL: endpoint, Body: truncate(raw)},
		}

	case res.StatusCode < 200 || res.StatusCode >= 300:
		return attemptResult{
			kind: attemptRetryable,
			err:  &HTTPStatusError{StatusCode: res.StatusCode, URL: endpoint, Body: truncate(raw)},
		}
	}

	gen, err := decodeGeneration(raw)
	if err != nil {
		return attemptResult{kind: attemptFatal, err: err}
	}

	return attemptResult{kind: attemptOK, text: extractReply(gen.GeneratedText)}
}

// Probe performs a lightweight reachability check against the model
// endpoint. A 503 returns ErrModelLoading: the endpoint is reachable but
// the model is cold.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.modelURL(), nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))

	if res.StatusCode == http.StatusServiceUnavailable {
		return ErrModelLoading
	}
	if res.StatusCode >= 500 {
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: c.modelURL()}
	}
	return nil
}

// decodeGeneration normalizes the endpoint's two response shapes (single
// object or one-element array) into one value before any business logic
// inspects it.
func decodeGeneration(raw []byte) (generation, error) {
	var list []generation
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return generation{}, errors.New("inference: empty response array")
		}
		return validateGeneration(list[0])
	}

	var single generation
	if err := json.Unmarshal(raw, &single); err != nil {
		return generation{}, fmt.Errorf("inference: decode response: %w", err)
	}
	return validateGeneration(single)
}

func validateGeneration(gen generation) (generation, error) {
	if gen.Error != "" {
		return generation{}, fmt.Errorf("inference: upstream error: %s", gen.Error)
	}
	if gen.GeneratedText == "" {
		return generation{}, errors.New("inference: no generated text in response")
	}
	return gen, nil
}

// extractReply returns everything after the first "Assistant:" marker,
// or the whole text when the marker is absent. Trimmed either way.
func extractReply(text string) string {
	const marker = "Assistant:"
	if idx := strings.Index(text, marker); idx >= 0 {
		return strings.TrimSpace(text[idx+len(marker):])
	}
	return strings.TrimSpace(text)
}

// loadingWait reads the warm-up estimate from a 503 body, bounded to
// keep one wait from eating the whole call budget.
func loadingWait(raw []byte) time.Duration {
	wait := defaultLoadingWait
	var body loadingBody
	if err := json.Unmarshal(raw, &body); err == nil && body.EstimatedTime > 0 {
		wait = time.Duration(body.EstimatedTime * float64(time.Second))
	}
	if wait > maxLoadingWait {
		wait = maxLoadingWait
	}
	return wait
}

func backoff(attempt int) time.Duration {
	d := baseBackoff * time.Duration(1<<attempt)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

func truncate(raw []byte) string {
	const limit = 512
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
