package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// apiClient is the shared HTTP client for provider calls: one request
// timeout and one rate limiter per adapter, so a burst of concurrent
// worker passes cannot trip a provider's abuse limits.
type apiClient struct {
	http    *http.Client
	limiter *rate.Limiter
}

func newAPIClient(timeout time.Duration, rps rate.Limit, burst int) *apiClient {
	return &apiClient{
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rps, burst),
	}
}

func (c *apiClient) do(ctx context.Context, req *http.Request) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}

	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("error reading response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *apiClient) postJSON(ctx context.Context, url string, payload interface{}, headers map[string]string) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(body))
	if err != nil {
		return 0, nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.do(ctx, req)
}

func (c *apiClient) get(ctx context.Context, url string, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("error creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.do(ctx, req)
}

// providerError turns a non-2xx provider response into a PublishError
// with the most specific message the body yields.
func providerError(platform string, status int, body []byte) error {
	return &PublishError{
		Platform: platform,
		Code:     fmt.Sprintf("http_%d", status),
		Message:  ExtractErrorMessage(body, fmt.Sprintf("unexpected status code %d", status)),
	}
}
