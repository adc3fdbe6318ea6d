// Package upstream implements the authenticated link-then-fetch client used
// by the resolution and profile services. Data endpoints return a short-lived
// pre-signed link rather than the payload itself; the link must be fetched
// without the Authorization header.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"racing-gateway/internal/circuitbreaker"
	"racing-gateway/internal/common/errors"
	commonhttp "racing-gateway/internal/common/http"
	"racing-gateway/internal/common/logging"
	"racing-gateway/internal/common/utils"
)

// Config contains configuration for the upstream API client
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Retry     *utils.RetryConfig
}

// Client fetches JSON documents from the data API. It is safe for
// concurrent use.
type Client struct {
	config  *Config
	client  *http.Client
	breaker *circuitbreaker.GoBreakerAdapter
	retry   utils.RetryConfig
	logger  logging.Logger
}

type linkEnvelope struct {
	Link string `json:"link"`
}

// NewClient creates an upstream API client
func NewClient(config *Config, logger logging.Logger) (*Client, error) {
	if config == nil || config.BaseURL == "" {
		return nil, errors.ValidationError("upstream base URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	retry := utils.DefaultRetryConfig()
	if config.Retry != nil {
		retry = *config.Retry
	}
	retry.Classify = classifyFetchError

	return &Client{
		config:  config,
		client:  commonhttp.NewHTTPClientWithTimeout(config.Timeout),
		breaker: circuitbreaker.NewGoBreaker("upstream-api", circuitbreaker.DefaultConfig(), logger),
		retry:   retry,
		logger:  logger,
	}, nil
}

// classifyFetchError decides whether a failed fetch is worth repeating.
// Authentication failures never resolve by retrying; the caller owns the
// re-authentication path.
func classifyFetchError(err error) utils.Decision {
	if errors.IsType(err, errors.ErrTypeAuth) {
		return utils.DecisionFatal
	}
	return utils.DecisionRetry
}

// FetchJSON performs the two-step fetch for path (relative to the base URL,
// query string included): an authenticated GET returning a link envelope,
// then an unauthenticated GET of the link itself, decoded into dest.
// Transient failures are retried with exponential backoff; a 429 on either
// step honors the server's Retry-After hint.
func (c *Client) FetchJSON(ctx context.Context, path string, accessToken string, dest interface{}) error {
	requestURL := c.config.BaseURL + path

	return utils.RetryWithBackoff(ctx, c.retry, func() error {
		return c.fetchOnce(ctx, requestURL, accessToken, dest)
	})
}

func (c *Client) fetchOnce(ctx context.Context, requestURL string, accessToken string, dest interface{}) error {
	var envelope linkEnvelope
	if err := c.doJSON(ctx, requestURL, accessToken, &envelope); err != nil {
		return err
	}
	if envelope.Link == "" {
		return errors.UpstreamError(fmt.Sprintf("no data link in response from %s", requestURL), nil)
	}

	// The link is pre-signed; sending the bearer token with it is rejected.
	return c.doJSON(ctx, envelope.Link, "", dest)
}

// doJSON executes a single GET inside the circuit breaker and decodes the
// body into dest. An empty accessToken omits the Authorization header.
func (c *Client) doJSON(ctx context.Context, requestURL string, accessToken string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return errors.UpstreamError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	var resp *http.Response
	err = c.breaker.Execute(ctx, func() error {
		var httpErr error
		resp, httpErr = c.client.Do(req)
		return httpErr
	})
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			return appErr
		}
		return errors.UpstreamError(fmt.Sprintf("request to %s failed", requestURL), err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.UpstreamError("failed to read response body", err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return errors.UpstreamError("failed to decode response body", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.AuthError(fmt.Sprintf("upstream rejected credentials with status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		rateErr := errors.RateLimitError("upstream API")
		if hint, ok := commonhttp.RetryAfter(resp.Header); ok {
			rateErr = rateErr.WithRetryAfter(hint)
		}
		return rateErr
	default:
		return errors.UpstreamError(fmt.Sprintf("upstream returned status %d", resp.StatusCode), nil)
	}
}
