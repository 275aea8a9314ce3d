package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"spotifetch/internal/fetcher"
	errs "spotifetch/pkg/errors"
	"spotifetch/pkg/logger"
	"spotifetch/pkg/retry"
)

const userAgent = "spotifetch/1.0"

// Client represents a Spotify Web API client
type Client struct {
	httpClient  *http.Client
	authURL     string
	baseURL     string
	market      string
	policy      *retry.Policy
	concurrency int
	progress    fetcher.ProgressFunc
	logger      logger.Logger

	mu    sync.RWMutex
	token string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAuthURL overrides the token endpoint
func WithAuthURL(u string) Option {
	return func(c *Client) { c.authURL = u }
}

// WithBaseURL overrides the API root
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = trimBase(u) }
}

// WithMarket restricts results to a country market (ISO 3166-1 alpha-2)
func WithMarket(market string) Option {
	return func(c *Client) { c.market = market }
}

// WithPolicy sets the retry policy applied to every data call
func WithPolicy(p *retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithConcurrency sets how many track details are fetched at once
func WithConcurrency(n int) Option {
	return func(c *Client) { c.concurrency = n }
}

// WithProgress reports completed track fetches to fn
func WithProgress(fn fetcher.ProgressFunc) Option {
	return func(c *Client) { c.progress = fn }
}

// WithToken sets a bearer token obtained elsewhere
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient creates a new Spotify API client
func NewClient(timeout time.Duration, log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		authURL:     AuthURL,
		baseURL:     BaseURL,
		policy:      retry.DefaultPolicy(),
		concurrency: 1,
		logger:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current bearer token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Authenticate exchanges client credentials for a bearer token. The call is
// made once; any failure is returned to the caller.
func (c *Client) Authenticate(ctx context.Context, clientID, clientSecret string) (string, error) {
	if clientID == "" || clientSecret == "" {
		return "", &errs.Error{
			Kind:    errs.KindAuth,
			Message: "client id and client secret are required",
		}
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &errs.Error{
			Kind:    errs.KindUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
			Err:     err,
		}
	}
	req.SetBasicAuth(clientID, clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token tokenResponse
	if err := c.do(req, &token); err != nil {
		c.logger.ErrorWithFields("authentication failed", map[string]interface{}{
			"error": err.Error(),
		})
		return "", err
	}

	if token.AccessToken == "" {
		return "", &errs.Error{
			Kind:    errs.KindAuth,
			Message: "token response did not contain an access token",
			Code:    http.StatusOK,
		}
	}

	c.setToken(token.AccessToken)
	c.logger.InfoWithFields("authenticated with Spotify", map[string]interface{}{
		"token_type": token.TokenType,
		"expires_in": token.ExpiresIn,
	})

	return token.AccessToken, nil
}

// doRequest performs one HTTP request. Transport failures come back as
// network errors unless the caller's context is done, in which case the
// context error is returned as is.
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if req.Header.Get("Authorization") == "" {
		if token := c.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}

		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.NewNetworkError(err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// checkResponse maps the HTTP status to a typed error
func (c *Client) checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    resp.Request.URL.String(),
	}

	kind := errs.KindForStatus(resp.StatusCode)
	switch kind {
	case errs.KindRateLimit:
		retryAfter := resp.Header.Get("Retry-After")
		fields["retry_after"] = retryAfter
		c.logger.WarnWithFields("rate limit exceeded", fields)
		return errs.NewRateLimitError(retryAfter)
	case errs.KindAuth, errs.KindNotFound:
		c.logger.WarnWithFields("request rejected", fields)
	default:
		c.logger.ErrorWithFields("unexpected API error", fields)
	}

	return &errs.Error{
		Kind:    kind,
		Message: apiErrorMessage(resp),
		Code:    resp.StatusCode,
	}
}

// apiErrorMessage pulls the message out of an error body, falling back to
// the status text. The Web API sends {"error":{"message":...}}; the token
// endpoint sends {"error":"code","error_description":...}.
func apiErrorMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(body) > 0 {
		var apiErr struct {
			Error       json.RawMessage `json:"error"`
			Description string          `json:"error_description"`
		}
		if json.Unmarshal(body, &apiErr) == nil {
			var object struct {
				Message string `json:"message"`
			}
			var code string
			switch {
			case json.Unmarshal(apiErr.Error, &object) == nil && object.Message != "":
				return object.Message
			case apiErr.Description != "":
				return apiErr.Description
			case json.Unmarshal(apiErr.Error, &code) == nil && code != "":
				return code
			}
		}
	}
	return fmt.Sprintf("unexpected status code: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

// do sends req and decodes a successful JSON body into target
func (c *Client) do(req *http.Request, target interface{}) error {
	resp, err := c.doRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return &errs.Error{
			Kind:    errs.KindNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
			Err:     err,
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}

		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          req.URL.String(),
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return &errs.Error{
			Kind:    errs.KindParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    resp.StatusCode,
			Err:     err,
		}
	}

	return nil
}

// GetJSON performs a single GET of rawURL and decodes the response into
// target. No retries are made.
func (c *Client) GetJSON(ctx context.Context, rawURL string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &errs.Error{
			Kind:    errs.KindUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
			Err:     err,
		}
	}
	return c.do(req, target)
}

// getWithRetry performs a GET under the client's retry policy. Each attempt
// decodes into a fresh value.
func getWithRetry[T any](ctx context.Context, c *Client, target, rawURL string) (T, error) {
	return retry.DoWithResult(ctx, c.policy, target, func() (T, error) {
		var v T
		err := c.GetJSON(ctx, rawURL, &v)
		return v, err
	})
}
