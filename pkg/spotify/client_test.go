package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "spotifetch/pkg/errors"
	"spotifetch/pkg/logger"
	"spotifetch/pkg/retry"
)

// mockRoundTripper allows us to intercept HTTP requests
type mockRoundTripper struct {
	handler func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.handler(req)
}

// recordingSleeper replaces real sleeping in retry policies
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func (r *recordingSleeper) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func testPolicy(maxRetries int, sleeper *recordingSleeper) *retry.Policy {
	p := retry.DefaultPolicy().WithMaxRetries(maxRetries)
	p.Sleep = sleeper.sleep
	return p
}

// callCounter counts requests per path
type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCallCounter() *callCounter {
	return &callCounter{calls: make(map[string]int)}
}

func (c *callCounter) inc(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[path]++
	return c.calls[path]
}

func (c *callCounter) get(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[path]
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func newTestClient(srv *httptest.Server, sleeper *recordingSleeper, opts ...Option) *Client {
	opts = append([]Option{
		WithBaseURL(srv.URL + "/v1"),
		WithAuthURL(srv.URL + "/api/token"),
		WithPolicy(testPolicy(retry.DefaultMaxRetries, sleeper)),
		WithToken("test-token"),
	}, opts...)
	return NewClient(5*time.Second, logger.NewTestLogger(), opts...)
}

func TestNewClient(t *testing.T) {
	log := logger.NewTestLogger()
	client := NewClient(30*time.Second, log)

	assert.NotNil(t, client.httpClient)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
	assert.Equal(t, AuthURL, client.authURL)
	assert.Equal(t, BaseURL, client.baseURL)
	assert.Equal(t, retry.DefaultMaxRetries, client.policy.MaxRetries)
	assert.Equal(t, 1, client.concurrency)
	assert.Empty(t, client.Token())
}

func TestAuthenticate(t *testing.T) {
	calls := newCallCounter()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.inc(r.URL.Path)
		switch r.URL.Path {
		case "/api/token":
			assert.Equal(t, http.MethodPost, r.Method)
			id, secret, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "my-id", id)
			assert.Equal(t, "my-secret", secret)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
			writeJSON(t, w, map[string]interface{}{
				"access_token": "abc123",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		case "/v1/tracks/t1":
			assert.Equal(t, "Bearer abc123", r.Header.Get("Authorization"))
			writeJSON(t, w, map[string]interface{}{"id": "t1", "name": "Airbag"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, logger.NewTestLogger(),
		WithBaseURL(srv.URL+"/v1"),
		WithAuthURL(srv.URL+"/api/token"),
	)

	token, err := client.Authenticate(context.Background(), "my-id", "my-secret")
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)
	assert.Equal(t, "abc123", client.Token())

	track, err := client.FetchTrack(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Airbag", track.Name)
	assert.Equal(t, 1, calls.get("/api/token"))
}

func TestAuthenticateIsNotRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   errs.Kind
	}{
		{"bad credentials", http.StatusUnauthorized, errs.KindAuth},
		{"throttled", http.StatusTooManyRequests, errs.KindRateLimit},
		{"server error", http.StatusServiceUnavailable, errs.KindServer},
		{"bad request", http.StatusBadRequest, errs.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":"invalid_client","error_description":"Invalid client"}`)
			}))
			defer srv.Close()

			sleeper := &recordingSleeper{}
			client := newTestClient(srv, sleeper)

			_, err := client.Authenticate(context.Background(), "id", "secret")
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
			assert.Empty(t, sleeper.recorded())
		})
	}
}

func TestAuthenticateErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_client","error_description":"Invalid client secret"}`)
	}))
	defer srv.Close()

	client := newTestClient(srv, &recordingSleeper{})
	_, err := client.Authenticate(context.Background(), "id", "secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid client secret")
}

func TestAPIErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"web api object", `{"error":{"status":404,"message":"non existing id"}}`, "non existing id"},
		{"oauth description", `{"error":"invalid_client","error_description":"Invalid client secret"}`, "Invalid client secret"},
		{"oauth code only", `{"error":"invalid_client"}`, "invalid_client"},
		{"empty body", ``, "unexpected status code: 400 Bad Request"},
		{"not json", `<html>oops</html>`, "unexpected status code: 400 Bad Request"},
		{"empty object", `{"error":{}}`, "unexpected status code: 400 Bad Request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: http.StatusBadRequest,
				Body:       io.NopCloser(strings.NewReader(tt.body)),
			}
			assert.Equal(t, tt.want, apiErrorMessage(resp))
		})
	}
}

func TestAuthenticateMissingCredentials(t *testing.T) {
	client := NewClient(time.Second, logger.NewNopLogger())
	_, err := client.Authenticate(context.Background(), "", "secret")
	assert.Equal(t, errs.KindAuth, errs.KindOf(err))
}

func TestAuthenticateEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"token_type": "Bearer"})
	}))
	defer srv.Close()

	client := newTestClient(srv, &recordingSleeper{})
	_, err := client.Authenticate(context.Background(), "id", "secret")
	assert.Equal(t, errs.KindAuth, errs.KindOf(err))
}

func TestAuthenticateNetworkFailure(t *testing.T) {
	var calls int32
	hc := &http.Client{Transport: &mockRoundTripper{handler: func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("dial tcp: connection refused")
	}}}

	client := NewClient(time.Second, logger.NewNopLogger(), WithHTTPClient(hc))
	_, err := client.Authenticate(context.Background(), "id", "secret")

	assert.Equal(t, errs.KindNetwork, errs.KindOf(err))
	assert.False(t, errs.IsRetryExhausted(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCheckResponseClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   errs.Kind
	}{
		{http.StatusUnauthorized, errs.KindAuth},
		{http.StatusForbidden, errs.KindAuth},
		{http.StatusNotFound, errs.KindNotFound},
		{http.StatusTooManyRequests, errs.KindRateLimit},
		{http.StatusInternalServerError, errs.KindServer},
		{http.StatusBadGateway, errs.KindServer},
		{http.StatusTeapot, errs.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := newTestClient(srv, &recordingSleeper{})
			var v map[string]interface{}
			err := client.GetJSON(context.Background(), srv.URL+"/v1/anything", &v)

			var apiErr *errs.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.Code)
		})
	}
}

func TestRateLimitKeepsRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(srv, &recordingSleeper{})
	var v map[string]interface{}
	err := client.GetJSON(context.Background(), srv.URL+"/v1/tracks/x", &v)

	var apiErr *errs.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errs.KindRateLimit, apiErr.Kind)
	assert.Equal(t, "17", apiErr.RetryAfter)
}

func TestFetchTrackRetriesThrottling(t *testing.T) {
	calls := newCallCounter()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.inc(r.URL.Path) <= 2 {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, map[string]interface{}{"id": "t1", "name": "Lucky", "duration_ms": 259000})
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	client := newTestClient(srv, sleeper)

	track, err := client.FetchTrack(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Lucky", track.Name)
	assert.Equal(t, 259000, track.DurationMs)
	assert.Equal(t, 3, calls.get("/v1/tracks/t1"))

	waits := sleeper.recorded()
	require.Len(t, waits, 2)
	var total time.Duration
	for _, w := range waits {
		assert.GreaterOrEqual(t, w, 6*time.Second)
		assert.LessOrEqual(t, w, 8*time.Second)
		total += w
	}
	assert.GreaterOrEqual(t, total, 12*time.Second)
	assert.LessOrEqual(t, total, 16*time.Second)
}

func TestFetchTrackPermanentFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    errs.Kind
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"status":404,"message":"Non existing id"}}`)
		}, errs.KindNotFound},
		{"server error is not retried", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}, errs.KindServer},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}, errs.KindAuth},
		{"invalid json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"id": "t1", "name": `)
		}, errs.KindParsing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				tt.handler(w, r)
			}))
			defer srv.Close()

			sleeper := &recordingSleeper{}
			client := newTestClient(srv, sleeper)

			_, err := client.FetchTrack(context.Background(), "t1")
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.False(t, errs.IsRetryExhausted(err))
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
			assert.Empty(t, sleeper.recorded())
		})
	}
}

func TestFetchTrackNetworkExhaustion(t *testing.T) {
	var calls int32
	hc := &http.Client{Transport: &mockRoundTripper{handler: func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection reset by peer")
	}}}

	sleeper := &recordingSleeper{}
	client := NewClient(time.Second, logger.NewNopLogger(),
		WithHTTPClient(hc),
		WithPolicy(testPolicy(3, sleeper)),
	)

	_, err := client.FetchTrack(context.Background(), "t1")
	require.Error(t, err)
	assert.True(t, errs.IsRetryExhausted(err))
	assert.Equal(t, errs.KindNetwork, errs.KindOf(err), "last cause stays reachable")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Len(t, sleeper.recorded(), 2)

	var exhausted *errs.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "GET /tracks/t1", exhausted.Target)
}

func TestFetchTrackSingleAttemptBudget(t *testing.T) {
	var calls int32
	hc := &http.Client{Transport: &mockRoundTripper{handler: func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("no route to host")
	}}}

	sleeper := &recordingSleeper{}
	client := NewClient(time.Second, logger.NewNopLogger(),
		WithHTTPClient(hc),
		WithPolicy(testPolicy(1, sleeper)),
	)

	_, err := client.FetchTrack(context.Background(), "t1")
	assert.True(t, errs.IsRetryExhausted(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, sleeper.recorded())
}

func TestBodyReadFailureIsNetworkError(t *testing.T) {
	var calls int32
	hc := &http.Client{Transport: &mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(&failingReader{}),
				Header:     make(http.Header),
				Request:    req,
			}, nil
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"id":"t1","name":"Reckoner"}`)),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	}}}

	sleeper := &recordingSleeper{}
	client := NewClient(time.Second, logger.NewNopLogger(),
		WithHTTPClient(hc),
		WithPolicy(testPolicy(5, sleeper)),
	)

	track, err := client.FetchTrack(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Reckoner", track.Name)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("unexpected EOF")
}

func TestCancelledContextIsNotRetried(t *testing.T) {
	var calls int32
	hc := &http.Client{Transport: &mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, req.Context().Err()
	}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sleeper := &recordingSleeper{}
	client := NewClient(time.Second, logger.NewNopLogger(),
		WithHTTPClient(hc),
		WithPolicy(testPolicy(5, sleeper)),
	)

	_, err := client.FetchTrack(ctx, "t1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, errs.KindUnknown, errs.KindOf(err))
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(1))
	assert.Empty(t, sleeper.recorded())
}

func TestTrackKeepsRawDocument(t *testing.T) {
	doc := `{"id":"t9","name":"Nude","popularity":61,"album":{"id":"a1","name":"In Rainbows"},"artists":[{"id":"r1","name":"Radiohead"}],"available_markets":["GB"]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, doc)
	}))
	defer srv.Close()

	client := newTestClient(srv, &recordingSleeper{})
	track, err := client.FetchTrack(context.Background(), "t9")
	require.NoError(t, err)

	assert.Equal(t, "In Rainbows", track.Album.Name)
	assert.Equal(t, []string{"Radiohead"}, track.ArtistNames())
	assert.JSONEq(t, doc, string(track.Raw))
}

func TestRetryDiagnosticsAreLogged(t *testing.T) {
	calls := newCallCounter()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.inc(r.URL.Path) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, map[string]interface{}{"id": "t1"})
	}))
	defer srv.Close()

	log := logger.NewTestLogger()
	sleeper := &recordingSleeper{}
	policy := testPolicy(10, sleeper).WithObserver(retry.NewLogObserver(log))
	client := newTestClient(srv, sleeper, WithPolicy(policy))

	_, err := client.FetchTrack(context.Background(), "t1")
	require.NoError(t, err)

	var attempts, sleeps int
	for _, msg := range log.GetMessages() {
		if msg.Fields["logger"] != retry.LogChannel {
			continue
		}
		switch msg.Message {
		case "retry attempt":
			attempts++
			assert.Equal(t, "DEBUG", msg.Level)
		case "retry sleeping":
			sleeps++
			assert.Equal(t, "WARN", msg.Level)
			assert.Equal(t, fmt.Sprintf("GET /tracks/%s", "t1"), msg.Fields["target"])
		}
	}
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, sleeps)
}
