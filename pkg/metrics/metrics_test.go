package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "spotifetch/pkg/errors"
	"spotifetch/pkg/logger"
	"spotifetch/pkg/retry"
)

func TestEndpointLabel(t *testing.T) {
	tests := map[string]string{
		"GET /search":                                "GET /search",
		"GET /tracks/3n3Ppam7vgaVa1iaRUc9Lp":         "GET /tracks/{id}",
		"GET /artists/0OdUWJ0sBjDrqHygGUXeCF/albums": "GET /artists/{id}/albums",
		"GET /albums/abc/tracks (page 3)":            "GET /albums/{id}/tracks",
		"op":                                         "op",
	}

	for in, want := range tests {
		assert.Equal(t, want, EndpointLabel(in), in)
	}
}

func TestRecorderObservesRetries(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	calls := 0
	policy := retry.DefaultPolicy().WithObserver(rec)
	policy.Sleep = func(context.Context, time.Duration) error { return nil }

	err := policy.Do(context.Background(), "GET /tracks/t1", func() error {
		calls++
		if calls < 3 {
			return errs.NewRateLimitError("2")
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(rec.attempts.WithLabelValues("GET /tracks/{id}")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.waits.WithLabelValues("GET /tracks/{id}", "throttling")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.waitSeconds))
}

func TestRecorderRunResults(t *testing.T) {
	rec := NewRecorder(nil)

	rec.TracksCollected(12)
	rec.TracksCollected(3)
	assert.Equal(t, 15.0, testutil.ToFloat64(rec.tracks))

	rec.RunFailed(&errs.RetryExhaustedError{Target: "GET /search", Attempts: 10, Last: errs.NewNetworkError(errors.New("reset"))})
	rec.RunFailed(fmt.Errorf("lookup: %w", &errs.Error{Kind: errs.KindNotFound}))
	rec.RunFailed(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.failures.WithLabelValues("network", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.failures.WithLabelValues("not_found", "false")))
}

func TestRecorderRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg)
	assert.Panics(t, func() { NewRecorder(reg) })
}

func TestServerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)
	rec.TracksCollected(7)

	srv := NewServer("127.0.0.1:0", reg, logger.NewNopLogger())
	require.NoError(t, srv.Start())
	defer srv.Stop(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "spotifetch_tracks_collected_total 7"))

	health, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
