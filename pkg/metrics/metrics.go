package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	errs "spotifetch/pkg/errors"
	"spotifetch/pkg/retry"
)

const namespace = "spotifetch"

// Recorder exports retry diagnostics and run results as Prometheus metrics.
// It implements retry.Observer.
type Recorder struct {
	attempts    *prometheus.CounterVec
	waits       *prometheus.CounterVec
	waitSeconds *prometheus.HistogramVec
	tracks      prometheus.Counter
	failures    *prometheus.CounterVec
}

// NewRecorder creates the metrics and registers them with registerer. A nil
// registerer leaves them unregistered.
func NewRecorder(registerer prometheus.Registerer) *Recorder {
	r := &Recorder{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Number of API call attempts, first tries included",
		}, []string{"endpoint"}),
		waits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "waits_total",
			Help:      "Number of sleeps before a retry",
		}, []string{"endpoint", "class"}),
		waitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "wait_seconds",
			Help:      "Computed wait before a retry",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}, []string{"class"}),
		tracks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracks_collected_total",
			Help:      "Number of track records collected",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Number of failed collection runs by error kind",
		}, []string{"kind", "exhausted"}),
	}

	if registerer != nil {
		registerer.MustRegister(r.attempts, r.waits, r.waitSeconds, r.tracks, r.failures)
	}
	return r
}

// OnAttempt counts an attempt
func (r *Recorder) OnAttempt(_ int, target string) {
	r.attempts.WithLabelValues(EndpointLabel(target)).Inc()
}

// OnWait counts a sleep and records its length
func (r *Recorder) OnWait(_ int, target string, wait time.Duration, err error) {
	class := retry.Classify(err).String()
	r.waits.WithLabelValues(EndpointLabel(target), class).Inc()
	r.waitSeconds.WithLabelValues(class).Observe(wait.Seconds())
}

// TracksCollected adds n collected tracks
func (r *Recorder) TracksCollected(n int) {
	r.tracks.Add(float64(n))
}

// RunFailed counts a failed run by the kind of its cause
func (r *Recorder) RunFailed(err error) {
	if err == nil {
		return
	}
	exhausted := "false"
	if errs.IsRetryExhausted(err) {
		exhausted = "true"
	}
	r.failures.WithLabelValues(string(errs.KindOf(err)), exhausted).Inc()
}

// collections holds the path segments followed by an id
var collections = map[string]bool{
	"artists": true,
	"albums":  true,
	"tracks":  true,
}

// EndpointLabel turns a retry target such as "GET /albums/4aawyAB9vmqN3uQ7FjRGTy/tracks (page 2)"
// into a low cardinality label "GET /albums/{id}/tracks"
func EndpointLabel(target string) string {
	if i := strings.Index(target, " ("); i >= 0 {
		target = target[:i]
	}

	method, path, ok := strings.Cut(target, " ")
	if !ok {
		return target
	}

	segments := strings.Split(path, "/")
	for i := 1; i < len(segments); i++ {
		if collections[segments[i-1]] && segments[i] != "" {
			segments[i] = "{id}"
		}
	}
	return method + " " + strings.Join(segments, "/")
}
