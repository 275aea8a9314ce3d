package retry

import (
	"time"

	"spotifetch/pkg/logger"
)

// LogChannel is the name of the diagnostic channel retry records go to
const LogChannel = "spotify_retry"

// Observer receives retry diagnostics. Implementations must not block and
// cannot influence control flow.
type Observer interface {
	// OnAttempt is called before every attempt, starting at 1
	OnAttempt(attempt int, target string)
	// OnWait is called before sleeping after a failed attempt
	OnWait(attempt int, target string, wait time.Duration, err error)
}

// NopObserver discards all diagnostics
type NopObserver struct{}

func (NopObserver) OnAttempt(int, string)                    {}
func (NopObserver) OnWait(int, string, time.Duration, error) {}

// LogObserver writes a debug record before each attempt and a warning before
// each sleep
type LogObserver struct {
	logger logger.Logger
}

// NewLogObserver creates an observer logging to the retry channel of log
func NewLogObserver(log logger.Logger) *LogObserver {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &LogObserver{logger: logger.Named(log, LogChannel)}
}

func (o *LogObserver) OnAttempt(attempt int, target string) {
	o.logger.DebugWithFields("retry attempt", map[string]interface{}{
		"attempt": attempt,
		"target":  target,
	})
}

func (o *LogObserver) OnWait(attempt int, target string, wait time.Duration, err error) {
	fields := map[string]interface{}{
		"attempt": attempt,
		"target":  target,
		"wait":    wait,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	o.logger.WarnWithFields("retry sleeping", fields)
}

// MultiObserver fans diagnostics out to several observers
type MultiObserver []Observer

func (m MultiObserver) OnAttempt(attempt int, target string) {
	for _, o := range m {
		o.OnAttempt(attempt, target)
	}
}

func (m MultiObserver) OnWait(attempt int, target string, wait time.Duration, err error) {
	for _, o := range m {
		o.OnWait(attempt, target, wait, err)
	}
}
