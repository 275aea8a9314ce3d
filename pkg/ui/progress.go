package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
	progressWidth = 20
)

// FetchProgress tracks how many track records have been fetched. It is
// safe for concurrent use.
type FetchProgress struct {
	mu        sync.Mutex
	done      int
	total     int
	startTime time.Time
	now       func() time.Time
}

// NewFetchProgress creates a tracker starting now
func NewFetchProgress() *FetchProgress {
	return &FetchProgress{
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Update records done out of total items. Counts never move backwards.
func (p *FetchProgress) Update(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if done > p.done {
		p.done = done
	}
	p.total = total
}

// Counts returns the completed and total items
func (p *FetchProgress) Counts() (done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done, p.total
}

// Bar returns a formatted progress bar
func (p *FetchProgress) Bar() string {
	done, total := p.Counts()

	filled := 0
	if total > 0 {
		filled = done * progressWidth / total
	}
	if filled > progressWidth {
		filled = progressWidth
	}

	bar := strings.Repeat(ProgressBar, filled) +
		strings.Repeat(ProgressEmpty, progressWidth-filled)

	return fmt.Sprintf("[%s] %d/%d", bar, done, total)
}

// Elapsed returns the time since tracking started
func (p *FetchProgress) Elapsed() time.Duration {
	return p.now().Sub(p.startTime)
}

// Rate returns the average number of fetched items per minute
func (p *FetchProgress) Rate() float64 {
	minutes := p.Elapsed().Minutes()
	if minutes == 0 {
		return 0
	}
	done, _ := p.Counts()
	return float64(done) / minutes
}

// Report updates the tracker and redraws the progress line. It matches
// the fetcher's progress callback.
func (p *FetchProgress) Report(done, total int) {
	p.Update(done, total)
	write(stdout, true, fmt.Sprintf("\r%s %s", Green("[FETCHED]"), p.Bar()))
	if done >= total {
		write(stdout, true, "\n")
	}
}
