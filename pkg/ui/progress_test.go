package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFetchProgressBar(t *testing.T) {
	p := NewFetchProgress()
	assert.Equal(t, "[░░░░░░░░░░░░░░░░░░░░] 0/0", p.Bar())

	p.Update(5, 10)
	assert.Equal(t, "[██████████░░░░░░░░░░] 5/10", p.Bar())

	// late callbacks from slower workers do not move it back
	p.Update(3, 10)
	done, total := p.Counts()
	assert.Equal(t, 5, done)
	assert.Equal(t, 10, total)
}

func TestFetchProgressRate(t *testing.T) {
	p := NewFetchProgress()
	start := p.startTime
	p.now = func() time.Time { return start.Add(2 * time.Minute) }

	p.Update(30, 40)
	assert.Equal(t, 2*time.Minute, p.Elapsed())
	assert.InDelta(t, 15.0, p.Rate(), 0.001)
}

func TestFetchProgressReport(t *testing.T) {
	stdout, _ := capture(t)
	p := NewFetchProgress()

	p.Report(1, 2)
	p.Report(2, 2)
	assert.Equal(t,
		"\r[FETCHED] [██████████░░░░░░░░░░] 1/2\r[FETCHED] [████████████████████] 2/2\n",
		stdout.String())
}

func TestFetchProgressQuiet(t *testing.T) {
	stdout, _ := capture(t)
	SetQuietMode(true)

	NewFetchProgress().Report(1, 1)
	assert.Empty(t, stdout.String())
}
