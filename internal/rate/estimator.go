// Package rate turns cumulative byte counts into a transfer rate and a time-left estimate.
package rate

import (
	"math"
	"time"
)

// Unbounded is the time left reported when no progress is being made.
const Unbounded = time.Duration(math.MaxInt64)

// Calculate returns bytes per second between two samples, or 0 when elapsed <= 0.
func Calculate(currentBytes, previousBytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(currentBytes-previousBytes) / elapsed.Seconds()
}

// TimeLeft returns (totalBytes - downloadedBytes) / bytesPerSecond, or Unbounded
// when the rate is not positive or the total is not known yet.
func TimeLeft(totalBytes, downloadedBytes int64, bytesPerSecond float64) time.Duration {
	if bytesPerSecond <= 0 || totalBytes <= 0 {
		return Unbounded
	}
	remaining := totalBytes - downloadedBytes
	if remaining <= 0 {
		return 0
	}
	seconds := float64(remaining) / bytesPerSecond
	if seconds >= Unbounded.Seconds() {
		return Unbounded
	}
	return time.Duration(seconds * float64(time.Second))
}

// Estimator holds exactly one rolling sample. Feed it periodically rather than
// per chunk to avoid noisy spikes.
type Estimator struct {
	lastBytes int64
	lastTime  time.Time
}

func NewEstimator(bytes int64, at time.Time) *Estimator {
	return &Estimator{lastBytes: bytes, lastTime: at}
}

// Reset replaces the stored sample without producing a rate.
func (e *Estimator) Reset(bytes int64, at time.Time) {
	e.lastBytes = bytes
	e.lastTime = at
}

// Sample returns the rate since the previous sample and stores the new one.
// A clock that did not advance (or went backward) yields 0 and keeps the old sample.
func (e *Estimator) Sample(currentBytes int64, at time.Time) float64 {
	elapsed := at.Sub(e.lastTime)
	if elapsed <= 0 {
		return 0
	}
	speed := Calculate(currentBytes, e.lastBytes, elapsed)
	e.lastBytes = currentBytes
	e.lastTime = at
	return speed
}
