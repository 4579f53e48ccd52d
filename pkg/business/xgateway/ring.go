package xgateway

import (
	"sync"
	"time"
)

// latencySamples is the rolling window size for latency averaging.
const latencySamples = 100

// latencyRing is a bounded ring buffer of recent call latencies.
type latencyRing struct {
	mu      sync.Mutex
	samples [latencySamples]time.Duration
	next    int
	filled  int
}

func (r *latencyRing) add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.next] = d
	r.next = (r.next + 1) % latencySamples
	if r.filled < latencySamples {
		r.filled++
	}
}

// average returns the mean of the recorded samples, zero when empty.
func (r *latencyRing) average() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filled == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < r.filled; i++ {
		sum += r.samples[i]
	}
	return sum / time.Duration(r.filled)
}
