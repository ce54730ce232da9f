// Package stats collects client-side measurements (connect and message
// round-trip latencies, errors) across all load test goroutines and prints a
// percentile summary, optionally alongside the hub's own Prometheus metrics.
package stats

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Collector aggregates measurements from concurrent load test clients. All
// methods are safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	connectNs []time.Duration
	msgNs     []time.Duration
	errors    int
	conns     int
	start     time.Time
	scraper   *Scraper
}

// NewCollector returns a Collector whose run clock starts now.
func NewCollector() *Collector {
	return &Collector{start: time.Now()}
}

// SetScraper attaches a hub metrics scraper; Report then appends the
// server-side view to the client-side one.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// AddConnect records one successful connection and its connect latency.
func (c *Collector) AddConnect(d time.Duration) {
	c.mu.Lock()
	c.connectNs = append(c.connectNs, d)
	c.conns++
	c.mu.Unlock()
}

// AddMsgLatency records one message round-trip latency sample.
func (c *Collector) AddMsgLatency(d time.Duration) {
	c.mu.Lock()
	c.msgNs = append(c.msgNs, d)
	c.mu.Unlock()
}

// AddError counts one failed operation.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// ConnectionCount returns how many connections have been recorded so far.
func (c *Collector) ConnectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns
}

// ErrorCount returns how many errors have been recorded so far.
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Report prints the run summary: duration, connection and error counts,
// latency percentiles, and the scraped hub metrics when a scraper is
// attached.
func (c *Collector) Report() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.start)

	fmt.Println("\n=== Load Test Results ===")
	fmt.Printf("Duration:     %s\n", elapsed.Round(time.Second))
	fmt.Printf("Connections:  %d\n", c.conns)
	fmt.Printf("Errors:       %d\n", c.errors)

	if c.conns > 0 {
		fmt.Printf("Error rate:   %.2f%%\n", float64(c.errors)/float64(c.conns)*100)
	}

	if len(c.connectNs) > 0 {
		fmt.Println("\n--- Connect Latency ---")
		printPercentiles(c.connectNs)
	}

	if len(c.msgNs) > 0 {
		fmt.Println("\n--- Message Latency ---")
		printPercentiles(c.msgNs)
	}

	if c.scraper != nil {
		c.scraper.Report()
	}

	fmt.Println()
}

// printPercentiles sorts the samples in place and prints avg, p50, p95, p99,
// and max.
func printPercentiles(samples []time.Duration) {
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	n := len(samples)
	p50 := samples[n/2]
	p95 := samples[int(math.Ceil(float64(n)*0.95))-1]
	p99 := samples[int(math.Ceil(float64(n)*0.99))-1]

	var sum time.Duration
	for _, d := range samples {
		sum += d
	}
	avg := sum / time.Duration(n)

	fmt.Printf("  avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)\n",
		avg.Round(time.Microsecond),
		p50.Round(time.Microsecond),
		p95.Round(time.Microsecond),
		p99.Round(time.Microsecond),
		samples[n-1].Round(time.Microsecond),
		n,
	)
}
