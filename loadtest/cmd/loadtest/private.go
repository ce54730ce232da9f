package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/harborchat/harbor/loadtest/client"
	"github.com/harborchat/harbor/loadtest/stats"
)

// runPrivate implements the private channel load test. Each simulated pair
// connects with the other's username as the peer parameter, so both sessions
// resolve to the same two-party channel, then exchanges private messages for
// the test duration. There is no room involved, which isolates the private
// fanout path and the channel-key resolution.
func runPrivate(args []string) {
	fs := flag.NewFlagSet("private", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	pairs := fs.Int("pairs", 100, "Number of user pairs")
	duration := fs.Duration("duration", 30*time.Second, "How long each pair chats")
	msgInterval := fs.Duration("msg-interval", 2*time.Second, "Interval between messages per user")
	msgSize := fs.Int("msg-size", 128, "Size of each message payload in bytes")
	concurrency := fs.Int("concurrency", 50, "Maximum simultaneous connection attempts")
	prefix := fs.String("prefix", "loadtest", "Token/username prefix (see the seed command)")
	metricsURL := fs.String("metrics-url", "http://localhost:9100/metrics", "Prometheus metrics endpoint URL")
	scrapeInterval := fs.Duration("scrape-interval", 2*time.Second, "Interval between metrics scrapes")
	fs.Parse(args)

	fmt.Printf("Private test: %d pairs (%d clients) to %s (duration=%s, interval=%s, msg-size=%d)\n",
		*pairs, *pairs*2, *url, *duration, *msgInterval, *msgSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	scraper := stats.NewScraper(*metricsURL, *scrapeInterval)
	collector.SetScraper(scraper)
	scraper.Start(ctx)

	var allMu sync.Mutex
	var all []*client.Client

	var totalSent, totalRecv atomic.Int64

	msgPayload := strings.Repeat("abcdefgh", (*msgSize/8)+1)
	msgPayload = msgPayload[:*msgSize]

	// -----------------------------------------------------------------------
	// Connect and chat, one goroutine per pair
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Running pairs ---")

	sem := make(chan struct{}, *concurrency)
	var pairWg sync.WaitGroup
	var readyPairs atomic.Int64

	progressStop := make(chan struct{})
	var progressWg sync.WaitGroup
	progressWg.Add(1)
	go func() {
		defer progressWg.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fmt.Printf("  [private] pairs: %d/%d  sent: %d  recv: %d  errors: %d\n",
					readyPairs.Load(), *pairs, totalSent.Load(), totalRecv.Load(), collector.ErrorCount())
			case <-progressStop:
				return
			}
		}
	}()

	start := time.Now()

	for p := 0; p < *pairs; p++ {
		p := p
		pairWg.Add(1)
		sem <- struct{}{}
		go func() {
			defer pairWg.Done()
			defer func() { <-sem }()

			userA := fmt.Sprintf("%s-%d", *prefix, p*2)
			userB := fmt.Sprintf("%s-%d", *prefix, p*2+1)

			connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()

			a, err := client.New(connCtx, *url, client.Options{Token: userA, Peer: userB})
			if err != nil {
				collector.AddError()
				return
			}
			b, err := client.New(connCtx, *url, client.Options{Token: userB, Peer: userA})
			if err != nil {
				collector.AddError()
				a.Close()
				return
			}
			if err := a.WaitForConnected(connCtx); err != nil {
				collector.AddError()
				a.Close()
				b.Close()
				return
			}
			if err := b.WaitForConnected(connCtx); err != nil {
				collector.AddError()
				a.Close()
				b.Close()
				return
			}
			collector.AddConnect(a.GetMetrics().ConnectLatency)
			collector.AddConnect(b.GetMetrics().ConnectLatency)

			allMu.Lock()
			all = append(all, a, b)
			allMu.Unlock()
			readyPairs.Add(1)

			chatCtx, chatCancel := context.WithTimeout(ctx, *duration)
			defer chatCancel()

			var chatWg sync.WaitGroup
			for _, end := range []*client.Client{a, b} {
				end := end
				var lastSend atomic.Int64
				end.On(client.TypePrivateMessage, func(raw json.RawMessage) {
					var msg struct {
						From string `json:"from"`
					}
					_ = json.Unmarshal(raw, &msg)
					if msg.From == end.User() {
						return // own echo, not a delivery to measure
					}
					totalRecv.Add(1)
					if ts := lastSend.Load(); ts > 0 {
						collector.AddMsgLatency(time.Since(time.Unix(0, ts)))
					}
				})

				chatWg.Add(1)
				go func() {
					defer chatWg.Done()
					ticker := time.NewTicker(*msgInterval)
					defer ticker.Stop()
					for {
						select {
						case <-chatCtx.Done():
							return
						case <-ticker.C:
							lastSend.Store(time.Now().UnixNano())
							if err := end.Send(map[string]string{
								"type": client.TypePrivateMessage,
								"body": msgPayload,
							}); err != nil {
								collector.AddError()
								return
							}
							totalSent.Add(1)
						}
					}
				}()
			}
			chatWg.Wait()
		}()
	}

	pairWg.Wait()
	close(progressStop)
	progressWg.Wait()
	elapsed := time.Since(start)

	// -----------------------------------------------------------------------
	// Final report
	// -----------------------------------------------------------------------
	fmt.Printf("\n--- Private Channel Results ---\n")
	fmt.Printf("Pairs ready:    %d / %d\n", readyPairs.Load(), *pairs)
	fmt.Printf("Total msg sent: %d\n", totalSent.Load())
	fmt.Printf("Total msg recv: %d\n", totalRecv.Load())
	if elapsed.Seconds() > 0 && totalSent.Load() > 0 {
		fmt.Printf("Send rate:      %.1f msg/s\n", float64(totalSent.Load())/elapsed.Seconds())
	}

	cleanup(all, &allMu)
	scraper.Stop()
	collector.Report()
}
