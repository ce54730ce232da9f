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

// roomGroup tracks one room's clients during the fanout test.
type roomGroup struct {
	code    string
	members []*client.Client
}

// runRooms implements the room fanout load test. It creates R rooms, fills
// each with M members, and has every member send room messages on an interval
// for the test duration. Each message is fanned out to all M members, so the
// server-side delivery rate is R*M*M/interval — this is the scenario that
// stresses the registry, the bus, and the per-connection write path together.
func runRooms(args []string) {
	fs := flag.NewFlagSet("rooms", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	roomCount := fs.Int("rooms", 50, "Number of rooms to create")
	members := fs.Int("members", 4, "Members per room (including the creator)")
	duration := fs.Duration("duration", 30*time.Second, "How long members keep chatting")
	msgInterval := fs.Duration("msg-interval", 2*time.Second, "Interval between messages per member")
	msgSize := fs.Int("msg-size", 128, "Size of each message payload in bytes")
	concurrency := fs.Int("concurrency", 50, "Maximum simultaneous connection attempts")
	prefix := fs.String("prefix", "loadtest", "Token/username prefix (see the seed command)")
	metricsURL := fs.String("metrics-url", "http://localhost:9100/metrics", "Prometheus metrics endpoint URL")
	scrapeInterval := fs.Duration("scrape-interval", 2*time.Second, "Interval between metrics scrapes")
	fs.Parse(args)

	totalClients := *roomCount * *members
	fmt.Printf("Rooms test: %d rooms x %d members (%d clients) to %s (duration=%s, interval=%s, msg-size=%d)\n",
		*roomCount, *members, totalClients, *url, *duration, *msgInterval, *msgSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	scraper := stats.NewScraper(*metricsURL, *scrapeInterval)
	collector.SetScraper(scraper)
	scraper.Start(ctx)

	var allMu sync.Mutex
	var all []*client.Client

	// -----------------------------------------------------------------------
	// Phase 1 — Create rooms and fill them
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Phase 1: Create and fill rooms ---")

	sem := make(chan struct{}, *concurrency)
	groups := make([]roomGroup, *roomCount)
	var groupWg sync.WaitGroup

	for r := 0; r < *roomCount; r++ {
		r := r
		groupWg.Add(1)
		sem <- struct{}{}
		go func() {
			defer groupWg.Done()
			defer func() { <-sem }()

			connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()

			// The first member of each group creates the room; the rest join
			// the code it was assigned.
			base := r * *members
			creatorToken := fmt.Sprintf("%s-%d", *prefix, base)
			creator, err := client.New(connCtx, *url, client.Options{
				Token:  creatorToken,
				Action: "create",
			})
			if err != nil {
				collector.AddError()
				return
			}
			if err := creator.WaitForConnected(connCtx); err != nil {
				collector.AddError()
				creator.Close()
				return
			}
			collector.AddConnect(creator.GetMetrics().ConnectLatency)

			code := creator.Room()
			if code == "" {
				collector.AddError()
				creator.Close()
				return
			}

			group := roomGroup{code: code, members: []*client.Client{creator}}
			for m := 1; m < *members; m++ {
				token := fmt.Sprintf("%s-%d", *prefix, base+m)
				joiner, err := client.New(connCtx, *url, client.Options{
					Token:  token,
					Action: "join",
					Room:   code,
				})
				if err != nil {
					collector.AddError()
					continue
				}
				if err := joiner.WaitForConnected(connCtx); err != nil {
					collector.AddError()
					joiner.Close()
					continue
				}
				collector.AddConnect(joiner.GetMetrics().ConnectLatency)
				group.members = append(group.members, joiner)
			}
			groups[r] = group

			allMu.Lock()
			all = append(all, group.members...)
			allMu.Unlock()
		}()
	}

	groupWg.Wait()

	readyRooms := 0
	for _, g := range groups {
		if g.code != "" {
			readyRooms++
		}
	}
	fmt.Printf("\nPhase 1 complete: %d/%d rooms ready, %d connections (%d errors)\n",
		readyRooms, *roomCount, collector.ConnectionCount(), collector.ErrorCount())

	if readyRooms == 0 || ctx.Err() != nil {
		cleanup(all, &allMu)
		scraper.Stop()
		collector.Report()
		return
	}

	// -----------------------------------------------------------------------
	// Phase 2 — Exchange messages
	// -----------------------------------------------------------------------
	fmt.Printf("\n--- Phase 2: Chatting for %s ---\n", *duration)

	var totalSent, totalRecv atomic.Int64

	msgPayload := strings.Repeat("abcdefgh", (*msgSize/8)+1)
	msgPayload = msgPayload[:*msgSize]

	chatCtx, chatCancel := context.WithTimeout(ctx, *duration)
	defer chatCancel()

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
				fmt.Printf("  [chat] sent: %d  recv: %d  errors: %d\n",
					totalSent.Load(), totalRecv.Load(), collector.ErrorCount())
			case <-progressStop:
				return
			}
		}
	}()

	chatStart := time.Now()
	var chatWg sync.WaitGroup

	for _, g := range groups {
		if g.code == "" {
			continue
		}
		for _, member := range g.members {
			member := member

			// Latency measured from this member's last send to its next
			// incoming room message; an approximation good enough to spot
			// fanout backlog under load.
			var lastSend atomic.Int64
			member.On(client.TypeRoomMessage, func(raw json.RawMessage) {
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
						if err := member.Send(map[string]string{
							"type": client.TypeRoomMessage,
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
	}

	chatWg.Wait()
	close(progressStop)
	progressWg.Wait()
	chatElapsed := time.Since(chatStart)

	// -----------------------------------------------------------------------
	// Final report
	// -----------------------------------------------------------------------
	fmt.Printf("\n--- Room Fanout Results ---\n")
	fmt.Printf("Rooms:          %d\n", readyRooms)
	fmt.Printf("Total msg sent: %d\n", totalSent.Load())
	fmt.Printf("Total msg recv: %d\n", totalRecv.Load())
	if chatElapsed.Seconds() > 0 && totalSent.Load() > 0 {
		fmt.Printf("Send rate:      %.1f msg/s\n", float64(totalSent.Load())/chatElapsed.Seconds())
		fmt.Printf("Delivery rate:  %.1f msg/s\n", float64(totalRecv.Load())/chatElapsed.Seconds())
	}

	cleanup(all, &allMu)
	scraper.Stop()
	collector.Report()
}
