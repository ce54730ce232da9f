package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// runSeed issues auth tokens for the simulated users directly into Redis,
// using the same auth:token:<token> key scheme the server resolves during the
// WebSocket upgrade. Token and username are both <prefix>-<n>, so every other
// subcommand can derive its credentials from the prefix and a counter.
func runSeed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	redisAddr := fs.String("redis", "localhost:6379", "Redis address")
	count := fs.Int("count", 2000, "Number of tokens to issue")
	prefix := fs.String("prefix", "loadtest", "Token/username prefix")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token TTL")
	fs.Parse(args)

	client := redis.NewClient(&redis.Options{Addr: *redisAddr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "redis unreachable at %s: %v\n", *redisAddr, err)
		os.Exit(1)
	}

	pipe := client.Pipeline()
	for i := 0; i < *count; i++ {
		name := fmt.Sprintf("%s-%d", *prefix, i)
		pipe.Set(ctx, "auth:token:"+name, name, *ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Issued %d tokens (%s-0 .. %s-%d, ttl %s)\n",
		*count, *prefix, *prefix, *count-1, *ttl)
}
