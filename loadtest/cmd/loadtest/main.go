// Package main is the entry point for the Harbor load test binary.
// It provides subcommands for different load testing scenarios:
//
//   - seed:     Issue auth tokens into Redis for the simulated users
//   - saturate: Connection saturation test — opens N idle connections
//   - rooms:    Room fanout test — R rooms of M members exchanging messages
//   - private:  Private channel test — user pairs exchanging 1:1 messages
//
// Usage:
//
//	loadtest <command> [options]
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "seed":
		runSeed(os.Args[2:])
	case "saturate":
		runSaturate(os.Args[2:])
	case "rooms":
		runRooms(os.Args[2:])
	case "private":
		runPrivate(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: loadtest <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  seed        Issue auth tokens into Redis for the simulated users")
	fmt.Println("  saturate    Connection saturation test — opens N idle connections")
	fmt.Println("  rooms       Room fanout test — R rooms of M members exchanging messages")
	fmt.Println("  private     Private channel test — user pairs exchanging 1:1 messages")
	fmt.Println()
	fmt.Println("Run 'loadtest <command> -h' for command-specific options.")
	fmt.Println()
	fmt.Println("Simulated users authenticate with tokens named <prefix>-<n>; run seed")
	fmt.Println("first so the server can resolve them.")
}
