package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/john/chatsift/internal/kick"
)

func main() {
	browser := flag.Bool("browser", false, "Resolve with headless Chrome instead of the API endpoint")
	flag.Parse()

	channels := flag.Args()
	if len(channels) == 0 {
		fmt.Println("Usage: resolve-kick-rooms [--browser] <channel1> [channel2] ...")
		fmt.Println("\nExample:")
		fmt.Println("  resolve-kick-rooms paymoneywubby xqc")
		os.Exit(1)
	}

	var resolver kick.RoomResolver = kick.NewAPIResolver()
	if *browser {
		resolver = kick.NewBrowserResolver()
	}

	fmt.Printf("Resolving %d Kick channel(s)...\n\n", len(channels))

	results := make(map[string]int)
	failures := make(map[string]string)

	for _, channel := range channels {
		id, slug, err := resolver.Resolve(context.Background(), channel)
		if err != nil {
			failures[channel] = err.Error()
			continue
		}
		results[slug] = id
	}

	if len(results) > 0 {
		fmt.Println("✓ Successfully resolved:")
		fmt.Println("---")
		for slug, id := range results {
			fmt.Printf("%s: %d\n", slug, id)
		}
		fmt.Println()
	}

	if len(failures) > 0 {
		fmt.Println("✗ Failed to resolve:")
		fmt.Println("---")
		for channel, msg := range failures {
			fmt.Printf("%s: %s\n", channel, msg)
		}
		fmt.Println()
	}

	if len(results) > 0 {
		fmt.Println("Add this to your config.yaml (one chatroom id per agent):")
		fmt.Println("---")
		for slug, id := range results {
			fmt.Println("kick:")
			fmt.Printf("  chatroom_id: %d  # %s\n", id, slug)
		}
	}

	if len(failures) > 0 {
		os.Exit(1)
	}
}
