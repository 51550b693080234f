package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// notify-tail attaches to a provider's event stream and prints every frame,
// which is handy for watching bookings land during development.
func main() {
	log.SetFlags(log.LstdFlags)

	var (
		baseURL    = flag.String("api", "http://localhost:8080", "API base URL")
		providerID = flag.Int64("provider", 0, "provider id to follow (required)")
	)
	flag.Parse()

	if *providerID <= 0 {
		log.Fatal("-provider is required")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	url := fmt.Sprintf("%s/providers/%d/events", *baseURL, *providerID)
	log.Printf("tailing %s", url)

	for {
		if err := tail(rootCtx, url); err != nil {
			if rootCtx.Err() != nil {
				return
			}
			log.Printf("stream error: %v, reconnecting", err)
		}

		select {
		case <-rootCtx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func tail(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if event == "heartbeat" {
				continue
			}
			log.Printf("[%s] %s", event, strings.TrimPrefix(line, "data: "))
		}
	}

	return scanner.Err()
}
