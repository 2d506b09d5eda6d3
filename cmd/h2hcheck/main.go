package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	appcfg "github.com/park285/h2h-ledger/internal/config"
	"github.com/park285/h2h-ledger/internal/remote"
	"github.com/park285/h2h-ledger/internal/stats"
)

func main() {
	watch := flag.Duration("watch", 10*time.Second, "how long to observe the feed")
	flag.Parse()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	client := remote.NewClient(cfg.APIBaseURL,
		remote.WithTimeout(cfg.RequestTimeout),
		remote.WithRetry(1),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	list, err := client.Players(ctx)
	if err != nil {
		log.Printf("/players error: %v", err)
	} else {
		pair := stats.FromList(list, cfg.PlayerOne, cfg.PlayerTwo)
		log.Printf("/players ok in %s: %d record(s), %s=%d matches, %s=%d matches",
			time.Since(start).Round(time.Millisecond), len(list),
			pair.P1.Name, pair.P1.Stats.TotalMatches, pair.P2.Name, pair.P2.Stats.TotalMatches)
		if err := pair.Validate(); err != nil {
			log.Printf("invariant violation: %v", err)
		}
	}

	if cfg.FeedURL == "" {
		log.Println("H2H_FEED_URL not set; skipping feed check")
		return
	}

	feed := remote.NewFeed(cfg.FeedURL, 0, nil)
	feed.OnStateChange(func(state remote.FeedState) {
		log.Printf("feed state: %s", state)
	})
	feed.OnMessage(func(msg *remote.FeedMessage) {
		fmt.Printf("feed msg type=%s players=%d\n", msg.Type, len(msg.Players))
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := feed.Connect(cctx); err != nil {
		log.Printf("feed connect error: %v", err)
		return
	}

	t := time.NewTimer(*watch)
	<-t.C

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCancel()
	_ = feed.Close(closeCtx)
}
