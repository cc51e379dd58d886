// Command watch tails the simulation feed and prints one line per tick.
// With -intervene it instead sends a single federal action and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"worldsim.in/internal/feed"
	"worldsim.in/internal/protocol"
)

type envConfig struct {
	FeedURL string `env:"WORLDSIM_FEED_URL" envDefault:"ws://localhost:8000/ws"`
	APIURL  string `env:"WORLDSIM_API_URL"  envDefault:"http://localhost:8000"`
}

func main() {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		log.Fatalf("watch: parse env: %v", err)
	}

	var (
		feedURL   = flag.String("url", ec.FeedURL, "feed websocket url")
		apiURL    = flag.String("api", ec.APIURL, "rest api base url")
		ticks     = flag.Uint64("ticks", 0, "exit after N tick frames (0 = run until interrupted)")
		intervene = flag.String("intervene", "", "send one action[:target] and exit, e.g. stimulus:PB")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)

	if *intervene != "" {
		if err := sendIntervention(logger, *apiURL, *intervene); err != nil {
			logger.Fatalf("%v", err)
		}
		return
	}

	session := feed.Dial(feed.Config{URL: *feedURL, Logger: logger})
	defer session.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// The store generation bumps on every applied frame; poll it rather
	// than hooking the session internals.
	var (
		lastGen uint64
		printed uint64
	)
	poll := time.NewTicker(150 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-stop:
			logger.Printf("interrupted after %d ticks", printed)
			return
		case <-poll.C:
		}

		gen := session.Store().Generation()
		if gen == lastGen {
			continue
		}
		lastGen = gen

		snap, ok := session.Store().Latest()
		if !ok {
			continue
		}
		printTick(logger, snap)
		printed++
		if *ticks > 0 && printed >= *ticks {
			return
		}
	}
}

func printTick(logger *log.Logger, snap *protocol.Snapshot) {
	st := snap.Stats
	if st == nil {
		logger.Printf("tick %d | %d states", snap.Tick, len(snap.Regions))
		return
	}
	logger.Printf("tick %d | gdp %.2f (mean %.2f, gini %.3f) | top %s %.1f | trades %d decisions %d climate %d migrations %d",
		snap.Tick, st.TotalGDP, st.MeanGDP, st.Gini,
		st.HighestGDP.Code, st.HighestGDP.GDP,
		snap.TickSummary.TradesCount, snap.TickSummary.Decisions,
		snap.TickSummary.ClimateCount, snap.TickSummary.MigrationCount)
}

func sendIntervention(logger *log.Logger, apiURL, arg string) error {
	action, target, _ := strings.Cut(arg, ":")
	if !protocol.KnownAction(action) {
		return fmt.Errorf("unknown action %q", action)
	}
	iv := protocol.Intervention{Action: action, Target: target}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	feed.NewDispatcher(nil, apiURL, logger).Dispatch(ctx, iv)
	logger.Printf("dispatched %s", arg)
	return nil
}
