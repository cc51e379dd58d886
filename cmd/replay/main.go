// Command replay prints the contents of compressed tick logs.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	persistlog "worldsim.in/internal/persistence/log"
	"worldsim.in/internal/sim/world"
)

func main() {
	var (
		path     = flag.String("path", "", "tick log file or directory of ticks-*.jsonl.zst")
		fromTick = flag.Uint64("from_tick", 0, "start printing at tick (inclusive, optional)")
		toTick   = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		quiet    = flag.Bool("quiet", false, "suppress per-tick lines, print totals only")
	)
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "missing -path")
		os.Exit(2)
	}

	r, err := persistlog.OpenReader(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer r.Close()

	var (
		ticks               uint64
		firstTick, lastTick uint64
		trades, climate     int
		interventions       int
		transfers, breaches int
		resolutions         int
	)
	for {
		var entry world.TickLogEntry
		if err := r.Next(&entry); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		if entry.Tick < *fromTick {
			continue
		}
		if *toTick != 0 && entry.Tick > *toTick {
			break
		}

		if ticks == 0 {
			firstTick = entry.Tick
		}
		lastTick = entry.Tick
		ticks++
		trades += entry.Summary.TradesCount
		climate += entry.Summary.ClimateCount
		interventions += entry.Interventions
		transfers += entry.Transfers
		breaches += entry.Breaches
		resolutions += entry.Resolutions

		if !*quiet {
			printEntry(&entry)
		}
	}

	if ticks == 0 {
		fmt.Println("no ticks in range")
		return
	}
	fmt.Printf("%d ticks (%d..%d): trades=%d climate=%d interventions=%d transfers=%d breaches=%d resolutions=%d\n",
		ticks, firstTick, lastTick, trades, climate, interventions, transfers, breaches, resolutions)
}

func printEntry(e *world.TickLogEntry) {
	fmt.Printf("tick %d | gdp %.2f (mean %.2f, gini %.3f) | welfare %.1f | trades %d climate %d migrations %d",
		e.Tick, e.Stats.TotalGDP, e.Stats.MeanGDP, e.Stats.Gini, e.Stats.AvgWelfare,
		e.Summary.TradesCount, e.Summary.ClimateCount, e.Summary.MigrationCount)
	if e.Interventions > 0 {
		fmt.Printf(" | interventions %d", e.Interventions)
	}
	if e.Transfers > 0 || e.Breaches > 0 {
		fmt.Printf(" | treaty transfers %d breaches %d", e.Transfers, e.Breaches)
	}
	if e.Resolutions > 0 {
		fmt.Printf(" | resolutions %d", e.Resolutions)
	}
	fmt.Println()

	for _, tr := range e.Trades {
		fmt.Printf("  trade %s -> %s offering %v requesting %v\n", tr.From, tr.To, tr.Offering, tr.Requesting)
	}
	for _, c := range e.Climate {
		fmt.Printf("  climate %s %s (%s)\n", c.Kind, c.EventID, c.Target)
	}
}
