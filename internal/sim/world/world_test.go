package world

import (
	"context"
	"errors"
	"testing"
	"time"

	"worldsim.in/internal/protocol"
	"worldsim.in/internal/sim/tuning"
)

// newTestWorld builds a world on the default tuning with a fast tick, a
// fixed seed and a frozen clock so runs are reproducible.
func newTestWorld(t *testing.T, mutate func(*tuning.Tuning)) *World {
	t.Helper()
	tun := tuning.Defaults()
	tun.TickIntervalMS = 1
	if mutate != nil {
		mutate(&tun)
	}
	w := New(Config{Tuning: tun, Seed: 1})
	w.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return w
}

func runToCompletion(t *testing.T, w *World) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(context.Background()) }()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop at max ticks")
	}
}

func TestSeededWorldHasTenRegions(t *testing.T) {
	w := newTestWorld(t, nil)
	if len(w.regions) != len(StateCodes) {
		t.Fatalf("regions = %d, want %d", len(w.regions), len(StateCodes))
	}
	pb := w.regions["PB"]
	if pb == nil || pb.Name != "Punjab" {
		t.Fatalf("PB seed missing or wrong: %+v", pb)
	}
	if pb.Trust != 100 {
		t.Fatalf("seed trust = %v, want 100", pb.Trust)
	}
	if pb.Resources[protocol.ResFood] != 15000 {
		t.Fatalf("PB food = %d, want 15000", pb.Resources[protocol.ResFood])
	}
}

func TestSeedOverrides(t *testing.T) {
	pop := int64(30_000_000)
	gdp := 60.0
	w := newTestWorld(t, func(tun *tuning.Tuning) {
		tun.Regions = map[string]tuning.RegionOverride{
			"PB": {
				Population: &pop,
				GDP:        &gdp,
				Resources:  map[string]int{protocol.ResWater: 123},
			},
		}
	})
	pb := w.regions["PB"]
	if pb.Population != pop || pb.GDP != gdp {
		t.Fatalf("override not applied: pop=%d gdp=%v", pb.Population, pb.GDP)
	}
	if pb.Resources[protocol.ResWater] != 123 {
		t.Fatalf("water override = %d, want 123", pb.Resources[protocol.ResWater])
	}
	// Untouched fields keep seed values.
	if pb.Welfare != 72.0 {
		t.Fatalf("welfare = %v, want seed 72", pb.Welfare)
	}
}

func TestQueueInterventionBackpressure(t *testing.T) {
	w := newTestWorld(t, nil)
	for i := 0; i < interventionQueueCap; i++ {
		if _, err := w.QueueIntervention(protocol.Intervention{Action: protocol.ActStimulus}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if _, err := w.QueueIntervention(protocol.Intervention{Action: protocol.ActStimulus}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if got := w.InterventionsQueued(); got != interventionQueueCap {
		t.Fatalf("queued counter = %d, want %d", got, interventionQueueCap)
	}
}

func TestLatestSnapshotBeforeFirstTick(t *testing.T) {
	w := newTestWorld(t, nil)
	if _, ok := w.LatestSnapshot(); ok {
		t.Fatal("expected no snapshot before the first tick")
	}
}

func TestObserverJoinAfterLoopExit(t *testing.T) {
	w := newTestWorld(t, func(tun *tuning.Tuning) { tun.MaxTicks = 1 })
	runToCompletion(t, w)

	out := make(chan []byte, 1)
	if w.ObserverJoin(ObserverJoinRequest{SessionID: "late", Out: out}) {
		t.Fatal("join accepted after loop exit")
	}
	// Leave must not block either.
	w.ObserverLeave("late")
}

func TestRollingLogsAreClamped(t *testing.T) {
	w := newTestWorld(t, func(tun *tuning.Tuning) {
		tun.Feed.MessageLog = 3
		tun.Feed.EventLog = 2
	})
	for i := 0; i < 5; i++ {
		w.appendMessage(protocol.Message{Text: string(rune('a' + i))})
		w.appendClimateEvent(protocol.Event{Tick: uint64(i)})
		w.appendInterventionEvent(protocol.Event{Tick: uint64(i)})
	}
	if len(w.messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(w.messages))
	}
	if w.messages[0].Text != "c" || w.messages[2].Text != "e" {
		t.Fatalf("kept wrong tail: %+v", w.messages)
	}
	if len(w.climateEvents) != 2 || w.climateEvents[0].Tick != 3 {
		t.Fatalf("climate log tail wrong: %+v", w.climateEvents)
	}
	if len(w.interventions) != 2 || w.interventions[1].Tick != 4 {
		t.Fatalf("intervention log tail wrong: %+v", w.interventions)
	}
}
