package world

import (
	"context"
	"encoding/json"
	"time"

	"worldsim.in/internal/protocol"
)

// tickRecord accumulates what one step did, for the frame summary and
// the persistence sinks.
type tickRecord struct {
	trades        []protocol.Trade
	decisions     int
	climate       []ClimateNote
	migrations    int
	transfers     int
	breaches      int
	interventions int
	resolutions   int
}

// Run drives the simulation until ctx is canceled or MaxTicks is hit.
// World state is touched only from this goroutine.
func (w *World) Run(ctx context.Context) error {
	interval := time.Duration(w.tun.TickIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.running.Store(true)
	defer w.running.Store(false)
	defer close(w.done)

	var pending []protocol.Intervention

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case iv := <-w.interveneCh:
			pending = append(pending, iv)
		case req := <-w.obsJoin:
			w.observers[req.SessionID] = req.Out
			w.observerCount.Store(int64(len(w.observers)))
		case id := <-w.obsLeave:
			delete(w.observers, id)
			w.observerCount.Store(int64(len(w.observers)))
		case <-ticker.C:
			w.step(pending)
			pending = pending[:0]
			if mt := w.tun.MaxTicks; mt > 0 && w.tick.Load() >= mt {
				w.logf("loop: reached max ticks %d, stopping", mt)
				return nil
			}
		}
	}
}

// step runs one full tick. Interventions queued since the previous tick
// apply before the economy moves, so their crisis frame is the first one
// clients see.
func (w *World) step(pending []protocol.Intervention) {
	tick := w.tick.Add(1)
	rec := &tickRecord{}

	for _, iv := range pending {
		if w.applyIntervention(iv, rec) {
			w.appliedCount.Add(1)
		}
	}

	w.stepProduceConsume()
	w.stepPolicies()
	rec.transfers, rec.breaches = w.stepTreaties()
	w.stepReports()
	rec.climate = w.stepClimate()
	w.stepGovernors(rec)
	w.stepTradeMatching(rec)
	w.stepMigration(rec)
	if iv := w.tun.Assembly.IntervalTicks; iv > 0 && tick%uint64(iv) == 0 {
		w.stepAssembly(rec)
	}
	w.stepRewards()

	w.publish(tick, w.aggregateStats(), rec)
}

// stateViewLimit caps the log slices surfaced by the REST state endpoint.
const stateViewLimit = 20

func (w *World) publish(tick uint64, stats *protocol.Stats, rec *tickRecord) {
	summary := protocol.Summary{
		TradesCount:    len(rec.trades),
		Decisions:      rec.decisions,
		ClimateCount:   len(rec.climate),
		MigrationCount: rec.migrations,
	}

	frame := protocol.TickMsg{
		Type: protocol.TypeTick,
		Snapshot: protocol.Snapshot{
			Tick:             tick,
			Regions:          w.wireRegions(),
			Stats:            stats,
			Trades:           copyHead(w.trades, w.tun.Feed.TradesPerFrame),
			GovernorMessages: copyTail(w.messages, w.tun.Feed.MessagesPerFrame),
			ClimateEvents:    copyTail(w.climateEvents, w.tun.Feed.EventsPerFrame),
			Interventions:    copyTail(w.interventions, w.tun.Feed.EventsPerFrame),
			TickSummary:      summary,
		},
	}
	if b, err := json.Marshal(frame); err != nil {
		w.logf("loop: marshal frame: %v", err)
	} else {
		for _, out := range w.observers {
			sendLatest(out, b)
			w.frameCount.Add(1)
		}
	}

	w.latest.Store(&protocol.Snapshot{
		Tick:             tick,
		Regions:          w.wireRegions(),
		Stats:            stats,
		Trades:           copyHead(w.trades, stateViewLimit),
		GovernorMessages: copyTail(w.messages, stateViewLimit),
		ClimateEvents:    copyTail(w.climateEvents, stateViewLimit),
		Interventions:    copyTail(w.interventions, stateViewLimit),
		TickSummary:      summary,
	})

	if w.tickLogger != nil {
		entry := TickLogEntry{
			Tick:          tick,
			Stats:         *stats,
			Summary:       summary,
			Trades:        rec.trades,
			Climate:       rec.climate,
			Interventions: rec.interventions,
			Transfers:     rec.transfers,
			Breaches:      rec.breaches,
			Resolutions:   rec.resolutions,
		}
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.logf("loop: tick log: %v", err)
		}
	}

	if w.history != nil {
		w.history.RecordTick(HistoryRecord{
			Tick:    tick,
			Stats:   *stats,
			Summary: summary,
			Regions: w.regionMetrics(),
			Trades:  rec.trades,
			Climate: rec.climate,
		})
	}

	if w.snapshotSink != nil {
		if every := w.tun.SnapshotEveryTicks; every > 0 && tick%uint64(every) == 0 {
			select {
			case w.snapshotSink <- w.exportState():
			default:
				// Drop the snapshot if the writer is backed up.
			}
		}
	}
}

func (w *World) wireRegions() map[string]protocol.Region {
	out := make(map[string]protocol.Region, len(w.regions))
	for code, r := range w.regions {
		out[code] = r.wireRegion()
	}
	return out
}

func (w *World) regionMetrics() []RegionMetric {
	out := make([]RegionMetric, 0, len(StateCodes))
	for _, code := range StateCodes {
		r := w.regions[code]
		out = append(out, RegionMetric{
			Code:       code,
			Name:       r.Name,
			GDP:        r.GDP,
			Welfare:    r.Welfare,
			Trust:      r.Trust,
			Water:      r.Resources[protocol.ResWater],
			Energy:     r.Resources[protocol.ResEnergy],
			Food:       r.Resources[protocol.ResFood],
			Tech:       r.Resources[protocol.ResTech],
			Population: r.Population,
		})
	}
	return out
}

// copyHead returns an owned copy of at most n leading items.
func copyHead[T any](src []T, n int) []T {
	if n <= 0 || n > len(src) {
		n = len(src)
	}
	out := make([]T, n)
	copy(out, src[:n])
	return out
}

// copyTail returns an owned copy of at most n trailing items.
func copyTail[T any](src []T, n int) []T {
	if n <= 0 || n > len(src) {
		n = len(src)
	}
	out := make([]T, n)
	copy(out, src[len(src)-n:])
	return out
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
