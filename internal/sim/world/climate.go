package world

import (
	"fmt"
	"math/rand"

	"worldsim.in/internal/protocol"
)

// climateEventDef is a static row of the shock table. Impacts are
// fractional cuts applied once, at trigger time.
type climateEventDef struct {
	id       string
	weight   float64
	target   string
	duration int
	impacts  map[string]float64
}

var climateEventDefs = []climateEventDef{
	{"Drought_RJ", 0.20, "RJ", 10, map[string]float64{protocol.ResWater: 0.50}},
	{"Cyclone_WB", 0.15, "WB", 8, map[string]float64{protocol.ResFood: 0.30}},
	{"Flood_BR", 0.18, "BR", 6, map[string]float64{protocol.ResFood: 0.40}},
	{"Heatwave_UP", 0.15, "UP", 5, map[string]float64{protocol.ResWater: 0.25, protocol.ResEnergy: 0.15}},
	{"Monsoon_Failure_TN", 0.15, "TN", 12, map[string]float64{protocol.ResWater: 0.45}},
	{"Industrial_Accident_GJ", 0.10, "GJ", 7, map[string]float64{protocol.ResEnergy: 0.20}},
	{"Kaveri_Dispute_KA_TN", 0.07, "KA", 15, map[string]float64{protocol.ResWater: 0.15}},
}

// ClimateNote records one climate engine transition for the tick log and
// the history DB.
type ClimateNote struct {
	EventID string `json:"event_id"`
	Target  string `json:"target"`
	Kind    string `json:"kind"` // TRIGGERED or EXPIRED
}

const (
	climateTriggered = "TRIGGERED"
	climateExpired   = "EXPIRED"
)

// climateEngine drives weighted regional shocks. State is owned by the
// world loop.
type climateEngine struct {
	// lastEventTick starts below zero so an event can land on tick 0.
	lastEventTick int64
	active        map[string]int // event id -> ticks remaining
}

func newClimateEngine(minInterval int) *climateEngine {
	return &climateEngine{
		lastEventTick: -int64(minInterval),
		active:        make(map[string]int),
	}
}

// affectedRegions is the set of states under an active event.
func (ce *climateEngine) affectedRegions() map[string]bool {
	if len(ce.active) == 0 {
		return nil
	}
	out := make(map[string]bool, len(ce.active))
	for _, def := range climateEventDefs {
		if _, on := ce.active[def.id]; on {
			out[def.target] = true
		}
	}
	return out
}

// selectEvent picks a weighted random event among those not already
// active. Returns nil when everything is active.
func (ce *climateEngine) selectEvent(rng *rand.Rand) *climateEventDef {
	var total float64
	for i := range climateEventDefs {
		if _, on := ce.active[climateEventDefs[i].id]; !on {
			total += climateEventDefs[i].weight
		}
	}
	if total <= 0 {
		return nil
	}

	roll := rng.Float64() * total
	var last *climateEventDef
	for i := range climateEventDefs {
		def := &climateEventDefs[i]
		if _, on := ce.active[def.id]; on {
			continue
		}
		last = def
		if roll < def.weight {
			return def
		}
		roll -= def.weight
	}
	// Rounding can leave a sliver of roll; it belongs to the tail.
	return last
}

// stepClimate runs one tick of the shock engine: maybe trigger a new
// event, then age the active set. Trigger impacts are applied here.
func (w *World) stepClimate() []ClimateNote {
	var notes []ClimateNote
	ce := w.climate
	tick := int64(w.tick.Load())

	if tick-ce.lastEventTick >= int64(w.tun.Climate.MinIntervalTicks) &&
		w.rng.Float64() < w.tun.Climate.EventProbability {
		if def := ce.selectEvent(w.rng); def != nil {
			w.applyClimateImpact(def)
			ce.active[def.id] = def.duration
			ce.lastEventTick = tick
			notes = append(notes, ClimateNote{EventID: def.id, Target: def.target, Kind: climateTriggered})
			w.appendClimateEvent(protocol.Event{
				Severity:  protocol.SeverityDanger,
				Text:      fmt.Sprintf("Climate: %s hit %s!", def.id, def.target),
				Tick:      w.tick.Load(),
				Timestamp: w.now(),
			})
			w.logf("climate: %s hit %s for %d ticks", def.id, def.target, def.duration)
		}
	}

	// Age the active set; a fresh trigger burns its first tick here.
	for _, def := range climateEventDefs {
		left, ok := ce.active[def.id]
		if !ok {
			continue
		}
		left--
		if left <= 0 {
			delete(ce.active, def.id)
			notes = append(notes, ClimateNote{EventID: def.id, Target: def.target, Kind: climateExpired})
			w.logf("climate: %s ended", def.id)
			continue
		}
		ce.active[def.id] = left
	}
	return notes
}

func (w *World) applyClimateImpact(def *climateEventDef) {
	r := w.regions[def.target]
	if r == nil {
		return
	}
	for _, res := range protocol.ResourceNames {
		frac, ok := def.impacts[res]
		if !ok {
			continue
		}
		cur := r.Resources[res]
		r.setResource(res, cur-int(float64(cur)*frac))
	}
}
