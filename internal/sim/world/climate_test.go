package world

import (
	"math/rand"
	"testing"

	"worldsim.in/internal/protocol"
	"worldsim.in/internal/sim/tuning"
)

func findClimateDef(t *testing.T, id string) *climateEventDef {
	t.Helper()
	for i := range climateEventDefs {
		if climateEventDefs[i].id == id {
			return &climateEventDefs[i]
		}
	}
	t.Fatalf("unknown climate event %q", id)
	return nil
}

func notesOfKind(notes []ClimateNote, kind string) []ClimateNote {
	var out []ClimateNote
	for _, n := range notes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func TestStepClimateTriggersWhenForced(t *testing.T) {
	w := newTestWorld(t, func(tun *tuning.Tuning) {
		tun.Climate.EventProbability = 1
		tun.Climate.MinIntervalTicks = 0
	})
	before := make(map[string]map[string]int, len(StateCodes))
	for _, code := range StateCodes {
		before[code] = copyIntMap(w.regions[code].Resources)
	}
	w.tick.Store(1)

	notes := w.stepClimate()

	triggered := notesOfKind(notes, climateTriggered)
	if len(triggered) != 1 {
		t.Fatalf("triggered notes = %+v, want exactly one", notes)
	}
	def := findClimateDef(t, triggered[0].EventID)
	if triggered[0].Target != def.target {
		t.Fatalf("note target = %q, want %q", triggered[0].Target, def.target)
	}

	// Impact lands once, at trigger time.
	for res, frac := range def.impacts {
		was := before[def.target][res]
		want := was - int(float64(was)*frac)
		if got := w.regions[def.target].Resources[res]; got != want {
			t.Fatalf("%s %s = %d, want %d after impact", def.target, res, got, want)
		}
	}

	// The trigger tick counts against the duration.
	if left := w.climate.active[def.id]; left != def.duration-1 {
		t.Fatalf("remaining = %d, want %d", left, def.duration-1)
	}
	if w.climate.lastEventTick != 1 {
		t.Fatalf("lastEventTick = %d, want 1", w.climate.lastEventTick)
	}

	if len(w.climateEvents) != 1 {
		t.Fatalf("feed events = %d, want 1", len(w.climateEvents))
	}
	ev := w.climateEvents[0]
	if ev.Severity != protocol.SeverityDanger || ev.Tick != 1 {
		t.Fatalf("feed event = %+v", ev)
	}
}

func TestStepClimateRespectsMinInterval(t *testing.T) {
	w := newTestWorld(t, func(tun *tuning.Tuning) {
		tun.Climate.EventProbability = 1
		tun.Climate.MinIntervalTicks = 5
	})

	w.tick.Store(1)
	if got := notesOfKind(w.stepClimate(), climateTriggered); len(got) != 1 {
		t.Fatalf("first window: triggered = %+v, want one", got)
	}

	// Two ticks later the window is still closed.
	w.tick.Store(3)
	if got := notesOfKind(w.stepClimate(), climateTriggered); len(got) != 0 {
		t.Fatalf("closed window: triggered = %+v, want none", got)
	}

	// Five ticks after the last event it reopens.
	w.tick.Store(6)
	if got := notesOfKind(w.stepClimate(), climateTriggered); len(got) != 1 {
		t.Fatalf("reopened window: triggered = %+v, want one", got)
	}
	if len(w.climate.active) != 2 {
		t.Fatalf("active = %d, want 2 distinct events", len(w.climate.active))
	}
}

func TestStepClimateNoTriggerWhileAllActive(t *testing.T) {
	w := newTestWorld(t, func(tun *tuning.Tuning) {
		tun.Climate.EventProbability = 1
		tun.Climate.MinIntervalTicks = 0
	})
	for _, def := range climateEventDefs {
		w.climate.active[def.id] = 2
	}

	w.tick.Store(1)
	notes := w.stepClimate()
	if len(notes) != 0 {
		t.Fatalf("notes = %+v, want none (aging only)", notes)
	}
	for _, def := range climateEventDefs {
		if left := w.climate.active[def.id]; left != 1 {
			t.Fatalf("%s remaining = %d, want 1", def.id, left)
		}
	}

	// Next tick the whole set expires at once.
	w.tick.Store(2)
	notes = w.stepClimate()
	expired := notesOfKind(notes, climateExpired)
	if len(expired) != len(climateEventDefs) {
		t.Fatalf("expired = %d, want %d", len(expired), len(climateEventDefs))
	}
	if len(w.climate.active) != 0 {
		t.Fatalf("active = %+v, want drained", w.climate.active)
	}
}

func TestStepClimateDurationIncludesTriggerTick(t *testing.T) {
	w := newTestWorld(t, func(tun *tuning.Tuning) {
		tun.Climate.EventProbability = 1
		tun.Climate.MinIntervalTicks = 0
	})
	w.tick.Store(1)
	notes := w.stepClimate()
	triggered := notesOfKind(notes, climateTriggered)
	if len(triggered) != 1 {
		t.Fatalf("no trigger: %+v", notes)
	}
	def := findClimateDef(t, triggered[0].EventID)

	// Freeze further triggers and count ticks until expiry.
	w.tun.Climate.EventProbability = 0
	ticks := 1
	for i := 0; i < 32; i++ {
		w.tick.Store(uint64(2 + i))
		ticks++
		if len(notesOfKind(w.stepClimate(), climateExpired)) > 0 {
			break
		}
	}
	if ticks != def.duration {
		t.Fatalf("event lived %d ticks, want %d", ticks, def.duration)
	}
}

func TestSelectEventSkipsActive(t *testing.T) {
	ce := newClimateEngine(0)
	for _, def := range climateEventDefs {
		if def.id != "Kaveri_Dispute_KA_TN" {
			ce.active[def.id] = 5
		}
	}
	for seed := int64(0); seed < 10; seed++ {
		def := ce.selectEvent(rand.New(rand.NewSource(seed)))
		if def == nil || def.id != "Kaveri_Dispute_KA_TN" {
			t.Fatalf("seed %d picked %+v, want the only free event", seed, def)
		}
	}

	for _, def := range climateEventDefs {
		ce.active[def.id] = 5
	}
	if def := ce.selectEvent(rand.New(rand.NewSource(1))); def != nil {
		t.Fatalf("all active but picked %q", def.id)
	}
}

func TestAffectedRegions(t *testing.T) {
	ce := newClimateEngine(0)
	if got := ce.affectedRegions(); got != nil {
		t.Fatalf("idle engine affected = %v, want nil", got)
	}
	ce.active["Drought_RJ"] = 3
	ce.active["Cyclone_WB"] = 2
	got := ce.affectedRegions()
	if len(got) != 2 || !got["RJ"] || !got["WB"] {
		t.Fatalf("affected = %v, want RJ and WB", got)
	}
}

func TestApplyClimateImpact(t *testing.T) {
	w := newTestWorld(t, nil)
	up := w.regions["UP"]
	up.Resources[protocol.ResWater] = 1000
	up.Resources[protocol.ResEnergy] = 2000

	w.applyClimateImpact(findClimateDef(t, "Heatwave_UP"))

	if got := up.Resources[protocol.ResWater]; got != 750 {
		t.Fatalf("water = %d, want 750 after a 25%% cut", got)
	}
	if got := up.Resources[protocol.ResEnergy]; got != 1700 {
		t.Fatalf("energy = %d, want 1700 after a 15%% cut", got)
	}
}
