package world

import (
	"fmt"

	"worldsim.in/internal/persistence/snapshot"
	"worldsim.in/internal/protocol"
)

// exportState captures the full engine state. Loop-goroutine only.
func (w *World) exportState() snapshot.StateV1 {
	st := snapshot.StateV1{
		Header:          snapshot.NewHeader(w.tick.Load(), w.now()),
		Seed:            w.seed,
		TreatySeq:       w.treatySeq,
		TreatiesExpired: w.treatiesExpired,
		Climate:         snapshot.ClimateV1{LastEventTick: w.climate.lastEventTick},
		Parliament:      snapshot.ParliamentV1{Meetings: w.parliament.meetings},
	}

	for _, code := range StateCodes {
		r := w.regions[code]
		st.Regions = append(st.Regions, snapshot.RegionV1{
			Code:        r.Code,
			Name:        r.Name,
			Resources:   copyIntMap(r.Resources),
			Generation:  copyIntMap(r.Generation),
			Consumption: copyIntMap(r.Consumption),
			Population:  r.Population,
			GDP:         r.GDP,
			Welfare:     r.Welfare,
			Trust:       r.Trust,
			Workforce:   r.Workforce,
			Unrest:      r.Unrest,
			Policies: map[string]float64{
				"food_subsidy":    r.Policies.FoodSubsidy,
				"water_tax":       r.Policies.WaterTax,
				"energy_tariff":   r.Policies.EnergyTariff,
				"tech_investment": r.Policies.TechInvestment,
			},
		})
	}

	for _, t := range w.treaties {
		tv := snapshot.TreatyV1{
			ID:             t.ID,
			From:           t.From,
			To:             t.To,
			PerTickOffer:   copyIntMap(t.PerTickOffer),
			PerTickRequest: copyIntMap(t.PerTickRequest),
			Duration:       t.Duration,
			Remaining:      t.Remaining,
			CreatedTick:    t.CreatedTick,
		}
		for _, b := range t.Breaches {
			tv.Breaches = append(tv.Breaches, snapshot.BreachV1{
				Tick: b.Tick, Breacher: b.Breacher, Resource: b.Resource, Shortfall: b.Shortfall,
			})
		}
		st.Treaties = append(st.Treaties, tv)
	}

	if len(w.lastPartner) > 0 {
		st.LastPartner = make(map[string]string, len(w.lastPartner))
		for k, v := range w.lastPartner {
			st.LastPartner[k] = v
		}
	}

	// Walk the def table for stable order.
	for _, def := range climateEventDefs {
		if rem, ok := w.climate.active[def.id]; ok {
			st.Climate.Active = append(st.Climate.Active, snapshot.ActiveEventV1{ID: def.id, Remaining: rem})
		}
	}

	for _, res := range w.parliament.passed {
		st.Parliament.Passed = append(st.Parliament.Passed, snapshot.ResolutionV1{
			Name:     res.Name,
			Proposer: res.Proposer,
			Resource: res.Resource,
			Tick:     res.Tick,
			YesVotes: res.YesVotes,
			NoVotes:  res.NoVotes,
		})
	}

	for _, tr := range w.trades {
		st.Trades = append(st.Trades, snapshot.TradeV1{
			ID:         tr.ID,
			Tick:       tr.Tick,
			From:       tr.From,
			To:         tr.To,
			Offering:   copyIntMap(tr.Offering),
			Requesting: copyIntMap(tr.Requesting),
			Timestamp:  tr.Timestamp,
		})
	}
	for _, m := range w.messages {
		st.Messages = append(st.Messages, snapshot.MessageV1{
			State: m.State, Text: m.Text, Kind: m.Kind, Tick: m.Tick, Timestamp: m.Timestamp,
		})
	}
	for _, e := range w.climateEvents {
		st.ClimateEvents = append(st.ClimateEvents, snapshot.EventV1{
			Severity: e.Severity, Text: e.Text, Tick: e.Tick, Timestamp: e.Timestamp,
		})
	}
	for _, e := range w.interventions {
		st.Interventions = append(st.Interventions, snapshot.EventV1{
			Severity: e.Severity, Text: e.Text, Tick: e.Tick, Timestamp: e.Timestamp,
		})
	}

	return st
}

// ExportState is exportState for callers outside the loop. It is only
// safe once Run has returned.
func (w *World) ExportState() snapshot.StateV1 {
	return w.exportState()
}

// RestoreState merges a snapshot over the seeded world. Rows for unknown
// codes are skipped; codes absent from the snapshot keep seed data. Must
// run before the loop starts.
func (w *World) RestoreState(st snapshot.StateV1) error {
	if st.Header.Version != snapshot.Version {
		return fmt.Errorf("restore: unsupported snapshot version %d", st.Header.Version)
	}
	w.tick.Store(st.Header.Tick)

	for _, rv := range st.Regions {
		r := w.regions[rv.Code]
		if r == nil {
			w.logf("restore: unknown region %q skipped", rv.Code)
			continue
		}
		if rv.Name != "" {
			r.Name = rv.Name
		}
		for _, res := range protocol.ResourceNames {
			if v, ok := rv.Resources[res]; ok {
				r.Resources[res] = v
			}
			if v, ok := rv.Generation[res]; ok {
				r.Generation[res] = v
			}
			if v, ok := rv.Consumption[res]; ok {
				r.Consumption[res] = v
			}
		}
		r.Population = rv.Population
		r.GDP = rv.GDP
		r.Welfare = rv.Welfare
		r.Trust = rv.Trust
		r.Workforce = rv.Workforce
		r.Unrest = rv.Unrest
		if p := rv.Policies; p != nil {
			r.Policies = Policies{
				FoodSubsidy:    p["food_subsidy"],
				WaterTax:       p["water_tax"],
				EnergyTariff:   p["energy_tariff"],
				TechInvestment: p["tech_investment"],
			}
		}
	}

	w.treaties = nil
	for _, tv := range st.Treaties {
		t := &Treaty{
			ID:             tv.ID,
			From:           tv.From,
			To:             tv.To,
			PerTickOffer:   copyIntMap(tv.PerTickOffer),
			PerTickRequest: copyIntMap(tv.PerTickRequest),
			Duration:       tv.Duration,
			Remaining:      tv.Remaining,
			CreatedTick:    tv.CreatedTick,
		}
		for _, b := range tv.Breaches {
			t.Breaches = append(t.Breaches, TreatyBreach{
				Tick: b.Tick, Breacher: b.Breacher, Resource: b.Resource, Shortfall: b.Shortfall,
			})
		}
		w.treaties = append(w.treaties, t)
	}
	w.treatySeq = st.TreatySeq
	w.treatiesExpired = st.TreatiesExpired

	w.lastPartner = map[string]string{}
	for k, v := range st.LastPartner {
		w.lastPartner[k] = v
	}

	w.climate.lastEventTick = st.Climate.LastEventTick
	w.climate.active = map[string]int{}
	for _, ae := range st.Climate.Active {
		w.climate.active[ae.ID] = ae.Remaining
	}

	w.parliament = parliament{meetings: st.Parliament.Meetings}
	for _, rv := range st.Parliament.Passed {
		w.parliament.passed = append(w.parliament.passed, Resolution{
			Name:     rv.Name,
			Proposer: rv.Proposer,
			Resource: rv.Resource,
			Tick:     rv.Tick,
			YesVotes: rv.YesVotes,
			NoVotes:  rv.NoVotes,
		})
	}

	w.trades = nil
	for _, tv := range st.Trades {
		w.trades = append(w.trades, protocol.Trade{
			ID:         tv.ID,
			Tick:       tv.Tick,
			From:       tv.From,
			To:         tv.To,
			Offering:   copyIntMap(tv.Offering),
			Requesting: copyIntMap(tv.Requesting),
			Timestamp:  tv.Timestamp,
		})
	}
	w.messages = nil
	for _, mv := range st.Messages {
		w.messages = append(w.messages, protocol.Message{
			State: mv.State, Text: mv.Text, Kind: mv.Kind, Tick: mv.Tick, Timestamp: mv.Timestamp,
		})
	}
	w.climateEvents = nil
	for _, ev := range st.ClimateEvents {
		w.climateEvents = append(w.climateEvents, protocol.Event{
			Severity: ev.Severity, Text: ev.Text, Tick: ev.Tick, Timestamp: ev.Timestamp,
		})
	}
	w.interventions = nil
	for _, ev := range st.Interventions {
		w.interventions = append(w.interventions, protocol.Event{
			Severity: ev.Severity, Text: ev.Text, Tick: ev.Tick, Timestamp: ev.Timestamp,
		})
	}

	w.logf("restore: world at tick %d (%d regions, %d treaties)",
		st.Header.Tick, len(st.Regions), len(st.Treaties))
	return nil
}

func copyIntMap(src map[string]int) map[string]int {
	if src == nil {
		return nil
	}
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
