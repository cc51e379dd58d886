package world

import (
	"fmt"

	"worldsim.in/internal/protocol"
)

// Treaty is a standing multi-tick exchange between two states. Each tick
// both legs transfer in full or not at all; a short leg is a breach.
type Treaty struct {
	ID   string
	From string
	To   string

	PerTickOffer   map[string]int // From pays To
	PerTickRequest map[string]int // To pays From

	Duration  int
	Remaining int

	Breaches    []TreatyBreach
	CreatedTick uint64
}

type TreatyBreach struct {
	Tick      uint64
	Breacher  string
	Resource  string
	Shortfall int
}

// treatyCount counts active treaties touching a state, on either side.
func (w *World) treatyCount(code string) int {
	n := 0
	for _, t := range w.treaties {
		if t.From == code || t.To == code {
			n++
		}
	}
	return n
}

func (w *World) hasTreatyBetween(a, b string) bool {
	for _, t := range w.treaties {
		if (t.From == a && t.To == b) || (t.From == b && t.To == a) {
			return true
		}
	}
	return false
}

// createTreaty registers a new treaty unless either party is already at
// the per-state limit.
func (w *World) createTreaty(from, to string, offer, request map[string]int, duration int) *Treaty {
	limit := w.tun.Treaty.MaxPerState
	if w.treatyCount(from) >= limit || w.treatyCount(to) >= limit {
		return nil
	}
	w.treatySeq++
	t := &Treaty{
		ID:             fmt.Sprintf("Treaty_%03d_%s_%s", w.treatySeq, from, to),
		From:           from,
		To:             to,
		PerTickOffer:   offer,
		PerTickRequest: request,
		Duration:       duration,
		Remaining:      duration,
		CreatedTick:    w.tick.Load(),
	}
	w.treaties = append(w.treaties, t)
	w.logf("treaty: %s signed for %d ticks", t.ID, duration)
	return t
}

// stepTreaties enforces every active treaty, applies the accumulated
// trust deltas and retires expired treaties.
func (w *World) stepTreaties() (transfers, breaches int) {
	if len(w.treaties) == 0 {
		return 0, 0
	}

	adjust := make(map[string]float64)
	kept := w.treaties[:0]
	for _, t := range w.treaties {
		delivered, breached := w.enforceTreaty(t)
		transfers += delivered
		breaches += len(breached)

		if len(breached) == 0 {
			adjust[t.From] += w.tun.Treaty.HonorTrustBonus
			adjust[t.To] += w.tun.Treaty.HonorTrustBonus
		} else {
			for _, b := range breached {
				adjust[b.Breacher] -= w.tun.Treaty.BreachTrustPenalty
			}
		}

		t.Remaining--
		if t.Remaining <= 0 {
			w.treatiesExpired++
			w.logf("treaty: %s expired (%d breaches)", t.ID, len(t.Breaches))
			continue
		}
		kept = append(kept, t)
	}
	w.treaties = kept

	for code, adj := range adjust {
		if r := w.regions[code]; r != nil {
			r.Trust += adj
			r.clampTrust()
		}
	}
	return transfers, breaches
}

// enforceTreaty runs both legs of one treaty for the current tick. The
// offer leg settles first, so its delivery can fund the return leg.
func (w *World) enforceTreaty(t *Treaty) (delivered int, breached []TreatyBreach) {
	from, to := w.regions[t.From], w.regions[t.To]
	if from == nil || to == nil {
		return 0, nil
	}
	tick := w.tick.Load()

	leg := func(payer, payee *Region, amounts map[string]int) {
		for _, res := range protocol.ResourceNames {
			amt, ok := amounts[res]
			if !ok || amt <= 0 {
				continue
			}
			if have := payer.Resources[res]; have >= amt {
				payer.setResource(res, have-amt)
				payee.addResource(res, amt)
				delivered++
			} else {
				b := TreatyBreach{Tick: tick, Breacher: payer.Code, Resource: res, Shortfall: amt - have}
				t.Breaches = append(t.Breaches, b)
				breached = append(breached, b)
			}
		}
	}
	leg(from, to, t.PerTickOffer)
	leg(to, from, t.PerTickRequest)
	return delivered, breached
}
