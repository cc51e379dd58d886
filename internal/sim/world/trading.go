package world

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"worldsim.in/internal/protocol"
)

// stepGovernors invokes the governor heuristic for every region that
// needs one this tick: flagged by its report, hit by an active climate
// event, or swept up in the periodic all-states pass.
func (w *World) stepGovernors(rec *tickRecord) {
	periodic := w.tun.Governor.PeriodicIntervalTicks
	invokeAll := periodic > 0 && w.tick.Load()%uint64(periodic) == 0
	affected := w.climate.affectedRegions()

	for _, code := range StateCodes {
		rep := w.reports[code]
		if rep == nil {
			continue
		}
		if !invokeAll && !rep.NeedsGovernor && !affected[code] {
			continue
		}
		if w.governorNegotiate(code, rep, rec) {
			rec.decisions++
		}
	}
}

// governorNegotiate covers the region's worst deficit from the partner
// with the deepest spare pool, paying with its own richest surplus. The
// trade executes immediately. A repeated partner graduates the spot
// trade into a standing treaty.
func (w *World) governorNegotiate(code string, rep *Report, rec *tickRecord) bool {
	needed := rep.topDeficit()
	if needed == "" {
		return false
	}

	var partner string
	best := 0
	for _, other := range StateCodes {
		if other == code {
			continue
		}
		orep := w.reports[other]
		if orep == nil {
			continue
		}
		if s, ok := orep.Surpluses[needed]; ok && s.Available > best {
			best = s.Available
			partner = other
		}
	}
	if partner == "" {
		return false
	}

	offerRes, spare := rep.richestSurplus()
	if offerRes == "" {
		return false
	}

	maxQty := w.tun.Trade.MaxQuantity
	request := min(min(rep.Deficits[needed].Shortfall, best), maxQty)
	offer := min(spare, maxQty)
	if request <= 0 || offer <= 0 {
		return false
	}

	offering := map[string]int{offerRes: offer}
	requesting := map[string]int{needed: request}
	w.executeDirectTrade(code, partner, offering, requesting)
	w.recordTrade(rec, code, partner, offering, requesting)

	w.appendMessage(protocol.Message{
		State: code,
		Text: fmt.Sprintf("Negotiated with %s: offering %s, requesting %s. Strategic trade negotiation.",
			w.regions[partner].Name, fmtBundle(offering), fmtBundle(requesting)),
		Kind:      protocol.MsgNegotiation,
		Tick:      w.tick.Load(),
		Timestamp: w.now(),
	})

	if w.lastPartner[code] == partner && !w.hasTreatyBetween(code, partner) {
		dur := w.tun.Treaty.DefaultDurationTicks
		t := w.createTreaty(code, partner,
			map[string]int{offerRes: perTickShare(offer, dur)},
			map[string]int{needed: perTickShare(request, dur)},
			dur)
		if t != nil {
			w.appendMessage(protocol.Message{
				State: code,
				Text: fmt.Sprintf("Signed %s with %s: %s for %s per tick over %d ticks.",
					t.ID, w.regions[partner].Name, fmtBundle(t.PerTickOffer), fmtBundle(t.PerTickRequest), dur),
				Kind:      protocol.MsgNegotiation,
				Tick:      w.tick.Load(),
				Timestamp: w.now(),
			})
		}
	}
	w.lastPartner[code] = partner
	return true
}

// stepTradeMatching fills the remaining report recommendations from the
// first partner with enough spare, at most one trade per recommendation.
// Surpluses are as of the analysis pass; execution clamps to what the
// partner still holds.
func (w *World) stepTradeMatching(rec *tickRecord) {
	for _, code := range StateCodes {
		rep := w.reports[code]
		if rep == nil {
			continue
		}
		for _, r := range rep.Recommendations {
			if r.OfferAmount <= 0 || r.RequestAmount <= 0 {
				continue
			}
			for _, other := range StateCodes {
				if other == code {
					continue
				}
				orep := w.reports[other]
				if orep == nil {
					continue
				}
				s, ok := orep.Surpluses[r.RequestResource]
				if !ok || s.Available < r.RequestAmount {
					continue
				}
				offering := map[string]int{r.OfferResource: r.OfferAmount}
				requesting := map[string]int{r.RequestResource: r.RequestAmount}
				w.executeDirectTrade(code, other, offering, requesting)
				w.recordTrade(rec, code, other, offering, requesting)
				break
			}
		}
	}
}

// executeDirectTrade settles both directions immediately, clamped to
// what each side actually holds.
func (w *World) executeDirectTrade(fromCode, toCode string, offering, requesting map[string]int) {
	from, to := w.regions[fromCode], w.regions[toCode]
	if from == nil || to == nil {
		return
	}
	for _, res := range protocol.ResourceNames {
		amt, ok := offering[res]
		if !ok {
			continue
		}
		amt = min(amt, from.Resources[res])
		from.addResource(res, -amt)
		to.addResource(res, amt)
	}
	for _, res := range protocol.ResourceNames {
		amt, ok := requesting[res]
		if !ok {
			continue
		}
		amt = min(amt, to.Resources[res])
		to.addResource(res, -amt)
		from.addResource(res, amt)
	}
}

// recordTrade prepends to the rolling trade log (newest first) and to
// the tick record for persistence.
func (w *World) recordTrade(rec *tickRecord, from, to string, offering, requesting map[string]int) {
	tr := protocol.Trade{
		ID:         uuid.NewString(),
		Tick:       w.tick.Load(),
		From:       from,
		To:         to,
		Offering:   offering,
		Requesting: requesting,
		Timestamp:  w.now(),
	}
	w.trades = append([]protocol.Trade{tr}, w.trades...)
	if limit := w.tun.Feed.TradeLog; limit > 0 && len(w.trades) > limit {
		w.trades = w.trades[:limit]
	}
	rec.trades = append(rec.trades, tr)
}

// fmtBundle renders a resource bundle as "500 water, 200 tech" in
// canonical resource order.
func fmtBundle(bundle map[string]int) string {
	var b strings.Builder
	for _, res := range protocol.ResourceNames {
		amt, ok := bundle[res]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d %s", amt, res)
	}
	if b.Len() == 0 {
		return "nothing"
	}
	return b.String()
}

// perTickShare spreads a one-off quantity over a treaty duration.
func perTickShare(total, duration int) int {
	if duration <= 0 {
		return total
	}
	share := total / duration
	if share < 1 {
		share = 1
	}
	return share
}
