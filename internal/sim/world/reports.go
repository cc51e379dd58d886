package world

import "worldsim.in/internal/protocol"

// Report is the per-region quant analysis produced once per tick.
// Governor decisions, trade matching and the assembly all read it.
type Report struct {
	Code   string
	Health float64

	Deficits  map[string]Deficit
	Surpluses map[string]Surplus

	Recommendations []TradeRec

	// NeedsGovernor marks regions that cannot wait for the periodic
	// governor pass.
	NeedsGovernor bool
}

// Deficit describes a stock below the deficit floor.
type Deficit struct {
	Shortfall int     // units missing to reach the floor
	Priority  float64 // shortfall plus consumption pressure
}

// Surplus describes a stock above the surplus ceiling with positive net
// production.
type Surplus struct {
	Available int // units spendable without dipping below the ceiling
}

// TradeRec is an open order: offer the region's richest surplus against
// its worst deficit.
type TradeRec struct {
	OfferResource   string
	OfferAmount     int
	RequestResource string
	RequestAmount   int
}

func (w *World) stepReports() {
	for _, code := range StateCodes {
		w.reports[code] = w.analyzeRegion(w.regions[code])
	}
}

// analyzeRegion rates one region's resource position against the
// normalization ceilings.
func (w *World) analyzeRegion(r *Region) *Report {
	rep := &Report{
		Code:      r.Code,
		Deficits:  make(map[string]Deficit),
		Surpluses: make(map[string]Surplus),
	}

	for _, res := range protocol.ResourceNames {
		cur := r.Resources[res]
		floor := int(float64(resourceMax[res]) * w.tun.Governor.DeficitThreshold)
		if cur < floor {
			short := floor - cur
			rep.Deficits[res] = Deficit{
				Shortfall: short,
				Priority:  float64(short + r.Consumption[res]),
			}
			continue
		}
		ceil := int(float64(resourceMax[res]) * w.tun.Governor.SurplusThreshold)
		if cur > ceil && r.Generation[res]-r.Consumption[res] > 0 {
			rep.Surpluses[res] = Surplus{Available: cur - ceil}
		}
	}

	rep.NeedsGovernor = len(rep.Deficits) > 0
	rep.Health = round1(clamp100(100 - 20*float64(len(rep.Deficits)) - 30*r.Unrest))

	if need := rep.topDeficit(); need != "" {
		if offer, spare := rep.richestSurplus(); offer != "" {
			maxQty := w.tun.Trade.MaxQuantity
			rec := TradeRec{
				OfferResource:   offer,
				OfferAmount:     min(spare, maxQty),
				RequestResource: need,
				RequestAmount:   min(rep.Deficits[need].Shortfall, maxQty),
			}
			if rec.OfferAmount > 0 && rec.RequestAmount > 0 {
				rep.Recommendations = append(rep.Recommendations, rec)
			}
		}
	}
	return rep
}

// topDeficit returns the highest-priority deficit resource, or "" when
// the region has none. Ties resolve in canonical resource order.
func (rep *Report) topDeficit() string {
	var top string
	best := 0.0
	for _, res := range protocol.ResourceNames {
		d, ok := rep.Deficits[res]
		if !ok {
			continue
		}
		if top == "" || d.Priority > best {
			top = res
			best = d.Priority
		}
	}
	return top
}

// richestSurplus returns the surplus resource with the deepest spare
// pool, or "" when the region has none.
func (rep *Report) richestSurplus() (string, int) {
	var top string
	best := 0
	for _, res := range protocol.ResourceNames {
		s, ok := rep.Surpluses[res]
		if !ok {
			continue
		}
		if top == "" || s.Available > best {
			top = res
			best = s.Available
		}
	}
	return top, best
}
