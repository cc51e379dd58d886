package world

import (
	"math"
	"sort"

	"worldsim.in/internal/protocol"
)

// stepRewards recomputes gdp, welfare and unrest for every region from
// its post-trade resource position.
func (w *World) stepRewards() {
	for _, code := range StateCodes {
		r := w.regions[code]

		popMillions := float64(r.Population) / 1e6
		if popMillions < 1 {
			popMillions = 1
		}
		index := float64(r.Resources[protocol.ResTech])*0.004 +
			float64(r.Resources[protocol.ResEnergy])*0.002 +
			float64(r.Resources[protocol.ResFood])*0.001 +
			float64(r.Resources[protocol.ResWater])*0.001
		r.GDP = round1(clamp100(index / popMillions * 10 * r.Workforce))

		foodRatio := math.Min(1, float64(r.Resources[protocol.ResFood])/(float64(resourceMax[protocol.ResFood])*0.3))
		waterRatio := math.Min(1, float64(r.Resources[protocol.ResWater])/(float64(resourceMax[protocol.ResWater])*0.2))
		r.Welfare = round1(clamp100(foodRatio*40 + waterRatio*40 + (1-r.Unrest)*20))

		switch {
		case r.Welfare < 40:
			r.Unrest = math.Min(1, r.Unrest+0.02)
		case r.Welfare > 70:
			r.Unrest = math.Max(0, r.Unrest-0.01)
		}
	}
}

// aggregateStats builds the per-tick federation aggregates, including
// the Gini coefficient the clients never compute themselves.
func (w *World) aggregateStats() *protocol.Stats {
	n := len(StateCodes)
	if n == 0 {
		return &protocol.Stats{}
	}

	ranking := make([]protocol.RankEntry, 0, n)
	gdps := make([]float64, 0, n)
	var totalGDP, totalWelfare float64
	for _, code := range StateCodes {
		r := w.regions[code]
		gdps = append(gdps, r.GDP)
		totalGDP += r.GDP
		totalWelfare += r.Welfare
		ranking = append(ranking, protocol.RankEntry{
			Code:    code,
			Name:    r.Name,
			GDP:     round1(r.GDP),
			Welfare: round1(r.Welfare),
		})
	}
	sort.SliceStable(ranking, func(i, j int) bool { return ranking[i].GDP > ranking[j].GDP })

	first, last := ranking[0], ranking[n-1]
	return &protocol.Stats{
		TotalGDP:   round2(totalGDP),
		Gini:       giniCoefficient(gdps),
		MeanGDP:    round2(totalGDP / float64(n)),
		AvgWelfare: round2(totalWelfare / float64(n)),
		HighestGDP: protocol.RankedState{Code: first.Code, Name: first.Name, GDP: first.GDP},
		LowestGDP:  protocol.RankedState{Code: last.Code, Name: last.Name, GDP: last.GDP},
		GDPRanking: ranking,
	}
}

// giniCoefficient computes inequality over the GDP distribution in the
// Lorenz form sum((2(i+1)-n-1)*x_i) / (n*sum(x)) over ascending values.
// A zero or negative total yields 0.
func giniCoefficient(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var total float64
	for _, v := range sorted {
		total += v
	}
	if total <= 0 {
		return 0
	}

	var cum float64
	for i, v := range sorted {
		cum += float64(2*(i+1)-n-1) * v
	}
	return round4(cum / (float64(n) * total))
}
