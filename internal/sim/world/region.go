package world

import "worldsim.in/internal/protocol"

// StateCodes is the canonical region ordering. Every pipeline step walks
// regions in this order so a fixed rand seed yields a fixed run.
var StateCodes = []string{"PB", "MH", "TN", "KA", "GJ", "UP", "BR", "WB", "RJ", "MP"}

// Normalization ceilings for deficit detection and welfare ratios.
var resourceMax = map[string]int{
	protocol.ResWater:  15000,
	protocol.ResEnergy: 15000,
	protocol.ResFood:   15000,
	protocol.ResTech:   12000,
}

// Region is the live state of one federated state. All mutation happens on
// the world loop goroutine.
type Region struct {
	Code string
	Name string

	Resources   map[string]int
	Generation  map[string]int
	Consumption map[string]int

	Population int64
	GDP        float64 // 0..100
	Welfare    float64 // 0..100
	Trust      float64 // 0..100

	Workforce float64 // workforce efficiency, 0..1
	Unrest    float64 // 0..1

	Policies Policies
}

// Policies are the region's standing internal policies. Food subsidy and
// water tax act every tick; the others are seed data carried for
// snapshots and overrides.
type Policies struct {
	FoodSubsidy    float64
	WaterTax       float64
	EnergyTariff   float64
	TechInvestment float64
}

func (r *Region) resource(name string) int { return r.Resources[name] }

func (r *Region) setResource(name string, v int) {
	if v < 0 {
		v = 0
	}
	r.Resources[name] = v
}

// addResource clamps at zero on the way down.
func (r *Region) addResource(name string, delta int) {
	r.setResource(name, r.Resources[name]+delta)
}

func (r *Region) clampTrust() {
	if r.Trust < 0 {
		r.Trust = 0
	}
	if r.Trust > 100 {
		r.Trust = 100
	}
}

// wireRegion converts to the feed representation.
func (r *Region) wireRegion() protocol.Region {
	res := make(map[string]int, len(r.Resources))
	for _, name := range protocol.ResourceNames {
		res[name] = r.Resources[name]
	}
	return protocol.Region{
		Name:       r.Name,
		Resources:  res,
		GDP:        r.GDP,
		Welfare:    r.Welfare,
		Trust:      r.Trust,
		Population: r.Population,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// round1 matches the engine's one-decimal score convention.
func round1(v float64) float64 {
	if v < 0 {
		return float64(int64(v*10-0.5)) / 10
	}
	return float64(int64(v*10+0.5)) / 10
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}

func round4(v float64) float64 {
	if v < 0 {
		return float64(int64(v*10000-0.5)) / 10000
	}
	return float64(int64(v*10000+0.5)) / 10000
}
