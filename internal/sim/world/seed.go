package world

import (
	"worldsim.in/internal/protocol"

	"worldsim.in/internal/sim/tuning"
)

// resourceSet is a compact literal for the four resource columns.
type resourceSet struct {
	water, energy, food, tech int
}

func (rs resourceSet) toMap() map[string]int {
	return map[string]int{
		protocol.ResWater:  rs.water,
		protocol.ResEnergy: rs.energy,
		protocol.ResFood:   rs.food,
		protocol.ResTech:   rs.tech,
	}
}

type seedRegion struct {
	code string
	name string

	population int64
	gdp        float64
	welfare    float64

	resources   resourceSet
	generation  resourceSet
	consumption resourceSet

	workforce float64
	unrest    float64

	policies Policies
}

// stateSeeds is the built-in ten-state table, in StateCodes order.
var stateSeeds = []seedRegion{
	{
		code: "PB", name: "Punjab",
		population: 28_000_000, gdp: 55.0, welfare: 72.0,
		resources:   resourceSet{water: 8000, energy: 3000, food: 15000, tech: 1000},
		generation:  resourceSet{water: -200, energy: 150, food: 800, tech: 50},
		consumption: resourceSet{water: 600, energy: 200, food: 300, tech: 80},
		workforce:   0.75, unrest: 0.10,
		policies: Policies{FoodSubsidy: 0.15, WaterTax: 0.05, EnergyTariff: 0.10, TechInvestment: 0.05},
	},
	{
		code: "MH", name: "Maharashtra",
		population: 125_000_000, gdp: 85.4, welfare: 65.0,
		resources:   resourceSet{water: 4500, energy: 12000, food: 6000, tech: 8000},
		generation:  resourceSet{water: 100, energy: 600, food: 200, tech: 400},
		consumption: resourceSet{water: 800, energy: 500, food: 700, tech: 200},
		workforce:   0.85, unrest: 0.15,
		policies: Policies{FoodSubsidy: 0.08, WaterTax: 0.12, EnergyTariff: 0.08, TechInvestment: 0.20},
	},
	{
		code: "TN", name: "Tamil Nadu",
		population: 77_000_000, gdp: 78.0, welfare: 70.0,
		resources:   resourceSet{water: 3500, energy: 7000, food: 5000, tech: 9000},
		generation:  resourceSet{water: 80, energy: 350, food: 250, tech: 500},
		consumption: resourceSet{water: 500, energy: 400, food: 450, tech: 150},
		workforce:   0.88, unrest: 0.12,
		policies: Policies{FoodSubsidy: 0.10, WaterTax: 0.15, EnergyTariff: 0.07, TechInvestment: 0.25},
	},
	{
		code: "KA", name: "Karnataka",
		population: 67_000_000, gdp: 75.0, welfare: 68.0,
		resources:   resourceSet{water: 5000, energy: 6000, food: 4500, tech: 10000},
		generation:  resourceSet{water: 150, energy: 300, food: 200, tech: 550},
		consumption: resourceSet{water: 400, energy: 350, food: 400, tech: 120},
		workforce:   0.90, unrest: 0.08,
		policies: Policies{FoodSubsidy: 0.12, WaterTax: 0.08, EnergyTariff: 0.06, TechInvestment: 0.30},
	},
	{
		code: "GJ", name: "Gujarat",
		population: 64_000_000, gdp: 72.0, welfare: 67.0,
		resources:   resourceSet{water: 4000, energy: 11000, food: 5500, tech: 6000},
		generation:  resourceSet{water: 120, energy: 550, food: 280, tech: 300},
		consumption: resourceSet{water: 450, energy: 300, food: 380, tech: 150},
		workforce:   0.82, unrest: 0.07,
		policies: Policies{FoodSubsidy: 0.08, WaterTax: 0.10, EnergyTariff: 0.05, TechInvestment: 0.15},
	},
	{
		code: "UP", name: "Uttar Pradesh",
		population: 230_000_000, gdp: 45.0, welfare: 48.0,
		resources:   resourceSet{water: 7000, energy: 5000, food: 8000, tech: 2000},
		generation:  resourceSet{water: 200, energy: 200, food: 400, tech: 80},
		consumption: resourceSet{water: 1200, energy: 800, food: 1500, tech: 300},
		workforce:   0.55, unrest: 0.25,
		policies: Policies{FoodSubsidy: 0.25, WaterTax: 0.03, EnergyTariff: 0.12, TechInvestment: 0.05},
	},
	{
		code: "BR", name: "Bihar",
		population: 125_000_000, gdp: 25.0, welfare: 38.0,
		resources:   resourceSet{water: 6000, energy: 2000, food: 4000, tech: 500},
		generation:  resourceSet{water: 180, energy: 80, food: 200, tech: 20},
		consumption: resourceSet{water: 700, energy: 400, food: 900, tech: 100},
		workforce:   0.45, unrest: 0.30,
		policies: Policies{FoodSubsidy: 0.30, WaterTax: 0.02, EnergyTariff: 0.15, TechInvestment: 0.02},
	},
	{
		code: "WB", name: "West Bengal",
		population: 100_000_000, gdp: 50.0, welfare: 55.0,
		resources:   resourceSet{water: 10000, energy: 4000, food: 7000, tech: 3000},
		generation:  resourceSet{water: 500, energy: 180, food: 350, tech: 120},
		consumption: resourceSet{water: 600, energy: 350, food: 650, tech: 150},
		workforce:   0.65, unrest: 0.18,
		policies: Policies{FoodSubsidy: 0.12, WaterTax: 0.03, EnergyTariff: 0.10, TechInvestment: 0.08},
	},
	{
		code: "RJ", name: "Rajasthan",
		population: 79_000_000, gdp: 42.0, welfare: 50.0,
		resources:   resourceSet{water: 1500, energy: 14000, food: 3000, tech: 2000},
		generation:  resourceSet{water: 30, energy: 700, food: 100, tech: 100},
		consumption: resourceSet{water: 500, energy: 200, food: 500, tech: 100},
		workforce:   0.60, unrest: 0.20,
		policies: Policies{FoodSubsidy: 0.15, WaterTax: 0.25, EnergyTariff: 0.03, TechInvestment: 0.08},
	},
	{
		code: "MP", name: "Madhya Pradesh",
		population: 85_000_000, gdp: 48.0, welfare: 52.0,
		resources:   resourceSet{water: 6500, energy: 6000, food: 6500, tech: 3500},
		generation:  resourceSet{water: 250, energy: 280, food: 300, tech: 150},
		consumption: resourceSet{water: 500, energy: 350, food: 550, tech: 120},
		workforce:   0.62, unrest: 0.12,
		policies: Policies{FoodSubsidy: 0.10, WaterTax: 0.06, EnergyTariff: 0.08, TechInvestment: 0.10},
	},
}

// seedRegions builds the live region map from the built-in table with any
// tuning overrides applied on top.
func seedRegions(tun tuning.Tuning) map[string]*Region {
	regions := make(map[string]*Region, len(stateSeeds))
	for _, s := range stateSeeds {
		r := &Region{
			Code:        s.code,
			Name:        s.name,
			Resources:   s.resources.toMap(),
			Generation:  s.generation.toMap(),
			Consumption: s.consumption.toMap(),
			Population:  s.population,
			GDP:         s.gdp,
			Welfare:     s.welfare,
			Trust:       100,
			Workforce:   s.workforce,
			Unrest:      s.unrest,
			Policies:    s.policies,
		}
		if ov, ok := tun.Regions[s.code]; ok {
			applyOverride(r, ov)
		}
		regions[s.code] = r
	}
	return regions
}

func applyOverride(r *Region, ov tuning.RegionOverride) {
	if ov.Population != nil {
		r.Population = *ov.Population
	}
	if ov.GDP != nil {
		r.GDP = *ov.GDP
	}
	if ov.Welfare != nil {
		r.Welfare = *ov.Welfare
	}
	for res, v := range ov.Resources {
		r.Resources[res] = v
	}
	for res, v := range ov.Generation {
		r.Generation[res] = v
	}
	for res, v := range ov.Consumption {
		r.Consumption[res] = v
	}
}
