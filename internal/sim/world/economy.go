package world

import "worldsim.in/internal/protocol"

// stepProduceConsume applies each region's generation and consumption
// rates. Stocks floor at zero; debt is not modeled.
func (w *World) stepProduceConsume() {
	for _, code := range StateCodes {
		r := w.regions[code]
		for _, res := range protocol.ResourceNames {
			next := r.Resources[res] + r.Generation[res] - r.Consumption[res]
			r.setResource(res, next)
		}
	}
}

// stepPolicies applies standing internal policies. A food subsidy grows
// the food stock at the cost of energy; a water tax curbs consumption,
// which shows up as extra water retained.
func (w *World) stepPolicies() {
	for _, code := range StateCodes {
		r := w.regions[code]

		if s := r.Policies.FoodSubsidy; s > 0 {
			bonus := int(float64(r.Resources[protocol.ResFood]) * s * 0.1)
			r.addResource(protocol.ResFood, bonus)
			r.addResource(protocol.ResEnergy, -int(float64(bonus)*0.5))
		}

		if t := r.Policies.WaterTax; t > 0 {
			saved := int(float64(r.Resources[protocol.ResWater]) * t * 0.05)
			r.addResource(protocol.ResWater, saved)
		}
	}
}
