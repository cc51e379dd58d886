package world

import (
	"fmt"
	"math"
	"strings"

	"worldsim.in/internal/protocol"
)

// applyIntervention mutates the world per one queued federal action and
// reports whether it applied. Applied actions append a feed event and
// queue recovery messages for the affected state(s). Scores are left
// unrounded; the rewards step re-rounds at the end of the tick.
func (w *World) applyIntervention(iv protocol.Intervention, rec *tickRecord) bool {
	tick := w.tick.Load()
	sev := iv.Severity
	if sev == "" {
		sev = protocol.SeverityDanger
	}
	var text string

	switch iv.Action {
	case protocol.ActGDPCrash:
		for _, code := range StateCodes {
			r := w.regions[code]
			r.GDP = math.Max(5, r.GDP*0.7)
			r.Welfare = math.Max(10, r.Welfare-8)
			w.appendMessage(protocol.Message{
				State:     code,
				Text:      "🚨 NATIONAL CRISIS: GDP crashed by 30%. Activating austerity measures and seeking emergency trade agreements.",
				Kind:      protocol.MsgRecovery,
				Tick:      tick,
				Timestamp: w.now(),
			})
		}
		text = "📉 FEDERAL: National GDP crash — All states GDP -30%, Welfare -8"

	case protocol.ActStimulus:
		for _, code := range StateCodes {
			r := w.regions[code]
			r.GDP *= 1.15
			r.Welfare = math.Min(100, r.Welfare+5)
		}
		text = "📈 FEDERAL: National stimulus — All states GDP +15%, Welfare +5"
		sev = protocol.SeveritySuccess

	default:
		r := w.regions[iv.Target]
		if r == nil {
			w.logf("intervention: %s dropped, unknown target %q", iv.Action, iv.Target)
			return false
		}
		old := r.GDP

		switch iv.Action {
		case protocol.ActDrought:
			r.setResource(protocol.ResWater, int(float64(r.Resources[protocol.ResWater])*0.3))
			penalty := old * 0.20
			r.GDP = math.Max(5, old-penalty)
			r.Welfare = math.Max(10, r.Welfare-12)
			text = fmt.Sprintf("🏜️ FEDERAL: Drought in %s — Water -70%%, GDP -%.1f (now %.1f)", r.Name, penalty, r.GDP)

		case protocol.ActFlood:
			r.setResource(protocol.ResFood, int(float64(r.Resources[protocol.ResFood])*0.2))
			r.setResource(protocol.ResWater, int(float64(r.Resources[protocol.ResWater])*1.5))
			penalty := old * 0.23
			r.GDP = math.Max(5, old-penalty)
			r.Welfare = math.Max(10, r.Welfare-18)
			text = fmt.Sprintf("🌊 FEDERAL: Flooding in %s — Food -80%%, GDP -%.1f (now %.1f)", r.Name, penalty, r.GDP)

		case protocol.ActEnergyCrisis:
			r.setResource(protocol.ResEnergy, int(float64(r.Resources[protocol.ResEnergy])*0.25))
			penalty := old * 0.27
			r.GDP = math.Max(5, old-penalty)
			r.Welfare = math.Max(10, r.Welfare-10)
			text = fmt.Sprintf("⚡ FEDERAL: Grid collapse in %s — Energy -75%%, GDP -%.1f (now %.1f)", r.Name, penalty, r.GDP)

		case protocol.ActTechBoom:
			r.setResource(protocol.ResTech, int(float64(r.Resources[protocol.ResTech])*2.5))
			bonus := old * 0.25
			r.GDP = old + bonus
			r.Welfare = math.Min(100, r.Welfare+8)
			text = fmt.Sprintf("💻 FEDERAL: Tech boom in %s — Tech +150%%, GDP +%.1f (now %.1f)", r.Name, bonus, r.GDP)
			sev = protocol.SeveritySuccess

		case protocol.ActHealthCrisis:
			r.Welfare = math.Max(0, r.Welfare-30)
			penalty := old * 0.15
			r.GDP = math.Max(5, old-penalty)
			text = fmt.Sprintf("🦠 FEDERAL: Health emergency in %s — Welfare -30, GDP -%.1f", r.Name, penalty)

		case protocol.ActMonsoonFailure:
			r.setResource(protocol.ResWater, int(float64(r.Resources[protocol.ResWater])*0.15))
			r.setResource(protocol.ResFood, int(float64(r.Resources[protocol.ResFood])*0.4))
			penalty := old * 0.30
			r.GDP = math.Max(5, old-penalty)
			r.Welfare = math.Max(10, r.Welfare-20)
			text = fmt.Sprintf("🌧️ FEDERAL: Monsoon failure in %s — Water -85%%, Food -60%%, GDP -%.1f", r.Name, penalty)

		default:
			w.logf("intervention: unknown action %q dropped", iv.Action)
			return false
		}

		w.appendMessage(protocol.Message{
			State: iv.Target,
			Text: fmt.Sprintf("🚨 CRISIS DETECTED: %s — GDP dropped from %.1f to %.1f. "+
				"Initiating emergency recovery: seeking resource trades from neighboring states, "+
				"activating reserves, requesting federal aid.",
				strings.ToUpper(iv.Action), old, r.GDP),
			Kind:      protocol.MsgRecovery,
			Tick:      tick,
			Timestamp: w.now(),
		})
	}

	w.appendInterventionEvent(protocol.Event{Severity: sev, Text: text, Tick: tick, Timestamp: w.now()})
	rec.interventions++
	w.logf("intervention: applied %s target=%q", iv.Action, iv.Target)
	return true
}
