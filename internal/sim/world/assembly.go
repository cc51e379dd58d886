package world

import (
	"fmt"

	"worldsim.in/internal/protocol"
)

// parliament tracks federal assembly meetings and passed resolutions.
type parliament struct {
	meetings int
	passed   []Resolution
}

// Resolution is a policy the assembly voted through.
type Resolution struct {
	Name     string
	Proposer string
	Resource string // empty for development proposals
	Tick     uint64
	YesVotes int
	NoVotes  int
}

type proposal struct {
	name     string
	proposer string
	resource string
}

var resourceTitles = map[string]string{
	protocol.ResWater:  "Water",
	protocol.ResEnergy: "Energy",
	protocol.ResFood:   "Food",
	protocol.ResTech:   "Tech",
}

// stepAssembly convenes the federal assembly: every state tables a
// proposal, the first three go to the floor, and anything at or above
// the majority threshold passes.
func (w *World) stepAssembly(rec *tickRecord) {
	w.parliament.meetings++
	meetingID := fmt.Sprintf("meeting_%03d", w.parliament.meetings)
	tick := w.tick.Load()

	var proposals []proposal
	for _, code := range StateCodes {
		rep := w.reports[code]
		if rep == nil {
			continue
		}
		proposals = append(proposals, proposePolicy(code, rep))
	}
	if len(proposals) > 3 {
		proposals = proposals[:3]
	}

	for _, p := range proposals {
		yes, no := 0, 0
		for _, code := range StateCodes {
			rep := w.reports[code]
			if rep == nil {
				continue
			}
			if voteOnPolicy(w.regions[code], rep, p) {
				yes++
			} else {
				no++
			}
		}
		total := yes + no
		if total == 0 {
			continue
		}
		ratio := float64(yes) / float64(total)
		if ratio < w.tun.Assembly.Majority {
			w.logf("assembly: %s rejected %q %d-%d", meetingID, p.name, yes, no)
			continue
		}

		res := Resolution{
			Name:     p.name,
			Proposer: p.proposer,
			Resource: p.resource,
			Tick:     tick,
			YesVotes: yes,
			NoVotes:  no,
		}
		w.parliament.passed = append(w.parliament.passed, res)
		rec.resolutions++
		w.appendMessage(protocol.Message{
			State:     p.proposer,
			Text:      fmt.Sprintf("Federal Assembly %s: %q passed %d-%d.", meetingID, p.name, yes, no),
			Kind:      protocol.MsgAssembly,
			Tick:      tick,
			Timestamp: w.now(),
		})
		w.logf("assembly: %s passed %q %d-%d", meetingID, p.name, yes, no)

		if p.resource != "" {
			w.resolutionTreaty(res)
		}
	}
}

// proposePolicy drafts a state's agenda item from its report: a relief
// compact for its worst deficit, or a development fund when it has none.
func proposePolicy(code string, rep *Report) proposal {
	if res := rep.topDeficit(); res != "" {
		return proposal{
			name:     resourceTitles[res] + " Relief Compact",
			proposer: code,
			resource: res,
		}
	}
	return proposal{name: "Interstate Development Fund", proposer: code}
}

// voteOnPolicy decides one state's vote. Relief compacts draw YES from
// fellow claimants and from states comfortable enough to fund them;
// development funds from states still behind the curve.
func voteOnPolicy(r *Region, rep *Report, p proposal) bool {
	if p.resource != "" {
		if _, short := rep.Deficits[p.resource]; short {
			return true
		}
		return r.Welfare >= 50
	}
	return r.GDP < 60 || r.Welfare >= 65
}

// resolutionTreaty turns a passed relief compact into a one-way treaty
// funded by the deepest surplus holder of the resource.
func (w *World) resolutionTreaty(res Resolution) {
	var donor string
	best := 0
	for _, code := range StateCodes {
		if code == res.Proposer {
			continue
		}
		rep := w.reports[code]
		if rep == nil {
			continue
		}
		if s, ok := rep.Surpluses[res.Resource]; ok && s.Available > best {
			best = s.Available
			donor = code
		}
	}
	if donor == "" || w.hasTreatyBetween(donor, res.Proposer) {
		return
	}

	dur := w.tun.Treaty.DefaultDurationTicks
	qty := perTickShare(min(best, w.tun.Trade.MaxQuantity), dur)
	t := w.createTreaty(donor, res.Proposer, map[string]int{res.Resource: qty}, nil, dur)
	if t == nil {
		return
	}
	w.appendMessage(protocol.Message{
		State:     donor,
		Text:      fmt.Sprintf("%s backs %q: %s per tick to %s for %d ticks.", w.regions[donor].Name, res.Name, fmtBundle(t.PerTickOffer), w.regions[res.Proposer].Name, dur),
		Kind:      protocol.MsgAssembly,
		Tick:      w.tick.Load(),
		Timestamp: w.now(),
	})
}
