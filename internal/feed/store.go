package feed

import (
	"sort"
	"sync"

	"worldsim.in/internal/protocol"
)

// Rolling-list caps applied on every Apply. These mirror the server's own
// log bounds; the store does not trust a frame to arrive pre-capped.
const (
	maxTrades        = 50
	maxMessages      = 50
	maxClimateEvents = 30
	maxInterventions = 30
)

// Store holds the latest snapshot, wholesale. Apply replaces everything:
// there is no merging, no per-region patching, no history. A published
// snapshot is immutable by convention; the store never touches it again.
type Store struct {
	mu   sync.RWMutex
	snap *protocol.Snapshot
	gen  uint64
}

func NewStore() *Store {
	return &Store{}
}

// Apply installs snap as the one current snapshot. Regions absent from
// snap are gone from Latest. When the frame carried no stats block the
// store derives what it can from the regions; it never computes Gini.
func (st *Store) Apply(snap *protocol.Snapshot) {
	if snap == nil {
		return
	}
	clampLists(snap)
	if snap.Stats == nil {
		snap.Stats = deriveStats(snap.Regions)
	}

	st.mu.Lock()
	st.snap = snap
	st.gen++
	st.mu.Unlock()
}

// Latest returns the current snapshot. ok is false before the first
// Apply.
func (st *Store) Latest() (snap *protocol.Snapshot, ok bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snap, st.snap != nil
}

// Generation increments on every Apply; cheap change detection for
// pollers.
func (st *Store) Generation() uint64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.gen
}

func clampLists(snap *protocol.Snapshot) {
	if len(snap.Trades) > maxTrades {
		snap.Trades = snap.Trades[:maxTrades]
	}
	if len(snap.GovernorMessages) > maxMessages {
		snap.GovernorMessages = snap.GovernorMessages[len(snap.GovernorMessages)-maxMessages:]
	}
	if len(snap.ClimateEvents) > maxClimateEvents {
		snap.ClimateEvents = snap.ClimateEvents[len(snap.ClimateEvents)-maxClimateEvents:]
	}
	if len(snap.Interventions) > maxInterventions {
		snap.Interventions = snap.Interventions[len(snap.Interventions)-maxInterventions:]
	}
}

// deriveStats rebuilds the aggregate block from the regions of a frame
// that arrived without one. Totals, means and the ranking are fair game;
// Gini is not — inequality is the engine's call, so derived stats carry
// gini zero and the Derived marker.
func deriveStats(regions map[string]protocol.Region) *protocol.Stats {
	if len(regions) == 0 {
		return &protocol.Stats{Derived: true}
	}

	codes := make([]string, 0, len(regions))
	for code := range regions {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var totalGDP, totalWelfare float64
	ranking := make([]protocol.RankEntry, 0, len(codes))
	for _, code := range codes {
		r := regions[code]
		totalGDP += r.GDP
		totalWelfare += r.Welfare
		ranking = append(ranking, protocol.RankEntry{
			Code:    code,
			Name:    r.Name,
			GDP:     round1(r.GDP),
			Welfare: round1(r.Welfare),
		})
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].GDP > ranking[j].GDP
	})

	n := float64(len(codes))
	top := ranking[0]
	bottom := ranking[len(ranking)-1]
	return &protocol.Stats{
		TotalGDP:   round2(totalGDP),
		Gini:       0,
		MeanGDP:    round2(totalGDP / n),
		AvgWelfare: round2(totalWelfare / n),
		HighestGDP: protocol.RankedState{Code: top.Code, Name: top.Name, GDP: top.GDP},
		LowestGDP:  protocol.RankedState{Code: bottom.Code, Name: bottom.Name, GDP: bottom.GDP},
		GDPRanking: ranking,
		Derived:    true,
	}
}

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
