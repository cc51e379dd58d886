package protocol

import "time"

// Resource names used across snapshots, trades and treaties.
const (
	ResWater  = "water"
	ResEnergy = "energy"
	ResFood   = "food"
	ResTech   = "tech"
)

// ResourceNames is the canonical resource ordering for stable output.
var ResourceNames = []string{ResWater, ResEnergy, ResFood, ResTech}

// init (server -> client): sent once right after the socket is accepted.
type InitMsg struct {
	Type    string `json:"type"`
	Tick    uint64 `json:"tick"`
	Running bool   `json:"running"`
}

// tick (server -> client): a full world snapshot. Every frame replaces the
// previous one wholesale; there is no delta encoding.
type TickMsg struct {
	Type string `json:"type"`
	Snapshot
}

// Snapshot is the state payload of a tick frame. A frame whose Regions map
// is empty carries no state (e.g. a bare init) and is connectivity-only.
type Snapshot struct {
	Tick             uint64            `json:"tick"`
	Regions          map[string]Region `json:"regions"`
	Stats            *Stats            `json:"stats,omitempty"`
	Trades           []Trade           `json:"trades"`
	GovernorMessages []Message         `json:"governor_messages"`
	ClimateEvents    []Event           `json:"climate_events"`
	Interventions    []Event           `json:"interventions"`
	TickSummary      Summary           `json:"tick_summary"`
}

type Region struct {
	Name       string         `json:"name"`
	Resources  map[string]int `json:"resources"`
	GDP        float64        `json:"gdp"`
	Welfare    float64        `json:"welfare"`
	Trust      float64        `json:"trust"`
	Population int64          `json:"population"`
}

// Stats carries the aggregates computed by the engine. Gini is only ever
// produced server-side; clients that rebuild stats from regions leave it
// zero and set Derived.
type Stats struct {
	TotalGDP   float64     `json:"total_gdp"`
	Gini       float64     `json:"gini"`
	MeanGDP    float64     `json:"mean_gdp"`
	AvgWelfare float64     `json:"avg_welfare"`
	HighestGDP RankedState `json:"highest_gdp"`
	LowestGDP  RankedState `json:"lowest_gdp"`
	GDPRanking []RankEntry `json:"gdp_ranking"`
	Derived    bool        `json:"derived,omitempty"`
}

type RankedState struct {
	Code string  `json:"code"`
	Name string  `json:"name"`
	GDP  float64 `json:"gdp"`
}

type RankEntry struct {
	Code    string  `json:"code"`
	Name    string  `json:"name"`
	GDP     float64 `json:"gdp"`
	Welfare float64 `json:"welfare"`
}

type Trade struct {
	ID         string         `json:"id"`
	Tick       uint64         `json:"tick"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Offering   map[string]int `json:"offering"`
	Requesting map[string]int `json:"requesting"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Governor message kinds.
const (
	MsgNegotiation = "negotiation"
	MsgRecovery    = "recovery"
	MsgAssembly    = "assembly"
)

// Message is a governor announcement shown on the feed.
type Message struct {
	State     string    `json:"state"`
	Text      string    `json:"text"`
	Kind      string    `json:"type"`
	Tick      uint64    `json:"tick"`
	Timestamp time.Time `json:"timestamp"`
}

// Event severities.
const (
	SeverityDanger  = "danger"
	SeveritySuccess = "success"
	SeverityWarning = "warning"
)

// Event is a climate or intervention entry on the feed.
type Event struct {
	Severity  string    `json:"type"`
	Text      string    `json:"text"`
	Tick      uint64    `json:"tick"`
	Timestamp time.Time `json:"timestamp"`
}

type Summary struct {
	TradesCount    int `json:"trades_count"`
	Decisions      int `json:"decisions"`
	ClimateCount   int `json:"climate_count"`
	MigrationCount int `json:"migration_count"`
}

// intervene (client -> server)
type InterveneMsg struct {
	Type    string       `json:"type"`
	Payload Intervention `json:"payload"`
}

// Intervention is the payload dispatched over the socket and POSTed to
// /api/intervene. Target is empty for national actions. The optional
// fields are omitted when empty so a re-marshaled payload still passes
// schema validation.
type Intervention struct {
	Action      string `json:"action"`
	Target      string `json:"target,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Description string `json:"description,omitempty"`
}

// intervention_ack (server -> client)
type AckMsg struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// Intervention actions accepted by the engine.
const (
	ActDrought        = "drought"
	ActFlood          = "flood"
	ActEnergyCrisis   = "energy_crisis"
	ActTechBoom       = "tech_boom"
	ActHealthCrisis   = "health_crisis"
	ActMonsoonFailure = "monsoon_failure"
	ActGDPCrash       = "gdp_crash"
	ActStimulus       = "stimulus"
)

var knownActions = map[string]struct{}{
	ActDrought:        {},
	ActFlood:          {},
	ActEnergyCrisis:   {},
	ActTechBoom:       {},
	ActHealthCrisis:   {},
	ActMonsoonFailure: {},
	ActGDPCrash:       {},
	ActStimulus:       {},
}

func KnownAction(a string) bool {
	_, ok := knownActions[a]
	return ok
}
