package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Format is the magic string on the header line of every snapshot file.
const Format = "worldsim-snapshot"

// Version is the current snapshot schema version.
const Version = 1

type Header struct {
	Format  string    `json:"format"`
	Version int       `json:"version"`
	Tick    uint64    `json:"tick"`
	SavedAt time.Time `json:"saved_at"`
}

// NewHeader stamps the current format and version.
func NewHeader(tick uint64, savedAt time.Time) Header {
	return Header{Format: Format, Version: Version, Tick: tick, SavedAt: savedAt}
}

// StateV1 is the full engine state. The header rides both as a JSON
// first line (readable without a gob decoder) and inside the gob body.
type StateV1 struct {
	Header Header `json:"header"`

	Seed int64 `json:"seed"`

	Regions []RegionV1 `json:"regions"`

	Treaties        []TreatyV1        `json:"treaties,omitempty"`
	TreatySeq       int               `json:"treaty_seq"`
	TreatiesExpired int               `json:"treaties_expired"`
	LastPartner     map[string]string `json:"last_partner,omitempty"`

	Climate    ClimateV1    `json:"climate"`
	Parliament ParliamentV1 `json:"parliament"`

	Trades        []TradeV1   `json:"trades,omitempty"`
	Messages      []MessageV1 `json:"messages,omitempty"`
	ClimateEvents []EventV1   `json:"climate_events,omitempty"`
	Interventions []EventV1   `json:"interventions,omitempty"`
}

type RegionV1 struct {
	Code        string             `json:"code"`
	Name        string             `json:"name"`
	Resources   map[string]int     `json:"resources"`
	Generation  map[string]int     `json:"generation"`
	Consumption map[string]int     `json:"consumption"`
	Population  int64              `json:"population"`
	GDP         float64            `json:"gdp"`
	Welfare     float64            `json:"welfare"`
	Trust       float64            `json:"trust"`
	Workforce   float64            `json:"workforce"`
	Unrest      float64            `json:"unrest"`
	Policies    map[string]float64 `json:"policies,omitempty"`
}

type TreatyV1 struct {
	ID             string         `json:"id"`
	From           string         `json:"from"`
	To             string         `json:"to"`
	PerTickOffer   map[string]int `json:"per_tick_offer,omitempty"`
	PerTickRequest map[string]int `json:"per_tick_request,omitempty"`
	Duration       int            `json:"duration"`
	Remaining      int            `json:"remaining"`
	Breaches       []BreachV1     `json:"breaches,omitempty"`
	CreatedTick    uint64         `json:"created_tick"`
}

type BreachV1 struct {
	Tick      uint64 `json:"tick"`
	Breacher  string `json:"breacher"`
	Resource  string `json:"resource"`
	Shortfall int    `json:"shortfall"`
}

type ClimateV1 struct {
	LastEventTick int64           `json:"last_event_tick"`
	Active        []ActiveEventV1 `json:"active,omitempty"`
}

type ActiveEventV1 struct {
	ID        string `json:"id"`
	Remaining int    `json:"remaining"`
}

type ParliamentV1 struct {
	Meetings int            `json:"meetings"`
	Passed   []ResolutionV1 `json:"passed,omitempty"`
}

type ResolutionV1 struct {
	Name     string `json:"name"`
	Proposer string `json:"proposer"`
	Resource string `json:"resource,omitempty"`
	Tick     uint64 `json:"tick"`
	YesVotes int    `json:"yes_votes"`
	NoVotes  int    `json:"no_votes"`
}

type TradeV1 struct {
	ID         string         `json:"id"`
	Tick       uint64         `json:"tick"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Offering   map[string]int `json:"offering"`
	Requesting map[string]int `json:"requesting"`
	Timestamp  time.Time      `json:"timestamp"`
}

type MessageV1 struct {
	State     string    `json:"state"`
	Text      string    `json:"text"`
	Kind      string    `json:"kind"`
	Tick      uint64    `json:"tick"`
	Timestamp time.Time `json:"timestamp"`
}

type EventV1 struct {
	Severity  string    `json:"severity"`
	Text      string    `json:"text"`
	Tick      uint64    `json:"tick"`
	Timestamp time.Time `json:"timestamp"`
}

// WriteSnapshot writes the state atomically: a temp file in the target
// directory is written, synced and renamed into place, so a crash
// mid-write never clobbers the previous snapshot.
func WriteSnapshot(path string, st StateV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := encodeTo(tmp, st); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func encodeTo(f *os.File, st StateV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(st.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&st); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

// ReadSnapshot loads a snapshot, checking the header line first.
func ReadSnapshot(path string) (StateV1, error) {
	var st StateV1
	f, err := os.Open(path)
	if err != nil {
		return st, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return st, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return st, fmt.Errorf("snapshot header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return st, fmt.Errorf("snapshot header: %w", err)
	}
	if h.Format != Format {
		return st, fmt.Errorf("snapshot: not a %s file (format %q)", Format, h.Format)
	}
	if h.Version != Version {
		return st, fmt.Errorf("snapshot: unsupported version %d", h.Version)
	}

	if err := gob.NewDecoder(br).Decode(&st); err != nil {
		return st, fmt.Errorf("gob decode: %w", err)
	}
	return st, nil
}
