package world

import (
	"errors"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"worldsim.in/internal/persistence/snapshot"
	"worldsim.in/internal/protocol"
	"worldsim.in/internal/sim/tuning"
)

// interventionQueueCap bounds federal actions waiting for the next tick.
const interventionQueueCap = 64

// ErrQueueFull is returned by QueueIntervention when the pending queue
// is at capacity. Callers should surface it as backpressure, not retry.
var ErrQueueFull = errors.New("intervention queue full")

// World is a single-threaded authoritative simulation. All mutable state
// is owned by the loop goroutine; the only cross-goroutine surfaces are
// the channels, the atomics and the published snapshot pointer.
type World struct {
	tun  tuning.Tuning
	log  *log.Logger
	rng  *rand.Rand
	now  func() time.Time
	seed int64

	regions map[string]*Region
	reports map[string]*Report

	climate    *climateEngine
	parliament parliament

	treaties        []*Treaty
	treatySeq       int
	treatiesExpired int
	lastPartner     map[string]string

	// Rolling feed logs. Trades are newest-first; the rest append in
	// tick order and are clamped at the tail.
	trades        []protocol.Trade
	messages      []protocol.Message
	climateEvents []protocol.Event
	interventions []protocol.Event

	tick    atomic.Uint64
	running atomic.Bool
	done    chan struct{}

	interveneCh chan protocol.Intervention
	obsJoin     chan ObserverJoinRequest
	obsLeave    chan string
	observers   map[string]chan []byte

	observerCount atomic.Int64
	latest        atomic.Pointer[protocol.Snapshot]

	queuedCount  atomic.Uint64
	appliedCount atomic.Uint64
	frameCount   atomic.Uint64

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	tickLogger   TickLogger
	history      HistoryRecorder
	snapshotSink chan<- snapshot.StateV1
}

// TickLogger receives one entry per tick. Implemented in
// internal/persistence/log.
type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	Tick          uint64           `json:"tick"`
	Stats         protocol.Stats   `json:"stats"`
	Summary       protocol.Summary `json:"summary"`
	Trades        []protocol.Trade `json:"trades,omitempty"`
	Climate       []ClimateNote    `json:"climate,omitempty"`
	Interventions int              `json:"interventions,omitempty"`
	Transfers     int              `json:"treaty_transfers,omitempty"`
	Breaches      int              `json:"treaty_breaches,omitempty"`
	Resolutions   int              `json:"resolutions,omitempty"`
}

// HistoryRecorder receives per-tick metrics for the query API.
// Implementations must not block the loop.
type HistoryRecorder interface {
	RecordTick(rec HistoryRecord)
}

type HistoryRecord struct {
	Tick    uint64
	Stats   protocol.Stats
	Summary protocol.Summary
	Regions []RegionMetric
	Trades  []protocol.Trade
	Climate []ClimateNote
}

type RegionMetric struct {
	Code       string
	Name       string
	GDP        float64
	Welfare    float64
	Trust      float64
	Water      int
	Energy     int
	Food       int
	Tech       int
	Population int64
}

// ObserverJoinRequest registers a feed client. Out receives marshaled
// tick frames; the world never closes it.
type ObserverJoinRequest struct {
	SessionID string
	Out       chan []byte
}

type Config struct {
	Tuning tuning.Tuning
	Seed   int64
	Logger *log.Logger

	// Optional sinks (any may be nil).
	TickLogger   TickLogger
	History      HistoryRecorder
	SnapshotSink chan<- snapshot.StateV1
}

func New(cfg Config) *World {
	return &World{
		tun:          cfg.Tuning,
		log:          cfg.Logger,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		now:          time.Now,
		seed:         cfg.Seed,
		regions:      seedRegions(cfg.Tuning),
		reports:      map[string]*Report{},
		climate:      newClimateEngine(cfg.Tuning.Climate.MinIntervalTicks),
		lastPartner:  map[string]string{},
		done:         make(chan struct{}),
		interveneCh:  make(chan protocol.Intervention, interventionQueueCap),
		obsJoin:      make(chan ObserverJoinRequest, 64),
		obsLeave:     make(chan string, 64),
		observers:    map[string]chan []byte{},
		tickLogger:   cfg.TickLogger,
		history:      cfg.History,
		snapshotSink: cfg.SnapshotSink,
	}
}

func (w *World) Tick() uint64  { return w.tick.Load() }
func (w *World) Running() bool { return w.running.Load() }
func (w *World) Seed() int64   { return w.seed }

// LatestSnapshot returns the last published frame state. ok is false
// until the first tick completes.
func (w *World) LatestSnapshot() (*protocol.Snapshot, bool) {
	s := w.latest.Load()
	return s, s != nil
}

// QueueIntervention hands a federal action to the loop without blocking.
// It returns the queue depth after the attempt.
func (w *World) QueueIntervention(iv protocol.Intervention) (int, error) {
	select {
	case w.interveneCh <- iv:
		w.queuedCount.Add(1)
		return len(w.interveneCh), nil
	default:
		return len(w.interveneCh), ErrQueueFull
	}
}

// ObserverJoin registers a feed client with the loop. Safe from any
// goroutine; returns false once the loop has exited.
func (w *World) ObserverJoin(req ObserverJoinRequest) bool {
	select {
	case w.obsJoin <- req:
		return true
	case <-w.done:
		return false
	}
}

func (w *World) ObserverLeave(sessionID string) {
	select {
	case w.obsLeave <- sessionID:
	case <-w.done:
	}
}

func (w *World) ObserverCount() int64         { return w.observerCount.Load() }
func (w *World) FramesBroadcast() uint64      { return w.frameCount.Load() }
func (w *World) InterventionsQueued() uint64  { return w.queuedCount.Load() }
func (w *World) InterventionsApplied() uint64 { return w.appliedCount.Load() }

func (w *World) appendMessage(m protocol.Message) {
	w.messages = append(w.messages, m)
	if n := w.tun.Feed.MessageLog; n > 0 && len(w.messages) > n {
		w.messages = w.messages[len(w.messages)-n:]
	}
}

func (w *World) appendClimateEvent(e protocol.Event) {
	w.climateEvents = append(w.climateEvents, e)
	if n := w.tun.Feed.EventLog; n > 0 && len(w.climateEvents) > n {
		w.climateEvents = w.climateEvents[len(w.climateEvents)-n:]
	}
}

func (w *World) appendInterventionEvent(e protocol.Event) {
	w.interventions = append(w.interventions, e)
	if n := w.tun.Feed.EventLog; n > 0 && len(w.interventions) > n {
		w.interventions = w.interventions[len(w.interventions)-n:]
	}
}

func (w *World) logf(format string, args ...any) {
	if w.log != nil {
		w.log.Printf(format, args...)
	}
}
