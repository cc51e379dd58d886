package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"worldsim.in/internal/protocol"
	"worldsim.in/internal/sim/world"
)

// defaultQueueCap bounds records waiting for the writer goroutine. One
// record per tick, so a modest buffer rides out slow disks.
const defaultQueueCap = 4096

const (
	defaultSeriesTicks = 120
	maxSeriesTicks     = 1000
	maxTradeRows       = 300
)

// Recorder persists per-tick metrics to SQLite and serves the history
// query API. Writes go through a single writer goroutine; RecordTick
// never blocks the simulation loop.
type Recorder struct {
	db *sql.DB

	ch   chan world.HistoryRecord
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

func Open(path string) (*Recorder, error) {
	return open(path, defaultQueueCap)
}

func open(path string, queueCap int) (*Recorder, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps the per-connection pragmas in force for
	// both the writer and the query handlers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	r := &Recorder{
		db: db,
		ch: make(chan world.HistoryRecord, queueCap),
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop()
	}()
	return r, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads; NORMAL is a decent
	// durability/perf tradeoff for derived history.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			total_gdp REAL NOT NULL,
			mean_gdp REAL NOT NULL,
			gini REAL NOT NULL,
			avg_welfare REAL NOT NULL,
			trades INTEGER NOT NULL,
			climate INTEGER NOT NULL,
			migrations INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS region_metrics (
			tick INTEGER NOT NULL,
			code TEXT NOT NULL,
			gdp REAL NOT NULL,
			welfare REAL NOT NULL,
			trust REAL NOT NULL,
			water INTEGER NOT NULL,
			energy INTEGER NOT NULL,
			food INTEGER NOT NULL,
			tech INTEGER NOT NULL,
			population INTEGER NOT NULL,
			PRIMARY KEY (tick, code)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_region_metrics_code_tick ON region_metrics(code, tick);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			tick INTEGER NOT NULL,
			from_code TEXT NOT NULL,
			to_code TEXT NOT NULL,
			offering TEXT NOT NULL,
			requesting TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_tick ON trades(tick);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_from ON trades(from_code);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_to ON trades(to_code);`,
		`CREATE TABLE IF NOT EXISTS climate_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			event_id TEXT NOT NULL,
			target TEXT NOT NULL,
			kind TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_climate_event_tick ON climate_events(event_id, tick);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) Close() error {
	var err error
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.ch)
		r.wg.Wait()
		err = r.db.Close()
	})
	return err
}

// RecordTick implements world.HistoryRecorder. Drops the record if the
// writer has fallen behind; the JSONL tick log remains the source of
// truth.
func (r *Recorder) RecordTick(rec world.HistoryRecord) {
	if r == nil || r.closed.Load() {
		return
	}
	select {
	case r.ch <- rec:
	default:
		r.dropped.Add(1)
	}
}

// QueueDepth reports records waiting for the writer.
func (r *Recorder) QueueDepth() int {
	if r == nil {
		return 0
	}
	return len(r.ch)
}

// Dropped reports records discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

func (r *Recorder) loop() {
	insertTick, _ := r.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,total_gdp,mean_gdp,gini,avg_welfare,trades,climate,migrations,created_at) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertRegion, _ := r.db.Prepare(`INSERT OR REPLACE INTO region_metrics(tick,code,gdp,welfare,trust,water,energy,food,tech,population) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertTrade, _ := r.db.Prepare(`INSERT OR REPLACE INTO trades(id,tick,from_code,to_code,offering,requesting,created_at) VALUES(?,?,?,?,?,?,?)`)
	insertClimate, _ := r.db.Prepare(`INSERT INTO climate_events(tick,event_id,target,kind,created_at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertRegion, insertTrade, insertClimate} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	// One transaction per record. Ticks arrive seconds apart, so
	// batching buys nothing and a long-lived tx would starve the query
	// handlers sharing the connection.
	for rec := range r.ch {
		r.writeRecord(insertTick, insertRegion, insertTrade, insertClimate, rec)
	}
}

func (r *Recorder) writeRecord(insertTick, insertRegion, insertTrade, insertClimate *sql.Stmt, rec world.HistoryRecord) {
	tx, err := r.db.Begin()
	if err != nil {
		time.Sleep(50 * time.Millisecond)
		return
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	ok := true
	exec := func(st *sql.Stmt, args ...any) {
		if !ok || st == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			ok = false
		}
	}

	exec(insertTick,
		int64(rec.Tick),
		rec.Stats.TotalGDP,
		rec.Stats.MeanGDP,
		rec.Stats.Gini,
		rec.Stats.AvgWelfare,
		rec.Summary.TradesCount,
		rec.Summary.ClimateCount,
		rec.Summary.MigrationCount,
		now,
	)
	for _, m := range rec.Regions {
		exec(insertRegion, int64(rec.Tick), m.Code, m.GDP, m.Welfare, m.Trust, m.Water, m.Energy, m.Food, m.Tech, m.Population)
	}
	for _, t := range rec.Trades {
		offering, _ := json.Marshal(t.Offering)
		requesting, _ := json.Marshal(t.Requesting)
		exec(insertTrade, t.ID, int64(t.Tick), t.From, t.To, string(offering), string(requesting), t.Timestamp.UTC().Format(time.RFC3339Nano))
	}
	for _, c := range rec.Climate {
		exec(insertClimate, int64(rec.Tick), c.EventID, c.Target, c.Kind, now)
	}

	if !ok {
		_ = tx.Rollback()
		return
	}
	_ = tx.Commit()
}

// SeriesPoint is one sample of a per-state metric series.
type SeriesPoint struct {
	Tick  uint64  `json:"tick"`
	Value float64 `json:"value"`
}

// GDPSeries returns per-state GDP over the most recent ticks.
func (r *Recorder) GDPSeries(ctx context.Context, ticks int) (map[string][]SeriesPoint, error) {
	return r.series(ctx, "gdp", ticks)
}

// WelfareSeries returns per-state welfare over the most recent ticks.
func (r *Recorder) WelfareSeries(ctx context.Context, ticks int) (map[string][]SeriesPoint, error) {
	return r.series(ctx, "welfare", ticks)
}

func (r *Recorder) series(ctx context.Context, column string, ticks int) (map[string][]SeriesPoint, error) {
	switch column {
	case "gdp", "welfare":
	default:
		return nil, fmt.Errorf("history: unknown series column %q", column)
	}
	if ticks <= 0 {
		ticks = defaultSeriesTicks
	}
	if ticks > maxSeriesTicks {
		ticks = maxSeriesTicks
	}

	q := fmt.Sprintf(`SELECT tick, code, %s FROM region_metrics
		WHERE tick IN (SELECT tick FROM ticks ORDER BY tick DESC LIMIT ?)
		ORDER BY tick ASC, code ASC`, column)
	rows, err := r.db.QueryContext(ctx, q, ticks)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]SeriesPoint{}
	for rows.Next() {
		var (
			tick  int64
			code  string
			value float64
		)
		if err := rows.Scan(&tick, &code, &value); err != nil {
			return nil, err
		}
		out[code] = append(out[code], SeriesPoint{Tick: uint64(tick), Value: value})
	}
	return out, rows.Err()
}

// RecentTrades returns executed trades, newest first. limit defaults to
// and is capped at 300.
func (r *Recorder) RecentTrades(ctx context.Context, limit int) ([]protocol.Trade, error) {
	if limit <= 0 || limit > maxTradeRows {
		limit = maxTradeRows
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, tick, from_code, to_code, offering, requesting, created_at
		FROM trades ORDER BY tick DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []protocol.Trade{}
	for rows.Next() {
		var t protocol.Trade
		var tick int64
		var offering, requesting, createdAt string
		if err := rows.Scan(&t.ID, &tick, &t.From, &t.To, &offering, &requesting, &createdAt); err != nil {
			return nil, err
		}
		t.Tick = uint64(tick)
		_ = json.Unmarshal([]byte(offering), &t.Offering)
		_ = json.Unmarshal([]byte(requesting), &t.Requesting)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			t.Timestamp = ts
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// OverviewRow is the latest recorded snapshot of one state.
type OverviewRow struct {
	Code       string  `json:"code"`
	Tick       uint64  `json:"tick"`
	GDP        float64 `json:"gdp"`
	Welfare    float64 `json:"welfare"`
	Trust      float64 `json:"trust"`
	Water      int     `json:"water"`
	Energy     int     `json:"energy"`
	Food       int     `json:"food"`
	Tech       int     `json:"tech"`
	Population int64   `json:"population"`
}

// Overview returns every state's metrics at the most recent tick.
func (r *Recorder) Overview(ctx context.Context) ([]OverviewRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tick, code, gdp, welfare, trust, water, energy, food, tech, population
		FROM region_metrics
		WHERE tick = (SELECT COALESCE(MAX(tick), 0) FROM region_metrics)
		ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []OverviewRow{}
	for rows.Next() {
		var (
			o    OverviewRow
			tick int64
		)
		if err := rows.Scan(&tick, &o.Code, &o.GDP, &o.Welfare, &o.Trust, &o.Water, &o.Energy, &o.Food, &o.Tech, &o.Population); err != nil {
			return nil, err
		}
		o.Tick = uint64(tick)
		out = append(out, o)
	}
	return out, rows.Err()
}

// TradeVolume sums traded quantity per resource across all recorded
// trades. Both legs of a trade move goods, so both count.
func (r *Recorder) TradeVolume(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT offering, requesting FROM trades`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var offering, requesting string
		if err := rows.Scan(&offering, &requesting); err != nil {
			return nil, err
		}
		for _, raw := range []string{offering, requesting} {
			var bundle map[string]int
			if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
				continue
			}
			for res, qty := range bundle {
				out[res] += qty
			}
		}
	}
	return out, rows.Err()
}

// ClimateCounts returns how many times each climate event has triggered.
func (r *Recorder) ClimateCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT event_id, COUNT(*) FROM climate_events
		WHERE kind = 'TRIGGERED' GROUP BY event_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// ActivityRow counts one state's participation in recorded trades.
type ActivityRow struct {
	Code     string `json:"code"`
	Outgoing int    `json:"outgoing"`
	Incoming int    `json:"incoming"`
}

// Activity returns per-state outgoing and incoming trade counts.
func (r *Recorder) Activity(ctx context.Context) ([]ActivityRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code, SUM(outgoing), SUM(incoming) FROM (
			SELECT from_code AS code, COUNT(*) AS outgoing, 0 AS incoming FROM trades GROUP BY from_code
			UNION ALL
			SELECT to_code AS code, 0 AS outgoing, COUNT(*) AS incoming FROM trades GROUP BY to_code
		) GROUP BY code ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ActivityRow{}
	for rows.Next() {
		var a ActivityRow
		if err := rows.Scan(&a.Code, &a.Outgoing, &a.Incoming); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
