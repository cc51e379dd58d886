package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"worldsim.in/internal/persistence/history"
	"worldsim.in/internal/protocol"
	"worldsim.in/internal/sim/tuning"
	"worldsim.in/internal/sim/world"
	"worldsim.in/internal/transport/ws"
	"worldsim.in/schemas"
)

func newTestStack(t *testing.T, maxTicks uint64, withHistory bool) (*httptest.Server, *world.World, *history.Recorder) {
	t.Helper()

	tune := tuning.Defaults()
	tune.TickIntervalMS = 1
	tune.MaxTicks = maxTicks

	cfg := world.Config{Tuning: tune, Seed: 7}

	var hist *history.Recorder
	if withHistory {
		var err error
		hist, err = history.Open(filepath.Join(t.TempDir(), "history.db"))
		if err != nil {
			t.Fatalf("open history: %v", err)
		}
		t.Cleanup(func() { _ = hist.Close() })
		cfg.History = hist
	}

	w := world.New(cfg)

	schema, err := schemas.Intervene()
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	srv := httptest.NewServer(newMux(w, hist, ws.NewServer(w, logger, schema), logger))
	t.Cleanup(srv.Close)
	return srv, w, hist
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, v any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestStatusAndHealth(t *testing.T) {
	srv, _, _ := newTestStack(t, 0, false)

	var status struct {
		Status  string `json:"status"`
		Tick    uint64 `json:"tick"`
		Running bool   `json:"running"`
	}
	if code := getJSON(t, srv.URL+"/", &status); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if status.Status == "" || status.Tick != 0 || status.Running {
		t.Fatalf("unexpected status payload: %+v", status)
	}

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}

	if code := getJSON(t, srv.URL+"/nope", nil); code != http.StatusNotFound {
		t.Fatalf("unknown path code = %d", code)
	}
}

func TestStateUnavailableUntilFirstTick(t *testing.T) {
	srv, w, _ := newTestStack(t, 3, false)

	if code := getJSON(t, srv.URL+"/api/state", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("pre-tick state code = %d", code)
	}

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var snap protocol.Snapshot
	if code := getJSON(t, srv.URL+"/api/state", &snap); code != http.StatusOK {
		t.Fatalf("state code = %d", code)
	}
	if snap.Tick != 3 {
		t.Fatalf("snapshot tick = %d, want 3", snap.Tick)
	}
	if len(snap.Regions) != 10 {
		t.Fatalf("snapshot regions = %d, want 10", len(snap.Regions))
	}
	if snap.Stats == nil || snap.Stats.TotalGDP <= 0 {
		t.Fatalf("snapshot stats missing: %+v", snap.Stats)
	}
}

func TestInterveneEndpoint(t *testing.T) {
	srv, w, _ := newTestStack(t, 0, false)
	url := srv.URL + "/api/intervene"

	if code := getJSON(t, url, nil); code != http.StatusMethodNotAllowed {
		t.Fatalf("GET code = %d", code)
	}
	if code := postJSON(t, url, "{", nil); code != http.StatusBadRequest {
		t.Fatalf("malformed body code = %d", code)
	}
	if code := postJSON(t, url, `{"action":"earthquake"}`, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown action code = %d", code)
	}
	if code := postJSON(t, url, `{"action":"drought","target":"punjab"}`, nil); code != http.StatusBadRequest {
		t.Fatalf("bad target code = %d", code)
	}

	var ack struct {
		Status string `json:"status"`
		ID     string `json:"id"`
		Queue  int    `json:"queue"`
	}
	if code := postJSON(t, url, `{"action":"stimulus","target":"PB"}`, &ack); code != http.StatusOK {
		t.Fatalf("valid intervene code = %d", code)
	}
	if ack.Status != "queued" || ack.ID == "" || ack.Queue != 1 {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if got := w.InterventionsQueued(); got != 1 {
		t.Fatalf("queued = %d, want 1", got)
	}

	// The queue holds 64 actions; the world is idle so nothing drains.
	for i := 0; i < 63; i++ {
		if code := postJSON(t, url, `{"action":"stimulus"}`, nil); code != http.StatusOK {
			t.Fatalf("fill post %d code = %d", i, code)
		}
	}
	if code := postJSON(t, url, `{"action":"stimulus"}`, nil); code != http.StatusServiceUnavailable {
		t.Fatalf("overflow code = %d", code)
	}
}

func TestHistoryRoutes(t *testing.T) {
	srv, w, _ := newTestStack(t, 4, true)

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// The recorder commits asynchronously; poll until the last tick lands.
	deadline := time.Now().Add(2 * time.Second)
	var overview []history.OverviewRow
	for {
		if code := getJSON(t, srv.URL+"/api/history/overview", &overview); code != http.StatusOK {
			t.Fatalf("overview code = %d", code)
		}
		if len(overview) == 10 && overview[0].Tick == 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("history never caught up: %d rows", len(overview))
		}
		time.Sleep(5 * time.Millisecond)
	}

	var gdp map[string][]history.SeriesPoint
	if code := getJSON(t, srv.URL+"/api/history/gdp?ticks=2", &gdp); code != http.StatusOK {
		t.Fatalf("gdp code = %d", code)
	}
	points, ok := gdp["PB"]
	if !ok || len(points) != 2 {
		t.Fatalf("gdp series for PB = %v", points)
	}
	if points[len(points)-1].Tick != 4 {
		t.Fatalf("last gdp tick = %d, want 4", points[len(points)-1].Tick)
	}

	var welfare map[string][]history.SeriesPoint
	if code := getJSON(t, srv.URL+"/api/history/welfare", &welfare); code != http.StatusOK {
		t.Fatalf("welfare code = %d", code)
	}
	if len(welfare) != 10 {
		t.Fatalf("welfare states = %d, want 10", len(welfare))
	}

	var trades []protocol.Trade
	if code := getJSON(t, srv.URL+"/api/history/trades?limit=5", &trades); code != http.StatusOK {
		t.Fatalf("trades code = %d", code)
	}
	var volume map[string]int
	if code := getJSON(t, srv.URL+"/api/history/trade-volume", &volume); code != http.StatusOK {
		t.Fatalf("trade-volume code = %d", code)
	}
	var climate map[string]int
	if code := getJSON(t, srv.URL+"/api/history/climate", &climate); code != http.StatusOK {
		t.Fatalf("climate code = %d", code)
	}
	var activity []history.ActivityRow
	if code := getJSON(t, srv.URL+"/api/history/activity", &activity); code != http.StatusOK {
		t.Fatalf("activity code = %d", code)
	}
}

func TestHistoryRoutesDisabled(t *testing.T) {
	srv, _, _ := newTestStack(t, 0, false)

	var e struct {
		Error string `json:"error"`
	}
	if code := getJSON(t, srv.URL+"/api/history/overview", &e); code != http.StatusServiceUnavailable {
		t.Fatalf("overview code = %d", code)
	}
	if e.Error != "history disabled" {
		t.Fatalf("error = %q", e.Error)
	}
}

func TestMetricsExposition(t *testing.T) {
	srv, _, _ := newTestStack(t, 0, true)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics code = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		"worldsim_tick 0",
		"worldsim_running 0",
		"worldsim_feed_clients 0",
		"worldsim_history_queue_depth",
		"# TYPE worldsim_frames_broadcast_total counter",
	} {
		if !bytes.Contains(body, []byte(want)) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}
