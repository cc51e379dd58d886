package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"worldsim.in/internal/persistence/history"
	"worldsim.in/internal/protocol"
	"worldsim.in/internal/sim/world"
	"worldsim.in/internal/transport/ws"
)

// newMux wires the feed, the REST surface, and the metrics exposition.
// hist may be nil when the history store is disabled; the history routes
// then answer 503.
func newMux(w *world.World, hist *history.Recorder, feed *ws.Server, logger *log.Logger) *http.ServeMux {
	started := time.Now()
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", feed.Handler())

	mux.HandleFunc("/", func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(rw, r)
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{
			"status":  "worldsim api running",
			"tick":    w.Tick(),
			"running": w.Running(),
		})
	})

	mux.HandleFunc("/api/state", func(rw http.ResponseWriter, r *http.Request) {
		snap, ok := w.LatestSnapshot()
		if !ok {
			writeError(rw, http.StatusServiceUnavailable, "no tick completed yet")
			return
		}
		writeJSON(rw, http.StatusOK, snap)
	})

	mux.HandleFunc("/api/intervene", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(rw, http.StatusMethodNotAllowed, "POST only")
			return
		}
		var iv protocol.Intervention
		if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 1<<20)).Decode(&iv); err != nil {
			writeError(rw, http.StatusBadRequest, "malformed intervention payload")
			return
		}
		if err := feed.ValidateIntervention(iv); err != nil {
			writeError(rw, http.StatusBadRequest, err.Error())
			return
		}
		depth, err := w.QueueIntervention(iv)
		if err != nil {
			if errors.Is(err, world.ErrQueueFull) {
				writeError(rw, http.StatusServiceUnavailable, "intervention queue full")
				return
			}
			writeError(rw, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{
			"status": "queued",
			"id":     uuid.NewString(),
			"queue":  depth,
		})
	})

	// History queries. Each handler returns the decoded result or an
	// error; the wrapper owns status codes so the bodies stay uniform.
	historyRoute := func(fn func(r *http.Request) (any, error)) http.HandlerFunc {
		return func(rw http.ResponseWriter, r *http.Request) {
			if hist == nil {
				writeError(rw, http.StatusServiceUnavailable, "history disabled")
				return
			}
			v, err := fn(r)
			if err != nil {
				logger.Printf("history query: %v", err)
				writeError(rw, http.StatusInternalServerError, "history query failed")
				return
			}
			writeJSON(rw, http.StatusOK, v)
		}
	}

	mux.HandleFunc("/api/history/gdp", historyRoute(func(r *http.Request) (any, error) {
		return hist.GDPSeries(r.Context(), intQuery(r, "ticks"))
	}))
	mux.HandleFunc("/api/history/welfare", historyRoute(func(r *http.Request) (any, error) {
		return hist.WelfareSeries(r.Context(), intQuery(r, "ticks"))
	}))
	mux.HandleFunc("/api/history/trades", historyRoute(func(r *http.Request) (any, error) {
		return hist.RecentTrades(r.Context(), intQuery(r, "limit"))
	}))
	mux.HandleFunc("/api/history/overview", historyRoute(func(r *http.Request) (any, error) {
		return hist.Overview(r.Context())
	}))
	mux.HandleFunc("/api/history/trade-volume", historyRoute(func(r *http.Request) (any, error) {
		return hist.TradeVolume(r.Context())
	}))
	mux.HandleFunc("/api/history/climate", historyRoute(func(r *http.Request) (any, error) {
		return hist.ClimateCounts(r.Context())
	}))
	mux.HandleFunc("/api/history/activity", historyRoute(func(r *http.Request) (any, error) {
		return hist.Activity(r.Context())
	}))

	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})

	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		writeMetric(rw, "worldsim_uptime_seconds", "gauge",
			"Seconds since the server started.", uint64(time.Since(started).Seconds()))
		writeMetric(rw, "worldsim_tick", "gauge",
			"Current simulation tick.", w.Tick())
		running := uint64(0)
		if w.Running() {
			running = 1
		}
		writeMetric(rw, "worldsim_running", "gauge",
			"Whether the simulation loop is live.", running)
		writeMetric(rw, "worldsim_feed_clients", "gauge",
			"Connected feed observers.", uint64(w.ObserverCount()))
		writeMetric(rw, "worldsim_frames_broadcast_total", "counter",
			"Tick frames fanned out to observers.", w.FramesBroadcast())
		writeMetric(rw, "worldsim_interventions_queued_total", "counter",
			"Federal actions accepted into the queue.", w.InterventionsQueued())
		writeMetric(rw, "worldsim_interventions_applied_total", "counter",
			"Federal actions applied by the loop.", w.InterventionsApplied())
		if hist != nil {
			writeMetric(rw, "worldsim_history_queue_depth", "gauge",
				"History records waiting for the writer.", uint64(hist.QueueDepth()))
			writeMetric(rw, "worldsim_history_dropped_total", "counter",
				"History records dropped because the queue was full.", hist.Dropped())
		}
	})

	return mux
}

func writeMetric(rw http.ResponseWriter, name, kind, help string, value uint64) {
	fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
	fmt.Fprintf(rw, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(rw, "%s %d\n", name, value)
}

func intQuery(r *http.Request, key string) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, code int, msg string) {
	writeJSON(rw, code, map[string]string{"error": msg})
}
