package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"worldsim.in/internal/persistence/history"
	persistlog "worldsim.in/internal/persistence/log"
	"worldsim.in/internal/persistence/snapshot"
	"worldsim.in/internal/sim/tuning"
	"worldsim.in/internal/sim/world"
	"worldsim.in/internal/transport/ws"
	"worldsim.in/schemas"
)

func main() {
	var (
		addr       = flag.String("addr", ":8000", "http listen address")
		tuningPath = flag.String("tuning", "configs/tuning.yaml", "path to tuning.yaml")
		dataDir    = flag.String("data-dir", "./data", "runtime data directory")
		historyDB  = flag.String("history-db", "", "history sqlite path (default <data-dir>/history.db)")
		snapPath   = flag.String("snapshot", "", "world snapshot path (default <data-dir>/world.snap)")
		tickLogDir = flag.String("tick-log-dir", "", "tick log directory (default <data-dir>/ticklog)")
		maxTicks   = flag.Uint64("max-ticks", 0, "stop the simulation after N ticks (0 = run forever)")
		seed       = flag.Int64("seed", 42, "world seed (fresh worlds only)")
		noHistory  = flag.Bool("no-history", false, "disable the sqlite history")
		noTickLog  = flag.Bool("no-ticklog", false, "disable compressed tick logs")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	if *historyDB == "" {
		*historyDB = filepath.Join(*dataDir, "history.db")
	}
	if *snapPath == "" {
		*snapPath = filepath.Join(*dataDir, "world.snap")
	}
	if *tickLogDir == "" {
		*tickLogDir = filepath.Join(*dataDir, "ticklog")
	}
	_ = os.MkdirAll(*dataDir, 0o755)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}
	if *maxTicks > 0 {
		tune.MaxTicks = *maxTicks
	}

	interveneSchema, err := schemas.Intervene()
	if err != nil {
		logger.Fatalf("compile intervene schema: %v", err)
	}

	// Resume from the snapshot when one exists; its seed wins so the rng
	// stream stays tied to the original run.
	var (
		resume   snapshot.StateV1
		resuming bool
	)
	if st, err := snapshot.ReadSnapshot(*snapPath); err == nil {
		resume, resuming = st, true
	} else if !errors.Is(err, os.ErrNotExist) {
		logger.Fatalf("read snapshot: %v", err)
	}

	cfg := world.Config{Tuning: tune, Seed: *seed, Logger: logger}
	if resuming {
		cfg.Seed = resume.Seed
	}

	var hist *history.Recorder
	if !*noHistory {
		hist, err = history.Open(*historyDB)
		if err != nil {
			logger.Fatalf("open history: %v", err)
		}
		defer hist.Close()
		cfg.History = hist
	}

	var tickLog *persistlog.TickLogger
	if !*noTickLog {
		tickLog = persistlog.NewTickLogger(*tickLogDir)
		defer tickLog.Close()
		cfg.TickLogger = tickLog
	}

	snapCh := make(chan snapshot.StateV1, 2)
	cfg.SnapshotSink = snapCh

	w := world.New(cfg)
	if resuming {
		if err := w.RestoreState(resume); err != nil {
			logger.Fatalf("restore snapshot: %v", err)
		}
		logger.Printf("resumed from %s at tick %d", *snapPath, w.Tick())
	}

	ctx, cancel := signalContext()
	defer cancel()

	feed := ws.NewServer(w, logger, interveneSchema)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMux(w, hist, feed, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case st := <-snapCh:
				if err := snapshot.WriteSnapshot(*snapPath, st); err != nil {
					logger.Printf("snapshot write: %v", err)
				}
			}
		}
	})

	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Printf("shutdown: %v", err)
	}

	// The loop has exited; capture the final state.
	if err := snapshot.WriteSnapshot(*snapPath, w.ExportState()); err != nil {
		logger.Printf("final snapshot: %v", err)
	} else {
		logger.Printf("final snapshot saved at tick %d", w.Tick())
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
