package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"memflow/internal/api"
	"memflow/internal/device"
	"memflow/internal/history"
	"memflow/internal/profile"
	"memflow/internal/recurrence"
	"memflow/internal/resource"
	"memflow/internal/scheduler"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "HTTP bind address")
		dbPath       = flag.String("db", "memflow.db", "SQLite history DB path")
		profilesPath = flag.String("profiles", "profiles.json", "profile set JSON path")
		parallel     = flag.Int("max-parallel", 4, "maximum concurrently running tasks")
		dispatch     = flag.Duration("dispatch", 250*time.Millisecond, "dispatch loop interval")
		simLatency   = flag.Duration("sim-latency", 50*time.Millisecond, "simulated device latency per command")
		debug        = flag.Bool("debug", false, "enable pprof endpoints")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	store, err := profile.LoadFile(*profilesPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *profilesPath).Msg("load profiles")
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", *dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := history.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	hist := history.NewStore(db)

	// The simulated command port stands in for the serial/socat/power
	// transports; swap in a real implementation to drive hardware.
	port := device.NewSim(*simLatency)

	coord := resource.NewCoordinator()
	sched := scheduler.New(scheduler.Config{
		MaxParallelism:   *parallel,
		DispatchInterval: *dispatch,
	}, store, port, coord, nil, hist)

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)

	rec := recurrence.NewService(sched, time.Second)
	go rec.Start(ctx)

	// Drain progress events into the log; a UI would subscribe here
	// instead.
	go func() {
		for ev := range sched.Events() {
			log.Debug().Str("task_id", ev.TaskID).Str("state", string(ev.State)).
				Str("stage", ev.Stage).Float64("percent", ev.Percent).
				Str("msg", ev.Message).Msg("progress")
		}
	}()

	srv := &http.Server{Addr: *addr, Handler: api.NewServerWithDebug(sched, rec, hist, *debug)}
	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
