// Command vlansim-server exposes the simulation over WebSocket and
// HTTP for the visualization frontend, with Prometheus metrics and
// optional OpenTelemetry tracing.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	network "github.com/netlabworks/vlansim/core"
	"github.com/netlabworks/vlansim/internal/logging"
	"github.com/netlabworks/vlansim/internal/observability"
	sim "github.com/netlabworks/vlansim/internal/sim/state"
	"github.com/netlabworks/vlansim/internal/vis"
	"github.com/netlabworks/vlansim/kb"
	"github.com/netlabworks/vlansim/timectrl"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP address for the WebSocket and JSON API")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	scenarioPath := flag.String("scenario", "", "optional scenario file to load at startup")
	tickInterval := flag.Duration("tick-interval", time.Second, "wall-clock duration of one tick at speed 1")
	tickSpan := flag.Duration("tick-span", time.Second, "simulated time per tick")
	seed := flag.String("seed", "vlansim", "RNG seed for traffic flow jitter")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewSimCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	hub := vis.NewHub(log)
	state := sim.NewSimState(
		kb.NewDeviceBase(),
		network.NewTopology(),
		log,
		[]network.Option{
			network.WithTickDuration(*tickSpan),
			network.WithMetrics(collector),
		},
		sim.WithMetricsRecorder(collector),
		sim.WithEventSink(hub),
	)

	ctrl := timectrl.NewTimeController(state, *tickInterval)
	server := vis.NewServer(state, hub, ctrl, log)

	if *scenarioPath != "" {
		summary, err := state.LoadScenarioFile(*scenarioPath)
		if err != nil {
			log.Error(ctx, "scenario load failed",
				logging.String("path", *scenarioPath),
				logging.String("error", err.Error()))
			os.Exit(1)
		}
		server.SetFlows(summary.Flows, *seed)
		log.Info(ctx, "scenario loaded",
			logging.String("name", summary.Name),
			logging.Int("devices", len(summary.DeviceIDs)),
			logging.Int("flows", len(summary.Flows)))
	}

	mux := http.NewServeMux()
	vis.RegisterRoutes(mux, server, collector.Middleware)

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		log.Info(ctx, "serving simulator API", logging.String("addr", *addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "API server exited", logging.String("error", err.Error()))
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down simulator server")
	ctrl.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
