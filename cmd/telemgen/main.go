// Command telemgen simulates a fleet of agents and streams their positions
// as CoT events or STANAG 4586 frames.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/telemetry-generator/internal/config"
	"github.com/signalsfoundry/telemetry-generator/internal/generator"
	"github.com/signalsfoundry/telemetry-generator/internal/logging"
	"github.com/signalsfoundry/telemetry-generator/internal/observability"
	"github.com/signalsfoundry/telemetry-generator/internal/sink"
	"github.com/signalsfoundry/telemetry-generator/kb"
	"github.com/signalsfoundry/telemetry-generator/protocol"
	"github.com/signalsfoundry/telemetry-generator/protocol/cot"
	"github.com/signalsfoundry/telemetry-generator/protocol/stanag"
	"github.com/signalsfoundry/telemetry-generator/timectrl"
)

func main() {
	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		log.Error(ctx, "invalid environment configuration", logging.Err(err))
		os.Exit(2)
	}
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(2)
	}

	tracing := observability.TracingConfigFromEnv(os.Getenv).WithRun(
		attribute.String("telemgen.protocol", cfg.Protocol),
		attribute.String("telemgen.motion", cfg.Motion),
		attribute.Int("telemgen.agents", cfg.Agents),
	)
	shutdownTracing, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log); err != nil {
		log.Error(ctx, "telemgen failed", logging.Err(err))
		stop()
		observability.ShutdownWithTimeout(ctx, shutdownTracing, log)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log logging.Logger) error {
	box, err := cfg.BoundingBox()
	if err != nil {
		return err
	}
	motion, err := cfg.MotionSource()
	if err != nil {
		return err
	}
	specs, err := cfg.SinkSpecs()
	if err != nil {
		return err
	}

	collector, err := observability.NewGeneratorCollector(nil)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}

	start := time.Now().UTC()
	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(start, cfg.Tick, mode)

	registerProtocols(cfg, tc)
	proto, err := protocol.Lookup(cfg.Protocol)
	if err != nil {
		return err
	}

	sinks, err := sink.OpenAll(ctx, specs, sink.Options{
		Delimiter: delimiterFor(cfg.Protocol),
		Subject:   cfg.Subject,
	})
	if err != nil {
		return err
	}
	out := sink.NewFanout(collector.ObserveSend, sinks...)
	defer func() {
		if err := out.Close(); err != nil {
			log.Warn(context.Background(), "closing sinks", logging.Err(err))
		}
	}()

	store := kb.NewKnowledgeBase()
	gen := generator.New(proto, out,
		generator.WithLogger(log),
		generator.WithKnowledgeBase(store),
		generator.WithMetrics(collector),
		generator.WithRateLimit(cfg.Rate),
	)

	fleet := generator.FleetSpec{
		Count:       cfg.Agents,
		Prefix:      cfg.AgentPrefix,
		Source:      motion,
		Box:         box,
		MaxVelocity: cfg.MaxVelocity,
		TLE1:        cfg.TLE1,
		TLE2:        cfg.TLE2,
		Epoch:       start,
	}
	if cfg.Scenario != "" {
		scenario, err := generator.LoadScenarioFile(cfg.Scenario)
		if err != nil {
			return err
		}
		if err := scenario.Apply(gen, fleet, seededRand(cfg.Seed)); err != nil {
			return err
		}
		log.Info(ctx, "scenario loaded",
			logging.String("path", cfg.Scenario),
			logging.Int("agents", len(scenario.Agents)),
		)
	} else if err := generator.Populate(gen, fleet, seededRand(cfg.Seed)); err != nil {
		return err
	}

	srv := serveHTTP(cfg.MetricsAddr, collector, store, log)
	if srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	return gen.Run(ctx, tc, cfg.Duration)
}

func registerProtocols(cfg config.Config, clock timectrl.SimClock) {
	protocol.Register(cot.NewCodec(cot.WithClock(clock), cot.WithStaleAfter(cfg.StaleAfter)))
	protocol.Register(stanag.NewPositionProtocol(uint32(cfg.StreamID)))
}

// delimiterFor separates XML documents on stream sinks; STANAG frames carry
// their own length.
func delimiterFor(proto string) []byte {
	if proto == cot.Name {
		return []byte("\n")
	}
	return nil
}

func seededRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func serveHTTP(addr string, collector *observability.GeneratorCollector, store *kb.KnowledgeBase, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.Handle("/agents", agentsHandler(store))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "http server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving metrics and agent registry", logging.String("addr", addr))
	return srv
}

func agentsHandler(store *kb.KnowledgeBase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(store.ListAgents()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
