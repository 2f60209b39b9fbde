package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/replica_sim/logging"
	"github.com/example/replica_sim/scheduler"
	"github.com/example/replica_sim/simulation"
	"github.com/example/replica_sim/topology"
	"github.com/example/replica_sim/validator"
	"github.com/example/replica_sim/visual"
)

func main() {
	var topoPath = flag.String("topology", "", "Topology file (.json or .yaml)")
	var configPath = flag.String("config", "", "Run config YAML; defaults apply when empty")
	var seed = flag.Int64("seed", 0, "Override the random seed")
	var until = flag.Float64("until", 0, "Override the virtual-time horizon")
	var drain = flag.String("drain", "", "Override the in-flight policy at the horizon (drain|drop)")
	var serve = flag.String("serve", "", "Serve frames and controls on this address, e.g. :8080")
	var metrics = flag.Bool("metrics", false, "Expose /metrics on the -serve address")
	var trace = flag.String("trace", "", "Replay this workload trace instead of random users")
	var out = flag.String("out", "", "Write results and the validator report as JSON to this file")
	flag.Parse()

	if *topoPath == "" {
		fmt.Fprintln(os.Stderr, "missing -topology")
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*topoPath, *configPath, *seed, *until, *drain, *serve, *metrics, *trace, *out); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(topoPath, configPath string, seed int64, until float64, drain, serve string, metrics bool, trace, out string) error {
	cfg := simulation.DefaultConfig()
	if configPath != "" {
		loaded, err := simulation.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if seed != 0 {
		cfg.Seed = seed
	}
	if until != 0 {
		cfg.MaxSimTime = until
	}
	if drain != "" {
		cfg.DrainPolicy = scheduler.DrainPolicy(drain)
	}
	if trace != "" {
		cfg.Trace = trace
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), "replica_sim")
	logging.SetLogger(logger)
	defer logger.Sync()

	topo, err := topology.Load(topoPath)
	if err != nil {
		return err
	}

	opts := []simulation.Option{simulation.WithLogger(logger)}
	var hub *visual.Hub
	if serve != "" {
		hub = visual.NewHub(0, logger)
		defer hub.Close()
		opts = append(opts, simulation.WithVisualizer(hub))
	}
	sim, err := simulation.New(topo, cfg, opts...)
	if err != nil {
		return err
	}

	if hub != nil {
		mux := http.NewServeMux()
		mux.Handle("/", hub.Handler())
		if reg := sim.Metrics().Registry(); metrics && reg != nil {
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		}
		server := &http.Server{Addr: serve, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("http server: %v", err)
			}
		}()
		defer server.Close()
		logger.Infof("serving run %s on %s", sim.ID, serve)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := sim.Run(ctx)
	if err != nil && res == nil {
		return err
	}
	if err != nil {
		logger.Warnf("run interrupted: %v", err)
	}

	report, err := validator.Validate(context.Background(), res.Logs)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s finished at %.2f (%s)\n\n", res.RunID, res.Time, res.Elapsed)
	res.Stats.Print(os.Stdout)
	fmt.Println()
	res.Messages.Print(os.Stdout)
	fmt.Printf("\nWorkload: reads=%d writes=%d stale=%d errors=%d\n",
		res.Workload.Reads, res.Workload.Writes, res.Workload.StaleReads, res.Workload.Errors)
	fmt.Println("\nPer Replica Log Inconsistencies")
	if err := report.WriteTable(os.Stdout); err != nil {
		return err
	}
	fmt.Println("\nSplit Log Distance Report (Jaccard and Levenshtein)")
	if err := report.WriteMatrix(os.Stdout); err != nil {
		return err
	}

	if out != "" {
		data, err := json.MarshalIndent(struct {
			Results *simulation.Results `json:"results"`
			Report  *validator.Report   `json:"report"`
		}{res, report}, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
	}
	return nil
}
