package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/term"

	"meldlend/config"
	"meldlend/native/lending"
	"meldlend/native/lending/store"
	"meldlend/observability/logging"
	"meldlend/observability/metrics"
	"meldlend/storage"
)

func main() {
	marketsPath := flag.String("markets", "./markets.toml", "Path to the TOML market configuration")
	scenarioPath := flag.String("scenario", "", "Path to the YAML scenario to replay")
	dataDir := flag.String("datadir", "", "Directory holding the persisted state (empty keeps state in memory)")
	backend := flag.String("backend", "leveldb", "Persistent backend: leveldb or bolt")
	env := flag.String("env", strings.TrimSpace(os.Getenv("MELD_ENV")), "Deployment environment tag for logs")
	metricsOut := flag.String("metrics-out", "", "Write prometheus metrics in text format to this file after the run")
	flag.Parse()

	logger := logging.Setup("lendingsim", *env)
	if strings.TrimSpace(*scenarioPath) == "" {
		log.Fatalf("lendingsim: -scenario is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := run(ctx, options{
		marketsPath:  *marketsPath,
		scenarioPath: *scenarioPath,
		dataDir:      *dataDir,
		backend:      *backend,
		logger:       logger,
		metrics:      true,
	})
	if err != nil {
		log.Fatalf("lendingsim: %v", err)
	}

	if *metricsOut != "" {
		if err := writeMetrics(*metricsOut, prometheus.DefaultGatherer); err != nil {
			log.Fatalf("lendingsim: write metrics: %v", err)
		}
	}

	if err := encodeReport(os.Stdout, report, term.IsTerminal(int(os.Stdout.Fd()))); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode report: %v\n", err)
		os.Exit(1)
	}
}

// encodeReport writes the report as JSON, indented for interactive use and
// one line per run when piped.
func encodeReport(w io.Writer, report *Report, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(report)
}

type options struct {
	marketsPath  string
	scenarioPath string
	dataDir      string
	backend      string
	logger       *slog.Logger
	metrics      bool
}

func run(ctx context.Context, opts options) (*Report, error) {
	markets, err := config.LoadMarkets(opts.marketsPath)
	if err != nil {
		return nil, fmt.Errorf("load markets: %w", err)
	}
	scenario, err := LoadScenario(opts.scenarioPath)
	if err != nil {
		return nil, err
	}
	params, err := markets.ProtocolParams()
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(opts.dataDir, opts.backend)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	snapshots := store.New(db)

	state, timestamp, err := snapshots.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	engine, err := lending.NewEngine(state, params)
	if err != nil {
		return nil, err
	}
	if timestamp == 0 {
		timestamp = scenario.Start
	}
	engine.SetTimestamp(timestamp)
	if opts.metrics {
		engine.SetMetrics(metrics.Lending())
	}
	sim, err := newSimulator(markets, engine, opts.logger)
	if err != nil {
		return nil, err
	}
	if err := markets.Apply(engine); err != nil {
		return nil, fmt.Errorf("apply markets: %w", err)
	}
	if err := sim.Run(ctx, scenario); err != nil {
		return nil, err
	}
	if err := snapshots.Save(engine.State().Records(), engine.Timestamp()); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	return sim.Report()
}

func openDatabase(dir, backend string) (storage.Database, error) {
	if strings.TrimSpace(dir) == "" {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "leveldb":
		return storage.NewLevelDB(filepath.Join(dir, "lending"))
	case "bolt", "bbolt":
		return storage.NewBoltDB(filepath.Join(dir, "lending.bolt"))
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func writeMetrics(path string, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(f, family); err != nil {
			return err
		}
	}
	return nil
}
