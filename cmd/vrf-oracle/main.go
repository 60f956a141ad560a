// Package main runs the VRF fulfillment oracle: a long-lived daemon that
// scans the ledger for pending randomness requests, obtains verifiable
// proofs from the ECVRF tool, and submits fulfillment transactions.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kamui-network/vrf-oracle/internal/chain"
	"github.com/kamui-network/vrf-oracle/internal/config"
	"github.com/kamui-network/vrf-oracle/internal/oracle"
	"github.com/kamui-network/vrf-oracle/internal/vrf"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vrf-oracle: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Optional .env file; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	signer, err := chain.LoadKeypair(cfg.KeypairPath)
	if err != nil {
		return fmt.Errorf("load signing identity: %w", err)
	}

	programID, err := chain.AddressFromBase58(cfg.ProgramID)
	if err != nil {
		return fmt.Errorf("program ID: %w", err)
	}

	log.Info().
		Str("oracle", signer.Address.String()).
		Str("program", programID.String()).
		Str("rpc", cfg.RPCEndpoint).
		Msg("starting vrf oracle")

	client, err := chain.NewClient(chain.Config{
		RPCURL:  cfg.RPCEndpoint,
		Timeout: cfg.CallTimeout,
	})
	if err != nil {
		return fmt.Errorf("ledger client: %w", err)
	}

	prover, err := vrf.NewCLI(vrf.CLIConfig{
		BinPath: cfg.VRFCLIPath,
		KeyPath: cfg.VRFKeyPath,
		Timeout: cfg.CallTimeout,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("vrf prover: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.PipelineSelfTest {
		if err := selfTest(ctx, prover, log); err != nil {
			return fmt.Errorf("pipeline self-test: %w", err)
		}
	}

	dedup := oracle.NewDedupLedger(cfg.DedupWindow)
	if cfg.StatePath != "" {
		if err := dedup.LoadFile(cfg.StatePath, time.Now()); err != nil {
			log.Warn().Err(err).Msg("could not restore dedup state, starting fresh")
		} else if n := dedup.Len(); n > 0 {
			log.Info().Int("records", n).Msg("restored dedup state")
		}
	}

	stats := oracle.NewStats(time.Now())

	scanner, err := oracle.NewScanner(oracle.ScannerConfig{
		Reader:    client,
		Dedup:     dedup,
		ProgramID: programID,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	pipeline, err := oracle.NewPipeline(oracle.PipelineConfig{
		Prover:      prover,
		Sender:      client,
		Dedup:       dedup,
		Stats:       stats,
		Signer:      signer,
		ProgramID:   programID,
		CallTimeout: cfg.CallTimeout,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	scheduler, err := oracle.NewScheduler(oracle.SchedulerConfig{
		Scanner:      scanner,
		Pipeline:     pipeline,
		Stats:        stats,
		Interval:     cfg.PollInterval,
		Backoff:      cfg.Backoff,
		RequestDelay: cfg.RequestDelay,
		Logger:       log,
	})
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		startMetricsServer(cfg.MetricsAddr, stats, scheduler, log)
	}

	err = scheduler.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if cfg.StatePath != "" {
		if err := dedup.SaveFile(cfg.StatePath); err != nil {
			log.Warn().Err(err).Msg("could not persist dedup state")
		}
	}

	snap := stats.Snapshot(time.Now())
	log.Info().
		Uint64("processed", snap.Processed).
		Uint64("fulfilled", snap.Fulfilled).
		Uint64("errors", snap.Errors).
		Dur("uptime", snap.Uptime).
		Msg("vrf oracle shut down")
	return nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("log level %q: %w", level, err)
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger(), nil
}

// selfTest proves and verifies a fixed seed before entering the loop, so a
// broken prover setup fails at startup instead of on the first request.
func selfTest(ctx context.Context, prover vrf.Prover, log zerolog.Logger) error {
	seed := []byte("vrf-oracle-pipeline-self-test-00")

	proof, err := prover.GenerateProof(ctx, seed)
	if err != nil {
		return err
	}
	ok, err := prover.VerifyProof(ctx, proof.Proof, proof.Output, prover.PublicKey(), seed)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("generated proof failed verification")
	}

	log.Info().Msg("proof pipeline self-test passed")
	return nil
}

// startMetricsServer exposes Prometheus metrics and a health probe. Purely
// operational; the oracle offers no service API.
func startMetricsServer(addr string, stats *oracle.Stats, scheduler *oracle.Scheduler, log zerolog.Logger) {
	reg := prometheus.NewRegistry()
	if err := stats.Register(reg); err != nil {
		log.Warn().Err(err).Msg("metrics registration failed")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "ok %s\n", scheduler.State())
	})

	go func() {
		log.Info().Str("addr", addr).Msg("metrics listener started")
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warn().Err(err).Msg("metrics listener stopped")
		}
	}()
}
