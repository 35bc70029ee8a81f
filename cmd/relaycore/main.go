package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/pollinet/relay-core/internal/adapter"
	"github.com/pollinet/relay-core/internal/config"
	"github.com/pollinet/relay-core/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	logLevel := flag.String("log-level", "", "Log level override: debug/info/warn/error")
	demoSeconds := flag.Int("demo-seconds", 10, "How long to run the two-peer loopback demo")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := defaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load config")
		}
		cfg = loaded
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if cfg.Log.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	switch cfg.Log.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		log.Fatal().Str("level", cfg.Log.Level).Msg("Invalid log level")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *demoSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*demoSeconds)*time.Second)
		defer cancel()
	}

	tA := transport.New(cfg.ToTransportConfig())
	tB := transport.New(cfg.ToTransportConfig())
	peerA, peerB := adapter.NewLoopbackPair("alice", tA, "bob", tB, cfg.Transport.OutboundCapacity)

	txID, fragCount, err := tA.QueueTransaction([]byte("pollinet demo transaction payload"), 0)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to queue demo transaction")
	}
	log.Info().Str("tx_id", txID.Hex()).Int("fragments", fragCount).Msg("alice queued a transaction")

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Listen, cfg.Metrics.Path, tA)
		})
	}

	tickInterval := cfg.TickInterval()
	g.Go(func() error {
		peerA.Run(gctx, tickInterval)
		return nil
	})
	g.Go(func() error {
		peerB.Run(gctx, tickInterval)
		return nil
	})
	g.Go(func() error {
		return watchReceived(gctx, tB, tickInterval)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("relaycore exited with error")
	}

	snap := tB.Metrics()
	log.Info().
		Int("received_depth", snap.ReceivedDepth).
		Uint64("transactions_complete", snap.TransactionsComplete).
		Uint64("reassembly_failures", snap.ReassemblyFailures).
		Msg("bob's final metrics")
}

// watchReceived drains bob's received queue as entries arrive, logging
// each reassembled transaction.
func watchReceived(ctx context.Context, t *transport.Transport, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				entry, ok := t.NextReceivedTransaction()
				if !ok {
					break
				}
				log.Info().Str("tx_id", entry.TxID).Int("len", len(entry.Payload)).Msg("bob received a transaction")
			}
		}
	}
}

func serveMetrics(ctx context.Context, listen, path string, t *transport.Transport) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(t.MetricsRegistry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: listen, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", listen).Str("path", path).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func defaultConfig() *config.RootConfig {
	transportDefaults := transport.DefaultConfig()
	return &config.RootConfig{
		Transport: config.TransportConfig{
			MTUPayloadMax:        transportDefaults.MTUPayloadMax,
			MaxTxBytes:           transportDefaults.MaxTxBytes,
			ReassemblyTimeout:    transportDefaults.ReassemblyTimeout.String(),
			MaxBuckets:           transportDefaults.MaxBuckets,
			BucketFragmentCap:    transportDefaults.BucketFragmentCap,
			MaxTotalFragments:    transportDefaults.MaxTotalFragments,
			DedupCapacity:        transportDefaults.DedupCapacity,
			OutboundCapacity:     transportDefaults.OutboundCapacity,
			ReceivedCapacity:     transportDefaults.ReceivedCapacity,
			ConfirmationCapacity: transportDefaults.ConfirmationCapacity,
		},
		Metrics: config.MetricsConfig{Enabled: true, Listen: ":9090", Path: "/metrics"},
		Log:     config.LogConfig{Level: "info", Format: "console"},
		Tick:    config.TickConfig{Interval: "1s"},
	}
}
