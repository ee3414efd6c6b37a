package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"BreachLedger/internal/config"
	"BreachLedger/internal/detector"
	"BreachLedger/internal/event"
	"BreachLedger/internal/fanout"
	"BreachLedger/internal/ingestion"
	"BreachLedger/internal/observability"
	"BreachLedger/internal/persistence"
	"BreachLedger/internal/query"
	"BreachLedger/internal/rules"
	"BreachLedger/internal/server"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("INFO: BreachLedger starting...")

	// .env is a dev convenience; absence is normal in production.
	godotenv.Load()

	cfg, err := config.Load(os.Getenv("BREACH_CONFIG"))
	if err != nil {
		log.Fatalf("FATAL: load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := persistence.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("FATAL: postgres: %v", err)
	}
	defer db.Close()
	log.Println("INFO: Postgres connected")

	migrator := persistence.NewMigrator(db, cfg.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		log.Fatalf("FATAL: run migrations: %v", err)
	}
	log.Println("INFO: migrations applied")

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker("postgres", "nats", "recovery")
	healthChecker.SetComponentReady("postgres", true)

	// --- Rules ---
	ruleMgr := rules.NewManager(cfg.Rules.ThresholdPPM, cfg.Rules.RuleVersion)
	metrics.ActiveRuleVersion.Set(float64(cfg.Rules.RuleVersion))

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("FATAL: nats connect: %v", err)
	}
	defer nc.Close()
	log.Println("INFO: NATS connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure NATS streams: %v", err)
	}
	healthChecker.SetComponentReady("nats", true)

	// --- Detection pipeline ---
	stateStore := persistence.NewPostgresStateStore(db)
	breachChan := make(chan *event.Breach, cfg.BreachChanSize)

	router := detector.NewRouter(
		cfg.Partitions, cfg.PartitionBuffer,
		ruleMgr, stateStore, breachChan,
		metrics, observability.NewLogger("detector"),
	)
	router.Start(ctx)

	breachPublisher := ingestion.NewBreachPublisher(js, breachChan, metrics)
	publisherDone := make(chan struct{})
	go func() {
		defer close(publisherDone)
		breachPublisher.Run(ctx)
	}()

	// --- Startup re-publication ---
	// A crash between commit and publish leaves committed breaches missing
	// from the stream. Re-emitting today's events closes that gap; Msg-Id
	// dedup and the notification ledger absorb the overlap.
	today := time.Now().UTC().Format("2006-01-02")
	committed, err := stateStore.ListEvents(ctx, today)
	if err != nil {
		log.Fatalf("FATAL: list committed breaches: %v", err)
	}
	if err := breachPublisher.Republish(ctx, committed); err != nil {
		log.Fatalf("FATAL: republish breaches: %v", err)
	}

	// --- Fan-out ---
	ledger := persistence.NewPostgresLedger(db)
	engine := fanout.NewEngine(
		fanout.Config{
			NumShards:        cfg.Fanout.NumShards,
			ShardConcurrency: cfg.Fanout.ShardConcurrency,
			PageSize:         cfg.Fanout.PageSize,
			ShardDeadline:    cfg.Fanout.ShardDeadline,
			MaxRetries:       cfg.Fanout.MaxRetries,
			InitialBackoff:   cfg.Fanout.InitialBackoff,
			MaxBackoff:       cfg.Fanout.MaxBackoff,
			LedgerTTL:        cfg.Fanout.LedgerTTL,
		},
		persistence.NewPostgresShardReader(db, cfg.Fanout.NumShards),
		ledger,
		ingestion.NewIntentOutbox(js),
		metrics,
		observability.NewLogger("fanout"),
	)

	// --- Subscribers ---
	tickConsumer, err := ingestion.SubscribeTicks(ctx, js, router, metrics)
	if err != nil {
		log.Fatalf("FATAL: subscribe ticks: %v", err)
	}
	breachConsumer, err := ingestion.SubscribeBreaches(ctx, js, engine)
	if err != nil {
		log.Fatalf("FATAL: subscribe breaches: %v", err)
	}
	ruleConsumer, err := ingestion.SubscribeRuleUpdates(ctx, js, ruleMgr, metrics)
	if err != nil {
		log.Fatalf("FATAL: subscribe rule updates: %v", err)
	}

	errChan := make(chan error, 4)

	// --- Ops HTTP API ---
	httpServer := server.NewHTTPServer(cfg.HTTPAddr, &server.Deps{
		QueryService:  query.NewQueryService(db),
		Rules:         ruleMgr,
		HealthChecker: healthChecker,
		StartTime:     time.Now(),
	})
	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	// --- Metrics server ---
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			srv.Shutdown(shutCtx)
		}()
		log.Printf("INFO: metrics server listening on %s/metrics", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	// --- Ledger TTL sweep ---
	go func() {
		ticker := time.NewTicker(cfg.PurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := ledger.PurgeExpired(ctx, time.Now())
				if err != nil {
					log.Printf("WARN: ledger purge failed: %v", err)
					continue
				}
				if n > 0 {
					metrics.LedgerPurged.Add(float64(n))
					log.Printf("INFO: purged %d expired ledger entries", n)
				}
			}
		}
	}()

	healthChecker.SetComponentReady("recovery", true)
	log.Printf("INFO: BreachLedger ready (partitions=%d, http=%s, metrics=%s, rule_version=%d)",
		cfg.Partitions, cfg.HTTPAddr, cfg.MetricsAddr, cfg.Rules.RuleVersion)

	select {
	case sig := <-sigChan:
		log.Printf("INFO: received signal %s, shutting down...", sig)
	case err := <-errChan:
		log.Printf("ERROR: goroutine failed: %v, shutting down...", err)
	}

	// Stop intake first, then drain the pipeline in order: partitions flush
	// into breachChan, the publisher drains breachChan, then everything else
	// is cancelled.
	tickConsumer.Stop()
	breachConsumer.Stop()
	ruleConsumer.Stop()

	router.Stop()
	close(breachChan)

	select {
	case <-publisherDone:
	case <-time.After(30 * time.Second):
		log.Println("WARN: breach publisher did not drain in time")
	}

	cancel()
	log.Println("INFO: BreachLedger shutdown complete")
}
