// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal service
// packages. Postgres, Redis, and Kafka are all optional; absent backends fall
// back to in-memory implementations so the binary runs broker-free in dev.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"mercato/internal/auth/loginstate"
	identitymetrics "mercato/internal/identity/metrics"
	identityservice "mercato/internal/identity/service"
	accountstore "mercato/internal/identity/store/account"
	"mercato/internal/platform/config"
	"mercato/internal/platform/httpserver"
	"mercato/internal/platform/kafka"
	"mercato/internal/platform/logger"
	"mercato/internal/platform/migrate"
	platformredis "mercato/internal/platform/redis"
	httptransport "mercato/internal/transport/http"
	vendormetrics "mercato/internal/vendorapp/metrics"
	vendorservice "mercato/internal/vendorapp/service"
	applicationstore "mercato/internal/vendorapp/store/application"
	"mercato/internal/vendorapp/store/document"
	"mercato/internal/vendorapp/store/orders"
	"mercato/pkg/platform/audit"
	txcontext "mercato/pkg/platform/tx"
	"mercato/pkg/secrets"
)

const auditBuffer = 256

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores.
	var accounts identityservice.AccountStore
	var applications vendorservice.ApplicationStore
	var accountDirectory vendorservice.AccountDirectory
	var runner txcontext.Runner
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping database", "error", err)
			os.Exit(1)
		}
		if err := migrate.Run(ctx, db); err != nil {
			log.Error("run migrations", "error", err)
			os.Exit(1)
		}
		pgAccounts := accountstore.NewPostgres(db)
		accounts = pgAccounts
		accountDirectory = pgAccounts
		applications = applicationstore.NewPostgres(db)
		runner = txcontext.NewSQLRunner(db)
		log.Info("using postgres stores")
	} else {
		memAccounts := accountstore.NewInMemory()
		accounts = memAccounts
		accountDirectory = memAccounts
		memApplications := applicationstore.NewInMemory()
		applications = memApplications
		runner = txcontext.NewMemoryRunner(memAccounts, memApplications)
		log.Info("using in-memory stores")
	}

	// Login state.
	var loginState loginstate.Store
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		loginState = loginstate.NewRedis(redisClient.Client, cfg.LoginStateTTL)
		log.Info("using redis login state")
	} else {
		loginState = loginstate.NewMemory(cfg.LoginStateTTL)
		log.Info("using in-memory login state")
	}

	// Audit pipeline: services emit into a bounded channel, a worker drains
	// it into Kafka (or an in-memory sink when no brokers are configured).
	var sink audit.Sink
	kafkaSink, err := kafka.NewAuditSink(ctx, cfg.Kafka)
	if err != nil {
		log.Error("connect kafka", "error", err)
		os.Exit(1)
	}
	if kafkaSink != nil {
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("using kafka audit sink", "brokers", cfg.Kafka.Brokers)
	} else {
		sink = audit.NewMemorySink()
		log.Info("using in-memory audit sink")
	}
	publisher := audit.NewChannelPublisher(auditBuffer)
	worker := audit.NewWorker(sink, publisher.Inbox())

	// Services. The vendor service cleans up orphaned applications; the
	// identity service triggers that sweep on vendor-intent logins.
	vendorSvc := vendorservice.New(applications, accountDirectory, orders.NewInMemoryLister(),
		vendorservice.WithLogger(log),
		vendorservice.WithAuditPublisher(publisher),
		vendorservice.WithMetrics(vendormetrics.New()),
		vendorservice.WithTxRunner(runner),
	)
	identitySvc := identityservice.New(accounts, secrets.NewHasher(),
		identityservice.WithLogger(log),
		identityservice.WithAuditPublisher(publisher),
		identityservice.WithMetrics(identitymetrics.New()),
		identityservice.WithOrphanCleaner(vendorSvc),
	)

	handler := httptransport.NewHandler(
		identitySvc,
		vendorSvc,
		loginState,
		document.NewFilesystemStore(cfg.DocumentRoot),
		[]byte(cfg.AssertionSigningKey),
		[]byte(cfg.AdminSigningKey),
		log,
	)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting mercato identity engine", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
